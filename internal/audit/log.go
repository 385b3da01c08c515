package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"awaas.org/internal/auth"
	"awaas.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Sink receives audit entries for durable storage in addition to the log stream.
type Sink interface {
	Record(ctx context.Context, event string, entry map[string]any) error
}

var (
	sinkMu sync.RWMutex
	sink   Sink
)

// SetSink installs a durable sink for audit entries. A nil sink disables persistence.
func SetSink(s Sink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = s
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
// Sink failures are logged, not returned: losing the durable copy must not
// fail the operation being audited.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["user_id"] = userID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))

	sinkMu.RLock()
	s := sink
	sinkMu.RUnlock()
	if s != nil {
		if err := s.Record(ctx, event, entry); err != nil {
			obs.LogRequest(map[string]any{
				"level": "error",
				"msg":   "audit sink write failed",
				"event": event,
				"error": err.Error(),
			})
		}
	}
	return nil
}
