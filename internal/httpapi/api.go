// Package httpapi is the console's HTTP surface: the parking provisioning
// and assignment screens as JSON endpoints, plus health, metrics and the
// occupancy event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"awaas.org/internal/audit"
	"awaas.org/internal/auth"
	"awaas.org/internal/obs"
	"awaas.org/internal/parking"
	"awaas.org/internal/store/pg"
	"awaas.org/internal/stream"
)

// API is the HTTP layer over the parking controller and the society backend.
type API struct {
	mux        *http.ServeMux
	version    string
	controller *parking.Controller
	backend    parking.Backend
	stream     *stream.Stream
	store      *pg.Store

	rateBurst  int
	ratePerSec int
}

// New wires the routing table. store may be nil when no audit database is
// configured; the recent-activity endpoint then answers 503.
func New(version string, controller *parking.Controller, backend parking.Backend, st *stream.Stream, store *pg.Store) *API {
	a := &API{
		mux:        http.NewServeMux(),
		version:    version,
		controller: controller,
		backend:    backend,
		stream:     st,
		store:      store,
		rateBurst:  50,
		ratePerSec: 25,
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.HandleFunc("/v1/info", a.info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/parking/floors", a.handleFloors)
	a.mux.HandleFunc("/v1/parking/floors/", a.handleFloorResource)
	a.mux.HandleFunc("/v1/parking/slots/", a.handleSlotResource)
	a.mux.HandleFunc("/v1/parking/assignments", a.handleAssignments)
	a.mux.HandleFunc("/v1/parking/assignments/", a.handleAssignmentResource)
	a.mux.HandleFunc("/v1/parking/residents", a.handleResidents)
	a.mux.HandleFunc("/v1/parking/stream", a.handleStream)
	a.mux.HandleFunc("/v1/audit/recent", a.handleAuditRecent)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the routing table.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = Logging(h)
	h = RequestID(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = MaxBodyBytes(h, 1<<20)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "awaas-console",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "awaas-console",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermParkingView); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if a.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store not configured")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// audit emits an audit event; failures only log.
func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "audit log failed",
			"event": event,
			"error": err.Error(),
		})
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}
