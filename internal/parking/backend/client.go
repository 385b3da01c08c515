// Package backend implements the REST client for the society backend.
//
// Every response shares the envelope {isSuccess, resMsg, result}. A response
// with isSuccess=false is a backend rejection and surfaces resMsg verbatim;
// transport and decode failures wrap the operation name. Endpoints whose
// result shape drifts across field names (assignments, residents) are
// normalized through the alias tables in the parking package.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"awaas.org/internal/auth"
	"awaas.org/internal/ids"
	"awaas.org/internal/obs"
	"awaas.org/internal/parking"
)

// Client talks to the society backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

var _ parking.Backend = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken sets a static service token sent when the caller's context
// carries none.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a backend client. baseURL includes protocol and host without
// a trailing slash.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a backend-reported failure (isSuccess=false).
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Message
}

type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	ResMsg    string          `json:"resMsg"`
	Result    json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, headers map[string]string, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := auth.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		obs.ObserveBackendCall(op, "error", time.Since(start))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		obs.ObserveBackendCall(op, "error", time.Since(start))
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode >= 400 {
		obs.ObserveBackendCall(op, "error", time.Since(start))
		return fmt.Errorf("%s: backend status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			obs.ObserveBackendCall(op, "error", time.Since(start))
			return fmt.Errorf("%s: decode envelope: %w", op, err)
		}
	}
	if env.IsSuccess != nil && !*env.IsSuccess {
		obs.ObserveBackendCall(op, "rejected", time.Since(start))
		msg := strings.TrimSpace(env.ResMsg)
		if msg == "" {
			msg = "request failed"
		}
		return &Error{Op: op, Message: msg}
	}

	if out != nil && len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			obs.ObserveBackendCall(op, "error", time.Since(start))
			return fmt.Errorf("%s: decode result: %w", op, err)
		}
	}
	obs.ObserveBackendCall(op, "ok", time.Since(start))
	return nil
}

// Floors lists all floors from the floor master.
func (c *Client) Floors(ctx context.Context) ([]parking.Floor, error) {
	var floors []parking.Floor
	if err := c.do(ctx, "floors.list", http.MethodGet, "/Floor/GetAll", nil, nil, &floors); err != nil {
		return nil, err
	}
	return floors, nil
}

// Slots lists every persisted parking slot.
func (c *Client) Slots(ctx context.Context) ([]parking.Slot, error) {
	var slots []parking.Slot
	if err := c.do(ctx, "slots.list", http.MethodGet, "/ParkingSlot/GetAll", nil, nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// SlotsByFloor lists a floor's persisted slots. The backend's ordering is
// assumed stable; positional row seeding depends on it.
func (c *Client) SlotsByFloor(ctx context.Context, floorID int64) ([]parking.Slot, error) {
	var slots []parking.Slot
	path := "/ParkingSlot/GetByFloor/" + strconv.FormatInt(floorID, 10)
	if err := c.do(ctx, "slots.by_floor", http.MethodGet, path, nil, nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// InsertSlots bulk-creates new slots.
func (c *Client) InsertSlots(ctx context.Context, slots []parking.Slot) error {
	return c.do(ctx, "slots.insert_bulk", http.MethodPost, "/ParkingSlot/InsertBulk", slots, nil, nil)
}

// UpdateSlots bulk-updates persisted slots.
func (c *Client) UpdateSlots(ctx context.Context, slots []parking.Slot) error {
	return c.do(ctx, "slots.update_bulk", http.MethodPut, "/ParkingSlot/UpdateBulk", slots, nil, nil)
}

// UpdateSlot updates a single slot (inline rename).
func (c *Client) UpdateSlot(ctx context.Context, slot parking.Slot) error {
	return c.do(ctx, "slots.update", http.MethodPut, "/ParkingSlot/Update", slot, nil, nil)
}

// DeleteSlot removes a persisted slot.
func (c *Client) DeleteSlot(ctx context.Context, id int64) error {
	path := "/ParkingSlot/Delete/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "slots.delete", http.MethodDelete, path, nil, nil, nil)
}

// Assignments lists current assignments, normalized through the alias
// tables. Rows that cannot be canonicalized are dropped, not surfaced.
func (c *Client) Assignments(ctx context.Context) ([]parking.Assignment, error) {
	var rows []map[string]any
	if err := c.do(ctx, "assignments.list", http.MethodGet, "/ParkingAssignment/GetAll", nil, nil, &rows); err != nil {
		return nil, err
	}
	return parking.NormalizeAssignments(rows), nil
}

// CreateAssignment puts a resident on a slot. The body repeats both ids
// under every alias the backend has been observed to accept, the write-side
// counterpart of the read-side normalization.
func (c *Client) CreateAssignment(ctx context.Context, slotID, userID int64) error {
	body := map[string]any{
		"id":            0,
		"ownerId":       userID,
		"userId":        userID,
		"memberId":      userID,
		"parkingSlotId": slotID,
		"slotId":        slotID,
	}
	headers := map[string]string{"Idempotency-Key": ids.New()}
	return c.do(ctx, "assignments.create", http.MethodPost, "/ParkingAssignment/Assign", body, headers, nil)
}

// RemoveAssignment deletes an assignment record by its own id.
func (c *Client) RemoveAssignment(ctx context.Context, id int64) error {
	path := "/ParkingAssignment/Remove/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "assignments.remove", http.MethodDelete, path, nil, nil, nil)
}

// Residents lists approved residents, falling back to the full user list
// when the approval endpoint yields nothing. The fallback is silent: an
// incomplete list beats an empty screen.
func (c *Client) Residents(ctx context.Context) ([]parking.Resident, error) {
	var rows []map[string]any
	err := c.do(ctx, "residents.approved", http.MethodGet, "/AdminUserApprove/GetUsersByStatus?status=APPROVED", nil, nil, &rows)
	if err == nil {
		if residents := parking.NormalizeResidents(rows); len(residents) > 0 {
			return residents, nil
		}
	}

	rows = nil
	if err := c.do(ctx, "residents.all", http.MethodGet, "/UserMaster/GetAll", nil, nil, &rows); err != nil {
		return nil, err
	}
	return parking.NormalizeResidents(rows), nil
}
