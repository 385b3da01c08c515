package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"awaas.org/internal/auth"
	"awaas.org/internal/parking"
	"awaas.org/internal/parking/backend"
	"awaas.org/internal/stream"
)

// slotRowView is one editable row of the provisioning screen, classified
// against the occupancy index. The slot's cached IsAssigned flag plays no
// part in Status.
type slotRowView struct {
	parking.SlotRow
	Status string              `json:"status"`
	Holder *parking.Assignment `json:"holder,omitempty"`
	Flash  bool                `json:"flash"`
}

// slotView is one persisted slot of the assignment screen.
type slotView struct {
	parking.Slot
	Status string              `json:"status"`
	Holder *parking.Assignment `json:"holder,omitempty"`
	Flash  bool                `json:"flash"`
}

type floorRowsResponse struct {
	Floor     parking.Floor      `json:"floor"`
	Rows      []slotRowView      `json:"rows"`
	Residents []parking.Resident `json:"residents"`
	AsOf      time.Time          `json:"as_of"`
}

type saveRowsRequest struct {
	Rows []parking.SlotRow `json:"rows"`
}

type saveRowsResponse struct {
	Inserted    int           `json:"inserted"`
	Updated     int           `json:"updated"`
	InsertError string        `json:"insert_error,omitempty"`
	UpdateError string        `json:"update_error,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Rows        []slotRowView `json:"rows"`
}

type autofillRequest struct {
	Prefix string            `json:"prefix"`
	Rows   []parking.SlotRow `json:"rows"`
}

type assignRequest struct {
	SlotID  int64 `json:"slotId"`
	UserID  int64 `json:"userId"`
	FloorID int64 `json:"floorId,omitempty"`
}

type reassignRequest struct {
	UserID int64 `json:"userId"`
}

type renameRequest struct {
	SlotNumber string `json:"slotNumber"`
	FloorID    int64  `json:"floorId"`
	IsAssigned bool   `json:"isAssigned"`
}

type overviewResponse struct {
	Slots       []slotView           `json:"slots"`
	Assignments []parking.Assignment `json:"assignments"`
	AsOf        time.Time            `json:"as_of"`
}

func (a *API) handleFloors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermParkingView); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	floors, err := a.backend.Floors(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	parkingFloors := make([]parking.Floor, 0, len(floors))
	for _, f := range floors {
		if f.IsParkingFloor {
			parkingFloors = append(parkingFloors, f)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": parkingFloors})
}

func (a *API) handleFloorResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/parking/floors/")
	parts := strings.Split(rest, "/")
	floorID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || floorID <= 0 {
		writeError(w, r, http.StatusNotFound, "floor not found")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "rows":
		switch r.Method {
		case http.MethodGet:
			a.getFloorRows(w, r, floorID)
		case http.MethodPut:
			a.saveFloorRows(w, r, floorID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case len(parts) == 3 && parts[1] == "rows" && parts[2] == "autofill":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.autofillRows(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// getFloorRows builds the provisioning view-model from scratch: floor
// capacity, positional row seeding, occupancy classification and the
// resident picker list. Nothing is cached between selections.
func (a *API) getFloorRows(w http.ResponseWriter, r *http.Request, floorID int64) {
	if err := a.requirePermission(r.Context(), auth.PermParkingView); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	floor, err := a.lookupFloor(r, floorID)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	slots, err := a.backend.SlotsByFloor(r.Context(), floorID)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	assignments, err := a.backend.Assignments(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	residents, err := a.backend.Residents(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}

	rows := parking.BuildRows(floor, slots)
	ix := parking.BuildIndex(assignments)
	writeJSON(w, http.StatusOK, floorRowsResponse{
		Floor:     floor,
		Rows:      a.rowViews(rows, ix),
		Residents: residents,
		AsOf:      time.Now().UTC(),
	})
}

func (a *API) saveFloorRows(w http.ResponseWriter, r *http.Request, floorID int64) {
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req saveRowsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	floor, err := a.lookupFloor(r, floorID)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}

	outcome, fresh, err := a.controller.SaveRows(r.Context(), floor, req.Rows)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}

	resp := saveRowsResponse{
		Inserted:  outcome.Inserted,
		Updated:   outcome.Updated,
		Succeeded: outcome.Succeeded(),
	}
	if outcome.InsertErr != nil {
		resp.InsertError = outcome.InsertErr.Error()
	}
	if outcome.UpdateErr != nil {
		resp.UpdateError = outcome.UpdateErr.Error()
	}
	assignments, err := a.backend.Assignments(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	resp.Rows = a.rowViews(fresh, parking.BuildIndex(assignments))

	if outcome.Succeeded() {
		a.stream.Publish(stream.SlotEvent{Action: stream.ActionProvisioned, FloorID: floorID})
	}
	a.audit(r.Context(), "parking.slots.save", map[string]any{
		"floor_id":  floorID,
		"inserted":  outcome.Inserted,
		"updated":   outcome.Updated,
		"succeeded": outcome.Succeeded(),
	})
	writeJSON(w, http.StatusOK, resp)
}

// autofillRows is a pure helper: it never touches the backend.
func (a *API) autofillRows(w http.ResponseWriter, r *http.Request) {
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req autofillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := parking.AutoFill(req.Rows, req.Prefix)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleSlotResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/parking/slots/")
	parts := strings.Split(rest, "/")
	slotID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || slotID <= 0 {
		writeError(w, r, http.StatusNotFound, "slot not found")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodPut:
			a.renameSlot(w, r, slotID)
		case http.MethodDelete:
			a.deleteSlot(w, r, slotID)
		default:
			methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "reassign":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.reassignSlot(w, r, slotID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) renameSlot(w http.ResponseWriter, r *http.Request, slotID int64) {
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SlotNumber) == "" {
		writeError(w, r, http.StatusBadRequest, "slotNumber is required")
		return
	}
	slot := parking.Slot{
		ID:         slotID,
		SlotNumber: strings.TrimSpace(req.SlotNumber),
		FloorID:    req.FloorID,
		IsAssigned: req.IsAssigned,
	}
	if err := a.controller.RenameSlot(r.Context(), slot); err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	a.audit(r.Context(), "parking.slot.rename", map[string]any{
		"slot_id":     slotID,
		"slot_number": slot.SlotNumber,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) deleteSlot(w http.ResponseWriter, r *http.Request, slotID int64) {
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	reload, err := a.controller.DeleteSlot(r.Context(), slotID)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	a.audit(r.Context(), "parking.slot.delete", map[string]any{"slot_id": slotID})
	writeJSON(w, http.StatusOK, a.overview(reload))
}

func (a *API) handleAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.getOverview(w, r)
	case http.MethodPost:
		a.assignSlot(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// getOverview serves the assignment screen: every slot classified against
// a freshly built occupancy index.
func (a *API) getOverview(w http.ResponseWriter, r *http.Request) {
	if err := a.requirePermission(r.Context(), auth.PermParkingView); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	assignments, err := a.backend.Assignments(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	slots, err := a.backend.Slots(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	reload := parking.Reload{
		Slots:       slots,
		Assignments: assignments,
		Index:       parking.BuildIndex(assignments),
	}
	writeJSON(w, http.StatusOK, a.overview(reload))
}

func (a *API) assignSlot(w http.ResponseWriter, r *http.Request) {
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	reload, err := a.controller.Assign(r.Context(), req.SlotID, req.UserID)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}

	a.stream.Publish(stream.SlotEvent{
		Action:  stream.ActionAssigned,
		FloorID: req.FloorID,
		SlotID:  req.SlotID,
		UserID:  req.UserID,
	})
	a.audit(r.Context(), "parking.assignment.create", map[string]any{
		"slot_id": req.SlotID,
		"user_id": req.UserID,
	})
	writeJSON(w, http.StatusCreated, a.overview(reload))
}

func (a *API) handleAssignmentResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/v1/parking/assignments/")
	assignmentID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || assignmentID <= 0 {
		writeError(w, r, http.StatusNotFound, "assignment not found")
		return
	}

	// The delete endpoint is keyed by the assignment's own id; resolve the
	// record first so the freed slot is known for the event and the flash.
	assignments, err := a.backend.Assignments(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	var current parking.Assignment
	for _, asg := range assignments {
		if asg.ID == assignmentID {
			current = asg
			break
		}
	}
	if current.ID == 0 {
		writeError(w, r, http.StatusNotFound, parking.ErrAssignmentNotFound.Error())
		return
	}

	reload, err := a.controller.Free(r.Context(), current)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}

	a.stream.Publish(stream.SlotEvent{
		Action: stream.ActionFreed,
		SlotID: current.SlotID,
		UserID: current.UserID,
	})
	a.audit(r.Context(), "parking.assignment.remove", map[string]any{
		"assignment_id": assignmentID,
		"slot_id":       current.SlotID,
	})
	writeJSON(w, http.StatusOK, a.overview(reload))
}

func (a *API) reassignSlot(w http.ResponseWriter, r *http.Request, slotID int64) {
	if err := a.requirePermission(r.Context(), auth.PermParkingManage); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req reassignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	assignments, err := a.backend.Assignments(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	current, ok := parking.BuildIndex(assignments).Holder(slotID)
	if !ok {
		writeError(w, r, http.StatusConflict, "slot is not assigned; use assign instead")
		return
	}

	reload, err := a.controller.Reassign(r.Context(), current, req.UserID)
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}

	a.stream.Publish(stream.SlotEvent{
		Action: stream.ActionAssigned,
		SlotID: slotID,
		UserID: req.UserID,
	})
	a.audit(r.Context(), "parking.assignment.reassign", map[string]any{
		"slot_id":      slotID,
		"from_user_id": current.UserID,
		"to_user_id":   req.UserID,
	})
	writeJSON(w, http.StatusOK, a.overview(reload))
}

func (a *API) handleResidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermParkingView); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	residents, err := a.backend.Residents(r.Context())
	if err != nil {
		a.handleParkingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": residents})
}

// lookupFloor resolves one floor from the floor master.
func (a *API) lookupFloor(r *http.Request, floorID int64) (parking.Floor, error) {
	floors, err := a.backend.Floors(r.Context())
	if err != nil {
		return parking.Floor{}, err
	}
	for _, f := range floors {
		if f.ID == floorID {
			return f, nil
		}
	}
	return parking.Floor{}, errFloorNotFound
}

var errFloorNotFound = errors.New("floor not found")

func (a *API) rowViews(rows []parking.SlotRow, ix parking.Index) []slotRowView {
	flash := a.controller.Flash()
	views := make([]slotRowView, len(rows))
	for i, row := range rows {
		view := slotRowView{SlotRow: row, Status: "free"}
		if holder, ok := ix.Holder(row.ExistingID); ok && row.ExistingID != 0 {
			view.Status = "assigned"
			view.Holder = &holder
		}
		view.Flash = row.ExistingID != 0 && flash.Active(row.ExistingID)
		views[i] = view
	}
	return views
}

func (a *API) overview(reload parking.Reload) overviewResponse {
	flash := a.controller.Flash()
	slots := make([]slotView, len(reload.Slots))
	for i, slot := range reload.Slots {
		view := slotView{Slot: slot, Status: "free"}
		if holder, ok := reload.Index.Holder(slot.ID); ok {
			view.Status = "assigned"
			view.Holder = &holder
		}
		view.Flash = flash.Active(slot.ID)
		slots[i] = view
	}
	return overviewResponse{
		Slots:       slots,
		Assignments: reload.Assignments,
		AsOf:        time.Now().UTC(),
	}
}

func (a *API) handleParkingError(w http.ResponseWriter, r *http.Request, err error) {
	var blankErr *parking.BlankRowsError
	var backendErr *backend.Error
	switch {
	case errors.Is(err, parking.ErrNoResident),
		errors.Is(err, parking.ErrBlankPrefix),
		errors.As(err, &blankErr):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, parking.ErrAssignmentNotFound),
		errors.Is(err, parking.ErrSlotNotFound),
		errors.Is(err, errFloorNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, parking.ErrSlotOccupied),
		errors.Is(err, parking.ErrSaveInProgress):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &backendErr):
		// Backend rejection: resMsg passes through verbatim.
		writeError(w, r, http.StatusConflict, backendErr.Message)
	default:
		writeError(w, r, http.StatusBadGateway, "society backend request failed")
	}
}
