package parking

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Backend is the society backend as consumed by this console. Implemented
// by backend.Client; tests substitute fakes.
type Backend interface {
	Floors(ctx context.Context) ([]Floor, error)
	Slots(ctx context.Context) ([]Slot, error)
	SlotsByFloor(ctx context.Context, floorID int64) ([]Slot, error)
	InsertSlots(ctx context.Context, slots []Slot) error
	UpdateSlots(ctx context.Context, slots []Slot) error
	UpdateSlot(ctx context.Context, slot Slot) error
	DeleteSlot(ctx context.Context, id int64) error
	Assignments(ctx context.Context) ([]Assignment, error)
	CreateAssignment(ctx context.Context, slotID, userID int64) error
	RemoveAssignment(ctx context.Context, id int64) error
	Residents(ctx context.Context) ([]Resident, error)
}

// Reload is the wholesale re-fetched ground truth returned after every
// successful mutation. The console never mutates slot or assignment state
// optimistically; it reloads and lets the fresh data win.
type Reload struct {
	Slots       []Slot
	Assignments []Assignment
	Index       Index
}

// Controller orchestrates the state transitions a slot can undergo and the
// bulk provisioning save. Validation failures are detected before any
// network call; backend rejections and transport failures leave prior
// state untouched.
type Controller struct {
	backend Backend
	flash   *Flash
	busy    atomic.Bool
}

// NewController wires a controller over the given backend.
func NewController(backend Backend) *Controller {
	return &Controller{
		backend: backend,
		flash:   NewFlash(),
	}
}

// Flash exposes the highlight tracker for rendering.
func (c *Controller) Flash() *Flash { return c.flash }

// begin takes the in-flight guard; overlapping mutations are rejected
// instead of queued, matching the disabled-buttons behavior of the screens.
func (c *Controller) begin() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}
	return nil
}

func (c *Controller) end() { c.busy.Store(false) }

func (c *Controller) reload(ctx context.Context) (Reload, error) {
	assignments, err := c.backend.Assignments(ctx)
	if err != nil {
		return Reload{}, fmt.Errorf("reload assignments: %w", err)
	}
	slots, err := c.backend.Slots(ctx)
	if err != nil {
		return Reload{}, fmt.Errorf("reload slots: %w", err)
	}
	return Reload{
		Slots:       slots,
		Assignments: assignments,
		Index:       BuildIndex(assignments),
	}, nil
}

// Assign puts a resident on a free slot and re-fetches ground truth.
func (c *Controller) Assign(ctx context.Context, slotID, userID int64) (Reload, error) {
	if userID == 0 {
		return Reload{}, ErrNoResident
	}
	if slotID == 0 {
		return Reload{}, ErrSlotNotFound
	}
	if err := c.begin(); err != nil {
		return Reload{}, err
	}
	defer c.end()
	return c.assignLocked(ctx, slotID, userID)
}

func (c *Controller) assignLocked(ctx context.Context, slotID, userID int64) (Reload, error) {
	if err := c.backend.CreateAssignment(ctx, slotID, userID); err != nil {
		return Reload{}, err
	}
	reload, err := c.reload(ctx)
	if err != nil {
		return Reload{}, err
	}
	c.flash.Mark(slotID)
	return reload, nil
}

// Free removes an assignment. The assignment's own id identifies the
// record at the backend; a missing id aborts before any network call
// rather than guessing with the slot id.
func (c *Controller) Free(ctx context.Context, assignment Assignment) (Reload, error) {
	if assignment.ID == 0 {
		return Reload{}, ErrAssignmentNotFound
	}
	if err := c.begin(); err != nil {
		return Reload{}, err
	}
	defer c.end()
	return c.freeLocked(ctx, assignment)
}

func (c *Controller) freeLocked(ctx context.Context, assignment Assignment) (Reload, error) {
	if err := c.backend.RemoveAssignment(ctx, assignment.ID); err != nil {
		return Reload{}, err
	}
	reload, err := c.reload(ctx)
	if err != nil {
		return Reload{}, err
	}
	c.flash.Mark(assignment.SlotID)
	return reload, nil
}

// Reassign moves an occupied slot to another resident as an explicit
// free-then-assign pair. Whether a bare second assign upserts or appends is
// backend-defined, so the console does not issue one. A failed assign after
// a successful free leaves the slot free; the error says which half failed.
func (c *Controller) Reassign(ctx context.Context, current Assignment, userID int64) (Reload, error) {
	if userID == 0 {
		return Reload{}, ErrNoResident
	}
	if current.ID == 0 {
		return Reload{}, ErrAssignmentNotFound
	}
	if err := c.begin(); err != nil {
		return Reload{}, err
	}
	defer c.end()

	if err := c.backend.RemoveAssignment(ctx, current.ID); err != nil {
		return Reload{}, fmt.Errorf("free current assignment: %w", err)
	}
	reload, err := c.assignLocked(ctx, current.SlotID, userID)
	if err != nil {
		return Reload{}, fmt.Errorf("slot freed but assign failed: %w", err)
	}
	return reload, nil
}

// SaveRows validates and persists a floor's row set. Insert and update are
// independent calls; either half failing does not roll the other back, and
// the outcome reports each half on its own. Rows are rebuilt from a fresh
// fetch afterwards, never merged with client state.
func (c *Controller) SaveRows(ctx context.Context, floor Floor, rows []SlotRow) (SaveOutcome, []SlotRow, error) {
	p := PartitionRows(rows)
	if err := p.Validate(); err != nil {
		return SaveOutcome{}, nil, err
	}
	if err := c.begin(); err != nil {
		return SaveOutcome{}, nil, err
	}
	defer c.end()

	var outcome SaveOutcome
	if len(p.ToInsert) > 0 {
		if err := c.backend.InsertSlots(ctx, insertPayload(p.ToInsert, floor.ID)); err != nil {
			outcome.InsertErr = err
		} else {
			outcome.Inserted = len(p.ToInsert)
		}
	}
	if len(p.ToUpdate) > 0 {
		if err := c.backend.UpdateSlots(ctx, updatePayload(p.ToUpdate, floor.ID)); err != nil {
			outcome.UpdateErr = err
		} else {
			outcome.Updated = len(p.ToUpdate)
		}
	}

	fresh, err := c.backend.SlotsByFloor(ctx, floor.ID)
	if err != nil {
		return outcome, nil, fmt.Errorf("reload floor slots: %w", err)
	}
	return outcome, BuildRows(floor, fresh), nil
}

// RenameSlot updates a single persisted slot's number inline.
func (c *Controller) RenameSlot(ctx context.Context, slot Slot) error {
	if slot.ID == 0 {
		return ErrSlotNotFound
	}
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.backend.UpdateSlot(ctx, slot); err != nil {
		return err
	}
	c.flash.Mark(slot.ID)
	return nil
}

// DeleteSlot removes a persisted slot, refusing while the occupancy index
// holds it.
func (c *Controller) DeleteSlot(ctx context.Context, slotID int64) (Reload, error) {
	if slotID == 0 {
		return Reload{}, ErrSlotNotFound
	}
	if err := c.begin(); err != nil {
		return Reload{}, err
	}
	defer c.end()

	assignments, err := c.backend.Assignments(ctx)
	if err != nil {
		return Reload{}, fmt.Errorf("check occupancy: %w", err)
	}
	if BuildIndex(assignments).Occupied(slotID) {
		return Reload{}, ErrSlotOccupied
	}
	if err := c.backend.DeleteSlot(ctx, slotID); err != nil {
		return Reload{}, err
	}
	return c.reload(ctx)
}
