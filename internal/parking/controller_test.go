package parking

import (
	"context"
	"errors"
	"testing"
)

type fakeBackend struct {
	calls       []string
	slots       []Slot
	floorSlots  map[int64][]Slot
	assignments []Assignment
	residents   []Resident
	failOn      map[string]error
	inserted    []Slot
	updated     []Slot
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		floorSlots: make(map[int64][]Slot),
		failOn:     make(map[string]error),
	}
}

func (f *fakeBackend) call(name string) error {
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeBackend) Floors(context.Context) ([]Floor, error) {
	return nil, f.call("Floors")
}

func (f *fakeBackend) Slots(context.Context) ([]Slot, error) {
	return f.slots, f.call("Slots")
}

func (f *fakeBackend) SlotsByFloor(_ context.Context, floorID int64) ([]Slot, error) {
	return f.floorSlots[floorID], f.call("SlotsByFloor")
}

func (f *fakeBackend) InsertSlots(_ context.Context, slots []Slot) error {
	f.inserted = slots
	return f.call("InsertSlots")
}

func (f *fakeBackend) UpdateSlots(_ context.Context, slots []Slot) error {
	f.updated = slots
	return f.call("UpdateSlots")
}

func (f *fakeBackend) UpdateSlot(_ context.Context, _ Slot) error {
	return f.call("UpdateSlot")
}

func (f *fakeBackend) DeleteSlot(_ context.Context, _ int64) error {
	return f.call("DeleteSlot")
}

func (f *fakeBackend) Assignments(context.Context) ([]Assignment, error) {
	return f.assignments, f.call("Assignments")
}

func (f *fakeBackend) CreateAssignment(_ context.Context, _, _ int64) error {
	return f.call("CreateAssignment")
}

func (f *fakeBackend) RemoveAssignment(_ context.Context, _ int64) error {
	return f.call("RemoveAssignment")
}

func (f *fakeBackend) Residents(context.Context) ([]Resident, error) {
	return f.residents, f.call("Residents")
}

func TestAssignWithoutResident(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	_, err := c.Assign(context.Background(), 5, 0)
	if !errors.Is(err, ErrNoResident) {
		t.Fatalf("expected ErrNoResident, got %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("expected zero network calls, got %v", fb.calls)
	}
}

func TestAssignSuccessReloadsAndFlashes(t *testing.T) {
	fb := newFakeBackend()
	fb.assignments = []Assignment{{ID: 1, SlotID: 5, UserID: 9}}
	fb.slots = []Slot{{ID: 5, SlotNumber: "P-05"}}
	c := NewController(fb)

	reload, err := c.Assign(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	want := []string{"CreateAssignment", "Assignments", "Slots"}
	if len(fb.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", fb.calls, want)
	}
	for i, w := range want {
		if fb.calls[i] != w {
			t.Fatalf("calls = %v, want %v", fb.calls, want)
		}
	}
	if !reload.Index.Occupied(5) {
		t.Fatal("reload index should mark slot 5 occupied")
	}
	if !c.Flash().Active(5) {
		t.Fatal("slot 5 should be flashing after assign")
	}
}

func TestAssignBackendRejection(t *testing.T) {
	fb := newFakeBackend()
	fb.failOn["CreateAssignment"] = errors.New("slot already taken")
	c := NewController(fb)

	_, err := c.Assign(context.Background(), 5, 9)
	if err == nil || err.Error() != "slot already taken" {
		t.Fatalf("expected backend rejection surfaced verbatim, got %v", err)
	}
	if len(fb.calls) != 1 {
		t.Fatalf("no reload should follow a failed assign: %v", fb.calls)
	}
	if c.Flash().Active(5) {
		t.Fatal("failed assign must not flash")
	}
}

func TestFreeWithoutAssignmentID(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	_, err := c.Free(context.Background(), Assignment{SlotID: 5, UserID: 9})
	if !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("expected zero network calls, got %v", fb.calls)
	}
}

func TestFreeSuccess(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	_, err := c.Free(context.Background(), Assignment{ID: 3, SlotID: 5, UserID: 9})
	if err != nil {
		t.Fatalf("Free: %v", err)
	}
	if fb.calls[0] != "RemoveAssignment" {
		t.Fatalf("unexpected call order: %v", fb.calls)
	}
	if !c.Flash().Active(5) {
		t.Fatal("slot should flash after free")
	}
}

func TestReassignFreesBeforeAssigning(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	current := Assignment{ID: 3, SlotID: 5, UserID: 9}

	_, err := c.Reassign(context.Background(), current, 12)
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if fb.calls[0] != "RemoveAssignment" || fb.calls[1] != "CreateAssignment" {
		t.Fatalf("expected free-then-assign order, got %v", fb.calls)
	}
}

func TestReassignStopsAfterFailedFree(t *testing.T) {
	fb := newFakeBackend()
	fb.failOn["RemoveAssignment"] = errors.New("not found")
	c := NewController(fb)

	_, err := c.Reassign(context.Background(), Assignment{ID: 3, SlotID: 5}, 12)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, call := range fb.calls {
		if call == "CreateAssignment" {
			t.Fatalf("assign must not run after failed free: %v", fb.calls)
		}
	}
}

func TestReassignReportsPartialFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.failOn["CreateAssignment"] = errors.New("backend down")
	c := NewController(fb)

	_, err := c.Reassign(context.Background(), Assignment{ID: 3, SlotID: 5}, 12)
	if err == nil || !errors.Is(err, fb.failOn["CreateAssignment"]) {
		t.Fatalf("expected wrapped assign failure, got %v", err)
	}
}

func TestMutationsRejectedWhileBusy(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	c.busy.Store(true)

	if _, err := c.Assign(context.Background(), 5, 9); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	if _, err := c.Free(context.Background(), Assignment{ID: 3}); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	if _, _, err := c.SaveRows(context.Background(), floorWith(1), []SlotRow{{Index: 1, SlotNumber: "A"}}); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("busy controller must not reach the network: %v", fb.calls)
	}
}

func TestSaveRowsEndToEnd(t *testing.T) {
	// Floor with capacity 4, two persisted slots, rows 3-4 typed in.
	floor := floorWith(4)
	fb := newFakeBackend()
	persisted := []Slot{
		{ID: 11, SlotNumber: "A-01", FloorID: floor.ID},
		{ID: 12, SlotNumber: "A-02", FloorID: floor.ID},
	}
	fb.floorSlots[floor.ID] = []Slot{
		{ID: 11, SlotNumber: "A-01", FloorID: floor.ID},
		{ID: 12, SlotNumber: "A-02", FloorID: floor.ID},
		{ID: 13, SlotNumber: "A-03", FloorID: floor.ID},
		{ID: 14, SlotNumber: "A-04", FloorID: floor.ID},
	}
	c := NewController(fb)

	rows := BuildRows(floor, persisted)
	rows = UpdateRow(rows, 3, "A-03")
	rows = UpdateRow(rows, 4, "A-04")

	outcome, fresh, err := c.SaveRows(context.Background(), floor, rows)
	if err != nil {
		t.Fatalf("SaveRows: %v", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if len(fb.inserted) != 2 || fb.inserted[0].SlotNumber != "A-03" || fb.inserted[0].ID != 0 {
		t.Fatalf("unexpected insert batch: %+v", fb.inserted)
	}
	// Untouched persisted rows still go through the update half: the split
	// is by ExistingID, not by dirtiness.
	if len(fb.updated) != 2 || fb.updated[0].ID != 11 || fb.updated[1].ID != 12 {
		t.Fatalf("unexpected update batch: %+v", fb.updated)
	}
	if outcome.Inserted != 2 || outcome.Updated != 2 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	if len(fresh) != 4 || fresh[2].ExistingID != 13 {
		t.Fatalf("rows not rebuilt from re-fetch: %+v", fresh)
	}
}

func TestSaveRowsRefusedOnBlanks(t *testing.T) {
	floor := floorWith(2)
	fb := newFakeBackend()
	c := NewController(fb)

	rows := BuildRows(floor, nil)
	rows = UpdateRow(rows, 1, "A-01")

	_, _, err := c.SaveRows(context.Background(), floor, rows)
	var blank *BlankRowsError
	if !errors.As(err, &blank) {
		t.Fatalf("expected BlankRowsError, got %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("blank rows must fail before any network call: %v", fb.calls)
	}
}

func TestSaveRowsInsertOnly(t *testing.T) {
	floor := floorWith(2)
	fb := newFakeBackend()
	c := NewController(fb)

	rows := BuildRows(floor, nil)
	rows = UpdateRow(rows, 1, "A-01")
	rows = UpdateRow(rows, 2, "A-02")

	outcome, _, err := c.SaveRows(context.Background(), floor, rows)
	if err != nil {
		t.Fatalf("SaveRows: %v", err)
	}
	if outcome.Updated != 0 || fb.updated != nil {
		t.Fatal("update half must not run when nothing is persisted")
	}
	for _, call := range fb.calls {
		if call == "UpdateSlots" {
			t.Fatalf("unexpected UpdateSlots call: %v", fb.calls)
		}
	}
}

func TestSaveRowsPartialFailure(t *testing.T) {
	floor := floorWith(2)
	fb := newFakeBackend()
	fb.failOn["InsertSlots"] = errors.New("insert rejected")
	c := NewController(fb)

	rows := []SlotRow{
		{Index: 1, ExistingID: 11, SlotNumber: "A-01"},
		{Index: 2, SlotNumber: "A-02"},
	}
	outcome, _, err := c.SaveRows(context.Background(), floor, rows)
	if err != nil {
		t.Fatalf("SaveRows: %v", err)
	}
	if outcome.Succeeded() {
		t.Fatal("outcome should report failure")
	}
	if outcome.InsertErr == nil || outcome.UpdateErr != nil {
		t.Fatalf("only the insert half failed: %+v", outcome)
	}
	// The update half still ran: no cross-call rollback.
	if outcome.Updated != 1 {
		t.Fatalf("update half should have proceeded: %+v", outcome)
	}
}

func TestDeleteSlotRefusedWhileOccupied(t *testing.T) {
	fb := newFakeBackend()
	fb.assignments = []Assignment{{ID: 1, SlotID: 5, UserID: 9}}
	c := NewController(fb)

	_, err := c.DeleteSlot(context.Background(), 5)
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}
	for _, call := range fb.calls {
		if call == "DeleteSlot" {
			t.Fatalf("occupied slot must not be deleted: %v", fb.calls)
		}
	}
}

func TestDeleteSlotFree(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	if _, err := c.DeleteSlot(context.Background(), 5); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	found := false
	for _, call := range fb.calls {
		if call == "DeleteSlot" {
			found = true
		}
	}
	if !found {
		t.Fatalf("DeleteSlot never reached the backend: %v", fb.calls)
	}
}
