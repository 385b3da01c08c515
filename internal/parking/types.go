package parking

import "errors"

// Floor is reference data maintained in the society's floor master.
// TotalParkingSlots is the authoritative capacity for provisioning: the
// console always offers exactly that many editable rows, regardless of how
// many slots are actually persisted.
type Floor struct {
	ID                int64  `json:"id"`
	FloorName         string `json:"floorName"`
	TotalFlats        int    `json:"totalFlats"`
	TotalParkingSlots int    `json:"totalParkingSlot"`
	IsParkingFloor    bool   `json:"isParkingFloor"`
}

// Slot is a persisted parking slot. ID zero denotes an unpersisted slot.
// IsAssigned is a cached backend flag carried on the wire; occupancy
// classification never consults it, the assignment index is authoritative.
type Slot struct {
	ID         int64  `json:"id"`
	SlotNumber string `json:"slotNumber"`
	FloorID    int64  `json:"floorId"`
	IsAssigned bool   `json:"isAssigned"`
}

// Assignment records a resident currently holding a slot. Its own ID is
// distinct from the slot id: freeing a slot deletes the assignment record,
// so the assignment's id is the one required there.
type Assignment struct {
	ID        int64  `json:"id"`
	SlotID    int64  `json:"slotId"`
	UserID    int64  `json:"userId"`
	OwnerName string `json:"ownerName,omitempty"`
	FlatName  string `json:"flatName,omitempty"`
}

// Resident is read-only reference data from the approval list.
type Resident struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Floor    string `json:"floor,omitempty"`
	FlatName string `json:"flatName,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
}

// SlotRow is one position of a floor's fixed capacity, seeded from a
// persisted slot when one exists at that position. Rows are ephemeral:
// rebuilt on every floor selection and after every save.
type SlotRow struct {
	Index      int    `json:"index"` // 1-based position within the floor capacity
	SlotNumber string `json:"slotNumber"`
	ExistingID int64  `json:"existingId"`
	IsAssigned bool   `json:"isAssigned"`
}

// New reports whether the row has no persisted slot behind it yet.
func (r SlotRow) New() bool { return r.ExistingID == 0 }

var (
	ErrNoResident         = errors.New("please select a user")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSlotNotFound       = errors.New("slot not found")
	ErrSlotOccupied       = errors.New("slot is assigned; free it first")
	ErrSaveInProgress     = errors.New("another save is in progress")
	ErrBlankPrefix        = errors.New("prefix is required")
)
