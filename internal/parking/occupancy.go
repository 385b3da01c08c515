package parking

// Index answers "is slot X occupied, and by whom" in O(1). It is the only
// authority for occupancy in the console; Slot.IsAssigned is never
// consulted, so a backend whose cached flag drifts from its assignment
// table still renders consistently here.
type Index map[int64]Assignment

// BuildIndex keys assignments by slot id. The assignment list is assumed
// unique per slot; when it is not, the last record wins and no error is
// raised here.
func BuildIndex(assignments []Assignment) Index {
	ix := make(Index, len(assignments))
	for _, a := range assignments {
		ix[a.SlotID] = a
	}
	return ix
}

// Occupied reports whether the slot currently has an assignment.
func (ix Index) Occupied(slotID int64) bool {
	_, ok := ix[slotID]
	return ok
}

// Holder returns the assignment occupying the slot, if any.
func (ix Index) Holder(slotID int64) (Assignment, bool) {
	a, ok := ix[slotID]
	return a, ok
}
