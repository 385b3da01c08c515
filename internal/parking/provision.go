package parking

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildRows produces exactly floor.TotalParkingSlots editable rows for a
// floor. Persisted slots seed rows by array position, not by any slot
// attribute: slot numbers are the field being edited, so position is the
// only stable key at authoring time. Rows beyond the persisted count are
// blank and new. Persisted slots beyond the capacity (possible when the
// capacity was reduced after slots existed) are not represented.
func BuildRows(floor Floor, persisted []Slot) []SlotRow {
	n := floor.TotalParkingSlots
	if n < 0 {
		n = 0
	}
	rows := make([]SlotRow, n)
	for i := range rows {
		row := SlotRow{Index: i + 1}
		if i < len(persisted) {
			row.ExistingID = persisted[i].ID
			row.SlotNumber = persisted[i].SlotNumber
			row.IsAssigned = persisted[i].IsAssigned
		}
		rows[i] = row
	}
	return rows
}

// UpdateRow returns a copy of rows with the slot number at the 1-based
// index replaced. ExistingID is never touched by edits.
func UpdateRow(rows []SlotRow, index int, slotNumber string) []SlotRow {
	out := make([]SlotRow, len(rows))
	copy(out, rows)
	if index >= 1 && index <= len(out) {
		out[index-1].SlotNumber = slotNumber
	}
	return out
}

// AutoFill rewrites every row's slot number to "{prefix}-{index}" with the
// index zero-padded to two digits. A blank prefix is rejected and the input
// is returned unchanged.
func AutoFill(rows []SlotRow, prefix string) ([]SlotRow, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return rows, ErrBlankPrefix
	}
	out := make([]SlotRow, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].SlotNumber = fmt.Sprintf("%s-%02d", prefix, out[i].Index)
	}
	return out, nil
}

// Partition is the insert/update split of a row set. Blank rows belong to
// neither batch; their presence refuses the save.
type Partition struct {
	ToInsert []SlotRow
	ToUpdate []SlotRow
	Blanks   []int // 1-based indexes of rows with blank slot numbers
}

// PartitionRows splits rows by ExistingID: zero means insert, positive
// means update. Dirtiness is not tracked; an unedited persisted row still
// lands in ToUpdate.
func PartitionRows(rows []SlotRow) Partition {
	var p Partition
	for _, row := range rows {
		if strings.TrimSpace(row.SlotNumber) == "" {
			p.Blanks = append(p.Blanks, row.Index)
			continue
		}
		if row.New() {
			p.ToInsert = append(p.ToInsert, row)
		} else {
			p.ToUpdate = append(p.ToUpdate, row)
		}
	}
	return p
}

// Validate refuses a save while any row is blank.
func (p Partition) Validate() error {
	if len(p.Blanks) == 0 {
		return nil
	}
	return &BlankRowsError{Indexes: p.Blanks}
}

// BlankRowsError names every blank row so the operator can fill them in.
type BlankRowsError struct {
	Indexes []int
}

func (e *BlankRowsError) Error() string {
	parts := make([]string, len(e.Indexes))
	for i, idx := range e.Indexes {
		parts[i] = strconv.Itoa(idx)
	}
	return "slot number is required for row(s) " + strings.Join(parts, ", ")
}

// SaveOutcome reports the two halves of a bulk save independently. The
// halves are separate network calls with no cross-call rollback: one
// failing leaves the other's writes in place, and the outcome says so
// rather than pretending atomicity.
type SaveOutcome struct {
	Inserted  int   `json:"inserted"`
	Updated   int   `json:"updated"`
	InsertErr error `json:"-"`
	UpdateErr error `json:"-"`
}

// Succeeded reports whether every non-empty half completed.
func (o SaveOutcome) Succeeded() bool {
	return o.InsertErr == nil && o.UpdateErr == nil
}

// insertPayload converts new rows into unpersisted slots for the floor.
func insertPayload(rows []SlotRow, floorID int64) []Slot {
	slots := make([]Slot, len(rows))
	for i, row := range rows {
		slots[i] = Slot{
			ID:         0,
			SlotNumber: strings.TrimSpace(row.SlotNumber),
			FloorID:    floorID,
			IsAssigned: false,
		}
	}
	return slots
}

// updatePayload converts persisted rows into their wire shape, carrying the
// cached IsAssigned flag back as the backend expects it.
func updatePayload(rows []SlotRow, floorID int64) []Slot {
	slots := make([]Slot, len(rows))
	for i, row := range rows {
		slots[i] = Slot{
			ID:         row.ExistingID,
			SlotNumber: strings.TrimSpace(row.SlotNumber),
			FloorID:    floorID,
			IsAssigned: row.IsAssigned,
		}
	}
	return slots
}
