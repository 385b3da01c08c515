package parking

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The backend returns conceptually identical records under different field
// names per endpoint. Each canonical field probes an ordered alias table;
// the first key holding a usable value wins. Adding a newly observed alias
// is a one-line table edit.
var (
	assignmentIDAliases   = []string{"id", "assignmentId", "parkingAssignmentId"}
	assignmentSlotAliases = []string{"slotId", "parkingSlotId", "slotMasterId"}
	assignmentUserAliases = []string{"ownerId", "userId", "memberId", "residentId"}
	ownerNameAliases      = []string{"ownerName", "userName", "name", "fullName"}

	residentIDAliases   = []string{"id", "userId", "memberId", "residentId", "ownerId"}
	residentNameAliases = []string{"name", "fullName", "userName", "ownerName"}
	flatAliases         = []string{"flatName", "flatNo", "flat"}
	floorAliases        = []string{"floor", "floorName"}
	mobileAliases       = []string{"mobile", "mobileNo", "phone"}
)

// NormalizeAssignment converts an arbitrary backend row into an Assignment.
// A row that does not identify both a slot and a resident carries no usable
// meaning and yields nil; callers drop it.
func NormalizeAssignment(raw map[string]any) *Assignment {
	slotID := probeInt(raw, assignmentSlotAliases)
	userID := probeInt(raw, assignmentUserAliases)
	if slotID == 0 || userID == 0 {
		return nil
	}
	return &Assignment{
		ID:        probeInt(raw, assignmentIDAliases),
		SlotID:    slotID,
		UserID:    userID,
		OwnerName: probeString(raw, ownerNameAliases),
		FlatName:  probeString(raw, flatAliases),
	}
}

// NormalizeResident converts an arbitrary backend row into a Resident,
// or nil when id or name cannot be resolved.
func NormalizeResident(raw map[string]any) *Resident {
	id := probeInt(raw, residentIDAliases)
	name := probeString(raw, residentNameAliases)
	if id == 0 || name == "" {
		return nil
	}
	return &Resident{
		ID:       id,
		Name:     name,
		Floor:    probeString(raw, floorAliases),
		FlatName: probeString(raw, flatAliases),
		Mobile:   probeString(raw, mobileAliases),
	}
}

// NormalizeAssignments maps and filters a raw backend list.
func NormalizeAssignments(rows []map[string]any) []Assignment {
	out := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		if a := NormalizeAssignment(row); a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// NormalizeResidents maps and filters a raw backend list.
func NormalizeResidents(rows []map[string]any) []Resident {
	out := make([]Resident, 0, len(rows))
	for _, row := range rows {
		if r := NormalizeResident(row); r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// probeInt returns the first alias resolving to a non-zero integer.
// JSON numbers arrive as float64; numeric strings are accepted too.
func probeInt(raw map[string]any, aliases []string) int64 {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if n := asInt(v); n != 0 {
			return n
		}
	}
	return 0
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// probeString returns the first alias holding a non-blank string.
func probeString(raw map[string]any, aliases []string) string {
	for _, key := range aliases {
		if s, ok := raw[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
