package parking

import (
	"sync"
	"time"
)

// FlashDuration is how long a slot stays highlighted after a successful
// mutation. Purely cosmetic; independent of any network round trip.
const FlashDuration = 600 * time.Millisecond

// Flash tracks time-boxed post-mutation highlights keyed by slot id.
type Flash struct {
	mu    sync.Mutex
	until map[int64]time.Time
	now   func() time.Time
}

// NewFlash creates an empty tracker.
func NewFlash() *Flash {
	return &Flash{
		until: make(map[int64]time.Time),
		now:   time.Now,
	}
}

// Mark highlights a slot for FlashDuration from now.
func (f *Flash) Mark(slotID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.until[slotID] = f.now().Add(FlashDuration)
}

// Active reports whether the slot's highlight is still live, pruning it
// once expired.
func (f *Flash) Active(slotID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, ok := f.until[slotID]
	if !ok {
		return false
	}
	if f.now().After(deadline) {
		delete(f.until, slotID)
		return false
	}
	return true
}

// ActiveIDs returns all currently highlighted slots.
func (f *Flash) ActiveIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	var ids []int64
	for id, deadline := range f.until {
		if now.After(deadline) {
			delete(f.until, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
