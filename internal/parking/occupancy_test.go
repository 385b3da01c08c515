package parking

import (
	"testing"
	"time"
)

func TestBuildIndexLastWriteWins(t *testing.T) {
	ix := BuildIndex([]Assignment{
		{ID: 1, SlotID: 1, UserID: 10},
		{ID: 2, SlotID: 1, UserID: 20},
	})
	if len(ix) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(ix))
	}
	holder, ok := ix.Holder(1)
	if !ok || holder.UserID != 20 {
		t.Fatalf("expected second entry to win, got %+v", holder)
	}
}

func TestIndexClassification(t *testing.T) {
	ix := BuildIndex([]Assignment{{ID: 1, SlotID: 5, UserID: 9}})
	if !ix.Occupied(5) {
		t.Fatal("slot 5 should be occupied")
	}
	if ix.Occupied(6) {
		t.Fatal("slot 6 should be free")
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlash()
	base := time.Now()
	f.now = func() time.Time { return base }

	f.Mark(5)
	if !f.Active(5) {
		t.Fatal("slot 5 should be flashing")
	}
	if f.Active(6) {
		t.Fatal("slot 6 was never marked")
	}

	f.now = func() time.Time { return base.Add(FlashDuration + time.Millisecond) }
	if f.Active(5) {
		t.Fatal("flash should have expired")
	}
	if ids := f.ActiveIDs(); len(ids) != 0 {
		t.Fatalf("expected no active ids, got %v", ids)
	}
}
