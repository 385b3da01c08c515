package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"awaas.org/internal/parking"
	"awaas.org/internal/parking/backend"
)

// Smoke-checks the read path of a live society backend: floor master,
// per-floor slots, occupancy classification and the resident list. Read-only
// so it is safe to point at a shared environment.
func main() {
	baseURL := os.Getenv("AWAAS_BACKEND_URL")
	if baseURL == "" {
		baseURL = "http://localhost:5000/api"
	}

	var opts []backend.Option
	if token := os.Getenv("AWAAS_BACKEND_TOKEN"); token != "" {
		opts = append(opts, backend.WithToken(token))
	}
	client := backend.New(baseURL, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	floors, err := client.Floors(ctx)
	if err != nil {
		log.Fatalf("list floors: %v", err)
	}
	var floor parking.Floor
	for _, f := range floors {
		if f.IsParkingFloor {
			floor = f
			break
		}
	}
	if floor.ID == 0 {
		log.Fatalf("no parking floor found among %d floors", len(floors))
	}

	slots, err := client.SlotsByFloor(ctx, floor.ID)
	if err != nil {
		log.Fatalf("slots for floor %d: %v", floor.ID, err)
	}
	rows := parking.BuildRows(floor, slots)
	if len(rows) != floor.TotalParkingSlots {
		log.Fatalf("row count mismatch: capacity=%d rows=%d", floor.TotalParkingSlots, len(rows))
	}

	assignments, err := client.Assignments(ctx)
	if err != nil {
		log.Fatalf("list assignments: %v", err)
	}
	ix := parking.BuildIndex(assignments)
	occupied := 0
	for _, slot := range slots {
		if ix.Occupied(slot.ID) {
			occupied++
		}
	}

	residents, err := client.Residents(ctx)
	if err != nil {
		log.Fatalf("list residents: %v", err)
	}

	fmt.Printf("✅ backend smoke test passed: floor=%q slots=%d occupied=%d residents=%d\n",
		floor.FloorName, len(slots), occupied, len(residents))
}
