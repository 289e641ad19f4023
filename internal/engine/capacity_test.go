package engine

import (
	"testing"
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"
)

func TestRemainingCapacity(t *testing.T) {
	amenity := models.Amenity{Slots: []models.SlotDefinition{{Name: "Morning", MaxPerDay: 2}}}

	if got := RemainingCapacity(amenity, "Morning", 1); got != 1 {
		t.Fatalf("expected 1 remaining, got %d", got)
	}
	if got := RemainingCapacity(amenity, "MORNING", 0); got != 2 {
		t.Fatalf("expected case-insensitive match, got %d", got)
	}
	if got := RemainingCapacity(amenity, "Morning", 3); got != 0 {
		t.Fatalf("expected overbooked slot to report 0, got %d", got)
	}
	if got := RemainingCapacity(amenity, "Night", 0); got != 0 {
		t.Fatalf("expected undefined slot to report 0, got %d", got)
	}
}

func TestBuildAvailability(t *testing.T) {
	amenity := models.Amenity{Slots: []models.SlotDefinition{
		{Name: "Morning", StartTime: "06:00", EndTime: "10:00", MaxPerDay: 2},
		{Name: "Evening", StartTime: "17:00", EndTime: "21:00", MaxPerDay: 1},
	}}
	counts := []store.SlotCount{
		{Date: "2023-04-01", SlotName: "Morning", Count: 2},
		{Date: "2023-04-30", SlotName: "Evening", Count: 1},
		{Date: "2023-04-15", SlotName: "Retired", Count: 4},
	}

	rows := BuildAvailability(amenity, 2023, time.April, counts)
	if len(rows) != 60 {
		t.Fatalf("expected 60 rows, got %d", len(rows))
	}
	if rows[0].Date != "2023-04-01" || rows[0].Booked != 2 || rows[0].Remaining != 0 {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	last := rows[len(rows)-1]
	if last.Date != "2023-04-30" || last.SlotName != "Evening" || last.Remaining != 0 || last.Capacity != 1 {
		t.Fatalf("unexpected last row %+v", last)
	}
	for _, row := range rows {
		if row.SlotName == "Retired" {
			t.Fatalf("undefined slots must not be listed")
		}
	}
}
