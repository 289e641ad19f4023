package engine

import (
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"
)

// RemainingCapacity reports how many more bookings slotName of amenity can
// take on a day that already holds booked non-terminal bookings. A slot that
// is not defined (renamed or removed after bookings were made) has none.
func RemainingCapacity(amenity models.Amenity, slotName string, booked int) int {
	slot, ok := amenity.Slot(slotName)
	if !ok {
		return 0
	}
	return store.RemainingCapacity(slot.MaxPerDay, booked)
}

// monthRange returns the first and last calendar day of month in year.
func monthRange(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

// BuildAvailability lays out every slot of amenity for every day of the month,
// charging each against counts.
func BuildAvailability(amenity models.Amenity, year int, month time.Month, counts []store.SlotCount) []models.SlotAvailability {
	booked := make(map[string]int, len(counts))
	for _, count := range counts {
		slot, ok := amenity.Slot(count.SlotName)
		if !ok {
			continue
		}
		booked[count.Date+"|"+slot.Name] += count.Count
	}

	first, last := monthRange(year, month)
	days := last.Day()
	availability := make([]models.SlotAvailability, 0, days*len(amenity.Slots))
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		date := day.Format(models.DateLayout)
		for _, slot := range amenity.Slots {
			n := booked[date+"|"+slot.Name]
			availability = append(availability, models.SlotAvailability{
				Date:      date,
				SlotName:  slot.Name,
				StartTime: slot.StartTime,
				EndTime:   slot.EndTime,
				Capacity:  slot.MaxPerDay,
				Booked:    n,
				Remaining: RemainingCapacity(amenity, slot.Name, n),
			})
		}
	}
	return availability
}
