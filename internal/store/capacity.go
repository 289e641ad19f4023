package store

// RemainingCapacity is how many more non-terminal bookings a slot with
// maxPerDay can take when booked already hold it. It never goes below zero.
func RemainingCapacity(maxPerDay, booked int) int {
	if remaining := maxPerDay - booked; remaining > 0 {
		return remaining
	}
	return 0
}
