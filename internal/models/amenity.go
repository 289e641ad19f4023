package models

import "time"

type SlotDefinition struct {
	Name      string `json:"name" yaml:"name"`
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`
	MaxPerDay int    `json:"max_per_day" yaml:"max_per_day"`
}

type Amenity struct {
	AmenityID  string           `json:"amenity_id"`
	BuildingID string           `json:"building_id"`
	Name       string           `json:"name"`
	Active     bool             `json:"active"`
	Slots      []SlotDefinition `json:"slots"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Slot returns the definition named name, matching case-insensitively.
func (a Amenity) Slot(name string) (SlotDefinition, bool) {
	for _, slot := range a.Slots {
		if equalFold(slot.Name, name) {
			return slot, true
		}
	}
	return SlotDefinition{}, false
}

// SlotAvailability is one row of the availability calendar.
type SlotAvailability struct {
	Date      string `json:"date"`
	SlotName  string `json:"slot_name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Remaining int    `json:"remaining"`
}
