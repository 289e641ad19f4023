package models

import "testing"

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"resident", "building_admin", "super_admin", " watchman "} {
		if _, ok := ParseRole(raw); !ok {
			t.Fatalf("expected %q to parse", raw)
		}
	}
	for _, raw := range []string{"admin", "", "Resident", "root"} {
		if _, ok := ParseRole(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestAmenitySlotMatchesIgnoringCase(t *testing.T) {
	amenity := Amenity{Slots: []SlotDefinition{{Name: "Morning"}}}
	slot, ok := amenity.Slot(" morning")
	if !ok || slot.Name != "Morning" {
		t.Fatalf("expected canonical slot, got %+v %v", slot, ok)
	}
	if _, ok := amenity.Slot("Evening"); ok {
		t.Fatalf("expected undefined slot to be missing")
	}
}
