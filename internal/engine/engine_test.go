package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"estate/amenity-service/internal/clock"
	"estate/amenity-service/internal/models"
)

const (
	buildingA = "6f1d5a7e-3c1b-4a51-9a55-5f1c0b0a1a01"
	buildingB = "6f1d5a7e-3c1b-4a51-9a55-5f1c0b0a1a02"
)

var (
	residentX = models.Caller{UserID: "resident-x", Role: models.RoleResident, BuildingID: buildingA, ApartmentID: "A-101"}
	residentY = models.Caller{UserID: "resident-y", Role: models.RoleResident, BuildingID: buildingA, ApartmentID: "A-102"}
	adminA    = models.Caller{UserID: "admin-a", Role: models.RoleBuildingAdmin, BuildingID: buildingA}
	adminB    = models.Caller{UserID: "admin-b", Role: models.RoleBuildingAdmin, BuildingID: buildingB}
	superUser = models.Caller{UserID: "root", Role: models.RoleSuperAdmin}
	watchmanA = models.Caller{UserID: "watchman-a", Role: models.RoleWatchman, BuildingID: buildingA}
	watchmanB = models.Caller{UserID: "watchman-b", Role: models.RoleWatchman, BuildingID: buildingB}
)

type testEnv struct {
	engine *Engine
	store  *memStore
	clock  *clock.Fake
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	st := newMemStore()
	fake := clock.NewFake(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC))
	e := New(st, Options{
		Clock:  fake,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return testEnv{engine: e, store: st, clock: fake}
}

func (env testEnv) amenity(t *testing.T, maxPerDay int) models.Amenity {
	t.Helper()
	amenity, err := env.engine.CreateAmenity(context.Background(), adminA, CreateAmenityInput{
		Name: "Pool",
		Slots: []models.SlotDefinition{
			{Name: "Morning", StartTime: "06:00", EndTime: "10:00", MaxPerDay: maxPerDay},
			{Name: "Evening", StartTime: "17:00", EndTime: "21:00", MaxPerDay: maxPerDay},
		},
	})
	if err != nil {
		t.Fatalf("create amenity: %v", err)
	}
	return amenity
}
