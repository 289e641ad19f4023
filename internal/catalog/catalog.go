// Package catalog loads building and amenity definitions from YAML and seeds
// them into the store at startup.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"estate/amenity-service/internal/engine"
	"estate/amenity-service/internal/models"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	Buildings []Building `yaml:"buildings"`
}

type Building struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Amenities []Amenity `yaml:"amenities"`
}

type Amenity struct {
	Name   string                  `yaml:"name"`
	Active *bool                   `yaml:"active"`
	Slots  []models.SlotDefinition `yaml:"slots"`
}

// Seeder is the subset of the postgres store used for seeding.
type Seeder interface {
	UpsertBuilding(ctx context.Context, buildingID, name string) error
	UpsertAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error)
}

func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes and validates a catalog. Unknown keys are rejected.
func Parse(data []byte) (Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("parse: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (c *Catalog) validate() error {
	seenBuildings := make(map[string]bool, len(c.Buildings))
	for i := range c.Buildings {
		building := &c.Buildings[i]
		building.ID = strings.TrimSpace(building.ID)
		building.Name = strings.TrimSpace(building.Name)
		if _, err := uuid.Parse(building.ID); err != nil {
			return fmt.Errorf("building %d: id %q is not a uuid", i, building.ID)
		}
		if seenBuildings[building.ID] {
			return fmt.Errorf("building %s listed twice", building.ID)
		}
		seenBuildings[building.ID] = true
		if building.Name == "" {
			return fmt.Errorf("building %s: name is required", building.ID)
		}

		seenAmenities := make(map[string]bool, len(building.Amenities))
		for j := range building.Amenities {
			amenity := &building.Amenities[j]
			amenity.Name = strings.TrimSpace(amenity.Name)
			if amenity.Name == "" {
				return fmt.Errorf("building %s: amenity %d has no name", building.ID, j)
			}
			if seenAmenities[amenity.Name] {
				return fmt.Errorf("building %s: amenity %q listed twice", building.ID, amenity.Name)
			}
			seenAmenities[amenity.Name] = true
			slots, err := engine.ValidateSlots(amenity.Slots)
			if err != nil {
				return fmt.Errorf("building %s: amenity %q: %w", building.ID, amenity.Name, err)
			}
			amenity.Slots = slots
		}
	}
	return nil
}

// Seed upserts every building and amenity. Amenities are matched by name
// within their building, so seeding twice is harmless.
func Seed(ctx context.Context, seeder Seeder, catalog Catalog, logger *slog.Logger) error {
	for _, building := range catalog.Buildings {
		if err := seeder.UpsertBuilding(ctx, building.ID, building.Name); err != nil {
			return fmt.Errorf("seed building %s: %w", building.ID, err)
		}
		for _, amenity := range building.Amenities {
			active := true
			if amenity.Active != nil {
				active = *amenity.Active
			}
			saved, err := seeder.UpsertAmenity(ctx, models.Amenity{
				BuildingID: building.ID,
				Name:       amenity.Name,
				Active:     active,
				Slots:      amenity.Slots,
			})
			if err != nil {
				return fmt.Errorf("seed amenity %q: %w", amenity.Name, err)
			}
			logger.Info("catalog amenity seeded", "building_id", building.ID, "amenity_id", saved.AmenityID, "name", saved.Name)
		}
	}
	return nil
}
