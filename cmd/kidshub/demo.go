package main

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/kidshub/internal/repo/memory"
	"github.com/geocoder89/kidshub/internal/store"
)

const demoOrganizerID = "demo-organizer"

// seedDemoCatalogue fills an in-memory store with a browsable catalogue so
// the CLI is usable without a backend.
func seedDemoCatalogue(ctx context.Context, s *memory.Store) error {
	base := time.Now().UTC().Truncate(time.Hour).Add(72 * time.Hour)

	rows := []store.Row{
		{
			"organizer_id": demoOrganizerID, "title": "Junior Chess Club", "category": "chess",
			"city": "Sofia", "location": "City Library, hall 2",
			"start_at": base, "age_min": 7, "age_max": 12, "capacity": 12, "price": 15.0,
		},
		{
			"organizer_id": demoOrganizerID, "title": "Swimming for Beginners", "category": "sport",
			"city": "Plovdiv", "location": "Aquapark Plovdiv",
			"start_at": base.Add(24 * time.Hour), "age_min": 5, "age_max": 9, "capacity": 8, "price": 25.0,
		},
		{
			"organizer_id": demoOrganizerID, "title": "Robotics Workshop", "category": "science",
			"city": "Sofia", "location": "Tech Park",
			"start_at": base.Add(48 * time.Hour), "age_min": 10, "age_max": 14, "capacity": 10, "price": 40.0,
		},
		{
			"organizer_id": demoOrganizerID, "title": "Painting Saturday", "category": "art",
			"city": "Varna", "location": "Sea Garden studio",
			"start_at": base.Add(96 * time.Hour), "age_min": 4, "age_max": 0, "capacity": 0, "price": 0.0,
		},
	}

	if _, err := s.Insert(ctx, store.TableActivities, rows...); err != nil {
		return fmt.Errorf("seed demo catalogue: %w", err)
	}
	return nil
}
