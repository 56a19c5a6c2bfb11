// Package store defines the persistence contract shared by every backend.
package store

import (
	"context"

	"tournament-desk/internal/models"
)

// Store persists events, their registrations and newsletter subscribers.
//
// Register and Unregister must run their capacity/uniqueness check and the
// write as one serialized unit per event; callers never check first.
type Store interface {
	ListEvents(ctx context.Context) ([]models.Event, error)
	// GetEvent returns apperr.ErrNotFound for an unknown id.
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// SaveEvent inserts or replaces the event with the same ID.
	SaveEvent(ctx context.Context, ev models.Event) error
	// DeleteEvent removes the event and its registrations.
	DeleteEvent(ctx context.Context, id string) error

	ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error)
	// CountRegistrations returns registration counts keyed by event id.
	CountRegistrations(ctx context.Context) (map[string]int, error)
	// Register admits reg through ledger.Admit and appends it atomically.
	Register(ctx context.Context, eventID string, reg models.Registration) (models.Registration, error)
	// Unregister removes the matching registration; false when none matched.
	Unregister(ctx context.Context, eventID, neuronID string) (bool, error)

	// Subscribe returns false when the email was already subscribed.
	Subscribe(ctx context.Context, sub models.Subscriber) (bool, error)
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
	CountSubscribers(ctx context.Context) (int, error)

	Close() error
}
