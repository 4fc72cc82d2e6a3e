// Package calendar syncs scheduled tasks to an external calendar.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured signals that no calendar credentials are present. Task
// tools treat it as a soft failure: the task is still saved locally.
var ErrNotConfigured = errors.New("calendar: not configured")

// Event is a calendar entry in the window a user asked about.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// Client is the calendar surface the task tools depend on. Implementations
// must make DeleteEvent idempotent: deleting an already-deleted event
// succeeds.
type Client interface {
	CreateEvent(ctx context.Context, summary string, start time.Time, description string) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error)
}

// Unconfigured is the Client used when no credentials are set. Every call
// reports ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) CreateEvent(ctx context.Context, summary string, start time.Time, description string) (string, error) {
	_ = ctx
	_ = summary
	_ = start
	_ = description
	return "", ErrNotConfigured
}

func (Unconfigured) DeleteEvent(ctx context.Context, eventID string) error {
	_ = ctx
	_ = eventID
	return ErrNotConfigured
}

func (Unconfigured) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	_ = ctx
	_ = timeMin
	_ = timeMax
	return nil, ErrNotConfigured
}
