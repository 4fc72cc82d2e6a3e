package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultEventDuration  = 30 * time.Minute
	reminderLeadMinutes   = 10
	defaultMaxListResults = 50
)

// GoogleClient talks to the Google Calendar API. Events are created on the
// configured calendar (usually "primary") with a popup reminder shortly
// before the start time.
type GoogleClient struct {
	service    *gcal.Service
	calendarID string
}

// NewGoogleClient builds a client from a service-account credentials file.
// An empty credentialsFile returns ErrNotConfigured so callers can fall back
// to local-only task storage.
func NewGoogleClient(ctx context.Context, credentialsFile, calendarID string) (*GoogleClient, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(calendarID) == "" {
		calendarID = "primary"
	}

	service, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar service: %w", err)
	}
	return &GoogleClient{service: service, calendarID: calendarID}, nil
}

func (c *GoogleClient) CreateEvent(ctx context.Context, summary string, start time.Time, description string) (string, error) {
	if description == "" {
		description = "Reminder: " + summary
	}
	end := start.Add(defaultEventDuration)

	event := &gcal.Event{
		Summary:     summary,
		Description: description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: start.Location().String(),
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: end.Location().String(),
		},
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: reminderLeadMinutes},
			},
		},
	}

	created, err := c.service.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create calendar event: %w", err)
	}
	return created.Id, nil
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.service.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		// Already gone counts as deleted.
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil
		}
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return nil
}

func (c *GoogleClient) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	call := c.service.Events.List(c.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(defaultMaxListResults).
		Context(ctx)

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev := Event{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Location:    item.Location,
		}
		if item.Start != nil {
			if item.Start.DateTime != "" {
				ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
			} else if item.Start.Date != "" {
				ev.Start, _ = time.Parse("2006-01-02", item.Start.Date)
				ev.AllDay = true
			}
		}
		if item.End != nil {
			if item.End.DateTime != "" {
				ev.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
			} else if item.End.Date != "" {
				ev.End, _ = time.Parse("2006-01-02", item.End.Date)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
