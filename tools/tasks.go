package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskpilot/taskpilot/calendar"
	"github.com/taskpilot/taskpilot/dateparse"
	"github.com/taskpilot/taskpilot/taskstore"
)

// TaskRepository is the slice of the task store the tools depend on.
type TaskRepository interface {
	CreateTask(ctx context.Context, userID, description string) (int64, error)
	CreateScheduledTask(ctx context.Context, userID, description, dueDate, timezone string) (int64, error)
	ListTasks(ctx context.Context, userID string, done bool) ([]taskstore.Task, error)
	MarkDone(ctx context.Context, taskID int64, userID string) (bool, error)
	SetCalendarEventID(ctx context.Context, taskID int64, userID, eventID string) error
	ClearAll(ctx context.Context, userID string) (int64, error)
}

// Deps wires the task tools to their collaborators. Now is injectable so
// tests can pin the clock.
type Deps struct {
	Repo     TaskRepository
	Calendar calendar.Client
	Parser   *dateparse.Parser
	Now      func() time.Time
	Logger   zerolog.Logger
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// location resolves a per-call timezone name, falling back to the parser's
// default when the name is empty or unknown.
func (d *Deps) location(timezone string) *time.Location {
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		return d.Parser.Location()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		d.Logger.Warn().Str("timezone", tz).Msg("unknown timezone, using default")
		return d.Parser.Location()
	}
	return loc
}

// userLocks serializes list-then-mutate tool calls per task owner. Thread
// serialization alone is not enough: two threads owned by the same user can
// interleave a list with a mutation and act on a stale task number.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[string]*sync.Mutex)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	um, ok := l.m[userID]
	if !ok {
		um = &sync.Mutex{}
		l.m[userID] = um
	}
	l.mu.Unlock()

	um.Lock()
	return um.Unlock
}

// Register adds the full task-management tool set to the registry.
func Register(reg *Registry, deps Deps) {
	locks := newUserLocks()
	reg.MustRegister(newAddTaskTool(deps))
	reg.MustRegister(newCreateReminderTool(deps))
	reg.MustRegister(newListTasksTool(deps))
	reg.MustRegister(newMarkTaskDoneTool(deps, locks))
	reg.MustRegister(newClearAllTasksTool(deps, locks))
	reg.MustRegister(newListCalendarEventsTool(deps))
}

const userIDDescription = "User identifier (auto-injected from context)"

func newAddTaskTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The task description to add (e.g., 'buy milk', 'review code')",
			},
			"user_id": map[string]any{"type": "string", "description": userIDDescription},
		},
		"required": []any{"task", "user_id"},
	}

	return NewFuncTool(
		"add_task",
		"Add a simple task to the to-do list. Use this for tasks without a specific date or time.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Task   string `json:"task"`
				UserID string `json:"user_id"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("failed to decode add_task args: %w", err)
			}

			id, err := deps.Repo.CreateTask(ctx, args.UserID, strings.TrimSpace(args.Task))
			if err != nil {
				return fmt.Sprintf("❌ Error adding task: %v", err), nil
			}
			return fmt.Sprintf("✓ Added task #%d: '%s'", id, strings.TrimSpace(args.Task)), nil
		},
	)
}

func newCreateReminderTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The task description to be reminded about (e.g., 'call mom', 'submit report')",
			},
			"when": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Natural language date/time expression (e.g., 'tomorrow at 10am', 'next Friday 2pm')",
			},
			"user_id": map[string]any{"type": "string", "description": userIDDescription},
			"timezone": map[string]any{
				"type":        "string",
				"description": "Timezone for the reminder (e.g., 'UTC', 'America/New_York')",
			},
		},
		"required": []any{"task", "when", "user_id"},
	}

	return NewFuncTool(
		"create_reminder",
		"Add a task with a specific date/time. Use this whenever the user mentions when something should happen.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Task     string `json:"task"`
				When     string `json:"when"`
				UserID   string `json:"user_id"`
				Timezone string `json:"timezone"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("failed to decode create_reminder args: %w", err)
			}
			if args.Timezone == "" {
				args.Timezone = "UTC"
			}
			task := strings.TrimSpace(args.Task)
			now := deps.now()
			loc := deps.location(args.Timezone)

			due, ok := deps.Parser.ParseIn(args.When, now, loc)
			if !ok {
				return fmt.Sprintf(
					"❌ Couldn't understand the date/time '%s'. Try something like 'tomorrow at 10am' or 'next Friday at 2pm'.",
					args.When,
				), nil
			}
			if due.Before(now) {
				return "❌ That time is in the past! Please pick a future time.", nil
			}

			taskID, err := deps.Repo.CreateScheduledTask(ctx, args.UserID, task, dateparse.ToISO(due), args.Timezone)
			if err != nil {
				return fmt.Sprintf("❌ Error creating reminder: %v", err), nil
			}

			display := dateparse.FormatRelative(due, now.In(loc))
			description := "Reminder: " + task + " due " + dateparse.FormatAbsolute(due)
			eventID, err := deps.Calendar.CreateEvent(ctx, task, due, description)
			switch {
			case errors.Is(err, calendar.ErrNotConfigured):
				return fmt.Sprintf(
					"✓ Reminder set: '%s' for %s (added locally; ⚠️ Google Calendar not configured)",
					task, display,
				), nil
			case err != nil:
				deps.Logger.Warn().Err(err).Str("task", task).Msg("calendar event creation failed")
				return fmt.Sprintf(
					"✓ Reminder set: '%s' for %s (⚠️ Couldn't add to Google Calendar)",
					task, display,
				), nil
			}

			if err := deps.Repo.SetCalendarEventID(ctx, taskID, args.UserID, eventID); err != nil {
				deps.Logger.Warn().Err(err).Int64("task_id", taskID).Msg("failed to link calendar event")
			}
			return fmt.Sprintf("✓ Reminder set: '%s' for %s 📅 Added to Google Calendar!", task, display), nil
		},
	)
}

func newListTasksTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": userIDDescription},
		},
		"required": []any{"user_id"},
	}

	return NewFuncTool(
		"list_tasks",
		"List all current (incomplete) tasks for the user, numbered for later reference.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				UserID string `json:"user_id"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("failed to decode list_tasks args: %w", err)
			}

			tasks, err := deps.Repo.ListTasks(ctx, args.UserID, false)
			if err != nil {
				return fmt.Sprintf("❌ Error listing tasks: %v", err), nil
			}
			if len(tasks) == 0 {
				return "You have no tasks! 🎉", nil
			}

			now := deps.now()
			var b strings.Builder
			b.WriteString("Your tasks:\n")
			for i, t := range tasks {
				if t.DueDate == "" {
					fmt.Fprintf(&b, "%d. %s\n", i+1, t.Description)
					continue
				}
				due, err := dateparse.FromISO(t.DueDate)
				if err != nil {
					// Keep the raw value visible rather than hiding the task.
					fmt.Fprintf(&b, "%d. %s (Due: %s)\n", i+1, t.Description, t.DueDate)
					continue
				}
				fmt.Fprintf(&b, "%d. %s (Due: %s)\n", i+1, t.Description, dateparse.FormatRelative(due, now))
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	)
}

func newMarkTaskDoneTool(deps Deps, locks *userLocks) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_number": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "The task number to mark as done (1-indexed, from list_tasks output)",
			},
			"user_id": map[string]any{"type": "string", "description": userIDDescription},
		},
		"required": []any{"task_number", "user_id"},
	}

	return NewFuncTool(
		"mark_task_done",
		"Mark a task as completed by its number from the task list.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				TaskNumber int    `json:"task_number"`
				UserID     string `json:"user_id"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("failed to decode mark_task_done args: %w", err)
			}
			unlock := locks.lock(args.UserID)
			defer unlock()

			tasks, err := deps.Repo.ListTasks(ctx, args.UserID, false)
			if err != nil {
				return fmt.Sprintf("❌ Error marking task as done: %v", err), nil
			}
			if len(tasks) == 0 {
				return "❌ You have no tasks to mark as done.", nil
			}
			if args.TaskNumber < 1 || args.TaskNumber > len(tasks) {
				return fmt.Sprintf(
					"❌ Invalid task number. You have %d task(s). Please choose a number between 1 and %d.",
					len(tasks), len(tasks),
				), nil
			}

			task := tasks[args.TaskNumber-1]
			ok, err := deps.Repo.MarkDone(ctx, task.ID, args.UserID)
			if err != nil {
				return fmt.Sprintf("❌ Error marking task as done: %v", err), nil
			}
			if !ok {
				return "❌ Failed to mark task as done.", nil
			}

			msg := fmt.Sprintf("✓ Marked task #%d as done: '%s'", args.TaskNumber, task.Description)
			if task.CalendarEventID != "" {
				if err := deps.Calendar.DeleteEvent(ctx, task.CalendarEventID); err != nil {
					deps.Logger.Warn().Err(err).Str("event_id", task.CalendarEventID).Msg("calendar event deletion failed")
				} else {
					msg += " (Removed from Google Calendar)"
				}
			}
			return msg, nil
		},
	)
}

func newClearAllTasksTool(deps Deps, locks *userLocks) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": userIDDescription},
			"confirmed": map[string]any{
				"type":        "boolean",
				"description": "Set to true only after the user has explicitly confirmed the deletion",
			},
		},
		"required": []any{"user_id"},
	}

	return NewFuncTool(
		"clear_all_tasks",
		"Delete every task for the user. Requires explicit confirmation: call with confirmed=false first, then confirmed=true once the user says yes.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				UserID    string `json:"user_id"`
				Confirmed bool   `json:"confirmed"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("failed to decode clear_all_tasks args: %w", err)
			}
			unlock := locks.lock(args.UserID)
			defer unlock()

			tasks, err := deps.Repo.ListTasks(ctx, args.UserID, false)
			if err != nil {
				return fmt.Sprintf("❌ Error clearing tasks: %v", err), nil
			}
			if len(tasks) == 0 {
				return "You have no tasks to clear.", nil
			}

			if !args.Confirmed {
				if len(tasks) == 1 {
					return "⚠️ Are you sure you want to delete your 1 task? This cannot be undone. Say 'yes' to confirm.", nil
				}
				return fmt.Sprintf(
					"⚠️ Are you sure you want to delete all %d tasks? This cannot be undone. Say 'yes' to confirm.",
					len(tasks),
				), nil
			}

			count, err := deps.Repo.ClearAll(ctx, args.UserID)
			if err != nil {
				return fmt.Sprintf("❌ Error clearing tasks: %v", err), nil
			}
			if count == 1 {
				return "✓ Cleared 1 task!", nil
			}
			return fmt.Sprintf("✓ Cleared %d tasks!", count), nil
		},
	)
}

func newListCalendarEventsTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"time_min": map[string]any{
				"type":        "string",
				"description": "Start of the window in natural language (e.g., 'today', 'monday', 'this week')",
			},
			"time_max": map[string]any{
				"type":        "string",
				"description": "End of the window in natural language (e.g., 'end of week', 'friday', 'next monday')",
			},
			"user_id": map[string]any{"type": "string", "description": userIDDescription},
			"timezone": map[string]any{
				"type":        "string",
				"description": "User's timezone (e.g., 'America/New_York', 'Europe/London')",
			},
		},
		"required": []any{"time_min", "time_max", "user_id"},
	}

	return NewFuncTool(
		"list_calendar_events",
		"List Google Calendar events in a date range. Use this when the user asks about their schedule or upcoming events.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				TimeMin  string `json:"time_min"`
				TimeMax  string `json:"time_max"`
				UserID   string `json:"user_id"`
				Timezone string `json:"timezone"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("failed to decode list_calendar_events args: %w", err)
			}

			now := deps.now()
			loc := deps.location(args.Timezone)
			localNow := now.In(loc)
			timeMin, ok := deps.Parser.ParseIn(args.TimeMin, now, loc)
			if !ok {
				timeMin = now
			}
			timeMax, ok := deps.Parser.ParseIn(args.TimeMax, now, loc)
			if !ok {
				timeMax = now.AddDate(0, 0, 7)
			}

			events, err := deps.Calendar.ListEvents(ctx, timeMin, timeMax)
			switch {
			case errors.Is(err, calendar.ErrNotConfigured):
				return "⚠️ Google Calendar not configured. Add credentials to enable calendar access.", nil
			case err != nil:
				return fmt.Sprintf("❌ Error fetching calendar events: %v", err), nil
			}

			if len(events) == 0 {
				return "No calendar events found in that period.", nil
			}

			label := fmt.Sprintf("%d events", len(events))
			if len(events) == 1 {
				label = "1 event"
			}

			var b strings.Builder
			fmt.Fprintf(&b, "📅 Your calendar (%s):\n", label)
			for i, ev := range events {
				fmt.Fprintf(&b, "\n%d. %s\n", i+1, ev.Summary)
				if ev.AllDay {
					b.WriteString("   🕐 All day\n")
				} else {
					fmt.Fprintf(&b, "   🕐 %s\n", dateparse.FormatRelative(ev.Start, localNow))
				}
				if ev.Location != "" {
					fmt.Fprintf(&b, "   📍 %s\n", ev.Location)
				}
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	)
}
