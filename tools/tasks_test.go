package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskpilot/taskpilot/calendar"
	"github.com/taskpilot/taskpilot/dateparse"
	"github.com/taskpilot/taskpilot/taskstore"
)

// Monday 2025-10-27 15:00 UTC.
var fixedNow = time.Date(2025, time.October, 27, 15, 0, 0, 0, time.UTC)

type fakeRepo struct {
	tasks    []taskstore.Task
	nextID   int64
	linked   map[int64]string
	denyMark bool

	createErr error
	listErr   error
	markErr   error
	clearErr  error
}

func (f *fakeRepo) CreateTask(ctx context.Context, userID, description string) (int64, error) {
	return f.insert(userID, description, "", "UTC")
}

func (f *fakeRepo) CreateScheduledTask(ctx context.Context, userID, description, dueDate, timezone string) (int64, error) {
	return f.insert(userID, description, dueDate, timezone)
}

func (f *fakeRepo) insert(userID, description, dueDate, timezone string) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.tasks = append(f.tasks, taskstore.Task{
		ID:          f.nextID,
		UserID:      userID,
		Description: description,
		DueDate:     dueDate,
		Timezone:    timezone,
	})
	return f.nextID, nil
}

func (f *fakeRepo) ListTasks(ctx context.Context, userID string, done bool) ([]taskstore.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []taskstore.Task
	for _, t := range f.tasks {
		if t.UserID == userID && t.Done == done {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkDone(ctx context.Context, taskID int64, userID string) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.denyMark {
		return false, nil
	}
	for i, t := range f.tasks {
		if t.ID == taskID && t.UserID == userID {
			f.tasks[i].Done = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) SetCalendarEventID(ctx context.Context, taskID int64, userID, eventID string) error {
	if f.linked == nil {
		f.linked = make(map[int64]string)
	}
	f.linked[taskID] = eventID
	return nil
}

func (f *fakeRepo) ClearAll(ctx context.Context, userID string) (int64, error) {
	if f.clearErr != nil {
		return 0, f.clearErr
	}
	var kept []taskstore.Task
	var removed int64
	for _, t := range f.tasks {
		if t.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	f.tasks = kept
	return removed, nil
}

type fakeCalendar struct {
	eventID   string
	createErr error
	deleteErr error
	listErr   error
	events    []calendar.Event

	created      []string
	descriptions []string
	deleted      []string
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, summary string, start time.Time, description string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, summary)
	f.descriptions = append(f.descriptions, description)
	return f.eventID, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeCalendar) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func newDeps(t *testing.T, repo *fakeRepo, cal *fakeCalendar) Deps {
	t.Helper()
	parser, err := dateparse.New("UTC")
	if err != nil {
		t.Fatalf("parser: %v", err)
	}
	return Deps{
		Repo:     repo,
		Calendar: cal,
		Parser:   parser,
		Now:      func() time.Time { return fixedNow },
		Logger:   zerolog.Nop(),
	}
}

func registerAll(t *testing.T, repo *fakeRepo, cal *fakeCalendar) *Registry {
	t.Helper()
	reg := NewRegistry()
	Register(reg, newDeps(t, repo, cal))
	return reg
}

func execute(t *testing.T, reg *Registry, name, args string) string {
	t.Helper()
	out, err := reg.Execute(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return out
}

func TestRegisterExposesFullToolSet(t *testing.T) {
	reg := registerAll(t, &fakeRepo{}, &fakeCalendar{})

	defs := reg.Definitions()
	want := []string{"add_task", "create_reminder", "list_tasks", "mark_task_done", "clear_all_tasks", "list_calendar_events"}
	if len(defs) != len(want) {
		t.Fatalf("tools = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("defs[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestAddTask(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})

	out := execute(t, reg, "add_task", `{"task":"buy milk","user_id":"alice"}`)
	if out != "✓ Added task #1: 'buy milk'" {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 1 || repo.tasks[0].UserID != "alice" {
		t.Fatalf("task not stored: %+v", repo.tasks)
	}
}

func TestAddTaskRepositoryError(t *testing.T) {
	repo := &fakeRepo{createErr: fmt.Errorf("db down")}
	reg := registerAll(t, repo, &fakeCalendar{})

	out := execute(t, reg, "add_task", `{"task":"buy milk","user_id":"alice"}`)
	if out != "❌ Error adding task: db down" {
		t.Fatalf("got %q", out)
	}
}

func TestListTasksEmpty(t *testing.T) {
	reg := registerAll(t, &fakeRepo{}, &fakeCalendar{})

	out := execute(t, reg, "list_tasks", `{"user_id":"alice"}`)
	if out != "You have no tasks! 🎉" {
		t.Fatalf("got %q", out)
	}
}

func TestListTasksShowsDueDates(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})

	repo.tasks = []taskstore.Task{
		{ID: 1, UserID: "alice", Description: "buy milk"},
		{ID: 2, UserID: "alice", Description: "dentist", DueDate: "2025-10-28T10:00:00Z"},
		{ID: 3, UserID: "alice", Description: "broken row", DueDate: "garbage"},
	}

	out := execute(t, reg, "list_tasks", `{"user_id":"alice"}`)
	want := "Your tasks:\n" +
		"1. buy milk\n" +
		"2. dentist (Due: Tomorrow at 10:00 AM)\n" +
		"3. broken row (Due: garbage)"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestMarkTaskDone(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "buy milk", "", "UTC")

	out := execute(t, reg, "mark_task_done", `{"task_number":1,"user_id":"alice"}`)
	if out != "✓ Marked task #1 as done: 'buy milk'" {
		t.Fatalf("got %q", out)
	}
	if !repo.tasks[0].Done {
		t.Fatalf("task not marked done")
	}
}

func TestMarkTaskDoneNoTasks(t *testing.T) {
	reg := registerAll(t, &fakeRepo{}, &fakeCalendar{})

	out := execute(t, reg, "mark_task_done", `{"task_number":1,"user_id":"alice"}`)
	if out != "❌ You have no tasks to mark as done." {
		t.Fatalf("got %q", out)
	}
}

func TestMarkTaskDoneInvalidNumber(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "one", "", "UTC")
	repo.insert("alice", "two", "", "UTC")

	out := execute(t, reg, "mark_task_done", `{"task_number":5,"user_id":"alice"}`)
	want := "❌ Invalid task number. You have 2 task(s). Please choose a number between 1 and 2."
	if out != want {
		t.Fatalf("got %q", out)
	}
}

func TestMarkTaskDoneUpdateRejected(t *testing.T) {
	repo := &fakeRepo{denyMark: true}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "buy milk", "", "UTC")

	out := execute(t, reg, "mark_task_done", `{"task_number":1,"user_id":"alice"}`)
	if out != "❌ Failed to mark task as done." {
		t.Fatalf("got %q", out)
	}
}

func TestMarkTaskDoneRemovesCalendarEvent(t *testing.T) {
	repo := &fakeRepo{}
	cal := &fakeCalendar{}
	reg := registerAll(t, repo, cal)
	repo.tasks = []taskstore.Task{
		{ID: 1, UserID: "alice", Description: "dentist", CalendarEventID: "evt-9"},
	}

	out := execute(t, reg, "mark_task_done", `{"task_number":1,"user_id":"alice"}`)
	if out != "✓ Marked task #1 as done: 'dentist' (Removed from Google Calendar)" {
		t.Fatalf("got %q", out)
	}
	if len(cal.deleted) != 1 || cal.deleted[0] != "evt-9" {
		t.Fatalf("delete calls = %v", cal.deleted)
	}
}

func TestMarkTaskDoneToleratesCalendarDeleteFailure(t *testing.T) {
	repo := &fakeRepo{}
	cal := &fakeCalendar{deleteErr: fmt.Errorf("api down")}
	reg := registerAll(t, repo, cal)
	repo.tasks = []taskstore.Task{
		{ID: 1, UserID: "alice", Description: "dentist", CalendarEventID: "evt-9"},
	}

	out := execute(t, reg, "mark_task_done", `{"task_number":1,"user_id":"alice"}`)
	// Task is still marked; only the calendar suffix is omitted.
	if out != "✓ Marked task #1 as done: 'dentist'" {
		t.Fatalf("got %q", out)
	}
	if !repo.tasks[0].Done {
		t.Fatalf("task not marked done")
	}
}

func TestClearAllTasksRequiresConfirmation(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "one", "", "UTC")
	repo.insert("alice", "two", "", "UTC")

	out := execute(t, reg, "clear_all_tasks", `{"user_id":"alice","confirmed":false}`)
	want := "⚠️ Are you sure you want to delete all 2 tasks? This cannot be undone. Say 'yes' to confirm."
	if out != want {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 2 {
		t.Fatalf("unconfirmed call must not delete, tasks = %d", len(repo.tasks))
	}
}

func TestClearAllTasksSingularWarning(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "one", "", "UTC")

	out := execute(t, reg, "clear_all_tasks", `{"user_id":"alice"}`)
	want := "⚠️ Are you sure you want to delete your 1 task? This cannot be undone. Say 'yes' to confirm."
	if out != want {
		t.Fatalf("got %q", out)
	}
}

func TestClearAllTasksConfirmed(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "one", "", "UTC")
	repo.insert("alice", "two", "", "UTC")
	repo.insert("alice", "three", "", "UTC")

	out := execute(t, reg, "clear_all_tasks", `{"user_id":"alice","confirmed":true}`)
	if out != "✓ Cleared 3 tasks!" {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 0 {
		t.Fatalf("tasks remain: %+v", repo.tasks)
	}
}

func TestClearAllTasksConfirmedSingular(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "one", "", "UTC")

	out := execute(t, reg, "clear_all_tasks", `{"user_id":"alice","confirmed":true}`)
	if out != "✓ Cleared 1 task!" {
		t.Fatalf("got %q", out)
	}
}

func TestClearAllTasksNothingToClear(t *testing.T) {
	reg := registerAll(t, &fakeRepo{}, &fakeCalendar{})

	out := execute(t, reg, "clear_all_tasks", `{"user_id":"alice","confirmed":true}`)
	if out != "You have no tasks to clear." {
		t.Fatalf("got %q", out)
	}
}

func TestCreateReminderUnparseableDate(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})

	out := execute(t, reg, "create_reminder", `{"task":"call mom","when":"whenever","user_id":"alice"}`)
	want := "❌ Couldn't understand the date/time 'whenever'. Try something like 'tomorrow at 10am' or 'next Friday at 2pm'."
	if out != want {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 0 {
		t.Fatalf("no task should be created, got %+v", repo.tasks)
	}
}

func TestCreateReminderRejectsPastTime(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})

	out := execute(t, reg, "create_reminder", `{"task":"call mom","when":"yesterday at 9am","user_id":"alice"}`)
	if out != "❌ That time is in the past! Please pick a future time." {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 0 {
		t.Fatalf("no task should be created, got %+v", repo.tasks)
	}
}

func TestCreateReminderWithCalendar(t *testing.T) {
	repo := &fakeRepo{}
	cal := &fakeCalendar{eventID: "evt-1"}
	reg := registerAll(t, repo, cal)

	out := execute(t, reg, "create_reminder", `{"task":"call mom","when":"tomorrow at 10am","user_id":"alice"}`)
	want := "✓ Reminder set: 'call mom' for Tomorrow at 10:00 AM 📅 Added to Google Calendar!"
	if out != want {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(repo.tasks))
	}
	if repo.tasks[0].DueDate != "2025-10-28T10:00:00Z" {
		t.Fatalf("due date = %q", repo.tasks[0].DueDate)
	}
	if repo.linked[1] != "evt-1" {
		t.Fatalf("calendar event not linked: %v", repo.linked)
	}
	wantDesc := "Reminder: call mom due Tuesday, October 28, 2025 at 10:00 AM"
	if len(cal.descriptions) != 1 || cal.descriptions[0] != wantDesc {
		t.Fatalf("event description = %v, want %q", cal.descriptions, wantDesc)
	}
}

func TestCreateReminderRejectsRecentExplicitPast(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})

	// 9am is six hours back at the fixed 15:00 clock. Naming the day keeps
	// it in the past instead of rolling it to tomorrow.
	out := execute(t, reg, "create_reminder", `{"task":"standup notes","when":"today at 9am","user_id":"alice"}`)
	if out != "❌ That time is in the past! Please pick a future time." {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 0 {
		t.Fatalf("no task should be created, got %+v", repo.tasks)
	}
}

func TestCreateReminderHonorsTimezone(t *testing.T) {
	repo := &fakeRepo{}
	cal := &fakeCalendar{eventID: "evt-1"}
	reg := registerAll(t, repo, cal)

	out := execute(t, reg, "create_reminder",
		`{"task":"call mom","when":"tomorrow at 9am","user_id":"alice","timezone":"America/New_York"}`)
	want := "✓ Reminder set: 'call mom' for Tomorrow at 9:00 AM 📅 Added to Google Calendar!"
	if out != want {
		t.Fatalf("got %q", out)
	}
	// Tomorrow 9am in New York, not 9am UTC.
	if repo.tasks[0].DueDate != "2025-10-28T09:00:00-04:00" {
		t.Fatalf("due date = %q", repo.tasks[0].DueDate)
	}
	if repo.tasks[0].Timezone != "America/New_York" {
		t.Fatalf("timezone = %q", repo.tasks[0].Timezone)
	}
}

func TestMarkTaskDoneSerializedPerUser(t *testing.T) {
	repo := &fakeRepo{}
	reg := registerAll(t, repo, &fakeCalendar{})
	repo.insert("alice", "one", "", "UTC")
	repo.insert("alice", "two", "", "UTC")

	// Two concurrent calls both target task number 1. Serialization makes
	// the second call re-list and land on the remaining open task.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Execute(context.Background(), "mark_task_done", json.RawMessage(`{"task_number":1,"user_id":"alice"}`)); err != nil {
				t.Errorf("mark_task_done: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, task := range repo.tasks {
		if !task.Done {
			t.Fatalf("task %q left open", task.Description)
		}
	}
}

func TestCreateReminderCalendarFailureStillSaves(t *testing.T) {
	repo := &fakeRepo{}
	cal := &fakeCalendar{createErr: fmt.Errorf("api down")}
	reg := registerAll(t, repo, cal)

	out := execute(t, reg, "create_reminder", `{"task":"call mom","when":"tomorrow at 10am","user_id":"alice"}`)
	want := "✓ Reminder set: 'call mom' for Tomorrow at 10:00 AM (⚠️ Couldn't add to Google Calendar)"
	if out != want {
		t.Fatalf("got %q", out)
	}
	if len(repo.tasks) != 1 {
		t.Fatalf("task should still be saved locally")
	}
}

func TestCreateReminderCalendarNotConfigured(t *testing.T) {
	repo := &fakeRepo{}
	cal := &fakeCalendar{createErr: calendar.ErrNotConfigured}
	reg := registerAll(t, repo, cal)

	out := execute(t, reg, "create_reminder", `{"task":"call mom","when":"tomorrow at 10am","user_id":"alice"}`)
	want := "✓ Reminder set: 'call mom' for Tomorrow at 10:00 AM (added locally; ⚠️ Google Calendar not configured)"
	if out != want {
		t.Fatalf("got %q", out)
	}
}

func TestCreateReminderRepositoryError(t *testing.T) {
	repo := &fakeRepo{createErr: fmt.Errorf("boom")}
	reg := registerAll(t, repo, &fakeCalendar{})

	out := execute(t, reg, "create_reminder", `{"task":"call mom","when":"tomorrow at 10am","user_id":"alice"}`)
	if out != "❌ Error creating reminder: boom" {
		t.Fatalf("got %q", out)
	}
}

func TestListCalendarEventsNotConfigured(t *testing.T) {
	cal := &fakeCalendar{listErr: calendar.ErrNotConfigured}
	reg := registerAll(t, &fakeRepo{}, cal)

	out := execute(t, reg, "list_calendar_events", `{"time_min":"today","time_max":"friday","user_id":"alice"}`)
	if out != "⚠️ Google Calendar not configured. Add credentials to enable calendar access." {
		t.Fatalf("got %q", out)
	}
}

func TestListCalendarEventsError(t *testing.T) {
	cal := &fakeCalendar{listErr: fmt.Errorf("quota exceeded")}
	reg := registerAll(t, &fakeRepo{}, cal)

	out := execute(t, reg, "list_calendar_events", `{"time_min":"today","time_max":"friday","user_id":"alice"}`)
	if out != "❌ Error fetching calendar events: quota exceeded" {
		t.Fatalf("got %q", out)
	}
}

func TestListCalendarEventsEmpty(t *testing.T) {
	reg := registerAll(t, &fakeRepo{}, &fakeCalendar{})

	out := execute(t, reg, "list_calendar_events", `{"time_min":"today","time_max":"friday","user_id":"alice"}`)
	if out != "No calendar events found in that period." {
		t.Fatalf("got %q", out)
	}
}

func TestListCalendarEventsFormatting(t *testing.T) {
	cal := &fakeCalendar{events: []calendar.Event{
		{
			Summary:  "Standup",
			Start:    time.Date(2025, time.October, 28, 9, 30, 0, 0, time.UTC),
			Location: "Room 4",
		},
		{
			Summary: "Conference",
			Start:   time.Date(2025, time.October, 29, 0, 0, 0, 0, time.UTC),
			AllDay:  true,
		},
	}}
	reg := registerAll(t, &fakeRepo{}, cal)

	out := execute(t, reg, "list_calendar_events", `{"time_min":"today","time_max":"friday","user_id":"alice"}`)
	want := "📅 Your calendar (2 events):\n" +
		"\n1. Standup\n" +
		"   🕐 Tomorrow at 9:30 AM\n" +
		"   📍 Room 4\n" +
		"\n2. Conference\n" +
		"   🕐 All day"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestListCalendarEventsSingularLabel(t *testing.T) {
	cal := &fakeCalendar{events: []calendar.Event{
		{
			Summary: "Standup",
			Start:   time.Date(2025, time.October, 28, 9, 30, 0, 0, time.UTC),
		},
	}}
	reg := registerAll(t, &fakeRepo{}, cal)

	out := execute(t, reg, "list_calendar_events", `{"time_min":"today","time_max":"friday","user_id":"alice"}`)
	if !strings.HasPrefix(out, "📅 Your calendar (1 event):") {
		t.Fatalf("got %q", out)
	}
}
