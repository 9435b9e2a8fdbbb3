package reminders

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

type mockDatabase struct {
	due           []domain.Reminder
	claimDenied   map[uuid.UUID]bool
	claimed       []uuid.UUID
	events        map[uuid.UUID]*domain.Event
	notifications []domain.Notification
	booked        []domain.Reminder
	failCreate    bool
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		claimDenied: make(map[uuid.UUID]bool),
		events:      make(map[uuid.UUID]*domain.Event),
	}
}

func (m *mockDatabase) ReadDueReminders(now time.Time, limit int) (error, []domain.Reminder) {
	var due []domain.Reminder
	for _, r := range m.due {
		if !r.RemindAt.After(now) && len(due) < limit {
			due = append(due, r)
		}
	}
	return nil, due
}

func (m *mockDatabase) ClaimReminder(id uuid.UUID) (bool, error) {
	m.claimed = append(m.claimed, id)
	return !m.claimDenied[id], nil
}

func (m *mockDatabase) CreateReminder(reminder *domain.Reminder) error {
	if m.failCreate {
		return fmt.Errorf("mock create failure")
	}
	m.booked = append(m.booked, *reminder)
	return nil
}

func (m *mockDatabase) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	return nil, m.events[id]
}

func (m *mockDatabase) CreateNotification(notification *domain.Notification) error {
	m.notifications = append(m.notifications, *notification)
	return nil
}

type mockBroadcaster struct {
	messages []domain.BroadcastMessage
}

func (m *mockBroadcaster) Broadcast(msg domain.BroadcastMessage) {
	m.messages = append(m.messages, msg)
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.ReminderTickSeconds = 1
	return conf
}

// fixture wires one account, one event and one due reminder.
type fixture struct {
	db          *mockDatabase
	broadcaster *mockBroadcaster
	scheduler   *Scheduler
	accountId   uuid.UUID
	event       *domain.Event
	reminder    domain.Reminder
}

func newFixture(t *testing.T, start time.Time, minutesBefore int) *fixture {
	t.Helper()

	db := newMockDatabase()
	broadcaster := &mockBroadcaster{}

	accountId := uuid.New()
	event := &domain.Event{
		Id:         uuid.New(),
		AccountId:  accountId,
		Title:      "Weekly run",
		StartTime:  start,
		Visibility: domain.VisibilityPublic,
	}
	db.events[event.Id] = event

	reminder := domain.Reminder{
		Id:            uuid.New(),
		AccountId:     accountId,
		EventId:       event.Id,
		RemindAt:      start.Add(-time.Duration(minutesBefore) * time.Minute),
		MinutesBefore: minutesBefore,
		Status:        domain.ReminderPending,
	}
	db.due = append(db.due, reminder)

	return &fixture{
		db:          db,
		broadcaster: broadcaster,
		scheduler:   NewScheduler(testConf(), db, broadcaster),
		accountId:   accountId,
		event:       event,
		reminder:    reminder,
	}
}

func TestDueReminderSendsNotification(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)

	f.scheduler.processDue(start.Add(-30 * time.Minute))

	if len(f.db.notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(f.db.notifications))
	}
	n := f.db.notifications[0]
	if n.NotificationType != domain.NotificationReminder {
		t.Errorf("Expected reminder notification, got %s", n.NotificationType)
	}
	if n.AccountId != f.accountId {
		t.Errorf("Expected notification for account %s, got %s", f.accountId, n.AccountId)
	}
	if n.Title != "Weekly run" {
		t.Errorf("Expected event title on the notification, got %q", n.Title)
	}
	if n.EventId != f.event.Id {
		t.Errorf("Expected event id %s, got %s", f.event.Id, n.EventId)
	}

	if len(f.broadcaster.messages) != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", len(f.broadcaster.messages))
	}
	msg := f.broadcaster.messages[0]
	if msg.Type != domain.BroadcastNotificationCreated {
		t.Errorf("Expected NOTIFICATION_CREATED, got %s", msg.Type)
	}
	if msg.TargetAccountId != f.accountId {
		t.Errorf("Expected broadcast targeted at %s, got %s", f.accountId, msg.TargetAccountId)
	}
}

func TestRemindersNotYetDueStayPending(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)

	f.scheduler.processDue(start.Add(-2 * time.Hour))

	if len(f.db.claimed) != 0 {
		t.Errorf("Expected no claim attempts, got %d", len(f.db.claimed))
	}
	if len(f.db.notifications) != 0 {
		t.Errorf("Expected no notifications, got %d", len(f.db.notifications))
	}
}

func TestLostClaimSendsNothing(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)
	f.db.claimDenied[f.reminder.Id] = true

	f.scheduler.processDue(start)

	if len(f.db.claimed) != 1 {
		t.Fatalf("Expected 1 claim attempt, got %d", len(f.db.claimed))
	}
	if len(f.db.notifications) != 0 {
		t.Errorf("Expected no notification after a lost claim, got %d", len(f.db.notifications))
	}
	if len(f.broadcaster.messages) != 0 {
		t.Errorf("Expected no broadcast after a lost claim, got %d", len(f.broadcaster.messages))
	}
}

func TestReminderForDeletedEventDropped(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)
	delete(f.db.events, f.event.Id)

	f.scheduler.processDue(start)

	if len(f.db.notifications) != 0 {
		t.Errorf("Expected no notification for a deleted event, got %d", len(f.db.notifications))
	}
	if len(f.db.booked) != 0 {
		t.Errorf("Expected no follow-up reminder, got %d", len(f.db.booked))
	}
}

func TestRecurringReminderBooksNextOccurrence(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)
	f.event.Recurrence = domain.RecurrenceWeekly

	// Fires on time, half an hour before the first occurrence.
	f.scheduler.processDue(start.Add(-30 * time.Minute))

	if len(f.db.booked) != 1 {
		t.Fatalf("Expected 1 booked reminder, got %d", len(f.db.booked))
	}
	next := f.db.booked[0]
	wantRemindAt := start.AddDate(0, 0, 7).Add(-30 * time.Minute)
	if !next.RemindAt.Equal(wantRemindAt) {
		t.Errorf("Expected next reminder at %v, got %v", wantRemindAt, next.RemindAt)
	}
	if next.MinutesBefore != 30 {
		t.Errorf("Expected lead time kept at 30, got %d", next.MinutesBefore)
	}
	if next.AccountId != f.accountId || next.EventId != f.event.Id {
		t.Error("Expected the booked reminder to keep account and event")
	}
	if next.Status != domain.ReminderPending {
		t.Errorf("Expected PENDING, got %s", next.Status)
	}
}

func TestLateRecurringReminderSkipsBlownOccurrences(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)
	f.event.Recurrence = domain.RecurrenceDaily

	// The scheduler slept through three occurrences.
	now := start.AddDate(0, 0, 3).Add(time.Hour)
	f.scheduler.processDue(now)

	if len(f.db.booked) != 1 {
		t.Fatalf("Expected 1 booked reminder, got %d", len(f.db.booked))
	}
	wantRemindAt := start.AddDate(0, 0, 4).Add(-30 * time.Minute)
	if !f.db.booked[0].RemindAt.Equal(wantRemindAt) {
		t.Errorf("Expected next reminder at %v, got %v", wantRemindAt, f.db.booked[0].RemindAt)
	}
}

func TestNonRecurringReminderNotRebooked(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)

	f.scheduler.processDue(start)

	if len(f.db.booked) != 0 {
		t.Errorf("Expected no follow-up for a one-off event, got %d", len(f.db.booked))
	}
}

func TestRecurrenceEndStopsRebooking(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f := newFixture(t, start, 30)
	f.event.Recurrence = domain.RecurrenceWeekly
	end := start.AddDate(0, 0, 3)
	f.event.RecurrenceEndDate = &end

	f.scheduler.processDue(start.Add(-30 * time.Minute))

	if len(f.db.notifications) != 1 {
		t.Fatalf("Expected the final occurrence to still notify, got %d", len(f.db.notifications))
	}
	if len(f.db.booked) != 0 {
		t.Errorf("Expected no booking past the series end, got %d", len(f.db.booked))
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := StartScheduler(testConf(), newMockDatabase(), nil)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop in time")
	}
}
