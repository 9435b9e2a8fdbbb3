// Package reminders runs the local reminder pipeline: a ticker claims due
// reminders, turns them into notifications and books the next occurrence
// of recurring events. Reminders never leave the instance.
package reminders

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

// dueBatchSize caps how many reminders one tick will claim.
const dueBatchSize = 100

// Database is the slice of the database the scheduler needs.
type Database interface {
	ReadDueReminders(now time.Time, limit int) (error, []domain.Reminder)
	ClaimReminder(id uuid.UUID) (bool, error)
	CreateReminder(reminder *domain.Reminder) error
	ReadEventById(id uuid.UUID) (error, *domain.Event)
	CreateNotification(notification *domain.Notification) error
}

// Broadcaster pushes the resulting notifications to connected clients.
type Broadcaster interface {
	Broadcast(msg domain.BroadcastMessage)
}

// Scheduler drains due reminders on a fixed tick. Claims are conditional
// updates, so several instances can run against the same database without
// sending twice.
type Scheduler struct {
	database    Database
	broadcaster Broadcaster
	tick        time.Duration
	quit        chan struct{}
	wg          sync.WaitGroup
}

// NewScheduler builds a scheduler without starting it.
func NewScheduler(conf *util.AppConfig, database Database, broadcaster Broadcaster) *Scheduler {
	tick := time.Duration(conf.Conf.ReminderTickSeconds) * time.Second
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		database:    database,
		broadcaster: broadcaster,
		tick:        tick,
		quit:        make(chan struct{}),
	}
}

// StartScheduler builds and starts the reminder scheduler.
func StartScheduler(conf *util.AppConfig, database Database, broadcaster Broadcaster) *Scheduler {
	s := NewScheduler(conf, database, broadcaster)
	s.Start()
	return s
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("Reminders: Scheduler started (tick %v)", s.tick)
}

func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
	log.Println("Reminders: Scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.processDue(time.Now())
		}
	}
}

// processDue claims and sends every reminder due at now. A lost claim
// means another instance already sent it.
func (s *Scheduler) processDue(now time.Time) {
	err, due := s.database.ReadDueReminders(now, dueBatchSize)
	if err != nil {
		log.Printf("Reminders: Failed to read due reminders: %v", err)
		return
	}

	for _, reminder := range due {
		won, err := s.database.ClaimReminder(reminder.Id)
		if err != nil {
			log.Printf("Reminders: Failed to claim reminder %s: %v", reminder.Id, err)
			continue
		}
		if !won {
			continue
		}
		s.send(reminder, now)
	}
}

// send turns one claimed reminder into a notification and, for recurring
// events, books the reminder for the next occurrence.
func (s *Scheduler) send(reminder domain.Reminder, now time.Time) {
	err, event := s.database.ReadEventById(reminder.EventId)
	if err != nil || event == nil {
		log.Printf("Reminders: Event %s gone, dropping reminder %s", reminder.EventId, reminder.Id)
		return
	}

	// The occurrence this reminder was booked against, not necessarily
	// the series start.
	occurrence := reminder.RemindAt.Add(time.Duration(reminder.MinutesBefore) * time.Minute)

	notification := &domain.Notification{
		Id:               uuid.New(),
		AccountId:        reminder.AccountId,
		NotificationType: domain.NotificationReminder,
		EventId:          event.Id,
		Title:            event.Title,
		Body:             fmt.Sprintf("Starts %s", occurrence.Local().Format("Mon, 02 Jan 15:04")),
		CreatedAt:        now,
	}
	if err := s.database.CreateNotification(notification); err != nil {
		log.Printf("Reminders: Failed to store notification for reminder %s: %v", reminder.Id, err)
		return
	}

	s.broadcast(domain.BroadcastMessage{
		Type:            domain.BroadcastNotificationCreated,
		TargetAccountId: reminder.AccountId,
		Data: map[string]any{
			"id": notification.Id, "type": notification.NotificationType,
			"title": notification.Title, "event_id": event.Id,
		},
	})
	log.Printf("Reminders: Sent reminder %s for event %q to account %s",
		reminder.Id, event.Title, reminder.AccountId)

	s.scheduleNext(reminder, event, occurrence, now)
}

// scheduleNext books the same lead time against the next occurrence of a
// recurring event, stopping at the end of the series. Occurrences the
// scheduler slept through are skipped, not caught up.
func (s *Scheduler) scheduleNext(reminder domain.Reminder, event *domain.Event, occurrence, now time.Time) {
	if !event.IsRecurring() {
		return
	}

	anchor := occurrence
	if now.After(anchor) {
		anchor = now
	}
	next, ok := event.NextOccurrenceAfter(anchor)
	if !ok {
		return
	}

	nextReminder := &domain.Reminder{
		Id:            uuid.New(),
		AccountId:     reminder.AccountId,
		EventId:       reminder.EventId,
		RemindAt:      next.Add(-time.Duration(reminder.MinutesBefore) * time.Minute),
		MinutesBefore: reminder.MinutesBefore,
		Status:        domain.ReminderPending,
		CreatedAt:     now,
	}
	if err := s.database.CreateReminder(nextReminder); err != nil {
		log.Printf("Reminders: Failed to book next occurrence for %s: %v", reminder.Id, err)
		return
	}
	log.Printf("Reminders: Booked next occurrence of %q at %v for account %s",
		event.Title, next, reminder.AccountId)
}

func (s *Scheduler) broadcast(msg domain.BroadcastMessage) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(msg)
}
