package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReminderStatus is the lifecycle state of a reminder. Transitions are
// PENDING to SENT or PENDING to CANCELLED, never back.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderSent      ReminderStatus = "SENT"
	ReminderCancelled ReminderStatus = "CANCELLED"
)

// Reminder schedules a notification MinutesBefore the start of an event
// occurrence. Reminders never federate; they are a local notification
// pipeline.
type Reminder struct {
	Id            uuid.UUID
	AccountId     uuid.UUID
	EventId       uuid.UUID
	RemindAt      time.Time
	MinutesBefore int
	Status        ReminderStatus
	CreatedAt     time.Time
}
