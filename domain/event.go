package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Visibility controls addressing and who may view an event.
type Visibility string

const (
	VisibilityPublic    Visibility = "PUBLIC"
	VisibilityFollowers Visibility = "FOLLOWERS"
	VisibilityUnlisted  Visibility = "UNLISTED"
	VisibilityPrivate   Visibility = "PRIVATE"
)

// ParseVisibility validates a visibility string.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityFollowers, VisibilityUnlisted, VisibilityPrivate:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

// RecurrencePattern is the repeat interval of a recurring event.
// The empty pattern means the event does not recur.
type RecurrencePattern string

const (
	RecurrenceNone    RecurrencePattern = ""
	RecurrenceDaily   RecurrencePattern = "DAILY"
	RecurrenceWeekly  RecurrencePattern = "WEEKLY"
	RecurrenceMonthly RecurrencePattern = "MONTHLY"
	RecurrenceYearly  RecurrencePattern = "YEARLY"
)

// ParseRecurrencePattern validates a recurrence pattern string.
func ParseRecurrencePattern(s string) (RecurrencePattern, error) {
	switch RecurrencePattern(s) {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return RecurrencePattern(s), nil
	}
	return "", fmt.Errorf("unknown recurrence pattern %q", s)
}

// Event is a calendar entry, authored locally or received over federation.
// ExternalId holds the canonical URL of events that originated remotely.
// A non-nil SharedEventId marks this row as a share (Announce) of another
// event.
type Event struct {
	Id                uuid.UUID
	AccountId         uuid.UUID
	ExternalId        string
	AttributedTo      string
	Title             string
	Summary           string
	Location          string
	Latitude          *float64
	Longitude         *float64
	Timezone          string
	StartTime         time.Time
	EndTime           *time.Time
	Recurrence        RecurrencePattern
	RecurrenceEndDate *time.Time
	Visibility        Visibility
	Tags              []string
	HeaderImageURL    string
	ExternalURL       string
	SharedEventId     *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (e *Event) IsRemote() bool {
	return e.ExternalId != ""
}

func (e *Event) IsShare() bool {
	return e.SharedEventId != nil
}

func (e *Event) IsRecurring() bool {
	return e.Recurrence != RecurrenceNone
}

// occurrence returns the n-th occurrence start (n=0 is StartTime). Monthly
// and yearly steps use calendar arithmetic anchored at the original start,
// so a drift introduced by a short month does not accumulate.
func (e *Event) occurrence(n int) time.Time {
	switch e.Recurrence {
	case RecurrenceDaily:
		return e.StartTime.AddDate(0, 0, n)
	case RecurrenceWeekly:
		return e.StartTime.AddDate(0, 0, 7*n)
	case RecurrenceMonthly:
		return e.StartTime.AddDate(0, n, 0)
	case RecurrenceYearly:
		return e.StartTime.AddDate(n, 0, 0)
	}
	return e.StartTime
}

// NextOccurrenceAfter returns the earliest occurrence strictly after t,
// honoring RecurrenceEndDate. The second return is false when the series
// has no occurrence after t.
func (e *Event) NextOccurrenceAfter(t time.Time) (time.Time, bool) {
	if !e.IsRecurring() {
		if e.StartTime.After(t) {
			return e.StartTime, true
		}
		return time.Time{}, false
	}

	for n := 0; ; n++ {
		occ := e.occurrence(n)
		if e.RecurrenceEndDate != nil && occ.After(*e.RecurrenceEndDate) {
			return time.Time{}, false
		}
		if occ.After(t) {
			return occ, true
		}
	}
}

// OccursInRange reports whether any occurrence of the event falls within
// [rangeStart, rangeEnd]. Non-recurring events match when they overlap the
// range.
func (e *Event) OccursInRange(rangeStart, rangeEnd time.Time) bool {
	if rangeEnd.Before(rangeStart) {
		return false
	}

	if !e.IsRecurring() {
		end := e.StartTime
		if e.EndTime != nil {
			end = *e.EndTime
		}
		return !e.StartTime.After(rangeEnd) && !end.Before(rangeStart)
	}

	for n := 0; ; n++ {
		occ := e.occurrence(n)
		if e.RecurrenceEndDate != nil && occ.After(*e.RecurrenceEndDate) {
			return false
		}
		if occ.After(rangeEnd) {
			return false
		}
		if !occ.Before(rangeStart) {
			return true
		}
	}
}

// AttendanceStatus is the RSVP state of a user on an event.
type AttendanceStatus string

const (
	AttendanceAttending    AttendanceStatus = "attending"
	AttendanceMaybe        AttendanceStatus = "maybe"
	AttendanceNotAttending AttendanceStatus = "not_attending"
)

// ParseAttendanceStatus validates an attendance status string.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch AttendanceStatus(s) {
	case AttendanceAttending, AttendanceMaybe, AttendanceNotAttending:
		return AttendanceStatus(s), nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Attendance is one user's RSVP on one event, at most one row per pair.
type Attendance struct {
	Id         uuid.UUID
	EventId    uuid.UUID
	AccountId  uuid.UUID
	Status     AttendanceStatus
	ExternalId string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Like is one user's like on one event, at most one row per pair.
type Like struct {
	Id         uuid.UUID
	EventId    uuid.UUID
	AccountId  uuid.UUID
	ExternalId string
	CreatedAt  time.Time
}

// CommentThreadDepthCap is the soft display depth for reply threads.
const CommentThreadDepthCap = 3

// Comment is a note on an event. InReplyToId points at another comment on
// the same event for threading.
type Comment struct {
	Id          uuid.UUID
	EventId     uuid.UUID
	AccountId   uuid.UUID
	InReplyToId *uuid.UUID
	Content     string
	ExternalId  string
	CreatedAt   time.Time
}

// CommentMention records a resolved @-reference inside a comment.
type CommentMention struct {
	Id                 uuid.UUID
	CommentId          uuid.UUID
	MentionedAccountId uuid.UUID
	CreatedAt          time.Time
}

// EventEngagement pairs an event with its engagement counts inside a
// scoring window. Read shape for the trending scorer.
type EventEngagement struct {
	Event       Event
	Likes       int
	Comments    int
	Attendances int
}
