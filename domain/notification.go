package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationFollow     NotificationType = "follow"
	NotificationLike       NotificationType = "like"
	NotificationComment    NotificationType = "comment"
	NotificationMention    NotificationType = "mention"
	NotificationAttendance NotificationType = "attendance"
	NotificationShare      NotificationType = "share"
	NotificationReminder   NotificationType = "reminder"
)

// Notification represents a user notification. ActorId is uuid.Nil for
// notifications without a subject (reminders).
type Notification struct {
	Id               uuid.UUID
	AccountId        uuid.UUID
	NotificationType NotificationType
	ActorId          uuid.UUID
	ActorHandle      string // denormalized for display (e.g., "@alice@mastodon.social")
	EventId          uuid.UUID
	Title            string
	Body             string
	Data             string // optional structured payload, JSON
	Read             bool
	ReadAt           *time.Time
	CreatedAt        time.Time
}

// TypeLabel returns a human-readable label for the notification type
func (n *Notification) TypeLabel() string {
	switch n.NotificationType {
	case NotificationFollow:
		return "followed you"
	case NotificationLike:
		return "liked your event"
	case NotificationComment:
		return "commented on your event"
	case NotificationMention:
		return "mentioned you"
	case NotificationAttendance:
		return "responded to your event"
	case NotificationShare:
		return "shared your event"
	case NotificationReminder:
		return "event reminder"
	default:
		return ""
	}
}

// TypeIcon returns an emoji icon for the notification type
func (n *Notification) TypeIcon() string {
	switch n.NotificationType {
	case NotificationFollow:
		return "👤"
	case NotificationLike:
		return "❤️"
	case NotificationComment:
		return "💬"
	case NotificationMention:
		return "@"
	case NotificationAttendance:
		return "✅"
	case NotificationShare:
		return "🔁"
	case NotificationReminder:
		return "⏰"
	default:
		return "•"
	}
}

// Summary returns a one-line summary of the notification
func (n *Notification) Summary() string {
	if n.ActorHandle == "" {
		return fmt.Sprintf("%s %s", n.TypeIcon(), n.Title)
	}
	return fmt.Sprintf("%s %s %s", n.TypeIcon(), n.ActorHandle, n.TypeLabel())
}
