package domain

import "github.com/google/uuid"

// BroadcastType is the closed set of realtime message kinds pushed to
// connected clients.
type BroadcastType string

const (
	BroadcastEventCreated        BroadcastType = "EVENT_CREATED"
	BroadcastEventUpdated        BroadcastType = "EVENT_UPDATED"
	BroadcastEventDeleted        BroadcastType = "EVENT_DELETED"
	BroadcastEventShared         BroadcastType = "EVENT_SHARED"
	BroadcastLikeAdded           BroadcastType = "LIKE_ADDED"
	BroadcastLikeRemoved         BroadcastType = "LIKE_REMOVED"
	BroadcastAttendanceUpdated   BroadcastType = "ATTENDANCE_UPDATED"
	BroadcastAttendanceRemoved   BroadcastType = "ATTENDANCE_REMOVED"
	BroadcastCommentCreated      BroadcastType = "COMMENT_CREATED"
	BroadcastCommentDeleted      BroadcastType = "COMMENT_DELETED"
	BroadcastNotificationCreated BroadcastType = "NOTIFICATION_CREATED"
	BroadcastNotificationRead    BroadcastType = "NOTIFICATION_READ"
)

// BroadcastMessage is one realtime fan-out message. A zero TargetAccountId
// reaches every subscriber; otherwise only that account's streams.
type BroadcastMessage struct {
	Type            BroadcastType `json:"type"`
	TargetAccountId uuid.UUID     `json:"-"`
	Data            any           `json:"data,omitempty"`
}
