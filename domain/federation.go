package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follower is one edge of a follow relationship, stored on the followed
// local account. ActorURI identifies the follower, which may live on a
// remote server. FollowURI is the id of the inbound Follow activity,
// echoed back inside a later Accept or Reject.
type Follower struct {
	Id             uuid.UUID
	AccountId      uuid.UUID
	ActorURI       string
	InboxURI       string
	SharedInboxURI string
	FollowURI      string
	Accepted       bool
	CreatedAt      time.Time
}

// Following is the mirror edge, stored on the local account that follows.
// FollowURI is the id of the Follow activity we sent, needed to recognize
// the Accept and to build an Undo.
type Following struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	ActorURI  string
	Handle    string
	InboxURI  string
	FollowURI string
	Accepted  bool
	CreatedAt time.Time
}

// ProcessedActivity suppresses replays of inbound activities. Rows past
// ExpiresAt are garbage collected.
type ProcessedActivity struct {
	Id          uuid.UUID
	ActivityURI string
	ReceivedAt  time.Time
	ExpiresAt   time.Time
}

// DeliveryItem is one pending POST to one remote inbox, signed as
// AccountId. Items survive restarts; NextRetryAt drives the backoff.
type DeliveryItem struct {
	Id           uuid.UUID
	AccountId    uuid.UUID
	InboxURI     string
	ActivityJSON string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
