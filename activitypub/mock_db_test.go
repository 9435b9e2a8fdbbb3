package activitypub

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

// MockDatabase is an in-memory implementation of the Database interface
// for testing. It stores rows in maps and mimics the conflict behavior
// of the sqlite layer, including the UNIQUE error strings the handlers
// sniff for.
type MockDatabase struct {
	mu sync.RWMutex

	Accounts      map[uuid.UUID]*domain.Account
	Events        map[uuid.UUID]*domain.Event
	Attendances   map[uuid.UUID]*domain.Attendance
	Likes         map[uuid.UUID]*domain.Like
	Comments      map[uuid.UUID]*domain.Comment
	Mentions      map[uuid.UUID][]domain.CommentMention
	Followers     map[uuid.UUID]*domain.Follower
	Following     map[uuid.UUID]*domain.Following
	Processed     map[string]time.Time
	DeliveryQueue map[uuid.UUID]*domain.DeliveryItem
	Notifications []*domain.Notification

	// Error injection for testing error handling
	ForceError error
}

var errUniqueConstraint = errors.New("UNIQUE constraint failed")

// NewMockDatabase creates a new mock database with initialized maps
func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		Accounts:      make(map[uuid.UUID]*domain.Account),
		Events:        make(map[uuid.UUID]*domain.Event),
		Attendances:   make(map[uuid.UUID]*domain.Attendance),
		Likes:         make(map[uuid.UUID]*domain.Like),
		Comments:      make(map[uuid.UUID]*domain.Comment),
		Mentions:      make(map[uuid.UUID][]domain.CommentMention),
		Followers:     make(map[uuid.UUID]*domain.Follower),
		Following:     make(map[uuid.UUID]*domain.Following),
		Processed:     make(map[string]time.Time),
		DeliveryQueue: make(map[uuid.UUID]*domain.DeliveryItem),
	}
}

// SetForceError sets an error to be returned by all operations
func (m *MockDatabase) SetForceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForceError = err
}

// AddAccount adds an account to the mock database
func (m *MockDatabase) AddAccount(acc *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[acc.Id] = acc
}

// AddEvent adds an event to the mock database
func (m *MockDatabase) AddEvent(event *domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[event.Id] = event
}

// AddFollower adds a follower edge to the mock database
func (m *MockDatabase) AddFollower(follower *domain.Follower) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Followers[follower.Id] = follower
}

// AddFollowing adds a following edge to the mock database
func (m *MockDatabase) AddFollowing(following *domain.Following) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Following[following.Id] = following
}

// AddComment adds a comment to the mock database
func (m *MockDatabase) AddComment(comment *domain.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments[comment.Id] = comment
}

// AddLike adds a like to the mock database
func (m *MockDatabase) AddLike(like *domain.Like) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Likes[like.Id] = like
}

// Account operations

func (m *MockDatabase) ReadLocalAccountByUsername(username string) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, acc := range m.Accounts {
		if !acc.IsRemote && acc.Username == username {
			return nil, acc
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadAccountById(id uuid.UUID) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.Accounts[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadAccountByActorURI(actorURI string) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, acc := range m.Accounts {
		if acc.ActorURI == actorURI {
			return nil, acc
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadLocalAccounts() (error, []domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var accounts []domain.Account
	for _, acc := range m.Accounts {
		if !acc.IsRemote {
			accounts = append(accounts, *acc)
		}
	}
	return nil, accounts
}

func (m *MockDatabase) UpsertRemoteAccount(account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, existing := range m.Accounts {
		if existing.ActorURI == account.ActorURI {
			keep := existing.Id
			createdAt := existing.CreatedAt
			*existing = *account
			existing.Id = keep
			existing.CreatedAt = createdAt
			return nil
		}
	}
	m.Accounts[account.Id] = account
	return nil
}

func (m *MockDatabase) TombstoneAccountByActorURI(actorURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, acc := range m.Accounts {
		if acc.ActorURI == actorURI && acc.IsRemote {
			acc.Tombstoned = true
		}
	}
	return nil
}

// Event operations

func (m *MockDatabase) CreateEvent(event *domain.Event, recipients []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if event.ExternalId != "" {
		for _, existing := range m.Events {
			if existing.ExternalId == event.ExternalId {
				return errUniqueConstraint
			}
		}
	}
	m.Events[event.Id] = event
	return nil
}

func (m *MockDatabase) UpdateEvent(event *domain.Event, recipients []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Events[event.Id] = event
	return nil
}

func (m *MockDatabase) DeleteEvent(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.Events, id)
	return nil
}

func (m *MockDatabase) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	event, ok := m.Events[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, event
}

func (m *MockDatabase) ReadEventByExternalId(externalId string) (error, *domain.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, event := range m.Events {
		if event.ExternalId == externalId {
			return nil, event
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadShareByAccountAndOriginal(accountId, originalId uuid.UUID) (error, *domain.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, event := range m.Events {
		if event.AccountId == accountId && event.SharedEventId != nil && *event.SharedEventId == originalId {
			return nil, event
		}
	}
	return sql.ErrNoRows, nil
}

// Attendance operations

func (m *MockDatabase) UpsertAttendance(attendance *domain.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, existing := range m.Attendances {
		if existing.EventId == attendance.EventId && existing.AccountId == attendance.AccountId {
			existing.Status = attendance.Status
			existing.ExternalId = attendance.ExternalId
			existing.UpdatedAt = attendance.UpdatedAt
			return nil
		}
	}
	m.Attendances[attendance.Id] = attendance
	return nil
}

func (m *MockDatabase) DeleteAttendance(eventId, accountId uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	deleted := false
	for id, a := range m.Attendances {
		if a.EventId == eventId && a.AccountId == accountId {
			delete(m.Attendances, id)
			deleted = true
		}
	}
	return deleted, nil
}

func (m *MockDatabase) DeleteAttendanceByExternalId(externalId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	deleted := false
	for id, a := range m.Attendances {
		if a.ExternalId == externalId {
			delete(m.Attendances, id)
			deleted = true
		}
	}
	return deleted, nil
}

// Like operations

func (m *MockDatabase) CreateLike(like *domain.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, existing := range m.Likes {
		if existing.EventId == like.EventId && existing.AccountId == like.AccountId {
			return errUniqueConstraint
		}
	}
	m.Likes[like.Id] = like
	return nil
}

func (m *MockDatabase) DeleteLike(eventId, accountId uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	deleted := false
	for id, l := range m.Likes {
		if l.EventId == eventId && l.AccountId == accountId {
			delete(m.Likes, id)
			deleted = true
		}
	}
	return deleted, nil
}

func (m *MockDatabase) DeleteLikeByExternalId(externalId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	deleted := false
	for id, l := range m.Likes {
		if l.ExternalId == externalId {
			delete(m.Likes, id)
			deleted = true
		}
	}
	return deleted, nil
}

// Comment operations

func (m *MockDatabase) CreateComment(comment *domain.Comment, mentions []domain.CommentMention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if comment.ExternalId != "" {
		for _, existing := range m.Comments {
			if existing.ExternalId == comment.ExternalId {
				return errUniqueConstraint
			}
		}
	}
	m.Comments[comment.Id] = comment
	if len(mentions) > 0 {
		m.Mentions[comment.Id] = mentions
	}
	return nil
}

func (m *MockDatabase) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	comment, ok := m.Comments[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, comment
}

func (m *MockDatabase) ReadCommentByExternalId(externalId string) (error, *domain.Comment) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, comment := range m.Comments {
		if comment.ExternalId == externalId {
			return nil, comment
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) DeleteComment(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.Comments, id)
	delete(m.Mentions, id)
	return nil
}

// Follower operations

func (m *MockDatabase) UpsertFollower(follower *domain.Follower) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, existing := range m.Followers {
		if existing.AccountId == follower.AccountId && existing.ActorURI == follower.ActorURI {
			existing.InboxURI = follower.InboxURI
			existing.SharedInboxURI = follower.SharedInboxURI
			existing.FollowURI = follower.FollowURI
			existing.Accepted = follower.Accepted
			return nil
		}
	}
	m.Followers[follower.Id] = follower
	return nil
}

func (m *MockDatabase) ReadFollower(accountId uuid.UUID, actorURI string) (error, *domain.Follower) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, f := range m.Followers {
		if f.AccountId == accountId && f.ActorURI == actorURI {
			return nil, f
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadFollowersByAccountId(accountId uuid.UUID) (error, []domain.Follower) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var followers []domain.Follower
	for _, f := range m.Followers {
		if f.AccountId == accountId && f.Accepted {
			followers = append(followers, *f)
		}
	}
	return nil, followers
}

func (m *MockDatabase) UpdateFollowerAccepted(accountId uuid.UUID, actorURI string, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, f := range m.Followers {
		if f.AccountId == accountId && f.ActorURI == actorURI {
			f.Accepted = accepted
		}
	}
	return nil
}

func (m *MockDatabase) DeleteFollower(accountId uuid.UUID, actorURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for id, f := range m.Followers {
		if f.AccountId == accountId && f.ActorURI == actorURI {
			delete(m.Followers, id)
		}
	}
	return nil
}

// Following operations

func (m *MockDatabase) ReadFollowingByFollowURI(followURI string) (error, *domain.Following) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, f := range m.Following {
		if f.FollowURI == followURI {
			return nil, f
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) UpdateFollowingAccepted(followURI string, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for _, f := range m.Following {
		if f.FollowURI == followURI {
			f.Accepted = accepted
		}
	}
	return nil
}

func (m *MockDatabase) DeleteFollowing(accountId uuid.UUID, actorURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for id, f := range m.Following {
		if f.AccountId == accountId && f.ActorURI == actorURI {
			delete(m.Following, id)
		}
	}
	return nil
}

// Replay protection

func (m *MockDatabase) MarkActivityProcessed(activityURI string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Processed[activityURI] = expiresAt
	return nil
}

func (m *MockDatabase) HasProcessedActivity(activityURI string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	_, ok := m.Processed[activityURI]
	return ok, nil
}

func (m *MockDatabase) DeleteExpiredProcessedActivities(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return 0, m.ForceError
	}
	var deleted int64
	for uri, expiresAt := range m.Processed {
		if expiresAt.Before(now) {
			delete(m.Processed, uri)
			deleted++
		}
	}
	return deleted, nil
}

// Delivery queue operations

func (m *MockDatabase) EnqueueDelivery(item *domain.DeliveryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.DeliveryQueue[item.Id] = item
	return nil
}

func (m *MockDatabase) ReadPendingDeliveries(now time.Time, limit int) (error, []domain.DeliveryItem) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var items []domain.DeliveryItem
	for _, item := range m.DeliveryQueue {
		if !item.NextRetryAt.After(now) {
			items = append(items, *item)
			if len(items) >= limit {
				break
			}
		}
	}
	return nil, items
}

func (m *MockDatabase) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if item, ok := m.DeliveryQueue[id]; ok {
		item.Attempts = attempts
		item.NextRetryAt = nextRetryAt
	}
	return nil
}

func (m *MockDatabase) DeleteDelivery(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.DeliveryQueue, id)
	return nil
}

// Notifications

func (m *MockDatabase) CreateNotification(notification *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Notifications = append(m.Notifications, notification)
	return nil
}

// NotificationsOfType returns the stored notifications matching a type.
func (m *MockDatabase) NotificationsOfType(typ domain.NotificationType) []*domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Notification
	for _, n := range m.Notifications {
		if n.NotificationType == typ {
			out = append(out, n)
		}
	}
	return out
}

// Ensure MockDatabase implements Database interface
var _ Database = (*MockDatabase)(nil)
