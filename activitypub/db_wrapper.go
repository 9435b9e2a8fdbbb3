package activitypub

import (
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
)

// DBWrapper adapts *db.DB to the Database interface, so production code
// passes the real handle while tests inject a mock.
type DBWrapper struct {
	db *db.DB
}

// NewDBWrapper wraps an open database handle.
func NewDBWrapper(database *db.DB) *DBWrapper {
	return &DBWrapper{db: database}
}

var _ Database = (*DBWrapper)(nil)

// Account operations

func (w *DBWrapper) ReadLocalAccountByUsername(username string) (error, *domain.Account) {
	return w.db.ReadLocalAccountByUsername(username)
}

func (w *DBWrapper) ReadAccountById(id uuid.UUID) (error, *domain.Account) {
	return w.db.ReadAccountById(id)
}

func (w *DBWrapper) ReadAccountByActorURI(actorURI string) (error, *domain.Account) {
	return w.db.ReadAccountByActorURI(actorURI)
}

func (w *DBWrapper) ReadLocalAccounts() (error, []domain.Account) {
	return w.db.ReadLocalAccounts()
}

func (w *DBWrapper) UpsertRemoteAccount(account *domain.Account) error {
	return w.db.UpsertRemoteAccount(account)
}

func (w *DBWrapper) TombstoneAccountByActorURI(actorURI string) error {
	return w.db.TombstoneAccountByActorURI(actorURI)
}

// Event operations

func (w *DBWrapper) CreateEvent(event *domain.Event, recipients []uuid.UUID) error {
	return w.db.CreateEvent(event, recipients)
}

func (w *DBWrapper) UpdateEvent(event *domain.Event, recipients []uuid.UUID) error {
	return w.db.UpdateEvent(event, recipients)
}

func (w *DBWrapper) DeleteEvent(id uuid.UUID) error {
	return w.db.DeleteEvent(id)
}

func (w *DBWrapper) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	return w.db.ReadEventById(id)
}

func (w *DBWrapper) ReadEventByExternalId(externalId string) (error, *domain.Event) {
	return w.db.ReadEventByExternalId(externalId)
}

func (w *DBWrapper) ReadShareByAccountAndOriginal(accountId, originalId uuid.UUID) (error, *domain.Event) {
	return w.db.ReadShareByAccountAndOriginal(accountId, originalId)
}

// Attendance operations

func (w *DBWrapper) UpsertAttendance(attendance *domain.Attendance) error {
	return w.db.UpsertAttendance(attendance)
}

func (w *DBWrapper) DeleteAttendance(eventId, accountId uuid.UUID) (bool, error) {
	return w.db.DeleteAttendance(eventId, accountId)
}

func (w *DBWrapper) DeleteAttendanceByExternalId(externalId string) (bool, error) {
	return w.db.DeleteAttendanceByExternalId(externalId)
}

// Like operations

func (w *DBWrapper) CreateLike(like *domain.Like) error {
	return w.db.CreateLike(like)
}

func (w *DBWrapper) DeleteLike(eventId, accountId uuid.UUID) (bool, error) {
	return w.db.DeleteLike(eventId, accountId)
}

func (w *DBWrapper) DeleteLikeByExternalId(externalId string) (bool, error) {
	return w.db.DeleteLikeByExternalId(externalId)
}

// Comment operations

func (w *DBWrapper) CreateComment(comment *domain.Comment, mentions []domain.CommentMention) error {
	return w.db.CreateComment(comment, mentions)
}

func (w *DBWrapper) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	return w.db.ReadCommentById(id)
}

func (w *DBWrapper) ReadCommentByExternalId(externalId string) (error, *domain.Comment) {
	return w.db.ReadCommentByExternalId(externalId)
}

func (w *DBWrapper) DeleteComment(id uuid.UUID) error {
	return w.db.DeleteComment(id)
}

// Follower operations

func (w *DBWrapper) UpsertFollower(follower *domain.Follower) error {
	return w.db.UpsertFollower(follower)
}

func (w *DBWrapper) ReadFollower(accountId uuid.UUID, actorURI string) (error, *domain.Follower) {
	return w.db.ReadFollower(accountId, actorURI)
}

func (w *DBWrapper) ReadFollowersByAccountId(accountId uuid.UUID) (error, []domain.Follower) {
	return w.db.ReadFollowersByAccountId(accountId)
}

func (w *DBWrapper) UpdateFollowerAccepted(accountId uuid.UUID, actorURI string, accepted bool) error {
	return w.db.UpdateFollowerAccepted(accountId, actorURI, accepted)
}

func (w *DBWrapper) DeleteFollower(accountId uuid.UUID, actorURI string) error {
	return w.db.DeleteFollower(accountId, actorURI)
}

// Following operations

func (w *DBWrapper) ReadFollowingByFollowURI(followURI string) (error, *domain.Following) {
	return w.db.ReadFollowingByFollowURI(followURI)
}

func (w *DBWrapper) UpdateFollowingAccepted(followURI string, accepted bool) error {
	return w.db.UpdateFollowingAccepted(followURI, accepted)
}

func (w *DBWrapper) DeleteFollowing(accountId uuid.UUID, actorURI string) error {
	return w.db.DeleteFollowing(accountId, actorURI)
}

// Replay protection

func (w *DBWrapper) MarkActivityProcessed(activityURI string, expiresAt time.Time) error {
	return w.db.MarkActivityProcessed(activityURI, expiresAt)
}

func (w *DBWrapper) HasProcessedActivity(activityURI string) (bool, error) {
	return w.db.HasProcessedActivity(activityURI)
}

func (w *DBWrapper) DeleteExpiredProcessedActivities(now time.Time) (int64, error) {
	return w.db.DeleteExpiredProcessedActivities(now)
}

// Delivery queue operations

func (w *DBWrapper) EnqueueDelivery(item *domain.DeliveryItem) error {
	return w.db.EnqueueDelivery(item)
}

func (w *DBWrapper) ReadPendingDeliveries(now time.Time, limit int) (error, []domain.DeliveryItem) {
	return w.db.ReadPendingDeliveries(now, limit)
}

func (w *DBWrapper) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return w.db.UpdateDeliveryAttempt(id, attempts, nextRetryAt)
}

func (w *DBWrapper) DeleteDelivery(id uuid.UUID) error {
	return w.db.DeleteDelivery(id)
}

// Notifications

func (w *DBWrapper) CreateNotification(notification *domain.Notification) error {
	return w.db.CreateNotification(notification)
}
