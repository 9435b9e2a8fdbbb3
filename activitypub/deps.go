package activitypub

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

// Database defines the database operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type Database interface {
	// Account operations
	ReadLocalAccountByUsername(username string) (error, *domain.Account)
	ReadAccountById(id uuid.UUID) (error, *domain.Account)
	ReadAccountByActorURI(actorURI string) (error, *domain.Account)
	ReadLocalAccounts() (error, []domain.Account)
	UpsertRemoteAccount(account *domain.Account) error
	TombstoneAccountByActorURI(actorURI string) error

	// Event operations
	CreateEvent(event *domain.Event, recipients []uuid.UUID) error
	UpdateEvent(event *domain.Event, recipients []uuid.UUID) error
	DeleteEvent(id uuid.UUID) error
	ReadEventById(id uuid.UUID) (error, *domain.Event)
	ReadEventByExternalId(externalId string) (error, *domain.Event)
	ReadShareByAccountAndOriginal(accountId, originalId uuid.UUID) (error, *domain.Event)

	// Attendance operations
	UpsertAttendance(attendance *domain.Attendance) error
	DeleteAttendance(eventId, accountId uuid.UUID) (bool, error)
	DeleteAttendanceByExternalId(externalId string) (bool, error)

	// Like operations
	CreateLike(like *domain.Like) error
	DeleteLike(eventId, accountId uuid.UUID) (bool, error)
	DeleteLikeByExternalId(externalId string) (bool, error)

	// Comment operations
	CreateComment(comment *domain.Comment, mentions []domain.CommentMention) error
	ReadCommentById(id uuid.UUID) (error, *domain.Comment)
	ReadCommentByExternalId(externalId string) (error, *domain.Comment)
	DeleteComment(id uuid.UUID) error

	// Follower operations (they follow us)
	UpsertFollower(follower *domain.Follower) error
	ReadFollower(accountId uuid.UUID, actorURI string) (error, *domain.Follower)
	ReadFollowersByAccountId(accountId uuid.UUID) (error, []domain.Follower)
	UpdateFollowerAccepted(accountId uuid.UUID, actorURI string, accepted bool) error
	DeleteFollower(accountId uuid.UUID, actorURI string) error

	// Following operations (we follow them)
	ReadFollowingByFollowURI(followURI string) (error, *domain.Following)
	UpdateFollowingAccepted(followURI string, accepted bool) error
	DeleteFollowing(accountId uuid.UUID, actorURI string) error

	// Replay protection
	MarkActivityProcessed(activityURI string, expiresAt time.Time) error
	HasProcessedActivity(activityURI string) (bool, error)
	DeleteExpiredProcessedActivities(now time.Time) (int64, error)

	// Delivery queue operations
	EnqueueDelivery(item *domain.DeliveryItem) error
	ReadPendingDeliveries(now time.Time, limit int) (error, []domain.DeliveryItem)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error
	DeleteDelivery(id uuid.UUID) error

	// Notifications
	CreateNotification(notification *domain.Notification) error
}

// HTTPClient defines the HTTP client operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Broadcaster pushes realtime messages to connected clients. Nil is
// tolerated everywhere so federation keeps working without a stream
// layer attached.
type Broadcaster interface {
	Broadcast(msg domain.BroadcastMessage)
}

// DefaultHTTPClient is the default HTTP client used in production
type DefaultHTTPClient struct {
	client *http.Client
}

// NewDefaultHTTPClient creates a new default HTTP client with the specified timeout
func NewDefaultHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Do executes the HTTP request
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// actorFetchTimeout bounds remote actor and webfinger lookups.
const actorFetchTimeout = 5 * time.Second

// deliveryTimeout bounds a single inbox POST.
const deliveryTimeout = 15 * time.Second

// defaultHTTPClient serves actor fetches during inbox processing.
var defaultHTTPClient = NewDefaultHTTPClient(actorFetchTimeout)
