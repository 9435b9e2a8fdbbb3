package db

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	sqlUpsertFollower = `INSERT INTO followers(id, account_id, actor_uri, inbox_uri,
		shared_inbox_uri, follow_uri, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, actor_uri) DO UPDATE SET
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			follow_uri = excluded.follow_uri,
			accepted = excluded.accepted`
	sqlSelectFollower = `SELECT id, account_id, actor_uri, inbox_uri, shared_inbox_uri, follow_uri,
		accepted, created_at FROM followers WHERE account_id = ? AND actor_uri = ?`
	sqlSelectFollowersByAccount = `SELECT id, account_id, actor_uri, inbox_uri, shared_inbox_uri,
		follow_uri, accepted, created_at FROM followers
		WHERE account_id = ? AND accepted = 1 ORDER BY created_at ASC`
	sqlSelectPendingFollowers = `SELECT id, account_id, actor_uri, inbox_uri, shared_inbox_uri,
		follow_uri, accepted, created_at FROM followers
		WHERE account_id = ? AND accepted = 0 ORDER BY created_at ASC`
	sqlUpdateFollowerAccepted = `UPDATE followers SET accepted = ? WHERE account_id = ? AND actor_uri = ?`
	sqlDeleteFollower         = `DELETE FROM followers WHERE account_id = ? AND actor_uri = ?`
	sqlCountFollowers         = `SELECT COUNT(*) FROM followers WHERE account_id = ? AND accepted = 1`

	sqlUpsertFollowing = `INSERT INTO following(id, account_id, actor_uri, handle, inbox_uri,
		follow_uri, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, actor_uri) DO UPDATE SET
			handle = excluded.handle,
			inbox_uri = excluded.inbox_uri,
			follow_uri = excluded.follow_uri,
			accepted = excluded.accepted`
	sqlSelectFollowingByFollowURI = `SELECT id, account_id, actor_uri, handle, inbox_uri, follow_uri,
		accepted, created_at FROM following WHERE follow_uri = ?`
	sqlSelectFollowing = `SELECT id, account_id, actor_uri, handle, inbox_uri, follow_uri,
		accepted, created_at FROM following WHERE account_id = ? AND actor_uri = ?`
	sqlSelectFollowingByAccount = `SELECT id, account_id, actor_uri, handle, inbox_uri, follow_uri,
		accepted, created_at FROM following WHERE account_id = ? ORDER BY created_at ASC`
	sqlUpdateFollowingAccepted = `UPDATE following SET accepted = ? WHERE follow_uri = ?`
	sqlDeleteFollowing         = `DELETE FROM following WHERE account_id = ? AND actor_uri = ?`
	sqlCountFollowing          = `SELECT COUNT(*) FROM following WHERE account_id = ? AND accepted = 1`

	sqlInsertProcessedActivity = `INSERT INTO processed_activities(id, activity_uri, received_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(activity_uri) DO NOTHING`
	sqlSelectProcessedActivity  = `SELECT COUNT(*) FROM processed_activities WHERE activity_uri = ?`
	sqlDeleteExpiredProcessed   = `DELETE FROM processed_activities WHERE expires_at <= ?`
	sqlCountProcessedActivities = `SELECT COUNT(*) FROM processed_activities`

	sqlInsertDelivery = `INSERT INTO deliveries(id, account_id, inbox_uri, activity_json, attempts,
		next_retry_at, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, account_id, inbox_uri, activity_json, attempts,
		next_retry_at, created_at FROM deliveries
		WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlSelectQueuedDeliveries = `SELECT id, account_id, inbox_uri, activity_json, attempts,
		next_retry_at, created_at FROM deliveries ORDER BY next_retry_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE deliveries SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM deliveries WHERE id = ?`
	sqlCountDeliveries       = `SELECT COUNT(*) FROM deliveries`
)

func scanFollower(row rowScanner) (*domain.Follower, error) {
	var follower domain.Follower
	var sharedInboxURI, followURI sql.NullString
	var accepted int
	var createdAt string

	err := row.Scan(&follower.Id, &follower.AccountId, &follower.ActorURI, &follower.InboxURI,
		&sharedInboxURI, &followURI, &accepted, &createdAt)
	if err != nil {
		return nil, err
	}
	follower.SharedInboxURI = sharedInboxURI.String
	follower.FollowURI = followURI.String
	follower.Accepted = accepted == 1
	follower.CreatedAt = parseTimestamp(createdAt)
	return &follower, nil
}

func scanFollowing(row rowScanner) (*domain.Following, error) {
	var following domain.Following
	var handle sql.NullString
	var accepted int
	var createdAt string

	err := row.Scan(&following.Id, &following.AccountId, &following.ActorURI, &handle,
		&following.InboxURI, &following.FollowURI, &accepted, &createdAt)
	if err != nil {
		return nil, err
	}
	following.Handle = handle.String
	following.Accepted = accepted == 1
	following.CreatedAt = parseTimestamp(createdAt)
	return &following, nil
}

func scanDelivery(row rowScanner) (*domain.DeliveryItem, error) {
	var item domain.DeliveryItem
	var nextRetryAt, createdAt string

	err := row.Scan(&item.Id, &item.AccountId, &item.InboxURI, &item.ActivityJSON,
		&item.Attempts, &nextRetryAt, &createdAt)
	if err != nil {
		return nil, err
	}
	item.NextRetryAt = parseTimestamp(nextRetryAt)
	item.CreatedAt = parseTimestamp(createdAt)
	return &item, nil
}

// UpsertFollower writes a follower edge. A repeated Follow from the same
// actor refreshes the inbox endpoints and the follow URI.
func (db *DB) UpsertFollower(follower *domain.Follower) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertFollower,
			follower.Id.String(), follower.AccountId.String(), follower.ActorURI,
			follower.InboxURI, nullString(follower.SharedInboxURI), nullString(follower.FollowURI),
			follower.Accepted, formatTimestamp(follower.CreatedAt))
		return err
	})
}

// ReadFollower reads the follower edge from one actor to one local
// account.
func (db *DB) ReadFollower(accountId uuid.UUID, actorURI string) (error, *domain.Follower) {
	follower, err := scanFollower(db.db.QueryRow(sqlSelectFollower, accountId.String(), actorURI))
	if err != nil {
		return err, nil
	}
	return nil, follower
}

// ReadFollowersByAccountId lists the accepted followers of an account.
func (db *DB) ReadFollowersByAccountId(accountId uuid.UUID) (error, []domain.Follower) {
	return db.queryFollowers(sqlSelectFollowersByAccount, accountId.String())
}

// ReadPendingFollowersByAccountId lists follow requests awaiting manual
// approval.
func (db *DB) ReadPendingFollowersByAccountId(accountId uuid.UUID) (error, []domain.Follower) {
	return db.queryFollowers(sqlSelectPendingFollowers, accountId.String())
}

func (db *DB) queryFollowers(query string, args ...any) (error, []domain.Follower) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		log.Printf("Error reading followers: %v", err)
		return err, nil
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		follower, err := scanFollower(rows)
		if err != nil {
			return err, nil
		}
		followers = append(followers, *follower)
	}
	return rows.Err(), followers
}

// UpdateFollowerAccepted flips the accepted flag on a follower edge.
func (db *DB) UpdateFollowerAccepted(accountId uuid.UUID, actorURI string, accepted bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowerAccepted, accepted, accountId.String(), actorURI)
		return err
	})
}

// DeleteFollower removes a follower edge.
func (db *DB) DeleteFollower(accountId uuid.UUID, actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollower, accountId.String(), actorURI)
		return err
	})
}

// CountFollowers counts the accepted followers of an account.
func (db *DB) CountFollowers(accountId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountFollowers, accountId.String()).Scan(&count)
	if err != nil {
		log.Printf("Error counting followers: %v", err)
		return 0, err
	}
	return count, nil
}

// UpsertFollowing records an outbound follow. A refollow of the same
// actor replaces the follow URI and accepted state, so a remote
// refollow starts out pending again while local follows stay accepted.
func (db *DB) UpsertFollowing(following *domain.Following) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertFollowing,
			following.Id.String(), following.AccountId.String(), following.ActorURI,
			nullString(following.Handle), following.InboxURI, following.FollowURI,
			following.Accepted, formatTimestamp(following.CreatedAt))
		return err
	})
}

// ReadFollowingByFollowURI resolves the Follow activity id inside an
// inbound Accept or Reject to its following edge.
func (db *DB) ReadFollowingByFollowURI(followURI string) (error, *domain.Following) {
	following, err := scanFollowing(db.db.QueryRow(sqlSelectFollowingByFollowURI, followURI))
	if err != nil {
		return err, nil
	}
	return nil, following
}

// ReadFollowing reads the following edge from one local account to one
// actor.
func (db *DB) ReadFollowing(accountId uuid.UUID, actorURI string) (error, *domain.Following) {
	following, err := scanFollowing(db.db.QueryRow(sqlSelectFollowing, accountId.String(), actorURI))
	if err != nil {
		return err, nil
	}
	return nil, following
}

// ReadFollowingByAccountId lists everyone an account follows, accepted or
// not.
func (db *DB) ReadFollowingByAccountId(accountId uuid.UUID) (error, []domain.Following) {
	rows, err := db.db.Query(sqlSelectFollowingByAccount, accountId.String())
	if err != nil {
		log.Printf("Error reading following: %v", err)
		return err, nil
	}
	defer rows.Close()

	var following []domain.Following
	for rows.Next() {
		f, err := scanFollowing(rows)
		if err != nil {
			return err, nil
		}
		following = append(following, *f)
	}
	return rows.Err(), following
}

// UpdateFollowingAccepted flips the accepted flag on the following edge
// identified by its Follow activity URI.
func (db *DB) UpdateFollowingAccepted(followURI string, accepted bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowingAccepted, accepted, followURI)
		return err
	})
}

// DeleteFollowing removes an outbound follow edge.
func (db *DB) DeleteFollowing(accountId uuid.UUID, actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowing, accountId.String(), actorURI)
		return err
	})
}

// CountFollowing counts the accepted outbound follows of an account.
func (db *DB) CountFollowing(accountId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountFollowing, accountId.String()).Scan(&count)
	if err != nil {
		log.Printf("Error counting following: %v", err)
		return 0, err
	}
	return count, nil
}

// MarkActivityProcessed records an inbound activity URI for replay
// suppression. Marking the same URI twice is a no-op.
func (db *DB) MarkActivityProcessed(activityURI string, expiresAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertProcessedActivity,
			uuid.New().String(), activityURI, formatTimestamp(time.Now()), formatTimestamp(expiresAt))
		return err
	})
}

// HasProcessedActivity reports whether an activity URI was already
// handled.
func (db *DB) HasProcessedActivity(activityURI string) (bool, error) {
	var count int
	err := db.db.QueryRow(sqlSelectProcessedActivity, activityURI).Scan(&count)
	if err != nil {
		log.Printf("Error checking processed activity: %v", err)
		return false, err
	}
	return count > 0, nil
}

// DeleteExpiredProcessedActivities garbage collects replay records past
// their TTL and returns the number removed.
func (db *DB) DeleteExpiredProcessedActivities(now time.Time) (int64, error) {
	result, err := db.db.Exec(sqlDeleteExpiredProcessed, formatTimestamp(now))
	if err != nil {
		log.Printf("Error deleting expired processed activities: %v", err)
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// CountProcessedActivities counts replay suppression records.
func (db *DB) CountProcessedActivities() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountProcessedActivities).Scan(&count)
	if err != nil {
		log.Printf("Error counting processed activities: %v", err)
		return 0, err
	}
	return count, nil
}

// EnqueueDelivery persists one pending inbox POST.
func (db *DB) EnqueueDelivery(item *domain.DeliveryItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDelivery,
			item.Id.String(), item.AccountId.String(), item.InboxURI, item.ActivityJSON,
			formatTimestamp(item.NextRetryAt), formatTimestamp(item.CreatedAt))
		return err
	})
}

// ReadPendingDeliveries returns queue items due at or before now, oldest
// first.
func (db *DB) ReadPendingDeliveries(now time.Time, limit int) (error, []domain.DeliveryItem) {
	return db.queryDeliveries(sqlSelectPendingDeliveries, formatTimestamp(now), limit)
}

// ReadQueuedDeliveries returns queue items regardless of due time, for
// operator inspection.
func (db *DB) ReadQueuedDeliveries(limit int) (error, []domain.DeliveryItem) {
	return db.queryDeliveries(sqlSelectQueuedDeliveries, limit)
}

func (db *DB) queryDeliveries(query string, args ...any) (error, []domain.DeliveryItem) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		log.Printf("Error reading deliveries: %v", err)
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryItem
	for rows.Next() {
		item, err := scanDelivery(rows)
		if err != nil {
			return err, nil
		}
		items = append(items, *item)
	}
	return rows.Err(), items
}

// UpdateDeliveryAttempt bumps the attempt counter and reschedules the
// item.
func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, formatTimestamp(nextRetryAt), id.String())
		return err
	})
}

// DeleteDelivery removes a queue item after success or terminal failure.
func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}

// CountQueuedDeliveries counts items waiting in the delivery queue.
func (db *DB) CountQueuedDeliveries() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountDeliveries).Scan(&count)
	if err != nil {
		log.Printf("Error counting deliveries: %v", err)
		return 0, err
	}
	return count, nil
}
