package db

import (
	"database/sql"
	"log"
)

const (
	// Local and remote users in one table. Local rows carry key material
	// and an API key; remote rows carry the cached actor descriptor.
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		display_name TEXT,
		summary TEXT,
		is_remote INTEGER DEFAULT 0,
		actor_uri TEXT UNIQUE,
		inbox_uri TEXT,
		shared_inbox_uri TEXT,
		public_key_pem TEXT,
		private_key_pem TEXT,
		api_key TEXT UNIQUE,
		ssh_key_hash TEXT UNIQUE,
		timezone TEXT,
		avatar_url TEXT,
		header_url TEXT,
		tombstoned INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_fetched_at TIMESTAMP
	)`

	sqlCreateAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_accounts_is_remote ON accounts(is_remote);
	`

	// Events table. external_id is the canonical URL of events that
	// originated remotely and stays NULL for local events, so the UNIQUE
	// constraint only binds federated rows. shared_event_id marks a row
	// as a share (Announce) of another event.
	sqlCreateEventsTable = `CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		external_id TEXT UNIQUE,
		attributed_to TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		location TEXT,
		latitude REAL,
		longitude REAL,
		timezone TEXT,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		recurrence TEXT DEFAULT '',
		recurrence_end_date TIMESTAMP,
		visibility TEXT NOT NULL DEFAULT 'PUBLIC',
		header_image_url TEXT,
		external_url TEXT,
		shared_event_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateEventsIndices = `
		CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);
		CREATE INDEX IF NOT EXISTS idx_events_account_start ON events(account_id, start_time);
		CREATE INDEX IF NOT EXISTS idx_events_updated_at ON events(updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_events_visibility ON events(visibility);
		CREATE INDEX IF NOT EXISTS idx_events_shared_event_id ON events(shared_event_id);
	`

	sqlCreateEventTagsTable = `CREATE TABLE IF NOT EXISTS event_tags (
		event_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (event_id, tag),
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
	)`

	sqlCreateEventTagsIndices = `
		CREATE INDEX IF NOT EXISTS idx_event_tags_tag ON event_tags(tag);
	`

	// Explicit recipients of PRIVATE events, the stored addressing that
	// canView checks.
	sqlCreateEventRecipientsTable = `CREATE TABLE IF NOT EXISTS event_recipients (
		event_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		PRIMARY KEY (event_id, account_id),
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
	)`

	sqlCreateEventRecipientsIndices = `
		CREATE INDEX IF NOT EXISTS idx_event_recipients_account_id ON event_recipients(account_id);
	`

	sqlCreateAttendancesTable = `CREATE TABLE IF NOT EXISTS attendances (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		external_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(event_id, account_id)
	)`

	sqlCreateAttendancesIndices = `
		CREATE INDEX IF NOT EXISTS idx_attendances_event_id ON attendances(event_id);
		CREATE INDEX IF NOT EXISTS idx_attendances_account_id ON attendances(account_id);
		CREATE INDEX IF NOT EXISTS idx_attendances_created_at ON attendances(created_at);
	`

	sqlCreateLikesTable = `CREATE TABLE IF NOT EXISTS likes (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		external_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(event_id, account_id)
	)`

	sqlCreateLikesIndices = `
		CREATE INDEX IF NOT EXISTS idx_likes_event_id ON likes(event_id);
		CREATE INDEX IF NOT EXISTS idx_likes_account_id ON likes(account_id);
		CREATE INDEX IF NOT EXISTS idx_likes_created_at ON likes(created_at);
	`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		in_reply_to_id TEXT,
		content TEXT NOT NULL,
		external_id TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCommentsIndices = `
		CREATE INDEX IF NOT EXISTS idx_comments_event_created ON comments(event_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_comments_account_id ON comments(account_id);
	`

	sqlCreateCommentMentionsTable = `CREATE TABLE IF NOT EXISTS comment_mentions (
		id TEXT NOT NULL PRIMARY KEY,
		comment_id TEXT NOT NULL,
		mentioned_account_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (comment_id) REFERENCES comments(id) ON DELETE CASCADE
	)`

	sqlCreateCommentMentionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_comment_mentions_comment_id ON comment_mentions(comment_id);
		CREATE INDEX IF NOT EXISTS idx_comment_mentions_account_id ON comment_mentions(mentioned_account_id);
	`

	// One follow edge is two rows: a follower row on the followed local
	// account and a following row on the local account that follows.
	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		follow_uri TEXT,
		accepted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, actor_uri)
	)`

	sqlCreateFollowersIndices = `
		CREATE INDEX IF NOT EXISTS idx_followers_account_id ON followers(account_id);
		CREATE INDEX IF NOT EXISTS idx_followers_actor_uri ON followers(actor_uri);
	`

	sqlCreateFollowingTable = `CREATE TABLE IF NOT EXISTS following (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		handle TEXT,
		inbox_uri TEXT NOT NULL,
		follow_uri TEXT NOT NULL,
		accepted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, actor_uri)
	)`

	sqlCreateFollowingIndices = `
		CREATE INDEX IF NOT EXISTS idx_following_account_id ON following(account_id);
		CREATE INDEX IF NOT EXISTS idx_following_follow_uri ON following(follow_uri);
	`

	// Replay suppression for inbound activities, swept past expires_at.
	sqlCreateProcessedActivitiesTable = `CREATE TABLE IF NOT EXISTS processed_activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL
	)`

	sqlCreateProcessedActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_processed_activities_expires ON processed_activities(expires_at);
	`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		actor_id TEXT,
		actor_handle TEXT,
		event_id TEXT,
		title TEXT,
		body TEXT,
		data TEXT,
		read INTEGER DEFAULT 0,
		read_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	)`

	sqlCreateNotificationsIndices = `
		CREATE INDEX IF NOT EXISTS idx_notifications_account_id ON notifications(account_id);
		CREATE INDEX IF NOT EXISTS idx_notifications_account_read ON notifications(account_id, read);
		CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at DESC);
	`

	sqlCreateRemindersTable = `CREATE TABLE IF NOT EXISTS reminders (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		remind_at TIMESTAMP NOT NULL,
		minutes_before INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemindersIndices = `
		CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, remind_at);
		CREATE INDEX IF NOT EXISTS idx_reminders_event_id ON reminders(event_id);
	`

	// Persistent delivery queue, drained by the delivery worker pool.
	sqlCreateDeliveriesTable = `CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveriesIndices = `
		CREATE INDEX IF NOT EXISTS idx_deliveries_next_retry ON deliveries(next_retry_at);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateAccountsTable, "accounts"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateEventsTable, "events"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateEventTagsTable, "event_tags"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateEventRecipientsTable, "event_recipients"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateAttendancesTable, "attendances"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateLikesTable, "likes"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateCommentsTable, "comments"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateCommentMentionsTable, "comment_mentions"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateFollowersTable, "followers"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateFollowingTable, "following"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateProcessedActivitiesTable, "processed_activities"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateNotificationsTable, "notifications"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateRemindersTable, "reminders"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateDeliveriesTable, "deliveries"); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlCreateAccountsIndices); err != nil {
			log.Printf("Warning: Failed to create accounts indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateEventsIndices); err != nil {
			log.Printf("Warning: Failed to create events indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateEventTagsIndices); err != nil {
			log.Printf("Warning: Failed to create event_tags indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateEventRecipientsIndices); err != nil {
			log.Printf("Warning: Failed to create event_recipients indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateAttendancesIndices); err != nil {
			log.Printf("Warning: Failed to create attendances indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateLikesIndices); err != nil {
			log.Printf("Warning: Failed to create likes indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateCommentsIndices); err != nil {
			log.Printf("Warning: Failed to create comments indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateCommentMentionsIndices); err != nil {
			log.Printf("Warning: Failed to create comment_mentions indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateFollowersIndices); err != nil {
			log.Printf("Warning: Failed to create followers indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateFollowingIndices); err != nil {
			log.Printf("Warning: Failed to create following indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateProcessedActivitiesIndices); err != nil {
			log.Printf("Warning: Failed to create processed_activities indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateNotificationsIndices); err != nil {
			log.Printf("Warning: Failed to create notifications indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateRemindersIndices); err != nil {
			log.Printf("Warning: Failed to create reminders indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateDeliveriesIndices); err != nil {
			log.Printf("Warning: Failed to create deliveries indices: %v", err)
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Printf("Table %s created or already exists", tableName)
	return nil
}
