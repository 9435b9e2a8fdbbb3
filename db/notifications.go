package db

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	sqlInsertNotification = `INSERT INTO notifications(id, account_id, notification_type, actor_id,
		actor_handle, event_id, title, body, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
	sqlSelectNotificationsByAccount = `SELECT id, account_id, notification_type, actor_id,
		actor_handle, event_id, title, body, data, read, read_at, created_at
		FROM notifications WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`
	sqlMarkNotificationRead = `UPDATE notifications SET read = 1, read_at = ?
		WHERE id = ? AND account_id = ? AND read = 0`
	sqlMarkAllNotificationsRead = `UPDATE notifications SET read = 1, read_at = ?
		WHERE account_id = ? AND read = 0`
	sqlCountUnreadNotifications = `SELECT COUNT(*) FROM notifications WHERE account_id = ? AND read = 0`
)

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var notification domain.Notification
	var actorId, actorHandle, eventId, title, body, data, readAt sql.NullString
	var read int
	var createdAt string

	err := row.Scan(&notification.Id, &notification.AccountId, &notification.NotificationType,
		&actorId, &actorHandle, &eventId, &title, &body, &data, &read, &readAt, &createdAt)
	if err != nil {
		return nil, err
	}

	if actorId.Valid {
		if id, err := uuid.Parse(actorId.String); err == nil {
			notification.ActorId = id
		}
	}
	notification.ActorHandle = actorHandle.String
	if eventId.Valid {
		if id, err := uuid.Parse(eventId.String); err == nil {
			notification.EventId = id
		}
	}
	notification.Title = title.String
	notification.Body = body.String
	notification.Data = data.String
	notification.Read = read == 1
	if readAt.Valid {
		t := parseTimestamp(readAt.String)
		notification.ReadAt = &t
	}
	notification.CreatedAt = parseTimestamp(createdAt)
	return &notification, nil
}

func nilUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

// CreateNotification inserts an unread notification.
func (db *DB) CreateNotification(notification *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNotification,
			notification.Id.String(), notification.AccountId.String(),
			string(notification.NotificationType), nilUUID(notification.ActorId),
			nullString(notification.ActorHandle), nilUUID(notification.EventId),
			nullString(notification.Title), nullString(notification.Body),
			nullString(notification.Data), formatTimestamp(notification.CreatedAt))
		return err
	})
}

// ReadNotificationsByAccountId lists an account's notifications newest
// first.
func (db *DB) ReadNotificationsByAccountId(accountId uuid.UUID, limit int) (error, []domain.Notification) {
	rows, err := db.db.Query(sqlSelectNotificationsByAccount, accountId.String(), limit)
	if err != nil {
		log.Printf("Error reading notifications: %v", err)
		return err, nil
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return err, nil
		}
		notifications = append(notifications, *notification)
	}
	return rows.Err(), notifications
}

// MarkNotificationRead marks one of the account's notifications read and
// reports whether a row changed.
func (db *DB) MarkNotificationRead(id, accountId uuid.UUID) (bool, error) {
	result, err := db.db.Exec(sqlMarkNotificationRead,
		formatTimestamp(time.Now()), id.String(), accountId.String())
	if err != nil {
		log.Printf("Error marking notification read: %v", err)
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkAllNotificationsRead marks every unread notification of the account
// read.
func (db *DB) MarkAllNotificationsRead(accountId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkAllNotificationsRead, formatTimestamp(time.Now()), accountId.String())
		return err
	})
}

// CountUnreadNotifications counts the account's unread notifications.
func (db *DB) CountUnreadNotifications(accountId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountUnreadNotifications, accountId.String()).Scan(&count)
	if err != nil {
		log.Printf("Error counting unread notifications: %v", err)
		return 0, err
	}
	return count, nil
}
