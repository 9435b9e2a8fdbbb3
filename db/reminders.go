package db

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	sqlInsertReminder = `INSERT INTO reminders(id, account_id, event_id, remind_at, minutes_before,
		status, created_at)
		VALUES (?, ?, ?, ?, ?, 'PENDING', ?)`
	sqlSelectDueReminders = `SELECT id, account_id, event_id, remind_at, minutes_before, status, created_at
		FROM reminders WHERE status = 'PENDING' AND remind_at <= ? ORDER BY remind_at ASC LIMIT ?`
	sqlSelectRemindersByAccount = `SELECT id, account_id, event_id, remind_at, minutes_before, status, created_at
		FROM reminders WHERE account_id = ? AND status = 'PENDING' ORDER BY remind_at ASC`
	sqlSelectPendingReminder = `SELECT id, account_id, event_id, remind_at, minutes_before, status, created_at
		FROM reminders WHERE account_id = ? AND event_id = ? AND status = 'PENDING'`
	sqlClaimReminder  = `UPDATE reminders SET status = 'SENT' WHERE id = ? AND status = 'PENDING'`
	sqlCancelReminder = `UPDATE reminders SET status = 'CANCELLED' WHERE id = ? AND account_id = ? AND status = 'PENDING'`
)

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var reminder domain.Reminder
	var status, remindAt, createdAt string

	err := row.Scan(&reminder.Id, &reminder.AccountId, &reminder.EventId, &remindAt,
		&reminder.MinutesBefore, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	reminder.RemindAt = parseTimestamp(remindAt)
	reminder.Status = domain.ReminderStatus(status)
	reminder.CreatedAt = parseTimestamp(createdAt)
	return &reminder, nil
}

// CreateReminder inserts a pending reminder.
func (db *DB) CreateReminder(reminder *domain.Reminder) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReminder,
			reminder.Id.String(), reminder.AccountId.String(), reminder.EventId.String(),
			formatTimestamp(reminder.RemindAt), reminder.MinutesBefore,
			formatTimestamp(reminder.CreatedAt))
		return err
	})
}

// ReadDueReminders returns pending reminders due at or before now.
func (db *DB) ReadDueReminders(now time.Time, limit int) (error, []domain.Reminder) {
	rows, err := db.db.Query(sqlSelectDueReminders, formatTimestamp(now), limit)
	if err != nil {
		log.Printf("Error reading due reminders: %v", err)
		return err, nil
	}
	defer rows.Close()

	var reminders []domain.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return err, nil
		}
		reminders = append(reminders, *reminder)
	}
	return rows.Err(), reminders
}

// ReadPendingRemindersByAccountId lists an account's pending reminders
// soonest first.
func (db *DB) ReadPendingRemindersByAccountId(accountId uuid.UUID) (error, []domain.Reminder) {
	rows, err := db.db.Query(sqlSelectRemindersByAccount, accountId.String())
	if err != nil {
		log.Printf("Error reading reminders: %v", err)
		return err, nil
	}
	defer rows.Close()

	var reminders []domain.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return err, nil
		}
		reminders = append(reminders, *reminder)
	}
	return rows.Err(), reminders
}

// ReadPendingReminder reads the account's pending reminder on one event,
// if any.
func (db *DB) ReadPendingReminder(accountId, eventId uuid.UUID) (error, *domain.Reminder) {
	reminder, err := scanReminder(db.db.QueryRow(sqlSelectPendingReminder,
		accountId.String(), eventId.String()))
	if err != nil {
		return err, nil
	}
	return nil, reminder
}

// ClaimReminder transitions a reminder PENDING to SENT and reports
// whether this caller won the claim. Concurrent schedulers cannot both
// win because the guard is part of the update.
func (db *DB) ClaimReminder(id uuid.UUID) (bool, error) {
	result, err := db.db.Exec(sqlClaimReminder, id.String())
	if err != nil {
		log.Printf("Error claiming reminder: %v", err)
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CancelReminder transitions the account's reminder PENDING to CANCELLED
// and reports whether a row changed.
func (db *DB) CancelReminder(id, accountId uuid.UUID) (bool, error) {
	result, err := db.db.Exec(sqlCancelReminder, id.String(), accountId.String())
	if err != nil {
		log.Printf("Error cancelling reminder: %v", err)
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
