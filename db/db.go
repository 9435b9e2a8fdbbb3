package db

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB wraps the sql connection pool. All query methods hang off it so the
// rest of the app can depend on a narrow interface instead of the pool.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path, tunes the
// connection pool and journal mode, and runs migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		log.Printf("Error opening database: %v", err)
		return nil, err
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{db: sqlDB}

	// WAL2 needs a patched sqlite; fall back to plain WAL elsewhere.
	var journalMode string
	err = sqlDB.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
	if err != nil || !strings.EqualFold(journalMode, "wal2") {
		if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			log.Printf("Warning: Failed to set journal mode: %v", err)
		}
	}
	log.Printf("Database journal mode: %s", journalMode)

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA auto_vacuum=INCREMENTAL",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			log.Printf("Warning: Failed to set %s: %v", pragma, err)
		}
	}

	if err := db.RunMigrations(); err != nil {
		log.Printf("Error running migrations: %v", err)
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs f inside a transaction, retrying while the
// database is locked by another writer.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %v", err)
		return err
	}
	defer tx.Rollback()

	for {
		err = f(tx)
		if err == nil {
			break
		}
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlitelib.SQLITE_BUSY {
			continue
		}
		log.Printf("error in transaction: %v", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		log.Printf("error committing transaction: %v", err)
		return err
	}
	return nil
}

// parseTimestamp normalizes the timestamp formats sqlite hands back and
// parses them in local time.
func parseTimestamp(ts string) time.Time {
	ts = strings.TrimSuffix(ts, "Z")
	ts = strings.Replace(ts, "T", " ", 1)
	if idx := strings.Index(ts, "."); idx != -1 {
		ts = ts[:idx]
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", ts, time.Local)
	if err != nil {
		log.Printf("Warning: Failed to parse timestamp %q: %v", ts, err)
		return time.Time{}
	}
	return t
}

// formatTimestamp renders a time the way all timestamp columns store it.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

const (
	sqlCountLocalAccounts = `SELECT COUNT(*) FROM accounts WHERE is_remote = 0 AND tombstoned = 0`
	sqlCountLocalEvents   = `SELECT COUNT(*) FROM events e INNER JOIN accounts a ON a.id = e.account_id
		WHERE a.is_remote = 0 AND e.shared_event_id IS NULL`
	sqlCountLocalComments = `SELECT COUNT(*) FROM comments c INNER JOIN accounts a ON a.id = c.account_id
		WHERE a.is_remote = 0`
	sqlCountActiveAccountsSince = `SELECT COUNT(DISTINCT activity.account_id) FROM (
		SELECT account_id, created_at FROM events
		UNION ALL
		SELECT account_id, created_at FROM comments
	) activity
	INNER JOIN accounts a ON a.id = activity.account_id
	WHERE a.is_remote = 0 AND activity.created_at >= ?`
)

// CountLocalAccounts returns the number of local, non-deleted accounts.
func (db *DB) CountLocalAccounts() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountLocalAccounts).Scan(&count)
	if err != nil {
		log.Printf("Error counting local accounts: %v", err)
		return 0, err
	}
	return count, nil
}

// CountLocalEvents returns the number of events authored locally,
// excluding shares.
func (db *DB) CountLocalEvents() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountLocalEvents).Scan(&count)
	if err != nil {
		log.Printf("Error counting local events: %v", err)
		return 0, err
	}
	return count, nil
}

// CountLocalComments returns the number of comments authored locally.
func (db *DB) CountLocalComments() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountLocalComments).Scan(&count)
	if err != nil {
		log.Printf("Error counting local comments: %v", err)
		return 0, err
	}
	return count, nil
}

// CountActiveAccountsSince counts local accounts that created an event
// or comment after the cutoff. Feeds the nodeinfo usage block.
func (db *DB) CountActiveAccountsSince(cutoff time.Time) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountActiveAccountsSince, formatTimestamp(cutoff)).Scan(&count)
	if err != nil {
		log.Printf("Error counting active accounts: %v", err)
		return 0, err
	}
	return count, nil
}
