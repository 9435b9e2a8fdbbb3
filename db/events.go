package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	sqlEventColumns = `events.id, events.account_id, events.external_id, events.attributed_to,
		events.title, events.summary, events.location, events.latitude, events.longitude,
		events.timezone, events.start_time, events.end_time, events.recurrence,
		events.recurrence_end_date, events.visibility, events.header_image_url,
		events.external_url, events.shared_event_id, events.created_at, events.updated_at`

	sqlInsertEvent = `INSERT INTO events(id, account_id, external_id, attributed_to, title, summary,
		location, latitude, longitude, timezone, start_time, end_time, recurrence,
		recurrence_end_date, visibility, header_image_url, external_url, shared_event_id,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpdateEvent = `UPDATE events SET title = ?, summary = ?, location = ?, latitude = ?,
		longitude = ?, timezone = ?, start_time = ?, end_time = ?, recurrence = ?,
		recurrence_end_date = ?, visibility = ?, header_image_url = ?, external_url = ?,
		updated_at = ? WHERE id = ?`

	sqlSelectEventById         = `SELECT ` + sqlEventColumns + ` FROM events WHERE events.id = ?`
	sqlSelectEventByExternalId = `SELECT ` + sqlEventColumns + ` FROM events WHERE events.external_id = ?`

	sqlSelectEventsInRange = `SELECT ` + sqlEventColumns + ` FROM events
		WHERE events.shared_event_id IS NULL
		  AND events.start_time <= ?
		  AND ((events.recurrence = '' AND COALESCE(events.end_time, events.start_time) >= ?)
		    OR (events.recurrence != '' AND (events.recurrence_end_date IS NULL OR events.recurrence_end_date >= ?)))
		  AND %s
		ORDER BY events.start_time ASC`

	sqlSelectEventsByAccount = `SELECT ` + sqlEventColumns + ` FROM events
		WHERE events.account_id = ? AND %s
		ORDER BY events.start_time DESC`

	sqlSelectPublicEventsByUsername = `SELECT ` + sqlEventColumns + ` FROM events
		INNER JOIN accounts a ON a.id = events.account_id
		WHERE a.username = ? AND a.is_remote = 0
		  AND events.visibility = 'PUBLIC' AND events.shared_event_id IS NULL
		ORDER BY events.created_at DESC
		LIMIT ? OFFSET ?`

	sqlCountPublicEventsByUsername = `SELECT COUNT(*) FROM events
		INNER JOIN accounts a ON a.id = events.account_id
		WHERE a.username = ? AND a.is_remote = 0
		  AND events.visibility = 'PUBLIC' AND events.shared_event_id IS NULL`

	sqlSelectUpcomingPublicEvents = `SELECT ` + sqlEventColumns + ` FROM events
		WHERE events.visibility = 'PUBLIC' AND events.shared_event_id IS NULL
		  AND (events.start_time >= ?
		    OR (events.recurrence != '' AND (events.recurrence_end_date IS NULL OR events.recurrence_end_date >= ?)))
		ORDER BY events.start_time ASC
		LIMIT ?`

	sqlSelectShareByAccountAndOriginal = `SELECT ` + sqlEventColumns + ` FROM events
		WHERE events.account_id = ? AND events.shared_event_id = ?`

	// Trending candidates per the sliding window: recently started or
	// recently touched events, no shares, with engagement counted inside
	// the same window.
	sqlSelectEngagementCandidates = `SELECT ` + sqlEventColumns + `,
		(SELECT COUNT(*) FROM likes l WHERE l.event_id = events.id AND l.created_at >= ?) AS like_count,
		(SELECT COUNT(*) FROM comments c WHERE c.event_id = events.id AND c.created_at >= ?) AS comment_count,
		(SELECT COUNT(*) FROM attendances att WHERE att.event_id = events.id AND att.created_at >= ?) AS attendance_count
		FROM events
		WHERE events.shared_event_id IS NULL
		  AND (events.start_time >= ? OR events.updated_at >= ?)
		  AND %s`

	sqlInsertEventTag       = `INSERT INTO event_tags(event_id, tag) VALUES (?, ?)`
	sqlDeleteEventTags      = `DELETE FROM event_tags WHERE event_id = ?`
	sqlSelectEventTags      = `SELECT tag FROM event_tags WHERE event_id = ? ORDER BY tag ASC`
	sqlInsertEventRecipient = `INSERT INTO event_recipients(event_id, account_id) VALUES (?, ?)`
	sqlDeleteEventRecipient = `DELETE FROM event_recipients WHERE event_id = ?`
	sqlSelectEventRecipient = `SELECT account_id FROM event_recipients WHERE event_id = ?`

	sqlDeleteEventAttendances     = `DELETE FROM attendances WHERE event_id = ?`
	sqlDeleteEventLikes           = `DELETE FROM likes WHERE event_id = ?`
	sqlDeleteEventCommentMentions = `DELETE FROM comment_mentions WHERE comment_id IN
		(SELECT id FROM comments WHERE event_id = ?)`
	sqlDeleteEventComments  = `DELETE FROM comments WHERE event_id = ?`
	sqlCancelEventReminders = `UPDATE reminders SET status = 'CANCELLED' WHERE event_id = ? AND status = 'PENDING'`
	sqlDeleteEventShares    = `DELETE FROM events WHERE shared_event_id = ?`
	sqlDeleteEvent          = `DELETE FROM events WHERE id = ?`
)

func scanEvent(row rowScanner) (*domain.Event, error) {
	var event domain.Event
	var externalId, summary, location, timezone, endTime sql.NullString
	var recurrence, recurrenceEnd, headerImageURL, externalURL, sharedEventId sql.NullString
	var latitude, longitude sql.NullFloat64
	var visibility, startTime, createdAt, updatedAt string

	err := row.Scan(&event.Id, &event.AccountId, &externalId, &event.AttributedTo, &event.Title,
		&summary, &location, &latitude, &longitude, &timezone, &startTime, &endTime, &recurrence,
		&recurrenceEnd, &visibility, &headerImageURL, &externalURL, &sharedEventId, &createdAt,
		&updatedAt)
	if err != nil {
		return nil, err
	}

	event.ExternalId = externalId.String
	event.Summary = summary.String
	event.Location = location.String
	if latitude.Valid {
		event.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		event.Longitude = &longitude.Float64
	}
	event.Timezone = timezone.String
	event.StartTime = parseTimestamp(startTime)
	if endTime.Valid {
		t := parseTimestamp(endTime.String)
		event.EndTime = &t
	}
	event.Recurrence = domain.RecurrencePattern(recurrence.String)
	if recurrenceEnd.Valid {
		t := parseTimestamp(recurrenceEnd.String)
		event.RecurrenceEndDate = &t
	}
	event.Visibility = domain.Visibility(visibility)
	event.HeaderImageURL = headerImageURL.String
	event.ExternalURL = externalURL.String
	if sharedEventId.Valid {
		id, err := uuid.Parse(sharedEventId.String)
		if err == nil {
			event.SharedEventId = &id
		}
	}
	event.CreatedAt = parseTimestamp(createdAt)
	event.UpdatedAt = parseTimestamp(updatedAt)
	return &event, nil
}

func (db *DB) loadEventTags(event *domain.Event) error {
	rows, err := db.db.Query(sqlSelectEventTags, event.Id.String())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return err
		}
		event.Tags = append(event.Tags, tag)
	}
	return rows.Err()
}

func (db *DB) queryEvents(query string, args ...any) (error, []domain.Event) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		log.Printf("Error querying events: %v", err)
		return err, nil
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			log.Printf("Error scanning event row: %v", err)
			return err, nil
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return err, nil
	}

	for i := range events {
		if err := db.loadEventTags(&events[i]); err != nil {
			log.Printf("Error loading event tags: %v", err)
			return err, nil
		}
	}
	return nil, events
}

// CreateEvent inserts an event with its tags and, for PRIVATE events, the
// explicit recipient list.
func (db *DB) CreateEvent(event *domain.Event, recipients []uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertEvent,
			event.Id.String(), event.AccountId.String(), nullString(event.ExternalId),
			event.AttributedTo, event.Title, nullString(event.Summary), nullString(event.Location),
			nullFloat(event.Latitude), nullFloat(event.Longitude), nullString(event.Timezone),
			formatTimestamp(event.StartTime), nullTime(event.EndTime), string(event.Recurrence),
			nullTime(event.RecurrenceEndDate), string(event.Visibility),
			nullString(event.HeaderImageURL), nullString(event.ExternalURL),
			nullUUID(event.SharedEventId), formatTimestamp(event.CreatedAt),
			formatTimestamp(event.UpdatedAt))
		if err != nil {
			return err
		}
		for _, tag := range event.Tags {
			if _, err := tx.Exec(sqlInsertEventTag, event.Id.String(), tag); err != nil {
				return err
			}
		}
		for _, recipient := range recipients {
			if _, err := tx.Exec(sqlInsertEventRecipient, event.Id.String(), recipient.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateEvent rewrites the mutable fields of an event and replaces its
// tags and recipient list.
func (db *DB) UpdateEvent(event *domain.Event, recipients []uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateEvent,
			event.Title, nullString(event.Summary), nullString(event.Location),
			nullFloat(event.Latitude), nullFloat(event.Longitude), nullString(event.Timezone),
			formatTimestamp(event.StartTime), nullTime(event.EndTime), string(event.Recurrence),
			nullTime(event.RecurrenceEndDate), string(event.Visibility),
			nullString(event.HeaderImageURL), nullString(event.ExternalURL),
			formatTimestamp(event.UpdatedAt), event.Id.String())
		if err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteEventTags, event.Id.String()); err != nil {
			return err
		}
		for _, tag := range event.Tags {
			if _, err := tx.Exec(sqlInsertEventTag, event.Id.String(), tag); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(sqlDeleteEventRecipient, event.Id.String()); err != nil {
			return err
		}
		for _, recipient := range recipients {
			if _, err := tx.Exec(sqlInsertEventRecipient, event.Id.String(), recipient.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteEvent removes an event together with its tags, recipients,
// attendances, likes, comments, and shares. Pending reminders for the
// event are cancelled, not deleted.
func (db *DB) DeleteEvent(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		eventId := id.String()
		for _, stmt := range []string{
			sqlDeleteEventTags,
			sqlDeleteEventRecipient,
			sqlDeleteEventAttendances,
			sqlDeleteEventLikes,
			sqlDeleteEventCommentMentions,
			sqlDeleteEventComments,
			sqlCancelEventReminders,
			sqlDeleteEventShares,
			sqlDeleteEvent,
		} {
			if _, err := tx.Exec(stmt, eventId); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadEventById reads one event with its tags.
func (db *DB) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	event, err := scanEvent(db.db.QueryRow(sqlSelectEventById, id.String()))
	if err != nil {
		return err, nil
	}
	if err := db.loadEventTags(event); err != nil {
		return err, nil
	}
	return nil, event
}

// ReadEventByExternalId reads a federated event by its canonical URL.
func (db *DB) ReadEventByExternalId(externalId string) (error, *domain.Event) {
	event, err := scanEvent(db.db.QueryRow(sqlSelectEventByExternalId, externalId))
	if err != nil {
		return err, nil
	}
	if err := db.loadEventTags(event); err != nil {
		return err, nil
	}
	return nil, event
}

// ReadEventsInRange returns the viewer-visible events with at least one
// occurrence inside [rangeStart, rangeEnd]. The SQL narrows to plausible
// candidates; recurrence expansion happens in Go.
func (db *DB) ReadEventsInRange(rangeStart, rangeEnd time.Time, viewerId *uuid.UUID) (error, []domain.Event) {
	filter, filterArgs := listableFilter(viewerId)
	query := fmt.Sprintf(sqlSelectEventsInRange, filter)
	args := append([]any{
		formatTimestamp(rangeEnd), formatTimestamp(rangeStart), formatTimestamp(rangeStart),
	}, filterArgs...)

	err, candidates := db.queryEvents(query, args...)
	if err != nil {
		return err, nil
	}

	var events []domain.Event
	for _, event := range candidates {
		if event.OccursInRange(rangeStart, rangeEnd) {
			events = append(events, event)
		}
	}
	return nil, events
}

// ReadEventsByAccountId returns the account's events visible to the
// viewer, newest start first.
func (db *DB) ReadEventsByAccountId(accountId uuid.UUID, viewerId *uuid.UUID) (error, []domain.Event) {
	filter, filterArgs := listableFilter(viewerId)
	query := fmt.Sprintf(sqlSelectEventsByAccount, filter)
	args := append([]any{accountId.String()}, filterArgs...)
	return db.queryEvents(query, args...)
}

// ReadPublicEventsByUsername pages through a local account's PUBLIC
// events for the outbox collection, newest first.
func (db *DB) ReadPublicEventsByUsername(username string, limit, offset int) (error, []domain.Event) {
	return db.queryEvents(sqlSelectPublicEventsByUsername, username, limit, offset)
}

// CountPublicEventsByUsername counts a local account's PUBLIC events.
func (db *DB) CountPublicEventsByUsername(username string) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountPublicEventsByUsername, username).Scan(&count)
	if err != nil {
		log.Printf("Error counting public events: %v", err)
		return 0, err
	}
	return count, nil
}

// ReadUpcomingPublicEvents returns PUBLIC events that may still occur at
// or after now. Recurring candidates need an occurrence check by the
// caller.
func (db *DB) ReadUpcomingPublicEvents(now time.Time, limit int) (error, []domain.Event) {
	ts := formatTimestamp(now)
	return db.queryEvents(sqlSelectUpcomingPublicEvents, ts, ts, limit)
}

// ReadShareByAccountAndOriginal finds the account's share of the given
// event, if one exists.
func (db *DB) ReadShareByAccountAndOriginal(accountId, originalId uuid.UUID) (error, *domain.Event) {
	event, err := scanEvent(db.db.QueryRow(sqlSelectShareByAccountAndOriginal,
		accountId.String(), originalId.String()))
	if err != nil {
		return err, nil
	}
	return nil, event
}

// ReadEventRecipients returns the explicit recipient account ids of a
// PRIVATE event.
func (db *DB) ReadEventRecipients(eventId uuid.UUID) (error, []uuid.UUID) {
	rows, err := db.db.Query(sqlSelectEventRecipient, eventId.String())
	if err != nil {
		log.Printf("Error reading event recipients: %v", err)
		return err, nil
	}
	defer rows.Close()

	var recipients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err, nil
		}
		recipients = append(recipients, id)
	}
	return rows.Err(), recipients
}

// ReadEngagementCandidates returns viewer-visible, non-share events that
// started or changed after the cutoff, with their like, comment, and
// attendance counts since the cutoff.
func (db *DB) ReadEngagementCandidates(viewerId *uuid.UUID, cutoff time.Time) (error, []domain.EventEngagement) {
	filter, filterArgs := listableFilter(viewerId)
	query := fmt.Sprintf(sqlSelectEngagementCandidates, filter)
	ts := formatTimestamp(cutoff)
	args := append([]any{ts, ts, ts, ts, ts}, filterArgs...)

	rows, err := db.db.Query(query, args...)
	if err != nil {
		log.Printf("Error querying engagement candidates: %v", err)
		return err, nil
	}
	defer rows.Close()

	var candidates []domain.EventEngagement
	for rows.Next() {
		var event domain.Event
		var externalId, summary, location, timezone, endTime sql.NullString
		var recurrence, recurrenceEnd, headerImageURL, externalURL, sharedEventId sql.NullString
		var latitude, longitude sql.NullFloat64
		var visibility, startTime, createdAt, updatedAt string
		var likes, comments, attendances int

		err := rows.Scan(&event.Id, &event.AccountId, &externalId, &event.AttributedTo,
			&event.Title, &summary, &location, &latitude, &longitude, &timezone, &startTime,
			&endTime, &recurrence, &recurrenceEnd, &visibility, &headerImageURL, &externalURL,
			&sharedEventId, &createdAt, &updatedAt, &likes, &comments, &attendances)
		if err != nil {
			log.Printf("Error scanning engagement row: %v", err)
			return err, nil
		}

		event.ExternalId = externalId.String
		event.Summary = summary.String
		event.Location = location.String
		if latitude.Valid {
			event.Latitude = &latitude.Float64
		}
		if longitude.Valid {
			event.Longitude = &longitude.Float64
		}
		event.Timezone = timezone.String
		event.StartTime = parseTimestamp(startTime)
		if endTime.Valid {
			t := parseTimestamp(endTime.String)
			event.EndTime = &t
		}
		event.Recurrence = domain.RecurrencePattern(recurrence.String)
		if recurrenceEnd.Valid {
			t := parseTimestamp(recurrenceEnd.String)
			event.RecurrenceEndDate = &t
		}
		event.Visibility = domain.Visibility(visibility)
		event.HeaderImageURL = headerImageURL.String
		event.ExternalURL = externalURL.String
		if sharedEventId.Valid {
			if id, err := uuid.Parse(sharedEventId.String); err == nil {
				event.SharedEventId = &id
			}
		}
		event.CreatedAt = parseTimestamp(createdAt)
		event.UpdatedAt = parseTimestamp(updatedAt)

		candidates = append(candidates, domain.EventEngagement{
			Event:       event,
			Likes:       likes,
			Comments:    comments,
			Attendances: attendances,
		})
	}
	return rows.Err(), candidates
}
