package db

import (
	"database/sql"
	"log"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	sqlUpsertAttendance = `INSERT INTO attendances(id, event_id, account_id, status, external_id,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, account_id) DO UPDATE SET
			status = excluded.status,
			external_id = excluded.external_id,
			updated_at = excluded.updated_at`
	sqlSelectAttendance = `SELECT id, event_id, account_id, status, external_id, created_at, updated_at
		FROM attendances WHERE event_id = ? AND account_id = ?`
	sqlSelectAttendancesByEvent = `SELECT id, event_id, account_id, status, external_id, created_at, updated_at
		FROM attendances WHERE event_id = ? ORDER BY created_at ASC`
	sqlDeleteAttendance             = `DELETE FROM attendances WHERE event_id = ? AND account_id = ?`
	sqlDeleteAttendanceByExternalId = `DELETE FROM attendances WHERE external_id = ?`
	sqlCountAttending               = `SELECT COUNT(*) FROM attendances WHERE event_id = ? AND status = 'attending'`

	sqlInsertLike = `INSERT INTO likes(id, event_id, account_id, external_id, created_at)
		VALUES (?, ?, ?, ?, ?)`
	sqlSelectLike = `SELECT id, event_id, account_id, external_id, created_at
		FROM likes WHERE event_id = ? AND account_id = ?`
	sqlDeleteLike             = `DELETE FROM likes WHERE event_id = ? AND account_id = ?`
	sqlDeleteLikeByExternalId = `DELETE FROM likes WHERE external_id = ?`
	sqlCountLikes             = `SELECT COUNT(*) FROM likes WHERE event_id = ?`

	sqlInsertComment = `INSERT INTO comments(id, event_id, account_id, in_reply_to_id, content,
		external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectCommentById = `SELECT id, event_id, account_id, in_reply_to_id, content, external_id, created_at
		FROM comments WHERE id = ?`
	sqlSelectCommentByExternalId = `SELECT id, event_id, account_id, in_reply_to_id, content, external_id, created_at
		FROM comments WHERE external_id = ?`
	sqlSelectCommentsByEvent = `SELECT id, event_id, account_id, in_reply_to_id, content, external_id, created_at
		FROM comments WHERE event_id = ? ORDER BY created_at ASC`
	sqlCountComments = `SELECT COUNT(*) FROM comments WHERE event_id = ?`
	sqlDeleteComment = `DELETE FROM comments WHERE id = ?`

	sqlInsertCommentMention = `INSERT INTO comment_mentions(id, comment_id, mentioned_account_id, created_at)
		VALUES (?, ?, ?, ?)`
	sqlSelectMentionsByComment = `SELECT id, comment_id, mentioned_account_id, created_at
		FROM comment_mentions WHERE comment_id = ?`
	sqlDeleteMentionsByComment = `DELETE FROM comment_mentions WHERE comment_id = ?`
)

func scanAttendance(row rowScanner) (*domain.Attendance, error) {
	var attendance domain.Attendance
	var status string
	var externalId sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&attendance.Id, &attendance.EventId, &attendance.AccountId, &status,
		&externalId, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	attendance.Status = domain.AttendanceStatus(status)
	attendance.ExternalId = externalId.String
	attendance.CreatedAt = parseTimestamp(createdAt)
	attendance.UpdatedAt = parseTimestamp(updatedAt)
	return &attendance, nil
}

func scanLike(row rowScanner) (*domain.Like, error) {
	var like domain.Like
	var externalId sql.NullString
	var createdAt string

	err := row.Scan(&like.Id, &like.EventId, &like.AccountId, &externalId, &createdAt)
	if err != nil {
		return nil, err
	}
	like.ExternalId = externalId.String
	like.CreatedAt = parseTimestamp(createdAt)
	return &like, nil
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	var comment domain.Comment
	var inReplyToId, externalId sql.NullString
	var createdAt string

	err := row.Scan(&comment.Id, &comment.EventId, &comment.AccountId, &inReplyToId,
		&comment.Content, &externalId, &createdAt)
	if err != nil {
		return nil, err
	}
	if inReplyToId.Valid {
		if id, err := uuid.Parse(inReplyToId.String); err == nil {
			comment.InReplyToId = &id
		}
	}
	comment.ExternalId = externalId.String
	comment.CreatedAt = parseTimestamp(createdAt)
	return &comment, nil
}

// UpsertAttendance writes an RSVP, replacing any earlier response by the
// same account on the same event.
func (db *DB) UpsertAttendance(attendance *domain.Attendance) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertAttendance,
			attendance.Id.String(), attendance.EventId.String(), attendance.AccountId.String(),
			string(attendance.Status), nullString(attendance.ExternalId),
			formatTimestamp(attendance.CreatedAt), formatTimestamp(attendance.UpdatedAt))
		return err
	})
}

// ReadAttendance reads one account's RSVP on one event.
func (db *DB) ReadAttendance(eventId, accountId uuid.UUID) (error, *domain.Attendance) {
	attendance, err := scanAttendance(db.db.QueryRow(sqlSelectAttendance, eventId.String(), accountId.String()))
	if err != nil {
		return err, nil
	}
	return nil, attendance
}

// ReadAttendancesByEventId lists all RSVPs on an event.
func (db *DB) ReadAttendancesByEventId(eventId uuid.UUID) (error, []domain.Attendance) {
	rows, err := db.db.Query(sqlSelectAttendancesByEvent, eventId.String())
	if err != nil {
		log.Printf("Error reading attendances: %v", err)
		return err, nil
	}
	defer rows.Close()

	var attendances []domain.Attendance
	for rows.Next() {
		attendance, err := scanAttendance(rows)
		if err != nil {
			return err, nil
		}
		attendances = append(attendances, *attendance)
	}
	return rows.Err(), attendances
}

// DeleteAttendance removes an account's RSVP from an event. Reports
// whether a row was removed.
func (db *DB) DeleteAttendance(eventId, accountId uuid.UUID) (bool, error) {
	var deleted bool
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteAttendance, eventId.String(), accountId.String())
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		deleted = affected > 0
		return err
	})
	return deleted, err
}

// DeleteAttendanceByExternalId removes an RSVP by the URI of the remote
// activity that created it. Reports whether a row was removed.
func (db *DB) DeleteAttendanceByExternalId(externalId string) (bool, error) {
	var deleted bool
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteAttendanceByExternalId, externalId)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		deleted = affected > 0
		return err
	})
	return deleted, err
}

// CountAttending counts confirmed attendees of an event.
func (db *DB) CountAttending(eventId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountAttending, eventId.String()).Scan(&count)
	if err != nil {
		log.Printf("Error counting attendances: %v", err)
		return 0, err
	}
	return count, nil
}

// CreateLike inserts a like. The UNIQUE(event_id, account_id) constraint
// rejects duplicates; callers decide whether that is an error.
func (db *DB) CreateLike(like *domain.Like) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertLike,
			like.Id.String(), like.EventId.String(), like.AccountId.String(),
			nullString(like.ExternalId), formatTimestamp(like.CreatedAt))
		return err
	})
}

// ReadLike reads one account's like on one event.
func (db *DB) ReadLike(eventId, accountId uuid.UUID) (error, *domain.Like) {
	like, err := scanLike(db.db.QueryRow(sqlSelectLike, eventId.String(), accountId.String()))
	if err != nil {
		return err, nil
	}
	return nil, like
}

// DeleteLike removes an account's like from an event. Reports whether a
// row was removed.
func (db *DB) DeleteLike(eventId, accountId uuid.UUID) (bool, error) {
	var deleted bool
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteLike, eventId.String(), accountId.String())
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		deleted = affected > 0
		return err
	})
	return deleted, err
}

// DeleteLikeByExternalId removes a like by the URI of the remote Like
// activity. Reports whether a row was removed.
func (db *DB) DeleteLikeByExternalId(externalId string) (bool, error) {
	var deleted bool
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteLikeByExternalId, externalId)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		deleted = affected > 0
		return err
	})
	return deleted, err
}

// CountLikesByEventId counts likes on an event.
func (db *DB) CountLikesByEventId(eventId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountLikes, eventId.String()).Scan(&count)
	if err != nil {
		log.Printf("Error counting likes: %v", err)
		return 0, err
	}
	return count, nil
}

// CreateComment inserts a comment together with its resolved mention rows.
func (db *DB) CreateComment(comment *domain.Comment, mentions []domain.CommentMention) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertComment,
			comment.Id.String(), comment.EventId.String(), comment.AccountId.String(),
			nullUUID(comment.InReplyToId), comment.Content, nullString(comment.ExternalId),
			formatTimestamp(comment.CreatedAt))
		if err != nil {
			return err
		}
		for _, mention := range mentions {
			_, err := tx.Exec(sqlInsertCommentMention,
				mention.Id.String(), mention.CommentId.String(),
				mention.MentionedAccountId.String(), formatTimestamp(mention.CreatedAt))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadCommentById reads one comment.
func (db *DB) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	comment, err := scanComment(db.db.QueryRow(sqlSelectCommentById, id.String()))
	if err != nil {
		return err, nil
	}
	return nil, comment
}

// ReadCommentByExternalId reads a federated comment by its canonical URL.
func (db *DB) ReadCommentByExternalId(externalId string) (error, *domain.Comment) {
	comment, err := scanComment(db.db.QueryRow(sqlSelectCommentByExternalId, externalId))
	if err != nil {
		return err, nil
	}
	return nil, comment
}

// ReadCommentsByEventId lists an event's comments oldest first.
func (db *DB) ReadCommentsByEventId(eventId uuid.UUID) (error, []domain.Comment) {
	rows, err := db.db.Query(sqlSelectCommentsByEvent, eventId.String())
	if err != nil {
		log.Printf("Error reading comments: %v", err)
		return err, nil
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return err, nil
		}
		comments = append(comments, *comment)
	}
	return rows.Err(), comments
}

// CountCommentsByEventId counts comments on an event.
func (db *DB) CountCommentsByEventId(eventId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountComments, eventId.String()).Scan(&count)
	if err != nil {
		log.Printf("Error counting comments: %v", err)
		return 0, err
	}
	return count, nil
}

// DeleteComment removes a comment and its mention rows.
func (db *DB) DeleteComment(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteMentionsByComment, id.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeleteComment, id.String())
		return err
	})
}

// ReadMentionsByCommentId lists the mention rows of a comment.
func (db *DB) ReadMentionsByCommentId(commentId uuid.UUID) (error, []domain.CommentMention) {
	rows, err := db.db.Query(sqlSelectMentionsByComment, commentId.String())
	if err != nil {
		log.Printf("Error reading comment mentions: %v", err)
		return err, nil
	}
	defer rows.Close()

	var mentions []domain.CommentMention
	for rows.Next() {
		var mention domain.CommentMention
		var createdAt string
		if err := rows.Scan(&mention.Id, &mention.CommentId, &mention.MentionedAccountId, &createdAt); err != nil {
			return err, nil
		}
		mention.CreatedAt = parseTimestamp(createdAt)
		mentions = append(mentions, mention)
	}
	return rows.Err(), mentions
}
