package db

import (
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	// A FOLLOWERS event is visible to a viewer that follows the author,
	// with the edge recorded on either side of the relationship.
	sqlListableAnon = `events.visibility = 'PUBLIC'`

	sqlListableViewer = `(
		events.visibility IN ('PUBLIC', 'UNLISTED')
		OR events.account_id = ?
		OR (events.visibility = 'FOLLOWERS' AND events.account_id IN (
			SELECT fl.account_id FROM followers fl
			WHERE fl.accepted = 1
			  AND fl.actor_uri = (SELECT actor_uri FROM accounts WHERE id = ?)
		))
		OR (events.visibility = 'FOLLOWERS' AND events.account_id IN (
			SELECT a.id FROM accounts a
			INNER JOIN following fg ON fg.actor_uri = a.actor_uri
			WHERE fg.account_id = ? AND fg.accepted = 1
		))
		OR (events.visibility = 'PRIVATE' AND events.id IN (
			SELECT er.event_id FROM event_recipients er WHERE er.account_id = ?
		))
	)`

	sqlViewerFollowsAuthor = `SELECT EXISTS (
		SELECT 1 FROM followers fl
		WHERE fl.account_id = ? AND fl.accepted = 1
		  AND fl.actor_uri = (SELECT actor_uri FROM accounts WHERE id = ?)
		UNION
		SELECT 1 FROM following fg
		WHERE fg.account_id = ? AND fg.accepted = 1
		  AND fg.actor_uri = (SELECT actor_uri FROM accounts WHERE id = ?)
	)`

	sqlIsEventRecipient = `SELECT EXISTS (
		SELECT 1 FROM event_recipients WHERE event_id = ? AND account_id = ?
	)`
)

// listableFilter returns a WHERE fragment restricting an events query to
// rows the viewer may see in listings, plus its bind args. UNLISTED rows
// pass for any authenticated viewer but not for anonymous ones.
func listableFilter(viewerId *uuid.UUID) (string, []any) {
	if viewerId == nil {
		return sqlListableAnon, nil
	}
	id := viewerId.String()
	return sqlListableViewer, []any{id, id, id, id}
}

// CanViewEvent decides whether the viewer may see the event. A nil viewer
// is an unauthenticated request.
func (db *DB) CanViewEvent(event *domain.Event, viewerId *uuid.UUID) (bool, error) {
	switch event.Visibility {
	case domain.VisibilityPublic, domain.VisibilityUnlisted:
		return true, nil
	}
	if viewerId == nil {
		return false, nil
	}
	if *viewerId == event.AccountId {
		return true, nil
	}

	switch event.Visibility {
	case domain.VisibilityFollowers:
		return db.viewerFollowsAuthor(*viewerId, event.AccountId)
	case domain.VisibilityPrivate:
		return db.isEventRecipient(event.Id, *viewerId)
	}
	return false, nil
}

func (db *DB) viewerFollowsAuthor(viewerId, authorId uuid.UUID) (bool, error) {
	var follows bool
	err := db.db.QueryRow(sqlViewerFollowsAuthor,
		authorId.String(), viewerId.String(), viewerId.String(), authorId.String()).Scan(&follows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("Error checking follow relationship: %v", err)
		return false, err
	}
	return follows, nil
}

func (db *DB) isEventRecipient(eventId, accountId uuid.UUID) (bool, error) {
	var recipient bool
	err := db.db.QueryRow(sqlIsEventRecipient, eventId.String(), accountId.String()).Scan(&recipient)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("Error checking event recipient: %v", err)
		return false, err
	}
	return recipient, nil
}
