package activitypub

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

// maxBodySize caps inbox request bodies (and fetched documents) at 1MB.
const maxBodySize = 1 * 1024 * 1024

// InboxDeps holds dependencies for inbox handlers (for testing)
type InboxDeps struct {
	Database    Database
	HTTPClient  HTTPClient
	Broadcaster Broadcaster
}

// NewInboxDeps builds production dependencies around an open database
// handle.
func NewInboxDeps(database *db.DB, broadcaster Broadcaster) *InboxDeps {
	return &InboxDeps{
		Database:    NewDBWrapper(database),
		HTTPClient:  defaultHTTPClient,
		Broadcaster: broadcaster,
	}
}

// HandleInboxWithDeps processes an activity POSTed to one actor's inbox.
// Apart from the 404 on unknown users, per-actor and shared inboxes
// behave identically: the target of an activity is derived from the
// activity itself, not from the URL it arrived on.
func HandleInboxWithDeps(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig, deps *InboxDeps) {
	err, account := deps.Database.ReadLocalAccountByUsername(username)
	if err != nil || account == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	handleInboxRequest(w, r, conf, deps)
}

// HandleSharedInboxWithDeps processes an activity POSTed to the
// instance-wide shared inbox.
func HandleSharedInboxWithDeps(w http.ResponseWriter, r *http.Request, conf *util.AppConfig, deps *InboxDeps) {
	handleInboxRequest(w, r, conf, deps)
}

func handleInboxRequest(w http.ResponseWriter, r *http.Request, conf *util.AppConfig, deps *InboxDeps) {
	if r.Header.Get("Signature") == "" {
		log.Printf("Inbox: Missing HTTP signature")
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == maxBodySize {
		log.Printf("Inbox: Request body too large")
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}

	activity, err := ParseActivity(body)
	if err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	// The signature is checked against the claimed actor's key, so an
	// activity signed by anyone else fails verification below.
	remoteActor, err := GetOrFetchActor(activity.Actor, deps.HTTPClient, deps.Database)
	if err != nil {
		log.Printf("Inbox: Failed to fetch actor %s: %v", activity.Actor, err)
		http.Error(w, "Failed to verify actor", http.StatusUnauthorized)
		return
	}
	if remoteActor.Tombstoned {
		log.Printf("Inbox: Rejecting activity from tombstoned actor %s", activity.Actor)
		http.Error(w, "Actor is gone", http.StatusUnauthorized)
		return
	}

	// Restore body for signature verification (body was consumed during read)
	r.Body = io.NopCloser(bytes.NewReader(body))

	if _, err := VerifyRequest(r, remoteActor.PublicKeyPem); err != nil {
		log.Printf("Inbox: Signature verification failed: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	// Replay: an activity id we have already handled is acknowledged
	// without side effects.
	if activity.ID != "" {
		processed, err := deps.Database.HasProcessedActivity(activity.ID)
		if err != nil {
			log.Printf("Inbox: Failed to check processed activities: %v", err)
		}
		if processed {
			log.Printf("Inbox: Activity %s already processed, returning success", activity.ID)
			w.WriteHeader(http.StatusAccepted)
			return
		}
	}

	// Processing failures after authentication are our problem, not the
	// sender's: log them, mark the activity handled, acknowledge.
	if err := processActivity(activity, remoteActor, conf, deps); err != nil {
		log.Printf("Inbox: Failed to handle %s from %s: %v", activity.Type, activity.Actor, err)
	}

	if activity.ID != "" {
		ttlDays := conf.Conf.ProcessedActivityTtlDays
		if ttlDays <= 0 {
			ttlDays = 30
		}
		if err := deps.Database.MarkActivityProcessed(activity.ID, time.Now().AddDate(0, 0, ttlDays)); err != nil {
			log.Printf("Inbox: Failed to mark activity processed: %v", err)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// processActivity dispatches one verified activity to its handler.
func processActivity(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	switch activity.Type {
	case "Follow":
		return handleFollow(activity, actor, conf, deps)
	case "Accept":
		return handleAccept(activity, actor, conf, deps)
	case "TentativeAccept":
		return handleTentativeAccept(activity, actor, conf, deps)
	case "Reject":
		return handleReject(activity, actor, conf, deps)
	case "Create":
		return handleCreate(activity, actor, conf, deps)
	case "Update":
		return handleUpdate(activity, actor, deps)
	case "Delete":
		return handleDelete(activity, actor, conf, deps)
	case "Like":
		return handleLike(activity, actor, conf, deps)
	case "Announce":
		return handleAnnounce(activity, actor, conf, deps)
	case "Undo":
		return handleUndo(activity, actor, conf, deps)
	default:
		log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
		return nil
	}
}

// localAccountFromActorURI resolves one of our own /users/ URLs to the
// local account.
func localAccountFromActorURI(uri string, conf *util.AppConfig, database Database) (*domain.Account, error) {
	prefix := conf.BaseURL() + "/users/"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("%s is not a local actor", uri)
	}
	username := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 2)[0]
	err, account := database.ReadLocalAccountByUsername(username)
	if err != nil || account == nil {
		return nil, fmt.Errorf("no local account %q", username)
	}
	return account, nil
}

// resolveEventByURI finds an event by our local URL or by external id.
func resolveEventByURI(uri string, conf *util.AppConfig, database Database) *domain.Event {
	if id, ok := LocalEventId(uri, conf); ok {
		err, event := database.ReadEventById(id)
		if err != nil {
			return nil
		}
		return event
	}
	err, event := database.ReadEventByExternalId(uri)
	if err != nil {
		return nil
	}
	return event
}

// resolveCommentByURI finds a comment by our local URL or external id.
func resolveCommentByURI(uri string, conf *util.AppConfig, database Database) *domain.Comment {
	if id, ok := LocalCommentId(uri, conf); ok {
		err, comment := database.ReadCommentById(id)
		if err != nil {
			return nil
		}
		return comment
	}
	err, comment := database.ReadCommentByExternalId(uri)
	if err != nil {
		return nil
	}
	return comment
}

func broadcast(deps *InboxDeps, msg domain.BroadcastMessage) {
	if deps.Broadcaster != nil {
		deps.Broadcaster.Broadcast(msg)
	}
}

// notify stores a notification and pushes it to the owner's streams.
func notify(deps *InboxDeps, n *domain.Notification) {
	if err := deps.Database.CreateNotification(n); err != nil {
		log.Printf("Inbox: Failed to store notification: %v", err)
		return
	}
	broadcast(deps, domain.BroadcastMessage{
		Type:            domain.BroadcastNotificationCreated,
		TargetAccountId: n.AccountId,
		Data:            map[string]any{"id": n.Id, "type": n.NotificationType, "actor": n.ActorHandle, "title": n.Title},
	})
}

// notifyEventAuthor notifies the local author of an event about an
// interaction, skipping remote authors and self-interactions.
func notifyEventAuthor(deps *InboxDeps, event *domain.Event, actor *domain.Account, typ domain.NotificationType) {
	err, author := deps.Database.ReadAccountById(event.AccountId)
	if err != nil || author == nil || author.IsRemote || author.Id == actor.Id {
		return
	}
	notify(deps, &domain.Notification{
		Id:               uuid.New(),
		AccountId:        author.Id,
		NotificationType: typ,
		ActorId:          actor.Id,
		ActorHandle:      actor.Handle(),
		EventId:          event.Id,
		Title:            event.Title,
		CreatedAt:        time.Now(),
	})
}

// handleFollow records a new follower and, unless the instance wants
// manual approval, queues the Accept straight back.
func handleFollow(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	target, err := localAccountFromActorURI(activity.ObjectURI(), conf, deps.Database)
	if err != nil {
		return fmt.Errorf("follow target: %w", err)
	}

	accepted := conf.AutoAcceptFollowers()
	follower := &domain.Follower{
		Id:             uuid.New(),
		AccountId:      target.Id,
		ActorURI:       actor.ActorURI,
		InboxURI:       actor.InboxURI,
		SharedInboxURI: actor.SharedInboxURI,
		FollowURI:      activity.ID,
		Accepted:       accepted,
		CreatedAt:      time.Now(),
	}
	if err := deps.Database.UpsertFollower(follower); err != nil {
		return fmt.Errorf("failed to store follower: %w", err)
	}

	if accepted {
		accept := NewAcceptFollow(target, follower, conf)
		if err := QueueToInbox(accept, target, actor.InboxURI, deps.Database); err != nil {
			log.Printf("Inbox: Failed to queue Accept for %s: %v", actor.ActorURI, err)
		}
	}

	notify(deps, &domain.Notification{
		Id:               uuid.New(),
		AccountId:        target.Id,
		NotificationType: domain.NotificationFollow,
		ActorId:          actor.Id,
		ActorHandle:      actor.Handle(),
		CreatedAt:        time.Now(),
	})

	log.Printf("Inbox: %s followed %s (accepted: %v)", actor.Username, target.Username, accepted)
	return nil
}

// handleAccept resolves the two meanings of Accept: confirmation of a
// Follow we sent, or an attending RSVP on one of our events.
func handleAccept(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	obj := activity.Object
	if obj == nil {
		return fmt.Errorf("Accept missing object")
	}

	if obj.Activity != nil && obj.Activity.Type == "Follow" {
		return acceptFollowURI(obj.Activity.ID, actor, deps)
	}
	if eventId, ok := LocalEventId(obj.ID(), conf); ok {
		return recordRSVP(eventId, actor, domain.AttendanceAttending, activity.ID, deps)
	}
	return acceptFollowURI(obj.ID(), actor, deps)
}

func acceptFollowURI(followURI string, actor *domain.Account, deps *InboxDeps) error {
	if followURI == "" {
		return fmt.Errorf("Accept carries no follow id")
	}
	err, following := deps.Database.ReadFollowingByFollowURI(followURI)
	if err != nil || following == nil {
		log.Printf("Inbox: Accept for unknown follow %s, ignoring", followURI)
		return nil
	}
	if following.ActorURI != actor.ActorURI {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot accept a follow of %s", actor.ActorURI, following.ActorURI))
	}
	if err := deps.Database.UpdateFollowingAccepted(followURI, true); err != nil {
		return fmt.Errorf("failed to mark follow accepted: %w", err)
	}
	log.Printf("Inbox: Follow %s was accepted by %s", followURI, actor.ActorURI)
	return nil
}

// handleTentativeAccept records a maybe RSVP.
func handleTentativeAccept(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	eventId, ok := LocalEventId(activity.ObjectURI(), conf)
	if !ok {
		log.Printf("Inbox: TentativeAccept of %s is not one of our events, ignoring", activity.ObjectURI())
		return nil
	}
	return recordRSVP(eventId, actor, domain.AttendanceMaybe, activity.ID, deps)
}

/// handleReject resolves the two meanings of Reject: a declined Follow
// we sent, or a not-attending RSVP.
func handleReject(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	obj := activity.Object
	if obj == nil {
		return fmt.Errorf("Reject missing object")
	}

	if obj.Activity != nil && obj.Activity.Type == "Follow" {
		return rejectFollowURI(obj.Activity.ID, actor, deps)
	}
	if eventId, ok := LocalEventId(obj.ID(), conf); ok {
		return recordRSVP(eventId, actor, domain.AttendanceNotAttending, activity.ID, deps)
	}
	return rejectFollowURI(obj.ID(), actor, deps)
}

func rejectFollowURI(followURI string, actor *domain.Account, deps *InboxDeps) error {
	if followURI == "" {
		return fmt.Errorf("Reject carries no follow id")
	}
	err, following := deps.Database.ReadFollowingByFollowURI(followURI)
	if err != nil || following == nil {
		log.Printf("Inbox: Reject for unknown follow %s, ignoring", followURI)
		return nil
	}
	if following.ActorURI != actor.ActorURI {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot reject a follow of %s", actor.ActorURI, following.ActorURI))
	}
	// The row stays around unaccepted so the UI can show the refusal.
	if err := deps.Database.UpdateFollowingAccepted(followURI, false); err != nil {
		return fmt.Errorf("failed to mark follow rejected: %w", err)
	}
	log.Printf("Inbox: Follow %s was rejected by %s", followURI, actor.ActorURI)
	return nil
}

// recordRSVP upserts an attendance row for a remote actor.
func recordRSVP(eventId uuid.UUID, actor *domain.Account, status domain.AttendanceStatus, externalId string, deps *InboxDeps) error {
	err, event := deps.Database.ReadEventById(eventId)
	if err != nil || event == nil {
		log.Printf("Inbox: RSVP for unknown event %s, ignoring", eventId)
		return nil
	}

	attendance := &domain.Attendance{
		Id:         uuid.New(),
		EventId:    event.Id,
		AccountId:  actor.Id,
		Status:     status,
		ExternalId: externalId,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := deps.Database.UpsertAttendance(attendance); err != nil {
		return fmt.Errorf("failed to store attendance: %w", err)
	}

	notifyEventAuthor(deps, event, actor, domain.NotificationAttendance)
	broadcast(deps, domain.BroadcastMessage{
		Type: domain.BroadcastAttendanceUpdated,
		Data: map[string]any{"event_id": event.Id, "actor": actor.Handle(), "status": status},
	})
	log.Printf("Inbox: %s is %s event %s", actor.Username, status, event.Id)
	return nil
}

// handleCreate stores incoming events and comments.
func handleCreate(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	obj := activity.Object
	if obj == nil {
		return fmt.Errorf("Create missing object")
	}

	switch {
	case obj.Event != nil:
		return createRemoteEvent(obj.Event, activity, actor, deps)
	case obj.Note != nil:
		return createRemoteComment(obj.Note, activity, actor, conf, deps)
	}
	log.Printf("Inbox: Ignoring Create of unsupported object type %s", obj.Type)
	return nil
}

func createRemoteEvent(wireEvent *EventObject, activity *Activity, actor *domain.Account, deps *InboxDeps) error {
	if wireEvent.AttributedTo != "" && wireEvent.AttributedTo != activity.Actor {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot create an event attributed to %s", activity.Actor, wireEvent.AttributedTo))
	}

	err, existing := deps.Database.ReadEventByExternalId(wireEvent.ID)
	if err == nil && existing != nil {
		log.Printf("Inbox: Event %s already exists, skipping duplicate Create", wireEvent.ID)
		return nil
	}

	event, err := EventFromObject(wireEvent, actor)
	if err != nil {
		return fmt.Errorf("invalid event object: %w", err)
	}
	if err := deps.Database.CreateEvent(event, nil); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil
		}
		return fmt.Errorf("failed to store remote event: %w", err)
	}

	broadcast(deps, domain.BroadcastMessage{
		Type: domain.BroadcastEventCreated,
		Data: map[string]any{"id": event.Id, "title": event.Title, "start_time": event.StartTime},
	})
	log.Printf("Inbox: Stored remote event %q from %s", event.Title, actor.Username)
	return nil
}

func createRemoteComment(note *NoteObject, activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	if note.AttributedTo != "" && note.AttributedTo != activity.Actor {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot create a note attributed to %s", activity.Actor, note.AttributedTo))
	}
	if note.ID == "" || note.InReplyTo == "" {
		log.Printf("Inbox: Ignoring Note without id or inReplyTo from %s", activity.Actor)
		return nil
	}

	if err, existing := deps.Database.ReadCommentByExternalId(note.ID); err == nil && existing != nil {
		log.Printf("Inbox: Comment %s already exists, skipping duplicate Create", note.ID)
		return nil
	}

	// The note either replies to an event directly or to another comment
	// on one.
	var event *domain.Event
	var inReplyToId *uuid.UUID
	if ev := resolveEventByURI(note.InReplyTo, conf, deps.Database); ev != nil {
		event = ev
	} else if parent := resolveCommentByURI(note.InReplyTo, conf, deps.Database); parent != nil {
		if err, ev := deps.Database.ReadEventById(parent.EventId); err == nil && ev != nil {
			event = ev
			inReplyToId = &parent.Id
		}
	}
	if event == nil {
		log.Printf("Inbox: Comment %s replies to unknown thread %s, ignoring", note.ID, note.InReplyTo)
		return nil
	}

	comment := &domain.Comment{
		Id:          uuid.New(),
		EventId:     event.Id,
		AccountId:   actor.Id,
		InReplyToId: inReplyToId,
		Content:     note.Content,
		ExternalId:  note.ID,
		CreatedAt:   time.Now(),
	}
	if note.Published != "" {
		if published, err := parseWireTime(note.Published); err == nil {
			comment.CreatedAt = published
		}
	}

	// Mention tags pointing at local actors become mention rows and
	// notifications.
	var mentions []domain.CommentMention
	var mentioned []*domain.Account
	for _, tag := range note.Tag {
		if tag.Type != "Mention" || tag.Href == "" {
			continue
		}
		err, target := deps.Database.ReadAccountByActorURI(tag.Href)
		if err != nil || target == nil || target.IsRemote {
			continue
		}
		mentions = append(mentions, domain.CommentMention{
			Id:                 uuid.New(),
			CommentId:          comment.Id,
			MentionedAccountId: target.Id,
			CreatedAt:          time.Now(),
		})
		mentioned = append(mentioned, target)
	}

	if err := deps.Database.CreateComment(comment, mentions); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil
		}
		return fmt.Errorf("failed to store comment: %w", err)
	}

	notifyEventAuthor(deps, event, actor, domain.NotificationComment)
	for _, target := range mentioned {
		if target.Id == event.AccountId {
			continue
		}
		notify(deps, &domain.Notification{
			Id:               uuid.New(),
			AccountId:        target.Id,
			NotificationType: domain.NotificationMention,
			ActorId:          actor.Id,
			ActorHandle:      actor.Handle(),
			EventId:          event.Id,
			Title:            event.Title,
			CreatedAt:        time.Now(),
		})
	}
	broadcast(deps, domain.BroadcastMessage{
		Type: domain.BroadcastCommentCreated,
		Data: map[string]any{"id": comment.Id, "event_id": event.Id, "actor": actor.Handle()},
	})
	log.Printf("Inbox: Stored comment from %s on event %s", actor.Username, event.Id)
	return nil
}

// handleUpdate applies event edits and profile refreshes.
func handleUpdate(activity *Activity, actor *domain.Account, deps *InboxDeps) error {
	obj := activity.Object
	if obj == nil {
		return fmt.Errorf("Update missing object")
	}

	switch {
	case obj.Event != nil:
		return updateRemoteEvent(obj.Event, activity, actor, deps)
	case obj.Person != nil:
		if obj.Person.ID != activity.Actor {
			return domain.NewCodedError(domain.ErrAuthMismatch,
				fmt.Sprintf("actor %s cannot update profile of %s", activity.Actor, obj.Person.ID))
		}
		if _, err := upsertRemoteActor(obj.Person, activity.Actor, deps.Database); err != nil {
			return fmt.Errorf("failed to apply profile update: %w", err)
		}
		log.Printf("Inbox: Updated profile for %s", actor.Username)
		return nil
	}
	log.Printf("Inbox: Unsupported Update object type: %s", obj.Type)
	return nil
}

func updateRemoteEvent(wireEvent *EventObject, activity *Activity, actor *domain.Account, deps *InboxDeps) error {
	if wireEvent.AttributedTo != "" && wireEvent.AttributedTo != activity.Actor {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot update an event attributed to %s", activity.Actor, wireEvent.AttributedTo))
	}

	err, existing := deps.Database.ReadEventByExternalId(wireEvent.ID)
	if err != nil || existing == nil {
		// Updates for events we never saw are not materialized: we may
		// have followed the author after the Create went out.
		log.Printf("Inbox: Update for unseen event %s, ignoring", wireEvent.ID)
		return nil
	}
	if existing.AccountId != actor.Id {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot update an event owned by another actor", activity.Actor))
	}

	updated, err := EventFromObject(wireEvent, actor)
	if err != nil {
		return fmt.Errorf("invalid event object: %w", err)
	}
	updated.Id = existing.Id
	updated.AccountId = existing.AccountId
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()

	if err := deps.Database.UpdateEvent(updated, nil); err != nil {
		return fmt.Errorf("failed to update remote event: %w", err)
	}

	broadcast(deps, domain.BroadcastMessage{
		Type: domain.BroadcastEventUpdated,
		Data: map[string]any{"id": updated.Id, "title": updated.Title},
	})
	log.Printf("Inbox: Updated remote event %s", wireEvent.ID)
	return nil
}

// handleDelete removes events, comments and whole actors.
func handleDelete(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	objURI := activity.ObjectURI()
	if objURI == "" {
		return fmt.Errorf("Delete missing object")
	}

	// An actor deleting itself leaves a tombstone so later deliveries
	// and key lookups fail cleanly.
	if objURI == activity.Actor {
		if err := deps.Database.TombstoneAccountByActorURI(objURI); err != nil {
			return fmt.Errorf("failed to tombstone actor: %w", err)
		}
		log.Printf("Inbox: Tombstoned actor %s", objURI)
		return nil
	}

	if event := resolveEventByURI(objURI, conf, deps.Database); event != nil {
		if event.AccountId != actor.Id {
			return domain.NewCodedError(domain.ErrAuthMismatch,
				fmt.Sprintf("actor %s cannot delete an event owned by another actor", activity.Actor))
		}
		if err := deps.Database.DeleteEvent(event.Id); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		broadcast(deps, domain.BroadcastMessage{
			Type: domain.BroadcastEventDeleted,
			Data: map[string]any{"id": event.Id},
		})
		log.Printf("Inbox: Deleted event %s", objURI)
		return nil
	}

	if comment := resolveCommentByURI(objURI, conf, deps.Database); comment != nil {
		if comment.AccountId != actor.Id {
			return domain.NewCodedError(domain.ErrAuthMismatch,
				fmt.Sprintf("actor %s cannot delete a comment owned by another actor", activity.Actor))
		}
		if err := deps.Database.DeleteComment(comment.Id); err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		broadcast(deps, domain.BroadcastMessage{
			Type: domain.BroadcastCommentDeleted,
			Data: map[string]any{"id": comment.Id, "event_id": comment.EventId},
		})
		log.Printf("Inbox: Deleted comment %s", objURI)
		return nil
	}

	// Deletes for objects we never stored are acknowledged silently.
	log.Printf("Inbox: Delete for unknown object %s, ignoring", objURI)
	return nil
}

// handleLike records a like on an event we know.
func handleLike(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	event := resolveEventByURI(activity.ObjectURI(), conf, deps.Database)
	if event == nil {
		log.Printf("Inbox: Like for unknown event %s, ignoring", activity.ObjectURI())
		return nil
	}

	like := &domain.Like{
		Id:         uuid.New(),
		EventId:    event.Id,
		AccountId:  actor.Id,
		ExternalId: activity.ID,
		CreatedAt:  time.Now(),
	}
	if err := deps.Database.CreateLike(like); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Printf("Inbox: Like from %s on event %s already exists, skipping", actor.Username, event.Id)
			return nil
		}
		return fmt.Errorf("failed to store like: %w", err)
	}

	notifyEventAuthor(deps, event, actor, domain.NotificationLike)
	broadcast(deps, domain.BroadcastMessage{
		Type: domain.BroadcastLikeAdded,
		Data: map[string]any{"event_id": event.Id, "actor": actor.Handle()},
	})
	log.Printf("Inbox: Stored like from %s on event %s", actor.Username, event.Id)
	return nil
}

// handleAnnounce records a share of an event we know.
func handleAnnounce(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	event := resolveEventByURI(activity.ObjectURI(), conf, deps.Database)
	if event == nil {
		log.Printf("Inbox: Announce for unknown event %s, ignoring", activity.ObjectURI())
		return nil
	}
	if event.IsShare() {
		log.Printf("Inbox: Announce of a share %s, ignoring", event.Id)
		return nil
	}

	if err, existing := deps.Database.ReadShareByAccountAndOriginal(actor.Id, event.Id); err == nil && existing != nil {
		log.Printf("Inbox: Share from %s of event %s already exists, skipping", actor.Username, event.Id)
		return nil
	}

	share := &domain.Event{
		Id:            uuid.New(),
		AccountId:     actor.Id,
		ExternalId:    activity.ID,
		AttributedTo:  actor.ActorURI,
		Title:         event.Title,
		Timezone:      event.Timezone,
		StartTime:     event.StartTime,
		EndTime:       event.EndTime,
		Visibility:    domain.VisibilityPublic,
		SharedEventId: &event.Id,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := deps.Database.CreateEvent(share, nil); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil
		}
		return fmt.Errorf("failed to store share: %w", err)
	}

	notifyEventAuthor(deps, event, actor, domain.NotificationShare)
	broadcast(deps, domain.BroadcastMessage{
		Type: domain.BroadcastEventShared,
		Data: map[string]any{"event_id": event.Id, "actor": actor.Handle()},
	})
	log.Printf("Inbox: Stored share from %s of event %s", actor.Username, event.Id)
	return nil
}

// handleUndo reverses a previously received Like, Follow, Announce or
// RSVP. Only activities embedded in full can be matched.
func handleUndo(activity *Activity, actor *domain.Account, conf *util.AppConfig, deps *InboxDeps) error {
	obj := activity.Object
	if obj == nil || obj.Activity == nil {
		log.Printf("Inbox: Undo without embedded activity from %s, ignoring", activity.Actor)
		return nil
	}
	inner := obj.Activity
	if inner.Actor != "" && inner.Actor != activity.Actor {
		return domain.NewCodedError(domain.ErrAuthMismatch,
			fmt.Sprintf("actor %s cannot undo an activity of %s", activity.Actor, inner.Actor))
	}

	switch inner.Type {
	case "Follow":
		target, err := localAccountFromActorURI(inner.ObjectURI(), conf, deps.Database)
		if err != nil {
			log.Printf("Inbox: Undo Follow for unknown target %s, ignoring", inner.ObjectURI())
			return nil
		}
		if err := deps.Database.DeleteFollower(target.Id, actor.ActorURI); err != nil {
			return fmt.Errorf("failed to remove follower: %w", err)
		}
		log.Printf("Inbox: %s unfollowed %s", actor.Username, target.Username)

	case "Like":
		event := resolveEventByURI(inner.ObjectURI(), conf, deps.Database)
		var removed bool
		var err error
		if inner.ID != "" {
			removed, err = deps.Database.DeleteLikeByExternalId(inner.ID)
			if err != nil {
				return fmt.Errorf("failed to remove like: %w", err)
			}
		}
		// Some servers mint a fresh id for the undone activity, so fall
		// back to the (event, actor) pair when the id matches nothing.
		if !removed && event != nil {
			removed, err = deps.Database.DeleteLike(event.Id, actor.Id)
			if err != nil {
				return fmt.Errorf("failed to remove like: %w", err)
			}
		}
		if !removed {
			log.Printf("Inbox: Undo Like with no matching like from %s, ignoring", activity.Actor)
			return nil
		}
		if event != nil {
			broadcast(deps, domain.BroadcastMessage{
				Type: domain.BroadcastLikeRemoved,
				Data: map[string]any{"event_id": event.Id, "actor": actor.Handle()},
			})
		}
		log.Printf("Inbox: Removed like by %s", actor.Username)

	case "Accept", "TentativeAccept", "Reject":
		event := resolveEventByURI(inner.ObjectURI(), conf, deps.Database)
		var removed bool
		var err error
		if inner.ID != "" {
			removed, err = deps.Database.DeleteAttendanceByExternalId(inner.ID)
			if err != nil {
				return fmt.Errorf("failed to remove attendance: %w", err)
			}
		}
		if !removed && event != nil {
			removed, err = deps.Database.DeleteAttendance(event.Id, actor.Id)
			if err != nil {
				return fmt.Errorf("failed to remove attendance: %w", err)
			}
		}
		if !removed {
			log.Printf("Inbox: Undo RSVP with no matching attendance from %s, ignoring", activity.Actor)
			return nil
		}
		if event != nil {
			broadcast(deps, domain.BroadcastMessage{
				Type: domain.BroadcastAttendanceRemoved,
				Data: map[string]any{"event_id": event.Id, "actor": actor.Handle()},
			})
		}
		log.Printf("Inbox: Removed RSVP by %s", actor.Username)

	case "Announce":
		if inner.ID == "" {
			return nil
		}
		err, share := deps.Database.ReadEventByExternalId(inner.ID)
		if err != nil || share == nil || !share.IsShare() {
			log.Printf("Inbox: Undo Announce for unknown share %s, ignoring", inner.ID)
			return nil
		}
		if share.AccountId != actor.Id {
			return domain.NewCodedError(domain.ErrAuthMismatch,
				fmt.Sprintf("actor %s cannot undo a share by another actor", activity.Actor))
		}
		if err := deps.Database.DeleteEvent(share.Id); err != nil {
			return fmt.Errorf("failed to remove share: %w", err)
		}
		log.Printf("Inbox: Removed share by %s", actor.Username)

	default:
		log.Printf("Inbox: Unsupported Undo of %s, ignoring", inner.Type)
	}
	return nil
}
