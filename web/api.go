package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/activitypub"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/trending"
	"github.com/ristiko/smilodon/util"
)

const viewerContextKey = "viewer"

// apiAuth resolves the viewer from the X-API-Key header and aborts with
// 401 when the key is missing or unknown.
func (s *Services) apiAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			writeError(c, domain.NewCodedError(domain.ErrUnauthorized, "missing API key"))
			c.Abort()
			return
		}
		err, account := s.DB.ReadAccountByApiKey(apiKey)
		if err != nil || account == nil {
			writeError(c, domain.NewCodedError(domain.ErrUnauthorized, "invalid API key"))
			c.Abort()
			return
		}
		c.Set(viewerContextKey, account)
		c.Next()
	}
}

// optionalAPIAuth resolves the viewer when a key is present but lets
// anonymous requests through for the read endpoints.
func (s *Services) optionalAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			if err, account := s.DB.ReadAccountByApiKey(apiKey); err == nil && account != nil {
				c.Set(viewerContextKey, account)
			}
		}
		c.Next()
	}
}

func viewerFrom(c *gin.Context) *domain.Account {
	if v, ok := c.Get(viewerContextKey); ok {
		return v.(*domain.Account)
	}
	return nil
}

func viewerIdFrom(c *gin.Context) *uuid.UUID {
	if viewer := viewerFrom(c); viewer != nil {
		return &viewer.Id
	}
	return nil
}

// resolveViewerId adapts the API key auth for the SSE stream handler.
func (s *Services) resolveViewerId(c *gin.Context) (uuid.UUID, bool) {
	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		apiKey = c.Query("key")
	}
	if apiKey == "" {
		return uuid.Nil, false
	}
	err, account := s.DB.ReadAccountByApiKey(apiKey)
	if err != nil || account == nil {
		return uuid.Nil, false
	}
	return account.Id, true
}

// writeError maps the error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an internal error and stays opaque.
func writeError(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	body := gin.H{"error": string(code)}

	var coded *domain.CodedError
	if errors.As(err, &coded) {
		if coded.Field != "" {
			body["field"] = coded.Field
		}
		if coded.Message != "" && code != domain.ErrInternal {
			body["message"] = coded.Message
		}
	}

	switch code {
	case domain.ErrValidation:
		c.JSON(http.StatusBadRequest, body)
	case domain.ErrUnauthorized:
		c.JSON(http.StatusUnauthorized, body)
	case domain.ErrForbidden:
		c.JSON(http.StatusForbidden, body)
	case domain.ErrNotFound:
		c.JSON(http.StatusNotFound, body)
	case domain.ErrConflict:
		c.JSON(http.StatusConflict, body)
	default:
		log.Printf("API: internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": string(domain.ErrInternal)})
	}
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// federate queues an activity for delivery when federation is on.
// Delivery failures never surface to API callers.
func (s *Services) federate(activity *activitypub.Activity, sender *domain.Account) {
	if !s.Conf.Conf.WithFederation {
		return
	}
	if err := activitypub.QueueActivity(activity, sender, s.AP.HTTPClient, s.AP.Database); err != nil {
		log.Printf("API: Failed to queue %s from %s: %v", activity.Type, sender.Username, err)
	}
}

func (s *Services) federateToActor(activity *activitypub.Activity, sender *domain.Account, actorURI string) {
	if !s.Conf.Conf.WithFederation || actorURI == "" {
		return
	}
	if err := activitypub.QueueToActor(activity, sender, actorURI, s.AP.HTTPClient, s.AP.Database); err != nil {
		log.Printf("API: Failed to queue %s to %s: %v", activity.Type, actorURI, err)
	}
}

func (s *Services) broadcast(msg domain.BroadcastMessage) {
	if s.Broadcaster != nil {
		s.Broadcaster.Broadcast(msg)
	}
}

// notify persists a notification and pushes it to the recipient's
// streams. Remote recipients are skipped; notifications never federate.
func (s *Services) notify(n *domain.Notification) {
	err, recipient := s.DB.ReadAccountById(n.AccountId)
	if err != nil || recipient.IsRemote {
		return
	}
	if n.Id == uuid.Nil {
		n.Id = uuid.New()
	}
	if err := s.DB.CreateNotification(n); err != nil {
		log.Printf("API: Failed to create notification for %s: %v", n.AccountId, err)
		return
	}
	s.broadcast(domain.BroadcastMessage{
		Type:            domain.BroadcastNotificationCreated,
		TargetAccountId: n.AccountId,
		Data:            n,
	})
}

// eventWireURI returns the URI an event is known by on the wire.
func (s *Services) eventWireURI(event *domain.Event) string {
	if event.IsRemote() {
		return event.ExternalId
	}
	return activitypub.EventURI(event, s.Conf)
}

// --- event input -----------------------------------------------------

type eventInput struct {
	Title             string   `json:"title"`
	Summary           string   `json:"summary"`
	Location          string   `json:"location"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	Timezone          string   `json:"timezone"`
	StartTime         string   `json:"startTime"`
	EndTime           string   `json:"endTime"`
	Recurrence        string   `json:"recurrence"`
	RecurrenceEndDate string   `json:"recurrenceEndDate"`
	Visibility        string   `json:"visibility"`
	Tags              []string `json:"tags"`
	HeaderImageURL    string   `json:"headerImageUrl"`
	ExternalURL       string   `json:"externalUrl"`
	Recipients        []string `json:"recipients"`
}

// applyEventInput validates the input and writes it onto the event.
func applyEventInput(event *domain.Event, in *eventInput) error {
	if err := util.ValidateEventTitle(in.Title); err != nil {
		return domain.NewValidationError("title", err.Error())
	}
	event.Title = strings.TrimSpace(in.Title)
	event.Summary = in.Summary
	event.Location = in.Location

	if err := util.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return domain.NewValidationError("latitude", err.Error())
	}
	event.Latitude = in.Latitude
	event.Longitude = in.Longitude

	if err := util.ValidateTimezone(in.Timezone); err != nil {
		return domain.NewValidationError("timezone", err.Error())
	}
	event.Timezone = in.Timezone

	startTime, err := time.Parse(time.RFC3339, in.StartTime)
	if err != nil {
		return domain.NewValidationError("startTime", "must be an RFC 3339 timestamp")
	}
	event.StartTime = startTime.Local()

	event.EndTime = nil
	if in.EndTime != "" {
		endTime, err := time.Parse(time.RFC3339, in.EndTime)
		if err != nil {
			return domain.NewValidationError("endTime", "must be an RFC 3339 timestamp")
		}
		if endTime.Before(startTime) {
			return domain.NewValidationError("endTime", "must not be before startTime")
		}
		local := endTime.Local()
		event.EndTime = &local
	}

	recurrence, err := domain.ParseRecurrencePattern(in.Recurrence)
	if err != nil {
		return domain.NewValidationError("recurrence", err.Error())
	}
	event.Recurrence = recurrence

	event.RecurrenceEndDate = nil
	if in.RecurrenceEndDate != "" {
		if recurrence == domain.RecurrenceNone {
			return domain.NewValidationError("recurrenceEndDate", "requires a recurrence pattern")
		}
		recurrenceEnd, err := time.Parse(time.RFC3339, in.RecurrenceEndDate)
		if err != nil {
			return domain.NewValidationError("recurrenceEndDate", "must be an RFC 3339 timestamp")
		}
		if recurrenceEnd.Before(startTime) {
			return domain.NewValidationError("recurrenceEndDate", "must not be before startTime")
		}
		local := recurrenceEnd.Local()
		event.RecurrenceEndDate = &local
	}

	visibility, err := domain.ParseVisibility(in.Visibility)
	if err != nil {
		return domain.NewValidationError("visibility", err.Error())
	}
	event.Visibility = visibility

	tags, err := util.NormalizeTags(in.Tags)
	if err != nil {
		return domain.NewValidationError("tags", err.Error())
	}
	event.Tags = tags

	if in.HeaderImageURL != "" && !util.IsURL(in.HeaderImageURL) {
		return domain.NewValidationError("headerImageUrl", "must be a valid URL")
	}
	event.HeaderImageURL = in.HeaderImageURL

	if in.ExternalURL != "" && !util.IsURL(in.ExternalURL) {
		return domain.NewValidationError("externalUrl", "must be a valid URL")
	}
	event.ExternalURL = in.ExternalURL

	return nil
}

// resolveRecipients maps recipient handles of a PRIVATE event to account
// ids and actor URIs. Unresolvable handles fail validation so a private
// event is never silently under-addressed.
func (s *Services) resolveRecipients(handles []string, author *domain.Account) ([]uuid.UUID, []string, error) {
	var ids []uuid.UUID
	var uris []string
	seen := make(map[uuid.UUID]bool)

	for _, handle := range handles {
		account, err := s.resolveHandle(handle)
		if err != nil {
			return nil, nil, domain.NewValidationError("recipients", fmt.Sprintf("could not resolve %q", handle))
		}
		if account.Id == author.Id || seen[account.Id] {
			continue
		}
		seen[account.Id] = true
		ids = append(ids, account.Id)
		uris = append(uris, account.ActorURI)
	}
	return ids, uris, nil
}

// resolveHandle finds the account behind @user or @user@host, fetching
// remote actors through webfinger when needed.
func (s *Services) resolveHandle(handle string) (*domain.Account, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, fmt.Errorf("empty handle")
	}

	if !strings.Contains(handle, "@") {
		err, account := s.DB.ReadLocalAccountByUsername(handle)
		if err != nil {
			return nil, fmt.Errorf("unknown local user %q", handle)
		}
		return account, nil
	}

	actorURI, err := activitypub.ResolveHandle(handle, s.AP.HTTPClient)
	if err != nil {
		return nil, err
	}
	return activitypub.GetOrFetchActor(actorURI, s.AP.HTTPClient, s.AP.Database)
}

// --- event responses -------------------------------------------------

type eventResponse struct {
	Id                uuid.UUID  `json:"id"`
	Author            string     `json:"author"`
	Title             string     `json:"title"`
	Summary           string     `json:"summary,omitempty"`
	Location          string     `json:"location,omitempty"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	Timezone          string     `json:"timezone,omitempty"`
	StartTime         string     `json:"startTime"`
	EndTime           string     `json:"endTime,omitempty"`
	Recurrence        string     `json:"recurrence,omitempty"`
	RecurrenceEndDate string     `json:"recurrenceEndDate,omitempty"`
	Visibility        string     `json:"visibility"`
	Tags              []string   `json:"tags,omitempty"`
	HeaderImageURL    string     `json:"headerImageUrl,omitempty"`
	ExternalURL       string     `json:"externalUrl,omitempty"`
	SharedEventId     *uuid.UUID `json:"sharedEventId,omitempty"`
	Likes             int        `json:"likes"`
	Comments          int        `json:"comments"`
	Attending         int        `json:"attending"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
}

func (s *Services) eventToResponse(event *domain.Event) *eventResponse {
	resp := &eventResponse{
		Id:             event.Id,
		Title:          event.Title,
		Summary:        event.Summary,
		Location:       event.Location,
		Latitude:       event.Latitude,
		Longitude:      event.Longitude,
		Timezone:       event.Timezone,
		StartTime:      event.StartTime.UTC().Format(time.RFC3339),
		Recurrence:     string(event.Recurrence),
		Visibility:     string(event.Visibility),
		Tags:           event.Tags,
		HeaderImageURL: event.HeaderImageURL,
		ExternalURL:    event.ExternalURL,
		SharedEventId:  event.SharedEventId,
		CreatedAt:      event.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      event.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if event.EndTime != nil {
		resp.EndTime = event.EndTime.UTC().Format(time.RFC3339)
	}
	if event.RecurrenceEndDate != nil {
		resp.RecurrenceEndDate = event.RecurrenceEndDate.UTC().Format(time.RFC3339)
	}
	if err, author := s.DB.ReadAccountById(event.AccountId); err == nil {
		resp.Author = author.Handle()
	}
	resp.Likes, _ = s.DB.CountLikesByEventId(event.Id)
	resp.Comments, _ = s.DB.CountCommentsByEventId(event.Id)
	resp.Attending, _ = s.DB.CountAttending(event.Id)
	return resp
}

// loadVisibleEvent loads an event and collapses both absence and lack of
// view rights into NOT_FOUND.
func (s *Services) loadVisibleEvent(c *gin.Context) (*domain.Event, bool) {
	eventId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "event not found"))
		return nil, false
	}
	err, event := s.DB.ReadEventById(eventId)
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "event not found"))
		return nil, false
	}
	visible, err := s.DB.CanViewEvent(event, viewerIdFrom(c))
	if err != nil || !visible {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "event not found"))
		return nil, false
	}
	return event, true
}

// --- event CRUD ------------------------------------------------------

func (s *Services) handleCreateEvent(c *gin.Context) {
	viewer := viewerFrom(c)

	var in eventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}

	now := time.Now()
	event := &domain.Event{
		Id:           uuid.New(),
		AccountId:    viewer.Id,
		AttributedTo: viewer.ActorURI,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := applyEventInput(event, &in); err != nil {
		writeError(c, err)
		return
	}

	var recipientIds []uuid.UUID
	var recipientURIs []string
	if event.Visibility == domain.VisibilityPrivate {
		var err error
		recipientIds, recipientURIs, err = s.resolveRecipients(in.Recipients, viewer)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	if err := s.DB.CreateEvent(event, recipientIds); err != nil {
		writeError(c, err)
		return
	}

	s.federate(activitypub.NewCreateEvent(event, viewer, recipientURIs, s.Conf), viewer)
	s.broadcast(domain.BroadcastMessage{Type: domain.BroadcastEventCreated, Data: s.eventToResponse(event)})

	c.JSON(http.StatusCreated, s.eventToResponse(event))
}

func (s *Services) handleUpdateEvent(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}
	if event.AccountId != viewer.Id {
		writeError(c, domain.NewCodedError(domain.ErrForbidden, "not the event owner"))
		return
	}

	var in eventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}

	// The Update is delivered to the union of the previous and the new
	// audience so dropped recipients still learn about the change.
	var previousInboxes []string
	if s.Conf.Conf.WithFederation {
		previousURIs := s.eventRecipientURIs(event)
		previous := activitypub.NewUpdateEvent(event, viewer, previousURIs, s.Conf)
		previousInboxes = activitypub.CollectRecipients(previous, viewer, s.AP.HTTPClient, s.AP.Database)
	}

	if err := applyEventInput(event, &in); err != nil {
		writeError(c, err)
		return
	}

	var recipientIds []uuid.UUID
	var recipientURIs []string
	if event.Visibility == domain.VisibilityPrivate {
		var err error
		recipientIds, recipientURIs, err = s.resolveRecipients(in.Recipients, viewer)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	event.UpdatedAt = time.Now()
	if err := s.DB.UpdateEvent(event, recipientIds); err != nil {
		writeError(c, err)
		return
	}

	if s.Conf.Conf.WithFederation {
		update := activitypub.NewUpdateEvent(event, viewer, recipientURIs, s.Conf)
		inboxes := activitypub.CollectRecipients(update, viewer, s.AP.HTTPClient, s.AP.Database)
		seen := make(map[string]bool, len(inboxes))
		for _, inboxURI := range inboxes {
			seen[inboxURI] = true
		}
		for _, inboxURI := range previousInboxes {
			if !seen[inboxURI] {
				inboxes = append(inboxes, inboxURI)
			}
		}
		for _, inboxURI := range inboxes {
			if err := activitypub.QueueToInbox(update, viewer, inboxURI, s.AP.Database); err != nil {
				log.Printf("API: Failed to queue Update to %s: %v", inboxURI, err)
			}
		}
	}

	s.broadcast(domain.BroadcastMessage{Type: domain.BroadcastEventUpdated, Data: s.eventToResponse(event)})
	c.JSON(http.StatusOK, s.eventToResponse(event))
}

// eventRecipientURIs loads the actor URIs a PRIVATE event is addressed to.
func (s *Services) eventRecipientURIs(event *domain.Event) []string {
	if event.Visibility != domain.VisibilityPrivate {
		return nil
	}
	err, recipientIds := s.DB.ReadEventRecipients(event.Id)
	if err != nil {
		return nil
	}
	var uris []string
	for _, rid := range recipientIds {
		if err, account := s.DB.ReadAccountById(rid); err == nil {
			uris = append(uris, account.ActorURI)
		}
	}
	return uris
}

func (s *Services) handleDeleteEvent(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}
	if event.AccountId != viewer.Id {
		writeError(c, domain.NewCodedError(domain.ErrForbidden, "not the event owner"))
		return
	}

	// Build the Delete before the row disappears.
	var deleteActivity *activitypub.Activity
	if s.Conf.Conf.WithFederation && !event.IsRemote() {
		deleteActivity = activitypub.NewDeleteEvent(event, viewer, s.Conf)
	}

	if err := s.DB.DeleteEvent(event.Id); err != nil {
		writeError(c, err)
		return
	}

	if deleteActivity != nil {
		s.federate(deleteActivity, viewer)
	}
	s.broadcast(domain.BroadcastMessage{Type: domain.BroadcastEventDeleted, Data: gin.H{"id": event.Id}})
	c.Status(http.StatusNoContent)
}

func (s *Services) handleGetEvent(c *gin.Context) {
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.eventToResponse(event))
}

func (s *Services) handleListEvents(c *gin.Context) {
	now := time.Now()
	rangeStart := now
	rangeEnd := now.AddDate(0, 1, 0)

	if v := c.Query("rangeStart"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, domain.NewValidationError("rangeStart", "must be an RFC 3339 timestamp"))
			return
		}
		rangeStart = t.Local()
	}
	if v := c.Query("rangeEnd"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, domain.NewValidationError("rangeEnd", "must be an RFC 3339 timestamp"))
			return
		}
		rangeEnd = t.Local()
	}
	if rangeEnd.Before(rangeStart) {
		writeError(c, domain.NewValidationError("rangeEnd", "must not be before rangeStart"))
		return
	}

	err, events := s.DB.ReadEventsInRange(rangeStart, rangeEnd, viewerIdFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	responses := make([]*eventResponse, 0, len(events))
	for i := range events {
		responses = append(responses, s.eventToResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": responses})
}

func (s *Services) handleTrendingEvents(c *gin.Context) {
	windowDays := s.Conf.Conf.TrendingWindowDays
	if v := c.Query("window"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, domain.NewValidationError("window", "must be an integer day count"))
			return
		}
		windowDays = parsed
	}
	windowDays = trending.ClampWindow(windowDays)

	limit := trending.DefaultLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, domain.NewValidationError("limit", "must be an integer"))
			return
		}
		limit = parsed
	}
	limit = trending.ClampLimit(limit)
	if limit > s.Conf.Conf.TrendingMaxLimit {
		limit = s.Conf.Conf.TrendingMaxLimit
	}

	now := time.Now()
	err, candidates := s.DB.ReadEngagementCandidates(viewerIdFrom(c), trending.Cutoff(now, windowDays))
	if err != nil {
		writeError(c, err)
		return
	}

	ranked := trending.Rank(candidates, now, windowDays, limit)
	results := make([]gin.H, 0, len(ranked))
	for i := range ranked {
		results = append(results, gin.H{
			"event": s.eventToResponse(&ranked[i].Event),
			"score": ranked[i].Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"window": windowDays, "events": results})
}

// --- attendance ------------------------------------------------------

type attendanceInput struct {
	Status string `json:"status"`
}

// rsvpActivityType maps an attendance status to the wire activity that
// carries it.
func rsvpActivityType(status domain.AttendanceStatus) string {
	switch status {
	case domain.AttendanceMaybe:
		return "TentativeAccept"
	case domain.AttendanceNotAttending:
		return "Reject"
	default:
		return "Accept"
	}
}

func (s *Services) handleSetAttendance(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	var in attendanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}
	status, err := domain.ParseAttendanceStatus(in.Status)
	if err != nil {
		writeError(c, domain.NewValidationError("status", err.Error()))
		return
	}

	now := time.Now()
	attendance := &domain.Attendance{
		Id:        uuid.New(),
		EventId:   event.Id,
		AccountId: viewer.Id,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if event.IsRemote() {
		// Store the outbound activity id so a later Undo can name the
		// exact RSVP the remote server received.
		attendance.ExternalId = fmt.Sprintf("%s/rsvps/%s", s.Conf.BaseURL(), attendance.Id)
	}
	if err := s.DB.UpsertAttendance(attendance); err != nil {
		writeError(c, err)
		return
	}

	if event.IsRemote() {
		rsvp := activitypub.NewRSVP(rsvpActivityType(status), attendance.ExternalId, viewer, event.ExternalId)
		s.federateToActor(rsvp, viewer, event.AttributedTo)
	} else if event.AccountId != viewer.Id {
		s.notify(&domain.Notification{
			AccountId:        event.AccountId,
			NotificationType: domain.NotificationAttendance,
			ActorId:          viewer.Id,
			ActorHandle:      viewer.Handle(),
			EventId:          event.Id,
			Title:            event.Title,
			CreatedAt:        now,
		})
	}

	s.broadcast(domain.BroadcastMessage{
		Type: domain.BroadcastAttendanceUpdated,
		Data: gin.H{"eventId": event.Id, "accountId": viewer.Id, "status": status},
	})
	c.JSON(http.StatusOK, gin.H{"eventId": event.Id, "status": status})
}

func (s *Services) handleClearAttendance(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	err, attendance := s.DB.ReadAttendance(event.Id, viewer.Id)
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "no attendance recorded"))
		return
	}

	if _, err := s.DB.DeleteAttendance(event.Id, viewer.Id); err != nil {
		writeError(c, err)
		return
	}

	if event.IsRemote() {
		rsvp := activitypub.NewRSVP(rsvpActivityType(attendance.Status), attendance.ExternalId, viewer, event.ExternalId)
		s.federateToActor(activitypub.NewUndo(rsvp, viewer, s.Conf), viewer, event.AttributedTo)
	}

	s.broadcast(domain.BroadcastMessage{
		Type: domain.BroadcastAttendanceRemoved,
		Data: gin.H{"eventId": event.Id, "accountId": viewer.Id},
	})
	c.Status(http.StatusNoContent)
}

// --- likes -----------------------------------------------------------

func (s *Services) handleLikeEvent(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	like := &domain.Like{
		Id:        uuid.New(),
		EventId:   event.Id,
		AccountId: viewer.Id,
		CreatedAt: time.Now(),
	}
	if err := s.DB.CreateLike(like); err != nil {
		if isUniqueConstraintErr(err) {
			// Already liked; liking twice is not an error.
			c.JSON(http.StatusOK, gin.H{"eventId": event.Id, "liked": true})
			return
		}
		writeError(c, err)
		return
	}

	likeURI := fmt.Sprintf("%s/likes/%s", s.Conf.BaseURL(), like.Id)
	if event.IsRemote() {
		s.federateToActor(activitypub.NewLike(likeURI, viewer, event.ExternalId), viewer, event.AttributedTo)
	} else if event.AccountId != viewer.Id {
		s.notify(&domain.Notification{
			AccountId:        event.AccountId,
			NotificationType: domain.NotificationLike,
			ActorId:          viewer.Id,
			ActorHandle:      viewer.Handle(),
			EventId:          event.Id,
			Title:            event.Title,
			CreatedAt:        time.Now(),
		})
	}

	s.broadcast(domain.BroadcastMessage{
		Type: domain.BroadcastLikeAdded,
		Data: gin.H{"eventId": event.Id, "accountId": viewer.Id},
	})
	c.JSON(http.StatusOK, gin.H{"eventId": event.Id, "liked": true})
}

func (s *Services) handleUnlikeEvent(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	err, like := s.DB.ReadLike(event.Id, viewer.Id)
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "no like recorded"))
		return
	}

	if _, err := s.DB.DeleteLike(event.Id, viewer.Id); err != nil {
		writeError(c, err)
		return
	}

	if event.IsRemote() {
		likeURI := fmt.Sprintf("%s/likes/%s", s.Conf.BaseURL(), like.Id)
		inner := activitypub.NewLike(likeURI, viewer, event.ExternalId)
		s.federateToActor(activitypub.NewUndo(inner, viewer, s.Conf), viewer, event.AttributedTo)
	}

	s.broadcast(domain.BroadcastMessage{
		Type: domain.BroadcastLikeRemoved,
		Data: gin.H{"eventId": event.Id, "accountId": viewer.Id},
	})
	c.Status(http.StatusNoContent)
}

// --- comments --------------------------------------------------------

const maxCommentLength = 5000

type commentInput struct {
	Content     string `json:"content"`
	InReplyToId string `json:"inReplyToId"`
}

type commentResponse struct {
	Id          uuid.UUID  `json:"id"`
	EventId     uuid.UUID  `json:"eventId"`
	Author      string     `json:"author"`
	InReplyToId *uuid.UUID `json:"inReplyToId,omitempty"`
	Content     string     `json:"content"`
	CreatedAt   string     `json:"createdAt"`
}

func (s *Services) commentToResponse(comment *domain.Comment) *commentResponse {
	resp := &commentResponse{
		Id:          comment.Id,
		EventId:     comment.EventId,
		InReplyToId: comment.InReplyToId,
		Content:     comment.Content,
		CreatedAt:   comment.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err, author := s.DB.ReadAccountById(comment.AccountId); err == nil {
		resp.Author = author.Handle()
	}
	return resp
}

func (s *Services) handleCreateComment(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	var in commentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		writeError(c, domain.NewValidationError("content", "must not be empty"))
		return
	}
	if len(content) > maxCommentLength {
		writeError(c, domain.NewValidationError("content", fmt.Sprintf("exceeds %d characters", maxCommentLength)))
		return
	}
	// Comments leave the instance as Note content, so escape markup here.
	content = util.NormalizeInput(content)

	comment := &domain.Comment{
		Id:        uuid.New(),
		EventId:   event.Id,
		AccountId: viewer.Id,
		Content:   content,
		CreatedAt: time.Now(),
	}

	inReplyTo := s.eventWireURI(event)
	if in.InReplyToId != "" {
		parentId, err := uuid.Parse(in.InReplyToId)
		if err != nil {
			writeError(c, domain.NewValidationError("inReplyToId", "must be a comment id"))
			return
		}
		err, parent := s.DB.ReadCommentById(parentId)
		if err != nil || parent.EventId != event.Id {
			writeError(c, domain.NewValidationError("inReplyToId", "parent comment not found on this event"))
			return
		}
		comment.InReplyToId = &parent.Id
		if parent.ExternalId != "" {
			inReplyTo = parent.ExternalId
		} else {
			inReplyTo = activitypub.CommentURI(parent, s.Conf)
		}
	}

	// Mentions resolve before the insert so the rows land in the same
	// transaction as the comment.
	var mentionRows []domain.CommentMention
	var mentionTags []activitypub.TagObject
	var mentionedLocals []uuid.UUID
	for _, mention := range util.ParseMentions(content) {
		account, err := s.resolveHandle(mention.Handle())
		if err != nil {
			continue
		}
		mentionRows = append(mentionRows, domain.CommentMention{
			Id:                 uuid.New(),
			CommentId:          comment.Id,
			MentionedAccountId: account.Id,
			CreatedAt:          comment.CreatedAt,
		})
		mentionTags = append(mentionTags, activitypub.TagObject{
			Type: "Mention",
			Name: mention.Handle(),
			Href: account.ActorURI,
		})
		if !account.IsRemote && account.Id != viewer.Id {
			mentionedLocals = append(mentionedLocals, account.Id)
		}
	}

	if err := s.DB.CreateComment(comment, mentionRows); err != nil {
		writeError(c, err)
		return
	}

	if s.Conf.Conf.WithFederation {
		var mentionURIs []string
		for _, tag := range mentionTags {
			mentionURIs = append(mentionURIs, tag.Href)
		}
		if event.IsRemote() {
			mentionURIs = append(mentionURIs, event.AttributedTo)
		}
		note := activitypub.NewCreateNote(comment, inReplyTo, viewer, mentionURIs, mentionTags, s.Conf)
		s.federate(note, viewer)
	}

	for _, accountId := range mentionedLocals {
		s.notify(&domain.Notification{
			AccountId:        accountId,
			NotificationType: domain.NotificationMention,
			ActorId:          viewer.Id,
			ActorHandle:      viewer.Handle(),
			EventId:          event.Id,
			Title:            event.Title,
			Body:             content,
			CreatedAt:        comment.CreatedAt,
		})
	}
	if !event.IsRemote() && event.AccountId != viewer.Id {
		s.notify(&domain.Notification{
			AccountId:        event.AccountId,
			NotificationType: domain.NotificationComment,
			ActorId:          viewer.Id,
			ActorHandle:      viewer.Handle(),
			EventId:          event.Id,
			Title:            event.Title,
			Body:             content,
			CreatedAt:        comment.CreatedAt,
		})
	}

	s.broadcast(domain.BroadcastMessage{Type: domain.BroadcastCommentCreated, Data: s.commentToResponse(comment)})
	c.JSON(http.StatusCreated, s.commentToResponse(comment))
}

func (s *Services) handleListComments(c *gin.Context) {
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}
	err, comments := s.DB.ReadCommentsByEventId(event.Id)
	if err != nil {
		writeError(c, err)
		return
	}
	responses := make([]*commentResponse, 0, len(comments))
	for i := range comments {
		responses = append(responses, s.commentToResponse(&comments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": responses})
}

func (s *Services) handleDeleteComment(c *gin.Context) {
	viewer := viewerFrom(c)

	commentId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "comment not found"))
		return
	}
	err, comment := s.DB.ReadCommentById(commentId)
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "comment not found"))
		return
	}
	if comment.AccountId != viewer.Id {
		writeError(c, domain.NewCodedError(domain.ErrForbidden, "not the comment author"))
		return
	}

	var deleteActivity *activitypub.Activity
	if s.Conf.Conf.WithFederation && comment.ExternalId == "" {
		deleteActivity = activitypub.NewDeleteComment(comment, viewer, s.Conf)
	}

	if err := s.DB.DeleteComment(comment.Id); err != nil {
		writeError(c, err)
		return
	}

	if deleteActivity != nil {
		s.federate(deleteActivity, viewer)
	}
	s.broadcast(domain.BroadcastMessage{
		Type: domain.BroadcastCommentDeleted,
		Data: gin.H{"id": comment.Id, "eventId": comment.EventId},
	})
	c.Status(http.StatusNoContent)
}

// --- follow ----------------------------------------------------------

type followInput struct {
	Handle string `json:"handle"`
}

func (s *Services) handleFollow(c *gin.Context) {
	viewer := viewerFrom(c)

	var in followInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}

	target, err := s.resolveHandle(in.Handle)
	if err != nil {
		writeError(c, domain.NewValidationError("handle", fmt.Sprintf("could not resolve %q", in.Handle)))
		return
	}
	if target.Id == viewer.Id {
		writeError(c, domain.NewValidationError("handle", "cannot follow yourself"))
		return
	}

	followURI := activitypub.NewActivityURI(s.Conf)
	followingRow := &domain.Following{
		Id:        uuid.New(),
		AccountId: viewer.Id,
		ActorURI:  target.ActorURI,
		Handle:    target.Username,
		InboxURI:  target.InboxURI,
		FollowURI: followURI,
		Accepted:  !target.IsRemote,
		CreatedAt: time.Now(),
	}
	if err := s.DB.UpsertFollowing(followingRow); err != nil {
		writeError(c, err)
		return
	}

	if target.IsRemote {
		follow := activitypub.NewFollow(followURI, viewer, target.ActorURI)
		s.federateToActor(follow, viewer, target.ActorURI)
	} else {
		// Local follows need no wire round trip; mirror the edge.
		follower := &domain.Follower{
			Id:        uuid.New(),
			AccountId: target.Id,
			ActorURI:  viewer.ActorURI,
			InboxURI:  viewer.InboxURI,
			FollowURI: followURI,
			Accepted:  true,
			CreatedAt: time.Now(),
		}
		if err := s.DB.UpsertFollower(follower); err != nil {
			writeError(c, err)
			return
		}
		s.notify(&domain.Notification{
			AccountId:        target.Id,
			NotificationType: domain.NotificationFollow,
			ActorId:          viewer.Id,
			ActorHandle:      viewer.Handle(),
			CreatedAt:        time.Now(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"handle": target.Handle(), "accepted": followingRow.Accepted})
}

func (s *Services) handleUnfollow(c *gin.Context) {
	viewer := viewerFrom(c)

	var in followInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}

	target, err := s.resolveHandle(in.Handle)
	if err != nil {
		writeError(c, domain.NewValidationError("handle", fmt.Sprintf("could not resolve %q", in.Handle)))
		return
	}

	err, followingRow := s.DB.ReadFollowing(viewer.Id, target.ActorURI)
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "not following"))
		return
	}

	if target.IsRemote {
		follow := activitypub.NewFollow(followingRow.FollowURI, viewer, target.ActorURI)
		s.federateToActor(activitypub.NewUndo(follow, viewer, s.Conf), viewer, target.ActorURI)
	} else {
		if err := s.DB.DeleteFollower(target.Id, viewer.ActorURI); err != nil {
			log.Printf("API: Failed to delete follower mirror row: %v", err)
		}
	}

	if err := s.DB.DeleteFollowing(viewer.Id, target.ActorURI); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- share -----------------------------------------------------------

func (s *Services) handleShareEvent(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	if event.Visibility != domain.VisibilityPublic {
		writeError(c, domain.NewCodedError(domain.ErrForbidden, "only public events can be shared"))
		return
	}
	if event.IsShare() {
		writeError(c, domain.NewValidationError("id", "cannot share a share"))
		return
	}
	if err, _ := s.DB.ReadShareByAccountAndOriginal(viewer.Id, event.Id); err == nil {
		writeError(c, domain.NewCodedError(domain.ErrConflict, "event already shared"))
		return
	}

	now := time.Now()
	share := &domain.Event{
		Id:            uuid.New(),
		AccountId:     viewer.Id,
		AttributedTo:  viewer.ActorURI,
		Title:         event.Title,
		Timezone:      event.Timezone,
		StartTime:     event.StartTime,
		Visibility:    domain.VisibilityPublic,
		SharedEventId: &event.Id,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.DB.CreateEvent(share, nil); err != nil {
		if isUniqueConstraintErr(err) {
			writeError(c, domain.NewCodedError(domain.ErrConflict, "event already shared"))
			return
		}
		writeError(c, err)
		return
	}

	announceURI := fmt.Sprintf("%s/activities/%s", s.Conf.BaseURL(), share.Id)
	s.federate(activitypub.NewAnnounce(announceURI, viewer, s.eventWireURI(event)), viewer)

	if !event.IsRemote() && event.AccountId != viewer.Id {
		s.notify(&domain.Notification{
			AccountId:        event.AccountId,
			NotificationType: domain.NotificationShare,
			ActorId:          viewer.Id,
			ActorHandle:      viewer.Handle(),
			EventId:          event.Id,
			Title:            event.Title,
			CreatedAt:        now,
		})
	}

	s.broadcast(domain.BroadcastMessage{
		Type: domain.BroadcastEventShared,
		Data: gin.H{"eventId": event.Id, "shareId": share.Id, "accountId": viewer.Id},
	})
	c.JSON(http.StatusCreated, gin.H{"shareId": share.Id, "eventId": event.Id})
}

// --- reminders -------------------------------------------------------

type reminderInput struct {
	MinutesBefore int `json:"minutesBefore"`
}

func (s *Services) handleSetReminder(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	var in reminderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, domain.NewValidationError("body", "malformed JSON"))
		return
	}
	if in.MinutesBefore < 0 {
		writeError(c, domain.NewValidationError("minutesBefore", "must not be negative"))
		return
	}

	now := time.Now()
	occurrence, found := event.NextOccurrenceAfter(now)
	if !found {
		writeError(c, domain.NewValidationError("id", "event has no upcoming occurrence"))
		return
	}

	reminder := &domain.Reminder{
		Id:            uuid.New(),
		AccountId:     viewer.Id,
		EventId:       event.Id,
		RemindAt:      occurrence.Add(-time.Duration(in.MinutesBefore) * time.Minute),
		MinutesBefore: in.MinutesBefore,
		Status:        domain.ReminderPending,
		CreatedAt:     now,
	}
	if err := s.DB.CreateReminder(reminder); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       reminder.Id,
		"eventId":  event.Id,
		"remindAt": reminder.RemindAt.UTC().Format(time.RFC3339),
	})
}

func (s *Services) handleCancelReminder(c *gin.Context) {
	viewer := viewerFrom(c)
	event, ok := s.loadVisibleEvent(c)
	if !ok {
		return
	}

	err, reminder := s.DB.ReadPendingReminder(viewer.Id, event.Id)
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "no pending reminder"))
		return
	}

	cancelled, err := s.DB.CancelReminder(reminder.Id, viewer.Id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !cancelled {
		writeError(c, domain.NewCodedError(domain.ErrConflict, "reminder already sent"))
		return
	}
	c.Status(http.StatusNoContent)
}

// --- notifications ---------------------------------------------------

const notificationsPageLimit = 50

func (s *Services) handleListNotifications(c *gin.Context) {
	viewer := viewerFrom(c)
	err, notifications := s.DB.ReadNotificationsByAccountId(viewer.Id, notificationsPageLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, _ := s.DB.CountUnreadNotifications(viewer.Id)
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "unread": unread})
}

func (s *Services) handleMarkNotificationRead(c *gin.Context) {
	viewer := viewerFrom(c)
	notificationId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "notification not found"))
		return
	}

	marked, err := s.DB.MarkNotificationRead(notificationId, viewer.Id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !marked {
		writeError(c, domain.NewCodedError(domain.ErrNotFound, "notification not found"))
		return
	}

	s.broadcast(domain.BroadcastMessage{
		Type:            domain.BroadcastNotificationRead,
		TargetAccountId: viewer.Id,
		Data:            gin.H{"id": notificationId},
	})
	c.Status(http.StatusNoContent)
}

func (s *Services) handleMarkAllNotificationsRead(c *gin.Context) {
	viewer := viewerFrom(c)
	if err := s.DB.MarkAllNotificationsRead(viewer.Id); err != nil {
		writeError(c, err)
		return
	}
	s.broadcast(domain.BroadcastMessage{
		Type:            domain.BroadcastNotificationRead,
		TargetAccountId: viewer.Id,
	})
	c.Status(http.StatusNoContent)
}
