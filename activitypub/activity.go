package activitypub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

// Public is the special ActivityStreams collection that addresses the
// whole fediverse.
const Public = "https://www.w3.org/ns/activitystreams#Public"

const activityStreamsContext = "https://www.w3.org/ns/activitystreams"

const (
	eventStatusScheduled  = "https://schema.org/EventScheduled"
	attendanceModeOffline = "https://schema.org/OfflineEventAttendanceMode"
)

// stringList unmarshals both a bare string and an array of strings,
// which peers use interchangeably for to and cc.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = stringList{single}
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("expected string or array: %w", err)
	}
	list := make(stringList, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			list = append(list, str)
		}
	}
	*s = list
	return nil
}

func (s stringList) Contains(uri string) bool {
	for _, v := range s {
		if v == uri {
			return true
		}
	}
	return false
}

// Activity is the generic ActivityPub envelope. Object carries the
// polymorphic payload.
type Activity struct {
	Context   any        `json:"@context,omitempty"`
	ID        string     `json:"id,omitempty"`
	Type      string     `json:"type"`
	Actor     string     `json:"actor,omitempty"`
	Published string     `json:"published,omitempty"`
	To        stringList `json:"to,omitempty"`
	CC        stringList `json:"cc,omitempty"`
	BCC       stringList `json:"bcc,omitempty"`
	Object    *Object    `json:"object,omitempty"`
}

// ObjectURI returns the URI of the activity's object, regardless of
// whether the object came over the wire as a bare string or embedded.
func (a *Activity) ObjectURI() string {
	if a.Object == nil {
		return ""
	}
	return a.Object.ID()
}

// Object is the polymorphic object field of an activity. Exactly one
// of the variant pointers is set after parsing; URI is set when the
// object was a bare string reference.
type Object struct {
	URI       string
	Type      string
	Event     *EventObject
	Note      *NoteObject
	Person    *Person
	Tombstone *TombstoneObject
	Activity  *Activity
}

// ID returns the object's URI, looking inside the embedded variant.
func (o *Object) ID() string {
	switch {
	case o.URI != "":
		return o.URI
	case o.Event != nil:
		return o.Event.ID
	case o.Note != nil:
		return o.Note.ID
	case o.Person != nil:
		return o.Person.ID
	case o.Tombstone != nil:
		return o.Tombstone.ID
	case o.Activity != nil:
		return o.Activity.ID
	}
	return ""
}

func (o *Object) MarshalJSON() ([]byte, error) {
	switch {
	case o.Event != nil:
		return json.Marshal(o.Event)
	case o.Note != nil:
		return json.Marshal(o.Note)
	case o.Person != nil:
		return json.Marshal(o.Person)
	case o.Tombstone != nil:
		return json.Marshal(o.Tombstone)
	case o.Activity != nil:
		return json.Marshal(o.Activity)
	}
	return json.Marshal(o.URI)
}

func (o *Object) UnmarshalJSON(data []byte) error {
	var uri string
	if err := json.Unmarshal(data, &uri); err == nil {
		o.URI = uri
		return nil
	}

	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("object is neither URI nor object: %w", err)
	}
	o.Type = head.Type

	switch head.Type {
	case "Event":
		o.Event = &EventObject{}
		return json.Unmarshal(data, o.Event)
	case "Note", "Article":
		o.Note = &NoteObject{}
		return json.Unmarshal(data, o.Note)
	case "Person", "Application", "Service", "Group", "Organization":
		o.Person = &Person{}
		return json.Unmarshal(data, o.Person)
	case "Tombstone":
		o.Tombstone = &TombstoneObject{}
		return json.Unmarshal(data, o.Tombstone)
	case "Follow", "Like", "Announce", "Accept", "TentativeAccept", "Reject", "Create", "Update", "Delete", "Undo":
		o.Activity = &Activity{}
		return json.Unmarshal(data, o.Activity)
	}

	// Unknown type: keep the id so callers can still dereference it.
	o.URI = head.ID
	return nil
}

// EventObject is the wire form of an event.
type EventObject struct {
	ID                  string      `json:"id"`
	Type                string      `json:"type"`
	Name                string      `json:"name"`
	Content             string      `json:"content,omitempty"`
	Location            *Place      `json:"location,omitempty"`
	StartTime           string      `json:"startTime"`
	EndTime             string      `json:"endTime,omitempty"`
	EventStatus         string      `json:"eventStatus,omitempty"`
	EventAttendanceMode string      `json:"eventAttendanceMode,omitempty"`
	AttributedTo        string      `json:"attributedTo"`
	Published           string      `json:"published,omitempty"`
	Updated             string      `json:"updated,omitempty"`
	To                  stringList  `json:"to,omitempty"`
	CC                  stringList  `json:"cc,omitempty"`
	Tag                 []TagObject `json:"tag,omitempty"`
	URL                 string      `json:"url,omitempty"`
}

// Place is the wire form of an event location. Some peers send a bare
// string instead of a Place object.
type Place struct {
	Type      string   `json:"type,omitempty"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (p *Place) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		p.Name = name
		return nil
	}

	type placeAlias Place
	var alias placeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = Place(alias)
	return nil
}

// NoteObject is the wire form of a comment.
type NoteObject struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Content      string      `json:"content"`
	InReplyTo    string      `json:"inReplyTo,omitempty"`
	AttributedTo string      `json:"attributedTo"`
	Published    string      `json:"published,omitempty"`
	To           stringList  `json:"to,omitempty"`
	CC           stringList  `json:"cc,omitempty"`
	Tag          []TagObject `json:"tag,omitempty"`
}

// TagObject covers both Hashtag and Mention entries in a tag array.
type TagObject struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Href string `json:"href,omitempty"`
}

// TombstoneObject marks a deleted object.
type TombstoneObject struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	FormerType string `json:"formerType,omitempty"`
}

// PublicKey is the actor's signing key document.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Endpoints carries the optional sharedInbox of an actor.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// Image is an icon or header reference on an actor document.
type Image struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// Person is an ActivityPub actor document.
type Person struct {
	Context           any        `json:"@context,omitempty"`
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername"`
	Name              string     `json:"name,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Inbox             string     `json:"inbox"`
	Outbox            string     `json:"outbox,omitempty"`
	Followers         string     `json:"followers,omitempty"`
	Following         string     `json:"following,omitempty"`
	PublicKey         *PublicKey `json:"publicKey,omitempty"`
	Endpoints         *Endpoints `json:"endpoints,omitempty"`
	Icon              *Image     `json:"icon,omitempty"`
	Image             *Image     `json:"image,omitempty"`
	Published         string     `json:"published,omitempty"`
}

// ParseActivity decodes an incoming activity envelope. Type and actor
// are the minimum any handler needs.
func ParseActivity(body []byte) (*Activity, error) {
	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}
	if activity.Type == "" {
		return nil, fmt.Errorf("activity missing type")
	}
	if activity.Actor == "" {
		return nil, fmt.Errorf("activity missing actor")
	}
	return &activity, nil
}

func wireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseWireTime parses an RFC3339 timestamp and returns it in local
// time, the zone all stored timestamps use.
func parseWireTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, err)
	}
	return t.Local(), nil
}

// NewActivityURI mints a fresh activity id under this instance.
func NewActivityURI(conf *util.AppConfig) string {
	return conf.BaseURL() + "/activities/" + uuid.New().String()
}

// EventURI returns the canonical URI of an event: the external id for
// remote events, our own /events/ URL for local ones.
func EventURI(event *domain.Event, conf *util.AppConfig) string {
	if event.IsRemote() {
		return event.ExternalId
	}
	return conf.BaseURL() + "/events/" + event.Id.String()
}

// CommentURI returns the canonical URI of a comment.
func CommentURI(comment *domain.Comment, conf *util.AppConfig) string {
	if comment.ExternalId != "" {
		return comment.ExternalId
	}
	return conf.BaseURL() + "/comments/" + comment.Id.String()
}

// LocalEventId extracts the event id from one of our own /events/ URLs.
func LocalEventId(uri string, conf *util.AppConfig) (uuid.UUID, bool) {
	prefix := conf.BaseURL() + "/events/"
	if !strings.HasPrefix(uri, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// LocalCommentId extracts the comment id from one of our /comments/ URLs.
func LocalCommentId(uri string, conf *util.AppConfig) (uuid.UUID, bool) {
	prefix := conf.BaseURL() + "/comments/"
	if !strings.HasPrefix(uri, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// FollowersURI returns the followers collection URL of an actor.
func FollowersURI(account *domain.Account) string {
	return account.ActorURI + "/followers"
}

// visibilityAddressing maps a visibility to wire to/cc lists.
func visibilityAddressing(visibility domain.Visibility, followersURI string, recipientURIs []string) (stringList, stringList) {
	switch visibility {
	case domain.VisibilityPublic:
		return stringList{Public}, stringList{followersURI}
	case domain.VisibilityUnlisted:
		return stringList{followersURI}, stringList{Public}
	case domain.VisibilityFollowers:
		return stringList{followersURI}, nil
	case domain.VisibilityPrivate:
		return stringList(recipientURIs), nil
	}
	return nil, nil
}

// visibilityFromAddressing derives a visibility from incoming to/cc.
func visibilityFromAddressing(to, cc stringList, followersURI string) domain.Visibility {
	switch {
	case to.Contains(Public):
		return domain.VisibilityPublic
	case cc.Contains(Public):
		return domain.VisibilityUnlisted
	case to.Contains(followersURI) || cc.Contains(followersURI):
		return domain.VisibilityFollowers
	}
	return domain.VisibilityPrivate
}

// EventToObject renders a local event in its wire form.
func EventToObject(event *domain.Event, author *domain.Account, recipientURIs []string, conf *util.AppConfig) *EventObject {
	to, cc := visibilityAddressing(event.Visibility, FollowersURI(author), recipientURIs)

	obj := &EventObject{
		ID:                  EventURI(event, conf),
		Type:                "Event",
		Name:                event.Title,
		Content:             event.Summary,
		StartTime:           wireTime(event.StartTime),
		EventStatus:         eventStatusScheduled,
		EventAttendanceMode: attendanceModeOffline,
		AttributedTo:        author.ActorURI,
		Published:           wireTime(event.CreatedAt),
		To:                  to,
		CC:                  cc,
	}
	if event.EndTime != nil {
		obj.EndTime = wireTime(*event.EndTime)
	}
	if event.Location != "" || event.Latitude != nil {
		obj.Location = &Place{
			Type:      "Place",
			Name:      event.Location,
			Latitude:  event.Latitude,
			Longitude: event.Longitude,
		}
	}
	if event.UpdatedAt.After(event.CreatedAt) {
		obj.Updated = wireTime(event.UpdatedAt)
	}
	for _, tag := range event.Tags {
		obj.Tag = append(obj.Tag, TagObject{Type: "Hashtag", Name: "#" + tag})
	}
	if event.ExternalURL != "" {
		obj.URL = event.ExternalURL
	}
	return obj
}

// EventFromObject maps an incoming wire event onto a domain event owned
// by the given remote author. The caller decides insert or overwrite.
func EventFromObject(obj *EventObject, author *domain.Account) (*domain.Event, error) {
	if obj.ID == "" {
		return nil, fmt.Errorf("event object missing id")
	}
	if obj.Name == "" {
		return nil, fmt.Errorf("event object missing name")
	}
	startTime, err := parseWireTime(obj.StartTime)
	if err != nil {
		return nil, fmt.Errorf("event object has invalid startTime: %w", err)
	}

	event := &domain.Event{
		Id:           uuid.New(),
		AccountId:    author.Id,
		ExternalId:   obj.ID,
		AttributedTo: obj.AttributedTo,
		Title:        obj.Name,
		Summary:      obj.Content,
		Timezone:     "UTC",
		StartTime:    startTime,
		Visibility:   visibilityFromAddressing(obj.To, obj.CC, FollowersURI(author)),
		ExternalURL:  obj.URL,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if obj.EndTime != "" {
		if endTime, err := parseWireTime(obj.EndTime); err == nil {
			event.EndTime = &endTime
		}
	}
	if obj.Location != nil {
		event.Location = obj.Location.Name
		event.Latitude = obj.Location.Latitude
		event.Longitude = obj.Location.Longitude
	}
	if obj.Published != "" {
		if published, err := parseWireTime(obj.Published); err == nil {
			event.CreatedAt = published
		}
	}

	// Remote tags that fail our own rules are dropped, not fatal.
	seen := make(map[string]bool)
	for _, tag := range obj.Tag {
		if tag.Type != "Hashtag" {
			continue
		}
		normalized, err := util.NormalizeTag(tag.Name)
		if err != nil || seen[normalized] {
			continue
		}
		seen[normalized] = true
		event.Tags = append(event.Tags, normalized)
	}

	return event, nil
}

// NewCreateEvent wraps a local event in a Create.
func NewCreateEvent(event *domain.Event, author *domain.Account, recipientURIs []string, conf *util.AppConfig) *Activity {
	obj := EventToObject(event, author, recipientURIs, conf)
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Create",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        obj.To,
		CC:        obj.CC,
		Object:    &Object{Event: obj},
	}
}

// NewUpdateEvent wraps a local event in an Update.
func NewUpdateEvent(event *domain.Event, author *domain.Account, recipientURIs []string, conf *util.AppConfig) *Activity {
	obj := EventToObject(event, author, recipientURIs, conf)
	if obj.Updated == "" {
		obj.Updated = wireTime(time.Now())
	}
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Update",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        obj.To,
		CC:        obj.CC,
		Object:    &Object{Event: obj},
	}
}

// NewDeleteEvent announces the deletion of a local event as a Tombstone.
func NewDeleteEvent(event *domain.Event, author *domain.Account, conf *util.AppConfig) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Delete",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        stringList{Public},
		CC:        stringList{FollowersURI(author)},
		Object: &Object{Tombstone: &TombstoneObject{
			ID:         EventURI(event, conf),
			Type:       "Tombstone",
			FormerType: "Event",
		}},
	}
}

// NewUpdatePerson pushes a local profile change to followers.
func NewUpdatePerson(person *Person, author *domain.Account, conf *util.AppConfig) *Activity {
	person.Context = nil
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Update",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        stringList{Public},
		CC:        stringList{FollowersURI(author)},
		Object:    &Object{Person: person},
	}
}

// NewFollow builds a Follow with the given pre-minted id. The id is
// stored on the following row so the eventual Accept can be matched
// back.
func NewFollow(followURI string, author *domain.Account, targetActorURI string) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        followURI,
		Type:      "Follow",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		Object:    &Object{URI: targetActorURI},
	}
}

// NewAcceptFollow accepts a follow request, embedding the original
// Follow so the sender can match it.
func NewAcceptFollow(localAccount *domain.Account, follower *domain.Follower, conf *util.AppConfig) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Accept",
		Actor:     localAccount.ActorURI,
		Published: wireTime(time.Now()),
		To:        stringList{follower.ActorURI},
		Object: &Object{Activity: &Activity{
			ID:     follower.FollowURI,
			Type:   "Follow",
			Actor:  follower.ActorURI,
			Object: &Object{URI: localAccount.ActorURI},
		}},
	}
}

// NewRejectFollow declines a follow request.
func NewRejectFollow(localAccount *domain.Account, follower *domain.Follower, conf *util.AppConfig) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Reject",
		Actor:     localAccount.ActorURI,
		Published: wireTime(time.Now()),
		To:        stringList{follower.ActorURI},
		Object: &Object{Activity: &Activity{
			ID:     follower.FollowURI,
			Type:   "Follow",
			Actor:  follower.ActorURI,
			Object: &Object{URI: localAccount.ActorURI},
		}},
	}
}

// NewRSVP builds an Accept, TentativeAccept or Reject RSVP on an event.
// activityType must be one of those three. rsvpURI is the stable id of
// the RSVP, so a later Undo can name the same activity.
func NewRSVP(activityType, rsvpURI string, author *domain.Account, eventURI string) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        rsvpURI,
		Type:      activityType,
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		Object:    &Object{URI: eventURI},
	}
}

// NewLike builds a Like on an event.
func NewLike(likeURI string, author *domain.Account, eventURI string) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        likeURI,
		Type:      "Like",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		Object:    &Object{URI: eventURI},
	}
}

// NewAnnounce builds an Announce (share) of an event. Shares are always
// public.
func NewAnnounce(announceURI string, author *domain.Account, eventURI string) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        announceURI,
		Type:      "Announce",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        stringList{Public},
		CC:        stringList{FollowersURI(author)},
		Object:    &Object{URI: eventURI},
	}
}

// NewUndo wraps a previously sent activity in an Undo. The inner
// activity is embedded in full so the receiver can match it.
func NewUndo(inner *Activity, author *domain.Account, conf *util.AppConfig) *Activity {
	inner.Context = nil
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Undo",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		Object:    &Object{Activity: inner},
	}
}

// NewCreateNote wraps a comment in a Create. inReplyTo points at the
// parent comment when threading, otherwise at the event itself.
func NewCreateNote(comment *domain.Comment, inReplyTo string, author *domain.Account, recipientURIs []string, mentions []TagObject, conf *util.AppConfig) *Activity {
	to := stringList{Public}
	cc := stringList{FollowersURI(author)}
	for _, uri := range recipientURIs {
		if !cc.Contains(uri) {
			cc = append(cc, uri)
		}
	}

	obj := &NoteObject{
		ID:           CommentURI(comment, conf),
		Type:         "Note",
		Content:      comment.Content,
		InReplyTo:    inReplyTo,
		AttributedTo: author.ActorURI,
		Published:    wireTime(comment.CreatedAt),
		To:           to,
		CC:           cc,
		Tag:          mentions,
	}
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Create",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        to,
		CC:        cc,
		Object:    &Object{Note: obj},
	}
}

// NewDeleteComment announces the deletion of a local comment.
func NewDeleteComment(comment *domain.Comment, author *domain.Account, conf *util.AppConfig) *Activity {
	return &Activity{
		Context:   activityStreamsContext,
		ID:        NewActivityURI(conf),
		Type:      "Delete",
		Actor:     author.ActorURI,
		Published: wireTime(time.Now()),
		To:        stringList{Public},
		CC:        stringList{FollowersURI(author)},
		Object: &Object{Tombstone: &TombstoneObject{
			ID:         CommentURI(comment, conf),
			Type:       "Tombstone",
			FormerType: "Note",
		}},
	}
}
