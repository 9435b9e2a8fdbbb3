package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/activitypub"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/util"
)

const activityStreamsContext = "https://www.w3.org/ns/activitystreams"

// collectionPageSize is the number of items per OrderedCollectionPage.
const collectionPageSize = 20

type action uint

const (
	id action = iota
	inbox
	outbox
	followers
	following
	sharedInbox
)

func getIRI(domain string, username string, a action) string {
	prefix := fmt.Sprintf("https://%s/users/%s", domain, username)
	switch a {
	case inbox:
		return fmt.Sprintf("%s/inbox", prefix)
	case outbox:
		return fmt.Sprintf("%s/outbox", prefix)
	case followers:
		return fmt.Sprintf("%s/followers", prefix)
	case following:
		return fmt.Sprintf("%s/following", prefix)
	case id:
		return prefix
	case sharedInbox:
		return fmt.Sprintf("https://%s/inbox", domain)
	default:
		return ""
	}
}

// GetActor renders a local account as an ActivityPub Person document.
func GetActor(username string, conf *util.AppConfig, database *db.DB) (error, string) {
	err, acc := database.ReadLocalAccountByUsername(username)
	if err != nil {
		return err, "{}"
	}

	displayName := acc.DisplayName
	if displayName == "" {
		displayName = acc.Username
	}

	d := conf.Conf.SslDomain
	person := activitypub.Person{
		Context: []string{
			activityStreamsContext,
			"https://w3id.org/security/v1",
		},
		ID:                getIRI(d, username, id),
		Type:              "Person",
		PreferredUsername: acc.Username,
		Name:              displayName,
		Summary:           acc.Summary,
		Inbox:             getIRI(d, username, inbox),
		Outbox:            getIRI(d, username, outbox),
		Followers:         getIRI(d, username, followers),
		Following:         getIRI(d, username, following),
		Endpoints:         &activitypub.Endpoints{SharedInbox: getIRI(d, username, sharedInbox)},
		PublicKey: &activitypub.PublicKey{
			ID:           getIRI(d, username, id) + "#main-key",
			Owner:        getIRI(d, username, id),
			PublicKeyPem: acc.PublicKeyPem,
		},
		Published: acc.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if acc.AvatarURL != "" {
		person.Icon = &activitypub.Image{Type: "Image", URL: acc.AvatarURL}
	}
	if acc.HeaderURL != "" {
		person.Image = &activitypub.Image{Type: "Image", URL: acc.HeaderURL}
	}

	jsonBytes, err := json.Marshal(person)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetEventObject renders a local event as ActivityPub JSON-LD.
func GetEventObject(eventId uuid.UUID, conf *util.AppConfig, database *db.DB) (error, string) {
	err, event := database.ReadEventById(eventId)
	if err != nil {
		return err, "{}"
	}
	err, author := database.ReadAccountById(event.AccountId)
	if err != nil {
		return err, "{}"
	}

	var recipientURIs []string
	if event.Visibility == "PRIVATE" {
		err, recipientIds := database.ReadEventRecipients(event.Id)
		if err == nil {
			for _, rid := range recipientIds {
				if err, recipient := database.ReadAccountById(rid); err == nil {
					recipientURIs = append(recipientURIs, recipient.ActorURI)
				}
			}
		}
	}

	doc := struct {
		Context string `json:"@context"`
		*activitypub.EventObject
	}{
		Context:     activityStreamsContext,
		EventObject: activitypub.EventToObject(event, author, recipientURIs, conf),
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetOutbox renders a user's public activity history. A page below 1
// returns the collection header with a link to the first page.
func GetOutbox(username string, page int, conf *util.AppConfig, database *db.DB) (error, string) {
	err, acc := database.ReadLocalAccountByUsername(username)
	if err != nil {
		return err, "{}"
	}

	total, err := database.CountPublicEventsByUsername(username)
	if err != nil {
		return err, "{}"
	}

	collectionURI := getIRI(conf.Conf.SslDomain, username, outbox)
	if page < 1 {
		return nil, marshalCollection(collectionURI, total)
	}

	err, events := database.ReadPublicEventsByUsername(username, collectionPageSize, (page-1)*collectionPageSize)
	if err != nil {
		return err, "{}"
	}

	items := make([]any, 0, len(events))
	for i := range events {
		event := &events[i]
		obj := activitypub.EventToObject(event, acc, nil, conf)
		activityType := "Create"
		if event.IsShare() {
			activityType = "Announce"
		}
		items = append(items, map[string]any{
			"id":        obj.ID + "/activity",
			"type":      activityType,
			"actor":     acc.ActorURI,
			"published": obj.Published,
			"to":        obj.To,
			"cc":        obj.CC,
			"object":    obj,
		})
	}

	return nil, marshalCollectionPage(collectionURI, page, total, items)
}

// GetFollowersCollection returns the OrderedCollection header for a
// user's followers. Collections always page, which is what the large
// fediverse servers expect.
func GetFollowersCollection(username string, conf *util.AppConfig, totalItems int) string {
	return marshalCollection(getIRI(conf.Conf.SslDomain, username, followers), totalItems)
}

// GetFollowersPage returns one OrderedCollectionPage of follower actor URIs.
func GetFollowersPage(username string, conf *util.AppConfig, followerURIs []string, page int) string {
	return marshalCollectionPage(getIRI(conf.Conf.SslDomain, username, followers),
		page, len(followerURIs), pageSlice(followerURIs, page))
}

// GetFollowingCollection returns the OrderedCollection header for the
// accounts a user follows.
func GetFollowingCollection(username string, conf *util.AppConfig, totalItems int) string {
	return marshalCollection(getIRI(conf.Conf.SslDomain, username, following), totalItems)
}

// GetFollowingPage returns one OrderedCollectionPage of followed actor URIs.
func GetFollowingPage(username string, conf *util.AppConfig, followingURIs []string, page int) string {
	return marshalCollectionPage(getIRI(conf.Conf.SslDomain, username, following),
		page, len(followingURIs), pageSlice(followingURIs, page))
}

func pageSlice(uris []string, page int) []any {
	items := []any{}
	start := (page - 1) * collectionPageSize
	if start >= len(uris) {
		return items
	}
	end := start + collectionPageSize
	if end > len(uris) {
		end = len(uris)
	}
	for _, uri := range uris[start:end] {
		items = append(items, uri)
	}
	return items
}

func marshalCollection(collectionURI string, totalItems int) string {
	collection := map[string]any{
		"@context":   activityStreamsContext,
		"id":         collectionURI,
		"type":       "OrderedCollection",
		"totalItems": totalItems,
		"first":      fmt.Sprintf("%s?page=1", collectionURI),
	}
	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

func marshalCollectionPage(collectionURI string, page, totalItems int, items []any) string {
	pageURI := fmt.Sprintf("%s?page=%d", collectionURI, page)
	collectionPage := map[string]any{
		"@context":     activityStreamsContext,
		"id":           pageURI,
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURI,
		"totalItems":   totalItems,
		"orderedItems": items,
	}
	if page*collectionPageSize < totalItems {
		collectionPage["next"] = fmt.Sprintf("%s?page=%d", collectionURI, page+1)
	}
	jsonBytes, err := json.Marshal(collectionPage)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// GetWebfinger resolves an acct: resource to a JRD pointing at the
// local actor document.
func GetWebfinger(username string, conf *util.AppConfig, database *db.DB) (error, string) {
	if ok, _ := util.IsValidWebFingerUsername(username); !ok {
		return fmt.Errorf("invalid webfinger username %q", username), GetWebFingerNotFound()
	}

	err, acc := database.ReadLocalAccountByUsername(username)
	if err != nil {
		return err, GetWebFingerNotFound()
	}

	actorURI := getIRI(conf.Conf.SslDomain, acc.Username, id)
	jrd := map[string]any{
		"subject": fmt.Sprintf("acct:%s@%s", acc.Username, conf.Conf.SslDomain),
		"aliases": []string{actorURI},
		"links": []map[string]string{
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": actorURI,
			},
			{
				"rel":  "http://webfinger.net/rel/profile-page",
				"type": "application/activity+json",
				"href": actorURI,
			},
		},
	}

	jsonBytes, err := json.Marshal(jrd)
	if err != nil {
		return err, GetWebFingerNotFound()
	}
	return nil, string(jsonBytes)
}

// GetWebFingerNotFound is the body of a failed webfinger lookup.
func GetWebFingerNotFound() string {
	return `{"error": "resource not found"}`
}

// trimWebFingerResource strips the acct: prefix and the local domain
// suffix from a webfinger resource query.
func trimWebFingerResource(resource, sslDomain string) (string, bool) {
	if !strings.HasPrefix(resource, "acct:") {
		return "", false
	}
	resource = strings.TrimPrefix(resource, "acct:")
	resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", sslDomain))
	if resource == "" || strings.Contains(resource, "@") {
		return "", false
	}
	return resource, true
}
