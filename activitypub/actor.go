package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

// acceptActivityJSON is the Accept header for actor and object fetches.
const acceptActivityJSON = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// actorStaleAfter is how long a cached remote actor is trusted before a
// background refresh is attempted on next use.
const actorStaleAfter = 24 * time.Hour

// GetOrFetchActor returns the account for a remote actor URI, serving
// from the local cache when fresh and fetching otherwise. A failed
// refresh falls back to the stale cached copy so a flaky peer does not
// take its own followers down with it.
func GetOrFetchActor(actorURI string, client HTTPClient, database Database) (*domain.Account, error) {
	err, cached := database.ReadAccountByActorURI(actorURI)
	if err == nil && cached != nil {
		if !cached.IsRemote || cached.Tombstoned {
			return cached, nil
		}
		if time.Since(cached.LastFetchedAt) < actorStaleAfter {
			return cached, nil
		}
		refreshed, fetchErr := FetchActor(actorURI, client, database)
		if fetchErr != nil {
			log.Printf("Warning: Failed to refresh actor %s, using cached copy: %v", actorURI, fetchErr)
			return cached, nil
		}
		return refreshed, nil
	}

	return FetchActor(actorURI, client, database)
}

// FetchActor dereferences an actor document and upserts it into the
// accounts table. A 410 tombstones any cached copy.
func FetchActor(actorURI string, client HTTPClient, database Database) (*domain.Account, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create actor request: %w", err)
	}
	req.Header.Set("Accept", acceptActivityJSON)
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewCodedError(domain.ErrRemoteFailure, fmt.Sprintf("failed to fetch actor %s: %v", actorURI, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		if err := database.TombstoneAccountByActorURI(actorURI); err != nil {
			log.Printf("Error tombstoning gone actor %s: %v", actorURI, err)
		}
		return nil, domain.NewCodedError(domain.ErrRemoteFailure, fmt.Sprintf("actor %s is gone", actorURI))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewCodedError(domain.ErrRemoteFailure, fmt.Sprintf("actor fetch %s returned status %d", actorURI, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read actor response: %w", err)
	}

	var person Person
	if err := json.Unmarshal(body, &person); err != nil {
		return nil, fmt.Errorf("failed to parse actor document: %w", err)
	}

	return upsertRemoteActor(&person, actorURI, database)
}

// upsertRemoteActor validates a fetched actor document and stores it.
func upsertRemoteActor(person *Person, requestedURI string, database Database) (*domain.Account, error) {
	if person.ID == "" {
		return nil, fmt.Errorf("actor document missing id")
	}
	if person.Inbox == "" {
		return nil, fmt.Errorf("actor %s has no inbox", person.ID)
	}
	if person.PreferredUsername == "" {
		return nil, fmt.Errorf("actor %s has no preferredUsername", person.ID)
	}

	docURL, err := url.Parse(person.ID)
	if err != nil {
		return nil, fmt.Errorf("actor id %q is not a URL: %w", person.ID, err)
	}
	reqURL, err := url.Parse(requestedURI)
	if err != nil {
		return nil, fmt.Errorf("actor URI %q is not a URL: %w", requestedURI, err)
	}
	// An actor document must not claim an id on a host other than the
	// one it was fetched from.
	if !strings.EqualFold(docURL.Host, reqURL.Host) {
		return nil, fmt.Errorf("actor id %s does not match fetched host %s", person.ID, reqURL.Host)
	}

	account := &domain.Account{
		Id:            uuid.New(),
		Username:      strings.ToLower(person.PreferredUsername) + "@" + strings.ToLower(docURL.Host),
		DisplayName:   person.Name,
		Summary:       person.Summary,
		IsRemote:      true,
		ActorURI:      person.ID,
		InboxURI:      person.Inbox,
		LastFetchedAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	if person.PublicKey != nil {
		account.PublicKeyPem = person.PublicKey.PublicKeyPem
	}
	if person.Endpoints != nil {
		account.SharedInboxURI = person.Endpoints.SharedInbox
	}
	if person.Icon != nil {
		account.AvatarURL = person.Icon.URL
	}
	if person.Image != nil {
		account.HeaderURL = person.Image.URL
	}

	if err := database.UpsertRemoteAccount(account); err != nil {
		return nil, fmt.Errorf("failed to store remote actor %s: %w", person.ID, err)
	}

	// Re-read so callers see the canonical row id, which an upsert over
	// an existing actor keeps.
	err, stored := database.ReadAccountByActorURI(person.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read stored actor %s: %w", person.ID, err)
	}
	return stored, nil
}

// webFingerResponse is the JRD subset we need to resolve a handle.
type webFingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// ResolveHandle turns a user@host handle into an actor URI via the
// remote server's WebFinger endpoint.
func ResolveHandle(handle string, client HTTPClient) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	parts := strings.SplitN(handle, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", domain.NewValidationError("handle", "expected user@host")
	}
	host := parts[1]

	endpoint := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s",
		host, url.QueryEscape("acct:"+handle))
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create webfinger request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return "", domain.NewCodedError(domain.ErrRemoteFailure, fmt.Sprintf("webfinger lookup for %s failed: %v", handle, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.NewCodedError(domain.ErrNotFound, fmt.Sprintf("no account %s on %s", parts[0], host))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.NewCodedError(domain.ErrRemoteFailure, fmt.Sprintf("webfinger lookup for %s returned status %d", handle, resp.StatusCode))
	}

	var jrd webFingerResponse
	if err := json.NewDecoder(resp.Body).Decode(&jrd); err != nil {
		return "", fmt.Errorf("failed to parse webfinger response: %w", err)
	}

	for _, link := range jrd.Links {
		if link.Rel == "self" && (link.Type == "application/activity+json" ||
			link.Type == `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`) {
			return link.Href, nil
		}
	}
	return "", domain.NewCodedError(domain.ErrRemoteFailure, fmt.Sprintf("no actor link in webfinger response for %s", handle))
}
