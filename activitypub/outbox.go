package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

// deliverSigned posts a signed activity payload to a remote inbox and
// returns the HTTP status. A zero status means the request never got a
// response.
func deliverSigned(activityJSON []byte, inboxURI string, sender *domain.Account, client HTTPClient) (int, error) {
	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digestHeaderValue(activityJSON))

	privateKey, err := ParsePrivateKey(sender.PrivateKeyPem)
	if err != nil {
		return 0, fmt.Errorf("failed to parse private key: %w", err)
	}

	keyID := sender.ActorURI + "#main-key"
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return 0, fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// SendActivity signs and posts an activity straight to an inbox,
// bypassing the queue. Use QueueActivity for anything that deserves
// retries.
func SendActivity(activity any, inboxURI string, sender *domain.Account, client HTTPClient) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	status, err := deliverSigned(activityJSON, inboxURI, sender, client)
	if err != nil {
		return err
	}
	log.Printf("Outbox: Sent %T to %s (status: %d)", activity, inboxURI, status)
	return nil
}

// CollectRecipients expands an activity's to, cc and bcc into concrete
// delivery inboxes: the Public marker is dropped, the sender's own
// followers collection is substituted with the accepted followers, and
// duplicate inboxes collapse (which also folds several followers on one
// server into their shared inbox). The sender itself is never included.
func CollectRecipients(activity *Activity, sender *domain.Account, client HTTPClient, database Database) []string {
	var uris []string
	uris = append(uris, activity.To...)
	uris = append(uris, activity.CC...)
	uris = append(uris, activity.BCC...)

	followersURI := FollowersURI(sender)
	seen := make(map[string]bool)
	var inboxes []string
	addInbox := func(inbox string) {
		if inbox == "" || seen[inbox] {
			return
		}
		seen[inbox] = true
		inboxes = append(inboxes, inbox)
	}

	for _, uri := range uris {
		switch uri {
		case "", Public, sender.ActorURI:
			continue
		case followersURI:
			err, followers := database.ReadFollowersByAccountId(sender.Id)
			if err != nil {
				log.Printf("Outbox: Failed to read followers for %s: %v", sender.Username, err)
				continue
			}
			for _, follower := range followers {
				if !follower.Accepted {
					continue
				}
				if follower.SharedInboxURI != "" {
					addInbox(follower.SharedInboxURI)
				} else {
					addInbox(follower.InboxURI)
				}
			}
		default:
			recipient, err := GetOrFetchActor(uri, client, database)
			if err != nil {
				log.Printf("Outbox: Failed to resolve recipient %s: %v", uri, err)
				continue
			}
			if !recipient.IsRemote {
				continue
			}
			addInbox(recipient.DeliveryInbox())
		}
	}
	return inboxes
}

func enqueue(activityJSON string, sender *domain.Account, inboxURI string, database Database) error {
	item := &domain.DeliveryItem{
		Id:           uuid.New(),
		AccountId:    sender.Id,
		InboxURI:     inboxURI,
		ActivityJSON: activityJSON,
		Attempts:     0,
		NextRetryAt:  time.Now(),
		CreatedAt:    time.Now(),
	}
	return database.EnqueueDelivery(item)
}

// QueueActivity fans an activity out to its expanded audience through
// the persistent delivery queue.
func QueueActivity(activity *Activity, sender *domain.Account, client HTTPClient, database Database) error {
	inboxes := CollectRecipients(activity, sender, client, database)
	if len(inboxes) == 0 {
		log.Printf("Outbox: No recipients for %s from %s", activity.Type, sender.Username)
		return nil
	}

	activityJSON := mustMarshal(activity)
	queued := 0
	for _, inbox := range inboxes {
		if err := enqueue(activityJSON, sender, inbox, database); err != nil {
			log.Printf("Outbox: Failed to queue delivery to %s: %v", inbox, err)
			continue
		}
		queued++
	}
	log.Printf("Outbox: Queued %s from %s to %d inboxes", activity.Type, sender.Username, queued)
	return nil
}

// QueueToInbox queues an activity for one known inbox.
func QueueToInbox(activity *Activity, sender *domain.Account, inboxURI string, database Database) error {
	if err := enqueue(mustMarshal(activity), sender, inboxURI, database); err != nil {
		return fmt.Errorf("failed to queue delivery to %s: %w", inboxURI, err)
	}
	return nil
}

// QueueToActor resolves an actor URI and queues an activity for its
// inbox.
func QueueToActor(activity *Activity, sender *domain.Account, actorURI string, client HTTPClient, database Database) error {
	recipient, err := GetOrFetchActor(actorURI, client, database)
	if err != nil {
		return fmt.Errorf("failed to resolve actor %s: %w", actorURI, err)
	}
	if !recipient.IsRemote {
		return nil
	}
	return QueueToInbox(activity, sender, recipient.DeliveryInbox(), database)
}

// mustMarshal marshals v to JSON, panicking on error
func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return string(b)
}
