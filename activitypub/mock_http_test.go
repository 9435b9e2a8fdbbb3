package activitypub

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

// MockHTTPClient records outgoing requests and serves canned responses
// keyed by URL. URLs without a canned response get a 404.
type MockHTTPClient struct {
	mu        sync.Mutex
	Requests  []*http.Request
	responses map[string]mockResponse
	Err       error
}

type mockResponse struct {
	status int
	body   []byte
}

// NewMockHTTPClient creates a mock HTTP client with no canned responses
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{responses: make(map[string]mockResponse)}
}

// SetResponse registers the response served for requests to url
func (c *MockHTTPClient) SetResponse(url string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[url] = mockResponse{status: status, body: body}
}

// Do records the request and returns the canned response for its URL
func (c *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return nil, c.Err
	}
	resp, ok := c.responses[req.URL.String()]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(bytes.NewReader(resp.body)),
	}, nil
}

// RequestCount returns how many requests were recorded
func (c *MockHTTPClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

var _ HTTPClient = (*MockHTTPClient)(nil)

// mockBroadcaster records broadcast messages for inspection.
type mockBroadcaster struct {
	mu       sync.Mutex
	Messages []domain.BroadcastMessage
}

func (b *mockBroadcaster) Broadcast(msg domain.BroadcastMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Messages = append(b.Messages, msg)
}

func (b *mockBroadcaster) MessagesOfType(typ domain.BroadcastType) []domain.BroadcastMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BroadcastMessage
	for _, msg := range b.Messages {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

var _ Broadcaster = (*mockBroadcaster)(nil)

// newTestConf builds a config whose BaseURL is https://<sslDomain>.
func newTestConf(sslDomain string) *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = sslDomain
	conf.Conf.DeliveryWorkers = 2
	conf.Conf.ProcessedActivityTtlDays = 30
	return conf
}

// newTestLocalAccount builds a local account with a working key pair.
func newTestLocalAccount(t *testing.T, username string, conf *util.AppConfig) *domain.Account {
	t.Helper()
	priv, pub, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}
	pubPEM, err := publicKeyToPEM(pub)
	if err != nil {
		t.Fatalf("Failed to encode public key: %v", err)
	}
	actorURI := conf.BaseURL() + "/users/" + username
	return &domain.Account{
		Id:            uuid.New(),
		Username:      username,
		ActorURI:      actorURI,
		InboxURI:      actorURI + "/inbox",
		PublicKeyPem:  pubPEM,
		PrivateKeyPem: privateKeyToPEM(priv),
		CreatedAt:     time.Now(),
	}
}

// testRemoteActor bundles a remote account with the key that signs as it.
type testRemoteActor struct {
	Account    *domain.Account
	PrivateKey *rsa.PrivateKey
}

// newTestRemoteActor builds a remote account on host with a working key
// pair. LastFetchedAt is fresh so handlers use the cached copy.
func newTestRemoteActor(t *testing.T, username, host string) *testRemoteActor {
	t.Helper()
	priv, pub, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}
	pubPEM, err := publicKeyToPEM(pub)
	if err != nil {
		t.Fatalf("Failed to encode public key: %v", err)
	}
	actorURI := "https://" + host + "/users/" + username
	return &testRemoteActor{
		Account: &domain.Account{
			Id:             uuid.New(),
			Username:       username + "@" + host,
			IsRemote:       true,
			ActorURI:       actorURI,
			InboxURI:       actorURI + "/inbox",
			SharedInboxURI: "https://" + host + "/inbox",
			PublicKeyPem:   pubPEM,
			CreatedAt:      time.Now(),
			LastFetchedAt:  time.Now(),
		},
		PrivateKey: priv,
	}
}

// signedInboxRequest builds a POST carrying body, signed with key as
// keyID, the way a remote server would deliver an activity.
func signedInboxRequest(t *testing.T, target string, body []byte, key *rsa.PrivateKey, keyID string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("POST", target, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", calculateDigest(body))
	if err := SignRequest(req, key, keyID); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}
	// The server reads Host from the request line, not the header map.
	req.Host = req.URL.Host
	req.Header.Del("Host")
	return req
}

// personDocument renders a minimal actor document the fetch path accepts.
func personDocument(account *domain.Account, preferredUsername string) []byte {
	doc := fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": %q,
		"type": "Person",
		"preferredUsername": %q,
		"inbox": %q,
		"endpoints": {"sharedInbox": %q},
		"publicKey": {"id": %q, "owner": %q, "publicKeyPem": %q}
	}`, account.ActorURI, preferredUsername, account.InboxURI,
		account.SharedInboxURI, account.ActorURI+"#main-key", account.ActorURI,
		account.PublicKeyPem)
	return []byte(doc)
}
