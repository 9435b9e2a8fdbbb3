package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account represents a user, local or remote. Local accounts carry a key
// pair and their own canonical actor URL; remote accounts carry the
// external actor URI and no private key. Remote usernames are stored as
// user@host.
type Account struct {
	Id             uuid.UUID
	Username       string
	DisplayName    string
	Summary        string
	IsRemote       bool
	ActorURI       string
	InboxURI       string
	SharedInboxURI string
	PublicKeyPem   string
	PrivateKeyPem  string
	ApiKey         string
	SshKeyHash     string
	Timezone       string
	AvatarURL      string
	HeaderURL      string
	Tombstoned     bool
	CreatedAt      time.Time
	LastFetchedAt  time.Time
}

// PreferredUsername returns the username without the host segment.
func (a *Account) PreferredUsername() string {
	if i := strings.Index(a.Username, "@"); i >= 0 {
		return a.Username[:i]
	}
	return a.Username
}

// Domain returns the host segment of a remote username, empty for locals.
func (a *Account) Domain() string {
	if i := strings.Index(a.Username, "@"); i >= 0 {
		return a.Username[i+1:]
	}
	return ""
}

// Handle returns the @user or @user@host form.
func (a *Account) Handle() string {
	return "@" + a.Username
}

// DeliveryInbox prefers the shared inbox when the remote server offers one.
func (a *Account) DeliveryInbox() string {
	if a.SharedInboxURI != "" {
		return a.SharedInboxURI
	}
	return a.InboxURI
}
