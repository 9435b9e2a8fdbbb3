package db

import (
	"database/sql"
	"log"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

const (
	sqlAccountColumns = `id, username, display_name, summary, is_remote, actor_uri, inbox_uri,
		shared_inbox_uri, public_key_pem, private_key_pem, api_key, ssh_key_hash, timezone,
		avatar_url, header_url, tombstoned, created_at, last_fetched_at`

	sqlInsertAccount = `INSERT INTO accounts(id, username, display_name, summary, is_remote, actor_uri,
		inbox_uri, shared_inbox_uri, public_key_pem, private_key_pem, api_key, ssh_key_hash, timezone,
		avatar_url, header_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpsertRemoteAccount = `INSERT INTO accounts(id, username, display_name, summary, is_remote,
		actor_uri, inbox_uri, shared_inbox_uri, public_key_pem, avatar_url, header_url, created_at,
		last_fetched_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_uri) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			summary = excluded.summary,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			public_key_pem = excluded.public_key_pem,
			avatar_url = excluded.avatar_url,
			header_url = excluded.header_url,
			tombstoned = 0,
			last_fetched_at = excluded.last_fetched_at`

	sqlSelectAccountById         = `SELECT ` + sqlAccountColumns + ` FROM accounts WHERE id = ?`
	sqlSelectLocalAccountByName  = `SELECT ` + sqlAccountColumns + ` FROM accounts WHERE username = ? AND is_remote = 0`
	sqlSelectAccountByActorURI   = `SELECT ` + sqlAccountColumns + ` FROM accounts WHERE actor_uri = ?`
	sqlSelectAccountByApiKey     = `SELECT ` + sqlAccountColumns + ` FROM accounts WHERE api_key = ? AND is_remote = 0 AND tombstoned = 0`
	sqlSelectAccountBySshKeyHash = `SELECT ` + sqlAccountColumns + ` FROM accounts WHERE ssh_key_hash = ? AND is_remote = 0 AND tombstoned = 0`
	sqlSelectLocalAccounts       = `SELECT ` + sqlAccountColumns + ` FROM accounts WHERE is_remote = 0 AND tombstoned = 0 ORDER BY created_at ASC`

	sqlUpdateAccountProfile = `UPDATE accounts SET display_name = ?, summary = ?, timezone = ?,
		avatar_url = ?, header_url = ? WHERE id = ?`
	sqlTombstoneAccount = `UPDATE accounts SET tombstoned = 1 WHERE actor_uri = ? AND is_remote = 1`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var displayName, summary, actorURI, inboxURI, sharedInboxURI sql.NullString
	var publicKeyPem, privateKeyPem, apiKey, sshKeyHash, timezone sql.NullString
	var avatarURL, headerURL, lastFetchedAt sql.NullString
	var isRemote, tombstoned int
	var createdAt string

	err := row.Scan(&account.Id, &account.Username, &displayName, &summary, &isRemote, &actorURI,
		&inboxURI, &sharedInboxURI, &publicKeyPem, &privateKeyPem, &apiKey, &sshKeyHash, &timezone,
		&avatarURL, &headerURL, &tombstoned, &createdAt, &lastFetchedAt)
	if err != nil {
		return nil, err
	}

	account.DisplayName = displayName.String
	account.Summary = summary.String
	account.IsRemote = isRemote == 1
	account.ActorURI = actorURI.String
	account.InboxURI = inboxURI.String
	account.SharedInboxURI = sharedInboxURI.String
	account.PublicKeyPem = publicKeyPem.String
	account.PrivateKeyPem = privateKeyPem.String
	account.ApiKey = apiKey.String
	account.SshKeyHash = sshKeyHash.String
	account.Timezone = timezone.String
	account.AvatarURL = avatarURL.String
	account.HeaderURL = headerURL.String
	account.Tombstoned = tombstoned == 1
	account.CreatedAt = parseTimestamp(createdAt)
	if lastFetchedAt.Valid {
		account.LastFetchedAt = parseTimestamp(lastFetchedAt.String)
	}
	return &account, nil
}

// CreateAccount inserts a new local account.
func (db *DB) CreateAccount(account *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount,
			account.Id.String(), account.Username, nullString(account.DisplayName),
			nullString(account.Summary), account.IsRemote, nullString(account.ActorURI),
			nullString(account.InboxURI), nullString(account.SharedInboxURI),
			nullString(account.PublicKeyPem), nullString(account.PrivateKeyPem),
			nullString(account.ApiKey), nullString(account.SshKeyHash),
			nullString(account.Timezone), nullString(account.AvatarURL),
			nullString(account.HeaderURL), formatTimestamp(account.CreatedAt))
		return err
	})
}

// UpsertRemoteAccount inserts a fetched remote actor, or refreshes the
// cached copy keyed on actor_uri. A refresh clears the tombstone.
func (db *DB) UpsertRemoteAccount(account *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRemoteAccount,
			account.Id.String(), account.Username, nullString(account.DisplayName),
			nullString(account.Summary), account.ActorURI, nullString(account.InboxURI),
			nullString(account.SharedInboxURI), nullString(account.PublicKeyPem),
			nullString(account.AvatarURL), nullString(account.HeaderURL),
			formatTimestamp(account.CreatedAt), formatTimestamp(account.LastFetchedAt))
		return err
	})
}

// ReadAccountById reads one account by primary key.
func (db *DB) ReadAccountById(id uuid.UUID) (error, *domain.Account) {
	account, err := scanAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
	if err != nil {
		return err, nil
	}
	return nil, account
}

// ReadLocalAccountByUsername reads a local account by username.
func (db *DB) ReadLocalAccountByUsername(username string) (error, *domain.Account) {
	account, err := scanAccount(db.db.QueryRow(sqlSelectLocalAccountByName, username))
	if err != nil {
		return err, nil
	}
	return nil, account
}

// ReadAccountByActorURI reads an account, local or remote, by actor URI.
func (db *DB) ReadAccountByActorURI(actorURI string) (error, *domain.Account) {
	account, err := scanAccount(db.db.QueryRow(sqlSelectAccountByActorURI, actorURI))
	if err != nil {
		return err, nil
	}
	return nil, account
}

// ReadAccountByApiKey resolves an API key to its local account.
func (db *DB) ReadAccountByApiKey(apiKey string) (error, *domain.Account) {
	account, err := scanAccount(db.db.QueryRow(sqlSelectAccountByApiKey, apiKey))
	if err != nil {
		return err, nil
	}
	return nil, account
}

// ReadAccountBySshKeyHash resolves an SSH public key fingerprint to its
// local account.
func (db *DB) ReadAccountBySshKeyHash(hash string) (error, *domain.Account) {
	account, err := scanAccount(db.db.QueryRow(sqlSelectAccountBySshKeyHash, hash))
	if err != nil {
		return err, nil
	}
	return nil, account
}

// ReadLocalAccounts returns all local, non-deleted accounts.
func (db *DB) ReadLocalAccounts() (error, []domain.Account) {
	rows, err := db.db.Query(sqlSelectLocalAccounts)
	if err != nil {
		log.Printf("Error reading local accounts: %v", err)
		return err, nil
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			log.Printf("Error scanning account row: %v", err)
			return err, nil
		}
		accounts = append(accounts, *account)
	}
	return rows.Err(), accounts
}

// UpdateAccountProfile updates the editable profile fields of an account.
func (db *DB) UpdateAccountProfile(id uuid.UUID, displayName, summary, timezone, avatarURL, headerURL string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountProfile, nullString(displayName), nullString(summary),
			nullString(timezone), nullString(avatarURL), nullString(headerURL), id.String())
		return err
	})
}

// TombstoneAccountByActorURI marks a remote account deleted while keeping
// the row, so the actor URI stays resolvable for pending references.
func (db *DB) TombstoneAccountByActorURI(actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlTombstoneAccount, actorURI)
		return err
	})
}
