// Package middleware wires SSH sessions to the operator console: public
// key auth against stored key hashes, then a bubbletea program per
// session.
package middleware

import (
	"log"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

type contextKey string

// accountKey holds the *domain.Account resolved for the session, or an
// unpersisted first-login account carrying only the key hash.
const accountKey contextKey = "account"

// AuthMiddleware resolves the connecting public key to a local account.
// Unknown keys pass through with a blank account so the console can run
// registration, unless the instance is closed.
func AuthMiddleware(conf *util.AppConfig, database *db.DB) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			key := s.PublicKey()
			if key == nil {
				wish.Println(s, "A public key is required to connect.")
				return
			}
			util.LogPublicKey(s)

			hash := util.PkToHash(util.PublicKeyToString(key))
			err, account := database.ReadAccountBySshKeyHash(hash)
			if err != nil {
				log.Printf("Auth: Failed to look up key hash: %v", err)
				wish.Println(s, "Something went wrong, try again later.")
				return
			}

			if account == nil {
				if conf.Conf.Closed {
					wish.Println(s, "This instance is closed to new registrations.")
					return
				}
				account = &domain.Account{SshKeyHash: hash}
			} else if account.Tombstoned {
				wish.Println(s, "This account has been deleted.")
				return
			}

			s.Context().SetValue(accountKey, account)
			next(s)
		}
	}
}

// AccountFromSession returns the account the auth middleware attached.
func AccountFromSession(s ssh.Session) *domain.Account {
	if account, ok := s.Context().Value(accountKey).(*domain.Account); ok {
		return account
	}
	return nil
}
