package brokerage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/rs/zerolog"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
)

// tokenTTL bounds how old an encrypted token file may be before it is ignored,
// independent of the expiry the server reported.
const tokenTTL = 30 * 24 * time.Hour

// Session is an authenticated brokerage session.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the session has a token that has not expired at now.
func (s Session) Valid(now time.Time) bool {
	if s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// TokenCache keeps the session token on disk, encrypted and signed with a
// fernet key, so the second factor is not requested on every run.
type TokenCache struct {
	path string
	key  *fernet.Key
	now  func() time.Time
}

// NewTokenCache creates a cache at path using a base64 fernet key.
func NewTokenCache(path, encodedKey string) (*TokenCache, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}
	return &TokenCache{path: path, key: key, now: time.Now}, nil
}

// Load returns the cached session. Missing, undecryptable, stale or expired
// tokens are reported as absent.
func (c *TokenCache) Load() (Session, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return Session{}, false
	}

	plain := fernet.VerifyAndDecrypt(data, tokenTTL, []*fernet.Key{c.key})
	if plain == nil {
		return Session{}, false
	}

	var s Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return Session{}, false
	}
	if !s.Valid(c.now()) {
		return Session{}, false
	}
	return s, true
}

// Save encrypts the session and writes it with owner-only permissions.
func (c *TokenCache) Save(s Session) error {
	plain, err := json.Marshal(s)
	if err != nil {
		return err
	}

	token, err := fernet.EncryptAndSign(plain, c.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	if err := os.WriteFile(c.path, token, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear removes the cached session.
func (c *TokenCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SessionAuthenticator logs in through Client, reusing a cached token when
// one is available. Cache is optional.
type SessionAuthenticator struct {
	Client      *Client
	Cache       *TokenCache
	Credentials Credentials
	Log         zerolog.Logger
}

// Authenticate implements Authenticator. A cached token is checked with one
// request first; a token the server rejects is cleared and a fresh login is
// made.
func (a *SessionAuthenticator) Authenticate(ctx context.Context) (Source, error) {
	if a.Cache != nil {
		if s, ok := a.Cache.Load(); ok {
			a.Client.SetToken(s.AccessToken)
			err := a.Client.CheckSession(ctx)
			switch {
			case err == nil:
				a.Log.Debug().Msg("reusing cached brokerage session")
				return a.Client, nil
			case errors.Is(err, apperrors.ErrAuthentication):
				a.Log.Info().Msg("cached brokerage session rejected, logging in again")
				a.Client.SetToken("")
				if err := a.Cache.Clear(); err != nil {
					a.Log.Warn().Err(err).Msg("failed to clear cached brokerage session")
				}
			default:
				return nil, fmt.Errorf("failed to check cached session: %w", err)
			}
		}
	}

	session, err := a.Client.Login(ctx, a.Credentials)
	if err != nil {
		return nil, err
	}

	if a.Cache != nil {
		if err := a.Cache.Save(session); err != nil {
			a.Log.Warn().Err(err).Msg("failed to cache brokerage session")
		}
	}
	return a.Client, nil
}
