package session

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/localpost/internal/domain"
	"github.com/splax/localpost/internal/service/account"
	"github.com/splax/localpost/pkg/token"
)

// Manager binds authenticated accounts to signed cookie tokens. The cookie
// value is a signed JWT referencing a server-side session record, so a
// stolen secret alone cannot forge an identity that was never logged in.
type Manager struct {
	accounts account.Service
	store    Store
	logger   *slog.Logger
	secret   string
	ttl      time.Duration
}

// NewManager constructs a Manager.
func NewManager(accounts account.Service, store Store, logger *slog.Logger, secret string, ttl time.Duration) Manager {
	return Manager{accounts: accounts, store: store, logger: logger, secret: secret, ttl: ttl}
}

// Login authenticates and establishes a session, returning the cookie token.
// Credential errors from the account service pass through unchanged.
func (m Manager) Login(ctx context.Context, email, password string) (string, *domain.Account, error) {
	acct, err := m.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	sess := domain.Session{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Username:  acct.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return "", nil, err
	}
	signed, err := token.Sign(sess.ID, sess.Username, m.secret, m.ttl)
	if err != nil {
		return "", nil, err
	}
	m.logger.Info("session created", "account_id", acct.ID)
	return signed, acct, nil
}

// Current resolves a cookie token to its session. Invalid signatures,
// unknown IDs and expired sessions all come back as a plain miss.
func (m Manager) Current(ctx context.Context, raw string) (domain.Session, bool) {
	if raw == "" {
		return domain.Session{}, false
	}
	claims, err := token.Parse(raw, m.secret)
	if err != nil {
		return domain.Session{}, false
	}
	sess, ok, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		m.logger.Warn("session lookup failed", "error", err)
		return domain.Session{}, false
	}
	return sess, ok
}

// Logout destroys the session behind the token. Idempotent: unknown or
// malformed tokens are a no-op.
func (m Manager) Logout(ctx context.Context, raw string) {
	if raw == "" {
		return
	}
	claims, err := token.Parse(raw, m.secret)
	if err != nil {
		return
	}
	if err := m.store.Delete(ctx, claims.SessionID); err != nil {
		m.logger.Warn("session delete failed", "error", err)
	}
}

// TTL exposes the configured session lifetime for cookie expiry.
func (m Manager) TTL() time.Duration {
	return m.ttl
}

// Close releases the underlying store.
func (m Manager) Close() {
	if m.store != nil {
		m.store.Close()
	}
}
