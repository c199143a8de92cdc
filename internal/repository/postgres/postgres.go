package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/localpost/internal/domain"
	"github.com/splax/localpost/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.AccountRepository = (*Repository)(nil)
	_ repository.MessageRepository = (*Repository)(nil)
)

// CreateAccount inserts an account. Username, email and verification token
// uniqueness is enforced by the schema; violations surface as ConflictError.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	const query = `INSERT INTO accounts (id, username, email, password_hash, verified, verification_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.Verified, emptyToNil(account.VerificationToken), account.CreatedAt)
	return mapConflict(err)
}

// GetAccountByID retrieves an account by identifier.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT id, username, email, password_hash, verified, verification_token, created_at
		FROM accounts WHERE id = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetAccountByEmail fetches an account by email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT id, username, email, password_hash, verified, verification_token, created_at
		FROM accounts WHERE email = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, email))
}

// MarkVerified consumes a verification token. The single UPDATE makes the
// token single-use: a spent token matches no row and reports ErrNotFound.
func (r *Repository) MarkVerified(ctx context.Context, verificationToken string) (*domain.Account, error) {
	const query = `UPDATE accounts
		SET verified = TRUE, verification_token = NULL
		WHERE verification_token = $1
		RETURNING id, username, email, password_hash, verified, verification_token, created_at`
	if verificationToken == "" {
		return nil, repository.ErrNotFound
	}
	return r.scanAccount(r.pool.QueryRow(ctx, query, verificationToken))
}

func (r *Repository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a     domain.Account
		token *string
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Verified, &token, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if token != nil {
		a.VerificationToken = *token
	}
	return &a, nil
}

// CreateOutbound inserts a sent message record.
func (r *Repository) CreateOutbound(ctx context.Context, msg *domain.OutboundMessage) error {
	const query = `INSERT INTO outbound_messages (id, sender_id, recipient, subject, body, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.SenderID, msg.Recipient, msg.Subject, msg.Body, msg.SentAt)
	return mapConflict(err)
}

// CreateInbound inserts a received message record.
func (r *Repository) CreateInbound(ctx context.Context, msg *domain.InboundMessage) error {
	const query = `INSERT INTO inbound_messages (id, account_id, sender, subject, body, received_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.AccountID, msg.Sender, msg.Subject, msg.Body, msg.ReceivedAt, msg.Read)
	return mapConflict(err)
}

// ListInbound returns an account's messages newest first. limit <= 0 lists all.
func (r *Repository) ListInbound(ctx context.Context, accountID string, limit int) ([]domain.InboundMessage, error) {
	query := `SELECT id, account_id, sender, subject, body, received_at, read
		FROM inbound_messages
		WHERE account_id = $1
		ORDER BY received_at DESC, id DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.InboundMessage, 0)
	for rows.Next() {
		var m domain.InboundMessage
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Sender, &m.Subject, &m.Body, &m.ReceivedAt, &m.Read); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead flips the read flag for a message owned by accountID. The
// ownership predicate lives in the WHERE clause so a foreign message is
// indistinguishable from a missing one.
func (r *Repository) MarkRead(ctx context.Context, accountID, messageID string) (*domain.InboundMessage, error) {
	const query = `UPDATE inbound_messages
		SET read = TRUE
		WHERE id = $1 AND account_id = $2
		RETURNING id, account_id, sender, subject, body, received_at, read`
	row := r.pool.QueryRow(ctx, query, messageID, accountID)
	var m domain.InboundMessage
	if err := row.Scan(&m.ID, &m.AccountID, &m.Sender, &m.Subject, &m.Body, &m.ReceivedAt, &m.Read); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// CountUnread counts unread messages for an account.
func (r *Repository) CountUnread(ctx context.Context, accountID string) (int, error) {
	const query = `SELECT COUNT(1) FROM inbound_messages WHERE account_id = $1 AND read = FALSE`
	var count int
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &repository.ConflictError{Constraint: pgErr.ConstraintName}
	}
	return err
}

func emptyToNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}
