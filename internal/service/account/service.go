package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/localpost/internal/domain"
	"github.com/splax/localpost/internal/notify"
	"github.com/splax/localpost/internal/repository"
	"github.com/splax/localpost/pkg/crypto"
)

// Sentinel errors for the registration and login workflows.
var (
	ErrMissingFields      = errors.New("username, email and password are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("account not verified")
)

const verificationTokenBytes = 32

// Service handles account registration, verification and authentication.
type Service struct {
	accounts repository.AccountRepository
	notifier notify.Notifier
	logger   *slog.Logger
	baseURL  string
	sender   string
}

// New constructs a Service.
func New(accounts repository.AccountRepository, notifier notify.Notifier, logger *slog.Logger, baseURL, sender string) Service {
	return Service{
		accounts: accounts,
		notifier: notifier,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		sender:   sender,
	}
}

// Register creates an unverified account and dispatches a verification
// notice. Uniqueness of username and email is the database's call; the
// conflict it reports is authoritative.
func (s Service) Register(ctx context.Context, username, email, password, confirm string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	verificationToken, err := crypto.NewURLToken(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	account := &domain.Account{
		ID:                uuid.NewString(),
		Username:          username,
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: verificationToken,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, mapCreateError(err)
	}

	// Delivery of the verification notice is best effort; the account is
	// already persisted and the token can be re-sent out of band.
	notice := notify.Notice{
		From:    s.sender,
		To:      email,
		Subject: "Verify Your Email",
		Body:    fmt.Sprintf("Please click the following link to verify your email: %s/verify/%s", s.baseURL, verificationToken),
	}
	if err := s.notifier.Send(ctx, notice); err != nil {
		s.logger.Warn("verification notice failed", "account_id", account.ID, "error", err)
	}

	s.logger.Info("account registered", "account_id", account.ID, "username", username)
	return account, nil
}

// Verify consumes a verification token. Each token works exactly once.
func (s Service) Verify(ctx context.Context, verificationToken string) (*domain.Account, error) {
	account, err := s.accounts.MarkVerified(ctx, strings.TrimSpace(verificationToken))
	if err != nil {
		return nil, err
	}
	s.logger.Info("account verified", "account_id", account.ID)
	return account, nil
}

// Get fetches an account by its identifier.
func (s Service) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accounts.GetAccountByID(ctx, accountID)
}

// Authenticate checks credentials for an account. Unknown email and wrong
// password collapse into the same error so callers cannot probe which
// addresses are registered.
func (s Service) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := crypto.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !account.Verified {
		return nil, ErrNotVerified
	}
	return account, nil
}

func mapCreateError(err error) error {
	var conflict *repository.ConflictError
	if errors.As(err, &conflict) {
		if strings.Contains(conflict.Constraint, "username") {
			return ErrUsernameTaken
		}
		return ErrEmailTaken
	}
	if errors.Is(err, repository.ErrConflict) {
		return ErrEmailTaken
	}
	return err
}
