package repository

import (
	"context"

	"github.com/splax/localpost/internal/domain"
)

// AccountRepository persists accounts and verification state.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	// MarkVerified flips the verified flag and clears the token for the
	// account holding it. ErrNotFound when the token is unknown, which
	// also covers a second use of a spent token.
	MarkVerified(ctx context.Context, verificationToken string) (*domain.Account, error)
}

// MessageRepository persists outbound and inbound messages.
type MessageRepository interface {
	CreateOutbound(ctx context.Context, msg *domain.OutboundMessage) error
	CreateInbound(ctx context.Context, msg *domain.InboundMessage) error
	ListInbound(ctx context.Context, accountID string, limit int) ([]domain.InboundMessage, error)
	// MarkRead sets the read flag on a message owned by accountID.
	// A message that does not exist or belongs to another account is
	// ErrNotFound either way.
	MarkRead(ctx context.Context, accountID, messageID string) (*domain.InboundMessage, error)
	CountUnread(ctx context.Context, accountID string) (int, error)
}
