package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/splax/localpost/internal/domain"
	"github.com/splax/localpost/internal/repository"
	"github.com/splax/localpost/pkg/crypto"
)

const (
	sampleUsername = "testuser"
	sampleEmail    = "test@example.com"
	samplePassword = "password"
)

var sampleInbound = []struct {
	sender  string
	subject string
	body    string
}{
	{
		sender:  "welcome@discord.com",
		subject: "Welcome to Discord!",
		body:    "Thank you for joining Discord. Get started by creating your first server!",
	},
	{
		sender:  "noreply@discord.com",
		subject: "Verify Your Discord Account",
		body:    "Please verify your email to complete your Discord account setup.",
	},
}

// Ensure creates the sample account and its welcome messages when missing.
// Safe to run on every startup.
func Ensure(ctx context.Context, accounts repository.AccountRepository, messages repository.MessageRepository, log *slog.Logger) error {
	account, err := accounts.GetAccountByEmail(ctx, sampleEmail)
	if errors.Is(err, repository.ErrNotFound) {
		hash, hashErr := crypto.HashPassword(samplePassword)
		if hashErr != nil {
			return fmt.Errorf("hash sample password: %w", hashErr)
		}
		account = &domain.Account{
			ID:           uuid.NewString(),
			Username:     sampleUsername,
			Email:        sampleEmail,
			PasswordHash: hash,
			Verified:     true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := accounts.CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create sample account: %w", err)
		}
		log.Info("sample account created", "email", sampleEmail)
	} else if err != nil {
		return fmt.Errorf("lookup sample account: %w", err)
	}

	existing, err := messages.ListInbound(ctx, account.ID, 0)
	if err != nil {
		return fmt.Errorf("list sample inbox: %w", err)
	}
	for _, sample := range sampleInbound {
		if hasMessage(existing, sample.sender, sample.subject) {
			continue
		}
		msg := &domain.InboundMessage{
			ID:         uuid.NewString(),
			AccountID:  account.ID,
			Sender:     sample.sender,
			Subject:    sample.subject,
			Body:       sample.body,
			ReceivedAt: time.Now().UTC(),
		}
		if err := messages.CreateInbound(ctx, msg); err != nil {
			return fmt.Errorf("create sample message: %w", err)
		}
	}
	return nil
}

func hasMessage(messages []domain.InboundMessage, sender, subject string) bool {
	for _, m := range messages {
		if m.Sender == sender && m.Subject == subject {
			return true
		}
	}
	return false
}
