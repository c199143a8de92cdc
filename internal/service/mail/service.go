package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/localpost/internal/domain"
	"github.com/splax/localpost/internal/notify"
	"github.com/splax/localpost/internal/repository"
	"github.com/splax/localpost/internal/ws"
)

// ErrMissingFields is returned when a compose request lacks required input.
var ErrMissingFields = errors.New("recipient, subject and body are required")

// DashboardLimit caps the message preview on the dashboard.
const DashboardLimit = 10

// Service handles message persistence, delivery and read state.
type Service struct {
	accounts repository.AccountRepository
	messages repository.MessageRepository
	notifier notify.Notifier
	hub      *ws.Hub
	logger   *slog.Logger
}

// New constructs a mail Service.
func New(accounts repository.AccountRepository, messages repository.MessageRepository, notifier notify.Notifier, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{accounts: accounts, messages: messages, notifier: notifier, hub: hub, logger: logger}
}

// SendResult reports a completed send. Warn carries a non-fatal external
// delivery failure; the message is persisted either way.
type SendResult struct {
	Message *domain.OutboundMessage
	Warn    error
}

// Send persists an outbound message for the sender, delivers a local copy
// when the recipient is a registered account, and dispatches the notice to
// the external transport. Local persistence and external delivery fail
// independently: a notifier error surfaces as SendResult.Warn, not as an
// error.
func (s Service) Send(ctx context.Context, sender *domain.Account, recipient, subject, body string) (SendResult, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		return SendResult{}, ErrMissingFields
	}

	msg := &domain.OutboundMessage{
		ID:        uuid.NewString(),
		SenderID:  sender.ID,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		SentAt:    time.Now().UTC(),
	}
	if err := s.messages.CreateOutbound(ctx, msg); err != nil {
		return SendResult{}, fmt.Errorf("persist outbound message: %w", err)
	}

	s.deliverLocal(ctx, sender, msg)

	result := SendResult{Message: msg}
	notice := notify.Notice{From: sender.Email, To: recipient, Subject: subject, Body: body}
	if err := s.notifier.Send(ctx, notice); err != nil {
		s.logger.Warn("external delivery failed", "message_id", msg.ID, "error", err)
		result.Warn = err
	}

	s.logger.Info("message sent", "message_id", msg.ID, "sender_id", sender.ID)
	return result, nil
}

// deliverLocal writes an inbox copy when the recipient is one of ours.
func (s Service) deliverLocal(ctx context.Context, sender *domain.Account, msg *domain.OutboundMessage) {
	target, err := s.accounts.GetAccountByEmail(ctx, msg.Recipient)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("local recipient lookup failed", "error", err)
		}
		return
	}
	inbound := &domain.InboundMessage{
		ID:         uuid.NewString(),
		AccountID:  target.ID,
		Sender:     sender.Email,
		Subject:    msg.Subject,
		Body:       msg.Body,
		ReceivedAt: msg.SentAt,
	}
	if err := s.messages.CreateInbound(ctx, inbound); err != nil {
		s.logger.Warn("local delivery failed", "message_id", msg.ID, "error", err)
		return
	}
	s.broadcastUnread(ctx, target.ID)
}

// Inbox returns an account's messages newest first. limit <= 0 returns all.
func (s Service) Inbox(ctx context.Context, accountID string, limit int) ([]domain.InboundMessage, error) {
	return s.messages.ListInbound(ctx, accountID, limit)
}

// View marks a message read on behalf of its owner and returns it. Marking
// repeats harmlessly. Messages owned by other accounts report ErrNotFound.
func (s Service) View(ctx context.Context, accountID, messageID string) (*domain.InboundMessage, error) {
	msg, err := s.messages.MarkRead(ctx, accountID, messageID)
	if err != nil {
		return nil, err
	}
	s.broadcastUnread(ctx, accountID)
	return msg, nil
}

// UnreadCount counts the account's unread messages.
func (s Service) UnreadCount(ctx context.Context, accountID string) (int, error) {
	return s.messages.CountUnread(ctx, accountID)
}

// Hub returns the websocket hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

// NotifyUnread recomputes and pushes the unread count for an account.
func (s Service) NotifyUnread(ctx context.Context, accountID string) {
	s.broadcastUnread(ctx, accountID)
}

func (s Service) broadcastUnread(ctx context.Context, accountID string) {
	if s.hub == nil {
		return
	}
	count, err := s.messages.CountUnread(ctx, accountID)
	if err != nil {
		s.logger.Warn("unread count failed", "account_id", accountID, "error", err)
		return
	}
	payload, err := json.Marshal(map[string]int{"count": count})
	if err != nil {
		return
	}
	s.hub.Broadcast(accountID, payload)
}
