package notify

import (
	"context"
	"log/slog"
)

// Notice is an outbound delivery request handed to a transport. Delivery is
// best effort; callers persist their own records before dispatching.
type Notice struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Notifier delivers notices to an external transport.
type Notifier interface {
	Send(ctx context.Context, notice Notice) error
}

// LogNotifier simulates delivery by logging the notice. It is the default
// transport for local development, standing in for a real mail relay.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Send logs the notice and reports success.
func (n *LogNotifier) Send(_ context.Context, notice Notice) error {
	n.log.Info("simulated delivery",
		"from", notice.From,
		"to", notice.To,
		"subject", notice.Subject)
	return nil
}
