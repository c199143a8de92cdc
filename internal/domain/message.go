package domain

import "time"

// OutboundMessage is a message composed by an account. Immutable after insert.
type OutboundMessage struct {
	ID        string
	SenderID  string
	Recipient string
	Subject   string
	Body      string
	SentAt    time.Time
}

// InboundMessage is a message delivered to an account's inbox.
type InboundMessage struct {
	ID         string
	AccountID  string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
	Read       bool
}
