// Package view renders HTML pages from explicit per-operation view models.
// Handlers never hand raw domain records to templates; they build the
// structs below with everything preformatted.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/splax/localpost/internal/domain"
)

//go:embed templates/*.tmpl
var files embed.FS

const timeLayout = "2006-01-02 15:04"

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Base carries fields shared by every page.
type Base struct {
	Title    string
	Username string
	Flashes  []Flash
}

// Landing is the logged-out home page.
type Landing struct {
	Base
}

// RegisterForm backs the registration page.
type RegisterForm struct {
	Base
	Username string
	Email    string
}

// LoginForm backs the login page.
type LoginForm struct {
	Base
	Email string
}

// MessageItem is a single inbox row.
type MessageItem struct {
	ID         string
	Sender     string
	Subject    string
	ReceivedAt string
	Read       bool
}

// Dashboard backs the post-login landing page.
type Dashboard struct {
	Base
	Messages []MessageItem
	Unread   int
}

// Inbox backs the full message list.
type Inbox struct {
	Base
	Messages []MessageItem
}

// ComposeForm backs the compose page.
type ComposeForm struct {
	Base
	Recipient string
	Subject   string
}

// Message backs the single-message page.
type Message struct {
	Base
	ID         string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt string
}

// NewMessageItem formats a domain record for listing.
func NewMessageItem(m domain.InboundMessage) MessageItem {
	return MessageItem{
		ID:         m.ID,
		Sender:     m.Sender,
		Subject:    m.Subject,
		ReceivedAt: formatTime(m.ReceivedAt),
		Read:       m.Read,
	}
}

// NewMessage formats a domain record for the detail page.
func NewMessage(m domain.InboundMessage) Message {
	return Message{
		ID:         m.ID,
		Sender:     m.Sender,
		Subject:    m.Subject,
		Body:       m.Body,
		ReceivedAt: formatTime(m.ReceivedAt),
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

// Renderer executes the embedded page templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(files, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the named page with the given view model.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}
