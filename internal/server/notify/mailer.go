// Package notify renders account mails (email confirmation, password reset)
// and hands them to a Mailer backend.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/google/uuid"
)

// Message is a rendered plain-text mail.
type Message struct {
	ID      string
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(from, to, subject, body string) *Message {
	return &Message{ID: uuid.NewString(), From: from, To: to, Subject: subject, Body: body, Date: time.Now().UTC()}
}

// RFC822 renders the message with minimal headers.
func (m *Message) RFC822() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Message-ID: <%s@accounts>\r\n", m.ID)
	fmt.Fprintf(&b, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// LogMailer writes mails to the log instead of delivering them. It is the
// development backend.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(l logging.Logger) *LogMailer {
	return &LogMailer{logger: l.With("module", "mailer")}
}

func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	m.logger.Info(ctx, "mail",
		"id", msg.ID,
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
