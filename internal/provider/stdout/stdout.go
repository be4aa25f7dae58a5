// Package stdout implements a Provider that prints translated messages
// instead of delivering them. Useful for local development of the relay.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/mailrelay/internal/email"
)

const separator = "========================================\n"

// Provider writes each message to an io.Writer, either as a short summary
// or as the full MIME document.
type Provider struct {
	mu     sync.Mutex
	writer io.Writer
	raw    bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithWriter replaces os.Stdout as the output destination.
func WithWriter(w io.Writer) Option {
	return func(p *Provider) { p.writer = w }
}

// WithRawMIME prints the complete MIME rendering of each message.
func WithRawMIME() Option {
	return func(p *Provider) { p.raw = true }
}

func New(opts ...Option) *Provider {
	p := &Provider{writer: os.Stdout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send prints msg. Concurrent sends never interleave their output.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	var b strings.Builder
	b.WriteString(separator)
	if p.raw {
		if err := msg.WriteMIME(&b); err != nil {
			return fmt.Errorf("failed to render message: %w", err)
		}
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	} else {
		writeSummary(&b, msg)
	}
	b.WriteString(separator)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *Provider) Name() string {
	return "stdout"
}

func writeSummary(b *strings.Builder, msg *email.Email) {
	fmt.Fprintf(b, "From: %s\n", msg.Sender)
	fmt.Fprintf(b, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(b, "Bcc: %s\n", strings.Join(msg.Bcc, ", "))
	}
	if len(msg.ReplyTo) > 0 {
		fmt.Fprintf(b, "Reply-To: %s\n", strings.Join(msg.ReplyTo, ", "))
	}
	if msg.MessageID != "" {
		fmt.Fprintf(b, "Message-Id: %s\n", msg.MessageID)
	}
	fmt.Fprintf(b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")
	b.WriteString(msg.TextBody + "\n")
	if msg.HtmlBody != "" {
		b.WriteString("HTML:\n")
		b.WriteString(msg.HtmlBody + "\n")
	}

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s [%s] (%s)", att.Filename, att.ContentType, formatSize(len(att.Content))))
		}
		fmt.Fprintf(b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
