package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shineum/mailrelay/internal/email"
	"github.com/shineum/mailrelay/internal/provider"
)

func TestSend_Summary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := New(WithWriter(&buf))

	msg := &email.Email{
		Sender:    `"Reports" <reports@example.com>`,
		To:        []string{"alice@example.com", "bob@example.com"},
		Subject:   "Monthly Report",
		TextBody:  "Please find the report attached.",
		MessageID: "<1@example.com>",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		`From: "Reports" <reports@example.com>`,
		"To: alice@example.com, bob@example.com",
		"Subject: Monthly Report",
		"Message-Id: <1@example.com>",
		"Please find the report attached.",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	for _, unwanted := range []string{"Cc:", "Bcc:", "Reply-To:", "HTML:", "Attachments:"} {
		if strings.Contains(output, unwanted) {
			t.Errorf("output should not contain %q", unwanted)
		}
	}
	if !strings.HasPrefix(output, separator) || !strings.HasSuffix(output, separator) {
		t.Error("output should be framed by separator lines")
	}
}

func TestSend_AllRecipientKinds(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := New(WithWriter(&buf))

	msg := &email.Email{
		Sender:   "sender@example.com",
		To:       []string{"alice@example.com"},
		Cc:       []string{"carol@example.com"},
		Bcc:      []string{"dave@example.com"},
		ReplyTo:  []string{"help@example.com"},
		Subject:  "With CC",
		TextBody: "Hello",
		HtmlBody: "<p>Hello</p>",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"Cc: carol@example.com", "Bcc: dave@example.com", "Reply-To: help@example.com", "HTML:\n<p>Hello</p>"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := New(WithWriter(&buf))

	msg := &email.Email{
		Sender:   "sender@example.com",
		To:       []string{"alice@example.com"},
		Subject:  "Monthly Report",
		TextBody: "Please find the report attached.",
		Attachments: []email.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: make([]byte, 1258291)},
			{Filename: "summary.csv", ContentType: "text/csv", Content: make([]byte, 46080)},
		},
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "report.pdf [application/pdf] (1.2 MB)") {
		t.Errorf("output missing pdf attachment line:\n%s", output)
	}
	if !strings.Contains(output, "summary.csv [text/csv] (45.0 KB)") {
		t.Errorf("output missing csv attachment line:\n%s", output)
	}
}

func TestSend_RawMIME(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := New(WithWriter(&buf), WithRawMIME())

	msg := &email.Email{
		Sender:   "sender@example.com",
		To:       []string{"alice@example.com"},
		Bcc:      []string{"hidden@example.com"},
		Subject:  "Raw",
		TextBody: "raw body",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"Subject: Raw", "Content-Type: text/plain", "raw body"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(output, "hidden@example.com") {
		t.Error("raw output must not expose Bcc")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestSend_WriteError(t *testing.T) {
	t.Parallel()

	p := New(WithWriter(failingWriter{}))
	err := p.Send(context.Background(), &email.Email{Sender: "a@example.com", To: []string{"b@example.com"}, TextBody: "x"})
	if err == nil {
		t.Fatal("expected write error")
	}
	if provider.IsUnauthorizedSender(err) {
		t.Error("write error must not be classified as unauthorized sender")
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := New().Name(); got != "stdout" {
		t.Errorf("Name: got %q, want %q", got, "stdout")
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bytes int
		want  string
	}{
		{name: "zero bytes", bytes: 0, want: "0 B"},
		{name: "small bytes", bytes: 512, want: "512 B"},
		{name: "kilobytes", bytes: 46080, want: "45.0 KB"},
		{name: "megabytes", bytes: 1258291, want: "1.2 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatSize(tt.bytes); got != tt.want {
				t.Errorf("formatSize(%d): got %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestProviderInterface(t *testing.T) {
	t.Parallel()
	var _ provider.Provider = (*Provider)(nil)
}
