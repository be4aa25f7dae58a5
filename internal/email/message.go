// Package email defines the provider-shaped message produced by translation
// and consumed by every delivery provider.
package email

import (
	"errors"
	"fmt"
	"net/mail"
)

// Email is a translated message ready for a provider. Addresses are bare
// "user@domain" strings except Sender, which may carry a display name.
type Email struct {
	Sender      string
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	MessageID   string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Validate checks the invariants every provider relies on.
func (e *Email) Validate() error {
	switch {
	case e.Sender == "":
		return errors.New("missing sender")
	case !validSender(e.Sender):
		return fmt.Errorf("invalid sender %q", e.Sender)
	case len(e.To) == 0:
		return errors.New("missing recipient")
	case e.TextBody == "":
		return errors.New("missing body")
	}
	return nil
}

// validSender requires a parseable address with both a local part and a
// domain. Display names are allowed.
func validSender(sender string) bool {
	_, err := mail.ParseAddress(sender)
	return err == nil
}

// Recipients returns every envelope recipient: To, Cc and Bcc.
func (e *Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}
