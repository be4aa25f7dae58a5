// Package translate converts a parsed MIME message into the constrained
// shape accepted by the delivery providers.
package translate

import (
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/shineum/mailrelay/internal/email"
	"github.com/shineum/mailrelay/internal/message"
	"github.com/shineum/mailrelay/internal/mimetypes"
)

// DefaultLocalSuffixes are sender domain suffixes that never resolve
// outside the originating host.
var DefaultLocalSuffixes = []string{"local", "localhost", "localdomain"}

// BadMessageError reports a message that cannot be sent as given.
type BadMessageError struct {
	Reason string
}

func (e *BadMessageError) Error() string {
	return "Failed to send message: " + e.Reason
}

func badMessage(format string, args ...any) error {
	return &BadMessageError{Reason: fmt.Sprintf(format, args...)}
}

// Config configures a Translator.
type Config struct {
	// DefaultSender replaces a missing From when fix-sender is requested.
	DefaultSender string
	// DefaultSenderDomain replaces a missing or host-local sender domain.
	DefaultSenderDomain string
	// LocalSuffixes defaults to DefaultLocalSuffixes when nil.
	LocalSuffixes []string
	// Extensions defaults to mimetypes.Default() when nil.
	Extensions *mimetypes.Table
}

// Translator is safe for concurrent use; it holds only read-only
// configuration.
type Translator struct {
	defaultSender string
	defaultDomain string
	localSuffixes []string
	extensions    *mimetypes.Table
}

// New creates a Translator.
func New(cfg Config) *Translator {
	t := &Translator{
		defaultSender: cfg.DefaultSender,
		defaultDomain: cfg.DefaultSenderDomain,
		localSuffixes: cfg.LocalSuffixes,
		extensions:    cfg.Extensions,
	}
	if t.localSuffixes == nil {
		t.localSuffixes = DefaultLocalSuffixes
	}
	if t.extensions == nil {
		t.extensions = mimetypes.Default()
	}
	if t.defaultSender == "" && t.defaultDomain != "" {
		t.defaultSender = "noreply@" + t.defaultDomain
	}
	if t.defaultDomain == "" && t.defaultSender != "" {
		_, address := splitAddress(t.defaultSender)
		if i := strings.LastIndex(address, "@"); i >= 0 {
			t.defaultDomain = address[i+1:]
		}
	}
	return t
}

// DefaultSender returns the address substituted for rejected or missing
// senders.
func (t *Translator) DefaultSender() string {
	return t.defaultSender
}

// DefaultSenderDomain returns the domain substituted for missing or
// host-local sender domains. Empty means senders cannot be repaired.
func (t *Translator) DefaultSenderDomain() string {
	return t.defaultDomain
}

// Translate builds the provider representation of msg.
func (t *Translator) Translate(msg *message.Message, fixSender bool) (*email.Email, error) {
	out := &email.Email{
		Subject:   msg.Subject,
		MessageID: msg.MessageID,
	}

	switch {
	case msg.From != "":
		out.Sender = t.RewriteSender(msg.From)
	case fixSender && t.defaultSender != "":
		out.Sender = t.defaultSender
	default:
		return nil, badMessage("No sender specified")
	}
	slog.Info("using sender", "sender", out.Sender)

	if msg.To == "" {
		return nil, badMessage("No recipient specified")
	}
	out.To = parseAddressList(msg.To)
	if len(out.To) == 0 {
		return nil, badMessage("No recipient specified")
	}
	out.Cc = parseAddressList(msg.Cc)
	out.Bcc = parseAddressList(msg.Bcc)
	out.ReplyTo = parseAddressList(msg.ReplyTo)

	if err := t.extractBody(msg.Body, out); err != nil {
		return nil, err
	}
	if out.TextBody == "" {
		return nil, badMessage("No message body")
	}

	return out, nil
}

// extractBody fills the text, html and attachment fields from the payload.
func (t *Translator) extractBody(body *message.Part, out *email.Email) error {
	if body == nil {
		return nil
	}
	if !body.IsMultipart() {
		if body.ContentType == "" || strings.HasPrefix(body.ContentType, "text/") {
			out.TextBody = string(body.Content)
			return nil
		}
		att, err := t.attachment(body)
		if err != nil {
			return err
		}
		out.Attachments = append(out.Attachments, att)
		return nil
	}

	var haveText, haveHTML bool
	for _, part := range body.Leaves() {
		switch {
		case part.ContentType == "text/plain" && !haveText:
			out.TextBody = string(part.Content)
			haveText = true
		case part.ContentType == "text/html" && !haveHTML:
			out.HtmlBody = string(part.Content)
			haveHTML = true
		default:
			att, err := t.attachment(part)
			if err != nil {
				return err
			}
			out.Attachments = append(out.Attachments, att)
		}
	}
	return nil
}

func (t *Translator) attachment(part *message.Part) (email.Attachment, error) {
	name := part.Filename
	if name == "" {
		ext, ok := t.extensions.Extension(part.ContentType)
		if !ok {
			return email.Attachment{}, badMessage("Unsupported attachment type %s", part.ContentType)
		}
		name = "file." + ext
	}
	return email.Attachment{
		Filename:    name,
		ContentType: part.ContentType,
		Content:     part.Content,
	}, nil
}

// RewriteSender replaces a missing or host-local domain in the From value
// with the default sender domain. The display name is preserved. Senders on
// any other domain are returned in normalized form.
func (t *Translator) RewriteSender(from string) string {
	name, address := splitAddress(from)

	local, domain, found := strings.Cut(address, "@")
	if !found || domain == "" || t.isLocalDomain(domain) {
		domain = t.defaultDomain
	}

	address = local + "@" + domain
	if name == "" {
		return address
	}
	addr := mail.Address{Name: name, Address: address}
	return addr.String()
}

func (t *Translator) isLocalDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	for _, suffix := range t.localSuffixes {
		if strings.HasSuffix(domain, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// splitAddress separates a From value into display name and address. It
// accepts bare local parts ("root") and other forms net/mail rejects.
func splitAddress(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Name, addr.Address
	}

	if start := strings.LastIndex(raw, "<"); start >= 0 {
		if end := strings.Index(raw[start:], ">"); end > 0 {
			name := strings.Trim(strings.TrimSpace(raw[:start]), `"`)
			return name, strings.TrimSpace(raw[start+1 : start+end])
		}
	}
	return "", raw
}

// parseAddressList splits a comma-separated address list into individual
// bare addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			_, addr := splitAddress(p)
			if addr != "" {
				result = append(result, addr)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
