package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/mailrelay/internal/message"
	"github.com/shineum/mailrelay/internal/relay"
)

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errUnknownMechanism = &gosmtp.SMTPError{
		Code:         504,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 4},
		Message:      "Unsupported authentication mechanism",
	}
	errUnparseable = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Unable to parse message",
	}
	errRelayUnavailable = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "Relay unavailable, try again later",
	}
)

// Forwarder delivers a message accepted by the listener.
type Forwarder interface {
	Forward(ctx context.Context, msg *message.Message) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(ctx context.Context, msg *message.Message) error

// Forward calls f.
func (f ForwarderFunc) Forward(ctx context.Context, msg *message.Message) error {
	return f(ctx, msg)
}

type backend struct {
	ctx       context.Context
	auth      *Authenticator
	forwarder Forwarder
	timeout   time.Duration
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &Session{backend: b, remote: c.Conn().RemoteAddr().String()}, nil
}

// Session holds the state of one SMTP connection.
type Session struct {
	backend       *backend
	remote        string
	authenticated bool

	// Current transaction
	mailFrom string
	rcptTo   []string
}

func (s *Session) AuthMechanisms() []string {
	if !s.backend.auth.Enabled() {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *Session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, errUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if err := s.backend.auth.Verify(identity, username, password); err != nil {
			slog.Warn("SMTP authentication failed", "remote", s.remote, "username", username)
			return err
		}
		s.authenticated = true
		return nil
	}), nil
}

func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.backend.auth.Enabled() && !s.authenticated {
		return errAuthRequired
	}
	s.mailFrom = from
	s.rcptTo = nil
	return nil
}

func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.rcptTo = append(s.rcptTo, to)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	msg, err := message.Parse(raw)
	if err != nil {
		slog.Warn("rejected unparseable message", "remote", s.remote, "error", err)
		return errUnparseable
	}
	applyEnvelope(msg, s.mailFrom, s.rcptTo)

	ctx, cancel := context.WithTimeout(s.backend.ctx, s.backend.timeout)
	defer cancel()

	if err := s.backend.forwarder.Forward(ctx, msg); err != nil {
		slog.Error("failed to forward message",
			"remote", s.remote,
			"from", s.mailFrom,
			"recipients", len(s.rcptTo),
			"error", err,
		)
		return forwardError(err)
	}

	slog.Info("message forwarded",
		"remote", s.remote,
		"from", s.mailFrom,
		"recipients", len(s.rcptTo),
		"subject", msg.Subject,
	)
	return nil
}

func (s *Session) Reset() {
	s.mailFrom = ""
	s.rcptTo = nil
}

func (s *Session) Logout() error {
	return nil
}

// forwardError maps a Forward failure onto an SMTP reply. Rejections the
// relay will repeat are permanent; anything else may succeed later.
func forwardError(err error) error {
	var failure *relay.SendFailure
	if errors.As(err, &failure) && failure.Permanent() {
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 0, 0},
			Message:      "Message rejected by relay: " + failure.Detail,
		}
	}
	return errRelayUnavailable
}

// applyEnvelope fills From and To from the envelope when the headers lack
// them. Envelope recipients missing from To, Cc and Bcc are added to Bcc so
// the relay still delivers to them.
func applyEnvelope(msg *message.Message, from string, rcpts []string) {
	if msg.From == "" {
		msg.From = from
	}
	if msg.To == "" {
		msg.To = strings.Join(rcpts, ", ")
		return
	}

	known := make(map[string]bool)
	for _, header := range []string{msg.To, msg.Cc, msg.Bcc} {
		for _, addr := range headerAddresses(header) {
			known[strings.ToLower(addr)] = true
		}
	}

	var extra []string
	for _, rcpt := range rcpts {
		if !known[strings.ToLower(rcpt)] {
			known[strings.ToLower(rcpt)] = true
			extra = append(extra, rcpt)
		}
	}
	if len(extra) == 0 {
		return
	}
	if msg.Bcc != "" {
		extra = append([]string{msg.Bcc}, extra...)
	}
	msg.Bcc = strings.Join(extra, ", ")
}

// headerAddresses extracts bare addresses from an address header, falling
// back to comma splitting for values net/mail rejects.
func headerAddresses(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	if list, err := mail.ParseAddressList(header); err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Address)
		}
		return out
	}

	var out []string
	for _, field := range strings.Split(header, ",") {
		field = strings.TrimSpace(field)
		if i := strings.LastIndex(field, "<"); i >= 0 {
			field = strings.TrimSuffix(field[i+1:], ">")
		}
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}
