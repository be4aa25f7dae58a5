// Package smtp implements a Provider that hands messages to an upstream
// SMTP submission server.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/mailrelay/internal/email"
	"github.com/shineum/mailrelay/internal/provider"
)

// TLS modes for the upstream connection.
const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
	TLSModeNone     = "none"
)

const defaultTimeout = 30 * time.Second

// SMTPProviderConfig holds the configuration for creating a SMTPProvider.
type SMTPProviderConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLSMode is one of "starttls" (default, used when advertised), "tls"
	// or "none".
	TLSMode            string
	InsecureSkipVerify bool

	// HeloName is sent in EHLO. Defaults to "localhost".
	HeloName string
	Timeout  time.Duration
}

// SMTPProvider delivers each message over a fresh SMTP connection.
type SMTPProvider struct {
	addr      string
	cfg       SMTPProviderConfig
	tlsConfig *tls.Config
}

// New creates a new SMTPProvider. Port defaults to 587, or 465 in "tls" mode.
func New(cfg SMTPProviderConfig) (*SMTPProvider, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp provider: host is required")
	}
	switch cfg.TLSMode {
	case "":
		cfg.TLSMode = TLSModeStartTLS
	case TLSModeStartTLS, TLSModeImplicit, TLSModeNone:
	default:
		return nil, fmt.Errorf("smtp provider: unknown tls mode %q", cfg.TLSMode)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.TLSMode == TLSModeImplicit {
			cfg.Port = 465
		}
	}
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &SMTPProvider{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		cfg:  cfg,
		tlsConfig: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}, nil
}

// Send runs one SMTP transaction for msg. A refusal of MAIL FROM maps to
// provider.ErrUnauthorizedSender.
func (p *SMTPProvider) Send(ctx context.Context, msg *email.Email) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.addr, err)
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	c := gosmtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(p.cfg.HeloName); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if p.cfg.TLSMode == TLSModeStartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(p.tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(envelopeAddress(msg.Sender), nil); err != nil {
		if senderRefused(err) {
			return fmt.Errorf("%w: %w", provider.ErrUnauthorizedSender, err)
		}
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if err := msg.WriteMIME(w); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	if err := c.Quit(); err != nil {
		slog.Debug("QUIT failed after successful delivery", "error", err)
	}

	slog.Debug("upstream SMTP accepted message", "addr", p.addr, "recipients", len(msg.Recipients()))
	return nil
}

// Name returns the provider name.
func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	if p.cfg.TLSMode == TLSModeImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig}
		return tlsDialer.DialContext(ctx, "tcp", p.addr)
	}
	return dialer.DialContext(ctx, "tcp", p.addr)
}

// senderRefused reports replies to MAIL FROM that mean the upstream will
// not relay for this sender.
func senderRefused(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return false
	}
	switch smtpErr.Code {
	case 530, 550, 553, 554:
		return true
	}
	return false
}

// envelopeAddress strips the display name; MAIL FROM takes a bare address.
func envelopeAddress(sender string) string {
	if addr, err := mail.ParseAddress(sender); err == nil {
		return addr.Address
	}
	return sender
}
