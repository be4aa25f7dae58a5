// Package relay implements both ends of the signed relay protocol: a form
// POST carrying a serialized message and its HMAC signature.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/shineum/mailrelay/internal/email"
	"github.com/shineum/mailrelay/internal/message"
	"github.com/shineum/mailrelay/internal/provider"
	"github.com/shineum/mailrelay/internal/translate"
)

// Form fields of a relay request.
const (
	FieldMessage   = "msg"
	FieldSignature = "signature"
	FieldFixSender = "fix_sender"
)

// DefaultMaxMessageSize caps the request body when ServerConfig leaves it unset.
const DefaultMaxMessageSize = 25 * 1024 * 1024

const shutdownTimeout = 30 * time.Second

// Verifier checks a signature over a serialized message.
type Verifier interface {
	VerifySignature(msg, signature string) bool
}

// ServerConfig holds the collaborators of a relay Server.
type ServerConfig struct {
	Signer     Verifier
	Translator *translate.Translator
	Provider   provider.Provider

	// DefaultSender replaces a rejected sender when the request asks for
	// fix_sender. Defaults to the translator's default sender.
	DefaultSender string

	// MaxMessageSize limits the request body in bytes.
	MaxMessageSize int
}

// Server is the receiving end of the relay. Each request is handled
// independently; the server holds no mutable state.
type Server struct {
	app           *fiber.App
	signer        Verifier
	translator    *translate.Translator
	provider      provider.Provider
	defaultSender string
}

// NewServer creates a Server with its routes registered.
func NewServer(cfg ServerConfig) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.DefaultSender == "" {
		cfg.DefaultSender = cfg.Translator.DefaultSender()
	}

	s := &Server{
		signer:        cfg.Signer,
		translator:    cfg.Translator,
		provider:      cfg.Provider,
		defaultSender: cfg.DefaultSender,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "mailrelay",
		BodyLimit:             cfg.MaxMessageSize,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(requestLogger)
	s.app.Get("/", s.handleHealth)
	s.app.Post("/", s.handleSend)

	return s
}

// App exposes the underlying fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. TLS is used when tlsConfig is non-nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	slog.Info("relay server listening",
		"addr", ln.Addr().String(),
		"provider", s.provider.Name(),
		"tls_enabled", tlsConfig != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down relay server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Warn("relay shutdown incomplete", "error", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	c.Status(fiber.StatusOK)
	return nil
}

// handleSend validates the request in order (fields, signature, message)
// so that nothing is sent for a rejected request.
func (s *Server) handleSend(c *fiber.Ctx) error {
	raw := c.FormValue(FieldMessage)
	if raw == "" {
		return &BadRequestError{Reason: "No message found"}
	}
	signature := c.FormValue(FieldSignature)
	if signature == "" {
		return &BadRequestError{Reason: "No signature found"}
	}
	if !s.signer.VerifySignature(raw, signature) {
		return &BadRequestError{Reason: "Signature doesn't match"}
	}
	fixSender := parseFlag(c.FormValue(FieldFixSender))

	msg, err := message.Parse([]byte(raw))
	if err != nil {
		slog.Warn("unparseable message", "error", err)
		return &translate.BadMessageError{Reason: "Unable to parse message"}
	}

	out, err := s.translator.Translate(msg, fixSender)
	if err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return &translate.BadMessageError{Reason: "Invalid message: " + err.Error()}
	}

	if err := s.send(c.UserContext(), out, fixSender); err != nil {
		return err
	}

	c.Status(fiber.StatusNoContent)
	return nil
}

// send makes one provider attempt, plus one more with the default sender
// when the provider refuses the sender and fixSender is set.
func (s *Server) send(ctx context.Context, out *email.Email, fixSender bool) error {
	err := s.provider.Send(ctx, out)
	if err == nil {
		slog.Info("sent message", "provider", s.provider.Name(), "sender", out.Sender, "recipients", len(out.Recipients()))
		return nil
	}
	if !provider.IsUnauthorizedSender(err) {
		return err
	}

	slog.Warn("provider refused sender", "provider", s.provider.Name(), "sender", out.Sender, "error", err)
	if !fixSender || s.defaultSender == "" || out.Sender == s.defaultSender {
		return &translate.BadMessageError{Reason: "Sender not authorized: " + out.Sender}
	}

	out.Sender = s.defaultSender
	slog.Info("using sender", "sender", out.Sender)
	err = s.provider.Send(ctx, out)
	switch {
	case err == nil:
		slog.Info("sent message", "provider", s.provider.Name(), "sender", out.Sender, "recipients", len(out.Recipients()))
		return nil
	case provider.IsUnauthorizedSender(err):
		return &translate.BadMessageError{Reason: "Sender not authorized: " + out.Sender}
	default:
		return err
	}
}

// errorHandler renders caller mistakes as 400 with a plain-text reason and
// everything else as an empty 500.
func errorHandler(c *fiber.Ctx, err error) error {
	var (
		badRequest *BadRequestError
		badMessage *translate.BadMessageError
		fiberErr   *fiber.Error
	)

	switch {
	case errors.As(err, &badRequest):
		slog.Warn("rejected relay request", "reason", badRequest.Reason, "remote", c.IP())
		return c.Status(fiber.StatusBadRequest).SendString(badRequest.Error())
	case errors.As(err, &badMessage):
		slog.Warn("rejected message", "reason", badMessage.Reason, "remote", c.IP())
		return c.Status(fiber.StatusBadRequest).SendString(badMessage.Error())
	case errors.As(err, &fiberErr):
		return c.Status(fiberErr.Code).SendString(fiberErr.Message)
	default:
		slog.Error("failed to send message", "error", err, "remote", c.IP())
		c.Status(fiber.StatusInternalServerError)
		return nil
	}
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			c.Status(fiber.StatusInternalServerError)
		}
	}
	slog.Debug("handled request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return nil
}

// parseFlag treats recognised boolean words by value and any other
// non-empty value as set.
func parseFlag(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return true
}
