// Package main runs a local SMTP submission listener that forwards every
// accepted message through the signed relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/mailrelay/internal/config"
	"github.com/shineum/mailrelay/internal/message"
	"github.com/shineum/mailrelay/internal/relay"
	"github.com/shineum/mailrelay/internal/signer"
	"github.com/shineum/mailrelay/internal/smtp"
	relaytls "github.com/shineum/mailrelay/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.LoadPath(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			slog.Error("missing configuration", "variable", cfgErr.Variable)
		} else {
			slog.Error("server error", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("relaysmtpd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := newRelayClient(cfg)
	if err != nil {
		return err
	}

	tlsConfig, err := relaytls.LoadOrGenerate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}
	tlsMode := "self-signed"
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsMode = "file"
	}

	server := smtp.New(smtp.ServerConfig{
		ListenAddr: cfg.SMTP.Listen,
		Hostname:   cfg.SMTP.Hostname,
		Forwarder: smtp.ForwarderFunc(func(ctx context.Context, msg *message.Message) error {
			return client.SendMail(ctx, msg)
		}),
		TLSConfig:       tlsConfig,
		AuthUsername:    cfg.SMTP.Username,
		AuthPassword:    cfg.SMTP.Password,
		MaxMessageBytes: int64(cfg.SMTP.MaxMessageSize),
		MaxRecipients:   cfg.SMTP.MaxRecipients,
	})

	slog.Info("starting relaysmtpd",
		"listen", cfg.SMTP.Listen,
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
		"fix_sender", cfg.Relay.FixSender,
	)

	return server.ListenAndServe(ctx)
}

// newRelayClient never fails silently: the SMTP client has to learn about
// rejected messages.
func newRelayClient(cfg *config.Config) (*relay.Client, error) {
	url, err := cfg.RelayURL()
	if err != nil {
		return nil, err
	}
	keys, err := cfg.SecretKeys()
	if err != nil {
		return nil, err
	}
	sig, err := signer.New(keys)
	if err != nil {
		return nil, err
	}
	return relay.NewClient(relay.ClientConfig{
		URL:               url,
		FixSender:         cfg.Relay.FixSender,
		RecipientOverride: cfg.Relay.RecipientOverride,
	}, sig)
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
