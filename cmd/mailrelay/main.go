// Package main is the entry point for the signed mail relay server.
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
	"github.com/shineum/mailrelay/internal/mimetypes"
	"github.com/shineum/mailrelay/internal/provider"
	"github.com/shineum/mailrelay/internal/provider/graph"
	"github.com/shineum/mailrelay/internal/provider/ses"
	smtpprovider "github.com/shineum/mailrelay/internal/provider/smtp"
	"github.com/shineum/mailrelay/internal/provider/stdout"
	"github.com/shineum/mailrelay/internal/relay"
	"github.com/shineum/mailrelay/internal/signer"
	relaytls "github.com/shineum/mailrelay/internal/tls"
	"github.com/shineum/mailrelay/internal/translate"
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
			slog.Error("relay server error", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("mailrelay stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	keys, err := cfg.SecretKeys()
	if err != nil {
		return err
	}
	sig, err := signer.New(keys)
	if err != nil {
		return err
	}

	translator, err := newTranslator(cfg)
	if err != nil {
		return err
	}

	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		return err
	}

	tlsConfig, err := relaytls.Load(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	server := relay.NewServer(relay.ServerConfig{
		Signer:         sig,
		Translator:     translator,
		Provider:       prov,
		DefaultSender:  translator.DefaultSender(),
		MaxMessageSize: int(cfg.Relay.MaxMessageSize),
	})

	slog.Info("starting mailrelay",
		"listen", cfg.Relay.Listen,
		"provider", prov.Name(),
		"keys", sig.Keys(),
		"default_sender", translator.DefaultSender(),
		"default_sender_domain", translator.DefaultSenderDomain(),
		"tls_enabled", tlsConfig != nil,
	)

	return server.ListenAndServe(ctx, cfg.Relay.Listen, tlsConfig)
}

// newTranslator refuses to start without a sender domain, since local
// senders would otherwise be rewritten to an address with no domain.
func newTranslator(cfg *config.Config) (*translate.Translator, error) {
	extensions, err := mimetypes.LoadFile(cfg.Relay.MimeTypesFile)
	if err != nil {
		return nil, err
	}
	translator := translate.New(translate.Config{
		DefaultSender:       cfg.Relay.DefaultSender,
		DefaultSenderDomain: cfg.Relay.DefaultSenderDomain,
		LocalSuffixes:       cfg.Relay.LocalSuffixes,
		Extensions:          extensions,
	})
	if translator.DefaultSenderDomain() == "" {
		return nil, &config.ConfigurationError{Variable: "RELAY_DEFAULT_SENDER_DOMAIN"}
	}
	return translator, nil
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

// selectProvider builds the delivery backend named by the configuration,
// either explicitly or by auto-detection.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch name := cfg.ProviderName(); name {
	case config.ProviderSES:
		if !cfg.SESConfigured() {
			return nil, &config.ConfigurationError{Variable: "SES_REGION"}
		}
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		return ses.New(ctx, ses.SESProviderConfig{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})

	case config.ProviderGraph:
		if !cfg.GraphConfigured() {
			return nil, errors.New("graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_MAILBOX are required")
		}
		slog.Info("using Microsoft Graph provider", "mailbox", cfg.Graph.Mailbox)
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Mailbox:      cfg.Graph.Mailbox,
		}), nil

	case config.ProviderSMTP:
		slog.Info("using upstream SMTP provider",
			"host", cfg.SMTPUpstream.Host,
			"tls_mode", cfg.SMTPUpstream.TLSMode,
		)
		return smtpprovider.New(smtpprovider.SMTPProviderConfig{
			Host:               cfg.SMTPUpstream.Host,
			Port:               cfg.SMTPUpstream.Port,
			Username:           cfg.SMTPUpstream.Username,
			Password:           cfg.SMTPUpstream.Password,
			TLSMode:            cfg.SMTPUpstream.TLSMode,
			InsecureSkipVerify: cfg.SMTPUpstream.InsecureSkipVerify,
			HeloName:           cfg.SMTPUpstream.HeloName,
		})

	case config.ProviderStdout:
		slog.Info("using stdout provider", "raw", cfg.Stdout.Raw)
		var opts []stdout.Option
		if cfg.Stdout.Raw {
			opts = append(opts, stdout.WithRawMIME())
		}
		return stdout.New(opts...), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
