// Package main is a mail(1)-style command that sends one message through
// the signed relay.
//
// With recipients, the body is read from stdin:
//
//	echo "disk almost full" | relaymail -s "alert" ops@example.com
//
// Without recipients, stdin must hold a complete RFC 5322 message. The
// RECIPIENT environment variable, when set, replaces its To header.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/mailrelay/internal/config"
	"github.com/shineum/mailrelay/internal/message"
	"github.com/shineum/mailrelay/internal/relay"
	"github.com/shineum/mailrelay/internal/signer"
)

func main() {
	subject := flag.String("s", "", "message subject")
	fixSender := flag.Bool("fix-sender", false, "ask the relay to substitute its default sender when needed")
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-s subject] [--fix-sender] [-config path] [to...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaymail: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	msg, err := compose(os.Stdin, composeOptions{
		subject:    *subject,
		recipients: flag.Args(),
		user:       os.Getenv("USER"),
		override:   os.Getenv("RECIPIENT"),
		now:        time.Now(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaymail: %v\n", err)
		os.Exit(1)
	}

	if err := send(ctx, cfg, msg, *fixSender); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "relaymail: %s is not set\n", cfgErr.Variable)
		} else {
			fmt.Fprintf(os.Stderr, "relaymail: %v\n", err)
		}
		os.Exit(1)
	}
}

func send(ctx context.Context, cfg *config.Config, msg *message.Message, fixSender bool) error {
	url, err := cfg.RelayURL()
	if err != nil {
		return err
	}
	keys, err := cfg.SecretKeys()
	if err != nil {
		return err
	}
	sig, err := signer.New(keys)
	if err != nil {
		return err
	}

	client, err := relay.NewClient(relay.ClientConfig{
		URL:               url,
		FixSender:         cfg.Relay.FixSender,
		FailSilently:      cfg.Relay.FailSilently,
		RecipientOverride: cfg.Relay.RecipientOverride,
	}, sig)
	if err != nil {
		return err
	}

	var opts []relay.SendOption
	if fixSender {
		opts = append(opts, relay.WithFixSender())
	}
	return client.SendMail(ctx, msg, opts...)
}

type composeOptions struct {
	subject    string
	recipients []string
	user       string
	override   string
	now        time.Time
}

// compose builds the outgoing message from stdin.
func compose(stdin io.Reader, opts composeOptions) (*message.Message, error) {
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}

	if len(opts.recipients) == 0 {
		msg, err := message.Parse(data)
		if err != nil {
			return nil, err
		}
		if opts.override != "" {
			msg.To = opts.override
		}
		return msg, nil
	}

	return &message.Message{
		From:      opts.user,
		To:        strings.Join(opts.recipients, ", "),
		Subject:   opts.subject,
		MessageID: messageID(),
		Date:      opts.now,
		Body:      message.NewText(string(data)),
	}, nil
}

func messageID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}

// setupLogger sends JSON logs to stderr so stdout stays free for the
// caller.
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

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
