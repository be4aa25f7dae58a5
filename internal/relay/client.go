package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shineum/mailrelay/internal/message"
)

// maxErrorBody bounds how much of a failed response is kept as detail.
const maxErrorBody = 64 * 1024

// Signer produces the signature attached to an outgoing message.
type Signer interface {
	GenerateSignature(msg string) string
}

// ClientConfig holds the defaults of a relay Client.
type ClientConfig struct {
	URL          string
	FixSender    bool
	FailSilently bool

	// RecipientOverride, when set, replaces To on every message before it
	// is signed. Meant for non-production deployments.
	RecipientOverride string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client is the sending end of the relay.
type Client struct {
	cfg    ClientConfig
	signer Signer
	http   *http.Client
}

// NewClient creates a Client posting to cfg.URL.
func NewClient(cfg ClientConfig, signer Signer) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay client: URL is required")
	}
	if signer == nil {
		return nil, errors.New("relay client: signer is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, signer: signer, http: httpClient}, nil
}

type sendOptions struct {
	fixSender    bool
	failSilently bool
}

// SendOption overrides a ClientConfig default for one SendMail call.
type SendOption func(*sendOptions)

// WithFixSender asks the relay to substitute its default sender when the
// message's sender is missing or refused.
func WithFixSender() SendOption {
	return func(o *sendOptions) { o.fixSender = true }
}

// WithFailSilently makes SendMail log failures instead of returning them.
func WithFailSilently() SendOption {
	return func(o *sendOptions) { o.failSilently = true }
}

// SendMail serializes, signs and posts msg in a single request. Only a 204
// response counts as success; anything else yields a *SendFailure unless
// failing silently.
func (c *Client) SendMail(ctx context.Context, msg *message.Message, opts ...SendOption) error {
	o := sendOptions{fixSender: c.cfg.FixSender, failSilently: c.cfg.FailSilently}
	for _, opt := range opts {
		opt(&o)
	}

	err := c.post(ctx, msg, o.fixSender)
	if err != nil && o.failSilently {
		slog.Warn("relay send failed", "url", c.cfg.URL, "error", err)
		return nil
	}
	return err
}

// SendMessages sends each message in turn and returns how many the relay
// accepted. Individual failures are logged and skipped.
func (c *Client) SendMessages(ctx context.Context, msgs []*message.Message, opts ...SendOption) int {
	n := 0
	for _, msg := range msgs {
		o := sendOptions{fixSender: c.cfg.FixSender}
		for _, opt := range opts {
			opt(&o)
		}
		if err := c.post(ctx, msg, o.fixSender); err != nil {
			slog.Warn("relay send failed", "url", c.cfg.URL, "subject", msg.Subject, "error", err)
			continue
		}
		n++
	}
	return n
}

func (c *Client) post(ctx context.Context, msg *message.Message, fixSender bool) error {
	if c.cfg.RecipientOverride != "" {
		overridden := *msg
		overridden.To = c.cfg.RecipientOverride
		msg = &overridden
	}

	raw, err := message.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	form := url.Values{
		FieldMessage:   {raw},
		FieldSignature: {c.signer.GenerateSignature(raw)},
	}
	if fixSender {
		form.Set(FieldFixSender, "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &SendFailure{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := strings.TrimSpace(string(body))
		if detail == "" && readErr != nil {
			detail = fmt.Sprintf("failed to read response body: %v", readErr)
		}
		return &SendFailure{StatusCode: resp.StatusCode, Detail: detail, Err: readErr}
	}

	slog.Debug("relay accepted message", "url", c.cfg.URL, "subject", msg.Subject)
	return nil
}
