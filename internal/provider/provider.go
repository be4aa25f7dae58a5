// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"
	"errors"

	"github.com/shineum/mailrelay/internal/email"
)

// ErrUnauthorizedSender is wrapped by providers when the backend refuses to
// send on behalf of the message's sender. The relay answers it by retrying
// once with the default sender when fix-sender was requested.
var ErrUnauthorizedSender = errors.New("sender not authorized")

// Provider is the interface that email delivery backends must implement.
// Each provider makes a single synchronous delivery attempt.
type Provider interface {
	// Send delivers an email message through this provider.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}

// IsUnauthorizedSender reports whether err means the sender was refused.
func IsUnauthorizedSender(err error) bool {
	return errors.Is(err, ErrUnauthorizedSender)
}
