// Package smtp implements a local SMTP submission listener that hands every
// accepted message to a Forwarder, normally the relay client.
package smtp

import (
	"crypto/subtle"

	gosmtp "github.com/emersion/go-smtp"
)

var errAuthFailed = &gosmtp.SMTPError{
	Code:         535,
	EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
	Message:      "Authentication failed",
}

// Authenticator handles SMTP AUTH verification against configured credentials.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If either is empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify checks a SASL PLAIN exchange. identity must be empty or equal to
// username.
func (a *Authenticator) Verify(identity, username, password string) error {
	if identity != "" && identity != username {
		return errAuthFailed
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errAuthFailed
	}
	return nil
}
