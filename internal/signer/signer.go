// Package signer computes and verifies the HMAC signature carried by every
// relay request.
package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
)

// ErrNoKeys is returned by New when no usable secret key was supplied.
var ErrNoKeys = errors.New("signer: no secret keys configured")

// Signer signs with the primary key and verifies against every active key,
// which lets the shared secret be rotated without downtime.
type Signer struct {
	keys []string
}

// New creates a Signer from an already-resolved key list. The first key is
// the primary signing key. Blank keys are ignored.
func New(keys []string) (*Signer, error) {
	active := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) != "" {
			active = append(active, k)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoKeys
	}
	return &Signer{keys: active}, nil
}

// Sign returns the base64-encoded HMAC-SHA1 of msg under key.
func Sign(msg, key string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(msg))
	return strings.TrimRight(base64.StdEncoding.EncodeToString(mac.Sum(nil)), " \t\r\n")
}

// GenerateSignature signs msg with the primary key.
func (s *Signer) GenerateSignature(msg string) string {
	sig := Sign(msg, s.keys[0])
	slog.Debug("signed message", "length", len(msg), "signature", sig)
	return sig
}

// VerifySignature reports whether signature was produced over msg by any of
// the active keys.
func (s *Signer) VerifySignature(msg, signature string) bool {
	for _, key := range s.keys {
		if hmac.Equal([]byte(Sign(msg, key)), []byte(signature)) {
			return true
		}
	}
	return false
}

// Keys returns the number of active keys.
func (s *Signer) Keys() int {
	return len(s.keys)
}
