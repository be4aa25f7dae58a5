package main

import (
	"context"
	"errors"
	"testing"

	"github.com/shineum/mailrelay/internal/config"
)

func TestSelectProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.Config
		wantName string
		wantErr  bool
	}{
		{
			name:     "auto-detected stdout",
			cfg:      config.Config{},
			wantName: "stdout",
		},
		{
			name:     "explicit stdout raw",
			cfg:      config.Config{Provider: config.ProviderStdout, Stdout: config.StdoutConfig{Raw: true}},
			wantName: "stdout",
		},
		{
			name: "graph",
			cfg: config.Config{Provider: config.ProviderGraph, Graph: config.GraphConfig{
				TenantID: "tenant", ClientID: "client", ClientSecret: "secret", Mailbox: "relay@example.com",
			}},
			wantName: "msgraph",
		},
		{
			name:     "smtp",
			cfg:      config.Config{Provider: config.ProviderSMTP, SMTPUpstream: config.SMTPUpstreamConfig{Host: "mail.example.com"}},
			wantName: "smtp",
		},
		{
			name:    "smtp without host",
			cfg:     config.Config{Provider: config.ProviderSMTP},
			wantErr: true,
		},
		{
			name:    "graph without credentials",
			cfg:     config.Config{Provider: config.ProviderGraph},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     config.Config{Provider: "sendmail"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			p, err := selectProvider(context.Background(), &cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got provider %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name(): got %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestSelectProvider_SESWithoutRegion(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Provider: config.ProviderSES}
	_, err := selectProvider(context.Background(), cfg)

	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Variable != "SES_REGION" {
		t.Errorf("expected ConfigurationError for SES_REGION, got %v", err)
	}
}

func TestNewTranslator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		relay      config.RelayConfig
		wantDomain string
		wantSender string
	}{
		{
			name:       "domain only",
			relay:      config.RelayConfig{DefaultSenderDomain: "example.com"},
			wantDomain: "example.com",
			wantSender: "noreply@example.com",
		},
		{
			name:       "sender only",
			relay:      config.RelayConfig{DefaultSender: "mailer@example.org"},
			wantDomain: "example.org",
			wantSender: "mailer@example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, err := newTranslator(&config.Config{Relay: tt.relay})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := tr.DefaultSenderDomain(); got != tt.wantDomain {
				t.Errorf("DefaultSenderDomain(): got %q, want %q", got, tt.wantDomain)
			}
			if got := tr.DefaultSender(); got != tt.wantSender {
				t.Errorf("DefaultSender(): got %q, want %q", got, tt.wantSender)
			}
		})
	}
}

func TestNewTranslator_RequiresSenderDomain(t *testing.T) {
	t.Parallel()

	for _, relay := range []config.RelayConfig{{}, {DefaultSender: "noreply"}} {
		_, err := newTranslator(&config.Config{Relay: relay})

		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Variable != "RELAY_DEFAULT_SENDER_DOMAIN" {
			t.Errorf("relay %+v: expected ConfigurationError for RELAY_DEFAULT_SENDER_DOMAIN, got %v", relay, err)
		}
	}
}
