// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the relay binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by the provider setting.
const (
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderSMTP   = "smtp"
	ProviderStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Relay        RelayConfig        `yaml:"relay"`
	Provider     string             `yaml:"provider"`
	SES          SESConfig          `yaml:"ses"`
	Graph        GraphConfig        `yaml:"graph"`
	SMTPUpstream SMTPUpstreamConfig `yaml:"smtp_upstream"`
	Stdout       StdoutConfig       `yaml:"stdout"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	TLS          TLSConfig          `yaml:"tls"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// RelayConfig holds the settings shared by the relay server and its clients.
type RelayConfig struct {
	Listen              string   `yaml:"listen"`
	URL                 string   `yaml:"url"`
	SecretKeys          []string `yaml:"secret_keys"`
	DefaultSender       string   `yaml:"default_sender"`
	DefaultSenderDomain string   `yaml:"default_sender_domain"`
	LocalSuffixes       []string `yaml:"local_suffixes"`
	FixSender           bool     `yaml:"fix_sender"`
	FailSilently        bool     `yaml:"fail_silently"`
	MaxMessageSize      ByteSize `yaml:"max_message_size"`
	MimeTypesFile       string   `yaml:"mime_types_file"`
	RecipientOverride   string   `yaml:"recipient_override"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Mailbox      string `yaml:"mailbox"`
}

// SMTPUpstreamConfig holds the upstream server used by the smtp provider.
type SMTPUpstreamConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLSMode            string `yaml:"tls_mode"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	HeloName           string `yaml:"helo_name"`
}

// StdoutConfig holds stdout provider configuration.
type StdoutConfig struct {
	Raw bool `yaml:"raw"`
}

// SMTPConfig holds the local submission listener configuration.
type SMTPConfig struct {
	Listen         string   `yaml:"listen"`
	Hostname       string   `yaml:"hostname"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	MaxMessageSize ByteSize `yaml:"max_message_size"`
	MaxRecipients  int      `yaml:"max_recipients"`
}

// TLSConfig holds TLS certificate file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// LoadPath calls LoadFromFile when path is set and Load otherwise.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	return LoadFromFile(path)
}

// GraphConfigured returns true if all four Graph API settings are present.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Mailbox != ""
}

// SESConfigured returns true if an SES region is set. Credentials may come
// from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// SMTPUpstreamConfigured returns true if an upstream SMTP host is set.
func (c *Config) SMTPUpstreamConfigured() bool {
	return c.SMTPUpstream.Host != ""
}

// AuthEnabled returns true if both submission listener credentials are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// ProviderName returns the explicitly configured provider, or the first
// configured one in the order graph, ses, smtp, falling back to stdout.
func (c *Config) ProviderName() string {
	switch {
	case c.Provider != "":
		return c.Provider
	case c.GraphConfigured():
		return ProviderGraph
	case c.SESConfigured():
		return ProviderSES
	case c.SMTPUpstreamConfigured():
		return ProviderSMTP
	default:
		return ProviderStdout
	}
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Relay.Listen = ":8025"
	c.Relay.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.Listen = ":2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.MaxRecipients = 100
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Relay.Listen, "RELAY_LISTEN")
	setString(&c.Relay.URL, "RELAY_URL")
	if keys := splitList(os.Getenv("RELAY_SECRET_KEYS")); len(keys) > 0 {
		c.Relay.SecretKeys = keys
	} else if v := os.Getenv("RELAY_SECRET_KEY"); v != "" {
		c.Relay.SecretKeys = []string{v}
	}
	setString(&c.Relay.DefaultSender, "RELAY_DEFAULT_SENDER")
	setString(&c.Relay.DefaultSenderDomain, "RELAY_DEFAULT_SENDER_DOMAIN")
	if suffixes := splitList(os.Getenv("RELAY_LOCAL_SUFFIXES")); len(suffixes) > 0 {
		c.Relay.LocalSuffixes = suffixes
	}
	setBool(&c.Relay.FixSender, "RELAY_FIX_SENDER")
	setBool(&c.Relay.FailSilently, "RELAY_FAIL_SILENTLY")
	setByteSize(&c.Relay.MaxMessageSize, "RELAY_MAX_MESSAGE_SIZE")
	setString(&c.Relay.MimeTypesFile, "RELAY_MIME_TYPES_FILE")
	setString(&c.Relay.RecipientOverride, "RELAY_RECIPIENT_OVERRIDE")

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.ConfigurationSet, "SES_CONFIGURATION_SET")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Mailbox, "GRAPH_MAILBOX")

	setString(&c.SMTPUpstream.Host, "SMTP_UPSTREAM_HOST")
	if v := os.Getenv("SMTP_UPSTREAM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTPUpstream.Port = port
		}
	}
	setString(&c.SMTPUpstream.Username, "SMTP_UPSTREAM_USERNAME")
	setString(&c.SMTPUpstream.Password, "SMTP_UPSTREAM_PASSWORD")
	if v := os.Getenv("SMTP_UPSTREAM_TLS_MODE"); v != "" {
		c.SMTPUpstream.TLSMode = strings.ToLower(v)
	}
	setBool(&c.SMTPUpstream.InsecureSkipVerify, "SMTP_UPSTREAM_INSECURE_SKIP_VERIFY")
	setString(&c.SMTPUpstream.HeloName, "SMTP_UPSTREAM_HELO_NAME")

	setBool(&c.Stdout.Raw, "STDOUT_RAW")

	setString(&c.SMTP.Listen, "SMTP_LISTEN")
	setString(&c.SMTP.Hostname, "SMTP_HOSTNAME")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setByteSize(&c.SMTP.MaxMessageSize, "SMTP_MAX_MESSAGE_SIZE")
	if v := os.Getenv("SMTP_MAX_RECIPIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SMTP.MaxRecipients = n
		}
	}

	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// setBool ignores values strconv.ParseBool rejects.
func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setByteSize ignores values ParseByteSize rejects.
func setByteSize(dst *ByteSize, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := ParseByteSize(v); err == nil {
			*dst = n
		}
	}
}

// splitList splits a comma or newline separated list, dropping blanks.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
