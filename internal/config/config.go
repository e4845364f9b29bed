// Package config provides YAML configuration loading with environment
// variable overrides for the notification mailer.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shineum/notify-mailer/internal/email"
)

// defaultSMTPPort is the plain relay port used when none is configured.
const defaultSMTPPort = 25

// Transport names accepted in the transport key.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"
)

var errRequired = errors.New("is required")

// Config holds the complete application configuration.
type Config struct {
	Msg       MsgConfig         `yaml:"msg"`
	Body      map[string]string `yaml:"body"`
	SMTP      SMTPConfig        `yaml:"smtp"`
	Transport string            `yaml:"transport"`
	SES       SESConfig         `yaml:"ses"`
	TLS       TLSConfig         `yaml:"tls"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// MsgConfig holds the header values shared by every message.
type MsgConfig struct {
	From    string `yaml:"from"`
	ReplyTo string `yaml:"reply_to"`
	Subject string `yaml:"subject"`
}

// SMTPConfig holds the relay connection settings.
type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	StartTLS  bool   `yaml:"starttls"`
	LocalName string `yaml:"local_name"`
}

// SESConfig holds AWS SES v2 configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// TLSConfig holds client-side TLS settings used for STARTTLS.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load builds a configuration from defaults and environment variables only.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
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

	// Older files spell the relay section "SMTP"; its keys win over "smtp".
	legacy := struct {
		SMTP SMTPConfig `yaml:"SMTP"`
	}{SMTP: cfg.SMTP}
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.SMTP = legacy.SMTP

	cfg.applyEnvVars()

	return cfg, nil
}

// Validate checks the keys required to build messages and to open the
// selected transport. The first problem is returned as *email.ConfigError.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"msg.from", c.Msg.From},
		{"msg.reply_to", c.Msg.ReplyTo},
		{"msg.subject", c.Msg.Subject},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &email.ConfigError{Key: r.key, Err: errRequired}
		}
	}

	if len(c.Body) == 0 {
		return &email.ConfigError{Key: "body", Err: errors.New("at least one template is required")}
	}

	switch c.Transport {
	case TransportSMTP:
		if c.SMTP.Host == "" {
			return &email.ConfigError{Key: "smtp.host", Err: errRequired}
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return &email.ConfigError{Key: "smtp.port", Err: fmt.Errorf("%d is out of range", c.SMTP.Port)}
		}
	case TransportSES:
		if !c.SESConfigured() {
			return &email.ConfigError{Key: "ses.region", Err: errRequired}
		}
	case TransportStdout:
	default:
		return &email.ConfigError{Key: "transport", Err: fmt.Errorf("unknown transport %q", c.Transport)}
	}

	return nil
}

// Addr returns the relay address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.SMTP.Host, strconv.Itoa(c.SMTP.Port))
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// SESConfigured returns true if the SES region is set. Credentials fall back
// to the default AWS chain when the static keys are empty.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Port = defaultSMTPPort
	c.Transport = TransportSMTP
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("MSG_FROM"); v != "" {
		c.Msg.From = v
	}
	if v := os.Getenv("MSG_REPLY_TO"); v != "" {
		c.Msg.ReplyTo = v
	}
	if v := os.Getenv("MSG_SUBJECT"); v != "" {
		c.Msg.Subject = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_STARTTLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.StartTLS = b
		}
	}
	if v := os.Getenv("SMTP_LOCAL_NAME"); v != "" {
		c.SMTP.LocalName = v
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := os.Getenv("TLS_CA_FILE"); v != "" {
		c.TLS.CAFile = v
	}
	if v := os.Getenv("TLS_INSECURE_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TLS.InsecureSkipVerify = b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
