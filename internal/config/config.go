package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. MAILAGENT_MAILBOX_ADDRESS.
	EnvPrefix = "MAILAGENT"

	// DefaultPath is the config file used when none is given on the command line.
	DefaultPath = "config.yaml"
)

// Submission security modes.
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

type MailboxConfig struct {
	Address        string `mapstructure:"address"`
	Username       string `mapstructure:"username"` // login name when it differs from Address
	Credential     string `mapstructure:"credential"`
	ReadHost       string `mapstructure:"read_host"`
	ReadPort       int    `mapstructure:"read_port"`
	ReadTLS        bool   `mapstructure:"read_tls"`
	SubmitHost     string `mapstructure:"submit_host"`
	SubmitPort     int    `mapstructure:"submit_port"`
	SubmitSecurity string `mapstructure:"submit_security"`
}

type AgentConfig struct {
	AutoReply         bool   `mapstructure:"auto_reply"`
	ReplyDelaySeconds int    `mapstructure:"reply_delay"`
	CheckIntervalSecs int    `mapstructure:"check_interval"`
	MaxEmailsPerCheck int    `mapstructure:"max_emails_per_check"`
	Signer            string `mapstructure:"signer"`
	SeenStoreURL      string `mapstructure:"seen_store_url"`
}

type GenerationConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ModelID        string `mapstructure:"model_id"`
	Tone           string `mapstructure:"tone"`
	Credential     string `mapstructure:"credential"`
	TimeoutSeconds int    `mapstructure:"timeout"`
}

type MessagingConfig struct {
	BotToken       string  `mapstructure:"bot_token"`
	AllowedUserIDs []int64 `mapstructure:"allowed_user_ids"`
}

type JournalConfig struct {
	DatabaseURL   string `mapstructure:"database_url"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Config is loaded once at startup and never modified afterwards.
type Config struct {
	Environment string           `mapstructure:"-"`
	Mailbox     MailboxConfig    `mapstructure:"mailbox"`
	Agent       AgentConfig      `mapstructure:"agent"`
	Generation  GenerationConfig `mapstructure:"generation"`
	Messaging   MessagingConfig  `mapstructure:"messaging"`
	Journal     JournalConfig    `mapstructure:"journal"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Log         LogConfig        `mapstructure:"log"`
}

// Error reports a missing or invalid configuration field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// SecretSource looks up a secret that was left out of the config file.
type SecretSource interface {
	Lookup(key string) (string, error)
}

// placeholders are the values written by WriteSample. They count as unset.
var placeholders = map[string]bool{
	"your-email@gmail.com":           true,
	"your-16-character-app-password": true,
	"your-gemini-api-key-here":       true,
	"your-telegram-bot-token":        true,
}

// IsPlaceholder reports whether value is empty or one of the sample placeholders.
func IsPlaceholder(value string) bool {
	return strings.TrimSpace(value) == "" || placeholders[value]
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mailbox.address", "")
	v.SetDefault("mailbox.username", "")
	v.SetDefault("mailbox.credential", "")
	v.SetDefault("mailbox.read_host", "imap.gmail.com")
	v.SetDefault("mailbox.read_port", 993)
	v.SetDefault("mailbox.read_tls", true)
	v.SetDefault("mailbox.submit_host", "smtp.gmail.com")
	v.SetDefault("mailbox.submit_port", 587)
	v.SetDefault("mailbox.submit_security", SecurityStartTLS)

	v.SetDefault("agent.auto_reply", true)
	v.SetDefault("agent.reply_delay", 5)
	v.SetDefault("agent.check_interval", 30)
	v.SetDefault("agent.max_emails_per_check", 5)
	v.SetDefault("agent.signer", "Yash")
	v.SetDefault("agent.seen_store_url", "")

	v.SetDefault("generation.enabled", false)
	v.SetDefault("generation.model_id", "gemini-2.5-flash")
	v.SetDefault("generation.tone", "professional")
	v.SetDefault("generation.credential", "")
	v.SetDefault("generation.timeout", 30)

	v.SetDefault("messaging.bot_token", "")
	v.SetDefault("messaging.allowed_user_ids", []int64{})

	v.SetDefault("journal.database_url", "")
	v.SetDefault("journal.encryption_key", "")

	v.SetDefault("telemetry.otlp_endpoint", "")

	v.SetDefault("log.file", filepath.Join("logs", "email_agent.log"))
	v.SetDefault("log.level", "info")
}

// NewConfig reads the YAML file at path, applies MAILAGENT_* environment overrides and
// defaults, fills a missing mailbox credential from secrets (may be nil) and validates
// the result. A missing file is not an error as long as the environment supplies the
// required fields.
func NewConfig(path string, secrets SecretSource) (*Config, error) {
	env := os.Getenv(EnvPrefix + "_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Environment = env

	if IsPlaceholder(cfg.Mailbox.Credential) && secrets != nil && !IsPlaceholder(cfg.Mailbox.Address) {
		secret, err := secrets.Lookup(cfg.Mailbox.Address)
		if err == nil {
			cfg.Mailbox.Credential = secret
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fixed list of required fields and the ranges of the optional ones.
func (c *Config) Validate() error {
	if IsPlaceholder(c.Mailbox.Address) {
		return &Error{Field: "mailbox.address", Reason: "is required"}
	}

	if IsPlaceholder(c.Mailbox.Credential) {
		return &Error{Field: "mailbox.credential", Reason: "is required"}
	}

	if c.Mailbox.ReadHost == "" {
		return &Error{Field: "mailbox.read_host", Reason: "is required"}
	}

	if c.Mailbox.SubmitHost == "" {
		return &Error{Field: "mailbox.submit_host", Reason: "is required"}
	}

	if err := validatePort("mailbox.read_port", c.Mailbox.ReadPort); err != nil {
		return err
	}

	if err := validatePort("mailbox.submit_port", c.Mailbox.SubmitPort); err != nil {
		return err
	}

	switch c.Mailbox.SubmitSecurity {
	case SecurityStartTLS, SecurityTLS, SecurityNone:
	default:
		return &Error{Field: "mailbox.submit_security", Reason: "must be one of starttls, tls, none"}
	}

	if c.Agent.ReplyDelaySeconds < 0 {
		return &Error{Field: "agent.reply_delay", Reason: "must not be negative"}
	}

	if c.Agent.CheckIntervalSecs <= 0 {
		return &Error{Field: "agent.check_interval", Reason: "must be positive"}
	}

	if c.Agent.MaxEmailsPerCheck <= 0 {
		return &Error{Field: "agent.max_emails_per_check", Reason: "must be positive"}
	}

	if c.Journal.DatabaseURL != "" {
		if err := validateEncryptionKey(c.Journal.EncryptionKey); err != nil {
			return err
		}
	}

	return nil
}

// ValidateBot checks the fields only the chat front end needs.
func (c *Config) ValidateBot() error {
	if IsPlaceholder(c.Messaging.BotToken) {
		return &Error{Field: "messaging.bot_token", Reason: "is required"}
	}
	return nil
}

func validatePort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return &Error{Field: field, Reason: "must be between 1 and 65535"}
	}
	return nil
}

func validateEncryptionKey(key string) error {
	if key == "" {
		return &Error{Field: "journal.encryption_key", Reason: "is required"}
	}

	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return &Error{Field: "journal.encryption_key", Reason: "is not valid base64"}
	}

	if len(decoded) != 32 {
		return &Error{Field: "journal.encryption_key", Reason: fmt.Sprintf("must decode to 32 bytes, got %d", len(decoded))}
	}

	return nil
}

// LoginUser is the name used to authenticate both mail sessions.
func (c *Config) LoginUser() string {
	if c.Mailbox.Username != "" {
		return c.Mailbox.Username
	}
	return c.Mailbox.Address
}

// ReadAddr returns the IMAP host:port.
func (c *Config) ReadAddr() string {
	return net.JoinHostPort(c.Mailbox.ReadHost, strconv.Itoa(c.Mailbox.ReadPort))
}

// SubmitAddr returns the SMTP host:port.
func (c *Config) SubmitAddr() string {
	return net.JoinHostPort(c.Mailbox.SubmitHost, strconv.Itoa(c.Mailbox.SubmitPort))
}

func (c *Config) ReplyDelay() time.Duration {
	return time.Duration(c.Agent.ReplyDelaySeconds) * time.Second
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Agent.CheckIntervalSecs) * time.Second
}

func (c *Config) GenerationTimeout() time.Duration {
	if c.Generation.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// Summary describes the effective configuration without any secret values.
func (c *Config) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "environment: %s\n", c.Environment)
	fmt.Fprintf(&sb, "mailbox: %s (read %s, submit %s/%s)\n", c.Mailbox.Address, c.ReadAddr(), c.SubmitAddr(), c.Mailbox.SubmitSecurity)
	fmt.Fprintf(&sb, "agent: auto_reply=%t reply_delay=%ds check_interval=%ds max_emails_per_check=%d\n",
		c.Agent.AutoReply, c.Agent.ReplyDelaySeconds, c.Agent.CheckIntervalSecs, c.Agent.MaxEmailsPerCheck)
	fmt.Fprintf(&sb, "generation: enabled=%t model=%s tone=%s credential_set=%t\n",
		c.Generation.Enabled, c.Generation.ModelID, c.Generation.Tone, !IsPlaceholder(c.Generation.Credential))
	fmt.Fprintf(&sb, "seen store: %s\n", storeKind(c.Agent.SeenStoreURL != "", "redis", "memory"))
	fmt.Fprintf(&sb, "journal: %s\n", storeKind(c.Journal.DatabaseURL != "", "postgres", "disabled"))
	fmt.Fprintf(&sb, "bot token set: %t\n", !IsPlaceholder(c.Messaging.BotToken))
	return sb.String()
}

func storeKind(set bool, yes, no string) string {
	if set {
		return yes
	}
	return no
}

// WriteSample writes a sample config file with placeholder credentials.
func WriteSample(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("mailbox", map[string]any{
		"address":         "your-email@gmail.com",
		"credential":      "your-16-character-app-password",
		"read_host":       "imap.gmail.com",
		"read_port":       993,
		"submit_host":     "smtp.gmail.com",
		"submit_port":     587,
		"submit_security": SecurityStartTLS,
	})
	v.Set("agent", map[string]any{
		"auto_reply":           true,
		"reply_delay":          5,
		"check_interval":       30,
		"max_emails_per_check": 5,
	})
	v.Set("generation", map[string]any{
		"enabled":    false,
		"model_id":   "gemini-2.5-flash",
		"tone":       "professional",
		"credential": "your-gemini-api-key-here",
	})
	v.Set("messaging", map[string]any{
		"bot_token": "your-telegram-bot-token",
	})

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
