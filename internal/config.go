package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/subtrack/internal/aggregator"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/inbox"
	"github.com/starford/subtrack/internal/invoice"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Detection  detection.Config  `yaml:"detection"`
	Inbox      inbox.Config      `yaml:"inbox"`
	Aggregator aggregator.Config `yaml:"aggregator"`
	Invoice    InvoiceConfig     `yaml:"invoice"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if err := c.Aggregator.Validate(); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	return c.Invoice.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level   `yaml:"log_level"`
	HTTP     HTTPConfig   `yaml:"http"`
	Events   EventsConfig `yaml:"events"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// EventsConfig tunes the SSE stream.
type EventsConfig struct {
	SummaryThrottle time.Duration `yaml:"summary_throttle"`
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// InvoiceConfig selects the invoice extractor and bounds uploads.
type InvoiceConfig struct {
	Extractor   string `yaml:"extractor"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// Validate validates the invoice configuration.
func (c *InvoiceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extractor, validation.In(invoice.KindMock, invoice.KindPDF)),
		validation.Field(&c.MaxUploadMB, validation.Min(int64(1)), validation.Max(int64(100))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Events: EventsConfig{
				SummaryThrottle: 2 * time.Second,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./subtrack.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Detection: detection.DefaultConfig(),
		Inbox: inbox.Config{
			Path:     "./inbox",
			Debounce: 500 * time.Millisecond,
		},
		Aggregator: aggregator.DefaultConfig(),
		Invoice: InvoiceConfig{
			Extractor:   invoice.KindMock,
			MaxUploadMB: 10,
		},
	}
}
