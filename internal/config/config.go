// ABOUTME: Environment configuration for the voice client
// ABOUTME: Loads .env then the process environment with envconfig
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transport names
const (
	TransportWire  = "wire"
	TransportGenAI = "genai"
)

// Config holds all configuration for the client
type Config struct {
	// Service configuration
	APIKey    string `envconfig:"GEMINI_API_KEY"`
	Model     string `envconfig:"OSE_MODEL"` // overrides the persona model
	Voice     string `envconfig:"OSE_VOICE"` // overrides the persona voice
	BaseURL   string `envconfig:"OSE_BASE_URL"`
	Transport string `envconfig:"OSE_TRANSPORT" default:"wire"` // wire or genai

	// Audio configuration
	Output           string        `envconfig:"OSE_OUTPUT" default:"oto"` // oto or malgo
	InputSampleRate  int           `envconfig:"OSE_INPUT_SAMPLE_RATE" default:"16000"`
	OutputSampleRate int           `envconfig:"OSE_OUTPUT_SAMPLE_RATE" default:"24000"`
	FrameSize        int           `envconfig:"OSE_FRAME_SIZE" default:"256"`
	HandshakeTimeout time.Duration `envconfig:"OSE_HANDSHAKE_TIMEOUT" default:"10s"`

	// Persona file; empty uses the built-in persona
	PersonaFile string `envconfig:"OSE_PERSONA_FILE"`

	// Observability configuration
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsAddr string `envconfig:"METRICS_ADDR"` // empty disables the metrics server
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportWire, TransportGenAI:
	default:
		errs = append(errs, fmt.Errorf("OSE_TRANSPORT %q is invalid; valid values: wire, genai", c.Transport))
	}
	switch c.Output {
	case "oto", "malgo":
	default:
		errs = append(errs, fmt.Errorf("OSE_OUTPUT %q is invalid; valid values: oto, malgo", c.Output))
	}
	if c.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("OSE_INPUT_SAMPLE_RATE must be positive, got %d", c.InputSampleRate))
	}
	if c.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("OSE_OUTPUT_SAMPLE_RATE must be positive, got %d", c.OutputSampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("OSE_FRAME_SIZE must be positive, got %d", c.FrameSize))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OSE_HANDSHAKE_TIMEOUT must be positive, got %s", c.HandshakeTimeout))
	}

	return errors.Join(errs...)
}

// RequireAPIKey fails when no key is configured. A local mock server does
// not need one, so callers decide when to enforce it.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}
