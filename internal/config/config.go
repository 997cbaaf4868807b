// Package config provides environment configuration for the relay bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	// ErrMissingToken is returned when the Discord gateway has no bot token.
	ErrMissingToken = errors.New("DISCORD_BOT_TOKEN is not set")
	// ErrMissingAPIKey is returned when no LLM API key is configured.
	ErrMissingAPIKey = errors.New("LLM_API_KEY is not set")
	// ErrInvalidDuration is returned when a relay duration is not positive.
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Gateway kinds.
const (
	GatewayDiscord = "discord"
	GatewayNATS    = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Gateway settings
	Gateway       string
	DiscordToken  string
	CommandPrefix string

	// LLM settings
	LLMProvider    string
	LLMAPIKey      string
	LLMAPIURL      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeout     time.Duration
	LLMMaxAttempts int

	// Relay settings
	CooldownWindow       time.Duration
	MaxContext           int
	MaxMessageLength     int
	IdleEvictionInterval time.Duration
	IdleThreshold        time.Duration
	PersonaFile          string

	// NATS settings
	NATSURL             string
	NATSCAFile          string
	NATSCertFile        string
	NATSKeyFile         string
	NATSToken           string
	NATSInboundSubject  string
	NATSOutboundSubject string
	EventsEnabled       bool

	// Ops server settings
	OpsPort            string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Gateway
		Gateway:       getEnv("GATEWAY", GatewayDiscord),
		DiscordToken:  getEnv("DISCORD_BOT_TOKEN", ""),
		CommandPrefix: getEnv("COMMAND_PREFIX", "!"),

		// LLM
		LLMProvider:    getEnv("LLM_PROVIDER", "openai"),
		LLMAPIKey:      getEnv("LLM_API_KEY", getEnv("GROQ_API_KEY", "")),
		LLMAPIURL:      getEnv("LLM_API_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "openai/gpt-oss-120b"),
		LLMMaxTokens:   getIntEnv("LLM_MAX_TOKENS", 512),
		LLMTemperature: getFloatEnv("LLM_TEMPERATURE", 0.7),
		LLMTimeout:     getDurationEnv("LLM_TIMEOUT", 30*time.Second),
		LLMMaxAttempts: getIntEnv("LLM_MAX_ATTEMPTS", 2),

		// Relay
		CooldownWindow:       getDurationEnv("COOLDOWN_WINDOW", 3*time.Second),
		MaxContext:           getIntEnv("MAX_CONTEXT", 10),
		MaxMessageLength:     getIntEnv("MAX_MESSAGE_LENGTH", 2000),
		IdleEvictionInterval: getDurationEnv("IDLE_EVICTION_INTERVAL", time.Hour),
		IdleThreshold:        getDurationEnv("IDLE_THRESHOLD", time.Hour),
		PersonaFile:          getEnv("PERSONA_FILE", ""),

		// NATS
		NATSURL:             getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:          getEnv("NATS_CA_FILE", ""),
		NATSCertFile:        getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:         getEnv("NATS_KEY_FILE", ""),
		NATSToken:           getEnv("NATS_TOKEN", ""),
		NATSInboundSubject:  getEnv("NATS_INBOUND_SUBJECT", "relay.inbound"),
		NATSOutboundSubject: getEnv("NATS_OUTBOUND_SUBJECT", "relay.outbound"),
		EventsEnabled:       getBoolEnv("EVENTS_ENABLED", false),

		// Ops server
		OpsPort:            getEnv("OPS_PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	switch c.Gateway {
	case GatewayDiscord:
		if c.DiscordToken == "" {
			return ErrMissingToken
		}
	case GatewayNATS:
	default:
		return fmt.Errorf("unknown gateway %q", c.Gateway)
	}

	if c.LLMAPIKey == "" {
		return ErrMissingAPIKey
	}

	for name, d := range map[string]time.Duration{
		"COOLDOWN_WINDOW":        c.CooldownWindow,
		"IDLE_EVICTION_INTERVAL": c.IdleEvictionInterval,
		"IDLE_THRESHOLD":         c.IdleThreshold,
	} {
		if d <= 0 {
			return fmt.Errorf("%s=%s: %w", name, d, ErrInvalidDuration)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
