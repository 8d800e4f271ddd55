package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultSweepEvery   = time.Minute
	defaultDefaultCcy   = "USD"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Pricing   PricingConfig
	Features  FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topics the engine publishes domain events on.
type PubSubConfig struct {
	ProjectID         string
	DiscountTopic     string
	PriceBandTopic    string
	PublishTimeout    time.Duration
	DisablePublishing bool
}

// PricingConfig tunes the discount engine and the price-band sweep.
type PricingConfig struct {
	SweepInterval   time.Duration
	DefaultCurrency string
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnablePriceBandSweep bool
	EnableEventPublish   bool
}

// ValidationError lists the configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile points Load at a different .env file for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit key/value pairs that win over the system
// environment, used mostly from tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores os.LookupEnv so only supplied maps and .env files
// are consulted.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// Load assembles the service configuration by combining defaults, .env overrides
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	// Precedence: explicit map, then process environment, then the .env file.
	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "PRICING_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "PRICING_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "PRICING_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "PRICING_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "PRICING_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "PRICING_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:         stringWithDefault(lookup, "PRICING_PUBSUB_PROJECT_ID", ""),
			DiscountTopic:     stringWithDefault(lookup, "PRICING_PUBSUB_DISCOUNT_TOPIC", "discount-applied"),
			PriceBandTopic:    stringWithDefault(lookup, "PRICING_PUBSUB_PRICEBAND_TOPIC", "price-band-recalculated"),
			PublishTimeout:    durationWithDefault(lookup, "PRICING_PUBSUB_PUBLISH_TIMEOUT", 10*time.Second),
			DisablePublishing: boolWithDefault(lookup, "PRICING_PUBSUB_DISABLE", false),
		},
		Pricing: PricingConfig{
			SweepInterval:   durationWithDefault(lookup, "PRICING_SWEEP_INTERVAL", defaultSweepEvery),
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, "PRICING_DEFAULT_CURRENCY", defaultDefaultCcy)),
		},
		Features: FeatureFlags{
			EnablePriceBandSweep: boolWithDefault(lookup, "PRICING_FEATURE_SWEEP", true),
			EnableEventPublish:   boolWithDefault(lookup, "PRICING_FEATURE_EVENTS", true),
		},
	}

	// PubSub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.Firestore.ProjectID) == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if c.Pricing.SweepInterval <= 0 {
		missing = append(missing, "Pricing.SweepInterval")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// loadDotEnv parses KEY=VALUE pairs from the given file. A missing file is
// fine; anything that does not parse as a pair is skipped.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if key, value, ok := parseDotEnvLine(scanner.Text()); ok {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}

func parseDotEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	return key, strings.Trim(strings.TrimSpace(value), "\"'"), true
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
