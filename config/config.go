// Package config loads tdsession settings from a YAML file and overlays
// TDSESSION_* environment variables on top of it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggoodman/tdsession-go/auth"
	"github.com/ggoodman/tdsession-go/client"
	"github.com/ggoodman/tdsession-go/input"
	"github.com/ggoodman/tdsession-go/internal/logctx"
	"github.com/joeshaw/envdecode"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Input modes.
const (
	InputTerminal = "terminal"
	InputFileDrop = "filedrop"
	InputStatic   = "static"
)

// Broker kinds.
const (
	BrokerNone   = "none"
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete runtime configuration.
type Config struct {
	APIID         int32  `yaml:"api_id" env:"TDSESSION_API_ID"`
	APIHash       string `yaml:"api_hash" env:"TDSESSION_API_HASH"`
	DatabaseDir   string `yaml:"database_dir" env:"TDSESSION_DATABASE_DIR"`
	FilesDir      string `yaml:"files_dir" env:"TDSESSION_FILES_DIR"`
	UseTestDC     bool   `yaml:"use_test_dc" env:"TDSESSION_USE_TEST_DC"`
	EncryptionKey string `yaml:"encryption_key" env:"TDSESSION_ENCRYPTION_KEY"`
	// Parameters override the default engine parameters, for example
	// device_model or use_message_database.
	Parameters map[string]any `yaml:"parameters"`

	QueryTimeout time.Duration `yaml:"query_timeout" env:"TDSESSION_QUERY_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"TDSESSION_POLL_INTERVAL"`
	SettleDelay  time.Duration `yaml:"settle_delay" env:"TDSESSION_SETTLE_DELAY"`
	RateLimit    float64       `yaml:"rate_limit" env:"TDSESSION_RATE_LIMIT"`
	RateBurst    int           `yaml:"rate_burst" env:"TDSESSION_RATE_BURST"`

	// EngineVerbosity is the engine's own log verbosity.
	EngineVerbosity int `yaml:"engine_verbosity" env:"TDSESSION_ENGINE_VERBOSITY"`

	Log    LogConfig    `yaml:"log"`
	Input  InputConfig  `yaml:"input"`
	Broker BrokerConfig `yaml:"broker"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"TDSESSION_LOG_LEVEL"`
	Format string `yaml:"format" env:"TDSESSION_LOG_FORMAT"`
}

// InputConfig selects where credentials come from.
type InputConfig struct {
	Mode string `yaml:"mode" env:"TDSESSION_INPUT_MODE"`
	// Dir is the exchange directory of the filedrop mode.
	Dir string `yaml:"dir" env:"TDSESSION_INPUT_DIR"`
	// Credentials pre-seed answers by input kind, e.g. credential_type: bot.
	// They are consulted before the interactive mode.
	Credentials map[string]string `yaml:"credentials"`
	// BotToken is a shortcut for credential_type=bot plus the token.
	BotToken string `yaml:"bot_token" env:"TDSESSION_BOT_TOKEN"`
}

// BrokerConfig selects where updates are forwarded.
type BrokerConfig struct {
	Kind      string      `yaml:"kind" env:"TDSESSION_BROKER"`
	Namespace string      `yaml:"namespace" env:"TDSESSION_BROKER_NAMESPACE"`
	Types     []string    `yaml:"types"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis broker.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"TDSESSION_REDIS_ADDR"`
	Password  string `yaml:"password" env:"TDSESSION_REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"TDSESSION_REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env:"TDSESSION_REDIS_KEY_PREFIX"`
	MaxLen    int64  `yaml:"max_len" env:"TDSESSION_REDIS_MAXLEN"`
}

// Defaults returns the configuration used for unset values.
func Defaults() Config {
	return Config{
		DatabaseDir:     "tdlib/db",
		FilesDir:        "tdlib/files",
		QueryTimeout:    20 * time.Second,
		PollInterval:    time.Second,
		SettleDelay:     500 * time.Millisecond,
		EngineVerbosity: 1,
		Log:             LogConfig{Level: "info", Format: "text"},
		Input:           InputConfig{Mode: InputTerminal},
		Broker:          BrokerConfig{Kind: BrokerNone},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML from data on top of the defaults, without reading the
// environment.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("config: decode env: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.APIID == 0 || c.APIHash == "":
		return fmt.Errorf("%w: api_id and api_hash are required", ErrInvalid)
	case c.DatabaseDir == "" || c.FilesDir == "":
		return fmt.Errorf("%w: database_dir and files_dir are required", ErrInvalid)
	case c.RateLimit < 0:
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalid)
	}
	switch c.Input.Mode {
	case InputTerminal, InputStatic:
	case InputFileDrop:
		if c.Input.Dir == "" {
			return fmt.Errorf("%w: input.dir is required for filedrop", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown input mode %q", ErrInvalid, c.Input.Mode)
	}
	switch c.Broker.Kind {
	case BrokerNone, BrokerMemory, BrokerRedis, "":
	default:
		return fmt.Errorf("%w: unknown broker %q", ErrInvalid, c.Broker.Kind)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// AuthParameters returns the engine parameters for authorization.
func (c Config) AuthParameters() auth.Parameters {
	return auth.Parameters{
		APIID:         c.APIID,
		APIHash:       c.APIHash,
		DatabaseDir:   c.DatabaseDir,
		FilesDir:      c.FilesDir,
		UseTestDC:     c.UseTestDC,
		EncryptionKey: c.EncryptionKey,
		Options:       c.Parameters,
	}
}

// SeededInput returns the pre-seeded credentials as a provider.
func (c Config) SeededInput() input.Static {
	seed := input.Static{}
	for k, v := range c.Input.Credentials {
		seed[input.Kind(k)] = v
	}
	if c.Input.BotToken != "" {
		seed[input.KindCredentialType] = input.CredentialBot
		seed[input.KindCredentialValue] = c.Input.BotToken
	}
	return seed
}

// ClientOptions translates the session settings into client options.
func (c Config) ClientOptions() []client.Option {
	opts := []client.Option{
		client.WithParameters(c.AuthParameters()),
		client.WithQueryTimeout(c.QueryTimeout),
		client.WithPollInterval(c.PollInterval),
		client.WithSettleDelay(c.SettleDelay),
	}
	if c.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(rate.Limit(c.RateLimit), c.RateBurst))
	}
	return opts
}

// Logger builds the configured slog handler writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(c.Log.Format, "json") {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(logctx.Handler{Handler: h})
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return l, nil
}
