// Package config loads the immutable startup configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
)

// Environment variable names.
const (
	EnvPracticumToken    = "PRACTICUM_TOKEN"
	EnvTelegramToken     = "TELEGRAM_TOKEN"
	EnvTelegramChatID    = "TELEGRAM_CHAT_ID"
	EnvEndpoint          = "PRACTICUM_ENDPOINT"
	EnvRetryPeriod       = "RETRY_PERIOD"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
	EnvLogLevel          = "LOG_LEVEL"
	EnvMockMessenger     = "MOCK_MESSENGER"
	EnvJournalDir        = "JOURNAL_DIR"
	EnvJournalBucket     = "JOURNAL_BUCKET"
	EnvGoogleCredentials = "GOOGLE_CREDENTIALS_JSON"
	EnvPort              = "PORT"
)

const (
	defaultRetryPeriod    = 10 * time.Minute
	defaultRequestTimeout = 30 * time.Second
)

// KeychainService is the keychain service holding credential fallbacks.
const KeychainService = "homework-notifier"

// Config is built once at startup and never modified.
type Config struct {
	PracticumToken        string
	TelegramToken         string
	TelegramChatID        string
	Endpoint              string // empty means the production endpoint
	JournalDir            string
	JournalBucket         string
	GoogleCredentialsJSON string
	Port                  string
	RetryPeriod           time.Duration
	RequestTimeout        time.Duration
	LogLevel              slog.Level
	MockMessenger         bool
}

// MissingCredentialsError lists required credentials that were not found.
type MissingCredentialsError struct {
	Names []string
}

func (e *MissingCredentialsError) Error() string {
	return "missing required credentials: " + strings.Join(e.Names, ", ")
}

// IsMissingCredentials checks if an error is a MissingCredentialsError.
func IsMissingCredentials(err error) bool {
	var missing *MissingCredentialsError
	return errors.As(err, &missing)
}

// Getenv reads an environment variable; os.Getenv satisfies it.
type Getenv func(key string) string

// SecretLookup returns a stored secret for an account name, or "" if none.
type SecretLookup func(account string) (string, error)

// Keychain looks secrets up in the OS keychain under KeychainService.
func Keychain(account string) (string, error) {
	secret, err := keyring.Get(KeychainService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return secret, err
}

// Load builds a Config from the environment. Credentials missing from the
// environment are looked up with secrets, when given. All three credentials
// must be present.
func Load(getenv Getenv, secrets SecretLookup) (*Config, error) {
	cfg := &Config{
		Endpoint:              strings.TrimSpace(getenv(EnvEndpoint)),
		JournalDir:            strings.TrimSpace(getenv(EnvJournalDir)),
		JournalBucket:         strings.TrimSpace(getenv(EnvJournalBucket)),
		GoogleCredentialsJSON: getenv(EnvGoogleCredentials),
		Port:                  strings.TrimSpace(getenv(EnvPort)),
	}

	var missing []string
	for _, c := range []struct {
		dst  *string
		name string
	}{
		{&cfg.PracticumToken, EnvPracticumToken},
		{&cfg.TelegramToken, EnvTelegramToken},
		{&cfg.TelegramChatID, EnvTelegramChatID},
	} {
		v, err := credential(getenv, secrets, c.name)
		if err != nil {
			return nil, err
		}
		if v == "" {
			missing = append(missing, c.name)
			continue
		}
		*c.dst = v
	}
	if len(missing) > 0 {
		return nil, &MissingCredentialsError{Names: missing}
	}

	var err error
	if cfg.RetryPeriod, err = duration(getenv(EnvRetryPeriod), defaultRetryPeriod); err != nil {
		return nil, fmt.Errorf("parse %s: %w", EnvRetryPeriod, err)
	}
	if cfg.RequestTimeout, err = duration(getenv(EnvRequestTimeout), defaultRequestTimeout); err != nil {
		return nil, fmt.Errorf("parse %s: %w", EnvRequestTimeout, err)
	}
	if cfg.LogLevel, err = logLevel(getenv(EnvLogLevel)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", EnvLogLevel, err)
	}
	if v := strings.TrimSpace(getenv(EnvMockMessenger)); v != "" {
		if cfg.MockMessenger, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvMockMessenger, err)
		}
	}

	return cfg, nil
}

// LogValue keeps credentials out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("endpoint", c.Endpoint),
		slog.String("retry_period", c.RetryPeriod.String()),
		slog.String("request_timeout", c.RequestTimeout.String()),
		slog.String("log_level", c.LogLevel.String()),
		slog.Bool("mock_messenger", c.MockMessenger),
		slog.String("journal_dir", c.JournalDir),
		slog.String("journal_bucket", c.JournalBucket),
		slog.String("port", c.Port),
	)
}

func credential(getenv Getenv, secrets SecretLookup, name string) (string, error) {
	if v := strings.TrimSpace(getenv(name)); v != "" {
		return v, nil
	}
	if secrets == nil {
		return "", nil
	}
	v, err := secrets(name)
	if err != nil {
		return "", fmt.Errorf("look up %s in keychain: %w", name, err)
	}
	return strings.TrimSpace(v), nil
}

// duration accepts Go durations ("90s", "10m") or a bare number of seconds.
func duration(v string, fallback time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func logLevel(v string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(v) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return 0, err
	}
	return level, nil
}
