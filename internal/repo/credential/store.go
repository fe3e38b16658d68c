package credential

import (
	"context"
	"errors"
	"fmt"
)

// Keys under which the session is persisted. Token and profile are always
// written and removed together.
const (
	KeyToken = "nutrifit_token"
	KeyUser  = "nutrifit_user"
)

var (
	// ErrCorruptValue is returned when a stored value cannot be unsealed.
	ErrCorruptValue = errors.New("corrupt credential value")

	// ErrInvalidKey is returned for keys outside [a-z0-9_-].
	ErrInvalidKey = errors.New("invalid credential key")

	// ErrUnknownBackend is returned by NewStore for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown credential store backend")
)

// Store defines durable key/value storage for session credentials.
// Values are sealed at rest; callers only ever see plaintext.
type Store interface {
	// Get returns the value stored under key.
	// Returns ok=false without error when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// StoreFactory is a function that creates a new Store instance.
// Returns an error if initialization fails.
type StoreFactory func(ctx context.Context) (Store, error)

// Config selects and configures the credential store backend.
type Config struct {
	// Backend is either "sqlite" or "file"
	Backend string `env:"BACKEND" default:"sqlite"`

	SQLite SQLiteStoreConfig `envPrefix:"SQLITE_"`
	File   FileStoreConfig   `envPrefix:"FILE_"`
	Seal   SealerConfig      `envPrefix:"SEAL_"`
}

// NewStoreFactory returns a StoreFactory for the configured backend.
func NewStoreFactory(cfg Config) StoreFactory {
	return func(ctx context.Context) (Store, error) {
		return NewStore(ctx, cfg)
	}
}

// NewStore opens the configured backend with a sealer derived from cfg.Seal.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	sealer, err := LoadSealer(cfg.Seal)
	if err != nil {
		return nil, fmt.Errorf("load sealer: %w", err)
	}

	switch cfg.Backend {
	case "", "sqlite":
		store, err := NewSQLiteStore(ctx, cfg.SQLite, sealer)
		if err != nil {
			return nil, fmt.Errorf("new sqlite store: %w", err)
		}

		return store, nil
	case "file":
		store, err := NewFileStore(ctx, cfg.File, sealer)
		if err != nil {
			return nil, fmt.Errorf("new file store: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	return nil
}
