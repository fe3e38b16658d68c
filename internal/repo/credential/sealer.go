package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCorruptKeyFile is returned for a key file that holds key material of the
// wrong size.
var ErrCorruptKeyFile = errors.New("corrupt credential key file")

const (
	keyFileSize = 32
	hkdfInfo    = "nutrifit credential store v1"
)

// SealerConfig holds the key material source for sealing stored values.
type SealerConfig struct {
	// Secret is used as key material when set. Otherwise KeyFile is used.
	Secret string `env:"SECRET" default:"" secret:"true"`

	// KeyFile holds random key material, created with mode 0600 on first use
	KeyFile string `env:"KEY_FILE" default:"var/storage/credentials.key"`
}

// Sealer encrypts values with XChaCha20-Poly1305. The storage key is bound as
// associated data, so a value copied to another key fails to open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the encryption key from secret with HKDF-SHA256.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty key material")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("new aead: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// LoadSealer creates a Sealer from cfg.Secret or, if empty, from cfg.KeyFile.
func LoadSealer(cfg SealerConfig) (*Sealer, error) {
	if cfg.Secret != "" {
		return NewSealer([]byte(cfg.Secret))
	}

	material, err := readOrCreateKeyFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("key file: %w", err)
	}

	return NewSealer(material)
}

// readOrCreateKeyFile returns the key material at path. A missing file, or an
// empty one left behind by an interrupted run, is replaced by fresh material.
func readOrCreateKeyFile(path string) ([]byte, error) {
	material, err := os.ReadFile(path)

	switch {
	case err == nil && len(material) == keyFileSize:
		return material, nil
	case err == nil && len(material) > 0:
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrCorruptKeyFile, len(material), keyFileSize)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read: %w", err)
	}

	material, err = writeKeyFile(path, err == nil)
	if errors.Is(err, os.ErrExist) {
		// lost a race with another process, use its key
		return readOrCreateKeyFile(path)
	}

	return material, err
}

// writeKeyFile publishes new key material at path through a synced temp file,
// so readers never see a partially written key. Unless replace is set, an
// existing file is left alone and os.ErrExist returned.
func writeKeyFile(path string, replace bool) (material []byte, err error) {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	material = make([]byte, keyFileSize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(material); err != nil {
		tmp.Close()

		return nil, fmt.Errorf("write: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return nil, fmt.Errorf("sync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	if replace {
		err = os.Rename(tmp.Name(), path)
	} else {
		err = os.Link(tmp.Name(), path)
	}

	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	return material, nil
}

// Seal encrypts plaintext for key. The nonce is prepended to the ciphertext.
func (s *Sealer) Seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

// Open decrypts a value produced by Seal for the same key.
// Returns ErrCorruptValue if the value was truncated, tampered with or sealed
// under a different key.
func (s *Sealer) Open(key string, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, ErrCorruptValue
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, errors.Join(ErrCorruptValue, err)
	}

	return plaintext, nil
}
