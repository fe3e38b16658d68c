package credential_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkrupp/nutrifit-client/internal/repo/credential"
)

func newConfig(t *testing.T, backend, secret string) credential.Config {
	t.Helper()

	dir := t.TempDir()

	return credential.Config{
		Backend: backend,
		SQLite:  credential.SQLiteStoreConfig{DatabasePath: filepath.Join(dir, "credentials.db")},
		File:    credential.FileStoreConfig{Basedir: filepath.Join(dir, "credentials")},
		Seal:    credential.SealerConfig{Secret: secret, KeyFile: filepath.Join(dir, "credentials.key")},
	}
}

func openStore(t *testing.T, cfg credential.Config) credential.Store {
	t.Helper()

	store, err := credential.NewStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewStore(%s) error = %v", cfg.Backend, err)
	}

	return store
}

var backends = []string{"sqlite", "file"}

func TestStore_SetGetDelete(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openStore(t, newConfig(t, backend, "s3cret"))
			t.Cleanup(func() { _ = store.Close() })

			if _, ok, err := store.Get(ctx, credential.KeyToken); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v; want false, nil", ok, err)
			}

			if err := store.Set(ctx, credential.KeyToken, "token-1"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			if err := store.Set(ctx, credential.KeyToken, "token-2"); err != nil {
				t.Fatalf("Set(overwrite) error = %v", err)
			}

			value, ok, err := store.Get(ctx, credential.KeyToken)
			if err != nil || !ok || value != "token-2" {
				t.Fatalf("Get() = %q, %v, %v; want token-2, true, nil", value, ok, err)
			}

			if err := store.Delete(ctx, credential.KeyToken); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}

			if err := store.Delete(ctx, credential.KeyToken); err != nil {
				t.Fatalf("Delete(missing) error = %v", err)
			}

			if _, ok, err := store.Get(ctx, credential.KeyToken); err != nil || ok {
				t.Fatalf("Get(after delete) = ok %v, err %v; want false, nil", ok, err)
			}
		})
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			// empty secret: key material comes from the generated key file
			cfg := newConfig(t, backend, "")

			store := openStore(t, cfg)
			if err := store.Set(ctx, credential.KeyUser, `{"id":"u1"}`); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			_ = store.Close()

			info, err := os.Stat(cfg.Seal.KeyFile)
			if err != nil {
				t.Fatalf("key file not created: %v", err)
			}

			if perm := info.Mode().Perm(); perm != 0o600 {
				t.Errorf("key file mode = %o, want 600", perm)
			}

			store = openStore(t, cfg)
			t.Cleanup(func() { _ = store.Close() })

			value, ok, err := store.Get(ctx, credential.KeyUser)
			if err != nil || !ok || value != `{"id":"u1"}` {
				t.Fatalf("Get() = %q, %v, %v", value, ok, err)
			}
		})
	}
}

func TestStore_WrongKeyMaterialIsCorrupt(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			cfg := newConfig(t, backend, "first")

			store := openStore(t, cfg)
			if err := store.Set(ctx, credential.KeyToken, "token"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			_ = store.Close()

			cfg.Seal.Secret = "second"
			store = openStore(t, cfg)
			t.Cleanup(func() { _ = store.Close() })

			if _, _, err := store.Get(ctx, credential.KeyToken); !errors.Is(err, credential.ErrCorruptValue) {
				t.Fatalf("Get() error = %v, want ErrCorruptValue", err)
			}
		})
	}
}

func TestStore_InvalidKey(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			store := openStore(t, newConfig(t, backend, "s3cret"))
			t.Cleanup(func() { _ = store.Close() })

			for _, key := range []string{"", "../escape", "Upper"} {
				if err := store.Set(context.Background(), key, "v"); !errors.Is(err, credential.ErrInvalidKey) {
					t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
				}
			}
		})
	}
}

func TestNewStore_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := credential.NewStore(context.Background(), newConfig(t, "keychain", "s3cret"))
	if !errors.Is(err, credential.ErrUnknownBackend) {
		t.Fatalf("NewStore() error = %v, want ErrUnknownBackend", err)
	}
}

func TestFileStore_ValueMovedToOtherKeyIsCorrupt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := newConfig(t, "file", "s3cret")

	sealer, err := credential.LoadSealer(cfg.Seal)
	if err != nil {
		t.Fatalf("LoadSealer() error = %v", err)
	}

	store, err := credential.NewFileStore(ctx, cfg.File, sealer)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := store.Set(ctx, credential.KeyToken, "token"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := os.Rename(store.GetFilename(credential.KeyToken), store.GetFilename(credential.KeyUser)); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, _, err := store.Get(ctx, credential.KeyUser); !errors.Is(err, credential.ErrCorruptValue) {
		t.Fatalf("Get() error = %v, want ErrCorruptValue", err)
	}
}

func TestSealer_RejectsTruncated(t *testing.T) {
	t.Parallel()

	sealer, err := credential.NewSealer([]byte("s3cret"))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	sealed, err := sealer.Seal("k", []byte("value"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := sealer.Open("k", sealed[:10]); !errors.Is(err, credential.ErrCorruptValue) {
		t.Errorf("Open(truncated) error = %v, want ErrCorruptValue", err)
	}

	plaintext, err := sealer.Open("k", sealed)
	if err != nil || string(plaintext) != "value" {
		t.Errorf("Open() = %q, %v", plaintext, err)
	}
}

func TestLoadSealer_KeyFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing []byte
		wantErr  error
	}{
		{name: "missing file is created"},
		{name: "empty file from an interrupted run is replaced", existing: []byte{}},
		{name: "wrong size is corrupt", existing: []byte("short"), wantErr: credential.ErrCorruptKeyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "keys")
			path := filepath.Join(dir, "credentials.key")

			if tt.existing != nil {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					t.Fatal(err)
				}

				if err := os.WriteFile(path, tt.existing, 0o600); err != nil {
					t.Fatal(err)
				}
			}

			first, err := credential.LoadSealer(credential.SealerConfig{KeyFile: path})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("LoadSealer() error = %v, want %v", err, tt.wantErr)
				}

				return
			} else if err != nil {
				t.Fatalf("LoadSealer() error = %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}

			if info.Size() != 32 || info.Mode().Perm() != 0o600 {
				t.Errorf("key file size = %d, mode = %v, want 32 bytes with 0600", info.Size(), info.Mode().Perm())
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}

			if len(entries) != 1 {
				t.Errorf("key dir holds %d entries, want only the key file", len(entries))
			}

			sealed, err := first.Seal(credential.KeyToken, []byte("token"))
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			second, err := credential.LoadSealer(credential.SealerConfig{KeyFile: path})
			if err != nil {
				t.Fatalf("LoadSealer() second call error = %v", err)
			}

			if plaintext, err := second.Open(credential.KeyToken, sealed); err != nil || string(plaintext) != "token" {
				t.Errorf("Open() with reloaded key = %q, %v", plaintext, err)
			}
		})
	}
}
