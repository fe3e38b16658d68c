package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

const (
	fileExt  = "cred"
	lockName = ".lock"
)

// FileStoreConfig holds configuration for the file based credential store.
type FileStoreConfig struct {
	// Basedir is the directory holding one file per key
	Basedir string `env:"BASEDIR" default:"var/storage/credentials"`
}

// FileStore implements Store with one sealed file per key. Writes go through a
// temporary file and a rename, so readers never observe a partial value.
// An advisory lock serializes writers across processes.
type FileStore struct {
	cfg    FileStoreConfig
	sealer *Sealer
	log    logging.Logger
}

var _ Store = (*FileStore)(nil)

// FileStoreFactory creates a factory function that returns a new FileStore.
func FileStoreFactory(cfg FileStoreConfig, sealer *Sealer) StoreFactory {
	return func(ctx context.Context) (Store, error) {
		return NewFileStore(ctx, cfg, sealer)
	}
}

// NewFileStore creates the base directory (mode 0700) and returns a FileStore.
func NewFileStore(ctx context.Context, cfg FileStoreConfig, sealer *Sealer) (store *FileStore, err error) {
	log := logging.GetLogger("repo.credential.file_store").With(
		logging.Group("repo", "basedir", cfg.Basedir),
	)

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "init storage failed", "error", err)
		} else {
			log.DebugContext(ctx, "init storage")
		}
	}()

	if err := os.MkdirAll(cfg.Basedir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	return &FileStore{cfg: cfg, sealer: sealer, log: log}, nil
}

// GetFilename returns the full filesystem path for key.
func (fs *FileStore) GetFilename(key string) string {
	return filepath.Join(fs.cfg.Basedir, fmt.Sprintf("%s.%s", key, fileExt))
}

// Get implements Store.Get.
func (fs *FileStore) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	sealed, err := os.ReadFile(fs.GetFilename(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("read: %w", err)
	}

	plaintext, err := fs.sealer.Open(key, sealed)
	if err != nil {
		fs.log.WarnContext(ctx, "credential unreadable", "key", key, "error", err)

		return "", false, fmt.Errorf("open credential: %w", err)
	}

	return string(plaintext), true, nil
}

// Set implements Store.Set.
func (fs *FileStore) Set(ctx context.Context, key, value string) (err error) {
	if err := validateKey(key); err != nil {
		return err
	}

	filename := fs.GetFilename(key)

	defer func() {
		log := fs.log.With(logging.Group("credential", "key", key, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "credential store failed", "error", err)
		} else {
			log.DebugContext(ctx, "credential stored")
		}
	}()

	sealed, err := fs.sealer.Seal(key, []byte(value))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	release, err := fs.flock(syscall.LOCK_EX)
	if err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	defer release()

	// CreateTemp uses mode 0600
	file, err := os.CreateTemp(fs.cfg.Basedir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	tmpName := file.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := file.Write(sealed); err != nil {
		_ = file.Close()

		return fmt.Errorf("write: %w", err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()

		return fmt.Errorf("sync: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// Delete implements Store.Delete.
func (fs *FileStore) Delete(ctx context.Context, key string) (err error) {
	if err := validateKey(key); err != nil {
		return err
	}

	filename := fs.GetFilename(key)

	defer func() {
		log := fs.log.With(logging.Group("credential", "key", key, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "credential delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "credential deleted")
		}
	}()

	release, err := fs.flock(syscall.LOCK_EX)
	if err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	defer release()

	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}

// Close implements Store.Close. FileStore holds no open resources.
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) flock(mode int) (release func(), err error) {
	file, err := os.OpenFile(filepath.Join(fs.cfg.Basedir, lockName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lockfile: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), mode); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
	}, nil
}
