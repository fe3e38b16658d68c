package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	. "github.com/mkrupp/nutrifit-client/internal/infra/config"
)

type logConfig struct {
	Level string `env:"LEVEL" default:"info"`
}

type storeConfig struct {
	Backend     string        `env:"BACKEND" default:"sqlite"`
	Secret      string        `env:"SECRET" default:"" secret:"true"`
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

type imageConfig struct {
	Width   int      `env:"WIDTH" default:"1080"`
	Quality float64  `env:"QUALITY" default:"0.5"`
	Formats []string `env:"FORMATS" default:"jpeg, png,,tiff"`
}

type clientConfig struct {
	EnvConfig

	Log     logConfig   `envPrefix:"LOG_"`
	Store   storeConfig `envPrefix:"STORE_"`
	Image   imageConfig `envPrefix:"IMAGE_"`
	Retries uint8       `env:"RETRIES" default:"3"`
	Comment string
}

const namespace = "NUTRIFIT_FITCLIENT"

//nolint:paralleltest
func TestParse_Defaults(t *testing.T) {
	var cfg clientConfig
	if err := Parse(context.Background(), &cfg, namespace); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Store.Backend != "sqlite" || cfg.Store.BusyTimeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}

	if cfg.Image.Width != 1080 || cfg.Image.Quality != 0.5 || cfg.Retries != 3 {
		t.Errorf("image = %+v, retries = %d", cfg.Image, cfg.Retries)
	}

	if !slices.Equal(cfg.Image.Formats, []string{"jpeg", "png", "tiff"}) {
		t.Errorf("formats = %q", cfg.Image.Formats)
	}

	if cfg.Namespace() != namespace {
		t.Errorf("Namespace() = %q", cfg.Namespace())
	}
}

//nolint:paralleltest
func TestParse_NamespaceFallback(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"app namespace", map[string]string{"NUTRIFIT_FITCLIENT_LOG_LEVEL": "debug"}, "debug"},
		{"parent namespace", map[string]string{"NUTRIFIT_LOG_LEVEL": "warn"}, "warn"},
		{"most specific wins", map[string]string{
			"NUTRIFIT_LOG_LEVEL":           "warn",
			"NUTRIFIT_FITCLIENT_LOG_LEVEL": "error",
		}, "error"},
		{"bare name is ignored", map[string]string{"LOG_LEVEL": "debug"}, "info"},
		{"empty value is kept", map[string]string{"NUTRIFIT_LOG_LEVEL": ""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var cfg clientConfig
			if err := Parse(context.Background(), &cfg, namespace); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			if cfg.Log.Level != tt.want {
				t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, tt.want)
			}
		})
	}
}

//nolint:paralleltest
func TestParse_FileVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NUTRIFIT_STORE_SECRET_FILE", path)

	var cfg clientConfig
	if err := Parse(context.Background(), &cfg, namespace); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Store.Secret != "s3cr3t" {
		t.Errorf("Secret = %q, want trailing newline trimmed", cfg.Store.Secret)
	}

	t.Setenv("NUTRIFIT_FITCLIENT_STORE_SECRET", "direct")

	if err := Parse(context.Background(), &cfg, namespace); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Store.Secret != "direct" {
		t.Errorf("Secret = %q, want the more specific plain variable", cfg.Store.Secret)
	}

	t.Setenv("NUTRIFIT_FITCLIENT_STORE_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	os.Unsetenv("NUTRIFIT_FITCLIENT_STORE_SECRET") //nolint:errcheck

	if err := Parse(context.Background(), &cfg, namespace); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Parse() with missing file error = %v, want ErrNotExist", err)
	}
}

//nolint:paralleltest
func TestParse_Settings(t *testing.T) {
	t.Setenv("NUTRIFIT_STORE_SECRET", "hunter2")
	t.Setenv("NUTRIFIT_FITCLIENT_IMAGE_WIDTH", "640")

	var cfg clientConfig
	if err := Parse(context.Background(), &cfg, namespace); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	byName := map[string]Setting{}
	for _, s := range cfg.Settings() {
		byName[s.Name] = s
	}

	tests := []Setting{
		{Name: "NUTRIFIT_STORE_SECRET", Value: "[redacted]", Source: SourceEnv},
		{Name: "NUTRIFIT_FITCLIENT_IMAGE_WIDTH", Value: "640", Source: SourceEnv},
		{Name: "NUTRIFIT_FITCLIENT_LOG_LEVEL", Value: "info", Source: SourceDefault},
		{Name: "NUTRIFIT_FITCLIENT_RETRIES", Value: "3", Source: SourceDefault},
	}

	for _, want := range tests {
		if got := byName[want.Name]; got != want {
			t.Errorf("setting %s = %+v, want %+v", want.Name, got, want)
		}
	}

	if len(byName) != 8 {
		t.Errorf("len(Settings()) = %d, want 8", len(byName))
	}
}

//nolint:paralleltest
func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"int", "NUTRIFIT_IMAGE_WIDTH", "wide"},
		{"float", "NUTRIFIT_IMAGE_QUALITY", "high"},
		{"duration", "NUTRIFIT_STORE_BUSY_TIMEOUT", "soon"},
		{"uint overflow", "NUTRIFIT_RETRIES", "300"},
		{"negative uint", "NUTRIFIT_RETRIES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			var cfg clientConfig
			if err := Parse(context.Background(), &cfg, namespace); err == nil {
				t.Errorf("Parse() with %s=%q succeeded", tt.key, tt.value)
			}
		})
	}
}

func TestParse_MissingRequired(t *testing.T) {
	t.Parallel()

	cfg := &struct {
		EnvConfig

		BaseURL string `env:"NUTRIFIT_TEST_REQUIRED_BASE_URL"`
	}{}

	if err := Parse(context.Background(), cfg, ""); !errors.Is(err, ErrVarNotSet) {
		t.Fatalf("Parse() error = %v, want ErrVarNotSet", err)
	}
}

func TestParse_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  any
		want error
	}{
		{"non-pointer config", clientConfig{}, ErrInvalidConfig},
		{"non-struct pointer", new(string), ErrInvalidConfig},
		{"missing EnvConfig embedding", &struct {
			Value string `env:"VALUE"`
		}{}, ErrInvalidConfig},
		{"unsupported type", &struct {
			EnvConfig

			Ports []int `env:"PORTS" default:"1,2"`
		}{}, ErrUnsupportedVarType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := Parse(context.Background(), tt.cfg, ""); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}
