package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidConfig is returned when the provided config is not a pointer to a struct
	// that embeds EnvConfig.
	ErrInvalidConfig = errors.New("config must be a pointer to a struct embedding EnvConfig")

	// ErrVarNotSet is returned when a required environment variable is not set and has no default.
	ErrVarNotSet = errors.New("env var not set")

	// ErrUnsupportedVarType is returned when trying to parse an environment variable
	// into an unsupported Go type.
	ErrUnsupportedVarType = errors.New("unsupported env var type")
)

// fileSuffix marks a variable holding the path of a file with the actual value,
// e.g. NUTRIFIT_STORE_SEAL_SECRET_FILE.
const fileSuffix = "_FILE"

const redacted = "[redacted]"

// Source tells where a setting got its value from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
)

// Setting is a resolved configuration value. Values of fields tagged
// `secret:"true"` are redacted.
type Setting struct {
	// Name is the fully qualified variable name that was used, or the
	// most specific candidate for defaults.
	Name   string
	Value  string
	Source Source
}

// EnvConfig is a base type that must be embedded in configuration structs
// to enable environment variable parsing.
type EnvConfig struct {
	namespace string
	settings  []Setting
}

// Namespace returns the namespace the config was parsed with.
func (c *EnvConfig) Namespace() string {
	return c.namespace
}

// Settings returns every resolved value in field order.
func (c *EnvConfig) Settings() []Setting {
	return append([]Setting(nil), c.settings...)
}

//nolint:varnamelen
func getEnvConfig(cfg any) (*EnvConfig, error) {
	v := reflect.ValueOf(cfg)

	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, ErrInvalidConfig
	}

	v = v.Elem()

	for i := range v.NumField() {
		field := v.Type().Field(i)
		if field.Anonymous && field.Type == reflect.TypeOf(EnvConfig{}) {
			//nolint:forcetypeassert
			return v.Field(i).Addr().Interface().(*EnvConfig), nil
		}
	}

	return nil, ErrInvalidConfig
}

// Parse populates cfg from environment variables.
// The struct must embed EnvConfig and use `env` tags to specify variable names.
// Nested structs add their `envPrefix` tag to the names of their fields.
//
// Each name is looked up in the namespace and then in every parent namespace,
// so with namespace "NUTRIFIT_FITCLIENT" the field `env:"LEVEL"` under
// `envPrefix:"LOG_"` reads NUTRIFIT_FITCLIENT_LOG_LEVEL, then NUTRIFIT_LOG_LEVEL.
// A variable with the suffix _FILE names a file holding the value.
//
// Supports string, signed and unsigned integers, float, bool, time.Duration
// and comma separated []string fields.
func Parse(ctx context.Context, cfg any, namespace string) error {
	envConfig, err := getEnvConfig(cfg)
	if err != nil {
		return fmt.Errorf("get env config: %w", err)
	}

	p := parser{candidates: namespaces(namespace)}

	if err := p.parseStruct("", reflect.ValueOf(cfg).Elem()); err != nil {
		return err
	}

	envConfig.namespace = namespace
	envConfig.settings = p.settings

	return nil
}

// namespaces returns the lookup prefixes from the most to the least specific.
func namespaces(namespace string) []string {
	if namespace == "" {
		return []string{""}
	}

	parts := strings.Split(namespace, "_")
	out := make([]string, 0, len(parts))

	for i := len(parts); i > 0; i-- {
		out = append(out, strings.Join(parts[:i], "_")+"_")
	}

	return out
}

type parser struct {
	candidates []string
	settings   []Setting
}

func (p *parser) parseStruct(prefix string, v reflect.Value) error {
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)

		if field.Type == reflect.TypeOf(EnvConfig{}) {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			if err := p.parseStruct(prefix+field.Tag.Get("envPrefix"), v.Field(i)); err != nil {
				return err
			}

			continue
		}

		if err := p.parseField(prefix, field, v.Field(i)); err != nil {
			return fmt.Errorf("parse field: %w", err)
		}
	}

	return nil
}

func (p *parser) parseField(prefix string, field reflect.StructField, value reflect.Value) error {
	envTag := field.Tag.Get("env")
	if envTag == "" {
		return nil
	}

	setting, err := p.lookup(prefix + envTag)
	if err != nil {
		return err
	}

	if setting.Source == "" {
		defaultValue, ok := field.Tag.Lookup("default")
		if !ok {
			return fmt.Errorf("%w: %s", ErrVarNotSet, setting.Name)
		}

		setting.Value, setting.Source = defaultValue, SourceDefault
	}

	if err := setValue(value, setting.Value); err != nil {
		return fmt.Errorf("%s: %w", setting.Name, err)
	}

	if field.Tag.Get("secret") == "true" && setting.Value != "" {
		setting.Value = redacted
	}

	p.settings = append(p.settings, setting)

	return nil
}

// lookup finds name in the candidate namespaces. A plain variable wins over a
// _FILE variable of the same namespace. The returned Setting has no Source if
// nothing was found.
func (p *parser) lookup(name string) (Setting, error) {
	for _, ns := range p.candidates {
		envName := ns + name

		if value, ok := os.LookupEnv(envName); ok {
			return Setting{Name: envName, Value: value, Source: SourceEnv}, nil
		}

		if path, ok := os.LookupEnv(envName + fileSuffix); ok {
			content, err := os.ReadFile(path)
			if err != nil {
				return Setting{}, fmt.Errorf("read %s: %w", envName+fileSuffix, err)
			}

			return Setting{Name: envName, Value: strings.TrimRight(string(content), "\r\n"), Source: SourceFile}, nil
		}
	}

	return Setting{Name: p.candidates[0] + name}, nil
}

//nolint:gochecknoglobals
var durationType = reflect.TypeOf(time.Duration(0))

func splitList(value string) []string {
	out := []string{}

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

//nolint:cyclop
func setValue(v reflect.Value, raw string) error {
	if v.Type() == durationType {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		v.SetInt(int64(duration))

		return nil
	}

	//nolint:exhaustive
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}

		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer: %w", err)
		}

		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}

		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool: %w", err)
		}

		v.SetBool(b)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %v", ErrUnsupportedVarType, v.Type())
		}

		v.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedVarType, v.Type())
	}

	return nil
}
