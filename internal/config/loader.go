package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load builds a Config from the environment, falling back to tag defaults,
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := fill(reflect.ValueOf(cfg).Elem(), os.Getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Reload overlays the given dotenv files onto the process environment and
// loads a fresh Config. Values in the files replace variables that are
// already set, so a running process can pick up a changed connection string
// and hand it to pool.Manager.Recreate. With no files, ".env" is used.
func Reload(files ...string) (*Config, error) {
	if err := godotenv.Overload(files...); err != nil {
		return nil, fmt.Errorf("config reload: %w", err)
	}
	return Load()
}

// Default returns a Config holding only the tag defaults. URL is empty.
func Default() *Config {
	cfg := &Config{}
	_ = fill(reflect.ValueOf(cfg).Elem(), nil)
	return cfg
}

// fill sets each `env`-tagged field from getenv (trying `envAlt` second)
// or else from its `default` tag. A nil getenv applies defaults only and
// skips the `required` check.
func fill(v reflect.Value, getenv func(string) string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			if err := fill(fv, getenv); err != nil {
				return err
			}
			continue
		}

		name := f.Tag.Get("env")
		if name == "" {
			continue
		}

		var value string
		if getenv != nil {
			value = getenv(name)
			if alt := f.Tag.Get("envAlt"); value == "" && alt != "" {
				value = getenv(alt)
			}
			if value == "" && f.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
		}
		if value == "" {
			value = f.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := parseInto(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func parseInto(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(int64(n))
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case field.Kind() == reflect.String:
		field.SetString(value)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	db := c.Database
	check(db.URL != "", "DATABASE_URL is required")
	check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
	check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	check(db.MaxConns >= db.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
	check(db.TeardownTimeout > 0, "DB_TEARDOWN_TIMEOUT must be positive")

	check(c.Import.BatchSize > 0, "IMPORT_BATCH_SIZE must be positive")
	check(c.Export.HighWaterMark > 0, "EXPORT_HIGH_WATER_MARK must be positive")

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		check(false, "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	return errors.Join(errs...)
}

// String renders the config for logs with the database URL masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, TeardownTimeout: %s}, "+
		"Import: {BatchSize: %d, EmptyAsNull: %v}, Export: {HighWaterMark: %d}, Logging: {Level: %q, Format: %q}}",
		c.Database.MaxConns, c.Database.MinConns, c.Database.TeardownTimeout,
		c.Import.BatchSize, c.Import.EmptyAsNull,
		c.Export.HighWaterMark,
		c.Logging.Level, c.Logging.Format)
}
