package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// FileEnv names the environment variable holding an optional TOML config file.
const FileEnv = "CONFIG_FILE"

// Load builds the configuration from defaults, the file named by
// CONFIG_FILE when set, and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file layer. Environment variables override file values.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := eachField(root, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
		}
	}
	if err := eachField(root, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// eachField calls fn for every settable leaf field carrying an env tag,
// descending into nested config structs.
func eachField(v reflect.Value, fn func(reflect.StructField, reflect.Value) error) error {
	t := v.Type()
	for i := range t.NumField() {
		field, val := t.Field(i), v.Field(i)
		if !val.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := eachField(val, fn); err != nil {
				return err
			}
			continue
		}
		if field.Tag.Get("env") == "" {
			continue
		}
		if err := fn(field, val); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(field reflect.StructField, val reflect.Value) error {
	def, ok := field.Tag.Lookup("default")
	if !ok {
		return nil
	}
	if err := setField(val, def); err != nil {
		return fmt.Errorf("default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

// applyEnv sets the field from its env variable, falling back to envAlt.
// Unset and empty variables leave the field alone.
func applyEnv(field reflect.StructField, val reflect.Value) error {
	name := field.Tag.Get("env")
	value := os.Getenv(name)
	if value == "" {
		if alt := field.Tag.Get("envAlt"); alt != "" {
			value = os.Getenv(alt)
		}
	}
	if value == "" {
		return nil
	}
	if err := setField(val, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
	}
	return nil
}

var durationType = reflect.TypeFor[time.Duration]()

// setField parses value into the field's type.
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(value)
	case field.CanInt():
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var items []string
		for part := range strings.SplitSeq(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}

// validate checks the validate struct tags. Field errors are reported
// under the env variable name.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}()

func tagErrors(c *Config) []string {
	err := validate.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		if err != nil {
			return []string{err.Error()}
		}
		return nil
	}
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out = append(out, fmt.Sprintf("%s (%v) must satisfy %s", fe.Field(), fe.Value(), rule))
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	errs := tagErrors(c)

	// Postgres settings only matter for the postgres driver.
	if c.Database.Driver == DriverPostgres {
		if c.Database.URL == "" {
			switch c.Database.Mode {
			case ModeDirect:
				if c.Database.InstanceConnectionName == "" {
					errs = append(errs, "DB_INSTANCE_CONNECTION_NAME is required when DB_CONNECTION_MODE is direct")
				}
			case ModeProxy, ModeLocal:
			default:
				errs = append(errs, fmt.Sprintf("DB_CONNECTION_MODE (%q) must be one of: direct, proxy, local", c.Database.Mode))
			}
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and passwords are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, Mode: %q, URL: [MASKED], Password: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.Mode, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Pipeline: {OnTransformError: %q, BatchSize: %d, MaxConcurrentJobs: %d, TemplateDir: %q}, ",
		c.Pipeline.OnTransformError, c.Pipeline.BatchSize, c.Pipeline.MaxConcurrentJobs, c.Pipeline.TemplateDir))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
