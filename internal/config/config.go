package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Defaults applied when neither the config file, the environment nor a flag sets a key.
const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = "3000"
	DefaultDatabaseURL = "sqlite://coverage.db"
	DefaultJWTIssuer   = "coverage-api"
	DefaultTTLMinutes  = 30
	MaxTTLMinutes      = 24 * 60
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
	DefaultHasher      = "bcrypt"
	DefaultBcryptCost  = 10
)

// envKeys maps recognised environment variables to config keys.
var envKeys = map[string]string{
	"HOST":                 "host",
	"PORT":                 "port",
	"DATABASE_URL":         "database_url",
	"JWT_SECRET":           "jwt_secret",
	"JWT_ISSUER":           "jwt_issuer",
	"JWT_TTL_MINUTES":      "jwt_ttl_minutes",
	"CORS_ALLOWED_ORIGINS": "cors_allowed_origins",
	"LOG_LEVEL":            "log_level",
	"LOG_FORMAT":           "log_format",
	"PASSWORD_HASHER":      "password_hasher",
	"BCRYPT_COST":          "bcrypt_cost",
}

// Config holds runtime configuration. It is read once at startup.
type Config struct {
	Host           string
	Port           string
	DatabaseURL    string
	JWTSecret      string
	JWTIssuer      string
	JWTTTL         time.Duration
	CORSOrigins    []string
	LogLevel       string
	LogFormat      string
	PasswordHasher string
	BcryptCost     int
}

// BindFlags registers the command-line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("host", DefaultHost, "interface to listen on")
	fs.String("port", DefaultPort, "port to listen on")
	fs.String("database-url", DefaultDatabaseURL, "postgres://, sqlite:// or memory:// store URL")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", DefaultLogFormat, "log format (console or json)")
}

// Load layers the optional YAML file, the environment and explicitly set
// flags (in that order of precedence, lowest first) and validates the result.
// flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_MISSING").With("path", configFile).Wrap(err)
		}
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_INVALID").With("path", configFile).Wrap(err)
		}
	}

	envProvider := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return envKeys[name], value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (Config, error) {
	cfg := Config{
		Host:           fallback(k.String("host"), DefaultHost),
		Port:           fallback(k.String("port"), DefaultPort),
		DatabaseURL:    fallback(k.String("database_url"), DefaultDatabaseURL),
		JWTSecret:      strings.TrimSpace(k.String("jwt_secret")),
		JWTIssuer:      fallback(k.String("jwt_issuer"), DefaultJWTIssuer),
		CORSOrigins:    origins(k),
		LogLevel:       strings.ToLower(fallback(k.String("log_level"), DefaultLogLevel)),
		LogFormat:      strings.ToLower(fallback(k.String("log_format"), DefaultLogFormat)),
		PasswordHasher: strings.ToLower(fallback(k.String("password_hasher"), DefaultHasher)),
	}

	minutes, err := intValue(k, "jwt_ttl_minutes", DefaultTTLMinutes)
	if err != nil {
		return Config{}, err
	}
	if minutes < 1 || minutes > MaxTTLMinutes {
		return Config{}, oops.Code("CONFIG_INVALID").
			With("jwt_ttl_minutes", minutes).
			Errorf("JWT_TTL_MINUTES must be between 1 and %d", MaxTTLMinutes)
	}
	cfg.JWTTTL = time.Duration(minutes) * time.Minute

	if cfg.BcryptCost, err = intValue(k, "bcrypt_cost", DefaultBcryptCost); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, oops.Code("CONFIG_INVALID").Errorf("JWT_SECRET is required")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").With("port", cfg.Port).Errorf("PORT must be numeric")
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return Config{}, oops.Code("CONFIG_INVALID").With("log_format", cfg.LogFormat).Errorf("LOG_FORMAT must be console or json")
	}
	switch cfg.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return Config{}, oops.Code("CONFIG_INVALID").
			With("password_hasher", cfg.PasswordHasher).
			Errorf("PASSWORD_HASHER must be bcrypt or argon2id")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func intValue(k *koanf.Koanf, key string, def int) (int, error) {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").With(key, raw).Wrapf(err, "%s must be an integer", key)
	}
	return n, nil
}

func origins(k *koanf.Koanf) []string {
	if list, ok := k.Get("cors_allowed_origins").([]any); ok {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) > 0 {
			return out
		}
		return []string{"*"}
	}
	return parseCSV(fallback(k.String("cors_allowed_origins"), "*"))
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
