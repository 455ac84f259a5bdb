package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	LLM           LLMConfig
	Database      DatabaseConfig
	Audit         AuditConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// DatabaseConfig holds the placeholder values offered in the connect form.
// Nothing connects until the user submits it.
type DatabaseConfig struct {
	Dialect                string
	Host                   string
	Port                   int
	User                   string
	Password               string
	Name                   string
	TrustServerCertificate bool
	SchemaSampleRows       int
}

type AuditConfig struct {
	Enabled bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DBCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DBCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	err := errors.Join(
		applyString(lookup, "DBCHAT_SERVICE_NAME", &cfg.Service.Name),
		applyString(lookup, "DBCHAT_HTTP_ADDR", &cfg.HTTP.Address),
		applyDuration(lookup, "DBCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, "DBCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, "DBCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),

		applyString(lookup, "DBCHAT_LLM_PROVIDER", &cfg.LLM.Provider),
		applyString(lookup, "DBCHAT_LLM_BASE_URL", &cfg.LLM.BaseURL),
		applyString(lookup, "DBCHAT_LLM_API_KEY", &cfg.LLM.APIKey),
		applyString(lookup, "DBCHAT_LLM_MODEL", &cfg.LLM.Model),
		applyFloat(lookup, "DBCHAT_LLM_TEMPERATURE", &cfg.LLM.Temperature),
		applyDuration(lookup, "DBCHAT_LLM_TIMEOUT", &cfg.LLM.Timeout),

		applyString(lookup, "DBCHAT_DB_DIALECT", &cfg.Database.Dialect),
		applyString(lookup, "DBCHAT_DB_HOST", &cfg.Database.Host),
		applyInt(lookup, "DBCHAT_DB_PORT", &cfg.Database.Port),
		applyString(lookup, "DBCHAT_DB_USER", &cfg.Database.User),
		applyString(lookup, "DBCHAT_DB_PASSWORD", &cfg.Database.Password),
		applyString(lookup, "DBCHAT_DB_NAME", &cfg.Database.Name),
		applyBool(lookup, "DBCHAT_DB_TRUST_SERVER_CERTIFICATE", &cfg.Database.TrustServerCertificate),
		applyInt(lookup, "DBCHAT_SCHEMA_SAMPLE_ROWS", &cfg.Database.SchemaSampleRows),

		applyBool(lookup, "DBCHAT_AUDIT_ENABLED", &cfg.Audit.Enabled),
		applyString(lookup, "DBCHAT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint),
		applyString(lookup, "DBCHAT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region),
		applyString(lookup, "DBCHAT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket),
		applyString(lookup, "DBCHAT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID),
		applyString(lookup, "DBCHAT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey),
		applyBool(lookup, "DBCHAT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL),
		applyString(lookup, "DBCHAT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix),
		applyBool(lookup, "DBCHAT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket),

		applyBool(lookup, "DBCHAT_LOG_JSON", &cfg.Observability.LogJSON),
		applyLogLevel(lookup, "DBCHAT_LOG_LEVEL", &cfg.Observability.LogLevel),
	)
	if err != nil {
		return Config{}, err
	}

	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case "openai":
	case "gemini":
		if _, ok := lookup("DBCHAT_LLM_BASE_URL"); !ok {
			cfg.LLM.BaseURL = ""
		}
		if _, ok := lookup("DBCHAT_LLM_MODEL"); !ok {
			cfg.LLM.Model = "gemini-2.0-flash"
		}
	default:
		return Config{}, fmt.Errorf("invalid DBCHAT_LLM_PROVIDER: %q", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(lookup, cfg.LLM.Provider)
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Database.SchemaSampleRows < 0 {
		return Config{}, fmt.Errorf("invalid DBCHAT_SCHEMA_SAMPLE_ROWS: must be >= 0")
	}
	return cfg, nil
}

// providerKey falls back to the vendor's conventional variable, so an
// existing OPENAI_API_KEY in .env works unchanged.
func providerKey(lookup LookupFunc, provider string) string {
	key := "OPENAI_API_KEY"
	if provider == "gemini" {
		key = "GEMINI_API_KEY"
	}
	raw, _ := lookup(key)
	return strings.TrimSpace(raw)
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "dbchat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			Timeout:     15 * time.Second,
		},
		Database: DatabaseConfig{
			Dialect:                "mssql",
			Host:                   `localhost\SQLEXPRESS`,
			User:                   "sa",
			Name:                   "master",
			TrustServerCertificate: true,
			SchemaSampleRows:       3,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "dbchat-audit",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Database.TrustServerCertificate = false
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
