package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "packetmill.yaml"

// Load reads configuration from the default YAML path and the environment.
func Load() (*Config, error) { return LoadFrom(DefaultConfigFile) }

// LoadFrom builds a Config from three layers, each overriding the previous:
// compiled defaults, the YAML file at yamlPath (optional), environment
// variables.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML unmarshals the file over cfg. A missing file just means the
// deployment configures everything through the environment.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PACKETMILL_PORT")
	setString(&cfg.Server.CORSOrigin, "PACKETMILL_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PACKETMILL_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PACKETMILL_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PACKETMILL_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PACKETMILL_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PACKETMILL_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Agent.Transport, "PACKETMILL_AGENT_TRANSPORT")
	setString(&cfg.Agent.BaseURL, "PACKETMILL_AGENT_URL")
	setString(&cfg.Agent.APIKey, "PACKETMILL_AGENT_API_KEY")
	setString(&cfg.Agent.WorkDirRoot, "PACKETMILL_AGENT_WORKDIR")
	setDuration(&cfg.Agent.RunTimeout, "PACKETMILL_AGENT_RUN_TIMEOUT")
	setString(&cfg.Session.BaseURL, "PACKETMILL_SESSION_URL")
	setDuration(&cfg.Session.CacheTTL, "PACKETMILL_SESSION_CACHE_TTL")
	setDuration(&cfg.Session.Timeout, "PACKETMILL_SESSION_TIMEOUT")
	setInt(&cfg.Executor.DefaultConcurrency, "PACKETMILL_EXEC_DEFAULT_CONCURRENCY")
	setInt(&cfg.Executor.MaxConcurrency, "PACKETMILL_EXEC_MAX_CONCURRENCY")
	setInt64(&cfg.Cache.L1MaxSizeMB, "PACKETMILL_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "PACKETMILL_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "PACKETMILL_CACHE_L2_TTL")
	setString(&cfg.Logging.Level, "PACKETMILL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PACKETMILL_LOG_SERVICE")
	setInt(&cfg.Logging.Buffer, "PACKETMILL_LOG_BUFFER")
	setBool(&cfg.Auth.Enabled, "PACKETMILL_AUTH_ENABLED")
	setBool(&cfg.MCP.Enabled, "PACKETMILL_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "PACKETMILL_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "PACKETMILL_MCP_API_KEY")
	setBool(&cfg.Telemetry.Enabled, "PACKETMILL_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "PACKETMILL_OTEL_ENDPOINT")
}

// validate rejects configurations the daemon cannot start with.
func validate(cfg *Config) error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{cfg.Server.Port != "", "server.port is required"},
		{cfg.Postgres.DSN != "", "postgres.dsn is required"},
		{cfg.NATS.URL != "", "nats.url is required"},
		{cfg.Postgres.MaxConns >= 1, "postgres.max_conns must be >= 1"},
		{cfg.Agent.Transport == "http" || cfg.Agent.Transport == "nats",
			fmt.Sprintf("agent.transport must be http or nats, got %q", cfg.Agent.Transport)},
		{cfg.Agent.RunTimeout > 0, "agent.run_timeout must be positive"},
		{cfg.Executor.DefaultConcurrency >= 1, "executor.default_concurrency must be >= 1"},
		{cfg.Executor.MaxConcurrency >= cfg.Executor.DefaultConcurrency,
			"executor.max_concurrency must be >= executor.default_concurrency"},
	}
	for _, c := range checks {
		if !c.ok {
			return errors.New(c.msg)
		}
	}
	return nil
}

// overlay writes the parsed value of an environment variable over *dst,
// leaving it untouched when the variable is unset, empty or unparseable.
func overlay[T any](dst *T, key string, parse func(string) (T, error)) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if parsed, err := parse(v); err == nil {
		*dst = parsed
	}
}

func setString(dst *string, key string) {
	overlay(dst, key, func(s string) (string, error) { return s, nil })
}

func setInt(dst *int, key string) { overlay(dst, key, strconv.Atoi) }

func setInt32(dst *int32, key string) {
	overlay(dst, key, func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	})
}

func setInt64(dst *int64, key string) {
	overlay(dst, key, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func setBool(dst *bool, key string) { overlay(dst, key, strconv.ParseBool) }

func setDuration(dst *time.Duration, key string) { overlay(dst, key, time.ParseDuration) }
