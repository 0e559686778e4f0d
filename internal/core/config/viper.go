package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/qengine/internal/loader"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_documents", d.Server.MaxDocuments)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("refdata.cache_size", d.RefData.CacheSize)
	v.SetDefault("refdata.default_timeout", d.RefData.DefaultTimeout.String())
	v.SetDefault("limits.max_path_depth", d.Limits.MaxPathDepth)
	v.SetDefault("limits.max_tree_depth", d.Limits.MaxTreeDepth)
	v.SetDefault("limits.max_collection_values", d.Limits.MaxCollectionValues)

	// Bind environment variables with QE_ prefix
	v.SetEnvPrefix("QE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials must come from the environment, never the config file.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxDocuments:   v.GetInt("server.max_documents"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		RefData: RefDataConfig{
			CacheSize:      v.GetInt("refdata.cache_size"),
			DefaultTimeout: v.GetDuration("refdata.default_timeout"),
		},
	}
	cfg.Limits.MaxPathDepth = v.GetInt("limits.max_path_depth")
	cfg.Limits.MaxTreeDepth = v.GetInt("limits.max_tree_depth")
	cfg.Limits.MaxCollectionValues = v.GetInt("limits.max_collection_values")

	var conns []loader.Connection
	if err := v.UnmarshalKey("connections", &conns); err != nil {
		return nil, fmt.Errorf("invalid connections: %w", err)
	}
	if err := applyConnectionEnv(conns); err != nil {
		return nil, err
	}
	cfg.Connections = conns

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive sizes and timeouts, and the connection list.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxDocuments <= 0 {
		return fmt.Errorf("max_documents must be positive, got %d", cfg.Server.MaxDocuments)
	}
	if cfg.RefData.CacheSize < 0 {
		return fmt.Errorf("refdata.cache_size must not be negative, got %d", cfg.RefData.CacheSize)
	}
	if cfg.RefData.DefaultTimeout < 0 {
		return fmt.Errorf("refdata.default_timeout must not be negative, got %v", cfg.RefData.DefaultTimeout)
	}
	if cfg.Limits.MaxPathDepth <= 0 || cfg.Limits.MaxTreeDepth <= 0 || cfg.Limits.MaxCollectionValues <= 0 {
		return fmt.Errorf("limits must be positive, got %+v", cfg.Limits)
	}

	seen := make(map[string]bool, len(cfg.Connections))
	for _, c := range cfg.Connections {
		if c.Name == "" {
			return fmt.Errorf("connection name must not be empty")
		}
		kind := strings.ToLower(c.Kind)
		if kind == "" {
			kind = loader.KindSQL
		}
		if kind != loader.KindSQL && kind != loader.KindPgx {
			return fmt.Errorf("connection %s: unknown kind %q (expected %s or %s)", c.Name, c.Kind, loader.KindSQL, loader.KindPgx)
		}
		if seen[c.Name+"@"+kind] {
			return fmt.Errorf("duplicate connection %s@%s", c.Name, kind)
		}
		seen[c.Name+"@"+kind] = true
		if c.URL == "" {
			return fmt.Errorf("connection %s has no url (set %s)", c.Name, ConnectionURLEnv(c.Name))
		}
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only credentials (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if os.Getenv("QE_DATABASE_URL") == "" && hasPassword(v.GetString("database.url")) {
		return fmt.Errorf("database passwords not allowed in config files (use QE_DATABASE_URL environment variable)")
	}
	return nil
}
