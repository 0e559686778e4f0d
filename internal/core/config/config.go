// Package config provides configuration management for qengine services.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/types"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Connections []loader.Connection
	RefData     RefDataConfig
	Limits      types.Limits
}

// ServerConfig holds configuration for the gRPC evaluator service.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxDocuments   int
}

// DatabaseConfig locates the definitions store.
type DatabaseConfig struct {
	URL string
}

// RefDataConfig sizes the reference-list cache.
type RefDataConfig struct {
	CacheSize      int
	DefaultTimeout time.Duration
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			RequestTimeout: 30 * time.Second,
			MaxDocuments:   1000,
		},
		Database: DatabaseConfig{URL: "sqlite://./data/qengine.db"},
		RefData: RefDataConfig{
			CacheSize:      256,
			DefaultTimeout: 10 * time.Minute,
		},
		Limits: types.DefaultLimits(),
	}
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConnectionURLEnv names the environment variable that supplies the URL of
// connection name, e.g. QE_CONNECTIONS_REPORTING_URL.
func ConnectionURLEnv(name string) string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
	return "QE_CONNECTIONS_" + key + "_URL"
}

// hasPassword reports whether a connection URL embeds a password.
func hasPassword(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}

// applyConnectionEnv resolves connection URLs: a file URL may not carry a
// password, and the environment variable wins when set.
func applyConnectionEnv(conns []loader.Connection) error {
	for i := range conns {
		c := &conns[i]
		env := ConnectionURLEnv(c.Name)
		if hasPassword(c.URL) {
			return fmt.Errorf("connection %s: passwords not allowed in config files (use %s environment variable)", c.Name, env)
		}
		if v := os.Getenv(env); v != "" {
			c.URL = v
		}
	}
	return nil
}
