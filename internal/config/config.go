// Package config loads the gateway configuration from a JSON file, merging
// user values over built-in defaults, and supports hot reload when the file
// changes on disk.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/llmux/llmux/internal/routing"
)

const (
	// DefaultPort is used when server.port is absent.
	DefaultPort = 8743
	// DefaultHostname is used when server.hostname is absent.
	DefaultHostname = "localhost"

	configDirName  = ".llmux"
	configFileName = "config.json"
)

// Config is the top-level configuration tree.
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Routing RoutingConfig `json:"routing" mapstructure:"routing"`
	Amp     AmpConfig     `json:"amp" mapstructure:"amp"`

	// LoggingToFile switches log output to rotating files under ./logs.
	LoggingToFile bool `json:"loggingToFile" mapstructure:"loggingToFile"`
	// RequestLog captures upstream request and response payloads to disk.
	RequestLog bool `json:"requestLog" mapstructure:"requestLog"`
	// Debug enables debug-level logging.
	Debug bool `json:"debug" mapstructure:"debug"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Port     int    `json:"port" mapstructure:"port"`
	Hostname string `json:"hostname" mapstructure:"hostname"`
	// Cors is either a bool or a list of allowed origins.
	Cors any `json:"cors" mapstructure:"cors"`
	// RequestTimeoutSeconds bounds a single upstream attempt. Zero means
	// no per-attempt timeout.
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds" mapstructure:"requestTimeoutSeconds"`
}

// RoutingConfig holds model mapping and fallback behavior.
type RoutingConfig struct {
	ModelMapping  map[string]routing.Mapping `json:"modelMapping" mapstructure:"modelMapping"`
	FallbackOrder []string                   `json:"fallbackOrder" mapstructure:"fallbackOrder"`
	RotateOn429   bool                       `json:"rotateOn429" mapstructure:"rotateOn429"`
	ErrorMarkers  ErrorMarkers               `json:"errorMarkers" mapstructure:"errorMarkers"`
}

// ErrorMarkers are the upstream error-text substrings that trigger special
// retry handling. Kept in configuration so new upstream phrasings do not
// need a new build.
type ErrorMarkers struct {
	ProjectNotFound    []string `json:"projectNotFound" mapstructure:"projectNotFound"`
	CorruptedSignature []string `json:"corruptedSignature" mapstructure:"corruptedSignature"`
}

// AmpConfig configures the upstream passthrough proxy used when no local
// provider can serve a request.
type AmpConfig struct {
	Enabled                       bool              `json:"enabled" mapstructure:"enabled"`
	UpstreamURL                   string            `json:"upstreamUrl" mapstructure:"upstreamUrl"`
	UpstreamAPIKey                string            `json:"upstreamApiKey" mapstructure:"upstreamApiKey"`
	RestrictManagementToLocalhost bool              `json:"restrictManagementToLocalhost" mapstructure:"restrictManagementToLocalhost"`
	ModelMappings                 map[string]string `json:"modelMappings" mapstructure:"modelMappings"`
}

// CorsOrigins interprets the polymorphic cors value. The bool form means
// allow-all (true) or disabled (false/absent).
func (s ServerConfig) CorsOrigins() (allowAll bool, origins []string) {
	switch v := s.Cors.(type) {
	case bool:
		return v, nil
	case []any:
		for _, o := range v {
			if str, ok := o.(string); ok {
				origins = append(origins, str)
			}
		}
		return false, origins
	case []string:
		return false, v
	}
	return false, nil
}

// DefaultPath returns $HOME/.llmux/config.json, honoring USERPROFILE on
// Windows.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.Getenv("USERPROFILE")
	}
	return filepath.Join(home, configDirName, configFileName)
}

// SignatureDBPath returns the default embedded signature database location
// next to the config file.
func SignatureDBPath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "signatures.db")
}

// PayloadLogDir returns the directory for captured request payloads.
func PayloadLogDir() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "request-logs")
}

// Load reads the configuration file at path. A missing file yields the
// built-in defaults rather than an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	normalize(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.hostname", DefaultHostname)
	v.SetDefault("routing.rotateOn429", true)
	v.SetDefault("routing.errorMarkers.projectNotFound", []string{
		"project not found",
		"PROJECT_ID_NOT_FOUND",
	})
	v.SetDefault("routing.errorMarkers.corruptedSignature", []string{
		"corrupted thought signature",
		"Invalid thought signature",
		"thought_signature",
	})
}

func normalize(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Hostname == "" {
		cfg.Server.Hostname = DefaultHostname
	}
	if cfg.Amp.UpstreamURL != "" {
		cfg.Amp.UpstreamURL = strings.TrimRight(cfg.Amp.UpstreamURL, "/")
	}
}
