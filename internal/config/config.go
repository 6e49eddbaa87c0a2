// Package config provides configuration management for snaplabel
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SNAPLABEL_MODEL_PATH.
const EnvPrefix = "SNAPLABEL"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Content ContentConfig `mapstructure:"content"`
	Session SessionConfig `mapstructure:"session"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelConfig locates the classifier artifact
type ModelConfig struct {
	RemoteID       string `mapstructure:"remote_id"` // Google Drive file id or http(s) URL
	Path           string `mapstructure:"path"`
	MetadataPath   string `mapstructure:"metadata_path"`   // sidecar json, used when the model has no embedded metadata
	RuntimeLibrary string `mapstructure:"runtime_library"` // path to libonnxruntime, empty uses the loader default
}

// ContentConfig points at an optional content table overriding the embedded one
type ContentConfig struct {
	Path string `mapstructure:"path"`
}

// SessionConfig configures browser sessions
type SessionConfig struct {
	CookieName  string        `mapstructure:"cookie_name"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// UploadConfig limits image submissions
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// DefaultConfig returns the baked-in configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			RemoteID: "1cFVZwfNNpbp80YAXs_-SRxKhjSQjdBMf",
			Path:     "models/model.onnx",
		},
		Session: SessionConfig{
			CookieName:  "snaplabel_session",
			IdleTimeout: time.Hour,
		},
		Upload: UploadConfig{
			MaxBytes: 10 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from an optional file and the environment.
// An empty path searches for snaplabel.yaml in the working directory and
// /etc/snaplabel, or uses the file named by SNAPLABEL_CONFIG.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("snaplabel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/snaplabel")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is honored for platforms that inject it.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("model.remote_id", cfg.Model.RemoteID)
	v.SetDefault("model.path", cfg.Model.Path)
	v.SetDefault("model.metadata_path", cfg.Model.MetadataPath)
	v.SetDefault("model.runtime_library", cfg.Model.RuntimeLibrary)
	v.SetDefault("content.path", cfg.Content.Path)
	v.SetDefault("session.cookie_name", cfg.Session.CookieName)
	v.SetDefault("session.idle_timeout", cfg.Session.IdleTimeout)
	v.SetDefault("upload.max_bytes", cfg.Upload.MaxBytes)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}
