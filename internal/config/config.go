package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Whisper WhisperConfig `mapstructure:"whisper"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type PathsConfig struct {
	Uploads string `mapstructure:"uploads"` // temp storage for uploaded files
	Output  string `mapstructure:"output"`  // rendered transcripts
	Watch   string `mapstructure:"watch"`   // default watched directory
}

type WhisperConfig struct {
	// Provider: "local" (faster-whisper helper script) or "openai" (API)
	Provider string `mapstructure:"provider"`
	// Model: for local = "tiny".."large-v3", for openai = "whisper-1"
	Model string `mapstructure:"model"`
	// Script: path to the faster-whisper helper, local provider only
	Script string `mapstructure:"script"`
	// APIKey: required if provider is "openai"
	APIKey string `mapstructure:"api_key"`
	// Language: source language hint ("" or "auto" for auto-detect)
	Language string `mapstructure:"language"`
	// Formats: default output formats for new jobs
	Formats []string `mapstructure:"formats"`
}

type WatcherConfig struct {
	SettleMs      int  `mapstructure:"settle_ms"`      // stability settle window
	MoveCompleted bool `mapstructure:"move_completed"` // move handled files into completed/
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"` // Apprise API URL
	Key     string `mapstructure:"key"`      // Apprise config key
	Tag     string `mapstructure:"tag"`      // Tag to filter services
}

// SettleInterval returns the watcher settle window with a sane default.
func (w WatcherConfig) SettleInterval() time.Duration {
	if w.SettleMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(w.SettleMs) * time.Millisecond
}

// Load reads the config file and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("AUDIOSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A missing file is fine; defaults and env cover everything.
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; this only fires on a schema bug.
		panic(err)
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("paths.uploads", "./uploads")
	v.SetDefault("paths.output", "./output")
	v.SetDefault("paths.watch", "./watch")
	v.SetDefault("whisper.provider", "local")
	v.SetDefault("whisper.model", "large")
	v.SetDefault("whisper.script", "scripts/transcribe.py")
	v.SetDefault("whisper.language", "")
	v.SetDefault("whisper.formats", []string{"txt", "srt"})
	v.SetDefault("watcher.settle_ms", 2000)
	v.SetDefault("watcher.move_completed", true)
	v.SetDefault("notify.enabled", false)
}
