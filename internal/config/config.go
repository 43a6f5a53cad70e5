// Package config provides functionality for loading configuration
// parameters from a config file using the Viper library.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Terminal holds the readline/history settings for the interactive shell.
type Terminal struct {
	HistoryFile     string `mapstructure:"history_file"`
	HistoryLimit    int    `mapstructure:"history_limit"`
	InterruptPrompt string `mapstructure:"interrupt_prompt"`
	EOFPrompt       string `mapstructure:"exit_message"`
	CheckInterval   int    `mapstructure:"check_interval_ms"`
}

// Prompt holds the prompt-painting theme settings, fed to internal/prompt.
type Prompt struct {
	Theme               string `mapstructure:"theme"`
	PathColour          string `mapstructure:"path_colour"`
	PathColourBold      bool   `mapstructure:"path_colour_bold"`
	GitStatusColour     string `mapstructure:"git_status_colour"`
	GitStatusColourBold bool   `mapstructure:"git_status_colour_bold"`
}

// Shell holds top-level shell behavior toggles.
type Shell struct {
	Debug bool `mapstructure:"debug"`
}

// Config holds user-configurable settings for the shell.
type Config struct {
	Terminal Terminal `mapstructure:"terminal"`
	Prompt   Prompt   `mapstructure:"prompt"`
	Shell    Shell    `mapstructure:"shell"`
}

// Load reads configuration from a file named "config" in the current
// directory and under $HOME/.config/gosh using Viper, and unmarshals it
// into a Config instance. If reading or unmarshaling fails an error is
// returned along with a partial Config (which may be zero-valued).
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "gosh"))
	}
	cfg := new(Config)
	if err := viper.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("gosh: boot: failed to load config: %v", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("gosh: boot: failed to unmarshal config: %v", err)
	}
	return cfg, nil
}

// Default returns a Config populated with sensible defaults. This is used
// as a fallback when loading the configuration file fails.
func Default() *Config {
	home := os.Getenv("HOME")
	return &Config{
		Terminal: Terminal{
			HistoryFile:     filepath.Join(home, ".gosh_history"),
			HistoryLimit:    1000,
			InterruptPrompt: "^C",
			EOFPrompt:       "\nexit",
			CheckInterval:   500,
		},
		Prompt: Prompt{
			Theme:          "gosh",
			PathColour:     "blue",
			PathColourBold: true,
		},
		Shell: Shell{
			Debug: os.Getenv("GOSH_DEBUG") == "1",
		},
	}
}
