package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendPortaudio = "portaudio"
	BackendFile      = "file"
)

type Config struct {
	LogLevel     string
	LogFile      string
	SettingsFile string
	Backend      string
	BufferDepth  int

	// File backend devices, name to path.
	FileInputs  map[string]string
	FileOutputs map[string]string
	FileLoop    bool
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("settingsfile", "settings.json")
	v.SetDefault("backend", BackendPortaudio)
	v.SetDefault("bufferdepth", 10)
	v.SetDefault("file.inputs", map[string]string{})
	v.SetDefault("file.outputs", map[string]string{})
	v.SetDefault("file.loop", false)
}

// LoadConfig reads an optional .env file, then the optional config file at
// configFilePath, then JOYNER_* environment variables, on top of defaults.
func LoadConfig(configFilePath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setViperDefaults(v)
	v.SetEnvPrefix("joyner")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFilePath != "" {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", configFilePath, err)
			}
			slog.Info("no config file found", "configFilePath", configFilePath)
		}
	}

	cfg := &Config{
		LogLevel:     v.GetString("loglevel"),
		LogFile:      v.GetString("logfile"),
		SettingsFile: v.GetString("settingsfile"),
		Backend:      strings.ToLower(v.GetString("backend")),
		BufferDepth:  v.GetInt("bufferdepth"),
		FileInputs:   v.GetStringMapString("file.inputs"),
		FileOutputs:  v.GetStringMapString("file.outputs"),
		FileLoop:     v.GetBool("file.loop"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPortaudio, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.BufferDepth < 1 {
		return fmt.Errorf("bufferdepth must be positive, got %d", c.BufferDepth)
	}
	if c.SettingsFile == "" {
		return errors.New("settingsfile must not be empty")
	}
	return nil
}
