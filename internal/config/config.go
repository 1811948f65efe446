// Package config resolves runtime settings from flags, FARADAY_* environment
// variables, an optional faraday.yaml and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/arthur-debert/faraday/internal/telemetry"
)

// AppDirName is the directory created under the platform data directory
const AppDirName = "FaradayShieldAnalyser"

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "FARADAY"

// Config is the effective runtime configuration
type Config struct {
	DataDir         string           `mapstructure:"data_dir" yaml:"data_dir"`
	ExperimentsFile string           `mapstructure:"experiments_file" yaml:"experiments_file"`
	CredentialsFile string           `mapstructure:"credentials_file" yaml:"credentials_file"`
	Listen          string           `mapstructure:"listen" yaml:"listen"`
	Log             LogConfig        `mapstructure:"log" yaml:"log"`
	Telemetry       telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Stderr bool   `mapstructure:"stderr" yaml:"stderr"`
}

// ExperimentsPath returns the experiments document path, resolved against
// the data directory when relative.
func (c Config) ExperimentsPath() string {
	return c.resolve(c.ExperimentsFile)
}

// CredentialsPath returns the credentials document path, resolved against
// the data directory when relative.
func (c Config) CredentialsPath() string {
	return c.resolve(c.CredentialsFile)
}

func (c Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// New returns a viper instance with defaults, environment binding and
// config file discovery set up. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// log.level -> FARADAY_LOG_LEVEL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default of every known key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("experiments_file", "experiments.json")
	v.SetDefault("credentials_file", "creds.json")
	v.SetDefault("listen", "127.0.0.1:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stderr", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
}

// Load reads the config file if one is found and decodes the effective
// settings. FARADAY_CONFIG names an explicit file; otherwise faraday.yaml
// is looked up in the working directory, $HOME/.faraday and the data
// directory. A missing file is not an error; an unreadable one is.
func Load(v *viper.Viper) (Config, error) {
	if configFile := os.Getenv(EnvPrefix + "_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("faraday")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.faraday")
		v.AddConfigPath(v.GetString("data_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return Config{}, fmt.Errorf("data_dir cannot be empty")
	}
	return cfg, nil
}

// DefaultDataDir returns the platform application data directory for the app
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return dataDir(runtime.GOOS, os.Getenv, home)
}

func dataDir(goos string, getenv func(string) string, home string) string {
	switch goos {
	case "windows":
		if appData := getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppDirName)
		}
		return filepath.Join(home, "AppData", "Roaming", AppDirName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirName)
	default:
		if xdgData := getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, AppDirName)
		}
		return filepath.Join(home, ".local", "share", AppDirName)
	}
}
