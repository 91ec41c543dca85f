package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/logger"
)

type ExecutorConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxOutput    int           `mapstructure:"max_output"`
	AutoImport   bool          `mapstructure:"auto_import"`
	Unrestricted bool          `mapstructure:"unrestricted"`
	Subprocess   bool          `mapstructure:"subprocess"`
	ProfilesDir  string        `mapstructure:"profiles_dir"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MaxInFlight int `mapstructure:"max_in_flight"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type Config struct {
	Executor ExecutorConfig `mapstructure:"executor"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      logger.Config  `mapstructure:"log"`
}

// Load reads runbox.yaml from the working directory or $HOME/.runbox. When
// path is set, only that file is read and it must exist. A .env file in the
// working directory is loaded first, and RUNBOX_* variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("runbox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("runbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.runbox")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home := os.Getenv("HOME")

	v.SetDefault("executor.timeout", "30s")
	v.SetDefault("executor.max_output", 0)
	v.SetDefault("executor.auto_import", true)
	v.SetDefault("executor.unrestricted", false)
	v.SetDefault("executor.subprocess", true)
	v.SetDefault("executor.profiles_dir", filepath.Join(home, ".runbox", "profiles"))
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_in_flight", 8)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", filepath.Join(home, ".runbox", "runbox.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatConsole)
}

func (c *Config) validate() error {
	if c.Executor.Timeout < 0 {
		return fmt.Errorf("executor.timeout must not be negative (got %s)", c.Executor.Timeout)
	}
	if c.Executor.MaxOutput < 0 {
		return fmt.Errorf("executor.max_output must not be negative (got %d)", c.Executor.MaxOutput)
	}
	if c.Server.MaxInFlight < 0 {
		return fmt.Errorf("server.max_in_flight must not be negative (got %d)", c.Server.MaxInFlight)
	}
	return nil
}

// Policy converts the executor section into an executor.Policy.
func (c *Config) Policy() executor.Policy {
	return executor.Policy{
		Timeout:      c.Executor.Timeout,
		MaxOutput:    c.Executor.MaxOutput,
		AutoImport:   c.Executor.AutoImport,
		Unrestricted: c.Executor.Unrestricted,
	}
}

// PolicyFor returns the configured policy with the named profile applied.
// An empty name returns the configured policy unchanged.
func (c *Config) PolicyFor(profile string) (executor.Policy, error) {
	base := c.Policy()
	if profile == "" {
		return base, nil
	}
	p, err := executor.LoadNamedProfile(c.Executor.ProfilesDir, profile)
	if err != nil {
		return base, fmt.Errorf("loading profile: %w", err)
	}
	return p.Apply(base), nil
}
