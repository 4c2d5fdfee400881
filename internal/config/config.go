// Package config loads process settings from flags, the environment and an
// optional .env file. Flags override the environment, which overrides the
// file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmcleod/steamrelay/account"
)

// Setting keys. The matching environment variables are the upper-cased keys.
const (
	KeyPort             = "port"
	KeyDataDir          = "data_dir"
	KeyAccountsFile     = "accounts_file"
	KeyEnvFile          = "env_file"
	KeyLoginConcurrency = "login_concurrency"
	KeySimulate         = "simulate"
)

const (
	DefaultPort    = 3000
	DefaultDataDir = "./data"
	DefaultEnvFile = ".env"
)

var (
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidConcurrency = errors.New("login concurrency must not be negative")
)

// flagKeys maps command-line flag names to setting keys.
var flagKeys = map[string]string{
	"port":              KeyPort,
	"data-dir":          KeyDataDir,
	"accounts-file":     KeyAccountsFile,
	"env-file":          KeyEnvFile,
	"login-concurrency": KeyLoginConcurrency,
	"simulate":          KeySimulate,
}

// Config is the resolved server configuration.
type Config struct {
	Port             int
	DataDir          string
	AccountsFile     string
	EnvFile          string
	LoginConcurrency int
	Simulate         bool

	v *viper.Viper
}

// New returns a viper instance with defaults and environment lookup.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyDataDir, DefaultDataDir)
	v.SetDefault(KeyEnvFile, DefaultEnvFile)
	v.SetDefault(KeyLoginConcurrency, 0)
	v.SetDefault(KeySimulate, false)
	v.AutomaticEnv()
	return v
}

// BindFlags binds the flags in fs that correspond to settings. Flags absent
// from fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the .env file, if any, and resolves the configuration. A
// missing file is only an error when it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	envFile := v.GetString(KeyEnvFile)
	if envFile != "" {
		if err := readEnvFile(v, envFile); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:             v.GetInt(KeyPort),
		DataDir:          v.GetString(KeyDataDir),
		AccountsFile:     v.GetString(KeyAccountsFile),
		EnvFile:          envFile,
		LoginConcurrency: v.GetInt(KeyLoginConcurrency),
		Simulate:         v.GetBool(KeySimulate),
		v:                v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultEnvFile {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.LoginConcurrency < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.LoginConcurrency)
	}
	return nil
}

// EventsPath returns the bbolt event log path, or "" when events are kept
// in memory.
func (c *Config) EventsPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "events.db")
}

// CredentialSource returns the accounts file source when one is configured,
// otherwise the ACCOUNT_<n>_* settings from the environment and .env file.
func (c *Config) CredentialSource() account.Source {
	if c.AccountsFile != "" {
		return account.NewFileSource(c.AccountsFile)
	}
	return account.NewEnvSource(c.v)
}
