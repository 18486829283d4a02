// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/treykane/ansible-ssh/internal/util"
)

// PasswordHelper selects how ansible_password reaches ssh.
type PasswordHelper string

const (
	PasswordHelperSSHPass PasswordHelper = "sshpass"
	PasswordHelperBuiltin PasswordHelper = "builtin"
	PasswordHelperAuto    PasswordHelper = "auto"
)

// ExecMode selects how ssh is started.
type ExecMode string

const (
	// ExecModeReplace swaps the process image for ssh where the OS allows it.
	ExecModeReplace ExecMode = "replace"
	// ExecModeSpawn runs ssh as a child and waits for it.
	ExecModeSpawn ExecMode = "spawn"
)

// EnvPrefix is prepended to upper-cased keys for environment overrides,
// e.g. ANSIBLE_SSH_EXEC_MODE=spawn.
const EnvPrefix = "ANSIBLE_SSH"

// Config holds application-level configuration.
type Config struct {
	Inventory           string         `yaml:"inventory" mapstructure:"inventory"`
	SSHBinary           string         `yaml:"ssh_binary" mapstructure:"ssh_binary"`
	InventoryBinary     string         `yaml:"inventory_binary" mapstructure:"inventory_binary"`
	PasswordHelper      PasswordHelper `yaml:"password_helper" mapstructure:"password_helper"`
	ExecMode            ExecMode       `yaml:"exec_mode" mapstructure:"exec_mode"`
	ExperimentalSSHArgs bool           `yaml:"experimental_ssh_args" mapstructure:"experimental_ssh_args"`
	Banner              bool           `yaml:"banner" mapstructure:"banner"`
	LogLevel            string         `yaml:"log_level" mapstructure:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SSHBinary:       "ssh",
		InventoryBinary: "ansible-inventory",
		PasswordHelper:  PasswordHelperSSHPass,
		ExecMode:        ExecModeReplace,
		Banner:          true,
		LogLevel:        "warn",
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/ansible-ssh.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, util.AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", util.AppName), nil
}

// FilePath returns the full path to the default config.yaml.
func FilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// Load reads the default config.yaml, creating it with defaults when absent.
// A config dir that cannot be written only costs the file: defaults and
// environment overrides still apply.
func Load() (Config, error) {
	path, err := FilePath()
	if err != nil {
		return Config{}, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := SaveTo(path, Default()); err != nil {
			slog.Warn("failed to create default config", "path", path, "error", err)
		}
	}
	return LoadFrom(path)
}

// LoadFrom reads the given config file and applies ANSIBLE_SSH_* environment
// overrides. A file that cannot be opened yields the defaults plus overrides;
// a file that does not parse is an error.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("inventory", def.Inventory)
	v.SetDefault("ssh_binary", def.SSHBinary)
	v.SetDefault("inventory_binary", def.InventoryBinary)
	v.SetDefault("password_helper", string(def.PasswordHelper))
	v.SetDefault("exec_mode", string(def.ExecMode))
	v.SetDefault("experimental_ssh_args", def.ExperimentalSSHArgs)
	v.SetDefault("banner", def.Banner)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	def := Default()
	switch cfg.PasswordHelper {
	case PasswordHelperSSHPass, PasswordHelperBuiltin, PasswordHelperAuto:
	default:
		cfg.PasswordHelper = def.PasswordHelper
	}
	switch cfg.ExecMode {
	case ExecModeReplace, ExecModeSpawn:
	default:
		cfg.ExecMode = def.ExecMode
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Inventory = util.ExpandHome(strings.TrimSpace(cfg.Inventory), home)
	}
	cfg.SSHBinary = util.DefaultString(cfg.SSHBinary, def.SSHBinary)
	cfg.InventoryBinary = util.DefaultString(cfg.InventoryBinary, def.InventoryBinary)
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	default:
		cfg.LogLevel = def.LogLevel
	}
}

// SaveTo writes config to path, creating the parent directory.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
