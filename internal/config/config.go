// Package config loads node configuration from a YAML file, W24_* environment
// variables and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"w24fs/internal/types"
)

type Config struct {
	Node struct {
		Role    string `mapstructure:"role"`
		Port    int    `mapstructure:"port"`
		Home    string `mapstructure:"home"`
		WorkDir string `mapstructure:"workdir"`
	} `mapstructure:"node"`

	Mirrors struct {
		Mirror1     string        `mapstructure:"mirror1"`
		Mirror2     string        `mapstructure:"mirror2"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
	} `mapstructure:"mirrors"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("node.role", string(types.RolePrimary))
	v.SetDefault("node.port", 8888)
	v.SetDefault("node.home", home)
	v.SetDefault("node.workdir", "")
	v.SetDefault("mirrors.mirror1", "127.0.0.1:8889")
	v.SetDefault("mirrors.mirror2", "127.0.0.1:8890")
	v.SetDefault("mirrors.dial_timeout", 5*time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "server.log")
}

// New returns a viper instance with defaults and environment binding. path
// may be empty.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("W24")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals and validates v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch types.Role(c.Node.Role) {
	case types.RolePrimary, types.RoleMirror:
	default:
		return fmt.Errorf("node.role must be %q or %q, got %q", types.RolePrimary, types.RoleMirror, c.Node.Role)
	}
	if c.Node.Home == "" {
		return fmt.Errorf("node.home is required")
	}
	if c.Node.Port < 0 || c.Node.Port > 65535 {
		return fmt.Errorf("node.port out of range: %d", c.Node.Port)
	}
	if types.Role(c.Node.Role) == types.RolePrimary && (c.Mirrors.Mirror1 == "" || c.Mirrors.Mirror2 == "") {
		return fmt.Errorf("primary needs mirrors.mirror1 and mirrors.mirror2")
	}
	return nil
}

// NodeConfig resolves paths and returns the runtime view of c.
func (c *Config) NodeConfig() types.NodeConfig {
	work := c.Node.WorkDir
	if work == "" {
		work = filepath.Join(c.Node.Home, "w24project")
	}
	return types.NodeConfig{
		Role:    types.Role(c.Node.Role),
		Port:    c.Node.Port,
		Home:    c.Node.Home,
		WorkDir: work,
		Mirror1: c.Mirrors.Mirror1,
		Mirror2: c.Mirrors.Mirror2,
	}
}
