package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Daemon host name, IP address or absolute unix socket path
	Host string `yaml:"host" mapstructure:"host" validate:"required"`

	// Daemon TCP port, ignored for unix sockets
	Port int `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`

	// Password sent right after connecting
	Password string `yaml:"password,omitempty" mapstructure:"password"`

	// Per-command read/write timeout
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"min=0"`

	// Log level: debug, info, warn or error
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Development daemon settings
	Serve ServeConfig `yaml:"serve" mapstructure:"serve"`

	// mDNS discovery settings
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
}

// ServeConfig represents the development daemon settings
type ServeConfig struct {
	Addr        string         `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	MetricsAddr string         `yaml:"metrics_addr,omitempty" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	Password    string         `yaml:"password,omitempty" mapstructure:"password"`
	Advertise   bool           `yaml:"advertise" mapstructure:"advertise"`
	Name        string         `yaml:"name" mapstructure:"name"`
	Outputs     []OutputConfig `yaml:"outputs" mapstructure:"outputs" validate:"dive"`
}

// OutputConfig represents one output served by the development daemon
type OutputConfig struct {
	Name       string            `yaml:"name" mapstructure:"name" validate:"required"`
	Plugin     string            `yaml:"plugin,omitempty" mapstructure:"plugin"`
	Enabled    bool              `yaml:"enabled" mapstructure:"enabled"`
	Attributes map[string]string `yaml:"attributes,omitempty" mapstructure:"attributes"`
}

// DiscoveryConfig represents mDNS browse settings
type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"min=0"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     6600,
		Timeout:  10 * time.Second,
		LogLevel: "warn",
		Serve: ServeConfig{
			Addr: "localhost:6600",
			Name: "mpdoutputs",
			Outputs: []OutputConfig{
				{Name: "Speakers", Plugin: "alsa", Enabled: true},
				{Name: "Headphones", Plugin: "pulse", Enabled: false},
			},
		},
		Discovery: DiscoveryConfig{
			Timeout: 3 * time.Second,
		},
	}
}

// Address returns the address to dial: the socket path for unix sockets,
// host:port otherwise.
func (c *Config) Address() string {
	if strings.HasPrefix(c.Host, "/") || strings.HasPrefix(c.Host, "@") {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DefaultPaths lists the locations searched when no config file is given
func DefaultPaths() []string {
	paths := []string{"./mpdoutputs.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mpdoutputs", "config.yaml"))
	}
	return append(paths, "/etc/mpdoutputs/config.yaml")
}

// findConfigFile returns the first existing path, or an empty string
func findConfigFile(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadConfig loads configuration from file and environment.
//
// An empty path searches DefaultPaths; a missing file leaves the defaults in
// place. Environment variables override file values with the MPDOUTPUTS_
// prefix (MPDOUTPUTS_SERVE_ADDR for serve.addr). MPD_HOST and MPD_PORT are
// honoured as well, with MPD_HOST accepting the password@host form.
func LoadConfig(path string) (*Config, error) {
	v := newViper()

	if path == "" {
		path = findConfigFile(DefaultPaths())
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// If file doesn't exist, keep the defaults
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	cfg.Serve.Outputs = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if !v.IsSet("serve.outputs") {
		cfg.Serve.Outputs = DefaultConfig().Serve.Outputs
	}

	cfg.splitHostPassword()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	def := DefaultConfig()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("serve.addr", def.Serve.Addr)
	v.SetDefault("serve.name", def.Serve.Name)
	v.SetDefault("discovery.timeout", def.Discovery.Timeout)

	v.SetEnvPrefix("MPDOUTPUTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be known for Unmarshal to see env-only values
	_ = v.BindEnv("password")
	_ = v.BindEnv("serve.metrics_addr")
	_ = v.BindEnv("serve.password")
	_ = v.BindEnv("serve.advertise")

	// The MPD client conventions win over the prefixed variables
	_ = v.BindEnv("host", "MPD_HOST", "MPDOUTPUTS_HOST")
	_ = v.BindEnv("port", "MPD_PORT", "MPDOUTPUTS_PORT")

	return v
}

// splitHostPassword turns a "password@host" host into its parts. An explicit
// password wins over the one embedded in the host.
func (c *Config) splitHostPassword() {
	if password, host, ok := cutHostPassword(c.Host); ok {
		if c.Password == "" {
			c.Password = password
		}
		c.Host = host
	}
}

// SetHost sets the host, taking the password from a "password@host" form
func (c *Config) SetHost(host string) {
	c.Host = host
	if password, rest, ok := cutHostPassword(host); ok {
		c.Password, c.Host = password, rest
	}
}

func cutHostPassword(host string) (password, rest string, ok bool) {
	if strings.HasPrefix(host, "/") {
		return "", host, false
	}
	if i := strings.LastIndex(host, "@"); i > 0 {
		return host[:i], host[i+1:], true
	}
	return "", host, false
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// The file may hold passwords
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ServeOutput returns the served output with the given name, or nil
func (c *Config) ServeOutput(name string) *OutputConfig {
	for i := range c.Serve.Outputs {
		if c.Serve.Outputs[i].Name == name {
			return &c.Serve.Outputs[i]
		}
	}
	return nil
}
