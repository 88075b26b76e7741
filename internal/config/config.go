package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Versifine/mcwire/internal/protocol"
)

const envPrefix = "MCWIRE_"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Client     ClientConfig     `yaml:"client"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Registry   RegistryConfig   `yaml:"registry"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ClientConfig struct {
	Username string `yaml:"username"`
	// Mode is "join" for a full session or "status" for a server list ping.
	Mode         string `yaml:"mode"`
	Locale       string `yaml:"locale"`
	ViewDistance int    `yaml:"view_distance"`
}

type ProtocolConfig struct {
	Version         string `yaml:"version"`
	MaxStringLength int    `yaml:"max_string_length"`
	// PinnedKey is the hex SHA-256 of the server public key. Empty disables
	// pinning.
	PinnedKey string `yaml:"pinned_key"`
}

type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Read    time.Duration `yaml:"read"`
}

type RegistryConfig struct {
	// Dir holds blocks.json and friends. Empty means ids pass through
	// unresolved.
	Dir string `yaml:"dir"`
}

type DispatcherConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "localhost", Port: 25565},
		Client:   ClientConfig{Username: "mcwire", Mode: "join", Locale: "en_us", ViewDistance: 8},
		Protocol: ProtocolConfig{Version: protocol.Latest.String()},
		Timeouts: TimeoutConfig{Connect: 10 * time.Second, Read: 30 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Load reads the YAML file at path over the defaults, loads envFiles into the
// process environment without overriding set variables, then applies MCWIRE_*
// overrides. An empty path skips the file.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_HOST":  &c.Server.Host,
		"USERNAME":     &c.Client.Username,
		"MODE":         &c.Client.Mode,
		"VERSION":      &c.Protocol.Version,
		"PINNED_KEY":   &c.Protocol.PinnedKey,
		"REGISTRY_DIR": &c.Registry.Dir,
		"LOG_LEVEL":    &c.Logging.Level,
		"LOG_FORMAT":   &c.Logging.Format,
		"LOG_FILE":     &c.Logging.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT": &c.Server.Port,
		"WORKERS":     &c.Dispatcher.Workers,
	}
	for key, dst := range ints {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := lookup(envPrefix + "READ_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREAD_TIMEOUT: %w", envPrefix, err)
		}
		c.Timeouts.Read = d
	}
	return nil
}

// Version resolves Protocol.Version.
func (c *Config) Version() (protocol.Version, error) {
	return protocol.ParseVersion(c.Protocol.Version)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if n := len(c.Client.Username); n == 0 || n > 16 {
		errs = append(errs, fmt.Errorf("client.username must be 1 to 16 characters, got %d", n))
	}
	if c.Client.Mode != "join" && c.Client.Mode != "status" {
		errs = append(errs, fmt.Errorf("client.mode %q is not join or status", c.Client.Mode))
	}
	if c.Client.ViewDistance < 0 || c.Client.ViewDistance > 127 {
		errs = append(errs, fmt.Errorf("client.view_distance %d out of range", c.Client.ViewDistance))
	}
	if _, err := c.Version(); err != nil {
		errs = append(errs, fmt.Errorf("protocol.version: %w", err))
	}
	if c.Protocol.MaxStringLength < 0 {
		errs = append(errs, errors.New("protocol.max_string_length is negative"))
	}
	if pin := strings.ReplaceAll(c.Protocol.PinnedKey, ":", ""); pin != "" {
		if b, err := hex.DecodeString(pin); err != nil || len(b) != 32 {
			errs = append(errs, errors.New("protocol.pinned_key must be a hex SHA-256 digest"))
		}
	}
	if c.Timeouts.Connect < 0 || c.Timeouts.Read < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.Dispatcher.Workers < 0 || c.Dispatcher.QueueSize < 0 {
		errs = append(errs, errors.New("dispatcher sizes must not be negative"))
	}
	switch c.Logging.Format {
	case "", "auto", "console", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is unknown", c.Logging.Format))
	}
	return errors.Join(errs...)
}
