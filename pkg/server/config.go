package server

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from a YAML file.
// The voice relay always binds the control port + 1; clients rely on
// that relationship and it is not configurable.
type Config struct {
	Server    ServerSettings    `yaml:"server"`
	Security  SecuritySettings  `yaml:"security"`
	Admin     AdminSettings     `yaml:"admin"`
	Channels  ChannelSettings   `yaml:"channels"`
	Voice     VoiceSettings     `yaml:"voice"`
	WebSocket WebSocketSettings `yaml:"websocket"`
	Metrics   MetricsSettings   `yaml:"metrics"`
	Logging   LoggingSettings   `yaml:"logging"`
}

type ServerSettings struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

type SecuritySettings struct {
	MaxConnections int `yaml:"max_connections"` // 0 = unlimited
}

type AdminSettings struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"` // hashed on ingestion, never kept in memory past startup
}

type ChannelSettings struct {
	DefaultChannel string `yaml:"default_channel"`
	MaxChannels    int    `yaml:"max_channels"` // 0 = unlimited
}

type VoiceSettings struct {
	// CompatIPMatch selects the legacy sender-identification scheme:
	// match a datagram's source IP against each live session's stream
	// IP, and forward to members at their stream IP plus the sender's
	// UDP source port. Breaks behind NAT; disable it to require a
	// session-bound token prefix on every voice frame instead.
	CompatIPMatch bool `yaml:"compat_ip_match"`
}

type WebSocketSettings struct {
	Addr string `yaml:"addr"` // e.g. ":9702", empty = disabled
}

type MetricsSettings struct {
	Addr string `yaml:"addr"` // Prometheus endpoint, empty = disabled
}

type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults. The admin
// password has no default and must come from the config file.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerSettings{Host: "0.0.0.0", Port: 9600, Name: "voclink"},
		Admin:    AdminSettings{Username: "admin"},
		Channels: ChannelSettings{DefaultChannel: "Lobby"},
		Voice:    VoiceSettings{CompatIPMatch: true},
		Metrics:  MetricsSettings{Addr: ":9602"},
		Logging:  LoggingSettings{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML config file over the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for startup-fatal mistakes.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65534 {
		return fmt.Errorf("server.port must be 0-65534 (voice binds port+1), got %d", c.Server.Port)
	}
	if c.Channels.DefaultChannel == "" {
		return fmt.Errorf("channels.default_channel must not be empty")
	}
	if c.Admin.Username == "" {
		return fmt.Errorf("admin.username must not be empty")
	}
	if c.Admin.Password == "" {
		return fmt.Errorf("admin.password must not be empty")
	}
	if c.Security.MaxConnections < 0 {
		return fmt.Errorf("security.max_connections must not be negative")
	}
	if c.Channels.MaxChannels < 0 {
		return fmt.Errorf("channels.max_channels must not be negative")
	}
	return nil
}

// ControlAddr returns the TCP bind address for the control plane.
func (c *Config) ControlAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// VoiceAddr returns the UDP bind address for the voice relay: control
// port + 1. Port 0 stays 0 so tests get an ephemeral port for both.
func (c *Config) VoiceAddr() string {
	port := c.Server.Port
	if port != 0 {
		port++
	}
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(port))
}
