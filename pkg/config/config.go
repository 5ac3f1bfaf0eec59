package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bridge daemon configuration.
type Config struct {
	Discovery DiscoveryConfig `yaml:"discovery"`
	Session   SessionConfig   `yaml:"session"`
	Music     MusicConfig     `yaml:"music"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// DiscoveryConfig controls how devices are found.
type DiscoveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Wait      time.Duration `yaml:"wait"`
	Interface string        `yaml:"interface"`
	MDNS      bool          `yaml:"mdns"`
	Watch     bool          `yaml:"watch"`
}

// SessionConfig holds per-device session settings.
type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	DirectTimeout time.Duration `yaml:"direct_timeout"`
	AutoReconnect bool          `yaml:"auto_reconnect"`
}

// MusicConfig configures the direct-channel listener.
type MusicConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`

	// AdvertiseHost overrides the host sent in set_music, for setups where
	// the local address seen by the device differs (NAT, containers).
	AdvertiseHost string `yaml:"advertise_host"`
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            int           `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures operational and protocol logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// ProtocolLog is a .ylog file receiving protocol events. Empty disables it.
	ProtocolLog string `yaml:"protocol_log"`
}

// DeviceConfig is a statically configured device.
type DeviceConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Name    string `yaml:"name"`

	// Support lists the advertised methods. Empty means the bridge probes
	// the device for them.
	Support []string `yaml:"support"`
}

// AddrPort parses Address, filling in the default command port.
func (d DeviceConfig) AddrPort() (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(d.Address); err == nil {
		return ap, nil
	}
	ip, err := netip.ParseAddr(d.Address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("device address %q: %w", d.Address, err)
	}
	return netip.AddrPortFrom(ip, DefaultDevicePort), nil
}

// DefaultDevicePort is the command port used when a device address has none.
const DefaultDevicePort = 55443

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			Enabled: true,
			Wait:    2 * time.Second,
			MDNS:    true,
		},
		Session: SessionConfig{
			Timeout:       5 * time.Second,
			MaxRetries:    3,
			RetryDelay:    250 * time.Millisecond,
			DirectTimeout: 5 * time.Second,
			AutoReconnect: true,
		},
		Music: MusicConfig{
			Enabled: true,
			Address: ":0",
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "yeelight-bridge",
			TopicPrefix:    "yeelight",
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
			KeepAlive:      30 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies YEELIGHT_*
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments set secrets and addresses without
// editing the file.
func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("YEELIGHT_MQTT_BROKER", &c.MQTT.Broker)
	str("YEELIGHT_MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str("YEELIGHT_MQTT_USERNAME", &c.MQTT.Username)
	str("YEELIGHT_MQTT_PASSWORD", &c.MQTT.Password)
	str("YEELIGHT_MQTT_TOPIC_PREFIX", &c.MQTT.TopicPrefix)
	str("YEELIGHT_HTTP_ADDRESS", &c.HTTP.Address)
	str("YEELIGHT_MUSIC_ADDRESS", &c.Music.Address)
	str("YEELIGHT_MUSIC_ADVERTISE_HOST", &c.Music.AdvertiseHost)
	str("YEELIGHT_DISCOVERY_INTERFACE", &c.Discovery.Interface)
	str("YEELIGHT_LOG_LEVEL", &c.Logging.Level)
	str("YEELIGHT_LOG_FORMAT", &c.Logging.Format)
	str("YEELIGHT_PROTOCOL_LOG", &c.Logging.ProtocolLog)

	bools := []struct {
		key string
		dst *bool
	}{
		{"YEELIGHT_MQTT_ENABLED", &c.MQTT.Enabled},
		{"YEELIGHT_HTTP_ENABLED", &c.HTTP.Enabled},
		{"YEELIGHT_MUSIC_ENABLED", &c.Music.Enabled},
		{"YEELIGHT_DISCOVERY_ENABLED", &c.Discovery.Enabled},
	}
	for _, b := range bools {
		v := getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = parsed
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Discovery.Enabled && c.Discovery.Wait <= 0 {
		errs = append(errs, "discovery.wait must be positive")
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, "session.timeout must be positive")
	}
	if c.Session.RetryDelay < 0 {
		errs = append(errs, "session.retry_delay must not be negative")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required")
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
			errs = append(errs, "mqtt.topic_prefix must be non-empty and contain no wildcards")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}
	if c.HTTP.Enabled && c.HTTP.Address == "" {
		errs = append(errs, "http.address is required")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level: "+err.Error())
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}

	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if _, err := d.AddrPort(); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d]: %v", i, err))
		}
		if d.ID != "" {
			if seen[d.ID] {
				errs = append(errs, fmt.Sprintf("devices[%d]: duplicate id %q", i, d.ID))
			}
			seen[d.ID] = true
		}
	}
	if !c.Discovery.Enabled && len(c.Devices) == 0 {
		errs = append(errs, "discovery is disabled and no devices are configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds the operational logger described by c.
func NewLogger(c LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}
