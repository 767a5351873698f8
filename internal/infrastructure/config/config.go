package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the DIAL receiver.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	DIAL    DIALConfig    `yaml:"dial"`
	SSDP    SSDPConfig    `yaml:"ssdp"`
	Control ControlConfig `yaml:"control"`
	Logging LoggingConfig `yaml:"logging"`
	Apps    []AppConfig   `yaml:"apps"`
}

// DeviceConfig contains the device identity advertised to clients.
// The same identity is used by the HTTP device descriptor and the SSDP
// responder so second-screen clients see one consistent device.
type DeviceConfig struct {
	// UUID is the process-wide device UUID. Generated at startup if empty.
	UUID         string `yaml:"uuid"`
	FriendlyName string `yaml:"friendly_name"`
	ModelName    string `yaml:"model_name"`
	Manufacturer string `yaml:"manufacturer"`
}

// DIALConfig contains the DIAL HTTP server settings.
type DIALConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// DataDir is the directory for per-application dial-data blobs and
	// persistence databases.
	DataDir string `yaml:"data_dir"`

	Timeouts DIALTimeoutConfig `yaml:"timeouts"`
}

// DIALTimeoutConfig contains HTTP timeout settings (seconds).
type DIALTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// SSDPConfig contains the SSDP discovery responder settings.
type SSDPConfig struct {
	// MulticastAddress is the SSDP multicast group. Fixed by the UPnP
	// specification; configurable only for tests.
	MulticastAddress string `yaml:"multicast_address"`
	Port             int    `yaml:"port"`

	// MaxAge is the cache lifetime (seconds) advertised in search responses.
	MaxAge int `yaml:"max_age"`
}

// ControlConfig contains the optional MQTT remote-control channel settings.
// When enabled, applications can be started/stopped/hidden by publishing to
// dialcast/app/{name}/{op} topics.
type ControlConfig struct {
	Enabled bool       `yaml:"enabled"`
	MQTT    MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AppConfig declares a DIAL application to register at startup.
// Registered names must be unique; the first registrant wins.
type AppConfig struct {
	// Name is the DIAL application name, see the DIAL registry:
	// http://www.dial-multiscreen.org/dial-registry/namespace-database
	Name string `yaml:"name"`

	// AddonID identifies the host component that owns this application.
	AddonID string `yaml:"addon_id"`

	// Origins is the list of allowed origins. Values may be plain strings
	// or regular expression patterns. Empty denies all cross-origin requests.
	Origins []string `yaml:"origins"`

	// UseAdditionalData exposes a dial_data endpoint to the application on start.
	UseAdditionalData bool `yaml:"use_additional_data"`

	// EnablePersistence allocates a dedicated key/value store for the application.
	EnablePersistence bool `yaml:"enable_persistence"`
}

// Default DIAL and SSDP network parameters. The SSDP group and port are
// reserved by the UPnP specification and must not change in production.
const (
	DefaultDIALPort    = 56789
	DefaultSSDPAddress = "239.255.255.250"
	DefaultSSDPPort    = 1900
	DefaultSSDPMaxAge  = 1800

	defaultMQTTPort     = 1883
	defaultInitialDelay = 1
	defaultMaxDelay     = 60
	defaultReadTimeout  = 30
	defaultWriteTimeout = 30
	defaultIdleTimeout  = 60
	maxPort             = 65535
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DIALCAST_SECTION_KEY
// For example: DIALCAST_DIAL_PORT, DIALCAST_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			FriendlyName: "DIALCast Receiver",
			ModelName:    "DIALCast",
			Manufacturer: "DIALCast",
		},
		DIAL: DIALConfig{
			Host:    "0.0.0.0",
			Port:    DefaultDIALPort,
			DataDir: "./data",
			Timeouts: DIALTimeoutConfig{
				Read:  defaultReadTimeout,
				Write: defaultWriteTimeout,
				Idle:  defaultIdleTimeout,
			},
		},
		SSDP: SSDPConfig{
			MulticastAddress: DefaultSSDPAddress,
			Port:             DefaultSSDPPort,
			MaxAge:           DefaultSSDPMaxAge,
		},
		Control: ControlConfig{
			Enabled: false,
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     defaultMQTTPort,
					ClientID: "dialcast-core",
				},
				QoS: 1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: defaultInitialDelay,
					MaxDelay:     defaultMaxDelay,
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DIALCAST_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("DIALCAST_DEVICE_FRIENDLY_NAME"); v != "" {
		cfg.Device.FriendlyName = v
	}
	if v := os.Getenv("DIALCAST_DEVICE_UUID"); v != "" {
		cfg.Device.UUID = v
	}

	// DIAL server
	if v := os.Getenv("DIALCAST_DIAL_HOST"); v != "" {
		cfg.DIAL.Host = v
	}
	if v := os.Getenv("DIALCAST_DIAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DIAL.Port = port
		}
	}
	if v := os.Getenv("DIALCAST_DATA_DIR"); v != "" {
		cfg.DIAL.DataDir = v
	}

	// MQTT
	if v := os.Getenv("DIALCAST_MQTT_HOST"); v != "" {
		cfg.Control.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DIALCAST_MQTT_USERNAME"); v != "" {
		cfg.Control.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DIALCAST_MQTT_PASSWORD"); v != "" {
		cfg.Control.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.DIAL.Port < 1 || c.DIAL.Port > maxPort {
		errs = append(errs, "dial.port must be between 1 and 65535")
	}
	if c.DIAL.DataDir == "" {
		errs = append(errs, "dial.data_dir is required")
	}
	if c.SSDP.Port < 1 || c.SSDP.Port > maxPort {
		errs = append(errs, "ssdp.port must be between 1 and 65535")
	}
	if c.SSDP.MulticastAddress == "" {
		errs = append(errs, "ssdp.multicast_address is required")
	}
	if c.SSDP.MaxAge < 1 {
		errs = append(errs, "ssdp.max_age must be positive")
	}
	if c.Control.Enabled {
		if c.Control.MQTT.QoS < 0 || c.Control.MQTT.QoS > 2 {
			errs = append(errs, "control.mqtt.qos must be 0, 1, or 2")
		}
		if c.Control.MQTT.Broker.Host == "" {
			errs = append(errs, "control.mqtt.broker.host is required when control is enabled")
		}
	}
	for i, a := range c.Apps {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("apps[%d].name is required", i))
		}
		if a.AddonID == "" {
			errs = append(errs, fmt.Sprintf("apps[%d].addon_id is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
