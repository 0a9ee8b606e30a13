package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// AQUANEST_BROKER_URL.
const EnvPrefix = "AQUANEST"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// APIConfig points at the REST backend that owns ponds, species, users,
// alerts and logs.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BrokerConfig struct {
	URL                  string        `mapstructure:"url"`
	ClientIDPrefix       string        `mapstructure:"client_id_prefix"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	Namespace            string        `mapstructure:"namespace"`
	QoS                  int           `mapstructure:"qos"`
	KeepAlive            time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ConnectRetryInterval time.Duration `mapstructure:"connect_retry_interval"`
	DisconnectQuiesce    time.Duration `mapstructure:"disconnect_quiesce"`
}

type TelemetryConfig struct {
	MaxDataPoints    int `mapstructure:"max_data_points"`
	MaxNotifications int `mapstructure:"max_notifications"`
	// CommandTimeout of 0 leaves a pending actuator pending until the
	// device answers.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// MaxViews bounds concurrently mounted views; 0 disables the limit.
	MaxViews int `mapstructure:"max_views"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("api.base_url", "http://localhost:8081")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("broker.url", "ws://localhost:9001")
	v.SetDefault("broker.client_id_prefix", "aquanest-dashboard")
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.namespace", "aquanest")
	v.SetDefault("broker.qos", 0)
	v.SetDefault("broker.keep_alive", "30s")
	v.SetDefault("broker.connect_timeout", "10s")
	v.SetDefault("broker.connect_retry_interval", "5s")
	v.SetDefault("broker.disconnect_quiesce", "250ms")

	v.SetDefault("telemetry.max_data_points", 40)
	v.SetDefault("telemetry.max_notifications", 20)
	v.SetDefault("telemetry.command_timeout", "0s")
	v.SetDefault("telemetry.max_views", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the YAML file at path. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Broker.URL == "" {
		errs = append(errs, errors.New("broker.url is required"))
	}
	if c.Broker.Namespace == "" || strings.ContainsAny(c.Broker.Namespace, "/+#") {
		errs = append(errs, fmt.Errorf("broker.namespace must be a single topic level: %q", c.Broker.Namespace))
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, fmt.Errorf("broker.qos must be 0, 1 or 2: %d", c.Broker.QoS))
	}
	if c.Telemetry.MaxDataPoints <= 0 {
		errs = append(errs, errors.New("telemetry.max_data_points must be positive"))
	}
	if c.Telemetry.MaxNotifications <= 0 {
		errs = append(errs, errors.New("telemetry.max_notifications must be positive"))
	}
	if c.Telemetry.CommandTimeout < 0 {
		errs = append(errs, errors.New("telemetry.command_timeout must not be negative"))
	}
	if c.Telemetry.MaxViews < 0 {
		errs = append(errs, errors.New("telemetry.max_views must not be negative"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}
