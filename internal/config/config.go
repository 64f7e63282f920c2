package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevJWTSecret is used when the secret environment variable is unset.
const DevJWTSecret = "dev-secret-change-in-production-min-32-chars"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnableGRPC      bool          `mapstructure:"enable_grpc"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	JWTSecretEnv string        `mapstructure:"jwt_secret_env"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type SimulationConfig struct {
	DeviceName          string        `mapstructure:"device_name"`
	DescriptionFiles    []string      `mapstructure:"description_files"`
	SearchPaths         []string      `mapstructure:"search_paths"`
	MinUpdatePeriod     float64       `mapstructure:"min_update_period"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	ControlDeviceSuffix string        `mapstructure:"control_device_suffix"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads the YAML file at path. A missing file leaves the defaults in
// place; OSC_ environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.enable_grpc", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "opensimcore")
	v.SetDefault("database.user", "opensimcore")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.token_ttl", "60m")

	v.SetDefault("simulation.device_name", "test/nodb/1")
	v.SetDefault("simulation.search_paths", []string{"."})
	v.SetDefault("simulation.min_update_period", 0.99)
	v.SetDefault("simulation.poll_interval", "1s")
	v.SetDefault("simulation.control_device_suffix", "_control")

	v.SetDefault("log.development", false)

	v.SetEnvPrefix("OSC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// GetJWTSecret reads the signing secret from the configured environment
// variable, falling back to DevJWTSecret.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return DevJWTSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != DevJWTSecret && len(secret) >= 32
}
