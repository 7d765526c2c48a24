package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by teus
const EnvPrefix = "TEUS_"

// Config represents the application configuration
type Config struct {
	// Daemon connection
	SocketPath  string        `mapstructure:"socket"`
	Host        string        `mapstructure:"host"`
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	IOTimeout   time.Duration `mapstructure:"io-timeout"`
	Serialize   bool          `mapstructure:"serialize"`

	// Logging
	LogLevel  string `mapstructure:"log-level"`
	LogFile   string `mapstructure:"log-file"`
	LogFormat string `mapstructure:"log-format"`

	// Serving and metrics
	ListenAddr       string `mapstructure:"listen"`
	MetricsEnabled   bool   `mapstructure:"metrics"`
	MetricsAddr      string `mapstructure:"metrics-addr"`
	TelemetryEnabled bool   `mapstructure:"telemetry"`

	// Snapshot
	Concurrency int    `mapstructure:"concurrency"`
	OutputPath  string `mapstructure:"output"`

	Profile        string `mapstructure:"profile"`
	ConfigFilePath string `mapstructure:"config"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cc := docker.DefaultClientConfig()
	return &Config{
		SocketPath:       cc.SocketPath,
		Host:             cc.Host,
		DialTimeout:      cc.DialTimeout,
		IOTimeout:        cc.IOTimeout,
		LogLevel:         "info",
		LogFormat:        "console",
		ListenAddr:       "127.0.0.1:8080",
		MetricsEnabled:   false,
		TelemetryEnabled: true,
		Concurrency:      4,
		Profile:          "default",
	}
}

// ClientConfig returns the docker client settings held by c
func (c *Config) ClientConfig() docker.ClientConfig {
	return docker.ClientConfig{
		SocketPath:  c.SocketPath,
		Host:        c.Host,
		DialTimeout: c.DialTimeout,
		IOTimeout:   c.IOTimeout,
		Serialize:   c.Serialize,
	}
}

// ParseConfig resolves configuration from defaults, .env files, the config
// file, TEUS_* environment variables and the global flags in args. Flag
// parsing stops at the first non-flag argument; the rest is returned for
// command dispatch. A help request is returned as the "help" command.
func ParseConfig(args []string) (*Config, []string, error) {
	cfg := DefaultConfig()

	loadEnvFile()

	socket, err := socketFromDockerHost(cfg.SocketPath)
	if err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetConfigName("teus")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.teus")
	v.AddConfigPath("/etc/teus")

	fs := pflag.NewFlagSet("teus", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() {}

	// Daemon connection
	fs.StringVarP(&cfg.SocketPath, "socket", "s", getEnv("SOCKET", socket), "Path to the Docker daemon Unix socket")
	fs.StringVar(&cfg.Host, "host", getEnv("HOST", cfg.Host), "Value of the Host header sent to the daemon")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", getEnvDuration("DIAL_TIMEOUT", cfg.DialTimeout), "Timeout for connecting to the socket")
	fs.DurationVar(&cfg.IOTimeout, "io-timeout", getEnvDuration("IO_TIMEOUT", cfg.IOTimeout), "Timeout for one request/response exchange")
	fs.BoolVar(&cfg.Serialize, "serialize", getBoolEnv("SERIALIZE", cfg.Serialize), "Send requests to the daemon one at a time")

	// Logging
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", cfg.LogLevel), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", getEnv("LOG_FILE", cfg.LogFile), "Log to file in addition to stderr")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", cfg.LogFormat), "Log format (console, json)")

	// Serving and metrics
	fs.StringVar(&cfg.ListenAddr, "listen", getEnv("LISTEN", cfg.ListenAddr), "Address the serve command listens on")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", getBoolEnv("METRICS_ENABLED", cfg.MetricsEnabled), "Enable metrics collection")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("METRICS_ADDR", cfg.MetricsAddr), "Serve /metrics on a separate address")
	fs.BoolVar(&cfg.TelemetryEnabled, "telemetry", getBoolEnv("TELEMETRY_ENABLED", cfg.TelemetryEnabled), "Enable telemetry logging")

	// Snapshot
	fs.IntVar(&cfg.Concurrency, "concurrency", getEnvInt("CONCURRENCY", cfg.Concurrency), "Maximum concurrent daemon requests for snapshot")
	fs.StringVarP(&cfg.OutputPath, "output", "o", getEnv("OUTPUT_PATH", cfg.OutputPath), "Write snapshot report to this file")

	fs.StringVar(&cfg.Profile, "profile", getEnv("PROFILE", cfg.Profile), "Configuration profile to use")
	fs.StringVarP(&cfg.ConfigFilePath, "config", "c", getEnv("CONFIG_FILE", ""), "Path to configuration file")

	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return cfg, []string{"help"}, nil
		}
		return nil, nil, errors.NewConfigError("config", "failed to parse flags", err)
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, errors.NewConfigError("config", "failed to bind flags to viper", err)
	}

	if cfg.ConfigFilePath != "" {
		v.SetConfigFile(cfg.ConfigFilePath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, nil, errors.NewConfigError("config", "error reading config file", err)
		}
		log.Debug().Msg("No configuration file found, using command-line and environment values")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Configuration loaded from file")

		if err := applyProfile(v, v.GetString("profile")); err != nil {
			return nil, nil, err
		}

		if err := v.Unmarshal(cfg); err != nil {
			return nil, nil, errors.NewConfigError("config", "error unmarshaling config", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log.Debug().
		Str("socket", cfg.SocketPath).
		Str("host", cfg.Host).
		Dur("dialTimeout", cfg.DialTimeout).
		Dur("ioTimeout", cfg.IOTimeout).
		Str("logLevel", cfg.LogLevel).
		Str("listen", cfg.ListenAddr).
		Bool("metricsEnabled", cfg.MetricsEnabled).
		Int("concurrency", cfg.Concurrency).
		Str("profile", cfg.Profile).
		Msg("Configuration loaded")

	return cfg, fs.Args(), nil
}

// applyProfile merges the named profile section of the config file over the
// top-level settings. Flags set explicitly still win.
func applyProfile(v *viper.Viper, name string) error {
	if name == "" || name == "default" {
		return nil
	}

	sub := v.Sub("profiles." + name)
	if sub == nil {
		log.Warn().Str("profile", name).Msg("Requested profile not found in configuration")
		return nil
	}

	if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
		return errors.NewConfigError("config", "error applying profile settings", err)
	}

	log.Debug().Str("profile", name).Msg("Applied configuration profile")
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return errors.NewValidationError("config", "socket path is required", nil)
	}
	if c.Host == "" {
		return errors.NewValidationError("config", "host is required", nil)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return errors.NewValidationError(
			"config",
			fmt.Sprintf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel),
			nil,
		)
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return errors.NewValidationError(
			"config",
			fmt.Sprintf("invalid log format: %s (must be console or json)", c.LogFormat),
			nil,
		)
	}

	if c.DialTimeout <= 0 || c.IOTimeout <= 0 {
		return errors.NewValidationError(
			"config",
			fmt.Sprintf("timeouts must be positive (dial %s, io %s)", c.DialTimeout, c.IOTimeout),
			nil,
		)
	}

	if c.Concurrency < 1 {
		return errors.NewValidationError(
			"config",
			fmt.Sprintf("invalid concurrency: %d (must be >= 1)", c.Concurrency),
			nil,
		)
	}

	return nil
}

// socketFromDockerHost returns the socket named by DOCKER_HOST, or fallback
// when it is unset. Only unix:// hosts can be served.
func socketFromDockerHost(fallback string) (string, error) {
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		return fallback, nil
	}

	u, err := dockerclient.ParseHostURL(host)
	if err != nil {
		return "", errors.NewValidationError("config", "invalid DOCKER_HOST", err).WithDetail("value", host)
	}
	if u.Scheme != "unix" {
		return "", errors.NewValidationError(
			"config",
			fmt.Sprintf("unsupported DOCKER_HOST scheme %q: only unix sockets are supported", u.Scheme),
			nil,
		).WithDetail("value", host)
	}
	return u.Host, nil
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// GetEnvInt gets an integer environment variable or returns a default value
func GetEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// GetEnvDuration gets a duration environment variable or returns a default value
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return fallback
}

// GetBoolEnv gets a boolean environment variable or returns a default value
func GetBoolEnv(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch value {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}

// The unexported helpers read TEUS_-prefixed variables.
func getEnv(key, fallback string) string {
	return GetEnv(EnvPrefix+key, fallback)
}

func getEnvInt(key string, fallback int) int {
	return GetEnvInt(EnvPrefix+key, fallback)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return GetEnvDuration(EnvPrefix+key, fallback)
}

func getBoolEnv(key string, fallback bool) bool {
	return GetBoolEnv(EnvPrefix+key, fallback)
}

// loadEnvFile loads the first .env file found in the standard locations.
// Variables already set in the environment are not overridden.
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get current working directory")
		return
	}

	envFiles := []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(cwd, "..", ".env"),
		filepath.Join(os.Getenv("HOME"), ".teus", ".env"),
	}

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Debug().Err(err).Str("file", envFile).Msg("Failed to load .env file")
			continue
		}
		log.Debug().Str("file", envFile).Msg("Loaded environment variables from .env file")
		return
	}

	log.Debug().Msg("No .env file found in standard locations")
}
