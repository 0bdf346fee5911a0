package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Features FeaturesConfig `mapstructure:"features"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

// EngineConfig is the execution-engine surface: concurrency bound, the
// three timeout tiers, and the retry policy. Every field can be overridden
// per operation type.
type EngineConfig struct {
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OpsTimeout       time.Duration `mapstructure:"ops_timeout"`
	OverallTimeout   time.Duration `mapstructure:"overall_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryExponential bool          `mapstructure:"retry_exponential"`
	OTPCacheTTL      time.Duration `mapstructure:"otp_cache_ttl"`

	Operations map[string]OperationOverride `mapstructure:"operations"`
}

// OperationOverride carries per-operation-type settings; nil fields fall
// back to the engine defaults.
type OperationOverride struct {
	MaxConcurrency *int           `mapstructure:"max_concurrency"`
	ConnectTimeout *time.Duration `mapstructure:"connect_timeout"`
	OpsTimeout     *time.Duration `mapstructure:"ops_timeout"`
	OverallTimeout *time.Duration `mapstructure:"overall_timeout"`
	MaxAttempts    *int           `mapstructure:"max_attempts"`
	RetryBaseDelay *time.Duration `mapstructure:"retry_base_delay"`
}

// EngineSettings is the fully resolved view for one operation type.
type EngineSettings struct {
	MaxConcurrency   int
	ConnectTimeout   time.Duration
	OpsTimeout       time.Duration
	OverallTimeout   time.Duration
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	RetryExponential bool
}

// ForOperation resolves the engine settings for an operation type, applying
// any configured override on top of the defaults.
func (e *EngineConfig) ForOperation(op string) EngineSettings {
	s := EngineSettings{
		MaxConcurrency:   e.MaxConcurrency,
		ConnectTimeout:   e.ConnectTimeout,
		OpsTimeout:       e.OpsTimeout,
		OverallTimeout:   e.OverallTimeout,
		MaxAttempts:      e.MaxAttempts,
		RetryBaseDelay:   e.RetryBaseDelay,
		RetryExponential: e.RetryExponential,
	}
	ov, ok := e.Operations[op]
	if !ok {
		return s
	}
	if ov.MaxConcurrency != nil {
		s.MaxConcurrency = *ov.MaxConcurrency
	}
	if ov.ConnectTimeout != nil {
		s.ConnectTimeout = *ov.ConnectTimeout
	}
	if ov.OpsTimeout != nil {
		s.OpsTimeout = *ov.OpsTimeout
	}
	if ov.OverallTimeout != nil {
		s.OverallTimeout = *ov.OverallTimeout
	}
	if ov.MaxAttempts != nil {
		s.MaxAttempts = *ov.MaxAttempts
	}
	if ov.RetryBaseDelay != nil {
		s.RetryBaseDelay = *ov.RetryBaseDelay
	}
	return s
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("NETFLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setEngineDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setEngineDefaults() {
	viper.SetDefault("engine.max_concurrency", 20)
	viper.SetDefault("engine.connect_timeout", "15s")
	viper.SetDefault("engine.ops_timeout", "60s")
	viper.SetDefault("engine.overall_timeout", "10m")
	viper.SetDefault("engine.max_attempts", 3)
	viper.SetDefault("engine.retry_base_delay", "5s")
	viper.SetDefault("engine.retry_exponential", true)
	viper.SetDefault("engine.otp_cache_ttl", "90s")
}
