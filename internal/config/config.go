package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres" validate:"required"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Contacts  ContactsConfig  `mapstructure:"contacts"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database" validate:"required"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	AttemptTopic      string   `mapstructure:"attempt_topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig tunes the scheduling loop and the placement protocol.
type EngineConfig struct {
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	CampaignFetchLimit  int           `mapstructure:"campaign_fetch_limit"`
	CampaignConcurrency int           `mapstructure:"campaign_concurrency" validate:"gte=0"`
	PacingDelay         time.Duration `mapstructure:"pacing_delay"`
	PlacementBudget     time.Duration `mapstructure:"placement_budget"`
	LeaseTTL            time.Duration `mapstructure:"lease_ttl"`
	RetryFailedContacts bool          `mapstructure:"retry_failed_contacts"`
}

// SignalConfig points at the telephony signaling provider.
type SignalConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	DispatchFallbackURL string        `mapstructure:"dispatch_fallback_url"`
	APIKey              string        `mapstructure:"api_key"`
	StepTimeout         time.Duration `mapstructure:"step_timeout"`
}

// ContactsConfig tunes contact resolution and phone normalization.
type ContactsConfig struct {
	DefaultCountryCode string   `mapstructure:"default_country_code"`
	DomesticPrefixes   []string `mapstructure:"domestic_prefixes"`
	SpreadsheetDir     string   `mapstructure:"spreadsheet_dir"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("VOICECAMPAIGN")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = 45 * time.Second
	}
	if c.Engine.CampaignFetchLimit <= 0 {
		c.Engine.CampaignFetchLimit = 50
	}
	if c.Engine.CampaignConcurrency <= 0 {
		c.Engine.CampaignConcurrency = 4
	}
	if c.Engine.PacingDelay <= 0 {
		c.Engine.PacingDelay = 2 * time.Second
	}
	if c.Engine.PlacementBudget <= 0 {
		c.Engine.PlacementBudget = 30 * time.Second
	}
	if c.Engine.LeaseTTL <= 0 {
		c.Engine.LeaseTTL = 5 * time.Minute
	}
	if c.Signal.StepTimeout <= 0 {
		c.Signal.StepTimeout = 10 * time.Second
	}
	if c.Contacts.DefaultCountryCode == "" {
		c.Contacts.DefaultCountryCode = "+1"
	}
	if c.Kafka.Partitions <= 0 {
		c.Kafka.Partitions = 3
	}
	if c.Kafka.ReplicationFactor <= 0 {
		c.Kafka.ReplicationFactor = 1
	}
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
