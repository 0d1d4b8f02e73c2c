package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// DetectConfig tunes the route hazard detection pipeline.
type DetectConfig struct {
	DefaultRadiusMeters float64 `mapstructure:"default_radius_m"`
	MaxRadiusMeters     float64 `mapstructure:"max_radius_m"`
	DownsampleCap       int     `mapstructure:"downsample_cap"`
	DegreeModel         string  `mapstructure:"degree_model"`
	Workers             int     `mapstructure:"workers"`
	SightingsTTLSeconds int     `mapstructure:"sightings_ttl_seconds"`
}

// SourcesConfig configures the upstream sighting feed poller.
type SourcesConfig struct {
	PollIntervalSeconds int             `mapstructure:"poll_interval_seconds"`
	Dedupe              bool            `mapstructure:"dedupe"`
	Kumadas             KumadasSource   `mapstructure:"kumadas"`
	OpenData            []OpenDataFeeds `mapstructure:"opendata"`
}

type KumadasSource struct {
	Enabled          bool    `mapstructure:"enabled"`
	URL              string  `mapstructure:"url"`
	AppID            string  `mapstructure:"app_id"`
	APIKey           string  `mapstructure:"api_key"`
	CenterLat        float64 `mapstructure:"center_lat"`
	CenterLon        float64 `mapstructure:"center_lon"`
	RadiusKm         float64 `mapstructure:"radius_km"`
	InfoTypeIDs      []int   `mapstructure:"info_type_ids"`
	AnimalSpeciesIDs []int   `mapstructure:"animal_species_ids"`
	WindowDays       int     `mapstructure:"window_days"`
}

type OpenDataFeeds struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "kumawatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "kumawatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("detect.default_radius_m", 250.0)
	v.SetDefault("detect.max_radius_m", 5000.0)
	v.SetDefault("detect.downsample_cap", 500)
	v.SetDefault("detect.degree_model", "fixed90k")
	v.SetDefault("detect.workers", 4)
	v.SetDefault("detect.sightings_ttl_seconds", 300)
	v.SetDefault("sources.poll_interval_seconds", 3600)
	v.SetDefault("sources.dedupe", false)
	v.SetDefault("sources.kumadas.enabled", false)
	v.SetDefault("sources.kumadas.radius_km", 50.0)
	v.SetDefault("sources.kumadas.window_days", 30)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: KUMAWATCH_DATABASE_HOST → database.host
	v.SetEnvPrefix("KUMAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Detect.DefaultRadiusMeters <= 0 {
		errs = append(errs, "detect.default_radius_m must be positive")
	}
	if c.Detect.MaxRadiusMeters < c.Detect.DefaultRadiusMeters {
		errs = append(errs, "detect.max_radius_m must be >= detect.default_radius_m")
	}
	if c.Detect.DownsampleCap < 2 {
		errs = append(errs, "detect.downsample_cap must be at least 2")
	}
	if c.Detect.DegreeModel != "fixed90k" && c.Detect.DegreeModel != "coslat" {
		errs = append(errs, fmt.Sprintf("detect.degree_model must be fixed90k or coslat, got %q", c.Detect.DegreeModel))
	}
	if c.Detect.Workers <= 0 {
		errs = append(errs, "detect.workers must be positive")
	}
	if c.Sources.PollIntervalSeconds <= 0 {
		errs = append(errs, "sources.poll_interval_seconds must be positive")
	}
	if c.Sources.Kumadas.Enabled && c.Sources.Kumadas.URL == "" {
		errs = append(errs, "sources.kumadas.url is required when kumadas is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
