package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the GORM/pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// GeocodeConfig holds settings for the external geocoding and directions services.
type GeocodeConfig struct {
	SearchBaseURL     string
	DirectionsBaseURL string
	APIKey            string
	Timeout           time.Duration
}

// SurfaceConfig holds settings for the map surface bridge and runtime.
type SurfaceConfig struct {
	// Mode is "embedded" (in-process runtime over a loopback transport,
	// used for ride simulation) or "websocket" (a remote surface connects
	// on /ws/surface).
	Mode            string
	AnimateInterval time.Duration
	FitBoundsPad    float64
}

// ServiceConfig holds all configuration for the maps service.
type ServiceConfig struct {
	Port    string
	AppEnv  string
	DB      DatabaseConfig
	Kafka   KafkaConfig
	Geocode GeocodeConfig
	Surface SurfaceConfig
}

// Load reads configuration from MAPS_-prefixed environment variables with
// development defaults.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("MAPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service_port", ":8084")
	v.SetDefault("app_env", "development")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "safar_maps")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_group_prefix", "safar-")

	v.SetDefault("geocode_search_url", "https://api.openrouteservice.org/geocode")
	v.SetDefault("geocode_directions_url", "https://api.openrouteservice.org/v2/directions/driving-car/geojson")
	v.SetDefault("geocode_api_key", "")
	v.SetDefault("geocode_timeout_seconds", 10)

	v.SetDefault("surface_mode", "embedded")
	v.SetDefault("surface_animate_interval_ms", 100)
	v.SetDefault("surface_fit_bounds_pad", 0.02)

	cfg := &ServiceConfig{
		Port:   normalizePort(v.GetString("service_port")),
		AppEnv: v.GetString("app_env"),
		DB: DatabaseConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			DBName:   v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
		},
		Kafka: KafkaConfig{
			Brokers:     strings.Split(v.GetString("kafka_brokers"), ","),
			GroupPrefix: v.GetString("kafka_group_prefix"),
		},
		Geocode: GeocodeConfig{
			SearchBaseURL:     v.GetString("geocode_search_url"),
			DirectionsBaseURL: v.GetString("geocode_directions_url"),
			APIKey:            v.GetString("geocode_api_key"),
			Timeout:           time.Duration(v.GetInt("geocode_timeout_seconds")) * time.Second,
		},
		Surface: SurfaceConfig{
			Mode:            v.GetString("surface_mode"),
			AnimateInterval: time.Duration(v.GetInt("surface_animate_interval_ms")) * time.Millisecond,
			FitBoundsPad:    v.GetFloat64("surface_fit_bounds_pad"),
		},
	}

	if cfg.Surface.Mode != "embedded" && cfg.Surface.Mode != "websocket" {
		return nil, fmt.Errorf("invalid surface mode %q (want embedded or websocket)", cfg.Surface.Mode)
	}

	return cfg, nil
}

func normalizePort(p string) string {
	if strings.HasPrefix(p, ":") {
		return p
	}
	return ":" + p
}
