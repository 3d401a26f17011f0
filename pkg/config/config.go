package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Approval      ApprovalConfig
	Batching      BatchingConfig
	VehicleRates  VehicleRatesConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ApprovalConfig tunes the manager-confirmation workflow.
type ApprovalConfig struct {
	TokenTTL      time.Duration
	UrgentWindow  time.Duration
	PendingExpiry time.Duration
	SweepInterval time.Duration
	BadgeCacheTTL time.Duration
}

// BatchingConfig tunes the shared-vehicle grouping sweep.
type BatchingConfig struct {
	Enabled           bool
	SweepInterval     time.Duration
	ToleranceMinutes  int
	MinSavingsPct     float64
	AssumedDistanceKm float64
}

// VehicleRatesConfig holds per-km cost rates per vehicle tier.
type VehicleRatesConfig struct {
	SmallPerKm float64
	MidPerKm   float64
	VanPerKm   float64
}

// NotificationsConfig configures the async notification dispatcher.
type NotificationsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Approval = ApprovalConfig{
		TokenTTL:      parseDuration(v.GetString("APPROVAL_TOKEN_TTL"), 48*time.Hour),
		UrgentWindow:  parseDuration(v.GetString("APPROVAL_URGENT_WINDOW"), 24*time.Hour),
		PendingExpiry: parseDuration(v.GetString("APPROVAL_PENDING_EXPIRY"), 48*time.Hour),
		SweepInterval: parseDuration(v.GetString("APPROVAL_SWEEP_INTERVAL"), 10*time.Minute),
		BadgeCacheTTL: parseDuration(v.GetString("APPROVAL_BADGE_CACHE_TTL"), 30*time.Second),
	}

	cfg.Batching = BatchingConfig{
		Enabled:           v.GetBool("ENABLE_BATCHING"),
		SweepInterval:     parseDuration(v.GetString("BATCH_SWEEP_INTERVAL"), 15*time.Minute),
		ToleranceMinutes:  v.GetInt("BATCH_TOLERANCE_MINUTES"),
		MinSavingsPct:     v.GetFloat64("BATCH_MIN_SAVINGS_PCT"),
		AssumedDistanceKm: v.GetFloat64("BATCH_ASSUMED_DISTANCE_KM"),
	}

	cfg.VehicleRates = VehicleRatesConfig{
		SmallPerKm: v.GetFloat64("VEHICLE_RATE_SMALL_PER_KM"),
		MidPerKm:   v.GetFloat64("VEHICLE_RATE_MID_PER_KM"),
		VanPerKm:   v.GetFloat64("VEHICLE_RATE_VAN_PER_KM"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tripshare")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("APPROVAL_TOKEN_TTL", "48h")
	v.SetDefault("APPROVAL_URGENT_WINDOW", "24h")
	v.SetDefault("APPROVAL_PENDING_EXPIRY", "48h")
	v.SetDefault("APPROVAL_SWEEP_INTERVAL", "10m")
	v.SetDefault("APPROVAL_BADGE_CACHE_TTL", "30s")

	v.SetDefault("ENABLE_BATCHING", true)
	v.SetDefault("BATCH_SWEEP_INTERVAL", "15m")
	v.SetDefault("BATCH_TOLERANCE_MINUTES", 30)
	v.SetDefault("BATCH_MIN_SAVINGS_PCT", 0.15)
	v.SetDefault("BATCH_ASSUMED_DISTANCE_KM", 25)

	v.SetDefault("VEHICLE_RATE_SMALL_PER_KM", 0.8)
	v.SetDefault("VEHICLE_RATE_MID_PER_KM", 1.1)
	v.SetDefault("VEHICLE_RATE_VAN_PER_KM", 1.6)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
