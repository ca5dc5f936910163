package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Environment string `mapstructure:"ENV"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBDSN      string `mapstructure:"DB_DSN"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	RedisURL      string `mapstructure:"REDIS_URL"`
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`

	RetentionWindow     time.Duration `mapstructure:"RETENTION_WINDOW"`
	MaxSlotDuration     time.Duration `mapstructure:"MAX_SLOT_DURATION"`
	ExpiringSoonHorizon time.Duration `mapstructure:"EXPIRING_SOON_HORIZON"`
	PendingRequestTTL   time.Duration `mapstructure:"PENDING_REQUEST_TTL"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

var defaults = map[string]any{
	"ENV":                   "development",
	"DB_DRIVER":             DriverSQLite,
	"DB_DSN":                "",
	"SQLITE_PATH":           "slotswap.db",
	"HTTP_ADDR":             "127.0.0.1:8080",
	"JWT_SECRET":            "",
	"REDIS_URL":             "",
	"TELEGRAM_TOKEN":        "",
	"RETENTION_WINDOW":      "720h",
	"MAX_SLOT_DURATION":     "24h",
	"EXPIRING_SOON_HORIZON": "72h",
	"PENDING_REQUEST_TTL":   "168h",
	"SWEEP_INTERVAL":        "1h",
	"RATE_LIMIT_RPS":        10.0,
	"RATE_LIMIT_BURST":      20,
}

// Load читает .env (если есть) и переменные окружения
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(envFile); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные поля и диапазоны
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverPostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	if c.RetentionWindow <= 0 {
		errs = append(errs, errors.New("RETENTION_WINDOW must be positive"))
	}
	if c.MaxSlotDuration <= 0 {
		errs = append(errs, errors.New("MAX_SLOT_DURATION must be positive"))
	}
	if c.ExpiringSoonHorizon <= 0 {
		errs = append(errs, errors.New("EXPIRING_SOON_HORIZON must be positive"))
	}
	if c.PendingRequestTTL < 0 {
		errs = append(errs, errors.New("PENDING_REQUEST_TTL must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
