// Package config загружает конфигурацию движка из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Бэкенды хранилищ.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- Storage ---
	// memory — всё в памяти процесса (dev/тесты), postgres — пул pgx.
	StoreBackend string `envconfig:"STORE_BACKEND" default:"memory"`

	// --- Database ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"barter"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"skill_barter"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Presence ---
	PresenceBackend           string        `envconfig:"PRESENCE_BACKEND" default:"memory"`
	RedisAddr                 string        `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword             string        `envconfig:"REDIS_PASSWORD"`
	RedisDB                   int           `envconfig:"REDIS_DB" default:"0"`
	PresenceHeartbeatInterval time.Duration `envconfig:"PRESENCE_HEARTBEAT_INTERVAL" default:"30s"`
	// Пользователь онлайн, пока с последнего heartbeat прошло меньше TTL.
	PresenceTTL time.Duration `envconfig:"PRESENCE_TTL" default:"75s"`

	// --- Sessions / housekeeping ---
	SessionStaleAfter time.Duration `envconfig:"SESSION_STALE_AFTER" default:"24h"`
	SweepSchedule     string        `envconfig:"SWEEP_SCHEDULE" default:"@every 10m"`

	// --- Matching ---
	MatchDefaultLimit int `envconfig:"MATCH_DEFAULT_LIMIT" default:"0"`

	// --- Quiz ---
	QuizCatalogPath string `envconfig:"QUIZ_CATALOG_PATH"`

	// --- Telegram ---
	// Пустой токен = уведомления выключены.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// --- Identity / Rate Limiting ---
	AuthRequired      bool          `envconfig:"AUTH_REQUIRED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// NotificationsEnabled сообщает, задан ли токен Telegram-бота.
func (c *Config) NotificationsEnabled() bool {
	return strings.TrimSpace(c.TelegramBotToken) != ""
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для STORE_BACKEND=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	default:
		return fmt.Errorf("неизвестный STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PresenceBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR обязателен для PRESENCE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("неизвестный PRESENCE_BACKEND %q", c.PresenceBackend)
	}

	if c.PresenceHeartbeatInterval <= 0 {
		return fmt.Errorf("PRESENCE_HEARTBEAT_INTERVAL должен быть > 0")
	}
	if c.PresenceTTL < c.PresenceHeartbeatInterval {
		return fmt.Errorf("PRESENCE_TTL (%s) меньше интервала heartbeat (%s)", c.PresenceTTL, c.PresenceHeartbeatInterval)
	}
	if c.SessionStaleAfter <= 0 {
		return fmt.Errorf("SESSION_STALE_AFTER должен быть > 0")
	}
	if c.MatchDefaultLimit < 0 {
		return fmt.Errorf("MATCH_DEFAULT_LIMIT не может быть отрицательным")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.PresenceBackend = strings.ToLower(strings.TrimSpace(cfg.PresenceBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
