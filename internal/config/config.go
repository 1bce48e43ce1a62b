// Пакет config — загрузка и валидация конфигурации Fleet Desk
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Хранилища сессий консоли.
const (
	SessionStoreMemory   = "memory"
	SessionStoreRedis    = "redis"
	SessionStorePostgres = "postgres"
)

// Допустимые размеры страницы списков.
var PageSizes = []int{5, 10, 25, 50}

// Config содержит все параметры конфигурации консоли Fleet Desk.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера консоли
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Backend ---

	// Базовый URL REST backend (без trailing slash)
	APIBaseURL string
	// Таймаут запросов к backend (0 — без таймаута)
	APITimeout time.Duration
	// Путь к CA-сертификату backend (опционально)
	CACertPath string
	// Путь backend для проверки доступности (topologymetrics)
	APIHealthPath string

	// --- Сессии ---

	// Хранилище сессий: memory, redis, postgres
	SessionStore string
	// Ключ шифрования cookie (пустой — случайный на время жизни процесса)
	SessionSecret string
	// Время жизни записи сессии в хранилище
	SessionTTL time.Duration
	// Максимальное число сессий в memory-хранилище
	SessionCacheSize int
	// Период очистки просроченных сессий в PostgreSQL
	SessionPurgeInterval time.Duration

	// --- Redis (FA_SESSION_STORE=redis) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- PostgreSQL (FA_SESSION_STORE=postgres) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Интерфейс ---

	// Размер страницы списков по умолчанию
	DefaultPageSize int
	// Задержка перехода к списку после успешной отправки формы
	SuccessRedirectDelay time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FA_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Backend ---

	// FA_API_BASE_URL — обязательный
	cfg.APIBaseURL, err = getEnvRequired("FA_API_BASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if u, parseErr := url.Parse(cfg.APIBaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("FA_API_BASE_URL: некорректный URL %q", cfg.APIBaseURL)
	}

	// FA_API_TIMEOUT — таймаут запросов к backend (по умолчанию 0 — ждём ответа без ограничения)
	cfg.APITimeout, err = getEnvDuration("FA_API_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("FA_API_TIMEOUT: %w", err)
	}
	if cfg.APITimeout < 0 {
		return nil, fmt.Errorf("FA_API_TIMEOUT: отрицательное значение %s", cfg.APITimeout)
	}

	cfg.CACertPath = getEnvDefault("FA_CA_CERT_PATH", "")

	cfg.APIHealthPath = getEnvDefault("FA_API_HEALTH_PATH", "/")
	if !strings.HasPrefix(cfg.APIHealthPath, "/") {
		return nil, fmt.Errorf("FA_API_HEALTH_PATH: путь должен начинаться с /")
	}

	// --- Сессии ---

	cfg.SessionStore = getEnvDefault("FA_SESSION_STORE", SessionStoreMemory)
	switch cfg.SessionStore {
	case SessionStoreMemory, SessionStoreRedis, SessionStorePostgres:
	default:
		return nil, fmt.Errorf("FA_SESSION_STORE: недопустимое значение %q, допустимые: memory, redis, postgres", cfg.SessionStore)
	}

	cfg.SessionSecret = getEnvDefault("FA_SESSION_SECRET", "")

	// FA_SESSION_TTL — время жизни сессии в хранилище (по умолчанию 24h)
	cfg.SessionTTL, err = getEnvDuration("FA_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FA_SESSION_TTL: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("FA_SESSION_TTL: значение должно быть положительным")
	}

	cfg.SessionCacheSize, err = getEnvInt("FA_SESSION_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("FA_SESSION_CACHE_SIZE: %w", err)
	}
	if cfg.SessionCacheSize < 1 {
		return nil, fmt.Errorf("FA_SESSION_CACHE_SIZE: значение %d должно быть не меньше 1", cfg.SessionCacheSize)
	}

	cfg.SessionPurgeInterval, err = getEnvDuration("FA_SESSION_PURGE_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FA_SESSION_PURGE_INTERVAL: %w", err)
	}
	if cfg.SessionPurgeInterval <= 0 {
		return nil, fmt.Errorf("FA_SESSION_PURGE_INTERVAL: значение должно быть положительным")
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("FA_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("FA_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("FA_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("FA_REDIS_DB: %w", err)
	}
	if cfg.SessionStore == SessionStoreRedis && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("FA_REDIS_ADDR: обязательна при FA_SESSION_STORE=redis")
	}

	// --- PostgreSQL ---

	if cfg.SessionStore == SessionStorePostgres {
		if err := loadDB(cfg); err != nil {
			return nil, err
		}
	}

	// --- Интерфейс ---

	cfg.DefaultPageSize, err = getEnvInt("FA_DEFAULT_PAGE_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("FA_DEFAULT_PAGE_SIZE: %w", err)
	}
	if !IsPageSize(cfg.DefaultPageSize) {
		return nil, fmt.Errorf("FA_DEFAULT_PAGE_SIZE: значение %d не из набора %v", cfg.DefaultPageSize, PageSizes)
	}

	cfg.SuccessRedirectDelay, err = getEnvDuration("FA_SUCCESS_REDIRECT_DELAY", 1500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("FA_SUCCESS_REDIRECT_DELAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("FA_DEPHEALTH_GROUP", "fleetdesk")
	cfg.DephealthCheckInterval, err = getEnvDuration("FA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("FA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDB читает параметры PostgreSQL (только для FA_SESSION_STORE=postgres).
func loadDB(cfg *Config) error {
	var err error

	if cfg.DBHost, err = getEnvRequired("FA_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("FA_DB_PORT", 5432); err != nil {
		return fmt.Errorf("FA_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("FA_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("FA_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("FA_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("FA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("FA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для golang-migrate и лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// IsPageSize проверяет, входит ли n в набор допустимых размеров страницы.
func IsPageSize(n int) bool {
	for _, s := range PageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// ParseLogLevel преобразует строку уровня логирования в slog.Level.
// Экспортирована для CLI, где уровень задаётся флагом.
func ParseLogLevel(level string) (slog.Level, error) {
	return parseLogLevel(level)
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
