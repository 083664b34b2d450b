// Пакет config — загрузка и валидация конфигурации ri-transfer
// из переменных окружения (и необязательного файла .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultFolderTTL — фиксированный срок жизни папки (7 дней).
const DefaultFolderTTL = 7 * 24 * time.Hour

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальное количество соединений в пуле (0 — значение pgxpool по умолчанию)
	DBMaxConns int

	// --- Хранилище ---

	// Директория с артефактами загруженных файлов
	ContentDir string
	// Максимальный размер тела запроса загрузки в байтах
	MaxUploadSize int64
	// Максимальное количество файлов в одной загрузке
	MaxFiles int
	// Срок жизни папки (expires_at = created_at + FolderTTL), всегда DefaultFolderTTL
	FolderTTL time.Duration

	// --- Кэш папок ---

	CacheSize int
	CacheTTL  time.Duration

	// --- Очистка просроченных папок ---

	SweepEnabled   bool
	SweepInterval  time.Duration
	SweepBatchSize int

	// --- События (RabbitMQ) ---

	// URL брокера; пусто — события не публикуются
	AMQPURL   string
	AMQPQueue string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Если в рабочей директории есть файл .env, его значения подхватываются
// (уже заданные переменные окружения не перезаписываются).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RT_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("RT_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("RT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RT_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// RT_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RT_LOG_LEVEL: %w", err)
	}

	// RT_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("RT_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("RT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RT_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("RT_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("RT_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("RT_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("RT_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RT_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("RT_DB_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("RT_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 0 {
		return nil, fmt.Errorf("RT_DB_MAX_CONNS: значение не может быть отрицательным")
	}

	// --- Хранилище ---

	// RT_CONTENT_DIR — директория артефактов (по умолчанию public/uploads)
	cfg.ContentDir = getEnvDefault("RT_CONTENT_DIR", "public/uploads")

	// RT_MAX_UPLOAD_SIZE — лимит тела запроса (по умолчанию 100 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("RT_MAX_UPLOAD_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("RT_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("RT_MAX_UPLOAD_SIZE: значение должно быть > 0")
	}

	// RT_MAX_FILES — лимит количества файлов (по умолчанию 100)
	cfg.MaxFiles, err = getEnvInt("RT_MAX_FILES", 100)
	if err != nil {
		return nil, fmt.Errorf("RT_MAX_FILES: %w", err)
	}
	if cfg.MaxFiles < 1 {
		return nil, fmt.Errorf("RT_MAX_FILES: значение должно быть >= 1")
	}

	// RT_FOLDER_TTL — срок жизни папки. Политика фиксирована (168h),
	// переменная допускается только с этим значением.
	cfg.FolderTTL, err = getEnvDuration("RT_FOLDER_TTL", DefaultFolderTTL)
	if err != nil {
		return nil, fmt.Errorf("RT_FOLDER_TTL: %w", err)
	}
	if cfg.FolderTTL != DefaultFolderTTL {
		return nil, fmt.Errorf("RT_FOLDER_TTL: срок жизни папки фиксирован (%s), получено %s",
			DefaultFolderTTL, cfg.FolderTTL)
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("RT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("RT_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("RT_CACHE_SIZE: значение должно быть >= 1")
	}

	cfg.CacheTTL, err = getEnvDuration("RT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RT_CACHE_TTL: %w", err)
	}

	// --- Очистка ---

	cfg.SweepEnabled, err = getEnvBool("RT_SWEEP_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("RT_SWEEP_ENABLED: %w", err)
	}

	cfg.SweepInterval, err = getEnvDuration("RT_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RT_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepEnabled && cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("RT_SWEEP_INTERVAL: значение должно быть > 0")
	}

	cfg.SweepBatchSize, err = getEnvInt("RT_SWEEP_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("RT_SWEEP_BATCH_SIZE: %w", err)
	}
	if cfg.SweepBatchSize < 1 || cfg.SweepBatchSize > 10000 {
		return nil, fmt.Errorf("RT_SWEEP_BATCH_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.SweepBatchSize)
	}

	// --- События ---

	cfg.AMQPURL = getEnvDefault("RT_AMQP_URL", "")
	if cfg.AMQPURL != "" {
		if _, err := url.Parse(cfg.AMQPURL); err != nil {
			return nil, fmt.Errorf("RT_AMQP_URL: некорректный URL: %w", err)
		}
	}
	cfg.AMQPQueue = getEnvDefault("RT_AMQP_QUEUE", "ri-transfer.folders")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("RT_DEPHEALTH_GROUP", "ri-transfer")

	cfg.DephealthCheckInterval, err = getEnvDuration("RT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("RT_HTTP_READ_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RT_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("RT_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RT_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("RT_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RT_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("RT_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RT_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
	if c.DBMaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", c.DBMaxConns)
	}
	return dsn
}

// DatabaseURL возвращает URL PostgreSQL без пароля.
// Используется в лейблах метрик topologymetrics.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
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

// getEnvInt64 — то же, что getEnvInt, для размеров в байтах.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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
