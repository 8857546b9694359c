// Пакет config — загрузка и валидация конфигурации хранилища документов
// из переменных окружения (префикс DS_).
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

// Бэкенды blob-хранилища.
const (
	BlobBackendFS     = "fs"
	BlobBackendS3     = "s3"
	BlobBackendGridFS = "gridfs"
)

// Бэкенды хранилища записей.
const (
	RecordBackendMemory   = "memory"
	RecordBackendPostgres = "postgres"
)

// Config содержит все параметры конфигурации.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Порог inline-хранения в байтах: размер <= порога хранится inline
	InlineThreshold int64
	// Максимальный размер тела запроса загрузки
	MaxUploadSize int64
	// Режим строгой проверки целостности при чтении
	StrictIntegrity bool

	// Бэкенд blob-хранилища: fs, s3, gridfs
	BlobBackend string
	// Директория blob для бэкенда fs
	BlobDir string
	// Директория WAL
	WALDir string
	// Ограничение длительности записи одного blob
	BlobPutTimeout time.Duration

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
	S3PathStyle bool

	MongoURI      string
	MongoDatabase string
	GridFSBucket  string

	// Бэкенд записей документов: memory, postgres
	RecordBackend string
	DBHost        string
	DBPort        int
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	// Размер LRU-кэша записей (0 — без кэша)
	RecordCacheSize int
	RecordCacheTTL  time.Duration

	// Интервал фоновой проверки целостности (0 — только по запросу)
	AuditInterval time.Duration
	// Количество попыток при сбоях хранилища
	RetryAttempts int
	// Базовая задержка экспоненциального backoff
	RetryBaseDelay time.Duration
	// Размер очереди обновлений download_count
	DownloadQueueSize int

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// DS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("DS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DS_INLINE_THRESHOLD — порог inline-хранения (по умолчанию 10 MiB)
	cfg.InlineThreshold, err = getEnvInt64("DS_INLINE_THRESHOLD", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("DS_INLINE_THRESHOLD: %w", err)
	}
	if cfg.InlineThreshold < 0 {
		return nil, fmt.Errorf("DS_INLINE_THRESHOLD: значение не может быть отрицательным")
	}

	// DS_MAX_UPLOAD_SIZE — с запасом на multipart-обвязку (по умолчанию 101 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("DS_MAX_UPLOAD_SIZE", 101<<20)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("DS_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	cfg.StrictIntegrity, err = getEnvBool("DS_STRICT_INTEGRITY", false)
	if err != nil {
		return nil, fmt.Errorf("DS_STRICT_INTEGRITY: %w", err)
	}

	if err := cfg.loadBlob(); err != nil {
		return nil, err
	}
	if err := cfg.loadRecords(); err != nil {
		return nil, err
	}

	// DS_AUDIT_INTERVAL — интервал проверки целостности (по умолчанию 6h)
	cfg.AuditInterval, err = getEnvDuration("DS_AUDIT_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_AUDIT_INTERVAL: %w", err)
	}

	cfg.RetryAttempts, err = getEnvInt("DS_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("DS_RETRY_ATTEMPTS: %w", err)
	}
	if cfg.RetryAttempts < 1 {
		return nil, fmt.Errorf("DS_RETRY_ATTEMPTS: значение должно быть >= 1")
	}

	cfg.RetryBaseDelay, err = getEnvDuration("DS_RETRY_BASE_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("DS_RETRY_BASE_DELAY: %w", err)
	}
	if cfg.RetryBaseDelay <= 0 {
		return nil, fmt.Errorf("DS_RETRY_BASE_DELAY: значение должно быть положительным")
	}

	cfg.DownloadQueueSize, err = getEnvInt("DS_DOWNLOAD_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DS_DOWNLOAD_QUEUE_SIZE: %w", err)
	}
	if cfg.DownloadQueueSize < 1 {
		return nil, fmt.Errorf("DS_DOWNLOAD_QUEUE_SIZE: значение должно быть >= 1")
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("DS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("DS_DEPHEALTH_GROUP", "docstore")
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	cfg.HTTPReadTimeout, err = getEnvDuration("DS_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_READ_TIMEOUT: %w", err)
	}
	// Загрузка до 100 MiB на медленном канале требует запаса
	cfg.HTTPWriteTimeout, err = getEnvDuration("DS_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("DS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadBlob читает параметры blob-хранилища и WAL.
func (cfg *Config) loadBlob() error {
	var err error

	cfg.BlobBackend = getEnvDefault("DS_BLOB_BACKEND", BlobBackendFS)
	cfg.BlobDir = getEnvDefault("DS_BLOB_DIR", "./data/blobs")
	cfg.WALDir = getEnvDefault("DS_WAL_DIR", "./data/wal")

	cfg.BlobPutTimeout, err = getEnvDuration("DS_BLOB_PUT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return fmt.Errorf("DS_BLOB_PUT_TIMEOUT: %w", err)
	}
	if cfg.BlobPutTimeout <= 0 {
		return fmt.Errorf("DS_BLOB_PUT_TIMEOUT: значение должно быть положительным")
	}

	switch cfg.BlobBackend {
	case BlobBackendFS:
	case BlobBackendS3:
		cfg.S3Bucket, err = getEnvRequired("DS_S3_BUCKET")
		if err != nil {
			return err
		}
		cfg.S3Region = getEnvDefault("DS_S3_REGION", "us-east-1")
		cfg.S3Endpoint = getEnvDefault("DS_S3_ENDPOINT", "")
		cfg.S3AccessKey = getEnvDefault("DS_S3_ACCESS_KEY", "")
		cfg.S3SecretKey = getEnvDefault("DS_S3_SECRET_KEY", "")
		cfg.S3Prefix = getEnvDefault("DS_S3_PREFIX", "documents/")
		cfg.S3PathStyle, err = getEnvBool("DS_S3_PATH_STYLE", cfg.S3Endpoint != "")
		if err != nil {
			return fmt.Errorf("DS_S3_PATH_STYLE: %w", err)
		}
		if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
			return fmt.Errorf("DS_S3_ACCESS_KEY и DS_S3_SECRET_KEY задаются вместе")
		}
	case BlobBackendGridFS:
		cfg.MongoURI, err = getEnvRequired("DS_MONGO_URI")
		if err != nil {
			return err
		}
		cfg.MongoDatabase = getEnvDefault("DS_MONGO_DATABASE", "docstore")
		cfg.GridFSBucket = getEnvDefault("DS_GRIDFS_BUCKET", "documents")
	default:
		return fmt.Errorf("DS_BLOB_BACKEND: недопустимое значение %q, допустимые: fs, s3, gridfs", cfg.BlobBackend)
	}
	return nil
}

// loadRecords читает параметры хранилища записей.
func (cfg *Config) loadRecords() error {
	var err error

	cfg.RecordBackend = getEnvDefault("DS_RECORD_BACKEND", RecordBackendMemory)
	switch cfg.RecordBackend {
	case RecordBackendMemory:
	case RecordBackendPostgres:
		required := []struct {
			key string
			dst *string
		}{
			{"DS_DB_HOST", &cfg.DBHost},
			{"DS_DB_NAME", &cfg.DBName},
			{"DS_DB_USER", &cfg.DBUser},
			{"DS_DB_PASSWORD", &cfg.DBPassword},
		}
		for _, r := range required {
			if *r.dst, err = getEnvRequired(r.key); err != nil {
				return err
			}
		}
		cfg.DBPort, err = getEnvInt("DS_DB_PORT", 5432)
		if err != nil {
			return fmt.Errorf("DS_DB_PORT: %w", err)
		}
		cfg.DBSSLMode = getEnvDefault("DS_DB_SSL_MODE", "disable")
	default:
		return fmt.Errorf("DS_RECORD_BACKEND: недопустимое значение %q, допустимые: memory, postgres", cfg.RecordBackend)
	}

	cfg.RecordCacheSize, err = getEnvInt("DS_RECORD_CACHE_SIZE", 1000)
	if err != nil {
		return fmt.Errorf("DS_RECORD_CACHE_SIZE: %w", err)
	}
	if cfg.RecordCacheSize < 0 {
		return fmt.Errorf("DS_RECORD_CACHE_SIZE: значение не может быть отрицательным")
	}

	cfg.RecordCacheTTL, err = getEnvDuration("DS_RECORD_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return fmt.Errorf("DS_RECORD_CACHE_TTL: %w", err)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения pgx.
func (cfg *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.DBUser), url.QueryEscape(cfg.DBPassword),
		cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (cfg *Config) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(cfg.DatabaseDSN(), "postgres")
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
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

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
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
