package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

// StorageDriver выбирает реализацию хранилища заказов.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
// KafkaBrokers хранится строкой через запятую; пустое значение отключает
// шину и переводит валидацию товаров на встроенный mock-каталог.
type Config struct {
	MetricsAddr   string
	KafkaBrokers  string
	GroupID       string
	ProductsTopic string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
}

// DefaultConfig возвращает конфигурацию по умолчанию для локального запуска.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		GroupID:             "orders-service",
		ProductsTopic:       kafka.TopicValidateProducts,
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPending:    1000,
	}
}

// LoadConfig строит конфигурацию из значений по умолчанию и переменных
// окружения ORDERS_*. KAFKA_BROKERS поддерживается как fallback.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("ORDERS_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("ORDERS_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	} else if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("ORDERS_GROUP_ID"); v != "" {
		cfg.GroupID = v
	}
	if v := os.Getenv("ORDERS_PRODUCTS_TOPIC"); v != "" {
		cfg.ProductsTopic = v
	}
	if v := os.Getenv("ORDERS_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("ORDERS_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("ORDERS_POSTGRES_AUTO_MIGRATE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v := os.Getenv("ORDERS_OUTBOX_POLL_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v := os.Getenv("ORDERS_OUTBOX_BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v := os.Getenv("ORDERS_OUTBOX_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v := os.Getenv("ORDERS_OUTBOX_RETRY_DELAY"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed >= 0 {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v := os.Getenv("ORDERS_OUTBOX_MAX_PENDING"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.OutboxMaxPending = parsed
		}
	}

	return cfg
}

// Brokers возвращает список брокеров из строковой настройки.
func (c Config) Brokers() []string {
	chunks := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}
