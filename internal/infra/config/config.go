package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	QueueInline   = "inline"
	QueueRedis    = "redis"
	QueueRabbitMQ = "rabbitmq"

	ChatSlack    = "slack"
	ChatTelegram = "telegram"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Storage struct {
		Driver     string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
		PGDSN      string `envconfig:"PG_DSN"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"tips.db"`
	} `envconfig:""`

	RedisAddr   string `envconfig:"REDIS_ADDR"`
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Driver     string `envconfig:"QUEUE_DRIVER" default:"inline"`
		Distribute string `envconfig:"DISTRIBUTE_QUEUE_KEY" default:"distribute_jobs"`
	} `envconfig:""`

	SMTP struct {
		Host     string        `envconfig:"SMTP_HOST"`
		Port     int           `envconfig:"SMTP_PORT" default:"587"`
		Username string        `envconfig:"SMTP_USERNAME"`
		Password string        `envconfig:"SMTP_PASSWORD"`
		From     string        `envconfig:"SMTP_FROM"`
		TLS      bool          `envconfig:"SMTP_TLS" default:"false"`
		Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Chat struct {
		Provider        string `envconfig:"CHAT_PROVIDER" default:"slack"`
		SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
		TelegramToken   string `envconfig:"TG_BOT_TOKEN"`
		TelegramRate    int    `envconfig:"TG_RATE_PER_SEC" default:"1"`
	} `envconfig:""`

	Webhook struct {
		Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	} `envconfig:""`

	API struct {
		Token string `envconfig:"API_TOKEN"`
	} `envconfig:""`

	Scheduler struct {
		LeaseTTL time.Duration `envconfig:"LEASE_TTL" default:"5m"`
		Resync   time.Duration `envconfig:"SCHEDULE_RESYNC" default:"1m"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает и проверяет конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Queues.Driver = strings.ToLower(strings.TrimSpace(cfg.Queues.Driver))
	cfg.Chat.Provider = strings.ToLower(strings.TrimSpace(cfg.Chat.Provider))
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность драйверов и их параметров.
func (c AppConfig) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Storage.PGDSN == "" {
			return fmt.Errorf("PG_DSN обязателен для STORAGE_DRIVER=%s", StoragePostgres)
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH обязателен для STORAGE_DRIVER=%s", StorageSQLite)
		}
	default:
		return fmt.Errorf("неизвестный STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Queues.Driver {
	case QueueInline:
	case QueueRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR обязателен для QUEUE_DRIVER=%s", QueueRedis)
		}
	case QueueRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL обязателен для QUEUE_DRIVER=%s", QueueRabbitMQ)
		}
	default:
		return fmt.Errorf("неизвестный QUEUE_DRIVER %q", c.Queues.Driver)
	}
	switch c.Chat.Provider {
	case ChatSlack, ChatTelegram, "":
	default:
		return fmt.Errorf("неизвестный CHAT_PROVIDER %q", c.Chat.Provider)
	}
	return nil
}

// Location возвращает часовой пояс расписаний.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
