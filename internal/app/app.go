// Package app собирает зависимости процессов из конфига.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tip-dispatcher/internal/adapters/chat"
	"tip-dispatcher/internal/adapters/email"
	"tip-dispatcher/internal/adapters/repo"
	"tip-dispatcher/internal/adapters/webhook"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/cache"
	"tip-dispatcher/internal/infra/config"
	"tip-dispatcher/internal/infra/db"
	"tip-dispatcher/internal/infra/queue"
	"tip-dispatcher/internal/usecase/distribution"
	"tip-dispatcher/internal/usecase/selection"
)

// OpenStore открывает хранилище по STORAGE_DRIVER. При migrate применяет миграции.
func OpenStore(ctx context.Context, cfg config.AppConfig, migrate bool) (domain.Store, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		if migrate {
			if err := repo.MigratePostgres(cfg.Storage.PGDSN); err != nil {
				return nil, fmt.Errorf("миграции postgres: %w", err)
			}
		}
		pool, err := db.Connect(ctx, cfg.Storage.PGDSN)
		if err != nil {
			return nil, err
		}
		return repo.NewPostgres(pool), nil
	case config.StorageSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := repo.MigrateSQLite(conn); err != nil {
				conn.Close()
				return nil, fmt.Errorf("миграции sqlite: %w", err)
			}
		}
		return repo.NewSQLite(conn), nil
	default:
		return nil, fmt.Errorf("неизвестный STORAGE_DRIVER %q", cfg.Storage.Driver)
	}
}

// Dispatchers собирает бэкенды доставки. Ненастроенный бэкенд пропускается,
// распространители его типа получат ошибку настройки.
func Dispatchers(cfg config.AppConfig, logger zerolog.Logger) (distribution.Registry, error) {
	var dispatchers []distribution.Dispatcher

	if cfg.SMTP.Host != "" {
		sender, err := email.NewSender(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp: %w", err)
		}
		dispatchers = append(dispatchers, distribution.EmailDispatcher{Sender: sender})
	} else {
		logger.Warn().Msg("SMTP_HOST не задан, email-рассылка отключена")
	}

	cs, err := chatSender(cfg)
	if err != nil {
		return nil, err
	}
	if cs != nil {
		dispatchers = append(dispatchers, distribution.ChatDispatcher{Sender: cs})
	} else {
		logger.Warn().Str("provider", cfg.Chat.Provider).Msg("чат-провайдер не настроен, рассылка в чат отключена")
	}

	dispatchers = append(dispatchers, distribution.WebhookDispatcher{
		Sender: webhook.New(webhook.WithTimeout(cfg.Webhook.Timeout)),
	})
	return distribution.NewRegistry(dispatchers...), nil
}

func chatSender(cfg config.AppConfig) (domain.ChatSender, error) {
	switch cfg.Chat.Provider {
	case config.ChatTelegram:
		if cfg.Chat.TelegramToken == "" {
			return nil, nil
		}
		bot, err := tgbotapi.NewBotAPI(cfg.Chat.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		return chat.NewTelegram(bot, cfg.Chat.TelegramRate), nil
	default:
		if cfg.Chat.SlackWebhookURL == "" {
			return nil, nil
		}
		s, err := chat.NewSlack(cfg.Chat.SlackWebhookURL, &http.Client{Timeout: cfg.Webhook.Timeout})
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		return s, nil
	}
}

// Services собирает сервис выбора и сервис рассылки поверх хранилища.
func Services(store domain.Store, registry distribution.Registry) (*selection.Service, *distribution.Service) {
	sel := selection.NewService(store, store)
	return sel, distribution.NewService(sel, store, store, registry)
}

// Redis создаёт клиента Redis или nil, если REDIS_ADDR не задан.
func Redis(ctx context.Context, cfg config.AppConfig) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Cache возвращает Redis-кэш или кэш в памяти для одной реплики.
func Cache(client redis.UniversalClient) domain.Cache {
	if client == nil {
		return cache.NewMemory()
	}
	return cache.NewRedis(client)
}

// ErrInlineQueue возвращается, когда процессу нужна внешняя очередь, а QUEUE_DRIVER=inline.
var ErrInlineQueue = errors.New("QUEUE_DRIVER=inline: внешняя очередь не настроена")

// Queue открывает очередь задач. Для inline возвращает nil без ошибки.
func Queue(cfg config.AppConfig, client redis.UniversalClient) (domain.DistributeQueue, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Queues.Driver {
	case config.QueueRedis:
		if client == nil {
			return nil, noop, fmt.Errorf("REDIS_ADDR обязателен для QUEUE_DRIVER=%s", config.QueueRedis)
		}
		return queue.NewRedisDistributeQueue(client, cfg.Queues.Distribute), noop, nil
	case config.QueueRabbitMQ:
		q, err := queue.NewRabbitDistributeQueue(cfg.RabbitMQURL, cfg.Queues.Distribute)
		if err != nil {
			return nil, noop, err
		}
		return q, q.Close, nil
	default:
		return nil, noop, nil
	}
}
