package backend

import (
	"context"
	"fmt"

	goredislib "github.com/redis/go-redis/v9"

	"bilancio/internal/amqp"
	"bilancio/internal/lock"
	"bilancio/internal/log"
	"bilancio/internal/notify"
	"bilancio/internal/storage"
	"bilancio/internal/storage/memory"
	"bilancio/internal/storage/mongo"
	"bilancio/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens storage, the locker and the notification sink. On
// failure everything opened so far is closed again.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (b *Backend, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b = &Backend{}
	defer func() {
		if err != nil {
			if cerr := b.Close(); cerr != nil {
				f.logger.Warn("Cleanup after failed backend creation", log.FieldError, cerr)
			}
			b = nil
		}
	}()

	if b.Store, err = f.createStore(ctx, config); err != nil {
		return nil, err
	}
	b.onClose(b.Store.Close)

	if b.Locker, err = f.createLocker(ctx, config, b); err != nil {
		return nil, err
	}

	b.Notifier = notify.NewLog(f.logger)
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			// Notifications are best-effort; the ledger works without the broker.
			f.logger.Warn("Failed to initialize AMQP client, notifications will only be logged", log.FieldError, err)
		} else {
			b.Broker = client
			b.Notifier = notify.NewQueue(client)
			b.onClose(client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized backend",
		"storage", config.Type.String(),
		"lock", string(config.Lock),
		"amqp_enabled", b.Broker != nil)
	return b, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite storage", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MongoBackend:
		store, err := mongo.Connect(ctx, config.MongoURI, config.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		f.logger.Info("Initialized MongoDB storage", "database", config.MongoDatabase)
		return store, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory storage")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createLocker(ctx context.Context, config Config, b *Backend) (lock.Locker, error) {
	if config.Lock != RedisLock {
		return lock.NewLocal(), nil
	}

	client := goredislib.NewClient(&goredislib.Options{Addr: config.RedisAddr})
	b.onClose(client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", config.RedisAddr, err)
	}

	opts := lock.DefaultRedisOptions()
	if config.LockExpiry > 0 {
		opts.Expiry = config.LockExpiry
	}
	f.logger.Debug("Using Redis locks", "addr", config.RedisAddr, "expiry", opts.Expiry)
	return lock.NewRedis(client, opts), nil
}
