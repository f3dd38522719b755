package backend

import (
	"context"
	"errors"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/lock"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

// Backend bundles the infrastructure the services run on.
type Backend struct {
	Store    storage.Store
	Locker   lock.Locker
	Notifier services.Notifier
	// Broker is nil when no AMQP URL is configured.
	Broker *amqp.Client

	cleanups []CleanupFunc
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

func (b *Backend) onClose(fn CleanupFunc) {
	b.cleanups = append(b.cleanups, fn)
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// MongoDB specific
	MongoURI      string
	MongoDatabase string

	Lock       LockType
	RedisAddr  string
	LockExpiry time.Duration

	// Optional; empty URL means notifications are only logged
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of storage backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
	MongoBackend  BackendType = "mongo"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend, MongoBackend:
		return true
	default:
		return false
	}
}

// LockType selects how per-user operations are serialized.
type LockType string

const (
	LocalLock LockType = "local"
	RedisLock LockType = "redis"
)

func (lt LockType) IsValid() bool {
	return lt == LocalLock || lt == RedisLock
}
