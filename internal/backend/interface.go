// Package backend opens the durability sink and optional change bus the
// binaries run on, selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"

	"smartbudget/internal/amqp"
	"smartbudget/internal/storage"
)

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
	RedisBackend  BackendType = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend, RedisBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisURL       string
	RedisKeyPrefix string

	// Optional change bus; an empty URL disables it
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Result holds what a backend opened. Changes is nil when AMQP is disabled
// or unreachable at startup.
type Result struct {
	KV      storage.KV
	Changes *amqp.Client
}

// Close releases the bus connection and the store.
func (r *Result) Close() error {
	var errs []error
	if r.Changes != nil {
		errs = append(errs, r.Changes.Close())
	}
	if r.KV != nil {
		errs = append(errs, r.KV.Close())
	}
	return errors.Join(errs...)
}

// Factory creates backends based on configuration
type Factory interface {
	Open(ctx context.Context, config Config) (*Result, error)
}
