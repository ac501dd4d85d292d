// Package storage is the durability sink for the budget store: a key-value
// interface holding whole serialized documents, plus the envelope format
// those documents are written in.
package storage

import (
	"context"
	"errors"
)

// Document keys.
const (
	TransactionsKey = "@smartbudget_transactions"
	SettingsKey     = "@smartbudget_settings"
)

// ErrNotFound is returned by Load when no document is stored under the key.
var ErrNotFound = errors.New("document not found")

// KV stores opaque documents by key. Implementations must be safe for
// concurrent use.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}
