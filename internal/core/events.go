package core

import "time"

// EventKind names a change applied to the budget store.
type EventKind string

const (
	EventTransactionAdded   EventKind = "transaction.added"
	EventTransactionUpdated EventKind = "transaction.updated"
	EventTransactionDeleted EventKind = "transaction.deleted"
	EventSettingsUpdated    EventKind = "settings.updated"
)

// ChangeEvent describes one applied mutation. Version is the store version
// after the mutation; it is only ordered among events sharing an Origin,
// which identifies the store instance that produced them. Transaction is set for added and updated events,
// TransactionID for all transaction events, Settings for settings events.
type ChangeEvent struct {
	Kind          EventKind    `json:"kind"`
	Origin        string       `json:"origin,omitempty"`
	Version       uint64       `json:"version"`
	TransactionID string       `json:"transactionId,omitempty"`
	Transaction   *Transaction `json:"transaction,omitempty"`
	Settings      *Settings    `json:"settings,omitempty"`
	At            time.Time    `json:"at"`
}

// IsValid reports whether k is one of the known event kinds.
func (k EventKind) IsValid() bool {
	switch k {
	case EventTransactionAdded, EventTransactionUpdated, EventTransactionDeleted, EventSettingsUpdated:
		return true
	}
	return false
}
