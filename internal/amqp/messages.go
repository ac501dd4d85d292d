package amqp

import (
	"encoding/json"
	"errors"
	"fmt"

	"smartbudget/internal/core"
)

// ErrMalformedMessage marks deliveries that can never be handled.
var ErrMalformedMessage = errors.New("malformed change message")

// EncodeChange serializes a change event for publishing.
func EncodeChange(ev core.ChangeEvent) ([]byte, error) {
	if err := validateChange(ev); err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// DecodeChange parses and validates a delivered change event.
func DecodeChange(data []byte) (core.ChangeEvent, error) {
	var ev core.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.ChangeEvent{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if err := validateChange(ev); err != nil {
		return core.ChangeEvent{}, err
	}
	return ev, nil
}

func validateChange(ev core.ChangeEvent) error {
	if !ev.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, ev.Kind)
	}
	switch ev.Kind {
	case core.EventTransactionAdded, core.EventTransactionUpdated:
		if ev.Transaction == nil || ev.Transaction.ID == "" {
			return fmt.Errorf("%w: %s without transaction", ErrMalformedMessage, ev.Kind)
		}
	case core.EventTransactionDeleted:
		if ev.TransactionID == "" {
			return fmt.Errorf("%w: %s without transaction id", ErrMalformedMessage, ev.Kind)
		}
	case core.EventSettingsUpdated:
		if ev.Settings == nil {
			return fmt.Errorf("%w: %s without settings", ErrMalformedMessage, ev.Kind)
		}
	}
	return nil
}
