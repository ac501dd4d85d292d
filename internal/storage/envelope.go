package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"smartbudget/internal/core"
)

// SchemaVersion is written into every envelope.
const SchemaVersion = 1

var ErrUnsupportedSchema = errors.New("unsupported schema version")

type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	SavedAt       time.Time       `json:"savedAt"`
	Data          json.RawMessage `json:"data"`
}

func encode(payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	out, err := json.Marshal(envelope{SchemaVersion: SchemaVersion, SavedAt: now.UTC(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return out, nil
}

// unwrap returns the payload of an envelope. A document that is not an
// envelope is returned as is, so unversioned documents remain readable.
func unwrap(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	if trimmed[0] != '{' {
		return trimmed, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if _, ok := fields["schemaVersion"]; !ok {
		return trimmed, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.SchemaVersion < 1 || env.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, env.SchemaVersion)
	}
	if len(env.Data) == 0 {
		return nil, errors.New("envelope without data")
	}
	return env.Data, nil
}

// EncodeTransactions serializes the full transaction sequence.
func EncodeTransactions(txs []core.Transaction, now time.Time) ([]byte, error) {
	if txs == nil {
		txs = []core.Transaction{}
	}
	return encode(txs, now)
}

// DecodeTransactions parses a document written by EncodeTransactions or an
// unversioned JSON array of transactions.
func DecodeTransactions(raw []byte) ([]core.Transaction, error) {
	data, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var rows []storedTransaction
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	txs := make([]core.Transaction, len(rows))
	for i, r := range rows {
		txs[i] = r.Transaction
		txs[i].Date = time.Time(r.Date)
		txs[i].CreatedAt = time.Time(r.CreatedAt)
	}
	return txs, nil
}

// storedTransaction shadows the time fields of core.Transaction so older
// documents that hold epoch milliseconds still decode.
type storedTransaction struct {
	core.Transaction
	Date      storedTime `json:"date"`
	CreatedAt storedTime `json:"createdAt"`
}

// storedTime is an RFC 3339 string or a number of milliseconds since the epoch.
type storedTime time.Time

func (t *storedTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v time.Time
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = storedTime(v)
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("time %s: want RFC 3339 string or epoch milliseconds", b)
	}
	*t = storedTime(time.UnixMilli(ms).UTC())
	return nil
}

// EncodeSettings serializes the settings record.
func EncodeSettings(s core.Settings, now time.Time) ([]byte, error) {
	return encode(s, now)
}

// DecodeSettings parses a document written by EncodeSettings or an
// unversioned settings object. Fields missing from the document keep their
// default values.
func DecodeSettings(raw []byte) (core.Settings, error) {
	data, err := unwrap(raw)
	if err != nil {
		return core.Settings{}, err
	}
	s := core.DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return core.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}
