package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// LeaseKey holds the record of the process currently writing the documents.
const LeaseKey = "@smartbudget_owner"

// ErrLeaseHeld is returned by Acquire while another process owns the lease.
var ErrLeaseHeld = errors.New("backend in use by another process")

// LeaseRecord is the stored ownership document.
type LeaseRecord struct {
	Owner     string    `json:"owner"`
	Process   string    `json:"process"`
	Host      string    `json:"host"`
	PID       int       `json:"pid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Lease gives one process exclusive write ownership of the documents in a
// KV. Each process keeps the whole collection in memory and rewrites it on
// every mutation, so two writers would overwrite each other.
//
// Acquire is a load followed by a save, not a compare-and-swap; two
// processes starting within the same instant can both succeed.
type Lease struct {
	kv  KV
	rec LeaseRecord
	ttl time.Duration
	now func() time.Time
}

// NewLease describes ownership by owner (a unique id) for process.
func NewLease(kv KV, owner, process string, ttl time.Duration) *Lease {
	host, _ := os.Hostname()
	return &Lease{
		kv:  kv,
		rec: LeaseRecord{Owner: owner, Process: process, Host: host, PID: os.Getpid()},
		ttl: ttl,
		now: time.Now,
	}
}

// TTL is how long an acquired lease stays valid without renewal.
func (l *Lease) TTL() time.Duration {
	return l.ttl
}

// Acquire takes or renews the lease. It fails with ErrLeaseHeld when an
// unexpired record belongs to someone else.
func (l *Lease) Acquire(ctx context.Context) error {
	now := l.now()
	cur, err := l.current(ctx)
	if err != nil {
		return err
	}
	if cur != nil && cur.Owner != l.rec.Owner && now.Before(cur.ExpiresAt) {
		return fmt.Errorf("%w: %s (pid %d on %s) until %s",
			ErrLeaseHeld, cur.Process, cur.PID, cur.Host, cur.ExpiresAt.Format(time.RFC3339))
	}

	rec := l.rec
	rec.ExpiresAt = now.Add(l.ttl)
	return l.write(ctx, rec)
}

// Release expires the lease if this process still owns it.
func (l *Lease) Release(ctx context.Context) error {
	cur, err := l.current(ctx)
	if err != nil {
		return err
	}
	if cur == nil || cur.Owner != l.rec.Owner {
		return nil
	}
	rec := l.rec
	rec.ExpiresAt = l.now()
	return l.write(ctx, rec)
}

// Holder returns the stored record, or nil when none was ever written.
func (l *Lease) Holder(ctx context.Context) (*LeaseRecord, error) {
	return l.current(ctx)
}

func (l *Lease) current(ctx context.Context) (*LeaseRecord, error) {
	raw, err := l.kv.Load(ctx, LeaseKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load lease: %w", err)
	}
	var rec LeaseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// unreadable records are treated as expired
		return nil, nil
	}
	return &rec, nil
}

func (l *Lease) write(ctx context.Context, rec LeaseRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode lease: %w", err)
	}
	if err := l.kv.Save(ctx, LeaseKey, data); err != nil {
		return fmt.Errorf("save lease: %w", err)
	}
	return nil
}
