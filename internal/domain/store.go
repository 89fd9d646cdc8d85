package domain

import (
	"context"
	"io"
	"time"
)

// IntentStore persists observed intents and their terminal outcomes for audit.
// The solver core treats persistence as best-effort: a store failure must
// never block or fail order processing.
type IntentStore interface {
	Create(ctx context.Context, intent Intent) error
	UpdateStatus(ctx context.Context, orderID string, status IntentStatus, reason string) error
	// ListTerminalBefore returns intents that reached a terminal status
	// strictly before the cutoff, for archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Intent, error)
}

// FillStore persists fill attempts with their transaction hashes.
type FillStore interface {
	Create(ctx context.Context, fill FillRecord) error
}

// PriceCache stores the last known good reference price so a restarted solver
// does not begin with a cold price state.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// LockManager provides a distributed lock used to fence the fill path when
// multiple solver replicas share one wallet. The returned unlock function is
// safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
