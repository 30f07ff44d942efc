// Package directory is the durable per-leg session state: one Record per
// realtime connection, with idempotent status transitions and partial
// mirrored-attribute updates once the opposite leg is known.
package directory

import (
	"context"
	"time"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/store"
)

// Directory reads and writes connection records. Transient store failures
// are retried with bounded attempts; after exhaustion the error surfaces
// and the invocation fails closed.
type Directory struct {
	store    store.Store
	attempts int
	sleep    func(context.Context, time.Duration)
}

const defaultAttempts = 3

func New(s store.Store) *Directory {
	return &Directory{
		store:    s,
		attempts: defaultAttempts,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (d *Directory) key(connectionID string) store.Key {
	return store.Key{PK: connectionID, SK: SKConnection}
}

// Get returns the record for one leg. A not_found fault is a branchable
// condition for the caller, not a failure.
func (d *Directory) Get(ctx context.Context, connectionID string) (Record, error) {
	var rec Record
	err := d.withRetry(ctx, func() error {
		return d.store.Get(ctx, d.key(connectionID), &rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Put inserts or fully replaces a leg's record. Used at leg creation.
func (d *Directory) Put(ctx context.Context, rec Record) error {
	if rec.ConnectionID == "" {
		return fault.New(fault.KindInvalid, "directory.put", "missing connectionId")
	}
	rec.RecordType = SKConnection
	return d.withRetry(ctx, func() error {
		return d.store.Put(ctx, d.key(rec.ConnectionID), rec)
	})
}

// Update applies a typed partial update and returns the updated record.
// Re-applying a disconnected status is a plain write of the same value, so
// redelivered close events stay no-ops.
func (d *Directory) Update(ctx context.Context, connectionID string, u Update) (Record, error) {
	fields := u.fields()
	if len(fields) == 0 {
		return Record{}, fault.New(fault.KindInvalid, "directory.update", "empty update")
	}
	var rec Record
	err := d.withRetry(ctx, func() error {
		return d.store.Update(ctx, d.key(connectionID), fields, &rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Disconnect flips a leg to disconnected. Idempotent: disconnected is a
// fixed point and repeated applications succeed.
func (d *Directory) Disconnect(ctx context.Context, connectionID string) (Record, error) {
	status := StatusDisconnected
	return d.Update(ctx, connectionID, Update{CallStatus: &status})
}

func (d *Directory) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < d.attempts; attempt++ {
		if attempt > 0 {
			d.sleep(ctx, time.Duration(attempt)*100*time.Millisecond)
			if ctx.Err() != nil {
				return fault.Wrap(fault.KindUnavailable, "directory", ctx.Err())
			}
		}
		err = op()
		if err == nil || !fault.IsUnavailable(err) {
			return err
		}
	}
	return err
}
