// Package store is the durable key-value layer shared by the connection
// directory, the profile catalog, and the proxy correlation store. Every
// read and write goes to the backing table; handler invocations may run in
// different processes, so nothing is cached in memory.
package store

import "context"

// Key addresses one item in the table.
type Key struct {
	PK string
	SK string
}

// Store is an abstract durable key-value table keyed by (pk, sk).
//
// Items are structs tagged with `json`/`dynamodbav` attribute names. Get
// returns a fault with Kind not_found when no item exists at key. Update
// applies a partial attribute set atomically: only the listed attributes
// change, and concurrent updates to disjoint attributes do not conflict.
// The fields map is produced only by typed layers (directory, proxy), which
// check every attribute name against the known schema at their boundary.
//
// PutIfVacant writes item only when key is vacant: no item exists there,
// or the existing item's expireAt epoch-seconds attribute is at or before
// now. The check and the write are one atomic operation; a live occupant
// rejects the write with a lease_conflict fault.
type Store interface {
	Get(ctx context.Context, key Key, out any) error
	Put(ctx context.Context, key Key, item any) error
	PutIfVacant(ctx context.Context, key Key, item any, now int64) error
	Update(ctx context.Context, key Key, fields map[string]any, out any) error
}
