// Package proxy holds the short-lived correlation leases that let two
// independently-created call legs discover each other's identifiers. The
// two legs are created by unrelated triggers in possibly different
// processes, so the lease is the only channel between them: written once
// when the second leg's call is placed, read once when that leg's realtime
// channel opens, expired automatically afterwards.
package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/store"
)

// TTL bounds how long an abandoned correlation can linger.
const TTL = 300 * time.Second

// PK is the partition key shared by every lease; the lease key is the sort
// key, scoped to the outbound-call source identity.
const PK = "proxy"

// Lease correlates the Caller and Callee call identifiers under the number
// used to place the Callee's call.
type Lease struct {
	LeaseKey      string `json:"sk" dynamodbav:"sk"`
	CallerCallSid string `json:"callerCallSid" dynamodbav:"callerCallSid"`
	CalleeCallSid string `json:"calleeCallSid" dynamodbav:"calleeCallSid"`
	// LastProxy is the creation time in epoch milliseconds.
	LastProxy int64 `json:"lastProxy" dynamodbav:"lastProxy"`
	// ExpireAt is the absolute expiry in epoch seconds; the table's native
	// TTL removes the item, and Resolve also checks it against the clock so
	// a not-yet-reaped lease still reads as expired.
	ExpireAt int64 `json:"expireAt" dynamodbav:"expireAt"`
}

// Store creates and resolves leases. The clock is injected so expiry is
// testable. Transient store failures are retried with bounded attempts,
// matching the connection directory's store policy.
type Store struct {
	store    store.Store
	now      func() time.Time
	ttl      time.Duration
	attempts int
	sleep    func(context.Context, time.Duration)
}

const defaultAttempts = 3

func NewStore(s store.Store) *Store {
	return &Store{
		store:    s,
		now:      time.Now,
		ttl:      TTL,
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

func (s *Store) key(leaseKey string) store.Key {
	return store.Key{PK: PK, SK: leaseKey}
}

// Lease creates a correlation lease for leaseKey. If a live lease already
// exists for the same key the call fails with a lease_conflict fault
// rather than silently discarding the in-flight correlation. The existence
// check and the write are a single conditional store operation, so two
// racing creations for the same key yield exactly one winner.
func (s *Store) Lease(ctx context.Context, leaseKey, callerCallSid, calleeCallSid string) (Lease, error) {
	if leaseKey == "" {
		return Lease{}, fault.New(fault.KindInvalid, "proxy.lease", "missing lease key")
	}

	now := s.now()
	lease := Lease{
		LeaseKey:      leaseKey,
		CallerCallSid: callerCallSid,
		CalleeCallSid: calleeCallSid,
		LastProxy:     now.UnixMilli(),
		ExpireAt:      now.Add(s.ttl).Unix(),
	}
	err := s.withRetry(ctx, func() error {
		return s.store.PutIfVacant(ctx, s.key(leaseKey), lease, now.Unix())
	})
	if fault.IsLeaseConflict(err) {
		return Lease{}, fault.New(fault.KindLeaseConflict, "proxy.lease",
			fmt.Sprintf("live lease already exists for %s", leaseKey))
	}
	if err != nil {
		return Lease{}, err
	}
	return lease, nil
}

// Resolve returns the live lease for leaseKey. An expired lease is treated
// identically to an absent one.
func (s *Store) Resolve(ctx context.Context, leaseKey string) (Lease, error) {
	var lease Lease
	err := s.withRetry(ctx, func() error {
		return s.store.Get(ctx, s.key(leaseKey), &lease)
	})
	if err != nil {
		return Lease{}, err
	}
	if lease.ExpireAt <= s.now().Unix() {
		return Lease{}, fault.New(fault.KindNotFound, "proxy.resolve",
			fmt.Sprintf("lease for %s expired", leaseKey))
	}
	return lease, nil
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			s.sleep(ctx, time.Duration(attempt)*100*time.Millisecond)
			if ctx.Err() != nil {
				return fault.Wrap(fault.KindUnavailable, "proxy", ctx.Err())
			}
		}
		err = op()
		if err == nil || !fault.IsUnavailable(err) {
			return err
		}
	}
	return err
}
