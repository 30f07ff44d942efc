// Package cascade propagates one leg's termination to the linked leg:
// exactly-once teardown with a localized spoken notice.
package cascade

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-go/callbridge/pkg/bridge/channel"
	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/telephony"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

// Notice is the termination text spoken to the surviving leg, composed in
// the system default language and translated outward.
const Notice = "The other person has ended the call."

// DefaultGrace is how long the coordinator waits after delivering the
// notice before tearing the underlying call down, so the text can be
// spoken aloud. A fixed interval regardless of notice length is a known
// limitation; delivery acknowledgment would be more robust.
const DefaultGrace = 2 * time.Second

// Notifier delivers a final message over a leg's realtime channel.
type Notifier interface {
	Send(ctx context.Context, connectionID string, msg channel.Message) error
}

// Result names the outcome of one disconnect transition.
type Result string

const (
	// ResultNoop: the closing leg had no record; already torn down.
	ResultNoop Result = "noop"
	// ResultUnlinked: the closing leg never linked to an opposite leg.
	ResultUnlinked Result = "unlinked"
	// ResultCascaded: the opposite leg was notified and terminated.
	ResultCascaded Result = "cascaded"
	// ResultOtherAlreadyDisconnected: both sides already tore down.
	ResultOtherAlreadyDisconnected Result = "other_already_disconnected"
)

// Coordinator drives the disconnect state machine for a pair of legs.
// There is no locking across processes: correctness relies on the
// idempotent disconnected transition and on cascading only when the other
// side's last committed status is still connected.
type Coordinator struct {
	dir        *directory.Directory
	notifier   Notifier
	calls      telephony.CallControl
	translator translate.Translator
	logger     *slog.Logger
	metrics    *metrics.Metrics

	grace time.Duration
	sleep func(context.Context, time.Duration)
}

func New(dir *directory.Directory, notifier Notifier, calls telephony.CallControl, translator translate.Translator, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		dir:        dir,
		notifier:   notifier,
		calls:      calls,
		translator: translator,
		logger:     logger,
		metrics:    m,
		grace:      DefaultGrace,
		sleep:      sleepCtx,
	}
}

// SetGrace overrides the notice grace interval.
func (c *Coordinator) SetGrace(d time.Duration) {
	if d > 0 {
		c.grace = d
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

// Disconnect handles the closing of one leg's realtime channel.
//
// The closing leg is always marked disconnected first; that write stands
// even when the other side's teardown fails, since the leg is physically
// gone regardless. The cascade onto the opposite leg fires only when its
// last committed status is still connected. If both legs close inside the
// same round-trip window, both may cascade; the redundant termination is
// harmless because terminating an already-terminated call is success.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) (Result, error) {
	rec, err := c.dir.Get(ctx, connectionID)
	if fault.IsNotFound(err) {
		// Already torn down (or never established).
		c.metrics.RecordCascade(string(ResultNoop))
		c.logger.Info("disconnect for unknown leg, nothing to do", "connection_id", connectionID)
		return ResultNoop, nil
	}
	if err != nil {
		c.metrics.RecordError("cascade", string(fault.KindOf(err)))
		return "", err
	}

	var other directory.Record
	otherKnown := false
	if rec.Linked() {
		other, err = c.dir.Get(ctx, rec.TargetConnectionID)
		switch {
		case err == nil:
			otherKnown = true
		case fault.IsNotFound(err):
		default:
			c.metrics.RecordError("cascade", string(fault.KindOf(err)))
			return "", err
		}
	}

	if _, err := c.dir.Disconnect(ctx, connectionID); err != nil && !fault.IsNotFound(err) {
		c.metrics.RecordError("cascade", string(fault.KindOf(err)))
		return "", err
	}

	if !otherKnown {
		c.metrics.RecordCascade(string(ResultUnlinked))
		c.logger.Info("leg disconnected with no linked opposite leg",
			"connection_id", connectionID, "which_party", rec.WhichParty)
		return ResultUnlinked, nil
	}

	if other.CallStatus != directory.StatusConnected {
		c.metrics.RecordCascade(string(ResultOtherAlreadyDisconnected))
		c.logger.Info("opposite leg already disconnected, no cascade",
			"connection_id", connectionID, "target_connection_id", other.ConnectionID)
		return ResultOtherAlreadyDisconnected, nil
	}

	if err := c.cascade(ctx, rec, other); err != nil {
		c.metrics.RecordError("cascade", string(fault.KindOf(err)))
		return "", err
	}
	c.metrics.RecordCascade(string(ResultCascaded))
	return ResultCascaded, nil
}

func (c *Coordinator) cascade(ctx context.Context, closed, other directory.Record) error {
	if _, err := c.dir.Disconnect(ctx, other.ConnectionID); err != nil && !fault.IsNotFound(err) {
		return err
	}

	notice := Notice
	if !profile.IsDefaultLanguage(other.SourceLanguageCode) {
		res, err := c.translator.Translate(ctx, Notice, profile.DefaultLanguageCode, other.SourceLanguageCode)
		if err != nil {
			return err
		}
		notice = res.TranslatedText
	}

	if err := c.notifier.Send(ctx, other.ConnectionID, channel.Text(notice, true)); err != nil {
		return err
	}
	c.metrics.RecordRelayedToken(string(other.WhichParty))

	// Let the notice be spoken before the call drops.
	c.sleep(ctx, c.grace)

	if err := c.calls.CompleteCall(ctx, other.CallSid); err != nil {
		return err
	}

	c.logger.Info("cascade complete",
		"connection_id", closed.ConnectionID,
		"target_connection_id", other.ConnectionID,
		"target_call_sid", other.CallSid,
	)
	return nil
}
