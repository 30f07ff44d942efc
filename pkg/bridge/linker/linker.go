// Package linker builds the cross-reference between the two legs of a
// translated call when the second leg's realtime channel opens.
package linker

import (
	"context"
	"log/slog"

	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

// LinkRequest carries everything the Callee leg's setup message knows:
// its own identifiers and speech settings, and the Caller attributes that
// rode along as session parameters when the outbound call was placed.
type LinkRequest struct {
	ConnectionID string
	CallSid      string

	// CallerConnectionID is the first leg's connection identifier, passed
	// through the outbound call's session parameters.
	CallerConnectionID string
	// LeaseKey is the outbound-call source identity; the proxy lease under
	// it correlates the two call sids.
	LeaseKey string

	From        string
	To          string
	AccountSid  string
	CallerPhone string

	// Callee is this leg's own profile.
	Callee profile.Profile

	// Caller mirrors the opposite leg's settings, copied verbatim from the
	// session parameters.
	CallerLanguageCode          string
	CallerLanguage              string
	CallerLanguageFriendly      string
	CallerVoice                 string
	CallerTranscriptionProvider string
	CallerTtsProvider           string
	CallerCallSid               string
}

// Linker persists the Callee record and back-fills the Caller record so
// each leg points at the other with mirrored attributes.
type Linker struct {
	dir        *directory.Directory
	leases     *proxy.Store
	translator translate.Translator
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func New(dir *directory.Directory, leases *proxy.Store, translator translate.Translator, logger *slog.Logger, m *metrics.Metrics) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{dir: dir, leases: leases, translator: translator, logger: logger, metrics: m}
}

// Link creates the Callee's connection record pointing back at the Caller
// and mirrors the Callee's settings into the Caller's record. A missing
// lease or a not-yet-written Caller record is absorbed: the reciprocal
// record may be created concurrently by the Caller leg's own handler.
func (l *Linker) Link(ctx context.Context, req LinkRequest) (directory.Record, error) {
	if req.ConnectionID == "" {
		return directory.Record{}, fault.New(fault.KindInvalid, "linker.link", "missing connectionId")
	}

	callerCallSid := req.CallerCallSid
	calleeCallSid := req.CallSid
	if req.LeaseKey != "" {
		lease, err := l.leases.Resolve(ctx, req.LeaseKey)
		switch {
		case err == nil:
			if callerCallSid == "" || callerCallSid == directory.Unset {
				callerCallSid = lease.CallerCallSid
			}
			if calleeCallSid == "" {
				calleeCallSid = lease.CalleeCallSid
			}
		case fault.IsNotFound(err):
			l.logger.Warn("no live proxy lease for callee leg, using session parameters",
				"lease_key", req.LeaseKey, "connection_id", req.ConnectionID)
		default:
			return directory.Record{}, err
		}
	}

	rec := directory.Record{
		ConnectionID:      req.ConnectionID,
		CallStatus:        directory.StatusConnected,
		CallSid:           calleeCallSid,
		WhichParty:        directory.PartyCallee,
		TranslationActive: true,

		From:        req.From,
		To:          req.To,
		AccountSid:  req.AccountSid,
		CallerPhone: req.CallerPhone,

		SourceLanguageCode:          req.Callee.LanguageCode,
		SourceLanguage:              req.Callee.Language,
		SourceLanguageFriendly:      req.Callee.LanguageFriendly,
		SourceVoice:                 req.Callee.Voice,
		SourceTranscriptionProvider: req.Callee.TranscriptionProvider,
		SourceTtsProvider:           req.Callee.TtsProvider,

		TargetConnectionID:          req.CallerConnectionID,
		TargetCallSid:               callerCallSid,
		TargetLanguageCode:          req.CallerLanguageCode,
		TargetLanguage:              req.CallerLanguage,
		TargetLanguageFriendly:      req.CallerLanguageFriendly,
		TargetVoice:                 req.CallerVoice,
		TargetTranscriptionProvider: req.CallerTranscriptionProvider,
		TargetTtsProvider:           req.CallerTtsProvider,
	}
	if err := l.dir.Put(ctx, rec); err != nil {
		return directory.Record{}, err
	}

	if req.CallerConnectionID == "" || req.CallerConnectionID == directory.Unset {
		l.logger.Warn("callee leg has no caller connection to link back to",
			"connection_id", req.ConnectionID)
		return rec, nil
	}

	update := directory.MirrorOf(rec)
	active := true
	update.TranslationActive = &active
	if _, err := l.dir.Update(ctx, req.CallerConnectionID, update); err != nil {
		if fault.IsNotFound(err) {
			// The caller leg's handler owns that record and may not have
			// written it yet.
			l.logger.Warn("caller record not found while linking, relying on concurrent creation",
				"caller_connection_id", req.CallerConnectionID, "connection_id", req.ConnectionID)
			return rec, nil
		}
		return directory.Record{}, err
	}

	l.logger.Info("legs linked",
		"connection_id", req.ConnectionID,
		"caller_connection_id", req.CallerConnectionID,
		"callee_call_sid", calleeCallSid,
		"caller_call_sid", callerCallSid,
	)
	return rec, nil
}

// WelcomeGreeting localizes a greeting into the leg's language. The
// session must never fail to open over a greeting, so translation errors
// fall back to the untranslated text.
func (l *Linker) WelcomeGreeting(ctx context.Context, greeting, languageCode string) string {
	if profile.IsDefaultLanguage(languageCode) {
		return greeting
	}
	res, err := l.translator.Translate(ctx, greeting, profile.DefaultLanguageCode, languageCode)
	if err != nil {
		l.metrics.RecordTranslation("selector", "error")
		l.logger.Warn("greeting translation failed, using default language",
			"language_code", languageCode, "error", err)
		return greeting
	}
	l.metrics.RecordTranslation("selector", "ok")
	return res.TranslatedText
}
