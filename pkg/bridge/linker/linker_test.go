package linker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/store"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

type staticTranslator struct {
	out string
	err error
}

func (t staticTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (translate.Result, error) {
	if t.err != nil {
		return translate.Result{}, t.err
	}
	return translate.Result{TranslatedText: t.out, SourceLanguageCode: sourceLang, TargetLanguageCode: targetLang}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func spanish() profile.Profile {
	return profile.ByDigit("3")
}

func TestLink_MirrorsBothRecords(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	dir := directory.New(mem)
	leases := proxy.NewStore(mem)

	// The caller leg wrote its own record first, target side unset.
	caller := directory.Record{
		ConnectionID:                "conn-caller",
		CallStatus:                  directory.StatusConnected,
		CallSid:                     "CA-caller",
		WhichParty:                  directory.PartyCaller,
		SourceLanguageCode:          "en",
		SourceLanguage:              "en-US",
		SourceVoice:                 "Matthew-Generative",
		SourceTranscriptionProvider: "Deepgram",
		SourceTtsProvider:           "Amazon",
		TargetConnectionID:          directory.Unset,
		TargetCallSid:               directory.Unset,
		TargetLanguageCode:          directory.Unset,
		TargetLanguage:              directory.Unset,
		TargetVoice:                 directory.Unset,
		TargetTranscriptionProvider: directory.Unset,
		TargetTtsProvider:           directory.Unset,
	}
	if err := dir.Put(ctx, caller); err != nil {
		t.Fatalf("Put caller: %v", err)
	}
	if _, err := leases.Lease(ctx, "+15550100", "CA-caller", "CA-callee"); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	l := New(dir, leases, staticTranslator{out: "x"}, quietLogger(), nil)
	callee, err := l.Link(ctx, LinkRequest{
		ConnectionID:       "conn-callee",
		CallerConnectionID: "conn-caller",
		LeaseKey:           "+15550100",

		Callee: spanish(),

		CallerLanguageCode:          caller.SourceLanguageCode,
		CallerLanguage:              caller.SourceLanguage,
		CallerVoice:                 caller.SourceVoice,
		CallerTranscriptionProvider: caller.SourceTranscriptionProvider,
		CallerTtsProvider:           caller.SourceTtsProvider,
	})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	// Callee's target side is the caller's source side.
	if callee.WhichParty != directory.PartyCallee {
		t.Fatalf("whichParty = %q", callee.WhichParty)
	}
	if callee.CallSid != "CA-callee" {
		t.Fatalf("callee callSid = %q, want lease-resolved CA-callee", callee.CallSid)
	}
	if callee.TargetConnectionID != "conn-caller" || callee.TargetCallSid != "CA-caller" {
		t.Fatalf("callee target ids = %q/%q", callee.TargetConnectionID, callee.TargetCallSid)
	}
	if callee.TargetLanguageCode != "en" || callee.TargetVoice != "Matthew-Generative" {
		t.Fatalf("callee target settings = %q/%q", callee.TargetLanguageCode, callee.TargetVoice)
	}
	if callee.SourceLanguageCode != "es-MX" {
		t.Fatalf("callee source language = %q", callee.SourceLanguageCode)
	}

	// Caller's target side became the callee's source side.
	got, err := dir.Get(ctx, "conn-caller")
	if err != nil {
		t.Fatalf("Get caller: %v", err)
	}
	if got.TargetConnectionID != "conn-callee" || got.TargetCallSid != "CA-callee" {
		t.Fatalf("caller target ids = %q/%q", got.TargetConnectionID, got.TargetCallSid)
	}
	if got.TargetLanguageCode != "es-MX" || got.TargetVoice != "Lucia-Generative" {
		t.Fatalf("caller target settings = %q/%q", got.TargetLanguageCode, got.TargetVoice)
	}
	if !got.TranslationActive {
		t.Fatal("caller translationActive not set")
	}
	// The caller's own side is untouched by the back-fill.
	if got.SourceLanguageCode != "en" || got.CallSid != "CA-caller" {
		t.Fatalf("caller source side clobbered: %q/%q", got.SourceLanguageCode, got.CallSid)
	}
}

func TestLink_MissingLeaseAbsorbed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	dir := directory.New(mem)
	leases := proxy.NewStore(mem)

	if err := dir.Put(ctx, directory.Record{
		ConnectionID: "conn-caller",
		CallStatus:   directory.StatusConnected,
		CallSid:      "CA-caller",
		WhichParty:   directory.PartyCaller,
	}); err != nil {
		t.Fatalf("Put caller: %v", err)
	}

	l := New(dir, leases, staticTranslator{out: "x"}, quietLogger(), nil)
	rec, err := l.Link(ctx, LinkRequest{
		ConnectionID:       "conn-callee",
		CallSid:            "CA-callee",
		CallerConnectionID: "conn-caller",
		LeaseKey:           "+15550100",
		Callee:             spanish(),
		CallerCallSid:      "CA-caller",
	})
	if err != nil {
		t.Fatalf("Link without lease: %v", err)
	}
	if rec.CallSid != "CA-callee" || rec.TargetCallSid != "CA-caller" {
		t.Fatalf("call sids = %q/%q, want session-parameter fallback", rec.CallSid, rec.TargetCallSid)
	}
}

func TestLink_MissingCallerRecordAbsorbed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(directory.New(mem), proxy.NewStore(mem), staticTranslator{out: "x"}, quietLogger(), nil)

	rec, err := l.Link(ctx, LinkRequest{
		ConnectionID:       "conn-callee",
		CallSid:            "CA-callee",
		CallerConnectionID: "conn-caller",
		Callee:             spanish(),
	})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if rec.ConnectionID != "conn-callee" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestLink_MissingConnectionID(t *testing.T) {
	mem := store.NewMemory()
	l := New(directory.New(mem), proxy.NewStore(mem), staticTranslator{out: "x"}, quietLogger(), nil)
	if _, err := l.Link(context.Background(), LinkRequest{Callee: spanish()}); err == nil {
		t.Fatal("want error for missing connectionId")
	}
}

func TestWelcomeGreeting(t *testing.T) {
	mem := store.NewMemory()

	t.Run("default language passes through", func(t *testing.T) {
		l := New(directory.New(mem), proxy.NewStore(mem), staticTranslator{out: "translated"}, quietLogger(), nil)
		if got := l.WelcomeGreeting(context.Background(), "hello", "en-US"); got != "hello" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("translated outward", func(t *testing.T) {
		l := New(directory.New(mem), proxy.NewStore(mem), staticTranslator{out: "hola"}, quietLogger(), nil)
		if got := l.WelcomeGreeting(context.Background(), "hello", "es-MX"); got != "hola" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("translation failure falls back", func(t *testing.T) {
		l := New(directory.New(mem), proxy.NewStore(mem), staticTranslator{err: context.DeadlineExceeded}, quietLogger(), nil)
		if got := l.WelcomeGreeting(context.Background(), "hello", "es-MX"); got != "hello" {
			t.Fatalf("got %q", got)
		}
	})
}
