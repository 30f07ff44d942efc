package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/callbridge/pkg/bridge/cascade"
	"github.com/vango-go/callbridge/pkg/bridge/channel"
	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/linker"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/store"
	"github.com/vango-go/callbridge/pkg/bridge/telephony"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

type prefixTranslator struct{}

func (prefixTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (translate.Result, error) {
	return translate.Result{
		TranslatedText:     "[" + targetLang + "] " + text,
		SourceLanguageCode: sourceLang,
		TargetLanguageCode: targetLang,
	}, nil
}

type fakeCalls struct {
	mu        sync.Mutex
	placed    []telephony.CallRequest
	completed chan string
	nextSid   string
}

func newFakeCalls() *fakeCalls {
	return &fakeCalls{completed: make(chan string, 4), nextSid: "CA-out-1"}
}

func (f *fakeCalls) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.PlacedCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return telephony.PlacedCall{CallSid: f.nextSid}, nil
}

func (f *fakeCalls) CompleteCall(ctx context.Context, callSid string) error {
	f.completed <- callSid
	return nil
}

func (f *fakeCalls) lastPlaced(t *testing.T) telephony.CallRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.placed) == 0 {
		t.Fatal("no call placed")
	}
	return f.placed[len(f.placed)-1]
}

type testEnv struct {
	cfg      config.Config
	dir      *directory.Directory
	leases   *proxy.Store
	profiles *profile.Catalog
	registry *channel.Registry
	calls    *fakeCalls
	linker   *linker.Linker
	cascade  *cascade.Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := directory.New(mem)
	leases := proxy.NewStore(mem)
	lk := linker.New(dir, leases, prefixTranslator{}, logger, nil)
	registry := channel.NewRegistry()
	calls := newFakeCalls()
	coord := cascade.New(dir, registry, calls, prefixTranslator{}, logger, nil)
	coord.SetGrace(time.Millisecond)
	return &testEnv{
		cfg: config.Config{
			PublicBaseURL:      "https://bridge.example.com",
			AgentNumber:        "+15550999",
			DefaultFrom:        "+15550100",
			WSWriteTimeout:     time.Second,
			WSHandshakeTimeout: time.Second,
		},
		dir:      dir,
		leases:   leases,
		profiles: profile.NewCatalog(mem),
		registry: registry,
		calls:    calls,
		linker:   lk,
		cascade:  coord,
	}
}

func (e *testEnv) initiator(logger *slog.Logger) *CallInitiator {
	return &CallInitiator{
		Config:   e.cfg,
		Profiles: e.profiles,
		Calls:    e.calls,
		Leases:   e.leases,
		Linker:   e.linker,
		Logger:   logger,
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLanguageSelector(t *testing.T) {
	rec := httptest.NewRecorder()
	LanguageSelectorHandler{Logger: quiet()}.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/language-selector", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `action="/call-setup"`) {
		t.Fatalf("menu does not post to call-setup:\n%s", body)
	}
	if !strings.Contains(body, "press 1") {
		t.Fatalf("menu missing English prompt:\n%s", body)
	}
}

func TestCallSetup_DigitSelectsProfile(t *testing.T) {
	env := newTestEnv(t)
	h := CallSetupHandler{Config: env.cfg, Profiles: env.profiles, Linker: env.linker, Logger: quiet()}

	form := url.Values{
		"From":       {"+15550111"},
		"To":         {"+15550100"},
		"AccountSid": {"AC123"},
		"CallSid":    {"CA-caller"},
		"Digits":     {"3"},
	}
	req := httptest.NewRequest(http.MethodPost, "/call-setup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `url="wss://bridge.example.com/relay"`) {
		t.Fatalf("missing relay url:\n%s", body)
	}
	// Digit 3 is Spanish; the greeting is localized outward.
	if !strings.Contains(body, `welcomeGreeting="[es-MX] `+CallerGreeting+`"`) {
		t.Fatalf("greeting not localized:\n%s", body)
	}
	for _, want := range []string{
		`name="sourceLanguageCode" value="es-MX"`,
		`name="whichParty" value="caller"`,
		`name="translationActive" value="false"`,
		`name="targetConnectionId" value="notset"`,
		`name="SourceCallSid" value="CA-caller"`,
		`name="SortKey" value="+15550111"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q:\n%s", want, body)
		}
	}
}

func TestCallSetup_NoDigitsUsesStoredProfile(t *testing.T) {
	env := newTestEnv(t)
	if err := env.profiles.Save(context.Background(), "+15550111", profile.ByDigit("2")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	h := CallSetupHandler{Config: env.cfg, Profiles: env.profiles, Linker: env.linker, Logger: quiet()}

	form := url.Values{"From": {"+15550111"}, "To": {"+15550100"}, "CallSid": {"CA-caller"}}
	req := httptest.NewRequest(http.MethodPost, "/call-setup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `name="sourceLanguageCode" value="de"`) {
		t.Fatalf("stored profile not used:\n%s", rec.Body.String())
	}
}

func TestInitiateCall_HTTP(t *testing.T) {
	env := newTestEnv(t)
	h := InitiateCallHandler{Initiator: env.initiator(quiet()), Logger: quiet()}

	payload := `{
		"callerConnectionId": "conn-caller",
		"callerCallSid": "CA-caller",
		"to": "+15550100",
		"from": "+15550111",
		"accountSid": "AC123",
		"callerLanguageCode": "es-MX",
		"callerLanguage": "es-MX",
		"callerTranscriptionProvider": "Deepgram",
		"callerTtsProvider": "Amazon",
		"callerVoice": "Lucia-Generative"
	}`
	req := httptest.NewRequest(http.MethodPost, "/initiate-call", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res InitiateCallResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.CalleeCallSid != "CA-out-1" || res.LeaseKey != "+15550100" {
		t.Fatalf("result = %+v", res)
	}

	placed := env.calls.lastPlaced(t)
	if placed.To != env.cfg.AgentNumber || placed.From != "+15550100" {
		t.Fatalf("placed to/from = %q/%q", placed.To, placed.From)
	}
	for _, want := range []string{
		`name="whichParty" value="callee"`,
		`name="translationActive" value="true"`,
		`name="targetConnectionId" value="conn-caller"`,
		`name="targetCallSid" value="CA-caller"`,
		`name="targetLanguageCode" value="es-MX"`,
		`name="parentConnectionId" value="conn-caller"`,
	} {
		if !strings.Contains(placed.TwiML, want) {
			t.Fatalf("callee markup missing %q:\n%s", want, placed.TwiML)
		}
	}

	lease, err := env.leases.Resolve(context.Background(), "+15550100")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if lease.CallerCallSid != "CA-caller" || lease.CalleeCallSid != "CA-out-1" {
		t.Fatalf("lease = %+v", lease)
	}
}

func TestInitiateCall_LeaseConflictTearsDownOutboundLeg(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.leases.Lease(context.Background(), "+15550100", "CA-other", "CA-other-out"); err != nil {
		t.Fatalf("pre-lease: %v", err)
	}
	h := InitiateCallHandler{Initiator: env.initiator(quiet()), Logger: quiet()}

	payload := `{"callerConnectionId":"conn-caller","callerCallSid":"CA-caller","to":"+15550100"}`
	req := httptest.NewRequest(http.MethodPost, "/initiate-call", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	select {
	case sid := <-env.calls.completed:
		if sid != "CA-out-1" {
			t.Fatalf("terminated %q", sid)
		}
	case <-time.After(time.Second):
		t.Fatal("conflicting outbound leg was not terminated")
	}
}

type capturedMessage struct {
	msg channel.Message
}

type chanSender struct {
	ch chan capturedMessage
}

func (s chanSender) Send(ctx context.Context, msg channel.Message) error {
	s.ch <- capturedMessage{msg: msg}
	return nil
}

func dialRelay(t *testing.T, env *testEnv, initiator SecondLegInitiator) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	h := RelayHandler{
		Config:     env.cfg,
		Dir:        env.dir,
		Linker:     env.linker,
		Cascade:    env.cascade,
		Registry:   env.registry,
		Translator: prefixTranslator{},
		Logger:     quiet(),
		Initiator:  initiator,
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, srv
}

func TestRelay_CalleeLinkPromptAndCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The Caller leg is already up in another process: its record exists
	// and its channel is registered here.
	if err := env.dir.Put(ctx, directory.Record{
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
	}); err != nil {
		t.Fatalf("Put caller: %v", err)
	}
	callerCh := chanSender{ch: make(chan capturedMessage, 4)}
	env.registry.Register("conn-caller", callerCh)

	if _, err := env.leases.Lease(ctx, "+15550100", "CA-caller", "CA-callee"); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	conn, _ := dialRelay(t, env, nil)

	setup := relayMessage{
		Type:    "setup",
		CallSid: "CA-callee",
		CustomParameters: map[string]string{
			paramWhichParty:          "callee",
			paramSortKey:             "+15550100",
			paramParentConnectionID:  "conn-caller",
			paramFrom:                "+15550100",
			paramTo:                  "+15550999",
			paramAccountSid:          "AC123",
			paramCallerPhone:         "+15550111",
			paramSourceLanguageCode:  "es-MX",
			paramSourceLanguage:      "es-MX",
			paramSourceVoice:         "Lucia-Generative",
			paramSourceTranscription: "Deepgram",
			paramSourceTts:           "Amazon",
			paramTargetConnectionID:  "conn-caller",
			paramTargetCallSid:       "CA-caller",
			paramTargetLanguageCode:  "en",
			paramTargetLanguage:      "en-US",
			paramTargetVoice:         "Matthew-Generative",
			paramTargetTranscription: "Deepgram",
			paramTargetTts:           "Amazon",
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		t.Fatalf("write setup: %v", err)
	}
	if err := conn.WriteJSON(relayMessage{Type: "prompt", VoicePrompt: "hola", Lang: "es-MX", Last: true}); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	// The prompt is translated into the Caller's language and forwarded.
	select {
	case got := <-callerCh.ch:
		if got.msg.Token != "[en] hola" || !got.msg.Last || got.msg.Type != "text" {
			t.Fatalf("forwarded = %+v", got.msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prompt never reached the caller leg")
	}

	// The link back-filled the Caller's mirrored attributes.
	caller, err := env.dir.Get(ctx, "conn-caller")
	if err != nil {
		t.Fatalf("Get caller: %v", err)
	}
	if caller.TargetLanguageCode != "es-MX" || caller.TargetCallSid != "CA-callee" || !caller.TranslationActive {
		t.Fatalf("caller after link = %+v", caller)
	}

	// Hanging up the Callee cascades: notice to the Caller, then the
	// Caller's call is terminated.
	conn.Close()

	select {
	case got := <-callerCh.ch:
		if got.msg.Token != cascade.Notice || !got.msg.Last {
			t.Fatalf("notice = %+v", got.msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("caller never received the disconnect notice")
	}
	select {
	case sid := <-env.calls.completed:
		if sid != "CA-caller" {
			t.Fatalf("terminated %q", sid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("caller call never terminated")
	}
}

type captureInitiator struct {
	ch chan InitiateCallRequest
}

func (c captureInitiator) Initiate(ctx context.Context, req InitiateCallRequest) (InitiateCallResult, error) {
	c.ch <- req
	return InitiateCallResult{CalleeCallSid: "CA-out-1", LeaseKey: req.To}, nil
}

func TestRelay_CallerSetupTriggersSecondLeg(t *testing.T) {
	env := newTestEnv(t)
	init := captureInitiator{ch: make(chan InitiateCallRequest, 1)}
	conn, _ := dialRelay(t, env, init)

	setup := relayMessage{
		Type:    "setup",
		CallSid: "CA-caller",
		CustomParameters: map[string]string{
			paramWhichParty:          "caller",
			paramFrom:                "+15550111",
			paramTo:                  "+15550100",
			paramAccountSid:          "AC123",
			paramSourceCallSid:       "CA-caller",
			paramTranslationActive:   "false",
			paramSourceLanguageCode:  "es-MX",
			paramSourceLanguage:      "es-MX",
			paramSourceVoice:         "Lucia-Generative",
			paramSourceTranscription: "Deepgram",
			paramSourceTts:           "Amazon",
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		t.Fatalf("write setup: %v", err)
	}

	var req InitiateCallRequest
	select {
	case req = <-init.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("second leg never initiated")
	}
	if req.CallerCallSid != "CA-caller" || req.To != "+15550100" || req.CallerLanguageCode != "es-MX" {
		t.Fatalf("initiate request = %+v", req)
	}

	rec, err := env.dir.Get(context.Background(), req.CallerConnectionID)
	if err != nil {
		t.Fatalf("Get caller record: %v", err)
	}
	if rec.WhichParty != directory.PartyCaller || rec.CallStatus != directory.StatusConnected {
		t.Fatalf("caller record = %+v", rec)
	}
	if rec.TargetConnectionID != directory.Unset || rec.TranslationActive {
		t.Fatalf("caller record should start unlinked: %+v", rec)
	}
}

func TestRelay_RejectsNonSetupFirstFrame(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialRelay(t, env, nil)

	if err := conn.WriteJSON(relayMessage{Type: "prompt", VoicePrompt: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("server kept the channel open without a setup frame")
	}
}
