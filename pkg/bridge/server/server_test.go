package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/store"
	"github.com/vango-go/callbridge/pkg/bridge/telephony"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

type noopTranslator struct{}

func (noopTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (translate.Result, error) {
	return translate.Result{TranslatedText: text, SourceLanguageCode: sourceLang, TargetLanguageCode: targetLang}, nil
}

type noopCalls struct{}

func (noopCalls) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.PlacedCall, error) {
	return telephony.PlacedCall{CallSid: "CA-test"}, nil
}

func (noopCalls) CompleteCall(ctx context.Context, callSid string) error { return nil }

func newServer(t *testing.T) *Server {
	t.Helper()
	mem := store.NewMemory()
	cfg := config.Config{
		PublicBaseURL:      "https://bridge.example.com",
		AgentNumber:        "+15550999",
		GraceDuration:      time.Millisecond,
		WSWriteTimeout:     time.Second,
		WSHandshakeTimeout: time.Second,
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Dir:        directory.New(mem),
		Leases:     proxy.NewStore(mem),
		Profiles:   profile.NewCatalog(mem),
		Calls:      noopCalls{},
		Translator: noopTranslator{},
		Metrics:    metrics.New("callbridge_test"),
	})
}

func TestRoutes(t *testing.T) {
	h := newServer(t).Handler()

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/language-selector", http.StatusOK},
		{http.MethodGet, "/call-setup", http.StatusMethodNotAllowed},
		{http.MethodGet, "/initiate-call", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.status {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.status)
		}
	}
}

func TestRequestIDHeaderOnEveryResponse(t *testing.T) {
	h := newServer(t).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
}

type downStore struct{}

func (downStore) Get(ctx context.Context, key store.Key, out any) error {
	return fault.Wrap(fault.KindUnavailable, "store.get", errors.New("connection refused"))
}

func (downStore) Put(ctx context.Context, key store.Key, item any) error {
	return fault.Wrap(fault.KindUnavailable, "store.put", errors.New("connection refused"))
}

func (downStore) PutIfVacant(ctx context.Context, key store.Key, item any, now int64) error {
	return fault.Wrap(fault.KindUnavailable, "store.putifvacant", errors.New("connection refused"))
}

func (downStore) Update(ctx context.Context, key store.Key, fields map[string]any, out any) error {
	return fault.Wrap(fault.KindUnavailable, "store.update", errors.New("connection refused"))
}

func TestReadyzReportsStoreOutage(t *testing.T) {
	cfg := config.Config{
		PublicBaseURL:      "https://bridge.example.com",
		AgentNumber:        "+15550999",
		GraceDuration:      time.Millisecond,
		WSWriteTimeout:     time.Second,
		WSHandshakeTimeout: time.Second,
	}
	mem := store.NewMemory()
	srv := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Dir:        directory.New(downStore{}),
		Leases:     proxy.NewStore(mem),
		Profiles:   profile.NewCatalog(mem),
		Calls:      noopCalls{},
		Translator: noopTranslator{},
	})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	// Liveness is independent of the store.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newServer(t).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "callbridge_test") {
		t.Fatalf("metrics body missing namespace:\n%.300s", rec.Body.String())
	}
}
