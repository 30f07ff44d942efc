package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/params"
)

// Selector routes translation calls to the provider named by a parameter
// in the parameter store. The active name is held per Selector instance
// and refreshed at a defined cadence by Run, never mutated as hidden
// global state.
type Selector struct {
	providers map[string]Translator
	fallback  string
	source    params.Source
	paramName string
	logger    *slog.Logger

	mu      sync.RWMutex
	current string
}

// NewSelector builds a selector over the given providers. fallback must
// name one of them; it is used before the first refresh, when the
// parameter is unreadable, and when the parameter names an unknown
// provider.
func NewSelector(providers map[string]Translator, fallback string, source params.Source, paramName string, logger *slog.Logger) (*Selector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := providers[fallback]; !ok {
		return nil, fault.New(fault.KindInvalid, "translate.selector", fmt.Sprintf("unknown fallback provider %q", fallback))
	}
	return &Selector{
		providers: providers,
		fallback:  fallback,
		source:    source,
		paramName: paramName,
		logger:    logger,
		current:   fallback,
	}, nil
}

// Refresh reads the active provider name from the parameter store. A
// failed read keeps the previous selection.
func (s *Selector) Refresh(ctx context.Context) error {
	if s.source == nil || s.paramName == "" {
		return nil
	}
	name, err := s.source.Get(ctx, s.paramName, false)
	if err != nil {
		s.logger.Warn("translation provider refresh failed, keeping current",
			"param", s.paramName, "current", s.Current(), "error", err)
		return err
	}
	name = strings.TrimSpace(name)
	if _, ok := s.providers[name]; !ok {
		s.logger.Warn("unsupported translation provider in parameter store, keeping current",
			"param", s.paramName, "value", name)
		return fault.New(fault.KindInvalid, "translate.selector", fmt.Sprintf("unsupported provider %q", name))
	}

	s.mu.Lock()
	changed := s.current != name
	s.current = name
	s.mu.Unlock()
	if changed {
		s.logger.Info("translation provider changed", "provider", name)
	}
	return nil
}

// Run refreshes the selection on a fixed cadence until ctx is done. The
// first refresh happens immediately.
func (s *Selector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	_ = s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Current reports the active provider name.
func (s *Selector) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Translate delegates to the active provider.
func (s *Selector) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	name := s.Current()
	provider, ok := s.providers[name]
	if !ok {
		provider = s.providers[s.fallback]
		name = s.fallback
	}
	res, err := provider.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		return Result{}, fmt.Errorf("provider %s: %w", name, err)
	}
	return res, nil
}
