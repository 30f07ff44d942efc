// Package server assembles the HTTP surface: routes, middleware chain,
// and the shared collaborators behind them.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/callbridge/pkg/bridge/cascade"
	"github.com/vango-go/callbridge/pkg/bridge/channel"
	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/handlers"
	"github.com/vango-go/callbridge/pkg/bridge/linker"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/mw"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/telephony"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

// Deps are the collaborators the routes share. The store-backed pieces are
// constructed by the caller so tests can swap the persistence layer.
type Deps struct {
	Dir        *directory.Directory
	Leases     *proxy.Store
	Profiles   *profile.Catalog
	Calls      telephony.CallControl
	Translator translate.Translator
	Metrics    *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	deps     Deps
	registry *channel.Registry
	linker   *linker.Linker
	cascade  *cascade.Coordinator
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := channel.NewRegistry()
	lk := linker.New(deps.Dir, deps.Leases, deps.Translator, logger, deps.Metrics)
	coord := cascade.New(deps.Dir, registry, deps.Calls, deps.Translator, logger, deps.Metrics)
	coord.SetGrace(cfg.GraceDuration)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		deps:     deps,
		registry: registry,
		linker:   lk,
		cascade:  coord,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	initiator := &handlers.CallInitiator{
		Config:   s.cfg,
		Profiles: s.deps.Profiles,
		Calls:    s.deps.Calls,
		Leases:   s.deps.Leases,
		Linker:   s.linker,
		Logger:   s.logger,
		Metrics:  s.deps.Metrics,
	}

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Ready: s.ready})
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.mux.Handle("/language-selector", handlers.LanguageSelectorHandler{
		Logger: s.logger,
	})
	s.mux.Handle("/call-setup", handlers.CallSetupHandler{
		Config:   s.cfg,
		Profiles: s.deps.Profiles,
		Linker:   s.linker,
		Logger:   s.logger,
	})
	s.mux.Handle("/initiate-call", handlers.InitiateCallHandler{
		Initiator: initiator,
		Logger:    s.logger,
	})
	s.mux.Handle("/relay", handlers.RelayHandler{
		Config:     s.cfg,
		Dir:        s.deps.Dir,
		Linker:     s.linker,
		Cascade:    s.cascade,
		Registry:   s.registry,
		Translator: s.deps.Translator,
		Logger:     s.logger,
		Metrics:    s.deps.Metrics,
		Initiator:  initiator,
	})
}

// ready checks that the durable store answers. The key it reads never
// exists, so not_found is the healthy answer; anything else means the
// table is unreachable and the process cannot take calls.
func (s *Server) ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.deps.Dir.Get(ctx, "readiness-check")
	if err != nil && !fault.IsNotFound(err) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
