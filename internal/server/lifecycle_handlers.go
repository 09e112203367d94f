package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"pylon/internal/analysis"
	"pylon/internal/format"
	"pylon/internal/resolver"
	"pylon/internal/resolver/store"
	"pylon/internal/scheduler"
	"pylon/internal/semtok"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const storeFile = "resolutions.db"

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	cfg, err := s.base.Overlay(params.InitializationOptions)
	if err != nil {
		return nil, err
	}
	s.config = cfg
	log.Infof("config: %+v", cfg)

	if s.analyzer == nil {
		s.owned = analysis.New(4, cfg.PythonPath)
		s.analyzer = s.owned
	}
	if s.formatter == nil {
		s.formatter = format.Command(cfg.FormatterCommand)
	}

	opts := []resolver.Option{
		resolver.WithTTL(time.Duration(cfg.CacheTTL)),
		resolver.WithSweepEvery(cfg.SweepEvery),
		resolver.WithNamespaces(cfg.CachedModules...),
	}
	if s.clock != nil {
		opts = append(opts, resolver.WithClock(s.clock))
	}
	s.cache = resolver.New(s.analyzer.Detail, opts...)

	s.schedule = scheduler.NewScheduler(4)
	s.schedule.RunScheduler(s.ctx)
	if cfg.PersistCache {
		if err := s.openStore(); err != nil {
			// The cache still works, it just starts cold next time.
			log.Warningf("resolution cache will not be persisted: %v", err)
		}
	}

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
		ResolveProvider:   &protocol.True,
	}
	capabilities.SemanticTokensProvider = protocol.SemanticTokensOptions{
		Legend: semtok.Legend(),
		Full:   true,
	}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.DocumentFormattingProvider = true
	capabilities.DocumentRangeFormattingProvider = true

	version := Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    name,
			Version: &version,
		},
	}, nil
}

// Version is reported to the client.
var Version = "(dev) v0.0.0"

// openStore opens the persisted resolutions, warms the cache with the
// entries still live and persists it periodically.
func (s *Server) openStore() error {
	dir, err := s.config.StateHome()
	if err != nil {
		return err
	}
	st, err := store.Open(filepath.Join(dir, storeFile))
	if err != nil {
		return err
	}
	s.store = st

	entries, err := st.Load(s.ctx, s.cache.LiveFrom())
	if err != nil {
		return fmt.Errorf("failed to load resolutions: %w", err)
	}
	n := s.cache.Restore(entries)
	log.Infof("restored %d of %d persisted resolutions", n, len(entries))

	s.schedule.SchedulePeriodicTask(time.Duration(s.config.PersistInterval), scheduler.Task{
		Name:    "persist resolutions",
		Execute: s.persist,
	})
	return nil
}

// persist replaces the stored resolutions with the cache contents.
func (s *Server) persist(ctx context.Context) error {
	if s.store == nil || s.cache == nil {
		return nil
	}
	entries := s.cache.Snapshot()
	if err := s.store.Save(ctx, entries); err != nil {
		return err
	}
	log.Debugf("persisted %d of %d cached resolutions", len(entries), s.cache.Len())
	return nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Info("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	return s.Close()
}

// Close persists the cache one last time and releases all resources.
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		if s.schedule != nil {
			s.schedule.Schedule(scheduler.Task{Name: "final persist", Execute: s.persist})
			s.schedule.StopScheduler()
		}
		if s.store != nil {
			err = s.store.Close()
		}
		if s.owned != nil {
			s.owned.Close()
		}
		s.cancel()
	})
	return err
}
