// -- cmd/session.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/internal/browser"
	"github.com/xkilldash9x/scalpel-heal/internal/config"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/dom/htmldoc"
	"github.com/xkilldash9x/scalpel-heal/internal/healing"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
	"github.com/xkilldash9x/scalpel-heal/internal/observability"
	"github.com/xkilldash9x/scalpel-heal/internal/resolver"
	"github.com/xkilldash9x/scalpel-heal/internal/store"
	"github.com/xkilldash9x/scalpel-heal/internal/strategy"
	"github.com/xkilldash9x/scalpel-heal/internal/telemetry"
)

const persistTimeout = 15 * time.Second

// targetFlags selects the page a command runs against.
type targetFlags struct {
	htmlFile string
	url      string
	save     string
}

func addTargetFlags(cmd *cobra.Command, t *targetFlags) {
	cmd.Flags().StringVar(&t.htmlFile, "html", "", "static HTML file to run against")
	cmd.Flags().StringVar(&t.url, "url", "", "live page to open in Chrome")
	cmd.Flags().StringVar(&t.save, "save", "", "write the resulting document of an --html target to this file")
	cmd.MarkFlagsMutuallyExclusive("html", "url")
	cmd.MarkFlagsOneRequired("html", "url")

	cmd.Flags().String("page", "", "page identifier that scopes learned selectors")
	cmd.Flags().Duration("timeout", 0, "per-query timeout")
	cmd.Flags().Bool("headless", true, "run Chrome headless")
	cmd.Flags().String("event-log", "", "JSON lines file receiving every healing event")
	cmd.Flags().String("database-url", "", "PostgreSQL URL for persisting events and learned patterns")
	cmd.Flags().String("testid-attr", "", "test id attribute the fallback strategies target")
}

// session wires one command execution: learning store, telemetry, optional persistence
// and the target page.
type session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger
	lctx   learning.Context

	learn     *learning.Store
	bus       *telemetry.Bus
	recorder  *telemetry.Recorder
	forwarded []<-chan struct{}
	eventLog  *telemetry.FileSink

	pool *pgxpool.Pool
	db   *store.Store

	browser *browser.Browser
	tab     *browser.Page
	doc     *htmldoc.Document
	page    dom.Page
	saveTo  string

	resolver *resolver.Resolver
	healer   *healing.Healer
}

func openSession(ctx context.Context, cfg *config.Config, target targetFlags) (s *session, err error) {
	id := uuid.NewString()
	logger := observability.GetLogger().With(zap.String("session_id", id))
	clock := dom.SystemClock{}

	s = &session{
		id:       id,
		cfg:      cfg,
		logger:   logger,
		lctx:     learning.Context{Page: cfg.Healing().DefaultPage},
		learn:    learning.NewStore(clock, logger),
		bus:      telemetry.NewBus(logger, cfg.Telemetry().BufferSize),
		recorder: telemetry.NewRecorder(),
		saveTo:   target.save,
	}
	defer func() {
		if err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
			s = nil
		}
	}()

	s.forwarded = append(s.forwarded,
		s.bus.Forward(s.recorder),
		s.bus.Forward(telemetry.NewLogSink(logger)),
	)
	if tc := cfg.Telemetry(); tc.EventLog != "" {
		s.eventLog, err = telemetry.NewFileSink(telemetry.FileOptions{
			Path:       tc.EventLog,
			MaxSizeMB:  tc.MaxSize,
			MaxBackups: tc.MaxBackups,
			MaxAgeDays: tc.MaxAge,
			Compress:   tc.Compress,
		}, logger)
		if err != nil {
			return s, err
		}
		s.forwarded = append(s.forwarded, s.bus.Forward(s.eventLog))
	}

	if url := cfg.Database().URL; url != "" {
		if err = s.connectStore(ctx, url); err != nil {
			return s, err
		}
	}

	if err = s.openTarget(ctx, target); err != nil {
		return s, err
	}

	hc := cfg.Healing()
	s.resolver = resolver.New(s.learn, s.bus, clock, logger,
		resolver.WithGenerator(strategy.NewGenerator(hc.TestIDAttribute)),
		resolver.WithDefaultTimeout(cfg.Resolver().Timeout))
	s.healer = healing.New(s.learn, s.bus, clock, logger, healing.Options{
		MaxAttempts:         hc.MaxAttempts,
		ConfidenceThreshold: hc.ConfidenceThreshold,
		TestIDAttribute:     hc.TestIDAttribute,
		NavigationMap:       hc.NavigationMap(),
		FieldMap:            hc.FieldMap(),
		SkipMissingFields:   hc.SkipMissingFields,
	})
	return s, nil
}

func (s *session) connectStore(ctx context.Context, url string) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	s.pool = pool

	s.db, err = store.New(ctx, pool, s.logger)
	if err != nil {
		return err
	}
	if err := s.db.EnsureSchema(ctx); err != nil {
		return err
	}

	patterns, err := s.db.LoadPatterns(ctx, s.cfg.Database().MinPatternConfidence)
	if err != nil {
		return err
	}
	s.learn.Restore(patterns)
	s.logger.Info("Loaded learned healing patterns.", zap.Int("count", len(patterns)))
	return nil
}

func (s *session) openTarget(ctx context.Context, target targetFlags) error {
	switch {
	case target.htmlFile != "":
		f, err := os.Open(target.htmlFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", target.htmlFile, err)
		}
		defer f.Close()
		s.doc, err = htmldoc.Parse(f)
		if err != nil {
			return err
		}
		s.page = s.doc
	case target.url != "":
		if target.save != "" {
			return fmt.Errorf("--save only applies to --html targets")
		}
		var err error
		s.browser, err = browser.Launch(ctx, s.cfg.Browser(), s.logger)
		if err != nil {
			return err
		}
		s.tab, err = s.browser.Open(ctx, target.url)
		if err != nil {
			return err
		}
		s.page = s.tab
	default:
		return fmt.Errorf("one of --html or --url is required")
	}
	return nil
}

// Close flushes telemetry, persists the session when a database is configured and
// releases the page. It runs even after the command context is cancelled.
func (s *session) Close(ctx context.Context) error {
	var errs []error

	s.bus.Shutdown()
	for _, done := range s.forwarded {
		<-done
	}
	if s.eventLog != nil {
		errs = append(errs, s.eventLog.Close())
	}

	stats := s.recorder.Stats()
	analytics := s.learn.Analytics()
	s.logger.Info("Session finished.",
		zap.Int("events", stats.Total),
		zap.Int("healed", stats.Healed),
		zap.Int("failed", stats.Failed),
		zap.Float64("success_rate", stats.SuccessRate()),
		zap.Int("learned_selectors", analytics.Overall.LearnedSelectors),
		zap.Int("patterns", analytics.Overall.Patterns))

	if s.db != nil {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		errs = append(errs,
			s.db.SaveEvents(persistCtx, s.id, s.recorder.Events()),
			s.db.SaveSnapshot(persistCtx, s.id, s.learn.Snapshot()))
		cancel()
	}
	if s.pool != nil {
		s.pool.Close()
	}

	if s.doc != nil && s.saveTo != "" {
		errs = append(errs, s.writeDocument())
	}
	if s.tab != nil {
		s.tab.Close()
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	return errors.Join(errs...)
}

func (s *session) writeDocument() error {
	out, err := s.doc.HTML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.saveTo, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.saveTo, err)
	}
	return nil
}

// runSession opens a session for the command, runs fn and closes the session.
func runSession(cmd *cobra.Command, opts *rootOptions, target targetFlags, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.cfg, target)
	if err != nil {
		return err
	}
	runErr := fn(ctx, s)
	closeErr := s.Close(ctx)
	if runErr != nil {
		if closeErr != nil {
			s.logger.Warn("Session cleanup failed.", zap.Error(closeErr))
		}
		return runErr
	}
	return closeErr
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
