// internal/resolver/resolver.go

// Package resolver finds a usable element for a selector, falling back through text and
// generated strategies when the selector no longer matches.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
	"github.com/xkilldash9x/scalpel-heal/internal/strategy"
	"github.com/xkilldash9x/scalpel-heal/internal/telemetry"
)

// Learner is the part of the learning store the resolver writes to.
type Learner interface {
	RecordSuccess(selector, strategy string, responseTimeMs float64, ctx learning.Context)
	RecordFailure(selector, strategy, reason string, ctx learning.Context)
}

// Options tunes a single resolution.
type Options struct {
	// Timeout bounds each document query. Zero uses the resolver default.
	Timeout time.Duration
	Context learning.Context
}

// Result describes a successful resolution.
type Result struct {
	Element dom.Element
	// Selector is the selector that produced Element; it differs from the requested
	// selector when a fallback strategy matched.
	Selector       string
	Strategy       string
	ResponseTimeMs float64
	Attempted      []string
}

// ResolutionFailure is returned when every strategy was exhausted.
type ResolutionFailure struct {
	Selector  string
	Attempted []string
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("no interactable element found for selector %q", e.Selector)
}

// Resolver locates an interactable element for a selector that may have drifted.
type Resolver struct {
	store          Learner
	sink           telemetry.Sink
	clock          dom.Clock
	logger         *zap.Logger
	generator      *strategy.Generator
	defaultTimeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGenerator replaces the default fallback generator.
func WithGenerator(g *strategy.Generator) Option {
	return func(r *Resolver) { r.generator = g }
}

// WithDefaultTimeout sets the query timeout used when Options.Timeout is zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.defaultTimeout = d }
}

// New builds a Resolver. A nil sink discards telemetry and a nil clock uses the system clock.
func New(store Learner, sink telemetry.Sink, clock dom.Clock, logger *zap.Logger, opts ...Option) *Resolver {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	if clock == nil {
		clock = dom.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		store:          store,
		sink:           sink,
		clock:          clock,
		logger:         logger.Named("resolver"),
		generator:      strategy.NewGenerator(strategy.DefaultTestIDAttribute),
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve tries the selector as given, then a text match when the selector carries a
// contains("...") predicate, then each generated fallback in confidence order. The first
// interactable match wins. Exhausting every strategy returns a *ResolutionFailure.
func (r *Resolver) Resolve(ctx context.Context, doc dom.Document, selector string, opts Options) (*Result, error) {
	start := r.clock.Now()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	var attempted []string
	try := func(name, candidate string, probe func(context.Context) (dom.Element, bool)) (*Result, bool) {
		attempted = append(attempted, name)
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		el, ok := probe(qctx)
		if !ok {
			return nil, false
		}
		return &Result{Element: el, Selector: candidate, Strategy: name}, true
	}

	res, found := try(schemas.StrategyDirect, selector, func(qctx context.Context) (dom.Element, bool) {
		if err := strategy.Validate(selector); err != nil {
			_, hasText := strategy.ContainsText(selector)
			next := "generated fallbacks"
			if hasText {
				next = "text-contains, then generated fallbacks"
			}
			r.logger.Debug("Selector is not valid CSS; skipping the direct query.",
				zap.String("selector", selector),
				zap.String("next", next),
				zap.Error(err))
			return nil, false
		}
		return r.query(qctx, doc, selector)
	})

	if text, ok := strategy.ContainsText(selector); !found && ok {
		res, found = try(schemas.StrategyTextContains, selector, func(qctx context.Context) (dom.Element, bool) {
			return r.findText(qctx, doc, text)
		})
	}

	if !found {
		for _, s := range r.generator.Generate(selector) {
			if err := ctx.Err(); err != nil {
				break
			}
			if res, found = try(s.Name, s.Selector, func(qctx context.Context) (dom.Element, bool) {
				return r.query(qctx, doc, s.Selector)
			}); found {
				break
			}
		}
	}

	elapsed := dom.ElapsedMs(r.clock, start)
	if !found {
		reason := fmt.Sprintf("exhausted %d strategies", len(attempted))
		if err := ctx.Err(); err != nil {
			reason = err.Error()
		}
		r.store.RecordFailure(selector, "", reason, opts.Context)
		r.emit(ctx, selector, "", false, elapsed, reason, attempted, opts.Context)
		r.logger.Debug("Resolution failed.", zap.String("selector", selector), zap.Strings("attempted", attempted))
		return nil, &ResolutionFailure{Selector: selector, Attempted: attempted}
	}

	res.ResponseTimeMs = elapsed
	res.Attempted = attempted
	r.store.RecordSuccess(selector, res.Strategy, elapsed, opts.Context)
	r.emit(ctx, selector, res.Strategy, true, elapsed, "", attempted, opts.Context)
	if res.Strategy != schemas.StrategyDirect {
		r.logger.Info("Resolved selector through fallback.",
			zap.String("selector", selector),
			zap.String("strategy", res.Strategy),
			zap.String("matched", res.Selector))
	}
	return res, nil
}

// query reports an interactable match for selector. Query errors, including invalid
// selectors, count as no match.
func (r *Resolver) query(ctx context.Context, doc dom.Document, selector string) (dom.Element, bool) {
	el, err := doc.QuerySelector(ctx, selector)
	if err != nil {
		if !errors.Is(err, dom.ErrInvalidSelector) {
			r.logger.Debug("Query failed.", zap.String("selector", selector), zap.Error(err))
		}
		return nil, false
	}
	if el == nil || !dom.IsInteractable(el) {
		return nil, false
	}
	return el, true
}

func (r *Resolver) findText(ctx context.Context, doc dom.Document, text string) (dom.Element, bool) {
	el, err := doc.FindByText(ctx, text)
	if err != nil {
		r.logger.Debug("Text search failed.", zap.String("text", text), zap.Error(err))
		return nil, false
	}
	if el == nil || !dom.IsInteractable(el) {
		return nil, false
	}
	return el, true
}

func (r *Resolver) emit(ctx context.Context, selector, strategyName string, success bool, elapsed float64, reason string, attempted []string, lctx learning.Context) {
	r.sink.RecordOperation(context.WithoutCancel(ctx), schemas.OperationRecord{
		ID:             uuid.NewString(),
		Operation:      schemas.OperationResolve,
		Selector:       selector,
		Strategy:       strategyName,
		Success:        success,
		ResponseTimeMs: elapsed,
		Reason:         reason,
		Attempted:      append([]string(nil), attempted...),
		Page:           lctx.Page,
		Timestamp:      r.clock.Now(),
	})
}
