// internal/learning/learning.go
//
// Package learning keeps the session-scoped record of which selectors and healing strategies
// worked. Callers hold a *Store for the lifetime of a session and consult it to bias later
// resolutions; nothing here is persisted on its own (see internal/store for that).
package learning

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

const (
	// NeutralConfidence is reported for selectors the store has never seen, and is the
	// starting confidence of a new record or healing pattern.
	NeutralConfidence = 0.5
	// MaxPatternConfidence caps the confidence a healing pattern can reach.
	MaxPatternConfidence = 0.95
	patternStep          = 0.1
)

// Context scopes a record. Page partitions the key space; Labels are carried along verbatim.
type Context struct {
	Page   string            `json:"page,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Tally counts outcomes for one strategy.
type Tally struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// SelectorRecord is the accumulated history of one selector within one page context.
type SelectorRecord struct {
	Key               string           `json:"key"`
	Selector          string           `json:"selector"`
	Successes         int              `json:"successes"`
	Failures          int              `json:"failures"`
	Confidence        float64          `json:"confidence"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	Samples           int              `json:"samples"`
	StrategyTally     map[string]Tally `json:"strategy_tally"`
	LastUsedAt        time.Time        `json:"last_used_at"`
	Context           Context          `json:"context"`
}

// HealingPattern records that a strategy healed an original selector, and into what.
type HealingPattern struct {
	OriginalSelector string         `json:"original_selector"`
	Strategy         string         `json:"strategy"`
	HealedSelectors  map[string]int `json:"healed_selectors"`
	Successes        int            `json:"successes"`
	Confidence       float64        `json:"confidence"`
}

// MostUsedHealed returns the healed selector seen most often, ties broken lexically.
func (p HealingPattern) MostUsedHealed() string {
	var best string
	bestCount := 0
	for sel, n := range p.HealedSelectors {
		if n > bestCount || (n == bestCount && sel < best) {
			best, bestCount = sel, n
		}
	}
	return best
}

// HealingMetadata accompanies a healing success.
type HealingMetadata struct {
	ResponseTimeMs float64
	// Confidence overrides the pattern confidence noted on the improvement, when set.
	Confidence float64
	Context    Context
}

// Operation is one success or failure sample in session order.
type Operation struct {
	Success        bool      `json:"success"`
	Selector       string    `json:"selector"`
	Strategy       string    `json:"strategy,omitempty"`
	ResponseTimeMs float64   `json:"response_time_ms,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Context        Context   `json:"context"`
	Timestamp      time.Time `json:"timestamp"`
}

// Improvement is one recorded healing success.
type Improvement struct {
	OriginalSelector string    `json:"original_selector"`
	HealedSelector   string    `json:"healed_selector"`
	Strategy         string    `json:"strategy"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

// Analytics summarizes the session.
type Analytics struct {
	Session struct {
		Duration     time.Duration `json:"duration"`
		Operations   int           `json:"operations"`
		Improvements int           `json:"improvements"`
	} `json:"session"`
	Overall struct {
		LearnedSelectors int `json:"learned_selectors"`
		Strategies       int `json:"strategies"`
		Patterns         int `json:"patterns"`
	} `json:"overall"`
}

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	StartedAt    time.Time        `json:"started_at"`
	TakenAt      time.Time        `json:"taken_at"`
	Selectors    []SelectorRecord `json:"selectors"`
	Patterns     []HealingPattern `json:"patterns"`
	Operations   []Operation      `json:"operations"`
	Improvements []Improvement    `json:"improvements"`
}

type patternKey struct {
	original string
	strategy string
}

// Store is the in-memory learning store. It is safe for concurrent use; reads from
// telemetry consumers or snapshotting may run alongside the single writer.
type Store struct {
	mu     sync.RWMutex
	clock  dom.Clock
	logger *zap.Logger

	startedAt    time.Time
	selectors    map[string]*SelectorRecord
	strategies   map[string]*Tally
	patterns     map[patternKey]*HealingPattern
	operations   []Operation
	improvements []Improvement
}

// NewStore starts a learning session. A nil clock uses the system clock.
func NewStore(clock dom.Clock, logger *zap.Logger) *Store {
	if clock == nil {
		clock = dom.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{clock: clock, logger: logger.Named("learning")}
	s.resetLocked()
	return s
}

// Reset discards everything learned and restarts the session clock.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logger.Debug("Learning store reset.")
}

func (s *Store) resetLocked() {
	s.startedAt = s.clock.Now()
	s.selectors = make(map[string]*SelectorRecord)
	s.strategies = make(map[string]*Tally)
	s.patterns = make(map[patternKey]*HealingPattern)
	s.operations = nil
	s.improvements = nil
}

// RecordSuccess notes that selector resolved via strategy in responseTimeMs.
func (s *Store) RecordSuccess(selector, strategy string, responseTimeMs float64, ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordSuccessLocked(selector, strategy, responseTimeMs, ctx)
}

func (s *Store) recordSuccessLocked(selector, strategy string, responseTimeMs float64, ctx Context) {
	now := s.clock.Now()
	rec := s.recordFor(selector, ctx, now)

	rec.Successes++
	rec.LastUsedAt = now
	if rec.Samples == 0 {
		rec.AvgResponseTimeMs = responseTimeMs
	} else {
		rec.AvgResponseTimeMs = (rec.AvgResponseTimeMs + responseTimeMs) / 2
	}
	rec.Samples++
	normalize(rec)

	if strategy != "" {
		t := rec.StrategyTally[strategy]
		t.Successes++
		rec.StrategyTally[strategy] = t
		s.strategyTally(strategy).Successes++
	}

	s.operations = append(s.operations, Operation{
		Success:        true,
		Selector:       selector,
		Strategy:       strategy,
		ResponseTimeMs: responseTimeMs,
		Context:        ctx,
		Timestamp:      now,
	})
	s.logger.Debug("Recorded success.",
		zap.String("selector", selector),
		zap.String("strategy", strategy),
		zap.Float64("confidence", rec.Confidence))
}

// RecordFailure notes that selector could not be resolved. strategy may be empty when no
// single strategy is to blame.
func (s *Store) RecordFailure(selector, strategy, reason string, ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	rec := s.recordFor(selector, ctx, now)
	rec.Failures++
	rec.LastUsedAt = now
	normalize(rec)

	if strategy != "" {
		t := rec.StrategyTally[strategy]
		t.Failures++
		rec.StrategyTally[strategy] = t
		s.strategyTally(strategy).Failures++
	}

	s.operations = append(s.operations, Operation{
		Selector:  selector,
		Strategy:  strategy,
		Reason:    reason,
		Context:   ctx,
		Timestamp: now,
	})
	s.logger.Debug("Recorded failure.",
		zap.String("selector", selector),
		zap.String("reason", reason),
		zap.Float64("confidence", rec.Confidence))
}

// RecordHealingSuccess strengthens the (original, strategy) pattern and records a success
// for the healed selector itself.
func (s *Store) RecordHealingSuccess(original, healed, strategy string, meta HealingMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := patternKey{original: original, strategy: strategy}
	p, ok := s.patterns[key]
	if !ok {
		p = &HealingPattern{
			OriginalSelector: original,
			Strategy:         strategy,
			HealedSelectors:  make(map[string]int),
			Confidence:       NeutralConfidence,
		}
		s.patterns[key] = p
	}
	p.Successes++
	p.HealedSelectors[healed]++
	// Rounded so repeated steps land on exact tenths (0.5+0.1+0.1+0.1 == 0.8).
	p.Confidence = min(MaxPatternConfidence, math.Round((p.Confidence+patternStep)*1e6)/1e6)

	noted := p.Confidence
	if meta.Confidence > 0 {
		noted = meta.Confidence
	}
	s.improvements = append(s.improvements, Improvement{
		OriginalSelector: original,
		HealedSelector:   healed,
		Strategy:         strategy,
		Confidence:       noted,
		Timestamp:        s.clock.Now(),
	})

	s.recordSuccessLocked(healed, strategy, meta.ResponseTimeMs, meta.Context)
}

// Lookup returns a copy of the record for selector in ctx.
func (s *Store) Lookup(selector string, ctx Context) (SelectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.selectors[Key(selector, ctx.Page)]
	if !ok {
		return SelectorRecord{}, false
	}
	return rec.clone(), true
}

// Confidence returns the recorded confidence of selector, or NeutralConfidence when unknown.
func (s *Store) Confidence(selector string, ctx Context) float64 {
	rec, ok := s.Lookup(selector, ctx)
	if !ok {
		return NeutralConfidence
	}
	return rec.Confidence
}

// Pattern returns a copy of the healing pattern for (original, strategy).
func (s *Store) Pattern(original, strategy string) (HealingPattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[patternKey{original: original, strategy: strategy}]
	if !ok {
		return HealingPattern{}, false
	}
	return p.clone(), true
}

// BestHealing returns the most confident pattern recorded for original. Ties go to the
// pattern with more successes, then to the strategy name.
func (s *Store) BestHealing(original string) (HealingPattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *HealingPattern
	for key, p := range s.patterns {
		if key.original != original {
			continue
		}
		if best == nil ||
			p.Confidence > best.Confidence ||
			(p.Confidence == best.Confidence && p.Successes > best.Successes) ||
			(p.Confidence == best.Confidence && p.Successes == best.Successes && p.Strategy < best.Strategy) {
			best = p
		}
	}
	if best == nil {
		return HealingPattern{}, false
	}
	return best.clone(), true
}

// Analytics summarizes the session so far.
func (s *Store) Analytics() Analytics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a Analytics
	a.Session.Duration = s.clock.Now().Sub(s.startedAt)
	a.Session.Operations = len(s.operations)
	a.Session.Improvements = len(s.improvements)
	a.Overall.LearnedSelectors = len(s.selectors)
	a.Overall.Strategies = len(s.strategies)
	a.Overall.Patterns = len(s.patterns)
	return a
}

// Snapshot deep-copies the store. Selectors are ordered by key and patterns by
// (original, strategy).
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		StartedAt:    s.startedAt,
		TakenAt:      s.clock.Now(),
		Selectors:    make([]SelectorRecord, 0, len(s.selectors)),
		Patterns:     make([]HealingPattern, 0, len(s.patterns)),
		Operations:   append([]Operation(nil), s.operations...),
		Improvements: append([]Improvement(nil), s.improvements...),
	}
	for _, rec := range s.selectors {
		snap.Selectors = append(snap.Selectors, rec.clone())
	}
	for _, p := range s.patterns {
		snap.Patterns = append(snap.Patterns, p.clone())
	}
	sort.Slice(snap.Selectors, func(i, j int) bool { return snap.Selectors[i].Key < snap.Selectors[j].Key })
	sort.Slice(snap.Patterns, func(i, j int) bool {
		if snap.Patterns[i].OriginalSelector != snap.Patterns[j].OriginalSelector {
			return snap.Patterns[i].OriginalSelector < snap.Patterns[j].OriginalSelector
		}
		return snap.Patterns[i].Strategy < snap.Patterns[j].Strategy
	})
	return snap
}

// Restore merges previously learned healing patterns into the store, keeping the higher
// confidence where a pattern already exists.
func (s *Store) Restore(patterns []HealingPattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range patterns {
		key := patternKey{original: in.OriginalSelector, strategy: in.Strategy}
		if cur, ok := s.patterns[key]; ok && cur.Confidence >= in.Confidence {
			continue
		}
		p := in.clone()
		if p.HealedSelectors == nil {
			p.HealedSelectors = make(map[string]int)
		}
		p.Confidence = min(MaxPatternConfidence, p.Confidence)
		s.patterns[key] = &p
	}
	s.logger.Debug("Restored healing patterns.", zap.Int("count", len(patterns)))
}

func (s *Store) recordFor(selector string, ctx Context, now time.Time) *SelectorRecord {
	key := Key(selector, ctx.Page)
	rec, ok := s.selectors[key]
	if !ok {
		rec = &SelectorRecord{
			Key:           key,
			Selector:      selector,
			Confidence:    NeutralConfidence,
			StrategyTally: make(map[string]Tally),
			LastUsedAt:    now,
			Context:       ctx,
		}
		s.selectors[key] = rec
	}
	return rec
}

func (s *Store) strategyTally(name string) *Tally {
	t, ok := s.strategies[name]
	if !ok {
		t = &Tally{}
		s.strategies[name] = t
	}
	return t
}

func normalize(rec *SelectorRecord) {
	if total := rec.Successes + rec.Failures; total > 0 {
		rec.Confidence = float64(rec.Successes) / float64(total)
	}
}

func (r *SelectorRecord) clone() SelectorRecord {
	out := *r
	out.StrategyTally = make(map[string]Tally, len(r.StrategyTally))
	for k, v := range r.StrategyTally {
		out.StrategyTally[k] = v
	}
	out.Context = r.Context.clone()
	return out
}

func (p HealingPattern) clone() HealingPattern {
	out := p
	if p.HealedSelectors != nil {
		out.HealedSelectors = make(map[string]int, len(p.HealedSelectors))
		for k, v := range p.HealedSelectors {
			out.HealedSelectors[k] = v
		}
	}
	return out
}

func (c Context) clone() Context {
	if c.Labels == nil {
		return c
	}
	out := Context{Page: c.Page, Labels: make(map[string]string, len(c.Labels))}
	for k, v := range c.Labels {
		out.Labels[k] = v
	}
	return out
}
