// internal/telemetry/recorder.go
package telemetry

import (
	"context"
	"sync"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// Recorder keeps telemetry in memory.
type Recorder struct {
	mu         sync.Mutex
	events     []schemas.HealingEvent
	operations []schemas.OperationRecord
}

var _ Sink = (*Recorder)(nil)

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) RecordHealing(_ context.Context, ev schemas.HealingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) RecordOperation(_ context.Context, rec schemas.OperationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, rec)
}

// Events returns a copy of the healing events recorded so far.
func (r *Recorder) Events() []schemas.HealingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.HealingEvent(nil), r.events...)
}

// Operations returns a copy of the operation records recorded so far.
func (r *Recorder) Operations() []schemas.OperationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.OperationRecord(nil), r.operations...)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.operations = nil
}

// Stats aggregates healing events.
type Stats struct {
	Total            int            `json:"total"`
	Succeeded        int            `json:"succeeded"`
	Healed           int            `json:"healed"`
	Failed           int            `json:"failed"`
	AvgHealingTimeMs float64        `json:"avg_healing_time_ms"`
	ByStrategy       map[string]int `json:"by_strategy"`
}

// SuccessRate is Succeeded/Total, or 0 with no events.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// Stats summarizes the recorded healing events.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{ByStrategy: make(map[string]int)}
	var totalTime float64
	for _, ev := range r.events {
		st.Total++
		totalTime += ev.HealingTimeMs
		if !ev.Success {
			st.Failed++
			continue
		}
		st.Succeeded++
		st.ByStrategy[ev.Strategy]++
		if ev.Healed() {
			st.Healed++
		}
	}
	if st.Total > 0 {
		st.AvgHealingTimeMs = totalTime / float64(st.Total)
	}
	return st
}
