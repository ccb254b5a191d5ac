// internal/telemetry/sink.go
//
// Package telemetry carries healing events and resolution records out of the core. Sinks
// never return errors to the caller: a telemetry failure must not fail the action that
// produced it, so sinks log and move on.
package telemetry

import (
	"context"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// Sink receives telemetry from the resolver and the healer.
type Sink interface {
	RecordHealing(ctx context.Context, ev schemas.HealingEvent)
	RecordOperation(ctx context.Context, rec schemas.OperationRecord)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordHealing(context.Context, schemas.HealingEvent)       {}
func (Nop) RecordOperation(context.Context, schemas.OperationRecord) {}

// Multi fans each record out to every sink, in order.
type Multi []Sink

func (m Multi) RecordHealing(ctx context.Context, ev schemas.HealingEvent) {
	for _, s := range m {
		if s != nil {
			s.RecordHealing(ctx, ev)
		}
	}
}

func (m Multi) RecordOperation(ctx context.Context, rec schemas.OperationRecord) {
	for _, s := range m {
		if s != nil {
			s.RecordOperation(ctx, rec)
		}
	}
}
