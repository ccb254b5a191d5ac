package schemas

import "time"

// -- Telemetry Schemas --

// MessageType discriminates telemetry payloads travelling over the bus.
type MessageType string

const (
	MessageHealingEvent MessageType = "healing_event"
	MessageOperation    MessageType = "operation"
)

// HealingEvent is the immutable record of one orchestration-level healing attempt.
type HealingEvent struct {
	ID               string     `json:"id"`
	Action           ActionKind `json:"action"`
	OriginalSelector string     `json:"original_selector"`
	HealedSelector   string     `json:"healed_selector,omitempty"`
	Strategy         string     `json:"strategy"`
	Success          bool       `json:"success"`
	HealingTimeMs    float64    `json:"healing_time_ms"`
	Attempts         int        `json:"attempts"`
	Error            string     `json:"error,omitempty"`
	Page             string     `json:"page,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Healed reports whether the event substituted a different selector for the original.
func (e HealingEvent) Healed() bool {
	return e.Success && e.HealedSelector != "" && e.HealedSelector != e.OriginalSelector
}

// OperationRecord is emitted once per resolution attempt.
type OperationRecord struct {
	ID             string    `json:"id"`
	Operation      string    `json:"operation"`
	Selector       string    `json:"selector"`
	Strategy       string    `json:"strategy,omitempty"`
	Success        bool      `json:"success"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Reason         string    `json:"reason,omitempty"`
	Attempted      []string  `json:"attempted,omitempty"`
	Page           string    `json:"page,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// OperationResolve is the Operation value used by the element resolver.
const OperationResolve = "resolve"
