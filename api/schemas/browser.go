package schemas

// -- Element Schemas --

// BoundingBox is the rendered geometry of an element in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementSignature is a comparable attribute bundle derived from a live element.
// Signatures are built on demand and must not be cached past a single comparison,
// the DOM they describe is mutable.
type ElementSignature struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id"`
	Classes    []string          `json:"classes"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
	Box        BoundingBox       `json:"box"`
	Path       string            `json:"path"`
}

// HasClass reports whether the signature's class set contains c.
func (s *ElementSignature) HasClass(c string) bool {
	for _, existing := range s.Classes {
		if existing == c {
			return true
		}
	}
	return false
}

// -- Strategy Schemas --

// Strategy is a named heuristic producing an alternative selector.
type Strategy struct {
	Name       string  `json:"name"`
	Selector   string  `json:"selector"`
	Confidence float64 `json:"confidence"`
}

// Well known strategy names that are not produced by the fallback generator.
const (
	StrategyDirect        = "direct"
	StrategyTextContains  = "text-contains"
	StrategyDirectMapping = "direct-mapping"
	StrategyExactText     = "exact-text"
	StrategyNavTestID     = "nav-testid"
	StrategyPartialText   = "partial-text"
	StrategyTextFallback  = "text-fallback"
	StrategyFieldFallback = "fallback-selector"
)

// -- Action Schemas --

// ActionKind identifies an orchestration-level action.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionFill     ActionKind = "fill"
	ActionNavigate ActionKind = "navigate"
)
