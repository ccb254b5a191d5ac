// internal/dom/interactable.go
package dom

// Condition names accepted by CheckCondition.
const (
	ConditionVisible = "visible"
	ConditionExists  = "exists"
	ConditionEnabled = "enabled"
)

// IsInteractable reports whether el is rendered with a non-empty box, is visible, enabled
// and accepts pointer events.
//
// The check fails open: if the box or the computed style cannot be read, the element is
// reported as interactable.
func IsInteractable(el Element) bool {
	if el == nil {
		return false
	}

	rect, err := el.Box()
	if err != nil {
		return true
	}
	style, err := el.Style()
	if err != nil {
		return true
	}

	return rect.Width > 0 &&
		rect.Height > 0 &&
		style.Visibility != "hidden" &&
		style.Display != "none" &&
		style.Opacity != "0" &&
		!el.Disabled() &&
		style.PointerEvents != "none"
}

// CheckCondition evaluates a named readiness condition against el. Unknown conditions
// fall back to the visible check.
func CheckCondition(el Element, condition string) bool {
	if el == nil {
		return false
	}
	switch condition {
	case ConditionExists:
		return true
	case ConditionEnabled:
		return IsInteractable(el) && !el.Disabled()
	default:
		return IsInteractable(el)
	}
}
