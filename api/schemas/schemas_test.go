package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

func TestElementSignature_HasClass(t *testing.T) {
	sig := &schemas.ElementSignature{Tag: "button", Classes: []string{"btn", "primary"}}
	assert.True(t, sig.HasClass("btn"))
	assert.False(t, sig.HasClass("Btn"), "class names are case-sensitive")
	assert.False(t, (&schemas.ElementSignature{}).HasClass("btn"))
}

func TestHealingEvent_Healed(t *testing.T) {
	tests := []struct {
		name string
		ev   schemas.HealingEvent
		want bool
	}{
		{"direct success", schemas.HealingEvent{Success: true, OriginalSelector: "#a", HealedSelector: "#a"}, false},
		{"no healed selector", schemas.HealingEvent{Success: true, OriginalSelector: "#a"}, false},
		{"substituted", schemas.HealingEvent{Success: true, OriginalSelector: "#a", HealedSelector: "#b"}, true},
		{"failed", schemas.HealingEvent{OriginalSelector: "#a", HealedSelector: "#b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.Healed())
		})
	}
}
