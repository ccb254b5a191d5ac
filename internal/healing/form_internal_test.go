package healing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoped(t *testing.T) {
	tests := []struct {
		name  string
		form  string
		field string
		want  string
	}{
		{"single", "#signup", `[name="email"]`, `#signup [name="email"]`},
		{"form list", "form, .signup", "#email", "form #email, .signup #email"},
		{
			"commas inside brackets and quotes",
			`form[data-x="a,b"]`, `input[placeholder*="city, state" i]`,
			`form[data-x="a,b"] input[placeholder*="city, state" i]`,
		},
		{"pseudo arguments", "form:not(.a, .b)", "#zip", "form:not(.a, .b) #zip"},
		{"both lists", "#a, #b", "input, select", "#a input, #a select, #b input, #b select"},
		{"empty items dropped", "#a, ", "input", "#a input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoped(tt.form, tt.field))
		})
	}
}
