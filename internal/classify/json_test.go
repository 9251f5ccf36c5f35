package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain object", `{"doc_type":"passport"}`, `{"doc_type":"passport"}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} Hope this helps.`, `{"a":{"b":2}}`},
		{"think tags", "<think>maybe {x}</think>\n{\"a\":1}", `{"a":1}`},
		{"braces inside strings", `{"names":["J. {Jr} Doe"],"q":"\"}"}`, `{"names":["J. {Jr} Doe"],"q":"\"}"}`},
		{"array", `result: [{"page":1}]`, `[{"page":1}]`},
		{"first of two objects", `{"a":1} and {"b":2}`, `{"a":1}`},
		{"prose braces first", `Note {see below} result: {"complexity":"hard","doc_type":"passport"}`, `{"complexity":"hard","doc_type":"passport"}`},
		{"bracket aside first", `Pages [1-2] follow: {"pages":{"1":{"complexity":"easy"}}}`, `{"pages":{"1":{"complexity":"easy"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoPayload(t *testing.T) {
	for _, response := range []string{"", "I could not read this page.", `{"unterminated": true`} {
		_, err := ExtractJSON(response)
		assert.Error(t, err, response)
	}
}
