package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "trims whitespace",
			input:    []string{"  acct-a  ", "acct-b  "},
			expected: []string{"acct-a", "acct-b"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"acct-a", "acct-b", "acct-a"},
			expected: []string{"acct-a", "acct-b"},
		},
		{
			name:     "drops empty entries from trailing commas",
			input:    []string{"acct-a", "", "  ", "acct-b"},
			expected: []string{"acct-a", "acct-b"},
		},
		{
			name:     "case sensitive",
			input:    []string{"Acct-A", "acct-a"},
			expected: []string{"Acct-A", "acct-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
