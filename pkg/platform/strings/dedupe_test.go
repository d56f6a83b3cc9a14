package strings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	platformstrings "custodia/pkg/platform/strings"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "drops duplicates preserving order",
			input: []string{"contact", "health", "contact"},
			want:  []string{"contact", "health"},
		},
		{
			name:  "lowercases and trims",
			input: []string{" Contact ", "HEALTH"},
			want:  []string{"contact", "health"},
		},
		{
			name:  "normalised values collapse",
			input: []string{"contact", " CONTACT "},
			want:  []string{"contact"},
		},
		{
			name:  "drops empties",
			input: []string{"", "  ", "contact"},
			want:  []string{"contact"},
		},
		{
			name:  "nil stays nil",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, platformstrings.DedupeAndTrimLower(tt.input))
		})
	}
}
