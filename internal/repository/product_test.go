package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "aviator", want: "%aviator%"},
		{in: "100%", want: `%100\%%`},
		{in: "gl_1", want: `%gl\_1%`},
		{in: `a\b`, want: `%a\\b%`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, containsPattern(tt.in))
		})
	}
}
