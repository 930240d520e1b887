package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"0812-3456-7890", "6281234567890", true},
		{"+62 812 3456 7890", "6281234567890", true},
		{"0062 812 3456 7890", "6281234567890", true},
		{"(0812) 345678", "62812345678", true},
		{"812345678", "62812345678", true},
		{"6281234567890", "6281234567890", true},
		{"0812", "", false},
		{"12", "", false},
		{"", "", false},
		{"no digits", "", false},
		{"+1 415 555 0100", "", false},
		{"62123456789012345", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizePhone(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
