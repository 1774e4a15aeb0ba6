package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		max     int
		want    string
		wantErr error
	}{
		{"trims whitespace", "  hello \n", 10, "hello", nil},
		{"empty", "", 10, "", ErrEmptyContent},
		{"only whitespace", " \t\n ", 10, "", ErrEmptyContent},
		{"exactly max", strings.Repeat("a", 10), 10, strings.Repeat("a", 10), nil},
		{"over max", strings.Repeat("a", 11), 10, "", ErrContentTooLong},
		{"multibyte counted as characters", strings.Repeat("好", 10), 10, strings.Repeat("好", 10), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeContent(tt.in, tt.max)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateChannelName(t *testing.T) {
	for _, ok := range []string{"general", "team-1", "ops_alerts", "a"} {
		assert.NoError(t, ValidateChannelName(ok), ok)
	}
	for _, bad := range []string{"", "General", "has space", "emoji😀", strings.Repeat("x", 81)} {
		assert.ErrorIs(t, ValidateChannelName(bad), ErrInvalidChannelName, bad)
	}
}
