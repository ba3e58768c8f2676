package bitrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Rate
		wantErr bool
	}{
		{"6M", 6_000_000, false},
		{"6m", 6_000_000, false},
		{"192k", 192_000, false},
		{"192K", 192_000, false},
		{"1.5M", 1_500_000, false},
		{"4000000", 4_000_000, false},
		{"", 0, false},
		{" 8M ", 8_000_000, false},
		{"abc", 0, true},
		{"6MB", 0, true},
		{"M", 0, true},
		{"-5M", 0, true},
		{"6 M", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValid(t *testing.T) {
	valid := []string{"6M", "192k", "1.5M", "10m", "0.5K"}
	for _, s := range valid {
		assert.True(t, Valid(s), "expected %q to be valid", s)
	}

	invalid := []string{"", "4000000", "6MB", "fast", "6 M", "k"}
	for _, s := range invalid {
		assert.False(t, Valid(s), "expected %q to be invalid", s)
	}
}

func TestParseLenient(t *testing.T) {
	assert.Equal(t, Rate(192_000), ParseLenient("192k"))
	assert.Equal(t, Rate(0), ParseLenient("garbage"))
	assert.Equal(t, Rate(0), ParseLenient(""))
}

func TestBufsizeLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"6M", "12000k"},
		{"4M", "8000k"},
		{"192k", "384k"},
		{"1.5M", "3000k"},
		{"", "8000k"},
	}

	for _, tt := range tests {
		r, err := Parse(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.BufsizeLiteral(), "input %q", tt.input)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "6M", Rate(6_000_000).String())
	assert.Equal(t, "192k", Rate(192_000).String())
	assert.Equal(t, "1500k", Rate(1_500_000).String())
	assert.Equal(t, "0", Rate(0).String())
}

func TestKbps(t *testing.T) {
	assert.Equal(t, 6000, Rate(6_000_000).Kbps())
	assert.Equal(t, 192, Rate(192_000).Kbps())
}
