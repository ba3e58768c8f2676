package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	fallback := DefaultProfile()

	t.Run("valid profile unchanged", func(t *testing.T) {
		p := TranscodeProfile{
			Codec: CodecH265, Preset: "slow", VBitrate: "4M", ABitrate: "128k",
			Resolution: "720p", FPS: "29.97",
		}
		got, err := p.Sanitize(fallback)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("invalid fields fall back", func(t *testing.T) {
		p := TranscodeProfile{
			Codec: CodecH264, Preset: "veryslow", VBitrate: "lots", ABitrate: "128kbit",
			Resolution: "480p", FPS: "120",
		}
		got, err := p.Sanitize(fallback)
		require.NoError(t, err)
		assert.Equal(t, fallback.Preset, got.Preset)
		assert.Equal(t, fallback.VBitrate, got.VBitrate)
		assert.Equal(t, fallback.ABitrate, got.ABitrate)
		assert.Equal(t, fallback.Resolution, got.Resolution)
		assert.Equal(t, fallback.FPS, got.FPS)
	})

	t.Run("invalid codec is an error", func(t *testing.T) {
		p := TranscodeProfile{Codec: "vp9", Preset: "fast", VBitrate: "8M", ABitrate: "192k",
			Resolution: "1080p", FPS: "original"}
		_, err := p.Sanitize(fallback)
		assert.ErrorIs(t, err, ErrInvalidCodec)
	})
}

func TestFPSValue(t *testing.T) {
	assert.InDelta(t, 23.976, FPSValue("23.976"), 0.001)
	assert.InDelta(t, 29.97, FPSValue("29.97"), 0.001)
	assert.InDelta(t, 59.94, FPSValue("59.94"), 0.001)
	assert.Equal(t, 25.0, FPSValue("25"))
	assert.Equal(t, 0.0, FPSValue("original"))
}

func TestChannelAddress(t *testing.T) {
	c := Channel{IP: "239.1.1.2", Port: 5102}
	assert.Equal(t, "239.1.1.2:5102", c.Address())
}

func TestNetKeys(t *testing.T) {
	for _, k := range []string{"ip", "port", "encap", "bitrate", "loop", "nic"} {
		assert.True(t, NetKeys[k], k)
	}
	for _, k := range []string{"codec", "preset", "vbitrate", "abitrate", "filename"} {
		assert.False(t, NetKeys[k], k)
	}
}
