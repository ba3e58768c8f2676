package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
	"streams": [
		{
			"codec_type": "video",
			"codec_name": "h264",
			"width": 1920,
			"height": 1080,
			"avg_frame_rate": "30000/1001",
			"r_frame_rate": "30000/1001",
			"bit_rate": "5500000"
		},
		{
			"codec_type": "audio",
			"codec_name": "aac",
			"bit_rate": "192000"
		}
	],
	"format": {
		"duration": "3600.500000",
		"bit_rate": "5800000"
	}
}`

func TestParseProbeOutput(t *testing.T) {
	info, err := ParseProbeOutput([]byte(sampleProbe))
	require.NoError(t, err)

	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, int64(5500000), info.VideoBitrate)
	assert.Equal(t, int64(192000), info.AudioBitrate)
	assert.InDelta(t, 3600.5, info.Duration, 0.001)
	assert.False(t, info.Empty())
}

func TestParseProbeOutputContainerBitrateFallback(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_type": "video", "codec_name": "hevc", "width": 1280, "height": 720,
			 "avg_frame_rate": "25/1"},
			{"codec_type": "audio", "codec_name": "aac", "bit_rate": "128000"}
		],
		"format": {"duration": "120.0", "bit_rate": "4128000"}
	}`
	info, err := ParseProbeOutput([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(4000000), info.VideoBitrate)
	assert.Equal(t, 25.0, info.FPS)
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	raw := `{
		"streams": [{"codec_type": "audio", "codec_name": "mp3", "bit_rate": "320000"}],
		"format": {"duration": "241.2"}
	}`
	info, err := ParseProbeOutput([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, info.VideoCodec)
	assert.Equal(t, "mp3", info.AudioCodec)
	assert.False(t, info.Empty())
}

func TestParseProbeOutputGarbage(t *testing.T) {
	_, err := ParseProbeOutput([]byte("not json"))
	assert.Error(t, err)

	info, err := ParseProbeOutput([]byte("{}"))
	require.NoError(t, err)
	assert.True(t, info.Empty())
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseFrameRate("24000/1001"), 0.001)
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 30.0, parseFrameRate("30"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
	assert.Equal(t, 0.0, parseFrameRate("x/y"))
}
