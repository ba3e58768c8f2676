package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lavacast/lavacast/internal/models"
)

func matchingInfo() *models.MediaInfo {
	return &models.MediaInfo{
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		Width:        1920,
		Height:       1080,
		FPS:          29.97,
		VideoBitrate: 6_000_000,
		AudioBitrate: 192_000,
		Duration:     120,
	}
}

func matchingProfile() models.TranscodeProfile {
	return models.TranscodeProfile{
		Codec:      models.CodecH264,
		Preset:     "fast",
		VBitrate:   "8M",
		ABitrate:   "192k",
		Resolution: "1080p",
		FPS:        "29.97",
	}
}

func TestSpecsMatch(t *testing.T) {
	tests := []struct {
		name    string
		info    func(*models.MediaInfo)
		profile func(*models.TranscodeProfile)
		want    bool
	}{
		{"exact match", nil, nil, true},
		{"wrong video codec", func(i *models.MediaInfo) { i.VideoCodec = "mpeg2video" }, nil, false},
		{"h265 wants hevc", func(i *models.MediaInfo) { i.VideoCodec = "hevc" },
			func(p *models.TranscodeProfile) { p.Codec = models.CodecH265 }, true},
		{"h265 rejects h264", nil,
			func(p *models.TranscodeProfile) { p.Codec = models.CodecH265 }, false},
		{"copy codec never matches", nil,
			func(p *models.TranscodeProfile) { p.Codec = models.CodecCopy }, false},
		{"non-aac audio", func(i *models.MediaInfo) { i.AudioCodec = "ac3" }, nil, false},
		{"wrong resolution", func(i *models.MediaInfo) { i.Width = 1280; i.Height = 720 }, nil, false},
		{"original resolution accepts anything",
			func(i *models.MediaInfo) { i.Width = 720; i.Height = 576 },
			func(p *models.TranscodeProfile) { p.Resolution = "original" }, true},
		{"fps outside tolerance", func(i *models.MediaInfo) { i.FPS = 25 }, nil, false},
		{"fps within tolerance", func(i *models.MediaInfo) { i.FPS = 29.92 }, nil, true},
		{"original fps accepts anything", func(i *models.MediaInfo) { i.FPS = 48 },
			func(p *models.TranscodeProfile) { p.FPS = "original" }, true},
		{"video bitrate too high", func(i *models.MediaInfo) { i.VideoBitrate = 12_000_000 }, nil, false},
		{"video bitrate within slack", func(i *models.MediaInfo) { i.VideoBitrate = 9_500_000 }, nil, true},
		{"unknown video bitrate is permissive", func(i *models.MediaInfo) { i.VideoBitrate = 0 }, nil, true},
		{"audio bitrate too high", func(i *models.MediaInfo) { i.AudioBitrate = 320_000 }, nil, false},
		{"unknown audio bitrate is permissive", func(i *models.MediaInfo) { i.AudioBitrate = 0 }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := matchingInfo()
			profile := matchingProfile()
			if tt.info != nil {
				tt.info(info)
			}
			if tt.profile != nil {
				tt.profile(&profile)
			}
			assert.Equal(t, tt.want, SpecsMatch(info, profile))
		})
	}
}

func TestSpecsMatchEmptyProbe(t *testing.T) {
	assert.False(t, SpecsMatch(nil, matchingProfile()))
	assert.False(t, SpecsMatch(&models.MediaInfo{}, matchingProfile()))
}
