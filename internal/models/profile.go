// Package models defines the channel, profile, and event payload types
// shared across the lavacast core.
package models

import "github.com/lavacast/lavacast/pkg/bitrate"

// Codec identifiers accepted by the transcode pipeline.
const (
	CodecCopy = "copy"
	CodecH264 = "h264"
	CodecH265 = "h265"
)

// Encapsulation identifiers for the multicast wire format.
const (
	EncapUDP = "udp"
	EncapRTP = "rtp"
)

// ValidCodecs is the set of accepted codec identifiers.
var ValidCodecs = map[string]bool{
	CodecCopy: true,
	CodecH264: true,
	CodecH265: true,
}

// ValidPresets is the set of accepted encoder presets.
var ValidPresets = map[string]bool{
	"ultrafast": true,
	"superfast": true,
	"fast":      true,
	"medium":    true,
	"slow":      true,
}

// ValidResolutions is the set of accepted target resolutions.
var ValidResolutions = map[string]bool{
	"original": true,
	"720p":     true,
	"1080p":    true,
	"1440p":    true,
	"4k":       true,
}

// ValidFPS is the set of accepted target frame rates. Fractional broadcast
// rates use their conventional decimal spelling and map to N/1001 fractions.
var ValidFPS = map[string]bool{
	"original": true,
	"23.976":   true,
	"24":       true,
	"25":       true,
	"29.97":    true,
	"30":       true,
	"50":       true,
	"59.94":    true,
	"60":       true,
}

// ResolutionSize maps a resolution name to its width and height.
var ResolutionSize = map[string][2]int{
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"4k":    {3840, 2160},
}

// FPSFraction maps fractional frame rates to their exact N/1001 ffmpeg
// spelling. Integer rates pass through unchanged.
var FPSFraction = map[string]string{
	"23.976": "24000/1001",
	"29.97":  "30000/1001",
	"59.94":  "60000/1001",
}

// FPSValue returns the numeric frame rate for an fps name, or 0 for
// "original" and unknown values.
func FPSValue(fps string) float64 {
	switch fps {
	case "23.976":
		return 24000.0 / 1001.0
	case "29.97":
		return 30000.0 / 1001.0
	case "59.94":
		return 60000.0 / 1001.0
	case "24":
		return 24
	case "25":
		return 25
	case "30":
		return 30
	case "50":
		return 50
	case "60":
		return 60
	default:
		return 0
	}
}

// BitratePreset is a labeled stream bitrate choice offered by the UI.
type BitratePreset struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// BitratePresets is the stream-time bitrate menu. The empty value means
// passthrough with no rate control.
var BitratePresets = []BitratePreset{
	{"Passthrough (copy)", ""},
	{"1 Mbps", "1M"}, {"2 Mbps", "2M"}, {"4 Mbps", "4M"},
	{"6 Mbps", "6M"}, {"8 Mbps", "8M"}, {"10 Mbps", "10M"},
	{"15 Mbps", "15M"}, {"20 Mbps", "20M"},
}

// TranscodeProfile is the tuple of settings a conditioning job runs with.
type TranscodeProfile struct {
	Codec      string `json:"codec" mapstructure:"codec"`
	Preset     string `json:"preset" mapstructure:"preset"`
	VBitrate   string `json:"vbitrate" mapstructure:"vbitrate"`
	ABitrate   string `json:"abitrate" mapstructure:"abitrate"`
	Resolution string `json:"resolution" mapstructure:"resolution"`
	FPS        string `json:"fps" mapstructure:"fps"`
}

// DefaultProfile returns the built-in transcode profile.
func DefaultProfile() TranscodeProfile {
	return TranscodeProfile{
		Codec:      CodecH264,
		Preset:     "fast",
		VBitrate:   "8M",
		ABitrate:   "192k",
		Resolution: "1080p",
		FPS:        "original",
	}
}

// Sanitize replaces invalid fields with the corresponding values from
// fallback. The codec is the exception: an invalid codec is an error the
// caller must surface, so Sanitize reports it instead of masking it.
func (p TranscodeProfile) Sanitize(fallback TranscodeProfile) (TranscodeProfile, error) {
	if !ValidCodecs[p.Codec] {
		return p, ErrInvalidCodec
	}
	if !ValidPresets[p.Preset] {
		p.Preset = fallback.Preset
	}
	if !ValidResolutions[p.Resolution] {
		p.Resolution = fallback.Resolution
	}
	if !ValidFPS[p.FPS] {
		p.FPS = fallback.FPS
	}
	if !bitrate.Valid(p.VBitrate) {
		p.VBitrate = fallback.VBitrate
	}
	if !bitrate.Valid(p.ABitrate) {
		p.ABitrate = fallback.ABitrate
	}
	return p, nil
}
