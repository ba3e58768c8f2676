package transcode

import (
	"math"

	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/pkg/bitrate"
)

// bitrateSlack is the tolerance applied when comparing source bitrates to
// the target. A source up to 20% over target still counts as matching,
// since re-encoding for a marginal rate difference costs more than it saves.
const bitrateSlack = 1.2

// SpecsMatch reports whether a probed source already satisfies the target
// profile, letting the upload pipeline remux instead of re-encoding. A nil
// or empty probe always fails: without stream data there is no basis to
// skip conditioning.
func SpecsMatch(info *models.MediaInfo, p models.TranscodeProfile) bool {
	if info == nil || info.Empty() {
		return false
	}

	switch p.Codec {
	case models.CodecH264:
		if info.VideoCodec != "h264" {
			return false
		}
	case models.CodecH265:
		if info.VideoCodec != "hevc" {
			return false
		}
	default:
		return false
	}

	if info.AudioCodec != "aac" {
		return false
	}

	if p.Resolution != "original" {
		size, ok := models.ResolutionSize[p.Resolution]
		if !ok || info.Width != size[0] || info.Height != size[1] {
			return false
		}
	}

	if p.FPS != "original" {
		want := models.FPSValue(p.FPS)
		if want == 0 || math.Abs(info.FPS-want) > 0.1 {
			return false
		}
	}

	// Unknown bitrates are permissive: a missing value never forces a
	// re-encode on its own.
	if vb := bitrate.ParseLenient(p.VBitrate); vb > 0 && info.VideoBitrate > 0 {
		if float64(info.VideoBitrate) > float64(vb)*bitrateSlack {
			return false
		}
	}
	if ab := bitrate.ParseLenient(p.ABitrate); ab > 0 && info.AudioBitrate > 0 {
		if float64(info.AudioBitrate) > float64(ab)*bitrateSlack {
			return false
		}
	}

	return true
}
