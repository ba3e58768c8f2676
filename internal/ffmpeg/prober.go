package ffmpeg

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/observability"
)

// probeTimeout bounds a single ffprobe invocation.
const probeTimeout = 15 * time.Second

// Prober inspects media files with ffprobe.
type Prober struct {
	binary string
	logger *slog.Logger
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(binary string, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		binary: binary,
		logger: observability.WithComponent(logger, "ffprobe"),
	}
}

// probeResult mirrors the subset of ffprobe's JSON output we consume.
type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	BitRate      string `json:"bit_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

// Duration returns the media duration in seconds, or 0 when the file cannot
// be probed. Callers treat 0 as unknown.
func (p *Prober) Duration(ctx context.Context, path string) float64 {
	out, err := p.run(ctx, path)
	if err != nil {
		p.logger.Warn("duration probe failed", "path", path, "error", err)
		return 0
	}
	info, err := ParseProbeOutput(out)
	if err != nil {
		p.logger.Warn("duration probe parse failed", "path", path, "error", err)
		return 0
	}
	return info.Duration
}

// MediaInfo probes a file and returns its stream summary. A nil result means
// the probe failed; callers that gate on probe data must treat nil as
// unknown and refuse shortcuts that depend on it.
func (p *Prober) MediaInfo(ctx context.Context, path string) *models.MediaInfo {
	out, err := p.run(ctx, path)
	if err != nil {
		p.logger.Warn("media probe failed", "path", path, "error", err)
		return nil
	}
	info, err := ParseProbeOutput(out)
	if err != nil {
		p.logger.Warn("media probe parse failed", "path", path, "error", err)
		return nil
	}
	return &info
}

func (p *Prober) run(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	return cmd.Output()
}

// ParseProbeOutput converts raw ffprobe JSON into a MediaInfo. The first
// video and first audio stream win; later streams are ignored.
func ParseProbeOutput(raw []byte) (models.MediaInfo, error) {
	var result probeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.MediaInfo{}, err
	}

	var info models.MediaInfo
	info.Duration, _ = strconv.ParseFloat(result.Format.Duration, 64)

	for _, s := range result.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseFrameRate(s.RFrameRate)
			}
			info.VideoBitrate, _ = strconv.ParseInt(s.BitRate, 10, 64)
		case "audio":
			if info.AudioCodec != "" {
				continue
			}
			info.AudioCodec = s.CodecName
			info.AudioBitrate, _ = strconv.ParseInt(s.BitRate, 10, 64)
		}
	}

	// Containers like mkv often omit per-stream bitrates. Fall back to the
	// container bitrate for video when the stream value is missing.
	if info.VideoBitrate == 0 && info.VideoCodec != "" {
		if total, err := strconv.ParseInt(result.Format.BitRate, 10, 64); err == nil {
			info.VideoBitrate = total - info.AudioBitrate
			if info.VideoBitrate < 0 {
				info.VideoBitrate = 0
			}
		}
	}

	return info, nil
}

// parseFrameRate evaluates an ffprobe rational like "30000/1001" or "25/1".
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
