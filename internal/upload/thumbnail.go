package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lavacast/lavacast/internal/ffmpeg"
)

const (
	thumbWidth  = 320
	thumbHeight = 180

	waveformTimeout = 15 * time.Second
	frameTimeout    = 45 * time.Second
)

// ThumbPath returns the on-disk thumbnail location for a channel.
func (s *Service) ThumbPath(cid int) string {
	return filepath.Join(s.thumbDir, fmt.Sprintf("ch%d.jpg", cid))
}

// GenerateThumbnail renders a 320x180 JPEG preview for a media file. Audio
// files get a waveform, video files a frame from 10% into the runtime.
func (s *Service) GenerateThumbnail(ctx context.Context, src string, cid int) error {
	thumb := s.ThumbPath(cid)
	ext := strings.ToLower(filepath.Ext(src))

	if AudioExtensions[ext] {
		return s.runThumb(ctx, waveformTimeout, []string{
			"-y", "-i", src,
			"-filter_complex",
			fmt.Sprintf("showwavespic=s=%dx%d:colors=#ff6a00", thumbWidth, thumbHeight),
			"-frames:v", "1", thumb,
		})
	}

	dur := s.prober.Duration(ctx, src)
	if dur <= 0 {
		dur = 10
	}
	seek := dur * 0.1

	return s.runThumb(ctx, frameTimeout, []string{
		"-y", "-ss", fmt.Sprintf("%.2f", seek), "-i", src,
		"-vframes", "1",
		"-vf", fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
			thumbWidth, thumbHeight, thumbWidth, thumbHeight),
		thumb,
	})
}

func (s *Service) runThumb(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc, err := s.runner.Spawn(ctx, args, ffmpeg.SpawnOptions{})
	if err != nil {
		return err
	}
	return proc.Wait()
}

// RegenerateMissing recreates thumbnails for restored channels whose
// preview file disappeared, typically after a data directory move.
func (s *Service) RegenerateMissing(ctx context.Context) {
	for _, ch := range s.reg.Status() {
		if _, err := os.Stat(s.ThumbPath(ch.ID)); err == nil {
			continue
		}
		src := ch.SrcPath
		if src == "" {
			src = ch.Filepath
		}
		if src == "" {
			continue
		}
		if _, err := os.Stat(src); err != nil {
			continue
		}
		s.logger.Info("regenerating missing thumbnail", "channel", ch.ID)
		if err := s.GenerateThumbnail(ctx, src, ch.ID); err != nil {
			s.logger.Error("thumbnail regeneration failed", "channel", ch.ID, "error", err)
		}
	}
}
