// Package upload receives media files, validates them, and runs the ingest
// pipeline: thumbnail, conditioning decision, and channel registration.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/internal/transcode"
)

// AllowedExtensions is the set of uploadable media types.
var AllowedExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".ts": true, ".m2ts": true,
	".mp3": true, ".wav": true, ".flac": true, ".aac": true,
	".m4a": true, ".ogg": true,
}

// AudioExtensions is the subset that gets a waveform thumbnail instead of a
// video frame.
var AudioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true,
	".aac": true, ".m4a": true, ".ogg": true,
}

// ValidateExtension reports whether a filename has an allowed media type.
func ValidateExtension(filename string) bool {
	return AllowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Service runs the upload and re-conditioning pipelines.
type Service struct {
	origDir  string
	transDir string
	thumbDir string
	runner   *ffmpeg.Runner
	prober   *ffmpeg.Prober
	reg      *registry.Registry
	logger   *slog.Logger
}

// NewService creates the pipeline service. The three directories are created
// if missing.
func NewService(origDir, transDir, thumbDir string, runner *ffmpeg.Runner, prober *ffmpeg.Prober,
	reg *registry.Registry, logger *slog.Logger) (*Service, error) {

	if logger == nil {
		logger = slog.Default()
	}
	for _, d := range []string{origDir, transDir, thumbDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media directory %s: %w", d, err)
		}
	}
	return &Service{
		origDir:  origDir,
		transDir: transDir,
		thumbDir: thumbDir,
		runner:   runner,
		prober:   prober,
		reg:      reg,
		logger:   observability.WithComponent(logger, "upload"),
	}, nil
}

// OriginalPath returns the stored location for a channel's uploaded file.
func (s *Service) OriginalPath(cid int, filename string) string {
	return filepath.Join(s.origDir, fmt.Sprintf("CH%02d_%s", cid+1, filename))
}

func (s *Service) transcodedPath(cid int, filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return filepath.Join(s.transDir, fmt.Sprintf("CH%02d_%s.ts", cid+1, stem))
}

// Process saves an uploaded file and kicks off the ingest pipeline in the
// background. It returns once the file is on disk. An existing file with
// the same name is a conflict unless overwrite is set.
func (s *Service) Process(ctx context.Context, cid int, filename string, src io.Reader,
	profile models.TranscodeProfile, overwrite bool) error {

	if !s.reg.ValidCID(cid) {
		return models.ErrInvalidChannelID
	}
	if !ValidateExtension(filename) {
		return fmt.Errorf("%w: %s", models.ErrUnsupportedExtension, filepath.Ext(filename))
	}

	dst := s.OriginalPath(cid, filename)
	if _, err := os.Stat(dst); err == nil && !overwrite {
		return models.ErrFileExists
	}

	if err := s.save(dst, src); err != nil {
		return err
	}

	if info, err := os.Stat(dst); err == nil {
		s.logger.Info("file uploaded", "channel", cid, "filename", filename,
			"size_mb", float64(info.Size())/(1<<20), "codec", profile.Codec)
	}

	go s.ingest(ctx, cid, dst, filename, profile)
	return nil
}

func (s *Service) save(dst string, src io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write upload: %w", err)
	}
	return f.Close()
}

// ingest conditions a saved original and registers the channel when ready.
func (s *Service) ingest(ctx context.Context, cid int, srcPath, filename string, profile models.TranscodeProfile) {
	if err := s.GenerateThumbnail(ctx, srcPath, cid); err != nil {
		s.logger.Error("thumbnail failed", "channel", cid, "error", err)
	}

	if profile.Codec == models.CodecCopy {
		// Stream-time passthrough: serve the original directly.
		if _, _, err := s.reg.AddChannel(cid, srcPath, filename, false, srcPath, profile); err != nil {
			s.logger.Error("channel registration failed", "channel", cid, "error", err)
		}
		return
	}

	dst := s.transcodedPath(cid, filename)
	run := profile

	// A source that already satisfies the target profile only needs a
	// container remux. An unreadable probe forces the full encode.
	if info := s.prober.MediaInfo(ctx, srcPath); transcode.SpecsMatch(info, profile) {
		s.logger.Info("source matches target profile, remuxing",
			"channel", cid, "filename", filename)
		run.Codec = models.CodecCopy
	}

	err := s.reg.StartTranscode(ctx, cid, srcPath, dst, run, transcode.Callbacks{
		OnComplete: func() {
			if _, _, err := s.reg.AddChannel(cid, dst, filename, true, srcPath, profile); err != nil {
				s.logger.Error("channel registration failed", "channel", cid, "error", err)
			}
		},
	})
	if err != nil {
		// The registry already reported transcode_error on the bus.
		s.logger.Error("transcode start failed", "channel", cid, "error", err)
	}
}

// Retranscode re-conditions a channel's stored original with a new profile.
// A running stream is stopped for the duration and restarted afterwards.
func (s *Service) Retranscode(ctx context.Context, cid int, profile models.TranscodeProfile) error {
	meta, ok := s.reg.Channel(cid)
	if !ok {
		return models.ErrChannelNotFound
	}
	srcPath := meta.SrcPath
	if srcPath == "" {
		srcPath = meta.Filepath
	}
	if srcPath == "" {
		return models.ErrSourceNotFound
	}
	if _, err := os.Stat(srcPath); err != nil {
		return models.ErrSourceNotFound
	}

	wasRunning := s.reg.IsRunning(cid)
	if wasRunning {
		s.reg.Stop(cid)
	}

	if profile.Codec == models.CodecCopy {
		if _, _, err := s.reg.AddChannel(cid, srcPath, meta.Filename, false, srcPath, profile); err != nil {
			return err
		}
		if wasRunning {
			if err := s.reg.Start(ctx, cid); err != nil {
				return err
			}
		}
		s.logger.Info("channel switched to passthrough", "channel", cid)
		return nil
	}

	dst := s.transcodedPath(cid, meta.Filename)
	err := s.reg.StartTranscode(ctx, cid, srcPath, dst, profile, transcode.Callbacks{
		OnComplete: func() {
			if _, _, err := s.reg.AddChannel(cid, dst, meta.Filename, true, srcPath, profile); err != nil {
				s.logger.Error("channel registration failed", "channel", cid, "error", err)
				return
			}
			if wasRunning {
				if err := s.reg.Start(ctx, cid); err != nil {
					s.logger.Error("restart after transcode failed", "channel", cid, "error", err)
				}
			}
		},
	})
	if err != nil {
		return err
	}
	s.logger.Info("re-transcode started", "channel", cid,
		"codec", profile.Codec, "preset", profile.Preset)
	return nil
}

// RemoveMedia deletes a removed channel's media files and thumbnail.
func (s *Service) RemoveMedia(meta models.Channel) {
	seen := map[string]bool{}
	for _, path := range []string{meta.SrcPath, meta.Filepath} {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not delete media file", "path", path, "error", err)
		}
	}
	thumb := s.ThumbPath(meta.ID)
	if err := os.Remove(thumb); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not delete thumbnail", "path", thumb, "error", err)
	}
}
