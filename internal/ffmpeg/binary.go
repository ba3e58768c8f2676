// Package ffmpeg wraps the ffmpeg and ffprobe binaries: locating them,
// running them as supervised child processes, and probing media files.
package ffmpeg

import (
	"fmt"
	"os/exec"
)

// Binaries holds the resolved paths of the external tools.
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

// FindBinaries resolves the ffmpeg and ffprobe executables. Explicit paths
// from configuration win; bare names are looked up on PATH.
func FindBinaries(ffmpegPath, ffprobePath string) (Binaries, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	ffmpeg, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return Binaries{}, fmt.Errorf("ffmpeg not found at %q: %w", ffmpegPath, err)
	}
	ffprobe, err := exec.LookPath(ffprobePath)
	if err != nil {
		return Binaries{}, fmt.Errorf("ffprobe not found at %q: %w", ffprobePath, err)
	}

	return Binaries{FFmpeg: ffmpeg, FFprobe: ffprobe}, nil
}
