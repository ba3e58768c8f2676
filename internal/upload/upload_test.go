package upload

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavacast/lavacast/internal/config"
	"github.com/lavacast/lavacast/internal/events"
	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/registry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	base := t.TempDir()
	store := registry.NewStore(filepath.Join(base, "state.json"), nil)
	bus := events.NewBus(16, nil)
	reg := registry.New(config.StreamingConfig{
		MaxChannels: 40, BasePort: 5100, MulticastBase: "239.1.1",
		DefaultEncap: models.EncapUDP, DefaultLoop: true,
	}, registry.TranscodeDefaults(models.DefaultProfile(), false), base, nil, nil, bus, store, nil)

	// A no-op binary stands in for ffmpeg so background pipeline steps
	// exit immediately without producing output.
	runner := ffmpeg.NewRunner("true", nil)
	prober := ffmpeg.NewProber("true", nil)

	svc, err := NewService(
		filepath.Join(base, "originals"),
		filepath.Join(base, "transcoded"),
		filepath.Join(base, "thumbnails"),
		runner, prober, reg, nil)
	require.NoError(t, err)
	return svc
}

func TestValidateExtension(t *testing.T) {
	valid := []string{"a.mp4", "b.MKV", "c.ts", "d.m2ts", "e.mp3", "f.FLAC", "g.ogg"}
	for _, name := range valid {
		assert.True(t, ValidateExtension(name), name)
	}

	invalid := []string{"a.exe", "b.srt", "c", "d.mp4.txt", "e.webm"}
	for _, name := range invalid {
		assert.False(t, ValidateExtension(name), name)
	}
}

func TestOriginalPathNaming(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, "CH01_movie.mp4", filepath.Base(svc.OriginalPath(0, "movie.mp4")))
	assert.Equal(t, "CH40_show.ts", filepath.Base(svc.OriginalPath(39, "show.ts")))
}

func TestTranscodedPathNaming(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, "CH03_movie.ts", filepath.Base(svc.transcodedPath(2, "movie.mkv")))
}

func TestProcessRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	profile := models.TranscodeProfile{Codec: models.CodecCopy}

	err := svc.Process(ctx, 99, "a.mp4", strings.NewReader("x"), profile, false)
	assert.ErrorIs(t, err, models.ErrInvalidChannelID)

	err = svc.Process(ctx, 0, "a.exe", strings.NewReader("x"), profile, false)
	assert.ErrorIs(t, err, models.ErrUnsupportedExtension)
}

func TestProcessConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	profile := models.TranscodeProfile{Codec: models.CodecCopy}

	require.NoError(t, svc.Process(ctx, 0, "a.ts", strings.NewReader("first"), profile, false))

	err := svc.Process(ctx, 0, "a.ts", strings.NewReader("second"), profile, false)
	assert.ErrorIs(t, err, models.ErrFileExists)

	// Overwrite replaces the stored file.
	require.NoError(t, svc.Process(ctx, 0, "a.ts", strings.NewReader("second"), profile, true))
}

func TestRetranscodeUnknownChannel(t *testing.T) {
	svc := newTestService(t)
	err := svc.Retranscode(context.Background(), 5, models.TranscodeProfile{Codec: models.CodecCopy})
	assert.ErrorIs(t, err, models.ErrChannelNotFound)
}

func TestThumbPath(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, "ch7.jpg", filepath.Base(svc.ThumbPath(7)))
}
