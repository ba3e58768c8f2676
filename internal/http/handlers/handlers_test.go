package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavacast/lavacast/internal/config"
	"github.com/lavacast/lavacast/internal/events"
	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/logs"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/internal/upload"
)

func newTestEnv(t *testing.T) (*registry.Registry, *upload.Service) {
	t.Helper()
	base := t.TempDir()
	store := registry.NewStore(filepath.Join(base, "state.json"), nil)
	bus := events.NewBus(16, nil)

	// A no-op binary stands in for ffmpeg so nothing real gets spawned.
	runner := ffmpeg.NewRunner("true", nil)
	prober := ffmpeg.NewProber("true", nil)

	reg := registry.New(config.StreamingConfig{
		MaxChannels: 40, BasePort: 5100, MulticastBase: "239.1.1",
		DefaultEncap: models.EncapUDP, DefaultLoop: true,
	}, registry.TranscodeDefaults(models.DefaultProfile(), false), base,
		runner, prober, bus, store, nil)

	svc, err := upload.NewService(
		filepath.Join(base, "originals"),
		filepath.Join(base, "transcoded"),
		filepath.Join(base, "thumbnails"),
		runner, prober, reg, nil)
	require.NoError(t, err)
	return reg, svc
}

func addTestChannel(t *testing.T, reg *registry.Registry, cid int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.ts")
	require.NoError(t, os.WriteFile(path, []byte("ts"), 0o644))
	reg.AddChannel(cid, path, "movie.ts", false, "", models.TranscodeProfile{Codec: models.CodecCopy})
	return path
}

func TestStatusHandler_GetStatus(t *testing.T) {
	reg, _ := newTestEnv(t)
	addTestChannel(t, reg, 0)

	handler := NewStatusHandler(reg, nil)
	out, err := handler.GetStatus(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, out.Body.Channels, 1)
	assert.Equal(t, 40, out.Body.MaxChannels)
	assert.NotEmpty(t, out.Body.BitratePresets)
	assert.Equal(t, "movie.ts", out.Body.Channels["0"].Filename)
}

func TestChannelsHandler_UpdateSettingsValidation(t *testing.T) {
	reg, svc := newTestEnv(t)
	addTestChannel(t, reg, 0)
	handler := NewChannelsHandler(reg, svc, 0, nil)

	badPort := &ChannelSettingsInput{CID: 0}
	port := 99999
	badPort.Body.Port = &port
	_, err := handler.UpdateSettings(context.Background(), badPort)
	assert.Error(t, err)

	badBitrate := &ChannelSettingsInput{CID: 0}
	b := "fast"
	badBitrate.Body.Bitrate = &b
	_, err = handler.UpdateSettings(context.Background(), badBitrate)
	assert.Error(t, err)

	badCodec := &ChannelSettingsInput{CID: 0}
	c := "av1"
	badCodec.Body.Codec = &c
	_, err = handler.UpdateSettings(context.Background(), badCodec)
	assert.Error(t, err)

	good := &ChannelSettingsInput{CID: 0}
	encap := models.EncapRTP
	good.Body.Encap = &encap
	out, err := handler.UpdateSettings(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, models.EncapRTP, out.Body.Meta.Encap)
}

func TestChannelsHandler_UpdateSettingsNotFound(t *testing.T) {
	reg, svc := newTestEnv(t)
	handler := NewChannelsHandler(reg, svc, 0, nil)

	input := &ChannelSettingsInput{CID: 5}
	loop := false
	input.Body.Loop = &loop
	_, err := handler.UpdateSettings(context.Background(), input)
	assert.Error(t, err)
}

func TestChannelsHandler_RetranscodeInvalidCodec(t *testing.T) {
	reg, svc := newTestEnv(t)
	addTestChannel(t, reg, 0)
	handler := NewChannelsHandler(reg, svc, 0, nil)

	input := &RetranscodeInput{CID: 0}
	input.Body.Codec = "vp9"
	_, err := handler.Retranscode(context.Background(), input)
	assert.Error(t, err)
}

func TestChannelsHandler_RetranscodeUnknownChannel(t *testing.T) {
	reg, svc := newTestEnv(t)
	handler := NewChannelsHandler(reg, svc, 0, nil)

	input := &RetranscodeInput{CID: 3}
	input.Body.Codec = models.CodecCopy
	_, err := handler.Retranscode(context.Background(), input)
	assert.Error(t, err)
}

func TestChannelsHandler_RemoveDeletesMedia(t *testing.T) {
	reg, svc := newTestEnv(t)
	path := addTestChannel(t, reg, 0)
	handler := NewChannelsHandler(reg, svc, 0, nil)

	out, err := handler.RemoveChannel(context.Background(), &ChannelInput{CID: 0})
	require.NoError(t, err)
	assert.Equal(t, "removed", out.Body.Status)

	_, ok := reg.Channel(0)
	assert.False(t, ok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSettingsHandler_UpdateTranscode(t *testing.T) {
	reg, _ := newTestEnv(t)
	handler := NewSettingsHandler(reg)

	input := &TranscodeSettingsInput{}
	input.Body.Enabled = true
	input.Body.Codec = models.CodecH265
	input.Body.Preset = "slow"
	out, err := handler.UpdateTranscode(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.Body.Enabled)
	assert.Equal(t, models.CodecH265, out.Body.Codec)
	assert.Equal(t, "slow", out.Body.Preset)

	bad := &TranscodeSettingsInput{}
	bad.Body.Codec = "prores"
	_, err = handler.UpdateTranscode(context.Background(), bad)
	assert.Error(t, err)
}

func TestSettingsHandler_UpdateGlobal(t *testing.T) {
	reg, _ := newTestEnv(t)
	handler := NewSettingsHandler(reg)

	input := &GlobalSettingsInput{}
	b := "6M"
	input.Body.GlobalBitrate = &b
	auto := false
	input.Body.AutoStart = &auto
	out, err := handler.UpdateGlobal(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "6M", out.Body.GlobalBitrate)
	assert.False(t, out.Body.AutoStart)

	bad := &GlobalSettingsInput{}
	nonsense := "superfast"
	bad.Body.GlobalBitrate = &nonsense
	_, err = handler.UpdateGlobal(context.Background(), bad)
	assert.Error(t, err)

	missing := &GlobalSettingsInput{}
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	missing.Body.MediaPath = &dir
	_, err = handler.UpdateGlobal(context.Background(), missing)
	assert.Error(t, err)
}

func TestLogsHandler_TailAndClear(t *testing.T) {
	svc := logs.NewService(filepath.Join(t.TempDir(), "app.log.json"), 100)
	svc.Append(logs.Entry{Level: "INFO", Message: "one"})
	svc.Append(logs.Entry{Level: "INFO", Message: "two"})
	handler := NewLogsHandler(svc)

	out, err := handler.GetLogs(context.Background(), &LogsInput{N: 0})
	require.NoError(t, err)
	assert.Len(t, out.Body.Entries, 2)

	cleared, err := handler.ClearLogs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cleared", cleared.Body.Status)

	// Clearing leaves exactly the audit entry behind.
	out, err = handler.GetLogs(context.Background(), &LogsInput{N: 10})
	require.NoError(t, err)
	assert.Len(t, out.Body.Entries, 1)
	assert.Equal(t, "Log cleared", out.Body.Entries[0].Message)
}

func TestSystemHandler_GetVersion(t *testing.T) {
	reg, _ := newTestEnv(t)
	handler := NewSystemHandler(reg, func() {}, nil)

	out, err := handler.GetVersion(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Body.Version)
	assert.NotEmpty(t, out.Body.Platform)
}
