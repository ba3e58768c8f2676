package stream

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/models"
)

func testChannel() models.Channel {
	return models.Channel{
		ID:       2,
		Filepath: "/media/CH03_movie.ts",
		IP:       "239.1.1.3",
		Port:     5104,
		Encap:    models.EncapUDP,
		Bitrate:  "6M",
		Loop:     true,
	}
}

func TestBuildArgsUDP(t *testing.T) {
	w := NewWorker(nil, nil, testChannel())

	assert.Equal(t, []string{
		"-re",
		"-stream_loop", "-1",
		"-i", "/media/CH03_movie.ts",
		"-b:v", "6M", "-maxrate", "6M", "-bufsize", "12000k",
		"-f", "mpegts",
		"udp://239.1.1.3:5104?pkt_size=1316&ttl=10",
	}, w.BuildArgs())
}

func TestBuildArgsRTP(t *testing.T) {
	ch := testChannel()
	ch.Encap = models.EncapRTP
	w := NewWorker(nil, nil, ch)

	args := w.BuildArgs()
	assert.Contains(t, args, "rtp_mpegts")
	assert.Contains(t, args, "rtp://239.1.1.3:5104?pkt_size=1316&ttl=10")
}

func TestBuildArgsCopyModes(t *testing.T) {
	t.Run("no bitrate means passthrough", func(t *testing.T) {
		ch := testChannel()
		ch.Bitrate = ""
		w := NewWorker(nil, nil, ch)
		args := w.BuildArgs()
		assert.Contains(t, args, "copy")
		assert.NotContains(t, args, "-b:v")
	})

	t.Run("pre-transcoded always copies", func(t *testing.T) {
		ch := testChannel()
		ch.PreTranscoded = true
		w := NewWorker(nil, nil, ch)
		args := w.BuildArgs()
		assert.Contains(t, args, "copy")
		assert.NotContains(t, args, "-b:v")
	})
}

func TestBuildArgsNoLoop(t *testing.T) {
	ch := testChannel()
	ch.Loop = false
	w := NewWorker(nil, nil, ch)
	assert.NotContains(t, w.BuildArgs(), "-stream_loop")
}

func TestBuildArgsUnparsableBitrateBufsize(t *testing.T) {
	ch := testChannel()
	ch.Bitrate = "weird"
	w := NewWorker(nil, nil, ch)
	args := w.BuildArgs()
	// Falls back to the 4 Mbps bufsize baseline.
	assert.Contains(t, args, "8000k")
}

func TestUpdateSettings(t *testing.T) {
	w := NewWorker(nil, nil, testChannel())

	ip := "239.1.1.9"
	port := 5200
	encap := models.EncapRTP
	loop := false
	was := w.UpdateSettings(Settings{IP: &ip, Port: &port, Encap: &encap, Loop: &loop})
	assert.False(t, was, "worker was never started")

	args := w.BuildArgs()
	assert.Contains(t, args, "rtp://239.1.1.9:5200?pkt_size=1316&ttl=10")
	assert.NotContains(t, args, "-stream_loop")
}

func TestSetFilepath(t *testing.T) {
	w := NewWorker(nil, nil, testChannel())
	w.SetFilepath("/media/CH03_other.ts", true)

	args := w.BuildArgs()
	assert.Contains(t, args, "/media/CH03_other.ts")
	assert.Contains(t, args, "copy")
}

func TestSetFilepathConcurrentWithStart(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "fakestream")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))

	w := NewWorker(ffmpeg.NewRunner(bin, nil), nil, testChannel())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			w.SetFilepath("/media/CH03_other.ts", false)
		}
	}()

	require.NoError(t, w.Start(context.Background(), nil))
	<-done
	w.Stop()
	assert.Contains(t, w.BuildArgs(), "/media/CH03_other.ts")
}

func TestInterfaceIPv4Missing(t *testing.T) {
	assert.Empty(t, InterfaceIPv4(""))
	assert.Empty(t, InterfaceIPv4("definitely-not-a-nic-0"))
}
