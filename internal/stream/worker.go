// Package stream manages the long-lived ffmpeg processes that push media to
// multicast addresses, one worker per channel.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/pkg/bitrate"
)

// Settings is a partial update of a worker's network parameters. Nil fields
// are left unchanged. Empty Bitrate and NIC strings clear the value.
type Settings struct {
	IP      *string
	Port    *int
	Encap   *string
	Bitrate *string
	Loop    *bool
	NIC     *string
}

// Worker streams one media file to one multicast endpoint. All methods are
// safe for concurrent use.
type Worker struct {
	runner *ffmpeg.Runner
	logger *slog.Logger

	cid int

	mu            sync.Mutex
	filepath      string
	ip            string
	port          int
	encap         string
	bitrate       string
	loop          bool
	nic           string
	preTranscoded bool

	running bool
	proc    *ffmpeg.Process
}

// NewWorker creates a stream worker from a channel description.
func NewWorker(runner *ffmpeg.Runner, logger *slog.Logger, ch models.Channel) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		runner:        runner,
		logger:        observability.WithComponent(logger, "stream").With("channel", ch.ID),
		cid:           ch.ID,
		filepath:      ch.Filepath,
		ip:            ch.IP,
		port:          ch.Port,
		encap:         ch.Encap,
		bitrate:       ch.Bitrate,
		loop:          ch.Loop,
		nic:           ch.NIC,
		preTranscoded: ch.PreTranscoded,
	}
}

// Running reports whether the worker's ffmpeg process is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start launches the ffmpeg process. onStop fires once when the process
// exits for any reason, including an explicit Stop. Starting a running
// worker is a no-op.
func (w *Worker) Start(ctx context.Context, onStop func(cid int)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	args := w.buildArgsLocked()
	proc, err := w.runner.Spawn(ctx, args, ffmpeg.SpawnOptions{})
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("channel %d: %w", w.cid, err)
	}
	w.running = true
	w.proc = proc

	dest := fmt.Sprintf("%s://%s:%d", w.encap, w.ip, w.port)
	file := w.filepath
	br := w.bitrate
	if br == "" {
		br = "passthrough"
	}
	w.mu.Unlock()

	observability.Stream(w.logger, "stream started",
		"file", file, "dest", dest, "bitrate", br)

	go func() {
		err := proc.Wait()

		w.mu.Lock()
		w.running = false
		w.proc = nil
		w.mu.Unlock()

		observability.Stream(w.logger, "stream stopped", "error", err)
		if onStop != nil {
			onStop(w.cid)
		}
	}()

	return nil
}

// Stop terminates the ffmpeg process and waits for it to exit. Stopping a
// stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	proc := w.proc
	w.mu.Unlock()
	if proc != nil {
		proc.Stop()
	}
}

// UpdateSettings stops the worker if needed, applies the new network
// parameters, and reports whether the worker was running. The caller is
// responsible for restarting it.
func (w *Worker) UpdateSettings(s Settings) bool {
	was := w.Running()
	if was {
		w.Stop()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if s.IP != nil {
		w.ip = *s.IP
	}
	if s.Port != nil {
		w.port = *s.Port
	}
	if s.Encap != nil {
		w.encap = *s.Encap
	}
	if s.Bitrate != nil {
		w.bitrate = *s.Bitrate
	}
	if s.Loop != nil {
		w.loop = *s.Loop
	}
	if s.NIC != nil {
		w.nic = *s.NIC
	}
	return was
}

// SetNIC changes the bound interface without restarting the process. The
// new value takes effect on the next start.
func (w *Worker) SetNIC(nic string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nic = nic
}

// SetBitrate changes the stream bitrate without restarting the process.
func (w *Worker) SetBitrate(b string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bitrate = b
}

// SetFilepath points the worker at a new media file. It does not restart a
// running process.
func (w *Worker) SetFilepath(path string, preTranscoded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filepath = path
	w.preTranscoded = preTranscoded
}

// BuildArgs returns the ffmpeg argument list the worker would run with.
func (w *Worker) BuildArgs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buildArgsLocked()
}

func (w *Worker) buildArgsLocked() []string {
	params := "pkt_size=1316&ttl=10"
	if addr := InterfaceIPv4(w.nic); addr != "" {
		params += "&localaddr=" + addr
	}

	var url, format string
	if w.encap == models.EncapRTP {
		url = fmt.Sprintf("rtp://%s:%d?%s", w.ip, w.port, params)
		format = "rtp_mpegts"
	} else {
		url = fmt.Sprintf("udp://%s:%d?%s", w.ip, w.port, params)
		format = "mpegts"
	}

	args := []string{"-re"}
	if w.loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", w.filepath)

	if w.preTranscoded || w.bitrate == "" {
		args = append(args, "-c", "copy")
	} else {
		kbps := bitrate.ParseLenient(w.bitrate).Kbps()
		if kbps == 0 {
			kbps = 4000
		}
		args = append(args,
			"-b:v", w.bitrate,
			"-maxrate", w.bitrate,
			"-bufsize", strconv.Itoa(kbps*2)+"k",
		)
	}

	args = append(args, "-f", format, url)
	return args
}
