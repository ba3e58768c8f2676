// Package registry owns the channel table: metadata, stream workers, and
// in-flight transcode jobs, with persistence to the state file.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/lavacast/lavacast/internal/config"
	"github.com/lavacast/lavacast/internal/events"
	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/internal/stream"
	"github.com/lavacast/lavacast/internal/transcode"
)

// UpdateRequest is a partial channel update. Nil fields are untouched.
// Network fields propagate to a running worker and force a restart; profile
// fields are metadata consumed by the next conditioning run.
type UpdateRequest struct {
	IP      *string
	Port    *int
	Encap   *string
	Bitrate *string
	Loop    *bool
	NIC     *string

	Codec    *string
	Preset   *string
	VBitrate *string
	ABitrate *string
}

// Registry coordinates every channel's worker, metadata, and transcode job.
type Registry struct {
	cfg    config.StreamingConfig
	runner *ffmpeg.Runner
	prober *ffmpeg.Prober
	bus    *events.Bus
	store  *Store
	logger *slog.Logger

	mu       sync.RWMutex
	workers  map[int]*stream.Worker
	meta     map[int]*models.Channel
	jobs     map[int]*transcode.Job
	globalTC   GlobalTranscode
	bitrate    string
	nic        string
	monitorNIC string
	autoStart  bool
	mediaDir   string
}

// New creates the registry and restores persisted channels. defaultTC seeds
// the global transcode settings; values from the state file take precedence.
// Channels whose media file no longer exists are skipped with a warning; a
// corrupt state file is logged and the registry starts empty.
func New(cfg config.StreamingConfig, defaultTC GlobalTranscode, mediaDir string,
	runner *ffmpeg.Runner, prober *ffmpeg.Prober, bus *events.Bus, store *Store, logger *slog.Logger) *Registry {

	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:        cfg,
		runner:     runner,
		prober:     prober,
		bus:        bus,
		store:      store,
		logger:     observability.WithComponent(logger, "registry"),
		workers:    make(map[int]*stream.Worker),
		meta:       make(map[int]*models.Channel),
		jobs:       make(map[int]*transcode.Job),
		bitrate:    cfg.DefaultBitrate,
		nic:        cfg.NIC,
		monitorNIC: cfg.MonitorNIC,
		autoStart:  cfg.AutoStart,
		mediaDir:   mediaDir,
		globalTC:   defaultTC,
	}
	r.restore()
	observability.System(r.logger, "registry initialized",
		"channels", len(r.meta), "max_channels", cfg.MaxChannels)
	return r
}

func (r *Registry) restore() {
	st, err := r.store.Load()
	if err != nil {
		r.logger.Error("state load failed, starting empty", "error", err)
		return
	}

	if st.GlobalStreaming.Bitrate != "" {
		r.bitrate = st.GlobalStreaming.Bitrate
	}
	if st.GlobalStreaming.NIC != "" {
		r.nic = st.GlobalStreaming.NIC
	}
	if st.GlobalStreaming.MonitorNIC != "" {
		r.monitorNIC = st.GlobalStreaming.MonitorNIC
	}
	if st.GlobalStreaming.AutoStart != nil {
		r.autoStart = *st.GlobalStreaming.AutoStart
	}
	if st.GlobalStreaming.MediaDir != "" {
		r.mediaDir = st.GlobalStreaming.MediaDir
	}
	if st.GlobalTranscode.Codec != "" {
		r.globalTC = st.GlobalTranscode
	}

	for cidStr, m := range st.Channels {
		cid, err := strconv.Atoi(cidStr)
		if err != nil || cid < 0 || cid >= r.cfg.MaxChannels {
			r.logger.Warn("restore skipped, bad channel id", "id", cidStr)
			continue
		}
		if m.Filepath == "" {
			r.logger.Warn("restore skipped, no filepath", "channel", cid)
			continue
		}
		if _, err := os.Stat(m.Filepath); err != nil {
			r.logger.Warn("restore skipped, file missing",
				"channel", cid, "filepath", m.Filepath)
			continue
		}

		ch := m
		ch.ID = cid
		if ch.IP == "" {
			ch.IP = r.AutoIP(cid)
		}
		if ch.Port == 0 {
			ch.Port = r.AutoPort(cid)
		}
		if ch.Encap == "" {
			ch.Encap = r.cfg.DefaultEncap
		}
		ch.Bitrate = r.bitrate
		ch.NIC = r.nic
		ch.Running = false

		r.meta[cid] = &ch
		r.workers[cid] = stream.NewWorker(r.runner, r.logger, ch)
		r.logger.Info("channel restored", "channel", cid, "filename", ch.Filename)
	}
}

// AutoIP returns the deterministic multicast address for a channel index.
func (r *Registry) AutoIP(cid int) string {
	return fmt.Sprintf("%s.%d", r.cfg.MulticastBase, (cid%254)+1)
}

// AutoPort returns the deterministic port for a channel index. Ports step
// by two to leave room for RTCP on the odd port.
func (r *Registry) AutoPort(cid int) int {
	return r.cfg.BasePort + cid*2
}

// ValidCID reports whether cid is inside the configured channel range.
func (r *Registry) ValidCID(cid int) bool {
	return cid >= 0 && cid < r.cfg.MaxChannels
}

// MaxChannels returns the configured channel count.
func (r *Registry) MaxChannels() int {
	return r.cfg.MaxChannels
}

// AddChannel registers a channel or repoints an existing one at a new file.
// Address assignment is deterministic from the channel index. Settings the
// operator already chose for the slot (encapsulation, loop, profile) are
// preserved across re-registration.
func (r *Registry) AddChannel(cid int, path, filename string, preTranscoded bool, srcPath string, profile models.TranscodeProfile) (string, int, error) {
	if !r.ValidCID(cid) {
		return "", 0, models.ErrInvalidChannelID
	}

	ip := r.AutoIP(cid)
	port := r.AutoPort(cid)
	if srcPath == "" {
		srcPath = path
	}
	if profile.Codec == "" {
		profile.Codec = models.CodecCopy
	}

	r.mu.Lock()
	prev := r.meta[cid]

	ch := models.Channel{
		ID:            cid,
		Filename:      filename,
		Filepath:      path,
		SrcPath:       srcPath,
		IP:            ip,
		Port:          port,
		Encap:         r.cfg.DefaultEncap,
		Bitrate:       r.bitrate,
		Loop:          r.cfg.DefaultLoop,
		NIC:           r.nic,
		Codec:         profile.Codec,
		Preset:        r.globalTC.Preset,
		VBitrate:      r.globalTC.VBitrate,
		ABitrate:      r.globalTC.ABitrate,
		PreTranscoded: preTranscoded,
		Thumb:         fmt.Sprintf("/thumbnails/ch%d.jpg", cid),
	}
	if prev != nil {
		ch.Encap = prev.Encap
		ch.Loop = prev.Loop
		ch.Preset = prev.Preset
		ch.VBitrate = prev.VBitrate
		ch.ABitrate = prev.ABitrate
	}
	// Explicit profile values from the caller beat the preserved slot ones.
	if profile.Preset != "" {
		ch.Preset = profile.Preset
	}
	if profile.VBitrate != "" {
		ch.VBitrate = profile.VBitrate
	}
	if profile.ABitrate != "" {
		ch.ABitrate = profile.ABitrate
	}

	if w, ok := r.workers[cid]; ok {
		w.SetFilepath(path, preTranscoded)
	} else {
		r.workers[cid] = stream.NewWorker(r.runner, r.logger, ch)
	}
	r.meta[cid] = &ch
	r.mu.Unlock()

	r.logger.Info("channel loaded", "channel", cid, "filename", filename,
		"ip", ip, "port", port, "pre_transcoded", preTranscoded)
	r.save()
	r.publish(events.TypeChannelReady, map[string]any{
		"cid": cid, "filename": filename, "ip": ip, "port": port,
		"encap": ch.Encap, "bitrate": ch.Bitrate, "loop": ch.Loop,
		"codec": ch.Codec, "preset": ch.Preset,
		"vbitrate": ch.VBitrate, "abitrate": ch.ABitrate, "thumb": ch.Thumb,
	})
	return ip, port, nil
}

// RemoveChannel cancels any transcode, stops the stream, and forgets the
// channel. Removing an unknown channel is a no-op.
func (r *Registry) RemoveChannel(cid int) {
	r.CancelTranscode(cid)
	r.Stop(cid)

	r.mu.Lock()
	var fname string
	if m, ok := r.meta[cid]; ok {
		fname = m.Filename
	}
	delete(r.workers, cid)
	delete(r.meta, cid)
	r.mu.Unlock()

	r.logger.Info("channel removed", "channel", cid, "filename", fname)
	r.save()
}

// HasNetworkChange reports whether the request touches any of the network
// fields that require a worker restart. Profile fields only affect the next
// transcode.
func (req UpdateRequest) HasNetworkChange() bool {
	return req.IP != nil || req.Port != nil || req.Encap != nil ||
		req.Bitrate != nil || req.Loop != nil || req.NIC != nil
}

// UpdateChannel applies a partial update. When a network field changes on a
// live channel the worker is restarted with the new parameters and the
// restart is reported on the bus; profile-only updates never touch the
// worker. Returns whether the channel was running and got restarted.
func (r *Registry) UpdateChannel(ctx context.Context, cid int, req UpdateRequest) (bool, error) {
	r.mu.Lock()
	w, ok := r.workers[cid]
	m := r.meta[cid]
	r.mu.Unlock()
	if !ok || m == nil {
		return false, models.ErrChannelNotFound
	}

	was := false
	if req.HasNetworkChange() {
		was = w.UpdateSettings(stream.Settings{
			IP: req.IP, Port: req.Port, Encap: req.Encap,
			Bitrate: req.Bitrate, Loop: req.Loop, NIC: req.NIC,
		})
	}

	r.mu.Lock()
	if req.IP != nil {
		m.IP = *req.IP
	}
	if req.Port != nil {
		m.Port = *req.Port
	}
	if req.Encap != nil {
		m.Encap = *req.Encap
	}
	if req.Bitrate != nil {
		m.Bitrate = *req.Bitrate
	}
	if req.Loop != nil {
		m.Loop = *req.Loop
	}
	if req.NIC != nil {
		m.NIC = *req.NIC
	}
	if req.Codec != nil {
		m.Codec = *req.Codec
	}
	if req.Preset != nil {
		m.Preset = *req.Preset
	}
	if req.VBitrate != nil {
		m.VBitrate = *req.VBitrate
	}
	if req.ABitrate != nil {
		m.ABitrate = *req.ABitrate
	}
	r.mu.Unlock()

	r.save()

	if was {
		if err := r.Start(ctx, cid); err != nil {
			return true, err
		}
		meta, _ := r.Channel(cid)
		r.publish(events.TypeStreamRestarted, map[string]any{
			"cid": cid, "meta": meta,
		})
	}
	return was, nil
}

// Start launches a channel's stream. Starting a running or unknown channel
// is a no-op.
func (r *Registry) Start(ctx context.Context, cid int) error {
	r.mu.Lock()
	w, ok := r.workers[cid]
	m := r.meta[cid]
	nic := r.nic
	r.mu.Unlock()
	if !ok || m == nil {
		return nil
	}

	w.SetNIC(nic)
	if err := w.Start(ctx, r.onWorkerStop); err != nil {
		return err
	}

	r.mu.Lock()
	m.Running = true
	r.mu.Unlock()
	r.save()
	return nil
}

// Stop halts a channel's stream. Stopping a stopped or unknown channel is a
// no-op.
func (r *Registry) Stop(cid int) {
	r.mu.Lock()
	w, ok := r.workers[cid]
	m := r.meta[cid]
	r.mu.Unlock()
	if !ok {
		return
	}

	w.Stop()

	r.mu.Lock()
	if m != nil {
		m.Running = false
	}
	r.mu.Unlock()
	r.save()
}

// onWorkerStop records a worker exit, whether requested or not.
func (r *Registry) onWorkerStop(cid int) {
	r.mu.Lock()
	if m, ok := r.meta[cid]; ok {
		m.Running = false
	}
	r.mu.Unlock()
	r.save()
	r.publish(events.TypeStreamStopped, map[string]any{"cid": cid})
}

// StartAll starts every registered channel.
func (r *Registry) StartAll(ctx context.Context) {
	cids := r.channelIDs()
	launched := 0
	for _, cid := range cids {
		if r.IsRunning(cid) {
			continue
		}
		if err := r.Start(ctx, cid); err != nil {
			r.logger.Error("start failed", "channel", cid, "error", err)
			continue
		}
		launched++
	}
	observability.Stream(r.logger, "start all", "launched", launched)
}

// StopAll stops every running channel and reports the halt on the bus.
func (r *Registry) StopAll() {
	cids := r.channelIDs()
	halted := 0
	for _, cid := range cids {
		if !r.IsRunning(cid) {
			continue
		}
		r.Stop(cid)
		halted++
	}
	observability.Stream(r.logger, "stop all", "halted", halted)
	r.publish(events.TypeAllStopped, map[string]any{"count": halted})
}

func (r *Registry) channelIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.workers))
	for cid := range r.workers {
		ids = append(ids, cid)
	}
	return ids
}

// IsRunning reports whether a channel's worker process is alive.
func (r *Registry) IsRunning(cid int) bool {
	r.mu.RLock()
	w, ok := r.workers[cid]
	r.mu.RUnlock()
	return ok && w.Running()
}

// SetNIC selects the streaming interface for all channels. Running streams
// pick it up on their next restart.
func (r *Registry) SetNIC(nic string) {
	r.mu.Lock()
	r.nic = nic
	for _, w := range r.workers {
		w.SetNIC(nic)
	}
	for _, m := range r.meta {
		m.NIC = nic
	}
	r.mu.Unlock()
	r.logger.Info("streaming interface set", "nic", orDefault(nic, "default"))
	r.save()
}

// SelectedNIC returns the streaming interface name, empty for default.
func (r *Registry) SelectedNIC() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nic
}

// ApplyGlobalBitrate sets the stream-time bitrate on every channel that is
// not pre-transcoded. Pre-transcoded channels always stream with -c copy
// and keep their metadata bitrate in sync for display only.
func (r *Registry) ApplyGlobalBitrate(b string) {
	r.mu.Lock()
	r.bitrate = b
	for cid, w := range r.workers {
		if m := r.meta[cid]; m != nil && !m.PreTranscoded {
			w.SetBitrate(b)
		}
	}
	for _, m := range r.meta {
		m.Bitrate = b
	}
	r.mu.Unlock()
	r.logger.Info("global bitrate applied", "bitrate", orDefault(b, "passthrough"))
	r.save()
}

// GlobalBitrate returns the stream-time bitrate, empty for passthrough.
func (r *Registry) GlobalBitrate() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bitrate
}

// MediaDir returns the media directory channels are served from.
func (r *Registry) MediaDir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mediaDir
}

// SetMediaDir changes the media directory. The directory must exist.
func (r *Registry) SetMediaDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return models.ErrMediaPathNotFound
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	r.mu.Lock()
	r.mediaDir = abs
	r.mu.Unlock()
	r.logger.Info("media directory set", "dir", abs)
	r.save()
	return nil
}

// MonitorNIC returns the interface the metrics sampler highlights.
func (r *Registry) MonitorNIC() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitorNIC
}

// SetMonitorNIC selects the interface the metrics sampler highlights.
func (r *Registry) SetMonitorNIC(nic string) {
	r.mu.Lock()
	r.monitorNIC = nic
	r.mu.Unlock()
	r.save()
}

// AutoStart reports whether restored channels launch on boot.
func (r *Registry) AutoStart() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.autoStart
}

// SetAutoStart toggles launching restored channels on boot.
func (r *Registry) SetAutoStart(on bool) {
	r.mu.Lock()
	r.autoStart = on
	r.mu.Unlock()
	r.logger.Info("auto-start updated", "enabled", on)
	r.save()
}

// GlobalTranscodeSettings returns the persisted default conditioning state.
func (r *Registry) GlobalTranscodeSettings() GlobalTranscode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.globalTC
}

// SetGlobalTranscode stores the default conditioning profile and whether
// uploads are conditioned at all.
func (r *Registry) SetGlobalTranscode(gt GlobalTranscode) {
	r.mu.Lock()
	r.globalTC = gt
	r.mu.Unlock()
	r.logger.Info("global transcode settings updated",
		"on", gt.Enabled, "codec", gt.Codec)
	r.save()
}

// StartTranscode begins conditioning src into dst for a channel, cancelling
// any previous job on the same channel. Progress, completion, and failure
// surface both on the bus and through the supplied callbacks.
func (r *Registry) StartTranscode(ctx context.Context, cid int, src, dst string, profile models.TranscodeProfile, cb transcode.Callbacks) error {
	r.CancelTranscode(cid)

	duration := r.prober.Duration(ctx, src)

	wrapped := transcode.Callbacks{
		OnProgress: func(p transcode.Progress) {
			r.publish(events.TypeTranscodeProgress, map[string]any{
				"cid": cid, "pct": p.Percent, "fps": p.FPS,
				"speed": p.Speed, "eta_secs": p.ETASeconds,
			})
			if cb.OnProgress != nil {
				cb.OnProgress(p)
			}
		},
		OnComplete: func() {
			r.dropJob(cid)
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		},
		OnError: func(err error) {
			r.dropJob(cid)
			r.publish(events.TypeTranscodeError, map[string]any{
				"cid": cid, "error": err.Error(),
			})
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}

	job := transcode.NewJob(r.runner, r.logger, src, dst, profile, duration, wrapped)

	// A copy-codec job is a remux, reported as such so subscribers can
	// distinguish it from a real encode.
	codec, preset := profile.Codec, profile.Preset
	if profile.Codec == models.CodecCopy {
		codec, preset = "remux", "copy"
	}

	// The start event goes out before the child spawns so no progress
	// update can precede it.
	r.publish(events.TypeTranscodeStart, map[string]any{
		"cid": cid, "src": filepath.Base(src), "job_id": job.ID,
		"codec": codec, "preset": preset,
	})

	if err := job.Start(ctx); err != nil {
		r.publish(events.TypeTranscodeError, map[string]any{
			"cid": cid, "error": err.Error(),
		})
		return err
	}

	r.mu.Lock()
	r.jobs[cid] = job
	r.mu.Unlock()
	return nil
}

// CancelTranscode aborts a channel's in-flight job, if any.
func (r *Registry) CancelTranscode(cid int) {
	r.mu.Lock()
	job := r.jobs[cid]
	delete(r.jobs, cid)
	r.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
}

// TranscodeActive reports whether a conditioning job is in flight for cid.
func (r *Registry) TranscodeActive(cid int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[cid] != nil
}

func (r *Registry) dropJob(cid int) {
	r.mu.Lock()
	delete(r.jobs, cid)
	r.mu.Unlock()
}

// Status returns a snapshot of every channel keyed by its string index,
// with the running flag reflecting live worker state.
func (r *Registry) Status() map[string]models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.Channel, len(r.meta))
	for cid, m := range r.meta {
		ch := *m
		if w, ok := r.workers[cid]; ok {
			ch.Running = w.Running()
		}
		out[strconv.Itoa(cid)] = ch
	}
	return out
}

// Channel returns a single channel snapshot.
func (r *Registry) Channel(cid int) (models.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[cid]
	if !ok {
		return models.Channel{}, false
	}
	ch := *m
	if w, ok := r.workers[cid]; ok {
		ch.Running = w.Running()
	}
	return ch, true
}

// save persists the current state. Persistence failures are logged, never
// fatal: a broken disk should not take the streams down.
func (r *Registry) save() {
	r.mu.RLock()
	autoStart := r.autoStart
	st := State{
		GlobalTranscode: r.globalTC,
		GlobalStreaming: GlobalStreaming{
			Bitrate:    r.bitrate,
			NIC:        r.nic,
			MonitorNIC: r.monitorNIC,
			MediaDir:   r.mediaDir,
			AutoStart:  &autoStart,
		},
		Channels: make(map[string]models.Channel, len(r.meta)),
	}
	for cid, m := range r.meta {
		st.Channels[strconv.Itoa(cid)] = *m
	}
	r.mu.RUnlock()

	if err := r.store.Save(st); err != nil {
		r.logger.Error("state save failed", "error", err)
	}
}

func (r *Registry) publish(eventType string, data map[string]any) {
	if r.bus != nil {
		r.bus.Publish(eventType, data)
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
