// Package transcode runs one-shot ffmpeg conditioning jobs and decides when
// a source file already matches its target profile.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lavacast/lavacast/internal/ffmpeg"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/pkg/bitrate"
)

// Job status values.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Progress is a single progress tick from a running job.
type Progress struct {
	Percent    int     `json:"percent"`
	FPS        float64 `json:"fps"`
	Speed      string  `json:"speed"`
	ETASeconds int     `json:"eta_seconds"`
	OutTimeUS  int64   `json:"-"`
}

// Callbacks receive job lifecycle notifications. Any field may be nil.
// After Cancel no further callbacks fire.
type Callbacks struct {
	OnProgress func(Progress)
	OnComplete func()
	OnError    func(err error)
}

// Job is a single conditioning run of one source file into one output file.
// ID is a ULID assigned at creation, used to correlate log lines and
// progress events with a specific run.
type Job struct {
	ID string

	runner   *ffmpeg.Runner
	logger   *slog.Logger
	src      string
	dst      string
	profile  models.TranscodeProfile
	duration float64
	cb       Callbacks

	mu        sync.Mutex
	status    string
	cancelled bool
	proc      *ffmpeg.Process
	lastErr   string
}

// NewJob creates a conditioning job. duration is the probed source length in
// seconds; 0 disables percentage and ETA reporting.
func NewJob(runner *ffmpeg.Runner, logger *slog.Logger, src, dst string, profile models.TranscodeProfile, duration float64, cb Callbacks) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	id := ulid.Make().String()
	return &Job{
		ID:       id,
		runner:   runner,
		logger:   observability.WithComponent(logger, "transcode").With("job_id", id, "src", src),
		src:      src,
		dst:      dst,
		profile:  profile,
		duration: duration,
		cb:       cb,
		status:   StatusIdle,
	}
}

// Status returns the current job status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the last captured ffmpeg error line, if any.
func (j *Job) Err() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

// Start launches the job. It returns once the child process is running; the
// job completes asynchronously through the callbacks.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.status != StatusIdle {
		j.mu.Unlock()
		return fmt.Errorf("job already started (status %s)", j.status)
	}
	j.status = StatusRunning
	j.mu.Unlock()

	args := BuildEncodeArgs(j.src, j.dst, j.profile)
	parser := newProgressParser(j.duration)

	proc, err := j.runner.Spawn(ctx, args, ffmpeg.SpawnOptions{
		OnStdoutLine: func(line string) {
			if p, ok := parser.feed(line); ok {
				j.emitProgress(p)
			}
		},
		OnStderrLine: func(line string) {
			j.mu.Lock()
			j.lastErr = line
			j.mu.Unlock()
		},
	})
	if err != nil {
		j.mu.Lock()
		j.status = StatusFailed
		j.mu.Unlock()
		return err
	}

	j.mu.Lock()
	j.proc = proc
	j.mu.Unlock()

	go j.finish(proc)
	return nil
}

func (j *Job) finish(proc *ffmpeg.Process) {
	err := proc.Wait()

	j.mu.Lock()
	if j.cancelled {
		j.status = StatusCancelled
		j.mu.Unlock()
		j.logger.Info("transcode cancelled")
		return
	}
	if err != nil {
		j.status = StatusFailed
		lastErr := j.lastErr
		j.mu.Unlock()
		j.logger.Error("transcode failed", "error", err, "ffmpeg_error", lastErr)
		if j.cb.OnError != nil {
			j.cb.OnError(fmt.Errorf("ffmpeg exited: %w", err))
		}
		return
	}
	j.status = StatusCompleted
	j.mu.Unlock()

	// Clean exit gets a final 100% tick before completion.
	j.emitProgress(Progress{Percent: 100})
	j.logger.Info("transcode completed", "dst", j.dst)
	if j.cb.OnComplete != nil {
		j.cb.OnComplete()
	}
}

func (j *Job) emitProgress(p Progress) {
	j.mu.Lock()
	silenced := j.cancelled
	j.mu.Unlock()
	if silenced || j.cb.OnProgress == nil {
		return
	}
	j.cb.OnProgress(p)
}

// Cancel stops the job. Callbacks registered on the job never fire after
// Cancel returns the job to a quiescent state.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.cancelled || (j.status != StatusRunning) {
		j.mu.Unlock()
		return
	}
	j.cancelled = true
	proc := j.proc
	j.mu.Unlock()

	if proc != nil {
		proc.Stop()
	}
}

// BuildEncodeArgs constructs the ffmpeg argument list for conditioning src
// into dst under the given profile. The copy codec stream-copies all tracks
// into MPEG-TS, the remux path taken when the source already matches.
func BuildEncodeArgs(src, dst string, p models.TranscodeProfile) []string {
	args := []string{"-y", "-i", src}

	if p.Codec == models.CodecCopy {
		args = append(args, "-c", "copy")
	} else {
		encoder := "libx264"
		if p.Codec == models.CodecH265 {
			encoder = "libx265"
		}

		vb := bitrate.ParseLenient(p.VBitrate)
		args = append(args,
			"-c:v", encoder,
			"-preset", p.Preset,
			"-b:v", p.VBitrate,
			"-maxrate", p.VBitrate,
			"-bufsize", vb.BufsizeLiteral(),
		)

		if size, ok := models.ResolutionSize[p.Resolution]; ok {
			w, h := size[0], size[1]
			args = append(args, "-vf", fmt.Sprintf(
				"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
				w, h, w, h))
		}

		if p.FPS != "" && p.FPS != "original" {
			rate := p.FPS
			if frac, ok := models.FPSFraction[p.FPS]; ok {
				rate = frac
			}
			args = append(args, "-r", rate)
		}

		args = append(args, "-c:a", "aac", "-b:a", p.ABitrate)
	}

	args = append(args,
		"-f", "mpegts",
		"-progress", "pipe:1",
		"-nostats",
		dst,
	)
	return args
}

// progressParser accumulates ffmpeg -progress key=value lines into ticks.
// A block ends at the line whose key is "progress".
type progressParser struct {
	duration float64
	started  time.Time
	block    map[string]string
}

func newProgressParser(duration float64) *progressParser {
	return &progressParser{
		duration: duration,
		started:  time.Now(),
		block:    make(map[string]string),
	}
}

func (pp *progressParser) feed(line string) (Progress, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return Progress{}, false
	}
	if key != "progress" {
		pp.block[key] = value
		return Progress{}, false
	}

	p := pp.tick(time.Since(pp.started))
	pp.block = make(map[string]string)
	return p, true
}

func (pp *progressParser) tick(elapsed time.Duration) Progress {
	var p Progress

	us, _ := strconv.ParseInt(pp.block["out_time_us"], 10, 64)
	if us == 0 {
		// Older ffmpeg builds emit out_time_ms with microsecond units.
		us, _ = strconv.ParseInt(pp.block["out_time_ms"], 10, 64)
	}
	p.OutTimeUS = us
	p.FPS, _ = strconv.ParseFloat(pp.block["fps"], 64)
	p.Speed = pp.block["speed"]

	if pp.duration > 0 && us > 0 {
		pct := int(float64(us) / (pp.duration * 1e6) * 100)
		if pct > 99 {
			pct = 99
		}
		p.Percent = pct
		if pct > 0 {
			p.ETASeconds = int(elapsed.Seconds() * float64(100-pct) / float64(pct))
		}
	}
	return p
}
