// Package backup takes scheduled snapshots of the state file so an operator
// can recover a channel lineup after a bad edit or disk fault.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/internal/registry"
)

const snapshotPrefix = "state-"

// Scheduler copies the state file into the backup directory on a cron
// schedule and prunes old snapshots.
type Scheduler struct {
	store     *registry.Store
	dir       string
	schedule  cron.Schedule
	retention int
	logger    *slog.Logger
}

// New creates a scheduler. spec is a six-field cron expression with a
// seconds column, e.g. "0 0 2 * * *" for 02:00 daily.
func New(store *registry.Store, dir, spec string, retention int, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	if retention < 1 {
		retention = 7
	}
	return &Scheduler{
		store:     store,
		dir:       dir,
		schedule:  schedule,
		retention: retention,
		logger:    observability.WithComponent(logger, "backup"),
	}, nil
}

// Run fires snapshots on schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	observability.System(s.logger, "backup scheduler started",
		"dir", s.dir, "retention", s.retention)
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.Snapshot(); err != nil {
			s.logger.Error("backup failed", "error", err)
		}
	}
}

// Snapshot copies the current state file into the backup directory and
// prunes snapshots beyond the retention count. A missing state file is not
// an error; there is simply nothing to back up yet.
func (s *Scheduler) Snapshot() error {
	src, err := os.Open(s.store.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := snapshotPrefix + time.Now().Format("20060102-150405") + ".json"
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		return err
	}

	s.logger.Info("state snapshot written", "file", name)
	return s.prune()
}

// prune keeps the newest retention snapshots and removes the rest.
func (s *Scheduler) prune() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, snapshotPrefix+"*.json"))
	if err != nil {
		return err
	}
	if len(matches) <= s.retention {
		return nil
	}

	// Timestamped names sort oldest first.
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-s.retention] {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("could not prune snapshot", "file", path, "error", err)
		}
	}
	return nil
}
