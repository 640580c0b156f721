// Package scheduler runs scans at fixed UTC times of day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/scan"
)

// TimeOfDay is a wall-clock trigger point in UTC.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimes parses a comma-separated list like "06:00,18:30" into sorted,
// deduplicated trigger points.
func ParseTimes(s string) ([]TimeOfDay, error) {
	var out []TimeOfDay
	seen := make(map[TimeOfDay]struct{})

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid time %q: want HH:MM", part)
		}
		hour, err := strconv.Atoi(hh)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour in %q", part)
		}
		minute, err := strconv.Atoi(mm)
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid minute in %q", part)
		}

		t := TimeOfDay{Hour: hour, Minute: minute}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out, nil
}

// Runner executes one scan. Satisfied by *scan.Coordinator.
type Runner interface {
	RunScan(ctx context.Context, forceFull bool) (*model.ScanSummary, error)
}

type Scheduler struct {
	runner Runner
	times  []TimeOfDay
	logger *slog.Logger

	now func() time.Time
}

func New(runner Runner, times []TimeOfDay, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		times:  times,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

// nextRun returns the first trigger point strictly after now, in UTC.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	now = now.UTC()
	var best time.Time
	for _, t := range s.times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// Run blocks, firing a scan at each trigger point, until ctx is done. A
// scan already started elsewhere is skipped, not queued.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.times) == 0 {
		s.logger.Info("no scan times configured, scheduler idle")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		next := s.nextRun(s.now())
		wait := next.Sub(s.now())
		s.logger.Info("next scheduled scan", "at", next, "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		summary, err := s.runner.RunScan(ctx, false)
		switch {
		case errors.Is(err, scan.ErrScanInProgress):
			s.logger.Warn("scheduled scan skipped, another scan is running")
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("scheduled scan failed", "error", err)
		default:
			s.logger.Info("scheduled scan finished",
				"run_id", summary.RunID,
				"type", summary.Type,
				"duration", summary.Duration,
			)
		}
	}
}
