package scheduler

import (
	"sort"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
)

const (
	defaultBurstWindow     = 180 * time.Second
	defaultBurstHysteresis = 30 * time.Second
)

// BurstSmooth scans jobs with next_run_at within the next hour, groups
// them by calendar minute, and for any minute exceeding the per-minute
// cap redistributes the surplus uniformly within a window around the
// original minute. Only changes larger than the hysteresis threshold are
// persisted, so repeated calls converge to a fixpoint instead of
// thrashing jobs back and forth by a few seconds each tick.
func (s *Scheduler) BurstSmooth(now time.Time) {
	maxPerMinute := 6
	window := defaultBurstWindow
	hysteresis := defaultBurstHysteresis
	if s.cfg != nil {
		if s.cfg.MaxExecutionsPerMinute > 0 {
			maxPerMinute = s.cfg.MaxExecutionsPerMinute
		}
		if s.cfg.BurstSmoothWindow > 0 {
			window = s.cfg.BurstSmoothWindow
		}
		if s.cfg.BurstSmoothHysteresis > 0 {
			hysteresis = s.cfg.BurstSmoothHysteresis
		}
	}

	all, err := s.jobs.ListAll()
	if err != nil {
		s.log.Errorf("scheduler: burst smoothing, list all jobs: %v", err)
		return
	}

	horizon := now.Add(time.Hour)
	buckets := make(map[time.Time][]domain.Job)
	for _, job := range all {
		if job.NextRunAt.Before(now) || job.NextRunAt.After(horizon) {
			continue
		}
		minute := job.NextRunAt.Truncate(time.Minute)
		buckets[minute] = append(buckets[minute], job)
	}

	for minute, jobs := range buckets {
		if len(jobs) <= maxPerMinute {
			continue
		}
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
		surplus := jobs[maxPerMinute:]
		s.redistribute(minute, surplus, window, hysteresis)
	}
}

// redistribute spreads surplus jobs across two usable sub-ranges around
// their crowded minute, deliberately excluding a hysteresis-wide dead zone
// on each side of it: the earlier range runs from window to hysteresis
// before the start of the minute, the later range from hysteresis to
// window after its end, so no moved job lands back inside the crowded
// minute. Positions are evenly spaced across both ranges, earlier range
// first. Any job whose resulting shift still lands within the hysteresis
// threshold is left in place to avoid thrash.
func (s *Scheduler) redistribute(minute time.Time, surplus []domain.Job, window, hysteresis time.Duration) {
	n := len(surplus)
	if n == 0 {
		return
	}
	usable := window - hysteresis
	if usable <= 0 {
		usable = window
		hysteresis = 0
	}
	span := 2 * usable
	step := span / time.Duration(n+1)
	for i, job := range surplus {
		pos := step * time.Duration(i+1)
		var offset time.Duration
		if pos < usable {
			offset = -window + pos
		} else {
			offset = time.Minute + hysteresis + (pos - usable)
		}
		// Guard against landing on or inside the dead zone boundary.
		if offset >= -hysteresis && offset <= hysteresis {
			if offset <= 0 {
				offset = -hysteresis - time.Second
			} else {
				offset = hysteresis + time.Second
			}
		}
		target := minute.Add(offset)
		shift := target.Sub(job.NextRunAt)
		if shift < 0 {
			shift = -shift
		}
		if shift <= hysteresis {
			continue
		}
		if err := s.jobs.UpdateNextRunAt(job.ID, target); err != nil {
			s.log.Errorf("scheduler: burst smoothing, update next_run_at for job %s: %v", job.ID, err)
			continue
		}
		s.log.Infof("scheduler: burst smoothing moved job %s from %s to %s", job.ID, job.NextRunAt, target)
	}
}
