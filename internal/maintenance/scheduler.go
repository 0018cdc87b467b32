// Package maintenance runs the memory core's periodic upkeep: purging
// expired event data and running the store's fast/slow SQLite maintenance
// passes. Distinct from memorysvc's per-conversation debounce timers, this
// is wall-clock scheduling grounded on the teacher's pkg/cron, which wraps
// github.com/robfig/cron/v3 for schedule evaluation.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/store"
)

// Default schedules: optimize runs frequently and cheaply, purge and vacuum
// run once a day off-peak.
const (
	optimizeSchedule = "@every 1h"
	purgeSchedule    = "0 3 * * *"
	vacuumSchedule   = "30 3 * * *"
)

// Scheduler runs the store's background maintenance jobs on their own
// cron(v3) instance, independent of MemoryService's debounce timers.
type Scheduler struct {
	st  *store.Store
	cfg config.Resolved
	log zerolog.Logger
	c   *cron.Cron
}

// New constructs a Scheduler. Call Start to begin running jobs.
func New(st *store.Store, cfg config.Resolved, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		st:  st,
		cfg: cfg,
		log: log.With().Str("component", "maintenance").Logger(),
		c:   cron.New(),
	}
}

// Start registers and starts the maintenance jobs. A failed AddFunc call
// aborts registration and returns the error; the caller decides whether
// that's fatal.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(optimizeSchedule, s.runOptimize); err != nil {
		return err
	}
	if _, err := s.c.AddFunc(purgeSchedule, s.runPurge); err != nil {
		return err
	}
	if _, err := s.c.AddFunc(vacuumSchedule, s.runVacuum); err != nil {
		return err
	}
	s.c.Start()
	return nil
}

// Stop waits for any in-flight job to finish, then halts the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runOptimize() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.st.Optimize(ctx); err != nil {
		s.log.Warn().Err(err).Msg("optimize pass failed")
	}
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := s.st.PurgeOldEventData(ctx, s.cfg.PendingSignalRetentionDays); err != nil {
		s.log.Warn().Err(err).Msg("purge pass failed")
	}
}

func (s *Scheduler) runVacuum() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.st.Vacuum(ctx); err != nil {
		s.log.Warn().Err(err).Msg("vacuum pass failed")
	}
}
