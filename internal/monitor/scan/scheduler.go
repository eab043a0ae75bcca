package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// Scheduler drives periodic scans. Each tick walks the enabled policies
// and runs every policy whose period has elapsed since its last run,
// backfilling missed windows after downtime up to the configured caps.
type Scheduler struct {
	scanner  *Scanner
	policies PolicyStore
	lock     *RunLock

	interval           time.Duration
	maxBackfillSeconds int64
	maxBackfillCount   int
}

func NewScheduler(scanner *Scanner, policies PolicyStore, lock *RunLock,
	interval time.Duration, maxBackfillSeconds int64, maxBackfillCount int) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		scanner:            scanner,
		policies:           policies,
		lock:               lock,
		interval:           interval,
		maxBackfillSeconds: maxBackfillSeconds,
		maxBackfillCount:   maxBackfillCount,
	}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("scan scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scan scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	policies, err := s.policies.ListEnabled(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list enabled policies")
		return
	}
	for _, p := range policies {
		release, ok := s.lock.TryAcquire(ctx, p.ID)
		if !ok {
			log.Debug().Int64("policy", p.ID).Msg("scan already running elsewhere, skipping")
			continue
		}
		s.scanPolicy(ctx, p)
		release()
	}
}

// scanPolicy decides how many runs a policy owes. First execution
// stamps the clock and scans once; afterwards the gap since the last
// run is split into period-sized windows and replayed, bounded by the
// backfill caps so a long outage cannot trigger an unbounded storm.
func (s *Scheduler) scanPolicy(ctx context.Context, p *model.Policy) {
	start := time.Now()
	now := start.UTC()

	if p.LastRunTime == nil {
		if err := s.policies.UpdateLastRunTime(ctx, p.ID, now); err != nil {
			log.Error().Err(err).Int64("policy", p.ID).Msg("failed to stamp first run time")
			return
		}
		p.LastRunTime = &now
		s.runOnce(ctx, p, now)
		return
	}

	periodSeconds, err := p.Period.Seconds()
	if err != nil {
		log.Error().Err(err).Int64("policy", p.ID).Msg("invalid policy period")
		return
	}

	gap := int64(now.Sub(*p.LastRunTime).Seconds())
	if gap > s.maxBackfillSeconds && s.maxBackfillSeconds > 0 {
		gap = s.maxBackfillSeconds
	}
	count := int(gap / periodSeconds)
	if count < 1 {
		return // not due yet
	}

	if count == 1 {
		if err := s.policies.UpdateLastRunTime(ctx, p.ID, now); err != nil {
			log.Error().Err(err).Int64("policy", p.ID).Msg("failed to update last run time")
		}
		lastRun := now
		p.LastRunTime = &lastRun
		s.runOnce(ctx, p, now)
	} else {
		if s.maxBackfillCount > 0 && count > s.maxBackfillCount {
			count = s.maxBackfillCount
		}
		log.Info().Int64("policy", p.ID).Int("count", count).Msg("backfilling missed scan windows")
		runTime := *p.LastRunTime
		for i := 0; i < count; i++ {
			runTime = runTime.Add(time.Duration(periodSeconds) * time.Second)
			s.runOnce(ctx, p, runTime)
			if err := s.policies.UpdateLastRunTime(ctx, p.ID, runTime); err != nil {
				log.Error().Err(err).Int64("policy", p.ID).Msg("failed to update last run time")
			}
			lastRun := runTime
			p.LastRunTime = &lastRun
		}
	}

	log.Info().
		Int64("policy", p.ID).
		Dur("elapsed", time.Since(start)).
		Msg("policy scan finished")
}

func (s *Scheduler) runOnce(ctx context.Context, p *model.Policy, runTime time.Time) {
	if err := s.scanner.Run(ctx, p, runTime); err != nil {
		log.Error().Err(err).Int64("policy", p.ID).Time("run_time", runTime).Msg("policy scan failed")
	}
}
