package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/queue"
)

// LongWaiter yields the queue entries waiting past their severity threshold,
// each with the minutes waited and the overage.
type LongWaiter interface {
	LongWaiting(ctx context.Context) ([]queue.LongWait, error)
}

// Sweeper periodically scans for patients waiting too long and raises a
// long_wait alert for each. It deliberately does not dedup across sweeps:
// a patient still waiting at the next tick alerts again.
type Sweeper struct {
	queue    LongWaiter
	alerts   *Service
	rt       Refresher
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(q LongWaiter, alerts *Service, rt Refresher, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{queue: q, alerts: alerts, rt: rt, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. Sweeps are tied to the server
// lifecycle, never to any request.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("long-wait sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("long-wait sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so a sweep can also be forced in tests.
func (s *Sweeper) Sweep(ctx context.Context) {
	overdue, err := s.queue.LongWaiting(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("long-wait scan failed")
		return
	}
	if len(overdue) == 0 {
		return
	}

	for _, lw := range overdue {
		e := lw.Entry
		if _, err := s.alerts.LongWait(ctx, e.PatientName, e.PatientID, e.VisitID,
			e.Level, e.Position, lw.WaitedMin); err != nil {
			s.log.Error().Err(err).Str("visit_id", e.VisitID.String()).Msg("long-wait alert failed")
		}
	}
	if s.rt != nil {
		s.rt.Refresh("queue")
	}
	s.log.Info().Int("flagged", len(overdue)).Msg("long-wait sweep")
}
