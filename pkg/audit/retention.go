package audit

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultPurgeSchedule runs retention daily at 03:00.
const DefaultPurgeSchedule = "0 3 * * *"

// Retention purges old audit events on a cron schedule.
type Retention struct {
	log    *Log
	days   int
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRetention schedules Purge(days) on log. schedule is a five-field cron
// expression or a descriptor such as "@daily".
func NewRetention(log *Log, days int, schedule string, logger zerolog.Logger) (*Retention, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Retention{
		log:    log,
		days:   days,
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger.With().Str("component", "audit-retention").Logger(),
	}

	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins running the schedule in the background.
func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info().Int("days", r.days).Msg("Audit retention started")
}

// Stop halts the schedule and waits for a running purge, or ctx.
func (r *Retention) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retention) run() {
	removed, err := r.log.Purge(r.days)
	if err != nil {
		r.logger.Error().Err(err).Msg("Audit purge failed")
		return
	}
	r.logger.Info().Int("removed", removed).Int("days", r.days).Msg("Audit log purged")
}
