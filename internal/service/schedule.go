package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"
)

// NewScheduler builds a gocron scheduler invoking startFunc on the given
// schedule. The caller owns Start/Shutdown.
func NewScheduler(ctx context.Context, cfgp *Schedule, startFunc func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, errors.New("diag.schedule is nil")
	}
	cfg := *cfgp

	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if err := ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing diag.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Every > 0:
		job = gocron.DurationJob(cfg.Every)
		slog.DebugContext(ctx, "using fixed interval", "every", cfg.Every.String())
	default:
		return nil, errors.New("both cron and every are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	if _, err = s.NewJob(job, gocron.NewTask(startFunc)); err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
