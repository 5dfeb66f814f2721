// Package schedule runs the daily login on a cron schedule
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/robfig/cron/v3"
)

// Job is one complete run
type Job func(ctx context.Context) error

// Scheduler triggers a job on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	logger   *logger.Logger
}

// cronLogger adapts our logger to cron's logging interface
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithFields(pairs(keysAndValues)).Error(msg)
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// New validates spec (standard 5-field cron) in loc
func New(spec string, loc *time.Location, log *logger.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, fmt.Errorf("no schedule configured")
	}
	if loc == nil {
		loc = time.Local
	}

	parsed, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	l := log.WithModule("schedule")
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: l}),
		cron.WithChain(cron.Recover(cronLogger{log: l}), cron.SkipIfStillRunning(cronLogger{log: l})),
	)

	return &Scheduler{
		cron:     c,
		schedule: parsed,
		spec:     spec,
		logger:   l,
	}, nil
}

// Next returns the first activation strictly after t
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.cron.Location()))
}

// Run invokes job on every tick until ctx is cancelled, then waits for a
// running job to finish. Job errors are logged; they do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		start := time.Now()
		s.logger.Info("Starting scheduled run")
		if err := job(ctx); err != nil {
			s.logger.WithError(err).Error("Scheduled run failed")
			return
		}
		s.logger.Infof("Scheduled run completed in %v", time.Since(start).Round(time.Second))
	}))

	s.cron.Start()
	s.logger.WithFields(map[string]interface{}{
		"schedule": s.spec,
		"next_run": s.Next(time.Now()).Format(time.RFC3339),
	}).Info("Scheduler started")

	<-ctx.Done()

	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}
