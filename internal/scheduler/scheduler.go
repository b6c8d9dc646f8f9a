package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval or cron activation.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// RunImmediately fires one tick as soon as the startup delay has passed.
	RunImmediately bool
	// Cron replaces the interval loop when set. A leading seconds field is optional.
	Cron string
}

// Scheduler drives serialised execution of check cycles.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
	if opts.Cron != "" {
		schedule, err := cronParser.Parse(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", opts.Cron, err)
		}
		s.schedule = schedule
		return s, nil
	}
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return s, nil
}

// Run blocks, invoking the tick function until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunImmediately {
		s.execute(ctx, tick, time.Now().UTC())
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if s.schedule != nil {
		return s.runCron(ctx, tick)
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			// a slow cycle overran one or more slots; skip them instead of bursting
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.bucketStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) runCron(ctx context.Context, tick TickFunc) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger: s.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: s.logger})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.execute(ctx, tick, time.Now().UTC())
	}))

	s.logger.Info().Str("cron", s.opts.Cron).Time("next", s.schedule.Next(time.Now().UTC())).Msg("cron schedule started")
	c.Start()

	<-ctx.Done()
	// wait for an in-flight cycle before returning
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")
	if err := tick(ctx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

// cronLogger routes robfig/cron logs into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
