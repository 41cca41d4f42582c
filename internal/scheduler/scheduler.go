// Package scheduler runs the proactive token refresh and the weekly digest.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"meliseller/internal/domain"
	"meliseller/internal/service/credentials"
)

// DefaultRefreshInterval stays under the provider's six hour token life.
const DefaultRefreshInterval = 5 * time.Hour

type Refresher interface {
	Refresh(ctx context.Context) error
}

type DigestRunner interface {
	Run(ctx context.Context) (domain.Digest, error)
}

type Options struct {
	RefreshInterval time.Duration
	DigestEnabled   bool
	DigestWeekday   time.Weekday
	DigestHour      int
}

// Scheduler owns two independent jobs on a UTC cron. Failures are logged
// and the job runs again at its next activation; nothing backs off.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	digest    DigestRunner
	weekly    cron.Schedule
	log       logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(refresher Refresher, digest DigestRunner, opts Options, log logrus.FieldLogger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.DigestHour < 0 || opts.DigestHour > 23 {
		return nil, fmt.Errorf("digest hour %d out of range", opts.DigestHour)
	}

	weekly, err := cron.ParseStandard(WeeklySpec(opts.DigestWeekday, opts.DigestHour))
	if err != nil {
		return nil, fmt.Errorf("parse digest schedule: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		refresher: refresher,
		digest:    digest,
		weekly:    weekly,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.cron.Schedule(cron.Every(opts.RefreshInterval), cron.FuncJob(s.refreshJob))
	if opts.DigestEnabled && digest != nil {
		s.cron.Schedule(weekly, cron.FuncJob(s.digestJob))
	}
	return s, nil
}

// WeeklySpec is the cron expression for weekday at hour:00 UTC.
func WeeklySpec(weekday time.Weekday, hour int) string {
	return fmt.Sprintf("CRON_TZ=UTC 0 %d * * %d", hour, int(weekday))
}

// NextDigest returns the first digest activation strictly after now.
func (s *Scheduler) NextDigest(now time.Time) time.Time {
	return s.weekly.Next(now.UTC())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("next_digest", s.NextDigest(time.Now())).Info("scheduler started")
}

// Stop halts both timers and waits for a running job, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) refreshJob() {
	err := s.refresher.Refresh(credentials.WithTrigger(s.ctx, "proactive"))
	switch {
	case err == nil:
		s.log.Info("proactive token refresh done")
	case errors.Is(err, domain.ErrNoRefreshToken):
		s.log.Warn("proactive token refresh skipped: no refresh token held")
	default:
		s.log.WithError(err).Error("proactive token refresh failed, retrying next tick")
	}
}

func (s *Scheduler) digestJob() {
	if _, err := s.digest.Run(s.ctx); err != nil {
		s.log.WithError(err).Error("scheduled digest failed")
	}
}
