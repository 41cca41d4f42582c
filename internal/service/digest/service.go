// Package digest builds the business digest and hands it to the notifiers.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"meliseller/internal/domain"
	"meliseller/internal/metrics"
	"meliseller/internal/service/report"
)

// Notifier delivers one digest. Implementations do not retry.
type Notifier interface {
	Send(ctx context.Context, d domain.Digest) error
}

// Summarizer produces the summary the digest is built from.
type Summarizer interface {
	Summary(ctx context.Context) (report.Summary, error)
}

type Service struct {
	summaries Summarizer
	renderer  *report.Renderer
	notifier  Notifier
	log       logrus.FieldLogger
	newID     func() string
	now       func() time.Time
}

func NewService(summaries Summarizer, renderer *report.Renderer, notifier Notifier, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		summaries: summaries,
		renderer:  renderer,
		notifier:  notifier,
		log:       log.WithField("component", "digest"),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run builds one digest and sends it once. A transport failure is logged
// and returned; the next run starts from scratch.
func (s *Service) Run(ctx context.Context) (domain.Digest, error) {
	d, err := s.run(ctx)
	metrics.RecordDigest(err)
	log := s.log.WithField("run_id", d.RunID)
	if err != nil {
		log.WithError(err).Error("digest run failed")
		return d, err
	}
	log.Info("digest sent")
	return d, nil
}

func (s *Service) run(ctx context.Context) (domain.Digest, error) {
	d := domain.Digest{RunID: s.newID(), CreatedAt: s.now()}
	summary, err := s.summaries.Summary(ctx)
	if err != nil {
		return d, fmt.Errorf("build summary: %w", err)
	}
	d.Subject = s.renderer.DigestSubject(d.CreatedAt)
	d.Markdown = s.renderer.Summary(summary)
	if s.notifier == nil {
		return d, errors.New("no notifier configured")
	}
	if err := s.notifier.Send(ctx, d); err != nil {
		return d, fmt.Errorf("send digest: %w", err)
	}
	return d, nil
}

// MultiNotifier sends to every notifier in turn and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Send(ctx context.Context, d domain.Digest) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
