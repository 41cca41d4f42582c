package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meliseller/internal/domain"
	"meliseller/internal/service/report"
)

type stubSummaries struct {
	summary report.Summary
	err     error
}

func (s stubSummaries) Summary(context.Context) (report.Summary, error) {
	return s.summary, s.err
}

type recordingNotifier struct {
	sent []domain.Digest
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, d domain.Digest) error {
	r.sent = append(r.sent, d)
	return r.err
}

func newService(t *testing.T, s Summarizer, n Notifier) *Service {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := NewService(s, report.NewRenderer("es-AR", "ARS", "Noor Kids"), n, logger)
	svc.newID = func() string { return "run-1" }
	svc.now = func() time.Time { return time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestRunSendsRenderedSummary(t *testing.T) {
	n := &recordingNotifier{}
	svc := newService(t, stubSummaries{summary: report.Summary{
		Sales: report.SalesTotals{Revenue: 1234567, Paid: 2, Total: 3},
	}}, n)

	d, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "run-1", d.RunID)
	assert.Equal(t, d, n.sent[0])
	assert.Contains(t, d.Subject, "2025-03-03")
	assert.Contains(t, d.Markdown, "$1.234.567 ARS")
}

func TestRunDoesNotSendWhenSummaryFails(t *testing.T) {
	n := &recordingNotifier{}
	svc := newService(t, stubSummaries{err: domain.ErrNoToken}, n)

	_, err := svc.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrNoToken)
	assert.Empty(t, n.sent)
}

func TestRunSurfacesTransportFailureOnce(t *testing.T) {
	n := &recordingNotifier{err: errors.New("connection refused")}
	svc := newService(t, stubSummaries{}, n)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, n.sent, 1)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failA := &recordingNotifier{err: errors.New("a down")}
	failB := &recordingNotifier{err: errors.New("b down")}

	err := MultiNotifier{failA, ok, failB}.Send(context.Background(), domain.Digest{RunID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")
	assert.Len(t, ok.sent, 1)

	assert.NoError(t, MultiNotifier{}.Send(context.Background(), domain.Digest{}))
}
