package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/oblisync/oblisync/internal/session"
	"github.com/oblisync/oblisync/internal/syncer"
)

type fakeRetryer struct {
	record *session.ProcessedInvoiceRecord
	err    error
	calls  []int64
}

func (f *fakeRetryer) Retry(ctx context.Context, packageID int64) (*session.ProcessedInvoiceRecord, error) {
	f.calls = append(f.calls, packageID)
	return f.record, f.err
}

func newAutoRetryTask(t *testing.T, packageID int64) *asynq.Task {
	t.Helper()
	task, err := NewAutoRetryTask(AutoRetryPayload{PackageID: packageID})
	require.NoError(t, err)
	return task
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAutoRetryHandlerSuccess(t *testing.T) {
	retryer := &fakeRetryer{record: &session.ProcessedInvoiceRecord{PackageID: 7, Status: session.StatusCompleted}}
	handler := NewAutoRetryHandler(testLogger(), retryer)

	err := handler(context.Background(), newAutoRetryTask(t, 7))
	require.NoError(t, err)
	require.Equal(t, []int64{7}, retryer.calls)
}

func TestAutoRetryHandlerDropsDeniedRetry(t *testing.T) {
	retryer := &fakeRetryer{err: syncer.ErrRetryDenied}
	handler := NewAutoRetryHandler(testLogger(), retryer)

	err := handler(context.Background(), newAutoRetryTask(t, 7))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAutoRetryHandlerDropsMissingRecord(t *testing.T) {
	retryer := &fakeRetryer{err: syncer.ErrRecordNotFound}
	handler := NewAutoRetryHandler(testLogger(), retryer)

	err := handler(context.Background(), newAutoRetryTask(t, 7))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAutoRetryHandlerPropagatesTransientError(t *testing.T) {
	transient := errors.New("redis: connection refused")
	retryer := &fakeRetryer{err: transient}
	handler := NewAutoRetryHandler(testLogger(), retryer)

	err := handler(context.Background(), newAutoRetryTask(t, 7))
	require.ErrorIs(t, err, transient)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestAutoRetryHandlerRejectsMalformedPayload(t *testing.T) {
	handler := NewAutoRetryHandler(testLogger(), &fakeRetryer{})

	err := handler(context.Background(), asynq.NewTask(TaskTypeAutoRetry, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
