package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/oblisync/oblisync/internal/session"
	"github.com/oblisync/oblisync/internal/syncer"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAutoRetry re-runs the invoice pipeline for one failed package.
	TaskTypeAutoRetry = "sync:auto-retry"
)

// AutoRetryPayload identifies the package to retry.
type AutoRetryPayload struct {
	PackageID int64 `json:"packageId"`
}

// NewAutoRetryTask constructs an Asynq task.
func NewAutoRetryTask(payload AutoRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAutoRetry, data), nil
}

// Retryer is the slice of the sync service the worker needs.
type Retryer interface {
	Retry(ctx context.Context, packageID int64) (*session.ProcessedInvoiceRecord, error)
}

// NewAutoRetryHandler builds the TaskTypeAutoRetry handler. Gate
// rejections from the service are final for this task; the service
// schedules the next attempt itself when one is still allowed.
func NewAutoRetryHandler(logger *slog.Logger, retryer Retryer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AutoRetryPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		record, err := retryer.Retry(ctx, payload.PackageID)
		switch {
		case err == nil:
			logger.Info("auto-retry finished",
				slog.Int64("packageId", payload.PackageID),
				slog.String("status", string(record.Status)))
			return nil
		case errors.Is(err, syncer.ErrRetryDenied),
			errors.Is(err, syncer.ErrRecordNotFound),
			errors.Is(err, syncer.ErrPackageNotFound),
			errors.Is(err, syncer.ErrNoConfig):
			logger.Info("auto-retry dropped",
				slog.Int64("packageId", payload.PackageID),
				slog.Any("reason", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			return err
		}
	}
}
