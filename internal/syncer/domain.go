// Package syncer drives the end-to-end invoice lifecycle: fetch,
// filter, validate, transform, create, link, record, retry.
package syncer

import (
	"errors"

	"github.com/oblisync/oblisync/internal/shared"
)

// Precondition and gating errors. Handlers map these onto HTTP
// problem responses; everything else is a per-item failure.
var (
	ErrNoConfig        = errors.New("syncer: no configuration saved")
	ErrNoSession       = errors.New("syncer: no packages fetched this session")
	ErrNoMatches       = errors.New("syncer: no matching packages")
	ErrRecordNotFound  = errors.New("syncer: no processing record")
	ErrPackageNotFound = errors.New("syncer: package not in working set")
	ErrRetryDenied     = errors.New("syncer: retry denied")
)

// ItemError is one structured per-package failure inside a batch.
type ItemError struct {
	PackageID   int64       `json:"packageId"`
	OrderNumber string      `json:"orderNumber,omitempty"`
	Message     string      `json:"message"`
	Kind        shared.Kind `json:"kind"`
}

// ProcessResult tallies one batch. Partial failure never raises; only
// batch preconditions do.
type ProcessResult struct {
	Total        int         `json:"total"`
	SuccessCount int         `json:"successCount"`
	FailureCount int         `json:"failureCount"`
	Errors       []ItemError `json:"errors,omitempty"`
}
