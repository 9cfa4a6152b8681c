// Package session persists the operator's working state in Redis:
// the fetched package set, per-package processing records, a bounded
// activity log, and the encrypted integration credentials.
package session

import (
	"time"

	"github.com/oblisync/oblisync/internal/shared"
)

// RecordStatus is the lifecycle state of one processing record.
type RecordStatus string

const (
	// StatusPending marks an attempt in flight.
	StatusPending RecordStatus = "pending"
	// StatusCompleted is terminal.
	StatusCompleted RecordStatus = "completed"
	// StatusFailed is terminal for the attempt but retryable.
	StatusFailed RecordStatus = "failed"
)

// ProcessedInvoiceRecord tracks every package ever attempted, keyed by
// package id. Created on the first attempt, updated in place on every
// later one; deleted only by an explicit session clear.
type ProcessedInvoiceRecord struct {
	PackageID    int64        `json:"packageId"`
	OrderNumber  string       `json:"orderNumber"`
	Status       RecordStatus `json:"status"`
	InvoiceID    string       `json:"invoiceId,omitempty"`
	InvoiceLink  string       `json:"invoiceLink,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	ErrorKind    shared.Kind  `json:"errorKind,omitempty"`
	RetryCount   int          `json:"retryCount,omitempty"`
	LastRetryAt  *time.Time   `json:"lastRetryAt,omitempty"`
	NextRetryAt  *time.Time   `json:"nextRetryAt,omitempty"`
	ProcessedAt  time.Time    `json:"processedAt"`
}

// Severity levels for log entries.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// LogEntry is one append-only audit record. The log is capped; the
// oldest entries are evicted first.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
}
