package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oblisync/oblisync/internal/marketplace"
	"github.com/oblisync/oblisync/internal/session"
	"github.com/oblisync/oblisync/internal/shared"
	"github.com/oblisync/oblisync/internal/transform"
)

// Archiver persists completed records beyond the session. Optional.
type Archiver interface {
	ArchiveCompleted(ctx context.Context, record session.ProcessedInvoiceRecord) error
}

// RetryScheduler queues an automatic retry attempt. Optional.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, packageID int64, delay time.Duration) error
}

// Service is the sync orchestrator. Operations are sequential within
// one call; callers serialize actions against the same package id.
type Service struct {
	store     *session.Store
	clients   ClientFactory
	logger    *slog.Logger
	archiver  Archiver
	scheduler RetryScheduler

	fetchGroup singleflight.Group
	clock      func() time.Time
}

// NewService constructs the orchestrator. archiver and scheduler may
// be nil.
func NewService(store *session.Store, clients ClientFactory, logger *slog.Logger, archiver Archiver, scheduler RetryScheduler) *Service {
	return &Service{
		store:     store,
		clients:   clients,
		logger:    logger,
		archiver:  archiver,
		scheduler: scheduler,
		clock:     time.Now,
	}
}

// FetchAll retrieves the complete package collection and persists it
// as the session working set. Concurrent calls share one fetch.
func (s *Service) FetchAll(ctx context.Context) ([]marketplace.ShipmentPackage, error) {
	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return nil, err
	}

	value, err, _ := s.fetchGroup.Do("fetch", func() (any, error) {
		s.log(ctx, session.SeverityInfo, "fetching shipment packages", nil)

		client := s.clients.Marketplace(*cfg)
		packages, err := client.FetchPackages(ctx, marketplace.FetchOptions{
			OrderBy:    "PackageLastModifiedDate",
			Descending: true,
		})
		if err != nil {
			s.log(ctx, session.SeverityError, "package fetch failed", map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("syncer: fetch packages: %w", err)
		}

		if err := s.store.ReplacePackages(ctx, packages); err != nil {
			return nil, fmt.Errorf("syncer: persist packages: %w", err)
		}
		s.log(ctx, session.SeverityInfo, "package fetch completed", map[string]any{"count": len(packages)})
		return packages, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]marketplace.ShipmentPackage), nil
}

// FilterEligible drops packages still awaiting shipment and packages
// whose record is already completed, preserving input order. Record
// lookup failures are treated as "no invoice exists" and logged, so a
// storage hiccup can never hide an uninvoiced package.
func (s *Service) FilterEligible(ctx context.Context, packages []marketplace.ShipmentPackage) []marketplace.ShipmentPackage {
	records, err := s.store.Records(ctx)
	if err != nil {
		s.log(ctx, session.SeverityWarn, "record lookup failed, assuming no invoices exist", map[string]any{"error": err.Error()})
		records = nil
	}

	eligible := make([]marketplace.ShipmentPackage, 0, len(packages))
	for _, pkg := range packages {
		if pkg.Status == marketplace.StatusAwaiting {
			continue
		}
		if record, ok := records[pkg.ID]; ok && record.Status == session.StatusCompleted {
			continue
		}
		eligible = append(eligible, pkg)
	}
	return eligible
}

// ProcessSelected runs the full pipeline for each requested package,
// in order, one at a time. Per-item failures are tallied, never
// raised; only batch preconditions return an error.
func (s *Service) ProcessSelected(ctx context.Context, packageIDs []int64) (*ProcessResult, error) {
	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return nil, err
	}
	packages, err := s.store.Packages(ctx)
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return nil, ErrNoSession
	}

	index := make(map[int64]marketplace.ShipmentPackage, len(packages))
	for _, pkg := range packages {
		index[pkg.ID] = pkg
	}
	matched := 0
	for _, id := range packageIDs {
		if _, ok := index[id]; ok {
			matched++
		}
	}
	if matched == 0 {
		return nil, ErrNoMatches
	}

	result := &ProcessResult{Total: len(packageIDs)}
	for _, id := range packageIDs {
		pkg, ok := index[id]
		if !ok {
			result.FailureCount++
			result.Errors = append(result.Errors, ItemError{
				PackageID: id,
				Message:   "package not found",
				Kind:      shared.KindNonRetryable,
			})
			s.log(ctx, session.SeverityError, "package not found in working set", map[string]any{"packageId": id})
			continue
		}
		if err := s.processOne(ctx, cfg, pkg); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, ItemError{
				PackageID:   pkg.ID,
				OrderNumber: pkg.OrderNumber,
				Message:     err.Error(),
				Kind:        shared.KindOf(err),
			})
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

// Retry re-runs the pipeline for one previously failed package.
// Rejections never touch the remote clients. When a prior attempt
// already created the invoice, only the link-attach step is re-run so
// no duplicate document is ever issued.
func (s *Service) Retry(ctx context.Context, packageID int64) (*session.ProcessedInvoiceRecord, error) {
	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return nil, err
	}
	record, err := s.store.Record(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w for package %d", ErrRecordNotFound, packageID)
	}
	if record.Status != session.StatusFailed {
		return nil, fmt.Errorf("%w: current status %q does not allow retry", ErrRetryDenied, record.Status)
	}
	if record.RetryCount >= cfg.MaxRetries {
		return nil, fmt.Errorf("%w: retry limit reached (%d/%d)", ErrRetryDenied, record.RetryCount, cfg.MaxRetries)
	}
	now := s.clock()
	if record.NextRetryAt != nil && now.Before(*record.NextRetryAt) {
		return nil, fmt.Errorf("%w: backoff window open until %s", ErrRetryDenied, record.NextRetryAt.Format(time.RFC3339))
	}
	kind := record.ErrorKind
	if kind == "" {
		kind = shared.ClassifyMessage(record.ErrorMessage)
	}
	if !kind.Retryable() {
		return nil, fmt.Errorf("%w: not retryable: %s", ErrRetryDenied, kind)
	}

	packages, err := s.store.Packages(ctx)
	if err != nil {
		return nil, err
	}
	var pkg *marketplace.ShipmentPackage
	for i := range packages {
		if packages[i].ID == packageID {
			pkg = &packages[i]
			break
		}
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: package %d", ErrPackageNotFound, packageID)
	}

	record.RetryCount++
	record.LastRetryAt = &now
	next := now.Add(Backoff(record.RetryCount))
	record.NextRetryAt = &next
	record.ErrorMessage = ""
	record.ErrorKind = ""
	record.Status = session.StatusPending
	if err := s.store.SaveRecord(ctx, *record); err != nil {
		return nil, err
	}
	s.log(ctx, session.SeverityInfo, "retrying package", map[string]any{
		"packageId": packageID,
		"attempt":   record.RetryCount,
	})

	if err := s.processOne(ctx, cfg, *pkg); err != nil {
		s.logger.Warn("retry attempt failed", slog.Int64("packageId", packageID), slog.Any("error", err))
	}
	return s.store.Record(ctx, packageID)
}

// processOne runs the per-package pipeline. Whatever happens, the
// record never stays pending: it ends completed or failed.
func (s *Service) processOne(ctx context.Context, cfg *session.IntegrationConfig, pkg marketplace.ShipmentPackage) error {
	record, err := s.store.Record(ctx, pkg.ID)
	if err != nil {
		s.log(ctx, session.SeverityWarn, "record lookup failed, assuming no invoice exists", map[string]any{
			"packageId": pkg.ID, "error": err.Error(),
		})
		record = nil
	}

	pending := session.ProcessedInvoiceRecord{
		PackageID:   pkg.ID,
		OrderNumber: pkg.OrderNumber,
		Status:      session.StatusPending,
		ProcessedAt: s.clock(),
	}
	if record != nil {
		pending.RetryCount = record.RetryCount
		pending.LastRetryAt = record.LastRetryAt
		pending.NextRetryAt = record.NextRetryAt
		// A previously created invoice survives the reset so a retry
		// can resume at the link-attach step.
		pending.InvoiceID = record.InvoiceID
		pending.InvoiceLink = record.InvoiceLink
	}
	if err := s.store.SaveRecord(ctx, pending); err != nil {
		return err
	}

	if err := s.runPipeline(ctx, cfg, pkg, &pending); err != nil {
		pending.Status = session.StatusFailed
		pending.ErrorMessage = err.Error()
		pending.ErrorKind = shared.KindOf(err)
		pending.ProcessedAt = s.clock()
		if saveErr := s.store.SaveRecord(ctx, pending); saveErr != nil {
			s.logger.Error("record update failed", slog.Int64("packageId", pkg.ID), slog.Any("error", saveErr))
		}
		s.log(ctx, session.SeverityError, "package processing failed", map[string]any{
			"packageId":   pkg.ID,
			"orderNumber": pkg.OrderNumber,
			"error":       err.Error(),
			"kind":        string(pending.ErrorKind),
		})
		s.maybeScheduleRetry(ctx, cfg, pending)
		return err
	}

	pending.Status = session.StatusCompleted
	pending.ErrorMessage = ""
	pending.ErrorKind = ""
	pending.NextRetryAt = nil
	pending.ProcessedAt = s.clock()
	if err := s.store.SaveRecord(ctx, pending); err != nil {
		return err
	}
	s.log(ctx, session.SeverityInfo, "package invoiced", map[string]any{
		"packageId":   pkg.ID,
		"orderNumber": pkg.OrderNumber,
		"invoiceId":   pending.InvoiceID,
	})
	if s.archiver != nil {
		if err := s.archiver.ArchiveCompleted(ctx, pending); err != nil {
			s.log(ctx, session.SeverityWarn, "archive write failed", map[string]any{
				"packageId": pkg.ID, "error": err.Error(),
			})
		}
	}
	return nil
}

// runPipeline performs validate → transform → create → link, mutating
// record as the invoice identity becomes known.
func (s *Service) runPipeline(ctx context.Context, cfg *session.IntegrationConfig, pkg marketplace.ShipmentPackage, record *session.ProcessedInvoiceRecord) error {
	source := transform.ValidateSourcePackage(pkg)
	s.logWarnings(ctx, pkg, source.Warnings)
	if !source.Valid {
		return errors.New(source.ErrorText())
	}

	invoice := transform.Build(pkg, transform.Options{
		SellerCIF:         cfg.SellerCIF,
		SeriesName:        cfg.SeriesName,
		Language:          cfg.Language,
		WorkStation:       cfg.WorkStation,
		DefaultVATPercent: cfg.DefaultVATPercent,
		FallbackCurrency:  cfg.FallbackCurrency,
		Clock:             s.clock,
	})
	target := transform.ValidateInvoice(invoice)
	s.logWarnings(ctx, pkg, target.Warnings)
	if !target.Valid {
		return errors.New(target.ErrorText())
	}

	if record.InvoiceLink == "" {
		result, err := s.clients.Accounting(*cfg).CreateInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		if result.Link == "" {
			return errors.New("invoice created but no link returned")
		}
		record.InvoiceID = result.DocumentID()
		record.InvoiceLink = result.Link
		// Persist before the attach so a later retry never creates a
		// second invoice for the same package.
		if err := s.store.SaveRecord(ctx, *record); err != nil {
			return err
		}
		s.log(ctx, session.SeverityInfo, "invoice created", map[string]any{
			"packageId":   pkg.ID,
			"orderNumber": pkg.OrderNumber,
			"invoiceId":   record.InvoiceID,
		})
	} else {
		s.log(ctx, session.SeverityInfo, "reusing invoice from previous attempt", map[string]any{
			"packageId": pkg.ID,
			"invoiceId": record.InvoiceID,
		})
	}

	if err := s.clients.Marketplace(*cfg).AttachInvoiceLink(ctx, pkg.ID, record.InvoiceLink); err != nil {
		return err
	}
	s.log(ctx, session.SeverityInfo, "invoice link attached", map[string]any{
		"packageId":   pkg.ID,
		"orderNumber": pkg.OrderNumber,
	})
	return nil
}

func (s *Service) maybeScheduleRetry(ctx context.Context, cfg *session.IntegrationConfig, record session.ProcessedInvoiceRecord) {
	if s.scheduler == nil || cfg.AutoRetryCount <= 0 {
		return
	}
	if record.RetryCount >= cfg.AutoRetryCount || record.RetryCount >= cfg.MaxRetries {
		return
	}
	if !record.ErrorKind.Retryable() {
		return
	}
	delay := Backoff(record.RetryCount + 1)
	if err := s.scheduler.ScheduleRetry(ctx, record.PackageID, delay); err != nil {
		s.log(ctx, session.SeverityWarn, "auto-retry scheduling failed", map[string]any{
			"packageId": record.PackageID, "error": err.Error(),
		})
		return
	}
	s.log(ctx, session.SeverityInfo, "auto-retry scheduled", map[string]any{
		"packageId": record.PackageID,
		"delay":     delay.String(),
	})
}

func (s *Service) requireConfig(ctx context.Context) (*session.IntegrationConfig, error) {
	cfg, err := s.store.Config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoConfig
	}
	return cfg, nil
}

func (s *Service) logWarnings(ctx context.Context, pkg marketplace.ShipmentPackage, warnings []string) {
	for _, warning := range warnings {
		s.log(ctx, session.SeverityWarn, warning, map[string]any{
			"packageId":   pkg.ID,
			"orderNumber": pkg.OrderNumber,
		})
	}
}

// log writes to both the session audit log and the process logger.
func (s *Service) log(ctx context.Context, severity, message string, detail map[string]any) {
	entry := session.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: s.clock(),
		Severity:  severity,
		Message:   message,
		Detail:    detail,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Warn("audit log append failed", slog.Any("error", err))
	}
	attrs := make([]any, 0, len(detail)*2)
	for key, value := range detail {
		attrs = append(attrs, slog.Any(key, value))
	}
	switch severity {
	case session.SeverityError:
		s.logger.Error(message, attrs...)
	case session.SeverityWarn:
		s.logger.Warn(message, attrs...)
	default:
		s.logger.Info(message, attrs...)
	}
}
