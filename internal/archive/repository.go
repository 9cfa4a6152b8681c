package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oblisync/oblisync/internal/platform/db"
	"github.com/oblisync/oblisync/internal/session"
)

const defaultListLimit = 100

// Repository provides PostgreSQL backed persistence for the invoice
// archive.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ArchiveCompleted upserts the archive row for a completed record and
// bumps the daily rollup in the same transaction. Re-archiving the
// same package replaces the row without double-counting the day.
func (r *Repository) ArchiveCompleted(ctx context.Context, record session.ProcessedInvoiceRecord) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO archived_invoices (
				package_id, order_number, invoice_id, invoice_link,
				retry_count, completed_at, archived_at
			) VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (package_id) DO UPDATE SET
				order_number = EXCLUDED.order_number,
				invoice_id = EXCLUDED.invoice_id,
				invoice_link = EXCLUDED.invoice_link,
				retry_count = EXCLUDED.retry_count,
				completed_at = EXCLUDED.completed_at,
				archived_at = NOW()
			WHERE archived_invoices.invoice_id <> EXCLUDED.invoice_id
			   OR archived_invoices.invoice_link <> EXCLUDED.invoice_link`,
			record.PackageID,
			record.OrderNumber,
			record.InvoiceID,
			record.InvoiceLink,
			record.RetryCount,
			record.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("archive: upsert invoice: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO archive_daily_stats (day, completed_count)
			VALUES (DATE($1), 1)
			ON CONFLICT (day) DO UPDATE SET
				completed_count = archive_daily_stats.completed_count + 1`,
			record.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("archive: update daily stats: %w", err)
		}
		return nil
	})
}

// ListCompleted returns archived invoices, newest first.
func (r *Repository) ListCompleted(ctx context.Context, filter ListFilter) ([]ArchivedInvoice, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	query := `
		SELECT id, package_id, order_number, invoice_id, invoice_link,
		       retry_count, completed_at, archived_at
		FROM archived_invoices`
	args := []any{}
	if filter.OrderNumber != "" {
		query += ` WHERE order_number = $1`
		args = append(args, filter.OrderNumber)
	}
	query += fmt.Sprintf(` ORDER BY completed_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []ArchivedInvoice
	for rows.Next() {
		var inv ArchivedInvoice
		if err := rows.Scan(
			&inv.ID, &inv.PackageID, &inv.OrderNumber, &inv.InvoiceID,
			&inv.InvoiceLink, &inv.RetryCount, &inv.CompletedAt, &inv.ArchivedAt,
		); err != nil {
			return nil, fmt.Errorf("archive: scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// DailyStats returns the most recent daily completion counts.
func (r *Repository) DailyStats(ctx context.Context, days int) ([]DailyStat, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := r.pool.Query(ctx, `
		SELECT day, completed_count
		FROM archive_daily_stats
		ORDER BY day DESC
		LIMIT $1`, days)
	if err != nil {
		return nil, fmt.Errorf("archive: list daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		if err := rows.Scan(&stat.Day, &stat.CompletedCount); err != nil {
			return nil, fmt.Errorf("archive: scan daily stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
