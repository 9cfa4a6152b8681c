package archive

import "time"

// ArchivedInvoice is a completed invoice persisted beyond the working
// session for audit and lookup.
type ArchivedInvoice struct {
	ID          int64     `json:"id"`
	PackageID   int64     `json:"packageId"`
	OrderNumber string    `json:"orderNumber"`
	InvoiceID   string    `json:"invoiceId"`
	InvoiceLink string    `json:"invoiceLink"`
	RetryCount  int       `json:"retryCount"`
	CompletedAt time.Time `json:"completedAt"`
	ArchivedAt  time.Time `json:"archivedAt"`
}

// DailyStat is the per-day completion rollup.
type DailyStat struct {
	Day            time.Time `json:"day"`
	CompletedCount int       `json:"completedCount"`
}

// ListFilter narrows archive queries.
type ListFilter struct {
	OrderNumber string
	Limit       int
}
