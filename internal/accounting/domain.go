// Package accounting implements the client for the invoice-issuing
// accounting API.
package accounting

// InvoiceClient describes the customer an invoice is issued to. CIF is
// a pointer so "no tax identifier" stays distinct from an empty one.
type InvoiceClient struct {
	Name     string  `json:"name" validate:"required"`
	CIF      *string `json:"cif,omitempty"`
	Address  string  `json:"address,omitempty"`
	City     string  `json:"city,omitempty"`
	Country  string  `json:"country,omitempty"`
	Email    string  `json:"email,omitempty"`
	VATPayer bool    `json:"vatPayer"`
}

// InvoiceProduct is one invoice line. Price is the unit price.
type InvoiceProduct struct {
	Name       string  `json:"name" validate:"required"`
	Code       string  `json:"code,omitempty"`
	Price      float64 `json:"price" validate:"gt=0"`
	Quantity   float64 `json:"quantity" validate:"gt=0"`
	VATPercent float64 `json:"vatPercentage" validate:"gte=0"`
	Currency   string  `json:"currency,omitempty"`
}

// InvoiceRequest is the document-creation payload. Dates use strict
// YYYY-MM-DD formatting.
type InvoiceRequest struct {
	CIF         string           `json:"cif" validate:"required"`
	Client      InvoiceClient    `json:"client"`
	IssueDate   string           `json:"issueDate" validate:"required"`
	DueDate     string           `json:"dueDate" validate:"required"`
	Currency    string           `json:"currency" validate:"required"`
	Language    string           `json:"language" validate:"required"`
	SeriesName  string           `json:"seriesName" validate:"required"`
	WorkStation int              `json:"workStation" validate:"min=1,max=999"`
	Mentions    string           `json:"mentions,omitempty"`
	Products    []InvoiceProduct `json:"products" validate:"min=1,dive"`
}

// Total sums price times quantity over all products.
func (r InvoiceRequest) Total() float64 {
	var total float64
	for _, p := range r.Products {
		total += p.Price * p.Quantity
	}
	return total
}

// InvoiceResult identifies the created document. Link is the durable
// public URL written back to the marketplace.
type InvoiceResult struct {
	SeriesName string `json:"seriesName"`
	Number     string `json:"number"`
	Link       string `json:"link"`
}

// DocumentID composes the human-facing invoice identifier.
func (r InvoiceResult) DocumentID() string {
	return r.SeriesName + r.Number
}
