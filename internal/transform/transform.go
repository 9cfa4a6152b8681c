// Package transform maps marketplace shipment packages to accounting
// invoice requests. Everything here is pure: malformed input never
// panics or errors, it surfaces through the validation passes.
package transform

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oblisync/oblisync/internal/accounting"
	"github.com/oblisync/oblisync/internal/marketplace"
)

// dueDays is the fixed payment term applied to every invoice.
const dueDays = 30

// Options carries the invoice defaults taken from the integration
// configuration.
type Options struct {
	SellerCIF         string
	SeriesName        string
	Language          string
	WorkStation       int
	DefaultVATPercent float64
	FallbackCurrency  string

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Build derives an invoice request from one shipment package.
func Build(pkg marketplace.ShipmentPackage, opts Options) accounting.InvoiceRequest {
	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock
	}
	issue := now()

	addr := pkg.InvoiceAddress
	req := accounting.InvoiceRequest{
		CIF:         opts.SellerCIF,
		IssueDate:   issue.Format("2006-01-02"),
		DueDate:     issue.AddDate(0, 0, dueDays).Format("2006-01-02"),
		Currency:    packageCurrency(pkg, opts.FallbackCurrency),
		Language:    opts.Language,
		SeriesName:  opts.SeriesName,
		WorkStation: opts.WorkStation,
		Mentions:    fmt.Sprintf("Order %s / Package %d", pkg.OrderNumber, pkg.ID),
		Client: accounting.InvoiceClient{
			Name:    clientName(addr),
			Address: addr.Address1,
			City:    addr.City,
			Country: countryName(addr.CountryCode),
			Email:   addr.Email,
		},
	}

	if tax := strings.TrimSpace(addr.TaxNumber); tax != "" {
		req.Client.CIF = &tax
		req.Client.VATPayer = true
	}

	for _, line := range pkg.Lines {
		req.Products = append(req.Products, accounting.InvoiceProduct{
			Name:       line.Name,
			Code:       productCode(line),
			Price:      unitPrice(line),
			Quantity:   lineQuantity(line),
			VATPercent: vatPercent(line, opts.DefaultVATPercent),
			Currency:   req.Currency,
		})
	}
	return req
}

func packageCurrency(pkg marketplace.ShipmentPackage, fallback string) string {
	if len(pkg.Lines) > 0 {
		if code := strings.TrimSpace(pkg.Lines[0].CurrencyCode); code != "" {
			return code
		}
	}
	return fallback
}

func clientName(addr marketplace.Address) string {
	if company := strings.TrimSpace(addr.Company); company != "" {
		return company
	}
	return strings.TrimSpace(strings.TrimSpace(addr.FirstName) + " " + strings.TrimSpace(addr.LastName))
}

func productCode(line marketplace.LineItem) string {
	if line.SKU != "" {
		return line.SKU
	}
	return line.Barcode
}

// unitPrice derives the per-unit price from the line total. A zero or
// absent quantity would divide by zero, so the raw amount stands in.
func unitPrice(line marketplace.LineItem) float64 {
	if line.Quantity <= 0 {
		return line.Amount
	}
	return line.Amount / line.Quantity
}

func lineQuantity(line marketplace.LineItem) float64 {
	if line.Quantity <= 0 {
		return 1
	}
	return line.Quantity
}

// vatPercent reconstructs the VAT rate from the gross amount and the
// VAT base. When the base is missing the configured default applies.
func vatPercent(line marketplace.LineItem, defaultPercent float64) float64 {
	if line.VATBaseAmount > 0 && line.Amount > 0 {
		return round2((line.Amount - line.VATBaseAmount) / line.VATBaseAmount * 100)
	}
	return defaultPercent
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
