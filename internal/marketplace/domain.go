// Package marketplace implements the supplier-side client for the
// marketplace shipment API.
package marketplace

import "time"

// StatusAwaiting marks packages that are not yet eligible for
// invoicing. The marketplace keeps a package in this state until all
// of its items have shipped.
const StatusAwaiting = "Awaiting"

// Address is the billing address attached to a shipment package.
type Address struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Company     string `json:"company"`
	Address1    string `json:"address1"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	Email       string `json:"email"`
	TaxNumber   string `json:"taxNumber"`
}

// LineItem is one ordered line within a shipment package. Amount is
// the total for the line, not the unit price.
type LineItem struct {
	Name          string  `json:"productName"`
	SKU           string  `json:"merchantSku"`
	Barcode       string  `json:"barcode"`
	Quantity      float64 `json:"quantity"`
	Amount        float64 `json:"amount"`
	VATBaseAmount float64 `json:"vatBaseAmount"`
	CurrencyCode  string  `json:"currencyCode"`
}

// ShipmentPackage is one unit of fulfillment, the unit of invoicing.
// Immutable once fetched; a re-fetch replaces the whole working set.
type ShipmentPackage struct {
	ID             int64      `json:"id"`
	OrderNumber    string     `json:"orderNumber"`
	OrderDate      time.Time  `json:"orderDate"`
	Status         string     `json:"shipmentPackageStatus"`
	InvoiceAddress Address    `json:"invoiceAddress"`
	Lines          []LineItem `json:"lines"`
}

// FetchOptions controls server-side ordering of the package listing.
type FetchOptions struct {
	OrderBy    string
	Descending bool
}
