package syncer

import (
	"context"

	"github.com/oblisync/oblisync/internal/accounting"
	"github.com/oblisync/oblisync/internal/marketplace"
	"github.com/oblisync/oblisync/internal/session"
)

// MarketplaceAPI is the marketplace collaborator contract.
type MarketplaceAPI interface {
	FetchPackages(ctx context.Context, opts marketplace.FetchOptions) ([]marketplace.ShipmentPackage, error)
	AttachInvoiceLink(ctx context.Context, packageID int64, link string) error
}

// AccountingAPI is the accounting collaborator contract.
type AccountingAPI interface {
	CreateInvoice(ctx context.Context, req accounting.InvoiceRequest) (*accounting.InvoiceResult, error)
}

// ClientFactory builds API clients from the stored integration
// configuration. Credentials can change between operations, so
// clients are constructed per call rather than held by the service.
type ClientFactory interface {
	Marketplace(cfg session.IntegrationConfig) MarketplaceAPI
	Accounting(cfg session.IntegrationConfig) AccountingAPI
}

// APIClientFactory is the production ClientFactory.
type APIClientFactory struct{}

// Marketplace builds the supplier API client.
func (APIClientFactory) Marketplace(cfg session.IntegrationConfig) MarketplaceAPI {
	return marketplace.NewClient(marketplace.Config{
		BaseURL:    cfg.MarketplaceBaseURL,
		APIKey:     cfg.MarketplaceAPIKey,
		APISecret:  cfg.MarketplaceAPISecret,
		SupplierID: cfg.SupplierID,
	})
}

// Accounting builds the invoice API client.
func (APIClientFactory) Accounting(cfg session.IntegrationConfig) AccountingAPI {
	return accounting.NewClient(accounting.Config{
		BaseURL:   cfg.AccountingBaseURL,
		Email:     cfg.AccountingEmail,
		SecretKey: cfg.AccountingSecretKey,
		CIF:       cfg.SellerCIF,
	})
}
