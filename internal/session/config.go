package session

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

// IntegrationConfig is the operator-supplied configuration: API
// credentials for both remote systems plus invoice defaults. It is
// stored encrypted and survives session expiry.
type IntegrationConfig struct {
	MarketplaceBaseURL   string `json:"marketplaceBaseUrl" validate:"required,url"`
	MarketplaceAPIKey    string `json:"marketplaceApiKey" validate:"required"`
	MarketplaceAPISecret string `json:"marketplaceApiSecret" validate:"required"`
	SupplierID           int64  `json:"supplierId" validate:"required"`

	AccountingBaseURL   string `json:"accountingBaseUrl" validate:"required,url"`
	AccountingEmail     string `json:"accountingEmail" validate:"required,email"`
	AccountingSecretKey string `json:"accountingSecretKey" validate:"required"`
	SellerCIF           string `json:"sellerCif" validate:"required"`

	SeriesName        string  `json:"seriesName" validate:"required"`
	Language          string  `json:"language" validate:"required"`
	WorkStation       int     `json:"workStation" validate:"min=1,max=999"`
	DefaultVATPercent float64 `json:"defaultVatPercent" validate:"gte=0,lte=100"`
	FallbackCurrency  string  `json:"fallbackCurrency" validate:"required,len=3"`

	MaxRetries     int `json:"maxRetries" validate:"min=1,max=20"`
	AutoRetryCount int `json:"autoRetryCount" validate:"min=0,max=20"`
}

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// ApplyDefaults fills unset optional fields.
func (c *IntegrationConfig) ApplyDefaults() {
	if c.WorkStation == 0 {
		c.WorkStation = 1
	}
	if c.DefaultVATPercent == 0 {
		c.DefaultVATPercent = 19
	}
	if c.FallbackCurrency == "" {
		c.FallbackCurrency = "RON"
	}
	if c.Language == "" {
		c.Language = "RO"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
}

// Validate checks the configuration before it is accepted.
func (c *IntegrationConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("session: config: %w", err)
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("session: config: invalid language %q: %w", c.Language, err)
	}
	return nil
}

// Redacted returns a copy safe to show to the UI.
func (c IntegrationConfig) Redacted() IntegrationConfig {
	redacted := c
	if redacted.MarketplaceAPISecret != "" {
		redacted.MarketplaceAPISecret = "****"
	}
	if redacted.AccountingSecretKey != "" {
		redacted.AccountingSecretKey = "****"
	}
	return redacted
}
