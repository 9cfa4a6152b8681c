package transform

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oblisync/oblisync/internal/accounting"
	"github.com/oblisync/oblisync/internal/marketplace"
)

// Result reports one validation pass. Errors block processing,
// warnings do not.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ErrorText joins all error messages for record keeping.
func (r Result) ErrorText() string {
	return strings.Join(r.Errors, "; ")
}

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	taxIDPattern = regexp.MustCompile(`^[A-Z]{0,2}\d{2,12}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateSourcePackage checks that a fetched package carries enough
// data to build an invoice from.
func ValidateSourcePackage(pkg marketplace.ShipmentPackage) Result {
	var result Result

	if pkg.ID == 0 {
		result.Errors = append(result.Errors, "package id missing")
	}
	if strings.TrimSpace(pkg.OrderNumber) == "" {
		result.Errors = append(result.Errors, "order number missing")
	}
	if clientName(pkg.InvoiceAddress) == "" {
		result.Errors = append(result.Errors, "customer name or company missing")
	}
	if len(pkg.Lines) == 0 {
		result.Errors = append(result.Errors, "package has no line items")
	}

	for i, line := range pkg.Lines {
		if strings.TrimSpace(line.Name) == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: product name missing", i+1))
		}
		if line.Amount <= 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: amount must be positive", i+1))
		}
		if line.Quantity <= 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if strings.TrimSpace(line.CurrencyCode) == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: currency code missing", i+1))
		}
	}

	if strings.TrimSpace(pkg.InvoiceAddress.City) == "" {
		result.Warnings = append(result.Warnings, "billing city missing")
	}
	if strings.TrimSpace(pkg.InvoiceAddress.CountryCode) == "" {
		result.Warnings = append(result.Warnings, "billing country missing")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateInvoice checks the built invoice request against the
// accounting API's hard requirements. Format-sanity findings are
// warnings only.
func ValidateInvoice(inv accounting.InvoiceRequest) Result {
	var result Result

	if err := validate.Struct(inv); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok {
			for _, fe := range fieldErrs {
				result.Errors = append(result.Errors, fieldMessage(fe))
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	issue, issueOK := parseStrictDate(inv.IssueDate)
	if inv.IssueDate != "" && !issueOK {
		result.Errors = append(result.Errors, "issueDate must use YYYY-MM-DD format")
	}
	due, dueOK := parseStrictDate(inv.DueDate)
	if inv.DueDate != "" && !dueOK {
		result.Errors = append(result.Errors, "dueDate must use YYYY-MM-DD format")
	}
	if issueOK && dueOK && due.Before(issue) {
		result.Errors = append(result.Errors, "dueDate must not be before issueDate")
	}

	if len(inv.Products) > 0 {
		if total := inv.Total(); total <= 0 {
			result.Errors = append(result.Errors, "invoice total must be positive")
		} else if total > 100000 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unusually large invoice total %.2f", total))
		}
	}

	if inv.Currency != "" && len(inv.Currency) != 3 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("currency code %q is not a 3-letter code", inv.Currency))
	}
	if inv.Client.CIF != nil && !taxIDPattern.MatchString(strings.ToUpper(*inv.Client.CIF)) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("client tax id %q has an unexpected format", *inv.Client.CIF))
	}
	if inv.Client.Email != "" && !emailPattern.MatchString(inv.Client.Email) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("client email %q looks malformed", inv.Client.Email))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = fieldErrs
	return true
}

func parseStrictDate(value string) (time.Time, bool) {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil || parsed.Format("2006-01-02") != value {
		return time.Time{}, false
	}
	return parsed, true
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "InvoiceRequest.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Field() == "Products" {
			return "at least one product is required"
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
