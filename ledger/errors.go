/*
errors.go - Centralized error types for the ledger and the accrual engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; structured errors carry the
  offending identifiers.

ERROR CATEGORIES:
  1. Work-selection errors - "nothing to do" signals, not faults
  2. Configuration errors  - per-company settings missing
  3. Integrity errors      - malformed chains, duplicate charge periods
  4. Lookup errors         - missing documents

USAGE:
    if errors.Is(err, ledger.ErrNoEligibleInvoices) {
        // informational: every chain is already caught up
    }
    var cfgErr *ledger.ConfigurationError
    if errors.As(err, &cfgErr) {
        log.Warn().Str("company", string(cfgErr.CompanyID)).Msg(...)
    }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoEligibleInvoices is returned when charge generation finds no open,
	// past-due invoice after filtering. This is a caller-visible "nothing to
	// do" signal, not a system fault.
	ErrNoEligibleInvoices = errors.New("no open, past due invoices or charges")

	// ErrMissingConfiguration is returned when a company lacks a required
	// finance-charge setting. Wrapped by ConfigurationError.
	ErrMissingConfiguration = errors.New("finance-charge configuration missing")

	// ErrDataIntegrity is returned when a chain is malformed (e.g. a charge
	// without a due date). Fatal for that invoice, never silently swallowed.
	ErrDataIntegrity = errors.New("chain integrity violation")

	// ErrDuplicateChargePeriod is returned by stores when a second charge
	// covering the same calendar month is created for one invoice. This is
	// the storage-level guard against overlapping engine runs.
	ErrDuplicateChargePeriod = errors.New("charge already exists for period")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrCompanyConfigNotFound is returned when a company has no
	// finance-charge configuration record at all.
	ErrCompanyConfigNotFound = errors.New("company configuration not found")

	// ErrNotPosted is returned when an operation requires a posted document.
	ErrNotPosted = errors.New("document is not posted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError identifies the company whose settings are incomplete.
// Generation for that company's invoices is aborted; other companies in the
// same batch are unaffected.
type ConfigurationError struct {
	CompanyID CompanyID
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("charge product, payment term or account is not set for company %s (missing: %s)",
		e.CompanyID, strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Unwrap() error { return ErrMissingConfiguration }

// DataIntegrityError identifies a malformed chain member.
type DataIntegrityError struct {
	InvoiceID InvoiceID
	ChargeID  InvoiceID
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	if e.ChargeID != "" {
		return fmt.Sprintf("invoice %s: charge %s: %s", e.InvoiceID, e.ChargeID, e.Reason)
	}
	return fmt.Sprintf("invoice %s: %s", e.InvoiceID, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNoWork returns true if the error is the informational empty-batch signal.
func IsNoWork(err error) bool {
	return errors.Is(err, ErrNoEligibleInvoices)
}

// IsClientError returns true if the error is due to invalid input or state
// rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoEligibleInvoices) ||
		errors.Is(err, ErrMissingConfiguration) ||
		errors.Is(err, ErrDuplicateChargePeriod) ||
		errors.Is(err, ErrNotPosted)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrCompanyConfigNotFound)
}
