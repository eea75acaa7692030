/*
store.go - Persistence interfaces for invoices, payments and configuration

PURPOSE:
  Defines the interface between domain logic and the database. The engine
  and the check-stub builder only ever see these interfaces; SQLite and the
  in-memory store are interchangeable behind them.

CHARGE-PERIOD UNIQUENESS:
  CreateInvoice must reject a second charge covering the same calendar month
  for the same parent with ErrDuplicateChargePeriod. This is the storage-level
  mutual-exclusion guard: two overlapping engine runs can both pass the
  eligibility re-check, but only one of them can land a given month's charge.

NUMBERING:
  Originals created without a number are assigned one from the primary
  invoice sequence. Accrual charges arrive pre-numbered (<parent>/APR/NNN)
  and never advance the primary sequence.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - ledger/store/memory.go: in-memory for tests and dev
*/
package ledger

import "context"

// =============================================================================
// INVOICE STORE
// =============================================================================

// InvoiceFilter selects invoices. Zero-valued fields are not applied.
type InvoiceFilter struct {
	Direction     *Direction
	State         *PostingState
	PaymentStates []PaymentState

	// OriginalsOnly excludes accrual charges (documents with a parent link).
	OriginalsOnly bool

	// DueBefore selects invoices whose derived latest-charge due date is
	// known and strictly before this date.
	DueBefore *Date

	// Limit bounds the result set. Zero means no limit. Ordering is stable
	// for a given data snapshot but otherwise unspecified.
	Limit int
}

// InvoiceStore persists invoices and their chains.
type InvoiceStore interface {
	// CreateInvoice persists a new invoice. Assigns a number from the
	// primary sequence when Number is empty and the document is an original.
	// Returns ErrDuplicateChargePeriod when the document is a charge and a
	// non-cancelled charge for the same parent already covers the same
	// calendar month of its issue date.
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// PostInvoice finalizes a draft document. Posting is irreversible for
	// this engine's purposes.
	PostInvoice(ctx context.Context, id InvoiceID) error

	// GetInvoice returns one invoice by ID.
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// SelectInvoices returns invoices matching the filter.
	SelectInvoices(ctx context.Context, f InvoiceFilter) ([]*Invoice, error)

	// ChargesOf returns all accrual charges of an original invoice,
	// including cancelled ones. Callers derive chain views via
	// ActiveCharges / ChainTail.
	ChargesOf(ctx context.Context, id InvoiceID) ([]*Invoice, error)
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

// PaymentStore persists payments and applies their allocations.
type PaymentStore interface {
	// RecordPayment persists the payment and applies each allocation to its
	// invoice: residual is reduced and payment state moves to partial or
	// paid. Allocations against unknown invoices fail the whole payment.
	RecordPayment(ctx context.Context, p *Payment, allocs []PaymentAllocation) error

	// GetPayment returns one payment by ID.
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)

	// AllocationsOf returns the allocations of a payment.
	AllocationsOf(ctx context.Context, id PaymentID) ([]PaymentAllocation, error)
}

// =============================================================================
// CONFIG STORE
// =============================================================================

// ConfigStore persists per-company finance-charge settings.
type ConfigStore interface {
	// GetCompanyConfig returns the settings for one company, or
	// ErrCompanyConfigNotFound when no record exists.
	GetCompanyConfig(ctx context.Context, id CompanyID) (*CompanyConfig, error)

	PutCompanyConfig(ctx context.Context, cfg *CompanyConfig) error

	ListCompanyConfigs(ctx context.Context) ([]*CompanyConfig, error)
}

// Store aggregates the full persistence surface. Concrete stores implement
// all of it; consumers should depend on the narrow interfaces instead.
type Store interface {
	InvoiceStore
	PaymentStore
	ConfigStore
}
