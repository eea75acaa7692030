/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal ledger model from the external API contract. Dates travel as
  YYYY-MM-DD strings, monetary values as decimal strings.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/apr"
	"github.com/clearbook/finance-engine/ledger"
	"github.com/clearbook/finance-engine/sales"
)

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceDTO represents an invoice in API responses.
type InvoiceDTO struct {
	ID           string        `json:"id"`
	Number       string        `json:"number"`
	CompanyID    string        `json:"company_id"`
	PartnerID    string        `json:"partner_id"`
	Currency     string        `json:"currency"`
	Direction    string        `json:"direction"`
	Refund       bool          `json:"refund,omitempty"`
	State        string        `json:"state"`
	PaymentState string        `json:"payment_state"`
	IssueDate    string        `json:"issue_date"`
	DueDate      string        `json:"due_date,omitempty"`
	Total        string        `json:"total"`
	Residual     string        `json:"residual"`
	ParentID     string        `json:"parent_id,omitempty"`
	Lines        []LineItemDTO `json:"lines,omitempty"`

	EarlyPaymentDiscount string `json:"early_payment_discount,omitempty"`
	EarlyPaymentDeadline string `json:"early_payment_deadline,omitempty"`
	Memo                 string `json:"memo,omitempty"`
}

type LineItemDTO struct {
	ProductID   string `json:"product_id"`
	AccountID   string `json:"account_id"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

// InvoiceChainDTO is an invoice together with its generated charges.
type InvoiceChainDTO struct {
	Invoice InvoiceDTO   `json:"invoice"`
	Charges []InvoiceDTO `json:"charges"`
}

// CreateInvoiceRequest creates an original invoice.
type CreateInvoiceRequest struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	PartnerID string `json:"partner_id"`
	Currency  string `json:"currency"`
	Refund    bool   `json:"refund"`
	Inbound   bool   `json:"inbound"`
	IssueDate string `json:"issue_date"`
	DueDate   string `json:"due_date"`
	Total     string `json:"total"`
	Post      bool   `json:"post"`

	EarlyPaymentDiscount string `json:"early_payment_discount,omitempty"`
	EarlyPaymentDeadline string `json:"early_payment_deadline,omitempty"`
	Memo                 string `json:"memo,omitempty"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type RecordPaymentRequest struct {
	ID          string              `json:"id"`
	CompanyID   string              `json:"company_id"`
	PartnerID   string              `json:"partner_id"`
	Date        string              `json:"date"`
	Currency    string              `json:"currency"`
	Amount      string              `json:"amount"`
	Memo        string              `json:"memo,omitempty"`
	Allocations []AllocationRequest `json:"allocations"`
}

type AllocationRequest struct {
	InvoiceID string `json:"invoice_id"`
	Amount    string `json:"amount"`
}

// =============================================================================
// CHARGE GENERATION
// =============================================================================

// GenerateChargesRequest triggers a finance-charge run. With InvoiceIDs set
// only those invoices are considered (strictly re-validated); otherwise the
// engine selects its own batch.
type GenerateChargesRequest struct {
	ReferenceDate string   `json:"reference_date,omitempty"`
	BatchSize     int      `json:"batch_size,omitempty"`
	InvoiceIDs    []string `json:"invoice_ids,omitempty"`
}

// RunReportDTO is the outcome of a finance-charge run.
type RunReportDTO struct {
	ReferenceDate string       `json:"reference_date"`
	Processed     int          `json:"processed"`
	Created       []string     `json:"created"`
	Failures      []FailureDTO `json:"failures,omitempty"`
}

type FailureDTO struct {
	InvoiceID string `json:"invoice_id"`
	Error     string `json:"error"`
}

// =============================================================================
// COMPANY CONFIG
// =============================================================================

type CompanyConfigDTO struct {
	CompanyID              string `json:"company_id"`
	PaymentTermDays        int    `json:"payment_term_days"`
	ProductID              string `json:"product_id"`
	ProductIncomeAccountID string `json:"product_income_account_id,omitempty"`
	FallbackAccountID      string `json:"fallback_account_id,omitempty"`
	ChargeDescription      string `json:"charge_description,omitempty"`
	AnnualRate             string `json:"annual_rate,omitempty"`
	MultiStub              bool   `json:"multi_stub"`
}

// =============================================================================
// SALES MARGIN CHECK
// =============================================================================

type MarginCheckRequest struct {
	ManagerOverride bool                     `json:"manager_override"`
	Lines           []MarginCheckLineRequest `json:"lines"`
}

type MarginCheckLineRequest struct {
	ProductID   string `json:"product_id"`
	Description string `json:"description,omitempty"`
	UnitPrice   string `json:"unit_price"`
	UnitCost    string `json:"unit_cost"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func invoiceDTO(inv *ledger.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:           string(inv.ID),
		Number:       inv.Number,
		CompanyID:    string(inv.CompanyID),
		PartnerID:    string(inv.PartnerID),
		Currency:     inv.Currency,
		Direction:    string(inv.Direction),
		Refund:       inv.Refund,
		State:        string(inv.State),
		PaymentState: string(inv.PaymentState),
		IssueDate:    inv.IssueDate.String(),
		Total:        inv.Total.StringFixed(2),
		Residual:     inv.Residual.StringFixed(2),
		Memo:         inv.Memo,
	}
	if !inv.DueDate.IsZero() {
		dto.DueDate = inv.DueDate.String()
	}
	if inv.ParentID != nil {
		dto.ParentID = string(*inv.ParentID)
	}
	if !inv.EarlyPaymentDiscount.IsZero() {
		dto.EarlyPaymentDiscount = inv.EarlyPaymentDiscount.StringFixed(2)
	}
	if inv.EarlyPaymentDeadline != nil {
		dto.EarlyPaymentDeadline = inv.EarlyPaymentDeadline.String()
	}
	for _, line := range inv.Lines {
		dto.Lines = append(dto.Lines, LineItemDTO{
			ProductID:   line.ProductID,
			AccountID:   line.AccountID,
			Description: line.Description,
			Quantity:    line.Quantity.String(),
			UnitPrice:   line.UnitPrice.StringFixed(2),
		})
	}
	return dto
}

func runReportDTO(report *apr.RunReport) RunReportDTO {
	dto := RunReportDTO{
		ReferenceDate: report.ReferenceDate.String(),
		Processed:     report.Processed,
		Created:       make([]string, 0, len(report.Created)),
	}
	for _, id := range report.Created {
		dto.Created = append(dto.Created, string(id))
	}
	for _, f := range report.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{
			InvoiceID: string(f.InvoiceID),
			Error:     f.Err.Error(),
		})
	}
	return dto
}

func companyConfigDTO(cfg *ledger.CompanyConfig) CompanyConfigDTO {
	dto := CompanyConfigDTO{
		CompanyID:              string(cfg.CompanyID),
		PaymentTermDays:        cfg.PaymentTermDays,
		ProductID:              cfg.ProductID,
		ProductIncomeAccountID: cfg.ProductIncomeAccountID,
		FallbackAccountID:      cfg.FallbackAccountID,
		ChargeDescription:      cfg.ChargeDescription,
		MultiStub:              cfg.MultiStub,
	}
	if !cfg.AnnualRate.IsZero() {
		dto.AnnualRate = cfg.AnnualRate.String()
	}
	return dto
}

func (r MarginCheckRequest) orderLines() ([]sales.OrderLine, error) {
	lines := make([]sales.OrderLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		cost, err := decimal.NewFromString(l.UnitCost)
		if err != nil {
			return nil, err
		}
		lines = append(lines, sales.OrderLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			UnitPrice:   price,
			UnitCost:    cost,
		})
	}
	return lines, nil
}
