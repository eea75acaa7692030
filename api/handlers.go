/*
handlers.go - HTTP API handlers for the finance-charge engine

PURPOSE:
  Exposes the ledger and the accrual engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Invoices:
    GET    /api/invoices               List invoices
    POST   /api/invoices               Create (and optionally post) invoice
    GET    /api/invoices/{id}          Invoice with its charge chain
    POST   /api/invoices/{id}/post     Post a draft invoice

  Payments:
    POST   /api/payments               Record payment with allocations
    GET    /api/payments/{id}/check    Check-stub PDF

  Finance charges:
    POST   /api/apr/generate           Generate missing charges (the button)
    GET    /api/apr/due                Preview the due-invoice selection

  Companies:
    GET    /api/companies/{id}/config  Finance-charge settings
    PUT    /api/companies/{id}/config

  Sales:
    POST   /api/sales/margin-check     Below-cost confirmation guard

  Dev:
    POST   /api/seed                   Load demo dataset
    POST   /api/reset                  Wipe the store

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: validation errors, invalid input, "nothing to do"
  - 404: resource not found
  - 409: conflicts (duplicate charge period)
  - 422: configuration / margin violations
  - 500: internal errors
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/apr"
	"github.com/clearbook/finance-engine/checkstub"
	"github.com/clearbook/finance-engine/ledger"
	"github.com/clearbook/finance-engine/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  ledger.Store
	Engine *apr.Engine
	Stubs  *checkstub.Builder
	Log    zerolog.Logger
}

// NewHandler creates a handler over the given store.
func NewHandler(store ledger.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Store:  store,
		Engine: apr.New(store, store, log),
		Stubs:  checkstub.NewBuilder(store, store),
		Log:    log,
	}
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns all invoices, originals first by due date.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Store.SelectInvoices(r.Context(), ledger.InvoiceFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, invoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInvoice creates an original invoice, optionally posting it.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.CompanyID == "" || req.Total == "" {
		writeError(w, http.StatusBadRequest, "id, company_id and total are required", nil)
		return
	}

	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total", err)
		return
	}
	issueDate, err := ledger.ParseDate(req.IssueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid issue_date", err)
		return
	}

	inv := &ledger.Invoice{
		ID:           ledger.InvoiceID(req.ID),
		CompanyID:    ledger.CompanyID(req.CompanyID),
		PartnerID:    ledger.PartnerID(req.PartnerID),
		Currency:     req.Currency,
		Direction:    ledger.DirectionOutbound,
		Refund:       req.Refund,
		State:        ledger.StateDraft,
		PaymentState: ledger.PaymentUnpaid,
		IssueDate:    issueDate,
		Total:        total,
		Memo:         req.Memo,
		CreatedAt:    ledger.Today(),
	}
	if req.Inbound {
		inv.Direction = ledger.DirectionInbound
	}
	if req.DueDate != "" {
		if inv.DueDate, err = ledger.ParseDate(req.DueDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date", err)
			return
		}
	}
	if req.EarlyPaymentDiscount != "" {
		if inv.EarlyPaymentDiscount, err = decimal.NewFromString(req.EarlyPaymentDiscount); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid early_payment_discount", err)
			return
		}
	}
	if req.EarlyPaymentDeadline != "" {
		d, err := ledger.ParseDate(req.EarlyPaymentDeadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid early_payment_deadline", err)
			return
		}
		inv.EarlyPaymentDeadline = &d
	}

	if err := h.Store.CreateInvoice(r.Context(), inv); err != nil {
		writeError(w, statusForError(err), "Failed to create invoice", err)
		return
	}
	if req.Post {
		if err := h.Store.PostInvoice(r.Context(), inv.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to post invoice", err)
			return
		}
		inv.State = ledger.StatePosted
	}
	writeJSON(w, http.StatusCreated, invoiceDTO(inv))
}

// GetInvoice returns one invoice and its charge chain.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if ledger.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Failed to load invoice", err)
		return
	}
	charges, err := h.Store.ChargesOf(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load charges", err)
		return
	}

	dto := InvoiceChainDTO{Invoice: invoiceDTO(inv), Charges: make([]InvoiceDTO, 0, len(charges))}
	for _, c := range charges {
		dto.Charges = append(dto.Charges, invoiceDTO(c))
	}
	writeJSON(w, http.StatusOK, dto)
}

// PostInvoiceAction posts a draft invoice.
func (h *Handler) PostInvoiceAction(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	if err := h.Store.PostInvoice(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if ledger.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Failed to post invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "posted"})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a payment and applies its allocations.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || len(req.Allocations) == 0 {
		writeError(w, http.StatusBadRequest, "id and allocations are required", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	payment := &ledger.Payment{
		ID:        ledger.PaymentID(req.ID),
		CompanyID: ledger.CompanyID(req.CompanyID),
		PartnerID: ledger.PartnerID(req.PartnerID),
		Date:      date,
		Currency:  req.Currency,
		Amount:    amount,
		Memo:      req.Memo,
	}
	allocs := make([]ledger.PaymentAllocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocAmount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid allocation amount", err)
			return
		}
		allocs = append(allocs, ledger.PaymentAllocation{
			PaymentID: payment.ID,
			InvoiceID: ledger.InvoiceID(a.InvoiceID),
			Amount:    allocAmount,
		})
	}

	if err := h.Store.RecordPayment(r.Context(), payment, allocs); err != nil {
		writeError(w, statusForError(err), "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// GetCheckStub renders the check-stub PDF for a payment. The company's
// multi-stub setting decides between cropping and spilling onto pages.
func (h *Handler) GetCheckStub(w http.ResponseWriter, r *http.Request) {
	id := ledger.PaymentID(chi.URLParam(r, "id"))
	stub, err := h.Stubs.BuildStub(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if ledger.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Failed to build stub", err)
		return
	}

	multiStub := false
	if cfg, err := h.Store.GetCompanyConfig(r.Context(), stub.Payment.CompanyID); err == nil {
		multiStub = cfg.MultiStub
	}

	pdf, err := checkstub.RenderPDF(stub, multiStub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render stub", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// =============================================================================
// FINANCE CHARGE HANDLERS
// =============================================================================

// GenerateCharges is the "generate finance charges now" button. Without
// invoice_ids the engine selects its own batch; with them the candidates
// are strictly re-validated first.
func (h *Handler) GenerateCharges(w http.ResponseWriter, r *http.Request) {
	var req GenerateChargesRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var refDate ledger.Date
	if req.ReferenceDate != "" {
		var err error
		if refDate, err = ledger.ParseDate(req.ReferenceDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reference_date", err)
			return
		}
	}

	var report *apr.RunReport
	var err error
	if len(req.InvoiceIDs) > 0 {
		invoices := make([]*ledger.Invoice, 0, len(req.InvoiceIDs))
		for _, id := range req.InvoiceIDs {
			inv, err := h.Store.GetInvoice(r.Context(), ledger.InvoiceID(id))
			if err != nil {
				status := http.StatusInternalServerError
				if ledger.IsNotFound(err) {
					status = http.StatusNotFound
				}
				writeError(w, status, "Failed to load invoice", err)
				return
			}
			invoices = append(invoices, inv)
		}
		report, err = h.Engine.GenerateAccruals(r.Context(), invoices, refDate, true)
	} else {
		report, err = h.Engine.Run(r.Context(), refDate, req.BatchSize)
	}

	if err != nil {
		if ledger.IsNoWork(err) {
			// Informational, not a system fault.
			writeError(w, http.StatusBadRequest, "No open, past due invoices or charges", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Charge generation failed", err)
		return
	}

	recordRun(report)
	writeJSON(w, http.StatusOK, runReportDTO(report))
}

// ListDueInvoices previews the engine's selection for a reference date.
func (h *Handler) ListDueInvoices(w http.ResponseWriter, r *http.Request) {
	var refDate ledger.Date
	if v := r.URL.Query().Get("reference_date"); v != "" {
		var err error
		if refDate, err = ledger.ParseDate(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reference_date", err)
			return
		}
	}
	invoices, err := h.Engine.SelectDueInvoices(r.Context(), refDate, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Selection failed", err)
		return
	}
	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, invoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COMPANY CONFIG HANDLERS
// =============================================================================

func (h *Handler) GetCompanyConfig(w http.ResponseWriter, r *http.Request) {
	id := ledger.CompanyID(chi.URLParam(r, "id"))
	cfg, err := h.Store.GetCompanyConfig(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if ledger.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Failed to load config", err)
		return
	}
	writeJSON(w, http.StatusOK, companyConfigDTO(cfg))
}

func (h *Handler) PutCompanyConfig(w http.ResponseWriter, r *http.Request) {
	id := ledger.CompanyID(chi.URLParam(r, "id"))
	var dto CompanyConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg := &ledger.CompanyConfig{
		CompanyID:              id,
		PaymentTermDays:        dto.PaymentTermDays,
		ProductID:              dto.ProductID,
		ProductIncomeAccountID: dto.ProductIncomeAccountID,
		FallbackAccountID:      dto.FallbackAccountID,
		ChargeDescription:      dto.ChargeDescription,
		MultiStub:              dto.MultiStub,
	}
	if dto.AnnualRate != "" {
		rate, err := decimal.NewFromString(dto.AnnualRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid annual_rate", err)
			return
		}
		cfg.AnnualRate = rate
	}

	if err := h.Store.PutCompanyConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save config", err)
		return
	}
	writeJSON(w, http.StatusOK, companyConfigDTO(cfg))
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

// MarginCheck validates sales-order lines before confirmation.
func (h *Handler) MarginCheck(w http.ResponseWriter, r *http.Request) {
	var req MarginCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	lines, err := req.orderLines()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid line amounts", err)
		return
	}

	if err := sales.CheckMargins(lines, req.ManagerOverride); err != nil {
		var violation *sales.MarginViolationError
		if errors.As(err, &violation) {
			writeError(w, http.StatusUnprocessableEntity, "Margin violation", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Margin check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// statusForError maps domain errors onto HTTP statuses for handlers that
// don't need custom handling.
func statusForError(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateChargePeriod):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrMissingConfiguration):
		return http.StatusUnprocessableEntity
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
