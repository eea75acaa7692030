/*
seed.go - Demo dataset for local development

PURPOSE:
  Loads a small, recognizable ledger so the API can be exercised without
  hand-crafting invoices: a past-due invoice ready for finance charges, a
  partially paid one, a settled one with an early-payment discount, and a
  refund for the check-stub grouping.

  Seeding is additive. Each call uses a fresh ID prefix so it can be
  repeated without colliding with earlier seeds.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/ledger"
)

// resettable is implemented by stores that can wipe themselves (dev only).
type resettable interface {
	Reset(ctx context.Context) error
}

// ResetData wipes the store. Dev only, like the seed endpoint.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	store, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Seed loads the demo dataset.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	prefix := fmt.Sprintf("demo-%d", time.Now().UnixNano())
	ids, err := h.seed(r.Context(), prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Seeding failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"company":  "acme",
		"invoices": ids,
	})
}

func (h *Handler) seed(ctx context.Context, prefix string) ([]string, error) {
	today := ledger.Today()
	company := ledger.CompanyID("acme")

	cfg := &ledger.CompanyConfig{
		CompanyID:         company,
		PaymentTermDays:   30,
		ProductID:         "finance-charge",
		FallbackAccountID: "4200-late-fees",
		ChargeDescription: "Finance Charges",
	}
	if err := h.Store.PutCompanyConfig(ctx, cfg); err != nil {
		return nil, err
	}

	discountDeadline := today.AddDays(-40)
	invoices := []*ledger.Invoice{
		{
			// Past due, untouched: the engine's bread and butter.
			ID:           ledger.InvoiceID(prefix + "-overdue"),
			CompanyID:    company,
			PartnerID:    "wile-e",
			Currency:     "USD",
			Direction:    ledger.DirectionOutbound,
			State:        ledger.StateDraft,
			PaymentState: ledger.PaymentUnpaid,
			IssueDate:    today.AddDays(-120),
			DueDate:      today.AddDays(-95),
			Total:        decimal.NewFromFloat(1500.00),
			Memo:         "Giant rubber band, qty 12",
		},
		{
			// Partially paid, also past due.
			ID:           ledger.InvoiceID(prefix + "-partial"),
			CompanyID:    company,
			PartnerID:    "roadrunner",
			Currency:     "USD",
			Direction:    ledger.DirectionOutbound,
			State:        ledger.StateDraft,
			PaymentState: ledger.PaymentUnpaid,
			IssueDate:    today.AddDays(-70),
			DueDate:      today.AddDays(-40),
			Total:        decimal.NewFromFloat(800.00),
			Memo:         "Birdseed, bulk",
		},
		{
			// Settled inside the discount window.
			ID:                   ledger.InvoiceID(prefix + "-settled"),
			CompanyID:            company,
			PartnerID:            "roadrunner",
			Currency:             "USD",
			Direction:            ledger.DirectionOutbound,
			State:                ledger.StateDraft,
			PaymentState:         ledger.PaymentUnpaid,
			IssueDate:            today.AddDays(-60),
			DueDate:              today.AddDays(-30),
			Total:                decimal.NewFromFloat(400.00),
			EarlyPaymentDiscount: decimal.NewFromFloat(8.00),
			EarlyPaymentDeadline: &discountDeadline,
			Memo:                 "Anvil, medium",
		},
		{
			// Refund, for the Bills/Refunds stub sections.
			ID:           ledger.InvoiceID(prefix + "-refund"),
			CompanyID:    company,
			PartnerID:    "roadrunner",
			Currency:     "USD",
			Direction:    ledger.DirectionOutbound,
			Refund:       true,
			State:        ledger.StateDraft,
			PaymentState: ledger.PaymentUnpaid,
			IssueDate:    today.AddDays(-50),
			DueDate:      today.AddDays(-20),
			Total:        decimal.NewFromFloat(-120.00),
			Memo:         "Returned birdseed",
		},
	}

	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		if err := h.Store.CreateInvoice(ctx, inv); err != nil {
			return nil, err
		}
		if err := h.Store.PostInvoice(ctx, inv.ID); err != nil {
			return nil, err
		}
		ids = append(ids, string(inv.ID))
	}

	// Pay the partial invoice halfway and settle the discounted one.
	payment := &ledger.Payment{
		ID:        ledger.PaymentID(prefix + "-pay"),
		CompanyID: company,
		PartnerID: "roadrunner",
		Date:      today.AddDays(-42),
		Currency:  "USD",
		Amount:    decimal.NewFromFloat(792.00),
		Memo:      "Check 1042",
	}
	allocs := []ledger.PaymentAllocation{
		{PaymentID: payment.ID, InvoiceID: invoices[1].ID, Amount: decimal.NewFromFloat(400.00)},
		{PaymentID: payment.ID, InvoiceID: invoices[2].ID, Amount: decimal.NewFromFloat(400.00)},
	}
	if err := h.Store.RecordPayment(ctx, payment, allocs); err != nil {
		return nil, err
	}

	return ids, nil
}
