/*
Package apr implements the recurring finance-charge engine over the
accounts-receivable ledger.

PURPOSE:
  Finds posted customer invoices whose most recent charge (the invoice
  itself or the latest of its generated charges) is past due as of a
  reference date, and generates the missing chain of monthly finance
  charges. Each charge is an independent invoice linked back to the
  original, posted immediately on creation.

THE CATCH-UP LOOP:
  A chain can fall arbitrarily far behind (the trigger is a manual button
  or a cron job). One invocation walks the chain forward month by month
  until the tail's due date reaches the reference date, so three missed
  months yield three charges in one run.

CHARGE MATH:
  issue date   = last day of the month after the tail's due date
  window start = original due date for the first charge, else the tail's
                 own issue date
  days         = issue date - window start
  amount       = residual x (days / 365) x annual rate (18% default)

IDEMPOTENCE:
  Running the engine twice with the same reference date creates nothing
  new: selection only returns chains that are still behind, and the store
  rejects a second charge covering the same calendar month per chain
  (ErrDuplicateChargePeriod), which the engine treats as another run
  having won that month.

ERROR POLICY:
  Per-invoice isolation. A company with incomplete configuration or a
  corrupt chain fails only its own invoice; the batch continues and the
  RunReport carries every per-invoice failure.

SEE ALSO:
  - ledger/invoice.go: chain derivation (ChainTail, ActiveCharges)
  - ledger/store.go: the charge-period uniqueness contract
*/
package apr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/ledger"
)

// DefaultBatchLimit bounds the work of one invocation when the caller does
// not choose a batch size.
const DefaultBatchLimit = 50

var (
	one         = decimal.NewFromInt(1)
	daysPerYear = decimal.NewFromInt(365)
)

// Engine generates finance charges. It owns no state beyond its
// dependencies; every invocation is a discrete batch run.
type Engine struct {
	Invoices ledger.InvoiceStore
	Config   ledger.ConfigStore
	Log      zerolog.Logger
}

func New(invoices ledger.InvoiceStore, config ledger.ConfigStore, log zerolog.Logger) *Engine {
	return &Engine{Invoices: invoices, Config: config, Log: log}
}

// =============================================================================
// RUN REPORT
// =============================================================================

// RunReport is the outcome of one GenerateAccruals invocation.
type RunReport struct {
	ReferenceDate ledger.Date
	Processed     int
	Created       []ledger.InvoiceID
	Failures      []InvoiceFailure
}

// InvoiceFailure records a per-invoice failure that did not stop the batch.
type InvoiceFailure struct {
	InvoiceID ledger.InvoiceID
	Err       error
}

// =============================================================================
// SELECTION
// =============================================================================

// SelectDueInvoices returns at most limit posted, outstanding original
// invoices whose latest-charge due date is strictly before refDate.
// A zero refDate means today; a non-positive limit means DefaultBatchLimit.
// Ordering is stable for a given snapshot but callers must not assume
// oldest-first.
func (e *Engine) SelectDueInvoices(ctx context.Context, refDate ledger.Date, limit int) ([]*ledger.Invoice, error) {
	if refDate.IsZero() {
		refDate = ledger.Today()
	}
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	direction := ledger.DirectionOutbound
	state := ledger.StatePosted
	return e.Invoices.SelectInvoices(ctx, ledger.InvoiceFilter{
		Direction:     &direction,
		State:         &state,
		PaymentStates: []ledger.PaymentState{ledger.PaymentUnpaid, ledger.PaymentPartial},
		OriginalsOnly: true,
		DueBefore:     &refDate,
		Limit:         limit,
	})
}

// Run selects due invoices and generates their missing charges. This is the
// contract behind both the manual trigger and the scheduler. The selection
// is fresh, so no strict re-filter is needed; the storage-level period guard
// covers overlapping runs.
func (e *Engine) Run(ctx context.Context, refDate ledger.Date, limit int) (*RunReport, error) {
	invoices, err := e.SelectDueInvoices(ctx, refDate, limit)
	if err != nil {
		return nil, err
	}
	return e.GenerateAccruals(ctx, invoices, refDate, false)
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateAccruals creates and posts the missing charges for the given
// invoices. When strict is true each candidate is re-read from the store and
// re-validated with the same eligibility predicate as SelectDueInvoices,
// guarding against stale selections; the fresh documents are the ones
// processed. An empty candidate set after filtering returns
// ErrNoEligibleInvoices.
func (e *Engine) GenerateAccruals(ctx context.Context, invoices []*ledger.Invoice, refDate ledger.Date, strict bool) (*RunReport, error) {
	if refDate.IsZero() {
		refDate = ledger.Today()
	}

	report := &RunReport{ReferenceDate: refDate}

	candidates := invoices
	if strict {
		candidates = candidates[:0:0]
		for _, inv := range invoices {
			fresh, err := e.eligible(ctx, inv.ID, refDate)
			if err != nil {
				// Corrupt chains are reported, never silently dropped.
				report.Failures = append(report.Failures, InvoiceFailure{InvoiceID: inv.ID, Err: err})
				continue
			}
			if fresh != nil {
				candidates = append(candidates, fresh)
			}
		}
	}

	if len(candidates) == 0 && len(report.Failures) == 0 {
		return nil, ledger.ErrNoEligibleInvoices
	}

	for _, inv := range candidates {
		created, err := e.processInvoice(ctx, inv, refDate)
		report.Processed++
		report.Created = append(report.Created, created...)
		if err != nil {
			report.Failures = append(report.Failures, InvoiceFailure{InvoiceID: inv.ID, Err: err})
		}
	}

	e.Log.Info().
		Str("reference_date", refDate.String()).
		Int("processed", report.Processed).
		Int("created", len(report.Created)).
		Int("failed", len(report.Failures)).
		Msg("finance charge run complete")

	return report, nil
}

// eligible applies the selection predicate to a single invoice. The document
// is re-read from the store so a caller-supplied snapshot can never pass on
// stale payment state, and the fresh document (with its current residual) is
// what generation proceeds from. Returns nil when the invoice is no longer
// eligible.
func (e *Engine) eligible(ctx context.Context, id ledger.InvoiceID, refDate ledger.Date) (*ledger.Invoice, error) {
	inv, err := e.Invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Direction != ledger.DirectionOutbound || inv.State != ledger.StatePosted {
		return nil, nil
	}
	if !inv.Outstanding() || inv.IsCharge() {
		return nil, nil
	}
	charges, err := e.Invoices.ChargesOf(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	due, err := ledger.LatestChargeDueDate(inv, charges)
	if err != nil {
		return nil, err
	}
	if due.IsZero() || !due.Before(refDate) {
		return nil, nil
	}
	return inv, nil
}

// processInvoice catches up one invoice's chain to the reference date.
// Returns the charges it created even when it also returns an error, so a
// mid-chain failure still reports the months that did land.
func (e *Engine) processInvoice(ctx context.Context, inv *ledger.Invoice, refDate ledger.Date) ([]ledger.InvoiceID, error) {
	cfg, err := e.Config.GetCompanyConfig(ctx, inv.CompanyID)
	if errors.Is(err, ledger.ErrCompanyConfigNotFound) {
		return nil, &ledger.ConfigurationError{
			CompanyID: inv.CompanyID,
			Missing:   []string{"payment term", "charge product", "income account"},
		}
	}
	if err != nil {
		return nil, err
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, &ledger.ConfigurationError{CompanyID: inv.CompanyID, Missing: missing}
	}

	if inv.DueDate.IsZero() {
		return nil, &ledger.DataIntegrityError{InvoiceID: inv.ID, Reason: "invoice has no due date"}
	}

	charges, err := e.Invoices.ChargesOf(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	tail, err := ledger.ChainTail(inv, charges)
	if err != nil {
		return nil, err
	}

	rate := cfg.Rate()
	seq := len(charges)
	var created []ledger.InvoiceID

	for tail.DueDate.Before(refDate) {
		issueDate := tail.DueDate.NextMonthEnd()

		// The first charge accrues from the original due date; later ones
		// from the previous charge's issue date.
		windowStart := inv.DueDate
		if tail.ID != inv.ID {
			windowStart = tail.IssueDate
		}
		days := ledger.DaysBetween(windowStart, issueDate)
		if days <= 0 {
			return created, &ledger.DataIntegrityError{
				InvoiceID: inv.ID,
				ChargeID:  tail.ID,
				Reason:    fmt.Sprintf("non-positive accrual window (%d days)", days),
			}
		}

		amount := chargeAmount(inv.Residual, days, rate)
		seq++
		charge := newCharge(inv, cfg, issueDate, amount, seq, charges)

		err := e.Invoices.CreateInvoice(ctx, charge)
		if errors.Is(err, ledger.ErrDuplicateChargePeriod) {
			// Another run already covered this month. Re-resolve the tail
			// and keep catching up from wherever the chain now stands.
			prevDue := tail.DueDate
			if charges, err = e.Invoices.ChargesOf(ctx, inv.ID); err != nil {
				return created, err
			}
			if tail, err = ledger.ChainTail(inv, charges); err != nil {
				return created, err
			}
			if !tail.DueDate.After(prevDue) {
				return created, &ledger.DataIntegrityError{
					InvoiceID: inv.ID,
					ChargeID:  tail.ID,
					Reason:    "duplicate charge period without chain advance",
				}
			}
			seq = len(charges)
			e.Log.Debug().
				Str("invoice", string(inv.ID)).
				Str("period", issueDate.CoveredMonth()).
				Msg("charge period already covered, skipping")
			continue
		}
		if err != nil {
			return created, err
		}
		// No draft review stage: charges post immediately.
		if err := e.Invoices.PostInvoice(ctx, charge.ID); err != nil {
			return created, err
		}
		charge.State = ledger.StatePosted
		created = append(created, charge.ID)
		tail = charge
	}

	return created, nil
}

// newCharge builds the charge document for one covered month. Charges carry
// a derived number (<parent>/APR/NNN) and never advance the primary invoice
// sequence.
func newCharge(inv *ledger.Invoice, cfg *ledger.CompanyConfig, issueDate ledger.Date, amount decimal.Decimal, seq int, siblings []*ledger.Invoice) *ledger.Invoice {
	desc := cfg.ChargeDescription
	if desc == "" {
		desc = "Finance Charges"
	}
	parentID := inv.ID
	return &ledger.Invoice{
		ID:           chargeID(inv.ID, issueDate, siblings),
		Number:       fmt.Sprintf("%s/APR/%03d", inv.Number, seq),
		CompanyID:    inv.CompanyID,
		PartnerID:    inv.PartnerID,
		Currency:     inv.Currency,
		Direction:    ledger.DirectionOutbound,
		State:        ledger.StateDraft,
		PaymentState: ledger.PaymentUnpaid,
		IssueDate:    issueDate,
		DueDate:      issueDate.AddDays(cfg.PaymentTermDays),
		Total:        amount,
		Residual:     amount,
		ParentID:     &parentID,
		Lines: []ledger.LineItem{{
			ProductID:   cfg.ProductID,
			AccountID:   cfg.IncomeAccountID(),
			Description: desc,
			Quantity:    one,
			UnitPrice:   amount,
		}},
		CreatedAt: ledger.Today(),
	}
}

// chargeID is deterministic per invoice and covered month, mirroring the
// one-charge-per-month invariant. A cancelled charge frees its period but
// still occupies its ID, so the replacement takes a numeric suffix.
func chargeID(parent ledger.InvoiceID, issueDate ledger.Date, siblings []*ledger.Invoice) ledger.InvoiceID {
	base := fmt.Sprintf("%s-apr-%s", parent, issueDate.CoveredMonth())
	id := ledger.InvoiceID(base)
	for n := 2; chargeIDTaken(siblings, id); n++ {
		id = ledger.InvoiceID(fmt.Sprintf("%s-%d", base, n))
	}
	return id
}

func chargeIDTaken(siblings []*ledger.Invoice, id ledger.InvoiceID) bool {
	for _, c := range siblings {
		if c.ID == id {
			return true
		}
	}
	return false
}

// chargeAmount prorates the annual rate by actual day count over a 365-day
// year: residual x (days/365) x rate, rounded to cents. Simple accrual, no
// compounding, no leap-year adjustment.
func chargeAmount(residual decimal.Decimal, days int, rate decimal.Decimal) decimal.Decimal {
	return residual.Mul(decimal.NewFromInt(int64(days))).Mul(rate).Div(daysPerYear).Round(2)
}
