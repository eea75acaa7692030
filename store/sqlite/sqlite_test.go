package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbook/finance-engine/ledger"
	"github.com/clearbook/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(y int, m time.Month, day int) ledger.Date { return ledger.NewDate(y, m, day) }

func outbound(id string, due ledger.Date, total float64) *ledger.Invoice {
	amount := decimal.NewFromFloat(total)
	return &ledger.Invoice{
		ID:           ledger.InvoiceID(id),
		CompanyID:    "acme",
		PartnerID:    "partner-1",
		Currency:     "USD",
		Direction:    ledger.DirectionOutbound,
		State:        ledger.StateDraft,
		PaymentState: ledger.PaymentUnpaid,
		IssueDate:    due.AddDays(-30),
		DueDate:      due,
		Total:        amount,
		Residual:     amount,
	}
}

func chargeOf(parent *ledger.Invoice, id string, issue ledger.Date, total float64) *ledger.Invoice {
	amount := decimal.NewFromFloat(total)
	pid := parent.ID
	return &ledger.Invoice{
		ID:           ledger.InvoiceID(id),
		Number:       string(parent.ID) + "/APR/001",
		CompanyID:    parent.CompanyID,
		PartnerID:    parent.PartnerID,
		Currency:     parent.Currency,
		Direction:    ledger.DirectionOutbound,
		State:        ledger.StateDraft,
		PaymentState: ledger.PaymentUnpaid,
		IssueDate:    issue,
		DueDate:      issue.AddDays(30),
		Total:        amount,
		Residual:     amount,
		ParentID:     &pid,
	}
}

// =============================================================================
// NUMBERING
// =============================================================================

func TestCreateInvoice_AssignsSequentialNumbers(t *testing.T) {
	// GIVEN: Two unnumbered originals in the same year
	// WHEN: Creating them
	// THEN: They receive consecutive numbers from the yearly sequence

	ctx := context.Background()
	store := newTestStore(t)

	a := outbound("inv-a", d(2025, time.March, 31), 100)
	b := outbound("inv-b", d(2025, time.April, 30), 200)
	require.NoError(t, store.CreateInvoice(ctx, a))
	require.NoError(t, store.CreateInvoice(ctx, b))

	got, err := store.GetInvoice(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV/2025/0001", got.Number)

	got, err = store.GetInvoice(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV/2025/0002", got.Number)
}

func TestCreateInvoice_PreNumberedCharge_KeepsSequenceUntouched(t *testing.T) {
	// GIVEN: A charge arriving with a derived number
	// WHEN: Creating it and then another original
	// THEN: The charge keeps its number and the original continues the sequence

	ctx := context.Background()
	store := newTestStore(t)

	parent := outbound("inv-1", d(2025, time.March, 31), 100)
	require.NoError(t, store.CreateInvoice(ctx, parent))

	charge := chargeOf(parent, "inv-1-apr-2025-04", d(2025, time.April, 30), 1.48)
	require.NoError(t, store.CreateInvoice(ctx, charge))

	next := outbound("inv-2", d(2025, time.May, 31), 50)
	require.NoError(t, store.CreateInvoice(ctx, next))

	got, err := store.GetInvoice(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV/2025/0002", got.Number)
}

// =============================================================================
// CHARGE PERIOD UNIQUENESS
// =============================================================================

func TestCreateInvoice_DuplicateChargePeriod_Rejected(t *testing.T) {
	// GIVEN: A live charge covering April for an invoice
	// WHEN: Creating another April charge for the same parent
	// THEN: The unique index rejects it with the duplicate-period error

	ctx := context.Background()
	store := newTestStore(t)

	parent := outbound("inv-1", d(2025, time.March, 31), 100)
	require.NoError(t, store.CreateInvoice(ctx, parent))

	first := chargeOf(parent, "charge-1", d(2025, time.April, 30), 1.48)
	require.NoError(t, store.CreateInvoice(ctx, first))

	dup := chargeOf(parent, "charge-2", d(2025, time.April, 15), 1.48)
	err := store.CreateInvoice(ctx, dup)
	require.ErrorIs(t, err, ledger.ErrDuplicateChargePeriod)
}

func TestCreateInvoice_CancelledCharge_FreesItsPeriod(t *testing.T) {
	// GIVEN: An April charge that was cancelled
	// WHEN: Creating a replacement April charge
	// THEN: The period is free again

	ctx := context.Background()
	store := newTestStore(t)

	parent := outbound("inv-1", d(2025, time.March, 31), 100)
	require.NoError(t, store.CreateInvoice(ctx, parent))

	first := chargeOf(parent, "charge-1", d(2025, time.April, 30), 1.48)
	first.State = ledger.StateCancelled
	require.NoError(t, store.CreateInvoice(ctx, first))

	replacement := chargeOf(parent, "charge-2", d(2025, time.April, 30), 1.48)
	assert.NoError(t, store.CreateInvoice(ctx, replacement))
}

// =============================================================================
// SELECTION
// =============================================================================

func TestSelectInvoices_DueBefore_UsesChainTail(t *testing.T) {
	// GIVEN: A past-due original whose latest charge is due in the future
	// WHEN: Selecting with DueBefore between the two dates
	// THEN: The invoice is excluded; the chain is considered current

	ctx := context.Background()
	store := newTestStore(t)

	parent := outbound("inv-1", d(2025, time.January, 15), 100)
	require.NoError(t, store.CreateInvoice(ctx, parent))
	require.NoError(t, store.PostInvoice(ctx, parent.ID))

	charge := chargeOf(parent, "charge-1", d(2025, time.February, 28), 2.17)
	require.NoError(t, store.CreateInvoice(ctx, charge))
	require.NoError(t, store.PostInvoice(ctx, charge.ID))
	// Charge due Mar 30.

	direction := ledger.DirectionOutbound
	state := ledger.StatePosted
	cutoff := d(2025, time.March, 15)
	selected, err := store.SelectInvoices(ctx, ledger.InvoiceFilter{
		Direction:     &direction,
		State:         &state,
		PaymentStates: []ledger.PaymentState{ledger.PaymentUnpaid, ledger.PaymentPartial},
		OriginalsOnly: true,
		DueBefore:     &cutoff,
	})
	require.NoError(t, err)
	assert.Empty(t, selected)

	// Past the charge's due date the original is selectable again.
	cutoff = d(2025, time.April, 15)
	selected, err = store.SelectInvoices(ctx, ledger.InvoiceFilter{
		Direction:     &direction,
		State:         &state,
		PaymentStates: []ledger.PaymentState{ledger.PaymentUnpaid, ledger.PaymentPartial},
		OriginalsOnly: true,
		DueBefore:     &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, parent.ID, selected[0].ID)
}

func TestSelectInvoices_Limit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 10; i++ {
		inv := outbound(fmt.Sprintf("inv-%02d", i), d(2025, time.March, 1+i), 100)
		require.NoError(t, store.CreateInvoice(ctx, inv))
		require.NoError(t, store.PostInvoice(ctx, inv.ID))
	}

	selected, err := store.SelectInvoices(ctx, ledger.InvoiceFilter{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, selected, 4)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordPayment_PartialThenFull(t *testing.T) {
	// GIVEN: A posted $100 invoice
	// WHEN: Paying $40 and then the remaining $60
	// THEN: Payment state moves unpaid -> partial -> paid

	ctx := context.Background()
	store := newTestStore(t)

	inv := outbound("inv-1", d(2025, time.March, 31), 100)
	require.NoError(t, store.CreateInvoice(ctx, inv))
	require.NoError(t, store.PostInvoice(ctx, inv.ID))

	require.NoError(t, store.RecordPayment(ctx, &ledger.Payment{
		ID: "pay-1", CompanyID: "acme", PartnerID: "partner-1",
		Date: d(2025, time.April, 1), Currency: "USD", Amount: decimal.NewFromInt(40),
	}, []ledger.PaymentAllocation{
		{PaymentID: "pay-1", InvoiceID: inv.ID, Amount: decimal.NewFromInt(40)},
	}))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPartial, got.PaymentState)
	assert.Equal(t, "60", got.Residual.String())

	require.NoError(t, store.RecordPayment(ctx, &ledger.Payment{
		ID: "pay-2", CompanyID: "acme", PartnerID: "partner-1",
		Date: d(2025, time.April, 10), Currency: "USD", Amount: decimal.NewFromInt(60),
	}, []ledger.PaymentAllocation{
		{PaymentID: "pay-2", InvoiceID: inv.ID, Amount: decimal.NewFromInt(60)},
	}))

	got, err = store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPaid, got.PaymentState)
	assert.True(t, got.Residual.IsZero())
}

func TestRecordPayment_UnknownInvoice_Fails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.RecordPayment(ctx, &ledger.Payment{
		ID: "pay-1", CompanyID: "acme", PartnerID: "partner-1",
		Date: d(2025, time.April, 1), Currency: "USD", Amount: decimal.NewFromInt(40),
	}, []ledger.PaymentAllocation{
		{PaymentID: "pay-1", InvoiceID: "ghost", Amount: decimal.NewFromInt(40)},
	})
	require.ErrorIs(t, err, ledger.ErrInvoiceNotFound)
}

// =============================================================================
// NULLABLE COLUMNS
// =============================================================================

func TestGetInvoice_NoPartner_RoundTrips(t *testing.T) {
	// GIVEN: An invoice with no partner, stored as NULL
	// WHEN: Reading it back
	// THEN: The scan succeeds and the partner comes back empty

	ctx := context.Background()
	store := newTestStore(t)

	inv := outbound("inv-anon", d(2025, time.March, 31), 100)
	inv.PartnerID = ""
	require.NoError(t, store.CreateInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PartnerID)
}

func TestGetPayment_NoPartner_RoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inv := outbound("inv-1", d(2025, time.March, 31), 100)
	require.NoError(t, store.CreateInvoice(ctx, inv))
	require.NoError(t, store.PostInvoice(ctx, inv.ID))

	require.NoError(t, store.RecordPayment(ctx, &ledger.Payment{
		ID: "pay-1", CompanyID: "acme",
		Date: d(2025, time.April, 1), Currency: "USD", Amount: decimal.NewFromInt(40),
	}, []ledger.PaymentAllocation{
		{PaymentID: "pay-1", InvoiceID: inv.ID, Amount: decimal.NewFromInt(40)},
	}))

	got, err := store.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Empty(t, got.PartnerID)
}
