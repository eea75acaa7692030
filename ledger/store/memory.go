// Package store provides an in-memory ledger.Store implementation used by
// tests and dev runs.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	invoices map[ledger.InvoiceID]*ledger.Invoice
	charges  map[ledger.InvoiceID][]ledger.InvoiceID // parent -> charge IDs
	payments map[ledger.PaymentID]*ledger.Payment
	allocs   map[ledger.PaymentID][]ledger.PaymentAllocation
	configs  map[ledger.CompanyID]*ledger.CompanyConfig

	// Primary sequence counters per year. Accrual charges arrive
	// pre-numbered and never touch these.
	seq map[int]int
}

func NewMemory() *Memory {
	return &Memory{
		invoices: make(map[ledger.InvoiceID]*ledger.Invoice),
		charges:  make(map[ledger.InvoiceID][]ledger.InvoiceID),
		payments: make(map[ledger.PaymentID]*ledger.Payment),
		allocs:   make(map[ledger.PaymentID][]ledger.PaymentAllocation),
		configs:  make(map[ledger.CompanyID]*ledger.CompanyConfig),
		seq:      make(map[int]int),
	}
}

// Reset drops all stored data, including company settings and the numbering
// sequence.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invoices = make(map[ledger.InvoiceID]*ledger.Invoice)
	m.charges = make(map[ledger.InvoiceID][]ledger.InvoiceID)
	m.payments = make(map[ledger.PaymentID]*ledger.Payment)
	m.allocs = make(map[ledger.PaymentID][]ledger.PaymentAllocation)
	m.configs = make(map[ledger.CompanyID]*ledger.CompanyConfig)
	m.seq = make(map[int]int)
	return nil
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (m *Memory) CreateInvoice(_ context.Context, inv *ledger.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.invoices[inv.ID]; exists {
		return fmt.Errorf("invoice %s already exists", inv.ID)
	}

	cp := cloneInvoice(inv)
	if cp.Residual.IsZero() && !cp.Total.IsZero() && cp.PaymentState != ledger.PaymentPaid {
		cp.Residual = cp.Total
	}

	if cp.ParentID != nil {
		parent := *cp.ParentID
		if _, ok := m.invoices[parent]; !ok {
			return ledger.ErrInvoiceNotFound
		}
		// One charge per covered month per chain.
		for _, cid := range m.charges[parent] {
			existing := m.invoices[cid]
			if existing.State == ledger.StateCancelled {
				continue
			}
			if existing.IssueDate.CoveredMonth() == cp.IssueDate.CoveredMonth() {
				return ledger.ErrDuplicateChargePeriod
			}
		}
		m.charges[parent] = append(m.charges[parent], cp.ID)
	} else if cp.Number == "" {
		year := cp.IssueDate.Year()
		m.seq[year]++
		cp.Number = fmt.Sprintf("INV/%d/%04d", year, m.seq[year])
	}

	m.invoices[cp.ID] = cp
	// Write the assigned number back so callers see it.
	inv.Number = cp.Number
	inv.Residual = cp.Residual
	return nil
}

func (m *Memory) PostInvoice(_ context.Context, id ledger.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return ledger.ErrInvoiceNotFound
	}
	inv.State = ledger.StatePosted
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, ledger.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *Memory) SelectInvoices(_ context.Context, f ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ledger.Invoice
	for _, inv := range m.invoices {
		if !m.matchesLocked(inv, f) {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}

	// Stable order for a given snapshot: due date, then ID.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return result[i].ID < result[j].ID
	})

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *Memory) matchesLocked(inv *ledger.Invoice, f ledger.InvoiceFilter) bool {
	if f.Direction != nil && inv.Direction != *f.Direction {
		return false
	}
	if f.State != nil && inv.State != *f.State {
		return false
	}
	if len(f.PaymentStates) > 0 {
		found := false
		for _, ps := range f.PaymentStates {
			if inv.PaymentState == ps {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OriginalsOnly && inv.ParentID != nil {
		return false
	}
	if f.DueBefore != nil {
		due, err := m.latestDueLocked(inv)
		if err != nil || due.IsZero() || !due.Before(*f.DueBefore) {
			// Chain-corrupt invoices are not selectable; they surface as
			// DataIntegrityError when targeted directly.
			return false
		}
	}
	return true
}

func (m *Memory) latestDueLocked(inv *ledger.Invoice) (ledger.Date, error) {
	var charges []*ledger.Invoice
	for _, cid := range m.charges[inv.ID] {
		charges = append(charges, m.invoices[cid])
	}
	return ledger.LatestChargeDueDate(inv, charges)
}

func (m *Memory) ChargesOf(_ context.Context, id ledger.InvoiceID) ([]*ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.invoices[id]; !ok {
		return nil, ledger.ErrInvoiceNotFound
	}
	var result []*ledger.Invoice
	for _, cid := range m.charges[id] {
		result = append(result, cloneInvoice(m.invoices[cid]))
	}
	return result, nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (m *Memory) RecordPayment(_ context.Context, p *ledger.Payment, allocs []ledger.PaymentAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[p.ID]; exists {
		return fmt.Errorf("payment %s already exists", p.ID)
	}

	// Validate before mutating anything: all-or-nothing.
	for _, a := range allocs {
		if _, ok := m.invoices[a.InvoiceID]; !ok {
			return ledger.ErrInvoiceNotFound
		}
	}

	for _, a := range allocs {
		inv := m.invoices[a.InvoiceID]
		inv.Residual = inv.Residual.Sub(a.Amount)
		if inv.Residual.Sign() <= 0 {
			inv.Residual = decimal.Zero
			inv.PaymentState = ledger.PaymentPaid
		} else {
			inv.PaymentState = ledger.PaymentPartial
		}
	}

	cp := *p
	m.payments[p.ID] = &cp
	m.allocs[p.ID] = append([]ledger.PaymentAllocation(nil), allocs...)
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ledger.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) AllocationsOf(_ context.Context, id ledger.PaymentID) ([]ledger.PaymentAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.payments[id]; !ok {
		return nil, ledger.ErrPaymentNotFound
	}
	return append([]ledger.PaymentAllocation(nil), m.allocs[id]...), nil
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func (m *Memory) GetCompanyConfig(_ context.Context, id ledger.CompanyID) (*ledger.CompanyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[id]
	if !ok {
		return nil, ledger.ErrCompanyConfigNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (m *Memory) PutCompanyConfig(_ context.Context, cfg *ledger.CompanyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cfg
	m.configs[cfg.CompanyID] = &cp
	return nil
}

func (m *Memory) ListCompanyConfigs(_ context.Context) ([]*ledger.CompanyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*ledger.CompanyConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		cp := *cfg
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CompanyID < result[j].CompanyID })
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneInvoice(inv *ledger.Invoice) *ledger.Invoice {
	cp := *inv
	if inv.ParentID != nil {
		pid := *inv.ParentID
		cp.ParentID = &pid
	}
	if inv.EarlyPaymentDeadline != nil {
		d := *inv.EarlyPaymentDeadline
		cp.EarlyPaymentDeadline = &d
	}
	cp.Lines = append([]ledger.LineItem(nil), inv.Lines...)
	return &cp
}
