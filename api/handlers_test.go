package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbook/finance-engine/api"
	"github.com/clearbook/finance-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := api.NewHandler(store.NewMemory(), zerolog.Nop())
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func putConfig(t *testing.T, srv *httptest.Server, company string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/companies/"+company+"/config", map[string]any{
		"payment_term_days":   30,
		"product_id":          "finance-charge",
		"fallback_account_id": "4200",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func createInvoice(t *testing.T, srv *httptest.Server, id, due string, total float64) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/invoices", map[string]any{
		"id":         id,
		"company_id": "acme",
		"partner_id": "partner-1",
		"currency":   "USD",
		"issue_date": "2025-03-01",
		"due_date":   due,
		"total":      fmt.Sprintf("%.2f", total),
		"post":       true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
}

// =============================================================================
// INVOICE LIFECYCLE
// =============================================================================

func TestAPI_CreateAndFetchInvoice(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv, "inv-1", "2025-03-31", 150.00)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/invoices/inv-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chain api.InvoiceChainDTO
	require.NoError(t, json.Unmarshal(body, &chain))
	assert.Equal(t, "inv-1", chain.Invoice.ID)
	assert.Equal(t, "posted", chain.Invoice.State)
	assert.Equal(t, "150.00", chain.Invoice.Total)
	assert.NotEmpty(t, chain.Invoice.Number)
	assert.Empty(t, chain.Charges)
}

func TestAPI_GetInvoice_Unknown_Returns404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/invoices/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CHARGE GENERATION
// =============================================================================

func TestAPI_GenerateCharges_CreatesAndExposesChain(t *testing.T) {
	// GIVEN: A configured company with a past-due invoice
	// WHEN: Triggering generation as of June 1
	// THEN: The run reports one charge and the chain endpoint shows it

	srv := newTestServer(t)
	putConfig(t, srv, "acme")
	createInvoice(t, srv, "inv-1", "2025-04-10", 67.27)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/apr/generate", map[string]any{
		"reference_date": "2025-06-01",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var report api.RunReportDTO
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 1, report.Processed)
	require.Len(t, report.Created, 1)
	assert.Empty(t, report.Failures)

	_, chainBody := doJSON(t, http.MethodGet, srv.URL+"/api/invoices/inv-1", nil)
	var chain api.InvoiceChainDTO
	require.NoError(t, json.Unmarshal(chainBody, &chain))
	require.Len(t, chain.Charges, 1)
	assert.Equal(t, "1.69", chain.Charges[0].Total)
	assert.Equal(t, "inv-1", chain.Charges[0].ParentID)
	assert.Equal(t, "2025-05-31", chain.Charges[0].IssueDate)
}

func TestAPI_GenerateCharges_NothingDue_Returns400(t *testing.T) {
	srv := newTestServer(t)
	putConfig(t, srv, "acme")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/apr/generate", map[string]any{
		"reference_date": "2025-06-01",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "No open, past due invoices or charges")
}

func TestAPI_GenerateCharges_ExplicitInvoices_StrictlyValidated(t *testing.T) {
	// GIVEN: An explicitly targeted invoice that is not yet due
	// WHEN: Triggering generation for it
	// THEN: Strict re-validation filters it out and nothing happens

	srv := newTestServer(t)
	putConfig(t, srv, "acme")
	createInvoice(t, srv, "inv-future", "2025-12-01", 100.00)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/apr/generate", map[string]any{
		"reference_date": "2025-06-01",
		"invoice_ids":    []string{"inv-future"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ListDueInvoices_PreviewsSelection(t *testing.T) {
	srv := newTestServer(t)
	putConfig(t, srv, "acme")
	createInvoice(t, srv, "inv-due", "2025-04-10", 100.00)
	createInvoice(t, srv, "inv-future", "2025-12-01", 100.00)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/apr/due?reference_date=2025-06-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dtos []api.InvoiceDTO
	require.NoError(t, json.Unmarshal(body, &dtos))
	require.Len(t, dtos, 1)
	assert.Equal(t, "inv-due", dtos[0].ID)
}

// =============================================================================
// PAYMENTS AND CHECK STUBS
// =============================================================================

func TestAPI_RecordPayment_SettlesInvoice(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv, "inv-1", "2025-03-31", 150.00)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/payments", map[string]any{
		"id":         "pay-1",
		"company_id": "acme",
		"partner_id": "partner-1",
		"date":       "2025-04-05",
		"currency":   "USD",
		"amount":     "150.00",
		"allocations": []map[string]string{
			{"invoice_id": "inv-1", "amount": "150.00"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	_, invBody := doJSON(t, http.MethodGet, srv.URL+"/api/invoices/inv-1", nil)
	var chain api.InvoiceChainDTO
	require.NoError(t, json.Unmarshal(invBody, &chain))
	assert.Equal(t, "paid", chain.Invoice.PaymentState)
	assert.Equal(t, "0.00", chain.Invoice.Residual)
}

func TestAPI_GetCheckStub_ReturnsPDF(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv, "inv-1", "2025-03-31", 150.00)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/payments", map[string]any{
		"id":         "pay-1",
		"company_id": "acme",
		"partner_id": "partner-1",
		"date":       "2025-04-05",
		"currency":   "USD",
		"amount":     "150.00",
		"allocations": []map[string]string{
			{"invoice_id": "inv-1", "amount": "150.00"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/payments/pay-1/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.True(t, len(body) > 4)
	assert.Equal(t, "%PDF", string(body[:4]))
}

// =============================================================================
// COMPANY CONFIG
// =============================================================================

func TestAPI_CompanyConfig_RoundTrip(t *testing.T) {
	srv := newTestServer(t)
	putConfig(t, srv, "acme")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/companies/acme/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg api.CompanyConfigDTO
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, "acme", cfg.CompanyID)
	assert.Equal(t, 30, cfg.PaymentTermDays)
	assert.Equal(t, "finance-charge", cfg.ProductID)
	assert.Equal(t, "4200", cfg.FallbackAccountID)
}

func TestAPI_CompanyConfig_Unknown_Returns404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/companies/ghost/config", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// SALES MARGIN CHECK
// =============================================================================

func TestAPI_MarginCheck_BelowCost_Returns422(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sales/margin-check", map[string]any{
		"lines": []map[string]string{
			{"product_id": "gizmo", "unit_price": "4.00", "unit_cost": "6.00"},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "only a manager can confirm this order")
}

func TestAPI_MarginCheck_ManagerOverride_Passes(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sales/margin-check", map[string]any{
		"manager_override": true,
		"lines": []map[string]string{
			{"product_id": "gizmo", "unit_price": "4.00", "unit_cost": "6.00"},
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// SEED
// =============================================================================

func TestAPI_Seed_LoadsDemoData(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/seed", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/invoices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dtos []api.InvoiceDTO
	require.NoError(t, json.Unmarshal(body, &dtos))
	assert.True(t, len(dtos) >= 4)
}

func TestAPI_Reset_WipesStore(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/seed", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/invoices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dtos []api.InvoiceDTO
	require.NoError(t, json.Unmarshal(body, &dtos))
	assert.Empty(t, dtos)
}
