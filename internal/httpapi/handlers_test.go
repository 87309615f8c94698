package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gestor/backend/internal/cache"
	"gestor/backend/internal/service"
	"gestor/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCatalogCache{}, nil, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, nil, "*")
}

func loginToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return body.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["message"]; !ok {
		t.Fatalf("expected message field in error body, got %v", body)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []map[string]any `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
}

func TestSaleAndInvoiceWorkflow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", token, map[string]any{
		"paymentMethod": "cash",
		"tax":           100,
		"items": []map[string]any{
			{"productId": "prod-cafe-01", "quantity": 2},
			{"productId": "prod-leite-01", "quantity": 1},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for sale, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var saleBody struct {
		Sale struct {
			ID            string `json:"id"`
			SubtotalCents int64  `json:"subtotal_cents"`
			TotalCents    int64  `json:"total_cents"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	// 2x 2890 + 1x 520 = 6300, plus 100 tax.
	if saleBody.Sale.SubtotalCents != 6300 {
		t.Fatalf("expected subtotal 6300, got %d", saleBody.Sale.SubtotalCents)
	}
	if saleBody.Sale.TotalCents != 6400 {
		t.Fatalf("expected total 6400, got %d", saleBody.Sale.TotalCents)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/invoices", token, map[string]any{
		"saleId": saleBody.Sale.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for first issue, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var invBody struct {
		Invoice struct {
			ID     string `json:"id"`
			Number string `json:"number"`
			Status string `json:"status"`
		} `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&invBody); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if invBody.Invoice.Status != "issued" {
		t.Fatalf("expected issued status, got %s", invBody.Invoice.Status)
	}

	// Second issue for the same sale returns the existing invoice with 200.
	rec = doJSON(t, handler, http.MethodPost, "/api/invoices", token, map[string]any{
		"saleId": saleBody.Sale.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for repeat issue, got %d", rec.Code)
	}
	var repeatBody struct {
		Invoice struct {
			ID string `json:"id"`
		} `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&repeatBody); err != nil {
		t.Fatalf("decode repeat invoice: %v", err)
	}
	if repeatBody.Invoice.ID != invBody.Invoice.ID {
		t.Fatalf("expected same invoice id, got %s vs %s", repeatBody.Invoice.ID, invBody.Invoice.ID)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/invoices/"+invBody.Invoice.ID+"/send", token, map[string]any{
		"email": "cliente@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for send, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/invoices/"+invBody.Invoice.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for detail, got %d", rec.Code)
	}
	var detail struct {
		Invoice struct {
			Status string `json:"status"`
			Email  string `json:"email"`
		} `json:"invoice"`
		Sale struct {
			ID string `json:"id"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Invoice.Status != "sent" {
		t.Fatalf("expected sent status, got %s", detail.Invoice.Status)
	}
	if detail.Invoice.Email != "cliente@example.com" {
		t.Fatalf("expected recorded email, got %q", detail.Invoice.Email)
	}
	if detail.Sale.ID != saleBody.Sale.ID {
		t.Fatalf("expected joined sale %s, got %s", saleBody.Sale.ID, detail.Sale.ID)
	}
}

func TestEmptyCartCheckoutReturns400(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", token, map[string]any{
		"paymentMethod": "cash",
		"items":         []map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestInvoiceForUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/invoices", token, map[string]any{
		"saleId": "sale-does-not-exist",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/customers", token, map[string]any{
		"name":       "Cliente",
		"unexpected": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestSalesLimitQueryIsCapped(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/sales?limit=%d", 99999), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
