package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meunegocio/backend/internal/cache"
	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/service"
	"meunegocio/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopSummaryCache{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	return body.AccessToken
}

func csrfToken(t *testing.T, api *API) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token: expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf body: %v", err)
	}
	return body["csrf_token"]
}

func authedRequest(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", csrfToken(t, api))
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

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

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestListProductsRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListProductsWithToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "operator", "operator123")

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatal("expected seeded products")
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "operator", "operator123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:       "Petisco",
		PriceCents: 900,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateAndDeleteSale(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", admin, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if resp.Sale.ID == "" || len(resp.Transactions) == 0 {
		t.Fatalf("unexpected sale response: %+v", resp)
	}

	del := authedRequest(t, api, http.MethodDelete, "/api/v1/sales/"+resp.Sale.ID, admin, nil)
	if del.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d (body: %s)", del.Code, del.Body.String())
	}

	get := authedRequest(t, api, http.MethodGet, "/api/v1/sales/"+resp.Sale.ID, admin, nil)
	if get.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", get.Code)
	}
}

func TestDeleteSaleForbiddenForOperator(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")
	operator := loginAs(t, api, "operator", "operator123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", admin, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}

	del := authedRequest(t, api, http.MethodDelete, "/api/v1/sales/"+resp.Sale.ID, operator, nil)
	if del.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", del.Code)
	}
}

func TestSaleInsufficientStockConflict(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", admin, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ProductID: "prd-coleira-01", Qty: 999}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAgendaEventLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/agenda/events", admin, domain.AgendaEventCreateRequest{
		Title:      "Banho da Mel",
		CustomerID: "cus-ana-01",
		ServiceIDs: []string{"svc-banho-01"},
		StartsAt:   "2026-04-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Event domain.AgendaEvent `json:"event"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if created.Event.ExpectedAmountCents != 6000 {
		t.Fatalf("expected amount = %d, want 6000", created.Event.ExpectedAmountCents)
	}

	confirm := authedRequest(t, api, http.MethodPost, "/api/v1/agenda/events/"+created.Event.ID+"/confirm", admin, map[string]any{"amount_cents": 0})
	if confirm.Code != http.StatusOK {
		t.Fatalf("expected 200 on confirm, got %d (body: %s)", confirm.Code, confirm.Body.String())
	}

	var confirmed struct {
		Event domain.AgendaEvent `json:"event"`
	}
	if err := json.NewDecoder(confirm.Body).Decode(&confirmed); err != nil {
		t.Fatalf("decode confirmed event: %v", err)
	}
	if confirmed.Event.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want %s", confirmed.Event.PaymentStatus, domain.PaymentStatusPaid)
	}
}

func TestDailySummaryBadDateRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/reports/daily-summary?date=not-a-date", admin, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/customers", admin, map[string]any{
		"name":     "Carla",
		"nickname": "not-a-field",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
