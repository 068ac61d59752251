package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/service"
	"lapakdigital/backend/internal/store/memory"
	"lapakdigital/backend/internal/telegram"
)

// nullSender drops outbound chat traffic; handler tests only care about the
// HTTP side of each flow.
type nullSender struct{}

func (nullSender) SendMessage(context.Context, int64, string, *telegram.SendOptions) error {
	return nil
}

func (nullSender) AnswerCallbackQuery(context.Context, string, string) error {
	return nil
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nullSender{}, nil, time.Second, 777)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*"), repo
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = &bytes.Buffer{}
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

func loginToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil, "")
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

func TestPublicCatalogHidesUnits(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/products", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "Netflix Premium 1 Bulan") {
		t.Fatalf("catalog must list seeded products, got %s", body)
	}
	// Serialized units must never leak through the public catalog.
	if strings.Contains(body, "netacc01@mail.com") {
		t.Fatalf("catalog leaked a serialized unit: %s", body)
	}
}

func TestHandleNotifyHappyPath(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/notify", domain.NotifyRequest{
		OrderID: "ORD-H-1",
		Type:    domain.CheckoutTypeSaldo,
		Total:   35000,
		Items: []domain.OrderItem{
			{Name: "Netflix Premium 1 Bulan", Qty: 1, Price: 35000, ProductID: "netflix-1m"},
		},
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	order, err := repo.GetOrder(context.Background(), "ORD-H-1")
	if err != nil {
		t.Fatalf("order not stored: %v", err)
	}
	if order.Status != domain.OrderStatusSuccess {
		t.Fatalf("expected success, got %s", order.Status)
	}
}

func TestHandleNotifyRejectsBadInput(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/notify", map[string]any{
		"orderId": "ORD-B-1",
		"type":    "teleport",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown checkout type must be 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/notify", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON must be 400, got %d", rec2.Code)
	}

	rec3 := doJSON(t, handler, http.MethodPost, "/api/notify", map[string]any{
		"type":       "saldo",
		"surpriseMe": true,
	}, "")
	if rec3.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields must be 400, got %d", rec3.Code)
	}
}

func TestMidtransWebhookAlwaysAcknowledges(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	// Unknown order: processing fails internally, gateway still gets 200.
	rec := doJSON(t, handler, http.MethodPost, "/api/midtrans-webhook", domain.MidtransNotification{
		OrderID:           "ORD-GONE",
		TransactionStatus: "settlement",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must acknowledge, got %d", rec.Code)
	}

	// Malformed payload: same.
	req := httptest.NewRequest(http.MethodPost, "/api/midtrans-webhook", strings.NewReader("garbage"))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("webhook must acknowledge garbage, got %d", rec2.Code)
	}
}

func TestMidtransWebhookTransitionsOrder(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	ctx := context.Background()

	if _, err := repo.CreateOrder(ctx, domain.Order{ID: "ORD-W-1", Status: domain.OrderStatusPending}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/midtrans-webhook", domain.MidtransNotification{
		OrderID:           "ORD-W-1",
		TransactionStatus: "settlement",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	order, _ := repo.GetOrder(ctx, "ORD-W-1")
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", order.Status)
	}
}

func TestTelegramWebhookAlwaysAcknowledges(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/telegram-webhook", telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			Chat: telegram.Chat{ID: 777},
			Text: "halo",
		},
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected plain ok body, got %q", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/telegram-webhook", strings.NewReader("][not json"))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("webhook must acknowledge garbage, got %d", rec2.Code)
	}
}

func TestAdminEndpointsRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	paths := []string{"/api/v1/orders", "/api/v1/products"}
	for _, path := range paths {
		rec := doJSON(t, handler, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token must be 401, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders", nil, "not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token must be 401, got %d", rec.Code)
	}
}

func TestAdminOrderLifecycle(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)
	ctx := context.Background()

	if _, err := repo.CreateOrder(ctx, domain.Order{ID: "ORD-A-1", Status: domain.OrderStatusProcessing}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders?status=processing", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("list orders failed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "ORD-A-1") {
		t.Fatalf("expected order in listing, got %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/ORD-A-1", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/ORD-A-1/done", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark done failed: %d %s", rec.Code, rec.Body.String())
	}
	order, _ := repo.GetOrder(ctx, "ORD-A-1")
	if order.Status != domain.OrderStatusSuccess {
		t.Fatalf("expected success, got %s", order.Status)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/ORD-GONE", nil, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing order must be 404, got %d", rec.Code)
	}
}

func TestAdminProductAndStockUpload(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		ID:    "canva-pro",
		Name:  "Canva Pro",
		Price: 12000,
	}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/canva-pro/stock", domain.StockUploadRequest{
		Units: []string{"cv-1", "cv-2"},
	}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("stock upload failed: %d %s", rec.Code, rec.Body.String())
	}

	product, err := repo.GetProduct(context.Background(), "canva-pro")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(product.Items) != 2 {
		t.Fatalf("expected 2 uploaded units, got %v", product.Items)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/ghost/stock", domain.StockUploadRequest{
		Units: []string{"x"},
	}, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product must be 404, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	var last int
	for i := 0; i < 6; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{
			Username: "admin",
			Password: "wrong-password",
		}, "")
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}

func TestMethodNotAllowedAndOptions(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodDelete, "/api/notify", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/notify", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec2.Code)
	}
	if rec2.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}
