package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/msg"
	"github.com/efreitasn/toyexchange/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// testEnv bundles the router with its in-memory collaborators.
type testEnv struct {
	router chi.Router
	fabric *fabric.MemFabric
	store  *store.MemStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	f := fabric.NewMemFabric()
	t.Cleanup(func() { f.Close() })
	st := store.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := NewRouter(NewOrderHandler(f), NewBalanceHandler(st), logger)
	return &testEnv{router: router, fabric: f, store: st}
}

// doJSON performs a request against the router and decodes the JSON response
// into out (skipped when out is nil).
func (e *testEnv) doJSON(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

// nextPublished pops one message from the new-orders queue.
func (e *testEnv) nextPublished(t *testing.T) msg.OrderV1 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	deliveries, err := e.fabric.Consume(ctx, fabric.QueueNewOrders)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	select {
	case d := <-deliveries:
		order, err := msg.DecodeOrder(d.Body())
		if err != nil {
			t.Fatalf("decode published order: %v", err)
		}
		d.Ack()
		return order
	case <-ctx.Done():
		t.Fatal("no order published")
	}
	return msg.OrderV1{}
}

func TestSubmitOrder_Defaults(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		Published msg.OrderV1 `json:"published"`
	}
	rec := env.doJSON(t, http.MethodPost, "/orders", nil, &resp)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if resp.Published.OrderID == "" {
		t.Error("published order has empty order_id")
	}
	if resp.Published.UserID != "u1" || resp.Published.Symbol != "AAPL" ||
		resp.Published.Side != "BUY" || resp.Published.Qty != 1 {
		t.Errorf("published = %+v, want defaults", resp.Published)
	}

	published := env.nextPublished(t)
	if published.OrderID != resp.Published.OrderID {
		t.Errorf("queued order_id = %q, want %q", published.OrderID, resp.Published.OrderID)
	}
	if published.Type != msg.TypeOrder {
		t.Errorf("queued type = %q, want %q", published.Type, msg.TypeOrder)
	}
}

func TestSubmitOrder_CustomFieldsCanonicalized(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{"user_id": "u2", "side": "sell", "qty": 3, "symbol": "msft"}
	var resp struct {
		Published msg.OrderV1 `json:"published"`
	}
	rec := env.doJSON(t, http.MethodPost, "/orders", body, &resp)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if resp.Published.UserID != "u2" {
		t.Errorf("UserID = %q, want \"u2\"", resp.Published.UserID)
	}
	if resp.Published.Side != "SELL" {
		t.Errorf("Side = %q, want \"SELL\"", resp.Published.Side)
	}
	if resp.Published.Symbol != "MSFT" {
		t.Errorf("Symbol = %q, want \"MSFT\"", resp.Published.Symbol)
	}
	if resp.Published.Qty != 3 {
		t.Errorf("Qty = %d, want 3", resp.Published.Qty)
	}
}

func TestSubmitOrder_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte(`{broken`)))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeedCash("u1", decimal.NewFromInt(550))
	env.store.SeedPosition("u1", "MSFT", 1)
	env.store.SeedPosition("u1", "AAPL", 2)

	var resp struct {
		UserID    string  `json:"user_id"`
		Cash      float64 `json:"cash"`
		Positions []struct {
			Symbol string `json:"symbol"`
			Qty    int64  `json:"qty"`
		} `json:"positions"`
	}
	rec := env.doJSON(t, http.MethodGet, "/balances?user_id=u1", nil, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.UserID != "u1" {
		t.Errorf("user_id = %q, want \"u1\"", resp.UserID)
	}
	if resp.Cash != 550 {
		t.Errorf("cash = %v, want 550", resp.Cash)
	}
	if len(resp.Positions) != 2 {
		t.Fatalf("positions count = %d, want 2", len(resp.Positions))
	}
	// Sorted by symbol.
	if resp.Positions[0].Symbol != "AAPL" || resp.Positions[0].Qty != 2 {
		t.Errorf("positions[0] = %+v, want AAPL/2", resp.Positions[0])
	}
	if resp.Positions[1].Symbol != "MSFT" || resp.Positions[1].Qty != 1 {
		t.Errorf("positions[1] = %+v, want MSFT/1", resp.Positions[1])
	}
}

func TestGetBalance_UnknownUserIsZero(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		UserID    string  `json:"user_id"`
		Cash      float64 `json:"cash"`
		Positions []any   `json:"positions"`
	}
	rec := env.doJSON(t, http.MethodGet, "/balances?user_id=ghost", nil, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Cash != 0 {
		t.Errorf("cash = %v, want 0", resp.Cash)
	}
	if len(resp.Positions) != 0 {
		t.Errorf("positions count = %d, want 0", len(resp.Positions))
	}
}

func TestGetBalance_MissingUserID(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		Error string `json:"error"`
	}
	rec := env.doJSON(t, http.MethodGet, "/balances", nil, &resp)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error != "invalid_request" {
		t.Errorf("error = %q, want \"invalid_request\"", resp.Error)
	}
}

func TestGetAllBalances(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeedCash("u2", decimal.NewFromInt(100))
	env.store.SeedCash("u1", decimal.NewFromInt(550))
	env.store.SeedPosition("mm", "AAPL", -2)

	var resp struct {
		Users []struct {
			UserID string  `json:"user_id"`
			Cash   float64 `json:"cash"`
		} `json:"users"`
	}
	rec := env.doJSON(t, http.MethodGet, "/balances/all", nil, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(resp.Users) != 3 {
		t.Fatalf("users count = %d, want 3", len(resp.Users))
	}
	// Ordered by user id.
	for i, want := range []string{"mm", "u1", "u2"} {
		if resp.Users[i].UserID != want {
			t.Errorf("users[%d] = %q, want %q", i, resp.Users[i].UserID, want)
		}
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	var resp map[string]string
	rec := env.doJSON(t, http.MethodGet, "/healthz", nil, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want \"ok\"", resp["status"])
	}
}
