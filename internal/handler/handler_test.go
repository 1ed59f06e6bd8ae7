package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efreitasn/matchcore/internal/command"
	"github.com/efreitasn/matchcore/internal/engine"
	"github.com/efreitasn/matchcore/internal/service"
	"github.com/efreitasn/matchcore/internal/store"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router http.Handler
	engine *engine.Engine
	trades *store.TradeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	eng := engine.New("USDT")
	for _, m := range []string{"BTC_USDT", "ETH_USDT"} {
		if err := eng.AddMarket(m); err != nil {
			t.Fatalf("add market %s: %v", m, err)
		}
	}
	trades := store.NewTradeStore(100)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := service.NewDispatcher(eng, trades, nil, logger)

	return &testEnv{
		router: NewRouter(d, trades, nil, logger),
		engine: eng,
		trades: trades,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Errorf("error = %q, want %q", resp.Error, code)
	}
}

// credit funds a user via the API.
func (env *testEnv) credit(t *testing.T, userID, asset string, amount uint64) {
	t.Helper()
	rr := env.doJSON(t, "POST", "/balances", map[string]any{
		"user_id": userID,
		"asset":   asset,
		"amount":  amount,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("credit %s: expected 200, got %d: %s", userID, rr.Code, rr.Body.String())
	}
}

func orderBody(id uint64, user, side string, price, qty uint64) map[string]any {
	return map[string]any{
		"base_asset": "BTC",
		"order": map[string]any{
			"id":       id,
			"user_id":  user,
			"side":     side,
			"price":    price,
			"quantity": qty,
		},
	}
}

// placeOrder submits an order and returns the decoded result.
func (env *testEnv) placeOrder(t *testing.T, market string, id uint64, user, side string, price, qty uint64) command.Result {
	t.Helper()
	rr := env.doJSON(t, "POST", "/markets/"+market+"/orders", orderBody(id, user, side, price, qty))
	if rr.Code != http.StatusCreated {
		t.Fatalf("place order %d: expected 201, got %d: %s", id, rr.Code, rr.Body.String())
	}
	var res command.Result
	decodeJSON(t, rr, &res)
	return res
}

// --- Healthz ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

// --- Markets ---

func TestListMarkets(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/markets", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp marketsResponse
	decodeJSON(t, rr, &resp)
	if resp.QuoteAsset != "USDT" {
		t.Errorf("quote_asset = %q", resp.QuoteAsset)
	}
	if len(resp.Markets) != 2 || resp.Markets[0] != "BTC_USDT" || resp.Markets[1] != "ETH_USDT" {
		t.Errorf("markets = %v", resp.Markets)
	}
}

// --- Orders ---

func TestPlaceOrder_FullCross(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "seller", "BTC", 10)
	env.credit(t, "buyer", "USDT", 10_000)

	rest := env.placeOrder(t, "BTC_USDT", 1, "seller", "Sell", 100, 5)
	if rest.Status != command.StatusOK || len(rest.Trades) != 0 || rest.Order.Filled != 0 {
		t.Fatalf("unexpected resting result: %+v", rest)
	}

	take := env.placeOrder(t, "BTC_USDT", 2, "buyer", "Buy", 100, 5)
	if len(take.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(take.Trades))
	}
	tr := take.Trades[0]
	if tr.Price != 100 || tr.Quantity != 5 || tr.MakerOrderID != 1 || tr.TakerOrderID != 2 {
		t.Errorf("unexpected trade: %+v", tr)
	}
	if take.Order.Filled != 5 {
		t.Errorf("taker filled = %d, want 5", take.Order.Filled)
	}
	if take.RequestID == "" {
		t.Error("expected request_id to be set")
	}

	// The book is empty again.
	rr := env.doJSON(t, "GET", "/markets/BTC_USDT/depth", nil)
	var depth depthResponse
	decodeJSON(t, rr, &depth)
	if len(depth.Bids) != 0 || len(depth.Asks) != 0 {
		t.Errorf("expected empty book, got %+v", depth)
	}

	// Escrow is held, never settled.
	rr = env.doJSON(t, "GET", "/balances/buyer", nil)
	var bal balanceResponse
	decodeJSON(t, rr, &bal)
	if bal.Locked["USDT"] != 500 || bal.Available["USDT"] != 9_500 {
		t.Errorf("buyer balance = %+v", bal)
	}
}

func TestPlaceOrder_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "u", "USDT", 100)

	rr := env.doJSON(t, "POST", "/markets/BTC_USDT/orders", orderBody(1, "u", "Buy", 50, 3))
	expectError(t, rr, http.StatusConflict, "insufficient_funds")

	rr = env.doJSON(t, "GET", "/markets/BTC_USDT/depth", nil)
	var depth depthResponse
	decodeJSON(t, rr, &depth)
	if len(depth.Bids) != 0 {
		t.Errorf("rejected order must not rest: %+v", depth.Bids)
	}
}

func TestPlaceOrder_UnknownMarket(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "u", "USDT", 100)

	rr := env.doJSON(t, "POST", "/markets/DOGE_USDT/orders", orderBody(1, "u", "Buy", 1, 1))
	expectError(t, rr, http.StatusNotFound, "market_not_found")
}

func TestPlaceOrder_Overflow(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "POST", "/markets/BTC_USDT/orders", orderBody(1, "u", "Buy", 1<<40, 1<<40))
	expectError(t, rr, http.StatusUnprocessableEntity, "amount_overflow")
}

func TestPlaceOrder_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing base asset", `{"order":{"id":1,"user_id":"u","side":"Buy","price":1,"quantity":1}}`},
		{"missing order", `{"base_asset":"BTC"}`},
		{"bad side", `{"base_asset":"BTC","order":{"id":1,"user_id":"u","side":"BUY","price":1,"quantity":1}}`},
		{"missing user", `{"base_asset":"BTC","order":{"id":1,"side":"Buy","price":1,"quantity":1}}`},
		{"overfilled", `{"base_asset":"BTC","order":{"id":1,"user_id":"u","side":"Buy","price":1,"quantity":1,"filled":2}}`},
		{"unknown field", `{"base_asset":"BTC","leverage":10,"order":{"id":1,"user_id":"u","side":"Buy","price":1,"quantity":1}}`},
		{"negative price", `{"base_asset":"BTC","order":{"id":1,"user_id":"u","side":"Buy","price":-1,"quantity":1}}`},
		{"malformed", `{"base_asset":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doRaw(t, "POST", "/markets/BTC_USDT/orders", "application/json", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPlaceOrder_MissingOrderFieldsMatchQueue(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "u", "USDT", 100)

	for _, field := range []string{"id", "user_id", "price", "quantity"} {
		t.Run(field, func(t *testing.T) {
			order := map[string]any{"id": 1, "user_id": "u", "side": "Buy", "price": 1, "quantity": 1}
			delete(order, field)
			body := map[string]any{"base_asset": "BTC", "order": order}

			rr := env.doJSON(t, "POST", "/markets/BTC_USDT/orders", body)
			expectError(t, rr, http.StatusBadRequest, "invalid_request")

			msg, _ := json.Marshal(map[string]any{"type": "PLACE_ORDER", "market": "BTC_USDT", "base_asset": "BTC", "order": order})
			if _, err := command.Decode(msg); err == nil {
				t.Fatalf("queue decode accepted an order without %s", field)
			}
		})
	}

	rr := env.doJSON(t, "GET", "/markets/BTC_USDT/depth", nil)
	var depth depthResponse
	decodeJSON(t, rr, &depth)
	if len(depth.Bids) != 0 {
		t.Errorf("rejected orders must not rest, bids = %+v", depth.Bids)
	}
}

func TestPlaceOrder_RequiresJSONContentType(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doRaw(t, "POST", "/markets/BTC_USDT/orders", "text/plain", `{}`)
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestPlaceOrder_PartialFillRests(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "seller", "BTC", 10)
	env.credit(t, "buyer", "USDT", 10_000)

	env.placeOrder(t, "BTC_USDT", 1, "seller", "Sell", 101, 2)
	res := env.placeOrder(t, "BTC_USDT", 2, "buyer", "Buy", 102, 5)
	if len(res.Trades) != 1 || res.Trades[0].Price != 101 {
		t.Fatalf("expected one trade at the maker price, got %+v", res.Trades)
	}
	if res.Order.Filled != 2 {
		t.Errorf("filled = %d, want 2", res.Order.Filled)
	}

	rr := env.doJSON(t, "GET", "/markets/BTC_USDT/depth", nil)
	var depth depthResponse
	decodeJSON(t, rr, &depth)
	if depth.Market != "BTC_USDT" || len(depth.Bids) != 1 || depth.Bids[0].Price != 102 || depth.Bids[0].Quantity != 3 {
		t.Errorf("unexpected depth: %+v", depth)
	}
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "seller", "BTC", 10)
	env.placeOrder(t, "BTC_USDT", 7, "seller", "Sell", 100, 4)

	rr := env.doJSON(t, "DELETE", "/markets/BTC_USDT/orders/7", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res command.Result
	decodeJSON(t, rr, &res)
	if res.Order == nil || res.Order.ID != 7 {
		t.Fatalf("unexpected cancel result: %+v", res)
	}

	rr = env.doJSON(t, "DELETE", "/markets/BTC_USDT/orders/7", nil)
	expectError(t, rr, http.StatusNotFound, "order_not_found")

	rr = env.doJSON(t, "DELETE", "/markets/NOPE/orders/7", nil)
	expectError(t, rr, http.StatusNotFound, "market_not_found")

	rr = env.doJSON(t, "DELETE", "/markets/BTC_USDT/orders/abc", nil)
	expectError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestGetDepth_UnknownMarket(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/markets/NOPE/depth", nil)
	expectError(t, rr, http.StatusNotFound, "market_not_found")
}

func TestGetDepth_EmptyBookHasArrays(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/markets/ETH_USDT/depth", nil)
	if !strings.Contains(rr.Body.String(), `"bids":[]`) || !strings.Contains(rr.Body.String(), `"asks":[]`) {
		t.Errorf("expected empty arrays, got %s", rr.Body.String())
	}
}

// --- Trades ---

func TestListTrades(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "seller", "BTC", 10)
	env.credit(t, "buyer", "USDT", 10_000)
	env.placeOrder(t, "BTC_USDT", 1, "seller", "Sell", 100, 3)
	for id := uint64(2); id <= 4; id++ {
		env.placeOrder(t, "BTC_USDT", id, "buyer", "Buy", 100, 1)
	}

	rr := env.doJSON(t, "GET", "/markets/BTC_USDT/trades?limit=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp tradesResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Trades) != 2 || resp.Trades[0].ID != 1 || resp.Trades[1].ID != 2 {
		t.Fatalf("expected the two most recent trades, got %+v", resp.Trades)
	}

	rr = env.doJSON(t, "GET", "/markets/ETH_USDT/trades", nil)
	decodeJSON(t, rr, &resp)
	if resp.Trades == nil || len(resp.Trades) != 0 {
		t.Errorf("expected empty trades array, got %+v", resp.Trades)
	}
}

func TestListTrades_Errors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "GET", "/markets/NOPE/trades", nil)
	expectError(t, rr, http.StatusNotFound, "market_not_found")

	for _, q := range []string{"0", "-1", "abc", "1001"} {
		rr = env.doJSON(t, "GET", "/markets/BTC_USDT/trades?limit="+q, nil)
		expectError(t, rr, http.StatusBadRequest, "validation_error")
	}
}

// --- Balances ---

func TestBalances(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "GET", "/balances/alice", nil)
	expectError(t, rr, http.StatusNotFound, "user_not_found")

	env.credit(t, "alice", "USDT", 250)
	rr = env.doJSON(t, "POST", "/balances", map[string]any{"user_id": "alice", "asset": "USDT", "amount": 50})
	var bal balanceResponse
	decodeJSON(t, rr, &bal)
	if bal.UserID != "alice" || bal.Available["USDT"] != 300 {
		t.Fatalf("unexpected balance: %+v", bal)
	}

	rr = env.doJSON(t, "GET", "/balances/alice", nil)
	decodeJSON(t, rr, &bal)
	if bal.Available["USDT"] != 300 {
		t.Errorf("available = %d, want 300", bal.Available["USDT"])
	}
}

func TestCredit_Validation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"asset":"USDT","amount":1}`,
		`{"user_id":"u","amount":1}`,
		`{"user_id":"u","asset":"USDT"}`,
		`{"user_id":"u","asset":"USDT","amount":-5}`,
	} {
		rr := env.doRaw(t, "POST", "/balances", "application/json", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestCredit_Overflow(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "u", "USDT", 1<<64-1)

	rr := env.doJSON(t, "POST", "/balances", map[string]any{"user_id": "u", "asset": "USDT", "amount": 1})
	expectError(t, rr, http.StatusUnprocessableEntity, "amount_overflow")
}

func TestWebSocketRouteOnlyWithStream(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/ws", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a stream server, got %d", rr.Code)
	}
}
