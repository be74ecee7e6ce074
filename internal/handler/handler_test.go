package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/sequencer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *sequencer.Sequencer) {
	t.Helper()
	seq := sequencer.NewSequencer(matching.NewEngine("QWERTY"), 16, nil)
	seq.Start()
	t.Cleanup(seq.Stop)

	r := gin.New()
	NewHandler(seq, time.Second, nil).RegisterRoutes(r)
	return r, seq
}

func postOrder(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/order", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "QWERTY", body["asset"])
}

func TestPlaceOrder_QueuedThenExecuted(t *testing.T) {
	r, _ := setupRouter(t)

	w := postOrder(r, `{"side":"bid","quantity":100,"price":"9.90"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp PlaceOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "QWERTY", resp.Asset)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, domain.ResultQueued, resp.Results[0].Kind)
	assert.Equal(t, domain.SideBid, resp.Results[0].Side)
	assert.Equal(t, "9.9", resp.Results[0].Price.String())

	// numeric price is accepted as well
	w = postOrder(r, `{"side":"SELL","quantity":40,"price":9.5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, domain.ResultExecuted, resp.Results[0].Kind)
	assert.Equal(t, domain.SideAsk, resp.Results[0].Side)
	assert.Equal(t, uint64(40), resp.Results[0].Quantity)
	assert.Equal(t, "9.9", resp.Results[0].Price.String())
}

func TestPlaceOrder_Rejections(t *testing.T) {
	r, seq := setupRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"side":`},
		{"missing side", `{"quantity":1,"price":"1"}`},
		{"unknown side", `{"side":"HOLD","quantity":1,"price":"1"}`},
		{"zero quantity", `{"side":"BID","quantity":0,"price":"1"}`},
		{"negative quantity", `{"side":"BID","quantity":-5,"price":"1"}`},
		{"zero price", `{"side":"BID","quantity":1,"price":"0"}`},
		{"negative price", `{"side":"ASK","quantity":1,"price":"-2.5"}`},
		{"garbage price", `{"side":"ASK","quantity":1,"price":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postOrder(r, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.Equal(t, uint64(0), seq.CurrentInboundSeq())
}

func TestPlaceOrder_StoppedSequencer(t *testing.T) {
	r, seq := setupRouter(t)
	seq.Stop()

	w := postOrder(r, `{"side":"BID","quantity":1,"price":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetOrderBook(t *testing.T) {
	r, seq := setupRouter(t)
	ctx := context.Background()

	for _, req := range []domain.OrderRequest{
		{Side: domain.SideAsk, Quantity: 10, Price: mustPrice(t, "10.5")},
		{Side: domain.SideAsk, Quantity: 20, Price: mustPrice(t, "10.1")},
		{Side: domain.SideAsk, Quantity: 5, Price: mustPrice(t, "10.1")},
	} {
		_, err := seq.Submit(ctx, req)
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/orderbook/ask?depth=1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp OrderBookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.SideAsk, resp.Side)
	require.Len(t, resp.Orders, 3)
	assert.Equal(t, "10.1", resp.Orders[0].Price.String())
	assert.Equal(t, uint64(20), resp.Orders[0].Quantity)
	assert.Equal(t, "10.5", resp.Orders[2].Price.String())

	require.Len(t, resp.Levels, 1)
	assert.Equal(t, uint64(25), resp.Levels[0].Quantity)
	assert.Equal(t, 2, resp.Levels[0].Orders)
}

func TestGetOrderBook_EmptySide(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/orderbook/BID", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"orders":[]`)
	assert.Contains(t, w.Body.String(), `"levels":[]`)
}

func TestGetOrderBook_BadInput(t *testing.T) {
	r, _ := setupRouter(t)

	for _, target := range []string{"/v1/orderbook/middle", "/v1/orderbook/bid?depth=-1", "/v1/orderbook/bid?depth=x"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func mustPrice(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	p, err := domain.ParsePrice(s)
	require.NoError(t, err)
	return p
}
