package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/matchcore/internal/command"
	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/efreitasn/matchcore/internal/service"
	"github.com/efreitasn/matchcore/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultTradesLimit = 100
	maxTradesLimit     = 1000
)

// MarketHandler handles HTTP requests for market endpoints.
type MarketHandler struct {
	dispatcher *service.Dispatcher
	trades     *store.TradeStore
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(dispatcher *service.Dispatcher, trades *store.TradeStore) *MarketHandler {
	return &MarketHandler{dispatcher: dispatcher, trades: trades}
}

// placeOrderRequest is the JSON request body for POST /markets/{market}/orders.
type placeOrderRequest struct {
	RequestID string             `json:"request_id"`
	BaseAsset string             `json:"base_asset"`
	Order     *command.WireOrder `json:"order"`
}

// depthResponse is the JSON response for GET /markets/{market}/depth.
type depthResponse struct {
	Market string         `json:"market"`
	Bids   []domain.Level `json:"bids"`
	Asks   []domain.Level `json:"asks"`
}

type marketsResponse struct {
	QuoteAsset string   `json:"quote_asset"`
	Markets    []string `json:"markets"`
}

type tradesResponse struct {
	Market string         `json:"market"`
	Trades []domain.Trade `json:"trades"`
}

// List handles GET /markets.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	eng := h.dispatcher.Engine()
	WriteJSON(w, http.StatusOK, marketsResponse{
		QuoteAsset: eng.QuoteAsset(),
		Markets:    eng.Markets(),
	})
}

// PlaceOrder handles POST /markets/{market}/orders.
func (h *MarketHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		writeCommandError(w, err)
		return
	}
	if req.BaseAsset == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "base_asset is required")
		return
	}
	if req.Order == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "order is required")
		return
	}
	order, err := req.Order.ToOrder()
	if err != nil {
		writeCommandError(w, err)
		return
	}

	if req.RequestID == "" {
		req.RequestID = requestIDFrom(r)
	}

	res, err := h.dispatcher.Dispatch(command.PlaceOrder{
		RequestID: req.RequestID,
		Market:    chi.URLParam(r, "market"),
		BaseAsset: req.BaseAsset,
		Order:     order,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, res)
}

// CancelOrder handles DELETE /markets/{market}/orders/{order_id}.
func (h *MarketHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be an unsigned integer")
		return
	}

	res, err := h.dispatcher.Dispatch(command.CancelOrder{
		RequestID: requestIDFrom(r),
		Market:    chi.URLParam(r, "market"),
		OrderID:   orderID,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}
	if res.Status == command.StatusNotFound {
		WriteError(w, http.StatusNotFound, "order_not_found", "Order is not resting on the book")
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

// GetDepth handles GET /markets/{market}/depth.
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	res, err := h.dispatcher.Dispatch(command.GetDepth{
		RequestID: requestIDFrom(r),
		Market:    market,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	resp := depthResponse{Market: market, Bids: []domain.Level{}, Asks: []domain.Level{}}
	if res.Depth != nil {
		if res.Depth.Bids != nil {
			resp.Bids = res.Depth.Bids
		}
		if res.Depth.Asks != nil {
			resp.Asks = res.Depth.Asks
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /markets/{market}/trades.
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	if !h.hasMarket(market) {
		writeCommandError(w, domain.ErrMarketNotFound)
		return
	}

	limit := defaultTradesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTradesLimit {
			WriteError(w, http.StatusBadRequest, "validation_error",
				"limit must be an integer between 1 and "+strconv.Itoa(maxTradesLimit))
			return
		}
		limit = n
	}

	WriteJSON(w, http.StatusOK, tradesResponse{
		Market: market,
		Trades: h.trades.Recent(market, limit),
	})
}

func (h *MarketHandler) hasMarket(market string) bool {
	return h.dispatcher.Engine().HasMarket(market)
}
