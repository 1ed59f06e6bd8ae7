package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/matchcore/internal/service"
	"github.com/efreitasn/matchcore/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StreamServer upgrades a request to a trade stream connection.
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. stream may be nil, in which case
// /ws is not mounted.
func NewRouter(
	dispatcher *service.Dispatcher,
	trades *store.TradeStore,
	stream StreamServer,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	marketH := NewMarketHandler(dispatcher, trades)
	balanceH := NewBalanceHandler(dispatcher)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Market routes.
	r.Get("/markets", marketH.List)
	r.Route("/markets/{market}", func(r chi.Router) {
		r.Post("/orders", marketH.PlaceOrder)
		r.Delete("/orders/{order_id}", marketH.CancelOrder)
		r.Get("/depth", marketH.GetDepth)
		r.Get("/trades", marketH.ListTrades)
	})

	// Balance routes.
	r.Post("/balances", balanceH.Credit)
	r.Get("/balances/{user_id}", balanceH.Get)

	if stream != nil {
		r.Get("/ws", stream.ServeWS)
	}

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("request_id", requestIDFrom(r)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// requestIDFrom returns the id assigned by middleware.RequestID.
func requestIDFrom(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
