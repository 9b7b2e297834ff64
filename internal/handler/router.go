package handler

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statxchange/statxchange/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(
	securitySvc *service.SecurityService,
	marketSvc *service.MarketDataService,
	orderSvc *service.OrderService,
	optionsSvc *service.OptionsService,
	shortSvc *service.ShortService,
	hub *Hub,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	securityH := NewSecurityHandler(securitySvc, marketSvc)
	orderH := NewOrderHandler(orderSvc)
	optionsH := NewOptionsHandler(optionsSvc)
	shortH := NewShortHandler(shortSvc)
	wsH := NewWSHandler(hub)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Security routes.
	r.Post("/securities", securityH.Create)
	r.Get("/securities", securityH.List)
	r.Get("/securities/{symbol}", securityH.Get)
	r.Put("/securities/{symbol}/fundamental", securityH.UpdateFundamental)
	r.Get("/securities/{symbol}/book", securityH.GetBook)
	r.Get("/securities/{symbol}/quote", securityH.GetQuote)
	r.Get("/securities/{symbol}/borrow", shortH.AvailableToBorrow)

	// Order routes.
	r.Post("/orders", orderH.SubmitOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// Options routes.
	r.Post("/securities/{symbol}/options/chain", optionsH.GenerateChain)
	r.Get("/securities/{symbol}/options", optionsH.GetChain)
	r.Post("/options/buy", optionsH.Buy)
	r.Post("/options/write", optionsH.Write)
	r.Post("/options/exercise", optionsH.Exercise)
	r.Post("/options/close", optionsH.Close)

	// Short selling routes.
	r.Post("/shorts", shortH.ShortSell)
	r.Post("/shorts/cover", shortH.Cover)
	r.Post("/shorts/liquidate", shortH.Liquidate)

	// Participant routes.
	r.Get("/participants/{participant}/orders", orderH.ListOrders)
	r.Get("/participants/{participant}/options", optionsH.ListPositions)
	r.Get("/participants/{participant}/shorts", shortH.ListPositions)

	// Market event stream.
	r.Get("/ws", wsH.Serve)

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
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
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

// Hijack is required for the websocket upgrade to reach the underlying
// connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
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
