package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/service"
)

// ShortHandler handles HTTP requests for short selling endpoints.
type ShortHandler struct {
	shortSvc *service.ShortService
}

// NewShortHandler creates a new ShortHandler.
func NewShortHandler(shortSvc *service.ShortService) *ShortHandler {
	return &ShortHandler{shortSvc: shortSvc}
}

// shortPositionResponse is the JSON representation of a short position.
type shortPositionResponse struct {
	PositionID   string  `json:"position_id"`
	Borrower     string  `json:"borrower"`
	Symbol       string  `json:"symbol"`
	BorrowedQty  int64   `json:"borrowed_quantity"`
	BorrowPrice  float64 `json:"borrow_price"`
	OpenedAt     string  `json:"opened_at"`
	MarginCalled bool    `json:"margin_called"`
}

func buildShortPositionResponse(p *domain.ShortPosition) shortPositionResponse {
	return shortPositionResponse{
		PositionID:   p.PositionID,
		Borrower:     p.Borrower,
		Symbol:       p.Symbol,
		BorrowedQty:  p.BorrowedQty,
		BorrowPrice:  domain.CentsToDollars(p.BorrowPrice),
		OpenedAt:     p.OpenedAt.Format(time.RFC3339Nano),
		MarginCalled: p.MarginCalled,
	}
}

// coverResultResponse is the JSON representation of a cover execution.
type coverResultResponse struct {
	CoveredQty int64   `json:"covered_quantity"`
	Cost       float64 `json:"cost"`
	Fee        float64 `json:"borrow_fee"`
	PnL        float64 `json:"realized_pnl"`
	Remaining  int64   `json:"remaining_quantity"`
}

func buildCoverResultResponse(res *engine.CoverResult) coverResultResponse {
	return coverResultResponse{
		CoveredQty: res.CoveredQty,
		Cost:       domain.CentsToDollars(res.Cost),
		Fee:        domain.CentsToDollars(res.Fee),
		PnL:        domain.CentsToDollars(res.PnL),
		Remaining:  res.Remaining,
	}
}

// shortSellRequest is the JSON body for POST /shorts.
type shortSellRequest struct {
	Participant string `json:"participant"`
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
}

// ShortSell handles POST /shorts.
func (h *ShortHandler) ShortSell(w http.ResponseWriter, r *http.Request) {
	var req shortSellRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := h.shortSvc.ShortSell(req.Participant, req.Symbol, req.Quantity)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"position": buildShortPositionResponse(res.Position),
		"proceeds": domain.CentsToDollars(res.Proceeds),
	})
}

// coverRequest is the JSON body for POST /shorts/cover.
type coverRequest struct {
	Participant string `json:"participant"`
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
}

// Cover handles POST /shorts/cover.
func (h *ShortHandler) Cover(w http.ResponseWriter, r *http.Request) {
	var req coverRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := h.shortSvc.CoverShort(req.Participant, req.Symbol, req.Quantity)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCoverResultResponse(res))
}

// liquidateRequest is the JSON body for POST /shorts/liquidate.
type liquidateRequest struct {
	Participant string `json:"participant"`
	Symbol      string `json:"symbol"`
}

// Liquidate handles POST /shorts/liquidate.
func (h *ShortHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := h.shortSvc.ForceLiquidate(req.Participant, req.Symbol)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCoverResultResponse(res))
}

// AvailableToBorrow handles GET /securities/{symbol}/borrow.
func (h *ShortHandler) AvailableToBorrow(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	available, err := h.shortSvc.AvailableToBorrow(symbol)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"available": available,
	})
}

// ListPositions handles GET /participants/{participant}/shorts.
func (h *ShortHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.shortSvc.Positions(chi.URLParam(r, "participant"))
	out := make([]shortPositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, buildShortPositionResponse(p))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": out})
}
