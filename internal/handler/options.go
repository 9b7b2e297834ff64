package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/service"
)

// OptionsHandler handles HTTP requests for options endpoints.
type OptionsHandler struct {
	optionsSvc *service.OptionsService
}

// NewOptionsHandler creates a new OptionsHandler.
func NewOptionsHandler(optionsSvc *service.OptionsService) *OptionsHandler {
	return &OptionsHandler{optionsSvc: optionsSvc}
}

// contractResponse is the JSON representation of an option contract.
type contractResponse struct {
	ContractID   string  `json:"contract_id"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"`
	Strike       float64 `json:"strike"`
	Expiration   string  `json:"expiration"`
	Premium      float64 `json:"premium"`
	Intrinsic    float64 `json:"intrinsic_value"`
	TimeValue    float64 `json:"time_value"`
	InTheMoney   bool    `json:"in_the_money"`
	Delta        float64 `json:"delta"`
	Gamma        float64 `json:"gamma"`
	Theta        float64 `json:"theta"`
	Vega         float64 `json:"vega"`
	Rho          float64 `json:"rho"`
	OpenInterest int64   `json:"open_interest"`
}

func buildContractResponse(c *domain.OptionContract) contractResponse {
	return contractResponse{
		ContractID:   c.ContractID,
		Symbol:       c.Symbol,
		Type:         string(c.Type),
		Strike:       domain.CentsToDollars(c.Strike),
		Expiration:   c.Expiration.Format(time.RFC3339Nano),
		Premium:      domain.CentsToDollars(c.Premium),
		Intrinsic:    domain.CentsToDollars(c.Intrinsic),
		TimeValue:    domain.CentsToDollars(c.TimeValue),
		InTheMoney:   c.InTheMoney,
		Delta:        c.Greeks.Delta,
		Gamma:        c.Greeks.Gamma,
		Theta:        c.Greeks.Theta,
		Vega:         c.Greeks.Vega,
		Rho:          c.Greeks.Rho,
		OpenInterest: c.OpenInterest,
	}
}

// positionResponse is the JSON representation of an option position.
type positionResponse struct {
	PositionID   string  `json:"position_id"`
	Holder       string  `json:"holder"`
	ContractID   string  `json:"contract_id"`
	Quantity     int64   `json:"quantity"`
	Side         string  `json:"side"`
	EntryPremium float64 `json:"entry_premium"`
	OpenedAt     string  `json:"opened_at"`
}

func buildPositionResponse(p *domain.OptionPosition) positionResponse {
	return positionResponse{
		PositionID:   p.PositionID,
		Holder:       p.Holder,
		ContractID:   p.ContractID,
		Quantity:     p.Quantity,
		Side:         string(p.Side),
		EntryPremium: domain.CentsToDollars(p.EntryPremium),
		OpenedAt:     p.OpenedAt.Format(time.RFC3339Nano),
	}
}

// GenerateChain handles POST /securities/{symbol}/options/chain.
func (h *OptionsHandler) GenerateChain(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.optionsSvc.GenerateChain(chi.URLParam(r, "symbol"))
	if err != nil {
		mapDomainError(w, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, buildContractResponse(c))
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"contracts": out})
}

// GetChain handles GET /securities/{symbol}/options.
func (h *OptionsHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.optionsSvc.GetChain(chi.URLParam(r, "symbol"))
	if err != nil {
		mapDomainError(w, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, buildContractResponse(c))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"contracts": out})
}

// optionOrderRequest is the JSON body for buy/write requests.
type optionOrderRequest struct {
	Participant string `json:"participant"`
	ContractID  string `json:"contract_id"`
	Quantity    int64  `json:"quantity"`
}

// Buy handles POST /options/buy.
func (h *OptionsHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.open(w, r, h.optionsSvc.Buy)
}

// Write handles POST /options/write.
func (h *OptionsHandler) Write(w http.ResponseWriter, r *http.Request) {
	h.open(w, r, h.optionsSvc.Write)
}

func (h *OptionsHandler) open(w http.ResponseWriter, r *http.Request, fn func(string, string, int64) (*domain.OptionPosition, error)) {
	var req optionOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	pos, err := fn(req.Participant, req.ContractID, req.Quantity)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildPositionResponse(pos))
}

// exerciseRequest is the JSON body for POST /options/exercise.
type exerciseRequest struct {
	Participant string `json:"participant"`
	PositionID  string `json:"position_id"`
}

// exerciseResponse reports the underlying trade produced by exercise.
type exerciseResponse struct {
	Symbol      string  `json:"symbol"`
	ContractID  string  `json:"contract_id"`
	Type        string  `json:"type"`
	Side        string  `json:"side"`
	Strike      float64 `json:"strike"`
	Quantity    int64   `json:"quantity"`
	ExercisedAt string  `json:"exercised_at"`
}

// Exercise handles POST /options/exercise.
func (h *OptionsHandler) Exercise(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := h.optionsSvc.Exercise(req.Participant, req.PositionID)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, exerciseResponse{
		Symbol:      res.Symbol,
		ContractID:  res.ContractID,
		Type:        string(res.Type),
		Side:        string(res.Side),
		Strike:      domain.CentsToDollars(res.Strike),
		Quantity:    res.Quantity,
		ExercisedAt: res.ExercisedAt.Format(time.RFC3339Nano),
	})
}

// closeRequest is the JSON body for POST /options/close.
type closeRequest struct {
	Participant string `json:"participant"`
	PositionID  string `json:"position_id"`
}

// Close handles POST /options/close.
func (h *OptionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	pnl, err := h.optionsSvc.Close(req.Participant, req.PositionID)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"realized_pnl": domain.CentsToDollars(pnl)})
}

// ListPositions handles GET /participants/{participant}/options.
func (h *OptionsHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.optionsSvc.Positions(chi.URLParam(r, "participant"))
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, buildPositionResponse(p))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": out})
}
