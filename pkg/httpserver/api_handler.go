package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// OpportunitySource exposes the ranked list of the latest scan cycle.
type OpportunitySource interface {
	LatestOpportunities() []*opportunity.Opportunity
}

// PositionSource exposes every tracked position.
type PositionSource interface {
	Positions() []*position.Position
}

// RiskController exposes the risk ledger and the manual breaker reset.
type RiskController interface {
	State() risk.State
	ResetBreaker(ctx context.Context) error
}

// APIHandler serves the read-only pipeline views and the breaker reset.
type APIHandler struct {
	opportunities OpportunitySource
	positions     PositionSource
	risk          RiskController
	logger        *zap.Logger
}

// NewAPIHandler creates an API handler. Nil sources answer 503.
func NewAPIHandler(opps OpportunitySource, positions PositionSource, riskCtl RiskController, logger *zap.Logger) *APIHandler {
	return &APIHandler{opportunities: opps, positions: positions, risk: riskCtl, logger: logger}
}

// LegView is one purchase leg of an opportunity.
type LegView struct {
	MarketID string  `json:"market_id"`
	Side     string  `json:"side"`
	TokenID  string  `json:"token_id"`
	Price    float64 `json:"price"`
}

// OpportunityView is the HTTP representation of a ranked opportunity.
type OpportunityView struct {
	Rank           int                  `json:"rank"`
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	Action         string               `json:"action"`
	Detector       string               `json:"detector"`
	Question       string               `json:"question"`
	MarketIDs      []string             `json:"market_ids"`
	EventID        string               `json:"event_id,omitempty"`
	ExpectedProfit float64              `json:"expected_profit"`
	Confidence     int                  `json:"confidence"`
	ExpectedValue  float64              `json:"expected_value"`
	Score          float64              `json:"score"`
	Legs           []LegView            `json:"legs"`
	Evidence       opportunity.Evidence `json:"evidence,omitempty"`
	DetectedAt     time.Time            `json:"detected_at"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleOpportunities handles GET /api/opportunities?limit=N.
func (h *APIHandler) HandleOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.opportunities == nil {
		h.writeError(w, "opportunities unavailable", http.StatusServiceUnavailable)
		return
	}

	opps := h.opportunities.LatestOpportunities()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if limit < len(opps) {
			opps = opps[:limit]
		}
	}

	views := make([]OpportunityView, 0, len(opps))
	for i, o := range opps {
		legs := make([]LegView, 0, len(o.Legs))
		for _, l := range o.Legs {
			legs = append(legs, LegView{MarketID: l.MarketID, Side: string(l.Side), TokenID: l.TokenID, Price: l.Price})
		}
		views = append(views, OpportunityView{
			Rank:           i + 1,
			ID:             o.ID,
			Type:           string(o.Type),
			Action:         string(o.Action),
			Detector:       o.Detector,
			Question:       o.Question,
			MarketIDs:      o.MarketIDs,
			EventID:        o.EventID,
			ExpectedProfit: o.ExpectedProfit,
			Confidence:     o.Confidence,
			ExpectedValue:  o.ExpectedValue(),
			Score:          o.Score,
			Legs:           legs,
			Evidence:       o.Evidence,
			DetectedAt:     o.DetectedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, views)
}

// HandlePositions handles GET /api/positions?state=OPEN.
func (h *APIHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		h.writeError(w, "positions unavailable", http.StatusServiceUnavailable)
		return
	}

	all := h.positions.Positions()
	state := position.State(r.URL.Query().Get("state"))
	if state == "" {
		h.writeJSON(w, http.StatusOK, all)
		return
	}

	filtered := make([]*position.Position, 0, len(all))
	for _, p := range all {
		if p.State == state {
			filtered = append(filtered, p)
		}
	}
	h.writeJSON(w, http.StatusOK, filtered)
}

// HandleRisk handles GET /api/risk.
func (h *APIHandler) HandleRisk(w http.ResponseWriter, _ *http.Request) {
	if h.risk == nil {
		h.writeError(w, "risk manager unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, h.risk.State())
}

// HandleRiskReset handles POST /api/risk/reset. It is the only way to clear a tripped breaker
// besides the reset-breaker command. The router puts it behind RequireAdminToken.
func (h *APIHandler) HandleRiskReset(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		h.writeError(w, "risk manager unavailable", http.StatusServiceUnavailable)
		return
	}

	if err := h.risk.ResetBreaker(r.Context()); err != nil {
		h.logger.Error("breaker-reset-failed", zap.Error(err))
		h.writeError(w, "reset failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Warn("breaker-reset-via-api", zap.String("remote-addr", r.RemoteAddr))
	h.writeJSON(w, http.StatusOK, h.risk.State())
}

// RequireAdminToken rejects requests that do not carry "Authorization: Bearer <token>".
// With no token configured every request is refused.
func (h *APIHandler) RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				h.logger.Warn("admin-route-disabled",
					zap.String("path", r.URL.Path),
					zap.String("remote-addr", r.RemoteAddr))
				h.writeError(w, "admin routes disabled: HTTP_ADMIN_TOKEN not set", http.StatusForbidden)
				return
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				h.logger.Warn("admin-auth-failed",
					zap.String("path", r.URL.Path),
					zap.String("remote-addr", r.RemoteAddr))
				h.writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}
