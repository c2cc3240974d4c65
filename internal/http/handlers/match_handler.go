// README: Match handlers: propose, payment, delivery confirmation, dispute, withdraw.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookferry/internal/http/middleware"
	"bookferry/internal/modules/match"
	"bookferry/internal/modules/matching"
	"bookferry/internal/types"
)

type MatchHandler struct {
	matches  *match.Service
	matching *matching.Service
}

func NewMatchHandler(matches *match.Service, matching *matching.Service) *MatchHandler {
	return &MatchHandler{matches: matches, matching: matching}
}

type proposeReq struct {
	RequestID string `json:"request_id"`
	TripID    string `json:"trip_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (h *MatchHandler) Propose(c *gin.Context) {
	var req proposeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	actor := types.ID(middleware.CallerUID(c))
	m, err := h.matches.Propose(c.Request.Context(), match.ProposeCommand{
		RequestID: types.ID(req.RequestID),
		TripID:    types.ID(req.TripID),
		Actor:     actor,
		Amount:    types.Money{Amount: req.Amount, Currency: req.Currency},
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	h.matching.InvalidateFor(c.Request.Context(), actor)
	writeJSON(c, http.StatusCreated, matchView(m))
}

func (h *MatchHandler) Get(c *gin.Context) {
	m, err := h.matches.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matchView(m))
}

func (h *MatchHandler) InitiatePayment(c *gin.Context) {
	actor := types.ID(middleware.CallerUID(c))
	ref, err := h.matches.InitiatePayment(c.Request.Context(), types.ID(c.Param("id")), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session_ref": ref})
}

func (h *MatchHandler) ConfirmPayment(c *gin.Context) {
	m, err := h.matches.ConfirmPayment(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matchView(m))
}

func (h *MatchHandler) ConfirmDelivery(c *gin.Context) {
	actor := types.ID(middleware.CallerUID(c))
	m, err := h.matches.ConfirmDelivery(c.Request.Context(), types.ID(c.Param("id")), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matchView(m))
}

func (h *MatchHandler) Dispute(c *gin.Context) {
	actor := types.ID(middleware.CallerUID(c))
	m, err := h.matches.Dispute(c.Request.Context(), types.ID(c.Param("id")), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matchView(m))
}

func (h *MatchHandler) Withdraw(c *gin.Context) {
	actor := types.ID(middleware.CallerUID(c))
	m, err := h.matches.Withdraw(c.Request.Context(), types.ID(c.Param("id")), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	h.matching.InvalidateFor(c.Request.Context(), actor)
	writeJSON(c, http.StatusOK, matchView(m))
}

func matchView(m *match.Match) gin.H {
	return gin.H{
		"match_id":            m.ID,
		"request_id":          m.RequestID,
		"trip_id":             m.TripID,
		"amount":              m.Amount.Amount,
		"currency":            m.Amount.Currency,
		"status":              m.Status,
		"payment_status":      m.Payment,
		"requester_confirmed": m.RequesterConfirmed,
		"traveler_confirmed":  m.TravelerConfirmed,
		"created_at":          m.CreatedAt,
		"updated_at":          m.UpdatedAt,
	}
}
