// README: Dashboard handler: live compatibility for the caller's open entities.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookferry/internal/http/middleware"
	"bookferry/internal/modules/matching"
	"bookferry/internal/types"
)

type MatchingHandler struct {
	matching *matching.Service
}

func NewMatchingHandler(svc *matching.Service) *MatchingHandler {
	return &MatchingHandler{matching: svc}
}

func (h *MatchingHandler) Dashboard(c *gin.Context) {
	d, err := h.matching.FindMatches(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}
