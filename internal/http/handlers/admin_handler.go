// README: Admin handlers: dispute queue, resolution, user bans.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookferry/internal/http/middleware"
	"bookferry/internal/modules/match"
	"bookferry/internal/modules/user"
	"bookferry/internal/types"
)

type AdminHandler struct {
	matches *match.Service
	users   *user.Store
}

func NewAdminHandler(matches *match.Service, users *user.Store) *AdminHandler {
	return &AdminHandler{matches: matches, users: users}
}

func (h *AdminHandler) ListDisputes(c *gin.Context) {
	disputes, err := h.matches.ListDisputes(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	views := make([]gin.H, len(disputes))
	for i := range disputes {
		views[i] = matchView(&disputes[i])
	}
	writeJSON(c, http.StatusOK, gin.H{"disputes": views})
}

type resolveReq struct {
	Decision string `json:"decision"`
}

func (h *AdminHandler) Resolve(c *gin.Context) {
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	admin := types.ID(middleware.CallerUID(c))
	m, err := h.matches.ResolveDispute(c.Request.Context(),
		types.ID(c.Param("id")), match.Decision(req.Decision), admin)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matchView(m))
}

type banReq struct {
	Banned bool `json:"banned"`
}

func (h *AdminHandler) SetBanned(c *gin.Context) {
	var req banReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.users.SetBanned(c.Request.Context(), types.ID(c.Param("id")), req.Banned); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"banned": req.Banned})
}
