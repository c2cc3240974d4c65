// README: Request handlers: create, get, list mine, withdraw.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookferry/internal/http/middleware"
	"bookferry/internal/modules/matching"
	"bookferry/internal/modules/request"
	"bookferry/internal/types"
)

type RequestHandler struct {
	requests *request.Service
	matching *matching.Service
}

func NewRequestHandler(requests *request.Service, matching *matching.Service) *RequestHandler {
	return &RequestHandler{requests: requests, matching: matching}
}

type bookItemReq struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
}

type createRequestReq struct {
	DestinationCity string        `json:"destination_city"`
	Deadline        string        `json:"deadline"` // YYYY-MM-DD
	WeightKg        float64       `json:"weight_kg"`
	Books           []bookItemReq `json:"books"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	deadline, err := time.Parse("2006-01-02", req.Deadline)
	if err != nil {
		writeError(c, http.StatusBadRequest, "deadline must be YYYY-MM-DD")
		return
	}
	books := make([]request.BookItem, len(req.Books))
	for i, b := range req.Books {
		books[i] = request.BookItem{Title: b.Title, Author: b.Author, Quantity: b.Quantity}
	}
	actor := types.ID(middleware.CallerUID(c))
	r, err := h.requests.Create(c.Request.Context(), request.CreateCommand{
		UserID:          actor,
		DestinationCity: req.DestinationCity,
		Deadline:        deadline,
		WeightKg:        req.WeightKg,
		Books:           books,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	h.matching.InvalidateFor(c.Request.Context(), actor)
	writeJSON(c, http.StatusCreated, requestView(r))
}

func (h *RequestHandler) Get(c *gin.Context) {
	r, err := h.requests.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, requestView(r))
}

func (h *RequestHandler) ListMine(c *gin.Context) {
	list, err := h.requests.ListMine(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	views := make([]gin.H, len(list))
	for i := range list {
		views[i] = requestView(&list[i])
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": views})
}

func (h *RequestHandler) Withdraw(c *gin.Context) {
	actor := types.ID(middleware.CallerUID(c))
	if err := h.requests.Withdraw(c.Request.Context(), types.ID(c.Param("id")), actor); err != nil {
		writeDomainError(c, err)
		return
	}
	h.matching.InvalidateFor(c.Request.Context(), actor)
	writeJSON(c, http.StatusOK, gin.H{"status": request.StatusWithdrawn})
}

func requestView(r *request.Request) gin.H {
	return gin.H{
		"request_id":       r.ID,
		"destination_city": r.DestinationCity,
		"deadline":         r.Deadline.Format("2006-01-02"),
		"weight_kg":        r.WeightKg,
		"books":            r.Books,
		"status":           r.Status,
		"created_at":       r.CreatedAt,
	}
}
