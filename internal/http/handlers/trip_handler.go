// README: Trip handlers: create, get, list mine, withdraw.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bookferry/internal/http/middleware"
	"bookferry/internal/modules/matching"
	"bookferry/internal/modules/trip"
	"bookferry/internal/types"
)

type TripHandler struct {
	trips    *trip.Service
	matching *matching.Service
}

func NewTripHandler(trips *trip.Service, matching *matching.Service) *TripHandler {
	return &TripHandler{trips: trips, matching: matching}
}

type createTripReq struct {
	OriginCity      string  `json:"origin_city"`
	DestinationCity string  `json:"destination_city"`
	TravelDate      string  `json:"travel_date"` // YYYY-MM-DD
	CapacityKg      float64 `json:"capacity_kg"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	travelDate, err := time.Parse("2006-01-02", req.TravelDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "travel_date must be YYYY-MM-DD")
		return
	}
	actor := types.ID(middleware.CallerUID(c))
	t, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		UserID:          actor,
		OriginCity:      req.OriginCity,
		DestinationCity: req.DestinationCity,
		TravelDate:      travelDate,
		CapacityKg:      req.CapacityKg,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	h.matching.InvalidateFor(c.Request.Context(), actor)
	writeJSON(c, http.StatusCreated, tripView(t))
}

func (h *TripHandler) Get(c *gin.Context) {
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripView(t))
}

func (h *TripHandler) ListMine(c *gin.Context) {
	list, err := h.trips.ListMine(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	views := make([]gin.H, len(list))
	for i := range list {
		views[i] = tripView(&list[i])
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": views})
}

func (h *TripHandler) Withdraw(c *gin.Context) {
	actor := types.ID(middleware.CallerUID(c))
	if err := h.trips.Withdraw(c.Request.Context(), types.ID(c.Param("id")), actor); err != nil {
		writeDomainError(c, err)
		return
	}
	h.matching.InvalidateFor(c.Request.Context(), actor)
	writeJSON(c, http.StatusOK, gin.H{"status": trip.StatusWithdrawn})
}

func tripView(t *trip.Trip) gin.H {
	return gin.H{
		"trip_id":          t.ID,
		"origin_city":      t.OriginCity,
		"destination_city": t.DestinationCity,
		"travel_date":      t.TravelDate.Format("2006-01-02"),
		"capacity_kg":      t.CapacityKg,
		"status":           t.Status,
		"created_at":       t.CreatedAt,
	}
}
