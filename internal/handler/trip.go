package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transit/internal/domain"
	"transit/internal/middleware"
	"transit/internal/service"
)

// TripHandler handles HTTP requests for trips and user trips.
type TripHandler struct {
	trips TripService
	log   *zap.Logger
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(trips TripService, log *zap.Logger) *TripHandler {
	return &TripHandler{trips: trips, log: log.With(zap.String("handler", "trip"))}
}

// CreateTripRequest is the body of POST /trips.
type CreateTripRequest struct {
	LocationFromID string `json:"locationFromId"`
	LocationToID   string `json:"locationToId"`
	TotalCapacity  int    `json:"totalCapacity"`
	CreatedByID    string `json:"createdById"`
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.CreatedByID == "" {
		req.CreatedByID = c.GetString(middleware.ActorKey)
	}

	trip, err := h.trips.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		LocationFromID: req.LocationFromID,
		LocationToID:   req.LocationToID,
		TotalCapacity:  req.TotalCapacity,
		CreatedByID:    req.CreatedByID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusCreated, "Trip created successfully", tripResponse(trip))
}

// UpdateTripRequest is the body of PATCH /trips/:id.
type UpdateTripRequest struct {
	LocationFromID *string `json:"locationFromId"`
	LocationToID   *string `json:"locationToId"`
	TotalCapacity  *int    `json:"totalCapacity"`
}

// UpdateTrip handles PATCH /v1/trips/:id
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	var req UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	trip, err := h.trips.UpdateTrip(c.Request.Context(), c.Param("id"), service.UpdateTripRequest{
		LocationFromID: req.LocationFromID,
		LocationToID:   req.LocationToID,
		TotalCapacity:  req.TotalCapacity,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trip updated successfully", tripResponse(trip))
}

// DeleteTrip handles DELETE /v1/trips/:id
func (h *TripHandler) DeleteTrip(c *gin.Context) {
	if err := h.trips.DeleteTrip(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAll handles GET /v1/trips
func (h *TripHandler) GetAll(c *gin.Context) {
	pg, err := parsePagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	page, err := h.trips.ListTrips(c.Request.Context(), domain.TripFilter{
		Status:         domain.TripStatus(c.Query("status")),
		LocationFromID: c.Query("locationFromId"),
		LocationToID:   c.Query("locationToId"),
		CreatedByID:    c.Query("createdById"),
		StartTime:      startTime,
		EndTime:        endTime,
	}, pg)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trips returned successfully", pageResponse(page, tripResponse))
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.trips.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trip found successfully", tripResponse(trip))
}

// GetTripByReference handles GET /v1/trips/reference/:referenceId
func (h *TripHandler) GetTripByReference(c *gin.Context) {
	trip, err := h.trips.GetTripByReferenceID(c.Request.Context(), c.Param("referenceId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trip found successfully", tripResponse(trip))
}

// GetCapacity handles GET /v1/trips/:id/capacity
func (h *TripHandler) GetCapacity(c *gin.Context) {
	capacity, err := h.trips.CountAvailableCapacity(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Available capacity counted successfully", CapacityResponse{
		AvailableCapacity: capacity.AvailableCapacity,
		TotalCapacity:     capacity.TotalCapacity,
	})
}

// StartTrip handles PATCH /v1/trips/:id/start
func (h *TripHandler) StartTrip(c *gin.Context) {
	trip, err := h.trips.StartTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trip started successfully", tripResponse(trip))
}

// CompleteTrip handles PATCH /v1/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	trip, err := h.trips.CompleteTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trip completed successfully", tripResponse(trip))
}

// CancelTrip handles PATCH /v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	trip, err := h.trips.CancelTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "Trip cancelled successfully", tripResponse(trip))
}

func parsePagination(c *gin.Context) (service.Pagination, error) {
	var pg service.Pagination
	var err error
	if v := c.Query("page"); v != "" {
		if pg.Page, err = strconv.Atoi(v); err != nil || pg.Page < 0 {
			return pg, errInvalidQuery("page")
		}
	}
	if v := c.Query("size"); v != "" {
		if pg.Size, err = strconv.Atoi(v); err != nil || pg.Size <= 0 {
			return pg, errInvalidQuery("size")
		}
	}
	return pg, nil
}

func parseTimeRange(c *gin.Context) (start, end time.Time, err error) {
	if v := c.Query("startTime"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, errInvalidQuery("startTime")
		}
	}
	if v := c.Query("endTime"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, errInvalidQuery("endTime")
		}
	}
	return start, end, nil
}

type queryError string

func (e queryError) Error() string { return "invalid query parameter: " + string(e) }

func errInvalidQuery(name string) error { return queryError(name) }
