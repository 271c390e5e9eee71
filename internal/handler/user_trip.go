package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transit/internal/domain"
	"transit/internal/middleware"
	"transit/internal/service"
)

// CreateUserTripRequest is the body of POST /user-trips.
type CreateUserTripRequest struct {
	TripID           string    `json:"tripId"`
	UserID           string    `json:"userId"`
	EntranceLocation *PointDTO `json:"entranceLocation"`
}

// CreateUserTrip handles POST /v1/user-trips
func (h *TripHandler) CreateUserTrip(c *gin.Context) {
	var req CreateUserTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		req.UserID = c.GetString(middleware.ActorKey)
	}

	userTrip, err := h.trips.JoinTrip(c.Request.Context(), service.JoinTripRequest{
		TripID:           req.TripID,
		UserID:           req.UserID,
		EntranceLocation: req.EntranceLocation.toDomain(),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusCreated, "User trip created successfully", userTripResponse(userTrip))
}

// UpdateUserTripRequest is the body of PATCH /user-trips/:id.
type UpdateUserTripRequest struct {
	Status       string     `json:"status"`
	ExitLocation *PointDTO  `json:"exitLocation"`
	EndTime      *time.Time `json:"endTime"`
}

// UpdateUserTrip handles PATCH /v1/user-trips/:id
func (h *TripHandler) UpdateUserTrip(c *gin.Context) {
	var req UpdateUserTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	exit := service.ExitTripRequest{
		UserTripID:   c.Param("id"),
		Status:       domain.UserTripStatus(req.Status),
		ExitLocation: req.ExitLocation.toDomain(),
	}
	if req.EndTime != nil {
		exit.EndTime = *req.EndTime
	}

	userTrip, err := h.trips.ExitTrip(c.Request.Context(), exit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "User trip updated successfully", userTripResponse(userTrip))
}

// GetUserTrip handles GET /v1/user-trips/:id
func (h *TripHandler) GetUserTrip(c *gin.Context) {
	userTrip, err := h.trips.GetUserTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "User trip found successfully", userTripResponse(userTrip))
}

// GetAllUserTrips handles GET /v1/user-trips
func (h *TripHandler) GetAllUserTrips(c *gin.Context) {
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

	page, err := h.trips.ListUserTrips(c.Request.Context(), domain.UserTripFilter{
		TripID:    c.Query("tripId"),
		UserID:    c.Query("userId"),
		Status:    domain.UserTripStatus(c.Query("status")),
		StartTime: startTime,
		EndTime:   endTime,
	}, pg)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	respondJSON(c, http.StatusOK, "User trips returned successfully", pageResponse(page, userTripResponse))
}
