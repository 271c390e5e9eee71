package handler

import (
	"time"

	"transit/internal/domain"
)

// PointDTO is the GeoJSON-style point used on the wire.
type PointDTO struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p *PointDTO) toDomain() *domain.Point {
	if p == nil {
		return nil
	}
	return &domain.Point{Lat: p.Coordinates[0], Lng: p.Coordinates[1]}
}

func pointResponse(p *domain.Point) *PointDTO {
	if p == nil {
		return nil
	}
	return &PointDTO{Type: "Point", Coordinates: [2]float64{p.Lat, p.Lng}}
}

// LocationResponse is the HTTP representation of a location.
type LocationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Address     string    `json:"address,omitempty"`
	Coordinates *PointDTO `json:"coordinates"`
}

func locationResponse(l *domain.Location) *LocationResponse {
	if l == nil {
		return nil
	}
	return &LocationResponse{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Address:     l.Address,
		Coordinates: pointResponse(l.Coordinates),
	}
}

// UserResponse is the HTTP representation of a user.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func userResponse(u *domain.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

// TripResponse is the HTTP representation of a trip.
type TripResponse struct {
	ID             string            `json:"id"`
	ReferenceID    string            `json:"referenceId"`
	Status         string            `json:"status"`
	TotalCapacity  int               `json:"totalCapacity"`
	StartTime      *string           `json:"startTime"`
	EndTime        *string           `json:"endTime"`
	LocationFromID string            `json:"locationFromId"`
	LocationToID   *string           `json:"locationToId"`
	CreatedByID    string            `json:"createdById"`
	LocationFrom   *LocationResponse `json:"locationFrom,omitempty"`
	LocationTo     *LocationResponse `json:"locationTo,omitempty"`
	CreatedBy      *UserResponse     `json:"createdBy,omitempty"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

func tripResponse(t *domain.Trip) TripResponse {
	resp := TripResponse{
		ID:             t.ID,
		ReferenceID:    t.ReferenceID,
		Status:         string(t.Status),
		TotalCapacity:  t.TotalCapacity,
		StartTime:      formatOptionalTime(t.StartTime),
		EndTime:        formatOptionalTime(t.EndTime),
		LocationFromID: t.LocationFromID,
		CreatedByID:    t.CreatedByID,
		LocationFrom:   locationResponse(t.LocationFrom),
		LocationTo:     locationResponse(t.LocationTo),
		CreatedBy:      userResponse(t.CreatedBy),
		CreatedAt:      formatTime(t.CreatedAt),
		UpdatedAt:      formatTime(t.UpdatedAt),
	}
	if t.LocationToID != "" {
		resp.LocationToID = &t.LocationToID
	}
	return resp
}

// UserTripResponse is the HTTP representation of a user trip.
type UserTripResponse struct {
	ID               string    `json:"id"`
	TripID           string    `json:"tripId"`
	UserID           string    `json:"userId"`
	Status           string    `json:"status"`
	StartTime        string    `json:"startTime"`
	EndTime          *string   `json:"endTime"`
	EntranceLocation *PointDTO `json:"entranceLocation"`
	ExitLocation     *PointDTO `json:"exitLocation"`
	CreatedAt        string    `json:"createdAt"`
	UpdatedAt        string    `json:"updatedAt"`
}

func userTripResponse(ut *domain.UserTrip) UserTripResponse {
	return UserTripResponse{
		ID:               ut.ID,
		TripID:           ut.TripID,
		UserID:           ut.UserID,
		Status:           string(ut.Status),
		StartTime:        formatTime(ut.StartTime),
		EndTime:          formatOptionalTime(ut.EndTime),
		EntranceLocation: pointResponse(ut.EntranceLocation),
		ExitLocation:     pointResponse(ut.ExitLocation),
		CreatedAt:        formatTime(ut.CreatedAt),
		UpdatedAt:        formatTime(ut.UpdatedAt),
	}
}

// CapacityResponse is the HTTP representation of a trip's seats.
type CapacityResponse struct {
	AvailableCapacity int `json:"availableCapacity"`
	TotalCapacity     int `json:"totalCapacity"`
}

// PageResponse is the HTTP representation of a paginated listing.
type PageResponse[T any] struct {
	Rows       []T `json:"rows"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	Size       int `json:"size"`
}

func pageResponse[S, T any](p *domain.Page[S], convert func(S) T) PageResponse[T] {
	rows := make([]T, 0, len(p.Rows))
	for _, r := range p.Rows {
		rows = append(rows, convert(r))
	}
	return PageResponse[T]{
		Rows:       rows,
		TotalCount: p.TotalCount,
		TotalPages: p.TotalPages(),
		Page:       p.Page,
		Size:       p.Size,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := formatTime(t)
	return &s
}
