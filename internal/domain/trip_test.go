package domain

import "testing"

func TestTripStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   TripStatus
		valid    bool
		terminal bool
	}{
		{TripStatusPending, true, false},
		{TripStatusInProgress, true, false},
		{TripStatusCompleted, true, true},
		{TripStatusCancelled, true, true},
		{"PAUSED", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.valid {
			t.Errorf("%q.Valid() = %v, want %v", tt.status, got, tt.valid)
		}
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%q.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestPageTotalPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total, size, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{5, 0, 0},
	}

	for _, tt := range tests {
		p := Page[int]{TotalCount: tt.total, Size: tt.size}
		if got := p.TotalPages(); got != tt.want {
			t.Errorf("TotalPages(total=%d, size=%d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestPointValid(t *testing.T) {
	t.Parallel()

	valid := []Point{{0, 0}, {90, 180}, {-90, -180}, {52.52, 13.405}}
	invalid := []Point{{90.1, 0}, {0, -180.5}, {-91, 10}}

	for _, p := range valid {
		if !p.Valid() {
			t.Errorf("%+v should be valid", p)
		}
	}
	for _, p := range invalid {
		if p.Valid() {
			t.Errorf("%+v should be invalid", p)
		}
	}
}
