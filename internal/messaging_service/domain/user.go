package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the slice of the wellness profile this gateway needs.
type User struct {
	ID          uuid.UUID
	FullName    string
	Phone       string
	WaterGoalML int
}

// FirstName returns the user's first name, falling back to a friendly
// placeholder when the profile has no name.
func (u *User) FirstName() string {
	name := strings.TrimSpace(u.FullName)
	if name == "" {
		return "Amigo"
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// WeightMeasurement is one weigh-in, optionally with waist circumference.
type WeightMeasurement struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	WeightKg   float64
	WaistCm    float64 // 0 when not recorded
	MeasuredAt time.Time
}

// PendingAnalysis is a food photo analysis awaiting user confirmation.
type PendingAnalysis struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Foods        string
	Calories     int
	ProteinGrams float64
	CarbsGrams   float64
	FatGrams     float64
	HealthScore  int
	CreatedAt    time.Time
}
