package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

// DeliveryLogRepository is the append-only message log. Besides auditing, it
// is the source of truth for reminder cooldowns: "was template X sent to user
// Y since T" is answered here.
type DeliveryLogRepository interface {
	Insert(ctx context.Context, record *domain.DeliveryRecord) error
	CountRecentByTemplate(ctx context.Context, userID uuid.UUID, templateKey string, since time.Time) (int, error)
	RecentForPhone(ctx context.Context, phone string, limit int) ([]domain.DeliveryRecord, error)
}

// WellnessRepository reads and writes the user-facing wellness data this
// gateway acts on (profiles, water, weight, mood, food analyses).
type WellnessRepository interface {
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetTodayWaterML(ctx context.Context, userID uuid.UUID) (int, error)
	// RecordWater logs an intake and returns the new daily total.
	RecordWater(ctx context.Context, userID uuid.UUID, amountML int) (int, error)
	GetLastWeight(ctx context.Context, userID uuid.UUID) (*domain.WeightMeasurement, error)
	RecordWeight(ctx context.Context, userID uuid.UUID, weightKg float64) error
	// RecordWaistCircumference attaches a waist measurement to the most recent weigh-in.
	RecordWaistCircumference(ctx context.Context, userID uuid.UUID, waistCm float64) error
	RecordMood(ctx context.Context, userID uuid.UUID, moodScore int) error
	GetPendingAnalysis(ctx context.Context, userID uuid.UUID) (*domain.PendingAnalysis, error)
	ConfirmAnalysis(ctx context.Context, analysisID uuid.UUID) error
	// GetUsersDueForReminder returns users eligible for job right now: they
	// match the job's own condition (water below goal, weigh-in overdue) and
	// have no sent record of the job's template since now-cooldown.
	GetUsersDueForReminder(ctx context.Context, job domain.ReminderJob, cooldown time.Duration) ([]domain.ReminderCandidate, error)
}
