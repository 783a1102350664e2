package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository"
)

type PgWellnessRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgWellnessRepository(db DBTX, logger *slog.Logger) repository.WellnessRepository {
	return &PgWellnessRepository{db: db, logger: logger.With("component", "wellness_repository_pg")}
}

func (r *PgWellnessRepository) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `SELECT id, full_name, phone, water_goal_ml FROM profiles WHERE phone = $1`
	return r.scanUser(ctx, query, phone)
}

func (r *PgWellnessRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, full_name, phone, water_goal_ml FROM profiles WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

func (r *PgWellnessRepository) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.FullName, &u.Phone, &u.WaterGoalML)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to fetch user", "error", err)
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return &u, nil
}

func (r *PgWellnessRepository) GetTodayWaterML(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(SUM(amount_ml), 0) FROM water_logs
		WHERE user_id = $1 AND logged_at >= date_trunc('day', now())`

	var total int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing today's water: %w", err)
	}
	return total, nil
}

func (r *PgWellnessRepository) RecordWater(ctx context.Context, userID uuid.UUID, amountML int) (int, error) {
	insert := `INSERT INTO water_logs (id, user_id, amount_ml, logged_at) VALUES ($1, $2, $3, now())`
	if _, err := r.db.Exec(ctx, insert, uuid.New(), userID, amountML); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record water intake", "user_id", userID, "amount_ml", amountML, "error", err)
		return 0, fmt.Errorf("recording water intake: %w", err)
	}
	return r.GetTodayWaterML(ctx, userID)
}

func (r *PgWellnessRepository) GetLastWeight(ctx context.Context, userID uuid.UUID) (*domain.WeightMeasurement, error) {
	query := `SELECT id, user_id, weight_kg, COALESCE(waist_cm, 0), measured_at FROM weight_measurements
		WHERE user_id = $1 ORDER BY measured_at DESC LIMIT 1`

	var m domain.WeightMeasurement
	err := r.db.QueryRow(ctx, query, userID).Scan(&m.ID, &m.UserID, &m.WeightKg, &m.WaistCm, &m.MeasuredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoMeasurements
		}
		return nil, fmt.Errorf("fetching last weight: %w", err)
	}
	return &m, nil
}

func (r *PgWellnessRepository) RecordWeight(ctx context.Context, userID uuid.UUID, weightKg float64) error {
	insert := `INSERT INTO weight_measurements (id, user_id, weight_kg, measured_at) VALUES ($1, $2, $3, now())`
	if _, err := r.db.Exec(ctx, insert, uuid.New(), userID, weightKg); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record weight", "user_id", userID, "error", err)
		return fmt.Errorf("recording weight: %w", err)
	}
	return nil
}

func (r *PgWellnessRepository) RecordWaistCircumference(ctx context.Context, userID uuid.UUID, waistCm float64) error {
	update := `UPDATE weight_measurements SET waist_cm = $2
		WHERE id = (SELECT id FROM weight_measurements WHERE user_id = $1 ORDER BY measured_at DESC LIMIT 1)`

	tag, err := r.db.Exec(ctx, update, userID, waistCm)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to record waist circumference", "user_id", userID, "error", err)
		return fmt.Errorf("recording waist circumference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoMeasurements
	}
	return nil
}

func (r *PgWellnessRepository) RecordMood(ctx context.Context, userID uuid.UUID, moodScore int) error {
	insert := `INSERT INTO mood_logs (id, user_id, mood_score, logged_at) VALUES ($1, $2, $3, now())`
	if _, err := r.db.Exec(ctx, insert, uuid.New(), userID, moodScore); err != nil {
		return fmt.Errorf("recording mood: %w", err)
	}
	return nil
}

func (r *PgWellnessRepository) GetPendingAnalysis(ctx context.Context, userID uuid.UUID) (*domain.PendingAnalysis, error) {
	query := `SELECT id, user_id, foods, calories, protein_g, carbs_g, fat_g, health_score, created_at
		FROM food_analyses
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`

	var a domain.PendingAnalysis
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&a.ID, &a.UserID, &a.Foods, &a.Calories, &a.ProteinGrams, &a.CarbsGrams, &a.FatGrams, &a.HealthScore, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoPendingAnalysis
		}
		return nil, fmt.Errorf("fetching pending analysis: %w", err)
	}
	return &a, nil
}

func (r *PgWellnessRepository) ConfirmAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	update := `UPDATE food_analyses SET status = 'confirmed', confirmed_at = now() WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, update, analysisID)
	if err != nil {
		return fmt.Errorf("confirming analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoPendingAnalysis
	}
	return nil
}

// GetUsersDueForReminder answers eligibility in one query per job so the
// cooldown check and the job condition cannot drift apart: the NOT EXISTS
// clause over the delivery log is the idempotency guard.
func (r *PgWellnessRepository) GetUsersDueForReminder(ctx context.Context, job domain.ReminderJob, cooldown time.Duration) ([]domain.ReminderCandidate, error) {
	templateKey, query, err := dueQueryFor(job)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-cooldown)

	rows, err := r.db.Query(ctx, query, templateKey, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query users due for reminder", "job", job, "error", err)
		return nil, fmt.Errorf("querying users due for %s reminder: %w", job, err)
	}
	defer rows.Close()

	var candidates []domain.ReminderCandidate
	for rows.Next() {
		var c domain.ReminderCandidate
		if err := rows.Scan(
			&c.User.ID, &c.User.FullName, &c.User.Phone, &c.User.WaterGoalML,
			&c.CurrentWaterML, &c.LastWeightKg, &c.DaysSinceWeighing, &c.CaloriesToday,
		); err != nil {
			return nil, fmt.Errorf("scanning reminder candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reminder candidates: %w", err)
	}
	return candidates, nil
}

const candidateColumns = `p.id, p.full_name, p.phone, p.water_goal_ml,
	COALESCE(w.total_ml, 0),
	COALESCE(lw.weight_kg, 0),
	COALESCE(EXTRACT(DAY FROM now() - lw.measured_at)::int, -1),
	COALESCE(fa.calories_today, 0)`

const candidateJoins = `
	LEFT JOIN (
		SELECT user_id, SUM(amount_ml) AS total_ml FROM water_logs
		WHERE logged_at >= date_trunc('day', now()) GROUP BY user_id
	) w ON w.user_id = p.id
	LEFT JOIN LATERAL (
		SELECT weight_kg, measured_at FROM weight_measurements
		WHERE user_id = p.id ORDER BY measured_at DESC LIMIT 1
	) lw ON true
	LEFT JOIN (
		SELECT user_id, SUM(calories) AS calories_today FROM food_analyses
		WHERE status = 'confirmed' AND created_at >= date_trunc('day', now()) GROUP BY user_id
	) fa ON fa.user_id = p.id`

const cooldownGuard = `NOT EXISTS (
		SELECT 1 FROM whatsapp_delivery_log d
		WHERE d.user_id = p.id AND d.template_key = $1 AND d.direction = 'outbound'
		  AND d.status = 'sent' AND d.created_at >= $2
	)`

func dueQueryFor(job domain.ReminderJob) (templateKey, query string, err error) {
	base := `SELECT ` + candidateColumns + ` FROM profiles p` + candidateJoins + `
	WHERE p.phone IS NOT NULL AND p.phone <> '' AND ` + cooldownGuard

	switch job {
	case domain.ReminderJobWater:
		return "water_reminder", base + ` AND COALESCE(w.total_ml, 0) < p.water_goal_ml`, nil
	case domain.ReminderJobWeighing:
		return "weighing_reminder", base + ` AND (lw.measured_at IS NULL OR lw.measured_at < now() - interval '7 days')`, nil
	case domain.ReminderJobGreeting:
		return "good_morning", base, nil
	case domain.ReminderJobCheckin:
		return "daily_checkin", base, nil
	case domain.ReminderJobSummary:
		return "daily_summary", base, nil
	default:
		return "", "", fmt.Errorf("unknown reminder job %q", job)
	}
}
