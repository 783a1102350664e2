package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository"
)

type PgDeliveryLogRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgDeliveryLogRepository(db DBTX, logger *slog.Logger) repository.DeliveryLogRepository {
	return &PgDeliveryLogRepository{db: db, logger: logger.With("component", "delivery_log_repository_pg")}
}

func (r *PgDeliveryLogRepository) Insert(ctx context.Context, record *domain.DeliveryRecord) error {
	query := `INSERT INTO whatsapp_delivery_log
		(id, user_id, phone, direction, message_type, template_key, provider_name, provider_message_id, status, content_preview, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Phone,
		record.Direction,
		record.MessageType,
		record.TemplateKey,
		record.ProviderName,
		record.ProviderMessageID,
		record.Status,
		record.ContentPreview,
		record.ErrorMessage,
		record.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert delivery record", "record_id", record.ID, "error", err)
		return fmt.Errorf("inserting delivery record: %w", err)
	}
	return nil
}

func (r *PgDeliveryLogRepository) CountRecentByTemplate(ctx context.Context, userID uuid.UUID, templateKey string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM whatsapp_delivery_log
		WHERE user_id = $1 AND template_key = $2 AND direction = 'outbound' AND status = 'sent' AND created_at >= $3`

	var count int
	if err := r.db.QueryRow(ctx, query, userID, templateKey, since).Scan(&count); err != nil {
		r.logger.ErrorContext(ctx, "Failed to count recent deliveries", "user_id", userID, "template_key", templateKey, "error", err)
		return 0, fmt.Errorf("counting recent deliveries: %w", err)
	}
	return count, nil
}

func (r *PgDeliveryLogRepository) RecentForPhone(ctx context.Context, phone string, limit int) ([]domain.DeliveryRecord, error) {
	query := `SELECT id, user_id, phone, direction, message_type, template_key, provider_name, provider_message_id, status, content_preview, error_message, created_at
		FROM whatsapp_delivery_log
		WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent deliveries for phone: %w", err)
	}
	defer rows.Close()

	var records []domain.DeliveryRecord
	for rows.Next() {
		var rec domain.DeliveryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Phone,
			&rec.Direction,
			&rec.MessageType,
			&rec.TemplateKey,
			&rec.ProviderName,
			&rec.ProviderMessageID,
			&rec.Status,
			&rec.ContentPreview,
			&rec.ErrorMessage,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning delivery record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery records: %w", err)
	}
	return records, nil
}
