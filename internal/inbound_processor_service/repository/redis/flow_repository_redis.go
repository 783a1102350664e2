package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maxnutrition/whatsapp-gateway/internal/inbound_processor_service/domain"
)

const flowKeyPrefix = "whatsapp:flow:"

// RedisFlowRepository keeps pending interaction flows as JSON values with a
// TTL, so abandoned flows evaporate without a sweeper.
type RedisFlowRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisFlowRepository(client *redis.Client, ttl time.Duration, logger *slog.Logger) domain.FlowRepository {
	return &RedisFlowRepository{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "flow_repository_redis"),
	}
}

func flowKey(phone string) string { return flowKeyPrefix + phone }

func (r *RedisFlowRepository) Get(ctx context.Context, phone string) (*domain.PendingInteractionFlow, error) {
	raw, err := r.client.Get(ctx, flowKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("fetching flow for %s: %w", phone, err)
	}

	var flow domain.PendingInteractionFlow
	if err := json.Unmarshal(raw, &flow); err != nil {
		// A corrupt value blocks the phone forever; drop it instead.
		r.logger.WarnContext(ctx, "Discarding unreadable flow state", "phone", phone, "error", err)
		_ = r.client.Del(ctx, flowKey(phone)).Err()
		return nil, domain.ErrFlowNotFound
	}
	return &flow, nil
}

func (r *RedisFlowRepository) Save(ctx context.Context, flow *domain.PendingInteractionFlow) error {
	flow.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshaling flow for %s: %w", flow.Phone, err)
	}
	if err := r.client.Set(ctx, flowKey(flow.Phone), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving flow for %s: %w", flow.Phone, err)
	}
	return nil
}

func (r *RedisFlowRepository) Delete(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, flowKey(phone)).Err(); err != nil {
		return fmt.Errorf("deleting flow for %s: %w", phone, err)
	}
	return nil
}
