package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// FlowType names a multi-step interaction.
type FlowType string

const (
	FlowWeighing FlowType = "weighing"
)

// FlowStep is the step a flow is waiting on.
type FlowStep string

const (
	StepAwaitingWeight FlowStep = "awaiting_weight"
	StepAwaitingWaist  FlowStep = "awaiting_waist"
)

// PendingInteractionFlow is the short-lived state of one phone's active flow.
// At most one flow exists per phone; starting a new one replaces the old.
// Values collected so far ride along so partial progress survives a step.
type PendingInteractionFlow struct {
	Phone            string    `json:"phone"`
	UserID           uuid.UUID `json:"user_id"`
	Type             FlowType  `json:"type"`
	Step             FlowStep  `json:"step"`
	WeightKg         float64   `json:"weight_kg,omitempty"`
	PreviousWeightKg float64   `json:"previous_weight_kg,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ErrFlowNotFound is returned when a phone has no active flow.
var ErrFlowNotFound = errors.New("no active flow for phone")

// FlowRepository stores pending flows keyed by phone. Implementations expire
// stale flows on their own (TTL); callers never see half-dead state.
type FlowRepository interface {
	Get(ctx context.Context, phone string) (*PendingInteractionFlow, error)
	Save(ctx context.Context, flow *PendingInteractionFlow) error
	Delete(ctx context.Context, phone string) error
}
