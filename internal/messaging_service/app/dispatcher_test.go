package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockAdapter struct {
	mock.Mock
	name string
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Send(ctx context.Context, msg domain.OutboundMessage) (*domain.SendResult, error) {
	args := m.Called(ctx, msg)
	var result *domain.SendResult
	if args.Get(0) != nil {
		result = args.Get(0).(*domain.SendResult)
	}
	return result, args.Error(1)
}

func (m *MockAdapter) ParseWebhook(raw []byte) ([]domain.InboundEvent, error) {
	args := m.Called(raw)
	var events []domain.InboundEvent
	if args.Get(0) != nil {
		events = args.Get(0).([]domain.InboundEvent)
	}
	return events, args.Error(1)
}

type MockDeliveryLogRepository struct {
	mock.Mock
}

func (m *MockDeliveryLogRepository) Insert(ctx context.Context, record *domain.DeliveryRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDeliveryLogRepository) CountRecentByTemplate(ctx context.Context, userID uuid.UUID, templateKey string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, templateKey, since)
	return args.Int(0), args.Error(1)
}

func (m *MockDeliveryLogRepository) RecentForPhone(ctx context.Context, phone string, limit int) ([]domain.DeliveryRecord, error) {
	args := m.Called(ctx, phone, limit)
	var records []domain.DeliveryRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]domain.DeliveryRecord)
	}
	return records, args.Error(1)
}

func textMessage() domain.OutboundMessage {
	return domain.OutboundMessage{
		RecipientPhone: "5511999998888",
		Type:           domain.MessageTypeText,
		Text:           "olá",
		TemplateKey:    "water_reminder",
	}
}

func newTestDispatcher(t *testing.T, primary, fallback *MockAdapter, repo *MockDeliveryLogRepository) *Dispatcher {
	t.Helper()
	adapters := map[string]provider.Adapter{primary.name: primary}
	priority := []string{primary.name}
	if fallback != nil {
		adapters[fallback.name] = fallback
		priority = append(priority, fallback.name)
	}
	d, err := NewDispatcher(adapters, priority, repo, discardLogger())
	require.NoError(t, err)
	return d
}

func TestDispatcherSuccessWritesOneSentRecord(t *testing.T) {
	primary := &MockAdapter{name: "whapi"}
	repo := &MockDeliveryLogRepository{}
	d := newTestDispatcher(t, primary, nil, repo)

	primary.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: true, ProviderName: "whapi", ProviderMessageID: "m1"}, nil).Once()

	var inserted *domain.DeliveryRecord
	repo.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*domain.DeliveryRecord) }).
		Return(nil).Once()

	result, err := d.SendMessage(context.Background(), textMessage())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "m1", result.ProviderMessageID)

	repo.AssertNumberOfCalls(t, "Insert", 1)
	require.NotNil(t, inserted)
	assert.Equal(t, domain.DeliveryStatusSent, inserted.Status)
	assert.Equal(t, "whapi", inserted.ProviderName.String)
	assert.Equal(t, "m1", inserted.ProviderMessageID.String)
	assert.Equal(t, "water_reminder", inserted.TemplateKey.String)
	assert.Equal(t, domain.DirectionOutbound, inserted.Direction)
	assert.Equal(t, "olá", inserted.ContentPreview)
}

// Transient primary failure falls back exactly once; the single record names
// the provider that made the final, successful attempt.
func TestDispatcherFallbackOnTransientError(t *testing.T) {
	primary := &MockAdapter{name: "whapi"}
	fallback := &MockAdapter{name: "evolution"}
	repo := &MockDeliveryLogRepository{}
	d := newTestDispatcher(t, primary, fallback, repo)

	perr := &domain.ProviderError{ProviderName: "whapi", Kind: domain.ErrKindTimeout, Message: "deadline"}
	primary.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: false, ProviderName: "whapi", ErrorMessage: "deadline"}, perr).Once()
	fallback.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: true, ProviderName: "evolution", ProviderMessageID: "e1"}, nil).Once()

	var inserted *domain.DeliveryRecord
	repo.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*domain.DeliveryRecord) }).
		Return(nil).Once()

	result, err := d.SendMessage(context.Background(), textMessage())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "evolution", result.ProviderName)

	repo.AssertNumberOfCalls(t, "Insert", 1)
	require.NotNil(t, inserted)
	assert.Equal(t, domain.DeliveryStatusSent, inserted.Status)
	assert.Equal(t, "evolution", inserted.ProviderName.String)

	primary.AssertNumberOfCalls(t, "Send", 1)
	fallback.AssertNumberOfCalls(t, "Send", 1)
}

// Permanent failures must not trigger the fallback.
func TestDispatcherNoFallbackOnPermanentError(t *testing.T) {
	primary := &MockAdapter{name: "whapi"}
	fallback := &MockAdapter{name: "evolution"}
	repo := &MockDeliveryLogRepository{}
	d := newTestDispatcher(t, primary, fallback, repo)

	perr := &domain.ProviderError{ProviderName: "whapi", Kind: domain.ErrKindValidation, Message: "too many buttons"}
	primary.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: false, ProviderName: "whapi", ErrorMessage: "too many buttons"}, perr).Once()

	var inserted *domain.DeliveryRecord
	repo.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*domain.DeliveryRecord) }).
		Return(nil).Once()

	_, err := d.SendMessage(context.Background(), textMessage())

	require.Error(t, err)
	fallback.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	repo.AssertNumberOfCalls(t, "Insert", 1)
	require.NotNil(t, inserted)
	assert.Equal(t, domain.DeliveryStatusFailed, inserted.Status)
	assert.Contains(t, inserted.ErrorMessage.String, "too many buttons")
}

// Both attempts failing still produces exactly one record, carrying the
// fallback's error.
func TestDispatcherBothProvidersFail(t *testing.T) {
	primary := &MockAdapter{name: "whapi"}
	fallback := &MockAdapter{name: "evolution"}
	repo := &MockDeliveryLogRepository{}
	d := newTestDispatcher(t, primary, fallback, repo)

	primaryErr := &domain.ProviderError{ProviderName: "whapi", Kind: domain.ErrKindNetwork, Message: "conn refused"}
	fallbackErr := &domain.ProviderError{ProviderName: "evolution", Kind: domain.ErrKindAuth, Message: "invalid apikey"}
	primary.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: false, ProviderName: "whapi", ErrorMessage: "conn refused"}, primaryErr).Once()
	fallback.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: false, ProviderName: "evolution", ErrorMessage: "invalid apikey"}, fallbackErr).Once()

	var inserted *domain.DeliveryRecord
	repo.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*domain.DeliveryRecord) }).
		Return(nil).Once()

	_, err := d.SendMessage(context.Background(), textMessage())

	require.Error(t, err)
	perr, ok := domain.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindAuth, perr.Kind)

	repo.AssertNumberOfCalls(t, "Insert", 1)
	require.NotNil(t, inserted)
	assert.Equal(t, domain.DeliveryStatusFailed, inserted.Status)
	assert.Equal(t, "evolution", inserted.ProviderName.String)
}

// A phone that cannot be normalized fails before any provider attempt and
// before any record is written.
func TestDispatcherInvalidPhoneNoAttemptNoRecord(t *testing.T) {
	primary := &MockAdapter{name: "whapi"}
	repo := &MockDeliveryLogRepository{}
	d := newTestDispatcher(t, primary, nil, repo)

	msg := textMessage()
	msg.RecipientPhone = "not-a-phone"
	_, err := d.SendMessage(context.Background(), msg)

	require.ErrorIs(t, err, domain.ErrInvalidPhone)
	primary.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

// A record insert failure after a successful send surfaces as an error but
// reports the send as done.
func TestDispatcherInsertFailureAfterSuccessfulSend(t *testing.T) {
	primary := &MockAdapter{name: "whapi"}
	repo := &MockDeliveryLogRepository{}
	d := newTestDispatcher(t, primary, nil, repo)

	primary.On("Send", mock.Anything, mock.Anything).
		Return(&domain.SendResult{Success: true, ProviderName: "whapi", ProviderMessageID: "m1"}, nil).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	result, err := d.SendMessage(context.Background(), textMessage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery record insert failed")
	require.NotNil(t, result)
	assert.True(t, result.Success)
}

func TestNewDispatcherValidatesPriorityList(t *testing.T) {
	repo := &MockDeliveryLogRepository{}

	_, err := NewDispatcher(map[string]provider.Adapter{}, nil, repo, discardLogger())
	assert.Error(t, err)

	_, err = NewDispatcher(map[string]provider.Adapter{}, []string{"ghost"}, repo, discardLogger())
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}
