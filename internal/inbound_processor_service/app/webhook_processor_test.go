package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maxnutrition/whatsapp-gateway/internal/inbound_processor_service/domain"
	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/template"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockWellnessRepository struct {
	mock.Mock
}

func (m *MockWellnessRepository) GetUserByPhone(ctx context.Context, phone string) (*msgdomain.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgdomain.User), args.Error(1)
}

func (m *MockWellnessRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*msgdomain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgdomain.User), args.Error(1)
}

func (m *MockWellnessRepository) GetTodayWaterML(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockWellnessRepository) RecordWater(ctx context.Context, userID uuid.UUID, amountML int) (int, error) {
	args := m.Called(ctx, userID, amountML)
	return args.Int(0), args.Error(1)
}

func (m *MockWellnessRepository) GetLastWeight(ctx context.Context, userID uuid.UUID) (*msgdomain.WeightMeasurement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgdomain.WeightMeasurement), args.Error(1)
}

func (m *MockWellnessRepository) RecordWeight(ctx context.Context, userID uuid.UUID, weightKg float64) error {
	return m.Called(ctx, userID, weightKg).Error(0)
}

func (m *MockWellnessRepository) RecordWaistCircumference(ctx context.Context, userID uuid.UUID, waistCm float64) error {
	return m.Called(ctx, userID, waistCm).Error(0)
}

func (m *MockWellnessRepository) RecordMood(ctx context.Context, userID uuid.UUID, moodScore int) error {
	return m.Called(ctx, userID, moodScore).Error(0)
}

func (m *MockWellnessRepository) GetPendingAnalysis(ctx context.Context, userID uuid.UUID) (*msgdomain.PendingAnalysis, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgdomain.PendingAnalysis), args.Error(1)
}

func (m *MockWellnessRepository) ConfirmAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	return m.Called(ctx, analysisID).Error(0)
}

func (m *MockWellnessRepository) GetUsersDueForReminder(ctx context.Context, job msgdomain.ReminderJob, cooldown time.Duration) ([]msgdomain.ReminderCandidate, error) {
	args := m.Called(ctx, job, cooldown)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]msgdomain.ReminderCandidate), args.Error(1)
}

// memoryFlowStore is an in-memory FlowRepository, safe for concurrent use.
type memoryFlowStore struct {
	mu    sync.Mutex
	flows map[string]domain.PendingInteractionFlow
}

func newMemoryFlowStore() *memoryFlowStore {
	return &memoryFlowStore{flows: make(map[string]domain.PendingInteractionFlow)}
}

func (s *memoryFlowStore) Get(_ context.Context, phone string) (*domain.PendingInteractionFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[phone]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	copied := flow
	return &copied, nil
}

func (s *memoryFlowStore) Save(_ context.Context, flow *domain.PendingInteractionFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.Phone] = *flow
	return nil
}

func (s *memoryFlowStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, phone)
	return nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []msgdomain.OutboundMessage
}

func (d *recordingDispatcher) SendMessage(_ context.Context, msg msgdomain.OutboundMessage) (*msgdomain.SendResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return &msgdomain.SendResult{Success: true, ProviderName: "whapi"}, nil
}

func (d *recordingDispatcher) messages() []msgdomain.OutboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]msgdomain.OutboundMessage(nil), d.sent...)
}

func (d *recordingDispatcher) templateKeys() []string {
	var keys []string
	for _, msg := range d.messages() {
		keys = append(keys, msg.TemplateKey)
	}
	return keys
}

// stubAdapter returns canned events from ParseWebhook.
type stubAdapter struct {
	events []msgdomain.InboundEvent
	err    error
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Send(context.Context, msgdomain.OutboundMessage) (*msgdomain.SendResult, error) {
	return nil, errors.New("not used")
}

func (a *stubAdapter) ParseWebhook([]byte) ([]msgdomain.InboundEvent, error) {
	return a.events, a.err
}

const testPhone = "5511999998888"

func testUser() *msgdomain.User {
	return &msgdomain.User{
		ID:          uuid.New(),
		FullName:    "Maria Silva",
		Phone:       testPhone,
		WaterGoalML: 2500,
	}
}

type processorFixture struct {
	processor  *WebhookProcessor
	wellness   *MockWellnessRepository
	flows      *memoryFlowStore
	dispatcher *recordingDispatcher
}

func newFixture(adapters map[string]provider.Adapter) *processorFixture {
	wellness := &MockWellnessRepository{}
	flows := newMemoryFlowStore()
	dispatcher := &recordingDispatcher{}
	return &processorFixture{
		processor:  NewWebhookProcessor(adapters, flows, wellness, dispatcher, discardLogger()),
		wellness:   wellness,
		flows:      flows,
		dispatcher: dispatcher,
	}
}

func buttonEvent(replyID string) msgdomain.InboundEvent {
	return msgdomain.InboundEvent{
		ProviderName: "whapi",
		Type:         msgdomain.InboundEventButton,
		Phone:        testPhone,
		ReplyID:      replyID,
	}
}

func textEvent(text string) msgdomain.InboundEvent {
	return msgdomain.InboundEvent{
		ProviderName: "whapi",
		Type:         msgdomain.InboundEventText,
		Phone:        testPhone,
		Text:         text,
	}
}

// Tapping "Pesar agora" and then answering with weight and waist walks the
// full weighing flow: start, record weight, record waist, clean up.
func TestWeighingFlowEndToEnd(t *testing.T) {
	f := newFixture(nil)
	user := testUser()
	ctx := context.Background()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("GetLastWeight", mock.Anything, user.ID).
		Return(&msgdomain.WeightMeasurement{UserID: user.ID, WeightKg: 77.0}, nil)
	f.wellness.On("RecordWeight", mock.Anything, user.ID, 75.5).Return(nil)
	f.wellness.On("RecordWaistCircumference", mock.Anything, user.ID, 85.0).Return(nil)

	f.processor.handleEvent(ctx, buttonEvent(template.BtnWeighNow))

	flow, err := f.flows.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitingWeight, flow.Step)
	assert.InDelta(t, 77.0, flow.PreviousWeightKg, 0.001)

	f.processor.handleEvent(ctx, textEvent("75,5"))

	flow, err = f.flows.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitingWaist, flow.Step)
	assert.InDelta(t, 75.5, flow.WeightKg, 0.001)

	f.processor.handleEvent(ctx, textEvent("85"))

	_, err = f.flows.Get(ctx, testPhone)
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	assert.Equal(t, []string{
		template.KeyWeighingPromptWeight,
		template.KeyWeighingPromptWaist,
		template.KeyWeighingComplete,
	}, f.dispatcher.templateKeys())

	final := f.dispatcher.messages()[2]
	require.NotNil(t, final.Interactive)
	assert.Contains(t, final.Interactive.Body, "75.5")
	assert.Contains(t, final.Interactive.Body, "perdeu *1.5 kg*")
	f.wellness.AssertExpectations(t)
}

// Two simultaneous taps on the same button from one phone serialize on the
// per-phone lock and leave one coherent flow behind.
func TestConcurrentWeighNowTaps(t *testing.T) {
	f := newFixture(nil)
	user := testUser()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("GetLastWeight", mock.Anything, user.ID).
		Return(nil, msgdomain.ErrNoMeasurements)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.processor.handleEvent(context.Background(), buttonEvent(template.BtnWeighNow))
		}()
	}
	wg.Wait()

	flow, err := f.flows.Get(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitingWeight, flow.Step)
	assert.Len(t, f.dispatcher.messages(), 2)
}

// Input outside the plausible range re-prompts and leaves the flow where it was.
func TestWeighingFlowRejectsImplausibleWeight(t *testing.T) {
	f := newFixture(nil)
	user := testUser()
	ctx := context.Background()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	require.NoError(t, f.flows.Save(ctx, &domain.PendingInteractionFlow{
		Phone:  testPhone,
		UserID: user.ID,
		Type:   domain.FlowWeighing,
		Step:   domain.StepAwaitingWeight,
	}))

	for _, input := range []string{"abc", "500", "12"} {
		f.processor.handleEvent(ctx, textEvent(input))
	}

	flow, err := f.flows.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitingWeight, flow.Step)
	f.wellness.AssertNotCalled(t, "RecordWeight", mock.Anything, mock.Anything, mock.Anything)

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 3)
	for _, msg := range msgs {
		assert.Equal(t, msgdomain.MessageTypeText, msg.Type)
		assert.Contains(t, msg.Text, "peso válido")
	}
}

func TestUnknownPhoneGetsNotFoundReply(t *testing.T) {
	f := newFixture(nil)

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).
		Return(nil, msgdomain.ErrUserNotFound)

	f.processor.handleEvent(context.Background(), textEvent("oi"))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, template.KeyUserNotFound, msgs[0].TemplateKey)
	assert.Equal(t, testPhone, msgs[0].RecipientPhone)
	assert.False(t, msgs[0].UserID.Valid)
}

func TestWaterButtonRecordsAndConfirms(t *testing.T) {
	f := newFixture(nil)
	user := testUser()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("RecordWater", mock.Anything, user.ID, 250).Return(1250, nil).Once()

	f.processor.handleEvent(context.Background(), buttonEvent(template.BtnWater250))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, template.KeyWaterConfirmation, msgs[0].TemplateKey)
	require.NotNil(t, msgs[0].Interactive)
	assert.Contains(t, msgs[0].Interactive.Body, "250ml")
	assert.Contains(t, msgs[0].Interactive.Body, "1250ml")
	f.wellness.AssertExpectations(t)
}

func TestWaterTextCommand(t *testing.T) {
	f := newFixture(nil)
	user := testUser()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("RecordWater", mock.Anything, user.ID, 300).Return(300, nil).Once()

	f.processor.handleEvent(context.Background(), textEvent("água 300ml"))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, template.KeyWaterConfirmation, msgs[0].TemplateKey)
	f.wellness.AssertExpectations(t)
}

// A bare plausible number with no flow pending logs a weight directly.
func TestQuickWeightLog(t *testing.T) {
	f := newFixture(nil)
	user := testUser()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("GetLastWeight", mock.Anything, user.ID).
		Return(&msgdomain.WeightMeasurement{UserID: user.ID, WeightKg: 84.0}, nil).Once()
	f.wellness.On("RecordWeight", mock.Anything, user.ID, 82.5).Return(nil).Once()

	f.processor.handleEvent(context.Background(), textEvent("82,5"))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, template.KeyWeighingComplete, msgs[0].TemplateKey)
	f.wellness.AssertExpectations(t)
}

func TestMoodButtonRecordsScore(t *testing.T) {
	f := newFixture(nil)
	user := testUser()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("RecordMood", mock.Anything, user.ID, 5).Return(nil).Once()

	f.processor.handleEvent(context.Background(), buttonEvent(template.BtnFeelingGreat))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, template.KeyCheckinResponse, msgs[0].TemplateKey)
	f.wellness.AssertExpectations(t)
}

func TestConfirmAnalysisButton(t *testing.T) {
	f := newFixture(nil)
	user := testUser()
	analysisID := uuid.New()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("GetPendingAnalysis", mock.Anything, user.ID).
		Return(&msgdomain.PendingAnalysis{ID: analysisID, UserID: user.ID, Calories: 520}, nil).Once()
	f.wellness.On("ConfirmAnalysis", mock.Anything, analysisID).Return(nil).Once()

	f.processor.handleEvent(context.Background(), buttonEvent(template.BtnSofiaConfirm))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, template.KeyFoodConfirmed, msgs[0].TemplateKey)
	f.wellness.AssertExpectations(t)
}

func TestUnknownTextPointsToMenu(t *testing.T) {
	f := newFixture(nil)
	user := testUser()

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)

	f.processor.handleEvent(context.Background(), textEvent("xyzzy"))

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msgdomain.MessageTypeText, msgs[0].Type)
	assert.Contains(t, msgs[0].Text, "menu")
}

func TestProcessDropsUnknownProvider(t *testing.T) {
	f := newFixture(map[string]provider.Adapter{"whapi": &stubAdapter{}})

	f.processor.Process(context.Background(), RawWebhookEvent{
		ProviderName: "telegram",
		Payload:      []byte(`{}`),
	})

	assert.Empty(t, f.dispatcher.messages())
	f.wellness.AssertNotCalled(t, "GetUserByPhone", mock.Anything, mock.Anything)
}

func TestProcessDropsUnparseablePayload(t *testing.T) {
	f := newFixture(map[string]provider.Adapter{
		"whapi": &stubAdapter{err: errors.New("bad json")},
	})

	f.processor.Process(context.Background(), RawWebhookEvent{
		ProviderName: "whapi",
		Payload:      []byte(`not json`),
	})

	assert.Empty(t, f.dispatcher.messages())
}

func TestProcessHandlesEachParsedEvent(t *testing.T) {
	user := testUser()
	f := newFixture(map[string]provider.Adapter{
		"whapi": &stubAdapter{events: []msgdomain.InboundEvent{
			buttonEvent(template.BtnWater250),
			buttonEvent(template.BtnWater500),
		}},
	})

	f.wellness.On("GetUserByPhone", mock.Anything, testPhone).Return(user, nil)
	f.wellness.On("RecordWater", mock.Anything, user.ID, 250).Return(250, nil).Once()
	f.wellness.On("RecordWater", mock.Anything, user.ID, 500).Return(750, nil).Once()

	f.processor.Process(context.Background(), RawWebhookEvent{ProviderName: "whapi", Payload: []byte(`{}`)})

	assert.Len(t, f.dispatcher.messages(), 2)
	f.wellness.AssertExpectations(t)
}
