package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/db"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/llm"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// fakeLLM records requests and answers with reply or err.
type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) last(t *testing.T) llm.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.reqs)
	return f.reqs[len(f.reqs)-1]
}

func newTestService(t *testing.T, client llm.Client) (*ConversationService, *db.Repository) {
	t.Helper()
	repo, err := db.OpenSQL(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return NewConversationService(repo, client, nil), repo
}

func sp(s string) *string { return &s }

func TestHandleChat_UsesProfileAndPersists(t *testing.T) {
	fake := &fakeLLM{reply: "Use neem oil."}
	svc, repo := newTestService(t, fake)
	ctx := context.Background()

	farmer, err := repo.CreateFarmer(ctx, &pkg.FarmerProfile{
		Name: "Ravi", Phone: "1", Location: "Palakkad", Crops: []string{"Rice", "Coconut"},
	})
	require.NoError(t, err)

	reply, err := svc.HandleChat(ctx, pkg.ChatRequest{
		FarmerID:  &farmer.ID,
		Message:   sp("My rice leaves are turning yellow"),
		SessionID: sp("s-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Use neem oil.", reply.Response)
	assert.NotEmpty(t, reply.MessageID)

	req := fake.last(t)
	assert.Equal(t, "s-1", req.SessionID)
	assert.Equal(t, "My rice leaves are turning yellow", req.UserText)
	assert.Contains(t, req.SystemPrompt, "Crops: Rice, Coconut")
	assert.Contains(t, req.SystemPrompt, "Location: Palakkad")
	assert.Contains(t, req.SystemPrompt, "Farm Size: Not specified")

	history, err := repo.ListChatMessages(ctx, farmer.ID, "s-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, reply.MessageID, history[0].ID)
	assert.Equal(t, "Use neem oil.", history[0].Response)
	assert.Equal(t, pkg.MessageText, history[0].MessageType)
}

func TestHandleChat_UnknownFarmerHasNoProfileBlock(t *testing.T) {
	fake := &fakeLLM{reply: "ok"}
	svc, _ := newTestService(t, fake)

	_, err := svc.HandleChat(context.Background(), pkg.ChatRequest{
		FarmerID: sp("ghost"), Message: sp("hello"), SessionID: sp("s"),
	})
	require.NoError(t, err)
	assert.Equal(t, SystemPrompt, fake.last(t).SystemPrompt)
}

func TestHandleChat_ImageAugmentsPromptButStoresOriginal(t *testing.T) {
	fake := &fakeLLM{reply: "Leaf blight."}
	svc, repo := newTestService(t, fake)

	_, err := svc.HandleChat(context.Background(), pkg.ChatRequest{
		FarmerID:    sp("f-1"),
		Message:     sp("what is this?"),
		MessageType: pkg.MessageImage,
		ImageData:   sp("aW1hZ2U="),
		SessionID:   sp("s-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, BuildImageAugmentedMessage("what is this?"), fake.last(t).UserText)

	history, err := repo.ListChatMessages(context.Background(), "f-1", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "what is this?", history[0].Message)
	assert.Equal(t, pkg.MessageImage, history[0].MessageType)
	require.NotNil(t, history[0].ImageData)
}

func TestHandleChat_ProviderFailurePersistsFallback(t *testing.T) {
	fake := &fakeLLM{err: &llm.ProviderError{Op: "complete", Err: errors.New("quota exceeded")}}
	svc, repo := newTestService(t, fake)

	reply, err := svc.HandleChat(context.Background(), pkg.ChatRequest{
		FarmerID: sp("f-1"), Message: sp("hi"), SessionID: sp("s"),
	})
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, reply.Response)

	history, err := repo.ListChatMessages(context.Background(), "f-1", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, FallbackResponse, history[0].Response)
}

func TestHandleChat_NoClientFallsBack(t *testing.T) {
	svc, _ := newTestService(t, nil)
	reply, err := svc.HandleChat(context.Background(), pkg.ChatRequest{
		FarmerID: sp("f-1"), Message: sp("hi"), SessionID: sp("s"),
	})
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, reply.Response)
}

// failingStore rejects chat inserts.
type failingStore struct {
	db.Store
}

func (failingStore) CreateChatMessage(context.Context, *pkg.ChatMessage) (*pkg.ChatMessage, error) {
	return nil, errors.New("disk full")
}

func TestHandleChat_StorageFailureIsReturned(t *testing.T) {
	_, repo := newTestService(t, nil)
	svc := NewConversationService(failingStore{Store: repo}, &fakeLLM{reply: "ok"}, nil)

	_, err := svc.HandleChat(context.Background(), pkg.ChatRequest{
		FarmerID: sp("f-1"), Message: sp("hi"), SessionID: sp("s"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHandleDiseaseDetection(t *testing.T) {
	fake := &fakeLLM{reply: "Bacterial leaf blight, moderate."}
	svc, _ := newTestService(t, fake)

	reply, err := svc.HandleDiseaseDetection(context.Background(), pkg.DetectionRequest{
		FarmerID: "f-9", ImageData: "aW1n", Description: "brown spots",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bacterial leaf blight, moderate.", reply.Analysis)
	assert.NotEmpty(t, reply.DetectionID)

	req := fake.last(t)
	assert.True(t, strings.HasPrefix(req.SessionID, "disease_f-9_"))
	assert.Equal(t, BuildImageAugmentedMessage(BuildDiseasePrompt("brown spots")), req.UserText)
}

func TestHandleDiseaseDetection_FreshSessionEachCall(t *testing.T) {
	fake := &fakeLLM{reply: "ok"}
	svc, _ := newTestService(t, fake)
	for i := 0; i < 2; i++ {
		_, err := svc.HandleDiseaseDetection(context.Background(), pkg.DetectionRequest{FarmerID: "f", ImageData: "x"})
		require.NoError(t, err)
	}
	assert.NotEqual(t, fake.reqs[0].SessionID, fake.reqs[1].SessionID)
}

func TestHandleDiseaseDetection_FallbackAdvice(t *testing.T) {
	fake := &fakeLLM{err: errors.New("timeout")}
	svc, _ := newTestService(t, fake)
	reply, err := svc.HandleDiseaseDetection(context.Background(), pkg.DetectionRequest{FarmerID: "f", ImageData: "x"})
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, reply.Analysis)
}

func TestTranslate(t *testing.T) {
	fake := &fakeLLM{reply: "  നമസ്കാരം \n"}
	svc, _ := newTestService(t, fake)

	out, err := svc.Translate(context.Background(), "Hello", pkg.LangEnglish, pkg.LangMalayalam)
	require.NoError(t, err)
	assert.Equal(t, "നമസ്കാരം", out)

	req := fake.last(t)
	assert.Equal(t, TranslatorSystemPrompt, req.SystemPrompt)
	assert.True(t, strings.HasPrefix(req.SessionID, "translation_"))
	assert.Contains(t, req.UserText, "from english to malayalam")
	assert.Contains(t, req.UserText, "Text to translate: Hello")
}

func TestTranslate_FailureIsDistinctFromFallback(t *testing.T) {
	fake := &fakeLLM{err: &llm.ProviderError{Op: "complete", Err: errors.New("rate limited")}}
	svc, _ := newTestService(t, fake)

	out, err := svc.Translate(context.Background(), "Hello", pkg.LangEnglish, pkg.LangHindi)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Translation failed: "))
	assert.Contains(t, out, "rate limited")
	assert.NotEqual(t, FallbackResponse, out)
}

func TestTranslate_CancelledContext(t *testing.T) {
	svc, _ := newTestService(t, &fakeLLM{reply: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Translate(ctx, "Hello", pkg.LangEnglish, pkg.LangHindi)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEscalate(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()

	reply, err := svc.Escalate(ctx, pkg.EscalationRequest{FarmerID: "f-1", Query: "locust swarm"})
	require.NoError(t, err)
	assert.Equal(t, "24-48 hours", reply.EstimatedResponse)
	assert.Contains(t, reply.Message, "agriculture officers")

	list, err := repo.ListEscalations(ctx, "f-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, reply.EscalationID, list[0].ID)
	assert.Equal(t, pkg.PriorityMedium, list[0].Priority)
	assert.Equal(t, pkg.StatusPending, list[0].Status)
}

func TestWeather(t *testing.T) {
	svc, _ := newTestService(t, nil)
	fixed := time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	w := svc.Weather("Kottayam")
	assert.Equal(t, pkg.WeatherData{
		Location:    "Kottayam",
		Temperature: 28.5,
		Humidity:    75.0,
		Rainfall:    5.2,
		Forecast:    "Partly cloudy with chance of light rain",
		UpdatedAt:   fixed,
	}, w)
}
