package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/db"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/llm"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// ConversationService orchestrates every exchange between a farmer and the
// assistant: profile lookup, prompt construction, the model call and
// persistence of the result.  It holds no per-request state and is safe for
// concurrent use.
type ConversationService struct {
	Store db.Store
	LLM   llm.Client
	log   *slog.Logger
	now   func() time.Time
}

// NewConversationService constructs a ConversationService.  A nil logger
// discards output.
func NewConversationService(store db.Store, client llm.Client, logger *slog.Logger) *ConversationService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConversationService{
		Store: store,
		LLM:   client,
		log:   logger.With("component", "conversation"),
		now:   time.Now,
	}
}

// HandleChat answers a validated chat request and stores the exchange.  A
// provider failure is answered with FallbackResponse; only a storage
// failure is returned as an error.
func (s *ConversationService) HandleChat(ctx context.Context, req pkg.ChatRequest) (pkg.ChatReply, error) {
	farmerID, message, sessionID := deref(req.FarmerID), deref(req.Message), deref(req.SessionID)
	image := ""
	if req.ImageData != nil {
		image = *req.ImageData
	}

	response := s.answer(ctx, farmerID, sessionID, message, image)

	msgType := req.MessageType
	if msgType == "" {
		msgType = pkg.MessageText
	}
	saved, err := s.Store.CreateChatMessage(ctx, &pkg.ChatMessage{
		FarmerID:    farmerID,
		Message:     message,
		Response:    response,
		MessageType: msgType,
		ImageData:   req.ImageData,
		SessionID:   sessionID,
	})
	if err != nil {
		return pkg.ChatReply{}, fmt.Errorf("save chat message: %w", err)
	}
	return pkg.ChatReply{Response: saved.Response, MessageID: saved.ID, Timestamp: saved.CreatedAt}, nil
}

// answer builds the farmer-aware prompt and asks the model, substituting
// FallbackResponse on failure.  A non-empty image switches the user text to
// the image analysis template.
func (s *ConversationService) answer(ctx context.Context, farmerID, sessionID, message, image string) string {
	text := message
	if image != "" {
		text = BuildImageAugmentedMessage(message)
	}
	reply, err := s.askProvider(ctx, llm.Request{
		SystemPrompt: BuildSystemPrompt(s.lookupProfile(ctx, farmerID)),
		SessionID:    sessionID,
		UserText:     text,
	})
	if err != nil {
		s.log.Error("ai response failed", "farmer_id", farmerID, "session_id", sessionID, "err", err)
		return FallbackResponse
	}
	return reply
}

// lookupProfile returns nil when the farmer is unknown or the lookup fails;
// the conversation continues without profile context either way.
func (s *ConversationService) lookupProfile(ctx context.Context, farmerID string) *pkg.FarmerProfile {
	profile, err := s.Store.GetFarmer(ctx, farmerID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Warn("farmer profile lookup failed", "farmer_id", farmerID, "err", err)
		}
		return nil
	}
	return profile
}

// askProvider performs a single completion call.
func (s *ConversationService) askProvider(ctx context.Context, req llm.Request) (string, error) {
	if s.LLM == nil {
		return "", &llm.ProviderError{Op: "complete", Err: errors.New("no llm client configured")}
	}
	return s.LLM.Complete(ctx, req)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
