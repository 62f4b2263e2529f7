package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/llm"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// Placeholder classification stored with every detection until a real
// classifier exists.
const (
	DetectedDiseaseLabel = "AI Analysis"
	DetectionConfidence  = 0.8
)

// HandleDiseaseDetection asks the model to diagnose a plant image and
// stores the analysis as a DiseaseDetection.  Each call uses a fresh
// session so detections never share model context.
func (s *ConversationService) HandleDiseaseDetection(ctx context.Context, req pkg.DetectionRequest) (pkg.DetectionReply, error) {
	sessionID := fmt.Sprintf("disease_%s_%s", req.FarmerID, uuid.NewString())
	analysis := s.answer(ctx, req.FarmerID, sessionID, BuildDiseasePrompt(req.Description), req.ImageData)

	saved, err := s.Store.CreateDiseaseDetection(ctx, &pkg.DiseaseDetection{
		FarmerID:        req.FarmerID,
		ImageData:       req.ImageData,
		DetectedDisease: DetectedDiseaseLabel,
		Confidence:      DetectionConfidence,
		TreatmentAdvice: analysis,
	})
	if err != nil {
		return pkg.DetectionReply{}, fmt.Errorf("save disease detection: %w", err)
	}
	return pkg.DetectionReply{Analysis: analysis, DetectionID: saved.ID, Timestamp: saved.CreatedAt}, nil
}

// Translate renders text from src to dst.  Provider failures do not produce
// an error: the returned text becomes "Translation failed: <detail>" so the
// caller can show it in place of a translation.  An error is returned only
// when ctx is already done.
func (s *ConversationService) Translate(ctx context.Context, text string, src, dst pkg.Language) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := s.askProvider(ctx, llm.Request{
		SystemPrompt: TranslatorSystemPrompt,
		SessionID:    "translation_" + uuid.NewString(),
		UserText:     BuildTranslationPrompt(text, src, dst),
	})
	if err != nil {
		s.log.Error("translation failed", "source", src, "target", dst, "err", err)
		return "Translation failed: " + err.Error(), nil
	}
	return strings.TrimSpace(out), nil
}
