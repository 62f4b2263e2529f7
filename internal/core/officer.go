package core

import (
	"context"
	"fmt"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

const (
	escalationMessage = "Your query has been forwarded to agriculture officers. They will contact you soon."
	escalationETA     = "24-48 hours"
)

// Escalate records a query for a human officer.  Officers are not notified
// from here; they pick up pending escalations themselves.
func (s *ConversationService) Escalate(ctx context.Context, req pkg.EscalationRequest) (pkg.EscalationReply, error) {
	priority := req.Priority
	if priority == "" {
		priority = pkg.PriorityMedium
	}
	saved, err := s.Store.CreateEscalation(ctx, &pkg.OfficerEscalation{
		FarmerID: req.FarmerID,
		Query:    req.Query,
		Priority: priority,
		Status:   pkg.StatusPending,
	})
	if err != nil {
		return pkg.EscalationReply{}, fmt.Errorf("save escalation: %w", err)
	}
	s.log.Info("escalation created", "escalation_id", saved.ID, "farmer_id", saved.FarmerID, "priority", saved.Priority)
	return pkg.EscalationReply{
		Message:           escalationMessage,
		EscalationID:      saved.ID,
		EstimatedResponse: escalationETA,
	}, nil
}

// Weather returns canned conditions for location.  No provider is queried.
func (s *ConversationService) Weather(location string) pkg.WeatherData {
	return pkg.WeatherData{
		Location:    location,
		Temperature: 28.5,
		Humidity:    75.0,
		Rainfall:    5.2,
		Forecast:    "Partly cloudy with chance of light rain",
		UpdatedAt:   s.now().UTC(),
	}
}
