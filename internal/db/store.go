package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// Default list caps for each collection.
const (
	FarmerListLimit     = 100
	ChatHistoryLimit    = 50
	EscalationListLimit = 20
)

var (
	// ErrNotFound is returned when a lookup by id matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert collides with an existing id.
	ErrConflict = errors.New("record already exists")
)

// FarmerStore persists farmer profiles.
type FarmerStore interface {
	CreateFarmer(ctx context.Context, f *pkg.FarmerProfile) (*pkg.FarmerProfile, error)
	GetFarmer(ctx context.Context, id string) (*pkg.FarmerProfile, error)
	ListFarmers(ctx context.Context, limit int) ([]pkg.FarmerProfile, error)
}

// ChatStore persists chat turns.  ListChatMessages returns newest first and
// filters on sessionID only when it is non-empty.
type ChatStore interface {
	CreateChatMessage(ctx context.Context, m *pkg.ChatMessage) (*pkg.ChatMessage, error)
	ListChatMessages(ctx context.Context, farmerID, sessionID string, limit int) ([]pkg.ChatMessage, error)
}

// DetectionStore persists disease detections.
type DetectionStore interface {
	CreateDiseaseDetection(ctx context.Context, d *pkg.DiseaseDetection) (*pkg.DiseaseDetection, error)
}

// EscalationStore persists officer escalations.
type EscalationStore interface {
	CreateEscalation(ctx context.Context, e *pkg.OfficerEscalation) (*pkg.OfficerEscalation, error)
	ListEscalations(ctx context.Context, farmerID string, limit int) ([]pkg.OfficerEscalation, error)
}

// Store is the full document store used by the server.  Every collection is
// append-only; nothing is updated or deleted.
type Store interface {
	FarmerStore
	ChatStore
	DetectionStore
	EscalationStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Option configures a store implementation.
type Option func(*clock)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(c *clock) { c.now = now }
}

type clock struct {
	now func() time.Time
}

func newClock(opts []Option) clock {
	c := clock{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// stamp fills in a generated id and creation time when they are absent.
// Times are kept in UTC at millisecond precision, the coarsest of the
// supported backends, so a stored record reads back unchanged.
func (c clock) stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = c.now()
	}
	*at = normalizeTime(*at)
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func limitOr(limit, def int) int {
	if limit <= 0 || limit > def {
		return def
	}
	return limit
}
