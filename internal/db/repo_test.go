package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// tickingClock returns successive instants one second apart.
func tickingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	repo, err := OpenSQL(context.Background(), DriverSQLite, ":memory:", WithClock(tickingClock(start)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

func strptr(s string) *string { return &s }

func TestRepository_FarmerRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateFarmer(ctx, &pkg.FarmerProfile{
		Name:     "Ravi",
		Phone:    "9876543210",
		Location: "Thrissur",
		Crops:    []string{"Rice", "Coconut"},
		FarmSize: strptr("2 acres"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetFarmer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	other, err := repo.CreateFarmer(ctx, &pkg.FarmerProfile{Name: "Anu", Phone: "1", Location: "Kochi"})
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, other.ID)
	assert.Equal(t, []string{}, other.Crops)
	assert.Nil(t, other.FarmSize)

	list, err := repo.ListFarmers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, other.ID, list[1].ID)
}

func TestRepository_GetFarmerNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetFarmer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DuplicateIDConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.CreateFarmer(ctx, &pkg.FarmerProfile{ID: "f-1", Name: "A", Phone: "1", Location: "X"})
	require.NoError(t, err)
	_, err = repo.CreateFarmer(ctx, &pkg.FarmerProfile{ID: "f-1", Name: "B", Phone: "2", Location: "Y"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRepository_ChatHistoryNewestFirstAndCapped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < ChatHistoryLimit+5; i++ {
		_, err := repo.CreateChatMessage(ctx, &pkg.ChatMessage{
			FarmerID:  "f-1",
			Message:   fmt.Sprintf("question %d", i),
			Response:  "answer",
			SessionID: "s-1",
		})
		require.NoError(t, err)
	}

	msgs, err := repo.ListChatMessages(ctx, "f-1", "", 0)
	require.NoError(t, err)
	require.Len(t, msgs, ChatHistoryLimit)
	assert.Equal(t, fmt.Sprintf("question %d", ChatHistoryLimit+4), msgs[0].Message)
	assert.Equal(t, pkg.MessageText, msgs[0].MessageType)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].CreatedAt.After(msgs[i].CreatedAt))
	}
}

func TestRepository_ChatHistorySessionFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	img := "aGVsbG8="
	for _, m := range []pkg.ChatMessage{
		{FarmerID: "f-1", Message: "a", SessionID: "s-1"},
		{FarmerID: "f-1", Message: "b", SessionID: "s-2", MessageType: pkg.MessageImage, ImageData: &img},
		{FarmerID: "f-2", Message: "c", SessionID: "s-1"},
	} {
		m := m
		_, err := repo.CreateChatMessage(ctx, &m)
		require.NoError(t, err)
	}

	all, err := repo.ListChatMessages(ctx, "f-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	s2, err := repo.ListChatMessages(ctx, "f-1", "s-2", 0)
	require.NoError(t, err)
	require.Len(t, s2, 1)
	assert.Equal(t, "b", s2[0].Message)
	require.NotNil(t, s2[0].ImageData)
	assert.Equal(t, img, *s2[0].ImageData)

	none, err := repo.ListChatMessages(ctx, "nobody", "", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRepository_DiseaseDetection(t *testing.T) {
	repo := newTestRepo(t)
	d, err := repo.CreateDiseaseDetection(context.Background(), &pkg.DiseaseDetection{
		FarmerID:        "f-1",
		ImageData:       "aW1n",
		DetectedDisease: "AI Analysis",
		Confidence:      0.8,
		TreatmentAdvice: "spray neem",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())
}

func TestRepository_EscalationsArePending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.CreateEscalation(ctx, &pkg.OfficerEscalation{FarmerID: "f-1", Query: "pests", Status: pkg.StatusResolved})
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusPending, first.Status)
	assert.Equal(t, pkg.PriorityMedium, first.Priority)

	_, err = repo.CreateEscalation(ctx, &pkg.OfficerEscalation{FarmerID: "f-1", Query: "flood", Priority: pkg.PriorityHigh})
	require.NoError(t, err)

	list, err := repo.ListEscalations(ctx, "f-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pests", list[0].Query)
	assert.Equal(t, pkg.PriorityHigh, list[1].Priority)
	assert.Equal(t, pkg.StatusPending, list[1].Status)
}

func TestRepository_Ping(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestOpenSQL_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}

func TestLimitOr(t *testing.T) {
	assert.Equal(t, 50, limitOr(0, 50))
	assert.Equal(t, 50, limitOr(-3, 50))
	assert.Equal(t, 50, limitOr(500, 50))
	assert.Equal(t, 10, limitOr(10, 50))
}

func TestStampKeepsExistingValues(t *testing.T) {
	c := newClock([]Option{WithClock(func() time.Time { return time.Unix(0, 0) })})
	at := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.FixedZone("IST", 19800))
	id := "given"
	c.stamp(&id, &at)
	assert.Equal(t, "given", id)
	assert.Equal(t, time.UTC, at.Location())
	assert.Equal(t, 123000000, at.Nanosecond())
}

func TestChatFilter(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "farmer_id", Value: "f-1"}}, chatFilter("f-1", ""))
	assert.Equal(t, bson.D{
		{Key: "farmer_id", Value: "f-1"},
		{Key: "session_id", Value: "s-1"},
	}, chatFilter("f-1", "s-1"))
}

func TestNewRepository_PlaceholderFormat(t *testing.T) {
	pg := NewRepository(nil, DriverPostgres)
	query, args, err := pg.sb.Select("id").From("farmers").Where(sq.Eq{"id": "x"}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM farmers WHERE id = $1", query)
	assert.Equal(t, []interface{}{"x"}, args)

	lite := NewRepository(nil, DriverSQLite)
	query, _, err = lite.sb.Select("id").From("farmers").Where(sq.Eq{"id": "x"}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM farmers WHERE id = ?", query)
}

func TestMigrate_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, Migrate(context.Background(), repo.DB))
	_, err := repo.CreateFarmer(context.Background(), &pkg.FarmerProfile{Name: "A", Phone: "1", Location: "X"})
	assert.NoError(t, err)
}
