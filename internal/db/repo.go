package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Repository wraps database operations for the four collections over a
// SQL database.  Queries are built with squirrel so the same code serves
// postgres ($1 placeholders) and sqlite (? placeholders).
type Repository struct {
	DB     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	clock
}

var _ Store = (*Repository)(nil)

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for applying the schema.
func NewRepository(db *sql.DB, driver string, opts ...Option) *Repository {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Repository{
		DB:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		clock:  newClock(opts),
	}
}

// OpenSQL opens a postgres or sqlite database, verifies the connection and
// applies the schema.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...Option) (*Repository, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY between writers.
		conn.SetMaxOpenConns(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewRepository(conn, driver, opts...), nil
}

//go:embed schema.sql
var schemaSQL string

// Migrate creates the farmers, chat_messages, disease_detections and
// escalations tables with their indexes.  Every statement is guarded with
// IF NOT EXISTS, so running it against an up-to-date database is a no-op.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }

// Close releases the connection pool.
func (r *Repository) Close(context.Context) error { return r.DB.Close() }

func (r *Repository) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) query(ctx context.Context, b sq.SelectBuilder) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.DB.QueryContext(ctx, query, args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var farmerColumns = []string{"id", "name", "phone", "location", "crops", "farm_size", "created_at"}

// CreateFarmer stores a new farmer profile.
func (r *Repository) CreateFarmer(ctx context.Context, f *pkg.FarmerProfile) (*pkg.FarmerProfile, error) {
	r.stamp(&f.ID, &f.CreatedAt)
	if f.Crops == nil {
		f.Crops = []string{}
	}
	crops, err := json.Marshal(f.Crops)
	if err != nil {
		return nil, fmt.Errorf("encode crops: %w", err)
	}
	ins := r.sb.Insert("farmers").Columns(farmerColumns...).
		Values(f.ID, f.Name, f.Phone, f.Location, string(crops), f.FarmSize, f.CreatedAt)
	if err := r.exec(ctx, ins); err != nil {
		return nil, fmt.Errorf("insert farmer: %w", err)
	}
	return f, nil
}

// GetFarmer returns the profile with the given id or ErrNotFound.
func (r *Repository) GetFarmer(ctx context.Context, id string) (*pkg.FarmerProfile, error) {
	rows, err := r.query(ctx, r.sb.Select(farmerColumns...).From("farmers").Where(sq.Eq{"id": id}).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("get farmer: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get farmer: %w", err)
		}
		return nil, ErrNotFound
	}
	f, err := scanFarmer(rows)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFarmers returns up to limit profiles in creation order.
func (r *Repository) ListFarmers(ctx context.Context, limit int) ([]pkg.FarmerProfile, error) {
	sel := r.sb.Select(farmerColumns...).From("farmers").
		OrderBy("created_at ASC").
		Limit(uint64(limitOr(limit, FarmerListLimit)))
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list farmers: %w", err)
	}
	defer rows.Close()
	out := []pkg.FarmerProfile{}
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFarmer(rows *sql.Rows) (pkg.FarmerProfile, error) {
	var (
		f        pkg.FarmerProfile
		crops    string
		farmSize sql.NullString
	)
	if err := rows.Scan(&f.ID, &f.Name, &f.Phone, &f.Location, &crops, &farmSize, &f.CreatedAt); err != nil {
		return f, fmt.Errorf("scan farmer: %w", err)
	}
	if err := json.Unmarshal([]byte(crops), &f.Crops); err != nil {
		return f, fmt.Errorf("decode crops for farmer %s: %w", f.ID, err)
	}
	if f.Crops == nil {
		f.Crops = []string{}
	}
	if farmSize.Valid {
		f.FarmSize = &farmSize.String
	}
	f.CreatedAt = normalizeTime(f.CreatedAt)
	return f, nil
}

var chatColumns = []string{"id", "farmer_id", "message", "response", "message_type", "image_data", "session_id", "created_at"}

// CreateChatMessage stores a chat turn.
func (r *Repository) CreateChatMessage(ctx context.Context, m *pkg.ChatMessage) (*pkg.ChatMessage, error) {
	r.stamp(&m.ID, &m.CreatedAt)
	if m.MessageType == "" {
		m.MessageType = pkg.MessageText
	}
	ins := r.sb.Insert("chat_messages").Columns(chatColumns...).
		Values(m.ID, m.FarmerID, m.Message, m.Response, string(m.MessageType), m.ImageData, m.SessionID, m.CreatedAt)
	if err := r.exec(ctx, ins); err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

// ListChatMessages returns a farmer's chat history, newest first.
func (r *Repository) ListChatMessages(ctx context.Context, farmerID, sessionID string, limit int) ([]pkg.ChatMessage, error) {
	sel := r.sb.Select(chatColumns...).From("chat_messages").Where(sq.Eq{"farmer_id": farmerID})
	if sessionID != "" {
		sel = sel.Where(sq.Eq{"session_id": sessionID})
	}
	sel = sel.OrderBy("created_at DESC").Limit(uint64(limitOr(limit, ChatHistoryLimit)))
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()
	out := []pkg.ChatMessage{}
	for rows.Next() {
		var (
			m     pkg.ChatMessage
			mt    string
			image sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.FarmerID, &m.Message, &m.Response, &mt, &image, &m.SessionID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.MessageType = pkg.MessageType(mt)
		if image.Valid {
			m.ImageData = &image.String
		}
		m.CreatedAt = normalizeTime(m.CreatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateDiseaseDetection stores a detection record.
func (r *Repository) CreateDiseaseDetection(ctx context.Context, d *pkg.DiseaseDetection) (*pkg.DiseaseDetection, error) {
	r.stamp(&d.ID, &d.CreatedAt)
	ins := r.sb.Insert("disease_detections").
		Columns("id", "farmer_id", "image_data", "detected_disease", "confidence", "treatment_advice", "created_at").
		Values(d.ID, d.FarmerID, d.ImageData, d.DetectedDisease, d.Confidence, d.TreatmentAdvice, d.CreatedAt)
	if err := r.exec(ctx, ins); err != nil {
		return nil, fmt.Errorf("insert disease detection: %w", err)
	}
	return d, nil
}

var escalationColumns = []string{"id", "farmer_id", "query", "priority", "status", "created_at"}

// CreateEscalation stores an escalation.  The status is always written as
// pending.
func (r *Repository) CreateEscalation(ctx context.Context, e *pkg.OfficerEscalation) (*pkg.OfficerEscalation, error) {
	r.stamp(&e.ID, &e.CreatedAt)
	if e.Priority == "" {
		e.Priority = pkg.PriorityMedium
	}
	e.Status = pkg.StatusPending
	ins := r.sb.Insert("escalations").Columns(escalationColumns...).
		Values(e.ID, e.FarmerID, e.Query, string(e.Priority), string(e.Status), e.CreatedAt)
	if err := r.exec(ctx, ins); err != nil {
		return nil, fmt.Errorf("insert escalation: %w", err)
	}
	return e, nil
}

// ListEscalations returns up to limit escalations for a farmer in creation
// order.
func (r *Repository) ListEscalations(ctx context.Context, farmerID string, limit int) ([]pkg.OfficerEscalation, error) {
	sel := r.sb.Select(escalationColumns...).From("escalations").
		Where(sq.Eq{"farmer_id": farmerID}).
		OrderBy("created_at ASC").
		Limit(uint64(limitOr(limit, EscalationListLimit)))
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()
	out := []pkg.OfficerEscalation{}
	for rows.Next() {
		var (
			e                pkg.OfficerEscalation
			priority, status string
		)
		if err := rows.Scan(&e.ID, &e.FarmerID, &e.Query, &priority, &status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e.Priority = pkg.Priority(priority)
		e.Status = pkg.EscalationStatus(status)
		e.CreatedAt = normalizeTime(e.CreatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
