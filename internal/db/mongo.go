package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// Collection names.
const (
	collFarmers     = "farmers"
	collChat        = "chat_messages"
	collDetections  = "disease_detections"
	collEscalations = "escalations"
)

// MongoStore keeps each entity in its own collection of a single database.
// Records are addressed by their "id" field; the driver's _id is never
// exposed.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	clock
}

var _ Store = (*MongoStore)(nil)

// OpenMongo connects to uri, checks the connection and ensures indexes.
func OpenMongo(ctx context.Context, uri, dbName string, opts ...Option) (*MongoStore, error) {
	if dbName == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(dbName), clock: newClock(opts)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := func() mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	indexes := map[string][]mongo.IndexModel{
		collFarmers: {unique(), {Keys: bson.D{{Key: "created_at", Value: 1}}}},
		collChat: {unique(), {Keys: bson.D{
			{Key: "farmer_id", Value: 1},
			{Key: "session_id", Value: 1},
			{Key: "created_at", Value: -1},
		}}},
		collDetections:  {unique()},
		collEscalations: {unique(), {Keys: bson.D{{Key: "farmer_id", Value: 1}, {Key: "created_at", Value: 1}}}},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) insert(ctx context.Context, coll string, doc any) error {
	if _, err := s.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *MongoStore) CreateFarmer(ctx context.Context, f *pkg.FarmerProfile) (*pkg.FarmerProfile, error) {
	s.stamp(&f.ID, &f.CreatedAt)
	if f.Crops == nil {
		f.Crops = []string{}
	}
	if err := s.insert(ctx, collFarmers, f); err != nil {
		return nil, fmt.Errorf("insert farmer: %w", err)
	}
	return f, nil
}

func (s *MongoStore) GetFarmer(ctx context.Context, id string) (*pkg.FarmerProfile, error) {
	var f pkg.FarmerProfile
	err := s.db.Collection(collFarmers).FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get farmer: %w", err)
	}
	fixFarmer(&f)
	return &f, nil
}

func (s *MongoStore) ListFarmers(ctx context.Context, limit int) ([]pkg.FarmerProfile, error) {
	out := []pkg.FarmerProfile{}
	if err := s.findAll(ctx, collFarmers, bson.D{}, ascending(limitOr(limit, FarmerListLimit)), &out); err != nil {
		return nil, fmt.Errorf("list farmers: %w", err)
	}
	for i := range out {
		fixFarmer(&out[i])
	}
	return out, nil
}

func fixFarmer(f *pkg.FarmerProfile) {
	if f.Crops == nil {
		f.Crops = []string{}
	}
	f.CreatedAt = normalizeTime(f.CreatedAt)
}

func (s *MongoStore) CreateChatMessage(ctx context.Context, m *pkg.ChatMessage) (*pkg.ChatMessage, error) {
	s.stamp(&m.ID, &m.CreatedAt)
	if m.MessageType == "" {
		m.MessageType = pkg.MessageText
	}
	if err := s.insert(ctx, collChat, m); err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

func (s *MongoStore) ListChatMessages(ctx context.Context, farmerID, sessionID string, limit int) ([]pkg.ChatMessage, error) {
	out := []pkg.ChatMessage{}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limitOr(limit, ChatHistoryLimit)))
	if err := s.findAll(ctx, collChat, chatFilter(farmerID, sessionID), opts, &out); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = normalizeTime(out[i].CreatedAt)
	}
	return out, nil
}

// chatFilter matches a farmer's messages, narrowed to one session when
// sessionID is set.
func chatFilter(farmerID, sessionID string) bson.D {
	filter := bson.D{{Key: "farmer_id", Value: farmerID}}
	if sessionID != "" {
		filter = append(filter, bson.E{Key: "session_id", Value: sessionID})
	}
	return filter
}

func (s *MongoStore) CreateDiseaseDetection(ctx context.Context, d *pkg.DiseaseDetection) (*pkg.DiseaseDetection, error) {
	s.stamp(&d.ID, &d.CreatedAt)
	if err := s.insert(ctx, collDetections, d); err != nil {
		return nil, fmt.Errorf("insert disease detection: %w", err)
	}
	return d, nil
}

func (s *MongoStore) CreateEscalation(ctx context.Context, e *pkg.OfficerEscalation) (*pkg.OfficerEscalation, error) {
	s.stamp(&e.ID, &e.CreatedAt)
	if e.Priority == "" {
		e.Priority = pkg.PriorityMedium
	}
	e.Status = pkg.StatusPending
	if err := s.insert(ctx, collEscalations, e); err != nil {
		return nil, fmt.Errorf("insert escalation: %w", err)
	}
	return e, nil
}

func (s *MongoStore) ListEscalations(ctx context.Context, farmerID string, limit int) ([]pkg.OfficerEscalation, error) {
	out := []pkg.OfficerEscalation{}
	filter := bson.D{{Key: "farmer_id", Value: farmerID}}
	if err := s.findAll(ctx, collEscalations, filter, ascending(limitOr(limit, EscalationListLimit)), &out); err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = normalizeTime(out[i].CreatedAt)
	}
	return out, nil
}

func ascending(limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
}

func (s *MongoStore) findAll(ctx context.Context, coll string, filter bson.D, opts *options.FindOptions, out any) error {
	cur, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
