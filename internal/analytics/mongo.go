package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sundayezeilo/linkstat/internal/config"
	"github.com/sundayezeilo/linkstat/internal/errx"
)

const clicksCollection = "clicks"

// clickDocument is the stored shape of a ClickEvent.
type clickDocument struct {
	ID            bson.ObjectID `bson:"_id,omitempty"`
	Code          string        `bson:"code"`
	Timestamp     time.Time     `bson:"timestamp"`
	IPFingerprint string        `bson:"ip_fingerprint"`
	UserAgent     string        `bson:"user_agent,omitempty"`
	Referrer      string        `bson:"referrer,omitempty"`
	IsUnique      bool          `bson:"is_unique"`
}

func toDocument(e ClickEvent) clickDocument {
	return clickDocument{
		Code:          e.Code,
		Timestamp:     e.Timestamp.UTC(),
		IPFingerprint: e.IPFingerprint,
		UserAgent:     e.UserAgent,
		Referrer:      e.Referrer,
		IsUnique:      e.IsUnique,
	}
}

func (d clickDocument) toEvent() ClickEvent {
	return ClickEvent{
		Code:          d.Code,
		Timestamp:     d.Timestamp.UTC(),
		IPFingerprint: d.IPFingerprint,
		UserAgent:     d.UserAgent,
		Referrer:      d.Referrer,
		IsUnique:      d.IsUnique,
	}
}

// ConnectMongo opens a client and pings the primary.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if logger != nil {
		logger.Info("mongo connection established", "database", cfg.Database)
	}
	return client, nil
}

// MongoEventStore keeps click events in the "clicks" collection.
type MongoEventStore struct {
	coll *mongo.Collection
}

// NewMongoEventStore stores click events in the clicks collection of db.
func NewMongoEventStore(db *mongo.Database) *MongoEventStore {
	return &MongoEventStore{coll: db.Collection(clicksCollection)}
}

// EnsureIndexes creates the (code, timestamp desc) index used for listing and
// daily counts, and the (code, ip_fingerprint) index used for dedup lookups.
func (s *MongoEventStore) EnsureIndexes(ctx context.Context) error {
	const op = "analytics.mongo.EnsureIndexes"

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("code_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "code", Value: 1}, {Key: "ip_fingerprint", Value: 1}},
			Options: options.Index().SetName("code_fingerprint"),
		},
	})
	return errx.E(op, errx.Unavailable, err)
}

// Append inserts a single click event.
func (s *MongoEventStore) Append(ctx context.Context, event ClickEvent) error {
	const op = "analytics.mongo.Append"

	_, err := s.coll.InsertOne(ctx, toDocument(event))
	return errx.E(op, errx.Unavailable, err)
}

// Exists reports whether any event for code carries fingerprint.
func (s *MongoEventStore) Exists(ctx context.Context, code, fingerprint string) (bool, error) {
	const op = "analytics.mongo.Exists"

	n, err := s.coll.CountDocuments(ctx,
		bson.D{{Key: "code", Value: code}, {Key: "ip_fingerprint", Value: fingerprint}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, errx.E(op, errx.Unavailable, err)
	}
	return n > 0, nil
}

// List returns events for code, newest first, and the total number of events.
func (s *MongoEventStore) List(ctx context.Context, code string, limit, offset int) ([]ClickEvent, int64, error) {
	const op = "analytics.mongo.List"

	filter := bson.D{{Key: "code", Value: code}}

	cursor, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, errx.E(op, errx.Unavailable, err)
	}

	var docs []clickDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, errx.E(op, errx.Unavailable, err)
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errx.E(op, errx.Unavailable, err)
	}

	events := make([]ClickEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toEvent())
	}
	return events, total, nil
}

// CountByDay groups events at or after since by UTC calendar day.
func (s *MongoEventStore) CountByDay(ctx context.Context, code string, since time.Time) (map[string]int64, error) {
	const op = "analytics.mongo.CountByDay"

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "code", Value: code},
			{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$timestamp"},
				{Key: "timezone", Value: "UTC"},
			}}}},
			{Key: "clicks", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}

	var rows []struct {
		Day    string `bson:"_id"`
		Clicks int64  `bson:"clicks"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Day] = r.Clicks
	}
	return counts, nil
}

// DeleteByCode removes every event for code and returns how many were deleted.
func (s *MongoEventStore) DeleteByCode(ctx context.Context, code string) (int64, error) {
	const op = "analytics.mongo.DeleteByCode"

	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "code", Value: code}})
	if err != nil {
		return 0, errx.E(op, errx.Unavailable, err)
	}
	return res.DeletedCount, nil
}

var _ EventStore = (*MongoEventStore)(nil)
