package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoConnectTimeout = 15 * time.Second

// MongoStore maps each collection to a MongoDB collection. Document fields
// live under "data" so metadata never collides with caller fields.
// Subscriptions need change streams, which require a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoDoc struct {
	ID        string    `bson:"_id"`
	Data      bson.M    `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type mongoSub struct {
	store  *MongoStore
	query  Query
	fn     func(Snapshot)
	cancel context.CancelFunc

	mu     sync.Mutex
	closed atomic.Bool
}

func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	cctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

func (s *MongoStore) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw mongoDoc
	err := s.col(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, err
	}
	return raw.document(), nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := Document{ID: uuid.NewString(), Data: cloneData(fields), CreatedAt: now, UpdatedAt: now}
	_, err := s.col(collection).InsertOne(ctx, bson.M{
		"_id":       doc.ID,
		"data":      doc.Data,
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	update := bson.M{
		"$set":         bson.M{"data": cloneData(fields)},
		"$currentDate": bson.M{"updatedAt": true},
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
	}
	_, err := s.col(collection).UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	set := bson.M{}
	for path, v := range fields {
		set["data."+path] = cloneValue(v)
	}
	update := bson.M{"$set": set, "$currentDate": bson.M{"updatedAt": true}}
	res, err := s.col(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.col(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) Increment(ctx context.Context, collection, id, path string, delta int) error {
	res, err := s.col(collection).UpdateOne(ctx, bson.M{"_id": id}, incrementPipeline(path, delta))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// incrementPipeline adds delta to data.<path> in an update pipeline so the
// floor at zero is applied in the same atomic write. A missing field counts
// as zero.
func incrementPipeline(path string, delta int) mongo.Pipeline {
	field := "data." + path
	sum := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + field, 0}}, delta}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: field, Value: bson.M{"$max": bson.A{0, sum}}},
			{Key: "updatedAt", Value: "$$NOW"},
		}}},
	}
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	cur, err := s.col(q.Collection).Find(ctx, queryFilter(q), options.Find().SetSort(querySort(q)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		var raw mongoDoc
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		docs = append(docs, raw.document())
	}
	return docs, cur.Err()
}

func queryFilter(q Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Filters {
		if f.Field == FieldDocumentID {
			filter["_id"] = f.Value
			continue
		}
		filter["data."+f.Field] = f.Value
	}
	return filter
}

// querySort orders by a timestamp with the id as tie break. Other fields
// are sorted client side, so unordered queries fall back to id order.
func querySort(q Query) bson.D {
	dir := 1
	if q.Desc {
		dir = -1
	}
	switch q.OrderBy {
	case FieldCreatedAt, FieldUpdatedAt:
		return bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}}
	}
	return bson.D{{Key: "_id", Value: 1}}
}

func (s *MongoStore) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)
	stream, err := s.col(q.Collection).Watch(sctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", q.Collection, err)
	}

	sub := &mongoSub{store: s, query: q, fn: fn, cancel: cancel}
	sub.deliver(sctx)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(sctx) {
			sub.deliver(sctx)
		}
		if err := stream.Err(); err != nil && sctx.Err() == nil {
			log.WithError(err).WithField("collection", q.Collection).Warn("store: change stream ended")
			sub.mu.Lock()
			if !sub.closed.Load() {
				sub.fn(Snapshot{Err: err})
			}
			sub.mu.Unlock()
		}
	}()
	return sub, nil
}

func (sub *mongoSub) deliver(ctx context.Context) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed.Load() {
		return
	}
	docs, err := sub.store.Query(ctx, sub.query)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		sub.fn(Snapshot{Err: err})
		return
	}
	sub.fn(Snapshot{Documents: docs})
}

func (sub *mongoSub) Close() {
	sub.closed.Store(true)
	sub.cancel()
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (m mongoDoc) document() Document {
	data, _ := normalizeBSON(m.Data).(map[string]any)
	if data == nil {
		data = make(map[string]any)
	}
	return Document{ID: m.ID, Data: data, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// normalizeBSON converts driver types to the plain shapes the other
// backends produce: map[string]any, []any and float64.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalizeBSON(vv)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalizeBSON(vv)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalizeBSON(vv)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return t.Time()
	}
	return v
}
