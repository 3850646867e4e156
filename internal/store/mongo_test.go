package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNormalizeBSON(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   any
		want any
	}{
		{"int32", int32(3), float64(3)},
		{"int64", int64(-2), float64(-2)},
		{"float passes through", 1.5, 1.5},
		{"string passes through", "bribery", "bribery"},
		{"datetime", primitive.NewDateTimeFromTime(at), at},
		{
			"M nests",
			primitive.M{"votes": primitive.M{"true": int32(2)}},
			map[string]any{"votes": map[string]any{"true": float64(2)}},
		},
		{
			"D becomes a map",
			primitive.D{{Key: "lat", Value: 23.8}, {Key: "count", Value: int64(1)}},
			map[string]any{"lat": 23.8, "count": float64(1)},
		},
		{
			"A becomes a slice",
			primitive.A{"img1", int32(7), primitive.M{"k": int64(1)}},
			[]any{"img1", float64(7), map[string]any{"k": float64(1)}},
		},
		{
			"plain map is walked",
			map[string]any{"n": int32(4)},
			map[string]any{"n": float64(4)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeBSON(tc.in))
		})
	}
}

func TestMongoDocument(t *testing.T) {
	raw := mongoDoc{ID: "r1", Data: bson.M{"votes": bson.M{"true": int32(1)}}}
	doc := raw.document()
	assert.Equal(t, "r1", doc.ID)
	assert.Equal(t, 1, doc.Int("votes.true"))

	empty := mongoDoc{ID: "r2"}.document()
	assert.NotNil(t, empty.Data)
}

func TestQueryFilter(t *testing.T) {
	q := Query{Collection: "comments"}.Where("reportId", "r1").Where(FieldDocumentID, "c9")
	assert.Equal(t, bson.M{"data.reportId": "r1", "_id": "c9"}, queryFilter(q))
	assert.Equal(t, bson.M{}, queryFilter(Query{Collection: "users"}))
}

func TestQuerySort(t *testing.T) {
	desc := Query{Collection: "reports"}.OrderedBy(FieldCreatedAt, true)
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}, querySort(desc))

	asc := Query{Collection: "reports"}.OrderedBy(FieldUpdatedAt, false)
	assert.Equal(t, bson.D{{Key: "updatedAt", Value: 1}, {Key: "_id", Value: 1}}, querySort(asc))

	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, querySort(Query{Collection: "reports"}))
}

func TestIncrementPipeline_FloorsAtZero(t *testing.T) {
	sum := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$data.votes.true", 0}}, -1}}
	want := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "data.votes.true", Value: bson.M{"$max": bson.A{0, sum}}},
			{Key: "updatedAt", Value: "$$NOW"},
		}}},
	}
	assert.Equal(t, want, incrementPipeline("votes.true", -1))
}
