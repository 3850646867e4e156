package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"reflect"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
	pg   *PostgresStore
)

func setUp() {
	db, mock, _ = sqlmock.New()
	pg = NewPostgresStore(db, nil)
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

// jsonArg matches a JSON-encoded argument by value.
type jsonArg struct {
	want map[string]any
}

func (a jsonArg) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return reflect.DeepEqual(a.want, got)
}

func TestPostgresStore_Get(t *testing.T) {
	it(func() {
		created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2")).
			WithArgs("reports", "r1").
			WillReturnRows(sqlmock.NewRows([]string{"data", "created_at", "updated_at"}).
				AddRow([]byte(`{"status":"approved","votes":{"true":2}}`), created, created))

		doc, err := pg.Get(context.Background(), "reports", "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", doc.ID)
		assert.Equal(t, "approved", doc.String("status"))
		assert.Equal(t, 2, doc.Int("votes.true"))
		assert.Equal(t, created, doc.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_GetMissing(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT data").
			WithArgs("reports", "nope").
			WillReturnError(sql.ErrNoRows)

		_, err := pg.Get(context.Background(), "reports", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStore_Create(t *testing.T) {
	it(func() {
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3) RETURNING created_at, updated_at")).
			WithArgs("comments", sqlmock.AnyArg(), jsonArg{want: map[string]any{"reportId": "r1", "text": "hi"}}).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		doc, err := pg.Create(context.Background(), "comments", map[string]any{"reportId": "r1", "text": "hi"})
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, now, doc.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_SetUpserts(t *testing.T) {
	it(func() {
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data")).
			WithArgs("votes", "r1_u1", jsonArg{want: map[string]any{"reportId": "r1", "userId": "u1", "type": "true"}}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := pg.Set(context.Background(), "votes", "r1_u1", map[string]any{"reportId": "r1", "userId": "u1", "type": "true"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Increment(t *testing.T) {
	it(func() {
		mock.ExpectExec(regexp.QuoteMeta("SET data = jsonb_set(data, $3::text[], to_jsonb(GREATEST(COALESCE((data #>> $3::text[])::numeric, 0) + $4, 0)), true)")).
			WithArgs("reports", "r1", sqlmock.AnyArg(), -1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, pg.Increment(context.Background(), "reports", "r1", "votes.true", -1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_IncrementMissing(t *testing.T) {
	it(func() {
		mock.ExpectExec("UPDATE documents").
			WithArgs("reports", "gone", sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := pg.Increment(context.Background(), "reports", "gone", "votes.true", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStore_MergeBuildsNestedSet(t *testing.T) {
	it(func() {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET data = jsonb_set(data || $3::jsonb, $4::text[], $5::jsonb, true), updated_at = NOW() WHERE collection = $1 AND id = $2")).
			WithArgs("reports", "r1", jsonArg{want: map[string]any{"description": "edited"}}, sqlmock.AnyArg(), []byte(`"Dhaka"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := pg.Merge(context.Background(), "reports", "r1", map[string]any{
			"description":      "edited",
			"location.address": "Dhaka",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_QueryWithFilterAndOrder(t *testing.T) {
	it(func() {
		t1 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND data->>$2 = $3 ORDER BY created_at DESC, id DESC")).
			WithArgs("reports", "userId", "u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
				AddRow("b", []byte(`{"userId":"u1"}`), t1, t1).
				AddRow("a", []byte(`{"userId":"u1"}`), t0, t0))

		q := Query{Collection: "reports"}.Where("userId", "u1").OrderedBy(FieldCreatedAt, true)
		docs, err := pg.Query(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "b", docs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_SubscribeRedeliversAfterLocalWrite(t *testing.T) {
	it(func() {
		now := time.Now()
		rows := func(ids ...string) *sqlmock.Rows {
			r := sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"})
			for _, id := range ids {
				r.AddRow(id, []byte(`{"reportId":"r1"}`), now, now)
			}
			return r
		}
		mock.ExpectQuery("SELECT id, data").WithArgs("comments", "reportId", "r1").WillReturnRows(rows())
		mock.ExpectQuery("INSERT INTO documents").WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectQuery("SELECT id, data").WithArgs("comments", "reportId", "r1").WillReturnRows(rows("c1"))

		var sizes []int
		sub, err := pg.Subscribe(context.Background(), Query{Collection: "comments"}.Where("reportId", "r1"), func(snap Snapshot) {
			require.NoError(t, snap.Err)
			sizes = append(sizes, len(snap.Documents))
		})
		require.NoError(t, err)
		defer sub.Close()

		_, err = pg.Create(context.Background(), "comments", map[string]any{"reportId": "r1"})
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1}, sizes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_QueryByDocumentID(t *testing.T) {
	it(func() {
		ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2 ORDER BY id ASC")).
			WithArgs("reports", "r9").
			WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
				AddRow("r9", []byte(`{"status":"approved"}`), ts, ts))

		docs, err := pg.Query(context.Background(), Query{Collection: "reports"}.Where(FieldDocumentID, "r9"))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "approved", docs[0].String("status"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
