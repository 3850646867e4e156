package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"
	"corruption-report-service/internal/store"

	"github.com/stretchr/testify/require"
)

var (
	alice = model.Actor{UserID: "alice", Role: model.RoleUser}
	bob   = model.Actor{UserID: "bob", Role: model.RoleUser}
	admin = model.Actor{UserID: "root", Role: model.RoleAdmin}
)

type stubGeocoder struct {
	address    string
	reverseErr error
	lat, lng   float64
	searchErr  error
	reverses   int
	searches   int
}

func (g *stubGeocoder) Reverse(_ context.Context, _, _ float64) (string, error) {
	g.reverses++
	return g.address, g.reverseErr
}

func (g *stubGeocoder) Search(_ context.Context, _ string) (float64, float64, error) {
	g.searches++
	return g.lat, g.lng, g.searchErr
}

type fixture struct {
	ctx context.Context
	mem *store.MemoryStore

	reportRepo  *repository.ReportRepository
	voteRepo    *repository.VoteRepository
	commentRepo *repository.CommentRepository
	userRepo    *repository.UserRepository
	outbox      *repository.OutboxRepository
	geocoder    *stubGeocoder

	votes      *VoteService
	moderation *ModerationService
	reports    *ReportService
	comments   *CommentService
	users      *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemoryStore(store.WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))
	t.Cleanup(func() { mem.Close() })

	f := &fixture{
		ctx:         context.Background(),
		mem:         mem,
		reportRepo:  repository.NewReportRepository(mem),
		voteRepo:    repository.NewVoteRepository(mem),
		commentRepo: repository.NewCommentRepository(mem),
		userRepo:    repository.NewUserRepository(mem),
		outbox:      repository.NewOutboxRepository(mem),
		geocoder:    &stubGeocoder{address: "Motijheel, Dhaka"},
	}
	f.votes = NewVoteService(f.voteRepo, f.reportRepo, f.outbox)
	f.moderation = NewModerationService(f.reportRepo, f.userRepo, f.outbox)
	f.reports = NewReportService(f.reportRepo, f.geocoder, f.outbox)
	f.comments = NewCommentService(f.commentRepo, f.reportRepo, f.outbox)
	f.users = NewUserService(f.userRepo)
	return f
}

// seedReport stores a report directly, bypassing validation.
func (f *fixture) seedReport(t *testing.T, author string, status model.ReportStatus) *model.Report {
	t.Helper()
	r := &model.Report{
		UserID:         author,
		Description:    "officer demanded a fee",
		CorruptionType: model.TypePoliceCorruption,
		EvidenceLinks:  []string{"https://example.org/evidence"},
		Location:       &model.Location{Lat: 23.8103, Lng: 90.4125, Address: "Dhaka"},
		Status:         status,
		Votes:          model.EmptyTally(),
	}
	require.NoError(t, f.reportRepo.Create(f.ctx, r))
	return r
}

func (f *fixture) tally(t *testing.T, reportID string) map[model.VoteKind]int {
	t.Helper()
	r, err := f.reportRepo.FindByID(f.ctx, reportID)
	require.NoError(t, err)
	return r.Votes
}

// recordCounts counts vote records per kind.
func (f *fixture) recordCounts(t *testing.T, reportID string) map[model.VoteKind]int {
	t.Helper()
	votes, err := f.voteRepo.FindByReport(f.ctx, reportID)
	require.NoError(t, err)
	counts := model.EmptyTally()
	for _, v := range votes {
		counts[v.Kind]++
	}
	return counts
}

func (f *fixture) events(t *testing.T, routingKey string) []map[string]any {
	t.Helper()
	msgs, err := f.outbox.GetPendingMessages(f.ctx, 1000)
	require.NoError(t, err)
	var out []map[string]any
	for _, m := range msgs {
		if m.RoutingKey != routingKey {
			continue
		}
		var body map[string]any
		require.NoError(t, json.Unmarshal(m.Payload, &body))
		out = append(out, body)
	}
	return out
}

func (f *fixture) count(t *testing.T, collection string) int {
	t.Helper()
	docs, err := f.mem.Query(f.ctx, store.Query{Collection: collection})
	require.NoError(t, err)
	return len(docs)
}

func requireClass(t *testing.T, err error, class error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, class), "expected %v, got %v", class, err)
}
