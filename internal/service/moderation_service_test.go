package service

import (
	"testing"

	"corruption-report-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportIDs(rs []model.Report) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestSetStatus_AdminOnly(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusPending)

	_, err := f.moderation.SetStatus(f.ctx, alice, r.ID, model.StatusApproved)
	requireClass(t, err, ErrPermissionDenied)

	_, err = f.moderation.SetStatus(f.ctx, admin, r.ID, model.ReportStatus("archived"))
	requireClass(t, err, ErrValidation)

	_, err = f.moderation.SetStatus(f.ctx, admin, "missing", model.StatusApproved)
	requireClass(t, err, ErrNotFound)

	got, err := f.reportRepo.FindByID(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestSetStatus_AnyTransitionAndIdempotent(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusPending)

	for _, s := range []model.ReportStatus{
		model.StatusApproved,
		model.StatusApproved,
		model.StatusPending,
		model.StatusPending,
		model.StatusRejected,
		model.StatusApproved,
	} {
		updated, err := f.moderation.SetStatus(f.ctx, admin, r.ID, s)
		require.NoError(t, err)
		assert.Equal(t, s, updated.Status)

		got, err := f.reportRepo.FindByID(f.ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, s, got.Status)
	}

	events := f.events(t, "report.status.updated")
	require.Len(t, events, 4)
	assert.Equal(t, "pending", events[0]["old_status"])
	assert.Equal(t, "approved", events[0]["new_status"])
	assert.Equal(t, "root", events[0]["moderator_id"])
}

func TestVisibility_StatusGatesFeedNotOwnView(t *testing.T) {
	f := newFixture(t)
	pending := f.seedReport(t, "alice", model.StatusPending)
	rejected := f.seedReport(t, "alice", model.StatusRejected)
	approved := f.seedReport(t, "alice", model.StatusApproved)

	// Votes never make a hidden report public.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.reportRepo.IncrementVote(f.ctx, pending.ID, model.VoteTrue, 10))
	}

	feed, err := f.reports.PublicFeed(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{approved.ID}, reportIDs(feed.Reports))

	nearby, err := f.reports.Nearby(f.ctx, "", 23.8103, 90.4125, 50)
	require.NoError(t, err)
	require.Len(t, nearby.Reports, 1)
	assert.Equal(t, approved.ID, nearby.Reports[0].ID)

	mine, err := f.reports.MyReports(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{approved.ID, rejected.ID, pending.ID}, reportIDs(mine.Reports))

	theirs, err := f.reports.MyReports(f.ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, theirs.Reports)
}

func TestEditReport_KeepsStatus(t *testing.T) {
	f := newFixture(t)
	r := &model.Report{
		UserID:         "alice",
		Description:    "old",
		CorruptionType: model.TypeBribery,
		EvidenceImages: []string{"aW1nMA==", "aW1nMQ==", "aW1nMg=="},
		Location:       &model.Location{Lat: 1, Lng: 2, Address: "old address"},
		Status:         model.StatusApproved,
		Votes:          model.EmptyTally(),
	}
	require.NoError(t, f.reportRepo.Create(f.ctx, r))

	desc := "  updated description "
	typ := model.TypeEmbezzlement
	addr := "new address"
	updated, err := f.moderation.EditReport(f.ctx, admin, r.ID, &model.ReportEdit{
		Description:        &desc,
		CorruptionType:     &typ,
		Address:            &addr,
		RemoveImageIndices: []int{0, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, updated.Status)
	assert.Equal(t, "updated description", updated.Description)
	assert.Equal(t, model.TypeEmbezzlement, updated.CorruptionType)
	assert.Equal(t, "new address", updated.Location.Address)
	assert.Equal(t, 1.0, updated.Location.Lat)
	assert.Equal(t, []string{"aW1nMQ=="}, updated.EvidenceImages)
}

func TestEditReport_Rejections(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusPending)
	desc := "x"

	_, err := f.moderation.EditReport(f.ctx, alice, r.ID, &model.ReportEdit{Description: &desc})
	requireClass(t, err, ErrPermissionDenied)

	_, err = f.moderation.EditReport(f.ctx, admin, r.ID, &model.ReportEdit{})
	requireClass(t, err, ErrValidation)

	blank := "   "
	_, err = f.moderation.EditReport(f.ctx, admin, r.ID, &model.ReportEdit{Description: &blank})
	requireClass(t, err, ErrValidation)

	_, err = f.moderation.EditReport(f.ctx, admin, r.ID, &model.ReportEdit{RemoveImageIndices: []int{0}})
	requireClass(t, err, ErrValidation)

	_, err = f.moderation.EditReport(f.ctx, admin, r.ID, &model.ReportEdit{EvidenceLinks: []string{" "}})
	requireClass(t, err, ErrValidation)

	got, err := f.reportRepo.FindByID(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "officer demanded a fee", got.Description)
	assert.Equal(t, []string{"https://example.org/evidence"}, got.EvidenceLinks)
}

func TestDeleteReport_Rules(t *testing.T) {
	f := newFixture(t)

	own := f.seedReport(t, "alice", model.StatusPending)
	require.NoError(t, f.moderation.DeleteReport(f.ctx, alice, own.ID))

	rejected := f.seedReport(t, "alice", model.StatusRejected)
	requireClass(t, f.moderation.DeleteReport(f.ctx, bob, rejected.ID), ErrPermissionDenied)
	require.NoError(t, f.moderation.DeleteReport(f.ctx, alice, rejected.ID))

	approved := f.seedReport(t, "alice", model.StatusApproved)
	requireClass(t, f.moderation.DeleteReport(f.ctx, alice, approved.ID), ErrPermissionDenied)
	require.NoError(t, f.moderation.DeleteReport(f.ctx, admin, approved.ID))

	requireClass(t, f.moderation.DeleteReport(f.ctx, admin, approved.ID), ErrNotFound)
	assert.Equal(t, 0, f.count(t, "reports"))
}

func TestDeleteReport_LeavesVotesAndCommentsUnreachable(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusApproved)

	_, err := f.votes.CastVote(f.ctx, bob, r.ID, model.VoteTrue)
	require.NoError(t, err)
	_, err = f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "seen this too"})
	require.NoError(t, err)

	require.NoError(t, f.moderation.DeleteReport(f.ctx, admin, r.ID))

	assert.Equal(t, 1, f.count(t, "votes"))
	assert.Equal(t, 1, f.count(t, "comments"))

	_, err = f.comments.Thread(f.ctx, bob, r.ID)
	requireClass(t, err, ErrNotFound)
	_, err = f.reports.GetReport(f.ctx, admin, r.ID)
	requireClass(t, err, ErrNotFound)

	feed, err := f.reports.PublicFeed(f.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, feed.Reports)

	all, err := f.comments.AllComments(f.ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, all, "comment still listed against a deleted report")
}

func TestUserAdministration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.userRepo.Upsert(f.ctx, &model.UserProfile{UID: "alice", Email: "alice@example.org", Role: model.RoleUser}))
	require.NoError(t, f.userRepo.Upsert(f.ctx, &model.UserProfile{UID: "root", Email: "admin@example.org", Role: model.RoleAdmin}))
	r := f.seedReport(t, "alice", model.StatusApproved)

	_, err := f.moderation.ListUsers(f.ctx, alice)
	requireClass(t, err, ErrPermissionDenied)

	users, err := f.moderation.ListUsers(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, users.Total)
	assert.Equal(t, "admin@example.org", users.Users[0].Email)

	requireClass(t, f.moderation.SetUserDisabled(f.ctx, alice, "alice", true), ErrPermissionDenied)
	require.NoError(t, f.moderation.SetUserDisabled(f.ctx, admin, "alice", true))
	requireClass(t, f.moderation.SetUserDisabled(f.ctx, admin, "ghost", true), ErrNotFound)

	actor, err := f.users.Resolve(f.ctx, "alice", "")
	require.NoError(t, err)
	assert.True(t, actor.Disabled)
	_, err = f.votes.CastVote(f.ctx, actor, r.ID, model.VoteTrue)
	requireClass(t, err, ErrPermissionDenied)

	require.NoError(t, f.moderation.DeleteUser(f.ctx, admin, "alice"))
	requireClass(t, f.moderation.DeleteUser(f.ctx, admin, "alice"), ErrNotFound)

	// Authored content survives the profile.
	got, err := f.reports.GetReport(f.ctx, bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}

func TestAllReports_AdminNewestFirst(t *testing.T) {
	f := newFixture(t)
	a := f.seedReport(t, "alice", model.StatusPending)
	b := f.seedReport(t, "bob", model.StatusRejected)

	_, err := f.moderation.AllReports(f.ctx, bob)
	requireClass(t, err, ErrPermissionDenied)

	all, err := f.moderation.AllReports(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, reportIDs(all.Reports))
}
