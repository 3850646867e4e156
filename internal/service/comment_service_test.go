package service

import (
	"testing"

	"corruption-report-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestAddComment_RootAndReply(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusApproved)

	root, err := f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: " first "})
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Equal(t, "first", root.Text)

	reply, err := f.comments.AddComment(f.ctx, alice, r.ID, &model.CreateCommentRequest{Text: "thanks", ParentID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	nested, err := f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "np", ParentID: &reply.ID})
	require.NoError(t, err)

	threads, err := f.comments.Thread(f.ctx, bob, r.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, root.ID, threads[0].Root.ID)
	require.Len(t, threads[0].Replies, 2)
	assert.Equal(t, reply.ID, threads[0].Replies[0].ID)
	assert.Equal(t, nested.ID, threads[0].Replies[1].ID)

	events := f.events(t, "comment.created")
	require.Len(t, events, 3)
	assert.Equal(t, root.ID, events[1]["parent_id"])
}

func TestAddComment_Rejections(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusApproved)
	other := f.seedReport(t, "alice", model.StatusApproved)
	hidden := f.seedReport(t, "alice", model.StatusPending)

	foreign, err := f.comments.AddComment(f.ctx, bob, other.ID, &model.CreateCommentRequest{Text: "elsewhere"})
	require.NoError(t, err)

	_, err = f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "  "})
	requireClass(t, err, ErrValidation)

	_, err = f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "hi", ParentID: strPtr("gone")})
	requireClass(t, err, ErrValidation)

	_, err = f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "hi", ParentID: &foreign.ID})
	requireClass(t, err, ErrValidation)

	_, err = f.comments.AddComment(f.ctx, bob, hidden.ID, &model.CreateCommentRequest{Text: "hi"})
	requireClass(t, err, ErrNotFound)

	_, err = f.comments.AddComment(f.ctx, bob, "missing", &model.CreateCommentRequest{Text: "hi"})
	requireClass(t, err, ErrNotFound)

	_, err = f.comments.AddComment(f.ctx, model.Actor{UserID: "bob", Disabled: true}, r.ID, &model.CreateCommentRequest{Text: "hi"})
	requireClass(t, err, ErrPermissionDenied)

	assert.Equal(t, 1, f.count(t, "comments"))

	// The author may discuss their own pending report.
	_, err = f.comments.AddComment(f.ctx, alice, hidden.ID, &model.CreateCommentRequest{Text: "more detail"})
	require.NoError(t, err)
}

func TestEditComment_AuthorOrAdmin(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusApproved)
	c, err := f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "original"})
	require.NoError(t, err)

	_, err = f.comments.EditComment(f.ctx, alice, c.ID, "hijacked")
	requireClass(t, err, ErrPermissionDenied)

	edited, err := f.comments.EditComment(f.ctx, bob, c.ID, " fixed typo ")
	require.NoError(t, err)
	assert.Equal(t, "fixed typo", edited.Text)

	_, err = f.comments.EditComment(f.ctx, admin, c.ID, "moderated")
	require.NoError(t, err)

	stored, err := f.commentRepo.FindByID(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "moderated", stored.Text)

	_, err = f.comments.EditComment(f.ctx, bob, "missing", "x")
	requireClass(t, err, ErrNotFound)
	_, err = f.comments.EditComment(f.ctx, bob, c.ID, "")
	requireClass(t, err, ErrValidation)
}

func TestDeleteComment_OrphansReplies(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusApproved)
	root, err := f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "root"})
	require.NoError(t, err)
	_, err = f.comments.AddComment(f.ctx, alice, r.ID, &model.CreateCommentRequest{Text: "reply", ParentID: &root.ID})
	require.NoError(t, err)
	other, err := f.comments.AddComment(f.ctx, alice, r.ID, &model.CreateCommentRequest{Text: "other root"})
	require.NoError(t, err)

	requireClass(t, f.comments.DeleteComment(f.ctx, alice, root.ID), ErrPermissionDenied)
	require.NoError(t, f.comments.DeleteComment(f.ctx, admin, root.ID))

	threads, err := f.comments.Thread(f.ctx, bob, r.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, other.ID, threads[0].Root.ID)
	assert.Empty(t, threads[0].Replies)

	// The reply record itself is kept.
	assert.Equal(t, 2, f.count(t, "comments"))
}

func TestAllComments_AdminOnly(t *testing.T) {
	f := newFixture(t)
	r := f.seedReport(t, "alice", model.StatusApproved)
	first, err := f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "a"})
	require.NoError(t, err)
	second, err := f.comments.AddComment(f.ctx, bob, r.ID, &model.CreateCommentRequest{Text: "b"})
	require.NoError(t, err)

	_, err = f.comments.AllComments(f.ctx, bob)
	requireClass(t, err, ErrPermissionDenied)

	all, err := f.comments.AllComments(f.ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Resolve(f.ctx, "", "")
	requireClass(t, err, ErrPermissionDenied)

	actor, err := f.users.Resolve(f.ctx, "new", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, actor.Role)
	assert.Equal(t, 0, f.count(t, "users"))

	actor, err = f.users.Resolve(f.ctx, "new", "new@example.org")
	require.NoError(t, err)
	assert.Equal(t, "new", actor.UserID)
	assert.Equal(t, 1, f.count(t, "users"))

	require.NoError(t, f.userRepo.Upsert(f.ctx, &model.UserProfile{UID: "boss", Role: model.RoleAdmin}))
	actor, err = f.users.Resolve(f.ctx, "boss", "boss@example.org")
	require.NoError(t, err)
	assert.True(t, actor.IsAdmin())
}
