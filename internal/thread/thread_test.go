package thread

import (
	"testing"
	"time"

	"corruption-report-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func comment(id, parent string, at int) model.Comment {
	c := model.Comment{
		ID:        id,
		ReportID:  "r1",
		UserID:    "u-" + id,
		Text:      "text " + id,
		CreatedAt: epoch.Add(time.Duration(at) * time.Second),
	}
	if parent != "" {
		p := parent
		c.ParentID = &p
	}
	return c
}

func ids(cs []model.Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestBuild_OrdersRootsAndReplies(t *testing.T) {
	in := []model.Comment{
		comment("r1", "c1", 3),
		comment("c2", "", 2),
		comment("r2", "c1", 2),
		comment("c1", "", 1),
	}

	threads := Build(in)

	require.Len(t, threads, 2)
	assert.Equal(t, "c1", threads[0].Root.ID)
	assert.Equal(t, "c2", threads[1].Root.ID)
	assert.Equal(t, []string{"r2", "r1"}, ids(threads[0].Replies))
	assert.Empty(t, threads[1].Replies)
	assert.Equal(t, 4, Count(threads))
}

func TestBuild_FlattensNestedReplies(t *testing.T) {
	in := []model.Comment{
		comment("root", "", 1),
		comment("a", "root", 2),
		comment("a1", "a", 3),
		comment("a1x", "a1", 4),
		comment("b", "root", 5),
	}

	threads := Build(in)

	require.Len(t, threads, 1)
	assert.Equal(t, []string{"a", "a1", "a1x", "b"}, ids(threads[0].Replies))
}

func TestBuild_DropsOrphansAndTheirDescendants(t *testing.T) {
	in := []model.Comment{
		comment("root", "", 1),
		comment("ok", "root", 2),
		comment("orphan", "deleted", 3),
		comment("orphan-child", "orphan", 4),
	}

	threads := Build(in)

	require.Len(t, threads, 1)
	assert.Equal(t, []string{"ok"}, ids(threads[0].Replies))
	assert.Equal(t, 2, Count(threads))
}

func TestBuild_CrossReportParentIsUnresolved(t *testing.T) {
	foreign := comment("foreign", "", 1)
	foreign.ReportID = "r2"
	reply := comment("reply", "foreign", 2)

	threads := Build([]model.Comment{comment("root", "", 0), foreign, reply})

	for _, th := range threads {
		assert.NotContains(t, ids(th.Replies), "reply")
	}
}

func TestBuild_CycleIsOrphaned(t *testing.T) {
	threads := Build([]model.Comment{
		comment("root", "", 1),
		comment("x", "y", 2),
		comment("y", "x", 3),
	})

	require.Len(t, threads, 1)
	assert.Empty(t, threads[0].Replies)
}

func TestBuild_EmptyParentIDIsRoot(t *testing.T) {
	c := comment("c", "", 1)
	empty := ""
	c.ParentID = &empty

	threads := Build([]model.Comment{c})
	require.Len(t, threads, 1)
	assert.Equal(t, "c", threads[0].Root.ID)
}

func TestBuild_IsIdempotentAndOrderIndependent(t *testing.T) {
	a := []model.Comment{
		comment("c1", "", 1),
		comment("r1", "c1", 2),
		comment("c2", "", 3),
	}
	b := []model.Comment{a[2], a[1], a[0]}

	assert.Equal(t, Build(a), Build(b))
	assert.Equal(t, Build(a), Build(a))
	assert.NotNil(t, Build(nil))
}
