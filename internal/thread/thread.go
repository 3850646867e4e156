// Package thread rebuilds the two-tier comment view of a report from a flat
// snapshot of comment records.
package thread

import (
	"sort"

	"corruption-report-service/internal/model"
)

// Thread is a root comment and every comment that descends from it,
// flattened into a single reply tier.
type Thread struct {
	Root    model.Comment   `json:"root"`
	Replies []model.Comment `json:"replies"`
}

// Build groups comments into threads. Roots and replies are ordered by
// creation time. A comment whose parent chain does not resolve to a root of
// the same report is an orphan and is dropped together with its descendants.
func Build(comments []model.Comment) []Thread {
	byID := make(map[string]model.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	resolved := make(map[string]string, len(comments)) // comment id -> root id, "" if orphaned
	var rootOf func(id string, seen map[string]bool) string
	rootOf = func(id string, seen map[string]bool) string {
		if r, ok := resolved[id]; ok {
			return r
		}
		c := byID[id]
		if c.IsRoot() {
			resolved[id] = id
			return id
		}
		if seen[id] {
			resolved[id] = ""
			return ""
		}
		seen[id] = true

		parent, ok := byID[*c.ParentID]
		root := ""
		if ok && parent.ReportID == c.ReportID {
			root = rootOf(parent.ID, seen)
		}
		resolved[id] = root
		return root
	}

	threads := make([]Thread, 0)
	index := make(map[string]int)
	for _, c := range sortedByTime(comments) {
		if c.IsRoot() {
			index[c.ID] = len(threads)
			threads = append(threads, Thread{Root: c, Replies: []model.Comment{}})
		}
	}
	for _, c := range sortedByTime(comments) {
		if c.IsRoot() {
			continue
		}
		root := rootOf(c.ID, map[string]bool{})
		if root == "" {
			continue
		}
		i := index[root]
		threads[i].Replies = append(threads[i].Replies, c)
	}
	return threads
}

// Count is the number of comments rendered across threads.
func Count(threads []Thread) int {
	n := 0
	for _, t := range threads {
		n += 1 + len(t.Replies)
	}
	return n
}

func sortedByTime(comments []model.Comment) []model.Comment {
	out := make([]model.Comment, len(comments))
	copy(out, comments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
