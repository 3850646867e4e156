package repository

import (
	"context"
	"errors"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/store"
)

type VoteRepository struct {
	store store.DocumentStore
}

func NewVoteRepository(s store.DocumentStore) *VoteRepository {
	return &VoteRepository{store: s}
}

// GetVote returns nil when the user holds no vote on the report.
func (r *VoteRepository) GetVote(ctx context.Context, reportID, userID string) (*model.Vote, error) {
	doc, err := r.store.Get(ctx, CollectionVotes, model.VoteID(reportID, userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	vote := voteFromDocument(doc)
	return &vote, nil
}

// PutVote creates or overwrites the user's vote record.
func (r *VoteRepository) PutVote(ctx context.Context, vote *model.Vote) error {
	return r.store.Set(ctx, CollectionVotes, model.VoteID(vote.ReportID, vote.UserID), map[string]any{
		"reportId": vote.ReportID,
		"userId":   vote.UserID,
		"type":     string(vote.Kind),
	})
}

func (r *VoteRepository) DeleteVote(ctx context.Context, reportID, userID string) error {
	return r.store.Delete(ctx, CollectionVotes, model.VoteID(reportID, userID))
}

// FindByReport scans every vote record of a report. Only the tally repair
// job uses it; the vote path itself works on point lookups.
func (r *VoteRepository) FindByReport(ctx context.Context, reportID string) ([]model.Vote, error) {
	docs, err := r.store.Query(ctx, store.Query{Collection: CollectionVotes}.Where("reportId", reportID))
	if err != nil {
		return nil, err
	}
	votes := make([]model.Vote, 0, len(docs))
	for _, d := range docs {
		votes = append(votes, voteFromDocument(d))
	}
	return votes, nil
}

func voteFromDocument(doc store.Document) model.Vote {
	return model.Vote{
		ReportID: doc.String("reportId"),
		UserID:   doc.String("userId"),
		Kind:     model.VoteKind(doc.String("type")),
	}
}
