package repository

import (
	"context"
	"errors"
	"fmt"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/store"
)

var ErrReportNotFound = errors.New("report not found")

type ReportRepository struct {
	store store.DocumentStore
}

func NewReportRepository(s store.DocumentStore) *ReportRepository {
	return &ReportRepository{store: s}
}

func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	fields := map[string]any{
		"userId":         report.UserID,
		"description":    report.Description,
		"corruptionType": string(report.CorruptionType),
		"evidenceBase64": stringsToAny(report.EvidenceImages),
		"evidenceLinks":  stringsToAny(report.EvidenceLinks),
		"status":         string(report.Status),
		"votes":          tallyToFields(report.Votes),
	}
	if report.Location != nil {
		fields["location"] = map[string]any{
			"lat":     report.Location.Lat,
			"lng":     report.Location.Lng,
			"address": report.Location.Address,
		}
	}

	doc, err := r.store.Create(ctx, CollectionReports, fields)
	if err != nil {
		return err
	}
	report.ID = doc.ID
	report.CreatedAt = doc.CreatedAt
	report.UpdatedAt = doc.UpdatedAt
	return nil
}

func (r *ReportRepository) FindByID(ctx context.Context, id string) (*model.Report, error) {
	doc, err := r.store.Get(ctx, CollectionReports, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", id, ErrReportNotFound)
		}
		return nil, err
	}
	report := ReportFromDocument(doc)
	return &report, nil
}

func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status model.ReportStatus) error {
	return r.merge(ctx, id, map[string]any{"status": string(status)})
}

// UpdateContent applies an administrator edit. images is the full
// replacement list of inline evidence images, or nil to keep them.
func (r *ReportRepository) UpdateContent(ctx context.Context, id string, edit *model.ReportEdit, images []string) error {
	fields := make(map[string]any)
	if edit.Description != nil {
		fields["description"] = *edit.Description
	}
	if edit.CorruptionType != nil {
		fields["corruptionType"] = string(*edit.CorruptionType)
	}
	if edit.Address != nil {
		fields["location.address"] = *edit.Address
	}
	if edit.EvidenceLinks != nil {
		fields["evidenceLinks"] = stringsToAny(edit.EvidenceLinks)
	}
	if images != nil {
		fields["evidenceBase64"] = stringsToAny(images)
	}
	if len(fields) == 0 {
		return nil
	}
	return r.merge(ctx, id, fields)
}

// IncrementVote adjusts one kind of the denormalized tally by delta.
func (r *ReportRepository) IncrementVote(ctx context.Context, id string, kind model.VoteKind, delta int) error {
	err := r.store.Increment(ctx, CollectionReports, id, "votes."+string(kind), delta)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrReportNotFound)
	}
	return err
}

// SetVotes overwrites the whole tally.
func (r *ReportRepository) SetVotes(ctx context.Context, id string, tally map[model.VoteKind]int) error {
	return r.merge(ctx, id, map[string]any{"votes": tallyToFields(tally)})
}

func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionReports, id)
}

func (r *ReportRepository) FindPublic(ctx context.Context) ([]model.Report, error) {
	return r.find(ctx, PublicReportsQuery())
}

func (r *ReportRepository) FindByUserID(ctx context.Context, userID string) ([]model.Report, error) {
	return r.find(ctx, UserReportsQuery(userID))
}

func (r *ReportRepository) FindAll(ctx context.Context) ([]model.Report, error) {
	return r.find(ctx, AllReportsQuery())
}

func (r *ReportRepository) find(ctx context.Context, q store.Query) ([]model.Report, error) {
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return ReportsFromDocuments(docs), nil
}

func (r *ReportRepository) merge(ctx context.Context, id string, fields map[string]any) error {
	err := r.store.Merge(ctx, CollectionReports, id, fields)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrReportNotFound)
	}
	return err
}

// PublicReportsQuery selects the reports every visitor may list.
func PublicReportsQuery() store.Query {
	return store.Query{Collection: CollectionReports}.Where("status", string(model.StatusApproved))
}

// UserReportsQuery selects an author's own reports, newest first.
func UserReportsQuery(userID string) store.Query {
	return store.Query{Collection: CollectionReports}.
		Where("userId", userID).
		OrderedBy(store.FieldCreatedAt, true)
}

func AllReportsQuery() store.Query {
	return store.Query{Collection: CollectionReports}.OrderedBy(store.FieldCreatedAt, true)
}

func ReportFromDocument(doc store.Document) model.Report {
	report := model.Report{
		ID:             doc.ID,
		UserID:         doc.String("userId"),
		Description:    doc.String("description"),
		CorruptionType: model.CorruptionType(doc.String("corruptionType")),
		EvidenceImages: doc.Strings("evidenceBase64"),
		EvidenceLinks:  doc.Strings("evidenceLinks"),
		Status:         model.ReportStatus(doc.String("status")),
		Votes:          model.EmptyTally(),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	for _, k := range model.VoteKinds {
		report.Votes[k] = doc.Int("votes." + string(k))
	}

	lat, okLat := doc.Float("location.lat")
	lng, okLng := doc.Float("location.lng")
	if okLat && okLng {
		report.Location = &model.Location{
			Lat:     lat,
			Lng:     lng,
			Address: doc.String("location.address"),
		}
	}
	return report
}

func ReportsFromDocuments(docs []store.Document) []model.Report {
	reports := make([]model.Report, 0, len(docs))
	for _, d := range docs {
		reports = append(reports, ReportFromDocument(d))
	}
	return reports
}

func tallyToFields(tally map[model.VoteKind]int) map[string]any {
	fields := make(map[string]any, len(model.VoteKinds))
	for _, k := range model.VoteKinds {
		fields[string(k)] = tally[k]
	}
	return fields
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
