package repository

import (
	"context"
	"errors"
	"fmt"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/store"
)

var ErrCommentNotFound = errors.New("comment not found")

type CommentRepository struct {
	store store.DocumentStore
}

func NewCommentRepository(s store.DocumentStore) *CommentRepository {
	return &CommentRepository{store: s}
}

func (r *CommentRepository) Create(ctx context.Context, comment *model.Comment) error {
	var parent any
	if !comment.IsRoot() {
		parent = *comment.ParentID
	}
	doc, err := r.store.Create(ctx, CollectionComments, map[string]any{
		"reportId": comment.ReportID,
		"userId":   comment.UserID,
		"text":     comment.Text,
		"parentId": parent,
	})
	if err != nil {
		return err
	}
	comment.ID = doc.ID
	comment.CreatedAt = doc.CreatedAt
	return nil
}

func (r *CommentRepository) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	doc, err := r.store.Get(ctx, CollectionComments, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", id, ErrCommentNotFound)
		}
		return nil, err
	}
	c := CommentFromDocument(doc)
	return &c, nil
}

func (r *CommentRepository) UpdateText(ctx context.Context, id, text string) error {
	err := r.store.Merge(ctx, CollectionComments, id, map[string]any{"text": text})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrCommentNotFound)
	}
	return err
}

func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionComments, id)
}

func (r *CommentRepository) FindByReport(ctx context.Context, reportID string) ([]model.Comment, error) {
	docs, err := r.store.Query(ctx, ReportCommentsQuery(reportID))
	if err != nil {
		return nil, err
	}
	return CommentsFromDocuments(docs), nil
}

func (r *CommentRepository) FindAll(ctx context.Context) ([]model.Comment, error) {
	docs, err := r.store.Query(ctx, AllCommentsQuery())
	if err != nil {
		return nil, err
	}
	return CommentsFromDocuments(docs), nil
}

func ReportCommentsQuery(reportID string) store.Query {
	return store.Query{Collection: CollectionComments}.Where("reportId", reportID)
}

func AllCommentsQuery() store.Query {
	return store.Query{Collection: CollectionComments}.OrderedBy(store.FieldCreatedAt, true)
}

func CommentFromDocument(doc store.Document) model.Comment {
	c := model.Comment{
		ID:        doc.ID,
		ReportID:  doc.String("reportId"),
		UserID:    doc.String("userId"),
		Text:      doc.String("text"),
		CreatedAt: doc.CreatedAt,
	}
	if parent := doc.String("parentId"); parent != "" {
		c.ParentID = &parent
	}
	return c
}

func CommentsFromDocuments(docs []store.Document) []model.Comment {
	comments := make([]model.Comment, 0, len(docs))
	for _, d := range docs {
		comments = append(comments, CommentFromDocument(d))
	}
	return comments
}
