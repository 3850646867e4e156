package service

import (
	"context"
	"errors"
	"strings"

	"corruption-report-service/internal/messaging"
	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"
	"corruption-report-service/internal/thread"

	"github.com/apex/log"
)

type CommentService struct {
	commentRepo *repository.CommentRepository
	reportRepo  *repository.ReportRepository
	events      EventLog
}

func NewCommentService(commentRepo *repository.CommentRepository, reportRepo *repository.ReportRepository, events EventLog) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		reportRepo:  reportRepo,
		events:      events,
	}
}

// AddComment posts a comment on a report the actor can see. A reply must
// name a parent comment of the same report.
func (s *CommentService) AddComment(ctx context.Context, actor model.Actor, reportID string, req *model.CreateCommentRequest) (*model.Comment, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, invalid("text", "is required")
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !CanView(actor, report) {
		return nil, classify(repository.ErrReportNotFound)
	}

	comment := &model.Comment{ReportID: reportID, UserID: actor.UserID, Text: text}
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parentID := strings.TrimSpace(*req.ParentID)
		parent, err := s.commentRepo.FindByID(ctx, parentID)
		if errors.Is(err, repository.ErrCommentNotFound) {
			return nil, invalid("parent_id", "comment %s does not exist", parentID)
		}
		if err != nil {
			return nil, classify(err)
		}
		if parent.ReportID != reportID {
			return nil, invalid("parent_id", "comment %s belongs to another report", parentID)
		}
		comment.ParentID = &parentID
	}

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, classify(err)
	}

	msg := messaging.CommentCreatedMessage{
		ReportID:  reportID,
		CommentID: comment.ID,
		UserID:    actor.UserID,
		Timestamp: now(),
	}
	if comment.ParentID != nil {
		msg.ParentID = *comment.ParentID
	}
	emit(ctx, s.events, messaging.RoutingKeyCommentCreated, msg)
	log.WithFields(log.Fields{"report_id": reportID, "comment_id": comment.ID}).Info("comment: created")

	return comment, nil
}

// EditComment replaces the text of a comment. Author or admin only.
func (s *CommentService) EditComment(ctx context.Context, actor model.Actor, commentID, text string) (*model.Comment, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "is required")
	}

	comment, err := s.ownedComment(ctx, actor, commentID)
	if err != nil {
		return nil, err
	}
	if err := s.commentRepo.UpdateText(ctx, commentID, text); err != nil {
		return nil, classify(err)
	}
	comment.Text = text
	return comment, nil
}

// DeleteComment removes one comment. Its replies are not deleted and drop
// out of the thread as orphans.
func (s *CommentService) DeleteComment(ctx context.Context, actor model.Actor, commentID string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}
	if _, err := s.ownedComment(ctx, actor, commentID); err != nil {
		return err
	}
	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return classify(err)
	}
	log.WithFields(log.Fields{"comment_id": commentID, "by": actor.UserID}).Info("comment: deleted")
	return nil
}

func (s *CommentService) ownedComment(ctx context.Context, actor model.Actor, commentID string) (*model.Comment, error) {
	comment, err := s.commentRepo.FindByID(ctx, commentID)
	if err != nil {
		return nil, classify(err)
	}
	if !actor.IsAdmin() && comment.UserID != actor.UserID {
		return nil, denied("only the author or an admin can change comment %s", commentID)
	}
	return comment, nil
}

// Thread returns the rendered comment threads of a visible report.
func (s *CommentService) Thread(ctx context.Context, actor model.Actor, reportID string) ([]thread.Thread, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !CanView(actor, report) {
		return nil, classify(repository.ErrReportNotFound)
	}
	comments, err := s.commentRepo.FindByReport(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	return thread.Build(comments), nil
}

// AllComments lists every comment whose report still exists, newest first.
// Admin only.
func (s *CommentService) AllComments(ctx context.Context, actor model.Actor) ([]model.Comment, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.FindAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	reports, err := s.reportRepo.FindAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return AttachedComments(comments, reports), nil
}

// AttachedComments drops comments whose report is gone. Deletes do not
// cascade, so those comments stay in the store but must not be listed.
func AttachedComments(comments []model.Comment, reports []model.Report) []model.Comment {
	exists := make(map[string]bool, len(reports))
	for _, r := range reports {
		exists[r.ID] = true
	}
	out := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		if exists[c.ReportID] {
			out = append(out, c)
		}
	}
	return out
}
