package service

import (
	"context"
	"sort"
	"strings"

	"corruption-report-service/internal/messaging"
	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"

	"github.com/apex/log"
)

// ModerationService holds the admin controlled parts of a report's
// lifecycle and user administration.
type ModerationService struct {
	reportRepo *repository.ReportRepository
	userRepo   *repository.UserRepository
	events     EventLog
}

func NewModerationService(reportRepo *repository.ReportRepository, userRepo *repository.UserRepository, events EventLog) *ModerationService {
	return &ModerationService{
		reportRepo: reportRepo,
		userRepo:   userRepo,
		events:     events,
	}
}

// SetStatus moves a report to status. Any transition between pending,
// approved and rejected is allowed. Setting the current status again
// changes nothing.
func (s *ModerationService) SetStatus(ctx context.Context, actor model.Actor, reportID string, status model.ReportStatus) (*model.Report, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, invalid("status", "unknown status %q", status)
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if report.Status == status {
		return report, nil
	}

	if err := s.reportRepo.UpdateStatus(ctx, reportID, status); err != nil {
		return nil, classify(err)
	}
	previous := report.Status
	report.Status = status

	emit(ctx, s.events, messaging.RoutingKeyStatusUpdate, messaging.StatusUpdateMessage{
		ReportID:    reportID,
		ReporterID:  report.UserID,
		OldStatus:   string(previous),
		NewStatus:   string(status),
		ModeratorID: actor.UserID,
		Timestamp:   now(),
	})
	log.WithFields(log.Fields{
		"report_id": reportID,
		"from":      previous,
		"to":        status,
		"admin":     actor.UserID,
	}).Info("moderation: status changed")

	return report, nil
}

// EditReport applies an admin's content changes. The status is never
// touched by an edit.
func (s *ModerationService) EditReport(ctx context.Context, actor model.Actor, reportID string, edit *model.ReportEdit) (*model.Report, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	if edit == nil || edit.IsEmpty() {
		return nil, invalid("edit", "nothing to update")
	}
	if edit.Description != nil {
		d := strings.TrimSpace(*edit.Description)
		if d == "" {
			return nil, invalid("description", "must not be empty")
		}
		edit.Description = &d
	}
	if edit.CorruptionType != nil && !edit.CorruptionType.IsValid() {
		return nil, invalid("corruption_type", "unknown type %q", *edit.CorruptionType)
	}
	if edit.EvidenceLinks != nil {
		edit.EvidenceLinks = trimAll(edit.EvidenceLinks)
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}

	images, err := removeImages(report.EvidenceImages, edit.RemoveImageIndices)
	if err != nil {
		return nil, err
	}
	links := report.EvidenceLinks
	if edit.EvidenceLinks != nil {
		links = edit.EvidenceLinks
	}
	keptImages := report.EvidenceImages
	if images != nil {
		keptImages = images
	}
	if len(keptImages) == 0 && len(links) == 0 {
		return nil, invalid("evidence", "a report must keep at least one image or link")
	}
	if edit.Address != nil && report.Location == nil {
		return nil, invalid("address", "report has no location")
	}

	if err := s.reportRepo.UpdateContent(ctx, reportID, edit, images); err != nil {
		return nil, classify(err)
	}
	log.WithFields(log.Fields{"report_id": reportID, "admin": actor.UserID}).Info("moderation: report edited")

	updated, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

// removeImages drops the images at the given indices. It returns nil when
// nothing is removed.
func removeImages(images []string, indices []int) ([]string, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(images) {
			return nil, invalid("remove_image_indices", "index %d out of range", i)
		}
		drop[i] = true
	}
	kept := make([]string, 0, len(images))
	for i, img := range images {
		if !drop[i] {
			kept = append(kept, img)
		}
	}
	return kept, nil
}

// DeleteReport removes the report document. Admins may always delete; an
// author may delete their own report until it is approved. Votes and
// comments of the report are left in place.
func (s *ModerationService) DeleteReport(ctx context.Context, actor model.Actor, reportID string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return classify(err)
	}

	switch {
	case actor.IsAdmin():
	case report.UserID == actor.UserID && report.Status != model.StatusApproved:
	case report.UserID == actor.UserID:
		return denied("approved reports can only be deleted by an admin")
	default:
		return denied("only the author or an admin can delete report %s", reportID)
	}

	if err := s.reportRepo.Delete(ctx, reportID); err != nil {
		return classify(err)
	}
	log.WithFields(log.Fields{"report_id": reportID, "by": actor.UserID}).Info("moderation: report deleted")
	return nil
}

// AllReports lists every report regardless of status, newest first.
func (s *ModerationService) AllReports(ctx context.Context, actor model.Actor) (*model.ReportListResponse, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	reports, err := s.reportRepo.FindAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	model.SortByNewest(reports)
	return &model.ReportListResponse{Reports: reports, Total: len(reports)}, nil
}

func (s *ModerationService) ListUsers(ctx context.Context, actor model.Actor) (*model.UserListResponse, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	SortUsers(users)
	return &model.UserListResponse{Users: users, Total: len(users)}, nil
}

// SortUsers orders profiles by email, then uid.
func SortUsers(users []model.UserProfile) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Email == users[j].Email {
			return users[i].UID < users[j].UID
		}
		return users[i].Email < users[j].Email
	})
}

// SetUserDisabled blocks or unblocks a user's writes. Their existing
// reports and comments stay.
func (s *ModerationService) SetUserDisabled(ctx context.Context, actor model.Actor, uid string, disabled bool) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	if err := s.userRepo.SetDisabled(ctx, uid, disabled); err != nil {
		return classify(err)
	}
	log.WithFields(log.Fields{"uid": uid, "disabled": disabled, "admin": actor.UserID}).Info("moderation: user disabled flag set")
	return nil
}

// DeleteUser removes the user's profile without touching what they wrote.
func (s *ModerationService) DeleteUser(ctx context.Context, actor model.Actor, uid string) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	existing, err := s.userRepo.FindByID(ctx, uid)
	if err != nil {
		return classify(err)
	}
	if existing == nil {
		return classify(repository.ErrUserNotFound)
	}
	if err := s.userRepo.Delete(ctx, uid); err != nil {
		return classify(err)
	}
	log.WithFields(log.Fields{"uid": uid, "admin": actor.UserID}).Info("moderation: user deleted")
	return nil
}
