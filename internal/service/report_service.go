package service

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	"corruption-report-service/internal/geo"
	"corruption-report-service/internal/messaging"
	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"

	"github.com/apex/log"
)

// Geocoder resolves between coordinates and human readable addresses.
// Lookups are best effort.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
	Search(ctx context.Context, address string) (lat, lng float64, err error)
}

type ReportService struct {
	reportRepo *repository.ReportRepository
	geocoder   Geocoder
	events     EventLog
}

func NewReportService(reportRepo *repository.ReportRepository, geocoder Geocoder, events EventLog) *ReportService {
	return &ReportService{
		reportRepo: reportRepo,
		geocoder:   geocoder,
		events:     events,
	}
}

// CreateReport validates and stores a new pending report. Nothing is
// written when validation fails.
func (s *ReportService) CreateReport(ctx context.Context, actor model.Actor, req *model.CreateReportRequest) (*model.Report, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, invalid("description", "is required")
	}
	if !req.CorruptionType.IsValid() {
		return nil, invalid("corruption_type", "unknown type %q", req.CorruptionType)
	}
	links := trimAll(req.EvidenceLinks)
	if len(req.EvidenceImages) == 0 && len(links) == 0 {
		return nil, invalid("evidence", "at least one image or link is required")
	}
	for i, img := range req.EvidenceImages {
		if err := checkImage(img); err != nil {
			return nil, invalid("evidence_images", "image %d: %v", i, err)
		}
	}

	location, err := s.resolveLocation(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &model.Report{
		UserID:         actor.UserID,
		Description:    description,
		CorruptionType: req.CorruptionType,
		EvidenceImages: append([]string{}, req.EvidenceImages...),
		EvidenceLinks:  links,
		Location:       location,
		Status:         model.StatusPending,
		Votes:          model.EmptyTally(),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, classify(err)
	}

	emit(ctx, s.events, messaging.RoutingKeyReportCreated, messaging.ReportCreatedMessage{
		ReportID:       report.ID,
		ReporterID:     report.UserID,
		CorruptionType: string(report.CorruptionType),
		Address:        location.Address,
		Timestamp:      now(),
	})
	log.WithFields(log.Fields{"report_id": report.ID, "user_id": actor.UserID}).Info("report: created")

	return report, nil
}

// resolveLocation fills in whichever of coordinates and address the
// request left out. Missing coordinates that cannot be found from the
// address are a validation failure; a missing address falls back to the
// raw coordinates.
func (s *ReportService) resolveLocation(ctx context.Context, req *model.CreateReportRequest) (*model.Location, error) {
	address := strings.TrimSpace(req.Address)

	var lat, lng float64
	switch {
	case req.Lat != nil && req.Lng != nil:
		lat, lng = *req.Lat, *req.Lng
	case address != "" && s.geocoder != nil:
		var err error
		lat, lng, err = s.geocoder.Search(ctx, address)
		if err != nil {
			log.WithError(err).WithField("address", address).Warn("report: address lookup")
			return nil, invalid("location", "no coordinates found for %q", address)
		}
	default:
		return nil, invalid("location", "is required")
	}
	if !geo.ValidCoordinates(lat, lng) {
		return nil, invalid("location", "coordinates out of range")
	}

	if address == "" && s.geocoder != nil {
		resolved, err := s.geocoder.Reverse(ctx, lat, lng)
		if err != nil {
			log.WithError(err).Warn("report: reverse geocode")
		}
		address = strings.TrimSpace(resolved)
	}
	if address == "" {
		address = FormatCoordinates(lat, lng)
	}
	return &model.Location{Lat: lat, Lng: lng, Address: address}, nil
}

// FormatCoordinates is the address used when no better one is known.
func FormatCoordinates(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lng, 'f', -1, 64)
}

// checkImage accepts a base64 image, optionally as a data URL, whose
// decoded size is within model.MaxImageBytes.
func checkImage(img string) error {
	payload := img
	if strings.HasPrefix(payload, "data:") {
		i := strings.IndexByte(payload, ',')
		if i < 0 {
			return errMalformedImage
		}
		payload = payload[i+1:]
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > model.MaxImageBytes+2 {
		return errImageTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errMalformedImage
	}
	if len(raw) == 0 {
		return errMalformedImage
	}
	if len(raw) > model.MaxImageBytes {
		return errImageTooLarge
	}
	return nil
}

// GetReport returns a report the actor is allowed to see. Reports hidden
// from the actor are reported as not found.
func (s *ReportService) GetReport(ctx context.Context, actor model.Actor, id string) (*model.Report, error) {
	report, err := s.reportRepo.FindByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if !CanView(actor, report) {
		return nil, classify(repository.ErrReportNotFound)
	}
	return report, nil
}

// PublicFeed lists approved reports, newest first, optionally restricted
// to one corruption type.
func (s *ReportService) PublicFeed(ctx context.Context, corruptionType model.CorruptionType) (*model.ReportListResponse, error) {
	reports, err := s.publicReports(ctx, corruptionType)
	if err != nil {
		return nil, err
	}
	return &model.ReportListResponse{Reports: reports, Total: len(reports)}, nil
}

// Nearby lists approved reports strictly within radiusKm of the origin,
// nearest first.
func (s *ReportService) Nearby(ctx context.Context, corruptionType model.CorruptionType, lat, lng, radiusKm float64) (*model.NearbyListResponse, error) {
	if !geo.ValidCoordinates(lat, lng) {
		return nil, invalid("origin", "coordinates out of range")
	}
	if radiusKm <= 0 {
		return nil, invalid("radius_km", "must be positive")
	}
	reports, err := s.publicReports(ctx, corruptionType)
	if err != nil {
		return nil, err
	}
	nearby := geo.FilterNearby(reports, lat, lng, radiusKm)
	return &model.NearbyListResponse{Reports: nearby, Total: len(nearby)}, nil
}

func (s *ReportService) publicReports(ctx context.Context, corruptionType model.CorruptionType) ([]model.Report, error) {
	if corruptionType != "" && !corruptionType.IsValid() {
		return nil, invalid("type", "unknown type %q", corruptionType)
	}
	reports, err := s.reportRepo.FindPublic(ctx)
	if err != nil {
		return nil, classify(err)
	}
	reports = FilterByType(reports, corruptionType)
	model.SortByNewest(reports)
	return reports, nil
}

// MyReports lists every report the actor authored, whatever its status.
func (s *ReportService) MyReports(ctx context.Context, actor model.Actor) (*model.ReportListResponse, error) {
	if actor.UserID == "" {
		return nil, denied("authentication required")
	}
	reports, err := s.reportRepo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, classify(err)
	}
	model.SortByNewest(reports)
	return &model.ReportListResponse{Reports: reports, Total: len(reports)}, nil
}

// FilterByType keeps the reports of one corruption type; an empty type
// keeps everything.
func FilterByType(reports []model.Report, t model.CorruptionType) []model.Report {
	if t == "" {
		return reports
	}
	out := make([]model.Report, 0, len(reports))
	for _, r := range reports {
		if r.CorruptionType == t {
			out = append(out, r)
		}
	}
	return out
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
