package model

import (
	"sort"
	"time"
)

type ReportStatus string

const (
	StatusPending  ReportStatus = "pending"
	StatusApproved ReportStatus = "approved"
	StatusRejected ReportStatus = "rejected"
)

func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type CorruptionType string

const (
	TypeBribery          CorruptionType = "bribery"
	TypeLandGrab         CorruptionType = "land-grab"
	TypePoliceCorruption CorruptionType = "police-corruption"
	TypeEmbezzlement     CorruptionType = "embezzlement"
	TypeNepotism         CorruptionType = "nepotism"
	TypeExtortion        CorruptionType = "extortion"
	TypeOther            CorruptionType = "other"
)

// CorruptionTypes lists the accepted report categories in display order.
var CorruptionTypes = []CorruptionType{
	TypeBribery,
	TypeLandGrab,
	TypePoliceCorruption,
	TypeEmbezzlement,
	TypeNepotism,
	TypeExtortion,
	TypeOther,
}

func (t CorruptionType) IsValid() bool {
	for _, c := range CorruptionTypes {
		if c == t {
			return true
		}
	}
	return false
}

// Upper bound for one inline evidence image, in decoded bytes.
const MaxImageBytes = 500000

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type Report struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Description    string           `json:"description"`
	CorruptionType CorruptionType   `json:"corruption_type"`
	EvidenceImages []string         `json:"evidence_images"`
	EvidenceLinks  []string         `json:"evidence_links"`
	Location       *Location        `json:"location,omitempty"`
	Status         ReportStatus     `json:"status"`
	Votes          map[VoteKind]int `json:"votes"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsPublic reports whether the report may appear in public listings.
func (r *Report) IsPublic() bool {
	return r.Status == StatusApproved
}

// SortByNewest orders reports by creation time, newest first. Equal
// timestamps fall back to id so the order is stable across pushes.
func SortByNewest(reports []Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].ID > reports[j].ID
		}
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}

// Request/Response DTOs
type CreateReportRequest struct {
	Description    string         `json:"description" binding:"required"`
	CorruptionType CorruptionType `json:"corruption_type" binding:"required"`
	EvidenceImages []string       `json:"evidence_images"`
	EvidenceLinks  []string       `json:"evidence_links"`
	Lat            *float64       `json:"lat"`
	Lng            *float64       `json:"lng"`
	Address        string         `json:"address"`
}

// ReportEdit carries an administrator's content changes. Nil fields are left untouched.
type ReportEdit struct {
	Description        *string         `json:"description"`
	CorruptionType     *CorruptionType `json:"corruption_type"`
	Address            *string         `json:"address"`
	EvidenceLinks      []string        `json:"evidence_links"`
	RemoveImageIndices []int           `json:"remove_image_indices"`
}

func (e *ReportEdit) IsEmpty() bool {
	return e.Description == nil && e.CorruptionType == nil && e.Address == nil &&
		e.EvidenceLinks == nil && len(e.RemoveImageIndices) == 0
}

type UpdateStatusRequest struct {
	Status ReportStatus `json:"status" binding:"required"`
}

type ReportListResponse struct {
	Reports []Report `json:"reports"`
	Total   int      `json:"total"`
}

type NearbyReport struct {
	Report
	DistanceKm float64 `json:"distance_km"`
}

type NearbyListResponse struct {
	Reports []NearbyReport `json:"reports"`
	Total   int            `json:"total"`
}
