package model

type VoteKind string

const (
	VoteTrue         VoteKind = "true"
	VoteSuspicious   VoteKind = "suspicious"
	VoteNeedEvidence VoteKind = "needEvidence"
)

var VoteKinds = []VoteKind{VoteTrue, VoteSuspicious, VoteNeedEvidence}

func (k VoteKind) IsValid() bool {
	switch k {
	case VoteTrue, VoteSuspicious, VoteNeedEvidence:
		return true
	}
	return false
}

// EmptyTally returns a tally with every kind present at zero.
func EmptyTally() map[VoteKind]int {
	t := make(map[VoteKind]int, len(VoteKinds))
	for _, k := range VoteKinds {
		t[k] = 0
	}
	return t
}

type Vote struct {
	ReportID string   `json:"report_id"`
	UserID   string   `json:"user_id"`
	Kind     VoteKind `json:"kind"`
}

// VoteID is the document id of the single vote a user may hold on a report.
func VoteID(reportID, userID string) string {
	return reportID + "_" + userID
}

type VoteRequest struct {
	Kind VoteKind `json:"kind" binding:"required"`
}

type VoteResponse struct {
	Votes        map[VoteKind]int `json:"votes"`
	UserVoteKind *VoteKind        `json:"user_vote_kind,omitempty"`
}

// TallyRepair is the outcome of recounting a report's vote records.
type TallyRepair struct {
	ReportID string           `json:"report_id"`
	Before   map[VoteKind]int `json:"before"`
	After    map[VoteKind]int `json:"after"`
	Repaired bool             `json:"repaired"`
}
