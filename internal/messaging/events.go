package messaging

const (
	ExchangeName             = "corruption.reports"
	QueueName                = "report.events"
	RoutingKeyReportCreated  = "report.created"
	RoutingKeyStatusUpdate   = "report.status.updated"
	RoutingKeyVoteReceived   = "vote.received"
	RoutingKeyCommentCreated = "comment.created"
)

// RoutingKeys is every key bound to QueueName.
var RoutingKeys = []string{
	RoutingKeyReportCreated,
	RoutingKeyStatusUpdate,
	RoutingKeyVoteReceived,
	RoutingKeyCommentCreated,
}

type ReportCreatedMessage struct {
	ReportID       string `json:"report_id"`
	ReporterID     string `json:"reporter_id"`
	CorruptionType string `json:"corruption_type"`
	Address        string `json:"address,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type StatusUpdateMessage struct {
	ReportID    string `json:"report_id"`
	ReporterID  string `json:"reporter_id"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	ModeratorID string `json:"moderator_id"`
	Timestamp   int64  `json:"timestamp"`
}

// Vote actions carried by VoteReceivedMessage.
const (
	VoteActionCast   = "cast"
	VoteActionSwitch = "switch"
	VoteActionRemove = "remove"
)

type VoteReceivedMessage struct {
	ReportID   string         `json:"report_id"`
	ReporterID string         `json:"reporter_id"`
	VoterID    string         `json:"voter_id"`
	Action     string         `json:"action"`
	Kind       string         `json:"kind,omitempty"`
	Previous   string         `json:"previous,omitempty"`
	Votes      map[string]int `json:"votes"`
	Timestamp  int64          `json:"timestamp"`
}

type CommentCreatedMessage struct {
	ReportID  string `json:"report_id"`
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
