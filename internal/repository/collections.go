package repository

// Collection names in the document store.
const (
	CollectionReports  = "reports"
	CollectionVotes    = "votes"
	CollectionComments = "comments"
	CollectionUsers    = "users"
	CollectionOutbox   = "outbox"
)
