package service

import (
	"context"

	"corruption-report-service/internal/messaging"
	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"

	"github.com/apex/log"
)

// VoteService keeps one vote record per user and report in step with the
// report's denormalized tally. Every step is an independent single-document
// write; there is no transaction spanning the record and the tally.
type VoteService struct {
	voteRepo   *repository.VoteRepository
	reportRepo *repository.ReportRepository
	events     EventLog
}

func NewVoteService(voteRepo *repository.VoteRepository, reportRepo *repository.ReportRepository, events EventLog) *VoteService {
	return &VoteService{
		voteRepo:   voteRepo,
		reportRepo: reportRepo,
		events:     events,
	}
}

// writeSteps runs writes in order and remembers which ones landed, so a
// failure part way through can be reported as a partial write.
type writeSteps struct {
	op        string
	completed []string
}

func (w *writeSteps) run(name string, fn func() error) error {
	if err := fn(); err != nil {
		if len(w.completed) == 0 {
			return classify(err)
		}
		return &PartialWriteError{
			Op:        w.op,
			Completed: append([]string(nil), w.completed...),
			Failed:    name,
			Err:       classify(err),
		}
	}
	w.completed = append(w.completed, name)
	return nil
}

// CastVote records actor's vote of kind on a report. Casting the kind the
// user already holds removes the vote; casting a different kind switches it.
// The current vote is always read from the store right before acting.
// Only approved reports take votes; any other status, including the
// author's own pending report, answers ErrPermissionDenied.
//
// A retry after a partial switch repeats the decrement of the old kind.
// Store increments floor at zero, so the tally can undercount until
// Reconcile but never goes negative.
func (s *VoteService) CastVote(ctx context.Context, actor model.Actor, reportID string, kind model.VoteKind) (*model.VoteResponse, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}
	if !kind.IsValid() {
		return nil, invalid("kind", "unknown vote kind %q", kind)
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !report.IsPublic() {
		return nil, denied("report %s is not open for voting", reportID)
	}

	existing, err := s.voteRepo.GetVote(ctx, reportID, actor.UserID)
	if err != nil {
		return nil, classify(err)
	}

	steps := &writeSteps{op: "cast vote"}
	msg := messaging.VoteReceivedMessage{
		ReportID:   reportID,
		ReporterID: report.UserID,
		VoterID:    actor.UserID,
		Kind:       string(kind),
	}

	var current *model.VoteKind
	if existing != nil && existing.Kind == kind {
		msg.Action = messaging.VoteActionRemove
		if err := s.removeSteps(ctx, steps, reportID, actor.UserID, kind); err != nil {
			return nil, err
		}
	} else {
		msg.Action = messaging.VoteActionCast
		if existing != nil && existing.Kind.IsValid() {
			msg.Action = messaging.VoteActionSwitch
			msg.Previous = string(existing.Kind)
			if err := steps.run("decrement "+string(existing.Kind), func() error {
				return s.reportRepo.IncrementVote(ctx, reportID, existing.Kind, -1)
			}); err != nil {
				return nil, err
			}
		}
		if err := steps.run("write vote record", func() error {
			return s.voteRepo.PutVote(ctx, &model.Vote{ReportID: reportID, UserID: actor.UserID, Kind: kind})
		}); err != nil {
			return nil, err
		}
		if err := steps.run("increment "+string(kind), func() error {
			return s.reportRepo.IncrementVote(ctx, reportID, kind, 1)
		}); err != nil {
			return nil, err
		}
		current = &kind
	}

	tally := s.currentTally(ctx, report, existing, current)
	msg.Votes = tallyPayload(tally)
	msg.Timestamp = now()
	emit(ctx, s.events, messaging.RoutingKeyVoteReceived, msg)

	log.WithFields(log.Fields{
		"report_id": reportID,
		"user_id":   actor.UserID,
		"action":    msg.Action,
		"kind":      kind,
	}).Info("vote: applied")

	return &model.VoteResponse{Votes: tally, UserVoteKind: current}, nil
}

// RemoveVote clears actor's vote on a report. It is a no-op when the user
// holds no vote.
func (s *VoteService) RemoveVote(ctx context.Context, actor model.Actor, reportID string) (*model.VoteResponse, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	existing, err := s.voteRepo.GetVote(ctx, reportID, actor.UserID)
	if err != nil {
		return nil, classify(err)
	}
	if existing == nil {
		return &model.VoteResponse{Votes: report.Votes}, nil
	}

	steps := &writeSteps{op: "remove vote"}
	if err := s.removeSteps(ctx, steps, reportID, actor.UserID, existing.Kind); err != nil {
		return nil, err
	}

	tally := s.currentTally(ctx, report, existing, nil)
	emit(ctx, s.events, messaging.RoutingKeyVoteReceived, messaging.VoteReceivedMessage{
		ReportID:   reportID,
		ReporterID: report.UserID,
		VoterID:    actor.UserID,
		Action:     messaging.VoteActionRemove,
		Kind:       string(existing.Kind),
		Votes:      tallyPayload(tally),
		Timestamp:  now(),
	})

	return &model.VoteResponse{Votes: tally}, nil
}

// removeSteps deletes the vote record first and then takes it out of the tally.
func (s *VoteService) removeSteps(ctx context.Context, steps *writeSteps, reportID, userID string, kind model.VoteKind) error {
	if err := steps.run("delete vote record", func() error {
		return s.voteRepo.DeleteVote(ctx, reportID, userID)
	}); err != nil {
		return err
	}
	if !kind.IsValid() {
		return nil
	}
	return steps.run("decrement "+string(kind), func() error {
		return s.reportRepo.IncrementVote(ctx, reportID, kind, -1)
	})
}

// GetUserVote returns the report's tally and the kind actor currently holds.
func (s *VoteService) GetUserVote(ctx context.Context, actor model.Actor, reportID string) (*model.VoteResponse, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !CanView(actor, report) {
		return nil, classify(repository.ErrReportNotFound)
	}

	resp := &model.VoteResponse{Votes: report.Votes}
	if actor.UserID == "" {
		return resp, nil
	}
	vote, err := s.voteRepo.GetVote(ctx, reportID, actor.UserID)
	if err != nil {
		return nil, classify(err)
	}
	if vote != nil {
		kind := vote.Kind
		resp.UserVoteKind = &kind
	}
	return resp, nil
}

// Reconcile recounts the vote records of a report and overwrites the tally
// when it has drifted from them. Admin only.
func (s *VoteService) Reconcile(ctx context.Context, actor model.Actor, reportID string) (*model.TallyRepair, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	votes, err := s.voteRepo.FindByReport(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}

	counted := model.EmptyTally()
	for _, v := range votes {
		if v.Kind.IsValid() {
			counted[v.Kind]++
		}
	}

	repair := &model.TallyRepair{ReportID: reportID, Before: report.Votes, After: counted}
	for _, k := range model.VoteKinds {
		if report.Votes[k] != counted[k] {
			repair.Repaired = true
		}
	}
	if !repair.Repaired {
		return repair, nil
	}

	if err := s.reportRepo.SetVotes(ctx, reportID, counted); err != nil {
		return nil, classify(err)
	}
	log.WithFields(log.Fields{
		"report_id": reportID,
		"before":    report.Votes,
		"after":     counted,
	}).Warn("vote: tally repaired")
	return repair, nil
}

// currentTally re-reads the report after a vote. If that read fails the
// tally is derived from the copy loaded before the writes.
func (s *VoteService) currentTally(ctx context.Context, before *model.Report, previous *model.Vote, current *model.VoteKind) map[model.VoteKind]int {
	fresh, err := s.reportRepo.FindByID(ctx, before.ID)
	if err == nil {
		return fresh.Votes
	}
	log.WithError(err).WithField("report_id", before.ID).Warn("vote: reload tally")

	tally := model.EmptyTally()
	for k, n := range before.Votes {
		tally[k] = n
	}
	if previous != nil && previous.Kind.IsValid() {
		tally[previous.Kind]--
	}
	if current != nil {
		tally[*current]++
	}
	return tally
}

func tallyPayload(tally map[model.VoteKind]int) map[string]int {
	out := make(map[string]int, len(tally))
	for k, n := range tally {
		out[string(k)] = n
	}
	return out
}
