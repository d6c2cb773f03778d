package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"election-backend/models"
	"election-backend/storage"
)

// VoteCountingService tabulates recorded votes once an election has closed.
type VoteCountingService struct {
	store *storage.Store
	clock Clock
}

func NewVoteCountingService(store *storage.Store, clock Clock) *VoteCountingService {
	return &VoteCountingService{
		store: store,
		clock: clock,
	}
}

// VotingResults represents the final vote count of one election
type VotingResults struct {
	ElectionID uint64            `json:"election_id"`
	Counts     map[string]uint64 `json:"counts"`
	TotalVotes uint64            `json:"total_votes"`
	Winners    []string          `json:"winners"`
}

// Tabulate counts the votes of a closed election. Every candidate appears in
// Counts, including those that received no votes.
func (vcs *VoteCountingService) Tabulate(ctx context.Context, electionID uint64) (*VotingResults, error) {
	election, err := vcs.store.Elections.Get(ctx, electionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("an election with id=%d not found: %w", electionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if phase := phaseOf(&election, vcs.clock); phase != models.PhaseClosed {
		return nil, fmt.Errorf("election with id=%d is %s: %w", electionID, phase, ErrElectionOngoing)
	}

	votes, err := vcs.store.Votes.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}

	results := &VotingResults{
		ElectionID: electionID,
		Counts:     make(map[string]uint64, len(election.Candidates)),
		Winners:    []string{},
	}
	for _, candidate := range election.Candidates {
		results.Counts[candidate] = 0
	}
	for _, vote := range votes {
		if vote.ElectionID != electionID {
			continue
		}
		results.Counts[vote.Candidate]++
		results.TotalVotes++
	}
	results.Winners = winners(results.Counts)
	return results, nil
}

// winners returns every candidate sharing the highest non-zero count, sorted
func winners(counts map[string]uint64) []string {
	var best uint64
	for _, count := range counts {
		if count > best {
			best = count
		}
	}
	leading := []string{}
	if best == 0 {
		return leading
	}
	for candidate, count := range counts {
		if count == best {
			leading = append(leading, candidate)
		}
	}
	sort.Strings(leading)
	return leading
}
