package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"election-backend/encryption"
	"election-backend/models"
	"election-backend/storage"
)

type voteKey struct {
	voterID    uint64
	electionID uint64
}

// VotingService owns the election lifecycle rules. Every mutation runs under
// the write lock so check-then-write sequences are never interleaved.
type VotingService struct {
	store               *storage.Store
	cryptoService       *encryption.CryptoService
	countingService     *VoteCountingService
	metricsCollector    *MetricsCollector
	clock               Clock
	logger              *slog.Logger
	mu                  sync.RWMutex
	voteIndex           map[voteKey]uint64
	requireRegistration bool
}

type VotingServiceOptionFunc func(*VotingService)

func WithClock(clock Clock) VotingServiceOptionFunc {
	return func(vs *VotingService) {
		vs.clock = clock
	}
}

func WithLogger(logger *slog.Logger) VotingServiceOptionFunc {
	return func(vs *VotingService) {
		vs.logger = logger
	}
}

func WithMetrics(metrics *MetricsCollector) VotingServiceOptionFunc {
	return func(vs *VotingService) {
		vs.metricsCollector = metrics
	}
}

// WithRequireRegistration controls whether votes from voters that did not
// register for the election are rejected. Enabled by default.
func WithRequireRegistration(require bool) VotingServiceOptionFunc {
	return func(vs *VotingService) {
		vs.requireRegistration = require
	}
}

func NewVotingService(ctx context.Context, store *storage.Store, opts ...VotingServiceOptionFunc) (*VotingService, error) {
	vs := &VotingService{
		store:               store,
		cryptoService:       encryption.NewCryptoService(),
		clock:               SystemClock{},
		voteIndex:           make(map[voteKey]uint64),
		requireRegistration: true,
	}
	for _, opt := range opts {
		opt(vs)
	}
	if vs.logger == nil {
		vs.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	vs.countingService = NewVoteCountingService(store, vs.clock)

	if err := vs.loadVoteIndex(ctx); err != nil {
		return nil, err
	}
	return vs, nil
}

// loadVoteIndex rebuilds the (voter, election) index from recorded votes
func (vs *VotingService) loadVoteIndex(ctx context.Context) error {
	votes, err := vs.store.Votes.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}
	for _, vote := range votes {
		vs.voteIndex[voteKey{vote.VoterID, vote.ElectionID}] = vote.ID
	}
	vs.logger.Debug(
		fmt.Sprintf("loaded %d recorded votes", len(votes)),
		"component", "voting",
	)
	return nil
}

// Election Methods

func (vs *VotingService) CreateElection(ctx context.Context, title string, candidates []string, startTime, endTime int64) (*models.Election, error) {
	defer vs.metricsCollector.ObserveDuration("create_election", time.Now())

	election, err := vs.createElection(ctx, title, candidates, startTime, endTime)
	if err != nil {
		vs.metricsCollector.RecordRejection("create_election", err)
		return nil, err
	}
	vs.metricsCollector.RecordElectionCreated()
	vs.logger.Info(
		"election created",
		"component", "voting",
		"election_id", election.ID,
		"candidates", len(election.Candidates),
	)
	return election, nil
}

func (vs *VotingService) createElection(ctx context.Context, title string, candidates []string, startTime, endTime int64) (*models.Election, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	candidates, err = normalizeChoices("candidate", candidates)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(startTime, endTime); err != nil {
		return nil, err
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	id, err := vs.store.IDs.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate election id: %w", err)
	}
	election := models.Election{
		ID:         id,
		Title:      title,
		Candidates: candidates,
		StartTime:  startTime,
		EndTime:    endTime,
		CreatedAt:  nowNanos(vs.clock),
	}
	if err := vs.store.Elections.Put(ctx, id, election); err != nil {
		return nil, err
	}
	return &election, nil
}

func (vs *VotingService) GetElection(ctx context.Context, electionID uint64) (*models.Election, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.getElection(ctx, electionID)
}

// GetOngoingElections returns elections currently accepting votes
func (vs *VotingService) GetOngoingElections(ctx context.Context) ([]models.Election, error) {
	return vs.electionsInPhase(ctx, models.PhaseOpen)
}

// GetAvailableElections returns elections still accepting registrations
func (vs *VotingService) GetAvailableElections(ctx context.Context) ([]models.Election, error) {
	return vs.electionsInPhase(ctx, models.PhaseNotYetOpen)
}

func (vs *VotingService) electionsInPhase(ctx context.Context, phase models.Phase) ([]models.Election, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	elections, err := vs.store.Elections.Scan(ctx)
	if err != nil {
		return nil, err
	}
	now := nowNanos(vs.clock)
	matching := make([]models.Election, 0)
	for _, election := range elections {
		if election.PhaseAt(now) == phase {
			matching = append(matching, election)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID < matching[j].ID })
	return matching, nil
}

// GetElectionResults tabulates a closed election
func (vs *VotingService) GetElectionResults(ctx context.Context, electionID uint64) (*VotingResults, error) {
	defer vs.metricsCollector.ObserveDuration("tabulate", time.Now())

	vs.mu.RLock()
	results, err := vs.countingService.Tabulate(ctx, electionID)
	vs.mu.RUnlock()
	if err != nil {
		vs.metricsCollector.RecordRejection("tabulate", err)
		return nil, err
	}
	vs.metricsCollector.RecordTabulation()
	return results, nil
}

// Voter Registration Methods

func (vs *VotingService) RegisterVoter(ctx context.Context, username string) (*models.Voter, error) {
	defer vs.metricsCollector.ObserveDuration("register_voter", time.Now())

	voter, err := vs.registerVoter(ctx, username)
	if err != nil {
		vs.metricsCollector.RecordRejection("register_voter", err)
		return nil, err
	}

	vs.metricsCollector.RecordVoterRegistered()
	vs.logger.Info("voter registered", "component", "voting", "voter_id", voter.ID)
	return voter, nil
}

func (vs *VotingService) registerVoter(ctx context.Context, username string) (*models.Voter, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	id, err := vs.store.IDs.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate voter id: %w", err)
	}
	voter := models.Voter{
		ID:                  id,
		Username:            username,
		RegisteredElections: []uint64{},
		CreatedAt:           nowNanos(vs.clock),
	}
	if err := vs.store.Voters.Put(ctx, id, voter); err != nil {
		return nil, err
	}
	return &voter, nil
}

func (vs *VotingService) GetVoter(ctx context.Context, voterID uint64) (*models.Voter, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.getVoter(ctx, voterID)
}

// RegisterForElection adds the election to the voter's registrations. It is
// only accepted before the election opens. Registering twice is a no-op.
func (vs *VotingService) RegisterForElection(ctx context.Context, voterID, electionID uint64) error {
	defer vs.metricsCollector.ObserveDuration("register_for_election", time.Now())

	err := vs.registerForElection(ctx, voterID, electionID)
	if err != nil {
		vs.metricsCollector.RecordRejection("register_for_election", err)
		return err
	}
	return nil
}

func (vs *VotingService) registerForElection(ctx context.Context, voterID, electionID uint64) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	voter, err := vs.getVoter(ctx, voterID)
	if err != nil {
		return err
	}
	election, err := vs.getElection(ctx, electionID)
	if err != nil {
		return err
	}

	if phaseOf(election, vs.clock) != models.PhaseNotYetOpen {
		return fmt.Errorf("cannot register for election with id=%d that has already started: %w", electionID, ErrRegistrationClosed)
	}

	if voter.IsRegisteredFor(electionID) {
		vs.logger.Debug(
			"voter already registered for election",
			"component", "voting",
			"voter_id", voterID,
			"election_id", electionID,
		)
		return nil
	}

	voter.RegisteredElections = append(voter.RegisteredElections, electionID)
	if err := vs.store.Voters.Put(ctx, voter.ID, *voter); err != nil {
		return err
	}

	vs.metricsCollector.RecordRegistration()
	vs.logger.Info(
		"voter registered for election",
		"component", "voting",
		"voter_id", voterID,
		"election_id", electionID,
	)
	return nil
}

// Vote Casting Methods

// CastVote records a vote after checking, in order: that voter and election
// exist, that the election is open, that the voter registered for it, that
// the candidate is on the ballot and that the voter has not voted yet.
// Candidate names are trimmed as they are at election creation.
func (vs *VotingService) CastVote(ctx context.Context, voterID, electionID uint64, candidate string) (*models.Vote, error) {
	defer vs.metricsCollector.ObserveDuration("cast_vote", time.Now())

	payload := models.VotePayload{VoterID: voterID, ElectionID: electionID, Candidate: strings.TrimSpace(candidate)}
	vote, err := vs.castVote(ctx, payload)
	if err != nil {
		vs.metricsCollector.RecordRejection("cast_vote", err)
		vs.logger.Debug(
			"vote rejected",
			"component", "voting",
			"voter_id", payload.VoterID,
			"election_id", payload.ElectionID,
			"reason", ErrorKind(err),
		)
		return nil, err
	}

	vs.metricsCollector.RecordVote()
	vs.logger.Info(
		"vote recorded",
		"component", "voting",
		"vote_id", vote.ID,
		"election_id", vote.ElectionID,
	)
	return vote, nil
}

func (vs *VotingService) castVote(ctx context.Context, payload models.VotePayload) (*models.Vote, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	voter, err := vs.getVoter(ctx, payload.VoterID)
	if err != nil {
		return nil, err
	}
	election, err := vs.getElection(ctx, payload.ElectionID)
	if err != nil {
		return nil, err
	}

	now := nowNanos(vs.clock)
	if phase := election.PhaseAt(now); phase != models.PhaseOpen {
		return nil, fmt.Errorf("election with id=%d is %s: %w", election.ID, phase, ErrElectionNotOpen)
	}

	if vs.requireRegistration && !voter.IsRegisteredFor(election.ID) {
		return nil, fmt.Errorf("voter with id=%d is not registered for election with id=%d: %w", voter.ID, election.ID, ErrNotRegistered)
	}

	if !election.HasCandidate(payload.Candidate) {
		return nil, fmt.Errorf("%q is not a candidate in election with id=%d: %w", payload.Candidate, election.ID, ErrInvalidCandidate)
	}

	key := voteKey{voter.ID, election.ID}
	if existing, voted := vs.voteIndex[key]; voted {
		return nil, fmt.Errorf("voter with id=%d already cast vote id=%d in election with id=%d: %w", voter.ID, existing, election.ID, ErrAlreadyVoted)
	}

	id, err := vs.store.IDs.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate vote id: %w", err)
	}
	vote := models.Vote{
		ID:         id,
		VoterID:    voter.ID,
		ElectionID: election.ID,
		Candidate:  payload.Candidate,
		Timestamp:  now,
	}
	vote.Receipt = vs.cryptoService.VoteReceipt(&vote)

	if err := vs.store.Votes.Put(ctx, id, vote); err != nil {
		return nil, err
	}
	vs.voteIndex[key] = id
	return &vote, nil
}

func (vs *VotingService) GetVote(ctx context.Context, voteID uint64) (*models.Vote, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	vote, err := vs.store.Votes.Get(ctx, voteID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("a vote with id=%d not found: %w", voteID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

// VerifyVoteReceipt reports whether a recorded vote still matches its receipt
func (vs *VotingService) VerifyVoteReceipt(vote *models.Vote) (bool, error) {
	return vs.cryptoService.VerifyReceipt(vote)
}

// Ballot Methods

func (vs *VotingService) CreateBallot(ctx context.Context, electionID uint64, options []string, startTime, endTime int64) (*models.Ballot, error) {
	defer vs.metricsCollector.ObserveDuration("create_ballot", time.Now())

	ballot, err := vs.createBallot(ctx, electionID, options, startTime, endTime)
	if err != nil {
		vs.metricsCollector.RecordRejection("create_ballot", err)
		return nil, err
	}
	vs.metricsCollector.RecordBallotCreated()
	vs.logger.Info(
		"ballot created",
		"component", "voting",
		"ballot_id", ballot.ID,
		"election_id", electionID,
	)
	return ballot, nil
}

func (vs *VotingService) createBallot(ctx context.Context, electionID uint64, options []string, startTime, endTime int64) (*models.Ballot, error) {
	options, err := normalizeChoices("option", options)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(startTime, endTime); err != nil {
		return nil, err
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, err := vs.getElection(ctx, electionID); err != nil {
		return nil, err
	}

	id, err := vs.store.IDs.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ballot id: %w", err)
	}
	ballot := models.Ballot{
		ID:         id,
		ElectionID: electionID,
		Options:    options,
		StartTime:  startTime,
		EndTime:    endTime,
	}
	if err := vs.store.Ballots.Put(ctx, id, ballot); err != nil {
		return nil, err
	}
	return &ballot, nil
}

func (vs *VotingService) GetBallot(ctx context.Context, ballotID uint64) (*models.Ballot, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	ballot, err := vs.store.Ballots.Get(ctx, ballotID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("a ballot with id=%d not found: %w", ballotID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ballot, nil
}

func (vs *VotingService) GetBallotsForElection(ctx context.Context, electionID uint64) ([]models.Ballot, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if _, err := vs.getElection(ctx, electionID); err != nil {
		return nil, err
	}
	ballots, err := vs.store.Ballots.Scan(ctx)
	if err != nil {
		return nil, err
	}
	matching := make([]models.Ballot, 0)
	for _, ballot := range ballots {
		if ballot.ElectionID == electionID {
			matching = append(matching, ballot)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID < matching[j].ID })
	return matching, nil
}

// Helper Methods

func (vs *VotingService) getElection(ctx context.Context, electionID uint64) (*models.Election, error) {
	election, err := vs.store.Elections.Get(ctx, electionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("an election with id=%d not found: %w", electionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &election, nil
}

func (vs *VotingService) getVoter(ctx context.Context, voterID uint64) (*models.Voter, error) {
	voter, err := vs.store.Voters.Get(ctx, voterID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("a voter with id=%d not found: %w", voterID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &voter, nil
}
