package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"election-backend/models"
	"election-backend/service"
)

const (
	maxBodyBytes = 1 << 20
	maxBatchSize = 1000
)

type Server struct {
	votingService *service.VotingService
	queue         *service.QueueProcessor
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
	mux           *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

type ServerOptionFunc func(*Server)

func WithLogger(logger *slog.Logger) ServerOptionFunc {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithQueue routes batch submissions through the asynchronous vote queue.
// Without it batches are cast one by one on the request goroutine.
func WithQueue(queue *service.QueueProcessor) ServerOptionFunc {
	return func(s *Server) {
		s.queue = queue
	}
}

// WithMetrics exposes the gatherer at /metrics
func WithMetrics(gatherer prometheus.Gatherer) ServerOptionFunc {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

type CreateElectionRequest struct {
	Title      string   `json:"title"`
	Candidates []string `json:"candidates"`
	StartTime  int64    `json:"start_time"`
	EndTime    int64    `json:"end_time"`
}

type RegisterVoterRequest struct {
	Username string `json:"username"`
}

type RegisterForElectionRequest struct {
	ElectionID uint64 `json:"election_id"`
}

type CastVoteRequest = models.VotePayload

type BatchVoteRequest struct {
	Votes []models.VotePayload `json:"votes"`
}

type BatchVoteResponse struct {
	Results []*service.ProcessingResult `json:"results"`
}

type CreateBallotRequest struct {
	Options   []string `json:"options"`
	StartTime int64    `json:"start_time"`
	EndTime   int64    `json:"end_time"`
}

type VoteResponse struct {
	models.Vote
	ReceiptValid bool `json:"receipt_valid"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewServer(votingService *service.VotingService, opts ...ServerOptionFunc) *Server {
	s := &Server{
		votingService: votingService,
		mux:           http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/elections", s.handleCreateElection)
	s.mux.HandleFunc("GET /api/elections/ongoing", s.handleGetOngoingElections)
	s.mux.HandleFunc("GET /api/elections/available", s.handleGetAvailableElections)
	s.mux.HandleFunc("GET /api/elections/{id}", s.handleGetElection)
	s.mux.HandleFunc("GET /api/elections/{id}/results", s.handleGetResults)
	s.mux.HandleFunc("POST /api/elections/{id}/ballots", s.handleCreateBallot)
	s.mux.HandleFunc("GET /api/elections/{id}/ballots", s.handleGetBallotsForElection)
	s.mux.HandleFunc("GET /api/ballots/{id}", s.handleGetBallot)
	s.mux.HandleFunc("POST /api/voters", s.handleRegisterVoter)
	s.mux.HandleFunc("GET /api/voters/{id}", s.handleGetVoter)
	s.mux.HandleFunc("POST /api/voters/{id}/registrations", s.handleRegisterForElection)
	s.mux.HandleFunc("POST /api/votes", s.handleCastVote)
	s.mux.HandleFunc("POST /api/votes/batch", s.handleBatchVotes)
	s.mux.HandleFunc("GET /api/votes/{id}", s.handleGetVote)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routed handler wrapped with request logging
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// Start serves HTTP on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info(
		"starting election API",
		"component", "api",
		"address", addr,
	)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops a running server. A server shut down before Start never
// begins serving.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// Election handlers

func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	var req CreateElectionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	election, err := s.votingService.CreateElection(r.Context(), req.Title, req.Candidates, req.StartTime, req.EndTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, election)
}

func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	election, err := s.votingService.GetElection(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, election)
}

func (s *Server) handleGetOngoingElections(w http.ResponseWriter, r *http.Request) {
	elections, err := s.votingService.GetOngoingElections(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, elections)
}

func (s *Server) handleGetAvailableElections(w http.ResponseWriter, r *http.Request) {
	elections, err := s.votingService.GetAvailableElections(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, elections)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	results, err := s.votingService.GetElectionResults(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Ballot handlers

func (s *Server) handleCreateBallot(w http.ResponseWriter, r *http.Request) {
	electionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req CreateBallotRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	ballot, err := s.votingService.CreateBallot(r.Context(), electionID, req.Options, req.StartTime, req.EndTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ballot)
}

func (s *Server) handleGetBallotsForElection(w http.ResponseWriter, r *http.Request) {
	electionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ballots, err := s.votingService.GetBallotsForElection(r.Context(), electionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ballots)
}

func (s *Server) handleGetBallot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ballot, err := s.votingService.GetBallot(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ballot)
}

// Voter handlers

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req RegisterVoterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	voter, err := s.votingService.RegisterVoter(r.Context(), req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, voter)
}

func (s *Server) handleGetVoter(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	voter, err := s.votingService.GetVoter(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voter)
}

func (s *Server) handleRegisterForElection(w http.ResponseWriter, r *http.Request) {
	voterID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req RegisterForElectionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.votingService.RegisterForElection(r.Context(), voterID, req.ElectionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Vote handlers

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	vote, err := s.votingService.CastVote(r.Context(), req.VoterID, req.ElectionID, req.Candidate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}

func (s *Server) handleBatchVotes(w http.ResponseWriter, r *http.Request) {
	var req BatchVoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Votes) == 0 || len(req.Votes) > maxBatchSize {
		s.writeError(w, r, fmt.Errorf("a batch must hold between 1 and %d votes: %w", maxBatchSize, service.ErrInvalidInput))
		return
	}

	results := make([]*service.ProcessingResult, len(req.Votes))
	if s.queue != nil {
		for i, ch := range s.queue.BatchQueueVotes(r.Context(), req.Votes) {
			results[i] = <-ch
		}
	} else {
		for i, payload := range req.Votes {
			results[i] = castSync(r.Context(), s.votingService, payload)
		}
	}
	writeJSON(w, http.StatusOK, BatchVoteResponse{Results: results})
}

func castSync(ctx context.Context, vs *service.VotingService, payload models.VotePayload) *service.ProcessingResult {
	vote, err := vs.CastVote(ctx, payload.VoterID, payload.ElectionID, payload.Candidate)
	if err != nil {
		return &service.ProcessingResult{
			VoterID:      payload.VoterID,
			ElectionID:   payload.ElectionID,
			ErrorKind:    service.ErrorKind(err),
			ErrorMessage: err.Error(),
		}
	}
	return &service.ProcessingResult{
		Success:    true,
		VoteID:     vote.ID,
		VoterID:    vote.VoterID,
		ElectionID: vote.ElectionID,
		Receipt:    vote.Receipt,
		Timestamp:  vote.Timestamp,
	}
}

func (s *Server) handleGetVote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	vote, err := s.votingService.GetVote(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	valid, err := s.votingService.VerifyVoteReceipt(vote)
	if err != nil {
		s.logger.Warn(
			"stored vote has a malformed receipt",
			"component", "api",
			"vote_id", vote.ID,
			"error", err,
		)
	}
	writeJSON(w, http.StatusOK, VoteResponse{Vote: *vote, ReceiptValid: valid})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("invalid request body: %v: %w", err, service.ErrInvalidInput))
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		s.writeError(w, r, fmt.Errorf("invalid id %q: %w", raw, service.ErrInvalidInput))
		return 0, false
	}
	return id, true
}

func statusForKind(kind string) int {
	switch kind {
	case "NotFound":
		return http.StatusNotFound
	case "InvalidInput", "InvalidTimeWindow", "InvalidCandidate":
		return http.StatusBadRequest
	case "NotRegistered":
		return http.StatusForbidden
	case "RegistrationClosed", "ElectionNotOpen", "AlreadyVoted", "ElectionOngoing":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.ErrorKind(err)
	status := statusForKind(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"component", "api",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
