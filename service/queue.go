package service

import (
	"context"
	"errors"
	"sync"

	"election-backend/models"
)

var (
	ErrQueueFull    = errors.New("vote queue is full")
	ErrQueueStopped = errors.New("vote queue is stopped")
)

// QueueProcessor handles the asynchronous processing of votes
type QueueProcessor struct {
	votingService *VotingService
	voteCh        chan *VoteRequest
	workers       int
	processingWg  sync.WaitGroup
	shutdownCh    chan struct{}
	mu            sync.Mutex
	started       bool
	stopped       bool
}

// VoteRequest represents a queued vote casting request
type VoteRequest struct {
	ctx      context.Context
	Vote     models.VotePayload
	ResultCh chan<- *ProcessingResult
}

// ProcessingResult contains the result of an asynchronous operation
type ProcessingResult struct {
	Success      bool   `json:"success"`
	VoteID       uint64 `json:"vote_id,omitempty"`
	VoterID      uint64 `json:"voter_id"`
	ElectionID   uint64 `json:"election_id"`
	Receipt      string `json:"receipt,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	ErrorKind    string `json:"error,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

// NewQueueProcessor creates a queue holding up to queueSize pending votes,
// served by the given number of workers.
func NewQueueProcessor(votingService *VotingService, queueSize, workers int) *QueueProcessor {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &QueueProcessor{
		votingService: votingService,
		voteCh:        make(chan *VoteRequest, queueSize),
		workers:       workers,
		shutdownCh:    make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (qp *QueueProcessor) Start() {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.started || qp.stopped {
		return
	}
	qp.started = true
	for i := 0; i < qp.workers; i++ {
		qp.processingWg.Add(1)
		go qp.voteWorker()
	}
	qp.votingService.logger.Debug(
		"vote queue started",
		"component", "queue",
		"workers", qp.workers,
		"capacity", cap(qp.voteCh),
	)
}

// Stop shuts the workers down. Requests still waiting in the queue are
// answered with a failure result.
func (qp *QueueProcessor) Stop() {
	qp.mu.Lock()
	if qp.stopped {
		qp.mu.Unlock()
		return
	}
	qp.stopped = true
	qp.mu.Unlock()

	close(qp.shutdownCh)
	qp.processingWg.Wait()

	for {
		select {
		case req := <-qp.voteCh:
			req.ResultCh <- failedResult(req.Vote, ErrQueueStopped)
			close(req.ResultCh)
		default:
			qp.votingService.logger.Debug("vote queue stopped", "component", "queue")
			return
		}
	}
}

// QueueVote adds a vote casting request to the processing queue. The
// returned channel yields exactly one result and is then closed.
func (qp *QueueProcessor) QueueVote(ctx context.Context, vote models.VotePayload) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)

	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.stopped {
		resultCh <- failedResult(vote, ErrQueueStopped)
		close(resultCh)
		return resultCh
	}

	select {
	case qp.voteCh <- &VoteRequest{ctx: ctx, Vote: vote, ResultCh: resultCh}:
		return resultCh
	default:
		qp.votingService.logger.Warn(
			"vote queue is full, request dropped",
			"component", "queue",
			"voter_id", vote.VoterID,
		)
		resultCh <- failedResult(vote, ErrQueueFull)
		close(resultCh)
		return resultCh
	}
}

// BatchQueueVotes adds multiple vote requests to the queue
func (qp *QueueProcessor) BatchQueueVotes(ctx context.Context, votes []models.VotePayload) []<-chan *ProcessingResult {
	resultChannels := make([]<-chan *ProcessingResult, len(votes))
	for i, vote := range votes {
		resultChannels[i] = qp.QueueVote(ctx, vote)
	}
	return resultChannels
}

// voteWorker processes queued votes
func (qp *QueueProcessor) voteWorker() {
	defer qp.processingWg.Done()

	for {
		select {
		case <-qp.shutdownCh:
			return
		case req := <-qp.voteCh:
			req.ResultCh <- qp.process(req)
			close(req.ResultCh)
		}
	}
}

func (qp *QueueProcessor) process(req *VoteRequest) *ProcessingResult {
	if err := req.ctx.Err(); err != nil {
		return failedResult(req.Vote, err)
	}
	vote, err := qp.votingService.CastVote(req.ctx, req.Vote.VoterID, req.Vote.ElectionID, req.Vote.Candidate)
	if err != nil {
		return failedResult(req.Vote, err)
	}
	return &ProcessingResult{
		Success:    true,
		VoteID:     vote.ID,
		VoterID:    vote.VoterID,
		ElectionID: vote.ElectionID,
		Receipt:    vote.Receipt,
		Timestamp:  vote.Timestamp,
	}
}

func failedResult(vote models.VotePayload, err error) *ProcessingResult {
	kind := ErrorKind(err)
	switch {
	case errors.Is(err, ErrQueueFull):
		kind = "QueueFull"
	case errors.Is(err, ErrQueueStopped):
		kind = "QueueStopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "Canceled"
	}
	return &ProcessingResult{
		Success:      false,
		VoterID:      vote.VoterID,
		ElectionID:   vote.ElectionID,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
	}
}
