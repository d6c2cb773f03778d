package service

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"election-backend/models"
)

func TestQueueProcessesVotes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	vs, clock := newTestService(t, WithRequireRegistration(false))
	election, err := vs.CreateElection(ctx, "E", []string{"A", "B"}, 100, 200)
	if err != nil {
		t.Fatalf("CreateElection: %v", err)
	}

	var payloads []models.VotePayload
	for i := 0; i < 5; i++ {
		voter, err := vs.RegisterVoter(ctx, "u")
		if err != nil {
			t.Fatalf("RegisterVoter: %v", err)
		}
		payloads = append(payloads, models.VotePayload{VoterID: voter.ID, ElectionID: election.ID, Candidate: "A"})
	}
	// duplicate of the first voter
	payloads = append(payloads, payloads[0])
	clock.Set(150)

	qp := NewQueueProcessor(vs, len(payloads), 3)
	qp.Start()
	defer qp.Stop()

	succeeded, alreadyVoted := 0, 0
	for _, ch := range qp.BatchQueueVotes(ctx, payloads) {
		result, ok := <-ch
		if !ok {
			t.Fatal("result channel closed without a result")
		}
		switch {
		case result.Success:
			succeeded++
			if result.VoteID == 0 || result.Receipt == "" {
				t.Errorf("incomplete success result %+v", result)
			}
		case result.ErrorKind == "AlreadyVoted":
			alreadyVoted++
		default:
			t.Errorf("unexpected failure %+v", result)
		}
		if _, ok := <-ch; ok {
			t.Error("expected the result channel to be closed after one result")
		}
	}
	if succeeded != 5 || alreadyVoted != 1 {
		t.Errorf("expected 5 successes and 1 AlreadyVoted, got %d and %d", succeeded, alreadyVoted)
	}
}

func TestQueueFullAndStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	vs, _ := newTestService(t)
	payload := models.VotePayload{VoterID: 1, ElectionID: 2, Candidate: "A"}

	// not started, so nothing drains the queue
	qp := NewQueueProcessor(vs, 1, 1)
	pending := qp.QueueVote(ctx, payload)

	full := <-qp.QueueVote(ctx, payload)
	if full.Success || full.ErrorKind != "QueueFull" {
		t.Errorf("expected QueueFull, got %+v", full)
	}

	qp.Stop()
	drained := <-pending
	if drained.Success || drained.ErrorKind != "QueueStopped" {
		t.Errorf("expected pending request to fail with QueueStopped, got %+v", drained)
	}

	stopped := <-qp.QueueVote(ctx, payload)
	if stopped.Success || stopped.ErrorKind != "QueueStopped" {
		t.Errorf("expected QueueStopped after Stop, got %+v", stopped)
	}
	qp.Stop()
}

func TestQueueCanceledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	vs, _ := newTestService(t)
	qp := NewQueueProcessor(vs, 1, 1)
	qp.Start()
	defer qp.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := <-qp.QueueVote(ctx, models.VotePayload{VoterID: 1, ElectionID: 2, Candidate: "A"})
	if result.Success || result.ErrorKind != "Canceled" {
		t.Errorf("expected Canceled, got %+v", result)
	}
}
