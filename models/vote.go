package models

// Vote is a recorded ballot choice. Once stored it is never modified.
type Vote struct {
	ID         uint64 `json:"id"`
	VoterID    uint64 `json:"voter_id"`
	ElectionID uint64 `json:"election_id"`
	Candidate  string `json:"candidate"`
	Timestamp  int64  `json:"timestamp"`
	Receipt    string `json:"receipt"`
}

// VotePayload is the caller-supplied part of a vote.
type VotePayload struct {
	VoterID    uint64 `json:"voter_id"`
	ElectionID uint64 `json:"election_id"`
	Candidate  string `json:"candidate"`
}
