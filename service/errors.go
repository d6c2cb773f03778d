package service

import "errors"

// Business-rule rejections. Services wrap these with the offending ids, so
// callers should match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrRegistrationClosed = errors.New("registration closed")
	ErrElectionNotOpen    = errors.New("election not open")
	ErrAlreadyVoted       = errors.New("already voted")
	ErrNotRegistered      = errors.New("not registered")
	ErrElectionOngoing    = errors.New("election ongoing")
	ErrInvalidTimeWindow  = errors.New("invalid time window")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCandidate   = errors.New("invalid candidate")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "NotFound"},
	{ErrRegistrationClosed, "RegistrationClosed"},
	{ErrElectionNotOpen, "ElectionNotOpen"},
	{ErrAlreadyVoted, "AlreadyVoted"},
	{ErrNotRegistered, "NotRegistered"},
	{ErrElectionOngoing, "ElectionOngoing"},
	{ErrInvalidTimeWindow, "InvalidTimeWindow"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrInvalidCandidate, "InvalidCandidate"},
}

// ErrorKind returns the stable name of a rejection, or "Internal" for
// anything that is not a business-rule failure.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
