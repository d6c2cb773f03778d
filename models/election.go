package models

// Phase is the temporal classification of an election at a given instant.
type Phase int

const (
	PhaseNotYetOpen Phase = iota
	PhaseOpen
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotYetOpen:
		return "not_yet_open"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Election times are nanoseconds since the Unix epoch.
type Election struct {
	ID         uint64   `json:"id"`
	Title      string   `json:"title"`
	Candidates []string `json:"candidates"`
	StartTime  int64    `json:"start_time"`
	EndTime    int64    `json:"end_time"`
	CreatedAt  int64    `json:"created_at"`
}

// PhaseAt reports the election phase at now. Both window bounds are inclusive
// in the open phase.
func (e *Election) PhaseAt(now int64) Phase {
	switch {
	case now < e.StartTime:
		return PhaseNotYetOpen
	case now <= e.EndTime:
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

func (e *Election) HasCandidate(name string) bool {
	for _, c := range e.Candidates {
		if c == name {
			return true
		}
	}
	return false
}
