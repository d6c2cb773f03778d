package models

type Voter struct {
	ID                  uint64   `json:"id"`
	Username            string   `json:"username"`
	RegisteredElections []uint64 `json:"registered_elections"`
	CreatedAt           int64    `json:"created_at"`
}

func (v *Voter) IsRegisteredFor(electionID uint64) bool {
	for _, id := range v.RegisteredElections {
		if id == electionID {
			return true
		}
	}
	return false
}
