package models

type Ballot struct {
	ID         uint64   `json:"id"`
	ElectionID uint64   `json:"election_id"`
	Options    []string `json:"options"`
	StartTime  int64    `json:"start_time"`
	EndTime    int64    `json:"end_time"`
}
