package domain

// Snapshot is the full-state resync payload: a client adopts it
// wholesale and continues applying events from Seq+1.
type Snapshot struct {
	Room             Room          `json:"room"`
	Participants     []Participant `json:"participants"`
	Seq              uint64        `json:"seq"`
	RemainingSeconds int           `json:"remainingSeconds"`
}
