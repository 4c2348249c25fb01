package domain

import "time"

// Role distinguishes the room owner from everyone else.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// ConnectionStatus is presence, not membership: a disconnected
// participant keeps their roster entry and score.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusKicked       ConnectionStatus = "kicked"
)

// Participant is one identity's state inside a room. Owned by the room
// actor; keyed by Identity, so an identity can never hold two entries.
type Participant struct {
	Identity        string           `json:"identity"`
	DisplayName     string           `json:"displayName"`
	Role            Role             `json:"role"`
	Status          ConnectionStatus `json:"connectionStatus"`
	Score           int              `json:"score"`
	CurrentQuestion int              `json:"currentQuestionIndex"`
	JoinedAt        time.Time        `json:"joinedAt"`
	LastActivityAt  time.Time        `json:"lastActivityAt"`

	// Answered records which question indexes this participant has
	// already been scored for; replays for the same index no-op.
	Answered map[int]AnswerRecord `json:"-"`
}

// AnswerRecord is the accepted answer for a single question index.
type AnswerRecord struct {
	OptionID       string    `json:"optionId"`
	Correct        bool      `json:"correct"`
	Awarded        int       `json:"awarded"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// HasAnswered reports whether idx has already been scored.
func (p *Participant) HasAnswered(idx int) bool {
	_, ok := p.Answered[idx]
	return ok
}

// Clone returns a deep copy safe to hand outside the actor.
func (p *Participant) Clone() *Participant {
	cp := *p
	cp.Answered = make(map[int]AnswerRecord, len(p.Answered))
	for k, v := range p.Answered {
		cp.Answered[k] = v
	}
	return &cp
}
