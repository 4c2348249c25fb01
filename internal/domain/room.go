package domain

import "time"

// Lifecycle is the coarse-grained phase of a room.
type Lifecycle string

const (
	LifecycleWaiting  Lifecycle = "waiting"
	LifecycleActive   Lifecycle = "active"
	LifecyclePaused   Lifecycle = "paused"
	LifecycleFinished Lifecycle = "finished"
)

// TimeMode selects how the timer budget is applied.
type TimeMode string

const (
	// TimeModePerQuestion gives every question a fixed budget; the room
	// advances all participants together.
	TimeModePerQuestion TimeMode = "per_question"
	// TimeModePerQuiz gives the whole session one budget; participants
	// advance through questions individually.
	TimeModePerQuiz TimeMode = "per_quiz"
)

// AccessMode controls who may join a room.
type AccessMode string

const (
	AccessPublic  AccessMode = "public"
	AccessPrivate AccessMode = "private"
)

// QuestionRef carries the per-question metadata the engine needs for
// timing and scoring; question content stays external.
type QuestionRef struct {
	ID      string `json:"id"`
	Seconds int    `json:"seconds"`
	Points  int    `json:"points"`
}

// QuizRef is the immutable view of a quiz a room is bound to.
type QuizRef struct {
	QuizID    string        `json:"quizId"`
	Title     string        `json:"title"`
	Questions []QuestionRef `json:"questions"`
}

// Len returns the number of questions in the referenced quiz.
func (q QuizRef) Len() int { return len(q.Questions) }

// Room is one live competition instance. It is owned by the room actor
// and must only be mutated through command application.
type Room struct {
	ID              string     `json:"id"`
	HostID          string     `json:"hostId"`
	AccessMode      AccessMode `json:"accessMode"`
	AccessCode      string     `json:"-"`
	Lifecycle       Lifecycle  `json:"lifecycle"`
	TimeMode        TimeMode   `json:"timeMode"`
	Quiz            QuizRef    `json:"quiz"`
	CurrentQuestion int        `json:"currentQuestionIndex"`
	MaxParticipants int        `json:"maxParticipants"`

	// TimerAnchor marks when the current budget started counting.
	// Remaining time is always recomputed from it, never stored.
	TimerAnchor   time.Time     `json:"timerAnchor"`
	PausedAccum   time.Duration `json:"pausedAccumMs"`
	PauseStarted  time.Time     `json:"-"`
	BudgetSeconds int           `json:"budgetSeconds"`

	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Budget returns the active timer budget as a duration.
func (r *Room) Budget() time.Duration {
	return time.Duration(r.BudgetSeconds) * time.Second
}

// Remaining computes the time left on the current budget at now.
// While paused, the pause-in-progress interval is excluded, so the value
// observed at pause time is the value restored at resume time.
func (r *Room) Remaining(now time.Time) time.Duration {
	if r.Lifecycle == LifecycleWaiting || r.Lifecycle == LifecycleFinished {
		return 0
	}
	paused := r.PausedAccum
	if r.Lifecycle == LifecyclePaused && !r.PauseStarted.IsZero() {
		paused += now.Sub(r.PauseStarted)
	}
	elapsed := now.Sub(r.TimerAnchor) - paused
	if elapsed < 0 {
		elapsed = 0
	}
	rem := r.Budget() - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}

// Deadline returns the wall-clock instant the current budget expires,
// assuming no further pauses. Only meaningful while Active.
func (r *Room) Deadline() time.Time {
	return r.TimerAnchor.Add(r.PausedAccum + r.Budget())
}

// Expired reports whether the current budget has run out at now.
func (r *Room) Expired(now time.Time) bool {
	return r.Lifecycle == LifecycleActive && r.Remaining(now) == 0
}

// QuestionSeconds returns the budget for question idx, falling back to
// fallback when the quiz carries no per-question value.
func (r *Room) QuestionSeconds(idx int, fallback int) int {
	if idx >= 0 && idx < len(r.Quiz.Questions) && r.Quiz.Questions[idx].Seconds > 0 {
		return r.Quiz.Questions[idx].Seconds
	}
	return fallback
}
