package app

import (
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-room-service/internal/domain"
)

// RoomDefaults are the engine-level fallbacks applied when a quiz or a
// create request does not specify its own values.
type RoomDefaults struct {
	SecondsPerQuestion int
	PerQuizBaseSeconds int
	MaxParticipants    int
}

// TimerController is the sole time authority for the engine. Remaining
// time is always recomputed from the room's anchor, never counted down,
// so server and clients cannot drift apart.
type TimerController struct {
	clock    clockwork.Clock
	defaults RoomDefaults
}

func NewTimerController(clock clockwork.Clock, defaults RoomDefaults) *TimerController {
	return &TimerController{clock: clock, defaults: defaults}
}

func (t *TimerController) Now() time.Time { return t.clock.Now() }

// Remaining returns the time left on the room's current budget.
func (t *TimerController) Remaining(r *domain.Room) time.Duration {
	return r.Remaining(t.clock.Now())
}

// Expired reports whether the room's budget has crossed zero.
func (t *TimerController) Expired(r *domain.Room) bool {
	return r.Expired(t.clock.Now())
}

// StartBudget computes the budget applied at `start`: the first
// question's allowance in per-question mode, or question count times the
// base allowance for the whole session in per-quiz mode.
func (t *TimerController) StartBudget(r *domain.Room) int {
	if r.TimeMode == domain.TimeModePerQuiz {
		return r.Quiz.Len() * t.defaults.PerQuizBaseSeconds
	}
	return r.QuestionSeconds(0, t.defaults.SecondsPerQuestion)
}

// QuestionBudget computes the per-question budget for index idx.
func (t *TimerController) QuestionBudget(r *domain.Room, idx int) int {
	return r.QuestionSeconds(idx, t.defaults.SecondsPerQuestion)
}

// Arm resets timer to fire at the room's deadline, or leaves it stopped
// when the room is not actively counting. The caller owns draining.
func (t *TimerController) Arm(timer clockwork.Timer, r *domain.Room) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
	if r.Lifecycle != domain.LifecycleActive {
		return
	}
	wait := r.Deadline().Sub(t.clock.Now())
	if wait < 0 {
		wait = 0
	}
	timer.Reset(wait)
}
