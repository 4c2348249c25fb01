package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the closed set of room events.
type EventType string

const (
	EventRoomLifecycleChanged EventType = "RoomLifecycleChanged"
	EventParticipantJoined    EventType = "ParticipantJoined"
	EventParticipantLeft      EventType = "ParticipantLeft"
	EventParticipantKicked    EventType = "ParticipantKicked"
	EventParticipantAnswered  EventType = "ParticipantAnswered"
	EventQuestionAdvanced     EventType = "QuestionAdvanced"
	EventTimerSync            EventType = "TimerSync"
)

// Event is one committed entry of a room's log. Seq is strictly
// increasing per room with no gaps; a client that observes a gap must
// resync instead of applying partial state.
type Event struct {
	RoomID    string          `json:"roomId"`
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// EventBatch is the atomic result of one applied command: a contiguous
// sequence range that clients observe entirely or not at all.
type EventBatch []Event

// RoomLifecycleChangedPayload announces a lifecycle transition.
type RoomLifecycleChangedPayload struct {
	NewState Lifecycle `json:"newState"`
	Reason   string    `json:"reason,omitempty"`
}

// ParticipantJoinedPayload carries the joined (or reconnected) entry.
type ParticipantJoinedPayload struct {
	Participant Participant `json:"participant"`
	Reconnected bool        `json:"reconnected"`
}

// ParticipantLeftPayload announces an explicit departure.
type ParticipantLeftPayload struct {
	Identity string `json:"identity"`
}

// ParticipantKickedPayload announces a host kick.
type ParticipantKickedPayload struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason,omitempty"`
}

// ParticipantAnsweredPayload carries a scored answer.
type ParticipantAnsweredPayload struct {
	Identity       string `json:"identity"`
	QuestionIndex  int    `json:"questionIndex"`
	Correct        bool   `json:"correct"`
	Awarded        int    `json:"awarded"`
	Score          int    `json:"score"`
	ResponseTimeMs int64  `json:"responseTimeMs,omitempty"`
}

// QuestionAdvancedPayload announces the room moving to a new index.
type QuestionAdvancedPayload struct {
	NewIndex int  `json:"newIndex"`
	Auto     bool `json:"auto"`
}

// TimerSyncPayload lets every client recompute remaining time from the
// same anchor instead of trusting an accumulated local countdown.
type TimerSyncPayload struct {
	Anchor        time.Time `json:"anchor"`
	BudgetSeconds int       `json:"budgetSeconds"`
	PausedAccumMs int64     `json:"pausedAccumMs"`
}

// NewEvent builds an event with a marshaled payload. Payloads are plain
// structs from this package, so marshaling cannot realistically fail;
// a failure is reported as an error anyway rather than hidden.
func NewEvent(roomID string, seq uint64, typ EventType, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{RoomID: roomID, Seq: seq, Type: typ, Payload: raw, EmittedAt: at}, nil
}

// DecodeEventPayload parses an event's payload into its typed form.
// Handling is exhaustive over the closed EventType set.
func DecodeEventPayload(ev Event) (any, error) {
	switch ev.Type {
	case EventRoomLifecycleChanged:
		var p RoomLifecycleChangedPayload
		return decode(ev, &p)
	case EventParticipantJoined:
		var p ParticipantJoinedPayload
		return decode(ev, &p)
	case EventParticipantLeft:
		var p ParticipantLeftPayload
		return decode(ev, &p)
	case EventParticipantKicked:
		var p ParticipantKickedPayload
		return decode(ev, &p)
	case EventParticipantAnswered:
		var p ParticipantAnsweredPayload
		return decode(ev, &p)
	case EventQuestionAdvanced:
		var p QuestionAdvancedPayload
		return decode(ev, &p)
	case EventTimerSync:
		var p TimerSyncPayload
		return decode(ev, &p)
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func decode[T any](ev Event, into *T) (T, error) {
	err := json.Unmarshal(ev.Payload, into)
	if err != nil {
		err = fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return *into, err
}
