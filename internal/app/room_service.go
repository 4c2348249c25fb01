package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/domain"
)

// RoomStore abstracts how room actors are registered (in-memory, Redis-
// backed liveness, etc).
type RoomStore interface {
	Register(roomID string, session *Session) error
	Get(roomID string) (*Session, bool)
	RoomIDs() []string
	DeleteIfFinished(roomID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultSink receives the immutable summary of a finished room. The
// engine itself never persists.
type ResultSink interface {
	SaveSummary(ctx context.Context, summary domain.RoomSummary) error
}

// RoomService contains the room engine use cases: it is the only entry
// point through which room and participant state is ever mutated.
type RoomService struct {
	rooms    RoomStore
	quizzes  QuizRepository
	sink     ResultSink
	timers   *TimerController
	defaults RoomDefaults
}

func NewRoomService(store RoomStore, quizzes QuizRepository, sink ResultSink, clock clockwork.Clock, defaults RoomDefaults) *RoomService {
	if defaults.SecondsPerQuestion <= 0 {
		defaults.SecondsPerQuestion = 20
	}
	if defaults.PerQuizBaseSeconds <= 0 {
		defaults.PerQuizBaseSeconds = 30
	}
	return &RoomService{
		rooms:    store,
		quizzes:  quizzes,
		sink:     sink,
		timers:   NewTimerController(clock, defaults),
		defaults: defaults,
	}
}

// CreateRoomParams bootstraps a room. HostID is the opaque identity of
// the owning connection; the engine trusts the auth collaborator for it.
type CreateRoomParams struct {
	RoomID          string
	HostID          string
	QuizID          string
	AccessMode      domain.AccessMode
	AccessCode      string
	TimeMode        domain.TimeMode
	MaxParticipants int
}

// CreateRoom loads the quiz, binds an immutable QuizRef, and starts the
// room actor in the Waiting state.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (domain.Room, error) {
	if p.HostID == "" {
		return domain.Room{}, fmt.Errorf("host id required: %w", domain.ErrUnauthorized)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, p.QuizID)
	if err != nil {
		return domain.Room{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Room{}, domain.ErrEmptyQuiz
	}

	if p.RoomID == "" {
		p.RoomID = uuid.NewString()
	}
	if p.AccessMode == "" {
		p.AccessMode = domain.AccessPublic
	}
	if p.TimeMode == "" {
		p.TimeMode = domain.TimeModePerQuestion
	}
	if p.MaxParticipants <= 0 {
		p.MaxParticipants = s.defaults.MaxParticipants
	}

	refs := make([]domain.QuestionRef, len(quiz.Questions))
	for i, q := range quiz.Questions {
		refs[i] = domain.QuestionRef{ID: q.ID, Seconds: q.Seconds, Points: q.Points}
	}
	room := &domain.Room{
		ID:              p.RoomID,
		HostID:          p.HostID,
		AccessMode:      p.AccessMode,
		AccessCode:      p.AccessCode,
		Lifecycle:       domain.LifecycleWaiting,
		TimeMode:        p.TimeMode,
		Quiz:            domain.QuizRef{QuizID: quiz.ID, Title: quiz.Title, Questions: refs},
		MaxParticipants: p.MaxParticipants,
		CreatedAt:       s.timers.Now(),
	}

	session := NewSession(room, quiz, s.timers, s.sink)
	if err := s.rooms.Register(p.RoomID, session); err != nil {
		session.Close()
		return domain.Room{}, err
	}

	log.Info().
		Str("room_id", room.ID).
		Str("quiz_id", quiz.ID).
		Str("time_mode", string(room.TimeMode)).
		Str("access_mode", string(room.AccessMode)).
		Msg("room created")
	return *room, nil
}

// Apply routes one command to its room actor.
func (s *RoomService) Apply(ctx context.Context, roomID string, cmd domain.Command) (domain.EventBatch, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return session.Apply(ctx, cmd)
}

// Resync serves the full-state snapshot for late or gapped clients.
func (s *RoomService) Resync(ctx context.Context, roomID string) (domain.Snapshot, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return session.Snapshot(ctx)
}

// Subscribe returns a channel receiving the room's committed events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RoomService) Subscribe(ctx context.Context, roomID string) (<-chan domain.Event, func(), error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	return session.Subscribe(ctx)
}

// EventLog returns a copy of a room's committed event log, mainly for
// diagnostics and replay verification.
func (s *RoomService) EventLog(roomID string) ([]domain.Event, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return session.EventLog(), nil
}

// MarkDisconnected records a transport-level socket close.
func (s *RoomService) MarkDisconnected(roomID, identity string) {
	if session, ok := s.rooms.Get(roomID); ok {
		session.MarkDisconnected(identity)
	}
}

// Sweep garbage-collects finished rooms.
func (s *RoomService) Sweep() {
	for _, id := range s.rooms.RoomIDs() {
		s.rooms.DeleteIfFinished(id)
	}
}

// Close stops every room actor.
func (s *RoomService) Close() {
	for _, id := range s.rooms.RoomIDs() {
		if session, ok := s.rooms.Get(id); ok {
			session.Close()
		}
	}
}
