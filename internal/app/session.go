package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/domain"
)

const (
	subscriberBuffer = 32
	inboxBuffer      = 64
)

// Session is the authoritative actor for one room. All room and
// participant state is owned by the run goroutine; every operation is
// posted to the inbox and executed strictly one at a time, which is
// what removes races between, say, a host pause and a late answer.
// Different rooms run fully independent actors.
type Session struct {
	timer *TimerController
	sink  ResultSink

	inbox chan func()
	quit  chan struct{}
	done  chan struct{}

	// Actor-owned. Only the run goroutine may touch these.
	room         *domain.Room
	quiz         domain.Quiz
	participants map[string]*domain.Participant
	eventLog     []domain.Event
	seq          uint64
	subscribers  map[chan domain.Event]struct{}
}

// NewSession builds and starts the actor for room.
func NewSession(room *domain.Room, quiz domain.Quiz, timer *TimerController, sink ResultSink) *Session {
	s := &Session{
		timer:        timer,
		sink:         sink,
		inbox:        make(chan func(), inboxBuffer),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		room:         room,
		quiz:         quiz,
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan domain.Event]struct{}),
	}
	go s.run()
	return s
}

// Close stops the actor. Pending inbox entries are abandoned.
func (s *Session) Close() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	timer := s.timer.clock.NewTimer(time.Hour)
	defer timer.Stop()
	s.timer.Arm(timer, s.room)

	for {
		select {
		case <-s.quit:
			s.closeSubscribers()
			return
		case fn := <-s.inbox:
			// An expired budget settles before any other work so a late
			// answer can never land on a question that already timed out.
			s.settleTimer()
			fn()
			s.timer.Arm(timer, s.room)
		case <-timer.Chan():
			s.settleTimer()
			s.timer.Arm(timer, s.room)
		}
	}
}

// do posts fn to the actor and waits for it to run.
func (s *Session) do(fn func()) error {
	doneCh := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(doneCh) }:
	case <-s.quit:
		return domain.ErrRoomNotFound
	}
	select {
	case <-doneCh:
		return nil
	case <-s.quit:
		return domain.ErrRoomNotFound
	}
}

// Apply validates and executes one command, returning the committed
// batch. Either the entire batch applies, or nothing does.
func (s *Session) Apply(ctx context.Context, cmd domain.Command) (domain.EventBatch, error) {
	var (
		batch domain.EventBatch
		err   error
	)
	if postErr := s.do(func() { batch, err = s.apply(cmd) }); postErr != nil {
		return nil, postErr
	}
	return batch, err
}

// Snapshot returns the full current state. Read-only: it never mutates
// room or participant state, so resync is always safe to repeat.
func (s *Session) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := s.do(func() { snap = s.snapshot() }); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// Subscribe registers an event channel. Slow consumers lose the oldest
// buffered event; the resulting gap makes the client resync instead of
// applying partial state.
func (s *Session) Subscribe(ctx context.Context) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, subscriberBuffer)
	if err := s.do(func() { s.subscribers[ch] = struct{}{} }); err != nil {
		return nil, nil, err
	}
	cancel := func() {
		_ = s.do(func() {
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// MarkDisconnected records transport-level socket loss. The entry, its
// score, and progress are all retained for reconnect; peers see the
// presence change as a ParticipantLeft event, same as an explicit leave.
func (s *Session) MarkDisconnected(identity string) {
	_ = s.do(func() {
		p, ok := s.participants[identity]
		if !ok || p.Status != domain.StatusConnected {
			return
		}
		p.Status = domain.StatusDisconnected
		p.LastActivityAt = s.timer.Now()
		ev := s.emit(domain.EventParticipantLeft, domain.ParticipantLeftPayload{Identity: identity})
		s.broadcast(domain.EventBatch{ev})
	})
}

// Finished reports whether the room has reached its terminal state.
func (s *Session) Finished() bool {
	finished := false
	_ = s.do(func() { finished = s.room.Lifecycle == domain.LifecycleFinished })
	return finished
}

// EventLog returns a copy of the committed log.
func (s *Session) EventLog() []domain.Event {
	var out []domain.Event
	_ = s.do(func() {
		out = make([]domain.Event, len(s.eventLog))
		copy(out, s.eventLog)
	})
	return out
}

// --- actor internals; everything below runs on the run goroutine ---

func (s *Session) apply(cmd domain.Command) (domain.EventBatch, error) {
	if !cmd.Type.Known() {
		return nil, domain.ErrInvalidState
	}
	// Authority first, legality second.
	if cmd.Type.HostOnly() && cmd.Issuer != s.room.HostID {
		return nil, domain.ErrUnauthorized
	}

	var (
		batch domain.EventBatch
		err   error
	)
	switch cmd.Type {
	case domain.CommandJoin:
		batch, err = s.applyJoin(cmd)
	case domain.CommandLeave:
		batch, err = s.applyLeave(cmd)
	case domain.CommandAnswer:
		batch, err = s.applyAnswer(cmd)
	case domain.CommandStart:
		batch, err = s.applyStart(cmd)
	case domain.CommandPause:
		batch, err = s.applyPause(cmd)
	case domain.CommandResume:
		batch, err = s.applyResume(cmd)
	case domain.CommandNextQuestion:
		batch, err = s.applyNextQuestion(cmd)
	case domain.CommandFinish:
		batch, err = s.applyFinish(cmd)
	case domain.CommandKick:
		batch, err = s.applyKick(cmd)
	}
	if err != nil {
		return nil, err
	}
	s.broadcast(batch)
	return batch, nil
}

func (s *Session) applyJoin(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle == domain.LifecycleFinished {
		return nil, domain.ErrInvalidState
	}
	now := s.timer.Now()

	if existing, ok := s.participants[cmd.Issuer]; ok {
		if existing.Status == domain.StatusKicked {
			return nil, domain.ErrAlreadyKicked
		}
		// Reconnect: score and progress survive, presence flips back.
		existing.Status = domain.StatusConnected
		if cmd.DisplayName != "" {
			existing.DisplayName = cmd.DisplayName
		}
		existing.LastActivityAt = now
		ev := s.emit(domain.EventParticipantJoined, domain.ParticipantJoinedPayload{
			Participant: *existing.Clone(),
			Reconnected: true,
		})
		return domain.EventBatch{ev}, nil
	}

	role := domain.RoleParticipant
	if cmd.Issuer == s.room.HostID {
		role = domain.RoleHost
	}
	if role != domain.RoleHost {
		if s.room.AccessMode == domain.AccessPrivate && cmd.AccessCode != s.room.AccessCode {
			return nil, domain.ErrAccessDenied
		}
		if s.room.MaxParticipants > 0 && s.countParticipants() >= s.room.MaxParticipants {
			return nil, domain.ErrRoomFull
		}
	}

	p := &domain.Participant{
		Identity:       cmd.Issuer,
		DisplayName:    cmd.DisplayName,
		Role:           role,
		Status:         domain.StatusConnected,
		Answered:       make(map[int]domain.AnswerRecord),
		JoinedAt:       now,
		LastActivityAt: now,
	}
	// A late joiner in per-question mode lands on the live question;
	// in per-quiz mode everyone works through from the beginning.
	if s.room.TimeMode == domain.TimeModePerQuestion {
		p.CurrentQuestion = s.room.CurrentQuestion
	}
	s.participants[cmd.Issuer] = p

	ev := s.emit(domain.EventParticipantJoined, domain.ParticipantJoinedPayload{Participant: *p.Clone()})
	return domain.EventBatch{ev}, nil
}

func (s *Session) applyLeave(cmd domain.Command) (domain.EventBatch, error) {
	p, ok := s.participants[cmd.Issuer]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if p.Status == domain.StatusKicked {
		return nil, domain.ErrAlreadyKicked
	}
	p.Status = domain.StatusDisconnected
	p.LastActivityAt = s.timer.Now()
	ev := s.emit(domain.EventParticipantLeft, domain.ParticipantLeftPayload{Identity: cmd.Issuer})
	return domain.EventBatch{ev}, nil
}

func (s *Session) applyAnswer(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle != domain.LifecycleActive {
		return nil, domain.ErrInvalidState
	}
	p, ok := s.participants[cmd.Issuer]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if p.Status == domain.StatusKicked {
		return nil, domain.ErrAlreadyKicked
	}

	expected := p.CurrentQuestion
	if s.room.TimeMode == domain.TimeModePerQuestion {
		expected = s.room.CurrentQuestion
	}
	if cmd.QuestionIndex != expected || cmd.QuestionIndex >= s.room.Quiz.Len() {
		return nil, domain.ErrQuestionMismatch
	}
	if p.HasAnswered(cmd.QuestionIndex) {
		// Idempotent replay: accepted, but never double-scored.
		return nil, domain.ErrDuplicateAnswer
	}

	question := s.quiz.Questions[cmd.QuestionIndex]
	correct := false
	found := false
	for _, opt := range question.Options {
		if opt.ID == cmd.OptionID {
			found = true
			correct = opt.Correct
			break
		}
	}
	if !found {
		return nil, domain.ErrOptionNotFound
	}

	awarded := 0
	if correct {
		awarded = question.Points
		if awarded == 0 {
			awarded = 1
		}
	}

	now := s.timer.Now()
	p.Score += awarded
	p.Answered[cmd.QuestionIndex] = domain.AnswerRecord{
		OptionID:       cmd.OptionID,
		Correct:        correct,
		Awarded:        awarded,
		ResponseTimeMs: cmd.ResponseTimeMs,
		AnsweredAt:     now,
	}
	p.LastActivityAt = now
	if s.room.TimeMode == domain.TimeModePerQuiz && p.CurrentQuestion+1 < s.room.Quiz.Len() {
		p.CurrentQuestion++
	}

	ev := s.emit(domain.EventParticipantAnswered, domain.ParticipantAnsweredPayload{
		Identity:       cmd.Issuer,
		QuestionIndex:  cmd.QuestionIndex,
		Correct:        correct,
		Awarded:        awarded,
		Score:          p.Score,
		ResponseTimeMs: cmd.ResponseTimeMs,
	})
	return domain.EventBatch{ev}, nil
}

func (s *Session) applyStart(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle != domain.LifecycleWaiting {
		return nil, domain.ErrInvalidState
	}
	if s.room.Quiz.Len() == 0 {
		return nil, domain.ErrEmptyQuiz
	}
	now := s.timer.Now()
	s.room.Lifecycle = domain.LifecycleActive
	s.room.CurrentQuestion = 0
	s.room.TimerAnchor = now
	s.room.PausedAccum = 0
	s.room.PauseStarted = time.Time{}
	s.room.BudgetSeconds = s.timer.StartBudget(s.room)

	batch := domain.EventBatch{
		s.emit(domain.EventRoomLifecycleChanged, domain.RoomLifecycleChangedPayload{NewState: domain.LifecycleActive}),
		s.emitTimerSync(),
	}
	return batch, nil
}

func (s *Session) applyPause(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle != domain.LifecycleActive {
		return nil, domain.ErrInvalidState
	}
	s.room.Lifecycle = domain.LifecyclePaused
	s.room.PauseStarted = s.timer.Now()

	batch := domain.EventBatch{
		s.emit(domain.EventRoomLifecycleChanged, domain.RoomLifecycleChangedPayload{NewState: domain.LifecyclePaused}),
		s.emitTimerSync(),
	}
	return batch, nil
}

func (s *Session) applyResume(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle != domain.LifecyclePaused {
		return nil, domain.ErrInvalidState
	}
	now := s.timer.Now()
	// The anchor never moves; elapsed pause time accumulates instead, so
	// remaining time at resume equals remaining time at pause.
	s.room.PausedAccum += now.Sub(s.room.PauseStarted)
	s.room.PauseStarted = time.Time{}
	s.room.Lifecycle = domain.LifecycleActive

	batch := domain.EventBatch{
		s.emit(domain.EventRoomLifecycleChanged, domain.RoomLifecycleChangedPayload{NewState: domain.LifecycleActive}),
		s.emitTimerSync(),
	}
	return batch, nil
}

func (s *Session) applyNextQuestion(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle != domain.LifecycleActive {
		return nil, domain.ErrInvalidState
	}
	if s.room.TimeMode != domain.TimeModePerQuestion {
		// Per-quiz rooms advance per participant, never room-wide.
		return nil, domain.ErrInvalidState
	}
	if s.room.CurrentQuestion+1 >= s.room.Quiz.Len() {
		return nil, domain.ErrInvalidState
	}
	return s.advance(false, s.timer.Now()), nil
}

func (s *Session) applyFinish(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle != domain.LifecycleActive && s.room.Lifecycle != domain.LifecyclePaused {
		return nil, domain.ErrInvalidState
	}
	return s.finish("host"), nil
}

func (s *Session) applyKick(cmd domain.Command) (domain.EventBatch, error) {
	if s.room.Lifecycle == domain.LifecycleFinished {
		return nil, domain.ErrInvalidState
	}
	target, ok := s.participants[cmd.TargetIdentity]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if target.Identity == s.room.HostID {
		return nil, domain.ErrUnauthorized
	}
	if target.Status == domain.StatusKicked {
		return nil, domain.ErrAlreadyKicked
	}
	target.Status = domain.StatusKicked
	target.LastActivityAt = s.timer.Now()

	ev := s.emit(domain.EventParticipantKicked, domain.ParticipantKickedPayload{
		Identity: cmd.TargetIdentity,
		Reason:   cmd.Reason,
	})
	return domain.EventBatch{ev}, nil
}

// advance moves the room to the next question and restarts the
// per-question budget from `at`.
func (s *Session) advance(auto bool, at time.Time) domain.EventBatch {
	s.room.CurrentQuestion++
	s.room.TimerAnchor = at
	s.room.PausedAccum = 0
	s.room.PauseStarted = time.Time{}
	s.room.BudgetSeconds = s.timer.QuestionBudget(s.room, s.room.CurrentQuestion)

	// Room-wide advancement drags every live participant pointer along.
	for _, p := range s.participants {
		if p.Status == domain.StatusKicked {
			continue
		}
		if p.CurrentQuestion < s.room.CurrentQuestion {
			p.CurrentQuestion = s.room.CurrentQuestion
		}
	}

	batch := domain.EventBatch{
		s.emit(domain.EventQuestionAdvanced, domain.QuestionAdvancedPayload{
			NewIndex: s.room.CurrentQuestion,
			Auto:     auto,
		}),
		s.emitTimerSync(),
	}
	return batch
}

func (s *Session) finish(reason string) domain.EventBatch {
	now := s.timer.Now()
	s.room.Lifecycle = domain.LifecycleFinished
	s.room.FinishedAt = now
	s.room.PauseStarted = time.Time{}

	batch := domain.EventBatch{
		s.emit(domain.EventRoomLifecycleChanged, domain.RoomLifecycleChangedPayload{
			NewState: domain.LifecycleFinished,
			Reason:   reason,
		}),
	}

	summary := domain.BuildSummary(s.room, s.participants, now)
	if s.sink != nil {
		// The sink may hit a database; keep the actor responsive and let
		// the write settle on its own.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.sink.SaveSummary(ctx, summary); err != nil {
				log.Error().Err(err).Str("room_id", summary.RoomID).Msg("failed to persist room summary")
			}
		}()
	}
	return batch
}

// settleTimer applies any pending zero-crossings: auto-advance in
// per-question mode, auto-finish at the end of the sequence or of the
// whole-quiz budget. Runs before every command so an expired timer's
// side effects always precede, e.g., a late answer.
func (s *Session) settleTimer() {
	for s.timer.Expired(s.room) {
		deadline := s.room.Deadline()
		var batch domain.EventBatch
		switch {
		case s.room.TimeMode == domain.TimeModePerQuiz:
			batch = s.finish("time")
		case s.room.CurrentQuestion+1 < s.room.Quiz.Len():
			// Catch-up advances anchor from the expired deadline, not
			// from now, so multiple missed budgets settle one by one.
			batch = s.advance(true, deadline)
		default:
			batch = s.finish("time")
		}
		s.broadcast(batch)
	}
}

func (s *Session) emit(typ domain.EventType, payload any) domain.Event {
	s.seq++
	ev, err := domain.NewEvent(s.room.ID, s.seq, typ, payload, s.timer.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", s.room.ID).Msg("event payload marshal failed")
	}
	s.eventLog = append(s.eventLog, ev)
	return ev
}

func (s *Session) emitTimerSync() domain.Event {
	return s.emit(domain.EventTimerSync, domain.TimerSyncPayload{
		Anchor:        s.room.TimerAnchor,
		BudgetSeconds: s.room.BudgetSeconds,
		PausedAccumMs: s.room.PausedAccum.Milliseconds(),
	})
}

func (s *Session) broadcast(batch domain.EventBatch) {
	for _, ev := range batch {
		for ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
				// Drop the oldest buffered event for a slow consumer; the
				// seq gap it observes forces a resync.
				select {
				case <-ch:
				default:
				}
				ch <- ev
			}
		}
	}
}

func (s *Session) snapshot() domain.Snapshot {
	room := *s.room
	parts := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		parts = append(parts, *p.Clone())
	}
	return domain.Snapshot{
		Room:             room,
		Participants:     parts,
		Seq:              s.seq,
		RemainingSeconds: int(s.timer.Remaining(s.room) / time.Second),
	}
}

func (s *Session) countParticipants() int {
	n := 0
	for _, p := range s.participants {
		if p.Role == domain.RoleParticipant && p.Status != domain.StatusKicked {
			n++
		}
	}
	return n
}

func (s *Session) closeSubscribers() {
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan domain.Event]struct{})
}
