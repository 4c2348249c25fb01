package domain

import "errors"

var (
	// ErrRoomNotFound is returned for commands against an unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrParticipantNotFound is returned when an identity acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrUnauthorized is returned when a non-host issues a host-only command.
	ErrUnauthorized = errors.New("command requires the room host")
	// ErrInvalidState is returned when a command is illegal for the room's
	// current lifecycle. The room is left exactly as it was.
	ErrInvalidState = errors.New("command not valid in current room state")
	// ErrAlreadyKicked rejects any rejoin attempt by a kicked identity.
	ErrAlreadyKicked = errors.New("identity was kicked from this room")
	// ErrAccessDenied is returned for a wrong access code on a private room.
	ErrAccessDenied = errors.New("access code rejected")
	// ErrRoomFull is returned when the room is at capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrDuplicateAnswer marks an idempotent replay of an already-scored
	// answer; callers treat it as a no-op, not a hard failure.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrQuestionMismatch is returned when an answer targets an index other
	// than the one currently open for the issuer.
	ErrQuestionMismatch = errors.New("answer does not match current question")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz rejects starting a room whose quiz has no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
)

// ErrorCode maps an engine error to its wire code. Unknown errors map
// to "internal" so raw error chains never become protocol codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrEmptyQuiz),
		errors.Is(err, ErrQuestionMismatch), errors.Is(err, ErrOptionNotFound):
		return "invalid_state"
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrQuizNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyKicked):
		return "already_kicked"
	case errors.Is(err, ErrDuplicateAnswer):
		return "duplicate_answer"
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrRoomFull):
		return "access_denied"
	default:
		return "internal"
	}
}
