package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-room-service/internal/domain"
)

// roomResult is the persisted form of a finished room. The ranked
// participants and per-question aggregates stay JSONB; the reporting
// subsystem reads them, the engine only ever writes.
type roomResult struct {
	bun.BaseModel `bun:"table:room_results"`

	RoomID       string          `bun:"room_id,pk"`
	QuizID       string          `bun:"quiz_id,notnull"`
	HostID       string          `bun:"host_id,notnull"`
	TimeMode     string          `bun:"time_mode,notnull"`
	FinishedAt   time.Time       `bun:"finished_at,notnull"`
	Participants json.RawMessage `bun:"participants,type:jsonb"`
	Questions    json.RawMessage `bun:"questions,type:jsonb"`
}

// ResultStore persists finished-room summaries via bun.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

// SaveSummary upserts the room's final record. Finish is emitted exactly
// once per room, but the upsert keeps a retried write harmless.
func (s *ResultStore) SaveSummary(ctx context.Context, summary domain.RoomSummary) error {
	participants, err := json.Marshal(summary.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	questions, err := json.Marshal(summary.Questions)
	if err != nil {
		return fmt.Errorf("marshal question stats: %w", err)
	}

	row := &roomResult{
		RoomID:       summary.RoomID,
		QuizID:       summary.QuizID,
		HostID:       summary.HostID,
		TimeMode:     string(summary.TimeMode),
		FinishedAt:   summary.FinishedAt,
		Participants: participants,
		Questions:    questions,
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (room_id) DO UPDATE").
		Set("participants = EXCLUDED.participants").
		Set("questions = EXCLUDED.questions").
		Set("finished_at = EXCLUDED.finished_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save room result: %w", err)
	}
	return nil
}
