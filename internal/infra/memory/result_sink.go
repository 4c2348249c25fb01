package memory

import (
	"context"
	"sync"

	"quiz-room-service/internal/domain"
)

// ResultSink keeps finished-room summaries in memory. Default sink when
// no Postgres is configured, and the one the tests inspect.
type ResultSink struct {
	mu        sync.RWMutex
	summaries map[string]domain.RoomSummary
}

func NewResultSink() *ResultSink {
	return &ResultSink{summaries: make(map[string]domain.RoomSummary)}
}

func (s *ResultSink) SaveSummary(_ context.Context, summary domain.RoomSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.RoomID] = summary
	return nil
}

// Summary returns the stored summary for a room, if any.
func (s *ResultSink) Summary(roomID string) (domain.RoomSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[roomID]
	return summary, ok
}
