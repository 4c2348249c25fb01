package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/app"
)

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - Room actors stay in-process; the actor model is what serializes
//     commands, and a socket always lands on the instance that owns its
//     room.
//   - Redis marks room liveness so sibling instances (and ops tooling)
//     can see which rooms exist without holding them.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Session
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Session),
	}
}

func (s *RoomStore) Register(roomID string, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return fmt.Errorf("room %s already registered", roomID)
	}
	s.rooms[roomID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(roomID), "1", s.ttl).Err()
	return nil
}

func (s *RoomStore) Get(roomID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.rooms[roomID]
	return session, ok
}

func (s *RoomStore) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (s *RoomStore) DeleteIfFinished(roomID string) {
	s.mu.Lock()
	session, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok || !session.Finished() {
		return
	}
	session.Close()
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(roomID)).Err()
}

func (s *RoomStore) key(roomID string) string {
	return "room:live:" + roomID
}
