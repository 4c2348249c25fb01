package memory

import (
	"fmt"
	"sync"

	"quiz-room-service/internal/app"
)

// RoomStore is an in-memory implementation of app.RoomStore.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Session
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Session),
	}
}

func (s *RoomStore) Register(roomID string, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return fmt.Errorf("room %s already registered", roomID)
	}
	s.rooms[roomID] = session
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
	// Stop the actor outside the map lock; Close waits for its goroutine.
	session.Close()
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}
