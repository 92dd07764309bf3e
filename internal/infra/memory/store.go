package memory

import (
	"context"
	"sync"
	"time"

	"classroom-live-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, used when no Postgres
// URL is configured and throughout the test suite.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]domain.Room
	sessions  map[string]domain.Session
	quizzes   map[string]domain.Quiz
	responses map[string][]domain.Response // keyed by session id

	sessionOrder []string // insertion order, for started-at ties
}

func NewStore() *Store {
	return &Store{
		rooms:     make(map[string]domain.Room),
		sessions:  make(map[string]domain.Session),
		quizzes:   make(map[string]domain.Quiz),
		responses: make(map[string][]domain.Response),
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) BindCreatorConn(_ context.Context, roomID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if room.CreatorConn == "" {
		room.CreatorConn = connID
		s.rooms[roomID] = room
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.sessionOrder = append(s.sessionOrder, sess.ID)
	return nil
}

func (s *Store) OpenSession(_ context.Context, roomID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Most recently started first.
	for i := len(s.sessionOrder) - 1; i >= 0; i-- {
		sess := s.sessions[s.sessionOrder[i]]
		if sess.RoomID == roomID && sess.EndedAt == nil {
			return sess, nil
		}
	}
	return domain.Session{}, domain.ErrNoOpenSession
}

func (s *Store) EndSession(_ context.Context, sessionID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.EndedAt != nil {
		return nil
	}
	sess.EndedAt = &endedAt
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	s.quizzes[quiz.ID] = quiz
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateResponse(_ context.Context, resp domain.Response) error {
	s.mu.Lock()
	s.responses[resp.SessionID] = append(s.responses[resp.SessionID], resp)
	s.mu.Unlock()
	return nil
}

func (s *Store) CountQuizzes(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, quiz := range s.quizzes {
		if quiz.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListResponses(_ context.Context, sessionID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.responses[sessionID]
	out := make([]domain.Response, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *Store) RoomsByOwner(_ context.Context, userID string, creatorKeys []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[string]struct{}, len(creatorKeys))
	for _, k := range creatorKeys {
		keys[k] = struct{}{}
	}
	ids := make([]string, 0)
	for _, id := range s.roomOrderLocked() {
		room := s.rooms[id]
		if userID != "" && room.CreatorUserID == userID {
			ids = append(ids, id)
			continue
		}
		if room.CreatorKey != "" {
			if _, ok := keys[room.CreatorKey]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (s *Store) ListSessions(_ context.Context, roomID string, limit int) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0)
	for i := len(s.sessionOrder) - 1; i >= 0 && len(out) < limit; i-- {
		sess := s.sessions[s.sessionOrder[i]]
		if sess.RoomID == roomID {
			out = append(out, sess)
		}
	}
	return out, nil
}

// roomOrderLocked returns room ids sorted by creation time for stable
// history output.
func (s *Store) roomOrderLocked() []string {
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && s.rooms[ids[j]].CreatedAt.Before(s.rooms[ids[j-1]].CreatedAt); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}
