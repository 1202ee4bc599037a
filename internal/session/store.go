package session

import (
	"sync"
	"time"
)

// Store is the session repository, keyed by chat ID. Each session is only
// ever mutated by its own chat's flow; the store itself just guards the map.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Create starts a new session at the given step, replacing any existing
// session for the chat. The replaced session, if any, is returned so the
// caller can release its assets.
func (st *Store) Create(chatID int64, step Step) (created, replaced *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	replaced = st.sessions[chatID]
	created = &Session{
		ChatID:    chatID,
		Step:      step,
		CreatedAt: time.Now(),
	}
	st.sessions[chatID] = created
	return created, replaced
}

// Get returns the chat's session or nil.
func (st *Store) Get(chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[chatID]
}

// Delete removes and returns the chat's session, or nil if there was none.
func (st *Store) Delete(chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.sessions[chatID]
	delete(st.sessions, chatID)
	return s
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
