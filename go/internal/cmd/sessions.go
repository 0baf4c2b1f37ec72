package main

import (
	"sync"

	"github.com/mcdev12/flagduel/go/internal/match"
)

// sessionRegistry maps room ids to live sessions so gateway commands can
// find the session they belong to. One process normally holds a single
// match, but nothing here depends on that.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*match.Session
}

func (r *sessionRegistry) set(roomID string, s *match.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*match.Session)
	}
	r.sessions[roomID] = s
}

func (r *sessionRegistry) get(roomID string) *match.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[roomID]
}
