// Package memory keeps short-term per-session conversation state:
// recent question/answer turns and recent routing decisions. Sessions
// expire after a period of inactivity.
package memory

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/harperhq/clientiq/pkg/pipeline"
	"github.com/harperhq/clientiq/pkg/router"
)

// Store holds bounded conversation state per session. Safe for
// concurrent use.
type Store struct {
	sessions *ttlcache.Cache[string, *session]
	window   int
}

type session struct {
	mu     sync.Mutex
	turns  []pipeline.ConversationTurn
	routes []router.Record
}

// NewStore creates a session store. window bounds how many prior turns
// and routing records are retained per session; sessionTTL is the idle
// time after which a session is dropped.
func NewStore(window int, sessionTTL time.Duration) *Store {
	if window <= 0 {
		window = 3
	}
	sessions := ttlcache.New(
		ttlcache.WithTTL[string, *session](sessionTTL),
	)
	go sessions.Start()
	return &Store{sessions: sessions, window: window}
}

func (s *Store) session(id string) *session {
	item, _ := s.sessions.GetOrSet(id, &session{})
	return item.Value()
}

// Turns returns a copy of the retained conversation turns for the
// session, oldest first. Reading refreshes the session's TTL.
func (s *Store) Turns(sessionID string) []pipeline.ConversationTurn {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]pipeline.ConversationTurn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append records a completed question/answer exchange, evicting the
// oldest turn once the window is full.
func (s *Store) Append(sessionID string, turn pipeline.ConversationTurn) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.window {
		sess.turns = sess.turns[len(sess.turns)-s.window:]
	}
}

// Routes returns a copy of the retained routing records for the session,
// oldest first.
func (s *Store) Routes(sessionID string) []router.Record {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]router.Record, len(sess.routes))
	copy(out, sess.routes)
	return out
}

// AppendRoute records a routing decision, bounded by the same window as
// conversation turns.
func (s *Store) AppendRoute(sessionID string, rec router.Record) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.routes = append(sess.routes, rec)
	if len(sess.routes) > s.window {
		sess.routes = sess.routes[len(sess.routes)-s.window:]
	}
}

// Stop halts the background expiration loop.
func (s *Store) Stop() {
	s.sessions.Stop()
}
