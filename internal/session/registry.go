package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the idle time after which a session is dropped.
const DefaultTimeout = time.Hour

// EvictFunc is called, outside the registry lock, with every game removed by
// pruning, Delete or ClearAll.
type EvictFunc func(g *Game, reason string)

type Option func(*Registry)

func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry maps session ids to games. One lock covers both maps, so an id
// is in sessions exactly when it is in lastAccess.
type Registry struct {
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu         sync.Mutex
	sessions   map[string]*Game
	lastAccess map[string]time.Time
	onEvict    EvictFunc
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		timeout:    DefaultTimeout,
		now:        time.Now,
		logger:     zap.NewNop(),
		sessions:   make(map[string]*Game),
		lastAccess: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnEvict installs the eviction hook.
func (r *Registry) OnEvict(fn EvictFunc) {
	r.mu.Lock()
	r.onEvict = fn
	r.mu.Unlock()
}

func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultID
	}
	return id
}

// GetOrCreate prunes idle sessions, then returns the game for id, creating
// it if needed. The access stamp for id is the last step, so a request can
// never prune its own session.
func (r *Registry) GetOrCreate(id string) *Game {
	id = normalizeID(id)

	r.mu.Lock()
	now := r.now()
	evicted := r.pruneLocked(now)
	g, ok := r.sessions[id]
	if !ok {
		g = NewGame(id)
		r.sessions[id] = g
		r.logger.Debug("session_created", zap.String("session_id", id))
	}
	r.lastAccess[id] = now
	hook := r.onEvict
	r.mu.Unlock()

	r.notify(hook, evicted, "idle")
	return g
}

// Delete removes id. Missing ids are ignored.
func (r *Registry) Delete(id string) {
	id = normalizeID(id)

	r.mu.Lock()
	g, ok := r.sessions[id]
	delete(r.sessions, id)
	delete(r.lastAccess, id)
	hook := r.onEvict
	r.mu.Unlock()

	if ok {
		r.notify(hook, []*Game{g}, "deleted")
	}
}

// ClearAll drops every session.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	games := make([]*Game, 0, len(r.sessions))
	for _, g := range r.sessions {
		games = append(games, g)
	}
	r.sessions = make(map[string]*Game)
	r.lastAccess = make(map[string]time.Time)
	hook := r.onEvict
	r.mu.Unlock()

	r.notify(hook, games, "cleared")
}

// ActiveCount prunes and reports the surviving session count.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	evicted := r.pruneLocked(r.now())
	n := len(r.sessions)
	hook := r.onEvict
	r.mu.Unlock()

	r.notify(hook, evicted, "idle")
	return n
}

type Summary struct {
	ID         string    `json:"id"`
	MoveCount  int       `json:"move_count"`
	Status     string    `json:"status"`
	LastAccess time.Time `json:"last_access"`
}

// Sessions prunes and lists live sessions ordered by id. It does not
// refresh any access stamp.
func (r *Registry) Sessions() []Summary {
	r.mu.Lock()
	evicted := r.pruneLocked(r.now())
	type entry struct {
		g    *Game
		last time.Time
	}
	entries := make([]entry, 0, len(r.sessions))
	for id, g := range r.sessions {
		entries = append(entries, entry{g: g, last: r.lastAccess[id]})
	}
	hook := r.onEvict
	r.mu.Unlock()

	r.notify(hook, evicted, "idle")

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		st := e.g.Status()
		out = append(out, Summary{
			ID:         e.g.ID(),
			MoveCount:  st.MoveCount,
			Status:     string(st.Label),
			LastAccess: e.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) pruneLocked(now time.Time) []*Game {
	var evicted []*Game
	for id, last := range r.lastAccess {
		if now.Sub(last) > r.timeout {
			if g, ok := r.sessions[id]; ok {
				evicted = append(evicted, g)
			}
			delete(r.sessions, id)
			delete(r.lastAccess, id)
		}
	}
	if len(evicted) > 0 {
		r.logger.Info("sessions_pruned", zap.Int("count", len(evicted)), zap.Duration("timeout", r.timeout))
	}
	return evicted
}

func (r *Registry) notify(hook EvictFunc, games []*Game, reason string) {
	if hook == nil {
		return
	}
	for _, g := range games {
		hook(g, reason)
	}
}
