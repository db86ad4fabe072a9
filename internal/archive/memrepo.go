package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/cheese-analyzer/internal/domain"
)

// memrepo keeps archived games in process; used when no database is configured.
type memrepo struct {
	mu        sync.RWMutex
	byID      map[string]*domain.ArchivedGame
	bySession map[string][]*domain.ArchivedGame
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:      make(map[string]*domain.ArchivedGame),
		bySession: make(map[string][]*domain.ArchivedGame),
	}
}

func (m *memrepo) InsertGame(_ context.Context, game *domain.ArchivedGame) error {
	if game == nil {
		return ErrDuplicateGame
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[game.ID]; exists {
		return ErrDuplicateGame
	}
	stored := *game
	stored.MovesSAN = append([]string(nil), game.MovesSAN...)
	m.byID[stored.ID] = &stored
	m.bySession[stored.SessionID] = append(m.bySession[stored.SessionID], &stored)
	return nil
}

func (m *memrepo) RecentGames(_ context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	m.mu.RLock()
	items := append([]*domain.ArchivedGame(nil), m.bySession[sessionID]...)
	m.mu.RUnlock()

	// Latest first; insertion order breaks ties.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.ArchivedGame, len(items))
	for i, g := range items {
		cp := *g
		out[i] = &cp
	}
	return out, nil
}

func (m *memrepo) GetGame(_ context.Context, id string) (*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}
