package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// Memory is an in-process Store. A single lock serialises every write, which
// makes quota grants and result writes atomic.
type Memory struct {
	mu       sync.RWMutex
	games    map[int64]*model.Game
	users    map[int64]*model.User
	results  map[int64]*model.GameAnalysisResult
	failures map[int64]*model.AnalysisFailure
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		games:    make(map[int64]*model.Game),
		users:    make(map[int64]*model.User),
		results:  make(map[int64]*model.GameAnalysisResult),
		failures: make(map[int64]*model.AnalysisFailure),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetGame(_ context.Context, id int64) (*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("game %d: %w", id, model.ErrGameNotFound)
	}
	return g.Clone(), nil
}

func (m *Memory) ListGames(_ context.Context, userID int64, filter GameFilter) ([]*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Game
	for _, g := range m.games {
		if g.UserID == userID && filter.Matches(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].EndTime.After(out[j].EndTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PutGame inserts or replaces a game. The analyzed flag is kept in step with
// the stored result rather than taken from g.
func (m *Memory) PutGame(_ context.Context, g *model.Game) error {
	if g.ID == 0 {
		return fmt.Errorf("game id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := g.Clone()
	_, cp.Analyzed = m.results[g.ID]
	m.games[g.ID] = cp
	return nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, model.ErrUserNotFound)
	}
	return u.Clone(), nil
}

func (m *Memory) ListUsers(_ context.Context) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PutUser(_ context.Context, u *model.User) error {
	if u.ID == 0 {
		return fmt.Errorf("user id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *Memory) ConsumeAIQuota(_ context.Context, userID int64, now time.Time) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, false, fmt.Errorf("user %d: %w", userID, model.ErrUserNotFound)
	}
	if u.Tier == model.TierPro {
		return u.Clone(), true, nil
	}
	granted := false
	if u.AIAnalysesUsed < u.AIAnalysesLimit {
		u.AIAnalysesUsed++
		granted = true
	}
	if u.AIAnalysesUsed >= u.AIAnalysesLimit && u.TrialExhaustedAt == nil {
		t := now
		u.TrialExhaustedAt = &t
	}
	return u.Clone(), granted, nil
}

func (m *Memory) SetTier(_ context.Context, userID int64, tier model.Tier, limit int, resetTrial bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, model.ErrUserNotFound)
	}
	u.Tier = tier
	u.AIAnalysesLimit = limit
	if resetTrial {
		u.AIAnalysesUsed = 0
		u.TrialExhaustedAt = nil
	}
	return u.Clone(), nil
}

func (m *Memory) SaveResult(_ context.Context, r *model.GameAnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[r.GameID]
	if !ok {
		return fmt.Errorf("game %d: %w", r.GameID, model.ErrGameNotFound)
	}
	m.results[r.GameID] = r.Clone()
	g.Analyzed = true
	delete(m.failures, r.GameID)
	return nil
}

func (m *Memory) GetResult(_ context.Context, gameID int64) (*model.GameAnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[gameID]
	if !ok {
		return nil, fmt.Errorf("game %d: %w", gameID, model.ErrResultNotFound)
	}
	return r.Clone(), nil
}

func (m *Memory) DeleteResult(_ context.Context, gameID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[gameID]; !ok {
		return fmt.Errorf("game %d: %w", gameID, model.ErrResultNotFound)
	}
	delete(m.results, gameID)
	if g, ok := m.games[gameID]; ok {
		g.Analyzed = false
	}
	return nil
}

func (m *Memory) ListResults(_ context.Context, userID int64, start, end time.Time) ([]*model.GameAnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.GameAnalysisResult
	for _, r := range m.results {
		if r.UserID != userID {
			continue
		}
		if r.GameEndTime.Before(start) || !r.GameEndTime.Before(end) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameEndTime.Equal(out[j].GameEndTime) {
			return out[i].GameID < out[j].GameID
		}
		return out[i].GameEndTime.Before(out[j].GameEndTime)
	})
	return out, nil
}

func (m *Memory) PageResults(_ context.Context, userID int64, offset, limit int) ([]*model.GameAnalysisResult, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*model.GameAnalysisResult
	for _, r := range m.results {
		if r.UserID == userID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].GameEndTime.Equal(all[j].GameEndTime) {
			return all[i].GameID > all[j].GameID
		}
		return all[i].GameEndTime.After(all[j].GameEndTime)
	})
	if offset < 0 {
		offset = 0
	}
	total := len(all)
	if offset >= total || limit <= 0 {
		return []*model.GameAnalysisResult{}, total, nil
	}
	all = all[offset:min(offset+limit, total)]
	out := make([]*model.GameAnalysisResult, len(all))
	for i, r := range all {
		out[i] = r.Clone()
	}
	return out, total, nil
}

func (m *Memory) RecordFailure(_ context.Context, f *model.AnalysisFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.failures[f.GameID] = &cp
	return nil
}

func (m *Memory) GetFailure(_ context.Context, gameID int64) (*model.AnalysisFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.failures[gameID]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}
