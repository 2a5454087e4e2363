package exam

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	users map[string]User
	tests map[string]Test
	regs  map[string]map[string]Registration // testID -> userID -> registration
}

// NewInMemoryStore returns a Store kept in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		users: map[string]User{},
		tests: map[string]Test{},
		regs:  map[string]map[string]Registration{},
	}
}

func (m *memoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (m *memoryStore) CreateUser(_ context.Context, u User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s exists: %w", u.ID, ErrConflict)
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Test, 0, len(m.tests))
	for _, t := range m.tests {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) GetRegistration(_ context.Context, testID, userID string) (Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regs[testID][userID]
	if !ok {
		return Registration{}, fmt.Errorf("registration %s/%s: %w", testID, userID, ErrNotFound)
	}
	return cloneRegistration(r), nil
}

func (m *memoryStore) ListRegistrations(_ context.Context, testID string) ([]Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Registration, 0, len(m.regs[testID]))
	for _, r := range m.regs[testID] {
		out = append(out, cloneRegistration(r))
	}
	sortRegistrations(out)
	return out, nil
}

func (m *memoryStore) RegistrationCounts(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.regs))
	for id, byUser := range m.regs {
		if len(byUser) > 0 {
			out[id] = len(byUser)
		}
	}
	return out, nil
}

func (m *memoryStore) SaveRegistrations(_ context.Context, regs ...*Registration) error {
	for _, r := range regs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range regs {
		cur, ok := m.regs[r.TestID][r.UserID]
		switch {
		case r.Version == 0 && ok:
			return fmt.Errorf("registration %s/%s exists: %w", r.TestID, r.UserID, ErrConflict)
		case r.Version != 0 && (!ok || cur.Version != r.Version):
			return fmt.Errorf("registration %s/%s at version %d: %w", r.TestID, r.UserID, r.Version, ErrConflict)
		}
	}
	for _, r := range regs {
		r.Version++
		if m.regs[r.TestID] == nil {
			m.regs[r.TestID] = map[string]Registration{}
		}
		m.regs[r.TestID][r.UserID] = cloneRegistration(*r)
	}
	return nil
}

func (m *memoryStore) Close() error { return nil }

func sortRegistrations(rs []Registration) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].RegisteredAt.Equal(rs[j].RegisteredAt) {
			return rs[i].RegisteredAt.Before(rs[j].RegisteredAt)
		}
		return rs[i].UserID < rs[j].UserID
	})
}

func cloneRegistration(r Registration) Registration {
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		r.SubmittedAt = &t
	}
	if r.RawCorrect != nil {
		v := *r.RawCorrect
		r.RawCorrect = &v
	}
	if r.WeightedScore != nil {
		v := *r.WeightedScore
		r.WeightedScore = &v
	}
	return r
}
