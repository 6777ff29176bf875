/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

const (
	codeLength = 6

	// DefaultCodeAttempts bounds how many random codes Create tries before
	// giving up.
	DefaultCodeAttempts = 100
)

// Store is the registry of live rooms. The room code namespace is the only
// state shared between rooms, so implementations must allocate codes
// atomically.
type Store interface {
	Create(host Profile, hostConnID string, settings Settings) (*Session, error)
	Get(code string) (*Session, error)
	Destroy(code string)
	ListActive() []Summary
	Codes() []string
	Len() int
}

// MemoryStore keeps every room in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Session

	catalog  *pack.Catalog
	rules    Rules
	attempts int

	newCode func() (string, error)
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(catalog *pack.Catalog, rules Rules) *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*Session),
		catalog:  catalog,
		rules:    rules,
		attempts: DefaultCodeAttempts,
		newCode:  randomCode,
	}
}

// randomCode returns a uniformly random six digit code, leading zeroes kept.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeLength, n.Int64()), nil
}

// Create allocates a fresh code and opens a room hosted by host. A pack id
// that is not in the catalog falls back to the catalog's first pack.
func (m *MemoryStore) Create(host Profile, hostConnID string, settings Settings) (*Session, error) {
	p, ok := m.catalog.Get(settings.PackID)
	if !ok {
		p, ok = m.catalog.First()
		if !ok {
			return nil, ErrNoQuestions
		}
	}
	settings.PackID = p.ID

	m.mu.Lock()
	defer m.mu.Unlock()

	for range m.attempts {
		code, err := m.newCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRoomCreationFailed, err)
		}

		if _, taken := m.rooms[code]; taken {
			continue
		}

		s := NewSession(code, host, hostConnID, p, settings, m.rules)
		m.rooms[code] = s

		return s, nil
	}

	return nil, ErrRoomCreationFailed
}

func (m *MemoryStore) Get(code string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return s, nil
}

// Destroy removes a room. Destroying an unknown code is not an error.
func (m *MemoryStore) Destroy(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms, code)
}

// ListActive returns rooms that are still running and have space left,
// ordered by code.
func (m *MemoryStore) ListActive() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.rooms))
	for _, s := range m.rooms {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		sum := s.summaryLocked()
		s.mu.Unlock()

		if sum.State == StateFinished {
			continue
		}
		if m.rules.MaxPlayers > 0 && sum.Players >= m.rules.MaxPlayers {
			continue
		}

		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Code < out[j].Code
	})

	return out
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms)
}

// Codes returns the codes of every live room.
func (m *MemoryStore) Codes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		out = append(out, code)
	}
	sort.Strings(out)

	return out
}
