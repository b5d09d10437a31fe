// Package memory keeps tickets and pairs in process memory behind the same
// repository interfaces as the Postgres store. It is meant for tests and for
// single-instance development runs; it gives no durability.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
	"github.com/google/uuid"
)

// Store serialises every operation behind a single mutex, which gives the same
// all-or-nothing behaviour the Postgres transactions provide.
type Store struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	pairs     map[string]*domain.Pair
	questions []question
	newID     func() string
}

var (
	_ repository.TicketRepository   = (*Store)(nil)
	_ repository.PairingRepository  = (*Store)(nil)
	_ repository.QuestionRepository = (*Store)(nil)
	_ repository.PairRepository     = pairView{}
)

func NewStore() *Store {
	return &Store{
		tickets: make(map[string]*domain.Ticket),
		pairs:   make(map[string]*domain.Pair),
		newID:   func() string { return uuid.New().String() },
	}
}

func (s *Store) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.activeByUserLocked(ticket.UserID); existing != nil {
		return existing.Clone(), false, nil
	}

	stored := ticket.Clone()
	if stored.ID == "" {
		stored.ID = s.newID()
	}
	stored.Status = domain.TicketStatusQueued
	stored.PairID = nil
	stored.UpdatedAt = stored.EnqueuedAt
	s.tickets[stored.ID] = stored
	return stored.Clone(), true, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (s *Store) FindActiveByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.activeByUserLocked(userID); t != nil {
		return t.Clone(), nil
	}
	return nil, domain.ErrTicketNotFound
}

func (s *Store) Heartbeat(ctx context.Context, id string, now time.Time) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || !t.IsQueued() {
		return nil, nil
	}
	t.LastSeenAt = now
	t.UpdatedAt = now
	return t.Clone(), nil
}

func (s *Store) Cancel(ctx context.Context, id string, now time.Time) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || !t.IsQueued() {
		return nil, nil
	}
	t.Status = domain.TicketStatusCancelled
	t.UpdatedAt = now
	return t.Clone(), nil
}

func (s *Store) ExtendAndRelax(ctx context.Context, id string, extend time.Duration, flags domain.RelaxFlags, now time.Time) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || !t.IsQueued() {
		return nil, nil
	}
	if extend > 0 && t.TimeoutAt != nil {
		deadline := t.TimeoutAt.Add(extend)
		t.TimeoutAt = &deadline
	}
	t.Relax = t.Relax.Merge(flags)
	t.UpdatedAt = now
	return t.Clone(), nil
}

func (s *Store) FindCandidates(ctx context.Context, anchor *domain.Ticket, mode domain.MatchMode, limit int) ([]*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Ticket
	for _, t := range s.tickets {
		if !t.IsQueued() || t.ID == anchor.ID || t.UserID == anchor.UserID {
			continue
		}
		if !anchor.Relax.Difficulty && t.Difficulty != anchor.Difficulty {
			continue
		}
		if !anchor.Relax.Skill && t.SkillLevel != anchor.SkillLevel {
			continue
		}
		if mode == domain.MatchModeStrict {
			if t.StrictMode != anchor.StrictMode {
				continue
			}
			if !anchor.Relax.Topics && len(anchor.Topics) > 0 && !topicsNested(anchor.Topics, t.Topics) {
				continue
			}
		}
		out = append(out, t.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TimeoutOverdue(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.tickets {
		if t.IsQueued() && t.TimeoutAt != nil && !t.TimeoutAt.After(now) {
			t.Status = domain.TicketStatusTimeout
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) ExpireStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.tickets {
		if t.IsQueued() && t.LastSeenAt.Before(staleBefore) {
			t.Status = domain.TicketStatusExpired
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) activeByUserLocked(userID string) *domain.Ticket {
	for _, t := range s.tickets {
		if t.UserID == userID && t.IsQueued() {
			return t
		}
	}
	return nil
}

func topicsNested(a, b []string) bool {
	return isSubset(a, b) || isSubset(b, a)
}

func isSubset(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, item := range b {
		set[item] = struct{}{}
	}
	for _, item := range a {
		if _, ok := set[item]; !ok {
			return false
		}
	}
	return true
}
