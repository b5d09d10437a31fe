package memory

import (
	"context"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
)

func (s *Store) PairTickets(ctx context.Context, ticketAID, ticketBID string, now time.Time) (*domain.Pair, error) {
	firstID, secondID := domain.OrderedTicketIDs(ticketAID, ticketBID)

	s.mu.Lock()
	defer s.mu.Unlock()

	first, okA := s.tickets[firstID]
	second, okB := s.tickets[secondID]
	if !okA || !okB || firstID == secondID {
		return nil, domain.ErrPairingConflict
	}
	if !first.IsQueued() || !second.IsQueued() || first.UserID == second.UserID {
		return nil, domain.ErrPairingConflict
	}

	pair := &domain.Pair{
		ID:        s.newID(),
		TicketAID: first.ID,
		TicketBID: second.ID,
		UserAID:   first.UserID,
		UserBID:   second.UserID,
		Strict:    first.StrictMode && second.StrictMode,
		MatchedAt: now,
	}
	s.pairs[pair.ID] = pair

	for _, t := range []*domain.Ticket{first, second} {
		pairID := pair.ID
		t.Status = domain.TicketStatusMatched
		t.PairID = &pairID
		t.UpdatedAt = now
	}
	return pair.Clone(), nil
}

func (s *Store) CancelWithRecovery(ctx context.Context, ticketID string, now time.Time, grace time.Duration) (*domain.Recovery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.tickets[ticketID]
	if !ok || target.Status != domain.TicketStatusMatched || target.PairID == nil {
		return &domain.Recovery{}, nil
	}
	pair, ok := s.pairs[*target.PairID]
	if !ok {
		return nil, domain.ErrPairNotFound
	}
	partnerID, _ := pair.GetOtherTicketID(target.ID)

	target.Status = domain.TicketStatusCancelled
	target.PairID = nil
	target.UpdatedAt = now

	result := &domain.Recovery{Cancelled: true}
	dissolved := pair.ID
	result.DissolvedPairID = &dissolved

	partner, ok := s.tickets[partnerID]
	if ok && partner.Status == domain.TicketStatusMatched && partner.PairID != nil && *partner.PairID == pair.ID {
		partnerUser := partner.UserID
		result.PartnerUserID = &partnerUser
		partner.PairID = nil
		partner.UpdatedAt = now
		if s.activeByUserLocked(partner.UserID) != nil {
			partner.Status = domain.TicketStatusCancelled
		} else {
			partner.Status = domain.TicketStatusQueued
			partner.LastSeenAt = now
			partner.TimeoutAt = domain.RecoveryDeadline(partner.TimeoutAt, now, grace)
			requeued := partner.ID
			result.PartnerRequeuedTicketID = &requeued
		}
	}

	pair.QuestionID = nil
	pair.SessionID = nil
	pair.DissolvedAt = &now
	return result, nil
}

func (s *Store) Unpair(ctx context.Context, pairID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[pairID]
	if !ok {
		return domain.ErrPairNotFound
	}
	for _, id := range []string{pair.TicketAID, pair.TicketBID} {
		t, ok := s.tickets[id]
		if !ok || t.Status != domain.TicketStatusMatched || t.PairID == nil || *t.PairID != pairID {
			continue
		}
		t.PairID = nil
		t.UpdatedAt = now
		if s.activeByUserLocked(t.UserID) != nil {
			t.Status = domain.TicketStatusCancelled
			continue
		}
		t.Status = domain.TicketStatusQueued
		t.LastSeenAt = now
	}
	pair.QuestionID = nil
	pair.SessionID = nil
	pair.DissolvedAt = &now
	return nil
}

// pairView exposes the pair rows of a Store as a repository.PairRepository.
type pairView struct {
	s *Store
}

// Pairs returns the pair repository backed by this store.
func (s *Store) Pairs() repository.PairRepository {
	return pairView{s: s}
}

func (v pairView) GetByID(ctx context.Context, id string) (*domain.Pair, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pairs[id]
	if !ok {
		return nil, domain.ErrPairNotFound
	}
	return p.Clone(), nil
}

func (v pairView) AttachAssignment(ctx context.Context, pairID string, questionID, sessionID *string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pairs[pairID]
	if !ok {
		return domain.ErrPairNotFound
	}
	if p.IsDissolved() {
		return nil
	}
	p.QuestionID = cloneString(questionID)
	p.SessionID = cloneString(sessionID)
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
