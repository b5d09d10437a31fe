package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTicket(user string, topics ...string) *domain.Ticket {
	deadline := now.Add(5 * time.Minute)
	return &domain.Ticket{
		UserID:     user,
		Difficulty: domain.DifficultyEasy,
		SkillLevel: domain.SkillBeginner,
		Topics:     domain.NormalizeTopics(topics),
		EnqueuedAt: now,
		LastSeenAt: now,
		TimeoutAt:  &deadline,
	}
}

func mustCreate(t *testing.T, s *Store, ticket *domain.Ticket) *domain.Ticket {
	t.Helper()
	stored, created, err := s.Create(context.Background(), ticket)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestStore_CreateIsIdempotentPerUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := mustCreate(t, s, newTicket("alice", "arrays"))
	again, created, err := s.Create(ctx, newTicket("alice", "graphs"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, []string{"arrays"}, again.Topics)

	// once the first ticket leaves the queue a new one may be created
	_, err = s.Cancel(ctx, first.ID, now)
	require.NoError(t, err)
	third, created, err := s.Create(ctx, newTicket("alice"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestStore_ConcurrentCreateKeepsOneQueuedTicket(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, _, err := s.Create(ctx, newTicket("bob"))
			assert.NoError(t, err)
			ids[i] = stored.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestStore_HeartbeatAndCancelOnlyWhileQueued(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ticket := mustCreate(t, s, newTicket("carol"))

	later := now.Add(10 * time.Second)
	beat, err := s.Heartbeat(ctx, ticket.ID, later)
	require.NoError(t, err)
	require.NotNil(t, beat)
	assert.Equal(t, later, beat.LastSeenAt)

	cancelled, err := s.Cancel(ctx, ticket.ID, later)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, domain.TicketStatusCancelled, cancelled.Status)

	beat, err = s.Heartbeat(ctx, ticket.ID, later)
	require.NoError(t, err)
	assert.Nil(t, beat)

	cancelled, err = s.Cancel(ctx, ticket.ID, later)
	require.NoError(t, err)
	assert.Nil(t, cancelled)

	beat, err = s.Heartbeat(ctx, "missing", later)
	require.NoError(t, err)
	assert.Nil(t, beat)
}

func TestStore_ExtendAndRelax(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ticket := mustCreate(t, s, newTicket("dave"))

	updated, err := s.ExtendAndRelax(ctx, ticket.ID, time.Minute, domain.RelaxFlags{Topics: true}, now)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, now.Add(6*time.Minute), *updated.TimeoutAt)
	assert.True(t, updated.Relax.Topics)

	// flags are only ever added
	updated, err = s.ExtendAndRelax(ctx, ticket.ID, 0, domain.RelaxFlags{Skill: true}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.RelaxFlags{Topics: true, Skill: true}, updated.Relax)
	assert.Equal(t, now.Add(6*time.Minute), *updated.TimeoutAt)
}

func TestStore_CleanupOnlyTouchesQueued(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	overdue := mustCreate(t, s, newTicket("u1"))
	stale := newTicket("u2")
	stale.LastSeenAt = now.Add(-time.Minute)
	stale = mustCreate(t, s, stale)
	a := mustCreate(t, s, newTicket("u3"))
	b := mustCreate(t, s, newTicket("u4"))
	_, err := s.PairTickets(ctx, a.ID, b.ID, now)
	require.NoError(t, err)
	cancelled := mustCreate(t, s, newTicket("u5"))
	_, err = s.Cancel(ctx, cancelled.ID, now)
	require.NoError(t, err)

	later := now.Add(6 * time.Minute)
	n, err := s.TimeoutOverdue(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n) // overdue and stale both have the 5 minute deadline

	got, _ := s.GetByID(ctx, overdue.ID)
	assert.Equal(t, domain.TicketStatusTimeout, got.Status)
	got, _ = s.GetByID(ctx, stale.ID)
	assert.Equal(t, domain.TicketStatusTimeout, got.Status)

	n, err = s.ExpireStale(ctx, later, later)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []string{a.ID, b.ID} {
		got, _ = s.GetByID(ctx, id)
		assert.Equal(t, domain.TicketStatusMatched, got.Status)
	}
	got, _ = s.GetByID(ctx, cancelled.ID)
	assert.Equal(t, domain.TicketStatusCancelled, got.Status)
}

func TestStore_ExpireStale(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	fresh := mustCreate(t, s, newTicket("fresh"))
	stale := newTicket("stale")
	stale.LastSeenAt = now.Add(-time.Minute)
	stale = mustCreate(t, s, stale)

	n, err := s.ExpireStale(ctx, now.Add(-30*time.Second), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := s.GetByID(ctx, stale.ID)
	assert.Equal(t, domain.TicketStatusExpired, got.Status)
	got, _ = s.GetByID(ctx, fresh.ID)
	assert.Equal(t, domain.TicketStatusQueued, got.Status)
}

func TestStore_FindCandidates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	anchor := mustCreate(t, s, newTicket("anchor", "arrays", "strings"))
	older := newTicket("older", "arrays")
	older.EnqueuedAt = now.Add(-time.Minute)
	older = mustCreate(t, s, older)
	disjoint := mustCreate(t, s, newTicket("disjoint", "graphs"))
	hard := newTicket("hard", "arrays")
	hard.Difficulty = domain.DifficultyHard
	mustCreate(t, s, hard)
	strict := newTicket("strict", "arrays")
	strict.StrictMode = true
	strict = mustCreate(t, s, strict)

	strictPool, err := s.FindCandidates(ctx, anchor, domain.MatchModeStrict, 10)
	require.NoError(t, err)
	require.Len(t, strictPool, 1)
	assert.Equal(t, older.ID, strictPool[0].ID)

	flexPool, err := s.FindCandidates(ctx, anchor, domain.MatchModeFlexible, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(flexPool))
	for _, c := range flexPool {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, older.ID, ids[0])
	assert.ElementsMatch(t, []string{older.ID, disjoint.ID, strict.ID}, ids)

	limited, err := s.FindCandidates(ctx, anchor, domain.MatchModeFlexible, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	anchor.Relax.Difficulty = true
	flexPool, err = s.FindCandidates(ctx, anchor, domain.MatchModeFlexible, 10)
	require.NoError(t, err)
	assert.Len(t, flexPool, 4)
}

func TestStore_PairTickets(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a := newTicket("alice")
	a.StrictMode = true
	a = mustCreate(t, s, a)
	b := mustCreate(t, s, newTicket("bob"))

	pair, err := s.PairTickets(ctx, b.ID, a.ID, now)
	require.NoError(t, err)
	assert.False(t, pair.Strict)
	assert.NotEqual(t, pair.TicketAID, pair.TicketBID)
	assert.NotEqual(t, pair.UserAID, pair.UserBID)
	assert.True(t, pair.TicketAID < pair.TicketBID)

	for _, id := range []string{a.ID, b.ID} {
		got, _ := s.GetByID(ctx, id)
		assert.Equal(t, domain.TicketStatusMatched, got.Status)
		require.NotNil(t, got.PairID)
		assert.Equal(t, pair.ID, *got.PairID)
	}

	_, err = s.PairTickets(ctx, a.ID, b.ID, now)
	assert.ErrorIs(t, err, domain.ErrPairingConflict)
}

func TestStore_PairTicketsRace(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := mustCreate(t, s, newTicket("alice"))
	b := mustCreate(t, s, newTicket("bob"))

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			_, err := s.PairTickets(ctx, x, y, now)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrPairingConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestStore_CancelWithRecovery(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := mustCreate(t, s, newTicket("alice"))
	b := mustCreate(t, s, newTicket("bob"))
	pair, err := s.PairTickets(ctx, a.ID, b.ID, now)
	require.NoError(t, err)
	session, question := "session-1", "q-1"
	require.NoError(t, s.Pairs().AttachAssignment(ctx, pair.ID, &question, &session))

	later := now.Add(10 * time.Minute)
	result, err := s.CancelWithRecovery(ctx, a.ID, later, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	require.NotNil(t, result.PartnerRequeuedTicketID)
	assert.Equal(t, b.ID, *result.PartnerRequeuedTicketID)

	gotA, _ := s.GetByID(ctx, a.ID)
	assert.Equal(t, domain.TicketStatusCancelled, gotA.Status)
	assert.Nil(t, gotA.PairID)

	gotB, _ := s.GetByID(ctx, b.ID)
	assert.Equal(t, domain.TicketStatusQueued, gotB.Status)
	assert.Nil(t, gotB.PairID)
	assert.Equal(t, later, gotB.LastSeenAt)
	// the old deadline had passed, so grace counts from now
	assert.Equal(t, later.Add(time.Minute), *gotB.TimeoutAt)

	gotPair, err := s.Pairs().GetByID(ctx, pair.ID)
	require.NoError(t, err)
	assert.Nil(t, gotPair.SessionID)
	assert.Nil(t, gotPair.QuestionID)
	assert.NotNil(t, gotPair.DissolvedAt)

	// the cancelled side cannot be recovered twice
	result, err = s.CancelWithRecovery(ctx, a.ID, later, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Cancelled)
}

func TestStore_CancelWithRecoveryPartnerAlreadyRequeued(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := mustCreate(t, s, newTicket("alice"))
	b := mustCreate(t, s, newTicket("bob"))
	_, err := s.PairTickets(ctx, a.ID, b.ID, now)
	require.NoError(t, err)
	fresh := mustCreate(t, s, newTicket("bob"))

	result, err := s.CancelWithRecovery(ctx, a.ID, now, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Nil(t, result.PartnerRequeuedTicketID)

	gotB, _ := s.GetByID(ctx, b.ID)
	assert.Equal(t, domain.TicketStatusCancelled, gotB.Status)
	active, err := s.FindActiveByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, active.ID)
}

func TestStore_Unpair(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := mustCreate(t, s, newTicket("alice"))
	b := mustCreate(t, s, newTicket("bob"))
	pair, err := s.PairTickets(ctx, a.ID, b.ID, now)
	require.NoError(t, err)

	require.NoError(t, s.Unpair(ctx, pair.ID, now))
	for _, id := range []string{a.ID, b.ID} {
		got, _ := s.GetByID(ctx, id)
		assert.Equal(t, domain.TicketStatusQueued, got.Status)
		assert.Nil(t, got.PairID)
	}
	assert.ErrorIs(t, s.Unpair(ctx, "missing", now), domain.ErrPairNotFound)
}

func TestStore_SelectQuestion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	none, err := s.SelectQuestion(ctx, domain.DifficultyEasy, []string{"arrays"}, "key")
	require.NoError(t, err)
	assert.Nil(t, none)

	for i := 0; i < 5; i++ {
		s.AddQuestion(fmt.Sprintf("q%d", i), domain.DifficultyEasy, "arrays")
	}
	s.AddQuestion("hard", domain.DifficultyHard, "arrays")

	first, err := s.SelectQuestion(ctx, domain.DifficultyEasy, []string{"arrays"}, "key")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotEqual(t, "hard", *first)

	second, err := s.SelectQuestion(ctx, domain.DifficultyEasy, []string{"arrays"}, "key")
	require.NoError(t, err)
	assert.Equal(t, *first, *second)

	none, err = s.SelectQuestion(ctx, domain.DifficultyEasy, []string{"graphs"}, "key")
	require.NoError(t, err)
	assert.Nil(t, none)
}
