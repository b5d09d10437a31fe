package domain

import (
	"sort"
	"strings"
	"time"
)

type TicketStatus string

const (
	TicketStatusQueued    TicketStatus = "QUEUED"
	TicketStatusMatched   TicketStatus = "MATCHED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusTimeout   TicketStatus = "TIMEOUT"
	TicketStatusExpired   TicketStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is possible from s.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCancelled || s == TicketStatusTimeout || s == TicketStatusExpired
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "BEGINNER"
	SkillIntermediate SkillLevel = "INTERMEDIATE"
	SkillAdvanced     SkillLevel = "ADVANCED"
)

func (s SkillLevel) Valid() bool {
	switch s {
	case SkillBeginner, SkillIntermediate, SkillAdvanced:
		return true
	}
	return false
}

// RelaxFlags mark which criteria have been widened for a ticket.
type RelaxFlags struct {
	Topics     bool `json:"topics" db:"relax_topics"`
	Difficulty bool `json:"difficulty" db:"relax_difficulty"`
	Skill      bool `json:"skill" db:"relax_skill"`
}

// Merge returns the union of both flag sets. Flags are never cleared.
func (f RelaxFlags) Merge(other RelaxFlags) RelaxFlags {
	return RelaxFlags{
		Topics:     f.Topics || other.Topics,
		Difficulty: f.Difficulty || other.Difficulty,
		Skill:      f.Skill || other.Skill,
	}
}

func (f RelaxFlags) Any() bool {
	return f.Topics || f.Difficulty || f.Skill
}

type Ticket struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Difficulty Difficulty   `json:"difficulty"`
	Topics     []string     `json:"topics"`
	SkillLevel SkillLevel   `json:"skill_level"`
	StrictMode bool         `json:"strict_mode"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	LastSeenAt time.Time    `json:"last_seen_at"`
	TimeoutAt  *time.Time   `json:"timeout_at"`
	Relax      RelaxFlags   `json:"relax"`
	Status     TicketStatus `json:"status"`
	PairID     *string      `json:"pair_id"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (t *Ticket) IsQueued() bool {
	return t.Status == TicketStatusQueued
}

// Clone returns a deep copy so callers never share slices or pointers with a store.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.Topics = append([]string(nil), t.Topics...)
	if t.TimeoutAt != nil {
		v := *t.TimeoutAt
		c.TimeoutAt = &v
	}
	if t.PairID != nil {
		v := *t.PairID
		c.PairID = &v
	}
	return &c
}

// NormalizeTopics lower-cases, trims, deduplicates and sorts topic labels.
// Blank labels are dropped.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// RecoveryDeadline pushes a requeued ticket's deadline forward by grace, counting
// from now if the old deadline already passed. A ticket without a deadline keeps none.
func RecoveryDeadline(current *time.Time, now time.Time, grace time.Duration) *time.Time {
	if current == nil {
		return nil
	}
	base := now
	if current.After(now) {
		base = *current
	}
	deadline := base.Add(grace)
	return &deadline
}
