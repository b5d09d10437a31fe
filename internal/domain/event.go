package domain

import "time"

type MatchEventType string

const (
	EventPairCreated    MatchEventType = "pair.created"
	EventPairDissolved  MatchEventType = "pair.dissolved"
	EventTicketRequeued MatchEventType = "ticket.requeued"
)

// MatchEvent is published to other services whenever a pair forms or falls apart.
type MatchEvent struct {
	Type       MatchEventType `json:"type"`
	PairID     string         `json:"pair_id,omitempty"`
	TicketIDs  []string       `json:"ticket_ids,omitempty"`
	UserIDs    []string       `json:"user_ids,omitempty"`
	Mode       MatchMode      `json:"mode,omitempty"`
	QuestionID *string        `json:"question_id,omitempty"`
	SessionID  *string        `json:"session_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Key groups events of the same pair (or ticket) onto one partition.
func (e MatchEvent) Key() string {
	if e.PairID != "" {
		return e.PairID
	}
	if len(e.TicketIDs) > 0 {
		return e.TicketIDs[0]
	}
	return ""
}
