package domain

import "time"

type MatchMode string

const (
	MatchModeStrict   MatchMode = "strict"
	MatchModeFlexible MatchMode = "flexible"
)

// MatchResult is what a successful tryMatch or relax hands back to the caller.
type MatchResult struct {
	PairID          string    `json:"pair_id"`
	TicketID        string    `json:"ticket_id"`
	PartnerTicketID string    `json:"partner_ticket_id"`
	PartnerUserID   string    `json:"partner_user_id"`
	Mode            MatchMode `json:"mode,omitempty"`
	Strict          bool      `json:"strict"`
	Score           *float64  `json:"score,omitempty"`
	QuestionID      *string   `json:"question_id"`
	SessionID       *string   `json:"session_id"`
	MatchedAt       time.Time `json:"matched_at"`
}

// Recovery describes the outcome of cancelling a possibly matched ticket.
type Recovery struct {
	Cancelled               bool    `json:"cancelled"`
	PartnerRequeuedTicketID *string `json:"partner_requeued_ticket_id"`
	DissolvedPairID         *string `json:"-"`
	PartnerUserID           *string `json:"-"`
}
