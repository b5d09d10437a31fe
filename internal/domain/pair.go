package domain

import "time"

type Pair struct {
	ID          string     `json:"id"`
	TicketAID   string     `json:"ticket_a_id"`
	TicketBID   string     `json:"ticket_b_id"`
	UserAID     string     `json:"user_a_id"`
	UserBID     string     `json:"user_b_id"`
	Strict      bool       `json:"strict"`
	MatchedAt   time.Time  `json:"matched_at"`
	QuestionID  *string    `json:"question_id"`
	SessionID   *string    `json:"session_id"`
	DissolvedAt *time.Time `json:"dissolved_at"`
}

func (p *Pair) HasTicket(ticketID string) bool {
	return p.TicketAID == ticketID || p.TicketBID == ticketID
}

func (p *Pair) HasUser(userID string) bool {
	return p.UserAID == userID || p.UserBID == userID
}

// GetOtherTicketID returns the partner of ticketID within the pair.
func (p *Pair) GetOtherTicketID(ticketID string) (string, bool) {
	if p.TicketAID == ticketID {
		return p.TicketBID, true
	}
	if p.TicketBID == ticketID {
		return p.TicketAID, true
	}
	return "", false
}

func (p *Pair) GetOtherUserID(userID string) (string, bool) {
	if p.UserAID == userID {
		return p.UserBID, true
	}
	if p.UserBID == userID {
		return p.UserAID, true
	}
	return "", false
}

func (p *Pair) IsDissolved() bool {
	return p.DissolvedAt != nil
}

func (p *Pair) Clone() *Pair {
	if p == nil {
		return nil
	}
	c := *p
	c.QuestionID = cloneString(p.QuestionID)
	c.SessionID = cloneString(p.SessionID)
	if p.DissolvedAt != nil {
		v := *p.DissolvedAt
		c.DissolvedAt = &v
	}
	return &c
}

// OrderedTicketIDs returns the two ids in the global lock order.
func OrderedTicketIDs(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
