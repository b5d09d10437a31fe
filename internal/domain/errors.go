package domain

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrPairNotFound    = errors.New("pair not found")
	ErrInvalidCriteria = errors.New("invalid matching criteria")
	ErrPairingConflict = errors.New("tickets no longer available for pairing")
	ErrSessionCreation = errors.New("failed to create collaboration session")
	ErrForbidden       = errors.New("ticket belongs to another user")
	ErrInvalidToken    = errors.New("invalid token")
)
