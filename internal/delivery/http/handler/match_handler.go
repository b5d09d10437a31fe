package handler

import (
	"errors"
	"net/http"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matchmaking"
	"github.com/gin-gonic/gin"
)

type MatchHandler struct {
	matchmakingUseCase *matchmaking.MatchmakingUseCase
}

func NewMatchHandler(matchmakingUseCase *matchmaking.MatchmakingUseCase) *MatchHandler {
	return &MatchHandler{
		matchmakingUseCase: matchmakingUseCase,
	}
}

// EnqueueRequest is the enqueue body. Older clients send camelCase keys; both
// spellings are accepted and the snake_case one wins.
type EnqueueRequest struct {
	Difficulty           string   `json:"difficulty"`
	Topics               []string `json:"topics"`
	SkillLevel           *string  `json:"skill_level"`
	SkillLevelLegacy     *string  `json:"skillLevel"`
	StrictMode           *bool    `json:"strict_mode"`
	StrictModeLegacy     *bool    `json:"strictMode"`
	TimeoutSeconds       *int     `json:"timeout_seconds"`
	TimeoutSecondsLegacy *int     `json:"timeoutSeconds"`
}

func (r *EnqueueRequest) toUseCase(userID string) *matchmaking.EnqueueRequest {
	req := &matchmaking.EnqueueRequest{
		UserID:         userID,
		Difficulty:     domain.Difficulty(r.Difficulty),
		Topics:         r.Topics,
		TimeoutSeconds: firstInt(r.TimeoutSeconds, r.TimeoutSecondsLegacy),
	}
	if skill := firstString(r.SkillLevel, r.SkillLevelLegacy); skill != nil {
		req.SkillLevel = domain.SkillLevel(*skill)
	}
	if strict := firstBool(r.StrictMode, r.StrictModeLegacy); strict != nil {
		req.StrictMode = *strict
	}
	return req
}

// RelaxRequest is the relax body, with the same camelCase leniency as EnqueueRequest.
type RelaxRequest struct {
	RelaxTopics           *bool `json:"relax_topics"`
	RelaxTopicsLegacy     *bool `json:"relaxTopics"`
	RelaxDifficulty       *bool `json:"relax_difficulty"`
	RelaxDifficultyLegacy *bool `json:"relaxDifficulty"`
	RelaxSkill            *bool `json:"relax_skill"`
	RelaxSkillLegacy      *bool `json:"relaxSkill"`
	ExtendSeconds         *int  `json:"extend_seconds"`
	ExtendSecondsLegacy   *int  `json:"extendSeconds"`
}

func (r *RelaxRequest) toUseCase() *matchmaking.RelaxRequest {
	return &matchmaking.RelaxRequest{
		Topics:        boolValue(firstBool(r.RelaxTopics, r.RelaxTopicsLegacy)),
		Difficulty:    boolValue(firstBool(r.RelaxDifficulty, r.RelaxDifficultyLegacy)),
		Skill:         boolValue(firstBool(r.RelaxSkill, r.RelaxSkillLegacy)),
		ExtendSeconds: firstInt(r.ExtendSeconds, r.ExtendSecondsLegacy),
	}
}

// MatchResponse wraps the outcome of tryMatch and relax
type MatchResponse struct {
	Matched bool                `json:"matched"`
	Result  *domain.MatchResult `json:"result"`
}

// Enqueue handles POST /match/tickets
// @Summary Join the matching queue
// @Tags match
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body EnqueueRequest true "Matching criteria"
// @Success 201 {object} domain.Ticket
// @Success 200 {object} domain.Ticket "already queued"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /match/tickets [post]
func (h *MatchHandler) Enqueue(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
		})
		return
	}

	ticket, created, err := h.matchmakingUseCase.Enqueue(c.Request.Context(), req.toUseCase(userID))
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, ticket)
}

// GetTicket handles GET /match/tickets/:id
// @Summary Get one of my tickets
// @Tags match
// @Security BearerAuth
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} domain.Ticket
// @Failure 404 {object} ErrorResponse
// @Router /match/tickets/{id} [get]
func (h *MatchHandler) GetTicket(c *gin.Context) {
	ticket, ok := h.ownedTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// Heartbeat handles POST /match/tickets/:id/heartbeat
func (h *MatchHandler) Heartbeat(c *gin.Context) {
	ticket, ok := h.ownedTicket(c)
	if !ok {
		return
	}

	alive, err := h.matchmakingUseCase.Heartbeat(c.Request.Context(), ticket.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alive": alive})
}

// TryMatch handles POST /match/tickets/:id/match
// @Summary Try to find a partner now
// @Tags match
// @Security BearerAuth
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} MatchResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /match/tickets/{id}/match [post]
func (h *MatchHandler) TryMatch(c *gin.Context) {
	ticket, ok := h.ownedTicket(c)
	if !ok {
		return
	}

	result, err := h.matchmakingUseCase.TryMatch(c.Request.Context(), ticket.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MatchResponse{Matched: result != nil, Result: result})
}

// Relax handles POST /match/tickets/:id/relax
// @Summary Widen criteria, extend the deadline and retry matching
// @Tags match
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param request body RelaxRequest false "Relax flags"
// @Success 200 {object} MatchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /match/tickets/{id}/relax [post]
func (h *MatchHandler) Relax(c *gin.Context) {
	ticket, ok := h.ownedTicket(c)
	if !ok {
		return
	}

	var req RelaxRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "invalid request body",
			})
			return
		}
	}

	result, err := h.matchmakingUseCase.Relax(c.Request.Context(), ticket.ID, req.toUseCase())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MatchResponse{Matched: result != nil, Result: result})
}

// Cancel handles DELETE /match/tickets/:id
func (h *MatchHandler) Cancel(c *gin.Context) {
	ticket, ok := h.ownedTicket(c)
	if !ok {
		return
	}

	cancelled, err := h.matchmakingUseCase.Cancel(c.Request.Context(), ticket.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// CancelWithRecovery handles POST /match/tickets/:id/cancel
// @Summary Cancel a queued or matched ticket
// @Description A matched partner is put back in the queue
// @Tags match
// @Security BearerAuth
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} domain.Recovery
// @Failure 404 {object} ErrorResponse
// @Router /match/tickets/{id}/cancel [post]
func (h *MatchHandler) CancelWithRecovery(c *gin.Context) {
	ticket, ok := h.ownedTicket(c)
	if !ok {
		return
	}

	recovery, err := h.matchmakingUseCase.CancelWithRecovery(c.Request.Context(), ticket.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recovery)
}

// GetPair handles GET /match/pairs/:id
// @Summary Get a pair I belong to
// @Tags match
// @Security BearerAuth
// @Produce json
// @Param id path string true "Pair ID"
// @Success 200 {object} domain.Pair
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /match/pairs/{id} [get]
func (h *MatchHandler) GetPair(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	pair, err := h.matchmakingUseCase.GetPair(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if pair == nil {
		respondError(c, domain.ErrPairNotFound)
		return
	}
	if !pair.HasUser(userID) {
		respondError(c, domain.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// ownedTicket loads the :id ticket and makes sure the caller owns it. Tickets of
// other users look missing.
func (h *MatchHandler) ownedTicket(c *gin.Context) (*domain.Ticket, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	ticket, err := h.matchmakingUseCase.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if ticket == nil || ticket.UserID != userID {
		respondError(c, domain.ErrTicketNotFound)
		return nil, false
	}
	return ticket, true
}

func currentUser(c *gin.Context) (string, bool) {
	value, exists := c.Get("user_id")
	userID, ok := value.(string)
	if !exists || !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized",
		})
		return "", false
	}
	return userID, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCriteria):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, domain.ErrPairNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "pair not found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, domain.ErrSessionCreation):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to create collaboration session"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstBool(values ...*bool) *bool {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func boolValue(v *bool) bool {
	return v != nil && *v
}
