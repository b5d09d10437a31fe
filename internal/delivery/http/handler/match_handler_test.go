package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/delivery/http/middleware"
	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/repository/memory"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/auth"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matching"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matchmaking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	tokens *auth.TokenUseCase
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.AddQuestion("q-arrays", domain.DifficultyEasy, "arrays")
	uc := matchmaking.NewMatchmakingUseCase(
		store, store.Pairs(), store,
		matching.NewEngine(matching.DefaultOptions()),
		nil, store, nil, nil,
		matchmaking.DefaultOptions(),
		matchmaking.WithSpawn(func(func()) {}),
	)
	tokens := auth.NewTokenUseCase(testSecret)
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	h := NewMatchHandler(uc)

	engine := gin.New()
	group := engine.Group("/api/v1", authMiddleware.RequireAuth())
	group.GET("/auth/me", NewAuthHandler().Me)
	group.POST("/match/tickets", h.Enqueue)
	group.GET("/match/tickets/:id", h.GetTicket)
	group.DELETE("/match/tickets/:id", h.Cancel)
	group.POST("/match/tickets/:id/heartbeat", h.Heartbeat)
	group.POST("/match/tickets/:id/match", h.TryMatch)
	group.POST("/match/tickets/:id/relax", h.Relax)
	group.POST("/match/tickets/:id/cancel", h.CancelWithRecovery)
	group.GET("/match/pairs/:id", h.GetPair)

	return &testServer{t: t, engine: engine, tokens: tokens}
}

func (s *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.tokens.IssueToken(userID, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *testServer) enqueue(userID string, body any) domain.Ticket {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/match/tickets", userID, body)
	require.Contains(s.t, []int{http.StatusCreated, http.StatusOK}, w.Code, w.Body.String())
	return decode[domain.Ticket](s.t, w)
}

func TestMatchHandler_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/match/tickets", "", map[string]any{"difficulty": "EASY"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/auth/me", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", decode[map[string]string](t, w)["user_id"])
}

func TestMatchHandler_EnqueueCreatedThenExisting(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"difficulty":  "easy",
		"topics":      []string{"Arrays", "graphs"},
		"skill_level": "beginner",
	}

	w := s.do(http.MethodPost, "/api/v1/match/tickets", "user-1", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[domain.Ticket](t, w)
	assert.Equal(t, domain.TicketStatusQueued, first.Status)
	assert.Equal(t, domain.DifficultyEasy, first.Difficulty)
	assert.Equal(t, []string{"arrays", "graphs"}, first.Topics)
	assert.NotNil(t, first.TimeoutAt)

	w = s.do(http.MethodPost, "/api/v1/match/tickets", "user-1", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, decode[domain.Ticket](t, w).ID)
}

func TestMatchHandler_EnqueueAcceptsLegacyKeys(t *testing.T) {
	s := newTestServer(t)

	ticket := s.enqueue("user-1", map[string]any{
		"difficulty":     "MEDIUM",
		"skillLevel":     "ADVANCED",
		"strictMode":     true,
		"timeoutSeconds": 0,
	})
	assert.Equal(t, domain.SkillAdvanced, ticket.SkillLevel)
	assert.True(t, ticket.StrictMode)
	assert.Nil(t, ticket.TimeoutAt)
}

func TestMatchHandler_EnqueueRejectsBadCriteria(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/match/tickets", "user-1", map[string]any{
		"difficulty":  "IMPOSSIBLE",
		"skill_level": "BEGINNER",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match/tickets", bytes.NewBufferString("{"))
	token, err := s.tokens.IssueToken("user-1", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchHandler_TicketsAreVisibleToOwnerOnly(t *testing.T) {
	s := newTestServer(t)
	ticket := s.enqueue("user-1", map[string]any{"difficulty": "EASY", "skill_level": "BEGINNER"})

	w := s.do(http.MethodGet, "/api/v1/match/tickets/"+ticket.ID, "user-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/match/tickets/"+ticket.ID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/match/tickets/"+ticket.ID+"/match", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/match/tickets/missing", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchHandler_MatchAndFetchPair(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"difficulty": "EASY", "topics": []string{"arrays"}, "skill_level": "BEGINNER"}
	a := s.enqueue("user-a", body)

	w := s.do(http.MethodPost, "/api/v1/match/tickets/"+a.ID+"/match", "user-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[MatchResponse](t, w).Matched)

	b := s.enqueue("user-b", body)
	w = s.do(http.MethodPost, "/api/v1/match/tickets/"+b.ID+"/match", "user-b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[MatchResponse](t, w)
	require.True(t, resp.Matched)
	require.NotNil(t, resp.Result)
	assert.Equal(t, a.ID, resp.Result.PartnerTicketID)
	assert.Equal(t, "user-a", resp.Result.PartnerUserID)
	require.NotNil(t, resp.Result.QuestionID)
	assert.Equal(t, "q-arrays", *resp.Result.QuestionID)
	assert.Nil(t, resp.Result.SessionID)

	w = s.do(http.MethodGet, "/api/v1/match/pairs/"+resp.Result.PairID, "user-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pair := decode[domain.Pair](t, w)
	assert.True(t, pair.HasUser("user-a"))
	assert.True(t, pair.HasUser("user-b"))

	w = s.do(http.MethodGet, "/api/v1/match/pairs/"+resp.Result.PairID, "user-c", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/match/pairs/missing", "user-a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchHandler_HeartbeatAndCancel(t *testing.T) {
	s := newTestServer(t)
	ticket := s.enqueue("user-1", map[string]any{"difficulty": "EASY", "skill_level": "BEGINNER"})
	path := "/api/v1/match/tickets/" + ticket.ID

	w := s.do(http.MethodPost, path+"/heartbeat", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]bool](t, w)["alive"])

	w = s.do(http.MethodDelete, path, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]bool](t, w)["cancelled"])

	w = s.do(http.MethodDelete, path, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]bool](t, w)["cancelled"])

	w = s.do(http.MethodPost, path+"/heartbeat", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]bool](t, w)["alive"])
}

func TestMatchHandler_CancelMatchedRequeuesPartner(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"difficulty": "EASY", "topics": []string{"arrays"}, "skill_level": "BEGINNER"}
	a := s.enqueue("user-a", body)
	b := s.enqueue("user-b", body)

	w := s.do(http.MethodPost, "/api/v1/match/tickets/"+b.ID+"/match", "user-b", nil)
	require.True(t, decode[MatchResponse](t, w).Matched)

	w = s.do(http.MethodPost, "/api/v1/match/tickets/"+b.ID+"/cancel", "user-b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recovery := decode[domain.Recovery](t, w)
	assert.True(t, recovery.Cancelled)
	require.NotNil(t, recovery.PartnerRequeuedTicketID)
	assert.Equal(t, a.ID, *recovery.PartnerRequeuedTicketID)

	w = s.do(http.MethodGet, "/api/v1/match/tickets/"+a.ID, "user-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.TicketStatusQueued, decode[domain.Ticket](t, w).Status)
}

func TestMatchHandler_Relax(t *testing.T) {
	s := newTestServer(t)
	ticket := s.enqueue("user-1", map[string]any{"difficulty": "EASY", "skill_level": "BEGINNER"})
	path := "/api/v1/match/tickets/" + ticket.ID + "/relax"

	w := s.do(http.MethodPost, path, "user-1", map[string]any{"relaxTopics": true, "extend_seconds": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[MatchResponse](t, w).Matched)

	w = s.do(http.MethodGet, "/api/v1/match/tickets/"+ticket.ID, "user-1", nil)
	relaxed := decode[domain.Ticket](t, w)
	assert.True(t, relaxed.Relax.Topics)
	require.NotNil(t, relaxed.TimeoutAt)
	assert.True(t, relaxed.TimeoutAt.After(*ticket.TimeoutAt))

	w = s.do(http.MethodPost, path, "user-1", map[string]any{"extend_seconds": 100000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, path, "user-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
