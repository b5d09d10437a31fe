package postgres

import (
	"testing"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSweepQueries_LockInIDOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      string
		args       []interface{}
		wantStatus domain.TicketStatus
		wantFilter string
	}{
		{name: "timeout"},
		{name: "expire"},
	}
	tests[0].query, tests[0].args = timeoutOverdueQuery(now).Build()
	tests[0].wantStatus, tests[0].wantFilter = domain.TicketStatusTimeout, "timeout_at <= $"
	tests[1].query, tests[1].args = expireStaleQuery(now.Add(-30*time.Second), now).Build()
	tests[1].wantStatus, tests[1].wantFilter = domain.TicketStatusExpired, "last_seen_at < $"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.query, "UPDATE tickets SET status = $1")
			assert.Contains(t, tt.query, "WHERE id IN (SELECT id FROM tickets WHERE")
			assert.Contains(t, tt.query, tt.wantFilter)
			assert.Contains(t, tt.query, "ORDER BY id FOR UPDATE SKIP LOCKED)")
			assert.Equal(t, string(tt.wantStatus), tt.args[0])
			assert.Equal(t, string(domain.TicketStatusQueued), tt.args[2])
		})
	}
}
