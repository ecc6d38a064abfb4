package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/api/middleware"
	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/memory"
)

// seedDeadEntry inserts a dead-status entry directly into the store.
func seedDeadEntry(t *testing.T, mem *memory.Store, jobType string) *domain.DeadLetterEntry {
	t.Helper()
	userID := uuid.New()
	entry, err := domain.NewDeadLetterEntry(&domain.Job{
		ID:      uuid.New(),
		Type:    jobType,
		Payload: json.RawMessage(`{"shop_id":"shop-1"}`),
		UserID:  &userID,
		Status:  domain.JobStatusFailed,
		FailureHistory: []domain.FailureRecord{
			{Message: "boom", OccurredAt: time.Now().UTC()},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mem.DeadLetters().Create(context.Background(), entry))
	return entry
}

func TestDLQEndpointsRequireOperator(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	userToken := signToken(t, uuid.NewString(), "")

	t.Run("no token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/dlq/", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("plain user token is forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/dlq/", userToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestDLQListAndStatsEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operatorToken := signToken(t, "ops@atelier", middleware.RoleOperator)

	seedDeadEntry(t, env.mem, domain.JobTypePerformanceCollection)
	seedDeadEntry(t, env.mem, domain.JobTypeInstagramSync)

	rec := env.do(t, http.MethodGet, "/api/admin/dlq/", operatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entries []DeadLetterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	t.Run("type filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/dlq/?type="+domain.JobTypeInstagramSync, operatorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Len(t, entries, 1)
		assert.Equal(t, domain.JobTypeInstagramSync, entries[0].Type)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/dlq/?status=bogus", operatorToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/dlq/stats", operatorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":2`)
	})
}

func TestDLQRetryEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operatorToken := signToken(t, "ops@atelier", middleware.RoleOperator)
	entry := seedDeadEntry(t, env.mem, domain.JobTypeContentGeneration)

	rec := env.do(t, http.MethodPost, "/api/admin/dlq/"+entry.ID.String()+"/retry", operatorToken, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var job JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, domain.JobTypeContentGeneration, job.Type)
	assert.Equal(t, string(domain.JobStatusPending), job.Status)
	assert.NotEqual(t, entry.OriginalJobID.String(), job.ID)

	t.Run("second retry conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/dlq/"+entry.ID.String()+"/retry", operatorToken, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown entry", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/dlq/"+uuid.NewString()+"/retry", operatorToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/admin/dlq/not-a-uuid/retry", operatorToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDLQBulkRetryEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operatorToken := signToken(t, "ops@atelier", middleware.RoleOperator)

	seedDeadEntry(t, env.mem, domain.JobTypeInstagramSync)
	seedDeadEntry(t, env.mem, domain.JobTypeInstagramSync)
	seedDeadEntry(t, env.mem, domain.JobTypeBrandDiscovery)

	rec := env.do(t, http.MethodPost, "/api/admin/dlq/retry", operatorToken, map[string]string{
		"job_type": domain.JobTypeInstagramSync,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"retried":2}`, rec.Body.String())
}

func TestDLQResolveEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operatorToken := signToken(t, "ops@atelier", middleware.RoleOperator)
	entry := seedDeadEntry(t, env.mem, domain.JobTypeAnomalyStatistics)

	rec := env.do(t, http.MethodPost, "/api/admin/dlq/"+entry.ID.String()+"/resolve", operatorToken, map[string]string{
		"notes": "shop deleted, nothing to reprocess",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	stored, err := env.mem.DeadLetters().GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterStatusResolved, stored.Status)
	assert.Equal(t, "ops@atelier", stored.ResolvedBy, "audit field comes from the token subject")
}

func TestDLQPurgeEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operatorToken := signToken(t, "ops@atelier", middleware.RoleOperator)

	entry := seedDeadEntry(t, env.mem, domain.JobTypeBrandDiscovery)
	require.NoError(t, env.mem.DeadLetters().MarkResolved(context.Background(), entry.ID, "", "ops"))

	rec := env.do(t, http.MethodDelete, "/api/admin/dlq/resolved?older_than_days=0", operatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"purged":1}`, rec.Body.String())

	t.Run("negative cutoff is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/admin/dlq/resolved?older_than_days=-1", operatorToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
