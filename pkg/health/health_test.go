package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func serve(t *testing.T, fn http.HandlerFunc) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLiveness_AlwaysUp(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("postgres", func(context.Context) error { return errors.New("down") })

	code, resp := serve(t, h.Liveness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReadiness_AllHealthy(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("postgres", up)
	h.RegisterNonCritical("redis", up)

	code, resp := serve(t, h.Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.True(t, resp.Checks["postgres"].Critical)
	assert.False(t, resp.Checks["redis"].Critical)
}

func TestReadiness_CriticalDown(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("postgres", func(context.Context) error { return errors.New("connection refused") })
	h.RegisterNonCritical("redis", up)

	code, resp := serve(t, h.Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["postgres"].Error)
}

func TestReadiness_NonCriticalDownIsDegraded(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("postgres", up)
	h.RegisterNonCritical("kafka", func(context.Context) error { return errors.New("no brokers") })

	code, resp := serve(t, h.Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusDown, resp.Checks["kafka"].Status)
}

func TestReadiness_CheckTimesOut(t *testing.T) {
	h := NewHandler(20 * time.Millisecond)
	h.RegisterCritical("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	code, resp := serve(t, h.Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks["postgres"].Error, "deadline exceeded")
}

func TestReadiness_NoChecks(t *testing.T) {
	code, resp := serve(t, NewHandler(0).Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
}

func TestRegister_ReplacesByName(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("redis", func(context.Context) error { return errors.New("x") })
	h.RegisterNonCritical("redis", up)

	resp := h.Check(context.Background())
	assert.Equal(t, StatusUp, resp.Status)
	assert.Len(t, resp.Checks, 1)
}
