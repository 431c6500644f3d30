package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	healthy := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		deps       map[string]Pinger
		wantCode   int
		wantStatus string
	}{
		{name: "no dependencies", deps: nil, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "all healthy", deps: map[string]Pinger{"database": healthy, "redis": healthy}, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "one down", deps: map[string]Pinger{"database": healthy, "redis": down}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
		{name: "nil dependency ignored", deps: map[string]Pinger{"redis": nil}, wantCode: http.StatusOK, wantStatus: "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			NewChecker("test", tt.deps).RegisterRoutes(e)

			rec := get(e, "/health")
			assert.Equal(t, tt.wantCode, rec.Code)

			var status HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "test", status.Version)
		})
	}
}

func TestReadiness(t *testing.T) {
	e := echo.New()
	checker := NewChecker("test", nil)
	checker.RegisterRoutes(e)

	assert.Equal(t, http.StatusOK, get(e, "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(e, "/health/ready").Code)

	checker.SetReady(true)
	assert.Equal(t, http.StatusOK, get(e, "/health/ready").Code)
}
