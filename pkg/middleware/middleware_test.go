package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/context"
)

func newTestServer() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func TestContext_RequestID(t *testing.T) {
	e := newTestServer()
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, context.GetRequestID(c.Request().Context()))
	})

	t.Run("forwarded", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(echo.HeaderXRequestID, "abc")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "abc", rec.Body.String())
		assert.Equal(t, "abc", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.NotEmpty(t, rec.Body.String())
		assert.Equal(t, rec.Body.String(), rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestContext_ExportRoute(t *testing.T) {
	e := newTestServer()
	e.GET("/channels/:channelId/exports/:runId", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]any{
			"channel_id": context.GetChannelID(ctx),
			"run_id":     context.GetRunID(ctx),
			"route":      context.GetRoute(ctx),
		})
	})

	t.Run("tags channel and run", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels/7/exports/run-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, float64(7), got["channel_id"])
		assert.Equal(t, "run-1", got["run_id"])
		assert.Equal(t, "/channels/:channelId/exports/:runId", got["route"])
	})

	t.Run("ignores a malformed channel", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels/web/exports/run-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, float64(0), got["channel_id"])
	})
}

func TestError(t *testing.T) {
	e := newTestServer()
	e.GET("/conflict", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusConflict, "channel export already running")
	})
	e.GET("/boom", func(c echo.Context) error {
		return assert.AnError
	})

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/conflict", http.StatusConflict, "channel export already running"},
		{"/boom", http.StatusInternalServerError, "Internal Server Error"},
		{"/missing", http.StatusNotFound, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(echo.HeaderXRequestID, "req-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Message, tt.message)
			assert.Equal(t, "req-1", body.RequestID)
		})
	}
}
