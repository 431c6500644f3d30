package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	fernmetrics "github.com/Ramsey-B/fern/pkg/metrics"
)

func TestMetricsEndpoint(t *testing.T) {
	fernmetrics.ExportRunsTotal.WithLabelValues("completed", "true").Inc()

	e := echo.New()
	Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fern_export_runs_total")
}
