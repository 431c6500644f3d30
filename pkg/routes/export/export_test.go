package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/exporter"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeStarter struct {
	store    *exporter.MemoryRunStore
	requests []models.ExportRequest
	err      error
}

func (s *fakeStarter) Start(ctx context.Context, req models.ExportRequest) (*models.ExportRun, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.store.Create(ctx, req.ChannelID, req.Full)
}

func newTestServer(starter *fakeStarter) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	NewHandler(starter, starter.store, logger).Register(e.Group("/api/v1"))
	return e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateExport(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore()}
	e := newTestServer(starter)

	rec := serve(e, http.MethodPost, "/api/v1/channels/7/exports", `{"full":true,"skip_import":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run models.ExportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 7, run.ChannelID)
	assert.True(t, run.Full)
	assert.Equal(t, models.ExportRunStatusRunning, run.Status)
	assert.Equal(t, []models.ExportRequest{{ChannelID: 7, Full: true, SkipImport: true}}, starter.requests)
	assert.Equal(t, run.ID, rec.Header().Get(fernctx.HeaderRunID))
}

func TestCreateExportWithoutBody(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore()}

	rec := serve(newTestServer(starter), http.MethodPost, "/api/v1/channels/7/exports", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []models.ExportRequest{{ChannelID: 7}}, starter.requests)
}

func TestCreateExportRejectsBadChannel(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore()}
	e := newTestServer(starter)

	rec := serve(e, http.MethodPost, "/api/v1/channels/abc/exports", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/channels/0/exports", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "ChannelID")

	assert.Empty(t, starter.requests)
}

func TestCreateExportIgnoresChannelInBody(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore()}

	rec := serve(newTestServer(starter), http.MethodPost, "/api/v1/channels/7/exports", `{"ChannelID":9,"full":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []models.ExportRequest{{ChannelID: 7, Full: true}}, starter.requests)
}

func TestCreateExportConflict(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore(), err: exporter.ErrExportInProgress}

	rec := serve(newTestServer(starter), http.MethodPost, "/api/v1/channels/7/exports", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "already running")
}

func TestGetExport(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore()}
	run, err := starter.store.Create(context.Background(), 7, false)
	require.NoError(t, err)
	e := newTestServer(starter)

	rec := serve(e, http.MethodGet, "/api/v1/exports/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ExportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)

	rec = serve(e, http.MethodGet, "/api/v1/exports/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListExports(t *testing.T) {
	starter := &fakeStarter{store: exporter.NewMemoryRunStore()}
	for _, channelID := range []int{7, 7, 8} {
		_, err := starter.store.Create(context.Background(), channelID, false)
		require.NoError(t, err)
	}

	rec := serve(newTestServer(starter), http.MethodGet, "/api/v1/channels/7/exports?page=1&page_size=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list models.ExportRunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.TotalCount)
	assert.Len(t, list.Items, 2)
}
