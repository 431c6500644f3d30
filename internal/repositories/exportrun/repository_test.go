package exportrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestInsertQuery(t *testing.T) {
	startedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &models.ExportRun{ID: "run-1", ChannelID: 7, Full: true, Status: models.ExportRunStatusRunning, StartedAt: startedAt}

	query, args := insertQuery(run)

	assert.Equal(t, "INSERT INTO export_runs (id, channel_id, full_export, status, started_at) VALUES ($1, $2, $3, $4, $5)", query)
	assert.Equal(t, []any{"run-1", 7, true, "running", startedAt}, args)
}

func TestSupersedeQueryOnlyTouchesRunningRowsOfChannel(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	query, args := supersedeQuery(7, at)

	assert.Contains(t, query, "UPDATE export_runs SET")
	assert.Contains(t, query, "WHERE channel_id = $4 AND status = $5")
	assert.Equal(t, []any{"failed", staleRunMessage, at, 7, "running"}, args)
}

func TestCompleteQuery(t *testing.T) {
	completedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &models.ExportRun{
		ID:               "run-1",
		Status:           models.ExportRunStatusCompleted,
		NodeCount:        1,
		EntryCount:       2,
		RelationCount:    3,
		AssociationCount: 4,
		ResourceCount:    5,
		CatalogFile:      "catalog.xml",
		ResourceFile:     "resources.xml",
		CompletedAt:      &completedAt,
	}

	query, args := completeQuery(run)

	assert.Contains(t, query, "WHERE id = $10")
	assert.Equal(t, []any{"completed", 1, 2, 3, 4, 5, "catalog.xml", "resources.xml", completedAt, "run-1"}, args)
}

func TestFailQuery(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	query, args := failQuery("run-1", "boom", at)

	assert.Contains(t, query, "WHERE id = $4")
	assert.Equal(t, []any{"failed", "boom", at, "run-1"}, args)
}

func TestListQueryOrdersNewestFirst(t *testing.T) {
	query, args := listQuery(7, 2, 10)

	assert.Contains(t, query, "FROM export_runs WHERE channel_id = $1 ORDER BY started_at DESC")
	assert.Equal(t, 7, args[0])
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name               string
		page, pageSize     int
		wantPage, wantSize int
	}{
		{name: "defaults", page: 0, pageSize: 0, wantPage: 1, wantSize: 20},
		{name: "caps page size", page: 3, pageSize: 500, wantPage: 3, wantSize: 100},
		{name: "keeps valid values", page: 2, pageSize: 50, wantPage: 2, wantSize: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size := normalizePage(tt.page, tt.pageSize)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}
