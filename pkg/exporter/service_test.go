package exporter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim/pimtest"
)

const channelID = 1

var (
	ftNodeName = models.FieldType{ID: "ChannelNodeName", EntityTypeID: models.EntityTypeChannelNode, DataType: models.DataTypeLocaleString}
	ftName     = models.FieldType{ID: "ProductName", EntityTypeID: models.EntityTypeProduct, DataType: models.DataTypeLocaleString}
	ftColor    = models.FieldType{ID: "ItemColor", EntityTypeID: models.EntityTypeItem, DataType: models.DataTypeString}
	ftFileID   = models.FieldType{ID: "ResourceFileId", EntityTypeID: models.EntityTypeResource, DataType: models.DataTypeString}
	ftFilename = models.FieldType{ID: "ResourceFilename", EntityTypeID: models.EntityTypeResource, DataType: models.DataTypeString}
)

type recordingImporter struct {
	mu         sync.Mutex
	calls      []string
	resources  int
	failImport error
}

func (i *recordingImporter) record(call string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, call)
}

func (i *recordingImporter) ImportCatalog(_ context.Context, document []byte) error {
	i.record("catalog")
	if i.failImport != nil {
		return i.failImport
	}
	if !strings.Contains(string(document), "<Catalogs") {
		return errors.New("not a catalog document")
	}
	return nil
}

func (i *recordingImporter) ImportResources(_ context.Context, _ []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, "resources")
	i.resources++
	return nil
}

func (i *recordingImporter) WaitForImport(_ context.Context) error {
	i.record("wait")
	return nil
}

func (i *recordingImporter) MoveNodeToRootIfNeeded(_ context.Context, nodeCode string) error {
	i.record("move:" + nodeCode)
	return nil
}

func (i *recordingImporter) NotifyImportCompleted(_ context.Context, catalogName string, full bool) error {
	i.record("notify:" + catalogName)
	return nil
}

func (i *recordingImporter) Calls() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.calls...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEvents) add(event string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEvents) EmitExportStarted(_ context.Context, _ *models.ExportRun) error {
	return e.add("started")
}

func (e *recordingEvents) EmitExportCompleted(_ context.Context, _ *models.ExportRun) error {
	return e.add("completed")
}

func (e *recordingEvents) EmitExportFailed(_ context.Context, _ *models.ExportRun, _ error) error {
	return e.add("failed")
}

func (e *recordingEvents) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func entity(id int, entityTypeID, name string, fields ...models.Field) *models.Entity {
	return &models.Entity{ID: id, EntityTypeID: entityTypeID, DisplayName: name, Fields: fields}
}

func occurrence(entityID, parentID int, entityTypeID, linkTypeID, path string, sortOrder int) models.StructureEntity {
	return models.StructureEntity{
		EntityID:             entityID,
		ParentID:             parentID,
		LinkTypeIDFromParent: linkTypeID,
		Type:                 entityTypeID,
		Path:                 path,
		SortOrder:            sortOrder,
		ChannelID:            channelID,
	}
}

func newSource() *pimtest.Source {
	return pimtest.New().
		AddEntity(
			entity(1, models.EntityTypeChannel, "Web"),
			entity(10, models.EntityTypeChannelNode, "Chairs", models.Field{FieldType: ftNodeName, Data: models.LocaleString{"en-US": "Chairs"}}),
			entity(20, models.EntityTypeProduct, "Oak Chair", models.Field{FieldType: ftName, Data: models.LocaleString{"en-US": "Oak Chair"}}),
			entity(21, models.EntityTypeItem, "Oak Chair Small", models.Field{FieldType: ftColor, Data: "brown"}),
			entity(30, models.EntityTypeResource, "chair.jpg",
				models.Field{FieldType: ftFileID, Data: "555"}, models.Field{FieldType: ftFilename, Data: "chair.jpg"}),
			entity(31, models.EntityTypeResource, "manual.pdf",
				models.Field{FieldType: ftFileID, Data: "556"}, models.Field{FieldType: ftFilename, Data: "manual.pdf"}),
		).
		SetLinkTypes(
			models.LinkType{ID: "ChannelChannelNode", SourceEntityTypeID: models.EntityTypeChannel, TargetEntityTypeID: models.EntityTypeChannelNode},
			models.LinkType{ID: "ChannelNodeProduct", SourceEntityTypeID: models.EntityTypeChannelNode, TargetEntityTypeID: models.EntityTypeProduct},
			models.LinkType{ID: "ProductItem", SourceEntityTypeID: models.EntityTypeProduct, TargetEntityTypeID: models.EntityTypeItem},
			models.LinkType{ID: "ProductResource", SourceEntityTypeID: models.EntityTypeProduct, TargetEntityTypeID: models.EntityTypeResource},
		).
		SetEntityTypes(
			models.EntityType{ID: models.EntityTypeChannelNode, FieldTypes: []models.FieldType{ftNodeName}},
			models.EntityType{ID: models.EntityTypeProduct, FieldTypes: []models.FieldType{ftName}},
			models.EntityType{ID: models.EntityTypeItem, FieldTypes: []models.FieldType{ftColor}},
			models.EntityType{ID: models.EntityTypeResource, FieldTypes: []models.FieldType{ftFileID, ftFilename}},
		).
		SetStructure(channelID,
			occurrence(10, 1, models.EntityTypeChannelNode, "ChannelChannelNode", "1/10", 0),
			occurrence(20, 10, models.EntityTypeProduct, "ChannelNodeProduct", "1/10/20", 1),
			occurrence(21, 20, models.EntityTypeItem, "ProductItem", "1/10/20/21", 0),
			occurrence(30, 20, models.EntityTypeResource, "ProductResource", "1/10/20/30", 0),
			occurrence(31, 20, models.EntityTypeResource, "ProductResource", "1/10/20/31", 1),
		)
}

type harness struct {
	service  *Service
	runs     *MemoryRunStore
	events   *recordingEvents
	importer *recordingImporter
	output   string
}

func newHarness(t *testing.T, source *pimtest.Source, config Config) *harness {
	t.Helper()

	settings := models.DefaultExportSettings()
	settings.ChannelPrefix = "CH_"

	h := &harness{
		runs:     NewMemoryRunStore(),
		events:   &recordingEvents{},
		importer: &recordingImporter{},
		output:   t.TempDir(),
	}
	if config.OutputDir == "" {
		config.OutputDir = h.output
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	h.service = NewService(source, settings, config, logger,
		WithRunStore(h.runs),
		WithEventSink(h.events),
		WithImporter(h.importer),
	)
	return h
}

func TestExportChannel(t *testing.T) {
	h := newHarness(t, newSource(), Config{ResourceChunkSize: 1})

	run, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID, Full: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExportRunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.NodeCount)
	assert.Equal(t, 2, run.EntryCount)
	assert.Equal(t, 2, run.RelationCount)
	assert.Equal(t, 0, run.AssociationCount)
	assert.Equal(t, 2, run.ResourceCount)

	stored, err := h.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.ExportRunStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	assert.Equal(t, filepath.Join(h.output, "1", run.ID, CatalogFileName), run.CatalogFile)
	catalogXML, err := os.ReadFile(run.CatalogFile)
	require.NoError(t, err)
	assert.Contains(t, string(catalogXML), "<Code>CH_20</Code>")
	resourceXML, err := os.ReadFile(run.ResourceFile)
	require.NoError(t, err)
	assert.Contains(t, string(resourceXML), "chair.jpg")

	calls := h.importer.Calls()
	assert.Equal(t, []string{"move:CH_10", "catalog", "wait", "resources", "resources", "wait", "notify:Web"}, calls)
	assert.Less(t, slices.Index(calls, "move:CH_10"), slices.Index(calls, "catalog"), "root nodes are moved before the catalog is posted")
	assert.Equal(t, []string{"started", "completed"}, h.events.Events())
}

func TestExportChannelIsByteStable(t *testing.T) {
	h := newHarness(t, newSource(), Config{})

	first, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID, SkipImport: true})
	require.NoError(t, err)
	second, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID, SkipImport: true})
	require.NoError(t, err)

	firstXML, err := os.ReadFile(first.CatalogFile)
	require.NoError(t, err)
	secondXML, err := os.ReadFile(second.CatalogFile)
	require.NoError(t, err)
	assert.Equal(t, string(firstXML), string(secondXML))
}

func TestExportChannelSkipImport(t *testing.T) {
	h := newHarness(t, newSource(), Config{})

	run, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID, SkipImport: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExportRunStatusCompleted, run.Status)
	assert.Empty(t, h.importer.Calls())
}

func TestExportChannelNotFound(t *testing.T) {
	h := newHarness(t, newSource(), Config{})

	run, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: 99})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelNotFound)

	stored, getErr := h.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ExportRunStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "channel not found")
	assert.Equal(t, []string{"started", "failed"}, h.events.Events())
}

func TestExportChannelRejectsNonChannelEntity(t *testing.T) {
	h := newHarness(t, newSource(), Config{})

	_, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: 20})
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestExportChannelImportFailureReleasesLock(t *testing.T) {
	h := newHarness(t, newSource(), Config{})
	h.importer.failImport = errors.New("ERROR: catalog locked")

	run, err := h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to import catalog")
	assert.Equal(t, models.ExportRunStatusFailed, run.Status)

	h.importer.failImport = nil
	_, err = h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID})
	assert.NoError(t, err)
}

func TestConcurrentExportOfSameChannelIsRejected(t *testing.T) {
	h := newHarness(t, newSource(), Config{})

	lock, err := h.service.locker.LockChannel(context.Background(), channelID, time.Minute)
	require.NoError(t, err)

	_, err = h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID})
	assert.ErrorIs(t, err, ErrExportInProgress)

	runs, total, err := h.runs.ListByChannel(context.Background(), channelID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, 0, total)

	require.NoError(t, lock.Release(context.Background()))
	_, err = h.service.ExportChannel(context.Background(), models.ExportRequest{ChannelID: channelID, SkipImport: true})
	assert.NoError(t, err)
}

func TestStartRunsInBackground(t *testing.T) {
	h := newHarness(t, newSource(), Config{})

	run, err := h.service.Start(context.Background(), models.ExportRequest{ChannelID: channelID, SkipImport: true})
	require.NoError(t, err)
	assert.Equal(t, models.ExportRunStatusRunning, run.Status)

	require.Eventually(t, func() bool {
		stored, err := h.runs.GetByID(context.Background(), run.ID)
		return err == nil && stored != nil && stored.Status == models.ExportRunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMemoryRunStoreListsNewestFirst(t *testing.T) {
	store := NewMemoryRunStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}

	first, err := store.Create(context.Background(), channelID, false)
	require.NoError(t, err)
	second, err := store.Create(context.Background(), channelID, true)
	require.NoError(t, err)
	_, err = store.Create(context.Background(), 2, false)
	require.NoError(t, err)

	runs, total, err := store.ListByChannel(context.Background(), channelID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, runs, 1)
	assert.Equal(t, second.ID, runs[0].ID)

	runs, _, err = store.ListByChannel(context.Background(), channelID, 2, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first.ID, runs[0].ID)

	assert.Error(t, store.Fail(context.Background(), "missing", "boom"))
}
