package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim/pimtest"
)

const testChannelID = 1

var testLinkTypes = []models.LinkType{
	{ID: "ChannelChannelNode", SourceEntityTypeID: models.EntityTypeChannel, TargetEntityTypeID: models.EntityTypeChannelNode},
	{ID: "ChannelNodeChannelNode", SourceEntityTypeID: models.EntityTypeChannelNode, TargetEntityTypeID: models.EntityTypeChannelNode},
	{ID: "ChannelNodeProduct", SourceEntityTypeID: models.EntityTypeChannelNode, TargetEntityTypeID: models.EntityTypeProduct},
	{ID: "ProductItem", SourceEntityTypeID: models.EntityTypeProduct, TargetEntityTypeID: models.EntityTypeItem, Index: 0},
	{ID: "ProductItemAlt", SourceEntityTypeID: models.EntityTypeProduct, TargetEntityTypeID: models.EntityTypeItem, Index: 3},
	{ID: "ProductAccessory", SourceEntityTypeID: models.EntityTypeProduct, TargetEntityTypeID: models.EntityTypeProduct, Index: 5},
	{ID: "ItemItem", SourceEntityTypeID: models.EntityTypeItem, TargetEntityTypeID: models.EntityTypeItem, Index: 6},
	{ID: "BundleProduct", SourceEntityTypeID: models.EntityTypeBundle, TargetEntityTypeID: models.EntityTypeProduct, Index: 7},
	{ID: "ProductResource", SourceEntityTypeID: models.EntityTypeProduct, TargetEntityTypeID: models.EntityTypeResource},
	{ID: "ItemResource", SourceEntityTypeID: models.EntityTypeItem, TargetEntityTypeID: models.EntityTypeResource},
	{ID: "ChannelNodeResource", SourceEntityTypeID: models.EntityTypeChannelNode, TargetEntityTypeID: models.EntityTypeResource},
}

var (
	ftProductName = models.FieldType{ID: "ProductName", EntityTypeID: models.EntityTypeProduct, DataType: models.DataTypeLocaleString}
	ftItemColor   = models.FieldType{ID: "ItemColor", EntityTypeID: models.EntityTypeItem, DataType: models.DataTypeString}
	ftSKUs        = models.FieldType{ID: "SKUs", EntityTypeID: models.EntityTypeItem, DataType: models.DataTypeXML}
	ftNodeName    = models.FieldType{ID: "ChannelNodeName", EntityTypeID: models.EntityTypeChannelNode, DataType: models.DataTypeLocaleString}
	ftFileID      = models.FieldType{ID: "ResourceFileId", EntityTypeID: models.EntityTypeResource, DataType: models.DataTypeString}
	ftFilename    = models.FieldType{ID: "ResourceFilename", EntityTypeID: models.EntityTypeResource, DataType: models.DataTypeString}
	ftMimeType    = models.FieldType{ID: "ResourceMimeType", EntityTypeID: models.EntityTypeResource, DataType: models.DataTypeString}
)

var testEntityTypes = []models.EntityType{
	{ID: models.EntityTypeChannelNode, FieldTypes: []models.FieldType{ftNodeName}},
	{ID: models.EntityTypeProduct, FieldTypes: []models.FieldType{ftProductName}},
	{ID: models.EntityTypeItem, FieldTypes: []models.FieldType{ftItemColor, ftSKUs}},
	{ID: models.EntityTypeResource, FieldTypes: []models.FieldType{ftFileID, ftFilename, ftMimeType}},
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testSettings() models.ExportSettings {
	settings := models.DefaultExportSettings()
	settings.ChannelPrefix = "CH_"
	return settings
}

func newEntity(id int, entityTypeID, name string, fields ...models.Field) *models.Entity {
	return &models.Entity{
		ID:           id,
		EntityTypeID: entityTypeID,
		DisplayName:  name,
		LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Fields:       fields,
	}
}

func newField(fieldType models.FieldType, data any) models.Field {
	return models.Field{FieldType: fieldType, Data: data}
}

func occurrence(entityID, parentID int, entityTypeID, linkTypeID, path string, sortOrder int) models.StructureEntity {
	return models.StructureEntity{
		EntityID:             entityID,
		ParentID:             parentID,
		LinkTypeIDFromParent: linkTypeID,
		Type:                 entityTypeID,
		Path:                 path,
		SortOrder:            sortOrder,
		ChannelID:            testChannelID,
	}
}

// newScenarioSource registers a channel with one node, one product and one item
func newScenarioSource() *pimtest.Source {
	return pimtest.New().AddEntity(
		newEntity(1, models.EntityTypeChannel, "Web"),
		newEntity(10, models.EntityTypeChannelNode, "Chairs", newField(ftNodeName, models.LocaleString{"en-US": "Chairs"})),
		newEntity(20, models.EntityTypeProduct, "Oak Chair", newField(ftProductName, models.LocaleString{"en-US": "Oak Chair"})),
		newEntity(21, models.EntityTypeItem, "Oak Chair Small", newField(ftItemColor, "brown")),
	)
}

func scenarioStructure() []models.StructureEntity {
	return []models.StructureEntity{
		occurrence(10, 1, models.EntityTypeChannelNode, "ChannelChannelNode", "1/10", 0),
		occurrence(20, 10, models.EntityTypeProduct, "ChannelNodeProduct", "1/10/20", 1),
		occurrence(21, 20, models.EntityTypeItem, "ProductItem", "1/10/20/21", 0),
	}
}

func newTestDocumentFactory(source *pimtest.Source, settings models.ExportSettings, mover NodeMover) *DocumentFactory {
	return NewDocumentFactory(Options{
		ChannelID:   testChannelID,
		Settings:    settings,
		LinkTypes:   testLinkTypes,
		EntityTypes: testEntityTypes,
		Source:      source,
		NodeMover:   mover,
		Logger:      testLogger(),
	})
}

func buildDocument(t *testing.T, source *pimtest.Source, settings models.ExportSettings, structure []models.StructureEntity, full bool) *etree.Document {
	t.Helper()
	factory := newTestDocumentFactory(source, settings, nil)
	channel, err := source.GetEntity(context.Background(), testChannelID, models.LoadLevelDataOnly)
	require.NoError(t, err)

	doc, err := factory.CreateImportDocument(context.Background(), channel, structure, full)
	require.NoError(t, err)
	return doc
}

func texts(doc *etree.Document, path string) []string {
	elements := doc.FindElements(path)
	result := make([]string, 0, len(elements))
	for _, el := range elements {
		result = append(result, el.Text())
	}
	return result
}

type relationRow struct {
	Kind   string
	Parent string
	Child  string
	Type   string
}

func relations(doc *etree.Document) []relationRow {
	var rows []relationRow
	collection := doc.FindElement("Catalogs/Catalog/Relations")
	if collection == nil {
		return nil
	}
	for _, el := range collection.ChildElements() {
		row := relationRow{Kind: el.Tag}
		switch el.Tag {
		case "NodeRelation":
			row.Parent, row.Child = childText(el, "ParentNodeCode"), childText(el, "ChildNodeCode")
		case "NodeEntryRelation":
			row.Parent, row.Child = childText(el, "NodeCode"), childText(el, "EntryCode")
		case "EntryRelation":
			row.Parent, row.Child = childText(el, "ParentEntryCode"), childText(el, "ChildEntryCode")
			row.Type = childText(el, "RelationType")
		}
		rows = append(rows, row)
	}
	return rows
}

type recordingMover struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (m *recordingMover) MoveNodeToRootIfNeeded(_ context.Context, nodeCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, nodeCode)
	return m.err
}
