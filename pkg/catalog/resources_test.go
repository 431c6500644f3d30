package catalog

import (
	"context"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim/pimtest"
)

func newResource(id int, fileID, filename string) *models.Entity {
	fields := []models.Field{newField(ftFilename, filename), newField(ftMimeType, "application/octet-stream")}
	if fileID != "" {
		fields = append(fields, newField(ftFileID, fileID))
	}
	return newEntity(id, models.EntityTypeResource, filename, fields...)
}

func resourceSource() *pimtest.Source {
	mainPicture := 555
	product := newEntity(20, models.EntityTypeProduct, "Oak Chair")
	product.MainPictureID = &mainPicture

	return newScenarioSource().AddEntity(
		product,
		newResource(70, "555", "chair.jpg"),
		newResource(71, "556", "manual.pdf"),
		newResource(72, "", "broken.png"),
	)
}

func buildResources(t *testing.T, source *pimtest.Source, settings models.ExportSettings, structure []models.StructureEntity, full bool) *etree.Document {
	t.Helper()
	docs := newTestDocumentFactory(source, settings, nil)
	return NewResourceElementFactory(docs, testLogger()).CreateResourceDocument(context.Background(), structure, full)
}

func TestCreateResourceDocument(t *testing.T) {
	settings := testSettings()
	settings.ResourceConfigurations = []string{"Original", "Thumbnail"}
	structure := append(scenarioStructure(),
		occurrence(70, 20, models.EntityTypeResource, "ProductResource", "1/10/20/70", 0),
		occurrence(70, 10, models.EntityTypeResource, "ChannelNodeResource", "1/10/70", 1),
		occurrence(71, 20, models.EntityTypeResource, "ProductResource", "1/10/20/71", 1),
		occurrence(72, 20, models.EntityTypeResource, "ProductResource", "1/10/20/72", 2),
	)

	doc := buildResources(t, resourceSource(), settings, structure, true)

	resources := doc.FindElements("Resources/ResourceFiles/Resource")
	require.Len(t, resources, 2)
	assert.Equal(t, 2, CountResources(doc))

	t.Run("image resource", func(t *testing.T) {
		resource := resources[0]
		assert.Equal(t, ChannelEntityGUID(testChannelID, 70).String(), resource.SelectAttrValue("id", ""))
		assert.Equal(t, ResourceActionAdded, resource.SelectAttrValue("action", ""))

		var paths []string
		for _, path := range resource.FindElements("Paths/Path") {
			paths = append(paths, path.Text())
		}
		assert.Equal(t, []string{"./555/Original/chair.jpg", "./555/Thumbnail/chair.jpg"}, paths)

		entries := resource.FindElements("ParentEntries/EntryCode")
		require.Len(t, entries, 1)
		assert.Equal(t, "CH_20", entries[0].Text())
		assert.Equal(t, "True", entries[0].SelectAttrValue("IsMainPicture", ""))

		nodes := resource.FindElements("ParentNodes/NodeCode")
		require.Len(t, nodes, 1)
		assert.Equal(t, "CH_10", nodes[0].Text())

		assert.Len(t, resource.FindElements("ResourceFields/MetaField"), 3)
	})

	t.Run("non image resource has the original only", func(t *testing.T) {
		resource := resources[1]
		var paths []string
		for _, path := range resource.FindElements("Paths/Path") {
			paths = append(paths, path.Text())
		}
		assert.Equal(t, []string{"./556/Original/manual.pdf"}, paths)
		assert.Equal(t, "False", resource.FindElement("ParentEntries/EntryCode").SelectAttrValue("IsMainPicture", ""))
	})

	t.Run("meta fields on full export", func(t *testing.T) {
		var names []string
		for _, name := range doc.FindElements("Resources/ResourceMetaFields/MetaField/Name") {
			names = append(names, name.Text())
		}
		assert.Equal(t, []string{"ResourceFileId", "ResourceFilename", "ResourceMimeType"}, names)
	})

	t.Run("incremental export", func(t *testing.T) {
		incremental := buildResources(t, resourceSource(), settings, structure, false)
		assert.Nil(t, incremental.FindElement("Resources/ResourceMetaFields"))
		assert.Equal(t, ResourceActionUpdated, incremental.FindElement("Resources/ResourceFiles/Resource").SelectAttrValue("action", ""))
	})
}

func TestCreateResourceDocument_SkuParents(t *testing.T) {
	settings := testSettings()
	settings.ItemsToSkus = true
	mainPicture := 555
	item := newEntity(21, models.EntityTypeItem, "Chair S", newField(ftSKUs, skuFragment))
	item.MainPictureID = &mainPicture

	source := resourceSource().AddEntity(item)
	structure := append(scenarioStructure(),
		occurrence(70, 21, models.EntityTypeResource, "ItemResource", "1/10/20/21/70", 0),
	)

	doc := buildResources(t, source, settings, structure, false)

	entries := doc.FindElements("Resources/ResourceFiles/Resource/ParentEntries/EntryCode")
	require.Len(t, entries, 2)
	assert.Equal(t, "CH_A1", entries[0].Text())
	assert.Equal(t, "True", entries[0].SelectAttrValue("IsMainPicture", ""))
	assert.Equal(t, "CH_A2", entries[1].Text())
	assert.Equal(t, "False", entries[1].SelectAttrValue("IsMainPicture", ""))
}

func TestCreateResourceDocument_OneMainPicture(t *testing.T) {
	mainPicture := 555
	other := newEntity(22, models.EntityTypeProduct, "Pine Chair")
	other.MainPictureID = &mainPicture

	source := resourceSource().AddEntity(other)
	structure := []models.StructureEntity{
		occurrence(70, 20, models.EntityTypeResource, "ProductResource", "1/10/20/70", 0),
		occurrence(70, 22, models.EntityTypeResource, "ProductResource", "1/10/22/70", 0),
	}

	doc := buildResources(t, source, testSettings(), structure, false)

	entries := doc.FindElements("Resources/ResourceFiles/Resource/ParentEntries/EntryCode")
	require.Len(t, entries, 2)
	assert.Equal(t, "True", entries[0].SelectAttrValue("IsMainPicture", ""))
	assert.Equal(t, "False", entries[1].SelectAttrValue("IsMainPicture", ""))
}

func TestResourceElementFactory_IsImage(t *testing.T) {
	docs := newTestDocumentFactory(pimtest.New(), testSettings(), nil)
	f := NewResourceElementFactory(docs, testLogger())

	assert.True(t, f.IsImage(".JPG"))
	assert.True(t, f.IsImage("png"))
	assert.False(t, f.IsImage(".pdf"))
	assert.False(t, f.IsImage(""))
	assert.Len(t, f.imageTypes, 4)
}

func TestSplitResourceDocument(t *testing.T) {
	settings := testSettings()
	source := resourceSource().AddEntity(newResource(73, "557", "side.png"))
	structure := []models.StructureEntity{
		occurrence(70, 20, models.EntityTypeResource, "ProductResource", "1/10/20/70", 0),
		occurrence(71, 20, models.EntityTypeResource, "ProductResource", "1/10/20/71", 1),
		occurrence(73, 20, models.EntityTypeResource, "ProductResource", "1/10/20/73", 2),
	}
	doc := buildResources(t, source, settings, structure, true)
	require.Equal(t, 3, CountResources(doc))

	chunks := SplitResourceDocument(doc, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, CountResources(chunks[0]))
	assert.Equal(t, 1, CountResources(chunks[1]))
	for _, chunk := range chunks {
		assert.NotNil(t, chunk.FindElement("Resources/ResourceMetaFields"))
	}

	assert.Len(t, SplitResourceDocument(doc, 0), 1)
	assert.Empty(t, SplitResourceDocument(etree.NewDocument(), 2))
	assert.Equal(t, 3, CountResources(doc))
}
