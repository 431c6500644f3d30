package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/beevik/etree"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Resource actions
const (
	ResourceActionAdded   = "added"
	ResourceActionUpdated = "updated"
)

// ResourceElementFactory builds the resource manifest that accompanies a catalog document
type ResourceElementFactory struct {
	docs       *DocumentFactory
	settings   models.ExportSettings
	logger     ectologger.Logger
	imageTypes map[string]bool
}

// NewResourceElementFactory creates a resource factory sharing the run's code generation and
// field serialization with the catalog document factory
func NewResourceElementFactory(docs *DocumentFactory, logger ectologger.Logger) *ResourceElementFactory {
	return &ResourceElementFactory{
		docs:       docs,
		settings:   docs.settings,
		logger:     logger,
		imageTypes: make(map[string]bool),
	}
}

// CreateResourceDocument builds Resources > ResourceFiles > Resource for every resource in
// the structure. Resources without a file are skipped.
func (f *ResourceElementFactory) CreateResourceDocument(ctx context.Context, structure []models.StructureEntity, full bool) *etree.Document {
	ctx, span := tracing.StartSpan(ctx, "catalog.ResourceElementFactory.CreateResourceDocument")
	defer span.End()

	types := make(map[int]string, len(structure))
	parents := make(map[int][]int)
	var resourceIDs []int
	for _, s := range structure {
		if _, ok := types[s.EntityID]; !ok {
			types[s.EntityID] = s.Type
		}
		if s.Type != models.EntityTypeResource {
			continue
		}
		if _, ok := parents[s.EntityID]; !ok {
			resourceIDs = append(resourceIDs, s.EntityID)
		}
		if !ectolinq.Contains(parents[s.EntityID], s.ParentID) {
			parents[s.EntityID] = append(parents[s.EntityID], s.ParentID)
		}
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("Resources")

	if full {
		root.AddChild(f.createResourceMetaFields())
	}

	action := ResourceActionUpdated
	if full {
		action = ResourceActionAdded
	}

	files := root.CreateElement("ResourceFiles")
	for _, id := range resourceIDs {
		resource, err := f.docs.source.GetEntity(ctx, id, models.LoadLevelDataOnly)
		if err != nil || resource == nil {
			metrics.SkippedEntitiesTotal.WithLabelValues("fetch_failed").Inc()
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"resource_id": id,
			}).Warn("Failed to fetch resource, skipping")
			continue
		}

		el := f.CreateResourceElement(ctx, resource, parents[id], types, action)
		if el == nil {
			continue
		}
		files.AddChild(el)
	}

	doc.Indent(2)

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"resource_count": len(files.ChildElements()),
		"full":           full,
	}).Info("Created resource document")

	return doc
}

// CreateResourceElement builds one Resource with its fields, file paths and parents
func (f *ResourceElementFactory) CreateResourceElement(ctx context.Context, resource *models.Entity, parentIDs []int, types map[int]string, action string) *etree.Element {
	roles := f.settings.FieldRoles
	fileID := resource.GetFieldString(roles.ResourceFileID, f.settings.DefaultLanguage)
	filename := resource.GetFieldString(roles.ResourceFilename, f.settings.DefaultLanguage)
	if fileID == "" || filename == "" {
		metrics.SkippedEntitiesTotal.WithLabelValues("missing_file").Inc()
		f.logger.WithContext(ctx).WithFields(map[string]any{
			"resource_id": resource.ID,
		}).Warn("Resource has no file, skipping")
		return nil
	}

	el := etree.NewElement("Resource")
	el.CreateAttr("id", ChannelEntityGUID(f.docs.channelID, resource.ID).String())
	el.CreateAttr("action", action)

	fields := el.CreateElement("ResourceFields")
	for i := range resource.Fields {
		field := &resource.Fields[i]
		if !f.docs.elements.IsFieldVisible(resource, field) {
			continue
		}
		fields.AddChild(f.docs.elements.CreateMetaFieldElement(field))
	}

	paths := el.CreateElement("Paths")
	for _, rc := range f.displayConfigurations(filename) {
		path := paths.CreateElement("Path")
		path.CreateAttr("rc", rc)
		path.SetText(fmt.Sprintf("./%s/%s/%s", fileID, rc, filename))
	}

	entries := el.CreateElement("ParentEntries")
	nodes := el.CreateElement("ParentNodes")
	mainAssigned := false
	for _, parentID := range parentIDs {
		if parentID == 0 || parentID == f.docs.channelID || types[parentID] == models.EntityTypeChannel {
			continue
		}

		if types[parentID] == models.EntityTypeChannelNode {
			if code, ok := f.docs.codes.GetEpiCodeByID(ctx, parentID); ok {
				nodes.CreateElement("NodeCode").SetText(code)
			}
			continue
		}

		parent, err := f.docs.source.GetEntity(ctx, parentID, models.LoadLevelDataOnly)
		if err != nil || parent == nil {
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"resource_id": resource.ID,
				"parent_id":   parentID,
			}).Warn("Failed to fetch resource parent, skipping parent")
			continue
		}

		isMain := !mainAssigned && parent.MainPictureID != nil && strconv.Itoa(*parent.MainPictureID) == fileID
		for i, code := range f.docs.EntityCodes(parent) {
			entry := entries.CreateElement("EntryCode")
			entry.CreateAttr("IsMainPicture", boolText(isMain && i == 0))
			entry.SetText(code)
		}
		if isMain {
			mainAssigned = true
		}
	}

	return el
}

// IsImage reports whether a file extension is an image type. Classifications are cached.
func (f *ResourceElementFactory) IsImage(extension string) bool {
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))
	if isImage, ok := f.imageTypes[extension]; ok {
		return isImage
	}
	isImage := ectolinq.Contains(f.settings.ImageExtensions, extension)
	f.imageTypes[extension] = isImage
	return isImage
}

func (f *ResourceElementFactory) displayConfigurations(filename string) []string {
	if f.IsImage(filepath.Ext(filename)) && len(f.settings.ResourceConfigurations) > 0 {
		return f.settings.ResourceConfigurations
	}
	return []string{"Original"}
}

func (f *ResourceElementFactory) createResourceMetaFields() *etree.Element {
	metaFields := etree.NewElement("ResourceMetaFields")
	resourceType := ectolinq.Find(f.docs.entityTypes, func(et models.EntityType) bool {
		return et.ID == models.EntityTypeResource
	})
	owner := []string{MetaClassName(models.EntityTypeResource)}
	for _, ft := range resourceType.FieldTypes {
		if f.docs.elements.SkipField(ft.ID) {
			continue
		}
		metaFields.AddChild(createMetaFieldDefinition(ft, owner))
	}
	return metaFields
}

// SplitResourceDocument splits a resource document into documents of at most chunkSize
// resources. Every chunk carries a copy of the resource meta fields.
func SplitResourceDocument(doc *etree.Document, chunkSize int) []*etree.Document {
	root := doc.Root()
	if root == nil {
		return nil
	}
	files := root.SelectElement("ResourceFiles")
	if files == nil {
		return nil
	}
	resources := files.SelectElements("Resource")
	if chunkSize <= 0 {
		chunkSize = len(resources)
	}

	var chunks []*etree.Document
	for start := 0; start < len(resources); start += chunkSize {
		end := min(start+chunkSize, len(resources))

		chunk := etree.NewDocument()
		chunk.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
		chunkRoot := chunk.CreateElement("Resources")
		if metaFields := root.SelectElement("ResourceMetaFields"); metaFields != nil {
			chunkRoot.AddChild(metaFields.Copy())
		}
		chunkFiles := chunkRoot.CreateElement("ResourceFiles")
		for _, resource := range resources[start:end] {
			chunkFiles.AddChild(resource.Copy())
		}
		chunk.Indent(2)
		chunks = append(chunks, chunk)
	}
	return chunks
}

// CountResources counts the resources of a resource document
func CountResources(doc *etree.Document) int {
	files := doc.FindElement("Resources/ResourceFiles")
	if files == nil {
		return 0
	}
	return len(files.SelectElements("Resource"))
}
