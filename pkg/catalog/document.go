package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/beevik/etree"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// NodeMover asks the commerce side to move a previously nested node back to the root
type NodeMover interface {
	MoveNodeToRootIfNeeded(ctx context.Context, nodeCode string) error
}

// Options wires the collaborators of one export run into a DocumentFactory
type Options struct {
	ChannelID   int
	Settings    models.ExportSettings
	LinkTypes   []models.LinkType
	EntityTypes []models.EntityType
	Source      EntitySource
	CVLs        CVLResolver
	NodeMover   NodeMover
	Logger      ectologger.Logger
}

// Counts is the number of elements in each collection of a catalog document
type Counts struct {
	Nodes        int `json:"nodes"`
	Entries      int `json:"entries"`
	Relations    int `json:"relations"`
	Associations int `json:"associations"`
}

// DocumentFactory synthesizes a catalog document from a channel's structure entities
type DocumentFactory struct {
	channelID   int
	settings    models.ExportSettings
	entityTypes []models.EntityType
	source      EntitySource
	nodeMover   NodeMover
	codes       *CodeGenerator
	mapping     *MappingHelper
	elements    *ElementFactory
	logger      ectologger.Logger
}

// NewDocumentFactory creates a document factory for one export run
func NewDocumentFactory(opts Options) *DocumentFactory {
	codes := NewCodeGenerator(opts.Settings, opts.Source, opts.Logger)
	mapping := NewMappingHelper(opts.Settings, opts.LinkTypes)

	return &DocumentFactory{
		channelID:   opts.ChannelID,
		settings:    opts.Settings,
		entityTypes: opts.EntityTypes,
		source:      opts.Source,
		nodeMover:   opts.NodeMover,
		codes:       codes,
		mapping:     mapping,
		elements:    NewElementFactory(opts.Settings, opts.ChannelID, codes, mapping, opts.Source, opts.CVLs, opts.Logger),
		logger:      opts.Logger,
	}
}

// Codes returns the run's code generator
func (f *DocumentFactory) Codes() *CodeGenerator {
	return f.codes
}

// Mapping returns the run's mapping helper
func (f *DocumentFactory) Mapping() *MappingHelper {
	return f.mapping
}

// Elements returns the run's element factory
func (f *DocumentFactory) Elements() *ElementFactory {
	return f.elements
}

// CreateImportDocument walks the structure entities in fixed size batches and assembles the
// catalog document. Entities that cannot be fetched are logged and skipped. Full exports
// also carry the meta data scheme and dictionaries.
func (f *DocumentFactory) CreateImportDocument(ctx context.Context, channel *models.Entity, structure []models.StructureEntity, full bool) (*etree.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.DocumentFactory.CreateImportDocument")
	defer span.End()

	r := newSynthesisRun(f, structure)
	batchSize := f.settings.EffectiveBatchSize()

	for start, batch := 0, 0; start < len(structure); start, batch = start+batchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(structure))
		r.processBatch(ctx, structure[start:end], batch)
	}

	doc := f.assemble(channel, r, full)

	if len(f.settings.ExcludedMetaClasses) > 0 {
		removed := VerifyDocument(doc, f.settings.ExcludedMetaClasses)
		if len(removed) > 0 {
			f.logger.WithContext(ctx).WithFields(map[string]any{
				"channel_id":      f.channelID,
				"removed_entries": len(removed),
			}).Warn("Removed entries with excluded meta classes")
		}
	}

	counts := CountElements(doc)
	metrics.CatalogElementsTotal.WithLabelValues("nodes").Add(float64(counts.Nodes))
	metrics.CatalogElementsTotal.WithLabelValues("entries").Add(float64(counts.Entries))
	metrics.CatalogElementsTotal.WithLabelValues("relations").Add(float64(counts.Relations))
	metrics.CatalogElementsTotal.WithLabelValues("associations").Add(float64(counts.Associations))

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"channel_id":        f.channelID,
		"structure_count":   len(structure),
		"node_count":        counts.Nodes,
		"entry_count":       counts.Entries,
		"relation_count":    counts.Relations,
		"association_count": counts.Associations,
		"full":              full,
	}).Info("Created catalog import document")

	return doc, nil
}

// synthesisRun is the state of one CreateImportDocument call
type synthesisRun struct {
	f           *DocumentFactory
	container   *ElementContainer
	occurrences map[int][]models.StructureEntity
	types       map[int]string

	entriesDone   map[int]struct{}
	relationsDone map[int]struct{}
	exportedTypes []string
	typeSeen      map[string]struct{}
}

func newSynthesisRun(f *DocumentFactory, structure []models.StructureEntity) *synthesisRun {
	r := &synthesisRun{
		f:             f,
		container:     NewElementContainer(),
		occurrences:   make(map[int][]models.StructureEntity),
		types:         make(map[int]string),
		entriesDone:   make(map[int]struct{}),
		relationsDone: make(map[int]struct{}),
		typeSeen:      make(map[string]struct{}),
	}

	seen := make(map[string]struct{}, len(structure))
	for _, s := range structure {
		if _, ok := r.types[s.EntityID]; !ok {
			r.types[s.EntityID] = s.Type
		}
		key := strconv.Itoa(s.EntityID) + "|" + s.OccurrenceKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		r.occurrences[s.EntityID] = append(r.occurrences[s.EntityID], s)
	}
	r.types[f.channelID] = models.EntityTypeChannel

	return r
}

func (r *synthesisRun) processBatch(ctx context.Context, batch []models.StructureEntity, number int) {
	ctx, span := tracing.StartSpan(ctx, "catalog.DocumentFactory.processBatch")
	defer span.End()

	r.f.logger.WithContext(ctx).WithFields(map[string]any{
		"channel_id": r.f.channelID,
		"batch":      number,
		"size":       len(batch),
	}).Debug("Processing structure batch")

	for _, s := range batch {
		if s.IsChannelNode() {
			r.processNode(ctx, s)
		}
	}
	for _, s := range batch {
		if models.IsEntryType(s.Type) {
			r.processEntry(ctx, s)
		}
	}
	for _, s := range batch {
		if models.IsEntryType(s.Type) {
			r.processRelations(ctx, s)
		}
	}
}

func (r *synthesisRun) processNode(ctx context.Context, s models.StructureEntity) {
	if s.EntityID == r.f.channelID {
		return
	}

	entity, ok := r.fetch(ctx, s.EntityID, models.LoadLevelDataOnly)
	if !ok {
		return
	}
	r.markExported(entity.EntityTypeID)

	code := r.f.codes.GetEpiCode(entity)
	parentIsChannel := r.isChannel(s.ParentID)

	existing, found := r.container.GetNode(code)
	if !found {
		parentCode := ""
		if !parentIsChannel {
			parentCode, _ = r.f.codes.GetEpiCodeByID(ctx, s.ParentID)
		}
		r.container.AddNode(code, r.f.elements.CreateNodeElement(entity, parentCode, s.SortOrder))

		if parentIsChannel {
			r.moveNodeToRoot(ctx, code)
		}
		return
	}

	if parentIsChannel {
		// the channel attachment wins: the node becomes a root node and its previous parent
		// is kept as a secondary node relation with the previous sort order
		oldParent := childText(existing, "ParentNode")
		if oldParent == "" {
			return
		}
		oldSortOrder, _ := strconv.Atoi(childText(existing, "SortOrder"))
		setChildText(existing, "ParentNode", "")
		setChildText(existing, "SortOrder", strconv.Itoa(s.SortOrder))

		key := RelationKey(RelationKindNode, r.f.codes.GetRelationName(oldParent, code))
		r.container.AddRelation(key, r.f.elements.CreateNodeRelation(oldParent, code, oldSortOrder))
		r.moveNodeToRoot(ctx, code)
		return
	}

	parentCode, ok := r.f.codes.GetEpiCodeByID(ctx, s.ParentID)
	if !ok || parentCode == childText(existing, "ParentNode") {
		return
	}
	key := RelationKey(RelationKindNode, r.f.codes.GetRelationName(parentCode, code))
	r.container.AddRelation(key, r.f.elements.CreateNodeRelation(parentCode, code, s.SortOrder))
}

// moveNodeToRoot asks the commerce side to detach a root node from any parent it had in the
// previously imported catalog. Failures are logged and synthesis continues.
func (r *synthesisRun) moveNodeToRoot(ctx context.Context, code string) {
	if r.f.nodeMover == nil {
		return
	}
	if err := r.f.nodeMover.MoveNodeToRootIfNeeded(ctx, code); err != nil {
		r.f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"node_code": code,
		}).Warn("Failed to move node to root")
	}
}

func (r *synthesisRun) processEntry(ctx context.Context, s models.StructureEntity) {
	if _, done := r.entriesDone[s.EntityID]; done {
		return
	}
	r.entriesDone[s.EntityID] = struct{}{}

	entity, ok := r.fetch(ctx, s.EntityID, models.LoadLevelDataAndLinks)
	if !ok {
		return
	}
	r.addEntityEntries(ctx, entity)
}

// addEntityEntries adds the entries representing an entity: its SKUs when the entity is
// flattened, its own entry otherwise or additionally in three level mode.
func (r *synthesisRun) addEntityEntries(ctx context.Context, entity *models.Entity) {
	r.markExported(entity.EntityTypeID)
	code := r.f.codes.GetEpiCode(entity)

	if r.f.mapping.FlattensToSkus(entity.EntityTypeID) {
		skuEntries, flattened := r.f.elements.GenerateSkuItemElementsFromItem(ctx, entity)
		if flattened {
			for _, entry := range skuEntries {
				r.container.AddEntry(childText(entry, "Code"), entry)
			}
			if !r.f.settings.UseThreeLevels {
				return
			}
		}
	}

	if r.container.HasEntry(code) {
		return
	}
	entry := r.f.elements.InRiverEntityToEpiEntry(entity)
	r.f.elements.AddSpecificationField(ctx, entry, entity)
	r.container.AddEntry(code, entry)
}

func (r *synthesisRun) processRelations(ctx context.Context, s models.StructureEntity) {
	if _, done := r.relationsDone[s.EntityID]; done {
		return
	}
	r.relationsDone[s.EntityID] = struct{}{}

	entity, ok := r.fetch(ctx, s.EntityID, models.LoadLevelDataOnly)
	if !ok {
		return
	}
	skuCodes := r.f.EntityCodes(entity)

	for _, occurrence := range r.occurrences[s.EntityID] {
		linkType, ok := r.f.mapping.GetLinkType(occurrence.LinkTypeIDFromParent)
		if !ok {
			r.skip(ctx, "unknown_link_type", occurrence.EntityID, map[string]any{
				"link_type_id": occurrence.LinkTypeIDFromParent,
				"parent_id":    occurrence.ParentID,
			})
			continue
		}

		if linkType.SourceEntityTypeID == models.EntityTypeChannelNode {
			nodeCode, ok := r.f.codes.GetEpiCodeByID(ctx, occurrence.ParentID)
			if !ok {
				continue
			}
			for _, code := range skuCodes {
				key := RelationKey(RelationKindNodeEntry, r.f.codes.GetRelationName(nodeCode, code))
				r.container.AddRelation(key, r.f.elements.CreateNodeEntryRelation(nodeCode, code, occurrence.SortOrder))
			}
			continue
		}

		if r.f.mapping.IsRelation(linkType) {
			r.addEntryRelations(ctx, occurrence, linkType, skuCodes)
			continue
		}

		if r.f.mapping.IsAssociation(linkType) {
			r.addAssociations(ctx, occurrence, linkType, skuCodes)
		}
	}
}

func (r *synthesisRun) addEntryRelations(ctx context.Context, occurrence models.StructureEntity, linkType models.LinkType, skuCodes []string) {
	parentID := r.parentProduct(occurrence, linkType)
	if parentID == 0 {
		r.skip(ctx, "no_parent_product", occurrence.EntityID, map[string]any{
			"link_type_id": linkType.ID,
			"path":         occurrence.Path,
		})
		return
	}

	parentType := linkType.SourceEntityTypeID
	parentCode, _ := r.f.codes.GetEpiCodeByID(ctx, parentID)
	if parent, err := r.f.source.GetEntity(ctx, parentID, models.LoadLevelDataOnly); err == nil && parent != nil {
		parentType = parent.EntityTypeID
	}

	for _, code := range skuCodes {
		if code == parentCode {
			continue
		}
		key := RelationKey(RelationKindEntry, r.f.codes.GetRelationName(parentCode, code))
		r.container.AddRelation(key, r.f.elements.CreateEntryRelationElement(parentCode, parentType, code, occurrence.SortOrder))
	}
}

func (r *synthesisRun) addAssociations(ctx context.Context, occurrence models.StructureEntity, linkType models.LinkType, skuCodes []string) {
	parent, ok := r.fetch(ctx, occurrence.ParentID, models.LoadLevelDataAndLinks)
	if !ok {
		return
	}
	parentCodes := r.f.EntityCodes(parent)

	if r.f.settings.ForceIncludeLinkedContent {
		for _, parentCode := range parentCodes {
			if !r.container.HasEntry(parentCode) {
				r.addEntityEntries(ctx, parent)
				break
			}
		}
	}

	description := linkType.ID
	if occurrence.LinkEntityID != nil {
		if linkEntity, ok := r.fetch(ctx, *occurrence.LinkEntityID, models.LoadLevelDataOnly); ok && linkEntity.DisplayName != "" {
			description = linkEntity.DisplayName
		}
	}

	for _, parentCode := range parentCodes {
		wrapperKey := linkType.ID + "_" + parentCode
		newWrapper := func() *etree.Element {
			return r.f.elements.CreateCatalogAssociationElement(linkType.ID, description, linkType.Index, parentCode)
		}
		for _, code := range skuCodes {
			if code == parentCode {
				continue
			}
			leafKey := r.f.codes.GetAssociationKey(code, parentCode, linkType.ID)
			r.container.AddAssociation(wrapperKey, newWrapper, leafKey, r.f.elements.CreateAssociationElement(code, occurrence.SortOrder))
		}
	}
}

// parentProduct walks the occurrence's ancestors from nearest to farthest and returns the
// nearest one of the link type's source type. The walk stops at the first channel node;
// without a channel node ancestor there is no parent product in the channel.
func (r *synthesisRun) parentProduct(occurrence models.StructureEntity, linkType models.LinkType) int {
	ids := occurrence.PathIDs()
	if len(ids) > 0 && ids[len(ids)-1] == occurrence.EntityID {
		ids = ids[:len(ids)-1]
	}

	candidate := 0
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if r.types[id] == models.EntityTypeChannelNode {
			return candidate
		}
		if candidate == 0 && r.types[id] == linkType.SourceEntityTypeID {
			candidate = id
		}
	}
	return 0
}

// EntityCodes returns the codes representing an entity in the document: its SKU codes when
// it is flattened (plus its own code in three level mode), otherwise its own code.
func (f *DocumentFactory) EntityCodes(entity *models.Entity) []string {
	code := f.codes.GetEpiCode(entity)
	if !f.mapping.FlattensToSkus(entity.EntityTypeID) {
		return []string{code}
	}

	skuCodes := f.elements.GetSkuCodes(entity)
	if len(skuCodes) == 0 {
		return []string{code}
	}
	if f.settings.UseThreeLevels {
		skuCodes = append(skuCodes, code)
	}
	return skuCodes
}

func (r *synthesisRun) isChannel(id int) bool {
	return id == r.f.channelID || r.types[id] == models.EntityTypeChannel
}

func (r *synthesisRun) markExported(entityTypeID string) {
	if _, ok := r.typeSeen[entityTypeID]; ok {
		return
	}
	r.typeSeen[entityTypeID] = struct{}{}
	r.exportedTypes = append(r.exportedTypes, entityTypeID)
}

func (r *synthesisRun) fetch(ctx context.Context, id int, level models.LoadLevel) (*models.Entity, bool) {
	entity, err := r.f.source.GetEntity(ctx, id, level)
	if err != nil || entity == nil {
		fields := map[string]any{}
		if err != nil {
			fields["error"] = err.Error()
		}
		r.skip(ctx, "fetch_failed", id, fields)
		return nil, false
	}
	return entity, true
}

func (r *synthesisRun) skip(ctx context.Context, reason string, entityID int, fields map[string]any) {
	metrics.SkippedEntitiesTotal.WithLabelValues(reason).Inc()

	fields["entity_id"] = entityID
	fields["reason"] = reason
	r.f.logger.WithContext(ctx).WithFields(fields).Warn("Skipped structure entity")
}

func (f *DocumentFactory) assemble(channel *models.Entity, r *synthesisRun, full bool) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	catalogs := doc.CreateElement("Catalogs")
	catalogs.CreateAttr("version", "1.0")

	if full {
		catalogs.AddChild(f.CreateMetaDataSchemeElement(r.exportedTypes))
		catalogs.AddChild(f.CreateDictionariesElement())
	}

	name, lastModified := "", f.settings.StartDate
	if channel != nil {
		name, lastModified = channel.DisplayName, channel.LastModified
	}

	languages := make([]string, 0, len(f.settings.Languages))
	for _, culture := range f.settings.Cultures() {
		languages = append(languages, f.settings.CommerceLanguage(culture))
	}

	catalog := catalogs.CreateElement("Catalog")
	catalog.CreateAttr("name", name)
	catalog.CreateAttr("lastmodified", lastModified.UTC().Format(DateFormat))
	catalog.CreateAttr("startDate", f.settings.StartDate.UTC().Format(DateFormat))
	catalog.CreateAttr("endDate", f.settings.EndDate.UTC().Format(DateFormat))
	catalog.CreateAttr("defaultCurrency", strings.ToLower(f.settings.DefaultCurrency))
	catalog.CreateAttr("weightBase", f.settings.WeightBase)
	catalog.CreateAttr("defaultLanguage", f.settings.CommerceLanguage(f.settings.DefaultLanguage))
	catalog.CreateAttr("sortOrder", "0")
	catalog.CreateAttr("isActive", "True")
	catalog.CreateAttr("languages", strings.Join(languages, ","))

	sites := catalog.CreateElement("Sites")
	for _, siteID := range f.settings.SiteIDs {
		sites.CreateElement("Site").SetText(siteID)
	}

	addCollection(catalog, "Nodes", r.container.Nodes())
	addCollection(catalog, "Entries", r.container.Entries())
	addCollection(catalog, "Relations", r.container.Relations())
	addCollection(catalog, "Associations", r.container.Associations())

	doc.Indent(2)
	return doc
}

func addCollection(catalog *etree.Element, tag string, elements []*etree.Element) {
	collection := catalog.CreateElement(tag)
	collection.CreateAttr("totalCount", strconv.Itoa(len(elements)))
	for _, el := range elements {
		collection.AddChild(el)
	}
}
