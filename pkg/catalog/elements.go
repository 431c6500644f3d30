package catalog

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/beevik/etree"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	// DateFormat is the commerce import date format
	DateFormat = "2006-01-02 15:04:05Z"

	// SpecificationFieldName is the meta field carrying rendered specification HTML
	SpecificationFieldName = "SpecificationField"
)

// CVLResolver resolves controlled vocabulary keys to their values
type CVLResolver interface {
	GetCVLValue(cvlID, key string) (*models.CVLValue, bool)
}

// ElementFactory builds individual catalog elements from one entity or edge at a time.
// It never deduplicates; that is the container's job.
type ElementFactory struct {
	settings  models.ExportSettings
	channelID int
	codes     *CodeGenerator
	mapping   *MappingHelper
	source    EntitySource
	cvls      CVLResolver
	logger    ectologger.Logger
}

// NewElementFactory creates an element factory for one export run
func NewElementFactory(settings models.ExportSettings, channelID int, codes *CodeGenerator, mapping *MappingHelper, source EntitySource, cvls CVLResolver, logger ectologger.Logger) *ElementFactory {
	return &ElementFactory{
		settings:  settings,
		channelID: channelID,
		codes:     codes,
		mapping:   mapping,
		source:    source,
		cvls:      cvls,
		logger:    logger,
	}
}

// MetaClassName returns the commerce meta class of an entity type
func MetaClassName(entityTypeID string) string {
	return entityTypeID + "MetaClass"
}

// CreateNodeElement builds a Node. parentCode is empty for nodes directly below the channel.
func (f *ElementFactory) CreateNodeElement(entity *models.Entity, parentCode string, sortOrder int) *etree.Element {
	code := f.codes.GetEpiCode(entity)

	node := etree.NewElement("Node")
	node.CreateElement("Name").SetText(entity.DisplayName)
	node.CreateElement("StartDate").SetText(f.settings.StartDate.UTC().Format(DateFormat))
	node.CreateElement("EndDate").SetText(f.settings.EndDate.UTC().Format(DateFormat))
	node.CreateElement("IsActive").SetText("True")
	node.CreateElement("SortOrder").SetText(strconv.Itoa(sortOrder))
	node.CreateElement("DisplayTemplate")
	node.CreateElement("Code").SetText(code)
	node.CreateElement("Guid").SetText(ChannelEntityGUID(f.channelID, entity.ID).String())
	node.AddChild(f.CreateMetaDataElement(entity))
	node.CreateElement("ParentNode").SetText(parentCode)
	node.AddChild(f.CreateSeoInfoElement(entity, code))

	return node
}

// InRiverEntityToEpiEntry builds an Entry for an entity
func (f *ElementFactory) InRiverEntityToEpiEntry(entity *models.Entity) *etree.Element {
	code := f.codes.GetEpiCode(entity)

	entry := etree.NewElement("Entry")
	entry.CreateElement("Name").SetText(entity.DisplayName)
	entry.CreateElement("StartDate").SetText(f.settings.StartDate.UTC().Format(DateFormat))
	entry.CreateElement("EndDate").SetText(f.settings.EndDate.UTC().Format(DateFormat))
	entry.CreateElement("IsActive").SetText("True")
	entry.CreateElement("DisplayTemplate")
	entry.CreateElement("Code").SetText(code)
	entry.CreateElement("EntryType").SetText(f.mapping.GetEntryType(entity.EntityTypeID))
	entry.CreateElement("Guid").SetText(ChannelEntityGUID(f.channelID, entity.ID).String())
	entry.AddChild(f.CreateMetaDataElement(entity))
	entry.AddChild(f.CreateSeoInfoElement(entity, code))

	return entry
}

// AddSpecificationField renders the entity's linked specification per language and adds it
// as a meta field. Returns false when the entity has no specification link.
func (f *ElementFactory) AddSpecificationField(ctx context.Context, entry *etree.Element, entity *models.Entity) bool {
	link := ectolinq.Find(entity.OutboundLinks, func(l models.Link) bool {
		return l.TargetTypeID == models.EntityTypeSpecification && !l.Inactive
	})
	if link.TargetID == 0 {
		return false
	}

	metaFields := entry.FindElement("MetaData/MetaFields")
	if metaFields == nil {
		return false
	}

	field := etree.NewElement("MetaField")
	field.CreateElement("Name").SetText(SpecificationFieldName)
	field.CreateElement("Type").SetText("LongHtmlString")
	for _, culture := range f.settings.Cultures() {
		html, err := f.source.GetSpecificationAsHTML(ctx, link.TargetID, entity.ID, culture)
		if err != nil {
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"entity_id":        entity.ID,
				"specification_id": link.TargetID,
				"culture":          culture,
			}).Warn("Failed to render specification")
			continue
		}
		addData(field, f.settings.CommerceLanguage(culture), html)
	}
	metaFields.AddChild(field)

	return true
}

// CreateMetaDataElement builds the MetaData block: the meta class and every visible field
func (f *ElementFactory) CreateMetaDataElement(entity *models.Entity) *etree.Element {
	metaData := etree.NewElement("MetaData")
	metaClass := metaData.CreateElement("MetaClass")
	metaClass.CreateElement("Name").SetText(MetaClassName(entity.EntityTypeID))

	metaFields := metaData.CreateElement("MetaFields")
	for i := range entity.Fields {
		field := &entity.Fields[i]
		if !f.IsFieldVisible(entity, field) {
			continue
		}
		metaFields.AddChild(f.CreateMetaFieldElement(field))
	}

	return metaData
}

// CreateMetaFieldElement serializes one field. Localized fields carry one Data per language.
func (f *ElementFactory) CreateMetaFieldElement(field *models.Field) *etree.Element {
	metaField := etree.NewElement("MetaField")
	metaField.CreateElement("Name").SetText(field.FieldType.ID)
	metaField.CreateElement("Type").SetText(EpiFieldType(field.FieldType))

	if isLocalized(field.FieldType) {
		for _, culture := range f.settings.Cultures() {
			addData(metaField, f.settings.CommerceLanguage(culture), f.FieldValue(field, culture))
		}
		return metaField
	}

	culture := f.settings.DefaultLanguage
	addData(metaField, f.settings.CommerceLanguage(culture), f.FieldValue(field, culture))
	return metaField
}

// FieldValue renders a field for a culture, resolving CVL keys to their values
func (f *ElementFactory) FieldValue(field *models.Field, culture string) string {
	if field.IsEmpty() {
		return ""
	}
	if field.FieldType.DataType != models.DataTypeCVL || f.cvls == nil {
		return field.String(culture)
	}

	keys := strings.Split(field.String(culture), ";")
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cvlValue, ok := f.cvls.GetCVLValue(field.FieldType.CVLID, key)
		if !ok {
			values = append(values, key)
			continue
		}
		values = append(values, cvlValueString(cvlValue.Value, culture))
	}
	return strings.Join(values, ";")
}

// IsFieldVisible applies the field visibility rule: a field is skipped when it is globally
// excluded, or when it is hidden from the default view and scoped to field sets other than
// the entity's own.
func (f *ElementFactory) IsFieldVisible(entity *models.Entity, field *models.Field) bool {
	if f.SkipField(field.FieldType.ID) {
		return false
	}
	if !field.FieldType.ExcludeFromDefaultView {
		return true
	}
	if len(field.FieldType.FieldSets) == 0 {
		return true
	}
	return ectolinq.Contains(field.FieldType.FieldSets, entity.FieldSetID)
}

// SkipField reports whether a field type is never exported as meta data
func (f *ElementFactory) SkipField(fieldTypeID string) bool {
	if fieldTypeID == "" {
		return true
	}
	if roles := f.settings.FieldRoles; roles.SKUData != "" && fieldTypeID == roles.SKUData {
		return true
	}
	return ectolinq.Contains(f.settings.ExcludedFields, fieldTypeID)
}

// CreateSeoInfoElement builds one Seo block per configured language
func (f *ElementFactory) CreateSeoInfoElement(entity *models.Entity, code string) *etree.Element {
	seoInfo := etree.NewElement("SeoInfo")
	roles := f.settings.FieldRoles

	for _, culture := range f.settings.Cultures() {
		uri := f.roleValue(entity, roles.SEOURI, culture)
		if uri == "" {
			uri = Slugify(entity.DisplayName + "-" + code)
		}

		seo := seoInfo.CreateElement("Seo")
		seo.CreateElement("LanguageCode").SetText(f.settings.CommerceLanguage(culture))
		seo.CreateElement("Uri").SetText(uri)
		seo.CreateElement("Title").SetText(f.roleValue(entity, roles.SEOTitle, culture))
		seo.CreateElement("Description").SetText(f.roleValue(entity, roles.SEODescription, culture))
		seo.CreateElement("Keywords").SetText(f.roleValue(entity, roles.SEOKeywords, culture))
		seo.CreateElement("UriSegment").SetText(Slugify(uri))
	}

	return seoInfo
}

// CreateNodeRelation links a child node below an additional parent node
func (f *ElementFactory) CreateNodeRelation(parentCode, childCode string, sortOrder int) *etree.Element {
	relation := etree.NewElement("NodeRelation")
	relation.CreateElement("ChildNodeCode").SetText(childCode)
	relation.CreateElement("ParentNodeCode").SetText(parentCode)
	relation.CreateElement("SortOrder").SetText(strconv.Itoa(sortOrder))
	return relation
}

// CreateNodeEntryRelation places an entry below a node
func (f *ElementFactory) CreateNodeEntryRelation(nodeCode, entryCode string, sortOrder int) *etree.Element {
	relation := etree.NewElement("NodeEntryRelation")
	relation.CreateElement("EntryCode").SetText(entryCode)
	relation.CreateElement("NodeCode").SetText(nodeCode)
	relation.CreateElement("SortOrder").SetText(strconv.Itoa(sortOrder))
	return relation
}

// CreateEntryRelationElement composes a child entry into its parent. The relation type
// follows the parent's entry type.
func (f *ElementFactory) CreateEntryRelationElement(parentCode, parentEntityTypeID, childCode string, sortOrder int) *etree.Element {
	relation := etree.NewElement("EntryRelation")
	relation.CreateElement("ParentEntryCode").SetText(parentCode)
	relation.CreateElement("ChildEntryCode").SetText(childCode)
	relation.CreateElement("RelationType").SetText(f.mapping.GetRelationType(parentEntityTypeID))
	relation.CreateElement("Quantity").SetText("0")
	relation.CreateElement("GroupName").SetText("default")
	relation.CreateElement("SortOrder").SetText(strconv.Itoa(sortOrder))
	return relation
}

// CreateCatalogAssociationElement builds the association wrapper owned by entryCode
func (f *ElementFactory) CreateCatalogAssociationElement(name, description string, sortOrder int, entryCode string) *etree.Element {
	association := etree.NewElement("CatalogAssociation")
	association.CreateElement("Name").SetText(name)
	association.CreateElement("Description").SetText(description)
	association.CreateElement("SortOrder").SetText(strconv.Itoa(sortOrder))
	association.CreateElement("EntryCode").SetText(entryCode)
	return association
}

// CreateAssociationElement builds one association target
func (f *ElementFactory) CreateAssociationElement(entryCode string, sortOrder int) *etree.Element {
	association := etree.NewElement("Association")
	association.CreateElement("EntryCode").SetText(entryCode)
	association.CreateElement("SortOrder").SetText(strconv.Itoa(sortOrder))
	association.CreateElement("Type").SetText(f.settings.AssociationType)
	return association
}

func (f *ElementFactory) roleValue(entity *models.Entity, fieldTypeID, culture string) string {
	field, ok := entity.GetField(fieldTypeID)
	if !ok {
		return ""
	}
	return strings.TrimSpace(f.FieldValue(field, culture))
}

// EpiFieldType maps a PIM data type to the commerce meta field type
func EpiFieldType(fieldType models.FieldType) string {
	switch fieldType.DataType {
	case models.DataTypeInteger:
		return "Integer"
	case models.DataTypeDouble:
		return "Float"
	case models.DataTypeBoolean:
		return "Boolean"
	case models.DataTypeDateTime:
		return "DateTime"
	case models.DataTypeXML:
		return "LongHtmlString"
	}
	return "LongString"
}

func isLocalized(fieldType models.FieldType) bool {
	return fieldType.DataType == models.DataTypeLocaleString || fieldType.DataType == models.DataTypeCVL
}

func cvlValueString(value any, culture string) string {
	switch v := value.(type) {
	case string:
		return v
	case models.LocaleString:
		return v.Get(culture)
	case map[string]string:
		return v[culture]
	}
	return ""
}

func addData(metaField *etree.Element, language, value string) {
	data := metaField.CreateElement("Data")
	data.CreateAttr("language", language)
	data.CreateAttr("value", value)
}

// setChildText replaces the text of a direct child, creating it when missing
func setChildText(parent *etree.Element, tag, text string) {
	child := parent.SelectElement(tag)
	if child == nil {
		child = parent.CreateElement(tag)
	}
	child.SetText(text)
}

// childText returns the text of a direct child or ""
func childText(parent *etree.Element, tag string) string {
	if parent == nil {
		return ""
	}
	child := parent.SelectElement(tag)
	if child == nil {
		return ""
	}
	return child.Text()
}

// Slugify lowercases s and collapses every run of characters that are neither letters nor
// digits to one dash. Non-ASCII letters are kept.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
