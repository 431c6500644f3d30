package catalog

import (
	"strings"

	"github.com/beevik/etree"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Ramsey-B/fern/pkg/models"
)

const metaNamespace = "Mediachase.Commerce.Catalog"

// CreateMetaDataSchemeElement describes one meta class per exported entity type and one
// meta field per exported field type. Field types shared by several classes are listed once
// with every owner class.
func (f *DocumentFactory) CreateMetaDataSchemeElement(exportedTypes []string) *etree.Element {
	scheme := etree.NewElement("MetaDataScheme")

	byID := make(map[string]models.EntityType, len(f.entityTypes))
	for _, et := range f.entityTypes {
		byID[et.ID] = et
	}

	type fieldOwners struct {
		fieldType models.FieldType
		owners    []string
	}
	fields := orderedmap.New[string, *fieldOwners]()

	for _, entityTypeID := range exportedTypes {
		scheme.AddChild(f.createMetaClassElement(entityTypeID))
		className := MetaClassName(entityTypeID)

		for _, ft := range byID[entityTypeID].FieldTypes {
			if f.elements.SkipField(ft.ID) {
				continue
			}
			existing, ok := fields.Get(ft.ID)
			if !ok {
				existing = &fieldOwners{fieldType: ft}
				fields.Set(ft.ID, existing)
			}
			existing.owners = append(existing.owners, className)
		}

		if models.IsEntryType(entityTypeID) {
			spec, ok := fields.Get(SpecificationFieldName)
			if !ok {
				spec = &fieldOwners{fieldType: models.FieldType{ID: SpecificationFieldName, DataType: models.DataTypeXML}}
				fields.Set(SpecificationFieldName, spec)
			}
			spec.owners = append(spec.owners, className)
		}
	}

	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		scheme.AddChild(createMetaFieldDefinition(pair.Value.fieldType, pair.Value.owners))
	}

	return scheme
}

func (f *DocumentFactory) createMetaClassElement(entityTypeID string) *etree.Element {
	parentClass := "CatalogEntry"
	if entityTypeID == models.EntityTypeChannelNode {
		parentClass = "CatalogNode"
	}
	name := MetaClassName(entityTypeID)

	metaClass := etree.NewElement("MetaClass")
	metaClass.CreateElement("Namespace").SetText(metaNamespace + ".User")
	metaClass.CreateElement("Name").SetText(name)
	metaClass.CreateElement("FriendlyName").SetText(entityTypeID)
	metaClass.CreateElement("MetaClassType").SetText("User")
	metaClass.CreateElement("ParentClass").SetText(parentClass)
	metaClass.CreateElement("TableName").SetText(parentClass + "Ex_" + name)
	metaClass.CreateElement("Description").SetText("From inRiver")
	metaClass.CreateElement("IsSystem").SetText("False")
	metaClass.CreateElement("IsAbstract").SetText("False")
	metaClass.CreateElement("FieldListChangedSqlScript")
	metaClass.CreateElement("Tag")
	metaClass.CreateElement("Attributes")
	return metaClass
}

func createMetaFieldDefinition(fieldType models.FieldType, owners []string) *etree.Element {
	metaField := etree.NewElement("MetaField")
	metaField.CreateElement("Namespace").SetText(metaNamespace)
	metaField.CreateElement("Name").SetText(fieldType.ID)
	metaField.CreateElement("FriendlyName").SetText(fieldType.ID)
	metaField.CreateElement("Description").SetText("From inRiver")
	metaField.CreateElement("DataType").SetText(EpiFieldType(fieldType))
	metaField.CreateElement("Length").SetText(fieldLength(fieldType))
	metaField.CreateElement("AllowNulls").SetText("True")
	metaField.CreateElement("MultiLanguageValue").SetText(boolText(isLocalized(fieldType)))
	metaField.CreateElement("AllowSearch").SetText("True")
	metaField.CreateElement("IsEncrypted").SetText("False")
	metaField.CreateElement("IsSystem").SetText("False")
	for _, owner := range owners {
		metaField.CreateElement("OwnerMetaClass").SetText(owner)
	}
	return metaField
}

// CreateDictionariesElement lists the catalog's currencies
func (f *DocumentFactory) CreateDictionariesElement() *etree.Element {
	dictionaries := etree.NewElement("Dictionaries")
	currencies := dictionaries.CreateElement("Currencies")
	currency := currencies.CreateElement("Currency")
	currency.CreateElement("Code").SetText(strings.ToUpper(f.settings.DefaultCurrency))
	currency.CreateElement("Name").SetText(strings.ToUpper(f.settings.DefaultCurrency))
	return dictionaries
}

func fieldLength(fieldType models.FieldType) string {
	switch EpiFieldType(fieldType) {
	case "Integer", "Boolean":
		return "4"
	case "Float", "DateTime":
		return "8"
	}
	return "2147483647"
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
