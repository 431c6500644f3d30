package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ErrNoSkuData is returned when an item carries no SKU fragment
var ErrNoSkuData = errors.New("item has no sku data")

// SkuField is one extra value carried by a SKU
type SkuField struct {
	Name  string
	Value string
}

// Sku is one variant described by an item's embedded SKU fragment
type Sku struct {
	ID     string
	Name   string
	Fields []SkuField
}

// ParseSkuData parses a SKU fragment of the form
//
//	<SKUs><SKU id="1001"><Name>Red</Name><Color>Red</Color></SKU></SKUs>
//
// SKUs without an id are dropped. The id may also be given as an <Id> child.
func ParseSkuData(data string) ([]Sku, error) {
	if strings.TrimSpace(data) == "" {
		return nil, ErrNoSkuData
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(data); err != nil {
		return nil, fmt.Errorf("failed to parse sku data: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("failed to parse sku data: no root element")
	}

	skus := make([]Sku, 0, len(root.ChildElements()))
	for _, el := range root.ChildElements() {
		id := strings.TrimSpace(el.SelectAttrValue("id", ""))
		if id == "" {
			id = strings.TrimSpace(childText(el, "Id"))
		}
		if id == "" {
			continue
		}

		sku := Sku{ID: id}
		for _, child := range el.ChildElements() {
			switch child.Tag {
			case "Id":
			case "Name":
				sku.Name = strings.TrimSpace(child.Text())
			default:
				sku.Fields = append(sku.Fields, SkuField{Name: child.Tag, Value: strings.TrimSpace(child.Text())})
			}
		}
		skus = append(skus, sku)
	}

	return skus, nil
}

// GetSkus returns the SKUs embedded in an item. An error means the item is exported as a
// single entry instead.
func (f *ElementFactory) GetSkus(item *models.Entity) ([]Sku, error) {
	field, ok := item.GetField(f.settings.FieldRoles.SKUData)
	if !ok || field.IsEmpty() {
		return nil, ErrNoSkuData
	}

	skus, err := ParseSkuData(field.String(f.settings.DefaultLanguage))
	if err != nil {
		return nil, err
	}
	if len(skus) == 0 {
		return nil, ErrNoSkuData
	}
	return skus, nil
}

// GetSkuCodes returns the codes of the SKUs embedded in an item, or nil when the item has
// no usable SKU fragment.
func (f *ElementFactory) GetSkuCodes(item *models.Entity) []string {
	skus, err := f.GetSkus(item)
	if err != nil {
		return nil
	}
	codes := make([]string, 0, len(skus))
	for _, sku := range skus {
		codes = append(codes, f.codes.GetSkuCode(sku.ID))
	}
	return codes
}

// GenerateSkuItemElementsFromItem flattens an item into one Variation entry per SKU, each a
// copy of the item's entry with the SKU's code, name and fields laid over it. When the SKU
// fragment is missing or unparsable the item's own entry is returned and flattened is false.
func (f *ElementFactory) GenerateSkuItemElementsFromItem(ctx context.Context, item *models.Entity) (entries []*etree.Element, flattened bool) {
	template := f.InRiverEntityToEpiEntry(item)

	skus, err := f.GetSkus(item)
	if err != nil {
		if !errors.Is(err, ErrNoSkuData) {
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"entity_id": item.ID,
			}).Warn("Failed to read sku data, exporting item as a single entry")
		}
		return []*etree.Element{template}, false
	}

	entries = make([]*etree.Element, 0, len(skus))
	for _, sku := range skus {
		code := f.codes.GetSkuCode(sku.ID)
		name := sku.Name
		if name == "" {
			name = item.DisplayName
		}

		entry := template.Copy()
		setChildText(entry, "Name", name)
		setChildText(entry, "Code", code)
		setChildText(entry, "EntryType", EntryTypeVariation)
		setChildText(entry, "Guid", SkuGUID(f.channelID, code).String())

		if metaFields := entry.FindElement("MetaData/MetaFields"); metaFields != nil {
			for _, skuField := range sku.Fields {
				f.overlaySkuField(metaFields, skuField)
			}
		}

		for _, seo := range entry.FindElements("SeoInfo/Seo") {
			uri := Slugify(name + "-" + code)
			setChildText(seo, "Uri", uri)
			setChildText(seo, "UriSegment", uri)
		}

		entries = append(entries, entry)
	}

	return entries, true
}

func (f *ElementFactory) overlaySkuField(metaFields *etree.Element, skuField SkuField) {
	for _, existing := range metaFields.SelectElements("MetaField") {
		if childText(existing, "Name") != skuField.Name {
			continue
		}
		for _, data := range existing.SelectElements("Data") {
			data.CreateAttr("value", skuField.Value)
		}
		return
	}

	metaField := metaFields.CreateElement("MetaField")
	metaField.CreateElement("Name").SetText(skuField.Name)
	metaField.CreateElement("Type").SetText("LongString")
	addData(metaField, f.settings.CommerceLanguage(f.settings.DefaultLanguage), skuField.Value)
}
