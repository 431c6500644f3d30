package models

import (
	"strconv"
	"strings"
	"time"
)

// Well-known PIM entity type ids
const (
	EntityTypeChannel        = "Channel"
	EntityTypeChannelNode    = "ChannelNode"
	EntityTypeProduct        = "Product"
	EntityTypeItem           = "Item"
	EntityTypeResource       = "Resource"
	EntityTypeSpecification  = "Specification"
	EntityTypeBundle         = "Bundle"
	EntityTypePackage        = "Package"
	EntityTypeDynamicPackage = "DynamicPackage"
)

// PIM field data types
const (
	DataTypeString       = "String"
	DataTypeLocaleString = "LocaleString"
	DataTypeInteger      = "Integer"
	DataTypeDouble       = "Double"
	DataTypeBoolean      = "Boolean"
	DataTypeDateTime     = "DateTime"
	DataTypeCVL          = "CVL"
	DataTypeXML          = "Xml"
	DataTypeFile         = "File"
)

// LoadLevel controls how much of an entity the PIM returns
type LoadLevel string

const (
	LoadLevelShallow      LoadLevel = "Shallow"
	LoadLevelDataOnly     LoadLevel = "DataOnly"
	LoadLevelDataAndLinks LoadLevel = "DataAndLinks"
)

// LocaleString is a localized value keyed by culture name (e.g. "en-US")
type LocaleString map[string]string

// Get returns the value for a culture
func (l LocaleString) Get(culture string) string {
	return l[culture]
}

// FieldType describes one field of an entity type
type FieldType struct {
	ID                     string   `json:"id" yaml:"id"`
	EntityTypeID           string   `json:"entity_type_id" yaml:"entity_type_id"`
	DataType               string   `json:"data_type" yaml:"data_type"`
	CVLID                  string   `json:"cvl_id,omitempty" yaml:"cvl_id,omitempty"`
	Multivalue             bool     `json:"multivalue" yaml:"multivalue"`
	ExcludeFromDefaultView bool     `json:"exclude_from_default_view" yaml:"exclude_from_default_view"`
	FieldSets              []string `json:"field_sets,omitempty" yaml:"field_sets,omitempty"`
}

// EntityType describes a PIM entity type and its field types
type EntityType struct {
	ID         string      `json:"id"`
	FieldTypes []FieldType `json:"field_types"`
}

// Field is one field value on an entity. Data is nil when the field is present but unset.
// Data holds a string, LocaleString, int, float64, bool or time.Time depending on the data type.
type Field struct {
	FieldType FieldType `json:"field_type"`
	Data      any       `json:"data"`
}

// IsEmpty reports whether the field carries no usable value
func (f *Field) IsEmpty() bool {
	if f == nil || f.Data == nil {
		return true
	}
	switch v := f.Data.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case LocaleString:
		return v.IsEmptyLocale()
	case map[string]string:
		return LocaleString(v).IsEmptyLocale()
	}
	return false
}

// IsEmptyLocale reports whether every culture value is blank
func (l LocaleString) IsEmptyLocale() bool {
	for _, s := range l {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// String renders a non-localized value. LocaleString values render the given culture.
func (f *Field) String(culture string) string {
	if f == nil || f.Data == nil {
		return ""
	}
	switch v := f.Data.(type) {
	case string:
		return v
	case LocaleString:
		return v.Get(culture)
	case map[string]string:
		return LocaleString(v).Get(culture)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05")
	}
	return ""
}

// Entity is a PIM entity as returned by the remoting API. Treated as immutable once fetched.
type Entity struct {
	ID            int       `json:"id"`
	EntityTypeID  string    `json:"entity_type_id"`
	FieldSetID    string    `json:"field_set_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	MainPictureID *int      `json:"main_picture_id,omitempty"`
	Created       time.Time `json:"created"`
	LastModified  time.Time `json:"last_modified"`
	Fields        []Field   `json:"fields"`
	OutboundLinks []Link    `json:"outbound_links,omitempty"`
	InboundLinks  []Link    `json:"inbound_links,omitempty"`
}

// GetField returns the field with the given field type id. The bool is false when the
// entity does not carry the field at all, which is distinct from an empty field.
func (e *Entity) GetField(fieldTypeID string) (*Field, bool) {
	if e == nil || fieldTypeID == "" {
		return nil, false
	}
	for i := range e.Fields {
		if e.Fields[i].FieldType.ID == fieldTypeID {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// GetFieldString returns the rendered value of a field or "" when missing
func (e *Entity) GetFieldString(fieldTypeID, culture string) string {
	f, ok := e.GetField(fieldTypeID)
	if !ok {
		return ""
	}
	return f.String(culture)
}

// IsEntryType reports whether the entity type is exported as a commerce entry
func IsEntryType(entityTypeID string) bool {
	switch entityTypeID {
	case "", EntityTypeChannel, EntityTypeChannelNode, EntityTypeResource, EntityTypeSpecification:
		return false
	}
	return true
}

// Normalize converts JSON-decoded data into the Go type implied by the field's data type
func (f *Field) Normalize() {
	f.Data = normalizeValue(f.FieldType.DataType, f.Data)
}

func normalizeValue(dataType string, data any) any {
	switch v := data.(type) {
	case map[string]any:
		ls := make(LocaleString, len(v))
		for culture, value := range v {
			if s, ok := value.(string); ok {
				ls[culture] = s
			}
		}
		return ls
	case float64:
		if dataType == DataTypeInteger {
			return int(v)
		}
	case string:
		if dataType == DataTypeDateTime {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	return data
}
