package models

// LinkType is PIM metadata describing an allowed link between two entity types
type LinkType struct {
	ID                 string `json:"id"`
	SourceEntityTypeID string `json:"source_entity_type_id"`
	TargetEntityTypeID string `json:"target_entity_type_id"`
	LinkEntityTypeID   string `json:"link_entity_type_id,omitempty"`
	Index              int    `json:"index"`
}

// Link is a concrete link between two entities
type Link struct {
	ID           int    `json:"id"`
	LinkTypeID   string `json:"link_type_id"`
	SourceID     int    `json:"source_id"`
	TargetID     int    `json:"target_id"`
	SourceTypeID string `json:"source_type_id"`
	TargetTypeID string `json:"target_type_id"`
	LinkEntityID *int   `json:"link_entity_id,omitempty"`
	Index        int    `json:"index"`
	Inactive     bool   `json:"inactive"`
}

// CVLValue is one value of a controlled vocabulary list. Value is a string or a LocaleString.
type CVLValue struct {
	CVLID string `json:"cvl_id"`
	Key   string `json:"key"`
	Value any    `json:"value"`
	Index int    `json:"index"`
}

// Normalize converts a JSON-decoded localized value into a LocaleString
func (v *CVLValue) Normalize() {
	v.Value = normalizeValue(DataTypeLocaleString, v.Value)
}
