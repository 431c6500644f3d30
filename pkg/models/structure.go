package models

import (
	"strconv"
	"strings"
)

// StructureEntity is one edge of a channel's structure tree: an entity placed under a
// parent via a link type. The same entity id may appear many times with different parents.
type StructureEntity struct {
	EntityID             int    `json:"entity_id"`
	ParentID             int    `json:"parent_id"`
	LinkTypeIDFromParent string `json:"link_type_id_from_parent"`
	Type                 string `json:"type"`
	Path                 string `json:"path"`
	SortOrder            int    `json:"sort_order"`
	LinkEntityID         *int   `json:"link_entity_id,omitempty"`
	ChannelID            int    `json:"channel_id"`
}

// PathIDs returns the ancestor chain encoded in Path, ending with EntityID
func (s StructureEntity) PathIDs() []int {
	parts := strings.Split(strings.Trim(s.Path, "/"), "/")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// OccurrenceKey identifies one placement of an entity in the tree
func (s StructureEntity) OccurrenceKey() string {
	linkEntity := ""
	if s.LinkEntityID != nil {
		linkEntity = strconv.Itoa(*s.LinkEntityID)
	}
	return strconv.Itoa(s.ParentID) + "|" + s.LinkTypeIDFromParent + "|" + linkEntity
}

// IsChannelNode reports whether the structure entity is a channel node
func (s StructureEntity) IsChannelNode() bool {
	return s.Type == EntityTypeChannelNode
}

// IsChannel reports whether the structure entity is the channel root
func (s StructureEntity) IsChannel() bool {
	return s.Type == EntityTypeChannel
}
