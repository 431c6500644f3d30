package catalog

import (
	"sort"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Commerce entry types
const (
	EntryTypeProduct        = "Product"
	EntryTypeVariation      = "Variation"
	EntryTypeBundle         = "Bundle"
	EntryTypePackage        = "Package"
	EntryTypeDynamicPackage = "DynamicPackage"
)

// Commerce entry relation types
const (
	RelationTypeProductVariation = "ProductVariation"
	RelationTypeBundleEntry      = "BundleEntry"
	RelationTypePackageEntry     = "PackageEntry"
)

// MappingHelper classifies link types and entity types for one export run. The link type
// metadata is a snapshot taken when the run starts.
type MappingHelper struct {
	settings  models.ExportSettings
	linkTypes map[string]models.LinkType

	// firstProductItemLinkType is the Product->Item link type with the lowest index, or ""
	// when the snapshot has none
	firstProductItemLinkType string
}

// NewMappingHelper creates a mapping helper over a link type snapshot
func NewMappingHelper(settings models.ExportSettings, linkTypes []models.LinkType) *MappingHelper {
	h := &MappingHelper{
		settings:  settings,
		linkTypes: make(map[string]models.LinkType, len(linkTypes)),
	}
	for _, lt := range linkTypes {
		h.linkTypes[lt.ID] = lt
	}

	productItem := ectolinq.Filter(linkTypes, func(lt models.LinkType) bool {
		return lt.SourceEntityTypeID == models.EntityTypeProduct && lt.TargetEntityTypeID == models.EntityTypeItem
	})
	sort.SliceStable(productItem, func(i, j int) bool {
		return productItem[i].Index < productItem[j].Index
	})
	if len(productItem) > 0 {
		h.firstProductItemLinkType = productItem[0].ID
	}

	return h
}

// GetLinkType looks up a link type by id
func (h *MappingHelper) GetLinkType(linkTypeID string) (models.LinkType, bool) {
	lt, ok := h.linkTypes[linkTypeID]
	return lt, ok
}

// FirstProductItemLinkType returns the canonical Product->Item link type id
func (h *MappingHelper) FirstProductItemLinkType() (string, bool) {
	return h.firstProductItemLinkType, h.firstProductItemLinkType != ""
}

// IsRelation reports whether the link type is a hierarchical composition rather than an
// association. Rules are evaluated in order and anything unmatched is an association.
func (h *MappingHelper) IsRelation(linkType models.LinkType) bool {
	source, target := linkType.SourceEntityTypeID, linkType.TargetEntityTypeID

	if source == models.EntityTypeItem && target == models.EntityTypeItem {
		return false
	}

	if h.isContainerType(source) && !h.isContainerType(target) {
		return true
	}

	if source == models.EntityTypeProduct && target == models.EntityTypeItem {
		first, ok := h.FirstProductItemLinkType()
		return ok && linkType.ID == first
	}

	return false
}

// IsAssociation reports whether a non-relation link type is exported as an association.
// With no configured association link types every link between two entry types qualifies.
func (h *MappingHelper) IsAssociation(linkType models.LinkType) bool {
	if h.IsRelation(linkType) || h.IsChannelNodeLink(linkType.ID) {
		return false
	}
	if len(h.settings.AssociationLinkTypes) > 0 {
		return ectolinq.Contains(h.settings.AssociationLinkTypes, linkType.ID)
	}
	return models.IsEntryType(linkType.SourceEntityTypeID) && models.IsEntryType(linkType.TargetEntityTypeID)
}

// IsChannelNodeLink reports whether the link type attaches something below a channel node,
// or a channel node directly below the channel.
func (h *MappingHelper) IsChannelNodeLink(linkTypeID string) bool {
	lt, ok := h.linkTypes[linkTypeID]
	if !ok {
		return false
	}
	if lt.SourceEntityTypeID == models.EntityTypeChannelNode {
		return true
	}
	return lt.SourceEntityTypeID == models.EntityTypeChannel && lt.TargetEntityTypeID == models.EntityTypeChannelNode
}

// GetEntryType maps a PIM entity type to the commerce entry type
func (h *MappingHelper) GetEntryType(entityTypeID string) string {
	switch {
	case entityTypeID == models.EntityTypeItem:
		if h.settings.UseThreeLevels {
			return EntryTypeProduct
		}
		return EntryTypeVariation
	case ectolinq.Contains(h.settings.BundleEntityTypes, entityTypeID):
		return EntryTypeBundle
	case ectolinq.Contains(h.settings.PackageEntityTypes, entityTypeID):
		return EntryTypePackage
	case ectolinq.Contains(h.settings.DynamicPackageEntityTypes, entityTypeID):
		return EntryTypeDynamicPackage
	}
	return EntryTypeProduct
}

// GetRelationType returns the entry relation type implied by the parent's entry type
func (h *MappingHelper) GetRelationType(parentEntityTypeID string) string {
	switch h.GetEntryType(parentEntityTypeID) {
	case EntryTypeBundle:
		return RelationTypeBundleEntry
	case EntryTypePackage, EntryTypeDynamicPackage:
		return RelationTypePackageEntry
	}
	return RelationTypeProductVariation
}

// FlattensToSkus reports whether items of the entity type are replaced by their SKUs
func (h *MappingHelper) FlattensToSkus(entityTypeID string) bool {
	return h.settings.ItemsToSkus && entityTypeID == models.EntityTypeItem
}

func (h *MappingHelper) isContainerType(entityTypeID string) bool {
	return ectolinq.Contains(h.settings.BundleEntityTypes, entityTypeID) ||
		ectolinq.Contains(h.settings.PackageEntityTypes, entityTypeID) ||
		ectolinq.Contains(h.settings.DynamicPackageEntityTypes, entityTypeID)
}
