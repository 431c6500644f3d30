package models

import (
	"sort"
	"time"
)

// FieldRoles maps logical field roles to the PIM field type ids that carry them
type FieldRoles struct {
	SKUData          string `yaml:"sku_data"`
	SEOURI           string `yaml:"seo_uri"`
	SEOTitle         string `yaml:"seo_title"`
	SEODescription   string `yaml:"seo_description"`
	SEOKeywords      string `yaml:"seo_keywords"`
	ResourceFileID   string `yaml:"resource_file_id"`
	ResourceFilename string `yaml:"resource_filename" validate:"required"`
	ResourceMimeType string `yaml:"resource_mime_type"`
}

// ExportSettings drives catalog synthesis for one channel configuration
type ExportSettings struct {
	ChannelPrefix             string            `yaml:"channel_prefix"`
	Languages                 map[string]string `yaml:"languages" validate:"required,min=1"`
	DefaultLanguage           string            `yaml:"default_language" validate:"required"`
	DefaultCurrency           string            `yaml:"default_currency" validate:"required,len=3"`
	WeightBase                string            `yaml:"weight_base" validate:"required"`
	StartDate                 time.Time         `yaml:"start_date"`
	EndDate                   time.Time         `yaml:"end_date"`
	SiteIDs                   []string          `yaml:"site_ids"`
	EntityCodeFields          map[string]string `yaml:"entity_code_fields"`
	ItemsToSkus               bool              `yaml:"items_to_skus"`
	UseThreeLevels            bool              `yaml:"use_three_levels"`
	ExcludedFields            []string          `yaml:"excluded_fields"`
	FieldRoles                FieldRoles        `yaml:"field_roles"`
	AssociationLinkTypes      []string          `yaml:"association_link_types"`
	BundleEntityTypes         []string          `yaml:"bundle_entity_types"`
	PackageEntityTypes        []string          `yaml:"package_entity_types"`
	DynamicPackageEntityTypes []string          `yaml:"dynamic_package_entity_types"`
	ForceIncludeLinkedContent bool              `yaml:"force_include_linked_content"`
	BatchSize                 int               `yaml:"batch_size" validate:"gte=0"`
	ExcludedMetaClasses       []string          `yaml:"excluded_meta_classes"`
	ResourceConfigurations    []string          `yaml:"resource_configurations"`
	ImageExtensions           []string          `yaml:"image_extensions"`
	AssociationType           string            `yaml:"association_type"`
}

// DefaultBatchSize bounds how many structure entities are synthesized per batch
const DefaultBatchSize = 500

// DefaultExportSettings returns settings with every optional value filled in
func DefaultExportSettings() ExportSettings {
	return ExportSettings{
		Languages:       map[string]string{"en-US": "en"},
		DefaultLanguage: "en-US",
		DefaultCurrency: "USD",
		WeightBase:      "kgs",
		StartDate:       time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC),
		FieldRoles: FieldRoles{
			SKUData:          "SKUs",
			ResourceFileID:   "ResourceFileId",
			ResourceFilename: "ResourceFilename",
			ResourceMimeType: "ResourceMimeType",
		},
		BundleEntityTypes:         []string{EntityTypeBundle},
		PackageEntityTypes:        []string{EntityTypePackage},
		DynamicPackageEntityTypes: []string{EntityTypeDynamicPackage},
		BatchSize:                 DefaultBatchSize,
		ResourceConfigurations:    []string{"Original"},
		ImageExtensions:           []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp"},
		AssociationType:           "Default",
	}
}

// EffectiveBatchSize returns the configured batch size or the default
func (s ExportSettings) EffectiveBatchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// CommerceLanguage maps a PIM culture to the commerce language code
func (s ExportSettings) CommerceLanguage(culture string) string {
	if lang, ok := s.Languages[culture]; ok && lang != "" {
		return lang
	}
	return culture
}

// Cultures returns the configured PIM cultures in a stable order
func (s ExportSettings) Cultures() []string {
	cultures := make([]string, 0, len(s.Languages))
	for culture := range s.Languages {
		cultures = append(cultures, culture)
	}
	sort.Strings(cultures)
	return cultures
}
