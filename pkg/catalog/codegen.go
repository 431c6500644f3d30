package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EntitySource is the read side of the PIM used during synthesis
type EntitySource interface {
	GetEntity(ctx context.Context, id int, level models.LoadLevel) (*models.Entity, error)
	GetSpecificationAsHTML(ctx context.Context, specID, entityID int, culture string) (string, error)
}

// CodeGenerator produces the commerce code of entities and SKUs. Every code carries the
// channel prefix so several channels can share one commerce catalog.
type CodeGenerator struct {
	settings models.ExportSettings
	source   EntitySource
	logger   ectologger.Logger
}

// NewCodeGenerator creates a code generator for one export run
func NewCodeGenerator(settings models.ExportSettings, source EntitySource, logger ectologger.Logger) *CodeGenerator {
	return &CodeGenerator{
		settings: settings,
		source:   source,
		logger:   logger,
	}
}

// GetEpiCode returns the code of an entity: the mapped code field when it has a value,
// otherwise the entity id.
func (g *CodeGenerator) GetEpiCode(entity *models.Entity) string {
	if entity == nil {
		return ""
	}

	if fieldTypeID, ok := g.settings.EntityCodeFields[entity.EntityTypeID]; ok {
		if field, found := entity.GetField(fieldTypeID); found && !field.IsEmpty() {
			return g.settings.ChannelPrefix + strings.TrimSpace(field.String(g.settings.DefaultLanguage))
		}
	}

	return g.settings.ChannelPrefix + strconv.Itoa(entity.ID)
}

// GetEpiCodeByID resolves the entity before generating its code. Id 0 means "no entity" and
// yields no code. When the entity cannot be fetched the id based code is used.
func (g *CodeGenerator) GetEpiCodeByID(ctx context.Context, id int) (string, bool) {
	if id == 0 {
		return "", false
	}

	entity, err := g.source.GetEntity(ctx, id, models.LoadLevelDataOnly)
	if err != nil || entity == nil {
		if err != nil {
			g.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"entity_id": id,
			}).Warn("Failed to fetch entity for code, falling back to id")
		}
		return g.settings.ChannelPrefix + strconv.Itoa(id), true
	}

	return g.GetEpiCode(entity), true
}

// GetSkuCode returns the code of a SKU flattened out of an item
func (g *CodeGenerator) GetSkuCode(skuID string) string {
	return g.settings.ChannelPrefix + strings.TrimSpace(skuID)
}

// GetRelationName returns the dedup key of a directional edge. The parent code comes first.
func (g *CodeGenerator) GetRelationName(parentCode, childCode string) string {
	return parentCode + "_" + childCode
}

// GetAssociationKey returns the dedup key of one association leaf
func (g *CodeGenerator) GetAssociationKey(entityCode, parentCode, associationName string) string {
	return entityCode + "_" + parentCode + "_" + associationName
}
