// Package pim reads the channel structure and entity model from the PIM remoting API.
package pim

import (
	"context"
	"errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ErrEntityNotFound is returned when the PIM has no entity with the requested id
var ErrEntityNotFound = errors.New("entity not found")

// Source is the read side of the PIM used by an export run
type Source interface {
	GetEntity(ctx context.Context, id int, level models.LoadLevel) (*models.Entity, error)
	GetLinksForEntity(ctx context.Context, id int) ([]models.Link, error)
	GetLinkTypes(ctx context.Context) ([]models.LinkType, error)
	GetEntityTypes(ctx context.Context) ([]models.EntityType, error)
	GetCVLValues(ctx context.Context) ([]models.CVLValue, error)
	GetSpecificationAsHTML(ctx context.Context, specID, entityID int, culture string) (string, error)
	GetStructureEntities(ctx context.Context, channelID int) ([]models.StructureEntity, error)
}

// levelRank orders load levels so a richer cached entity can serve a shallower request
func levelRank(level models.LoadLevel) int {
	switch level {
	case models.LoadLevelDataAndLinks:
		return 2
	case models.LoadLevelDataOnly:
		return 1
	default:
		return 0
	}
}
