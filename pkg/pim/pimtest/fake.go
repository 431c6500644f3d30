// Package pimtest provides an in-memory PIM source for tests.
package pimtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim"
)

// Source is an in-memory pim.Source. Entities returned at DataAndLinks carry the links
// registered with AddLink; shallower levels carry none.
type Source struct {
	mu             sync.Mutex
	entities       map[int]*models.Entity
	links          []models.Link
	linkTypes      []models.LinkType
	entityTypes    []models.EntityType
	cvlValues      []models.CVLValue
	structure      map[int][]models.StructureEntity
	specifications map[string]string
	failing        map[int]error
	calls          map[int]int
}

var _ pim.Source = (*Source)(nil)

// New creates an empty fake source
func New() *Source {
	return &Source{
		entities:       make(map[int]*models.Entity),
		structure:      make(map[int][]models.StructureEntity),
		specifications: make(map[string]string),
		failing:        make(map[int]error),
		calls:          make(map[int]int),
	}
}

// AddEntity registers entities
func (s *Source) AddEntity(entities ...*models.Entity) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return s
}

// AddLink registers links between registered entities
func (s *Source) AddLink(links ...models.Link) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, links...)
	return s
}

// SetLinkTypes sets the model's link types
func (s *Source) SetLinkTypes(linkTypes ...models.LinkType) *Source {
	s.linkTypes = linkTypes
	return s
}

// SetEntityTypes sets the model's entity types
func (s *Source) SetEntityTypes(entityTypes ...models.EntityType) *Source {
	s.entityTypes = entityTypes
	return s
}

// SetCVLValues sets the CVL values
func (s *Source) SetCVLValues(values ...models.CVLValue) *Source {
	s.cvlValues = values
	return s
}

// SetStructure sets the structure entities of a channel
func (s *Source) SetStructure(channelID int, structure ...models.StructureEntity) *Source {
	s.structure[channelID] = structure
	return s
}

// SetSpecification sets the rendered specification of an entity for a culture
func (s *Source) SetSpecification(specID, entityID int, culture, html string) *Source {
	s.specifications[specKey(specID, entityID, culture)] = html
	return s
}

// Fail makes every fetch of the entity return err
func (s *Source) Fail(id int, err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = err
	return s
}

// Calls returns how many times GetEntity was called for an id
func (s *Source) Calls(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *Source) GetEntity(_ context.Context, id int, level models.LoadLevel) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[id]++
	if err, ok := s.failing[id]; ok {
		return nil, err
	}
	entity, ok := s.entities[id]
	if !ok {
		return nil, pim.ErrEntityNotFound
	}

	result := *entity
	result.OutboundLinks = nil
	result.InboundLinks = nil
	if level == models.LoadLevelDataAndLinks {
		for _, link := range s.links {
			if link.SourceID == id {
				result.OutboundLinks = append(result.OutboundLinks, link)
			}
			if link.TargetID == id {
				result.InboundLinks = append(result.InboundLinks, link)
			}
		}
	}
	return &result, nil
}

func (s *Source) GetLinksForEntity(_ context.Context, id int) ([]models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var links []models.Link
	for _, link := range s.links {
		if link.SourceID == id || link.TargetID == id {
			links = append(links, link)
		}
	}
	return links, nil
}

func (s *Source) GetLinkTypes(_ context.Context) ([]models.LinkType, error) {
	return s.linkTypes, nil
}

func (s *Source) GetEntityTypes(_ context.Context) ([]models.EntityType, error) {
	return s.entityTypes, nil
}

func (s *Source) GetCVLValues(_ context.Context) ([]models.CVLValue, error) {
	return s.cvlValues, nil
}

func (s *Source) GetSpecificationAsHTML(_ context.Context, specID, entityID int, culture string) (string, error) {
	html, ok := s.specifications[specKey(specID, entityID, culture)]
	if !ok {
		return "", pim.ErrEntityNotFound
	}
	return html, nil
}

func (s *Source) GetStructureEntities(_ context.Context, channelID int) ([]models.StructureEntity, error) {
	structure, ok := s.structure[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %d has no structure", channelID)
	}
	return structure, nil
}

func specKey(specID, entityID int, culture string) string {
	return fmt.Sprintf("%d|%d|%s", specID, entityID, culture)
}
