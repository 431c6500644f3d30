package pim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RemoteConfig configures the PIM remoting client
type RemoteConfig struct {
	BaseURL string
	APIKey  string
}

// RemoteSource reads the PIM over its JSON remoting API
type RemoteSource struct {
	client *httpclient.Client
	config RemoteConfig
	logger ectologger.Logger
}

// NewRemoteSource creates a PIM source over the given HTTP client
func NewRemoteSource(client *httpclient.Client, config RemoteConfig, logger ectologger.Logger) *RemoteSource {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &RemoteSource{
		client: client,
		config: config,
		logger: logger,
	}
}

// GetEntity fetches one entity at the given load level
func (s *RemoteSource) GetEntity(ctx context.Context, id int, level models.LoadLevel) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetEntity")
	defer span.End()

	path := fmt.Sprintf("/api/v1/entities/%d?loadLevel=%s", id, url.QueryEscape(string(level)))
	var entity models.Entity
	if err := s.getJSON(ctx, path, &entity); err != nil {
		return nil, errors.Wrapf(err, "get entity %d", id)
	}

	for i := range entity.Fields {
		entity.Fields[i].Normalize()
	}
	return &entity, nil
}

// GetLinksForEntity fetches the inbound and outbound links of an entity
func (s *RemoteSource) GetLinksForEntity(ctx context.Context, id int) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetLinksForEntity")
	defer span.End()

	var links []models.Link
	if err := s.getJSON(ctx, fmt.Sprintf("/api/v1/entities/%d/links", id), &links); err != nil {
		return nil, errors.Wrapf(err, "get links for entity %d", id)
	}
	return links, nil
}

// GetLinkTypes fetches every link type of the PIM model
func (s *RemoteSource) GetLinkTypes(ctx context.Context) ([]models.LinkType, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetLinkTypes")
	defer span.End()

	var linkTypes []models.LinkType
	if err := s.getJSON(ctx, "/api/v1/model/linktypes", &linkTypes); err != nil {
		return nil, errors.Wrap(err, "get link types")
	}
	return linkTypes, nil
}

// GetEntityTypes fetches every entity type with its field types
func (s *RemoteSource) GetEntityTypes(ctx context.Context) ([]models.EntityType, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetEntityTypes")
	defer span.End()

	var entityTypes []models.EntityType
	if err := s.getJSON(ctx, "/api/v1/model/entitytypes", &entityTypes); err != nil {
		return nil, errors.Wrap(err, "get entity types")
	}
	return entityTypes, nil
}

// GetCVLValues fetches the values of every CVL
func (s *RemoteSource) GetCVLValues(ctx context.Context) ([]models.CVLValue, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetCVLValues")
	defer span.End()

	var values []models.CVLValue
	if err := s.getJSON(ctx, "/api/v1/cvls/values", &values); err != nil {
		return nil, errors.Wrap(err, "get cvl values")
	}
	for i := range values {
		values[i].Normalize()
	}
	return values, nil
}

// GetSpecificationAsHTML renders an entity's specification for one culture
func (s *RemoteSource) GetSpecificationAsHTML(ctx context.Context, specID, entityID int, culture string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetSpecificationAsHTML")
	defer span.End()

	path := fmt.Sprintf("/api/v1/specifications/%d/entities/%d/html?culture=%s", specID, entityID, url.QueryEscape(culture))
	resp, err := s.get(ctx, path)
	if err != nil {
		return "", errors.Wrapf(err, "get specification %d for entity %d", specID, entityID)
	}
	return string(resp.Body), nil
}

// GetStructureEntities fetches every structure entity of a channel
func (s *RemoteSource) GetStructureEntities(ctx context.Context, channelID int) ([]models.StructureEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "pim.RemoteSource.GetStructureEntities")
	defer span.End()

	var structure []models.StructureEntity
	if err := s.getJSON(ctx, fmt.Sprintf("/api/v1/channels/%d/structure", channelID), &structure); err != nil {
		return nil, errors.Wrapf(err, "get structure of channel %d", channelID)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"channel_id":       channelID,
		"structure_length": len(structure),
	}).Debug("Fetched channel structure")

	return structure, nil
}

func (s *RemoteSource) get(ctx context.Context, path string) (*httpclient.Response, error) {
	resp, err := s.client.Get(ctx, s.config.BaseURL+path, map[string]string{
		"X-API-Key": s.config.APIKey,
		"Accept":    "application/json",
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrEntityNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(resp.Body), 200))
	}
	return resp, nil
}

func (s *RemoteSource) getJSON(ctx context.Context, path string, out any) error {
	resp, err := s.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
