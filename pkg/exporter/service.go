// Package exporter runs channel exports: synthesis of the catalog and resource documents,
// their persistence to disk and their import on the commerce endpoint.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/beevik/etree"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/catalog"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrChannelNotFound is returned when the channel does not exist in the PIM
	ErrChannelNotFound = errors.New("channel not found")
	// ErrExportInProgress is returned when the channel is already being exported
	ErrExportInProgress = errors.New("export already in progress for channel")
)

const (
	CatalogFileName  = "catalog.xml"
	ResourceFileName = "resources.xml"

	defaultLockTTL           = 2 * time.Hour
	defaultResourceChunkSize = 200
	defaultImportWorkers     = 4
)

// Config holds the export service settings
type Config struct {
	// OutputDir receives <channel>/<run>/catalog.xml and resources.xml; empty disables writing
	OutputDir         string
	LockTTL           time.Duration
	ResourceChunkSize int
	ImportWorkers     int
}

// Service runs channel exports
type Service struct {
	source   pim.Source
	settings models.ExportSettings
	config   Config
	locker   ChannelLocker
	runs     RunStore
	events   EventSink
	importer Importer
	logger   ectologger.Logger
}

type Option func(*Service)

func WithLocker(locker ChannelLocker) Option {
	return func(s *Service) { s.locker = locker }
}

func WithRunStore(runs RunStore) Option {
	return func(s *Service) { s.runs = runs }
}

func WithEventSink(events EventSink) Option {
	return func(s *Service) { s.events = events }
}

func WithImporter(importer Importer) Option {
	return func(s *Service) { s.importer = importer }
}

// NewService creates an export service. Collaborators not given as options default to an
// in-process lock, an in-memory run store, no events and no import.
func NewService(source pim.Source, settings models.ExportSettings, config Config, logger ectologger.Logger, opts ...Option) *Service {
	if config.LockTTL <= 0 {
		config.LockTTL = defaultLockTTL
	}
	if config.ResourceChunkSize <= 0 {
		config.ResourceChunkSize = defaultResourceChunkSize
	}
	if config.ImportWorkers <= 0 {
		config.ImportWorkers = defaultImportWorkers
	}

	s := &Service{
		source:   source,
		settings: settings,
		config:   config,
		locker:   NewLocalLocker(),
		runs:     NewMemoryRunStore(),
		events:   noopEvents{},
		importer: noopImporter{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportChannel runs one export to completion
func (s *Service) ExportChannel(ctx context.Context, req models.ExportRequest) (*models.ExportRun, error) {
	run, lock, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, run, lock, req); err != nil {
		return run, err
	}
	return run, nil
}

// Start records the run and executes it in the background. The returned run is in the
// running state.
func (s *Service) Start(ctx context.Context, req models.ExportRequest) (*models.ExportRun, error) {
	run, lock, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	started := *run
	background := fernctx.Detach(ctx)
	go func() {
		_ = s.execute(background, run, lock, req)
	}()

	return &started, nil
}

func (s *Service) begin(ctx context.Context, req models.ExportRequest) (*models.ExportRun, Lock, error) {
	lock, err := s.locker.LockChannel(ctx, req.ChannelID, s.config.LockTTL)
	if err != nil {
		return nil, nil, err
	}

	run, err := s.runs.Create(ctx, req.ChannelID, req.Full)
	if err != nil {
		s.release(ctx, lock)
		return nil, nil, fmt.Errorf("failed to record export run: %w", err)
	}

	if err := s.events.EmitExportStarted(ctx, run); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to emit export started event")
	}
	return run, lock, nil
}

func (s *Service) execute(ctx context.Context, run *models.ExportRun, lock Lock, req models.ExportRequest) error {
	ctx = fernctx.SetRunID(ctx, run.ID)
	ctx = fernctx.SetChannelID(ctx, run.ChannelID)
	ctx, span := tracing.StartSpan(ctx, "exporter.Service.execute")
	defer span.End()
	tracing.AnnotateExport(ctx)
	defer s.release(ctx, lock)

	full := strconv.FormatBool(run.Full)
	metrics.ExportRunsInFlight.Inc()
	defer metrics.ExportRunsInFlight.Dec()
	start := time.Now()

	err := s.export(ctx, run, lock, req)
	metrics.ExportRunDuration.WithLabelValues(full).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ExportRunsTotal.WithLabelValues(string(models.ExportRunStatusFailed), full).Inc()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":     run.ID,
			"channel_id": run.ChannelID,
		}).Error("export failed")

		message := err.Error()
		run.Status = models.ExportRunStatusFailed
		run.Error = &message
		if failErr := s.runs.Fail(ctx, run.ID, message); failErr != nil {
			s.logger.WithContext(ctx).WithError(failErr).Error("failed to record failed export run")
		}
		if emitErr := s.events.EmitExportFailed(ctx, run, err); emitErr != nil {
			s.logger.WithContext(ctx).WithError(emitErr).Warn("failed to emit export failed event")
		}
		return err
	}

	metrics.ExportRunsTotal.WithLabelValues(string(models.ExportRunStatusCompleted), full).Inc()
	if err := s.runs.Complete(ctx, run); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to record completed export run")
	}
	if err := s.events.EmitExportCompleted(ctx, run); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to emit export completed event")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":         run.ID,
		"channel_id":     run.ChannelID,
		"entry_count":    run.EntryCount,
		"resource_count": run.ResourceCount,
		"duration":       time.Since(start).String(),
	}).Info("export completed")
	return nil
}

func (s *Service) export(ctx context.Context, run *models.ExportRun, lock Lock, req models.ExportRequest) error {
	source := pim.NewCachedSource(s.source, pim.NewRunCache())

	channel, err := source.GetEntity(ctx, run.ChannelID, models.LoadLevelDataOnly)
	if errors.Is(err, pim.ErrEntityNotFound) || (err == nil && channel.EntityTypeID != models.EntityTypeChannel) {
		return fmt.Errorf("%w: %d", ErrChannelNotFound, run.ChannelID)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch channel: %w", err)
	}

	structure, err := source.GetStructureEntities(ctx, run.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to fetch channel structure: %w", err)
	}
	linkTypes, err := source.GetLinkTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch link types: %w", err)
	}
	entityTypes, err := source.GetEntityTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch entity types: %w", err)
	}
	if _, err := source.GetCVLValues(ctx); err != nil {
		return fmt.Errorf("failed to fetch cvl values: %w", err)
	}

	var mover catalog.NodeMover
	if !req.SkipImport {
		mover = s.importer
	}

	docs := catalog.NewDocumentFactory(catalog.Options{
		ChannelID:   run.ChannelID,
		Settings:    s.settings,
		LinkTypes:   linkTypes,
		EntityTypes: entityTypes,
		Source:      source,
		CVLs:        source.Cache(),
		NodeMover:   mover,
		Logger:      s.logger,
	})

	catalogDoc, err := docs.CreateImportDocument(ctx, channel, structure, run.Full)
	if err != nil {
		return fmt.Errorf("failed to create catalog document: %w", err)
	}
	resourceDoc := catalog.NewResourceElementFactory(docs, s.logger).CreateResourceDocument(ctx, structure, run.Full)

	counts := catalog.CountElements(catalogDoc)
	run.NodeCount = counts.Nodes
	run.EntryCount = counts.Entries
	run.RelationCount = counts.Relations
	run.AssociationCount = counts.Associations
	run.ResourceCount = catalog.CountResources(resourceDoc)

	catalogXML, err := catalogDoc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize catalog document: %w", err)
	}
	resourceXML, err := resourceDoc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize resource document: %w", err)
	}

	if err := s.writeFiles(ctx, run, catalogXML, resourceXML); err != nil {
		return err
	}

	if req.SkipImport {
		return nil
	}

	if err := lock.Extend(ctx, s.config.LockTTL); err != nil {
		return fmt.Errorf("failed to extend channel lock: %w", err)
	}

	return s.importDocuments(ctx, channel.DisplayName, run.Full, catalogXML, resourceDoc)
}

func (s *Service) importDocuments(ctx context.Context, catalogName string, full bool, catalogXML []byte, resourceDoc *etree.Document) error {
	ctx, span := tracing.StartSpan(ctx, "exporter.Service.importDocuments")
	defer span.End()

	if err := s.importer.ImportCatalog(ctx, catalogXML); err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}
	if err := s.importer.WaitForImport(ctx); err != nil {
		return fmt.Errorf("failed to wait for catalog import: %w", err)
	}

	chunks := catalog.SplitResourceDocument(resourceDoc, s.config.ResourceChunkSize)
	if len(chunks) > 0 {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.config.ImportWorkers)
		for i, chunk := range chunks {
			group.Go(func() error {
				body, err := chunk.WriteToBytes()
				if err != nil {
					return fmt.Errorf("failed to serialize resource chunk %d: %w", i, err)
				}
				if err := s.importer.ImportResources(groupCtx, body); err != nil {
					return fmt.Errorf("failed to import resource chunk %d: %w", i, err)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		if err := s.importer.WaitForImport(ctx); err != nil {
			return fmt.Errorf("failed to wait for resource import: %w", err)
		}
	}

	if err := s.importer.NotifyImportCompleted(ctx, catalogName, full); err != nil {
		return fmt.Errorf("failed to notify import completed: %w", err)
	}
	return nil
}

func (s *Service) writeFiles(ctx context.Context, run *models.ExportRun, catalogXML, resourceXML []byte) error {
	if s.config.OutputDir == "" {
		return nil
	}

	dir := filepath.Join(s.config.OutputDir, strconv.Itoa(run.ChannelID), run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	run.CatalogFile = filepath.Join(dir, CatalogFileName)
	if err := os.WriteFile(run.CatalogFile, catalogXML, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog document: %w", err)
	}
	run.ResourceFile = filepath.Join(dir, ResourceFileName)
	if err := os.WriteFile(run.ResourceFile, resourceXML, 0o644); err != nil {
		return fmt.Errorf("failed to write resource document: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"catalog_file":  run.CatalogFile,
		"resource_file": run.ResourceFile,
	}).Debug("wrote export documents")
	return nil
}

func (s *Service) release(ctx context.Context, lock Lock) {
	if err := lock.Release(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to release channel lock")
	}
}
