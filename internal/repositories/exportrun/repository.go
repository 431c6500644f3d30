package exportrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ExportRunRepository persists the history of channel exports
type ExportRunRepository interface {
	Create(ctx context.Context, channelID int, full bool) (*models.ExportRun, error)
	Complete(ctx context.Context, run *models.ExportRun) error
	Fail(ctx context.Context, id string, message string) error
	GetByID(ctx context.Context, id string) (*models.ExportRun, error)
	ListByChannel(ctx context.Context, channelID, page, pageSize int) ([]models.ExportRun, int, error)
}

// Repository implements ExportRunRepository on postgres
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

// NewRepository creates a new export run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

const tableName = "export_runs"

// staleRunMessage is stored on running rows that a newer run for the same channel replaced
const staleRunMessage = "superseded by a newer export run"

var columns = []string{
	"id", "channel_id", "full_export", "status", "node_count", "entry_count", "relation_count",
	"association_count", "resource_count", "catalog_file", "resource_file", "error", "started_at", "completed_at",
}

// Create records a running export. Older runs of the channel still marked running were left
// behind by a crashed process and are failed in the same transaction.
func (r *Repository) Create(ctx context.Context, channelID int, full bool) (*models.ExportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ExportRunRepository.Create")
	defer span.End()

	run := &models.ExportRun{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		Full:      full,
		Status:    models.ExportRunStatusRunning,
		StartedAt: r.now().UTC(),
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin export run transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query, args := supersedeQuery(channelID, run.StartedAt)
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to supersede stale export runs")
		return nil, fmt.Errorf("failed to supersede stale export runs: %w", err)
	}
	if superseded, _ := result.RowsAffected(); superseded > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"channel_id": channelID,
			"superseded": superseded,
		}).Warn("failed stale export runs")
	}

	query, args = insertQuery(run)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create export run")
		return nil, fmt.Errorf("failed to create export run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit export run: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":     run.ID,
		"channel_id": channelID,
		"full":       full,
	}).Info("created export run")

	return run, nil
}

// Complete stores the final counts and files of a run and marks it completed
func (r *Repository) Complete(ctx context.Context, run *models.ExportRun) error {
	ctx, span := tracing.StartSpan(ctx, "ExportRunRepository.Complete")
	defer span.End()

	completedAt := r.now().UTC()
	run.Status = models.ExportRunStatusCompleted
	run.CompletedAt = &completedAt

	query, args := completeQuery(run)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to complete export run")
		return fmt.Errorf("failed to complete export run: %w", err)
	}
	return nil
}

// Fail marks a run failed with the error that stopped it
func (r *Repository) Fail(ctx context.Context, id string, message string) error {
	ctx, span := tracing.StartSpan(ctx, "ExportRunRepository.Fail")
	defer span.End()

	query, args := failQuery(id, message, r.now().UTC())
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to fail export run")
		return fmt.Errorf("failed to fail export run: %w", err)
	}
	return nil
}

// GetByID returns the run or nil when it does not exist
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ExportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ExportRunRepository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var run models.ExportRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get export run")
		return nil, fmt.Errorf("failed to get export run: %w", err)
	}
	return &run, nil
}

// ListByChannel lists a channel's runs, newest first
func (r *Repository) ListByChannel(ctx context.Context, channelID, page, pageSize int) ([]models.ExportRun, int, error) {
	ctx, span := tracing.StartSpan(ctx, "ExportRunRepository.ListByChannel")
	defer span.End()

	page, pageSize = normalizePage(page, pageSize)

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(tableName)
	countSb.Where(countSb.Equal("channel_id", channelID))
	countQuery, countArgs := countSb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count export runs")
		return nil, 0, fmt.Errorf("failed to count export runs: %w", err)
	}

	query, args := listQuery(channelID, page, pageSize)
	runs := []models.ExportRun{}
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list export runs")
		return nil, 0, fmt.Errorf("failed to list export runs: %w", err)
	}

	return runs, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func supersedeQuery(channelID int, at time.Time) (string, []any) {
	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(models.ExportRunStatusFailed)),
		ub.Assign("error", staleRunMessage),
		ub.Assign("completed_at", at),
	)
	ub.Where(
		ub.Equal("channel_id", channelID),
		ub.Equal("status", string(models.ExportRunStatusRunning)),
	)
	return ub.Build()
}

func insertQuery(run *models.ExportRun) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols("id", "channel_id", "full_export", "status", "started_at")
	ib.Values(run.ID, run.ChannelID, run.Full, string(run.Status), run.StartedAt)
	return ib.Build()
}

func completeQuery(run *models.ExportRun) (string, []any) {
	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(run.Status)),
		ub.Assign("node_count", run.NodeCount),
		ub.Assign("entry_count", run.EntryCount),
		ub.Assign("relation_count", run.RelationCount),
		ub.Assign("association_count", run.AssociationCount),
		ub.Assign("resource_count", run.ResourceCount),
		ub.Assign("catalog_file", run.CatalogFile),
		ub.Assign("resource_file", run.ResourceFile),
		ub.Assign("completed_at", *run.CompletedAt),
	)
	ub.Where(ub.Equal("id", run.ID))
	return ub.Build()
}

func failQuery(id, message string, at time.Time) (string, []any) {
	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(models.ExportRunStatusFailed)),
		ub.Assign("error", message),
		ub.Assign("completed_at", at),
	)
	ub.Where(ub.Equal("id", id))
	return ub.Build()
}

func listQuery(channelID, page, pageSize int) (string, []any) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("channel_id", channelID))
	sb.OrderBy("started_at").Desc()
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)
	return sb.Build()
}
