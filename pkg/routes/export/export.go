package export

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/exporter"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Starter starts asynchronous channel exports
type Starter interface {
	Start(ctx context.Context, req models.ExportRequest) (*models.ExportRun, error)
}

// RunReader reads recorded export runs
type RunReader interface {
	GetByID(ctx context.Context, id string) (*models.ExportRun, error)
	ListByChannel(ctx context.Context, channelID, page, pageSize int) ([]models.ExportRun, int, error)
}

// Handler serves the export endpoints
type Handler struct {
	exports Starter
	runs    RunReader
	logger  ectologger.Logger
}

func NewHandler(exports Starter, runs RunReader, logger ectologger.Logger) *Handler {
	return &Handler{
		exports: exports,
		runs:    runs,
		logger:  logger,
	}
}

// Register registers export routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/channels/:channelId/exports", h.Create)
	g.GET("/channels/:channelId/exports", h.List)
	g.GET("/exports/:runId", h.Get)
}

type createExportRequest struct {
	ChannelID  int  `param:"channelId" json:"-" validate:"required,gt=0"`
	Full       bool `json:"full"`
	SkipImport bool `json:"skip_import"`
}

// Create starts an export of the channel and answers 202 with the running export
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "export_handler.Create")
	defer span.End()

	body, err := utils.BindRequest[createExportRequest](c)
	if err != nil {
		return err
	}
	req := models.ExportRequest{ChannelID: body.ChannelID, Full: body.Full, SkipImport: body.SkipImport}

	ctx = fernctx.SetChannelID(ctx, req.ChannelID)
	run, err := h.exports.Start(ctx, req)
	if err != nil {
		if errors.Is(err, exporter.ErrExportInProgress) {
			return httperror.NewHTTPError(http.StatusConflict, "an export of this channel is already running")
		}
		h.logger.WithContext(ctx).WithError(err).Error("failed to start export")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start export")
	}

	c.Response().Header().Set(fernctx.HeaderRunID, run.ID)
	return c.JSON(http.StatusAccepted, run)
}

// Get returns one export run
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "export_handler.Get")
	defer span.End()

	run, err := h.runs.GetByID(ctx, c.Param("runId"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get export run")
	}
	if run == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "export run not found")
	}

	return c.JSON(http.StatusOK, run)
}

// List returns a channel's export runs, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "export_handler.List")
	defer span.End()

	channelID, err := channelParam(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	items, totalCount, err := h.runs.ListByChannel(ctx, channelID, page, pageSize)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list export runs")
	}

	return c.JSON(http.StatusOK, models.ExportRunListResponse{
		Items:      items,
		TotalCount: totalCount,
	})
}

func channelParam(c echo.Context) (int, error) {
	channelID, err := strconv.Atoi(c.Param("channelId"))
	if err != nil || channelID <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "channelId must be a positive integer")
	}
	return channelID, nil
}
