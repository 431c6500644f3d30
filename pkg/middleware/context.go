package middleware

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Context tags the request context with the request id and, on export routes, the channel
// and run being addressed so every log line and span of the request carries them.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, c.Path())
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetReferer(ctx, req.Referer())

			if channelID, err := strconv.Atoi(c.Param("channelId")); err == nil && channelID > 0 {
				ctx = context.SetChannelID(ctx, channelID)
			}
			if runID := c.Param("runId"); runID != "" {
				ctx = context.SetRunID(ctx, runID)
			}
			tracing.AnnotateExport(ctx)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
