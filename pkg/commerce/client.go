// Package commerce drives catalog and resource imports on the commerce endpoint.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/backoff"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrImportFailed is returned when the endpoint answers with an ERROR body
	ErrImportFailed = errors.New("commerce import failed")
	// ErrImportTimeout is returned when the endpoint is still importing after the last poll
	ErrImportTimeout = errors.New("commerce import still running after max polls")
)

const (
	errorPrefix     = "ERROR"
	importingStatus = "importing"

	defaultMaxPolls = 100
)

// Config holds commerce endpoint settings
type Config struct {
	BaseURL       string
	APIKey        string
	RetryAttempts int
	MaxPolls      int
	// RetryUnit scales the fibonacci delay between retries
	RetryUnit time.Duration
}

// Client talks to the commerce import endpoint
type Client struct {
	http   *httpclient.Client
	config Config
	logger ectologger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new commerce client
func NewClient(httpClient *httpclient.Client, config Config, logger ectologger.Logger) *Client {
	if config.RetryAttempts < 1 {
		config.RetryAttempts = 1
	}
	if config.MaxPolls < 1 {
		config.MaxPolls = defaultMaxPolls
	}
	if config.RetryUnit <= 0 {
		config.RetryUnit = time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		http:   httpClient,
		config: config,
		logger: logger,
		sleep:  backoff.Sleep,
	}
}

// PollInterval is the wait after the given poll: 2s for the first 10 polls,
// 15s up to poll 30, 150s after that.
func PollInterval(poll int) time.Duration {
	switch {
	case poll <= 10:
		return 2 * time.Second
	case poll <= 30:
		return 15 * time.Second
	default:
		return 150 * time.Second
	}
}

// ImportCatalog posts a catalog document
func (c *Client) ImportCatalog(ctx context.Context, document []byte) error {
	ctx, span := tracing.StartSpan(ctx, "commerce.Client.ImportCatalog")
	defer span.End()

	if _, err := c.post(ctx, "/api/import/catalog", document, "application/xml"); err != nil {
		return errors.Wrap(err, "import catalog")
	}
	return nil
}

// ImportResources posts a resource manifest
func (c *Client) ImportResources(ctx context.Context, document []byte) error {
	ctx, span := tracing.StartSpan(ctx, "commerce.Client.ImportResources")
	defer span.End()

	if _, err := c.post(ctx, "/api/import/resources", document, "application/xml"); err != nil {
		return errors.Wrap(err, "import resources")
	}
	return nil
}

// IsImporting reports whether the endpoint is still busy with the last import
func (c *Client) IsImporting(ctx context.Context) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "commerce.Client.IsImporting")
	defer span.End()

	body, err := c.send(ctx, http.MethodGet, "/api/import/status", nil, "")
	if err != nil {
		return false, errors.Wrap(err, "import status")
	}
	return strings.EqualFold(strings.TrimSpace(body), importingStatus), nil
}

// WaitForImport polls IsImporting until the endpoint is idle, the poll budget runs out
// or ctx is done.
func (c *Client) WaitForImport(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "commerce.Client.WaitForImport")
	defer span.End()

	for poll := 1; poll <= c.config.MaxPolls; poll++ {
		importing, err := c.IsImporting(ctx)
		if err != nil {
			metrics.ImportPollsTotal.WithLabelValues("error").Inc()
			return err
		}
		if !importing {
			metrics.ImportPollsTotal.WithLabelValues("done").Inc()
			c.logger.WithContext(ctx).WithField("polls", poll).Debug("commerce import finished")
			return nil
		}
		metrics.ImportPollsTotal.WithLabelValues("importing").Inc()

		if err := c.sleep(ctx, PollInterval(poll)); err != nil {
			return err
		}
	}

	return ErrImportTimeout
}

// MoveNodeToRootIfNeeded asks the endpoint to move a node that was nested elsewhere back
// under the catalog root
func (c *Client) MoveNodeToRootIfNeeded(ctx context.Context, nodeCode string) error {
	ctx, span := tracing.StartSpan(ctx, "commerce.Client.MoveNodeToRootIfNeeded")
	defer span.End()

	path := "/api/nodes/" + url.PathEscape(nodeCode) + "/move-to-root"
	if _, err := c.post(ctx, path, nil, ""); err != nil {
		return errors.Wrapf(err, "move node %s to root", nodeCode)
	}
	return nil
}

type importCompletedRequest struct {
	CatalogName string `json:"catalog_name"`
	Full        bool   `json:"full"`
}

// NotifyImportCompleted tells the endpoint the run's imports are done
func (c *Client) NotifyImportCompleted(ctx context.Context, catalogName string, full bool) error {
	ctx, span := tracing.StartSpan(ctx, "commerce.Client.NotifyImportCompleted")
	defer span.End()

	body, err := json.Marshal(importCompletedRequest{CatalogName: catalogName, Full: full})
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/api/import/completed", body, "application/json"); err != nil {
		return errors.Wrap(err, "notify import completed")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, contentType string) (string, error) {
	return c.send(ctx, http.MethodPost, path, body, contentType)
}

// send retries transport failures and 5xx answers with fibonacci delays. ERROR bodies and
// 4xx answers are returned immediately.
func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string) (string, error) {
	headers := map[string]string{"X-API-Key": c.config.APIKey}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff.Fibonacci(attempt-1, c.config.RetryUnit)
			c.logger.WithContext(ctx).WithError(lastErr).WithFields(map[string]any{
				"path":    path,
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("retrying commerce request")
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		text, retry, err := c.sendOnce(ctx, method, path, body, headers)
		if err == nil {
			return text, nil
		}
		if !retry {
			return "", err
		}
		lastErr = err
	}

	return "", lastErr
}

func (c *Client) sendOnce(ctx context.Context, method, path string, body []byte, headers map[string]string) (string, bool, error) {
	var resp *httpclient.Response
	var err error
	if method == http.MethodGet {
		resp, err = c.http.Get(ctx, c.config.BaseURL+path, headers)
	} else {
		resp, err = c.http.Post(ctx, c.config.BaseURL+path, body, headers)
	}
	if err != nil {
		return "", true, err
	}

	text := string(resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !resp.IsSuccess() {
		return "", false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(text))
	}
	if strings.HasPrefix(strings.TrimSpace(text), errorPrefix) {
		return "", false, errors.Wrap(ErrImportFailed, strings.TrimSpace(text))
	}
	return text, false, nil
}
