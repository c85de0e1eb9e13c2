// Package bigquery wraps the warehouse tables the audit consumer streams into.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/gcp"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client streams rows into one dataset.
type Client struct {
	bq        *bigquery.Client
	dataset   *bigquery.Dataset
	decisions string
	logg      *logger.Logger
}

// NewClient connects to the configured dataset. Table presence is checked by
// Ping, so callers that create tables with EnsureTable can do so first.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	decisions := strings.TrimSpace(cfg.DecisionsTable)
	if decisions == "" {
		return nil, errTableNameRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(datasetID), decisions: decisions, logg: logg}

	metaCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(metaCtx); err != nil {
		_ = bq.Close()
		return nil, describe("dataset", datasetID, err)
	}

	logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery client initialized")
	return c, nil
}

// EnsureTable creates name with schema unless it already exists. A non-empty
// partitionField partitions the table by day on that timestamp column.
func (c *Client) EnsureTable(ctx context.Context, name string, schema bigquery.Schema, partitionField string) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errTableNameRequired
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	table := c.dataset.Table(name)
	if _, err := table.Metadata(ctx); err == nil {
		return nil
	} else if !isNotFound(err) {
		return describe("table", name, err)
	}

	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
	}
	if err := table.Create(ctx, meta); err != nil && !isConflict(err) {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	c.logg.Info(c.logg.WithField(ctx, "table", name), "bigquery table created")
	return nil
}

// Ping checks that the dataset and the decisions table are reachable and
// reports every missing piece at once.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	var errs error
	if _, err := c.dataset.Metadata(ctx); err != nil {
		errs = multierr.Append(errs, describe("dataset", c.dataset.DatasetID, err))
	}
	if _, err := c.dataset.Table(c.decisions).Metadata(ctx); err != nil {
		errs = multierr.Append(errs, describe("table", c.decisions, err))
	}
	return errs
}

// InsertRows streams rows into table. Rows that implement bigquery.ValueSaver
// with an insert id are deduplicated on retry.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	err := c.dataset.Table(table).Inserter().Put(ctx, rows)
	var rowErrs bigquery.PutMultiError
	if errors.As(err, &rowErrs) && len(rowErrs) > 0 {
		// keep the typed error for retry classification
		return fmt.Errorf("%d of %d rows rejected by %s (first: %s): %w", len(rowErrs), len(rows), table, rowErrs[0].Error(), err)
	}
	return err
}

// DecisionsTable names the table receiving moderation decisions.
func (c *Client) DecisionsTable() string {
	if c == nil {
		return ""
	}
	return c.decisions
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func describe(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func isNotFound(err error) bool { return apiStatus(err) == http.StatusNotFound }

func isConflict(err error) bool { return apiStatus(err) == http.StatusConflict }
