// Package bigquery holds the shared BigQuery handle for the analytics sink
// and the admin dashboard.
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
	"google.golang.org/api/option"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const pingTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

type Client struct {
	api     *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

// NewClient connects to the project and refuses to start unless the dataset
// and the scan events table exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.ScanEventsTable)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case dataset == "":
		return nil, errors.New("bigquery dataset is required")
	case table == "":
		return nil, errors.New("bigquery scan events table is required")
	}

	var opts []option.ClientOption
	if cred := credentials(gcp); cred != nil {
		opts = append(opts, cred)
	}
	api, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{api: api, dataset: api.Dataset(dataset), tables: []string{table}}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": dataset, "tables": c.tables}), "bigquery client initialized")
	}
	return c, nil
}

// credentials prefers inline JSON over a key file. With neither, the client
// falls back to application default credentials.
func credentials(gcp config.GCPConfig) option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return option.WithCredentialsJSON([]byte(raw))
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return option.WithCredentialsFile(path)
	}
	return nil
}

// Ping reads dataset and table metadata and reports every one that is missing.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return lookupError("dataset", c.dataset.DatasetID, err)
	}
	var err error
	for _, name := range c.tables {
		_, mdErr := c.dataset.Table(name).Metadata(ctx)
		err = multierr.Append(err, lookupError("table", name, mdErr))
	}
	return err
}

// InsertRows streams rows into a table of the dataset. Rows may be structs,
// struct pointers or bigquery.ValueSaver implementations.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// Query runs parameterised SQL and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.api.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

func lookupError(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("bigquery %s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking bigquery %s %q: %w", kind, name, err)
}
