package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pulsecast/pulsecast/pkg/types"
)

// Store reads and writes per-project monthly tables in SQLite. The ingestion
// side (crawlers, importers) fills it; the pipeline only reads from it.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the dataset database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open dataset db %s: %w", path, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS project_metrics (
		project_id TEXT NOT NULL,
		month      TEXT NOT NULL,
		features   TEXT NOT NULL,
		PRIMARY KEY (project_id, month)
	);
	CREATE TABLE IF NOT EXISTS project_events (
		project_id TEXT NOT NULL,
		month      TEXT NOT NULL,
		summary    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (project_id, month)
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_project ON project_metrics(project_id);
	CREATE INDEX IF NOT EXISTS idx_events_project ON project_events(project_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init dataset schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// PutMetrics records one project-month metric vector.
func (s *Store) PutMetrics(ctx context.Context, projectID string, month types.Month, features []float64) error {
	blob, err := json.Marshal(features)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO project_metrics (project_id, month, features) VALUES (?, ?, ?)`,
		projectID, month.String(), string(blob))
	return err
}

// PutEvents records one project-month event summary.
func (s *Store) PutEvents(ctx context.Context, projectID string, month types.Month, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO project_events (project_id, month, summary) VALUES (?, ?, ?)`,
		projectID, month.String(), summary)
	return err
}

// ListProjects returns every project ID with at least one metric row.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT project_id FROM project_metrics ORDER BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadProject reads one project's aligned metric and text series. The metric
// arity is taken from the first row and enforced across the rest.
func (s *Store) LoadProject(ctx context.Context, projectID string) (*MetricSeries, *TextSeries, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month, features FROM project_metrics WHERE project_id = ? ORDER BY month`, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var metrics *MetricSeries
	for rows.Next() {
		var monthKey, blob string
		if err := rows.Scan(&monthKey, &blob); err != nil {
			return nil, nil, err
		}
		month, err := types.ParseMonth(monthKey)
		if err != nil {
			return nil, nil, fmt.Errorf("project %s: %w", projectID, err)
		}
		var features []float64
		if err := json.Unmarshal([]byte(blob), &features); err != nil {
			return nil, nil, fmt.Errorf("project %s month %s: decode features: %w", projectID, monthKey, err)
		}
		if metrics == nil {
			metrics = NewMetricSeries(projectID, len(features))
		}
		if err := metrics.Set(month, features); err != nil {
			return nil, nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if metrics == nil {
		return nil, nil, fmt.Errorf("project %s: no metric rows", projectID)
	}

	texts := NewTextSeries(projectID)
	erows, err := s.db.QueryContext(ctx,
		`SELECT month, summary FROM project_events WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var monthKey, summary string
		if err := erows.Scan(&monthKey, &summary); err != nil {
			return nil, nil, err
		}
		month, err := types.ParseMonth(monthKey)
		if err != nil {
			return nil, nil, fmt.Errorf("project %s: %w", projectID, err)
		}
		texts.Set(month, summary)
	}
	return metrics, texts, erows.Err()
}
