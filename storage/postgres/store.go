//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package postgres provides a PostgreSQL-backed implementation of
// storage.Store using the pgx stdlib driver. JSON documents are stored as
// JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// Compile-time check that Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

var createTables = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		webhook_slug TEXT UNIQUE,
		graph JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id BIGSERIAL PRIMARY KEY,
		workflow_id BIGINT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		trigger_type TEXT NOT NULL DEFAULT '',
		trigger_payload JSONB,
		outputs JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS node_runs (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT NOT NULL,
		node_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		status TEXT NOT NULL,
		input JSONB,
		output JSONB,
		error JSONB,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		node_id TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		data JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS file_assets (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT NOT NULL DEFAULT 0,
		node_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		storage TEXT NOT NULL,
		bucket TEXT NOT NULL,
		path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		signed_url TEXT NOT NULL DEFAULT '',
		signed_url_expires_at TIMESTAMPTZ,
		public_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS integration_accounts (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		toolkit TEXT NOT NULL,
		connected_account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS ix_node_runs_run_node ON node_runs (run_id, node_id)`,
	`CREATE INDEX IF NOT EXISTS ix_logs_run_ts ON logs (run_id, ts)`,
	`CREATE INDEX IF NOT EXISTS ix_logs_run_id ON logs (run_id, id)`,
	`CREATE INDEX IF NOT EXISTS ix_integration_accounts_user_toolkit ON integration_accounts (user_id, toolkit)`,
}

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open connects to the database at the given DSN and initializes the
// schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: connection string is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}

	s, err := NewStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing DB handle and initializes the schema.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	for _, stmt := range createTables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	for _, stmt := range createIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateWorkflow implements storage.WorkflowStore.
func (s *Store) CreateWorkflow(ctx context.Context, w *storage.Workflow) error {
	w.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO workflows (user_id, name, description, webhook_slug, graph, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		w.UserID, w.Name, w.Description, nullString(w.WebhookSlug), string(w.Graph), w.CreatedAt,
	).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

const selectWorkflow = `SELECT id, user_id, name, description, webhook_slug, graph, created_at FROM workflows`

func scanWorkflow(row interface{ Scan(...any) error }) (*storage.Workflow, error) {
	var (
		w     storage.Workflow
		slug  sql.NullString
		graph []byte
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Description, &slug, &graph, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.WebhookSlug = slug.String
	w.Graph = json.RawMessage(graph)
	return &w, nil
}

// GetWorkflow implements storage.WorkflowStore.
func (s *Store) GetWorkflow(ctx context.Context, id int64) (*storage.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, selectWorkflow+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// GetWorkflowBySlug implements storage.WorkflowStore.
func (s *Store) GetWorkflowBySlug(ctx context.Context, slug string) (*storage.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, selectWorkflow+` WHERE webhook_slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by slug: %w", err)
	}
	return w, nil
}

// ListWorkflows implements storage.WorkflowStore.
func (s *Store) ListWorkflows(ctx context.Context) ([]*storage.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, selectWorkflow+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*storage.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWorkflow implements storage.WorkflowStore.
func (s *Store) UpdateWorkflow(ctx context.Context, w *storage.Workflow) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET user_id = $1, name = $2, description = $3, webhook_slug = $4, graph = $5 WHERE id = $6`,
		w.UserID, w.Name, w.Description, nullString(w.WebhookSlug), string(w.Graph), w.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return requireAffected(res)
}

// DeleteWorkflow implements storage.WorkflowStore.
func (s *Store) DeleteWorkflow(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return requireAffected(res)
}

// CreateRun implements storage.RunStore.
func (s *Store) CreateRun(ctx context.Context, r *storage.Run) error {
	if r.Status == "" {
		r.Status = storage.RunStatusPending
	}
	r.CreatedAt = time.Now().UTC()

	payload, err := marshalJSON(r.TriggerPayload)
	if err != nil {
		return err
	}
	outputs, err := marshalJSON(r.Outputs)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO runs (workflow_id, user_id, status, trigger_type, trigger_payload, outputs, created_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		r.WorkflowID, r.UserID, string(r.Status), r.TriggerType, payload, outputs,
		r.CreatedAt, nullTime(r.StartedAt), nullTime(r.FinishedAt),
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, workflow_id, user_id, status, trigger_type, trigger_payload, outputs,
	created_at, started_at, finished_at FROM runs`

func scanRun(row interface{ Scan(...any) error }) (*storage.Run, error) {
	var (
		r                 storage.Run
		status            string
		payload, outputs  []byte
		started, finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.WorkflowID, &r.UserID, &status, &r.TriggerType,
		&payload, &outputs, &r.CreatedAt, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = storage.RunStatus(status)
	if err := unmarshalJSON(payload, &r.TriggerPayload); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(outputs, &r.Outputs); err != nil {
		return nil, err
	}
	r.StartedAt = timePtr(started)
	r.FinishedAt = timePtr(finished)
	return &r, nil
}

// GetRun implements storage.RunStore.
func (s *Store) GetRun(ctx context.Context, id int64) (*storage.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns implements storage.RunStore.
func (s *Store) ListRuns(ctx context.Context, workflowID int64) ([]*storage.Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` WHERE workflow_id = $1 ORDER BY id DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*storage.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRun implements storage.RunStore.
func (s *Store) UpdateRun(ctx context.Context, r *storage.Run) error {
	payload, err := marshalJSON(r.TriggerPayload)
	if err != nil {
		return err
	}
	outputs, err := marshalJSON(r.Outputs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, trigger_type = $2, trigger_payload = $3, outputs = $4,
		 started_at = $5, finished_at = $6 WHERE id = $7`,
		string(r.Status), r.TriggerType, payload, outputs,
		nullTime(r.StartedAt), nullTime(r.FinishedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return requireAffected(res)
}

// CreateNodeRun implements storage.RunStore.
func (s *Store) CreateNodeRun(ctx context.Context, nr *storage.NodeRun) error {
	if nr.Status == "" {
		nr.Status = storage.NodeRunStatusPending
	}
	input, err := marshalJSON(nr.Input)
	if err != nil {
		return err
	}
	output, err := marshalJSON(nr.Output)
	if err != nil {
		return err
	}
	errJSON, err := marshalJSON(nr.Error)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO node_runs (run_id, node_id, node_type, status, input, output, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		nr.RunID, nr.NodeID, nr.NodeType, string(nr.Status), input, output, errJSON,
		nullTime(nr.StartedAt), nullTime(nr.FinishedAt),
	).Scan(&nr.ID)
	if err != nil {
		return fmt.Errorf("create node run: %w", err)
	}
	return nil
}

// UpdateNodeRun implements storage.RunStore.
func (s *Store) UpdateNodeRun(ctx context.Context, nr *storage.NodeRun) error {
	input, err := marshalJSON(nr.Input)
	if err != nil {
		return err
	}
	output, err := marshalJSON(nr.Output)
	if err != nil {
		return err
	}
	errJSON, err := marshalJSON(nr.Error)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE node_runs SET status = $1, input = $2, output = $3, error = $4, started_at = $5, finished_at = $6
		 WHERE id = $7`,
		string(nr.Status), input, output, errJSON,
		nullTime(nr.StartedAt), nullTime(nr.FinishedAt), nr.ID,
	)
	if err != nil {
		return fmt.Errorf("update node run: %w", err)
	}
	return requireAffected(res)
}

// ListNodeRuns implements storage.RunStore.
func (s *Store) ListNodeRuns(ctx context.Context, runID int64) ([]*storage.NodeRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node_id, node_type, status, input, output, error, started_at, finished_at
		 FROM node_runs WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list node runs: %w", err)
	}
	defer rows.Close()

	var out []*storage.NodeRun
	for rows.Next() {
		var (
			nr                    storage.NodeRun
			status                string
			input, output, errRow []byte
			started, finished     sql.NullTime
		)
		if err := rows.Scan(&nr.ID, &nr.RunID, &nr.NodeID, &nr.NodeType, &status,
			&input, &output, &errRow, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan node run: %w", err)
		}
		nr.Status = storage.NodeRunStatus(status)
		if err := unmarshalJSON(input, &nr.Input); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(output, &nr.Output); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(errRow, &nr.Error); err != nil {
			return nil, err
		}
		nr.StartedAt = timePtr(started)
		nr.FinishedAt = timePtr(finished)
		out = append(out, &nr)
	}
	return out, rows.Err()
}

// AppendLog implements storage.LogStore.
func (s *Store) AppendLog(ctx context.Context, e *storage.LogEntry) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	data, err := marshalJSON(e.Data)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO logs (run_id, user_id, node_id, ts, level, message, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.RunID, e.UserID, e.NodeID, e.Ts, e.Level, e.Message, data,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLogs implements storage.LogStore.
func (s *Store) ListLogs(ctx context.Context, runID, afterID int64, limit int) ([]*storage.LogEntry, error) {
	query := `SELECT id, run_id, user_id, node_id, ts, level, message, data
		 FROM logs WHERE run_id = $1 AND id > $2 ORDER BY id`
	args := []any{runID, afterID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []*storage.LogEntry
	for rows.Next() {
		var (
			e    storage.LogEntry
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.UserID, &e.NodeID, &e.Ts, &e.Level, &e.Message, &data); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if err := unmarshalJSON(data, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CreateFileAsset implements storage.FileStore.
func (s *Store) CreateFileAsset(ctx context.Context, f *storage.FileAsset) error {
	f.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO file_assets (run_id, node_id, user_id, storage, bucket, path, content_type, size,
		 signed_url, signed_url_expires_at, public_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		f.RunID, f.NodeID, f.UserID, f.Storage, f.Bucket, f.Path, f.ContentType, f.Size,
		f.SignedURL, nullTime(f.SignedURLExpiresAt), f.PublicURL, f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("create file asset: %w", err)
	}
	return nil
}

const selectFileAsset = `SELECT id, run_id, node_id, user_id, storage, bucket, path, content_type, size,
	signed_url, signed_url_expires_at, public_url, created_at FROM file_assets`

func scanFileAsset(row interface{ Scan(...any) error }) (*storage.FileAsset, error) {
	var (
		f       storage.FileAsset
		expires sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.RunID, &f.NodeID, &f.UserID, &f.Storage, &f.Bucket, &f.Path,
		&f.ContentType, &f.Size, &f.SignedURL, &expires, &f.PublicURL, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.SignedURLExpiresAt = timePtr(expires)
	return &f, nil
}

// GetFileAsset implements storage.FileStore.
func (s *Store) GetFileAsset(ctx context.Context, id int64) (*storage.FileAsset, error) {
	f, err := scanFileAsset(s.db.QueryRowContext(ctx, selectFileAsset+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file asset: %w", err)
	}
	return f, nil
}

// UpdateFileAsset implements storage.FileStore.
func (s *Store) UpdateFileAsset(ctx context.Context, f *storage.FileAsset) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_assets SET signed_url = $1, signed_url_expires_at = $2, public_url = $3 WHERE id = $4`,
		f.SignedURL, nullTime(f.SignedURLExpiresAt), f.PublicURL, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update file asset: %w", err)
	}
	return requireAffected(res)
}

// ListFileAssets implements storage.FileStore.
func (s *Store) ListFileAssets(ctx context.Context, runID int64) ([]*storage.FileAsset, error) {
	rows, err := s.db.QueryContext(ctx, selectFileAsset+` WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list file assets: %w", err)
	}
	defer rows.Close()

	var out []*storage.FileAsset
	for rows.Next() {
		f, err := scanFileAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file asset: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CreateIntegrationAccount implements storage.IntegrationStore.
func (s *Store) CreateIntegrationAccount(ctx context.Context, a *storage.IntegrationAccount) error {
	a.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO integration_accounts (user_id, toolkit, connected_account_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.UserID, a.Toolkit, a.ConnectedAccountID, a.Status, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create integration account: %w", err)
	}
	return nil
}

const selectAccount = `SELECT id, user_id, toolkit, connected_account_id, status, created_at
	FROM integration_accounts`

// ListIntegrationAccounts implements storage.IntegrationStore.
func (s *Store) ListIntegrationAccounts(ctx context.Context, userID string) ([]*storage.IntegrationAccount, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+` WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list integration accounts: %w", err)
	}
	defer rows.Close()

	var out []*storage.IntegrationAccount
	for rows.Next() {
		var a storage.IntegrationAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Toolkit, &a.ConnectedAccountID, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan integration account: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ResolveIntegrationAccount implements storage.IntegrationStore.
func (s *Store) ResolveIntegrationAccount(ctx context.Context, userID, toolkit string) (*storage.IntegrationAccount, error) {
	row := s.db.QueryRowContext(ctx,
		selectAccount+` WHERE user_id = $1 AND toolkit = $2 AND status = 'active' ORDER BY id DESC LIMIT 1`,
		userID, toolkit,
	)
	var a storage.IntegrationAccount
	err := row.Scan(&a.ID, &a.UserID, &a.Toolkit, &a.ConnectedAccountID, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve integration account: %w", err)
	}
	return &a, nil
}

func marshalJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

func unmarshalJSON(col []byte, dst *map[string]any) error {
	if len(col) == 0 {
		return nil
	}
	if err := json.Unmarshal(col, dst); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
