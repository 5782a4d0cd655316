//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed implementation of storage.Store
// using the mattn/go-sqlite3 driver. JSON documents are stored as TEXT.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// Compile-time check that Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

var createTables = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		webhook_slug TEXT UNIQUE,
		graph TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id INTEGER NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		trigger_type TEXT NOT NULL DEFAULT '',
		trigger_payload TEXT,
		outputs TEXT,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS node_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		status TEXT NOT NULL,
		input TEXT,
		output TEXT,
		error TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		node_id TEXT NOT NULL DEFAULT '',
		ts TIMESTAMP NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS file_assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL DEFAULT 0,
		node_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		storage TEXT NOT NULL,
		bucket TEXT NOT NULL,
		path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		signed_url TEXT NOT NULL DEFAULT '',
		signed_url_expires_at TIMESTAMP,
		public_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS integration_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		toolkit TEXT NOT NULL,
		connected_account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS ix_node_runs_run_node ON node_runs (run_id, node_id)`,
	`CREATE INDEX IF NOT EXISTS ix_logs_run_ts ON logs (run_id, ts)`,
	`CREATE INDEX IF NOT EXISTS ix_logs_run_id ON logs (run_id, id)`,
	`CREATE INDEX IF NOT EXISTS ix_integration_accounts_user_toolkit ON integration_accounts (user_id, toolkit)`,
}

// Store is a SQLite-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at the given DSN
// and initializes the schema. The DSN is passed to the sqlite3 driver
// verbatim, so ":memory:" and "file:" forms work.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite handles a single writer; serialize access through one
	// connection to avoid SQLITE_BUSY under concurrent runs.
	db.SetMaxOpenConns(1)

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing DB handle and initializes the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	for _, stmt := range createTables {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	for _, stmt := range createIndexes {
		if _, err := db.Exec(stmt); err != nil {
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (user_id, name, description, webhook_slug, graph, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.UserID, w.Name, w.Description, nullString(w.WebhookSlug), string(w.Graph), w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	w.ID, err = res.LastInsertId()
	return err
}

const selectWorkflow = `SELECT id, user_id, name, description, webhook_slug, graph, created_at FROM workflows`

func scanWorkflow(row interface{ Scan(...any) error }) (*storage.Workflow, error) {
	var (
		w     storage.Workflow
		slug  sql.NullString
		graph string
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
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, selectWorkflow+` WHERE id = ?`, id))
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
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, selectWorkflow+` WHERE webhook_slug = ?`, slug))
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
		`UPDATE workflows SET user_id = ?, name = ?, description = ?, webhook_slug = ?, graph = ? WHERE id = ?`,
		w.UserID, w.Name, w.Description, nullString(w.WebhookSlug), string(w.Graph), w.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return requireAffected(res)
}

// DeleteWorkflow implements storage.WorkflowStore.
func (s *Store) DeleteWorkflow(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (workflow_id, user_id, status, trigger_type, trigger_payload, outputs, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.WorkflowID, r.UserID, string(r.Status), r.TriggerType, payload, outputs,
		r.CreatedAt, nullTime(r.StartedAt), nullTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

const selectRun = `SELECT id, workflow_id, user_id, status, trigger_type, trigger_payload, outputs,
	created_at, started_at, finished_at FROM runs`

func scanRun(row interface{ Scan(...any) error }) (*storage.Run, error) {
	var (
		r                 storage.Run
		status            string
		payload, outputs  sql.NullString
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
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
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
	rows, err := s.db.QueryContext(ctx, selectRun+` WHERE workflow_id = ? ORDER BY id DESC`, workflowID)
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
		`UPDATE runs SET status = ?, trigger_type = ?, trigger_payload = ?, outputs = ?,
		 started_at = ?, finished_at = ? WHERE id = ?`,
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO node_runs (run_id, node_id, node_type, status, input, output, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nr.RunID, nr.NodeID, nr.NodeType, string(nr.Status), input, output, errJSON,
		nullTime(nr.StartedAt), nullTime(nr.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create node run: %w", err)
	}
	nr.ID, err = res.LastInsertId()
	return err
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
		`UPDATE node_runs SET status = ?, input = ?, output = ?, error = ?, started_at = ?, finished_at = ?
		 WHERE id = ?`,
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
		 FROM node_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list node runs: %w", err)
	}
	defer rows.Close()

	var out []*storage.NodeRun
	for rows.Next() {
		var (
			nr                      storage.NodeRun
			status                  string
			input, output, errQuery sql.NullString
			started, finished       sql.NullTime
		)
		if err := rows.Scan(&nr.ID, &nr.RunID, &nr.NodeID, &nr.NodeType, &status,
			&input, &output, &errQuery, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan node run: %w", err)
		}
		nr.Status = storage.NodeRunStatus(status)
		if err := unmarshalJSON(input, &nr.Input); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(output, &nr.Output); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(errQuery, &nr.Error); err != nil {
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (run_id, user_id, node_id, ts, level, message, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.UserID, e.NodeID, e.Ts, e.Level, e.Message, data,
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListLogs implements storage.LogStore.
func (s *Store) ListLogs(ctx context.Context, runID, afterID int64, limit int) ([]*storage.LogEntry, error) {
	query := `SELECT id, run_id, user_id, node_id, ts, level, message, data
		 FROM logs WHERE run_id = ? AND id > ? ORDER BY id`
	args := []any{runID, afterID}
	if limit > 0 {
		query += ` LIMIT ?`
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
			data sql.NullString
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO file_assets (run_id, node_id, user_id, storage, bucket, path, content_type, size,
		 signed_url, signed_url_expires_at, public_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.NodeID, f.UserID, f.Storage, f.Bucket, f.Path, f.ContentType, f.Size,
		f.SignedURL, nullTime(f.SignedURLExpiresAt), f.PublicURL, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create file asset: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return err
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
	f, err := scanFileAsset(s.db.QueryRowContext(ctx, selectFileAsset+` WHERE id = ?`, id))
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
		`UPDATE file_assets SET signed_url = ?, signed_url_expires_at = ?, public_url = ? WHERE id = ?`,
		f.SignedURL, nullTime(f.SignedURLExpiresAt), f.PublicURL, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update file asset: %w", err)
	}
	return requireAffected(res)
}

// ListFileAssets implements storage.FileStore.
func (s *Store) ListFileAssets(ctx context.Context, runID int64) ([]*storage.FileAsset, error) {
	rows, err := s.db.QueryContext(ctx, selectFileAsset+` WHERE run_id = ? ORDER BY id`, runID)
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_accounts (user_id, toolkit, connected_account_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.Toolkit, a.ConnectedAccountID, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create integration account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

const selectAccount = `SELECT id, user_id, toolkit, connected_account_id, status, created_at
	FROM integration_accounts`

// ListIntegrationAccounts implements storage.IntegrationStore.
func (s *Store) ListIntegrationAccounts(ctx context.Context, userID string) ([]*storage.IntegrationAccount, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+` WHERE user_id = ? ORDER BY id DESC`, userID)
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
		selectAccount+` WHERE user_id = ? AND toolkit = ? AND status = 'active' ORDER BY id DESC LIMIT 1`,
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
	return string(b), nil
}

func unmarshalJSON(col sql.NullString, dst *map[string]any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
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
