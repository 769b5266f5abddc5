// Package store is the hand-written persistence layer for the protected
// system tables: import_history, mapping_errors, import_jobs,
// table_metadata, uploaded_files, query_threads, query_messages,
// audit_log, and the rest of the reserved set. It
// speaks raw SQL over pgx rather than a generated client, since the
// dynamically created target tables have no fixed schema for a code
// generator to see.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, matching the pattern
// used throughout this codebase so repository functions can run inside or
// outside a transaction interchangeably.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store wraps the connection pool and exposes the repository methods for
// every protected table.
type Store struct {
	Pool *pgxpool.Pool
}

// New wraps an existing pool. The pool's lifecycle (Connect/Close) is the
// caller's responsibility, matching how the rest of this codebase treats
// *pgxpool.Pool as an externally owned resource.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// systemDDL creates the protected system tables if they do not already
// exist. Called once at startup; dynamic user tables are created on demand
// by the lineage store.
const systemDDL = `
CREATE TABLE IF NOT EXISTS import_history (
	import_id           uuid PRIMARY KEY,
	source_fingerprint   text NOT NULL,
	target_table         text NOT NULL,
	rows_processed       integer NOT NULL DEFAULT 0,
	rows_inserted        integer NOT NULL DEFAULT 0,
	rows_skipped_dup     integer NOT NULL DEFAULT 0,
	rows_errored         integer NOT NULL DEFAULT 0,
	strategy_attempted   text,
	mapping_snapshot     jsonb,
	status               text NOT NULL DEFAULT 'pending',
	created_at           timestamptz NOT NULL DEFAULT now(),
	completed_at         timestamptz,
	error_message        text
);
CREATE INDEX IF NOT EXISTS idx_import_history_fingerprint_table
	ON import_history (source_fingerprint, target_table);

CREATE TABLE IF NOT EXISTS mapping_errors (
	id                 bigserial PRIMARY KEY,
	import_id          uuid NOT NULL REFERENCES import_history(import_id) ON DELETE CASCADE,
	source_row_number  integer NOT NULL,
	reason             text NOT NULL,
	created_at         timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_mapping_errors_import_id ON mapping_errors (import_id);

CREATE TABLE IF NOT EXISTS import_jobs (
	task_id     uuid PRIMARY KEY,
	status      text NOT NULL DEFAULT 'pending',
	progress    integer NOT NULL DEFAULT 0,
	message     text,
	result      jsonb,
	import_id   uuid REFERENCES import_history(import_id) ON DELETE SET NULL,
	payload     jsonb NOT NULL,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs (status);

CREATE TABLE IF NOT EXISTS table_metadata (
	table_name   text PRIMARY KEY,
	db_schema    jsonb NOT NULL,
	created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS uploaded_files (
	upload_id       uuid PRIMARY KEY,
	object_key      text NOT NULL,
	file_name       text NOT NULL,
	declared_size   bigint NOT NULL,
	expected_parts  integer NOT NULL,
	part_etags      jsonb NOT NULL DEFAULT '{}',
	status          text NOT NULL DEFAULT 'active',
	created_at      timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS file_imports (
	upload_id   uuid NOT NULL REFERENCES uploaded_files(upload_id) ON DELETE CASCADE,
	import_id   uuid NOT NULL REFERENCES import_history(import_id) ON DELETE CASCADE,
	PRIMARY KEY (upload_id, import_id)
);

CREATE TABLE IF NOT EXISTS import_duplicates (
	id                 bigserial PRIMARY KEY,
	import_id          uuid NOT NULL REFERENCES import_history(import_id) ON DELETE CASCADE,
	source_row_number  integer NOT NULL
);

CREATE TABLE IF NOT EXISTS query_threads (
	thread_id   uuid PRIMARY KEY,
	mode        text NOT NULL,
	status      text NOT NULL DEFAULT 'active',
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS query_messages (
	id          bigserial PRIMARY KEY,
	thread_id   uuid NOT NULL REFERENCES query_threads(thread_id) ON DELETE CASCADE,
	role        text NOT NULL,
	content     jsonb NOT NULL,
	created_at  timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_query_messages_thread ON query_messages (thread_id, id);

CREATE TABLE IF NOT EXISTS llm_instructions (
	id         bigserial PRIMARY KEY,
	name       text UNIQUE NOT NULL,
	body       text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id            uuid PRIMARY KEY,
	email         text UNIQUE NOT NULL,
	created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             uuid PRIMARY KEY,
	action         text NOT NULL,
	severity       text NOT NULL,
	table_name     text NOT NULL DEFAULT '',
	import_id      uuid,
	ip_address     text NOT NULL DEFAULT '',
	rows_affected  integer NOT NULL DEFAULT 0,
	reason         text NOT NULL DEFAULT '',
	details        jsonb,
	created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_log_table_created ON audit_log (table_name, created_at DESC);
`

// EnsureSystemTables runs the protected-table DDL. Idempotent: safe to call
// on every startup.
func (s *Store) EnsureSystemTables(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, systemDDL)
	return err
}
