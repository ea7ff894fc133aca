// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/docmill/docmill/lib/clock"
	"github.com/docmill/docmill/lib/sqlitepool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS files (
		file_id           TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL DEFAULT '',
		original_filename TEXT NOT NULL,
		mime_type         TEXT NOT NULL,
		size_bytes        INTEGER NOT NULL,
		container         TEXT NOT NULL,
		object_path       TEXT NOT NULL,
		checksum          TEXT NOT NULL DEFAULT '',
		lineage_parent_id TEXT REFERENCES files(file_id),
		operation_id      TEXT,
		page_count        INTEGER NOT NULL DEFAULT 0,
		created_at        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_files_lineage ON files(lineage_parent_id);

	CREATE TABLE IF NOT EXISTS operations (
		operation_id       TEXT PRIMARY KEY,
		source_artifact_id TEXT NOT NULL REFERENCES files(file_id),
		kind               TEXT NOT NULL,
		options            BLOB,
		status             TEXT NOT NULL,
		result_artifact_id TEXT,
		error              TEXT,
		requested_by       TEXT NOT NULL DEFAULT '',
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operations_source ON operations(source_artifact_id);
	CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status, updated_at);
`

const defaultListLimit = 100

// SQLiteCatalog implements Catalog on a SQLite database. Timestamps
// are stored as Unix milliseconds.
type SQLiteCatalog struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// SQLiteCatalogConfig holds the parameters for opening a catalog.
type SQLiteCatalogConfig struct {
	// Path is the SQLite database file. ":memory:" with PoolSize 1 is
	// supported for tests.
	Path string

	// PoolSize is the connection pool size. Zero means the pool
	// default.
	PoolSize int

	// Clock provides record timestamps. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the catalog database. The
// caller must Close it when done.
func OpenSQLite(cfg SQLiteCatalogConfig) (*SQLiteCatalog, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("catalog: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("catalog: Logger is required")
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	return &SQLiteCatalog{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool.
func (c *SQLiteCatalog) Close() error {
	return c.pool.Close()
}

// --- Files ---

func (c *SQLiteCatalog) InsertFile(ctx context.Context, record FileRecord) error {
	if record.FileID == "" {
		return fmt.Errorf("catalog: file record has empty file id")
	}

	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: insert file: %w", err)
	}
	defer c.pool.Put(conn)

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.clock.Now()
	}

	var lineageParent any
	if record.LineageParentID != "" {
		lineageParent = record.LineageParentID
	}
	var operationID any
	if record.OperationID != "" {
		operationID = record.OperationID
	}

	err = sqlitex.Execute(conn, `INSERT INTO files
		(file_id, owner_id, original_filename, mime_type, size_bytes,
		 container, object_path, checksum, lineage_parent_id,
		 operation_id, page_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.FileID,
				record.OwnerID,
				record.OriginalFilename,
				record.MimeType,
				record.SizeBytes,
				record.Container,
				record.ObjectPath,
				record.Checksum,
				lineageParent,
				operationID,
				record.PageCount,
				createdAt.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("catalog: insert file %s: %w", record.FileID, err)
	}
	return nil
}

func (c *SQLiteCatalog) FindFile(ctx context.Context, fileID string) (FileRecord, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return FileRecord{}, fmt.Errorf("catalog: find file: %w", err)
	}
	defer c.pool.Put(conn)

	return findFile(conn, fileID)
}

func findFile(conn *sqlite.Conn, fileID string) (FileRecord, error) {
	var record FileRecord
	found := false

	err := sqlitex.Execute(conn, `SELECT file_id, owner_id,
		original_filename, mime_type, size_bytes, container, object_path,
		checksum, lineage_parent_id, operation_id, page_count, created_at
		FROM files WHERE file_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{fileID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = scanFile(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return FileRecord{}, fmt.Errorf("catalog: find file %s: %w", fileID, err)
	}
	if !found {
		return FileRecord{}, ErrNotFound
	}
	return record, nil
}

func (c *SQLiteCatalog) ListFiles(ctx context.Context, ownerID string, offset, limit int) ([]FileRecord, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list files: %w", err)
	}
	defer c.pool.Put(conn)

	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	var args []any
	if ownerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, ownerID)
	}

	query := `SELECT file_id, owner_id, original_filename, mime_type,
		size_bytes, container, object_path, checksum, lineage_parent_id,
		operation_id, page_count, created_at FROM files`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, file_id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var records []FileRecord
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanFile(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list files: %w", err)
	}
	return records, nil
}

func scanFile(stmt *sqlite.Stmt) FileRecord {
	return FileRecord{
		FileID:           stmt.ColumnText(0),
		OwnerID:          stmt.ColumnText(1),
		OriginalFilename: stmt.ColumnText(2),
		MimeType:         stmt.ColumnText(3),
		SizeBytes:        stmt.ColumnInt64(4),
		Container:        stmt.ColumnText(5),
		ObjectPath:       stmt.ColumnText(6),
		Checksum:         stmt.ColumnText(7),
		LineageParentID:  stmt.ColumnText(8),
		OperationID:      stmt.ColumnText(9),
		PageCount:        stmt.ColumnInt(10),
		CreatedAt:        time.UnixMilli(stmt.ColumnInt64(11)).UTC(),
	}
}

// --- Operations ---

func (c *SQLiteCatalog) InsertOperation(ctx context.Context, record OperationRecord) error {
	if record.OperationID == "" {
		return fmt.Errorf("catalog: operation record has empty operation id")
	}
	if record.Status != StatusPending {
		return fmt.Errorf("catalog: new operation %s must be pending, got %s",
			record.OperationID, record.Status)
	}
	if err := validateTerminalFields(record.Status, record.ResultArtifactID, record.Error); err != nil {
		return err
	}

	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: insert operation: %w", err)
	}
	defer c.pool.Put(conn)

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.clock.Now()
	}

	// The raw-message type must drop to a plain byte slice for the
	// driver's parameter binding.
	var options any
	if len(record.Options) > 0 {
		options = []byte(record.Options)
	}

	err = sqlitex.Execute(conn, `INSERT INTO operations
		(operation_id, source_artifact_id, kind, options, status,
		 result_artifact_id, error, requested_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.OperationID,
				record.SourceArtifactID,
				record.Kind,
				options,
				string(record.Status),
				record.RequestedBy,
				createdAt.UnixMilli(),
				createdAt.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("catalog: insert operation %s: %w", record.OperationID, err)
	}
	return nil
}

func (c *SQLiteCatalog) FindOperation(ctx context.Context, operationID string) (OperationRecord, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return OperationRecord{}, fmt.Errorf("catalog: find operation: %w", err)
	}
	defer c.pool.Put(conn)

	return findOperation(conn, operationID)
}

func findOperation(conn *sqlite.Conn, operationID string) (OperationRecord, error) {
	var record OperationRecord
	found := false

	err := sqlitex.Execute(conn, `SELECT operation_id,
		source_artifact_id, kind, options, status, result_artifact_id,
		error, requested_by, created_at, updated_at
		FROM operations WHERE operation_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{operationID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = scanOperation(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return OperationRecord{}, fmt.Errorf("catalog: find operation %s: %w", operationID, err)
	}
	if !found {
		return OperationRecord{}, ErrNotFound
	}
	return record, nil
}

// UpdateOperation applies one status transition inside a savepoint:
// the current row is read, the transition checked against the state
// machine, and the row updated, all under the same transaction, so
// concurrent updaters cannot both move the record.
func (c *SQLiteCatalog) UpdateOperation(ctx context.Context, operationID string, update OperationUpdate) (record OperationRecord, err error) {
	if !update.Status.Valid() {
		return OperationRecord{}, fmt.Errorf("catalog: unknown status %q", update.Status)
	}
	if err := validateTerminalFields(update.Status, update.ResultArtifactID, update.Error); err != nil {
		return OperationRecord{}, err
	}

	conn, err := c.pool.Take(ctx)
	if err != nil {
		return OperationRecord{}, fmt.Errorf("catalog: update operation: %w", err)
	}
	defer c.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer release(&err)

	record, err = findOperation(conn, operationID)
	if err != nil {
		return OperationRecord{}, err
	}

	if !record.Status.CanTransitionTo(update.Status) {
		return OperationRecord{}, &TransitionError{
			OperationID: operationID,
			From:        record.Status,
			To:          update.Status,
		}
	}

	now := c.clock.Now()

	var resultArtifactID any
	if update.ResultArtifactID != "" {
		resultArtifactID = update.ResultArtifactID
	}
	var errorMessage any
	if update.Error != "" {
		errorMessage = update.Error
	}

	err = sqlitex.Execute(conn, `UPDATE operations
		SET status = ?, result_artifact_id = ?, error = ?, updated_at = ?
		WHERE operation_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(update.Status),
				resultArtifactID,
				errorMessage,
				now.UnixMilli(),
				operationID,
			},
		})
	if err != nil {
		return OperationRecord{}, fmt.Errorf("catalog: update operation %s: %w", operationID, err)
	}

	record.Status = update.Status
	record.ResultArtifactID = update.ResultArtifactID
	record.Error = update.Error
	record.UpdatedAt = now.UTC()

	c.logger.Info("operation updated",
		"operation_id", operationID,
		"status", string(update.Status),
	)
	return record, nil
}

func scanOperation(stmt *sqlite.Stmt) OperationRecord {
	var options []byte
	if !stmt.ColumnIsNull(3) {
		options = make([]byte, stmt.ColumnLen(3))
		stmt.ColumnBytes(3, options)
	}
	return OperationRecord{
		OperationID:      stmt.ColumnText(0),
		SourceArtifactID: stmt.ColumnText(1),
		Kind:             stmt.ColumnText(2),
		Options:          options,
		Status:           OperationStatus(stmt.ColumnText(4)),
		ResultArtifactID: stmt.ColumnText(5),
		Error:            stmt.ColumnText(6),
		RequestedBy:      stmt.ColumnText(7),
		CreatedAt:        time.UnixMilli(stmt.ColumnInt64(8)).UTC(),
		UpdatedAt:        time.UnixMilli(stmt.ColumnInt64(9)).UTC(),
	}
}
