// Package store persists extraction results in an embedded SQLite index.
//
// Writes are per file and atomic: StoreFile and DeleteFile each run in one
// transaction, so a failure never leaves symbols or references pointing at a
// missing file. Edges are written separately by ReplaceEdges once every file
// of a batch has been stored.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dusk-indust/codegraph/internal/graph"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrFileNotFound       = errors.New("file not found")
	ErrSymbolNotFound     = errors.New("symbol not found")
)

// DB is a handle on the index database. It is safe for concurrent use;
// writes are serialized by the single pooled connection.
type DB struct {
	conn  *sql.DB
	path  string
	stmts statements
}

// statements are prepared once at Open and bound to each transaction with
// tx.StmtContext, so a batch reuses the same compiled statements.
type statements struct {
	upsertFile         *sql.Stmt
	fileID             *sql.Stmt
	symbolID           *sql.Stmt
	insertSymbol       *sql.Stmt
	insertReference    *sql.Stmt
	insertEdge         *sql.Stmt
	deleteOutgoing     *sql.Stmt
	deleteIncident     *sql.Stmt
	deleteIncomingSyms *sql.Stmt
	deleteReferences   *sql.Stmt
	deleteSymbols      *sql.Stmt
	deleteFile         *sql.Stmt
}

// Open opens or creates the index at dbPath, applying pragmas and schema.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	db := &DB{conn: conn, path: dbPath}
	if err := db.prepare(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) prepare() error {
	defs := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&db.stmts.upsertFile, `INSERT INTO files
			(repo_id, path, language, size, content_hash, indexed_at, extraction_method, partial, diagnostic)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (repo_id, path) DO UPDATE SET
				language = excluded.language,
				size = excluded.size,
				content_hash = excluded.content_hash,
				indexed_at = excluded.indexed_at,
				extraction_method = excluded.extraction_method,
				partial = excluded.partial,
				diagnostic = excluded.diagnostic
			RETURNING id`},
		{&db.stmts.fileID, `SELECT id FROM files WHERE repo_id = ? AND path = ?`},
		{&db.stmts.symbolID, `SELECT s.id FROM symbols s JOIN files f ON f.id = s.file_id
			WHERE f.repo_id = ? AND f.path = ? AND s.name = ? AND s.line_start = ?
			ORDER BY s.id LIMIT 1`},
		{&db.stmts.insertSymbol, `INSERT INTO symbols
			(file_id, name, kind, line_start, line_end, col_start, col_end,
			 signature, documentation, exported, async, access_modifier, extraction_method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&db.stmts.insertReference, `INSERT INTO references_
			(file_id, target_name, kind, line, col, import_source, import_form, alias,
			 type_only, method_call, optional_chain, receiver)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&db.stmts.insertEdge, `INSERT INTO dependency_edges
			(repo_id, kind, from_file_id, to_file_id, from_symbol_id, to_symbol_id,
			 import_source, import_form, alias, method_call, optional_chain, calls)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&db.stmts.deleteOutgoing, `DELETE FROM dependency_edges
			WHERE from_file_id = ?1
			   OR from_symbol_id IN (SELECT id FROM symbols WHERE file_id = ?1)`},
		{&db.stmts.deleteIncident, `DELETE FROM dependency_edges
			WHERE from_file_id = ?1 OR to_file_id = ?1
			   OR from_symbol_id IN (SELECT id FROM symbols WHERE file_id = ?1)
			   OR to_symbol_id IN (SELECT id FROM symbols WHERE file_id = ?1)`},
		{&db.stmts.deleteIncomingSyms, `DELETE FROM dependency_edges
			WHERE to_symbol_id IN (SELECT id FROM symbols WHERE file_id = ?)`},
		{&db.stmts.deleteReferences, `DELETE FROM references_ WHERE file_id = ?`},
		{&db.stmts.deleteSymbols, `DELETE FROM symbols WHERE file_id = ?`},
		{&db.stmts.deleteFile, `DELETE FROM files WHERE id = ?`},
	}
	for _, d := range defs {
		stmt, err := db.conn.Prepare(d.query)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		*d.dst = stmt
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close releases prepared statements and the connection.
func (db *DB) Close() error {
	for _, stmt := range []*sql.Stmt{
		db.stmts.upsertFile, db.stmts.fileID, db.stmts.symbolID,
		db.stmts.insertSymbol, db.stmts.insertReference, db.stmts.insertEdge,
		db.stmts.deleteOutgoing, db.stmts.deleteIncident, db.stmts.deleteIncomingSyms,
		db.stmts.deleteReferences, db.stmts.deleteSymbols, db.stmts.deleteFile,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}

// inTx runs fn in a transaction, rolling back on error.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ----- Repositories -----

// Repository is one indexed working copy.
type Repository struct {
	ID         string
	Root       string
	LastCommit string
	IndexedAt  time.Time
}

// EnsureRepository returns the repository registered for root, creating it
// with a fresh id when absent.
func (db *DB) EnsureRepository(ctx context.Context, root string) (*Repository, error) {
	repo, err := db.GetRepository(ctx, root)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrRepositoryNotFound) {
		return nil, err
	}
	repo = &Repository{ID: uuid.NewString(), Root: root}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO repositories (id, root) VALUES (?, ?)`, repo.ID, repo.Root,
	); err != nil {
		return nil, fmt.Errorf("inserting repository: %w", err)
	}
	return repo, nil
}

// GetRepository looks up a repository by its root path.
func (db *DB) GetRepository(ctx context.Context, root string) (*Repository, error) {
	var repo Repository
	var indexedAt int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, root, last_commit, indexed_at FROM repositories WHERE root = ?`, root,
	).Scan(&repo.ID, &repo.Root, &repo.LastCommit, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepositoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying repository: %w", err)
	}
	repo.IndexedAt = fromUnixNano(indexedAt)
	return &repo, nil
}

// MarkIndexed records the commit an index run reflects and when it ran.
// commit is empty outside a VCS working copy.
func (db *DB) MarkIndexed(ctx context.Context, repoID, commit string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE repositories SET last_commit = ?, indexed_at = ? WHERE id = ?`,
		commit, at.UnixNano(), repoID,
	)
	if err != nil {
		return fmt.Errorf("updating repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRepositoryNotFound
	}
	return nil
}

// ----- Per-file writes -----

// StoreFile atomically replaces a file's extraction result: the file row,
// its symbols and its references. The file's outgoing edges and the edges
// that pointed at its old symbols are removed; incoming file edges survive
// because the file row keeps its id. Callers rebuild edges with
// ReplaceEdges once the whole batch is stored.
func (db *DB) StoreFile(ctx context.Context, repoID string, x *graph.Extraction) error {
	f := x.File
	var diagnostic string
	if len(x.Diagnostics) > 0 {
		diagnostic = x.Diagnostics[0].String()
	}
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var fileID int64
		if err := tx.StmtContext(ctx, db.stmts.upsertFile).QueryRowContext(ctx,
			repoID, f.Path, string(f.Language), f.Size, f.ContentHash,
			f.IndexedAt.UnixNano(), string(f.Method), x.Partial, diagnostic,
		).Scan(&fileID); err != nil {
			return fmt.Errorf("upserting file: %w", err)
		}

		for _, stmt := range []*sql.Stmt{db.stmts.deleteOutgoing, db.stmts.deleteIncomingSyms, db.stmts.deleteReferences, db.stmts.deleteSymbols} {
			if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, fileID); err != nil {
				return fmt.Errorf("clearing previous rows: %w", err)
			}
		}

		insertSymbol := tx.StmtContext(ctx, db.stmts.insertSymbol)
		for _, s := range x.Symbols {
			if _, err := insertSymbol.ExecContext(ctx,
				fileID, s.Name, string(s.Kind), s.LineStart, s.LineEnd, s.ColStart, s.ColEnd,
				s.Signature, s.Documentation, s.Exported, s.Async, s.AccessModifier, string(s.Method),
			); err != nil {
				return fmt.Errorf("inserting symbol %s: %w", s.Name, err)
			}
		}

		insertRef := tx.StmtContext(ctx, db.stmts.insertReference)
		for _, r := range x.References {
			md := r.Metadata
			if _, err := insertRef.ExecContext(ctx,
				fileID, r.TargetName, string(r.Kind), r.Line, r.Column,
				md.ImportSource, string(md.ImportForm), md.Alias,
				md.TypeOnly, md.IsMethodCall, md.OptionalChain, md.Receiver,
			); err != nil {
				return fmt.Errorf("inserting reference %s: %w", r.TargetName, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", f.Path, err)
	}
	return nil
}

// DeleteFile atomically removes a file and everything derived from it, in
// dependency order: incident edges, references, symbols, then the file row.
// Deleting a file that is not indexed is not an error.
func (db *DB) DeleteFile(ctx context.Context, repoID, path string) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var fileID int64
		err := tx.StmtContext(ctx, db.stmts.fileID).QueryRowContext(ctx, repoID, path).Scan(&fileID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("looking up file: %w", err)
		}
		for _, stmt := range []*sql.Stmt{db.stmts.deleteIncident, db.stmts.deleteReferences, db.stmts.deleteSymbols, db.stmts.deleteFile} {
			if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, fileID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// ReplaceEdges atomically swaps the outgoing edges of path for edges. Every
// endpoint must already be stored.
func (db *DB) ReplaceEdges(ctx context.Context, repoID, path string, edges []graph.Edge) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		fileIDStmt := tx.StmtContext(ctx, db.stmts.fileID)
		symbolIDStmt := tx.StmtContext(ctx, db.stmts.symbolID)

		lookupFile := func(p string) (int64, error) {
			var id int64
			err := fileIDStmt.QueryRowContext(ctx, repoID, p).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("%w: %s", ErrFileNotFound, p)
			}
			return id, err
		}
		lookupSymbol := func(k graph.SymbolKey) (int64, error) {
			var id int64
			err := symbolIDStmt.QueryRowContext(ctx, repoID, k.FilePath, k.Name, k.Line).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, k)
			}
			return id, err
		}

		fileID, err := lookupFile(path)
		if err != nil {
			return err
		}
		if _, err := tx.StmtContext(ctx, db.stmts.deleteOutgoing).ExecContext(ctx, fileID); err != nil {
			return fmt.Errorf("clearing edges: %w", err)
		}

		insert := tx.StmtContext(ctx, db.stmts.insertEdge)
		for _, e := range edges {
			if err := e.Validate(); err != nil {
				return err
			}
			var fromFile, toFile, fromSym, toSym sql.NullInt64
			switch e.Kind {
			case graph.EdgeKindFileImport:
				if e.FromFile != path {
					return fmt.Errorf("edge from %s does not belong to %s", e.FromFile, path)
				}
				to, err := lookupFile(e.ToFile)
				if err != nil {
					return err
				}
				fromFile = sql.NullInt64{Int64: fileID, Valid: true}
				toFile = sql.NullInt64{Int64: to, Valid: true}
			case graph.EdgeKindSymbolUsage:
				if e.FromSymbol.FilePath != path {
					return fmt.Errorf("edge from %s does not belong to %s", e.FromSymbol, path)
				}
				from, err := lookupSymbol(e.FromSymbol)
				if err != nil {
					return err
				}
				to, err := lookupSymbol(e.ToSymbol)
				if err != nil {
					return err
				}
				fromSym = sql.NullInt64{Int64: from, Valid: true}
				toSym = sql.NullInt64{Int64: to, Valid: true}
			}
			md := e.Metadata
			if _, err := insert.ExecContext(ctx,
				repoID, string(e.Kind), fromFile, toFile, fromSym, toSym,
				md.ImportSource, string(md.ImportForm), md.Alias,
				md.IsMethodCall, md.OptionalChain, md.Calls,
			); err != nil {
				return fmt.Errorf("inserting edge: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("edges of %s: %w", path, err)
	}
	return nil
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
