package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// FileRecord is a stored SourceFile plus the outcome of its extraction.
type FileRecord struct {
	graph.SourceFile
	Partial    bool   `json:"partial"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Degraded reports whether the file was indexed by the regex fallback.
func (f FileRecord) Degraded() bool {
	return f.Method == graph.ExtractionRegex
}

const fileColumns = `f.path, f.language, f.size, f.content_hash, f.indexed_at,
	f.extraction_method, f.partial, f.diagnostic`

func scanFile(row interface{ Scan(...any) error }) (FileRecord, error) {
	var rec FileRecord
	var lang, method string
	var indexedAt int64
	err := row.Scan(&rec.Path, &lang, &rec.Size, &rec.ContentHash, &indexedAt,
		&method, &rec.Partial, &rec.Diagnostic)
	rec.Language = graph.Language(lang)
	rec.Method = graph.ExtractionMethod(method)
	rec.IndexedAt = fromUnixNano(indexedAt)
	return rec, err
}

// GetFile returns the stored record for path.
func (db *DB) GetFile(ctx context.Context, repoID, path string) (*FileRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files f WHERE f.repo_id = ? AND f.path = ?`, repoID, path)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying file: %w", err)
	}
	return &rec, nil
}

// ListFiles returns every stored file ordered by path.
func (db *DB) ListFiles(ctx context.Context, repoID string) ([]FileRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files f WHERE f.repo_id = ? ORDER BY f.path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const symbolColumns = `f.path, s.name, s.kind, s.line_start, s.line_end, s.col_start, s.col_end,
	s.signature, s.documentation, s.exported, s.async, s.access_modifier, s.extraction_method`

func (db *DB) querySymbols(ctx context.Context, where string, args ...any) ([]graph.Symbol, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+symbolColumns+` FROM symbols s JOIN files f ON f.id = s.file_id
		 WHERE `+where+` ORDER BY f.path, s.line_start, s.col_start, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}
	defer rows.Close()

	var out []graph.Symbol
	for rows.Next() {
		var s graph.Symbol
		var kind, method string
		if err := rows.Scan(&s.FilePath, &s.Name, &kind, &s.LineStart, &s.LineEnd, &s.ColStart, &s.ColEnd,
			&s.Signature, &s.Documentation, &s.Exported, &s.Async, &s.AccessModifier, &method); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		s.Kind = graph.SymbolKind(kind)
		s.Method = graph.ExtractionMethod(method)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Symbols returns every symbol of the repository.
func (db *DB) Symbols(ctx context.Context, repoID string) ([]graph.Symbol, error) {
	return db.querySymbols(ctx, `f.repo_id = ?`, repoID)
}

// FileSymbols returns the symbols declared in path.
func (db *DB) FileSymbols(ctx context.Context, repoID, path string) ([]graph.Symbol, error) {
	return db.querySymbols(ctx, `f.repo_id = ? AND f.path = ?`, repoID, path)
}

// FindSymbols returns symbols named name across the repository.
func (db *DB) FindSymbols(ctx context.Context, repoID, name string) ([]graph.Symbol, error) {
	return db.querySymbols(ctx, `f.repo_id = ? AND s.name = ?`, repoID, name)
}

const referenceColumns = `f.path, r.target_name, r.kind, r.line, r.col, r.import_source, r.import_form,
	r.alias, r.type_only, r.method_call, r.optional_chain, r.receiver`

func (db *DB) queryReferences(ctx context.Context, where string, args ...any) ([]graph.Reference, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+referenceColumns+` FROM references_ r JOIN files f ON f.id = r.file_id
		 WHERE `+where+` ORDER BY f.path, r.line, r.col, r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	var out []graph.Reference
	for rows.Next() {
		var r graph.Reference
		var kind, form string
		md := &r.Metadata
		if err := rows.Scan(&r.FilePath, &r.TargetName, &kind, &r.Line, &r.Column, &md.ImportSource, &form,
			&md.Alias, &md.TypeOnly, &md.IsMethodCall, &md.OptionalChain, &md.Receiver); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		r.Kind = graph.ReferenceKind(kind)
		md.ImportForm = graph.ImportForm(form)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FileReferences returns the references recorded in path.
func (db *DB) FileReferences(ctx context.Context, repoID, path string) ([]graph.Reference, error) {
	return db.queryReferences(ctx, `f.repo_id = ? AND f.path = ?`, repoID, path)
}

// FindUsages returns every reference whose target is name, matching either
// the imported name or its local alias.
func (db *DB) FindUsages(ctx context.Context, repoID, name string) ([]graph.Reference, error) {
	return db.queryReferences(ctx, `f.repo_id = ? AND (r.target_name = ?2 OR r.alias = ?2)`, repoID, name)
}

// Edges returns every stored edge, file edges first.
func (db *DB) Edges(ctx context.Context, repoID string) ([]graph.Edge, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.kind,
		       COALESCE(ff.path, ''), COALESCE(tf.path, ''),
		       COALESCE(sff.path, ''), COALESCE(fs.name, ''), COALESCE(fs.line_start, 0),
		       COALESCE(stf.path, ''), COALESCE(ts.name, ''), COALESCE(ts.line_start, 0),
		       e.import_source, e.import_form, e.alias, e.method_call, e.optional_chain, e.calls
		FROM dependency_edges e
		LEFT JOIN files ff ON ff.id = e.from_file_id
		LEFT JOIN files tf ON tf.id = e.to_file_id
		LEFT JOIN symbols fs ON fs.id = e.from_symbol_id
		LEFT JOIN files sff ON sff.id = fs.file_id
		LEFT JOIN symbols ts ON ts.id = e.to_symbol_id
		LEFT JOIN files stf ON stf.id = ts.file_id
		WHERE e.repo_id = ?
		ORDER BY e.kind, e.id`, repoID)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var e graph.Edge
		var kind, form string
		md := &e.Metadata
		if err := rows.Scan(&kind, &e.FromFile, &e.ToFile,
			&e.FromSymbol.FilePath, &e.FromSymbol.Name, &e.FromSymbol.Line,
			&e.ToSymbol.FilePath, &e.ToSymbol.Name, &e.ToSymbol.Line,
			&md.ImportSource, &form, &md.Alias, &md.IsMethodCall, &md.OptionalChain, &md.Calls); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		e.Kind = graph.EdgeKind(kind)
		md.ImportForm = graph.ImportForm(form)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Dependents returns the files outside paths that hold an edge into any of
// paths, either by import or by a symbol usage. Results are sorted.
func (db *DB) Dependents(ctx context.Context, repoID string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	list, err := jsonList(paths)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		WITH targets(path) AS (SELECT value FROM json_each(?2))
		SELECT ff.path FROM dependency_edges e
		JOIN files ff ON ff.id = e.from_file_id
		JOIN files tf ON tf.id = e.to_file_id
		WHERE e.repo_id = ?1 AND tf.path IN (SELECT path FROM targets)
		UNION
		SELECT sff.path FROM dependency_edges e
		JOIN symbols fs ON fs.id = e.from_symbol_id
		JOIN files sff ON sff.id = fs.file_id
		JOIN symbols ts ON ts.id = e.to_symbol_id
		JOIN files stf ON stf.id = ts.file_id
		WHERE e.repo_id = ?1 AND stf.path IN (SELECT path FROM targets)
		ORDER BY 1`, repoID, list)
	if err != nil {
		return nil, fmt.Errorf("querying dependents: %w", err)
	}
	defer rows.Close()

	skip := make(map[string]bool, len(paths))
	for _, p := range paths {
		skip[p] = true
	}
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning dependent: %w", err)
		}
		if !skip[p] {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

// Stats counts the stored rows of the repository.
func (db *DB) Stats(ctx context.Context, repoID string) (*graph.GraphStats, error) {
	var st graph.GraphStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files WHERE repo_id = ?1),
			(SELECT COUNT(*) FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.repo_id = ?1),
			(SELECT COUNT(*) FROM references_ r JOIN files f ON f.id = r.file_id WHERE f.repo_id = ?1),
			(SELECT COUNT(*) FROM dependency_edges WHERE repo_id = ?1)`, repoID,
	).Scan(&st.FileCount, &st.SymbolCount, &st.ReferenceCount, &st.EdgeCount)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return &st, nil
}

// ImportSite is one import reference: the importing file and the raw
// specifier.
type ImportSite struct {
	Path   string
	Source string
}

// ImportSites lists every import specifier of the repository.
func (db *DB) ImportSites(ctx context.Context, repoID string) ([]ImportSite, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT f.path, r.import_source FROM references_ r
		JOIN files f ON f.id = r.file_id
		WHERE f.repo_id = ? AND r.kind = ? AND r.import_source <> ''
		ORDER BY f.path, r.import_source`, repoID, string(graph.ReferenceKindImport))
	if err != nil {
		return nil, fmt.Errorf("querying import sites: %w", err)
	}
	defer rows.Close()

	var out []ImportSite
	for rows.Next() {
		var s ImportSite
		if err := rows.Scan(&s.Path, &s.Source); err != nil {
			return nil, fmt.Errorf("scanning import site: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FilesCalling returns the files holding a call reference to any of names.
func (db *DB) FilesCalling(ctx context.Context, repoID string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	list, err := jsonList(names)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT f.path FROM references_ r
		JOIN files f ON f.id = r.file_id
		WHERE f.repo_id = ? AND r.kind = ?
		  AND r.target_name IN (SELECT value FROM json_each(?))
		ORDER BY f.path`, repoID, string(graph.ReferenceKindCall), list)
	if err != nil {
		return nil, fmt.Errorf("querying callers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning caller: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// jsonList encodes values as a JSON array for json_each. A single bound
// array keeps large lists under SQLite's host parameter limit.
func jsonList(values []string) (string, error) {
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}
