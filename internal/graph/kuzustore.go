//go:build cgo

package graph

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	kuzu "github.com/kuzudb/go-kuzu"
)

// impactMaxDepth bounds the dependents walk used by AssessImpact.
const impactMaxDepth = 64

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given path, so the projection survives across runs. KuzuDB creates the
// leaf itself; the parent directory is created here.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(dbPath string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database %s: %w", dbPath, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS File(
		path STRING,
		language STRING,
		size INT64,
		extraction_method STRING,
		PRIMARY KEY(path)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Symbol(
		id STRING,
		name STRING,
		kind STRING,
		exported BOOLEAN,
		file_path STRING,
		line_start INT64,
		line_end INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS DEFINES(FROM File TO Symbol)`,
	`CREATE REL TABLE IF NOT EXISTS IMPORTS(FROM File TO File, import_source STRING, import_form STRING, alias STRING)`,
	`CREATE REL TABLE IF NOT EXISTS CALLS(FROM Symbol TO Symbol, calls INT64, method_call BOOLEAN, optional_chain BOOLEAN)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// Reset deletes every node together with its relationships.
func (s *KuzuStore) Reset(_ context.Context) error {
	for _, stmt := range []string{
		"MATCH (s:Symbol) DETACH DELETE s",
		"MATCH (f:File) DETACH DELETE f",
	} {
		if err := s.exec(stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// ---------- Write operations ----------

// AddFile inserts a File node.
func (s *KuzuStore) AddFile(_ context.Context, file SourceFile) error {
	return s.exec(
		"CREATE (f:File {path: $path, language: $lang, size: $size, extraction_method: $method})",
		map[string]any{
			"path":   file.Path,
			"lang":   string(file.Language),
			"size":   file.Size,
			"method": string(file.Method),
		},
	)
}

// AddSymbol inserts a Symbol node and links it to its file, if present.
func (s *KuzuStore) AddSymbol(_ context.Context, sym Symbol) error {
	id := sym.Key().String()
	err := s.exec(
		`CREATE (s:Symbol {
			id: $id,
			name: $name,
			kind: $kind,
			exported: $exported,
			file_path: $fp,
			line_start: $ls,
			line_end: $le
		})`,
		map[string]any{
			"id":       id,
			"name":     sym.Name,
			"kind":     string(sym.Kind),
			"exported": sym.Exported,
			"fp":       sym.FilePath,
			"ls":       int64(sym.LineStart),
			"le":       int64(sym.LineEnd),
		},
	)
	if err != nil {
		return err
	}
	return s.exec(
		`MATCH (f:File {path: $fp}), (s:Symbol {id: $id}) CREATE (f)-[:DEFINES]->(s)`,
		map[string]any{"fp": sym.FilePath, "id": id},
	)
}

// AddEdge inserts an IMPORTS or CALLS relationship. Both endpoints must
// already exist.
func (s *KuzuStore) AddEdge(_ context.Context, edge Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	if edge.Kind == EdgeKindFileImport {
		return s.exec(
			`MATCH (a:File {path: $src}), (b:File {path: $dst})
			 CREATE (a)-[:IMPORTS {import_source: $source, import_form: $form, alias: $alias}]->(b)`,
			map[string]any{
				"src":    edge.FromFile,
				"dst":    edge.ToFile,
				"source": edge.Metadata.ImportSource,
				"form":   string(edge.Metadata.ImportForm),
				"alias":  edge.Metadata.Alias,
			},
		)
	}
	return s.exec(
		`MATCH (a:Symbol {id: $src}), (b:Symbol {id: $dst})
		 CREATE (a)-[:CALLS {calls: $calls, method_call: $method, optional_chain: $opt_chain}]->(b)`,
		map[string]any{
			"src":       edge.FromSymbol.String(),
			"dst":       edge.ToSymbol.String(),
			"calls":     int64(edge.Metadata.Calls),
			"method":    edge.Metadata.IsMethodCall,
			"opt_chain": edge.Metadata.OptionalChain,
		},
	)
}

// ---------- Graph traversal ----------

// GetDependencies performs a BFS from nodeID, over IMPORTS for file paths
// and CALLS for symbol ids. It returns one DependencyChain per reachable node.
func (s *KuzuStore) GetDependencies(_ context.Context, nodeID string, dir Direction, maxDepth int) ([]DependencyChain, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	type bfsEntry struct {
		path  []string
		depth int
	}
	visited := map[string]bool{nodeID: true}
	queue := []bfsEntry{{path: []string{nodeID}, depth: 0}}
	var chains []DependencyChain

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		tip := cur.path[len(cur.path)-1]
		neighbors, err := s.neighbors(tip, dir)
		if err != nil {
			return nil, err
		}
		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			newPath := make([]string, len(cur.path)+1)
			copy(newPath, cur.path)
			newPath[len(cur.path)] = nb
			chains = append(chains, DependencyChain{
				Nodes: newPath,
				Depth: cur.depth + 1,
			})
			queue = append(queue, bfsEntry{path: newPath, depth: cur.depth + 1})
		}
	}
	return chains, nil
}

// neighbors returns immediate neighbours of a file path or symbol id.
func (s *KuzuStore) neighbors(id string, dir Direction) ([]string, error) {
	_, isSymbol := ParseSymbolKey(id)

	var cypher string
	switch {
	case dir == DirectionDependencies && isSymbol:
		cypher = "MATCH (a:Symbol {id: $id})-[:CALLS]->(b:Symbol) RETURN b.id"
	case dir == DirectionDependents && isSymbol:
		cypher = "MATCH (a:Symbol)-[:CALLS]->(b:Symbol {id: $id}) RETURN a.id"
	case dir == DirectionDependencies:
		cypher = "MATCH (a:File {path: $id})-[:IMPORTS]->(b:File) RETURN b.path"
	case dir == DirectionDependents:
		cypher = "MATCH (a:File)-[:IMPORTS]->(b:File {path: $id}) RETURN a.path"
	default:
		return nil, fmt.Errorf("kuzu: unknown direction: %s", dir)
	}
	rows, err := s.query(cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, toString(r[0]))
	}
	sort.Strings(out)
	return out, nil
}

// AssessImpact computes the blast radius of the given set of changed files
// by walking IMPORTS edges backwards to every importer.
func (s *KuzuStore) AssessImpact(ctx context.Context, changedFiles []string) (*ImpactResult, error) {
	totalFiles, err := s.countTable("File")
	if err != nil {
		return nil, err
	}

	changed := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changed[f] = true
	}
	directSet := map[string]bool{}
	transitiveSet := map[string]bool{}

	for _, f := range changedFiles {
		chains, err := s.GetDependencies(ctx, f, DirectionDependents, impactMaxDepth)
		if err != nil {
			return nil, err
		}
		for _, c := range chains {
			last := c.Nodes[len(c.Nodes)-1]
			if changed[last] {
				continue
			}
			transitiveSet[last] = true
			if c.Depth == 1 {
				directSet[last] = true
			}
		}
	}

	risk := 0.0
	if totalFiles > 0 {
		risk = math.Min(1.0, float64(len(transitiveSet))/float64(totalFiles))
	}
	return &ImpactResult{
		DirectlyAffected:     setToSlice(directSet),
		TransitivelyAffected: setToSlice(transitiveSet),
		RiskScore:            risk,
	}, nil
}

// ---------- Edge enumeration ----------

// GetAllEdges returns all IMPORTS and CALLS relationships as edges.
func (s *KuzuStore) GetAllEdges(_ context.Context) ([]Edge, error) {
	var edges []Edge

	rows, err := s.query(
		`MATCH (a:File)-[r:IMPORTS]->(b:File)
		 RETURN a.path, b.path, r.import_source, r.import_form, r.alias`, nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		edges = append(edges, FileEdge(toString(r[0]), toString(r[1]), EdgeMetadata{
			ImportSource: toString(r[2]),
			ImportForm:   ImportForm(toString(r[3])),
			Alias:        toString(r[4]),
		}))
	}

	rows, err = s.query(
		`MATCH (a:Symbol)-[r:CALLS]->(b:Symbol)
		 RETURN a.file_path, a.name, a.line_start, b.file_path, b.name, b.line_start,
		        r.calls, r.method_call, r.optional_chain`, nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		from := SymbolKey{FilePath: toString(r[0]), Name: toString(r[1]), Line: toInt(r[2])}
		to := SymbolKey{FilePath: toString(r[3]), Name: toString(r[4]), Line: toInt(r[5])}
		edges = append(edges, SymbolEdge(from, to, EdgeMetadata{
			Calls:         toInt(r[6]),
			IsMethodCall:  toBool(r[7]),
			OptionalChain: toBool(r[8]),
		}))
	}
	return edges, nil
}

// ---------- Stats ----------

// Stats returns node counts and the number of dependency relationships.
func (s *KuzuStore) Stats(_ context.Context) (*GraphStats, error) {
	files, err := s.countTable("File")
	if err != nil {
		return nil, err
	}
	symbols, err := s.countTable("Symbol")
	if err != nil {
		return nil, err
	}
	edges := 0
	for _, rel := range []string{"IMPORTS", "CALLS"} {
		n, err := s.countRel(rel)
		if err != nil {
			return nil, err
		}
		edges += n
	}
	return &GraphStats{
		FileCount:   files,
		SymbolCount: symbols,
		EdgeCount:   edges,
	}, nil
}

// ---------- Internal helpers ----------

// exec runs a Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}

	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows. Each row is
// a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// countTable returns the number of rows in a node table. The table name
// is an internal constant.
func (s *KuzuStore) countTable(table string) (int, error) {
	return s.count(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table))
}

func (s *KuzuStore) countRel(rel string) (int, error) {
	return s.count(fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", rel))
}

func (s *KuzuStore) count(cypher string) (int, error) {
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
