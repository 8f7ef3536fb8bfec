// Package memory implements a hybrid keyword+vector recall backend:
// namespaced upsert storage with merged full-text and
// cosine-similarity search.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Config configures a Store.
type Config struct {
	Path             string  // sqlite file path, or ":memory:"
	VectorWeight     float64 // default 0.7
	KeywordWeight    float64 // default 0.3
	MinContentLength int     // entries shorter than this are stored without an embedding
	CacheCapacity    int
}

func (c *Config) setDefaults() {
	if c.VectorWeight == 0 && c.KeywordWeight == 0 {
		c.VectorWeight = 0.7
		c.KeywordWeight = 0.3
	}
	if c.MinContentLength == 0 {
		c.MinContentLength = 1
	}
}

// Store is the hybrid memory backend. One Store instance corresponds
// to one sqlite database; it is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	embedder Embedder
	cache    *embeddingCache
	cfg      Config
}

// Open creates (or attaches to) the sqlite-backed store at cfg.Path,
// creating the keyword (FTS5) and vector tables if absent. embedder may
// be nil, in which case NullEmbedder is used and recall is keyword-only.
func Open(cfg Config, embedder Embedder) (*Store, error) {
	cfg.setDefaults()
	if embedder == nil {
		embedder = NullEmbedder{}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("memory: opening store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &Store{db: db, embedder: embedder, cache: newEmbeddingCache(cfg.CacheCapacity), cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			key UNINDEXED, content, content='entries', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, key, content) VALUES (new.rowid, new.key, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, key, content) VALUES('delete', old.rowid, old.key, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, key, content) VALUES('delete', old.rowid, old.key, old.content);
			INSERT INTO entries_fts(rowid, key, content) VALUES (new.rowid, new.key, new.content);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("memory: migrating: %w", err)
		}
	}
	return nil
}

// Store upserts a single entry under key, generating an embedding when
// the embedder is configured and content meets the minimum length.
func (s *Store) StoreEntry(ctx context.Context, key, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var embedding []float32
	if s.embedder.Dimension() > 0 && len(content) >= s.cfg.MinContentLength {
		hash := contentHash(content)
		if cached, ok := s.cache.get(hash); ok {
			embedding = cached
		} else {
			vec, err := s.embedder.Embed(ctx, content)
			if err != nil {
				return fmt.Errorf("memory: embedding content: %w", err)
			}
			embedding = vec
			s.cache.set(hash, vec)
		}
	}

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (key, content, metadata, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, key, content, metaJSON, encodeVector(embedding), now, now)
	if err != nil {
		return fmt.Errorf("memory: storing entry: %w", err)
	}
	return nil
}

// Forget deletes the entry at key, reporting whether it existed.
func (s *Store) Forget(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("memory: forgetting entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns every entry whose key has the given prefix (empty
// prefix lists everything), ordered by key.
func (s *Store) List(ctx context.Context, keyPrefix string) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, content, metadata, embedding, created_at, updated_at
		FROM entries WHERE key LIKE ? || '%' ORDER BY key
	`, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("memory: listing entries: %w", err)
	}
	defer rows.Close()

	var out []models.MemoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Recall runs a hybrid keyword+vector search: the keyword and vector
// result sets are independently scored, then merged with
// Config.KeywordWeight/VectorWeight. Results are sorted descending by
// merged score and capped at opts.Limit.
func (s *Store) Recall(ctx context.Context, query string, opts models.RecallOptions) ([]models.MemoryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	keywordScores, err := s.keywordSearch(ctx, query, opts.KeyPrefix)
	if err != nil {
		return nil, err
	}

	var queryVec []float32
	if s.embedder.Dimension() > 0 && strings.TrimSpace(query) != "" {
		hash := contentHash(query)
		if cached, ok := s.cache.get(hash); ok {
			queryVec = cached
		} else {
			vec, err := s.embedder.Embed(ctx, query)
			if err == nil {
				queryVec = vec
				s.cache.set(hash, vec)
			}
		}
	}

	entries, err := s.List(ctx, opts.KeyPrefix)
	if err != nil {
		return nil, err
	}

	merged := make([]models.MemoryResult, 0, len(entries))
	for _, entry := range entries {
		if !matchesFilter(entry.Metadata, opts.Filter) {
			continue
		}
		kw := keywordScores[entry.Key]
		var vecScore float64
		if queryVec != nil && len(entry.Embedding) == len(queryVec) && len(queryVec) > 0 {
			vecScore = cosineSimilarity(queryVec, entry.Embedding)
		}
		if kw == 0 && vecScore == 0 {
			continue
		}
		score := s.cfg.VectorWeight*vecScore + s.cfg.KeywordWeight*kw
		if score < opts.MinScore {
			continue
		}
		merged = append(merged, models.MemoryResult{
			Entry:        entry,
			Score:        score,
			KeywordScore: kw,
			VectorScore:  vecScore,
		})
	}

	sortResultsDescending(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// keywordSearch returns a key → normalized-BM25 score map, scoped to
// keyPrefix. FTS5's bm25() is unbounded and lower-is-better, so scores
// are inverted and squashed into (0, 1].
func (s *Store) keywordSearch(ctx context.Context, query, keyPrefix string) (map[string]float64, error) {
	scores := map[string]float64{}
	query = strings.TrimSpace(query)
	if query == "" {
		return scores, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entries_fts.key, bm25(entries_fts)
		FROM entries_fts
		WHERE entries_fts MATCH ? AND entries_fts.key LIKE ? || '%'
	`, ftsQuery(query), keyPrefix)
	if err != nil {
		// A MATCH query with no indexable tokens is a user-facing no-op,
		// not a caller error.
		return scores, nil
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var bm25 float64
		if err := rows.Scan(&key, &bm25); err != nil {
			return nil, fmt.Errorf("memory: scanning keyword match: %w", err)
		}
		scores[key] = 1 / (1 + math.Abs(bm25))
	}
	return scores, rows.Err()
}

// ftsQuery escapes a free-text query into an FTS5 MATCH expression
// that ORs each token, so partial phrase overlap still scores.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Reindex regenerates embeddings for every entry that has content but
// no stored vector, e.g. after an embedder is newly configured.
// Failures on individual entries are collected, not fatal.
func (s *Store) Reindex(ctx context.Context) (reindexed int, errs []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embedder.Dimension() == 0 {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, content FROM entries WHERE embedding IS NULL OR length(embedding) = 0`)
	if err != nil {
		return 0, []error{err}
	}
	type pending struct{ key, content string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.key, &p.content); err != nil {
			errs = append(errs, err)
			continue
		}
		todo = append(todo, p)
	}
	rows.Close()

	for _, p := range todo {
		vec, err := s.embedder.Embed(ctx, p.content)
		if err != nil {
			errs = append(errs, fmt.Errorf("memory: reindexing %q: %w", p.key, err))
			continue
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE entries SET embedding = ? WHERE key = ?`, encodeVector(vec), p.key); err != nil {
			errs = append(errs, fmt.Errorf("memory: persisting reindex of %q: %w", p.key, err))
			continue
		}
		reindexed++
	}
	return reindexed, errs
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEntry(rows *sql.Rows) (models.MemoryEntry, error) {
	var entry models.MemoryEntry
	var metaJSON sql.NullString
	var embeddingBlob []byte
	var createdUnix, updatedUnix int64

	if err := rows.Scan(&entry.Key, &entry.Content, &metaJSON, &embeddingBlob, &createdUnix, &updatedUnix); err != nil {
		return entry, fmt.Errorf("memory: scanning entry: %w", err)
	}
	entry.Metadata = decodeMetadata(metaJSON.String)
	entry.Embedding = decodeVector(embeddingBlob)
	entry.CreatedAt = time.Unix(createdUnix, 0).UTC()
	entry.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	return entry, nil
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortResultsDescending(results []models.MemoryResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func contentHash(content string) string {
	return fmt.Sprintf("%x", xxhash.Sum64String(content))
}

func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
