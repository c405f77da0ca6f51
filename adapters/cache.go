package adapters

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pulsecast/pulsecast/model"
)

// CachedEmbeddingClient memoizes embeddings in SQLite, keyed by the hash of
// (model, text). The wrapped model is frozen, so a cached vector never goes
// stale; after the first pass over a dataset every rerun and every extra
// epoch is served locally.
type CachedEmbeddingClient struct {
	inner model.EmbeddingClient
	db    *sql.DB
	model string

	// Hits and Misses are plain counters for logging; the pipeline is
	// single-threaded around embedding passes.
	Hits   int
	Misses int
}

// NewCachedEmbeddingClient opens (creating if necessary) the cache database
// at path and wraps inner. The model identity distinguishes caches of
// different pretrained backends sharing one file.
func NewCachedEmbeddingClient(inner model.EmbeddingClient, modelID, path string) (*CachedEmbeddingClient, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		key    TEXT PRIMARY KEY,
		model  TEXT NOT NULL,
		dims   INTEGER NOT NULL,
		vector BLOB NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache schema: %w", err)
	}
	return &CachedEmbeddingClient{inner: inner, db: db, model: modelID}, nil
}

// Close releases the cache database handle.
func (c *CachedEmbeddingClient) Close() error { return c.db.Close() }

// GenerateEmbedding implements EmbeddingClient with a cache-first lookup.
func (c *CachedEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE key = ?`, key).Scan(&blob)
	switch {
	case err == nil:
		c.Hits++
		return decodeVector(blob), nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("embedding cache lookup: %w", err)
	}

	vec, err := c.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.Misses++
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (key, model, dims, vector) VALUES (?, ?, ?, ?)`,
		key, c.model, len(vec), encodeVector(vec)); err != nil {
		return nil, fmt.Errorf("embedding cache store: %w", err)
	}
	return vec, nil
}

func (c *CachedEmbeddingClient) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeVector(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return out
}
