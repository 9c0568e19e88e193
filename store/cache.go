package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// SQLiteCache persists embeddings on disk keyed by content hash, so index
// rebuilds only embed chunks whose text changed.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	c := &SQLiteCache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		hash TEXT PRIMARY KEY,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var (
		dim  int
		blob []byte
	)
	err := c.db.QueryRowContext(ctx, "SELECT dim, vector FROM embeddings WHERE hash = ?", key).Scan(&dim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(blob, dim)
	if err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return vec, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, vec []float32) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO embeddings (hash, dim, vector) VALUES (?, ?, ?)",
		key, len(vec), encodeVector(vec))
	return err
}

func (c *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT count(*) FROM embeddings").Scan(&n)
	return n, err
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d", len(buf), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
