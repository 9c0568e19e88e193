package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"studyrag/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("record not found")

// ChunkStore is the vector index backend. The index is read-only while
// enrichment runs; ReplaceChunks swaps the whole index in one transaction.
type ChunkStore interface {
	Search(ctx context.Context, queryVec []float32, limit int) ([]types.ScoredChunk, error)
	ReplaceChunks(ctx context.Context, chunks []types.Chunk) error
	CountChunks(ctx context.Context) (int, error)
	// IndexVersion changes on every ReplaceChunks. An index that was never
	// built reports "".
	IndexVersion(ctx context.Context) (string, error)
}

type RecordStore interface {
	SaveCoverage(ctx context.Context, c types.ExamCoverage) error
	GetCoverage(ctx context.Context, examID string) (*types.ExamCoverage, error)
	SaveEnriched(ctx context.Context, c types.EnrichedCoverage) error
	GetEnriched(ctx context.Context, examID string) (*types.EnrichedCoverage, error)
	ListEnriched(ctx context.Context) ([]types.EnrichedCoverage, error)
	SavePlan(ctx context.Context, p types.StudyPlan) error
	GetPlan(ctx context.Context, planID string) (*types.StudyPlan, error)
}

type DBStorer interface {
	ChunkStore
	RecordStore
}

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
		dim:  dim,
	}, nil
}

func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.ScoredChunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		return nil, nil
	}

	vector := pgvector.NewVector(queryVec)

	query := `
		SELECT id, file_id, text, token_count, page_start, page_end, section_type,
		       chapter_number, chapter_title,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, vector, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.ScoredChunk
	for rows.Next() {
		var (
			c       types.ScoredChunk
			section string
		)
		if err := rows.Scan(
			&c.ID,
			&c.FileID,
			&c.Text,
			&c.TokenCount,
			&c.PageStart,
			&c.PageEnd,
			&section,
			&c.ChapterNumber,
			&c.ChapterTitle,
			&c.Score); err != nil {
			return nil, err
		}
		c.SectionType = types.ParseSectionType(section)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ReplaceChunks rebuilds the whole index: existing chunks are dropped and
// the given chunks inserted in a single transaction.
func (p *PostgresStore) ReplaceChunks(ctx context.Context, chunks []types.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE chunks"); err != nil {
		return fmt.Errorf("truncate chunks: %w", err)
	}

	query := `
	INSERT INTO chunks (id, file_id, text, token_count, page_start, page_end, section_type,
	                    chapter_number, chapter_title, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if p.dim > 0 && len(c.Embedding) != p.dim {
			return fmt.Errorf("chunk %s: embedding dimension %d, want %d", c.ID, len(c.Embedding), p.dim)
		}
		batch.Queue(query,
			c.ID, c.FileID, c.Text, c.TokenCount, c.PageStart, c.PageEnd, string(c.SectionType),
			c.ChapterNumber, c.ChapterTitle, pgvector.NewVector(c.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO index_meta (id, version, built_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, built_at = EXCLUDED.built_at`,
		uuid.NewString()); err != nil {
		return fmt.Errorf("update index version: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM chunks").Scan(&n)
	return n, err
}

func (p *PostgresStore) IndexVersion(ctx context.Context) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, "SELECT version FROM index_meta WHERE id = 1").Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (p *PostgresStore) SaveCoverage(ctx context.Context, c types.ExamCoverage) error {
	return p.saveRecord(ctx, "coverages", "exam_id", c.ExamID, c)
}

func (p *PostgresStore) GetCoverage(ctx context.Context, examID string) (*types.ExamCoverage, error) {
	var c types.ExamCoverage
	if err := p.getRecord(ctx, "coverages", "exam_id", examID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) SaveEnriched(ctx context.Context, c types.EnrichedCoverage) error {
	return p.saveRecord(ctx, "enriched_coverages", "exam_id", c.ExamID, c)
}

func (p *PostgresStore) GetEnriched(ctx context.Context, examID string) (*types.EnrichedCoverage, error) {
	var c types.EnrichedCoverage
	if err := p.getRecord(ctx, "enriched_coverages", "exam_id", examID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) ListEnriched(ctx context.Context) ([]types.EnrichedCoverage, error) {
	rows, err := p.pool.Query(ctx, "SELECT data FROM enriched_coverages ORDER BY exam_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.EnrichedCoverage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c types.EnrichedCoverage
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SavePlan(ctx context.Context, plan types.StudyPlan) error {
	return p.saveRecord(ctx, "plans", "id", plan.PlanID, plan)
}

func (p *PostgresStore) GetPlan(ctx context.Context, planID string) (*types.StudyPlan, error) {
	var plan types.StudyPlan
	if err := p.getRecord(ctx, "plans", "id", planID, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// table and key are package constants, never user input.
func (p *PostgresStore) saveRecord(ctx context.Context, table, key, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (%s) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, table, key, key)
	_, err = p.pool.Exec(ctx, query, id, data)
	return err
}

func (p *PostgresStore) getRecord(ctx context.Context, table, key, id string, v any) error {
	var data []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = $1", table, key)
	if err := p.pool.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		text TEXT NOT NULL,
		token_count INT NOT NULL DEFAULT 0,
		page_start INT NOT NULL,
		page_end INT NOT NULL,
		section_type TEXT NOT NULL CHECK (section_type IN ('explanation','problems','summary','other')),
		chapter_number INT,
		chapter_title TEXT,
		embedding vector(%d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_chapter ON chunks(chapter_number);

	CREATE TABLE IF NOT EXISTS index_meta (
		id INT PRIMARY KEY,
		version TEXT NOT NULL,
		built_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS coverages (
		exam_id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS enriched_coverages (
		exam_id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE
	);
	`, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
