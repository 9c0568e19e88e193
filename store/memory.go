package store

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"

	"studyrag/types"

	"github.com/google/uuid"
)

// MemoryStore keeps chunks and records in process. Search is an exact
// brute-force inner product over normalized embeddings.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    []types.Chunk
	version   string
	coverages map[string][]byte
	enriched  map[string][]byte
	plans     map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		coverages: make(map[string][]byte),
		enriched:  make(map[string][]byte),
		plans:     make(map[string][]byte),
	}
}

func (m *MemoryStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]types.ScoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		scored = append(scored, types.ScoredChunk{Chunk: c, Score: dot(queryVec, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func (m *MemoryStore) ReplaceChunks(_ context.Context, chunks []types.Chunk) error {
	cp := make([]types.Chunk, len(chunks))
	copy(cp, chunks)
	m.mu.Lock()
	m.chunks = cp
	m.version = uuid.NewString()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CountChunks(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryStore) IndexVersion(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *MemoryStore) SaveCoverage(_ context.Context, c types.ExamCoverage) error {
	return m.put(m.coverages, c.ExamID, c)
}

func (m *MemoryStore) GetCoverage(_ context.Context, examID string) (*types.ExamCoverage, error) {
	var c types.ExamCoverage
	if err := m.get(m.coverages, examID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *MemoryStore) SaveEnriched(_ context.Context, c types.EnrichedCoverage) error {
	return m.put(m.enriched, c.ExamID, c)
}

func (m *MemoryStore) GetEnriched(_ context.Context, examID string) (*types.EnrichedCoverage, error) {
	var c types.EnrichedCoverage
	if err := m.get(m.enriched, examID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *MemoryStore) ListEnriched(_ context.Context) ([]types.EnrichedCoverage, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.enriched))
	for id := range m.enriched {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]types.EnrichedCoverage, 0, len(ids))
	for _, id := range ids {
		var c types.EnrichedCoverage
		if err := m.get(m.enriched, id, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) SavePlan(_ context.Context, p types.StudyPlan) error {
	return m.put(m.plans, p.PlanID, p)
}

func (m *MemoryStore) GetPlan(_ context.Context, planID string) (*types.StudyPlan, error) {
	var p types.StudyPlan
	if err := m.get(m.plans, planID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Records are stored encoded so callers never share slices with the store.
func (m *MemoryStore) put(table map[string][]byte, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	table[id] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) get(table map[string][]byte, id string, v any) error {
	m.mu.RLock()
	data, ok := table[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// MemoryCache is a process-local embedding cache. Vectors are copied in and
// out so callers may modify what they get.
type MemoryCache struct {
	vecs sync.Map
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.vecs.Load(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v.([]float32)), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, vec []float32) error {
	c.vecs.LoadOrStore(key, slices.Clone(vec))
	return nil
}
