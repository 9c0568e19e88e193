package internal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"studyrag/types"
)

// maxLineSize bounds a single chunk record.
const maxLineSize = 4 << 20

// ReadChunkDir reads every *.jsonl file in dir, in name order. Each line is
// one chunk record produced by the external chunker.
func ReadChunkDir(dir string) ([]types.Chunk, int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(files)

	var chunks []types.Chunk
	seen := make(map[string]string)
	for _, path := range files {
		fileChunks, err := ReadChunkFile(path)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range fileChunks {
			if prev, ok := seen[c.ID]; ok {
				return nil, 0, fmt.Errorf("duplicate chunk id %q in %s (first seen in %s)", c.ID, path, prev)
			}
			seen[c.ID] = path
		}
		chunks = append(chunks, fileChunks...)
	}
	return chunks, len(files), nil
}

func ReadChunkFile(path string) ([]types.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []types.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		c, err := ParseChunk([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		chunks = append(chunks, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return chunks, nil
}

// ParseChunk decodes and checks one chunk record.
func ParseChunk(data []byte) (types.Chunk, error) {
	var c types.Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return types.Chunk{}, err
	}

	switch {
	case c.ID == "":
		return types.Chunk{}, fmt.Errorf("chunk_id is required")
	case c.FileID == "":
		return types.Chunk{}, fmt.Errorf("chunk %s: file_id is required", c.ID)
	case strings.TrimSpace(c.Text) == "":
		return types.Chunk{}, fmt.Errorf("chunk %s: text is empty", c.ID)
	case c.PageStart <= 0 || c.PageEnd < c.PageStart:
		return types.Chunk{}, fmt.Errorf("chunk %s: invalid page range %d-%d", c.ID, c.PageStart, c.PageEnd)
	}
	c.SectionType = types.ParseSectionType(string(c.SectionType))
	if c.ChapterTitle != nil && strings.TrimSpace(*c.ChapterTitle) == "" {
		c.ChapterTitle = nil
	}
	return c, nil
}
