// Package fsstore keeps collections as plain files: <dir>/<name>/index.gob
// holds metric, dimension and vectors, <dir>/<name>/chunks.yaml the chunk text
// and metadata keyed by ordinal.
package fsstore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

const (
	indexFile  = "index.gob"
	chunksFile = "chunks.yaml"
)

type indexRecord struct {
	Metric    string
	Dimension int
	Vectors   [][]float32
}

type chunksRecord struct {
	Count  int           `yaml:"count"`
	Chunks []chunkRecord `yaml:"chunks"`
}

type chunkRecord struct {
	Index    int    `yaml:"index"`
	Text     quoted `yaml:"text"`
	Page     int    `yaml:"page"`
	SourceID quoted `yaml:"source_id"`
	Offset   int    `yaml:"offset"`
}

// quoted is always written as a double-quoted scalar. Block scalars cannot
// hold text whose first line starts with a tab, which yaml.v3 would otherwise
// emit and then fail to parse.
type quoted string

func (q quoted) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.DoubleQuotedStyle,
		Value: string(q),
	}, nil
}

func toRecords(chunks []domain.Chunk) []chunkRecord {
	out := make([]chunkRecord, len(chunks))
	for i, c := range chunks {
		out[i] = chunkRecord{
			Index:    c.Index,
			Text:     quoted(c.Text),
			Page:     c.Page,
			SourceID: quoted(c.SourceID),
			Offset:   c.Offset,
		}
	}
	return out
}

func fromRecords(records []chunkRecord) []domain.Chunk {
	out := make([]domain.Chunk, len(records))
	for i, r := range records {
		out[i] = domain.Chunk{
			Index:    r.Index,
			Text:     string(r.Text),
			Page:     r.Page,
			SourceID: string(r.SourceID),
			Offset:   r.Offset,
		}
	}
	return out
}

// Repository stores every collection in its own directory under Dir.
type Repository struct {
	dir string
}

func New(dir string) *Repository { return &Repository{dir: dir} }

func (r *Repository) Kind() string { return "fs" }

// Save writes both files into a temporary sibling directory and swaps it in
// with renames, so a reader never sees half a collection.
func (r *Repository) Save(ctx context.Context, name string, snap *vectorstore.Snapshot) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(r.dir, "."+name+".tmp-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := writeGob(filepath.Join(tmp, indexFile), indexRecord{
		Metric:    string(snap.Metric),
		Dimension: snap.Dimension,
		Vectors:   snap.Vectors,
	}); err != nil {
		return fmt.Errorf("write %s: %w", indexFile, err)
	}
	if err := writeYAML(filepath.Join(tmp, chunksFile), chunksRecord{Count: len(snap.Chunks), Chunks: toRecords(snap.Chunks)}); err != nil {
		return fmt.Errorf("write %s: %w", chunksFile, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(r.dir, name)
	old := ""
	if _, err := os.Stat(target); err == nil {
		old = filepath.Join(r.dir, "."+name+".old-"+strconv.FormatInt(time.Now().UnixNano(), 10))
		if err := os.Rename(target, old); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		if old != "" {
			_ = os.Rename(old, target)
		}
		return err
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func (r *Repository) Load(_ context.Context, name string) (*vectorstore.Snapshot, error) {
	dir := filepath.Join(r.dir, name)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var idx indexRecord
	if err := readGob(filepath.Join(dir, indexFile), &idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptCollection, indexFile, err)
	}
	var chunks chunksRecord
	if err := readYAML(filepath.Join(dir, chunksFile), &chunks); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptCollection, chunksFile, err)
	}
	if chunks.Count != len(chunks.Chunks) {
		return nil, fmt.Errorf("%w: %s lists %d of %d chunks", domain.ErrCorruptCollection, chunksFile, len(chunks.Chunks), chunks.Count)
	}

	snap := &vectorstore.Snapshot{
		Metric:    vectorstore.Metric(idx.Metric),
		Dimension: idx.Dimension,
		Chunks:    fromRecords(chunks.Chunks),
		Vectors:   idx.Vectors,
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
