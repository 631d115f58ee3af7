// Package chromemstore persists collections as compressed chromem-go exports,
// one file per collection: <dir>/<name>.gob.gz.
package chromemstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

// Document metadata keys.
const (
	keyPage   = "page"
	keySource = "source_id"
	keyOffset = "offset"
	keyTotal  = "total"
)

// ErrUnsupportedMetric is returned when saving a non-cosine index; chromem-go
// normalizes every vector it stores.
var ErrUnsupportedMetric = errors.New("chromem repository supports only the cosine metric")

type Repository struct {
	dir         string
	concurrency int
}

func New(dir string) *Repository { return &Repository{dir: dir, concurrency: 4} }

func (r *Repository) Kind() string { return "chromem" }

func (r *Repository) path(name string) string { return filepath.Join(r.dir, name+".gob.gz") }

// Save builds an in-memory chromem DB holding only this collection, exports it
// to a temporary file and renames it over the previous export.
func (r *Repository) Save(ctx context.Context, name string, snap *vectorstore.Snapshot) error {
	if snap.Metric != vectorstore.Cosine {
		return ErrUnsupportedMetric
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(name, map[string]string{"dimension": strconv.Itoa(snap.Dimension)}, nil)
	if err != nil {
		return err
	}
	if len(snap.Chunks) > 0 {
		docs := make([]chromem.Document, len(snap.Chunks))
		total := strconv.Itoa(len(snap.Chunks))
		for i, c := range snap.Chunks {
			docs[i] = chromem.Document{
				ID: strconv.Itoa(i),
				Metadata: map[string]string{
					keyPage:   strconv.Itoa(c.Page),
					keySource: c.SourceID,
					keyOffset: strconv.Itoa(c.Offset),
					keyTotal:  total,
				},
				Embedding: snap.Vectors[i],
				Content:   c.Text,
			}
		}
		if err := col.AddDocuments(ctx, docs, r.concurrency); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	target := r.path(name)
	tmp := fmt.Sprintf("%s.tmp-%d", target, time.Now().UnixNano())
	if err := db.ExportToFile(tmp, true, "", name); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, name string) (*vectorstore.Snapshot, error) {
	path := r.path(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, "", name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptCollection, err)
	}
	col := db.GetCollection(name, nil)
	if col == nil {
		return nil, fmt.Errorf("%w: export holds no collection %q", domain.ErrCorruptCollection, name)
	}

	n := col.Count()
	snap := &vectorstore.Snapshot{
		Metric:  vectorstore.Cosine,
		Chunks:  make([]domain.Chunk, n),
		Vectors: make([][]float32, n),
	}
	for i := 0; i < n; i++ {
		doc, err := col.GetByID(ctx, strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptCollection, err)
		}
		c, total, err := chunkFromDocument(i, doc)
		if err != nil {
			return nil, err
		}
		if total != n {
			return nil, fmt.Errorf("%w: %d documents, metadata expects %d", domain.ErrCorruptCollection, n, total)
		}
		snap.Chunks[i] = c
		snap.Vectors[i] = doc.Embedding
	}
	if n > 0 {
		snap.Dimension = len(snap.Vectors[0])
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func chunkFromDocument(i int, doc chromem.Document) (domain.Chunk, int, error) {
	ints := make(map[string]int, 3)
	for _, k := range []string{keyPage, keyOffset, keyTotal} {
		v, err := strconv.Atoi(doc.Metadata[k])
		if err != nil {
			return domain.Chunk{}, 0, fmt.Errorf("%w: document %s: bad %s", domain.ErrCorruptCollection, doc.ID, k)
		}
		ints[k] = v
	}
	return domain.Chunk{
		Index:    i,
		Text:     doc.Content,
		Page:     ints[keyPage],
		SourceID: doc.Metadata[keySource],
		Offset:   ints[keyOffset],
	}, ints[keyTotal], nil
}
