// Package files stores weave documents as plain files in a directory.
//
// Layout:
//
//	<dir>/index.json                         document records
//	<dir>/<id>.tapestry                      current CompactWeave bytes
//	<dir>/revisions/<id>/index.json          revision records, oldest first
//	<dir>/revisions/<id>/<uuid>.tapestry     revision bytes
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/tapestry/pkg/store"
	"github.com/nstogner/tapestry/pkg/ulid"
)

// Extension is the file suffix of stored documents.
const Extension = ".tapestry"

// Store implements store.DocumentStore on a directory tree.
type Store struct {
	dir string
	mu  sync.RWMutex
}

var _ store.DocumentStore = (*Store)(nil)

// Index represents the index.json structure.
type Index struct {
	Documents []store.Record `json:"documents"`
}

type revisionIndex struct {
	Revisions []store.Revision `json:"revisions"`
}

// New opens the store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "revisions"), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) docPath(id ulid.ID) string {
	return filepath.Join(s.dir, id.String()+Extension)
}

func (s *Store) revDir(id ulid.ID) string {
	return filepath.Join(s.dir, "revisions", id.String())
}

func (s *Store) Create(ctx context.Context, rec *store.Record, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	if idx.find(rec.ID) >= 0 {
		return fmt.Errorf("document %s already exists", rec.ID)
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Size = len(data)

	if err := writeFile(s.docPath(rec.ID), data); err != nil {
		return err
	}
	idx.Documents = append(idx.Documents, *rec)
	return s.writeIndex(idx)
}

func (s *Store) Get(ctx context.Context, id ulid.ID) (*store.Record, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.readIndex()
	if err != nil {
		return nil, nil, err
	}
	i := idx.find(id)
	if i < 0 {
		return nil, nil, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	data, err := os.ReadFile(s.docPath(id))
	if err != nil {
		return nil, nil, fmt.Errorf("read document %s: %w", id, err)
	}
	rec := idx.Documents[i]
	return &rec, data, nil
}

func (s *Store) Save(ctx context.Context, id ulid.ID, data []byte) (*store.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	i := idx.find(id)
	if i < 0 {
		return nil, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}

	now := time.Now().UTC()
	rev := store.Revision{
		ID:         uuid.New().String(),
		DocumentID: id,
		Size:       len(data),
		CreatedAt:  now,
	}

	// Revision first, so a crash never leaves a current document without history.
	dir := s.revDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, rev.ID+Extension), data); err != nil {
		return nil, err
	}
	revs, err := s.readRevisions(id)
	if err != nil {
		return nil, err
	}
	revs.Revisions = append(revs.Revisions, rev)
	if err := writeJSON(filepath.Join(dir, "index.json"), revs); err != nil {
		return nil, err
	}

	if err := writeFile(s.docPath(id), data); err != nil {
		return nil, err
	}
	idx.Documents[i].Size = len(data)
	idx.Documents[i].UpdatedAt = now
	if err := s.writeIndex(idx); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	recs := idx.Documents
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
		}
		return recs[i].ID.Compare(recs[j].ID) > 0
	})
	return recs, nil
}

func (s *Store) Delete(ctx context.Context, id ulid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	i := idx.find(id)
	if i < 0 {
		return fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	idx.Documents = append(idx.Documents[:i], idx.Documents[i+1:]...)
	if err := s.writeIndex(idx); err != nil {
		return err
	}
	if err := os.Remove(s.docPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.RemoveAll(s.revDir(id))
}

func (s *Store) Revisions(ctx context.Context, id ulid.ID) ([]store.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs, err := s.readRevisions(id)
	if err != nil {
		return nil, err
	}
	out := make([]store.Revision, 0, len(revs.Revisions))
	for i := len(revs.Revisions) - 1; i >= 0; i-- {
		out = append(out, revs.Revisions[i])
	}
	return out, nil
}

func (s *Store) Revision(ctx context.Context, id ulid.ID, revisionID string) ([]byte, error) {
	if _, err := uuid.Parse(revisionID); err != nil {
		return nil, fmt.Errorf("revision %s of %s: %w", revisionID, id, store.ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.revDir(id), revisionID+Extension))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("revision %s of %s: %w", revisionID, id, store.ErrNotFound)
	}
	return data, err
}

func (idx *Index) find(id ulid.ID) int {
	for i := range idx.Documents {
		if idx.Documents[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) readIndex() (*Index, error) {
	var idx Index
	data, err := os.ReadFile(filepath.Join(s.dir, "index.json"))
	if os.IsNotExist(err) {
		return &idx, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return &idx, nil
}

func (s *Store) writeIndex(idx *Index) error {
	return writeJSON(filepath.Join(s.dir, "index.json"), idx)
}

func (s *Store) readRevisions(id ulid.ID) (*revisionIndex, error) {
	var revs revisionIndex
	data, err := os.ReadFile(filepath.Join(s.revDir(id), "index.json"))
	if os.IsNotExist(err) {
		return &revs, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &revs); err != nil {
		return nil, fmt.Errorf("parse revision index: %w", err)
	}
	return &revs, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// writeFile replaces path atomically via a sibling temp file.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
