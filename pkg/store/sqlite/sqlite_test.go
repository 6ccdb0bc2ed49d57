package sqlite

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nstogner/tapestry/pkg/store"
	"github.com/nstogner/tapestry/pkg/ulid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpFile := t.TempDir() + "/test.db"
	s, err := New(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile)
	})
	return s
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &store.Record{ID: ulid.Make(), Name: "Story"}

	// Create
	if err := s.Create(ctx, rec, []byte("TPWV-one")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Size != 8 || rec.CreatedAt.IsZero() {
		t.Errorf("Create did not fill record: %+v", rec)
	}

	// Get
	got, data, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Story" || string(data) != "TPWV-one" {
		t.Errorf("Get = %+v, %q", got, data)
	}

	// Save
	rev1, err := s.Save(ctx, rec.ID, []byte("TPWV-two"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rev2, err := s.Save(ctx, rec.ID, []byte("TPWV-three"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, data, _ = s.Get(ctx, rec.ID)
	if string(data) != "TPWV-three" {
		t.Errorf("after save data = %q", data)
	}

	// Revisions
	revs, err := s.Revisions(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Revisions: %v", err)
	}
	if len(revs) != 2 || revs[0].ID != rev2.ID || revs[1].ID != rev1.ID {
		t.Errorf("Revisions = %+v, want [%s %s]", revs, rev2.ID, rev1.ID)
	}
	old, err := s.Revision(ctx, rec.ID, rev1.ID)
	if err != nil || !bytes.Equal(old, []byte("TPWV-two")) {
		t.Errorf("Revision = %q, %v", old, err)
	}

	// List
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != rec.ID {
		t.Errorf("List = %+v", recs)
	}

	// Delete
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	revs, _ = s.Revisions(ctx, rec.ID)
	if len(revs) != 0 {
		t.Errorf("revisions survived delete: %d", len(revs))
	}
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := ulid.Make()

	if _, err := s.Save(ctx, id, []byte("x")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Save err = %v", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete err = %v", err)
	}
	if _, err := s.Revision(ctx, id, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Revision err = %v", err)
	}
}

func TestDuplicateCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := &store.Record{ID: ulid.Make()}
	if err := s.Create(ctx, rec, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, &store.Record{ID: rec.ID}, []byte("b")); err == nil {
		t.Error("expected error creating duplicate id")
	}
}
