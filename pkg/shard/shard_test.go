package shard

import (
	"errors"
	"sync"
	"testing"

	"github.com/nstogner/tapestry/pkg/ulid"
)

func TestIDMap(t *testing.T) {
	m := NewIDMap[string]()

	ids := make([]ulid.ID, 100)
	for i := range ids {
		ids[i] = ulid.Make()
		m.Set(ids[i], ids[i].String())
	}
	if m.Len() != 100 {
		t.Fatalf("Len = %d, want 100", m.Len())
	}
	for _, id := range ids {
		v, ok := m.Get(id)
		if !ok || v != id.String() {
			t.Errorf("Get(%s) = %q, %v", id, v, ok)
		}
	}

	if _, ok := m.Delete(ids[0]); !ok {
		t.Error("Delete returned !ok for present key")
	}
	if _, ok := m.Get(ids[0]); ok {
		t.Error("key still present after Delete")
	}

	seen := 0
	m.Range(func(ulid.ID, string) bool {
		seen++
		return true
	})
	if seen != 99 {
		t.Errorf("Range visited %d entries, want 99", seen)
	}
}

func TestGetOrCreate(t *testing.T) {
	m := NewUint64Map[int]()

	v, existed, err := m.GetOrCreate(7, func() (int, error) { return 1, nil })
	if err != nil || existed || v != 1 {
		t.Fatalf("first GetOrCreate = %d, %v, %v", v, existed, err)
	}
	v, existed, err = m.GetOrCreate(7, func() (int, error) { return 2, nil })
	if err != nil || !existed || v != 1 {
		t.Fatalf("second GetOrCreate = %d, %v, %v", v, existed, err)
	}

	boom := errors.New("boom")
	if _, _, err := m.GetOrCreate(8, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, ok := m.Get(8); ok {
		t.Error("failed create stored a value")
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewUint64Map[uint64]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w uint64) {
			defer wg.Done()
			for i := uint64(0); i < 500; i++ {
				k := w<<32 | i
				m.Set(k, i)
				m.Get(k)
			}
		}(uint64(w))
	}
	wg.Wait()
	if m.Len() != 8*500 {
		t.Errorf("Len = %d, want %d", m.Len(), 8*500)
	}
}
