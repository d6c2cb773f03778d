package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"election-backend/models"
)

type backendCase struct {
	name string
	// open returns a backend; reopen opens the same data again, or nil for
	// engines without persistence
	open func(t *testing.T, dir string) Backend
	disk bool
}

func backendCases() []backendCase {
	return []backendCase{
		{
			name: "memory",
			open: func(t *testing.T, dir string) Backend { return NewMemoryStore() },
		},
		{
			name: "json",
			disk: true,
			open: func(t *testing.T, dir string) Backend {
				s, err := NewJSONStore(dir)
				if err != nil {
					t.Fatalf("failed to open json store: %v", err)
				}
				return s
			},
		},
		{
			name: "badger",
			disk: true,
			open: func(t *testing.T, dir string) Backend {
				s, err := NewBadgerStore(dir, nil)
				if err != nil {
					t.Fatalf("failed to open badger store: %v", err)
				}
				return s
			},
		},
		{
			name: "bolt",
			disk: true,
			open: func(t *testing.T, dir string) Backend {
				s, err := NewBoltStore(dir)
				if err != nil {
					t.Fatalf("failed to open bolt store: %v", err)
				}
				return s
			},
		},
		{
			name: "sqlite",
			disk: true,
			open: func(t *testing.T, dir string) Backend {
				s, err := NewSQLiteStore(dir)
				if err != nil {
					t.Fatalf("failed to open sqlite store: %v", err)
				}
				return s
			},
		},
	}
}

func TestBackendConformance(t *testing.T) {
	ctx := context.Background()
	for _, tc := range backendCases() {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			b := tc.open(t, dir)
			defer b.Close()

			if _, err := b.Get(ctx, TableVotes, 1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := b.Put(ctx, "bogus", 1, []byte(`{}`)); !errors.Is(err, ErrUnknownTable) {
				t.Fatalf("expected ErrUnknownTable, got %v", err)
			}

			for _, id := range []uint64{3, 1, 2} {
				if err := b.Put(ctx, TableVotes, id, []byte(`{"n":1}`)); err != nil {
					t.Fatalf("put %d: %v", id, err)
				}
			}
			if err := b.Put(ctx, TableVotes, 2, []byte(`{"n":2}`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			// Same id in a different table must not collide
			if err := b.Put(ctx, TableVoters, 2, []byte(`{"n":9}`)); err != nil {
				t.Fatalf("put voter: %v", err)
			}

			data, err := b.Get(ctx, TableVotes, 2)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(data) != `{"n":2}` {
				t.Errorf("unexpected value %s", data)
			}

			var ids []uint64
			err = b.Scan(ctx, TableVotes, func(id uint64, _ []byte) error {
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if len(ids) != 3 {
				t.Fatalf("expected 3 records, got %v", ids)
			}
			seen := map[uint64]bool{}
			for _, id := range ids {
				seen[id] = true
			}
			for _, id := range []uint64{1, 2, 3} {
				if !seen[id] {
					t.Errorf("scan missing id %d", id)
				}
			}
		})
	}
}

func TestBackendPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	for _, tc := range backendCases() {
		if !tc.disk {
			continue
		}
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(tc.open(t, dir))

			first, err := store.IDs.NextID(ctx)
			if err != nil {
				t.Fatalf("next id: %v", err)
			}
			second, err := store.IDs.NextID(ctx)
			if err != nil {
				t.Fatalf("next id: %v", err)
			}
			if first != 1 || second != 2 {
				t.Fatalf("expected ids 1,2 got %d,%d", first, second)
			}
			election := models.Election{ID: first, Title: "Board", Candidates: []string{"A"}, StartTime: 1, EndTime: 2}
			if err := store.Elections.Put(ctx, election.ID, election); err != nil {
				t.Fatalf("put election: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			reopened := NewStore(tc.open(t, dir))
			defer reopened.Close()

			third, err := reopened.IDs.NextID(ctx)
			if err != nil {
				t.Fatalf("next id after reopen: %v", err)
			}
			if third != 3 {
				t.Errorf("expected id 3 after reopen, got %d", third)
			}
			got, err := reopened.Elections.Get(ctx, first)
			if err != nil {
				t.Fatalf("get election after reopen: %v", err)
			}
			if got.Title != "Board" || got.EndTime != 2 {
				t.Errorf("unexpected election %+v", got)
			}
		})
	}
}

func TestTableTyped(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStore())

	_, err := store.Voters.Get(ctx, 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	voter := models.Voter{ID: 42, Username: "alice", RegisteredElections: []uint64{7}}
	if err := store.Voters.Put(ctx, voter.ID, voter); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Voters.Get(ctx, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "alice" || !got.IsRegisteredFor(7) {
		t.Errorf("unexpected voter %+v", got)
	}

	voters, err := store.Voters.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(voters) != 1 {
		t.Errorf("expected 1 voter, got %d", len(voters))
	}
}

func TestIDGeneratorUnique(t *testing.T) {
	ctx := context.Background()
	gen := NewIDGenerator(NewMemoryStore())
	seen := make(map[uint64]bool)
	var last uint64
	for i := 0; i < 100; i++ {
		id, err := gen.NextID(ctx)
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if seen[id] || id <= last {
			t.Fatalf("id %d is not strictly increasing", id)
		}
		seen[id] = true
		last = id
	}
}

type failingBackend struct {
	*MemoryStore
}

func (f failingBackend) Put(context.Context, string, uint64, []byte) error {
	return errors.New("disk full")
}

func TestIDGeneratorFailureDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	gen := NewIDGenerator(failingBackend{mem})
	if _, err := gen.NextID(ctx); err == nil {
		t.Fatal("expected error from failing backend")
	}

	// A healthy generator over the same data starts from the beginning
	healthy := NewIDGenerator(mem)
	id, err := healthy.NextID(ctx)
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if id != 1 {
		t.Errorf("expected 1, got %d", id)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "tape"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestJSONStoreRejectsInvalidJSON(t *testing.T) {
	s, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(context.Background(), TableVotes, 1, []byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestJSONStoreRollsBackFailedSave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, TableVotes, 1, []byte(`"first"`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A directory in place of the temporary file makes every save fail,
	// whatever the permissions of the running user.
	if err := os.Mkdir(filepath.Join(dir, TableVotes+".json.tmp"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := s.Put(ctx, TableVotes, 1, []byte(`"second"`)); err == nil {
		t.Fatal("expected overwrite to fail")
	}
	data, err := s.Get(ctx, TableVotes, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `"first"` {
		t.Errorf("expected the previous value after a failed overwrite, got %s", data)
	}

	if err := s.Put(ctx, TableVotes, 2, []byte(`"new"`)); err == nil {
		t.Fatal("expected insert to fail")
	}
	if _, err := s.Get(ctx, TableVotes, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a failed insert, got %v", err)
	}

	reopened, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err = reopened.Get(ctx, TableVotes, 1)
	if err != nil || string(data) != `"first"` {
		t.Errorf("expected disk to hold the previous value, got %s (%v)", data, err)
	}
}
