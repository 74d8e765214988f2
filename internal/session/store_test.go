package session

import (
	"errors"
	"sync"
	"testing"
)

func TestInsertAndRead(t *testing.T) {
	st := NewStore()
	if err := st.Insert(New("g1", "w", "b", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var white string
	err := st.Read("g1", func(s *Session) { white = s.WhiteID })
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if white != "w" {
		t.Fatalf("white = %q", white)
	}
}

func TestInsertRefusesOverwrite(t *testing.T) {
	st := NewStore()
	if err := st.Insert(New("g1", "w", "b", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Insert(New("g1", "x", "y", 0)); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	// Original entry intact.
	_ = st.Read("g1", func(s *Session) {
		if s.WhiteID != "w" {
			t.Fatalf("overwritten: white = %q", s.WhiteID)
		}
	})
}

func TestReadMissing(t *testing.T) {
	st := NewStore()
	if err := st.Read("nope", func(*Session) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	st := NewStore()
	_ = st.Insert(New("g1", "w", "b", 0))
	if err := st.Remove("g1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := st.Remove("g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove: %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("Len = %d", st.Len())
	}
}

func TestScanVisitsAll(t *testing.T) {
	st := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		_ = st.Insert(New(id, "w-"+id, "b-"+id, 0))
	}
	seen := map[string]bool{}
	st.Scan(func(s *Session) { seen[s.GameID] = true })
	if len(seen) != 3 {
		t.Fatalf("scanned %d sessions", len(seen))
	}
}

func TestMutateIsExclusive(t *testing.T) {
	st := NewStore()
	_ = st.Insert(New("g1", "w", "b", 0))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Mutate("g1", func(s *Session) {
				s.Moves = append(s.Moves, "x")
			})
		}()
	}
	wg.Wait()
	_ = st.Read("g1", func(s *Session) {
		if len(s.Moves) != 32 {
			t.Fatalf("lost updates: %d", len(s.Moves))
		}
	})
}

// Concurrent rehydration: every loser of the insert race must be able to
// fall back to the winner's entry.
func TestRehydrationRaceOneWinner(t *testing.T) {
	st := NewStore()

	var wg sync.WaitGroup
	wins := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Insert(New("g1", "w", "b", 0))
			if err == nil {
				wins <- struct{}{}
				return
			}
			if !errors.Is(err, ErrExists) {
				t.Errorf("unexpected insert error: %v", err)
			}
			if rerr := st.Read("g1", func(*Session) {}); rerr != nil {
				t.Errorf("loser re-read failed: %v", rerr)
			}
		}()
	}
	wg.Wait()
	if len(wins) != 1 {
		t.Fatalf("winners = %d", len(wins))
	}
}
