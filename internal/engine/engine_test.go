package engine

import (
	"testing"

	"github.com/park285/chess-arena/internal/protocol"
)

var scholarsMate = []string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7#"}

func playAll(t *testing.T, g *Game, moves []string) {
	t.Helper()
	for _, s := range moves {
		mv, err := g.Parse(s)
		if err != nil {
			t.Fatalf("Parse %q: %v", s, err)
		}
		g.Apply(mv)
	}
}

func TestSideToMoveAlternates(t *testing.T) {
	g := NewGame()
	if g.SideToMove() != protocol.White {
		t.Fatal("game must start with White")
	}
	playAll(t, g, []string{"e4"})
	if g.SideToMove() != protocol.Black {
		t.Fatal("Black to move after e4")
	}
	playAll(t, g, []string{"e5"})
	if g.SideToMove() != protocol.White {
		t.Fatal("White to move after e5")
	}
}

func TestParseRejectsIllegal(t *testing.T) {
	g := NewGame()
	for _, s := range []string{"", "   ", "zz9", "Ke2", "e5"} {
		if _, err := g.Parse(s); err == nil {
			t.Fatalf("expected rejection of %q", s)
		}
	}
	// Legality is position-dependent: e5 is fine one ply later.
	playAll(t, g, []string{"e4"})
	if _, err := g.Parse("e5"); err != nil {
		t.Fatalf("e5 should be legal for Black: %v", err)
	}
}

func TestParseRejectsIllegalUCI(t *testing.T) {
	g := NewGame()
	// These decode as squares but are not playable from the start position.
	for _, s := range []string{"e2e5", "a1h8", "e1g1", "e7e5"} {
		if _, err := g.Parse(s); err == nil {
			t.Fatalf("expected rejection of %q", s)
		}
	}
	if g.MoveCount() != 0 {
		t.Fatalf("position changed: %d moves", g.MoveCount())
	}
}

func TestParseAcceptsUCI(t *testing.T) {
	g := NewGame()
	mv, err := g.Parse("e2e4")
	if err != nil {
		t.Fatalf("Parse UCI: %v", err)
	}
	g.Apply(mv)
	if g.MoveCount() != 1 {
		t.Fatalf("move count = %d", g.MoveCount())
	}
}

func TestCheckmateOutcome(t *testing.T) {
	g := NewGame()
	if g.Outcome() != nil {
		t.Fatal("fresh game has no outcome")
	}
	playAll(t, g, scholarsMate)
	out := g.Outcome()
	if out == nil {
		t.Fatal("expected terminal outcome")
	}
	if out.Kind != protocol.OutcomeWin || out.Winner == nil || *out.Winner != protocol.White {
		t.Fatalf("expected Win(White), got %+v", out)
	}
}

func TestStalemateOutcome(t *testing.T) {
	// Loyd's ten-move stalemate.
	g := NewGame()
	playAll(t, g, []string{
		"e3", "a5", "Qh5", "Ra6", "Qxa5", "h5", "Qxc7", "Rah6", "h4", "f6",
		"Qxd7+", "Kf7", "Qxb7", "Qd3", "Qxb8", "Qh7", "Qxc8", "Kg6", "Qe6",
	})
	out := g.Outcome()
	if out == nil {
		t.Fatal("expected terminal outcome")
	}
	if out.Kind != protocol.OutcomeDraw || out.Winner != nil {
		t.Fatalf("expected Draw, got %+v", out)
	}
}

func TestReplayReproducesPosition(t *testing.T) {
	g := NewGame()
	playAll(t, g, scholarsMate[:4])

	r, err := Replay(scholarsMate[:4])
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if r.FEN() != g.FEN() {
		t.Fatalf("replayed FEN %q != played FEN %q", r.FEN(), g.FEN())
	}
}

func TestReplayRejectsBadHistory(t *testing.T) {
	if _, err := Replay([]string{"e4", "e4"}); err == nil {
		t.Fatal("expected error for impossible history")
	}
}
