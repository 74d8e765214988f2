package engine

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/internal/protocol"
)

// ErrIllegalMove covers both unparseable notation and moves that are not
// legal in the current position; callers do not distinguish the two.
var ErrIllegalMove = errors.New("illegal move")

// Game wraps the third-party rule engine behind the four operations the
// server needs: parse/validate, apply, side to move, and outcome.
type Game struct {
	inner *nchess.Game
}

func NewGame() *Game {
	return &Game{inner: nchess.NewGame()}
}

// Move is a parsed, validated move bound to the position it was parsed
// against. Applying it to any other position is a caller bug.
type Move struct {
	notation string
	n        nchess.Notation
}

func (m Move) Notation() string { return m.notation }

// Parse decodes SAN (UCI as a fallback) and validates legality against the
// current position.
func (g *Game) Parse(notation string) (Move, error) {
	s := strings.TrimSpace(notation)
	if s == "" {
		return Move{}, ErrIllegalMove
	}
	pos := g.inner.Position()
	if _, err := (nchess.AlgebraicNotation{}).Decode(pos, s); err == nil {
		return Move{notation: s, n: nchess.AlgebraicNotation{}}, nil
	}
	// UCI decoding is syntax only; legality needs a trial application on a
	// cloned game.
	uci := strings.ToLower(s)
	if _, err := (nchess.UCINotation{}).Decode(pos, uci); err == nil {
		trial := g.inner.Clone()
		if err := trial.PushNotationMove(uci, nchess.UCINotation{}, nil); err == nil {
			return Move{notation: uci, n: nchess.UCINotation{}}, nil
		}
	}
	return Move{}, ErrIllegalMove
}

// Apply plays a move returned by Parse on the same position. Parse already
// validated it, so a failure here means a broken invariant upstream.
func (g *Game) Apply(m Move) {
	if err := g.inner.PushNotationMove(m.notation, m.n, nil); err != nil {
		panic(fmt.Sprintf("engine: apply validated move %q: %v", m.notation, err))
	}
}

// SideToMove reports whose turn it is.
func (g *Game) SideToMove() protocol.Color {
	if g.inner.Position().Turn() == nchess.White {
		return protocol.White
	}
	return protocol.Black
}

// Outcome returns the terminal result, or nil while the game is ongoing.
func (g *Game) Outcome() *protocol.Outcome {
	switch g.inner.Outcome() {
	case nchess.WhiteWon:
		o := protocol.Win(protocol.White)
		return &o
	case nchess.BlackWon:
		o := protocol.Win(protocol.Black)
		return &o
	case nchess.Draw:
		o := protocol.Draw()
		return &o
	default:
		return nil
	}
}

func (g *Game) MoveCount() int {
	return len(g.inner.Moves())
}

func (g *Game) FEN() string {
	return g.inner.FEN()
}

// Replay rebuilds a game by applying stored notation in order, used when a
// session is rehydrated from the mirror. Mirrors carry no move history, so
// in practice the list is empty, but replay keeps the store's invariant
// that moves applied in order reproduce the position.
func Replay(moves []string) (*Game, error) {
	g := NewGame()
	for i, s := range moves {
		mv, err := g.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("replay move %d %q: %w", i+1, s, err)
		}
		g.Apply(mv)
	}
	return g, nil
}
