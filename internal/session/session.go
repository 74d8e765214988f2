package session

import (
	"time"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/protocol"
)

// Session is the live state of one game: the two seats, their connection
// flags, the rule-engine position, the accepted move list, and the
// broadcast hub both players subscribe to. All mutation happens inside
// Store callbacks, which hold the owning shard's lock.
type Session struct {
	GameID  string
	WhiteID string
	BlackID string

	WhiteConnected bool
	BlackConnected bool

	Game  *engine.Game
	Moves []string

	Hub *Hub

	// cleanup is the pending eviction timer; nil when none is armed.
	// Never cancelled once set (reconnection does not disarm it).
	cleanup *time.Timer
}

// New creates a session at the start position with no moves played.
func New(gameID, whiteID, blackID string, hubCapacity int) *Session {
	return &Session{
		GameID:  gameID,
		WhiteID: whiteID,
		BlackID: blackID,
		Game:    engine.NewGame(),
		Moves:   []string{},
		Hub:     NewHub(hubCapacity),
	}
}

// Seat maps a user id onto its color; ok is false for strangers.
func (s *Session) Seat(userID string) (protocol.Color, bool) {
	switch userID {
	case s.WhiteID:
		return protocol.White, true
	case s.BlackID:
		return protocol.Black, true
	}
	return "", false
}

func (s *Session) Connected(c protocol.Color) bool {
	if c == protocol.White {
		return s.WhiteConnected
	}
	return s.BlackConnected
}

func (s *Session) SetConnected(c protocol.Color, v bool) {
	if c == protocol.White {
		s.WhiteConnected = v
	} else {
		s.BlackConnected = v
	}
}

// Abandoned reports whether both seats are currently disconnected.
func (s *Session) Abandoned() bool {
	return !s.WhiteConnected && !s.BlackConnected
}
