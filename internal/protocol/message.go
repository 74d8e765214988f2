package protocol

import (
	"encoding/json"
	"fmt"
)

// Color identifies a chess side. Serialized as "White"/"Black" on the wire.
type Color string

const (
	White Color = "White"
	Black Color = "Black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// ErrorKind classifies user-visible protocol errors.
type ErrorKind string

const (
	ErrDeserialization ErrorKind = "Deserialization"
	ErrUnauthorized    ErrorKind = "Unauthorized"
	ErrInvalidTurn     ErrorKind = "InvalidTurn"
	ErrInvalidMove     ErrorKind = "InvalidMove"
)

// Outcome is the terminal result of a game: a win for one side or a draw.
type Outcome struct {
	Kind   string `json:"kind"`
	Winner *Color `json:"value,omitempty"`
}

const (
	OutcomeWin  = "Win"
	OutcomeDraw = "Draw"
)

func Win(c Color) Outcome { return Outcome{Kind: OutcomeWin, Winner: &c} }
func Draw() Outcome       { return Outcome{Kind: OutcomeDraw} }

// Message kinds. Frames are adjacently tagged: {"kind": ..., "value": ...}.
const (
	KindAuth        = "Auth"
	KindMove        = "Move"
	KindAuthSuccess = "AuthSuccess"
	KindMoveHistory = "MoveHistory"
	KindGameEnd     = "GameEnd"
	KindError       = "Error"
)

// AuthPayload is the value of a client Auth frame.
type AuthPayload struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

// ClientMessage is the tagged envelope read from players.
type ClientMessage struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// DecodeClient parses a raw text frame into a tagged client message.
func DecodeClient(data []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Kind == "" {
		return nil, fmt.Errorf("client message missing kind")
	}
	return &m, nil
}

// AuthValue extracts the Auth payload; only valid when Kind is KindAuth.
func (m *ClientMessage) AuthValue() (*AuthPayload, error) {
	var p AuthPayload
	if err := json.Unmarshal(m.Value, &p); err != nil {
		return nil, err
	}
	if p.GameID == "" || p.UserID == "" {
		return nil, fmt.Errorf("auth payload missing game_id or user_id")
	}
	return &p, nil
}

// MoveValue extracts the move notation; only valid when Kind is KindMove.
func (m *ClientMessage) MoveValue() (string, error) {
	var s string
	if err := json.Unmarshal(m.Value, &s); err != nil {
		return "", err
	}
	return s, nil
}

// NewAuth builds a client Auth frame (used by the probe and tests).
func NewAuth(gameID, userID string) ClientMessage {
	return ClientMessage{Kind: KindAuth, Value: mustRaw(AuthPayload{GameID: gameID, UserID: userID})}
}

// NewMove builds a client Move frame.
func NewMove(notation string) ClientMessage {
	return ClientMessage{Kind: KindMove, Value: mustRaw(notation)}
}

// ServerMessage is the tagged envelope written to players.
type ServerMessage struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func AuthSuccess() ServerMessage { return ServerMessage{Kind: KindAuthSuccess} }

// MoveHistory carries every accepted move so far; a fresh game yields [].
func MoveHistory(moves []string) ServerMessage {
	if moves == nil {
		moves = []string{}
	}
	return ServerMessage{Kind: KindMoveHistory, Value: mustRaw(moves)}
}

func Move(notation string) ServerMessage {
	return ServerMessage{Kind: KindMove, Value: mustRaw(notation)}
}

func GameEnd(o Outcome) ServerMessage {
	return ServerMessage{Kind: KindGameEnd, Value: mustRaw(o)}
}

func Error(kind ErrorKind) ServerMessage {
	return ServerMessage{Kind: KindError, Value: mustRaw(kind)}
}

// HistoryValue decodes a MoveHistory frame (probe/test side).
func (m *ServerMessage) HistoryValue() ([]string, error) {
	var moves []string
	if err := json.Unmarshal(m.Value, &moves); err != nil {
		return nil, err
	}
	return moves, nil
}

// OutcomeValue decodes a GameEnd frame (probe/test side).
func (m *ServerMessage) OutcomeValue() (*Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(m.Value, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return b
}
