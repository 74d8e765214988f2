package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/mirror"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/protocol"
	"github.com/park285/chess-arena/internal/session"
)

// localBufferSize holds per-connection error replies between reader and
// writer.
const localBufferSize = 16

// Handler runs the per-connection protocol: one auth exchange, then a
// reader/writer pair until the connection or the game ends.
type Handler struct {
	store   *session.Store
	mirror  mirror.Store
	cleaner *session.Cleaner
	hubCap  int
}

func NewHandler(st *session.Store, m mirror.Store, c *session.Cleaner, hubCapacity int) *Handler {
	return &Handler{store: st, mirror: m, cleaner: c, hubCap: hubCapacity}
}

// connInfo is what a successfully authenticated connection holds: the
// session id, its seat, and a hub subscription. It never holds a session
// pointer; all later access goes back through the store.
type connInfo struct {
	gameID    string
	userID    string
	color     protocol.Color
	sub       <-chan protocol.ServerMessage
	cancelSub func()
	history   []string
}

// ServeHTTP upgrades the request and drives the connection to completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := r.Context()
	info, authErr := h.authenticate(ctx, conn)
	if authErr != "" {
		// Fatal during auth: report and close without entering the loop.
		_ = wsjson.Write(ctx, conn, protocol.Error(authErr))
		conn.Close(websocket.StatusPolicyViolation, string(authErr))
		return
	}
	if info == nil {
		// Peer went away mid-handshake.
		return
	}
	defer info.cancelSub()

	if err := wsjson.Write(ctx, conn, protocol.AuthSuccess()); err != nil {
		h.disconnect(info)
		return
	}
	if err := wsjson.Write(ctx, conn, protocol.MoveHistory(info.history)); err != nil {
		h.disconnect(info)
		return
	}

	obslog.L().Info("ws_authenticated",
		zap.String("game_id", info.gameID),
		zap.String("user_id", info.userID),
		zap.String("color", string(info.color)),
	)

	h.moveLoop(ctx, conn, info)

	h.disconnect(info)
	conn.Close(websocket.StatusNormalClosure, "")
}

// authenticate consumes frames until one parses as Auth, then claims the
// seat. A non-empty ErrorKind is a fatal auth failure; a nil info with an
// empty kind means the socket closed first.
func (h *Handler) authenticate(ctx context.Context, conn *websocket.Conn) (*connInfo, protocol.ErrorKind) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, ""
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := protocol.DecodeClient(data)
		if err != nil {
			return nil, protocol.ErrDeserialization
		}
		if msg.Kind != protocol.KindAuth {
			return nil, protocol.ErrUnauthorized
		}
		auth, err := msg.AuthValue()
		if err != nil {
			return nil, protocol.ErrDeserialization
		}
		info, ok := h.claimSeat(ctx, auth.GameID, auth.UserID)
		if !ok {
			obslog.L().Info("ws_auth_fail",
				zap.String("game_id", auth.GameID),
				zap.String("user_id", auth.UserID),
			)
			return nil, protocol.ErrUnauthorized
		}
		return info, ""
	}
}

// claimSeat resolves the session (rehydrating from the mirror on miss)
// and atomically binds the connection to its seat. The hub subscription
// and the history snapshot happen inside the same critical section, so
// no broadcast can fall between them.
func (h *Handler) claimSeat(ctx context.Context, gameID, userID string) (*connInfo, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		info := &connInfo{gameID: gameID, userID: userID}
		claimed := false
		err := h.store.Mutate(gameID, func(s *session.Session) {
			color, ok := s.Seat(userID)
			if !ok || s.Connected(color) {
				return
			}
			s.SetConnected(color, true)
			info.color = color
			info.sub, info.cancelSub = s.Hub.Subscribe()
			info.history = append([]string{}, s.Moves...)
			claimed = true
		})
		if err == nil {
			return info, claimed
		}
		if attempt > 0 || !errors.Is(err, session.ErrNotFound) {
			return nil, false
		}
		if !h.rehydrate(ctx, gameID) {
			return nil, false
		}
	}
	return nil, false
}

// rehydrate loads the mirrored row and inserts a fresh session. Losing an
// insert race to a concurrent rehydration is fine; the caller re-reads.
func (h *Handler) rehydrate(ctx context.Context, gameID string) bool {
	row, err := h.mirror.Get(ctx, gameID)
	if err != nil {
		if !errors.Is(err, mirror.ErrNotFound) {
			obslog.L().Error("ws_mirror_read_failed", zap.String("game_id", gameID), zap.Error(err))
		}
		return false
	}
	s := session.New(row.GameID, row.White, row.Black, h.hubCap)
	if err := h.store.Insert(s); err != nil && !errors.Is(err, session.ErrExists) {
		return false
	}
	obslog.L().Info("session_rehydrated", zap.String("game_id", gameID))
	return true
}

// moveLoop runs the reader on its own task and the writer on this one;
// whichever ends first cancels its sibling.
func (h *Handler) moveLoop(ctx context.Context, conn *websocket.Conn, info *connInfo) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	local := make(chan protocol.ServerMessage, localBufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.readLoop(ctx, conn, info, local)
	}()

	h.writeLoop(ctx, conn, info.sub, local)
	cancel()
	wg.Wait()
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, info *connInfo, local chan<- protocol.ServerMessage) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := protocol.DecodeClient(data)
		if err != nil {
			sendLocal(local, protocol.Error(protocol.ErrDeserialization))
			continue
		}
		if msg.Kind != protocol.KindMove {
			continue
		}
		notation, err := msg.MoveValue()
		if err != nil {
			sendLocal(local, protocol.Error(protocol.ErrDeserialization))
			continue
		}
		kind, err := h.applyMove(info, notation)
		if err != nil {
			// Evicted mid-connection: cleanup timers survive reconnects,
			// so the session can vanish while this player is live. The
			// connection ends; the server does not.
			obslog.L().Warn("ws_session_gone",
				zap.String("game_id", info.gameID),
				zap.String("user_id", info.userID),
			)
			return
		}
		if kind != "" {
			sendLocal(local, protocol.Error(kind))
		}
	}
}

// applyMove runs the whole accept path inside one store critical section:
// turn check, parse/validate, apply, append, broadcast Move, outcome,
// broadcast GameEnd. Keeping it in a single section is what guarantees
// exactly one legal move per ply and broadcast order matching apply
// order. A store error means the session was evicted; the caller tears
// the connection down.
func (h *Handler) applyMove(info *connInfo, notation string) (protocol.ErrorKind, error) {
	var verdict protocol.ErrorKind
	err := h.store.Mutate(info.gameID, func(s *session.Session) {
		if s.Game.SideToMove() != info.color {
			verdict = protocol.ErrInvalidTurn
			return
		}
		mv, err := s.Game.Parse(notation)
		if err != nil {
			verdict = protocol.ErrInvalidMove
			return
		}
		s.Game.Apply(mv)
		s.Moves = append(s.Moves, notation)
		s.Hub.Send(protocol.Move(notation))
		if out := s.Game.Outcome(); out != nil {
			s.Hub.Send(protocol.GameEnd(*out))
			obslog.L().Info("game_end",
				zap.String("game_id", info.gameID),
				zap.String("outcome", out.Kind),
			)
		}
	})
	if err != nil {
		return "", err
	}
	if verdict != "" {
		metrics.MovesRejected.WithLabelValues(string(verdict)).Inc()
		return verdict, nil
	}
	metrics.MovesApplied.Inc()
	return "", nil
}

// writeLoop merges the session broadcast with this connection's local
// errors and forwards both in arrival order. Forwarding a GameEnd ends
// this writer only; the peer's writer sees the same broadcast itself.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sub <-chan protocol.ServerMessage, local <-chan protocol.ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return
			}
			if msg.Kind == protocol.KindGameEnd {
				return
			}
		case msg := <-local:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

// disconnect releases the seat and arms cleanup when the session is now
// abandoned. The session may already be evicted (a cleanup timer that
// outlived a reconnect); teardown tolerates that.
func (h *Handler) disconnect(info *connInfo) {
	abandoned := false
	err := h.store.Mutate(info.gameID, func(s *session.Session) {
		s.SetConnected(info.color, false)
		abandoned = s.Abandoned()
	})
	if err != nil {
		return
	}
	obslog.L().Info("ws_disconnected",
		zap.String("game_id", info.gameID),
		zap.String("user_id", info.userID),
	)
	if abandoned {
		h.cleaner.Arm(info.gameID)
	}
}

func sendLocal(local chan<- protocol.ServerMessage, msg protocol.ServerMessage) {
	select {
	case local <- msg:
	default:
		metrics.LocalRepliesDropped.Inc()
	}
}
