package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/mirror"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/ws"
)

// Server exposes the matchmaking and session endpoints plus the live
// connection upgrade.
type Server struct {
	queue  *matchmaking.Queue
	store  *session.Store
	mirror mirror.Store
	ws     *ws.Handler
	hubCap int
}

func New(q *matchmaking.Queue, st *session.Store, m mirror.Store, wsh *ws.Handler, hubCapacity int) *Server {
	return &Server{queue: q, store: st, mirror: m, ws: wsh, hubCap: hubCapacity}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/match", s.handleMatch)
	r.Post("/init", s.handleInit)
	r.Get("/games", s.handleGames)
	r.Get("/ws", s.ws.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type matchRequest struct {
	UserID string `json:"user_id"`
}

// handleMatch blocks the request until the matcher pairs the caller. If
// the client goes away first, the request context withdraws the queue
// entry.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeResult(w, http.StatusBadRequest, matchmaking.Result{Err: "invalid match request"})
		return
	}

	res, err := s.queue.Enqueue(r.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		if errors.Is(err, matchmaking.ErrAlreadyQueued) {
			writeResult(w, http.StatusBadRequest, matchmaking.Result{Err: "Player already in queue"})
			return
		}
		// Context ended: the caller is gone, nothing to write.
		return
	}
	if res.IsErr() {
		writeResult(w, http.StatusInternalServerError, res)
		return
	}
	writeResult(w, http.StatusOK, res)
}

type initRequest struct {
	GameID      string `json:"game_id"`
	WhiteUserID string `json:"white_user_id"`
	BlackUserID string `json:"black_user_id"`
}

// handleInit creates a session administratively, mirroring the matcher's
// write order: durable row first, then the resident session.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid init request", http.StatusBadRequest)
		return
	}
	if req.GameID == "" || req.WhiteUserID == "" || req.BlackUserID == "" {
		http.Error(w, "game_id, white_user_id and black_user_id are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	row := mirror.Row{GameID: req.GameID, White: req.WhiteUserID, Black: req.BlackUserID, CreatedAt: time.Now()}
	if err := s.mirror.Insert(ctx, row); err != nil {
		obslog.L().Error("init_mirror_write_failed", zap.String("game_id", req.GameID), zap.Error(err))
		if errors.Is(err, mirror.ErrExists) {
			http.Error(w, "Game already exists", http.StatusInternalServerError)
		} else {
			http.Error(w, "failed to create game", http.StatusInternalServerError)
		}
		return
	}
	if err := s.store.Insert(session.New(req.GameID, req.WhiteUserID, req.BlackUserID, s.hubCap)); err != nil {
		obslog.L().Error("init_store_insert_failed", zap.String("game_id", req.GameID), zap.Error(err))
		http.Error(w, "Game already exists", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleGames dumps resident sessions for debugging.
func (s *Server) handleGames(w http.ResponseWriter, _ *http.Request) {
	var b strings.Builder
	s.store.Scan(func(sess *session.Session) {
		fmt.Fprintf(&b, "\n{Game: %s, Black: %s, White: %s}", sess.GameID, sess.BlackID, sess.WhiteID)
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func writeResult(w http.ResponseWriter, status int, res matchmaking.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
