// arenacheck is a smoke probe for a running arena server: it queues two
// players, waits for the matcher to pair them, then plays a scripted game
// over two live connections and verifies both sides see the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/protocol"
)

var scholarsMate = []string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7#"}

func main() {
	baseURL := strings.TrimRight(os.Getenv("ARENA_BASE_URL"), "/")
	wsURL := os.Getenv("ARENA_WS_URL")
	if baseURL == "" {
		log.Fatal("ARENA_BASE_URL is required")
	}
	if wsURL == "" {
		wsURL = strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	}

	suffix := time.Now().UnixNano()
	userA := fmt.Sprintf("probe-a-%d", suffix)
	userB := fmt.Sprintf("probe-b-%d", suffix)

	type matched struct {
		userID string
		res    matchmaking.Result
	}
	resCh := make(chan matched, 2)
	errCh := make(chan error, 2)
	for _, u := range []string{userA, userB} {
		go func(userID string) {
			res, err := requestMatch(baseURL, userID)
			if err != nil {
				errCh <- fmt.Errorf("match %s: %w", userID, err)
				return
			}
			resCh <- matched{userID: userID, res: res}
		}(u)
	}

	// Either probe may be popped first, so color assignment is learned
	// from the replies rather than assumed.
	users := make(map[protocol.Color]string, 2)
	games := make(map[protocol.Color]string, 2)
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			log.Fatalf("matchmaking failed: %v", err)
		case m := <-resCh:
			users[m.res.Color] = m.userID
			games[m.res.Color] = m.res.GameID
		case <-time.After(30 * time.Second):
			log.Fatal("matchmaking timed out")
		}
	}
	gameID := games[protocol.White]
	if gameID == "" || gameID != games[protocol.Black] {
		log.Fatalf("pairing mismatch: white=%q black=%q", gameID, games[protocol.Black])
	}
	log.Printf("paired: game=%s white=%s black=%s", gameID, users[protocol.White], users[protocol.Black])

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	pw, err := connect(ctx, wsURL, gameID, users[protocol.White], protocol.White)
	if err != nil {
		log.Fatalf("white connect: %v", err)
	}
	defer pw.close()
	pb, err := connect(ctx, wsURL, gameID, users[protocol.Black], protocol.Black)
	if err != nil {
		log.Fatalf("black connect: %v", err)
	}
	defer pb.close()

	players := map[protocol.Color]*player{protocol.White: pw, protocol.Black: pb}
	turn := protocol.White
	for _, mv := range scholarsMate {
		if err := players[turn].send(ctx, protocol.NewMove(mv)); err != nil {
			log.Fatalf("send %s: %v", mv, err)
		}
		// Both sides must see the broadcast.
		for _, p := range players {
			if err := p.expectMove(ctx, mv); err != nil {
				log.Fatalf("echo of %s to %s: %v", mv, p.color, err)
			}
		}
		turn = turn.Other()
	}

	for _, p := range players {
		out, err := p.expectGameEnd(ctx)
		if err != nil {
			log.Fatalf("game end for %s: %v", p.color, err)
		}
		if out.Kind != protocol.OutcomeWin || out.Winner == nil || *out.Winner != protocol.White {
			log.Fatalf("unexpected outcome for %s: %+v", p.color, out)
		}
	}

	log.Printf("arenacheck ok: game=%s ended Win(White)", gameID)
}

func requestMatch(baseURL, userID string) (matchmaking.Result, error) {
	body, _ := json.Marshal(map[string]string{"user_id": userID})

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(baseURL + "/match")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	// Matching blocks until an opponent arrives.
	client := &fasthttp.Client{ReadTimeout: 60 * time.Second, WriteTimeout: 10 * time.Second}
	if err := client.Do(req, resp); err != nil {
		return matchmaking.Result{}, err
	}
	var res matchmaking.Result
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return matchmaking.Result{}, fmt.Errorf("decode response %q: %w", resp.Body(), err)
	}
	if res.IsErr() {
		return matchmaking.Result{}, fmt.Errorf("server: %s", res.Err)
	}
	return res, nil
}

type player struct {
	color protocol.Color
	conn  *websocket.Conn
}

func connect(ctx context.Context, wsURL, gameID, userID string, color protocol.Color) (*player, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	p := &player{color: color, conn: conn}
	if err := p.send(ctx, protocol.NewAuth(gameID, userID)); err != nil {
		return nil, err
	}
	msg, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Kind != protocol.KindAuthSuccess {
		return nil, fmt.Errorf("expected AuthSuccess, got %s", msg.Kind)
	}
	msg, err = p.read(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Kind != protocol.KindMoveHistory {
		return nil, fmt.Errorf("expected MoveHistory, got %s", msg.Kind)
	}
	return p, nil
}

func (p *player) send(ctx context.Context, msg protocol.ClientMessage) error {
	return wsjson.Write(ctx, p.conn, msg)
}

func (p *player) read(ctx context.Context) (*protocol.ServerMessage, error) {
	var msg protocol.ServerMessage
	if err := wsjson.Read(ctx, p.conn, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (p *player) expectMove(ctx context.Context, notation string) error {
	msg, err := p.read(ctx)
	if err != nil {
		return err
	}
	if msg.Kind != protocol.KindMove {
		return fmt.Errorf("expected Move, got %s", msg.Kind)
	}
	var got string
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		return err
	}
	if got != notation {
		return fmt.Errorf("expected %q, got %q", notation, got)
	}
	return nil
}

func (p *player) expectGameEnd(ctx context.Context) (*protocol.Outcome, error) {
	msg, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Kind != protocol.KindGameEnd {
		return nil, fmt.Errorf("expected GameEnd, got %s", msg.Kind)
	}
	return msg.OutcomeValue()
}

func (p *player) close() {
	_ = p.conn.Close(websocket.StatusNormalClosure, "")
}
