package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/mirror"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/ws"
)

func newTestAPI(t *testing.T) (*httptest.Server, *session.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	mir, err := mirror.NewRedis(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("mirror.NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = mir.Close() })

	st := session.NewStore()
	cleaner := session.NewCleaner(st, mir, time.Minute)
	queue := matchmaking.NewQueue(0)
	matcher := matchmaking.NewMatcher(queue, st, mir, 0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go matcher.Run(ctx)

	wsh := ws.NewHandler(st, mir, cleaner, 0)
	api := New(queue, st, mir, wsh, 0)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestMatchEndpointPairsTwoPlayers(t *testing.T) {
	srv, st := newTestAPI(t)

	type reply struct {
		status int
		res    matchmaking.Result
	}
	replies := make(chan reply, 2)
	for _, u := range []string{"alice", "bob"} {
		go func(u string) {
			resp, data := postJSON(t, srv.URL+"/match", map[string]string{"user_id": u})
			var res matchmaking.Result
			if err := json.Unmarshal(data, &res); err != nil {
				t.Errorf("decode %q: %v", data, err)
				return
			}
			replies <- reply{status: resp.StatusCode, res: res}
		}(u)
	}

	var got []reply
	for i := 0; i < 2; i++ {
		select {
		case r := <-replies:
			got = append(got, r)
		case <-time.After(3 * time.Second):
			t.Fatal("match request timed out")
		}
	}
	for _, r := range got {
		if r.status != http.StatusOK || r.res.IsErr() {
			t.Fatalf("bad reply: %+v", r)
		}
	}
	if got[0].res.GameID != got[1].res.GameID {
		t.Fatalf("different games: %+v vs %+v", got[0].res, got[1].res)
	}
	if got[0].res.Color == got[1].res.Color {
		t.Fatalf("same color twice: %+v vs %+v", got[0].res, got[1].res)
	}
	if st.Len() != 1 {
		t.Fatalf("resident sessions = %d", st.Len())
	}
}

func TestMatchEndpointRejectsEmptyUser(t *testing.T) {
	srv, _ := newTestAPI(t)
	resp, _ := postJSON(t, srv.URL+"/match", map[string]string{"user_id": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestInitAndDuplicate(t *testing.T) {
	srv, st := newTestAPI(t)
	body := map[string]string{"game_id": "g1", "white_user_id": "w", "black_user_id": "b"}

	resp, data := postJSON(t, srv.URL+"/init", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, data)
	}
	if st.Len() != 1 {
		t.Fatalf("sessions = %d", st.Len())
	}

	resp, data = postJSON(t, srv.URL+"/init", body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("duplicate status = %d body = %s", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), "Game already exists") {
		t.Fatalf("duplicate body = %q", data)
	}
}

// downMirror refuses every write with a transport-style error.
type downMirror struct{}

func (downMirror) Insert(context.Context, mirror.Row) error { return errors.New("connection refused") }
func (downMirror) Get(context.Context, string) (*mirror.Row, error) {
	return nil, mirror.ErrNotFound
}
func (downMirror) Delete(context.Context, string) error { return nil }
func (downMirror) Close() error                         { return nil }

func TestInitMirrorOutageIsNotReportedAsDuplicate(t *testing.T) {
	st := session.NewStore()
	cleaner := session.NewCleaner(st, downMirror{}, time.Minute)
	queue := matchmaking.NewQueue(0)
	wsh := ws.NewHandler(st, downMirror{}, cleaner, 0)
	api := New(queue, st, downMirror{}, wsh, 0)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	resp, data := postJSON(t, srv.URL+"/init", map[string]string{
		"game_id": "g1", "white_user_id": "w", "black_user_id": "b",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d body = %s", resp.StatusCode, data)
	}
	if strings.Contains(string(data), "already exists") {
		t.Fatalf("outage reported as duplicate: %q", data)
	}
	if st.Len() != 0 {
		t.Fatalf("session created despite mirror failure: %d", st.Len())
	}
}

func TestGamesDump(t *testing.T) {
	srv, _ := newTestAPI(t)
	_, _ = postJSON(t, srv.URL+"/init", map[string]string{
		"game_id": "g1", "white_user_id": "w1", "black_user_id": "b1",
	})

	resp, err := http.Get(srv.URL + "/games")
	if err != nil {
		t.Fatalf("GET /games: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "{Game: g1, Black: b1, White: w1}") {
		t.Fatalf("dump missing session: %q", data)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestAPI(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
