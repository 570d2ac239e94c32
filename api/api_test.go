package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cameroncuttingedge/chess_relay/client"
	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/game"
	"github.com/cameroncuttingedge/chess_relay/registry"
	"github.com/cameroncuttingedge/chess_relay/relay"
	"github.com/cameroncuttingedge/chess_relay/websocket"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type watcher struct {
	events chan events.Message

	mu       sync.Mutex
	statuses []string
}

func newWatcher() *watcher {
	return &watcher{events: make(chan events.Message, 64)}
}

func (w *watcher) OnEvent(msg events.Message) {
	w.events <- msg
}

func (w *watcher) OnStatus(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses = append(w.statuses, line)
}

func (w *watcher) lastStatus() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.statuses) == 0 {
		return ""
	}
	return w.statuses[len(w.statuses)-1]
}

// waitFor skips other events until one of type typ arrives.
func (w *watcher) waitFor(t *testing.T, typ events.Type) events.Message {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-w.events:
			if msg.Type() == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

type testServer struct {
	*httptest.Server
	registry *registry.Registry
	hub      *websocket.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hub := websocket.NewHub(websocket.Config{ReadLimit: 4096})
	reg := registry.New(hub, registry.Config{})
	rl := relay.New(reg, hub, nil, relay.Config{})
	b := NewBroker(reg, rl, hub)
	srv := httptest.NewServer(NewRouter(b, hub, RouterConfig{MetricsEnabled: true, MetricsPath: "/metrics"}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: reg, hub: hub}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *testServer) dial(t *testing.T) (*client.Client, *watcher) {
	t.Helper()
	w := newWatcher()
	c, err := client.Dial(context.Background(), s.wsURL(), nil, w)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, w
}

// startGame pairs two clients and returns them once both see session_active.
func (s *testServer) startGame(t *testing.T) (alice, bob *client.Client, aw, bw *watcher, sessionID string) {
	t.Helper()
	alice, aw = s.dial(t)
	bob, bw = s.dial(t)

	require.NoError(t, alice.CreateSession())
	created := aw.waitFor(t, events.TypeSessionCreated).(events.SessionCreated)
	sessionID = created.SessionID

	require.NoError(t, bob.JoinSession(strings.ToLower(sessionID)))
	assigned := bw.waitFor(t, events.TypeSideAssigned).(events.SideAssigned)
	assert.Equal(t, game.Second, assigned.Side)
	bw.waitFor(t, events.TypeSessionActive)
	aw.waitFor(t, events.TypeSessionActive)
	return alice, bob, aw, bw, sessionID
}

func clickMove(t *testing.T, c *client.Client, from, to string) {
	t.Helper()
	require.NoError(t, c.Click(from))
	require.NoError(t, c.Click(to))
}

func TestCreateJoinAndRelay(t *testing.T) {
	s := newTestServer(t)
	alice, bob, _, bw, sessionID := s.startGame(t)

	assert.Len(t, sessionID, 6)
	assert.Equal(t, game.First, alice.Side())
	assert.Equal(t, game.Second, bob.Side())
	assert.True(t, alice.InGame())
	assert.True(t, bob.InGame())

	clickMove(t, alice, "e2", "e4")
	relayed := bw.waitFor(t, events.TypeMoveRelayed).(events.MoveRelayed)
	assert.Equal(t, game.Move{From: "e2", To: "e4"}, relayed.Move)
	assert.Equal(t, alice.Position(), relayed.ResultingPosition)
	assert.Equal(t, alice.Position(), bob.Position())

	side, err := game.SideToMove(bob.Position())
	require.NoError(t, err)
	assert.Equal(t, game.Second, side)

	info, err := s.registry.Snapshot(sessionID)
	require.NoError(t, err)
	assert.Equal(t, alice.Position(), info.Position)
}

func TestPositionsConvergeWithRegistry(t *testing.T) {
	s := newTestServer(t)
	alice, bob, aw, bw, sessionID := s.startGame(t)

	moves := [][2]string{{"e2", "e4"}, {"e7", "e5"}, {"g1", "f3"}, {"b8", "c6"}, {"f1", "b5"}, {"a7", "a6"}}
	for i, mv := range moves {
		mover, peer := alice, bw
		if i%2 == 1 {
			mover, peer = bob, aw
		}
		require.NoError(t, mover.Drop(mv[0], mv[1]))
		peer.waitFor(t, events.TypeMoveRelayed)

		info, err := s.registry.Snapshot(sessionID)
		require.NoError(t, err)
		assert.Equal(t, alice.Position(), info.Position, "after move %d", i+1)
		assert.Equal(t, bob.Position(), info.Position, "after move %d", i+1)
	}
}

func TestCheckmateEndsTheGameForBoth(t *testing.T) {
	s := newTestServer(t)
	alice, bob, aw, bw, sessionID := s.startGame(t)

	clickMove(t, alice, "f2", "f3")
	bw.waitFor(t, events.TypeMoveRelayed)
	clickMove(t, bob, "e7", "e5")
	aw.waitFor(t, events.TypeMoveRelayed)
	clickMove(t, alice, "g2", "g4")
	bw.waitFor(t, events.TypeMoveRelayed)
	clickMove(t, bob, "d8", "h4")

	want := game.Result{Winner: game.Second, Kind: game.Checkmate}
	aw.waitFor(t, events.TypeMoveRelayed)
	assert.Equal(t, events.GameConcluded{Result: want}, aw.waitFor(t, events.TypeGameConcluded))
	assert.Equal(t, events.GameConcluded{Result: want}, bw.waitFor(t, events.TypeGameConcluded))

	for _, c := range []*client.Client{alice, bob} {
		assert.Equal(t, client.Terminal, c.State())
		require.NotNil(t, c.Result())
		assert.Equal(t, want, *c.Result())
	}
	assert.Equal(t, "Black wins by checkmate", aw.lastStatus())

	_, err := s.registry.Snapshot(sessionID)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	// starting over drops the finished board
	require.NoError(t, alice.CreateSession())
	created := aw.waitFor(t, events.TypeSessionCreated).(events.SessionCreated)
	assert.NotEmpty(t, created.SessionID)
	assert.False(t, alice.InGame())
	assert.Equal(t, client.Idle, alice.State())
	assert.Nil(t, alice.Result())
}

func TestDisconnectNotifiesRemainingParticipant(t *testing.T) {
	s := newTestServer(t)
	alice, bob, aw, _, sessionID := s.startGame(t)

	require.NoError(t, bob.Close())
	aw.waitFor(t, events.TypePeerDisconnected)

	assert.False(t, alice.InGame())
	assert.Equal(t, "Opponent disconnected", aw.lastStatus())
	require.Eventually(t, func() bool { return s.registry.Len() == 0 }, waitTimeout, 10*time.Millisecond)

	resp, err := http.Get(s.URL + "/sessions/" + sessionID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// a second notice never follows
	select {
	case msg := <-aw.events:
		t.Fatalf("unexpected event after disconnect: %s", msg.Type())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestJoinFailuresResetTheClient(t *testing.T) {
	s := newTestServer(t)
	_, _, _, _, sessionID := s.startGame(t)

	carol, cw := s.dial(t)
	require.NoError(t, carol.JoinSession(sessionID))
	cw.waitFor(t, events.TypeSessionFull)
	assert.Equal(t, "Session is full", cw.lastStatus())
	assert.False(t, carol.InGame())

	require.NoError(t, carol.JoinSession("ZZZZ99"))
	cw.waitFor(t, events.TypeSessionNotFound)
	assert.Equal(t, "Session not found", cw.lastStatus())
	assert.ErrorIs(t, carol.Click("e2"), client.ErrNoSession)
}

func dialRaw(t *testing.T, s *testServer) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(s.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendRaw(t *testing.T, conn *gorilla.Conn, msg events.Message) {
	t.Helper()
	data, err := events.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, data))
}

func readRaw(t *testing.T, conn *gorilla.Conn) events.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := events.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestProtocolRejections(t *testing.T) {
	s := newTestServer(t)
	white := dialRaw(t, s)
	black := dialRaw(t, s)

	sendRaw(t, white, events.CreateSession{})
	created := readRaw(t, white).(events.SessionCreated)
	sendRaw(t, black, events.JoinSession{SessionID: created.SessionID})
	assert.Equal(t, events.SideAssigned{Side: game.Second}, readRaw(t, black))
	assert.Equal(t, events.SessionActive{}, readRaw(t, black))
	assert.Equal(t, events.SessionActive{}, readRaw(t, white))

	blackFirst := events.MovePayload{
		Move:              game.Move{From: "e7", To: "e5"},
		ResultingPosition: "rnbqkbnr/pppp1ppp/8/4p3/8/8/PPPPPPPP/RNBQKBNR w KQkq e6 0 1",
	}
	sendRaw(t, black, events.SubmitMove{MovePayload: blackFirst})
	assert.Equal(t, events.MoveRejected{Reason: events.RejectOutOfTurn}, readRaw(t, black))

	require.NoError(t, white.WriteMessage(gorilla.TextMessage, []byte(`{"type":"dance"}`)))
	assert.Equal(t, events.TypeError, readRaw(t, white).Type())

	sendRaw(t, white, events.SessionActive{})
	assert.Equal(t, events.TypeError, readRaw(t, white).Type())

	sendRaw(t, white, events.CreateSession{})
	assert.Equal(t, events.TypeError, readRaw(t, white).Type(), "already in a session")

	verdict := game.Result{Winner: game.NoSide, Kind: game.Draw}
	sendRaw(t, white, events.GameConcluded{Result: verdict})
	assert.Equal(t, events.GameConcluded{Result: verdict}, readRaw(t, white))
	assert.Equal(t, events.GameConcluded{Result: verdict}, readRaw(t, black))

	sendRaw(t, black, events.SubmitMove{MovePayload: blackFirst})
	assert.Equal(t, events.MoveRejected{Reason: events.RejectNotFound}, readRaw(t, black))
}

func TestHTTPRoutes(t *testing.T) {
	s := newTestServer(t)
	alice, aw := s.dial(t)
	require.NoError(t, alice.CreateSession())
	created := aw.waitFor(t, events.TypeSessionCreated).(events.SessionCreated)

	resp, err := http.Get(s.URL + "/sessions/" + strings.ToLower(created.SessionID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info registry.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, created.SessionID, info.ID)
	assert.Equal(t, registry.AwaitingSecond, info.State)
	assert.Equal(t, []game.Side{game.First}, info.Sides)

	resp, err = http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "chessrelay_sessions_created_total")
}
