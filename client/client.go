package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/game"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNoSession = errors.New("not in an active session")

const writeWait = 10 * time.Second

// Handler observes a Client. OnEvent is called for every server frame after
// the client has updated its own state; OnStatus carries one-line messages
// meant for the player.
type Handler interface {
	OnEvent(msg events.Message)
	OnStatus(line string)
}

// Client is a participant connected to the broker.
type Client struct {
	conn    *websocket.Conn
	rules   game.RulesEngine
	handler Handler

	writeMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	side      game.Side
	machine   *Machine

	done chan struct{}
}

// Dial connects to the broker's websocket endpoint, e.g. ws://host:8080/ws.
func Dial(ctx context.Context, url string, rules game.RulesEngine, h Handler) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if rules == nil {
		rules = game.NewChessRules()
	}
	c := &Client{
		conn:    conn,
		rules:   rules,
		handler: h,
		side:    game.NoSide,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) CreateSession() error {
	return c.send(events.CreateSession{})
}

func (c *Client) JoinSession(sessionID string) error {
	return c.send(events.JoinSession{SessionID: sessionID})
}

func (c *Client) Click(square string) error {
	return c.act(func(m *Machine) Action { return m.Click(square) })
}

func (c *Client) Drop(from, to string) error {
	return c.act(func(m *Machine) Action { return m.Drop(from, to) })
}

func (c *Client) act(input func(m *Machine) Action) error {
	c.mu.Lock()
	if c.machine == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	act := input(c.machine)
	verdict := c.machine.Result()
	c.mu.Unlock()

	for _, msg := range act.Messages() {
		if err := c.send(msg); err != nil {
			return err
		}
	}
	if act.Conclude != nil && verdict != nil {
		c.status(verdict.String())
	}
	return nil
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) Side() game.Side {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.side
}

// Position is the board as this client sees it, or "" outside a game.
func (c *Client) Position() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return ""
	}
	return c.machine.Position()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return Idle
	}
	return c.machine.State()
}

func (c *Client) Result() *game.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return nil
	}
	return c.machine.Result()
}

func (c *Client) InGame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine != nil
}

// Close disconnects and waits for the read loop to exit.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) send(msg events.Message) error {
	data, err := events.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("Connection to broker lost")
			}
			return
		}
		msg, err := events.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring undecodable frame")
			continue
		}
		c.handle(msg)
		if c.handler != nil {
			c.handler.OnEvent(msg)
		}
	}
}

func (c *Client) handle(msg events.Message) {
	var line string

	c.mu.Lock()
	switch m := msg.(type) {
	case events.SessionCreated:
		c.sessionID = m.SessionID
		c.side = game.First
		c.machine = nil
		line = fmt.Sprintf("Session %s created, waiting for an opponent", m.SessionID)
	case events.SideAssigned:
		c.side = m.Side
		c.machine = nil
	case events.SessionActive:
		c.machine = NewMachine(c.side, c.rules, game.StartPosition)
		line = fmt.Sprintf("Game started, you play %s", c.side.Color())
	case events.MoveRelayed:
		if c.machine != nil {
			if verdict := c.machine.ApplyRemote(m); verdict != nil {
				line = verdict.String()
			}
		}
	case events.GameConcluded:
		if c.machine != nil && c.machine.ApplyConclusion(m.Result) {
			line = m.Result.String()
		}
	case events.MoveRejected:
		line = fmt.Sprintf("Move rejected: %s", m.Reason)
	case events.SessionNotFound:
		c.reset()
		line = "Session not found"
	case events.SessionFull:
		c.reset()
		line = "Session is full"
	case events.PeerDisconnected:
		c.reset()
		line = "Opponent disconnected"
	case events.SessionExpired:
		c.reset()
		line = "Session expired"
	case events.Error:
		line = "Error: " + m.Reason
	}
	c.mu.Unlock()

	if line != "" {
		c.status(line)
	}
}

// reset returns to the pre-session state. Callers hold c.mu.
func (c *Client) reset() {
	c.sessionID = ""
	c.side = game.NoSide
	c.machine = nil
}

func (c *Client) status(line string) {
	log.Info().Str("status", line).Msg("Client status")
	if c.handler != nil {
		c.handler.OnStatus(line)
	}
}
