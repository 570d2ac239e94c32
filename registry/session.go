package registry

import (
	"sync"
	"time"

	"github.com/cameroncuttingedge/chess_relay/game"
)

type LifecycleState string

const (
	AwaitingSecond LifecycleState = "awaiting_second"
	Active         LifecycleState = "active"
	Ended          LifecycleState = "ended"
)

// Session is one paired game. Its fields are guarded by mu; the exported
// accessors are only safe inside Registry.WithSession.
type Session struct {
	mu           sync.Mutex
	id           string
	participants map[game.Side]string
	state        LifecycleState
	position     string
	result       *game.Result
	createdAt    time.Time
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() LifecycleState {
	return s.state
}

func (s *Session) Position() string {
	return s.position
}

func (s *Session) SetPosition(position string) {
	s.position = position
}

func (s *Session) Result() *game.Result {
	return s.result
}

// Participant returns the connection bound to side.
func (s *Session) Participant(side game.Side) (string, bool) {
	id, ok := s.participants[side]
	return id, ok
}

// Info is a point-in-time copy of a session for read-only callers.
type Info struct {
	ID        string         `json:"id"`
	State     LifecycleState `json:"state"`
	Position  string         `json:"position"`
	Sides     []game.Side    `json:"sides"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (s *Session) info() Info {
	info := Info{
		ID:        s.id,
		State:     s.state,
		Position:  s.position,
		CreatedAt: s.createdAt,
	}
	for _, side := range []game.Side{game.First, game.Second} {
		if _, ok := s.participants[side]; ok {
			info.Sides = append(info.Sides, side)
		}
	}
	return info
}
