package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Side is one of the two fixed roles in a session. The first side plays white.
type Side string

const (
	First  Side = "first"
	Second Side = "second"
	NoSide Side = "none"
)

// StartPosition is the standard initial chess position in FEN.
const StartPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrBadPosition = errors.New("malformed position")

// SideForJoinOrder maps join order (0 for the creator, 1 for the joiner) to a side.
func SideForJoinOrder(n int) (Side, bool) {
	switch n {
	case 0:
		return First, true
	case 1:
		return Second, true
	}
	return NoSide, false
}

func (s Side) Valid() bool {
	return s == First || s == Second
}

func (s Side) Opponent() Side {
	switch s {
	case First:
		return Second
	case Second:
		return First
	}
	return NoSide
}

// Color is the display name of the pieces the side plays.
func (s Side) Color() string {
	switch s {
	case First:
		return "White"
	case Second:
		return "Black"
	}
	return "Nobody"
}

// Move is an (origin, destination) pair in algebraic square notation.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (m Move) Validate() error {
	if !ValidSquare(m.From) {
		return fmt.Errorf("invalid origin square %q", m.From)
	}
	if !ValidSquare(m.To) {
		return fmt.Errorf("invalid destination square %q", m.To)
	}
	if m.From == m.To {
		return errors.New("origin and destination are the same square")
	}
	switch m.Promotion {
	case "", "q", "r", "b", "n":
	default:
		return fmt.Errorf("invalid promotion %q", m.Promotion)
	}
	return nil
}

func (m Move) String() string {
	return m.From + m.To + m.Promotion
}

// Piece describes a unit on the board, used for captured-piece display.
type Piece struct {
	Kind string `json:"kind"`
	Side Side   `json:"side"`
}

func (p Piece) Validate() error {
	switch p.Kind {
	case "p", "n", "b", "r", "q", "k":
	default:
		return fmt.Errorf("invalid piece kind %q", p.Kind)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("invalid piece side %q", p.Side)
	}
	return nil
}

func ValidSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}

// NormalizePosition expands the "start" shorthand and trims whitespace.
func NormalizePosition(position string) string {
	p := strings.TrimSpace(position)
	if p == "" || p == "start" {
		return StartPosition
	}
	return p
}

// SideToMove reads the active colour field of a FEN position.
func SideToMove(position string) (Side, error) {
	fields := strings.Fields(NormalizePosition(position))
	if len(fields) < 2 {
		return NoSide, fmt.Errorf("%w: missing side to move", ErrBadPosition)
	}
	switch fields[1] {
	case "w":
		return First, nil
	case "b":
		return Second, nil
	}
	return NoSide, fmt.Errorf("%w: side to move %q", ErrBadPosition, fields[1])
}

// HalfMoveClock returns the fifty-move counter of a FEN position, or 0 when absent.
func HalfMoveClock(position string) int {
	fields := strings.Fields(NormalizePosition(position))
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}

// RepetitionKey drops the move counters so repeated positions compare equal.
func RepetitionKey(position string) string {
	fields := strings.Fields(NormalizePosition(position))
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}
