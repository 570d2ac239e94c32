package client

import (
	"slices"

	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/game"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Idle State = iota
	Selected
	Terminal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case Terminal:
		return "terminal"
	}
	return "unknown"
}

// Action is what a local input produced for the server. A zero Action means
// the input was absorbed and nothing is sent.
type Action struct {
	Submit   *events.SubmitMove
	Conclude *events.GameConcluded
}

func (a Action) Empty() bool {
	return a.Submit == nil && a.Conclude == nil
}

// Messages lists the frames to send, in order.
func (a Action) Messages() []events.Message {
	var out []events.Message
	if a.Submit != nil {
		out = append(out, *a.Submit)
	}
	if a.Conclude != nil {
		out = append(out, *a.Conclude)
	}
	return out
}

// Machine is one participant's view of the board and its selection state.
// It is not safe for concurrent use.
type Machine struct {
	side     game.Side
	rules    game.RulesEngine
	position string
	history  []string
	selected string
	legal    []string
	captured map[game.Side][]game.Piece
	result   *game.Result
}

func NewMachine(side game.Side, rules game.RulesEngine, position string) *Machine {
	if rules == nil {
		rules = game.NewChessRules()
	}
	position = game.NormalizePosition(position)
	return &Machine{
		side:     side,
		rules:    rules,
		position: position,
		history:  []string{position},
		captured: make(map[game.Side][]game.Piece),
	}
}

func (m *Machine) State() State {
	switch {
	case m.result != nil:
		return Terminal
	case m.selected != "":
		return Selected
	}
	return Idle
}

func (m *Machine) Side() game.Side      { return m.side }
func (m *Machine) Position() string     { return m.position }
func (m *Machine) Result() *game.Result { return m.result }

// Selected returns the chosen origin square, if any.
func (m *Machine) Selected() (string, bool) {
	return m.selected, m.selected != ""
}

func (m *Machine) LegalDestinations() []string {
	return slices.Clone(m.legal)
}

// CapturedBy lists the opponent pieces side has taken, oldest first.
func (m *Machine) CapturedBy(side game.Side) []game.Piece {
	return slices.Clone(m.captured[side])
}

func (m *Machine) myTurn() bool {
	toMove, err := game.SideToMove(m.position)
	return err == nil && toMove == m.side
}

func (m *Machine) owns(square string) bool {
	p, ok, err := m.rules.PieceAt(m.position, square)
	return err == nil && ok && p.Side == m.side
}

func (m *Machine) clearSelection() {
	m.selected = ""
	m.legal = nil
}

func (m *Machine) selectOrigin(square string) {
	legal, err := m.rules.LegalDestinations(m.position, square)
	if err != nil {
		log.Warn().Err(err).Str("square", square).Msg("Could not compute legal destinations")
		m.clearSelection()
		return
	}
	m.selected = square
	m.legal = legal
}

// Click handles a click on square.
func (m *Machine) Click(square string) Action {
	if m.result != nil || !m.myTurn() {
		return Action{}
	}

	if m.selected == "" {
		if m.owns(square) {
			m.selectOrigin(square)
		}
		return Action{}
	}

	switch {
	case square == m.selected:
		m.clearSelection()
	case slices.Contains(m.legal, square):
		from := m.selected
		m.clearSelection()
		return m.attempt(game.Move{From: from, To: square})
	case m.owns(square):
		m.selectOrigin(square)
	default:
		m.clearSelection()
	}
	return Action{}
}

// Drop moves a piece dragged from one square to another without a prior selection.
func (m *Machine) Drop(from, to string) Action {
	if m.result != nil || !m.myTurn() || !m.owns(from) {
		return Action{}
	}
	m.clearSelection()
	return m.attempt(game.Move{From: from, To: to})
}

func (m *Machine) attempt(mv game.Move) Action {
	applied, err := m.rules.Apply(m.position, mv)
	if err != nil {
		log.Debug().Err(err).Str("move", mv.String()).Msg("Move absorbed")
		return Action{}
	}

	m.advance(applied.Position, m.side, applied.Captured)
	act := Action{Submit: &events.SubmitMove{MovePayload: events.MovePayload{
		Move:              applied.Move,
		ResultingPosition: applied.Position,
		CapturedUnit:      applied.Captured,
	}}}
	if verdict := m.classify(); verdict != nil {
		act.Conclude = &events.GameConcluded{Result: *verdict}
	}
	return act
}

// ApplyRemote applies the opponent's move as given. It returns the verdict
// when the move ended the game.
func (m *Machine) ApplyRemote(mv events.MoveRelayed) *game.Result {
	if m.result != nil {
		return nil
	}
	m.clearSelection()
	m.advance(game.NormalizePosition(mv.ResultingPosition), m.side.Opponent(), mv.CapturedUnit)
	return m.classify()
}

// ApplyConclusion records a verdict from the server. Only the first one counts.
func (m *Machine) ApplyConclusion(r game.Result) bool {
	if m.result != nil {
		return false
	}
	m.clearSelection()
	m.result = &r
	return true
}

func (m *Machine) advance(position string, mover game.Side, captured *game.Piece) {
	m.position = position
	m.history = append(m.history, position)
	if captured != nil {
		m.captured[mover] = append(m.captured[mover], *captured)
	}
}

func (m *Machine) classify() *game.Result {
	st, err := m.rules.Evaluate(m.history)
	if err != nil {
		log.Warn().Err(err).Msg("Could not evaluate position")
		return nil
	}
	verdict := game.Classify(st)
	if verdict != nil {
		m.result = verdict
	}
	return verdict
}
