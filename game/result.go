package game

import (
	"fmt"
	"strings"
)

type TerminalKind string

const (
	Checkmate            TerminalKind = "checkmate"
	Stalemate            TerminalKind = "stalemate"
	InsufficientMaterial TerminalKind = "insufficient_material"
	ThreefoldRepetition  TerminalKind = "threefold_repetition"
	Draw                 TerminalKind = "draw"
)

// Result is a terminal verdict. Winner is NoSide for every kind except Checkmate.
type Result struct {
	Winner Side         `json:"winner"`
	Kind   TerminalKind `json:"kind"`
}

func (r Result) Validate() error {
	switch r.Kind {
	case Checkmate:
		if !r.Winner.Valid() {
			return fmt.Errorf("checkmate requires a winner, got %q", r.Winner)
		}
	case Stalemate, InsufficientMaterial, ThreefoldRepetition, Draw:
		if r.Winner != NoSide {
			return fmt.Errorf("%s cannot have a winner", r.Kind)
		}
	default:
		return fmt.Errorf("unknown terminal kind %q", r.Kind)
	}
	return nil
}

// String is the status line shown to players.
func (r Result) String() string {
	kind := strings.ReplaceAll(string(r.Kind), "_", " ")
	if r.Winner.Valid() {
		return fmt.Sprintf("%s wins by %s", r.Winner.Color(), kind)
	}
	if r.Kind == Draw {
		return "Draw"
	}
	return "Draw by " + kind
}

// Classify turns an engine status into a verdict, or nil when play continues.
// Priority only matters for display: checkmate, stalemate, insufficient
// material, threefold repetition, then any other draw.
func Classify(st Status) *Result {
	switch {
	case st.Checkmate:
		return &Result{Winner: st.ToMove.Opponent(), Kind: Checkmate}
	case st.Stalemate:
		return &Result{Winner: NoSide, Kind: Stalemate}
	case st.InsufficientMaterial:
		return &Result{Winner: NoSide, Kind: InsufficientMaterial}
	case st.ThreefoldRepetition:
		return &Result{Winner: NoSide, Kind: ThreefoldRepetition}
	case st.Draw:
		return &Result{Winner: NoSide, Kind: Draw}
	}
	return nil
}
