package game

import "errors"

var ErrIllegalMove = errors.New("illegal move")

// RulesEngine answers legality, application and terminal questions about a position.
// Positions are FEN strings.
type RulesEngine interface {
	PieceAt(position, square string) (Piece, bool, error)
	LegalDestinations(position, origin string) ([]string, error)
	Apply(position string, mv Move) (Applied, error)
	// Evaluate inspects the last entry of history; earlier entries are only
	// used to detect repetition.
	Evaluate(history []string) (Status, error)
}

type Applied struct {
	Move     Move
	Position string
	Captured *Piece
}

type Status struct {
	ToMove               Side
	Checkmate            bool
	Stalemate            bool
	InsufficientMaterial bool
	ThreefoldRepetition  bool
	Draw                 bool
}
