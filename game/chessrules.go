package game

import (
	"fmt"

	"github.com/notnil/chess"
)

// ChessRules is a RulesEngine backed by notnil/chess. It is stateless: every
// call rebuilds a game from the given FEN.
type ChessRules struct{}

func NewChessRules() *ChessRules {
	return &ChessRules{}
}

func (r *ChessRules) load(position string) (*chess.Game, error) {
	opt, err := chess.FEN(NormalizePosition(position))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return chess.NewGame(opt), nil
}

func (r *ChessRules) PieceAt(position, square string) (Piece, bool, error) {
	g, err := r.load(position)
	if err != nil {
		return Piece{}, false, err
	}
	for sq, p := range g.Position().Board().SquareMap() {
		if sq.String() == square {
			return pieceFrom(p), true, nil
		}
	}
	return Piece{}, false, nil
}

func (r *ChessRules) LegalDestinations(position, origin string) ([]string, error) {
	g, err := r.load(position)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, m := range g.ValidMoves() {
		if m.S1().String() != origin {
			continue
		}
		to := m.S2().String()
		// promotions yield one move per piece, all to the same square
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	return out, nil
}

func (r *ChessRules) Apply(position string, mv Move) (Applied, error) {
	g, err := r.load(position)
	if err != nil {
		return Applied{}, err
	}
	m := findMove(g.ValidMoves(), mv)
	if m == nil {
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv)
	}

	mover := sideFrom(g.Position().Turn())
	var captured *Piece
	if p := g.Position().Board().Piece(m.S2()); p != chess.NoPiece {
		cp := pieceFrom(p)
		captured = &cp
	} else if m.HasTag(chess.EnPassant) {
		captured = &Piece{Kind: "p", Side: mover.Opponent()}
	}

	if err := g.Move(m); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	applied := Move{From: m.S1().String(), To: m.S2().String()}
	if m.Promo() != chess.NoPieceType {
		applied.Promotion = pieceKind(m.Promo())
	}
	return Applied{Move: applied, Position: g.Position().String(), Captured: captured}, nil
}

func (r *ChessRules) Evaluate(history []string) (Status, error) {
	if len(history) == 0 {
		return Status{}, fmt.Errorf("%w: empty history", ErrBadPosition)
	}
	last := history[len(history)-1]
	g, err := r.load(last)
	if err != nil {
		return Status{}, err
	}

	st := Status{ToMove: sideFrom(g.Position().Turn())}
	switch g.Method() {
	case chess.Checkmate:
		st.Checkmate = true
	case chess.Stalemate:
		st.Stalemate = true
	case chess.InsufficientMaterial:
		st.InsufficientMaterial = true
	case chess.ThreefoldRepetition:
		st.ThreefoldRepetition = true
	case chess.NoMethod:
	default:
		if g.Outcome() == chess.Draw {
			st.Draw = true
		}
	}

	// a game rebuilt from FEN has no move history, so repetition is counted here
	key := RepetitionKey(last)
	seen := 0
	for _, p := range history {
		if RepetitionKey(p) == key {
			seen++
		}
	}
	if seen >= 3 {
		st.ThreefoldRepetition = true
	}
	if HalfMoveClock(last) >= 100 {
		st.Draw = true
	}
	return st, nil
}

func findMove(moves []*chess.Move, mv Move) *chess.Move {
	var fallback *chess.Move
	for _, m := range moves {
		if m.S1().String() != mv.From || m.S2().String() != mv.To {
			continue
		}
		if m.Promo() == chess.NoPieceType {
			return m
		}
		want := mv.Promotion
		if want == "" {
			want = "q"
		}
		if pieceKind(m.Promo()) == want {
			return m
		}
		if fallback == nil {
			fallback = m
		}
	}
	if mv.Promotion == "" {
		return fallback
	}
	return nil
}

func pieceFrom(p chess.Piece) Piece {
	return Piece{Kind: pieceKind(p.Type()), Side: sideFrom(p.Color())}
}

func sideFrom(c chess.Color) Side {
	switch c {
	case chess.White:
		return First
	case chess.Black:
		return Second
	}
	return NoSide
}

func pieceKind(t chess.PieceType) string {
	switch t {
	case chess.King:
		return "k"
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	case chess.Pawn:
		return "p"
	}
	return ""
}
