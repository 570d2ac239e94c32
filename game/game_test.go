package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	foolsMate        = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemate        = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	bareKings        = "8/8/8/4k3/8/8/8/4K3 w - - 0 1"
	scandinavian     = "rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2"
	promotionPending = "8/P6k/8/8/8/8/8/K7 w - - 0 1"
)

func TestSideForJoinOrder(t *testing.T) {
	s, ok := SideForJoinOrder(0)
	assert.True(t, ok)
	assert.Equal(t, First, s)

	s, ok = SideForJoinOrder(1)
	assert.True(t, ok)
	assert.Equal(t, Second, s)

	_, ok = SideForJoinOrder(2)
	assert.False(t, ok)
}

func TestSideToMove(t *testing.T) {
	testCases := []struct {
		name     string
		position string
		expected Side
		wantErr  bool
	}{
		{name: "start shorthand", position: "start", expected: First},
		{name: "empty means start", position: "", expected: First},
		{name: "black to move", position: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1", expected: Second},
		{name: "white to move", position: foolsMate, expected: First},
		{name: "missing field", position: "8/8/8/8/8/8/8/8", wantErr: true},
		{name: "bad colour", position: "8/8/8/8/8/8/8/8 x - - 0 1", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			side, err := SideToMove(tc.position)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadPosition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, side)
		})
	}
}

func TestMoveValidate(t *testing.T) {
	assert.NoError(t, Move{From: "e2", To: "e4"}.Validate())
	assert.NoError(t, Move{From: "a7", To: "a8", Promotion: "n"}.Validate())
	assert.Error(t, Move{From: "e2", To: "e2"}.Validate())
	assert.Error(t, Move{From: "e9", To: "e4"}.Validate())
	assert.Error(t, Move{From: "e2", To: "E4"}.Validate())
	assert.Error(t, Move{From: "a7", To: "a8", Promotion: "k"}.Validate())
}

func TestRepetitionKeyIgnoresCounters(t *testing.T) {
	a := "8/8/8/4k3/8/8/8/4K3 w - - 4 10"
	b := "8/8/8/4k3/8/8/8/4K3 w - - 8 12"
	assert.Equal(t, RepetitionKey(a), RepetitionKey(b))
	assert.Equal(t, 4, HalfMoveClock(a))
	assert.Equal(t, 0, HalfMoveClock("start x"))
}

func TestClassifyPriority(t *testing.T) {
	testCases := []struct {
		name     string
		status   Status
		expected *Result
	}{
		{name: "ongoing", status: Status{ToMove: First}, expected: nil},
		{
			name:     "checkmate wins over everything",
			status:   Status{ToMove: First, Checkmate: true, Stalemate: true, Draw: true},
			expected: &Result{Winner: Second, Kind: Checkmate},
		},
		{
			name:     "stalemate before insufficient material",
			status:   Status{ToMove: Second, Stalemate: true, InsufficientMaterial: true},
			expected: &Result{Winner: NoSide, Kind: Stalemate},
		},
		{
			name:     "insufficient material before repetition",
			status:   Status{ToMove: Second, InsufficientMaterial: true, ThreefoldRepetition: true},
			expected: &Result{Winner: NoSide, Kind: InsufficientMaterial},
		},
		{
			name:     "repetition before generic draw",
			status:   Status{ToMove: Second, ThreefoldRepetition: true, Draw: true},
			expected: &Result{Winner: NoSide, Kind: ThreefoldRepetition},
		},
		{
			name:     "generic draw",
			status:   Status{ToMove: First, Draw: true},
			expected: &Result{Winner: NoSide, Kind: Draw},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.status))
		})
	}
}

func TestResultValidateAndString(t *testing.T) {
	win := Result{Winner: First, Kind: Checkmate}
	assert.NoError(t, win.Validate())
	assert.Equal(t, "White wins by checkmate", win.String())

	draw := Result{Winner: NoSide, Kind: InsufficientMaterial}
	assert.NoError(t, draw.Validate())
	assert.Equal(t, "Draw by insufficient material", draw.String())

	assert.Error(t, Result{Winner: NoSide, Kind: Checkmate}.Validate())
	assert.Error(t, Result{Winner: Second, Kind: Stalemate}.Validate())
	assert.Error(t, Result{Winner: NoSide, Kind: "resignation"}.Validate())
}

func TestChessRulesPieceAt(t *testing.T) {
	rules := NewChessRules()

	p, ok, err := rules.PieceAt(StartPosition, "e2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Piece{Kind: "p", Side: First}, p)

	p, ok, err = rules.PieceAt(StartPosition, "d8")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Piece{Kind: "q", Side: Second}, p)

	_, ok, err = rules.PieceAt(StartPosition, "e4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = rules.PieceAt("not a fen", "e4")
	assert.ErrorIs(t, err, ErrBadPosition)
}

func TestChessRulesLegalDestinations(t *testing.T) {
	rules := NewChessRules()

	dests, err := rules.LegalDestinations(StartPosition, "e2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e3", "e4"}, dests)

	dests, err = rules.LegalDestinations(StartPosition, "g1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f3", "h3"}, dests)

	dests, err = rules.LegalDestinations(StartPosition, "e7")
	require.NoError(t, err)
	assert.Empty(t, dests, "black cannot move while white is to move")

	dests, err = rules.LegalDestinations(promotionPending, "a7")
	require.NoError(t, err)
	assert.Equal(t, []string{"a8"}, dests)
}

func TestChessRulesApply(t *testing.T) {
	rules := NewChessRules()

	applied, err := rules.Apply(StartPosition, Move{From: "e2", To: "e4"})
	require.NoError(t, err)
	assert.Nil(t, applied.Captured)
	side, err := SideToMove(applied.Position)
	require.NoError(t, err)
	assert.Equal(t, Second, side)
	p, ok, err := rules.PieceAt(applied.Position, "e4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Piece{Kind: "p", Side: First}, p)

	_, err = rules.Apply(StartPosition, Move{From: "e2", To: "e5"})
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestChessRulesApplyReportsCapture(t *testing.T) {
	rules := NewChessRules()

	applied, err := rules.Apply(scandinavian, Move{From: "e4", To: "d5"})
	require.NoError(t, err)
	require.NotNil(t, applied.Captured)
	assert.Equal(t, Piece{Kind: "p", Side: Second}, *applied.Captured)
}

func TestChessRulesApplyAutoQueens(t *testing.T) {
	rules := NewChessRules()

	applied, err := rules.Apply(promotionPending, Move{From: "a7", To: "a8"})
	require.NoError(t, err)
	assert.Equal(t, "q", applied.Move.Promotion)
	p, ok, err := rules.PieceAt(applied.Position, "a8")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Piece{Kind: "q", Side: First}, p)

	applied, err = rules.Apply(promotionPending, Move{From: "a7", To: "a8", Promotion: "n"})
	require.NoError(t, err)
	assert.Equal(t, "n", applied.Move.Promotion)
}

func TestChessRulesEvaluate(t *testing.T) {
	rules := NewChessRules()

	testCases := []struct {
		name     string
		history  []string
		expected *Result
	}{
		{name: "start", history: []string{StartPosition}, expected: nil},
		{name: "fools mate", history: []string{foolsMate}, expected: &Result{Winner: Second, Kind: Checkmate}},
		{name: "stalemate", history: []string{stalemate}, expected: &Result{Winner: NoSide, Kind: Stalemate}},
		{name: "bare kings", history: []string{bareKings}, expected: &Result{Winner: NoSide, Kind: InsufficientMaterial}},
		{
			name:     "fifty move rule",
			history:  []string{"4k3/8/8/8/8/8/8/R3K3 w - - 100 80"},
			expected: &Result{Winner: NoSide, Kind: Draw},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := rules.Evaluate(tc.history)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, Classify(st))
		})
	}
}

func TestChessRulesEvaluateThreefold(t *testing.T) {
	rules := NewChessRules()

	pos := StartPosition
	history := []string{pos}
	shuffle := []Move{
		{From: "g1", To: "f3"}, {From: "g8", To: "f6"}, {From: "f3", To: "g1"}, {From: "f6", To: "g8"},
		{From: "g1", To: "f3"}, {From: "g8", To: "f6"}, {From: "f3", To: "g1"}, {From: "f6", To: "g8"},
	}
	for _, mv := range shuffle {
		applied, err := rules.Apply(pos, mv)
		require.NoError(t, err)
		pos = applied.Position
		history = append(history, pos)
	}

	st, err := rules.Evaluate(history)
	require.NoError(t, err)
	assert.Equal(t, &Result{Winner: NoSide, Kind: ThreefoldRepetition}, Classify(st))

	_, err = rules.Evaluate(nil)
	assert.ErrorIs(t, err, ErrBadPosition)
}
