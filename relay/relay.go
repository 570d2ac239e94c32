package relay

import (
	"errors"
	"fmt"

	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/game"
	"github.com/cameroncuttingedge/chess_relay/metrics"
	"github.com/cameroncuttingedge/chess_relay/registry"
	"github.com/rs/zerolog/log"
)

var (
	ErrOutOfTurn       = errors.New("out of turn")
	ErrIllegalAction   = errors.New("illegal action")
	ErrInvalidPosition = errors.New("invalid resulting position")
)

type Config struct {
	// ValidateMoves replays every move through the rules engine instead of
	// trusting the position claimed by the client.
	ValidateMoves bool
}

// Relay forwards accepted moves to the other side of a session and keeps the
// registry's position current. Delivery is fire-and-forget: every relayed
// move carries the full resulting position, so a lost one is repaired by the
// next.
type Relay struct {
	registry *registry.Registry
	notifier registry.Notifier
	rules    game.RulesEngine
	validate bool
}

func New(reg *registry.Registry, notifier registry.Notifier, rules game.RulesEngine, cfg Config) *Relay {
	if cfg.ValidateMoves && rules == nil {
		rules = game.NewChessRules()
	}
	return &Relay{
		registry: reg,
		notifier: notifier,
		rules:    rules,
		validate: cfg.ValidateMoves,
	}
}

// SubmitMove accepts a move from acting if it is that side's turn, records the
// resulting position and forwards the move to the opponent.
func (r *Relay) SubmitMove(sessionID string, acting game.Side, mv events.MovePayload) error {
	err := r.registry.WithSession(sessionID, func(s *registry.Session) error {
		if s.State() != registry.Active {
			return ErrOutOfTurn
		}
		toMove, err := game.SideToMove(s.Position())
		if err != nil {
			return fmt.Errorf("%w: stored position: %v", ErrInvalidPosition, err)
		}
		if toMove != acting {
			return ErrOutOfTurn
		}

		payload := mv
		if r.validate {
			applied, err := r.rules.Apply(s.Position(), mv.Move)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrIllegalAction, err)
			}
			payload.Move = applied.Move
			payload.ResultingPosition = applied.Position
			payload.CapturedUnit = applied.Captured
		}

		next, err := game.SideToMove(payload.ResultingPosition)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
		}
		if next != acting.Opponent() {
			return fmt.Errorf("%w: %s would move again", ErrInvalidPosition, next)
		}

		s.SetPosition(payload.ResultingPosition)
		if peer, ok := s.Participant(acting.Opponent()); ok {
			if err := r.notifier.Send(peer, events.MoveRelayed{MovePayload: payload}); err != nil {
				log.Warn().Err(err).Str("sessionID", s.ID()).Msg("Relayed move not delivered")
			}
		}
		return nil
	})

	if err != nil {
		metrics.MovesRejected.WithLabelValues(string(RejectReason(err))).Inc()
		log.Info().Err(err).Str("sessionID", sessionID).Str("side", string(acting)).Str("move", mv.Move.String()).Msg("Move rejected")
		return err
	}
	metrics.MovesRelayed.Inc()
	log.Info().Str("sessionID", sessionID).Str("side", string(acting)).Str("move", mv.Move.String()).Msg("Move relayed")
	return nil
}

// Conclude records a terminal verdict reported by one side and broadcasts it
// to the whole session, sender included. Duplicates return
// registry.ErrNotFound and change nothing.
func (r *Relay) Conclude(sessionID string, acting game.Side, result game.Result) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalAction, err)
	}
	if r.validate {
		verified, err := r.verifyResult(sessionID, result)
		if err != nil {
			return err
		}
		result = verified
	}
	if err := r.registry.Conclude(sessionID, result); err != nil {
		return err
	}
	log.Info().Str("sessionID", sessionID).Str("reportedBy", string(acting)).Str("result", result.String()).Msg("Game concluded")
	return nil
}

func (r *Relay) verifyResult(sessionID string, claimed game.Result) (game.Result, error) {
	var position string
	if err := r.registry.WithSession(sessionID, func(s *registry.Session) error {
		position = s.Position()
		return nil
	}); err != nil {
		return game.Result{}, err
	}

	st, err := r.rules.Evaluate([]string{position})
	if err != nil {
		return game.Result{}, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	if verdict := game.Classify(st); verdict != nil {
		return *verdict, nil
	}
	// repetition needs the move history, which the relay does not keep
	if claimed.Kind == game.ThreefoldRepetition {
		return claimed, nil
	}
	return game.Result{}, fmt.Errorf("%w: position is not terminal", ErrIllegalAction)
}

// RejectReason maps a relay error to its wire reason. A concluded session is
// removed at once, so moves sent after a verdict surface as not_found.
func RejectReason(err error) events.RejectReason {
	switch {
	case errors.Is(err, registry.ErrNotActive):
		return events.RejectOutOfTurn
	case errors.Is(err, ErrIllegalAction):
		return events.RejectIllegalAction
	case errors.Is(err, ErrInvalidPosition):
		return events.RejectInvalidPosition
	case errors.Is(err, registry.ErrNotFound):
		return events.RejectNotFound
	}
	return events.RejectOutOfTurn
}
