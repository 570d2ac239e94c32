package api

import (
	"errors"
	"fmt"

	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/metrics"
	"github.com/cameroncuttingedge/chess_relay/registry"
	"github.com/cameroncuttingedge/chess_relay/relay"
	"github.com/rs/zerolog/log"
)

// Broker turns inbound frames into registry and relay calls and reports
// failures back to the sender. It implements websocket.Dispatcher.
type Broker struct {
	registry *registry.Registry
	relay    *relay.Relay
	notifier registry.Notifier
}

func NewBroker(reg *registry.Registry, rl *relay.Relay, notifier registry.Notifier) *Broker {
	return &Broker{
		registry: reg,
		relay:    rl,
		notifier: notifier,
	}
}

func (b *Broker) OnConnect(connID string) {
	log.Debug().Str("connID", connID).Msg("Participant connected")
}

func (b *Broker) OnMessage(connID string, msg events.Message) {
	switch m := msg.(type) {
	case events.CreateSession:
		b.createSession(connID)
	case events.JoinSession:
		b.joinSession(connID, m.SessionID)
	case events.SubmitMove:
		b.submitMove(connID, m)
	case events.GameConcluded:
		b.concludeGame(connID, m)
	default:
		log.Warn().Str("connID", connID).Str("type", string(msg.Type())).Msg("Unexpected message from client")
		b.reply(connID, events.Error{Reason: fmt.Sprintf("unexpected message %s", msg.Type())})
	}
}

func (b *Broker) OnDisconnect(connID string) {
	b.registry.OnDisconnect(connID)
}

func (b *Broker) createSession(connID string) {
	log.Info().Str("connID", connID).Msg("Attempting to create new session")

	sessionID, err := b.registry.CreateSession(connID)
	if err != nil {
		log.Warn().Err(err).Str("connID", connID).Msg("Failed to create session")
		b.reply(connID, events.Error{Reason: err.Error()})
		return
	}
	b.reply(connID, events.SessionCreated{SessionID: sessionID})
}

func (b *Broker) joinSession(connID, sessionID string) {
	_, err := b.registry.JoinSession(sessionID, connID)
	switch {
	case err == nil:
		// the registry has already told both sides
	case errors.Is(err, registry.ErrNotFound):
		metrics.JoinFailures.WithLabelValues("not_found").Inc()
		b.reply(connID, events.SessionNotFound{})
	case errors.Is(err, registry.ErrFull):
		metrics.JoinFailures.WithLabelValues("full").Inc()
		b.reply(connID, events.SessionFull{})
	default:
		metrics.JoinFailures.WithLabelValues("other").Inc()
		b.reply(connID, events.Error{Reason: err.Error()})
	}
	if err != nil {
		log.Info().Err(err).Str("connID", connID).Str("sessionID", sessionID).Msg("Join rejected")
	}
}

func (b *Broker) submitMove(connID string, m events.SubmitMove) {
	binding, ok := b.registry.Lookup(connID)
	if !ok {
		b.reply(connID, events.MoveRejected{Reason: events.RejectNotFound})
		return
	}
	if err := b.relay.SubmitMove(binding.SessionID, binding.Side, m.MovePayload); err != nil {
		b.reply(connID, events.MoveRejected{Reason: relay.RejectReason(err)})
	}
}

func (b *Broker) concludeGame(connID string, m events.GameConcluded) {
	binding, ok := b.registry.Lookup(connID)
	if !ok {
		// the counterpart's verdict already ended the session
		log.Debug().Str("connID", connID).Msg("Ignoring verdict for a finished session")
		return
	}
	err := b.relay.Conclude(binding.SessionID, binding.Side, m.Result)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNotFound):
		log.Debug().Str("sessionID", binding.SessionID).Msg("Ignoring duplicate verdict")
	default:
		log.Warn().Err(err).Str("sessionID", binding.SessionID).Msg("Verdict rejected")
		b.reply(connID, events.MoveRejected{Reason: relay.RejectReason(err)})
	}
}

func (b *Broker) reply(connID string, msg events.Message) {
	if err := b.notifier.Send(connID, msg); err != nil {
		log.Debug().Err(err).Str("connID", connID).Str("type", string(msg.Type())).Msg("Reply not delivered")
	}
}
