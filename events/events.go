package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cameroncuttingedge/chess_relay/game"
)

// Type tags a frame on the wire.
type Type string

const (
	TypeCreateSession    Type = "create_session"
	TypeSessionCreated   Type = "session_created"
	TypeJoinSession      Type = "join_session"
	TypeSideAssigned     Type = "side_assigned"
	TypeSessionActive    Type = "session_active"
	TypeSessionFull      Type = "session_full"
	TypeSessionNotFound  Type = "session_not_found"
	TypeSubmitMove       Type = "submit_move"
	TypeMoveRelayed      Type = "move_relayed"
	TypeGameConcluded    Type = "game_concluded"
	TypePeerDisconnected Type = "peer_disconnected"
	TypeMoveRejected     Type = "move_rejected"
	TypeSessionExpired   Type = "session_expired"
	TypeError            Type = "error"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope is the frame exchanged over the duplex channel.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is implemented by exactly the variants declared in this package.
type Message interface {
	Type() Type
	validate() error
}

type CreateSession struct{}

type SessionCreated struct {
	SessionID string `json:"sessionId"`
}

type JoinSession struct {
	SessionID string `json:"sessionId"`
}

type SideAssigned struct {
	Side game.Side `json:"side"`
}

type SessionActive struct{}

type SessionFull struct{}

type SessionNotFound struct{}

// MovePayload is shared by submit_move and move_relayed.
type MovePayload struct {
	Move              game.Move   `json:"move"`
	ResultingPosition string      `json:"resultingPosition"`
	CapturedUnit      *game.Piece `json:"capturedUnit,omitempty"`
}

type SubmitMove struct {
	MovePayload
}

type MoveRelayed struct {
	MovePayload
}

type GameConcluded struct {
	game.Result
}

type PeerDisconnected struct{}

type RejectReason string

const (
	RejectOutOfTurn       RejectReason = "out_of_turn"
	RejectIllegalAction   RejectReason = "illegal_action"
	RejectInvalidPosition RejectReason = "invalid_position"
	RejectNotFound        RejectReason = "not_found"
)

type MoveRejected struct {
	Reason RejectReason `json:"reason"`
}

type SessionExpired struct{}

type Error struct {
	Reason string `json:"reason"`
}

func (CreateSession) Type() Type    { return TypeCreateSession }
func (SessionCreated) Type() Type   { return TypeSessionCreated }
func (JoinSession) Type() Type      { return TypeJoinSession }
func (SideAssigned) Type() Type     { return TypeSideAssigned }
func (SessionActive) Type() Type    { return TypeSessionActive }
func (SessionFull) Type() Type      { return TypeSessionFull }
func (SessionNotFound) Type() Type  { return TypeSessionNotFound }
func (SubmitMove) Type() Type       { return TypeSubmitMove }
func (MoveRelayed) Type() Type      { return TypeMoveRelayed }
func (GameConcluded) Type() Type    { return TypeGameConcluded }
func (PeerDisconnected) Type() Type { return TypePeerDisconnected }
func (MoveRejected) Type() Type     { return TypeMoveRejected }
func (SessionExpired) Type() Type   { return TypeSessionExpired }
func (Error) Type() Type            { return TypeError }

func (CreateSession) validate() error    { return nil }
func (SessionActive) validate() error    { return nil }
func (SessionFull) validate() error      { return nil }
func (SessionNotFound) validate() error  { return nil }
func (PeerDisconnected) validate() error { return nil }
func (SessionExpired) validate() error   { return nil }
func (Error) validate() error            { return nil }

func (m SessionCreated) validate() error {
	if m.SessionID == "" {
		return errors.New("missing sessionId")
	}
	return nil
}

func (m JoinSession) validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return errors.New("missing sessionId")
	}
	return nil
}

func (m SideAssigned) validate() error {
	if !m.Side.Valid() {
		return fmt.Errorf("invalid side %q", m.Side)
	}
	return nil
}

func (m MovePayload) validate() error {
	if err := m.Move.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.ResultingPosition) == "" {
		return errors.New("missing resultingPosition")
	}
	if m.CapturedUnit != nil {
		if err := m.CapturedUnit.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m GameConcluded) validate() error {
	return m.Result.Validate()
}

func (m MoveRejected) validate() error {
	switch m.Reason {
	case RejectOutOfTurn, RejectIllegalAction, RejectInvalidPosition, RejectNotFound:
		return nil
	}
	return fmt.Errorf("unknown reject reason %q", m.Reason)
}

var decoders = map[Type]func() Message{
	TypeCreateSession:    func() Message { return &CreateSession{} },
	TypeSessionCreated:   func() Message { return &SessionCreated{} },
	TypeJoinSession:      func() Message { return &JoinSession{} },
	TypeSideAssigned:     func() Message { return &SideAssigned{} },
	TypeSessionActive:    func() Message { return &SessionActive{} },
	TypeSessionFull:      func() Message { return &SessionFull{} },
	TypeSessionNotFound:  func() Message { return &SessionNotFound{} },
	TypeSubmitMove:       func() Message { return &SubmitMove{} },
	TypeMoveRelayed:      func() Message { return &MoveRelayed{} },
	TypeGameConcluded:    func() Message { return &GameConcluded{} },
	TypePeerDisconnected: func() Message { return &PeerDisconnected{} },
	TypeMoveRejected:     func() Message { return &MoveRejected{} },
	TypeSessionExpired:   func() Message { return &SessionExpired{} },
	TypeError:            func() Message { return &Error{} },
}

// Encode wraps m in an envelope.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	env := Envelope{Type: m.Type()}
	if string(payload) != "{}" {
		env.Payload = payload
	}
	return json.Marshal(env)
}

// Decode parses and validates a frame. The returned Message is a value, not
// a pointer, so callers can type-switch on the variants directly.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	newMsg, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	ptr := newMsg()
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
	}
	msg := deref(ptr)
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return msg, nil
}

func deref(m Message) Message {
	switch v := m.(type) {
	case *CreateSession:
		return *v
	case *SessionCreated:
		return *v
	case *JoinSession:
		return *v
	case *SideAssigned:
		return *v
	case *SessionActive:
		return *v
	case *SessionFull:
		return *v
	case *SessionNotFound:
		return *v
	case *SubmitMove:
		return *v
	case *MoveRelayed:
		return *v
	case *GameConcluded:
		return *v
	case *PeerDisconnected:
		return *v
	case *MoveRejected:
		return *v
	case *SessionExpired:
		return *v
	case *Error:
		return *v
	}
	return m
}
