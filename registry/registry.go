package registry

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/game"
	"github.com/cameroncuttingedge/chess_relay/metrics"
	"github.com/cameroncuttingedge/chess_relay/utils"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrFull         = errors.New("session full")
	ErrAlreadyBound = errors.New("connection already bound to a session")
	ErrExhausted    = errors.New("could not allocate a free session id")
	ErrNotActive    = errors.New("session is not active")
)

// Reason explains why a session ended.
type Reason string

const (
	OpponentDisconnected Reason = "opponent_disconnected"
	GameConcluded        Reason = "game_concluded"
	Expired              Reason = "expired"
)

const (
	defaultShards     = 32
	maxCreateAttempts = 16
)

// Notifier delivers a message to a single connection. Send must not block;
// delivery is at most once.
type Notifier interface {
	Send(connID string, msg events.Message) error
}

// Binding locates the session a connection belongs to.
type Binding struct {
	SessionID string
	Side      game.Side
}

type Config struct {
	Shards     int
	GenerateID func() string
	Now        func() time.Time
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

type bindingShard struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// Registry is the table of live sessions. Sessions and bindings are spread
// over independently locked shards and every session has its own lock, so
// unrelated games never wait on each other. Lock order is session, then
// session shard, then binding shard.
type Registry struct {
	notifier   Notifier
	sessions   []*sessionShard
	bindings   []*bindingShard
	generateID func() string
	now        func() time.Time
}

func New(notifier Notifier, cfg Config) *Registry {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.GenerateID == nil {
		cfg.GenerateID = utils.GenerateSessionCode
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Registry{
		notifier:   notifier,
		sessions:   make([]*sessionShard, cfg.Shards),
		bindings:   make([]*bindingShard, cfg.Shards),
		generateID: cfg.GenerateID,
		now:        cfg.Now,
	}
	for i := range r.sessions {
		r.sessions[i] = &sessionShard{sessions: make(map[string]*Session)}
		r.bindings[i] = &bindingShard{bindings: make(map[string]Binding)}
	}
	return r
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (r *Registry) sessionShard(id string) *sessionShard {
	return r.sessions[shardIndex(id, len(r.sessions))]
}

func (r *Registry) bindingShard(connID string) *bindingShard {
	return r.bindings[shardIndex(connID, len(r.bindings))]
}

func (r *Registry) get(id string) *Session {
	sh := r.sessionShard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sessions[id]
}

// CreateSession allocates a fresh id and binds connID as the first side.
func (r *Registry) CreateSession(connID string) (string, error) {
	if _, bound := r.Lookup(connID); bound {
		return "", ErrAlreadyBound
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := utils.NormalizeSessionCode(r.generateID())
		s := &Session{
			id:           id,
			participants: map[game.Side]string{game.First: connID},
			state:        AwaitingSecond,
			position:     game.StartPosition,
			createdAt:    r.now(),
		}

		s.mu.Lock()
		sh := r.sessionShard(id)
		sh.mu.Lock()
		if _, taken := sh.sessions[id]; taken {
			sh.mu.Unlock()
			s.mu.Unlock()
			log.Debug().Str("sessionID", id).Msg("Session id collision, retrying")
			continue
		}
		sh.sessions[id] = s
		sh.mu.Unlock()
		r.bind(connID, Binding{SessionID: id, Side: game.First})
		s.mu.Unlock()

		metrics.SessionsCreated.Inc()
		metrics.ActiveSessions.Inc()
		log.Info().Str("sessionID", id).Str("connID", connID).Msg("Session created")
		return id, nil
	}
	return "", ErrExhausted
}

// JoinSession binds connID as the second side and activates the session.
func (r *Registry) JoinSession(sessionID, connID string) (game.Side, error) {
	id := utils.NormalizeSessionCode(sessionID)
	s := r.get(id)
	if s == nil {
		return game.NoSide, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Ended:
		return game.NoSide, ErrNotFound
	case Active:
		return game.NoSide, ErrFull
	}
	if _, bound := r.Lookup(connID); bound {
		return game.NoSide, ErrAlreadyBound
	}
	side, ok := game.SideForJoinOrder(len(s.participants))
	if !ok {
		return game.NoSide, ErrFull
	}

	s.participants[side] = connID
	s.state = Active
	r.bind(connID, Binding{SessionID: id, Side: side})

	r.notify(connID, events.SideAssigned{Side: side})
	for _, peer := range []game.Side{game.First, game.Second} {
		r.notify(s.participants[peer], events.SessionActive{})
	}

	metrics.SessionsJoined.Inc()
	log.Info().Str("sessionID", id).Str("connID", connID).Str("side", string(side)).Msg("Session active")
	return side, nil
}

// RecordMove overwrites the authoritative position. Legality is not checked.
func (r *Registry) RecordMove(sessionID, position string) error {
	return r.WithSession(sessionID, func(s *Session) error {
		s.SetPosition(position)
		return nil
	})
}

// WithSession runs fn while holding the session's lock.
func (r *Registry) WithSession(sessionID string, fn func(s *Session) error) error {
	s := r.get(utils.NormalizeSessionCode(sessionID))
	if s == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ended {
		return ErrNotFound
	}
	return fn(s)
}

// EndSession removes the session and notifies every bound connection.
func (r *Registry) EndSession(sessionID string, reason Reason) error {
	return r.end(utils.NormalizeSessionCode(sessionID), reason, "")
}

// Conclude records a terminal result and ends the session, which broadcasts
// the verdict to both sides. A second verdict for the same session finds
// nothing and returns ErrNotFound. A session still waiting for its second
// participant cannot be concluded.
func (r *Registry) Conclude(sessionID string, result game.Result) error {
	id := utils.NormalizeSessionCode(sessionID)
	s := r.get(id)
	if s == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ended {
		return ErrNotFound
	}
	if s.state != Active {
		return ErrNotActive
	}
	s.result = &result
	r.endLocked(s, GameConcluded, "")
	return nil
}

// OnDisconnect ends the session connID was bound to, if any.
func (r *Registry) OnDisconnect(connID string) {
	b, ok := r.Lookup(connID)
	if !ok {
		return
	}
	if err := r.end(b.SessionID, OpponentDisconnected, connID); err != nil {
		if errors.Is(err, ErrNotFound) {
			r.unbind(connID, b.SessionID)
			return
		}
		log.Error().Err(err).Str("connID", connID).Msg("Failed to end session on disconnect")
	}
}

func (r *Registry) end(id string, reason Reason, departed string) error {
	s := r.get(id)
	if s == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ended {
		return ErrNotFound
	}
	r.endLocked(s, reason, departed)
	return nil
}

// endLocked must be called with s.mu held.
func (r *Registry) endLocked(s *Session, reason Reason, departed string) {
	s.state = Ended

	sh := r.sessionShard(s.id)
	sh.mu.Lock()
	if sh.sessions[s.id] == s {
		delete(sh.sessions, s.id)
	}
	sh.mu.Unlock()

	msg, err := reasonMessage(reason, s.result)
	if err != nil {
		log.Error().Err(err).Str("sessionID", s.id).Msg("No notice for session end")
	}
	for _, side := range []game.Side{game.First, game.Second} {
		connID, ok := s.participants[side]
		if !ok {
			continue
		}
		r.unbind(connID, s.id)
		if connID == departed || msg == nil {
			continue
		}
		r.notify(connID, msg)
	}

	metrics.ActiveSessions.Dec()
	metrics.SessionsEnded.WithLabelValues(string(reason)).Inc()
	log.Info().Str("sessionID", s.id).Str("reason", string(reason)).Msg("Session ended")
}

func reasonMessage(reason Reason, result *game.Result) (events.Message, error) {
	switch reason {
	case OpponentDisconnected:
		return events.PeerDisconnected{}, nil
	case Expired:
		return events.SessionExpired{}, nil
	case GameConcluded:
		if result == nil {
			return nil, errors.New("concluded without a result")
		}
		return events.GameConcluded{Result: *result}, nil
	}
	return nil, fmt.Errorf("unknown reason %q", reason)
}

// ExpireAwaiting ends sessions still waiting for a second participant that
// were created before cutoff. It returns how many were ended.
func (r *Registry) ExpireAwaiting(cutoff time.Time) int {
	var candidates []*Session
	for _, sh := range r.sessions {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			candidates = append(candidates, s)
		}
		sh.mu.RUnlock()
	}

	expired := 0
	for _, s := range candidates {
		s.mu.Lock()
		if s.state == AwaitingSecond && s.createdAt.Before(cutoff) {
			r.endLocked(s, Expired, "")
			expired++
		}
		s.mu.Unlock()
	}
	return expired
}

// Lookup returns the binding for connID.
func (r *Registry) Lookup(connID string) (Binding, bool) {
	bs := r.bindingShard(connID)
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.bindings[connID]
	return b, ok
}

// Snapshot copies the public state of a session.
func (r *Registry) Snapshot(sessionID string) (Info, error) {
	var info Info
	err := r.WithSession(sessionID, func(s *Session) error {
		info = s.info()
		return nil
	})
	return info, err
}

// Len counts live sessions.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.sessions {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

func (r *Registry) bind(connID string, b Binding) {
	bs := r.bindingShard(connID)
	bs.mu.Lock()
	bs.bindings[connID] = b
	bs.mu.Unlock()
}

func (r *Registry) unbind(connID, sessionID string) {
	bs := r.bindingShard(connID)
	bs.mu.Lock()
	if b, ok := bs.bindings[connID]; ok && b.SessionID == sessionID {
		delete(bs.bindings, connID)
	}
	bs.mu.Unlock()
}

func (r *Registry) notify(connID string, msg events.Message) {
	if err := r.notifier.Send(connID, msg); err != nil {
		log.Debug().Err(err).Str("connID", connID).Str("type", string(msg.Type())).Msg("Notification not delivered")
	}
}
