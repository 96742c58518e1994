package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
)

// ErrAlreadyAttached is returned when a second process handle is attached to a session
var ErrAlreadyAttached = errors.New("session already has a language server attached")

// SessionID is a value object representing a unique session identifier
type SessionID struct {
	value string
}

// NewSessionID creates a SessionID from an existing UUID string
func NewSessionID(value string) (SessionID, error) {
	if value == "" {
		return SessionID{}, fmt.Errorf("session ID cannot be empty")
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return SessionID{}, fmt.Errorf("invalid session ID %q: %w", value, err)
	}
	return SessionID{value: parsed.String()}, nil
}

// GenerateSessionID creates a new unique SessionID
func GenerateSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}

// Value returns the string value of the SessionID
func (s SessionID) Value() string {
	return s.value
}

// String implements the Stringer interface
func (s SessionID) String() string {
	return s.value
}

// SessionState represents the state of one activation
type SessionState string

const (
	SessionStateCreated     SessionState = "created"
	SessionStateActive      SessionState = "active"
	SessionStateDeactivated SessionState = "deactivated"
)

// DomainEvent represents a domain event that occurred in the session
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
	SessionID() SessionID
}

// ServerAttachedEvent is emitted when the session takes ownership of a server
type ServerAttachedEvent struct {
	sessionID  SessionID
	binary     domain.BinaryDescriptor
	occurredAt time.Time
}

func (e ServerAttachedEvent) EventName() string { return "server_attached" }

func (e ServerAttachedEvent) OccurredAt() time.Time { return e.occurredAt }

func (e ServerAttachedEvent) SessionID() SessionID { return e.sessionID }

func (e ServerAttachedEvent) Binary() domain.BinaryDescriptor { return e.binary }

// SessionDeactivatedEvent is emitted when a session is torn down
type SessionDeactivatedEvent struct {
	sessionID       SessionID
	finalState      domain.LifecycleState
	sessionDuration time.Duration
	occurredAt      time.Time
}

func (e SessionDeactivatedEvent) EventName() string { return "session_deactivated" }

func (e SessionDeactivatedEvent) OccurredAt() time.Time { return e.occurredAt }

func (e SessionDeactivatedEvent) SessionID() SessionID { return e.sessionID }

// FinalState is the supervisor state after the stop
func (e SessionDeactivatedEvent) FinalState() domain.LifecycleState { return e.finalState }

func (e SessionDeactivatedEvent) SessionDuration() time.Duration { return e.sessionDuration }

// ClientSession aggregates one activation: the resolved binary, the single
// supervised process handle, the document bridge and the log sink.
type ClientSession struct {
	mu           sync.RWMutex
	id           SessionID
	state        SessionState
	sink         ports.OutputSink
	binary       domain.BinaryDescriptor
	supervisor   ports.Supervisor
	bridge       ports.DocumentBridge
	startTime    time.Time
	endTime      *time.Time
	domainEvents []DomainEvent
}

// NewClientSession creates an empty session writing to sink
func NewClientSession(sink ports.OutputSink) *ClientSession {
	return NewClientSessionWithID(GenerateSessionID(), sink)
}

// NewClientSessionWithID creates a session with a specific ID
func NewClientSessionWithID(id SessionID, sink ports.OutputSink) *ClientSession {
	return &ClientSession{
		id:           id,
		state:        SessionStateCreated,
		sink:         sink,
		startTime:    time.Now(),
		domainEvents: make([]DomainEvent, 0),
	}
}

// ID returns the session ID
func (s *ClientSession) ID() SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State returns the session state
func (s *ClientSession) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Sink returns the session's output sink
func (s *ClientSession) Sink() ports.OutputSink {
	return s.sink
}

// Binary returns the attached binary, if any
func (s *ClientSession) Binary() domain.BinaryDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.binary
}

// Supervisor returns the attached supervisor or nil
func (s *ClientSession) Supervisor() ports.Supervisor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.supervisor
}

// Bridge returns the attached document bridge or nil
func (s *ClientSession) Bridge() ports.DocumentBridge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bridge
}

// ServerState returns the supervisor state, Stopped when none is attached
func (s *ClientSession) ServerState() domain.LifecycleState {
	sup := s.Supervisor()
	if sup == nil {
		return domain.StateStopped
	}
	return sup.State()
}

// Duration returns how long the session has been (or was) alive
func (s *ClientSession) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endTime != nil {
		return s.endTime.Sub(s.startTime)
	}
	return time.Since(s.startTime)
}

// Attach hands the session its one process handle. A session never
// replaces a handle; a new activation needs a new session.
func (s *ClientSession) Attach(binary domain.BinaryDescriptor, supervisor ports.Supervisor, bridge ports.DocumentBridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionStateDeactivated {
		return fmt.Errorf("cannot attach to deactivated session %s", s.id)
	}
	if s.supervisor != nil {
		return ErrAlreadyAttached
	}

	s.binary = binary
	s.supervisor = supervisor
	s.bridge = bridge
	s.state = SessionStateActive
	s.domainEvents = append(s.domainEvents, ServerAttachedEvent{
		sessionID:  s.id,
		binary:     binary,
		occurredAt: time.Now(),
	})
	return nil
}

// Deactivate stops the attached supervisor, if any. It never fails and is
// safe to call more than once.
func (s *ClientSession) Deactivate(ctx context.Context) {
	s.mu.Lock()
	if s.state == SessionStateDeactivated {
		s.mu.Unlock()
		return
	}
	s.state = SessionStateDeactivated
	sup := s.supervisor
	s.mu.Unlock()

	finalState := domain.StateStopped
	if sup != nil {
		sup.Stop(ctx)
		finalState = sup.State()
	}

	now := time.Now()
	s.mu.Lock()
	s.endTime = &now
	s.domainEvents = append(s.domainEvents, SessionDeactivatedEvent{
		sessionID:       s.id,
		finalState:      finalState,
		sessionDuration: now.Sub(s.startTime),
		occurredAt:      now,
	})
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Appendf("Session %s deactivated", s.id)
	}
}

// GetDomainEvents returns and clears the accumulated domain events
func (s *ClientSession) GetDomainEvents() []DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.domainEvents
	s.domainEvents = make([]DomainEvent, 0)
	return events
}
