package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/pose"
)

// DefaultGracePeriod is how long an inaccurate session may sit in
// PendingReview before a retake is proposed automatically.
const DefaultGracePeriod = 15 * time.Minute

// DefaultMaxRetakes caps how many times one capture chain may be retaken
// before the failure is terminal.
const DefaultMaxRetakes = 3

// Session is one capture attempt: its frames' per-view measurement sets,
// the reconciled result, and the verification state. All access goes
// through the Manager, which serializes transitions per session.
type Session struct {
	ID          uuid.UUID
	UserID      string
	Reference   measure.Reference
	RetakeOf    uuid.UUID
	RetakeCount int

	State       State
	StateReason Reason
	CreatedAt   time.Time
	UpdatedAt   time.Time

	PerView    map[pose.View]*measure.Set
	Reconciled *measure.Set

	graceTimer Timer
	// retakeStarted latches once a new session continues this one, so
	// concurrent retakes cannot fork the capture chain.
	retakeStarted bool
	mu            sync.Mutex
}

// Snapshot is a copy-safe view of a session for handlers and the CLI.
type Snapshot struct {
	ID          uuid.UUID                  `json:"id"`
	UserID      string                     `json:"user_id"`
	State       State                      `json:"state"`
	StateReason Reason                     `json:"state_reason,omitempty"`
	RetakeOf    uuid.UUID                  `json:"retake_of,omitempty"`
	RetakeCount int                        `json:"retake_count"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	Views       []pose.View                `json:"views"`
	PerView     map[pose.View]*measure.Set `json:"per_view,omitempty"`
	Reconciled  *measure.Set               `json:"reconciled,omitempty"`
}

// Manager holds active capture sessions and enforces the verification
// state machine. Different sessions are fully independent; transitions
// within one session are serialized by its mutex.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	clock       Clock
	gracePeriod time.Duration
	maxRetakes  int
	events      broadcaster
}

// NewManager creates a session manager. Zero values select the defaults;
// pass a fake Clock in tests to drive grace timers deterministically.
func NewManager(clock Clock, gracePeriod time.Duration, maxRetakes int) *Manager {
	if clock == nil {
		clock = RealClock()
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if maxRetakes <= 0 {
		maxRetakes = DefaultMaxRetakes
	}
	return &Manager{
		sessions:    make(map[uuid.UUID]*Session),
		clock:       clock,
		gracePeriod: gracePeriod,
		maxRetakes:  maxRetakes,
	}
}

// Subscribe registers a listener for transition events across all
// sessions. The caller must Unsubscribe the returned channel.
func (m *Manager) Subscribe() chan Event {
	return m.events.AddListener()
}

// Unsubscribe removes and closes an event listener.
func (m *Manager) Unsubscribe(ch chan Event) {
	m.events.RemoveListener(ch)
}

// Start opens a new capture session. When retakeOf references a session
// in Retaking, the new session continues that capture chain and the
// retake counter is enforced against the configured maximum.
func (m *Manager) Start(userID string, ref measure.Reference, retakeOf uuid.UUID) (*Session, error) {
	retakeCount := 0
	if retakeOf != uuid.Nil {
		prior, err := m.get(retakeOf)
		if err != nil {
			return nil, fmt.Errorf("retake_of: %w", err)
		}

		// Check and latch under the prior session's lock, so concurrent
		// retakes of the same session cannot both pass and fork the chain.
		prior.mu.Lock()
		err = func() error {
			if prior.UserID != userID {
				return fmt.Errorf("retake_of: session belongs to a different user")
			}
			if prior.State != StateRetaking {
				return fmt.Errorf("%w: can only retake a session in %s, not %s", ErrInvalidTransition, StateRetaking, prior.State)
			}
			if prior.retakeStarted {
				return fmt.Errorf("%w: session %s already has a retake in progress", ErrInvalidTransition, retakeOf)
			}
			if prior.RetakeCount+1 > m.maxRetakes {
				return fmt.Errorf("%w: %d retakes", ErrRetakeLimit, prior.RetakeCount+1)
			}
			prior.retakeStarted = true
			retakeCount = prior.RetakeCount + 1
			return nil
		}()
		prior.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	now := m.clock.Now().UTC()
	s := &Session{
		ID:          uuid.New(),
		UserID:      userID,
		Reference:   ref,
		RetakeOf:    retakeOf,
		RetakeCount: retakeCount,
		State:       StateCaptured,
		CreatedAt:   now,
		UpdatedAt:   now,
		PerView:     make(map[pose.View]*measure.Set),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Snapshot returns a copy-safe view of a session.
func (m *Manager) Snapshot(id uuid.UUID) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.ID,
		UserID:      s.UserID,
		State:       s.State,
		StateReason: s.StateReason,
		RetakeOf:    s.RetakeOf,
		RetakeCount: s.RetakeCount,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		PerView:     make(map[pose.View]*measure.Set, len(s.PerView)),
	}
	for view, set := range s.PerView {
		snap.Views = append(snap.Views, view)
		snap.PerView[view] = set.Clone()
	}
	if s.Reconciled != nil {
		snap.Reconciled = s.Reconciled.Clone()
	}
	return snap, nil
}

// Reference returns the calibration reference the session was opened
// with, along with its owner.
func (m *Manager) Reference(id uuid.UUID) (string, measure.Reference, error) {
	s, err := m.get(id)
	if err != nil {
		return "", measure.Reference{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UserID, s.Reference, nil
}

// AddViewSet records a per-view measurement set on a session still in
// Captured. Each view may contribute at most once per session.
func (m *Manager) AddViewSet(id uuid.UUID, set *measure.Set) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateAccepted {
		return ErrSessionImmutable
	}
	if s.State != StateCaptured {
		return fmt.Errorf("%w: cannot add frames in state %s", ErrInvalidTransition, s.State)
	}
	if _, dup := s.PerView[set.View]; dup {
		return fmt.Errorf("%w: %s", ErrViewAlreadyCaptured, set.View)
	}

	s.PerView[set.View] = set
	s.UpdatedAt = m.clock.Now().UTC()
	return nil
}

// ViewSets returns the per-view sets captured so far.
func (m *Manager) ViewSets(id uuid.UUID) ([]*measure.Set, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*measure.Set, 0, len(s.PerView))
	for _, view := range []pose.View{pose.ViewFront, pose.ViewSide} {
		if set, ok := s.PerView[view]; ok {
			out = append(out, set)
		}
	}
	return out, nil
}

// SetReconciled attaches the aggregation result and moves the session
// from Captured to PendingReview. An inaccurate result arms the grace
// timer that proposes a retake if the user does not act.
func (m *Manager) SetReconciled(id uuid.UUID, reconciled *measure.Set) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateAccepted {
		return ErrSessionImmutable
	}
	if s.State != StateCaptured {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, StatePendingReview)
	}

	s.Reconciled = reconciled
	m.transitionLocked(s, StatePendingReview, ReasonAggregated)

	if !reconciled.IsAccurate {
		sessionID := s.ID
		s.graceTimer = m.clock.AfterFunc(m.gracePeriod, func() {
			m.expireGrace(sessionID)
		})
	}
	return nil
}

// Accept confirms the reconciled measurements. The commit hook runs
// with the verified set before the transition; if it fails, the session
// stays in PendingReview so acceptance can be retried. On success the
// session becomes terminal and its data immutable. The returned set
// carries verified_by_user and is what the commit hook persisted.
func (m *Manager) Accept(id uuid.UUID, commit func(*measure.Set) error) (*measure.Set, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateAccepted {
		return nil, ErrSessionImmutable
	}
	if s.State != StatePendingReview {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, StateAccepted)
	}

	verified := s.Reconciled.Clone()
	verified.VerifiedByUser = true
	if commit != nil {
		if err := commit(verified); err != nil {
			return nil, err
		}
	}

	s.stopGraceTimerLocked()
	s.Reconciled.VerifiedByUser = true
	m.transitionLocked(s, StateAccepted, ReasonUserConfirmed)
	return verified, nil
}

// Reject moves a session under review to Retaking. The reconciled data
// stays on the session until the chain is abandoned or retaken.
func (m *Manager) Reject(id uuid.UUID) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateAccepted {
		return ErrSessionImmutable
	}
	if s.State != StatePendingReview {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, StateRetaking)
	}

	s.stopGraceTimerLocked()
	m.transitionLocked(s, StateRetaking, ReasonUserRejected)
	return nil
}

// Abandon terminates a Retaking session without a new capture.
func (m *Manager) Abandon(id uuid.UUID) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateAccepted {
		return ErrSessionImmutable
	}
	if s.State != StateRetaking {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, StateAbandoned)
	}

	m.transitionLocked(s, StateAbandoned, ReasonUserAbandoned)
	return nil
}

// expireGrace fires when the grace timer elapses: the session moves to
// Retaking as a proposal. The reconciled data is retained so nothing is
// silently discarded; only an explicit Abandon ends the chain.
func (m *Manager) expireGrace(id uuid.UUID) {
	s, err := m.get(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StatePendingReview {
		// The user acted before the timer was stopped.
		return
	}
	s.graceTimer = nil
	m.transitionLocked(s, StateRetaking, ReasonGracePeriodExpired)
}

// transitionLocked records a transition and broadcasts it. The caller
// holds the session mutex.
func (m *Manager) transitionLocked(s *Session, to State, reason Reason) {
	from := s.State
	s.State = to
	s.StateReason = reason
	s.UpdatedAt = m.clock.Now().UTC()
	m.events.send(Event{
		SessionID: s.ID,
		From:      from,
		To:        to,
		Reason:    reason,
		At:        s.UpdatedAt,
	})
}

func (s *Session) stopGraceTimerLocked() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}
