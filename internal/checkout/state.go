package checkout

import (
	"log/slog"
	"sync"
)

// Status is the canonical payment state of a checkout session.
type Status string

const (
	StatusIdle         Status = "IDLE"
	StatusInitializing Status = "INITIALIZING"
	StatusProcessing   Status = "PROCESSING"
	StatusVerifying    Status = "VERIFYING"
	StatusSuccess      Status = "SUCCESS"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
	StatusTimeout      Status = "TIMEOUT"
)

// allowedTransitions is the only source of truth for legal state changes.
// FAILED, TIMEOUT and CANCELLED may re-enter INITIALIZING, which gates the
// user-initiated retry path; SUCCESS has no outgoing edges.
var allowedTransitions = map[Status]map[Status]bool{
	StatusIdle:         {StatusInitializing: true},
	StatusInitializing: {StatusProcessing: true, StatusFailed: true},
	StatusProcessing:   {StatusVerifying: true, StatusSuccess: true, StatusFailed: true, StatusCancelled: true},
	StatusVerifying:    {StatusSuccess: true, StatusFailed: true, StatusTimeout: true},
	StatusFailed:       {StatusInitializing: true},
	StatusTimeout:      {StatusInitializing: true},
	StatusCancelled:    {StatusInitializing: true},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Terminal reports whether the status ends a session's foreground lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Tracker holds the mutable payment state of one session. It is the single
// shared resource touched by the verification loop, the event bridge and the
// background reconciler; every mutation goes through its mutex, and the
// finalized latch is checked before any state is applied.
type Tracker struct {
	mu                     sync.Mutex
	sessionID              string
	status                 Status
	retryCount             int
	verificationAttempts   int
	finalized              bool
	orderCreationAttempted bool
	pushConfirmed          bool
	pushReference          string
	logger                 *slog.Logger
}

func NewTracker(sessionID string, retryCount int, logger *slog.Logger) *Tracker {
	return &Tracker{
		sessionID:  sessionID,
		status:     StatusIdle,
		retryCount: retryCount,
		logger:     logger,
	}
}

// Transition applies a state change if the transition table allows it and
// the session is not yet finalized. An illegal transition is logged and the
// state left untouched; this is what keeps a late or duplicate signal from
// corrupting an already-resolved outcome.
func (t *Tracker) Transition(to Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finalized {
		t.logger.Debug("transition ignored, session finalized",
			"session_id", t.sessionID,
			"from", t.status,
			"to", to)
		return false
	}

	if !CanTransition(t.status, to) {
		t.logger.Warn("illegal payment state transition rejected",
			"session_id", t.sessionID,
			"from", t.status,
			"to", to)
		return false
	}

	t.logger.Info("payment state transition",
		"session_id", t.sessionID,
		"from", t.status,
		"to", to)
	t.status = to
	return true
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Tracker) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

func (t *Tracker) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount
}

// ClaimFinalize is the single atomic claim on the finalize action. The first
// caller wins and must call order creation exactly once; every later caller
// gets false. Both the finalized latch and the order-creation flag flip
// together under one lock.
func (t *Tracker) ClaimFinalize() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finalized || t.orderCreationAttempted {
		return false
	}
	t.finalized = true
	t.orderCreationAttempted = true
	return true
}

// MarkPushConfirmed records a push confirmation from the gateway. Returns
// false when the session is already finalized, in which case the signal is
// discarded.
func (t *Tracker) MarkPushConfirmed(reference string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finalized {
		return false
	}
	t.pushConfirmed = true
	if reference != "" {
		t.pushReference = reference
	}
	return true
}

func (t *Tracker) PushConfirmed() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pushConfirmed, t.pushReference
}

func (t *Tracker) IncrementVerificationAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verificationAttempts++
	return t.verificationAttempts
}

func (t *Tracker) VerificationAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verificationAttempts
}

// Snapshot is a consistent read of the tracker for views and persistence.
type Snapshot struct {
	Status                 Status
	RetryCount             int
	VerificationAttempts   int
	Finalized              bool
	OrderCreationAttempted bool
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Status:                 t.status,
		RetryCount:             t.retryCount,
		VerificationAttempts:   t.verificationAttempts,
		Finalized:              t.finalized,
		OrderCreationAttempted: t.orderCreationAttempted,
	}
}
