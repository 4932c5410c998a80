// Package confirmed implements the Confirmed-Commit State Machine of
// SPEC_FULL.md §4.5: INACTIVE/PERSISTENT/EPHEMERAL/ROLLBACK states layered
// on top of an ordinary commit.Engine.Commit. There is no direct teacher
// equivalent of a confirmed-commit timer; the timeout mechanism is
// grounded on the same time.After-driven pattern the teacher's session
// keepalive code uses in netconf/server/netconf/server.go, here expressed
// with time.AfterFunc since the state machine, not a single select loop,
// owns the timer's lifetime.
package confirmed

import (
	"context"
	"sync"
	"time"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/errx"
	"github.com/yangwire/ncbackend/internal/metrics"
	"github.com/yangwire/ncbackend/xtree"
)

// State is one of the confirmed-commit lifecycle states.
type State int

const (
	Inactive State = iota
	Persistent
	Ephemeral
	RollingBack
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Persistent:
		return "persistent"
	case Ephemeral:
		return "ephemeral"
	default:
		return "rollback"
	}
}

// RollbackFailure bits record why an automatic rollback could not be
// completed cleanly, per §4.5's rollback-failed reporting: these bits
// describe a degraded but recorded outcome, never a silent one.
type RollbackFailure uint8

const (
	NotApplied RollbackFailure = 1 << iota
	DBNotDeleted
	FailsafeApplied
)

// DefaultTimeout is the confirm-timeout applied when a confirmed commit
// doesn't specify one, per RFC 6241 §8.3.4.1 (600 seconds).
const DefaultTimeout = 600 * time.Second

// Result reports the outcome of a state machine operation.
type Result struct {
	OK      bool
	Errors  []*errx.Error
	Failure RollbackFailure
}

// SM is the confirmed-commit state machine for one running/candidate pair.
// One SM is shared by every session operating on that datastore pair,
// mirroring the single global confirmed-commit state RFC 6241 describes.
type SM struct {
	mu sync.Mutex

	engine *commit.Engine
	store  *datastore.Facade

	state      State
	persistID  string
	session    uint32
	snapshot   *xtree.Element
	timer      *time.Timer
	onRollback func(RollbackFailure)
	metrics    *metrics.Registry
}

// New constructs an SM wrapping engine/store, both idle (Inactive).
func New(engine *commit.Engine, store *datastore.Facade) *SM {
	return &SM{engine: engine, store: store, state: Inactive}
}

// SetMetrics installs the counters incremented as confirmed commits start
// and revert. A nil Registry (the default) disables it.
func (m *SM) SetMetrics(r *metrics.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = r
}

// OnRollback registers a callback invoked whenever an automatic or
// explicit rollback completes, passing it that rollback's RollbackFailure
// bits; cmd/ncbackend uses it to log the outcome. No notification is
// emitted from here.
func (m *SM) OnRollback(fn func(RollbackFailure)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRollback = fn
}

// State returns the state machine's current state.
func (m *SM) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PersistID returns the persist-id of the in-progress confirmed commit, if
// any; the empty string means either Inactive or an ephemeral (unnamed)
// confirmed commit in progress.
func (m *SM) PersistID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistID
}

// Commit runs a plain (non-confirmed) commit. If the state machine
// currently has a confirmed commit in progress, this finalizes it:
// running's new content becomes permanent and the pending rollback image
// is discarded, exactly as a second, unconfirmed <commit> does per RFC
// 6241 §8.3.4.
func (m *SM) Commit(ctx context.Context) Result {
	res := m.engine.Commit(ctx)
	if !res.OK {
		return Result{Errors: res.Errors}
	}
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()
	return Result{OK: true}
}

// ConfirmedCommit starts (or extends) a confirmed commit. persistID is
// empty for an ephemeral confirmed commit tied to session; a non-empty
// persistID makes it persistent and survives the originating session's
// termination, per §4.5. timeout of 0 means DefaultTimeout.
func (m *SM) ConfirmedCommit(ctx context.Context, session uint32, persistID string, timeout time.Duration) Result {
	m.mu.Lock()
	if m.state != Inactive {
		if !m.canExtendLocked(session, persistID) {
			m.mu.Unlock()
			return Result{Errors: []*errx.Error{errx.OperationFailedErr(errx.Application, "a confirmed commit is already in progress")}}
		}
	} else {
		running, ok := m.store.Root(datastore.Running)
		if !ok {
			m.mu.Unlock()
			return Result{Errors: []*errx.Error{errx.OperationFailedErr(errx.Application, "running datastore does not exist")}}
		}
		m.snapshot = running.Clone()
	}
	m.mu.Unlock()

	res := m.engine.Commit(ctx)
	if !res.OK {
		return Result{Errors: res.Errors}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.persistID = persistID
	if persistID != "" {
		m.state = Persistent
	} else {
		m.state = Ephemeral
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m.resetTimerLocked(timeout)
	if m.metrics != nil {
		m.metrics.ConfirmedCommits.Inc()
	}
	return Result{OK: true}
}

// canExtendLocked reports whether a follow-up <commit confirmed="true">
// from session/persistID is allowed to extend the in-progress confirmed
// commit, per §4.5's persist-id takeover rules: an ephemeral commit can
// only be extended by its owning session; a persistent one by anyone who
// supplies the matching persist-id.
func (m *SM) canExtendLocked(session uint32, persistID string) bool {
	if m.state == Persistent {
		return persistID == m.persistID
	}
	if m.state == Ephemeral {
		return persistID == "" && session == m.session
	}
	return false
}

// CancelCommit aborts the in-progress confirmed commit immediately,
// restoring running from the pre-sequence snapshot and returning to
// Inactive. persistID must match if the in-progress commit is persistent.
func (m *SM) CancelCommit(ctx context.Context, persistID string) Result {
	m.mu.Lock()
	if m.state == Inactive {
		m.mu.Unlock()
		return Result{Errors: []*errx.Error{errx.OperationFailedErr(errx.Application, "no confirmed commit in progress")}}
	}
	if m.state == Persistent && persistID != m.persistID {
		m.mu.Unlock()
		return Result{Errors: []*errx.Error{errx.AccessDeniedErr(errx.Application, "", "persist-id does not match")}}
	}
	m.mu.Unlock()

	failure := m.rollback()
	return Result{OK: failure == 0, Failure: failure}
}

// DiscardChanges resets candidate from running. It never touches a
// pending confirmed-commit rollback image: discard-changes and the
// confirmed-commit timer are independent per the resolution in
// DESIGN.md's open-question section, since discard-changes is scoped to
// candidate and the rollback image only ever restores running.
func (m *SM) DiscardChanges() datastore.Result {
	return m.store.Copy(datastore.Running, datastore.Candidate)
}

// SessionTerminated releases any ephemeral confirmed commit owned by
// session, rolling running back immediately, per §4.5: an ephemeral
// confirmed commit does not outlive its session.
func (m *SM) SessionTerminated(session uint32) {
	m.mu.Lock()
	if m.state != Ephemeral || m.session != session {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.rollback()
}

// resetTimerLocked (re)starts the confirm-timeout timer; must be called
// with m.mu held.
func (m *SM) resetTimerLocked(timeout time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(timeout, func() {
		m.rollback()
	})
}

// rollback restores running from the stored snapshot and returns to
// Inactive, reporting any failure bits encountered along the way. Despite
// the name it must NOT be called with m.mu held; it acquires the lock
// itself, matching the other exported entry points.
func (m *SM) rollback() RollbackFailure {
	m.mu.Lock()
	if m.state == Inactive || m.state == RollingBack {
		m.mu.Unlock()
		return 0
	}
	m.state = RollingBack
	snapshot := m.snapshot
	m.mu.Unlock()

	var failure RollbackFailure
	if snapshot == nil {
		failure |= NotApplied
	} else if res := m.store.SetRoot(datastore.Running, snapshot); res != datastore.OK {
		failure |= DBNotDeleted
		if m.store.Exists(datastore.Failsafe) {
			if fs, ok := m.store.Root(datastore.Failsafe); ok {
				if m.store.SetRoot(datastore.Running, fs.Clone()) == datastore.OK {
					failure |= FailsafeApplied
				}
			}
		}
	}

	m.mu.Lock()
	m.clearLocked()
	cb := m.onRollback
	metricsReg := m.metrics
	m.mu.Unlock()

	if metricsReg != nil {
		metricsReg.ConfirmedReverts.Inc()
	}
	if cb != nil {
		cb(failure)
	}
	return failure
}

// clearLocked resets the state machine to Inactive; must be called with
// m.mu held.
func (m *SM) clearLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = Inactive
	m.persistID = ""
	m.session = 0
	m.snapshot = nil
}
