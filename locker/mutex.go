package locker

import (
	"context"
	"path"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
	"github.com/nu7hatch/gouuid"
)

// grantRule decides whether the candidate at index holds the lock and, if
// not, which single sibling it should watch.
type grantRule func(candidates nodepath.Candidates, index int) (granted bool, watch string)

// Token identifies one grant of a lock. It is only valid while the session
// that created it is still the adapter's session.
type Token struct {
	Path      string `json:"path"`
	SessionID int64  `json:"session_id"`
	Sequence  int64  `json:"sequence"`
}

type Mutex struct {
	adapter       storeadapter.StoreAdapter
	clock         clock.Clock
	logger        lager.Logger
	lockPath      string
	prefix        string
	participantID string
	rule          grantRule

	// one in-process caller at a time talks to the store; the rest wait
	// for the slot within their own deadline
	acquireSlot chan struct{}

	stateLock     sync.Mutex
	candidatePath string
	sessionID     int64
	holds         int
}

func NewMutex(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, lockPath string) *Mutex {
	return newMutex(adapter, clock, logger.Session("mutex"), lockPath, nodepath.LockPrefix, lowestHolds)
}

func newMutex(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, lockPath string, prefix string, rule grantRule) *Mutex {
	guid, err := uuid.NewV4()
	if err != nil {
		panic("failed to construct uuid: " + err.Error())
	}

	return &Mutex{
		adapter:       adapter,
		clock:         clock,
		logger:        logger.WithData(lager.Data{"path": lockPath, "participant": guid.String()}),
		lockPath:      lockPath,
		prefix:        prefix,
		participantID: guid.String(),
		rule:          rule,
		acquireSlot:   make(chan struct{}, 1),
	}
}

func (m *Mutex) ParticipantID() string {
	return m.participantID
}

func (m *Mutex) Path() string {
	return m.lockPath
}

// Acquire waits up to timeout to hold the lock; timeout <= 0 waits forever.
// Acquiring a lock that is already held succeeds immediately and adds a
// hold; each hold needs its own Release.
func (m *Mutex) Acquire(timeout time.Duration) (bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := m.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C()
	}

	return m.acquire(deadline, nil)
}

// AcquireContext waits until the lock is held or ctx is done.
func (m *Mutex) AcquireContext(ctx context.Context) (bool, error) {
	acquired, err := m.acquire(nil, ctx.Done())
	if !acquired && err == nil {
		return false, ctx.Err()
	}
	return acquired, err
}

func (m *Mutex) acquire(deadline <-chan time.Time, cancel <-chan struct{}) (bool, error) {
	if m.reenter() {
		return true, nil
	}

	select {
	case m.acquireSlot <- struct{}{}:
	case <-deadline:
		m.logger.Info("acquire.timed-out-in-process")
		return false, nil
	case <-cancel:
		return false, nil
	}
	defer func() { <-m.acquireSlot }()

	if m.reenter() {
		return true, nil
	}
	m.forget()

	sessionStates, unsubscribe := m.adapter.WatchSession()
	defer unsubscribe()

	sessionID := m.adapter.SessionID()
	candidate, err := m.createCandidate()
	if err != nil {
		m.logger.Error("acquire.failed-to-create-candidate", err)
		return false, err
	}

	granted, err := m.waitForGrant(candidate, sessionID, sessionStates, deadline, cancel)
	if err != nil || !granted {
		if err != nil {
			m.logger.Error("acquire.failed", err, lager.Data{"candidate": candidate})
		} else {
			m.logger.Info("acquire.gave-up", lager.Data{"candidate": candidate})
		}

		deleteErr := m.adapter.Delete(candidate, storeadapter.AnyVersion)
		if deleteErr != nil && !storeadapter.IsKeyNotFoundError(deleteErr) {
			m.logger.Error("acquire.failed-to-delete-candidate", deleteErr)
		}
		return false, err
	}

	m.stateLock.Lock()
	m.candidatePath = candidate
	m.sessionID = sessionID
	m.holds = 1
	m.stateLock.Unlock()

	m.logger.Info("acquire.granted", lager.Data{"candidate": candidate})
	return true, nil
}

func (m *Mutex) createCandidate() (string, error) {
	prefix := nodepath.CandidatePrefix(m.lockPath, m.prefix, m.participantID)

	candidate, err := m.adapter.Create(prefix, []byte(m.participantID), storeadapter.EphemeralSequential)
	if storeadapter.IsKeyNotFoundError(err) {
		err = m.adapter.EnsureDir(m.lockPath)
		if err != nil {
			return "", err
		}
		candidate, err = m.adapter.Create(prefix, []byte(m.participantID), storeadapter.EphemeralSequential)
	}

	return candidate, err
}

func (m *Mutex) waitForGrant(candidate string, sessionID int64, sessionStates <-chan storeadapter.SessionState, deadline <-chan time.Time, cancel <-chan struct{}) (bool, error) {
	name := path.Base(candidate)

	for {
		children, err := m.adapter.Children(m.lockPath)
		if err != nil {
			return false, err
		}

		if m.adapter.SessionID() != sessionID {
			return false, storeadapter.ErrorSessionExpired
		}

		candidates := nodepath.SortedCandidates(children)
		index := candidates.IndexOf(name)
		if index < 0 {
			return false, storeadapter.ErrorKeyNotFound
		}

		granted, watch := m.rule(candidates, index)
		if granted {
			return true, nil
		}

		_, events, err := m.adapter.GetAndWatch(path.Join(m.lockPath, watch))
		if storeadapter.IsKeyNotFoundError(err) {
			continue
		}
		if err != nil {
			return false, err
		}

		m.logger.Debug("acquire.waiting", lager.Data{"watching": watch})

		select {
		case <-events:
		case state := <-sessionStates:
			if state == storeadapter.SessionExpired {
				return false, storeadapter.ErrorSessionExpired
			}
		case <-deadline:
			return false, nil
		case <-cancel:
			return false, nil
		}
	}
}

// Release drops one hold and deletes the candidate once the last hold is
// gone. It is a no-op when the lock is not held. When the owning session has
// already expired the store has released the candidate for us.
func (m *Mutex) Release() error {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()

	if m.candidatePath == "" {
		return nil
	}

	if m.sessionID != m.adapter.SessionID() {
		m.logger.Info("release.session-already-gone")
		m.candidatePath = ""
		m.sessionID = 0
		m.holds = 0
		return nil
	}

	if m.holds > 1 {
		m.holds--
		return nil
	}

	err := m.adapter.Delete(m.candidatePath, storeadapter.AnyVersion)
	if err != nil && !storeadapter.IsKeyNotFoundError(err) {
		m.logger.Error("release.failed", err)
		return err
	}

	m.logger.Info("release.released", lager.Data{"candidate": m.candidatePath})
	m.candidatePath = ""
	m.sessionID = 0
	m.holds = 0
	return nil
}

func (m *Mutex) IsHeld() bool {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()

	return m.candidatePath != "" && m.sessionID == m.adapter.SessionID()
}

// Token returns the fencing token of the current grant.
func (m *Mutex) Token() (Token, bool) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()

	if m.candidatePath == "" || m.sessionID != m.adapter.SessionID() {
		return Token{}, false
	}

	candidate, _ := nodepath.ParseCandidate(path.Base(m.candidatePath))
	return Token{
		Path:      m.candidatePath,
		SessionID: m.sessionID,
		Sequence:  candidate.Sequence,
	}, true
}

// Participants lists the ids of every live candidate on the lock path in
// queue order; the first one holds the lock.
func (m *Mutex) Participants() ([]string, error) {
	children, err := m.adapter.Children(m.lockPath)
	if storeadapter.IsKeyNotFoundError(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return nodepath.SortedCandidates(children).ParticipantIDs(), nil
}

// WithLock runs criticalSection while holding the lock. It reports false,
// without running anything, if the lock could not be had within timeout.
func (m *Mutex) WithLock(timeout time.Duration, criticalSection func() error) (bool, error) {
	acquired, err := m.Acquire(timeout)
	if !acquired {
		return false, err
	}
	defer m.Release()

	return true, criticalSection()
}

// Holds is the number of Releases needed before the lock is given up.
func (m *Mutex) Holds() int {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()

	if m.candidatePath == "" || m.sessionID != m.adapter.SessionID() {
		return 0
	}
	return m.holds
}

func (m *Mutex) reenter() bool {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()

	if m.candidatePath == "" || m.sessionID != m.adapter.SessionID() {
		return false
	}
	m.holds++
	return true
}

func (m *Mutex) forget() {
	m.stateLock.Lock()
	m.candidatePath = ""
	m.sessionID = 0
	m.holds = 0
	m.stateLock.Unlock()
}

func lowestHolds(candidates nodepath.Candidates, index int) (bool, string) {
	if index == 0 {
		return true, ""
	}
	return false, candidates[index-1].Name
}
