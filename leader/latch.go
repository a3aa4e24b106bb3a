package leader

import (
	"os"
	"path"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
	"github.com/nu7hatch/gouuid"
)

const retryInterval = time.Second

type Participant struct {
	ID       string `json:"id"`
	IsLeader bool   `json:"is_leader"`
}

type LatchListener interface {
	IsLeader()
	NotLeader()
}

// Latch keeps a candidate in the election for as long as it runs. The
// lowest candidate leads; each candidate watches only the one ahead of it.
type Latch struct {
	adapter   storeadapter.StoreAdapter
	clock     clock.Clock
	logger    lager.Logger
	latchPath string
	id        string
	guid      string

	stateLock     sync.Mutex
	candidatePath string
	sessionID     int64
	leader        bool
	suspended     bool
	gained        chan struct{}
	listeners     []LatchListener
}

func NewLatch(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, latchPath string, id string) *Latch {
	guid, err := uuid.NewV4()
	if err != nil {
		panic("failed to construct uuid: " + err.Error())
	}

	return &Latch{
		adapter:   adapter,
		clock:     clock,
		logger:    logger.Session("leader-latch", lager.Data{"path": latchPath, "id": id}),
		latchPath: latchPath,
		id:        id,
		guid:      guid.String(),
		gained:    make(chan struct{}),
	}
}

func (l *Latch) ID() string {
	return l.id
}

func (l *Latch) AddListener(listener LatchListener) {
	l.stateLock.Lock()
	defer l.stateLock.Unlock()
	l.listeners = append(l.listeners, listener)
}

func (l *Latch) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	sessionStates, unsubscribe := l.adapter.WatchSession()
	defer unsubscribe()

	l.logger.Info("started")
	close(ready)

	for {
		var events <-chan storeadapter.WatchEvent
		var retry <-chan time.Time

		if !l.isSuspended() {
			var err error
			events, err = l.evaluate()
			if err != nil {
				l.logger.Error("evaluate-failed", err)
				l.setLeadership(false)
				retry = l.clock.After(retryInterval)
			}
		}

		select {
		case <-events:
		case <-retry:
		case state := <-sessionStates:
			l.logger.Info("session-state-changed", lager.Data{"state": state.String()})
			l.sessionStateChanged(state)
		case <-signals:
			l.close()
			l.logger.Info("stopped")
			return nil
		}
	}
}

func (l *Latch) sessionStateChanged(state storeadapter.SessionState) {
	l.stateLock.Lock()
	l.suspended = state == storeadapter.SessionSuspended
	l.stateLock.Unlock()

	if state == storeadapter.SessionSuspended || state == storeadapter.SessionExpired {
		l.setLeadership(false)
	}
}

// evaluate makes sure a candidate exists for the current session, settles
// leadership from the current ordering and returns the watch to wait on.
func (l *Latch) evaluate() (<-chan storeadapter.WatchEvent, error) {
	for {
		candidate, err := l.ensureCandidate()
		if err != nil {
			return nil, err
		}

		children, err := l.adapter.Children(l.latchPath)
		if err != nil {
			return nil, err
		}

		candidates := nodepath.SortedCandidates(children)
		index := candidates.IndexOf(path.Base(candidate))
		if index < 0 {
			l.logger.Info("candidate-vanished", lager.Data{"candidate": candidate})
			l.forgetCandidate()
			l.setLeadership(false)
			continue
		}

		watch := candidate
		if index > 0 {
			watch = path.Join(l.latchPath, candidates[index-1].Name)
		}

		_, events, err := l.adapter.GetAndWatch(watch)
		if storeadapter.IsKeyNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		l.setLeadership(index == 0)
		return events, nil
	}
}

func (l *Latch) ensureCandidate() (string, error) {
	sessionID := l.adapter.SessionID()
	if sessionID == 0 {
		return "", storeadapter.ErrorNotConnected
	}

	l.stateLock.Lock()
	candidate, candidateSessionID := l.candidatePath, l.sessionID
	l.stateLock.Unlock()

	if candidate != "" && candidateSessionID == sessionID {
		return candidate, nil
	}

	if candidate != "" {
		l.logger.Info("session-replaced", lager.Data{"stale-candidate": candidate})
		l.setLeadership(false)
	}

	prefix := nodepath.CandidatePrefix(l.latchPath, nodepath.LatchPrefix, l.guid)
	candidate, err := l.adapter.Create(prefix, []byte(l.id), storeadapter.EphemeralSequential)
	if storeadapter.IsKeyNotFoundError(err) {
		err = l.adapter.EnsureDir(l.latchPath)
		if err != nil {
			return "", err
		}
		candidate, err = l.adapter.Create(prefix, []byte(l.id), storeadapter.EphemeralSequential)
	}
	if err != nil {
		return "", err
	}

	if l.adapter.SessionID() != sessionID {
		l.adapter.Delete(candidate, storeadapter.AnyVersion)
		return "", storeadapter.ErrorSessionExpired
	}

	l.logger.Info("created-candidate", lager.Data{"candidate": candidate})

	l.stateLock.Lock()
	l.candidatePath = candidate
	l.sessionID = sessionID
	l.stateLock.Unlock()

	return candidate, nil
}

func (l *Latch) close() {
	l.setLeadership(false)

	l.stateLock.Lock()
	candidate, sessionID := l.candidatePath, l.sessionID
	l.candidatePath = ""
	l.sessionID = 0
	l.stateLock.Unlock()

	if candidate == "" || sessionID != l.adapter.SessionID() {
		return
	}

	err := l.adapter.Delete(candidate, storeadapter.AnyVersion)
	if err != nil && !storeadapter.IsKeyNotFoundError(err) {
		l.logger.Error("failed-to-delete-candidate", err)
	}
}

func (l *Latch) forgetCandidate() {
	l.stateLock.Lock()
	l.candidatePath = ""
	l.sessionID = 0
	l.stateLock.Unlock()
}

func (l *Latch) isSuspended() bool {
	l.stateLock.Lock()
	defer l.stateLock.Unlock()
	return l.suspended
}

func (l *Latch) setLeadership(leader bool) {
	l.stateLock.Lock()
	if l.leader == leader {
		l.stateLock.Unlock()
		return
	}

	l.leader = leader
	if leader {
		close(l.gained)
	} else {
		l.gained = make(chan struct{})
	}
	listeners := append([]LatchListener{}, l.listeners...)
	l.stateLock.Unlock()

	l.logger.Info("leadership-changed", lager.Data{"leader": leader})
	for _, listener := range listeners {
		if leader {
			listener.IsLeader()
		} else {
			listener.NotLeader()
		}
	}
}

// HasLeadership is false while the session is suspended or once the session
// that created the candidate is gone.
func (l *Latch) HasLeadership() bool {
	l.stateLock.Lock()
	defer l.stateLock.Unlock()

	return l.leader && !l.suspended && l.sessionID == l.adapter.SessionID()
}

// AwaitLeadership blocks until this latch leads or timeout passes; timeout
// <= 0 waits forever.
func (l *Latch) AwaitLeadership(timeout time.Duration) bool {
	if l.HasLeadership() {
		return true
	}

	l.stateLock.Lock()
	gained := l.gained
	l.stateLock.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := l.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C()
	}

	select {
	case <-gained:
		return l.HasLeadership()
	case <-deadline:
		return false
	}
}

// LeaderID reads the id stored in the lowest candidate; it is empty when
// nobody is in the election.
func (l *Latch) LeaderID() (string, error) {
	participants, err := l.Participants()
	if err != nil || len(participants) == 0 {
		return "", err
	}
	return participants[0].ID, nil
}

func (l *Latch) Participants() ([]Participant, error) {
	return participants(l.adapter, l.latchPath)
}

func participants(adapter storeadapter.StoreAdapter, electionPath string) ([]Participant, error) {
	children, err := adapter.Children(electionPath)
	if storeadapter.IsKeyNotFoundError(err) {
		return []Participant{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := []Participant{}
	for _, candidate := range nodepath.SortedCandidates(children) {
		node, err := adapter.Get(path.Join(electionPath, candidate.Name))
		if storeadapter.IsKeyNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		result = append(result, Participant{
			ID:       string(node.Value),
			IsLeader: len(result) == 0,
		})
	}

	return result, nil
}
