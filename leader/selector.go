package leader

import (
	"context"
	"fmt"
	"os"
	"sync"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/locker"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

// Action runs while its selector leads. ctx is cancelled the moment
// leadership is revoked; returning gives leadership up.
type Action func(ctx context.Context) error

type Selector struct {
	adapter      storeadapter.StoreAdapter
	clock        clock.Clock
	logger       lager.Logger
	selectorPath string
	autoRequeue  bool
	action       Action

	mutex   *locker.Mutex
	requeue chan struct{}

	stateLock       sync.Mutex
	leader          bool
	leadershipCount int
}

func NewSelector(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, selectorPath string, autoRequeue bool, action Action) *Selector {
	logger = logger.Session("leader-selector", lager.Data{"path": selectorPath})

	return &Selector{
		adapter:      adapter,
		clock:        clock,
		logger:       logger,
		selectorPath: selectorPath,
		autoRequeue:  autoRequeue,
		action:       action,
		mutex:        locker.NewMutex(adapter, clock, logger, selectorPath),
		requeue:      make(chan struct{}, 1),
	}
}

func (s *Selector) ParticipantID() string {
	return s.mutex.ParticipantID()
}

// Requeue puts a selector that does not auto-requeue back into the election
// once its current turn is over.
func (s *Selector) Requeue() {
	select {
	case s.requeue <- struct{}{}:
	default:
	}
}

func (s *Selector) HasLeadership() bool {
	s.stateLock.Lock()
	leader := s.leader
	s.stateLock.Unlock()

	return leader && s.mutex.IsHeld()
}

func (s *Selector) LeadershipCount() int {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.leadershipCount
}

func (s *Selector) Participants() ([]string, error) {
	return s.mutex.Participants()
}

func (s *Selector) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	sessionStates, unsubscribe := s.adapter.WatchSession()
	defer unsubscribe()

	s.logger.Info("started")
	close(ready)

	for {
		signalled, suspended := s.contend(signals, sessionStates)
		if !signalled && suspended {
			signalled = s.awaitReconnect(signals, sessionStates)
		}
		if signalled {
			s.logger.Info("stopped")
			return nil
		}

		if s.autoRequeue {
			continue
		}

		// a turn cut short by suspension may still hold its candidate
		err := s.mutex.Release()
		if err != nil {
			s.logger.Error("failed-to-release", err)
		}

		select {
		case <-s.requeue:
		case <-signals:
			s.logger.Info("stopped")
			return nil
		}
	}
}

func (s *Selector) awaitReconnect(signals <-chan os.Signal, sessionStates <-chan storeadapter.SessionState) bool {
	for {
		select {
		case state := <-sessionStates:
			if state != storeadapter.SessionSuspended {
				return false
			}
		case <-signals:
			return true
		}
	}
}

// contend waits for the lock and then leads. It reports whether the
// selector was signalled and whether the session is left suspended.
func (s *Selector) contend(signals <-chan os.Signal, sessionStates <-chan storeadapter.SessionState) (bool, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		acquired bool
		err      error
	}
	acquisition := make(chan result, 1)
	go func() {
		acquired, err := s.mutex.AcquireContext(ctx)
		acquisition <- result{acquired, err}
	}()

	suspended := false
	for {
		select {
		case <-signals:
			cancel()
			if (<-acquisition).acquired {
				s.mutex.Release()
			}
			return true, suspended
		case state := <-sessionStates:
			suspended = state == storeadapter.SessionSuspended
			continue
		case r := <-acquisition:
			if !r.acquired {
				s.logger.Error("failed-to-acquire", r.err)
				select {
				case <-s.clock.After(retryInterval):
					return false, suspended
				case <-signals:
					return true, suspended
				}
			}
		}
		break
	}

	if suspended {
		s.logger.Info("acquired-while-suspended")
		return false, true
	}

	return s.lead(signals, sessionStates)
}

func (s *Selector) lead(signals <-chan os.Signal, sessionStates <-chan storeadapter.SessionState) (bool, bool) {
	token, _ := s.mutex.Token()
	logger := s.logger.Session("lead", lager.Data{"candidate": token.Path, "session": token.SessionID})

	ctx, revoke := context.WithCancel(context.Background())
	defer revoke()

	s.stateLock.Lock()
	s.leader = true
	s.leadershipCount++
	s.stateLock.Unlock()

	logger.Info("took-leadership")

	actionDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				actionDone <- fmt.Errorf("leadership action panicked: %v", r)
			}
		}()
		actionDone <- s.action(ctx)
	}()

	_, candidateEvents, err := s.adapter.ExistsAndWatch(token.Path)
	if err != nil {
		logger.Error("failed-to-watch-candidate", err)
	}

	relinquish := func() {
		s.stateLock.Lock()
		s.leader = false
		s.stateLock.Unlock()
		revoke()
	}

	signalled := false
	suspended := false

	for ctx.Err() == nil {
		select {
		case err := <-actionDone:
			if err != nil {
				logger.Error("action-failed", err)
			}
			actionDone <- err
			relinquish()
		case <-candidateEvents:
			var exists bool
			exists, candidateEvents, err = s.adapter.ExistsAndWatch(token.Path)
			if err != nil || !exists {
				logger.Info("candidate-lost")
				relinquish()
			}
		case state := <-sessionStates:
			if state == storeadapter.SessionSuspended || state == storeadapter.SessionExpired {
				logger.Info("session-lost", lager.Data{"state": state.String()})
				suspended = state == storeadapter.SessionSuspended
				relinquish()
			}
		case <-signals:
			signalled = true
			relinquish()
		}
	}

	<-actionDone

	err = s.mutex.Release()
	if err != nil {
		logger.Error("failed-to-release", err)
	}

	logger.Info("gave-up-leadership")
	return signalled, suspended
}

// AnnounceLeader is an Action that publishes info as the data of
// announcePath and keeps leading until revoked.
func AnnounceLeader(adapter storeadapter.StoreAdapter, announcePath string, info []byte) Action {
	return func(ctx context.Context) error {
		_, err := adapter.Set(announcePath, info, storeadapter.AnyVersion)
		if storeadapter.IsKeyNotFoundError(err) {
			err = adapter.EnsureDir(announcePath)
			if err == nil {
				_, err = adapter.Set(announcePath, info, storeadapter.AnyVersion)
			}
		}
		if err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	}
}

// AnnouncedLeader reads what the current leader published on announcePath.
func AnnouncedLeader(adapter storeadapter.StoreAdapter, announcePath string) (string, error) {
	node, err := adapter.Get(announcePath)
	if err != nil {
		return "", err
	}
	return string(node.Value), nil
}
