package storeadapter

import "sync"

type SessionState int

const (
	SessionConnected SessionState = iota + 1
	SessionSuspended
	SessionReconnected
	SessionExpired
)

func (state SessionState) String() string {
	switch state {
	case SessionConnected:
		return "CONNECTED"
	case SessionSuspended:
		return "SUSPENDED"
	case SessionReconnected:
		return "RECONNECTED"
	case SessionExpired:
		return "EXPIRED"
	}
	return "UNKNOWN"
}

const sessionSubscriberBuffer = 64

// SessionNotifier fans session state transitions out to every subscriber.
// A subscriber that falls more than sessionSubscriberBuffer transitions
// behind misses the overflow; recipes fence on SessionID, not on delivery.
type SessionNotifier struct {
	lock        sync.Mutex
	nextID      int
	subscribers map[int]chan SessionState
}

func NewSessionNotifier() *SessionNotifier {
	return &SessionNotifier{
		subscribers: map[int]chan SessionState{},
	}
}

func (notifier *SessionNotifier) Subscribe() (<-chan SessionState, func()) {
	notifier.lock.Lock()
	defer notifier.lock.Unlock()

	id := notifier.nextID
	notifier.nextID++

	states := make(chan SessionState, sessionSubscriberBuffer)
	notifier.subscribers[id] = states

	var once sync.Once
	return states, func() {
		once.Do(func() {
			notifier.lock.Lock()
			delete(notifier.subscribers, id)
			notifier.lock.Unlock()
		})
	}
}

func (notifier *SessionNotifier) Notify(state SessionState) {
	notifier.lock.Lock()
	defer notifier.lock.Unlock()

	for _, states := range notifier.subscribers {
		select {
		case states <- state:
		default:
		}
	}
}
