package queue

import (
	"sync"

	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

// MessageLog is a QueueConsumer that remembers what it consumed.
type MessageLog struct {
	lock     sync.Mutex
	messages []string
	states   []storeadapter.SessionState
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		messages: []string{},
		states:   []storeadapter.SessionState{},
	}
}

func (l *MessageLog) ConsumeMessage(message []byte) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.messages = append(l.messages, string(message))
}

func (l *MessageLog) StateChanged(state storeadapter.SessionState) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.states = append(l.states, state)
}

func (l *MessageLog) Messages() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string{}, l.messages...)
}

func (l *MessageLog) States() []storeadapter.SessionState {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]storeadapter.SessionState{}, l.states...)
}

func (l *MessageLog) Clear() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.messages = []string{}
	l.states = []storeadapter.SessionState{}
}
