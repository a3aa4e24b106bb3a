package storeadapter

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cloudfoundry/zkrecipes/helpers/workerpool"
	"github.com/samuel/go-zookeeper/zk"
)

type ZookeeperStoreAdapter struct {
	urls              []string
	client            *zk.Conn
	workerPool        *workerpool.WorkerPool
	connectionTimeout time.Duration
	notifier          *SessionNotifier

	stateLock     sync.Mutex
	lastSessionID int64
	suspended     bool
	connected     chan struct{}
}

func NewZookeeperStoreAdapter(urls []string, maxConcurrentRequests int, connectionTimeout time.Duration) *ZookeeperStoreAdapter {
	return &ZookeeperStoreAdapter{
		urls:              urls,
		workerPool:        workerpool.NewWorkerPool(maxConcurrentRequests),
		connectionTimeout: connectionTimeout,
		notifier:          NewSessionNotifier(),
		connected:         make(chan struct{}),
	}
}

// Connect returns once the first session is established, or with
// ErrorTimeout if that takes longer than the connection timeout.
func (adapter *ZookeeperStoreAdapter) Connect() error {
	client, events, err := zk.Connect(adapter.urls, adapter.connectionTimeout)
	if err != nil {
		return err
	}
	adapter.client = client

	go adapter.trackSession(events, client.SessionID)

	select {
	case <-adapter.connected:
		return nil
	case <-time.After(adapter.connectionTimeout):
		return ErrorTimeout
	}
}

func (adapter *ZookeeperStoreAdapter) Disconnect() error {
	adapter.workerPool.StopWorkers()
	adapter.client.Close()

	return nil
}

func (adapter *ZookeeperStoreAdapter) SessionID() int64 {
	if adapter.client == nil {
		return 0
	}
	return adapter.client.SessionID()
}

func (adapter *ZookeeperStoreAdapter) WatchSession() (<-chan SessionState, func()) {
	return adapter.notifier.Subscribe()
}

// trackSession turns the client's session events into SessionStates.
// sessionID reports the client's current session when it has one.
func (adapter *ZookeeperStoreAdapter) trackSession(events <-chan zk.Event, sessionID func() int64) {
	var connectedOnce sync.Once

	for event := range events {
		if event.Type != zk.EventSession {
			continue
		}

		switch event.State {
		case zk.StateHasSession:
			connectedOnce.Do(func() { close(adapter.connected) })
			for _, state := range adapter.sessionEstablished(sessionID()) {
				adapter.notifier.Notify(state)
			}
		case zk.StateDisconnected:
			if adapter.sessionLost() {
				adapter.notifier.Notify(SessionSuspended)
			}
		case zk.StateExpired:
			adapter.stateLock.Lock()
			adapter.lastSessionID = 0
			adapter.suspended = false
			adapter.stateLock.Unlock()
			adapter.notifier.Notify(SessionExpired)
		}
	}
}

// sessionEstablished reports RECONNECTED only when the suspended session
// came back. A different session means the old one expired while we were
// away.
func (adapter *ZookeeperStoreAdapter) sessionEstablished(sessionID int64) []SessionState {
	adapter.stateLock.Lock()
	defer adapter.stateLock.Unlock()

	var states []SessionState
	switch {
	case adapter.suspended && adapter.lastSessionID == sessionID:
		states = []SessionState{SessionReconnected}
	case adapter.suspended:
		states = []SessionState{SessionExpired, SessionConnected}
	case adapter.lastSessionID == sessionID:
	default:
		states = []SessionState{SessionConnected}
	}

	adapter.lastSessionID = sessionID
	adapter.suspended = false
	return states
}

func (adapter *ZookeeperStoreAdapter) sessionLost() bool {
	adapter.stateLock.Lock()
	defer adapter.stateLock.Unlock()

	if adapter.lastSessionID == 0 || adapter.suspended {
		return false
	}
	adapter.suspended = true
	return true
}

// we route through the worker pool to bound concurrent requests
func (adapter *ZookeeperStoreAdapter) schedule(work func()) {
	done := make(chan struct{})
	scheduled := adapter.workerPool.ScheduleWork(func() {
		work()
		close(done)
	})
	if !scheduled {
		return
	}
	<-done
}

func (adapter *ZookeeperStoreAdapter) Create(key string, value []byte, mode CreateMode) (string, error) {
	var createdPath string
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		createdPath, err = adapter.client.Create(key, value, createFlags(mode), zk.WorldACL(zk.PermAll))
	})

	return createdPath, TranslateError(err)
}

func (adapter *ZookeeperStoreAdapter) EnsureDir(key string) error {
	key = path.Clean(key)
	if key == "/" {
		return nil
	}

	exists, err := adapter.Exists(key)
	if err != nil || exists {
		return err
	}

	err = adapter.EnsureDir(path.Dir(key))
	if err != nil {
		return err
	}

	_, err = adapter.Create(key, []byte{}, Persistent)
	if err == ErrorNodeExists {
		return nil
	}
	return err
}

func (adapter *ZookeeperStoreAdapter) Delete(key string, version int32) error {
	err := error(ErrorNotConnected)
	adapter.schedule(func() {
		err = adapter.client.Delete(key, version)
	})
	return TranslateError(err)
}

func (adapter *ZookeeperStoreAdapter) Get(key string) (StoreNode, error) {
	var data []byte
	var stat *zk.Stat
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		data, stat, err = adapter.client.Get(key)
	})

	if err != nil {
		return StoreNode{}, TranslateError(err)
	}
	return makeStoreNode(key, data, stat), nil
}

func (adapter *ZookeeperStoreAdapter) GetAndWatch(key string) (StoreNode, <-chan WatchEvent, error) {
	var data []byte
	var stat *zk.Stat
	var events <-chan zk.Event
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		data, stat, events, err = adapter.client.GetW(key)
	})

	if err != nil {
		return StoreNode{}, nil, TranslateError(err)
	}
	return makeStoreNode(key, data, stat), translateWatch(events), nil
}

func (adapter *ZookeeperStoreAdapter) Set(key string, value []byte, version int32) (int32, error) {
	var stat *zk.Stat
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		stat, err = adapter.client.Set(key, value, version)
	})

	if err != nil {
		return 0, TranslateError(err)
	}
	return stat.Version, nil
}

func (adapter *ZookeeperStoreAdapter) Exists(key string) (bool, error) {
	var exists bool
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		exists, _, err = adapter.client.Exists(key)
	})

	return exists, TranslateError(err)
}

func (adapter *ZookeeperStoreAdapter) ExistsAndWatch(key string) (bool, <-chan WatchEvent, error) {
	var exists bool
	var events <-chan zk.Event
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		exists, _, events, err = adapter.client.ExistsW(key)
	})

	if err != nil {
		return false, nil, TranslateError(err)
	}
	return exists, translateWatch(events), nil
}

func (adapter *ZookeeperStoreAdapter) Children(key string) ([]string, error) {
	var children []string
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		children, _, err = adapter.client.Children(key)
	})

	return children, TranslateError(err)
}

func (adapter *ZookeeperStoreAdapter) ChildrenAndWatch(key string) ([]string, <-chan WatchEvent, error) {
	var children []string
	var events <-chan zk.Event
	err := error(ErrorNotConnected)

	adapter.schedule(func() {
		children, _, events, err = adapter.client.ChildrenW(key)
	})

	if err != nil {
		return nil, nil, TranslateError(err)
	}
	return children, translateWatch(events), nil
}

func createFlags(mode CreateMode) int32 {
	var flags int32
	if mode.IsEphemeral() {
		flags |= zk.FlagEphemeral
	}
	if mode.IsSequential() {
		flags |= zk.FlagSequence
	}
	return flags
}

func makeStoreNode(key string, data []byte, stat *zk.Stat) StoreNode {
	node := StoreNode{
		Key:   key,
		Value: data,
	}
	if stat != nil {
		node.Version = stat.Version
		node.Ephemeral = stat.EphemeralOwner != 0
		node.NumChildren = stat.NumChildren
	}
	return node
}

func translateWatch(events <-chan zk.Event) <-chan WatchEvent {
	translated := make(chan WatchEvent, 1)

	go func() {
		defer close(translated)

		event, ok := <-events
		if !ok {
			translated <- WatchEvent{Type: EventNotWatching}
			return
		}
		translated <- TranslateEvent(event)
	}()

	return translated
}

func TranslateEvent(event zk.Event) WatchEvent {
	watchEvent := WatchEvent{Key: event.Path}

	switch event.Type {
	case zk.EventNodeCreated:
		watchEvent.Type = EventNodeCreated
	case zk.EventNodeDeleted:
		watchEvent.Type = EventNodeDeleted
	case zk.EventNodeDataChanged:
		watchEvent.Type = EventNodeDataChanged
	case zk.EventNodeChildrenChanged:
		watchEvent.Type = EventNodeChildrenChanged
	default:
		watchEvent.Type = EventNotWatching
	}

	return watchEvent
}

func TranslateError(err error) error {
	switch err {
	case nil:
		return nil
	case zk.ErrNoNode:
		return ErrorKeyNotFound
	case zk.ErrNodeExists:
		return ErrorNodeExists
	case zk.ErrBadVersion:
		return ErrorVersionMismatch
	case zk.ErrNotEmpty:
		return ErrorNodeNotEmpty
	case zk.ErrSessionExpired, zk.ErrSessionMoved:
		return ErrorSessionExpired
	case zk.ErrConnectionClosed, zk.ErrNoServer, zk.ErrClosing:
		return ErrorTimeout
	}

	if strings.Contains(err.Error(), "timeout") {
		return ErrorTimeout
	}

	return err
}
