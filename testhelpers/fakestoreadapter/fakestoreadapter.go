package fakestoreadapter

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

type FakeStoreAdapterErrorInjector struct {
	KeyRegexp *regexp.Regexp
	Error     error

	// Times limits the injection to the first Times matching calls; zero
	// means every matching call fails.
	Times int

	lock  sync.Mutex
	fired int
}

func NewFakeStoreAdapterErrorInjector(keyRegexp string, err error) *FakeStoreAdapterErrorInjector {
	return &FakeStoreAdapterErrorInjector{
		KeyRegexp: regexp.MustCompile(keyRegexp),
		Error:     err,
	}
}

func (injector *FakeStoreAdapterErrorInjector) errorFor(key string) error {
	if injector == nil || !injector.KeyRegexp.MatchString(key) {
		return nil
	}

	injector.lock.Lock()
	defer injector.lock.Unlock()

	if injector.Times > 0 && injector.fired >= injector.Times {
		return nil
	}
	injector.fired++
	return injector.Error
}

func (injector *FakeStoreAdapterErrorInjector) Fired() int {
	injector.lock.Lock()
	defer injector.lock.Unlock()
	return injector.fired
}

// FakeStoreAdapter is one client session against a FakeEnsemble.
type FakeStoreAdapter struct {
	ensemble *FakeEnsemble
	notifier *storeadapter.SessionNotifier

	DidConnect    bool
	DidDisconnect bool

	ConnectErr          error
	CreateErrInjector   *FakeStoreAdapterErrorInjector
	GetErrInjector      *FakeStoreAdapterErrorInjector
	SetErrInjector      *FakeStoreAdapterErrorInjector
	DeleteErrInjector   *FakeStoreAdapterErrorInjector
	ChildrenErrInjector *FakeStoreAdapterErrorInjector

	stateLock sync.Mutex
	sessionID int64
	suspended bool
}

// New returns a connected session against a private ensemble.
func New() *FakeStoreAdapter {
	adapter := NewFakeEnsemble().NewSession()
	return adapter
}

func (adapter *FakeStoreAdapter) Ensemble() *FakeEnsemble {
	return adapter.ensemble
}

func (adapter *FakeStoreAdapter) Connect() error {
	adapter.DidConnect = true
	if adapter.ConnectErr != nil {
		return adapter.ConnectErr
	}

	adapter.stateLock.Lock()
	alreadyConnected := adapter.sessionID != 0
	if !alreadyConnected {
		adapter.sessionID = adapter.ensemble.newSessionID()
	}
	adapter.stateLock.Unlock()

	if !alreadyConnected {
		adapter.notifier.Notify(storeadapter.SessionConnected)
	}
	return nil
}

// Disconnect closes the session, which releases its ephemeral nodes.
func (adapter *FakeStoreAdapter) Disconnect() error {
	adapter.DidDisconnect = true

	adapter.stateLock.Lock()
	sessionID := adapter.sessionID
	adapter.sessionID = 0
	adapter.stateLock.Unlock()

	if sessionID != 0 {
		adapter.ensemble.closeSession(sessionID)
	}
	return nil
}

// ExpireSession emulates the ensemble expiring this client's session: its
// ephemeral nodes vanish, its watches fire NotWatching, EXPIRED is
// delivered, and a fresh session is established and announced as CONNECTED.
func (adapter *FakeStoreAdapter) ExpireSession() {
	adapter.stateLock.Lock()
	oldSessionID := adapter.sessionID
	adapter.sessionID = 0
	adapter.suspended = false
	adapter.stateLock.Unlock()

	adapter.ensemble.closeSession(oldSessionID)
	adapter.notifier.Notify(storeadapter.SessionExpired)

	adapter.stateLock.Lock()
	adapter.sessionID = adapter.ensemble.newSessionID()
	adapter.stateLock.Unlock()
	adapter.notifier.Notify(storeadapter.SessionConnected)
}

// Suspend emulates losing the connection without losing the session.
// Requests fail with ErrorTimeout until Reconnect.
func (adapter *FakeStoreAdapter) Suspend() {
	adapter.stateLock.Lock()
	adapter.suspended = true
	adapter.stateLock.Unlock()
	adapter.notifier.Notify(storeadapter.SessionSuspended)
}

func (adapter *FakeStoreAdapter) Reconnect() {
	adapter.stateLock.Lock()
	adapter.suspended = false
	adapter.stateLock.Unlock()
	adapter.notifier.Notify(storeadapter.SessionReconnected)
}

func (adapter *FakeStoreAdapter) SessionID() int64 {
	adapter.stateLock.Lock()
	defer adapter.stateLock.Unlock()
	return adapter.sessionID
}

func (adapter *FakeStoreAdapter) WatchSession() (<-chan storeadapter.SessionState, func()) {
	return adapter.notifier.Subscribe()
}

func (adapter *FakeStoreAdapter) liveSession() (int64, error) {
	adapter.stateLock.Lock()
	defer adapter.stateLock.Unlock()

	if adapter.suspended {
		return 0, storeadapter.ErrorTimeout
	}
	if adapter.sessionID == 0 {
		return 0, storeadapter.ErrorNotConnected
	}
	return adapter.sessionID, nil
}

func (adapter *FakeStoreAdapter) Create(key string, value []byte, mode storeadapter.CreateMode) (string, error) {
	sessionID, err := adapter.liveSession()
	if err != nil {
		return "", err
	}
	if err := adapter.CreateErrInjector.errorFor(key); err != nil {
		return "", err
	}
	return adapter.ensemble.create(sessionID, key, value, mode)
}

func (adapter *FakeStoreAdapter) EnsureDir(key string) error {
	key = path.Clean(key)
	if key == "/" {
		return nil
	}

	err := adapter.EnsureDir(path.Dir(key))
	if err != nil {
		return err
	}

	_, err = adapter.Create(key, []byte{}, storeadapter.Persistent)
	if err == storeadapter.ErrorNodeExists {
		return nil
	}
	return err
}

func (adapter *FakeStoreAdapter) Delete(key string, version int32) error {
	if _, err := adapter.liveSession(); err != nil {
		return err
	}
	if err := adapter.DeleteErrInjector.errorFor(key); err != nil {
		return err
	}
	return adapter.ensemble.delete(key, version)
}

func (adapter *FakeStoreAdapter) Get(key string) (storeadapter.StoreNode, error) {
	node, _, err := adapter.get(key, false)
	return node, err
}

func (adapter *FakeStoreAdapter) GetAndWatch(key string) (storeadapter.StoreNode, <-chan storeadapter.WatchEvent, error) {
	return adapter.get(key, true)
}

func (adapter *FakeStoreAdapter) get(key string, watch bool) (storeadapter.StoreNode, <-chan storeadapter.WatchEvent, error) {
	sessionID, err := adapter.liveSession()
	if err != nil {
		return storeadapter.StoreNode{}, nil, err
	}
	if err := adapter.GetErrInjector.errorFor(key); err != nil {
		return storeadapter.StoreNode{}, nil, err
	}
	return adapter.ensemble.get(sessionID, key, watch)
}

func (adapter *FakeStoreAdapter) Set(key string, value []byte, version int32) (int32, error) {
	if _, err := adapter.liveSession(); err != nil {
		return 0, err
	}
	if err := adapter.SetErrInjector.errorFor(key); err != nil {
		return 0, err
	}
	return adapter.ensemble.set(key, value, version)
}

func (adapter *FakeStoreAdapter) Exists(key string) (bool, error) {
	exists, _, err := adapter.exists(key, false)
	return exists, err
}

func (adapter *FakeStoreAdapter) ExistsAndWatch(key string) (bool, <-chan storeadapter.WatchEvent, error) {
	return adapter.exists(key, true)
}

func (adapter *FakeStoreAdapter) exists(key string, watch bool) (bool, <-chan storeadapter.WatchEvent, error) {
	sessionID, err := adapter.liveSession()
	if err != nil {
		return false, nil, err
	}
	if err := adapter.GetErrInjector.errorFor(key); err != nil {
		return false, nil, err
	}
	exists, events := adapter.ensemble.exists(sessionID, key, watch)
	return exists, events, nil
}

func (adapter *FakeStoreAdapter) Children(key string) ([]string, error) {
	children, _, err := adapter.children(key, false)
	return children, err
}

func (adapter *FakeStoreAdapter) ChildrenAndWatch(key string) ([]string, <-chan storeadapter.WatchEvent, error) {
	return adapter.children(key, true)
}

func (adapter *FakeStoreAdapter) children(key string, watch bool) ([]string, <-chan storeadapter.WatchEvent, error) {
	sessionID, err := adapter.liveSession()
	if err != nil {
		return nil, nil, err
	}
	if err := adapter.ChildrenErrInjector.errorFor(key); err != nil {
		return nil, nil, err
	}
	return adapter.ensemble.children(sessionID, key, watch)
}

type watchKind int

const (
	dataWatch watchKind = iota
	existsWatch
	childWatch
)

type fakeWatch struct {
	kind      watchKind
	sessionID int64
	events    chan storeadapter.WatchEvent
}

type fakeNode struct {
	value          []byte
	version        int32
	ephemeralOwner int64
	childSequence  int64
}

// FakeEnsemble is an in-memory node tree shared by any number of sessions.
type FakeEnsemble struct {
	lock          sync.Mutex
	nodes         map[string]*fakeNode
	watches       map[string][]fakeWatch
	lastSessionID int64
}

func NewFakeEnsemble() *FakeEnsemble {
	return &FakeEnsemble{
		nodes:   map[string]*fakeNode{"/": {}},
		watches: map[string][]fakeWatch{},
	}
}

func (ensemble *FakeEnsemble) NewSession() *FakeStoreAdapter {
	adapter := &FakeStoreAdapter{
		ensemble: ensemble,
		notifier: storeadapter.NewSessionNotifier(),
	}
	adapter.Connect()
	return adapter
}

func (ensemble *FakeEnsemble) newSessionID() int64 {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()
	ensemble.lastSessionID++
	return ensemble.lastSessionID
}

// Keys lists every node below the root, sorted.
func (ensemble *FakeEnsemble) Keys() []string {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	keys := []string{}
	for key := range ensemble.nodes {
		if key != "/" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// WatchCount reports the watches pending on key, to assert on herd behaviour.
func (ensemble *FakeEnsemble) WatchCount(key string) int {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()
	return len(ensemble.watches[key])
}

func (ensemble *FakeEnsemble) create(sessionID int64, key string, value []byte, mode storeadapter.CreateMode) (string, error) {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	parentKey := path.Dir(key)
	parent, ok := ensemble.nodes[parentKey]
	if !ok {
		return "", storeadapter.ErrorKeyNotFound
	}

	if mode.IsSequential() {
		key = fmt.Sprintf("%s%010d", key, parent.childSequence)
	}
	parent.childSequence++

	if _, exists := ensemble.nodes[key]; exists {
		return "", storeadapter.ErrorNodeExists
	}

	node := &fakeNode{value: copyBytes(value)}
	if mode.IsEphemeral() {
		node.ephemeralOwner = sessionID
	}
	ensemble.nodes[key] = node

	ensemble.fire(key, storeadapter.EventNodeCreated, existsWatch)
	ensemble.fire(parentKey, storeadapter.EventNodeChildrenChanged, childWatch)

	return key, nil
}

func (ensemble *FakeEnsemble) delete(key string, version int32) error {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	node, ok := ensemble.nodes[key]
	if !ok || key == "/" {
		return storeadapter.ErrorKeyNotFound
	}
	if version != storeadapter.AnyVersion && version != node.version {
		return storeadapter.ErrorVersionMismatch
	}
	if len(ensemble.childNames(key)) > 0 {
		return storeadapter.ErrorNodeNotEmpty
	}

	ensemble.remove(key)
	return nil
}

func (ensemble *FakeEnsemble) remove(key string) {
	delete(ensemble.nodes, key)
	ensemble.fire(key, storeadapter.EventNodeDeleted, dataWatch, existsWatch, childWatch)
	ensemble.fire(path.Dir(key), storeadapter.EventNodeChildrenChanged, childWatch)
}

func (ensemble *FakeEnsemble) get(sessionID int64, key string, watch bool) (storeadapter.StoreNode, <-chan storeadapter.WatchEvent, error) {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	node, ok := ensemble.nodes[key]
	if !ok {
		return storeadapter.StoreNode{}, nil, storeadapter.ErrorKeyNotFound
	}

	var events <-chan storeadapter.WatchEvent
	if watch {
		events = ensemble.addWatch(sessionID, key, dataWatch)
	}

	return storeadapter.StoreNode{
		Key:         key,
		Value:       copyBytes(node.value),
		Version:     node.version,
		Ephemeral:   node.ephemeralOwner != 0,
		NumChildren: int32(len(ensemble.childNames(key))),
	}, events, nil
}

func (ensemble *FakeEnsemble) set(key string, value []byte, version int32) (int32, error) {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	node, ok := ensemble.nodes[key]
	if !ok {
		return 0, storeadapter.ErrorKeyNotFound
	}
	if version != storeadapter.AnyVersion && version != node.version {
		return 0, storeadapter.ErrorVersionMismatch
	}

	node.value = copyBytes(value)
	node.version++
	ensemble.fire(key, storeadapter.EventNodeDataChanged, dataWatch, existsWatch)

	return node.version, nil
}

func (ensemble *FakeEnsemble) exists(sessionID int64, key string, watch bool) (bool, <-chan storeadapter.WatchEvent) {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	_, ok := ensemble.nodes[key]

	var events <-chan storeadapter.WatchEvent
	if watch {
		events = ensemble.addWatch(sessionID, key, existsWatch)
	}
	return ok, events
}

func (ensemble *FakeEnsemble) children(sessionID int64, key string, watch bool) ([]string, <-chan storeadapter.WatchEvent, error) {
	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	if _, ok := ensemble.nodes[key]; !ok {
		return nil, nil, storeadapter.ErrorKeyNotFound
	}

	var events <-chan storeadapter.WatchEvent
	if watch {
		events = ensemble.addWatch(sessionID, key, childWatch)
	}
	return ensemble.childNames(key), events, nil
}

func (ensemble *FakeEnsemble) childNames(key string) []string {
	prefix := key + "/"
	if key == "/" {
		prefix = "/"
	}

	names := []string{}
	for nodeKey := range ensemble.nodes {
		if nodeKey == "/" || !strings.HasPrefix(nodeKey, prefix) {
			continue
		}
		name := strings.TrimPrefix(nodeKey, prefix)
		if !strings.Contains(name, "/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (ensemble *FakeEnsemble) closeSession(sessionID int64) {
	if sessionID == 0 {
		return
	}

	ensemble.lock.Lock()
	defer ensemble.lock.Unlock()

	for key, node := range ensemble.nodes {
		if node.ephemeralOwner == sessionID {
			ensemble.remove(key)
		}
	}

	for key, watches := range ensemble.watches {
		remaining := watches[:0]
		for _, watch := range watches {
			if watch.sessionID == sessionID {
				watch.events <- storeadapter.WatchEvent{Type: storeadapter.EventNotWatching, Key: key}
				close(watch.events)
			} else {
				remaining = append(remaining, watch)
			}
		}
		ensemble.watches[key] = remaining
	}
}

func (ensemble *FakeEnsemble) addWatch(sessionID int64, key string, kind watchKind) <-chan storeadapter.WatchEvent {
	events := make(chan storeadapter.WatchEvent, 1)
	ensemble.watches[key] = append(ensemble.watches[key], fakeWatch{
		kind:      kind,
		sessionID: sessionID,
		events:    events,
	})
	return events
}

func (ensemble *FakeEnsemble) fire(key string, eventType storeadapter.EventType, kinds ...watchKind) {
	watches := ensemble.watches[key]
	remaining := watches[:0]

	for _, watch := range watches {
		if containsKind(kinds, watch.kind) {
			watch.events <- storeadapter.WatchEvent{Type: eventType, Key: key}
			close(watch.events)
		} else {
			remaining = append(remaining, watch)
		}
	}

	ensemble.watches[key] = remaining
}

func containsKind(kinds []watchKind, kind watchKind) bool {
	for _, candidate := range kinds {
		if candidate == kind {
			return true
		}
	}
	return false
}

func copyBytes(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied
}
