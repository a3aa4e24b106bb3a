package counter

import (
	"encoding/binary"
	"os"
	"path"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

const retryInterval = time.Second

type VersionedValue struct {
	Version int32 `json:"version"`
	Value   int32 `json:"value"`
}

type SharedCountListener interface {
	CountHasChanged(VersionedValue)
	StateChanged(storeadapter.SessionState)
}

// SharedCount is an int32 shared through one node. Writes are either
// unconditional or conditioned on the version last read.
type SharedCount struct {
	adapter   storeadapter.StoreAdapter
	clock     clock.Clock
	logger    lager.Logger
	countPath string
	seed      int32

	stateLock sync.Mutex
	current   VersionedValue
	listeners []SharedCountListener

	lastNotified VersionedValue
}

func NewSharedCount(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, countPath string, seed int32) *SharedCount {
	return &SharedCount{
		adapter:      adapter,
		clock:        clock,
		logger:       logger.Session("shared-count", lager.Data{"path": countPath}),
		countPath:    countPath,
		seed:         seed,
		current:      VersionedValue{Version: -1, Value: seed},
		lastNotified: VersionedValue{Version: -1},
	}
}

// Start creates the node with the seed value unless it already exists, and
// primes the cached value.
func (c *SharedCount) Start() error {
	err := c.create(c.seed)
	if err != nil {
		c.logger.Error("start.failed", err)
		return err
	}

	_, err = c.GetCount()
	return err
}

func (c *SharedCount) create(count int32) error {
	_, err := c.adapter.Create(c.countPath, encodeInt32(count), storeadapter.Persistent)
	if storeadapter.IsKeyNotFoundError(err) {
		err = c.adapter.EnsureDir(path.Dir(c.countPath))
		if err == nil {
			_, err = c.adapter.Create(c.countPath, encodeInt32(count), storeadapter.Persistent)
		}
	}
	if storeadapter.IsNodeExistsError(err) {
		return nil
	}
	return err
}

// Run keeps a data watch armed on the count and tells listeners about every
// version it observes and every session transition, in that order.
func (c *SharedCount) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	err := c.Start()
	if err != nil {
		return err
	}

	sessionStates, unsubscribe := c.adapter.WatchSession()
	defer unsubscribe()

	close(ready)

	for {
		var retry <-chan time.Time

		node, events, err := c.adapter.GetAndWatch(c.countPath)
		if storeadapter.IsKeyNotFoundError(err) {
			c.forget()
			c.lastNotified = VersionedValue{Version: -1}
			err = c.Start()
			if err == nil {
				continue
			}
		}
		if err != nil {
			c.logger.Error("watch.failed", err)
			retry = c.clock.After(retryInterval)
		} else {
			c.observe(node)
		}

		select {
		case event := <-events:
			if event.Type == storeadapter.EventNodeDeleted {
				c.lastNotified = VersionedValue{Version: -1}
			}
		case <-retry:
		case state := <-sessionStates:
			c.logger.Info("session-state-changed", lager.Data{"state": state.String()})
			for _, listener := range c.listenersSnapshot() {
				listener.StateChanged(state)
			}
		case <-signals:
			return nil
		}
	}
}

func (c *SharedCount) AddListener(listener SharedCountListener) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *SharedCount) RemoveListener(listener SharedCountListener) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	for i, existing := range c.listeners {
		if existing == listener {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *SharedCount) listenersSnapshot() []SharedCountListener {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return append([]SharedCountListener{}, c.listeners...)
}

func (c *SharedCount) observe(node storeadapter.StoreNode) {
	value := VersionedValue{Version: node.Version, Value: decodeInt32(node.Value)}
	c.replace(value)

	if value == c.lastNotified {
		return
	}
	if value.Version < c.lastNotified.Version {
		c.logger.Info("count-recreated", lager.Data{"value": value.Value, "version": value.Version})
	}
	c.lastNotified = value

	c.logger.Debug("count-changed", lager.Data{"value": value.Value, "version": value.Version})
	for _, listener := range c.listenersSnapshot() {
		listener.CountHasChanged(value)
	}
}

// cache records the outcome of our own write, unless a newer version has
// already been seen.
func (c *SharedCount) cache(value VersionedValue) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if value.Version >= c.current.Version {
		c.current = value
	}
}

// replace records what the store just returned. A lower version than the
// cached one means the node was deleted and recreated, so it still wins.
func (c *SharedCount) replace(value VersionedValue) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.current = value
}

func (c *SharedCount) forget() {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.current.Version = -1
}

// GetCount reads the count from the store.
func (c *SharedCount) GetCount() (VersionedValue, error) {
	node, err := c.adapter.Get(c.countPath)
	if storeadapter.IsKeyNotFoundError(err) {
		c.forget()
	}
	if err != nil {
		return VersionedValue{}, err
	}

	value := VersionedValue{Version: node.Version, Value: decodeInt32(node.Value)}
	c.replace(value)
	return value, nil
}

// Count is the last value this instance read or wrote; it may be stale.
func (c *SharedCount) Count() int32 {
	return c.VersionedValue().Value
}

func (c *SharedCount) VersionedValue() VersionedValue {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.current
}

func (c *SharedCount) SetCount(count int32) error {
	version, err := c.adapter.Set(c.countPath, encodeInt32(count), storeadapter.AnyVersion)
	if storeadapter.IsKeyNotFoundError(err) {
		err = c.create(count)
		if err == nil {
			_, err = c.GetCount()
			return err
		}
	}
	if err != nil {
		c.logger.Error("set-count.failed", err)
		return err
	}

	c.cache(VersionedValue{Version: version, Value: count})
	return nil
}

// TrySetCount writes count only if the stored version still equals
// previous.Version. A stale version fails without retrying and leaves the
// stored value alone.
func (c *SharedCount) TrySetCount(previous VersionedValue, count int32) (bool, error) {
	version, err := c.adapter.Set(c.countPath, encodeInt32(count), previous.Version)
	if storeadapter.IsVersionMismatchError(err) {
		c.logger.Info("try-set-count.stale-version", lager.Data{"version": previous.Version})
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.cache(VersionedValue{Version: version, Value: count})
	return true, nil
}

func encodeInt32(value int32) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, uint32(value))
	return data
}

func decodeInt32(data []byte) int32 {
	if len(data) < 4 {
		return 0
	}
	return int32(binary.BigEndian.Uint32(data))
}
