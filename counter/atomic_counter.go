package counter

import (
	"encoding/binary"
	"path"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/helpers/retry"
	"github.com/cloudfoundry/zkrecipes/locker"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

// AtomicValue reports the outcome of one counter operation. PostValue is
// only meaningful when Succeeded is true.
type AtomicValue struct {
	Succeeded bool  `json:"succeeded"`
	PreValue  int64 `json:"pre_value"`
	PostValue int64 `json:"post_value"`
}

// PromotedToLock configures the pessimistic fallback taken once optimistic
// retries are exhausted. LockPath defaults to the counter path plus "-lock".
type PromotedToLock struct {
	LockPath string
	Timeout  time.Duration
	Policy   retry.Policy
}

// AtomicCounter is an int64 counter updated by versioned compare-and-set.
type AtomicCounter struct {
	adapter     storeadapter.StoreAdapter
	clock       clock.Clock
	logger      lager.Logger
	counterPath string
	policy      retry.Policy
	promoted    *PromotedToLock
	lock        *locker.Mutex
}

func NewAtomicCounter(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, counterPath string, policy retry.Policy, promoted *PromotedToLock) *AtomicCounter {
	logger = logger.Session("atomic-counter", lager.Data{"path": counterPath})

	counter := &AtomicCounter{
		adapter:     adapter,
		clock:       clock,
		logger:      logger,
		counterPath: counterPath,
		policy:      policy,
		promoted:    promoted,
	}

	if promoted != nil {
		lockPath := promoted.LockPath
		if lockPath == "" {
			lockPath = counterPath + "-lock"
		}
		counter.lock = locker.NewMutex(adapter, clock, logger, lockPath)
	}

	return counter
}

func (c *AtomicCounter) Get() (AtomicValue, error) {
	node, err := c.adapter.Get(c.counterPath)
	if storeadapter.IsKeyNotFoundError(err) {
		return AtomicValue{Succeeded: true}, nil
	}
	if err != nil {
		return AtomicValue{}, err
	}

	value := decodeInt64(node.Value)
	return AtomicValue{Succeeded: true, PreValue: value, PostValue: value}, nil
}

// Initialize creates the counter with value unless it already exists, and
// reports whether it did.
func (c *AtomicCounter) Initialize(value int64) (bool, error) {
	err := c.create(value)
	if storeadapter.IsNodeExistsError(err) {
		return false, nil
	}
	return err == nil, err
}

func (c *AtomicCounter) Increment() (AtomicValue, error) {
	return c.Add(1)
}

func (c *AtomicCounter) Decrement() (AtomicValue, error) {
	return c.Add(-1)
}

func (c *AtomicCounter) Add(delta int64) (AtomicValue, error) {
	return c.modify("add", func(current int64) (int64, bool) {
		return current + delta, true
	})
}

// CompareAndSet fails straight away when the counter does not hold
// expected; only lost version races are retried.
func (c *AtomicCounter) CompareAndSet(expected int64, newValue int64) (AtomicValue, error) {
	return c.modify("compare-and-set", func(current int64) (int64, bool) {
		return newValue, current == expected
	})
}

// TrySet sets the counter regardless of its current value.
func (c *AtomicCounter) TrySet(newValue int64) (AtomicValue, error) {
	return c.modify("try-set", func(int64) (int64, bool) {
		return newValue, true
	})
}

func (c *AtomicCounter) modify(operation string, makeValue func(current int64) (int64, bool)) (AtomicValue, error) {
	logger := c.logger.Session(operation)
	result := AtomicValue{}

	done, err := c.policy.Run(c.clock, func() (bool, error) {
		return c.attempt(makeValue, &result)
	})
	if err != nil {
		logger.Error("failed", err)
		return result, err
	}
	if done || c.lock == nil {
		if !done {
			logger.Info("retries-exhausted")
		}
		return result, nil
	}

	logger.Info("promoting-to-lock")

	acquired, err := c.lock.Acquire(c.promoted.Timeout)
	if !acquired {
		logger.Info("lock-not-acquired")
		return result, err
	}
	defer c.lock.Release()

	done, err = c.promoted.Policy.Run(c.clock, func() (bool, error) {
		return c.attempt(makeValue, &result)
	})
	if err != nil {
		logger.Error("failed-under-lock", err)
		return result, err
	}
	if !done {
		logger.Info("retries-exhausted-under-lock")
	}
	return result, nil
}

// attempt makes one optimistic try. It reports done when the outcome is
// final, successful or not, and false when a concurrent writer won a race.
func (c *AtomicCounter) attempt(makeValue func(int64) (int64, bool), result *AtomicValue) (bool, error) {
	result.Succeeded = false
	result.PostValue = 0

	node, err := c.adapter.Get(c.counterPath)
	exists := true
	if storeadapter.IsKeyNotFoundError(err) {
		exists = false
	} else if err != nil {
		return false, err
	}

	current := decodeInt64(node.Value)
	result.PreValue = current

	newValue, ok := makeValue(current)
	if !ok {
		return true, nil
	}

	if exists {
		_, err = c.adapter.Set(c.counterPath, encodeInt64(newValue), node.Version)
	} else {
		err = c.create(newValue)
	}

	if storeadapter.IsVersionMismatchError(err) || storeadapter.IsNodeExistsError(err) || storeadapter.IsKeyNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	result.Succeeded = true
	result.PostValue = newValue
	return true, nil
}

func (c *AtomicCounter) create(value int64) error {
	_, err := c.adapter.Create(c.counterPath, encodeInt64(value), storeadapter.Persistent)
	if storeadapter.IsKeyNotFoundError(err) {
		err = c.adapter.EnsureDir(path.Dir(c.counterPath))
		if err != nil {
			return err
		}
		_, err = c.adapter.Create(c.counterPath, encodeInt64(value), storeadapter.Persistent)
	}
	return err
}

func encodeInt64(value int64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, uint64(value))
	return data
}

func decodeInt64(data []byte) int64 {
	if len(data) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}
