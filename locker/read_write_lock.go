package locker

import (
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

// ReadWriteLock queues readers and writers under one path. A writer holds
// only at the head of the queue; a reader holds once every writer queued
// ahead of it is gone.
type ReadWriteLock struct {
	readLock  *Mutex
	writeLock *Mutex
}

func NewReadWriteLock(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, lockPath string) *ReadWriteLock {
	logger = logger.Session("read-write-lock")

	return &ReadWriteLock{
		readLock:  newMutex(adapter, clock, logger.Session("read"), lockPath, nodepath.ReadPrefix, readerHolds),
		writeLock: newMutex(adapter, clock, logger.Session("write"), lockPath, nodepath.WritePrefix, lowestHolds),
	}
}

func (rw *ReadWriteLock) ReadLock() *Mutex {
	return rw.readLock
}

func (rw *ReadWriteLock) WriteLock() *Mutex {
	return rw.writeLock
}

func (rw *ReadWriteLock) PerformRead(timeout time.Duration, read func() error) (bool, error) {
	return rw.readLock.WithLock(timeout, read)
}

func (rw *ReadWriteLock) PerformWrite(timeout time.Duration, write func() error) (bool, error) {
	return rw.writeLock.WithLock(timeout, write)
}

func readerHolds(candidates nodepath.Candidates, index int) (bool, string) {
	for i := index - 1; i >= 0; i-- {
		if candidates[i].Prefix == nodepath.WritePrefix {
			return false, candidates[i].Name
		}
	}
	return true, ""
}
