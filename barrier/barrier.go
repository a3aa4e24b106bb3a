package barrier

import (
	"path"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

// Barrier blocks waiters for as long as its node exists.
type Barrier struct {
	adapter     storeadapter.StoreAdapter
	clock       clock.Clock
	logger      lager.Logger
	barrierPath string
}

func NewBarrier(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, barrierPath string) *Barrier {
	return &Barrier{
		adapter:     adapter,
		clock:       clock,
		logger:      logger.Session("barrier", lager.Data{"path": barrierPath}),
		barrierPath: barrierPath,
	}
}

func (b *Barrier) Set() error {
	_, err := b.adapter.Create(b.barrierPath, []byte{}, storeadapter.Persistent)
	if storeadapter.IsKeyNotFoundError(err) {
		err = b.adapter.EnsureDir(path.Dir(b.barrierPath))
		if err != nil {
			return err
		}
		_, err = b.adapter.Create(b.barrierPath, []byte{}, storeadapter.Persistent)
	}

	if err != nil && !storeadapter.IsNodeExistsError(err) {
		b.logger.Error("set.failed", err)
		return err
	}

	b.logger.Info("set")
	return nil
}

func (b *Barrier) Remove() error {
	err := b.adapter.Delete(b.barrierPath, storeadapter.AnyVersion)
	if err != nil && !storeadapter.IsKeyNotFoundError(err) {
		b.logger.Error("remove.failed", err)
		return err
	}

	b.logger.Info("removed")
	return nil
}

func (b *Barrier) IsSet() (bool, error) {
	return b.adapter.Exists(b.barrierPath)
}

// WaitOnBarrier blocks until the barrier is removed or timeout passes;
// timeout <= 0 waits forever. It returns false on timeout.
func (b *Barrier) WaitOnBarrier(timeout time.Duration) (bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := b.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C()
	}

	for {
		exists, events, err := b.adapter.ExistsAndWatch(b.barrierPath)
		if err != nil {
			return false, err
		}
		if !exists {
			return true, nil
		}

		select {
		case <-events:
		case <-deadline:
			b.logger.Info("wait.timed-out")
			return false, nil
		}
	}
}
