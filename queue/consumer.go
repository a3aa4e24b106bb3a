package queue

import (
	"os"
	"path"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/helpers/workerpool"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

const retryInterval = time.Second

type QueueConsumer interface {
	ConsumeMessage(message []byte)
	StateChanged(state storeadapter.SessionState)
}

// Consumer claims items in sequence order by deleting them, and only then
// hands them to its QueueConsumer. An item is delivered at most once across
// all consumers; one claimed by a consumer that dies before processing it
// is lost. Stopping waits for messages already handed out.
type Consumer struct {
	adapter        storeadapter.StoreAdapter
	clock          clock.Clock
	logger         lager.Logger
	queuePath      string
	queueConsumer  QueueConsumer
	maxConcurrency int
}

func NewConsumer(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, queuePath string, queueConsumer QueueConsumer, maxConcurrency int) *Consumer {
	return &Consumer{
		adapter:        adapter,
		clock:          clock,
		logger:         logger.Session("queue-consumer", lager.Data{"path": queuePath}),
		queuePath:      queuePath,
		queueConsumer:  queueConsumer,
		maxConcurrency: maxConcurrency,
	}
}

func (c *Consumer) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	sessionStates, unsubscribe := c.adapter.WatchSession()
	defer unsubscribe()

	workers := c.maxConcurrency
	if workers < 1 {
		workers = 1
	}
	busy := make(chan struct{}, workers)

	pool := workerpool.NewWorkerPool(workers)
	defer pool.StopWorkers()

	c.logger.Info("started")
	close(ready)

	for {
		var retry <-chan time.Time

		children, events, err := c.adapter.ChildrenAndWatch(c.queuePath)
		if storeadapter.IsKeyNotFoundError(err) {
			err = c.adapter.EnsureDir(c.queuePath)
			if err == nil {
				continue
			}
		}

		if err != nil {
			c.logger.Error("watch.failed", err)
			retry = c.clock.After(retryInterval)
		} else {
			for _, item := range nodepath.SortedCandidates(children).WithPrefix(nodepath.QueuePrefix) {
				if !c.waitForWorker(busy, sessionStates, signals) {
					c.logger.Info("stopped")
					return nil
				}

				message, claimed := c.claim(item.Name)
				if !claimed {
					<-busy
					continue
				}
				pool.ScheduleWork(func() {
					defer func() { <-busy }()
					c.queueConsumer.ConsumeMessage(message)
				})
			}
		}

		select {
		case <-events:
		case <-retry:
		case state := <-sessionStates:
			c.stateChanged(state)
		case <-signals:
			c.logger.Info("stopped")
			return nil
		}
	}
}

// waitForWorker reserves a worker before anything is claimed, so an item is
// never taken off the queue without a worker to hand it to. It returns false
// if the consumer is signalled first.
func (c *Consumer) waitForWorker(busy chan<- struct{}, sessionStates <-chan storeadapter.SessionState, signals <-chan os.Signal) bool {
	for {
		select {
		case busy <- struct{}{}:
			return true
		case state := <-sessionStates:
			c.stateChanged(state)
		case <-signals:
			return false
		}
	}
}

func (c *Consumer) stateChanged(state storeadapter.SessionState) {
	c.logger.Info("session-state-changed", lager.Data{"state": state.String()})
	c.queueConsumer.StateChanged(state)
}

// claim reads an item and deletes it; whoever deletes it owns it.
func (c *Consumer) claim(name string) ([]byte, bool) {
	itemPath := path.Join(c.queuePath, name)

	node, err := c.adapter.Get(itemPath)
	if err != nil {
		if !storeadapter.IsKeyNotFoundError(err) {
			c.logger.Error("claim.failed-to-read", err, lager.Data{"item": name})
		}
		return nil, false
	}

	err = c.adapter.Delete(itemPath, storeadapter.AnyVersion)
	if err != nil {
		if !storeadapter.IsKeyNotFoundError(err) {
			c.logger.Error("claim.failed-to-delete", err, lager.Data{"item": name})
		}
		return nil, false
	}

	c.logger.Debug("claimed", lager.Data{"item": name})
	return node.Value, true
}
