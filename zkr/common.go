package zkr

import (
	"fmt"
	"os"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/apiserver/handlers"
	"github.com/cloudfoundry/zkrecipes/barrier"
	"github.com/cloudfoundry/zkrecipes/config"
	"github.com/cloudfoundry/zkrecipes/counter"
	"github.com/cloudfoundry/zkrecipes/leader"
	"github.com/cloudfoundry/zkrecipes/locker"
	"github.com/cloudfoundry/zkrecipes/queue"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

const counterEventCapacity = 100

func connectToStoreAdapter(l lager.Logger, conf *config.Config) storeadapter.StoreAdapter {
	adapter := storeadapter.NewZookeeperStoreAdapter(conf.StoreURLs, conf.StoreMaxConcurrentRequests, conf.StoreConnectionTimeout())
	err := adapter.Connect()
	if err != nil {
		l.Error("failed-to-connect-to-store", err)
		os.Exit(1)
	}

	return adapter
}

func participantID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// BuildRecipes wires one instance of every recipe onto the configured paths.
// The long-running ones are returned alongside for the caller to run.
func BuildRecipes(l lager.Logger, clock clock.Clock, adapter storeadapter.StoreAdapter, conf *config.Config, id string) (*handlers.Recipes, *Runners) {
	var promoted *counter.PromotedToLock
	if conf.AtomicCounterPromoteToLock {
		promoted = &counter.PromotedToLock{
			Timeout: conf.AtomicCounterLockTimeout(),
			Policy:  conf.RetryPolicy(),
		}
	}

	recipes := &handlers.Recipes{
		Adapter:            adapter,
		LeaderAnnouncePath: conf.LeaderAnnouncePath,
		Lock:               locker.NewMutex(adapter, clock, l, conf.LockPath),
		ReadWriteLock:      locker.NewReadWriteLock(adapter, clock, l, conf.ReadWriteLockPath),
		Latch:              leader.NewLatch(adapter, clock, l, conf.LeaderLatchPath, id),
		Selector: leader.NewSelector(adapter, clock, l, conf.LeaderSelectorPath, conf.LeaderSelectorAutoRequeue,
			leader.AnnounceLeader(adapter, conf.LeaderAnnouncePath, []byte(id))),
		Barrier: barrier.NewBarrier(adapter, clock, l, conf.BarrierPath),
		NewDoubleBarrier: func(memberQty int) *barrier.DoubleBarrier {
			return barrier.NewDoubleBarrier(adapter, clock, l, conf.DoubleBarrierPath, memberQty)
		},
		SharedCount:      counter.NewSharedCount(adapter, clock, l, conf.SharedCountPath, 0),
		AtomicCounter:    counter.NewAtomicCounter(adapter, clock, l, conf.AtomicCounterPath, conf.RetryPolicy(), promoted),
		CounterEvents:    counter.NewEventRecorder(clock, counterEventCapacity),
		Queue:            queue.NewQueue(adapter, l, conf.QueuePath),
		ConsumedMessages: queue.NewMessageLog(),
	}
	recipes.SharedCount.AddListener(recipes.CounterEvents)

	runners := &Runners{
		Latch:       recipes.Latch,
		Selector:    recipes.Selector,
		SharedCount: recipes.SharedCount,
		Consumer: queue.NewConsumer(adapter, clock, l, conf.QueuePath, recipes.ConsumedMessages,
			conf.QueueMaxConcurrentConsumers),
	}

	return recipes, runners
}

type Runners struct {
	Latch       *leader.Latch
	Selector    *leader.Selector
	SharedCount *counter.SharedCount
	Consumer    *queue.Consumer
}
