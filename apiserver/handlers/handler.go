package handlers

import (
	"net/http"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/apiserver"
	"github.com/cloudfoundry/zkrecipes/barrier"
	"github.com/cloudfoundry/zkrecipes/counter"
	"github.com/cloudfoundry/zkrecipes/leader"
	"github.com/cloudfoundry/zkrecipes/locker"
	"github.com/cloudfoundry/zkrecipes/queue"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
	"github.com/tedsuo/rata"
)

// Recipes is everything the API drives. NewDoubleBarrier is called each time
// a double barrier is (re)created with a member quantity.
type Recipes struct {
	Adapter            storeadapter.StoreAdapter
	LeaderAnnouncePath string

	Lock             *locker.Mutex
	ReadWriteLock    *locker.ReadWriteLock
	Latch            *leader.Latch
	Selector         *leader.Selector
	Barrier          *barrier.Barrier
	NewDoubleBarrier func(memberQty int) *barrier.DoubleBarrier
	SharedCount      *counter.SharedCount
	AtomicCounter    *counter.AtomicCounter
	CounterEvents    *counter.EventRecorder
	Queue            *queue.Queue
	ConsumedMessages *queue.MessageLog
}

func New(logger lager.Logger, clock clock.Clock, recipes *Recipes) (http.Handler, error) {
	r := &responder{logger: logger.Session("api"), clock: clock}

	leaders := &leaderHandler{responder: r, recipes: recipes}
	locks := &lockHandler{responder: r, recipes: recipes, resources: map[string]string{}}
	barriers := &barrierHandler{responder: r, recipes: recipes}
	counters := &counterHandler{responder: r, recipes: recipes}
	queues := &queueHandler{responder: r, recipes: recipes}

	handlers := rata.Handlers{
		apiserver.LeaderRoute:               http.HandlerFunc(leaders.announcedLeader),
		apiserver.LeaderLatchStatusRoute:    http.HandlerFunc(leaders.latchStatus),
		apiserver.LeaderSelectorStatusRoute: http.HandlerFunc(leaders.selectorStatus),

		apiserver.LockAcquireRoute:         http.HandlerFunc(locks.acquire),
		apiserver.LockReleaseRoute:         http.HandlerFunc(locks.release),
		apiserver.LockStatusRoute:          http.HandlerFunc(locks.status),
		apiserver.LockCriticalSectionRoute: http.HandlerFunc(locks.criticalSection),

		apiserver.ReadLockAcquireRoute:  http.HandlerFunc(locks.acquireRead),
		apiserver.ReadLockReleaseRoute:  http.HandlerFunc(locks.releaseRead),
		apiserver.WriteLockAcquireRoute: http.HandlerFunc(locks.acquireWrite),
		apiserver.WriteLockReleaseRoute: http.HandlerFunc(locks.releaseWrite),
		apiserver.ReadWriteStatusRoute:  http.HandlerFunc(locks.readWriteStatus),
		apiserver.PerformReadRoute:      http.HandlerFunc(locks.performRead),
		apiserver.PerformWriteRoute:     http.HandlerFunc(locks.performWrite),

		apiserver.BarrierSetRoute:          http.HandlerFunc(barriers.set),
		apiserver.BarrierRemoveRoute:       http.HandlerFunc(barriers.remove),
		apiserver.BarrierWaitRoute:         http.HandlerFunc(barriers.wait),
		apiserver.DoubleBarrierCreateRoute: http.HandlerFunc(barriers.createDouble),
		apiserver.DoubleBarrierEnterRoute:  http.HandlerFunc(barriers.enterDouble),
		apiserver.DoubleBarrierLeaveRoute:  http.HandlerFunc(barriers.leaveDouble),

		apiserver.SharedCountGetRoute:         http.HandlerFunc(counters.getShared),
		apiserver.SharedCountSetRoute:         http.HandlerFunc(counters.setShared),
		apiserver.SharedCountIncrementRoute:   http.HandlerFunc(counters.incrementShared),
		apiserver.AtomicCounterGetRoute:       http.HandlerFunc(counters.getAtomic),
		apiserver.AtomicCounterIncrementRoute: http.HandlerFunc(counters.incrementAtomic),
		apiserver.AtomicCounterDecrementRoute: http.HandlerFunc(counters.decrementAtomic),
		apiserver.AtomicCounterAddRoute:       http.HandlerFunc(counters.addAtomic),
		apiserver.AtomicCounterSetRoute:       http.HandlerFunc(counters.setAtomic),
		apiserver.CounterEventsRoute:          http.HandlerFunc(counters.events),
		apiserver.CounterEventsClearRoute:     http.HandlerFunc(counters.clearEvents),

		apiserver.QueuePutRoute:      http.HandlerFunc(queues.put),
		apiserver.QueueMessagesRoute: http.HandlerFunc(queues.messages),
		apiserver.QueueClearRoute:    http.HandlerFunc(queues.clear),

		apiserver.RecipesRoute: http.HandlerFunc(r.catalogue),
	}

	return rata.NewRouter(apiserver.Routes, handlers)
}
