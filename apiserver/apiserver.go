package apiserver

import "github.com/tedsuo/rata"

const (
	LeaderRoute               = "leader"
	LeaderLatchStatusRoute    = "leader_latch_status"
	LeaderSelectorStatusRoute = "leader_selector_status"

	LockAcquireRoute         = "lock_acquire"
	LockReleaseRoute         = "lock_release"
	LockStatusRoute          = "lock_status"
	LockCriticalSectionRoute = "lock_critical_section"

	ReadLockAcquireRoute  = "rwlock_read_acquire"
	ReadLockReleaseRoute  = "rwlock_read_release"
	WriteLockAcquireRoute = "rwlock_write_acquire"
	WriteLockReleaseRoute = "rwlock_write_release"
	ReadWriteStatusRoute  = "rwlock_status"
	PerformReadRoute      = "rwlock_read"
	PerformWriteRoute     = "rwlock_write"

	BarrierSetRoute    = "barrier_set"
	BarrierRemoveRoute = "barrier_remove"
	BarrierWaitRoute   = "barrier_wait"

	DoubleBarrierCreateRoute = "double_barrier_create"
	DoubleBarrierEnterRoute  = "double_barrier_enter"
	DoubleBarrierLeaveRoute  = "double_barrier_leave"

	SharedCountGetRoute       = "shared_count_get"
	SharedCountSetRoute       = "shared_count_set"
	SharedCountIncrementRoute = "shared_count_increment"

	AtomicCounterGetRoute       = "atomic_counter_get"
	AtomicCounterIncrementRoute = "atomic_counter_increment"
	AtomicCounterDecrementRoute = "atomic_counter_decrement"
	AtomicCounterAddRoute       = "atomic_counter_add"
	AtomicCounterSetRoute       = "atomic_counter_set"

	CounterEventsRoute      = "counter_events"
	CounterEventsClearRoute = "counter_events_clear"

	QueuePutRoute      = "queue_put"
	QueueMessagesRoute = "queue_messages"
	QueueClearRoute    = "queue_clear"

	RecipesRoute = "recipes"
)

var Routes = rata.Routes{
	{Path: "/zk-test/leader", Method: "GET", Name: LeaderRoute},
	{Path: "/zk-test/leader-latch/status", Method: "GET", Name: LeaderLatchStatusRoute},
	{Path: "/zk-test/leader-selector/status", Method: "GET", Name: LeaderSelectorStatusRoute},

	{Path: "/zk-test/lock/acquire", Method: "POST", Name: LockAcquireRoute},
	{Path: "/zk-test/lock/release", Method: "POST", Name: LockReleaseRoute},
	{Path: "/zk-test/lock/status", Method: "GET", Name: LockStatusRoute},
	{Path: "/zk-test/lock/critical-section", Method: "POST", Name: LockCriticalSectionRoute},

	{Path: "/zk-test/rwlock/read/acquire", Method: "POST", Name: ReadLockAcquireRoute},
	{Path: "/zk-test/rwlock/read/release", Method: "POST", Name: ReadLockReleaseRoute},
	{Path: "/zk-test/rwlock/write/acquire", Method: "POST", Name: WriteLockAcquireRoute},
	{Path: "/zk-test/rwlock/write/release", Method: "POST", Name: WriteLockReleaseRoute},
	{Path: "/zk-test/rwlock/status", Method: "GET", Name: ReadWriteStatusRoute},
	{Path: "/zk-test/rwlock/read", Method: "POST", Name: PerformReadRoute},
	{Path: "/zk-test/rwlock/write", Method: "POST", Name: PerformWriteRoute},

	{Path: "/zk-test/barrier/set", Method: "POST", Name: BarrierSetRoute},
	{Path: "/zk-test/barrier/remove", Method: "POST", Name: BarrierRemoveRoute},
	{Path: "/zk-test/barrier/wait", Method: "POST", Name: BarrierWaitRoute},

	{Path: "/zk-test/double-barrier/create", Method: "POST", Name: DoubleBarrierCreateRoute},
	{Path: "/zk-test/double-barrier/enter", Method: "POST", Name: DoubleBarrierEnterRoute},
	{Path: "/zk-test/double-barrier/leave", Method: "POST", Name: DoubleBarrierLeaveRoute},

	{Path: "/zk-test/counter/shared/get", Method: "GET", Name: SharedCountGetRoute},
	{Path: "/zk-test/counter/shared/set", Method: "POST", Name: SharedCountSetRoute},
	{Path: "/zk-test/counter/shared/increment", Method: "POST", Name: SharedCountIncrementRoute},

	{Path: "/zk-test/counter/atomic/get", Method: "GET", Name: AtomicCounterGetRoute},
	{Path: "/zk-test/counter/atomic/increment", Method: "POST", Name: AtomicCounterIncrementRoute},
	{Path: "/zk-test/counter/atomic/decrement", Method: "POST", Name: AtomicCounterDecrementRoute},
	{Path: "/zk-test/counter/atomic/add", Method: "POST", Name: AtomicCounterAddRoute},
	{Path: "/zk-test/counter/atomic/set", Method: "POST", Name: AtomicCounterSetRoute},

	{Path: "/zk-test/counter/events", Method: "GET", Name: CounterEventsRoute},
	{Path: "/zk-test/counter/events/clear", Method: "POST", Name: CounterEventsClearRoute},

	{Path: "/zk-test/queue/put", Method: "POST", Name: QueuePutRoute},
	{Path: "/zk-test/queue/messages", Method: "GET", Name: QueueMessagesRoute},
	{Path: "/zk-test/queue/clear", Method: "POST", Name: QueueClearRoute},

	{Path: "/zk-test/recipes", Method: "GET", Name: RecipesRoute},
}
