package storeadapter

// AnyVersion disables the version check on Delete and Set.
const AnyVersion int32 = -1

type StoreAdapter interface {
	Connect() error
	Disconnect() error

	// SessionID identifies the live session. It changes when a session
	// expires and a new one is established, and is 0 while there is none.
	SessionID() int64
	WatchSession() (<-chan SessionState, func())

	Create(key string, value []byte, mode CreateMode) (string, error)
	EnsureDir(key string) error
	Delete(key string, version int32) error

	Get(key string) (StoreNode, error)
	GetAndWatch(key string) (StoreNode, <-chan WatchEvent, error)
	Set(key string, value []byte, version int32) (int32, error)

	Exists(key string) (bool, error)
	ExistsAndWatch(key string) (bool, <-chan WatchEvent, error)

	Children(key string) ([]string, error)
	ChildrenAndWatch(key string) ([]string, <-chan WatchEvent, error)
}

type StoreNode struct {
	Key         string
	Value       []byte
	Version     int32
	Ephemeral   bool
	NumChildren int32
}

type CreateMode int

const (
	Persistent CreateMode = iota
	Ephemeral
	PersistentSequential
	EphemeralSequential
)

func (mode CreateMode) IsEphemeral() bool {
	return mode == Ephemeral || mode == EphemeralSequential
}

func (mode CreateMode) IsSequential() bool {
	return mode == PersistentSequential || mode == EphemeralSequential
}

type EventType int

const (
	EventNodeCreated EventType = iota + 1
	EventNodeDeleted
	EventNodeDataChanged
	EventNodeChildrenChanged
	EventNotWatching
)

func (eventType EventType) String() string {
	switch eventType {
	case EventNodeCreated:
		return "NodeCreated"
	case EventNodeDeleted:
		return "NodeDeleted"
	case EventNodeDataChanged:
		return "NodeDataChanged"
	case EventNodeChildrenChanged:
		return "NodeChildrenChanged"
	case EventNotWatching:
		return "NotWatching"
	}
	return "Unknown"
}

// WatchEvent is delivered at most once on a watch channel, after which the
// channel is closed. Watches must be re-registered to keep observing a key.
type WatchEvent struct {
	Type EventType
	Key  string
}
