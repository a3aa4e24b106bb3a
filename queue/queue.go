package queue

import (
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

// Queue appends items as persistent sequential children of its path.
type Queue struct {
	adapter   storeadapter.StoreAdapter
	logger    lager.Logger
	queuePath string
}

func NewQueue(adapter storeadapter.StoreAdapter, logger lager.Logger, queuePath string) *Queue {
	return &Queue{
		adapter:   adapter,
		logger:    logger.Session("queue", lager.Data{"path": queuePath}),
		queuePath: queuePath,
	}
}

// Put stores item and returns the key it was stored under.
func (q *Queue) Put(item []byte) (string, error) {
	prefix := nodepath.QueueItemPrefix(q.queuePath)

	key, err := q.adapter.Create(prefix, item, storeadapter.PersistentSequential)
	if storeadapter.IsKeyNotFoundError(err) {
		err = q.adapter.EnsureDir(q.queuePath)
		if err != nil {
			return "", err
		}
		key, err = q.adapter.Create(prefix, item, storeadapter.PersistentSequential)
	}
	if err != nil {
		q.logger.Error("put.failed", err)
		return "", err
	}

	q.logger.Debug("put", lager.Data{"key": key})
	return key, nil
}

// Size counts the items not yet claimed by a consumer.
func (q *Queue) Size() (int, error) {
	children, err := q.adapter.Children(q.queuePath)
	if storeadapter.IsKeyNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(nodepath.SortedCandidates(children).WithPrefix(nodepath.QueuePrefix)), nil
}
