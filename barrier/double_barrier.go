package barrier

import (
	"path"
	"sort"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
	"github.com/nu7hatch/gouuid"
)

// DoubleBarrier lets memberQty participants enter together and leave
// together. Members are ephemeral children of the barrier path; the ready
// node marks a full house.
type DoubleBarrier struct {
	adapter     storeadapter.StoreAdapter
	clock       clock.Clock
	logger      lager.Logger
	barrierPath string
	readyPath   string
	memberQty   int
	id          string
	ourPath     string
}

func NewDoubleBarrier(adapter storeadapter.StoreAdapter, clock clock.Clock, logger lager.Logger, barrierPath string, memberQty int) *DoubleBarrier {
	guid, err := uuid.NewV4()
	if err != nil {
		panic("failed to construct uuid: " + err.Error())
	}

	return &DoubleBarrier{
		adapter:     adapter,
		clock:       clock,
		logger:      logger.Session("double-barrier", lager.Data{"path": barrierPath, "id": guid.String()}),
		barrierPath: barrierPath,
		readyPath:   path.Join(barrierPath, nodepath.ReadyNode),
		memberQty:   memberQty,
		id:          guid.String(),
		ourPath:     path.Join(barrierPath, guid.String()),
	}
}

func (b *DoubleBarrier) ID() string {
	return b.id
}

func (b *DoubleBarrier) MemberQty() int {
	return b.memberQty
}

// Enter joins the barrier and waits until memberQty members have joined.
// On timeout it returns false and stays registered.
func (b *DoubleBarrier) Enter(timeout time.Duration) (bool, error) {
	deadline, stop := b.deadline(timeout)
	defer stop()

	err := b.adapter.EnsureDir(b.barrierPath)
	if err != nil {
		return false, err
	}

	_, err = b.adapter.Create(b.ourPath, []byte{}, storeadapter.Ephemeral)
	if err != nil && !storeadapter.IsNodeExistsError(err) {
		b.logger.Error("enter.failed-to-join", err)
		return false, err
	}

	for {
		ready, readyEvents, err := b.adapter.ExistsAndWatch(b.readyPath)
		if err != nil {
			return false, err
		}
		if ready {
			b.logger.Info("enter.ready")
			return true, nil
		}

		members, err := b.Members()
		if err != nil {
			return false, err
		}

		if len(members) >= b.memberQty {
			_, err := b.adapter.Create(b.readyPath, []byte{}, storeadapter.Persistent)
			if err != nil && !storeadapter.IsNodeExistsError(err) {
				return false, err
			}
			b.logger.Info("enter.completed-the-group", lager.Data{"members": len(members)})
			return true, nil
		}

		select {
		case <-readyEvents:
		case <-deadline:
			b.logger.Info("enter.timed-out", lager.Data{"members": len(members)})
			return false, nil
		}
	}
}

// Leave withdraws from the barrier and waits until every member has. The
// lowest member leaves last: it waits on the highest, everyone else removes
// itself and waits on the lowest.
func (b *DoubleBarrier) Leave(timeout time.Duration) (bool, error) {
	deadline, stop := b.deadline(timeout)
	defer stop()

	ourNodeShouldExist := true

	for {
		members, err := b.Members()
		if err != nil {
			return false, err
		}

		ourIndex := sort.SearchStrings(members, b.id)
		present := ourIndex < len(members) && members[ourIndex] == b.id

		if len(members) == 0 {
			break
		}

		if len(members) == 1 {
			if present {
				err := b.deleteOurNode()
				if err != nil {
					return false, err
				}
			}
			break
		}

		var watchPath string
		if present && ourIndex == 0 {
			watchPath = path.Join(b.barrierPath, members[len(members)-1])
		} else {
			watchPath = path.Join(b.barrierPath, members[0])
			if ourNodeShouldExist {
				err := b.deleteOurNode()
				if err != nil {
					return false, err
				}
				ourNodeShouldExist = false
			}
		}

		exists, events, err := b.adapter.ExistsAndWatch(watchPath)
		if err != nil {
			return false, err
		}
		if !exists {
			continue
		}

		select {
		case <-events:
		case <-deadline:
			b.logger.Info("leave.timed-out", lager.Data{"members": len(members)})
			return false, nil
		}
	}

	b.cleanUp()
	b.logger.Info("leave.left")
	return true, nil
}

// Members lists the member ids currently in the barrier, sorted.
func (b *DoubleBarrier) Members() ([]string, error) {
	children, err := b.adapter.Children(b.barrierPath)
	if storeadapter.IsKeyNotFoundError(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	members := []string{}
	for _, child := range children {
		if child != nodepath.ReadyNode {
			members = append(members, child)
		}
	}
	sort.Strings(members)
	return members, nil
}

func (b *DoubleBarrier) deleteOurNode() error {
	err := b.adapter.Delete(b.ourPath, storeadapter.AnyVersion)
	if err != nil && !storeadapter.IsKeyNotFoundError(err) {
		b.logger.Error("leave.failed-to-withdraw", err)
		return err
	}
	return nil
}

func (b *DoubleBarrier) cleanUp() {
	err := b.adapter.Delete(b.readyPath, storeadapter.AnyVersion)
	if err != nil && !storeadapter.IsKeyNotFoundError(err) {
		b.logger.Error("leave.failed-to-delete-ready", err)
	}

	err = b.adapter.Delete(b.barrierPath, storeadapter.AnyVersion)
	if err != nil && !storeadapter.IsKeyNotFoundError(err) && !storeadapter.IsNodeNotEmptyError(err) {
		b.logger.Error("leave.failed-to-delete-barrier", err)
	}
}

func (b *DoubleBarrier) deadline(timeout time.Duration) (<-chan time.Time, func()) {
	if timeout <= 0 {
		return nil, func() {}
	}
	timer := b.clock.NewTimer(timeout)
	return timer.C(), func() { timer.Stop() }
}
