package storeadapter

import "github.com/samuel/go-zookeeper/zk"

func (adapter *ZookeeperStoreAdapter) TrackSession(events <-chan zk.Event, sessionID func() int64) {
	adapter.trackSession(events, sessionID)
}
