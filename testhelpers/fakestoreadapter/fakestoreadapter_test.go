package fakestoreadapter_test

import (
	"errors"

	"github.com/cloudfoundry/zkrecipes/storeadapter"
	. "github.com/cloudfoundry/zkrecipes/testhelpers/fakestoreadapter"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("FakeStoreAdapter", func() {
	var (
		ensemble *FakeEnsemble
		adapter  *FakeStoreAdapter
		other    *FakeStoreAdapter
	)

	BeforeEach(func() {
		ensemble = NewFakeEnsemble()
		adapter = ensemble.NewSession()
		other = ensemble.NewSession()
	})

	It("gives every session its own id", func() {
		Ω(adapter.SessionID()).ShouldNot(BeZero())
		Ω(other.SessionID()).ShouldNot(Equal(adapter.SessionID()))
	})

	Describe("creating nodes", func() {
		It("requires the parent to exist", func() {
			_, err := adapter.Create("/a/b", []byte("x"), storeadapter.Persistent)
			Ω(err).Should(Equal(storeadapter.ErrorKeyNotFound))

			Ω(adapter.EnsureDir("/a")).Should(Succeed())
			key, err := adapter.Create("/a/b", []byte("x"), storeadapter.Persistent)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(key).Should(Equal("/a/b"))
		})

		It("refuses to create a node twice", func() {
			_, err := adapter.Create("/a", nil, storeadapter.Persistent)
			Ω(err).ShouldNot(HaveOccurred())
			_, err = other.Create("/a", nil, storeadapter.Persistent)
			Ω(err).Should(Equal(storeadapter.ErrorNodeExists))
		})

		It("orders sequential children across sessions", func() {
			adapter.EnsureDir("/locks/l")
			first, _ := adapter.Create("/locks/l/lock-", nil, storeadapter.EphemeralSequential)
			second, _ := other.Create("/locks/l/lock-", nil, storeadapter.EphemeralSequential)

			Ω(first).Should(Equal("/locks/l/lock-0000000000"))
			Ω(second).Should(Equal("/locks/l/lock-0000000001"))

			children, err := adapter.Children("/locks/l")
			Ω(err).ShouldNot(HaveOccurred())
			Ω(children).Should(Equal([]string{"lock-0000000000", "lock-0000000001"}))
		})
	})

	Describe("versions", func() {
		BeforeEach(func() {
			adapter.Create("/counter", []byte{0}, storeadapter.Persistent)
		})

		It("bumps the version on every set and rejects stale versions", func() {
			version, err := adapter.Set("/counter", []byte{1}, 0)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(version).Should(BeNumerically("==", 1))

			_, err = other.Set("/counter", []byte{2}, 0)
			Ω(err).Should(Equal(storeadapter.ErrorVersionMismatch))

			node, _ := other.Get("/counter")
			Ω(node.Value).Should(Equal([]byte{1}))
			Ω(node.Version).Should(BeNumerically("==", 1))
		})

		It("honours versions on delete", func() {
			Ω(adapter.Delete("/counter", 3)).Should(Equal(storeadapter.ErrorVersionMismatch))
			Ω(adapter.Delete("/counter", 0)).Should(Succeed())
			Ω(adapter.Delete("/counter", storeadapter.AnyVersion)).Should(Equal(storeadapter.ErrorKeyNotFound))
		})

		It("won't delete a node with children", func() {
			adapter.Create("/counter/child", nil, storeadapter.Persistent)
			Ω(adapter.Delete("/counter", storeadapter.AnyVersion)).Should(Equal(storeadapter.ErrorNodeNotEmpty))
		})
	})

	Describe("watches", func() {
		It("fires a data watch once on delete", func() {
			adapter.Create("/node", nil, storeadapter.Persistent)
			_, events, err := other.GetAndWatch("/node")
			Ω(err).ShouldNot(HaveOccurred())

			adapter.Delete("/node", storeadapter.AnyVersion)

			var event storeadapter.WatchEvent
			Eventually(events).Should(Receive(&event))
			Ω(event).Should(Equal(storeadapter.WatchEvent{Type: storeadapter.EventNodeDeleted, Key: "/node"}))
			Eventually(events).Should(BeClosed())
		})

		It("fires an exists watch when the node appears", func() {
			exists, events, err := other.ExistsAndWatch("/ready")
			Ω(err).ShouldNot(HaveOccurred())
			Ω(exists).Should(BeFalse())

			adapter.Create("/ready", nil, storeadapter.Persistent)

			var event storeadapter.WatchEvent
			Eventually(events).Should(Receive(&event))
			Ω(event.Type).Should(Equal(storeadapter.EventNodeCreated))
		})

		It("fires a child watch when children change", func() {
			adapter.EnsureDir("/queue")
			_, events, err := other.ChildrenAndWatch("/queue")
			Ω(err).ShouldNot(HaveOccurred())
			Ω(ensemble.WatchCount("/queue")).Should(Equal(1))

			adapter.Create("/queue/qn-", nil, storeadapter.PersistentSequential)

			var event storeadapter.WatchEvent
			Eventually(events).Should(Receive(&event))
			Ω(event.Type).Should(Equal(storeadapter.EventNodeChildrenChanged))
			Ω(ensemble.WatchCount("/queue")).Should(BeZero())
		})

		It("does not watch a missing node on GetAndWatch", func() {
			_, events, err := adapter.GetAndWatch("/missing")
			Ω(err).Should(Equal(storeadapter.ErrorKeyNotFound))
			Ω(events).Should(BeNil())
		})
	})

	Describe("session expiry", func() {
		var sessionStates <-chan storeadapter.SessionState

		BeforeEach(func() {
			sessionStates, _ = adapter.WatchSession()
			adapter.Create("/mine", nil, storeadapter.Ephemeral)
			adapter.Create("/durable", nil, storeadapter.Persistent)
		})

		It("removes the session's ephemeral nodes and keeps persistent ones", func() {
			_, deleted, _ := other.GetAndWatch("/mine")
			oldSessionID := adapter.SessionID()

			adapter.ExpireSession()

			Ω(adapter.SessionID()).ShouldNot(Equal(oldSessionID))
			Ω(ensemble.Keys()).Should(Equal([]string{"/durable"}))
			Eventually(deleted).Should(Receive(Equal(storeadapter.WatchEvent{Type: storeadapter.EventNodeDeleted, Key: "/mine"})))
		})

		It("invalidates the session's watches and announces the transition", func() {
			_, events, _ := adapter.GetAndWatch("/durable")

			adapter.ExpireSession()

			var event storeadapter.WatchEvent
			Eventually(events).Should(Receive(&event))
			Ω(event.Type).Should(Equal(storeadapter.EventNotWatching))
			Eventually(sessionStates).Should(Receive(Equal(storeadapter.SessionExpired)))
			Eventually(sessionStates).Should(Receive(Equal(storeadapter.SessionConnected)))
		})
	})

	Describe("suspension", func() {
		It("fails requests until reconnected", func() {
			sessionStates, _ := adapter.WatchSession()
			adapter.Suspend()

			_, err := adapter.Get("/")
			Ω(err).Should(Equal(storeadapter.ErrorTimeout))
			Eventually(sessionStates).Should(Receive(Equal(storeadapter.SessionSuspended)))

			adapter.Reconnect()
			_, err = adapter.Get("/")
			Ω(err).ShouldNot(HaveOccurred())
			Eventually(sessionStates).Should(Receive(Equal(storeadapter.SessionReconnected)))
		})
	})

	Describe("error injection", func() {
		It("fails matching calls a limited number of times", func() {
			disaster := errors.New("oops")
			adapter.SetErrInjector = NewFakeStoreAdapterErrorInjector(`counter`, disaster)
			adapter.SetErrInjector.Times = 1
			adapter.Create("/counter", nil, storeadapter.Persistent)

			_, err := adapter.Set("/counter", []byte{1}, storeadapter.AnyVersion)
			Ω(err).Should(Equal(disaster))
			_, err = adapter.Set("/counter", []byte{1}, storeadapter.AnyVersion)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(adapter.SetErrInjector.Fired()).Should(Equal(1))
		})
	})
})
