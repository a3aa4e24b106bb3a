package storeadapter_test

import (
	"errors"
	"sync/atomic"
	"time"

	. "github.com/cloudfoundry/zkrecipes/storeadapter"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/samuel/go-zookeeper/zk"
)

var _ = Describe("ZookeeperStoreAdapter", func() {
	Describe("translating zookeeper errors", func() {
		It("maps node errors onto store errors", func() {
			Ω(TranslateError(zk.ErrNoNode)).Should(Equal(ErrorKeyNotFound))
			Ω(TranslateError(zk.ErrNodeExists)).Should(Equal(ErrorNodeExists))
			Ω(TranslateError(zk.ErrBadVersion)).Should(Equal(ErrorVersionMismatch))
			Ω(TranslateError(zk.ErrNotEmpty)).Should(Equal(ErrorNodeNotEmpty))
		})

		It("maps session errors onto SessionExpired", func() {
			Ω(TranslateError(zk.ErrSessionExpired)).Should(Equal(ErrorSessionExpired))
			Ω(TranslateError(zk.ErrSessionMoved)).Should(Equal(ErrorSessionExpired))
		})

		It("maps connectivity errors onto Timeout", func() {
			Ω(TranslateError(zk.ErrConnectionClosed)).Should(Equal(ErrorTimeout))
			Ω(TranslateError(zk.ErrNoServer)).Should(Equal(ErrorTimeout))
			Ω(TranslateError(errors.New("zk: request timeout"))).Should(Equal(ErrorTimeout))
		})

		It("passes nil and unknown errors through", func() {
			Ω(TranslateError(nil)).Should(BeNil())

			disaster := errors.New("oops")
			Ω(TranslateError(disaster)).Should(Equal(disaster))
			Ω(TranslateError(ErrorNotConnected)).Should(Equal(ErrorNotConnected))
		})
	})

	Describe("translating watch events", func() {
		It("keeps the path and maps the type", func() {
			event := TranslateEvent(zk.Event{Type: zk.EventNodeDeleted, Path: "/locks/foo/lock-0000000001"})
			Ω(event).Should(Equal(WatchEvent{Type: EventNodeDeleted, Key: "/locks/foo/lock-0000000001"}))

			Ω(TranslateEvent(zk.Event{Type: zk.EventNodeCreated}).Type).Should(Equal(EventNodeCreated))
			Ω(TranslateEvent(zk.Event{Type: zk.EventNodeDataChanged}).Type).Should(Equal(EventNodeDataChanged))
			Ω(TranslateEvent(zk.Event{Type: zk.EventNodeChildrenChanged}).Type).Should(Equal(EventNodeChildrenChanged))
		})

		It("reports anything else, like an invalidated watch, as NotWatching", func() {
			Ω(TranslateEvent(zk.Event{Type: zk.EventNotWatching, Err: zk.ErrSessionExpired}).Type).Should(Equal(EventNotWatching))
			Ω(TranslateEvent(zk.Event{Type: zk.EventSession}).Type).Should(Equal(EventNotWatching))
		})
	})

	Describe("tracking the session", func() {
		var (
			adapter   *ZookeeperStoreAdapter
			events    chan zk.Event
			states    <-chan SessionState
			sessionID int64
		)

		sessionEvent := func(state zk.State) zk.Event {
			return zk.Event{Type: zk.EventSession, State: state}
		}

		establish := func(id int64) {
			atomic.StoreInt64(&sessionID, id)
			events <- sessionEvent(zk.StateHasSession)
		}

		BeforeEach(func() {
			adapter = NewZookeeperStoreAdapter(nil, 1, time.Second)
			events = make(chan zk.Event)
			states, _ = adapter.WatchSession()
			atomic.StoreInt64(&sessionID, 0)

			go adapter.TrackSession(events, func() int64 {
				return atomic.LoadInt64(&sessionID)
			})
		})

		AfterEach(func() {
			close(events)
		})

		It("reports CONNECTED for the first session", func() {
			establish(17)
			Eventually(states).Should(Receive(Equal(SessionConnected)))
		})

		It("reports RECONNECTED when the suspended session comes back", func() {
			establish(17)
			Eventually(states).Should(Receive(Equal(SessionConnected)))

			events <- sessionEvent(zk.StateDisconnected)
			Eventually(states).Should(Receive(Equal(SessionSuspended)))

			establish(17)
			Eventually(states).Should(Receive(Equal(SessionReconnected)))
		})

		It("reports a single SUSPENDED while the connection stays down", func() {
			establish(17)
			Eventually(states).Should(Receive(Equal(SessionConnected)))

			events <- sessionEvent(zk.StateDisconnected)
			events <- sessionEvent(zk.StateConnecting)
			events <- sessionEvent(zk.StateDisconnected)

			Eventually(states).Should(Receive(Equal(SessionSuspended)))
			Consistently(states).ShouldNot(Receive())
		})

		It("reports CONNECTED, not RECONNECTED, for a new session after expiry", func() {
			establish(17)
			Eventually(states).Should(Receive(Equal(SessionConnected)))

			events <- sessionEvent(zk.StateDisconnected)
			Eventually(states).Should(Receive(Equal(SessionSuspended)))

			events <- sessionEvent(zk.StateExpired)
			Eventually(states).Should(Receive(Equal(SessionExpired)))

			establish(18)
			Eventually(states).Should(Receive(Equal(SessionConnected)))
			Consistently(states).ShouldNot(Receive())
		})

		It("reports EXPIRED then CONNECTED when a suspended session comes back as a different one", func() {
			establish(17)
			Eventually(states).Should(Receive(Equal(SessionConnected)))

			events <- sessionEvent(zk.StateDisconnected)
			Eventually(states).Should(Receive(Equal(SessionSuspended)))

			establish(18)
			Eventually(states).Should(Receive(Equal(SessionExpired)))
			Eventually(states).Should(Receive(Equal(SessionConnected)))
		})

		It("says nothing about a disconnect before any session, or about non-session events", func() {
			events <- sessionEvent(zk.StateDisconnected)
			events <- zk.Event{Type: zk.EventNodeDeleted, Path: "/locks/foo"}
			Consistently(states).ShouldNot(Receive())
		})

		It("says nothing when the same session is announced twice", func() {
			establish(17)
			Eventually(states).Should(Receive(Equal(SessionConnected)))

			establish(17)
			Consistently(states).ShouldNot(Receive())
		})
	})

	Describe("create modes", func() {
		It("knows which modes are ephemeral and sequential", func() {
			Ω(Persistent.IsEphemeral()).Should(BeFalse())
			Ω(Persistent.IsSequential()).Should(BeFalse())
			Ω(Ephemeral.IsEphemeral()).Should(BeTrue())
			Ω(PersistentSequential.IsSequential()).Should(BeTrue())
			Ω(PersistentSequential.IsEphemeral()).Should(BeFalse())
			Ω(EphemeralSequential.IsEphemeral()).Should(BeTrue())
			Ω(EphemeralSequential.IsSequential()).Should(BeTrue())
		})
	})
})

var _ = Describe("SessionNotifier", func() {
	It("delivers each state to every subscriber", func() {
		notifier := NewSessionNotifier()
		first, _ := notifier.Subscribe()
		second, _ := notifier.Subscribe()

		notifier.Notify(SessionSuspended)
		notifier.Notify(SessionReconnected)

		Ω(<-first).Should(Equal(SessionSuspended))
		Ω(<-first).Should(Equal(SessionReconnected))
		Ω(<-second).Should(Equal(SessionSuspended))
		Ω(<-second).Should(Equal(SessionReconnected))
	})

	It("stops delivering after unsubscribing", func() {
		notifier := NewSessionNotifier()
		states, unsubscribe := notifier.Subscribe()
		unsubscribe()
		unsubscribe()

		notifier.Notify(SessionExpired)
		Consistently(states).ShouldNot(Receive())
	})

	It("names the states", func() {
		Ω(SessionConnected.String()).Should(Equal("CONNECTED"))
		Ω(SessionSuspended.String()).Should(Equal("SUSPENDED"))
		Ω(SessionReconnected.String()).Should(Equal("RECONNECTED"))
		Ω(SessionExpired.String()).Should(Equal("EXPIRED"))
	})
})
