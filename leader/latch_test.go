package leader_test

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/lagertest"
	. "github.com/cloudfoundry/zkrecipes/leader"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/testhelpers/fakestoreadapter"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/ginkgomon"
)

const latchPath = "/leader/latch"

type edgeRecorder struct {
	lock  sync.Mutex
	edges []bool
}

func (r *edgeRecorder) IsLeader()  { r.record(true) }
func (r *edgeRecorder) NotLeader() { r.record(false) }

func (r *edgeRecorder) record(edge bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.edges = append(r.edges, edge)
}

func (r *edgeRecorder) Edges() []bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]bool{}, r.edges...)
}

var _ = Describe("Latch", func() {
	var (
		ensemble   *fakestoreadapter.FakeEnsemble
		logger     *lagertest.TestLogger
		firstStore *fakestoreadapter.FakeStoreAdapter
		first      *Latch
		process    ifrit.Process
	)

	BeforeEach(func() {
		ensemble = fakestoreadapter.NewFakeEnsemble()
		logger = lagertest.NewTestLogger("test")
		firstStore = ensemble.NewSession()
		first = NewLatch(firstStore, clock.NewClock(), logger, latchPath, "first")
		process = ginkgomon.Invoke(first)
	})

	AfterEach(func() {
		ginkgomon.Interrupt(process)
	})

	It("takes leadership when alone", func() {
		Ω(first.AwaitLeadership(time.Second)).Should(BeTrue())
		Ω(first.HasLeadership()).Should(BeTrue())
		Ω(first.LeaderID()).Should(Equal("first"))
	})

	Context("with a second participant", func() {
		var (
			secondStore   *fakestoreadapter.FakeStoreAdapter
			second        *Latch
			secondProcess ifrit.Process
			recorder      *edgeRecorder
		)

		BeforeEach(func() {
			Ω(first.AwaitLeadership(time.Second)).Should(BeTrue())

			recorder = &edgeRecorder{}
			secondStore = ensemble.NewSession()
			second = NewLatch(secondStore, clock.NewClock(), logger, latchPath, "second")
			second.AddListener(recorder)
			secondProcess = ginkgomon.Invoke(second)

			Eventually(func() ([]Participant, error) { return second.Participants() }).Should(HaveLen(2))
		})

		AfterEach(func() {
			ginkgomon.Interrupt(secondProcess)
		})

		It("queues behind the leader", func() {
			Ω(second.HasLeadership()).Should(BeFalse())
			Ω(second.AwaitLeadership(50 * time.Millisecond)).Should(BeFalse())
			Ω(second.LeaderID()).Should(Equal("first"))
			Ω(second.Participants()).Should(Equal([]Participant{
				{ID: "first", IsLeader: true},
				{ID: "second", IsLeader: false},
			}))
		})

		It("takes over when the leader stops, removing the old candidate", func() {
			ginkgomon.Interrupt(process)

			Ω(second.AwaitLeadership(time.Second)).Should(BeTrue())
			Ω(second.Participants()).Should(Equal([]Participant{{ID: "second", IsLeader: true}}))
			Eventually(recorder.Edges).Should(Equal([]bool{true}))
		})

		It("takes over when the leader's session expires, and the old leader rejoins behind", func() {
			firstStore.ExpireSession()

			Ω(second.AwaitLeadership(time.Second)).Should(BeTrue())
			Ω(first.HasLeadership()).Should(BeFalse())
			Eventually(func() (string, error) { return first.LeaderID() }).Should(Equal("second"))
			Eventually(func() ([]Participant, error) { return first.Participants() }).Should(Equal([]Participant{
				{ID: "second", IsLeader: true},
				{ID: "first", IsLeader: false},
			}))
		})

		It("has only the follower watch the leader's candidate", func() {
			children, err := firstStore.Children(latchPath)
			Ω(err).ShouldNot(HaveOccurred())
			candidates := nodepath.SortedCandidates(children)

			leaderKey := latchPath + "/" + candidates[0].Name
			followerKey := latchPath + "/" + candidates[1].Name

			Eventually(func() int { return ensemble.WatchCount(leaderKey) }).Should(Equal(2))
			Ω(ensemble.WatchCount(followerKey)).Should(BeZero())
		})
	})

	Context("when the session is suspended", func() {
		BeforeEach(func() {
			Ω(first.AwaitLeadership(time.Second)).Should(BeTrue())
		})

		It("does not claim leadership until reconnected", func() {
			firstStore.Suspend()
			Eventually(first.HasLeadership).Should(BeFalse())

			firstStore.Reconnect()
			Eventually(first.HasLeadership).Should(BeTrue())
		})
	})

	It("removes its candidate when stopped", func() {
		Ω(first.AwaitLeadership(time.Second)).Should(BeTrue())
		ginkgomon.Interrupt(process)

		children, err := firstStore.Children(latchPath)
		Ω(err).ShouldNot(HaveOccurred())
		Ω(children).Should(BeEmpty())
		Ω(first.HasLeadership()).Should(BeFalse())
	})
})
