package zkr

import (
	"errors"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/lager/lagertest"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/ginkgomon"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
)

var _ = Describe("Component", func() {
	var (
		component       *Component
		fakeClock       *fakeclock.FakeClock
		pollingInterval time.Duration
		timeout         time.Duration
		logger          *lagertest.TestLogger
		action          func() error
		actionChan      chan time.Time
	)

	BeforeEach(func() {
		fakeClock = fakeclock.NewFakeClock(time.Now())
		pollingInterval = 100 * time.Millisecond
		timeout = 1 * time.Second
		logger = lagertest.NewTestLogger("test")
		actionChan = make(chan time.Time, 10)
		actionChan := actionChan
		action = func() error {
			actionChan <- time.Now()
			return nil
		}
	})

	JustBeforeEach(func() {
		component = NewComponent("component", fakeClock, pollingInterval, timeout, logger, action)
	})

	It("exits on receiving a signal", func() {
		proc := ifrit.Background(component)
		ginkgomon.Kill(proc)
		Eventually(proc.Wait()).Should(Receive(BeNil()))
	})

	It("runs the action once per polling interval", func() {
		proc := ifrit.Background(component)
		defer ginkgomon.Kill(proc)

		Eventually(actionChan).Should(Receive())
		Consistently(actionChan, 50*time.Millisecond).ShouldNot(Receive())

		Eventually(fakeClock.WatcherCount).Should(Equal(1))
		fakeClock.Increment(pollingInterval)
		Eventually(actionChan).Should(Receive())
	})

	It("keeps polling when the action fails", func() {
		failures := make(chan struct{}, 10)
		action = func() error {
			failures <- struct{}{}
			return errors.New("boom")
		}
		component = NewComponent("component", fakeClock, pollingInterval, timeout, logger, action)

		proc := ifrit.Background(component)
		defer ginkgomon.Kill(proc)

		Eventually(failures).Should(Receive())
		Eventually(logger).Should(gbytes.Say("action-failed"))

		Eventually(fakeClock.WatcherCount).Should(Equal(1))
		fakeClock.Increment(pollingInterval)
		Eventually(failures).Should(Receive())
	})

	Context("when the action outlives the timeout", func() {
		BeforeEach(func() {
			action = func() error {
				select {}
			}
		})

		It("exits with an error", func() {
			proc := ifrit.Background(component)

			Eventually(fakeClock.WatcherCount).Should(Equal(2))
			fakeClock.Increment(timeout)
			Eventually(proc.Wait()).Should(Receive(MatchError("component timed out")))
		})
	})
})
