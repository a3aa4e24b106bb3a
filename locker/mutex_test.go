package locker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/lagertest"
	. "github.com/cloudfoundry/zkrecipes/locker"
	"github.com/cloudfoundry/zkrecipes/nodepath"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
	"github.com/cloudfoundry/zkrecipes/testhelpers/fakestoreadapter"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const lockPath = "/locks/distributed-lock"

var _ = Describe("Mutex", func() {
	var (
		ensemble *fakestoreadapter.FakeEnsemble
		logger   *lagertest.TestLogger
		holder   *fakestoreadapter.FakeStoreAdapter
		waiter   *fakestoreadapter.FakeStoreAdapter
		mutex    *Mutex
	)

	newMutex := func(adapter storeadapter.StoreAdapter) *Mutex {
		return NewMutex(adapter, clock.NewClock(), logger, lockPath)
	}

	sortedCandidates := func() nodepath.Candidates {
		children, err := holder.Children(lockPath)
		Ω(err).ShouldNot(HaveOccurred())
		return nodepath.SortedCandidates(children)
	}

	BeforeEach(func() {
		ensemble = fakestoreadapter.NewFakeEnsemble()
		logger = lagertest.NewTestLogger("test")
		holder = ensemble.NewSession()
		waiter = ensemble.NewSession()
		mutex = newMutex(holder)
	})

	Context("when the lock is free", func() {
		It("is acquired immediately, creating the lock path", func() {
			acquired, err := mutex.Acquire(time.Second)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(acquired).Should(BeTrue())
			Ω(mutex.IsHeld()).Should(BeTrue())

			participants, err := mutex.Participants()
			Ω(err).ShouldNot(HaveOccurred())
			Ω(participants).Should(Equal([]string{mutex.ParticipantID()}))
		})

		It("is reentrant and keeps a single candidate", func() {
			mutex.Acquire(time.Second)
			acquired, err := mutex.Acquire(time.Second)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(acquired).Should(BeTrue())
			Ω(sortedCandidates()).Should(HaveLen(1))
			Ω(mutex.Holds()).Should(Equal(2))
		})

		It("needs one release per acquisition", func() {
			mutex.Acquire(time.Second)
			mutex.Acquire(time.Second)

			Ω(mutex.Release()).Should(Succeed())
			Ω(mutex.IsHeld()).Should(BeTrue())
			Ω(sortedCandidates()).Should(HaveLen(1))

			Ω(mutex.Release()).Should(Succeed())
			Ω(mutex.IsHeld()).Should(BeFalse())
			Ω(sortedCandidates()).Should(BeEmpty())
		})

		It("keeps an outer hold across a nested critical section", func() {
			Ω(mutex.Acquire(time.Second)).Should(BeTrue())

			ran, err := mutex.WithLock(time.Second, func() error { return nil })
			Ω(err).ShouldNot(HaveOccurred())
			Ω(ran).Should(BeTrue())

			Ω(mutex.IsHeld()).Should(BeTrue())
			Ω(mutex.Holds()).Should(Equal(1))
		})

		It("hands out a fencing token bound to the session", func() {
			_, ok := mutex.Token()
			Ω(ok).Should(BeFalse())

			mutex.Acquire(time.Second)
			token, ok := mutex.Token()
			Ω(ok).Should(BeTrue())
			Ω(token.SessionID).Should(Equal(holder.SessionID()))
			Ω(token.Path).Should(HavePrefix(lockPath + "/lock-"))
			Ω(token.Sequence).Should(BeNumerically("==", 0))
		})
	})

	Context("when the lock is held by someone else", func() {
		var other *Mutex

		BeforeEach(func() {
			acquired, _ := mutex.Acquire(time.Second)
			Ω(acquired).Should(BeTrue())
			other = newMutex(waiter)
		})

		It("times out and withdraws its candidate", func() {
			acquired, err := other.Acquire(50 * time.Millisecond)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(acquired).Should(BeFalse())
			Ω(other.IsHeld()).Should(BeFalse())
			Ω(sortedCandidates()).Should(HaveLen(1))
		})

		It("is granted once the holder releases", func() {
			result := make(chan bool)
			go func() {
				defer GinkgoRecover()
				acquired, err := other.Acquire(0)
				Ω(err).ShouldNot(HaveOccurred())
				result <- acquired
			}()

			Eventually(sortedCandidates).Should(HaveLen(2))
			Consistently(result, 100*time.Millisecond).ShouldNot(Receive())

			Ω(mutex.Release()).Should(Succeed())
			Ω(mutex.IsHeld()).Should(BeFalse())
			Eventually(result).Should(Receive(BeTrue()))
			Ω(other.IsHeld()).Should(BeTrue())
		})

		It("honours each caller's own timeout while another caller of the same mutex is waiting", func() {
			first := make(chan bool)
			go func() {
				defer GinkgoRecover()
				acquired, err := other.Acquire(5 * time.Second)
				Ω(err).ShouldNot(HaveOccurred())
				first <- acquired
			}()
			Eventually(sortedCandidates).Should(HaveLen(2))

			start := time.Now()
			acquired, err := other.Acquire(100 * time.Millisecond)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(acquired).Should(BeFalse())
			Ω(time.Since(start)).Should(BeNumerically("<", time.Second))

			Ω(mutex.Release()).Should(Succeed())
			Eventually(first).Should(Receive(BeTrue()))
			Ω(other.Holds()).Should(Equal(1))
		})

		It("gives up when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			result := make(chan error)
			go func() {
				_, err := other.AcquireContext(ctx)
				result <- err
			}()

			Eventually(sortedCandidates).Should(HaveLen(2))
			cancel()
			Eventually(result).Should(Receive(Equal(context.Canceled)))
			Ω(sortedCandidates()).Should(HaveLen(1))
		})

		It("reports session expiry while waiting", func() {
			result := make(chan error)
			go func() {
				_, err := other.Acquire(0)
				result <- err
			}()

			Eventually(sortedCandidates).Should(HaveLen(2))
			waiter.ExpireSession()
			Eventually(result).Should(Receive(Equal(storeadapter.ErrorSessionExpired)))
			Ω(sortedCandidates()).Should(HaveLen(1))
		})
	})

	It("only wakes the next waiter in line", func() {
		mutex.Acquire(time.Second)

		for i := 0; i < 3; i++ {
			waiting := newMutex(ensemble.NewSession())
			go waiting.Acquire(0)
			Eventually(sortedCandidates).Should(HaveLen(i + 2))
		}

		candidates := sortedCandidates()
		for i := 0; i < 3; i++ {
			key := lockPath + "/" + candidates[i].Name
			Eventually(func() int { return ensemble.WatchCount(key) }).Should(Equal(1))
		}
		Ω(ensemble.WatchCount(lockPath + "/" + candidates[3].Name)).Should(BeZero())
	})

	It("never lets two sessions into the critical section and serves every acquirer", func() {
		var inside, maxInside, served int32
		wg := sync.WaitGroup{}

		for i := 0; i < 5; i++ {
			wg.Add(1)
			contender := newMutex(ensemble.NewSession())
			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				ran, err := contender.WithLock(0, func() error {
					current := atomic.AddInt32(&inside, 1)
					if current > atomic.LoadInt32(&maxInside) {
						atomic.StoreInt32(&maxInside, current)
					}
					time.Sleep(10 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					atomic.AddInt32(&served, 1)
					return nil
				})
				Ω(err).ShouldNot(HaveOccurred())
				Ω(ran).Should(BeTrue())
			}()
		}

		wg.Wait()
		Ω(atomic.LoadInt32(&maxInside)).Should(BeNumerically("==", 1))
		Ω(atomic.LoadInt32(&served)).Should(BeNumerically("==", 5))
		Ω(sortedCandidates()).Should(BeEmpty())
	})

	It("returns the critical section's error after releasing", func() {
		disaster := errors.New("oops")
		ran, err := mutex.WithLock(time.Second, func() error { return disaster })
		Ω(ran).Should(BeTrue())
		Ω(err).Should(Equal(disaster))
		Ω(mutex.IsHeld()).Should(BeFalse())
	})

	It("treats release of an unheld lock as a no-op", func() {
		Ω(mutex.Release()).Should(Succeed())
	})

	Context("when the holder's session expires", func() {
		BeforeEach(func() {
			mutex.Acquire(time.Second)
			holder.ExpireSession()
		})

		It("is no longer held and release needs no store call", func() {
			Ω(mutex.IsHeld()).Should(BeFalse())
			Ω(mutex.Release()).Should(Succeed())
		})

		It("shows the lock as free to a fresh session, which can take it", func() {
			fresh := newMutex(ensemble.NewSession())

			participants, err := fresh.Participants()
			Ω(err).ShouldNot(HaveOccurred())
			Ω(participants).Should(BeEmpty())

			acquired, err := fresh.Acquire(time.Second)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(acquired).Should(BeTrue())
		})

		It("can be re-acquired on the new session", func() {
			acquired, err := mutex.Acquire(time.Second)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(acquired).Should(BeTrue())

			token, _ := mutex.Token()
			Ω(token.SessionID).Should(Equal(holder.SessionID()))
		})
	})

	Context("when the store is unreachable", func() {
		It("fails the acquisition with the store error", func() {
			holder.Suspend()
			acquired, err := mutex.Acquire(time.Second)
			Ω(acquired).Should(BeFalse())
			Ω(err).Should(Equal(storeadapter.ErrorTimeout))
		})
	})
})
