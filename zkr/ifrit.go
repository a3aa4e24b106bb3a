package zkr

import (
	"errors"
	"os"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"
)

// Component runs action every pollingInterval until signalled. An action
// that takes longer than timeout stops the component with an error.
type Component struct {
	name            string
	clock           clock.Clock
	pollingInterval time.Duration
	timeout         time.Duration
	logger          lager.Logger

	action func() error
}

func NewComponent(name string, clock clock.Clock, pollingInterval time.Duration, timeout time.Duration,
	logger lager.Logger, action func() error) *Component {
	return &Component{
		name:            name,
		clock:           clock,
		pollingInterval: pollingInterval,
		timeout:         timeout,
		logger:          logger.Session(name),
		action:          action,
	}
}

func ifritize(logger lager.Logger, name string, members grouper.Members) error {
	group := grouper.NewOrdered(os.Interrupt, members)
	monitor := ifrit.Invoke(sigmon.New(group))

	logger.Info("started", lager.Data{"name": name})

	err := <-monitor.Wait()
	if err != nil {
		logger.Error("exited-with-failure", err, lager.Data{"name": name})
		return err
	}

	logger.Info("exited", lager.Data{"name": name})
	return nil
}

func (c *Component) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	close(ready)
	for {
		afterChan := c.clock.NewTimer(c.pollingInterval)
		timeoutTimer := c.clock.NewTimer(c.timeout)
		errorChan := make(chan error, 1)

		go func() {
			errorChan <- c.action()
		}()

		select {
		case err := <-errorChan:
			if err != nil {
				c.logger.Error("action-failed", err)
			}
		case <-timeoutTimer.C():
			afterChan.Stop()
			return errors.New(c.name + " timed out")
		case <-signals:
			afterChan.Stop()
			timeoutTimer.Stop()
			return nil
		}

		timeoutTimer.Stop()
		select {
		case <-signals:
			afterChan.Stop()
			return nil
		case <-afterChan.C():
		}
	}
}
