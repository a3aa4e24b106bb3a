package zkr

import (
	"os"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/apiserver/handlers"
	"github.com/cloudfoundry/zkrecipes/config"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/http_server"
)

const (
	statusInterval = 30 * time.Second
	statusTimeout  = 10 * time.Second
)

// Serve runs every long-lived recipe plus the HTTP API until interrupted.
func Serve(l lager.Logger, conf *config.Config) {
	adapter := connectToStoreAdapter(l, conf)
	defer adapter.Disconnect()

	realClock := clock.NewClock()
	id := participantID()
	recipes, runners := BuildRecipes(l, realClock, adapter, conf, id)

	apiHandler, err := handlers.New(l, realClock, recipes)
	if err != nil {
		l.Error("initialize-handler.failed", err)
		os.Exit(1)
	}
	handler := handlers.BasicAuthWrap(apiHandler, conf.APIServerUsername, conf.APIServerPassword)

	status := NewComponent("status", realClock, statusInterval, statusTimeout, l, func() error {
		return logStatus(l, recipes)
	})

	listenAddr := conf.APIServerListenAddress()
	l.Info("serving", lager.Data{"address": listenAddr, "participant": id})

	err = ifritize(l, "zkrecipes", grouper.Members{
		{Name: "shared-count", Runner: runners.SharedCount},
		{Name: "leader-latch", Runner: runners.Latch},
		{Name: "leader-selector", Runner: runners.Selector},
		{Name: "queue-consumer", Runner: runners.Consumer},
		{Name: "status", Runner: status},
		{Name: "api", Runner: http_server.New(listenAddr, handler)},
	})
	if err != nil {
		os.Exit(1)
	}
}

func logStatus(l lager.Logger, recipes *handlers.Recipes) error {
	leaderID, err := recipes.Latch.LeaderID()
	if err != nil {
		return err
	}

	size, err := recipes.Queue.Size()
	if err != nil {
		return err
	}

	l.Info("status", lager.Data{
		"latch-leader":      leaderID,
		"is-latch-leader":   recipes.Latch.HasLeadership(),
		"is-selector-lead":  recipes.Selector.HasLeadership(),
		"selector-leads":    recipes.Selector.LeadershipCount(),
		"shared-count":      recipes.SharedCount.Count(),
		"queue-size":        size,
		"consumed-messages": len(recipes.ConsumedMessages.Messages()),
	})
	return nil
}
