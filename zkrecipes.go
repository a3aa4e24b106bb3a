package main

import (
	"fmt"
	"os"

	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/config"
	"github.com/cloudfoundry/zkrecipes/zkr"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "zkrecipes"
	app.Usage = "Run and inspect ZooKeeper coordination recipes"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:        "serve",
			Description: "Runs the leader latch, leader selector, shared count and queue consumer, and serves the recipe API over http",
			Usage:       "zkrecipes serve --config=/path/to/config",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config", Value: "", Usage: "Path to config file"},
			},
			Action: func(c *cli.Context) error {
				logger, conf := loadLoggerAndConfig(c, "serve")
				zkr.Serve(logger, conf)
				return nil
			},
		},
		{
			Name:        "dump",
			Description: "Dumps the node tree under a root",
			Usage:       "zkrecipes dump --config=/path/to/config --root=/locks",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config", Value: "", Usage: "Path to config file"},
				cli.StringFlag{Name: "root", Value: "/", Usage: "Node to start from"},
			},
			Action: func(c *cli.Context) error {
				logger, conf := loadLoggerAndConfig(c, "dumper")
				zkr.Dump(logger, conf, c.String("root"), os.Stdout)
				return nil
			},
		},
		{
			Name:        "clear",
			Description: "Deletes a root node and everything below it",
			Usage:       "zkrecipes clear --config=/path/to/config --root=/queues",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config", Value: "", Usage: "Path to config file"},
				cli.StringFlag{Name: "root", Value: "", Usage: "Node to delete"},
			},
			Action: func(c *cli.Context) error {
				root := c.String("root")
				if root == "" {
					return cli.NewExitError("--root is required", 1)
				}
				logger, conf := loadLoggerAndConfig(c, "clearer")
				return zkr.Clear(logger, conf, root)
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		os.Exit(1)
	}
}

// loadLoggerAndConfig falls back to the built-in defaults when no config
// path is given.
func loadLoggerAndConfig(c *cli.Context, component string) (lager.Logger, *config.Config) {
	var conf *config.Config
	var err error

	configPath := c.String("config")
	if configPath == "" {
		conf, err = config.DefaultConfig()
	} else {
		conf, err = config.FromFile(configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %q: %s\n", configPath, err.Error())
		os.Exit(1)
	}

	logger := lager.NewLogger(component)

	logLevel, err := conf.LogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}

	logger.RegisterSink(lager.NewReconfigurableSink(lager.NewWriterSink(os.Stdout, logLevel), logLevel))

	return logger, conf
}
