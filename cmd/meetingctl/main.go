// meetingctl inspects and edits the local meeting history and the pipe
// catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meetingd/internal/app"
	"meetingd/internal/config"
	"meetingd/internal/logging"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

// cli carries the state shared by every command. The App is built lazily
// on first use so that commands like --help never open the store.
type cli struct {
	configPath string
	verbose    bool

	build func(*config.Config, *logging.Logger) (*app.App, error)

	cfg *config.Config
	app *app.App
}

func newCLI() *cli {
	return &cli{
		build: func(cfg *config.Config, logger *logging.Logger) (*app.App, error) {
			return app.New(cfg, logger)
		},
	}
}

// App loads the configuration and assembles the components.
func (c *cli) App(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := config.Load(config.ResolvePath(c.configPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LevelWarn
	if c.verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.NewWriter(cmd.ErrOrStderr(), logCfg).WithComponent("meetingctl")

	a, err := c.build(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.cfg, c.app = cfg, a
	return a, nil
}

func (c *cli) Close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "meetingctl",
		Short:         "Inspect meeting history and manage pipes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "configuration file (default: platform config dir)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newSyncCmd(c),
		newListCmd(c),
		newShowCmd(c),
		newClearCmd(c),
		newSummarizeCmd(c),
		newParticipantsCmd(c),
		newRenameCmd(c),
		newPipesCmd(c),
		newCacheCmd(c),
		newConfigCmd(c),
	)
	return root
}

func main() {
	c := newCLI()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(c).ExecuteContext(ctx)
	stop()
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "meetingctl: %v\n", err)
		os.Exit(1)
	}
}
