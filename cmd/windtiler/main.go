// Command windtiler turns lidar point clouds into height tiles for the
// wind turbine AR viewer: tiles, fetch, convert, serve and monitor are
// independent stages that hand off through the filesystem.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"windtiler/internal/config"
	"windtiler/internal/logging"
	"windtiler/internal/shutdown"
)

const defaultConfigPath = "./conf/conf.toml"

var (
	configPath string
	logLevel   string
)

// app is the state shared by all subcommands, filled in once the global
// flags are parsed.
type app struct {
	conf *config.Config
	log  *logrus.Logger
	stop *shutdown.Handler
	in   io.Reader
	out  io.Writer
}

func main() {
	flag.StringVar(&configPath, "c", defaultConfigPath, "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log `level`")

	a := &app{in: os.Stdin, out: os.Stdout}
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&versionCmd{app: a}, "")
	subcommands.Register(&tilesCmd{app: a}, "pipeline")
	subcommands.Register(&fetchCmd{app: a}, "pipeline")
	subcommands.Register(&convertCmd{app: a}, "pipeline")
	subcommands.Register(&serveCmd{app: a}, "pipeline")
	subcommands.Register(&monitorCmd{app: a}, "pipeline")
	subcommands.ImportantFlag("c")
	subcommands.ImportantFlag("l")
	flag.Parse()

	closer, err := a.init(configPath, logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitFailure))
	}

	ctx, stop := shutdown.Listen(context.Background(), a.log)
	a.stop = stop
	status := subcommands.Execute(ctx)
	closer.Close()
	os.Exit(int(status))
}

func (a *app) init(path, level string) (io.Closer, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.New(logging.Options{
		Level:    level,
		Dir:      conf.Output.LogDir,
		Terminal: conf.Output.OutputTerminal,
	})
	if err != nil {
		return nil, err
	}
	a.conf = conf
	a.log = log
	return closer, nil
}

// fail logs err and maps it to the failure exit status.
func (a *app) fail(err error) subcommands.ExitStatus {
	a.log.Error(err)
	return subcommands.ExitFailure
}

type versionCmd struct{ *app }

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "print the version" }
func (*versionCmd) Usage() string          { return "windtiler version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}

func (c *versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(c.out, "%s %s\n", c.conf.App.Title, c.conf.App.Version)
	return subcommands.ExitSuccess
}
