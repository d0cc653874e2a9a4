package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli"

	"github.com/netprobe/convtrace/commands"
	"github.com/netprobe/convtrace/config"
)

// Entry point of convtrace
func main() {
	app := cli.NewApp()
	app.Name = "convtrace"
	app.Usage = "Reconstruct transient routing violations from testbed packet captures."
	app.Version = config.Version
	cli.VersionPrinter = commands.GetVersionPrinter()

	// Define commands used with this application
	app.Commands = commands.Commands()

	runtime.GOMAXPROCS(runtime.NumCPU())
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
