package commands

import (
	"runtime"

	"github.com/urfave/cli"
)

var allCommands []cli.Command

// below are the prebuilt flags shared by several commands
var (
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "use `CONFIG_FILE` instead of the default config locations",
		Value: "",
	}
	datarootFlag = cli.StringFlag{
		Name:  "dataroot, r",
		Usage: "process experiment data beneath `DIR`",
		Value: "",
	}
	topologyFlag = cli.StringFlag{
		Name:  "topology, t",
		Usage: "only process topologies whose name contains `SUBSTRING`",
		Value: "",
	}
	scenarioFlag = cli.StringFlag{
		Name:  "scenario, s",
		Usage: "only process scenarios whose name contains `SUBSTRING`",
		Value: "",
	}
	scenarioEndFlag = cli.StringFlag{
		Name:  "scenario-end, e",
		Usage: "only process scenarios whose name ends in `SUFFIX`",
		Value: "",
	}
	sampleFlag = cli.StringFlag{
		Name:  "sample, i",
		Usage: "only process samples whose identifier contains `SUBSTRING`",
		Value: "",
	}
	workersFlag = cli.IntFlag{
		Name:  "workers, w",
		Usage: "number of experiment units to process in parallel (0: all CPUs)",
		Value: 0,
	}
)

// bootstrapCommands registers a command to be returned by Commands
func bootstrapCommands(commands ...cli.Command) {
	allCommands = append(allCommands, commands...)
}

// Commands provides all of the defined commands to the front end
func Commands() []cli.Command {
	runtime.GOMAXPROCS(runtime.NumCPU())
	return allCommands
}
