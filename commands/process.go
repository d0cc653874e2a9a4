package commands

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/netprobe/convtrace/parser"
	"github.com/netprobe/convtrace/resources"
	"github.com/netprobe/convtrace/util"
)

func init() {
	processCommand := cli.Command{
		Name:  "process",
		Usage: "Correlate recorded probe captures and reconstruct violation times",
		Flags: []cli.Flag{
			datarootFlag,
			topologyFlag,
			scenarioFlag,
			scenarioEndFlag,
			sampleFlag,
			workersFlag,
			configFlag,
		},
		Action: runPipeline(false),
	}

	bootstrapCommands(processCommand)
}

// runPipeline builds the shared action of the process and export-updates
// commands; export selects raw update export over violation synthesis
func runPipeline(export bool) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		dataroot := c.String("dataroot")
		if dataroot == "" {
			return cli.NewExitError("Specify a data root with --dataroot", -1)
		}

		res := resources.InitResources(c.String("config"))
		if c.Int("workers") > 0 {
			res.Config.S.Processing.Workers = c.Int("workers")
		}

		filter := parser.Filter{
			Topology:    c.String("topology"),
			Scenario:    c.String("scenario"),
			ScenarioEnd: c.String("scenario-end"),
			Sample:      c.String("sample"),
		}

		fmt.Println("\t[+] Processing experiment data in " + dataroot + " ...")
		start := time.Now()
		if err := parser.NewFSProcessor(res, filter, export).Run(dataroot); err != nil {
			return cli.NewExitError(err.Error(), -1)
		}
		fmt.Println("\t[+] Done! Processing took " + util.FormatDuration(time.Since(start)))
		return nil
	}
}
