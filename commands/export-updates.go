package commands

import (
	"github.com/urfave/cli"
)

func init() {
	exportCommand := cli.Command{
		Name:  "export-updates",
		Usage: "Export raw forwarding, path, and reachability update time series instead of violation times",
		Flags: []cli.Flag{
			datarootFlag,
			topologyFlag,
			scenarioFlag,
			scenarioEndFlag,
			sampleFlag,
			workersFlag,
			configFlag,
		},
		Action: runPipeline(true),
	}

	bootstrapCommands(exportCommand)
}
