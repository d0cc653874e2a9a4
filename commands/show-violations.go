package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/netprobe/convtrace/pkg/store"
	"github.com/netprobe/convtrace/pkg/violations"
	"github.com/netprobe/convtrace/util"
)

func init() {
	command := cli.Command{
		Name:      "show-violations",
		Usage:     "Print the persisted violation times of one experiment unit",
		ArgsUsage: "<directory>",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "property, p",
				Usage: "only show `PROPERTY` (reachability, loopfreedom, stable-path, or a waypoint router name)",
				Value: "",
			},
		},
		Action: func(c *cli.Context) error {
			dir := c.Args().Get(0)
			if dir == "" {
				return cli.NewExitError("Specify an experiment unit directory", -1)
			}
			if !util.IsDir(dir) {
				return cli.NewExitError("No such directory: "+dir, -1)
			}

			samples, err := store.Open(dir)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}

			selected := c.String("property")
			if selected != "" {
				known := append([]string{"reachability", "loopfreedom", "stable-path"},
					samples.WaypointNames()...)
				if !util.StringInSlice(selected, known) {
					return cli.NewExitError("Unknown property: "+selected, -1)
				}
			}

			collections := map[string]*store.Collection{
				"reachability": samples.Reachability,
				"loopfreedom":  samples.LoopFreedom,
				"stable-path":  samples.StablePath,
			}
			for _, name := range samples.WaypointNames() {
				collections["waypoint "+name] = samples.Waypoint(name)
			}

			shown := 0
			for _, name := range sortedKeys(collections) {
				if selected != "" && name != selected && name != "waypoint "+selected {
					continue
				}
				if collections[name].Len() == 0 {
					continue
				}
				fmt.Println("\t[-] " + name + ":")
				showCollection(collections[name])
				shown++
			}

			if shown == 0 {
				return cli.NewExitError("No violation records found in "+dir, -1)
			}
			return nil
		},
	}

	bootstrapCommands(command)
}

func sortedKeys(collections map[string]*store.Collection) []string {
	keys := make([]string, 0, len(collections))
	for key := range collections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// showCollection renders the duration entries of one collection; the
// auxiliary peer and route entries are for machine consumption and are
// skipped here
func showCollection(coll *store.Collection) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Sample", "Prefix", "Origin", "Violation (s)"})

	for _, sample := range coll.Samples() {
		for _, prefix := range sortedPrefixes(sample.ViolationTimes) {
			entities := sample.ViolationTimes[prefix]
			names := make([]string, 0, len(entities))
			for name, value := range entities {
				if value.Kind == violations.KindDuration {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			for _, name := range names {
				table.Append([]string{
					sample.SampleID,
					prefix,
					name,
					strconv.FormatFloat(entities[name].Seconds, 'f', -1, 64),
				})
			}
		}
	}
	table.Render()
}

func sortedPrefixes(data violations.PrefixData) []string {
	prefixes := make([]string, 0, len(data))
	for prefix := range data {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
