package violations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/topology"
	"github.com/netprobe/convtrace/pkg/tracker"
)

const testPrefix = "100.0.0.0/24"

// router IDs of the test network: Atlanta injects probes towards two
// possible external peers, one behind Chicago and one behind Denver
const (
	atlanta topology.RouterID = iota
	boston
	chicago
	denver
	chicagoExt
	denverExt
)

func synthMAC(t *testing.T, s string) *hwmap.MAC {
	mac, err := hwmap.ParseMAC(s)
	require.Nil(t, err)
	return &mac
}

func synthLookup(t *testing.T) *hwmap.Lookup {
	mapping := hwmap.Mapping{
		atlanta: {Name: "Atlanta", ProberSrcIP: "10.0.0.1"},
		boston:  {Name: "Boston", ProberSrcIP: "10.0.0.2"},
		chicago: {Name: "Chicago", ProberSrcIP: "10.0.0.3"},
		denver:  {Name: "Denver", ProberSrcIP: "10.0.0.4"},
		chicagoExt: {
			Name:     "Chicago_ext",
			External: true,
			Ifaces: []hwmap.Interface{
				{Neighbor: chicago, NeighborMAC: synthMAC(t, "02:00:00:00:02:01")},
			},
		},
		denverExt: {
			Name:     "Denver_ext",
			External: true,
			Ifaces: []hwmap.Interface{
				{Neighbor: denver, NeighborMAC: synthMAC(t, "02:00:00:00:03:01")},
			},
		},
	}

	lookup, err := hwmap.NewLookup(mapping)
	require.Nil(t, err)
	return lookup
}

var (
	mainPath = []hwmap.Link{
		{From: atlanta, To: boston},
		{From: boston, To: chicago},
		{From: chicago, To: chicagoExt},
	}
	altPath = []hwmap.Link{
		{From: atlanta, To: denver},
		{From: denver, To: chicago},
		{From: chicago, To: chicagoExt},
	}
)

// newTestAccumulator prepares a sample spanning seconds 0 through 10 with a
// one second trim, so sequences 1 through 8 fall into the considered window
// and sequences 0 and 10 cover its boundaries. The visit baseline of 2
// matches the production delay-crossing count.
func newTestAccumulator(t *testing.T, key tracker.FlowKey) *tracker.Accumulator {
	acc := tracker.NewAccumulator(1.0, 2)
	acc.ObserveTimestamp(0)
	acc.ObserveTimestamp(10)
	for seq := uint64(0); seq <= 10; seq++ {
		require.Nil(t, acc.RecordOrigin(key, seq, float64(seq)))
	}
	return acc
}

// deliver replays a probe along the given path of untapped links and records
// its egress at the path's final router
func deliver(t *testing.T, acc *tracker.Accumulator, key tracker.FlowKey, seq uint64, path []hwmap.Link) {
	for _, link := range path {
		acc.RecordTransit(key, seq, link, false, true)
	}
	last := path[len(path)-1]
	require.Nil(t, acc.RecordEgress(key, seq, float64(seq)+0.001, last.To))
}

func TestSynthesizeCleanSample(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)

	for seq := uint64(1); seq <= 8; seq++ {
		deliver(t, acc, key, seq, mainPath)
	}

	props, dropped := Synthesize(acc, lookup, 10)
	require.Empty(t, dropped)

	assert.Equal(t, Duration(0), props.Reachability[testPrefix]["Atlanta"], "all probes arrived")
	assert.Equal(t, Duration(0), props.LoopFreedom[testPrefix]["Atlanta"], "no router was revisited")
	assert.Equal(t, Duration(0), props.StablePath[testPrefix]["Atlanta"], "every probe took the steady path")

	// with an unchanged path every router past the origin is a waypoint
	require.Len(t, props.Waypoints, 3)
	for _, name := range []string{"Boston", "Chicago", "Chicago_ext"} {
		data, ok := props.Waypoints[name]
		require.True(t, ok, "%s lies on both the initial and the final path", name)
		assert.Equal(t, Duration(0), data[testPrefix]["Atlanta"])
	}

	// auxiliary entries record the steady state for manual cross-checks
	assert.Equal(t, PeerName("Chicago_ext"), props.Reachability[testPrefix]["Atlanta_ext_init"])
	assert.Equal(t, PeerName("Chicago_ext"), props.Reachability[testPrefix]["Atlanta_ext_post"])
	assert.Equal(t,
		Route([]string{"(Atlanta, Boston)", "(Boston, Chicago)", "(Chicago, Chicago_ext)"}),
		props.Reachability[testPrefix]["Atlanta_links_init"])
	assert.Equal(t,
		props.Reachability[testPrefix]["Atlanta_links_init"],
		props.Reachability[testPrefix]["Atlanta_links_post"])
}

func TestSynthesizeReachability(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)

	// sequences 4 and 5 vanish into a black hole
	for seq := uint64(1); seq <= 8; seq++ {
		if seq == 4 || seq == 5 {
			continue
		}
		deliver(t, acc, key, seq, mainPath)
	}

	props, dropped := Synthesize(acc, lookup, 10)
	require.Empty(t, dropped)

	assert.Equal(t, Duration(0.2), props.Reachability[testPrefix]["Atlanta"],
		"two lost probes at ten probes per second are 0.2 seconds of violation")
	assert.Equal(t, Duration(0), props.StablePath[testPrefix]["Atlanta"],
		"lost probes have no path and cannot stray")
}

func TestSynthesizeLoopFreedom(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)

	for seq := uint64(1); seq <= 8; seq++ {
		deliver(t, acc, key, seq, mainPath)
	}
	// sequence 5 bounces back to Boston over untapped links once before
	// converging; a second full traversal must trip the threshold even
	// though no delay tap doubled the frames
	acc.RecordTransit(key, 5, hwmap.Link{From: chicago, To: boston}, false, true)
	acc.RecordTransit(key, 5, hwmap.Link{From: boston, To: chicago}, false, true)

	props, dropped := Synthesize(acc, lookup, 10)
	require.Empty(t, dropped)

	assert.Equal(t, Duration(0.1), props.LoopFreedom[testPrefix]["Atlanta"],
		"exactly one sequence revisited a router")
	assert.Equal(t, Duration(0.1), props.StablePath[testPrefix]["Atlanta"],
		"the looping probe followed neither steady path")
}

func TestSynthesizeLoopFreedomIgnoresDelayTapEchoes(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)

	// the first hop is tapped on both sides of a delayer, so every probe
	// produces two frames there; a single pass must stay below the loop
	// threshold regardless
	for seq := uint64(1); seq <= 8; seq++ {
		first := mainPath[0]
		acc.RecordTransit(key, seq, first, true, true)
		acc.RecordTransit(key, seq, first, true, false)
		for _, link := range mainPath[1:] {
			acc.RecordTransit(key, seq, link, false, true)
		}
		require.Nil(t, acc.RecordEgress(key, seq, float64(seq)+0.001, chicagoExt))
	}

	props, dropped := Synthesize(acc, lookup, 10)
	require.Empty(t, dropped)
	assert.Equal(t, Duration(0), props.LoopFreedom[testPrefix]["Atlanta"],
		"a tapped hop is one traversal, not a revisit")
}

func TestSynthesizeStablePath(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)

	transient := []hwmap.Link{
		{From: atlanta, To: boston},
		{From: boston, To: denver},
		{From: denver, To: chicago},
		{From: chicago, To: chicagoExt},
	}

	for seq := uint64(1); seq <= 3; seq++ {
		deliver(t, acc, key, seq, mainPath)
	}
	for seq := uint64(4); seq <= 5; seq++ {
		deliver(t, acc, key, seq, transient)
	}
	for seq := uint64(6); seq <= 8; seq++ {
		deliver(t, acc, key, seq, altPath)
	}

	props, dropped := Synthesize(acc, lookup, 10)
	require.Empty(t, dropped)

	assert.Equal(t, Duration(0.2), props.StablePath[testPrefix]["Atlanta"],
		"two probes matched neither the initial nor the final path")

	// only the routers shared by the initial and the final path remain
	// waypoints once the path changes
	require.Len(t, props.Waypoints, 2)
	assert.Contains(t, props.Waypoints, "Chicago")
	assert.Contains(t, props.Waypoints, "Chicago_ext")
	assert.Equal(t, Duration(0), props.Waypoints["Chicago"][testPrefix]["Atlanta"],
		"the transient path still crossed the waypoint")
}

func TestSynthesizeWaypointMisses(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)

	detour := []hwmap.Link{
		{From: atlanta, To: denver},
		{From: denver, To: denverExt},
	}

	for seq := uint64(1); seq <= 8; seq++ {
		if seq == 4 || seq == 5 {
			deliver(t, acc, key, seq, detour)
			continue
		}
		deliver(t, acc, key, seq, mainPath)
	}

	props, dropped := Synthesize(acc, lookup, 10)
	require.Empty(t, dropped)

	assert.Equal(t, Duration(0.2), props.Waypoints["Chicago"][testPrefix]["Atlanta"],
		"two probes bypassed the waypoint via Denver")
	assert.Equal(t, Duration(0), props.Reachability[testPrefix]["Atlanta"],
		"the detoured probes still reached an external peer")
}

func TestSynthesizeDropsFlowsWithoutBoundaryProbes(t *testing.T) {
	lookup := synthLookup(t)
	key := tracker.FlowKey{Origin: atlanta, Prefix: testPrefix}
	acc := newTestAccumulator(t, key)
	for seq := uint64(1); seq <= 8; seq++ {
		deliver(t, acc, key, seq, mainPath)
	}

	// a second flow that only injected in the middle of the window
	partial := tracker.FlowKey{Origin: boston, Prefix: testPrefix}
	require.Nil(t, acc.RecordOrigin(partial, 1, 4.0))
	require.Nil(t, acc.RecordOrigin(partial, 2, 5.0))

	props, dropped := Synthesize(acc, lookup, 10)
	require.Equal(t, []tracker.FlowKey{partial}, dropped)

	assert.Contains(t, props.Reachability[testPrefix], "Atlanta")
	assert.NotContains(t, props.Reachability[testPrefix], "Boston",
		"unanalyzable flows must not produce violation values")
}

func TestWaypointsSharedRouters(t *testing.T) {
	first := []hwmap.Link{
		{From: atlanta, To: boston},
		{From: boston, To: chicago},
	}
	last := []hwmap.Link{
		{From: atlanta, To: denver},
		{From: denver, To: chicago},
	}

	shared := waypoints(atlanta, first, last)
	assert.Equal(t, []topology.RouterID{chicago}, shared,
		"only routers on both paths, minus the origin, are waypoints")

	assert.Empty(t, waypoints(atlanta, first, nil), "an empty path shares nothing")
}
