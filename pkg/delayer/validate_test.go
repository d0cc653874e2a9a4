package delayer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netprobe/convtrace/config"
	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/tracker"
	"github.com/netprobe/convtrace/pkg/topology"
)

var (
	testLink = hwmap.Link{From: 0, To: 1}
	testFlow = tracker.FlowKey{Origin: 0, Prefix: "100.0.0.0/24"}
)

func testLookup(t *testing.T) *hwmap.Lookup {
	mac := func(s string) *hwmap.MAC {
		m, err := hwmap.ParseMAC(s)
		require.Nil(t, err)
		return &m
	}
	mapping := hwmap.Mapping{
		0: hwmap.Router{
			Name:        "Atlanta",
			ProberSrcIP: "10.0.0.1",
			Ifaces: []hwmap.Interface{{
				MAC:         mac("02:00:00:00:00:01"),
				Neighbor:    topology.RouterID(1),
				NeighborMAC: mac("02:00:00:00:01:00"),
				Delayed:     true,
				TargetDelay: 0.01,
			}},
		},
		1: hwmap.Router{
			Name:        "Chicago",
			ProberSrcIP: "10.0.0.2",
			Ifaces: []hwmap.Interface{{
				MAC:         mac("02:00:00:00:01:00"),
				Neighbor:    topology.RouterID(0),
				NeighborMAC: mac("02:00:00:00:00:01"),
			}},
		},
	}
	lookup, err := hwmap.NewLookup(mapping)
	require.Nil(t, err)
	return lookup
}

func delayConfig(t *testing.T) *config.DelayStaticCfg {
	conf, err := config.LoadTestingConfig()
	require.Nil(t, err)
	return &conf.S.Delay
}

// windowedAccumulator spans 0..10s so the considered window is [1, 9)
func windowedAccumulator() *tracker.Accumulator {
	acc := tracker.NewAccumulator(1.0, 2)
	acc.ObserveTimestamp(0.0)
	acc.ObserveTimestamp(10.0)
	return acc
}

func TestCheckCompletenessPasses(t *testing.T) {
	acc := windowedAccumulator()
	for seq := uint64(0); seq < 5; seq++ {
		base := 2.0 + float64(seq)
		acc.RecordDelayerCrossing(testFlow, testLink, seq, base)
		acc.RecordDelayerCrossing(testFlow, testLink, seq, base+0.01)
	}

	assert.Nil(t, CheckCompleteness(acc, testLookup(t), 2), "complete crossings should pass")
}

func TestCheckCompletenessFlagsMissingEcho(t *testing.T) {
	acc := windowedAccumulator()
	acc.RecordDelayerCrossing(testFlow, testLink, 3, 4.0)

	err := CheckCompleteness(acc, testLookup(t), 2)
	require.NotNil(t, err, "a crossing with a single observation must discard the sample")
	assert.IsType(t, &CompletenessError{}, err)
}

func TestCheckCompletenessSeesThroughOverlappingFlows(t *testing.T) {
	acc := windowedAccumulator()

	// a second flow crossing the same link with the same sequence number
	// is complete; it must not paper over the first flow's missing echo
	other := tracker.FlowKey{Origin: 0, Prefix: "200.0.0.0/24"}
	acc.RecordDelayerCrossing(other, testLink, 3, 4.002)
	acc.RecordDelayerCrossing(other, testLink, 3, 4.012)
	acc.RecordDelayerCrossing(testFlow, testLink, 3, 4.0)

	err := CheckCompleteness(acc, testLookup(t), 2)
	require.NotNil(t, err, "the incomplete crossing must discard the sample")
	var missing *CompletenessError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, testFlow, missing.Flow)
	assert.Equal(t, 1, missing.Observed)
}

func TestCheckCompletenessIgnoresTruncatedCrossings(t *testing.T) {
	acc := windowedAccumulator()
	// a crossing right at the capture's end may legitimately miss its echo
	acc.RecordDelayerCrossing(testFlow, testLink, 3, 9.5)

	assert.Nil(t, CheckCompleteness(acc, testLookup(t), 2), "crossings beyond the window end are not gated")
}

func TestCheckAccuracy(t *testing.T) {
	lookup := testLookup(t)
	conf := delayConfig(t)

	makeAcc := func(outlier float64) *tracker.Accumulator {
		acc := windowedAccumulator()
		for seq := uint64(0); seq < 100; seq++ {
			base := 1.0 + float64(seq)*0.05
			acc.RecordDelayerCrossing(testFlow, testLink, seq, base)
			delta := 0.010
			if seq == 99 {
				delta = outlier
			}
			acc.RecordDelayerCrossing(testFlow, testLink, seq, base+delta)
		}
		return acc
	}

	assert.Nil(t, CheckAccuracy(makeAcc(0.010), lookup, conf), "uniform delays should pass")

	err := CheckAccuracy(makeAcc(0.050), lookup, conf)
	require.NotNil(t, err, "a delay five times the median should trip the upper bands")
	assert.IsType(t, &AccuracyError{}, err)
}

func TestCheckAccuracySkipsTruncatedCrossings(t *testing.T) {
	acc := windowedAccumulator()
	for seq := uint64(0); seq < 99; seq++ {
		base := 1.0 + float64(seq)*0.05
		acc.RecordDelayerCrossing(testFlow, testLink, seq, base)
		acc.RecordDelayerCrossing(testFlow, testLink, seq, base+0.010)
	}
	// a crossing past the window end is cut off by the capture's tail; its
	// delta is meaningless and must not enter the percentile bands
	acc.RecordDelayerCrossing(testFlow, testLink, 99, 9.5)
	acc.RecordDelayerCrossing(testFlow, testLink, 99, 9.55)

	assert.Nil(t, CheckAccuracy(acc, testLookup(t), delayConfig(t)),
		"out-of-window crossings must not skew the bands")
}

func TestCheckAccuracyVacuousWithoutDelayers(t *testing.T) {
	acc := windowedAccumulator()
	assert.Nil(t, CheckAccuracy(acc, testLookup(t), delayConfig(t)), "no delay taps means nothing to validate")
}
