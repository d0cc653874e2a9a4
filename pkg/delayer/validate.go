// Package delayer validates the fidelity of the artificial per-link delay
// emulation of one capture sample. A single dropped frame on a delay tap can
// silently bias the timing of the whole sample, so any irregularity discards
// the sample instead of trusting partial data.
package delayer

import (
	"fmt"

	"github.com/netprobe/convtrace/config"
	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/tracker"
	"github.com/netprobe/convtrace/util"
)

//CompletenessError reports a delay-tap crossing with missing observations
type CompletenessError struct {
	Flow     tracker.FlowKey
	Link     string
	Seq      uint64
	Observed int
	Expected int
}

func (e *CompletenessError) Error() string {
	return fmt.Sprintf("delay tap %s saw %d of %d observations for seq %d towards %s",
		e.Link, e.Observed, e.Expected, e.Seq, e.Flow.Prefix)
}

//AccuracyError reports a delay link whose emulated delays strayed outside
//the tolerance bands
type AccuracyError struct {
	Link   string
	Band   string
	Value  float64
	Median float64
}

func (e *AccuracyError) Error() string {
	return fmt.Sprintf("delay link %s failed the %s band: %.6fs against median %.6fs",
		e.Link, e.Band, e.Value, e.Median)
}

//CheckCompleteness asserts that every in-window crossing of a delay link was
//observed the expected number of times, per flow. Crossings cut off by the
//capture edges are not trusted to be complete and are skipped.
func CheckCompleteness(acc *tracker.Accumulator, lookup *hwmap.Lookup, expected int) error {
	for _, key := range acc.Flows() {
		for link, crossings := range acc.Flow(key).Delayers {
			for seq, times := range crossings {
				if !crossingConsidered(acc, times) {
					continue
				}
				if len(times) < expected {
					return &CompletenessError{
						Flow:     key,
						Link:     lookup.LinkName(link),
						Seq:      seq,
						Observed: len(times),
						Expected: expected,
					}
				}
			}
		}
	}
	return nil
}

// crossingConsidered mirrors the window gate for delay-tap records: a
// crossing counts when at least one observation lies within the considered
// window, or when none lies beyond its end.
func crossingConsidered(acc *tracker.Accumulator, times []float64) bool {
	allBeforeEnd := true
	for _, t := range times {
		if acc.InWindow(t) {
			return true
		}
		if !acc.BeforeWindowEnd(t) {
			allBeforeEnd = false
		}
	}
	return allBeforeEnd
}

//CheckAccuracy collects the per-sequence delay of every delay link and
//compares fixed percentiles against the link's median. Only crossings inside
//the considered window contribute; the capture edges carry truncated
//crossings whose deltas mean nothing. Emulated delay that drifts outside the
//tolerance bands makes the sample unusable.
func CheckAccuracy(acc *tracker.Accumulator, lookup *hwmap.Lookup, conf *config.DelayStaticCfg) error {
	perLink := make(map[hwmap.Link][]float64)
	for _, key := range acc.Flows() {
		for link, crossings := range acc.Flow(key).Delayers {
			for _, times := range crossings {
				if len(times) < 2 || !crossingConsidered(acc, times) {
					continue
				}
				sorted := util.SortedCopy(times)
				perLink[link] = append(perLink[link], sorted[1]-sorted[0])
			}
		}
	}

	for link, delays := range perLink {
		sorted := util.SortedCopy(delays)
		med := util.Median(sorted)

		bands := []struct {
			name   string
			pct    int
			factor float64
			low    bool
		}{
			{"p1", 1, conf.P1Low, true},
			{"p2", 2, conf.P2Low, true},
			{"p10", 10, conf.P10Low, true},
			{"p90", 90, conf.P90High, false},
			{"p98", 98, conf.P98High, false},
			{"p99", 99, conf.P99High, false},
		}
		for _, band := range bands {
			value := util.Percentile(sorted, band.pct)
			if band.low && value < band.factor*med {
				return &AccuracyError{Link: lookup.LinkName(link), Band: band.name, Value: value, Median: med}
			}
			if !band.low && value > band.factor*med {
				return &AccuracyError{Link: lookup.LinkName(link), Band: band.name, Value: value, Median: med}
			}
		}
	}
	return nil
}
