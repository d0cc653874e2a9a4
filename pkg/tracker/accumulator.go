// Package tracker accumulates per-flow, per-sequence state while one capture
// sample is replayed. An Accumulator is owned exclusively by the worker
// processing that sample and is discarded once the sample's violation record
// has been synthesized.
package tracker

import (
	"fmt"
	"math"
	"sort"

	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/topology"
)

//FlowKey identifies one measurement flow: the router injecting probes and
//the destination prefix they are addressed to. Sequence numbers are only
//unique within a flow.
type FlowKey struct {
	Origin topology.RouterID
	Prefix string
}

//Egress is the observation of a probe crossing to an external peer
type Egress struct {
	Time float64
	Peer topology.RouterID
}

//Flow holds everything observed for one (origin, prefix) pair, keyed by
//probe sequence number
type Flow struct {
	//SendTimes records when each probe was injected
	SendTimes map[uint64]float64
	//Egress records when and where each probe left the measured network
	Egress map[uint64]Egress
	//NodeVisits counts, per sequence, how often each router was reached
	NodeVisits map[uint64]map[topology.RouterID]uint64
	//LinkVisits counts, per sequence, how often each directed link carried
	//the probe
	LinkVisits map[uint64]map[hwmap.Link]uint64
	//Paths is the ordered router path reconstructed from non-duplicate,
	//non-delay-echo observations
	Paths map[uint64][]topology.RouterID
	//Delayers holds the raw delay-tap timestamps of this flow's probes,
	//per delayed link and sequence. Two flows crossing the same delayer
	//with the same sequence number must never share a record, or echo
	//suppression and delay validation mix their frames up.
	Delayers map[hwmap.Link]map[uint64][]float64
}

func newFlow() *Flow {
	return &Flow{
		SendTimes:  make(map[uint64]float64),
		Egress:     make(map[uint64]Egress),
		NodeVisits: make(map[uint64]map[topology.RouterID]uint64),
		LinkVisits: make(map[uint64]map[hwmap.Link]uint64),
		Paths:      make(map[uint64][]topology.RouterID),
		Delayers:   make(map[hwmap.Link]map[uint64][]float64),
	}
}

//DuplicateObservationError is raised when the same (flow, sequence) pair is
//seen twice at a stage where the capture can only contain it once. It marks
//the sample as untrustworthy.
type DuplicateObservationError struct {
	Flow  FlowKey
	Seq   uint64
	Stage string
}

func (e *DuplicateObservationError) Error() string {
	return fmt.Sprintf("duplicate %s observation for origin %d prefix %s seq %d",
		e.Stage, e.Flow.Origin, e.Flow.Prefix, e.Seq)
}

//Accumulator owns all per-flow and per-delayer state of one capture sample
type Accumulator struct {
	flows map[FlowKey]*Flow

	first float64
	last  float64

	trim     float64
	baseline uint64

	//Packets counts every frame of the capture, Bytes their original length
	Packets uint64
	Bytes   uint64
	//UsefulPackets counts frames usable for egress correlation
	UsefulPackets uint64
	UsefulBytes   uint64
	//Rejected counts frames that could not be parsed as probes; expected
	//capture noise, counted but never logged individually
	Rejected uint64
	//OriginInjections counts frames carrying the prober injection address,
	//independent of classification, for cross-checking
	OriginInjections uint64
}

//NewAccumulator prepares empty per-sample state. trim is the number of
//seconds cut from each end of the capture for the considered window;
//baseline is the per-router visit count a probe legitimately produces (the
//seeded origin count and the loop threshold are derived from it).
func NewAccumulator(trim float64, baseline uint64) *Accumulator {
	return &Accumulator{
		flows:    make(map[FlowKey]*Flow),
		first:    math.NaN(),
		last:     math.NaN(),
		trim:     trim,
		baseline: baseline,
	}
}

//ObserveTimestamp widens the capture's observed time span
func (a *Accumulator) ObserveTimestamp(t float64) {
	if math.IsNaN(a.first) {
		a.first = t
	}
	a.last = t
}

//Flow returns the accumulated state of the given flow, creating it if needed
func (a *Accumulator) Flow(key FlowKey) *Flow {
	flow, ok := a.flows[key]
	if !ok {
		flow = newFlow()
		a.flows[key] = flow
	}
	return flow
}

//Flows lists all flows seen so far in deterministic order
func (a *Accumulator) Flows() []FlowKey {
	keys := make([]FlowKey, 0, len(a.flows))
	for key := range a.flows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Origin != keys[j].Origin {
			return keys[i].Origin < keys[j].Origin
		}
		return keys[i].Prefix < keys[j].Prefix
	})
	return keys
}

//RecordOrigin stores the send time of a probe injection. Seeing the same
//sequence twice as an origin means the capture is broken.
func (a *Accumulator) RecordOrigin(key FlowKey, seq uint64, t float64) error {
	flow := a.Flow(key)
	if _, dup := flow.SendTimes[seq]; dup {
		return &DuplicateObservationError{Flow: key, Seq: seq, Stage: "origin"}
	}
	flow.SendTimes[seq] = t
	return nil
}

//RecordEgress stores the arrival of a probe at the edge of the measured
//network together with the external peer it was forwarded to
func (a *Accumulator) RecordEgress(key FlowKey, seq uint64, t float64, peer topology.RouterID) error {
	flow := a.Flow(key)
	if _, dup := flow.Egress[seq]; dup {
		return &DuplicateObservationError{Flow: key, Seq: seq, Stage: "egress"}
	}
	flow.Egress[seq] = Egress{Time: t, Peer: peer}
	return nil
}

//RecordTransit counts a probe crossing the given directed link. A frame on
//a delayed link is one of baseline taps of a single traversal, so it adds
//one visit; a frame on an untapped link is the whole traversal and adds the
//full baseline. This keeps NodeVisits comparable across links: one pass over
//any router totals exactly the baseline. appendPath controls whether the hop
//extends the reconstructed path; the delayed echo of a crossing must not, or
//every delayed hop would appear twice.
func (a *Accumulator) RecordTransit(key FlowKey, seq uint64, link hwmap.Link, delayed, appendPath bool) {
	flow := a.Flow(key)

	nodes, ok := flow.NodeVisits[seq]
	if !ok {
		// seed the counter with the origin router already visited: the
		// injection itself never matches a link and would otherwise look
		// like a loop once the probe returns home
		nodes = map[topology.RouterID]uint64{key.Origin: a.baseline}
		flow.NodeVisits[seq] = nodes
	}
	visits := a.baseline
	if delayed {
		visits = 1
	}
	nodes[link.To] += visits

	links, ok := flow.LinkVisits[seq]
	if !ok {
		links = make(map[hwmap.Link]uint64)
		flow.LinkVisits[seq] = links
	}
	links[link]++

	if appendPath {
		path, ok := flow.Paths[seq]
		if !ok {
			path = []topology.RouterID{link.From}
		}
		flow.Paths[seq] = append(path, link.To)
	}
}

//RecordDelayerCrossing appends an observation timestamp to the delay-tap
//record of the given flow, link, and sequence, returning how many
//observations that crossing now has
func (a *Accumulator) RecordDelayerCrossing(key FlowKey, link hwmap.Link, seq uint64, t float64) int {
	flow := a.Flow(key)
	crossings, ok := flow.Delayers[link]
	if !ok {
		crossings = make(map[uint64][]float64)
		flow.Delayers[link] = crossings
	}
	crossings[seq] = append(crossings[seq], t)
	return len(crossings[seq])
}

//Window returns the considered window of this sample: the observed time span
//trimmed by the configured amount at each end. ok is false when the capture
//was empty.
func (a *Accumulator) Window() (start, end float64, ok bool) {
	if math.IsNaN(a.first) {
		return 0, 0, false
	}
	return a.first + a.trim, a.last - a.trim, true
}

//InWindow reports whether a timestamp falls into the considered window
func (a *Accumulator) InWindow(t float64) bool {
	start, end, ok := a.Window()
	return ok && start <= t && t < end
}

//BeforeWindowEnd reports whether a timestamp precedes the window's end
func (a *Accumulator) BeforeWindowEnd(t float64) bool {
	_, end, ok := a.Window()
	return ok && t < end
}

//HasBoundaryObservations reports whether the flow injected probes both at or
//before the window start and after the window end. Flows that do not cover
//both boundaries cannot be analyzed and are dropped rather than extrapolated.
func (a *Accumulator) HasBoundaryObservations(key FlowKey) bool {
	start, end, ok := a.Window()
	if !ok {
		return false
	}

	flow := a.Flow(key)
	var before, after bool
	for _, t := range flow.SendTimes {
		if t <= start {
			before = true
		}
		if t > end {
			after = true
		}
		if before && after {
			return true
		}
	}
	return false
}

//ConsideredSeqs lists, in ascending order, the sequence numbers of probes
//sent strictly within the considered window
func (a *Accumulator) ConsideredSeqs(key FlowKey) []uint64 {
	start, end, ok := a.Window()
	if !ok {
		return nil
	}

	flow := a.Flow(key)
	seqs := make([]uint64, 0, len(flow.SendTimes))
	for seq, t := range flow.SendTimes {
		if start <= t && t < end {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

//ReceivedSeqs filters the given sequence numbers down to those that were
//also observed at egress, preserving order
func (a *Accumulator) ReceivedSeqs(key FlowKey, seqs []uint64) []uint64 {
	flow := a.Flow(key)
	received := make([]uint64, 0, len(seqs))
	for _, seq := range seqs {
		if _, ok := flow.Egress[seq]; ok {
			received = append(received, seq)
		}
	}
	return received
}

//Baseline is the per-router visit count of a legitimate single pass
func (a *Accumulator) Baseline() uint64 {
	return a.baseline
}

//CheckInjectionCount cross-checks the number of recorded origin observations
//against the raw count of frames carrying the prober injection address. A
//mismatch means classification and the capture disagree about what was
//injected.
func (a *Accumulator) CheckInjectionCount() error {
	var recorded uint64
	for _, flow := range a.flows {
		recorded += uint64(len(flow.SendTimes))
	}
	if recorded != a.OriginInjections {
		return fmt.Errorf("recorded %d origin observations but counted %d injection frames", recorded, a.OriginInjections)
	}
	return nil
}
