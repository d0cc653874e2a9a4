// Package timeseries reconstructs per-event update time series from an
// accumulated capture sample. It backs the export mode, which emits raw
// forwarding, path, and reachability changes instead of violation times.
package timeseries

import (
	"sort"

	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/topology"
	"github.com/netprobe/convtrace/pkg/tracker"
)

//FWRecord marks a change of a router's forwarding next hop for a prefix.
//A nil NextHop marks the start of a black hole.
type FWRecord struct {
	Time    float64
	Src     topology.RouterID
	SrcName string
	Prefix  string
	Seq     uint64
	NextHop *topology.RouterID
}

//PathRecord marks a change of the full forwarding path of a flow
type PathRecord struct {
	Time    float64
	Src     topology.RouterID
	SrcName string
	Prefix  string
	Seq     uint64
	Path    []topology.RouterID
}

//DPRecord marks a change of a flow's data-plane reachability
type DPRecord struct {
	Time      float64
	Src       topology.RouterID
	SrcName   string
	Prefix    string
	Reachable bool
}

type lastHop struct {
	next topology.RouterID
	seq  uint64
}

//Recorder collects forwarding-update events while a capture is classified.
//Only first-hop observations feed it: the next hop of the origin router is
//the only forwarding decision a probe reveals unambiguously.
type Recorder struct {
	lookup    *hwmap.Lookup
	frequency float64

	lastNextHop map[tracker.FlowKey]lastHop
	fwUpdates   []FWRecord
	//NegativeBackdates counts black-hole events whose reconstructed start
	//would precede the capture; they are dropped and reported
	NegativeBackdates int
}

//NewRecorder prepares forwarding-update tracking for one sample captured at
//the given probing frequency
func NewRecorder(lookup *hwmap.Lookup, frequency uint64) *Recorder {
	return &Recorder{
		lookup:      lookup,
		frequency:   float64(frequency),
		lastNextHop: make(map[tracker.FlowKey]lastHop),
	}
}

//ObserveFirstHop registers that probe seq of the given flow left its origin
//towards nextHop at time t. A change of next hop, or a resumed next hop
//after missing sequence numbers, produces forwarding records; a gap in the
//sequence numbers additionally produces a back-dated black-hole record.
func (r *Recorder) ObserveFirstHop(key tracker.FlowKey, seq uint64, nextHop topology.RouterID, t float64) {
	last, seen := r.lastNextHop[key]
	r.lastNextHop[key] = lastHop{next: nextHop, seq: seq}

	if seen && last.next == nextHop && last.seq+1 == seq {
		return
	}

	if seen && last.seq+1 < seq {
		// probes between last.seq and seq were never forwarded; date the
		// black hole back to when the first of them should have appeared
		gap := float64(seq-last.seq-1) / r.frequency
		if t-gap >= 0 {
			r.fwUpdates = append(r.fwUpdates, FWRecord{
				Time:    t - gap,
				Src:     key.Origin,
				SrcName: r.lookup.Name(key.Origin),
				Prefix:  key.Prefix,
				Seq:     last.seq,
			})
		} else {
			r.NegativeBackdates++
		}
	}

	next := nextHop
	r.fwUpdates = append(r.fwUpdates, FWRecord{
		Time:    t,
		Src:     key.Origin,
		SrcName: r.lookup.Name(key.Origin),
		Prefix:  key.Prefix,
		Seq:     seq,
		NextHop: &next,
	})
}

//ForwardingUpdates returns the collected records sorted by time
func (r *Recorder) ForwardingUpdates() []FWRecord {
	sort.SliceStable(r.fwUpdates, func(i, j int) bool {
		return r.fwUpdates[i].Time < r.fwUpdates[j].Time
	})
	return r.fwUpdates
}

//PathUpdates derives, per flow, the moments the reconstructed forwarding
//path changed within the considered window
func PathUpdates(acc *tracker.Accumulator, lookup *hwmap.Lookup) []PathRecord {
	var records []PathRecord

	for _, key := range acc.Flows() {
		flow := acc.Flow(key)

		var last []topology.RouterID
		for _, seq := range acc.ConsideredSeqs(key) {
			path := flow.Paths[seq]
			if pathsEqual(path, last) {
				continue
			}
			last = path
			records = append(records, PathRecord{
				Time:    flow.SendTimes[seq],
				Src:     key.Origin,
				SrcName: lookup.Name(key.Origin),
				Prefix:  key.Prefix,
				Seq:     seq,
				Path:    path,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time < records[j].Time
	})
	return records
}

//ReachabilityUpdates derives, per flow, the moments data-plane reachability
//flipped within the considered window. Flows start out unreachable.
func ReachabilityUpdates(acc *tracker.Accumulator, lookup *hwmap.Lookup) []DPRecord {
	var records []DPRecord

	for _, key := range acc.Flows() {
		flow := acc.Flow(key)

		last := false
		for _, seq := range acc.ConsideredSeqs(key) {
			_, reachable := flow.Egress[seq]
			if reachable == last {
				continue
			}
			last = reachable
			records = append(records, DPRecord{
				Time:      flow.SendTimes[seq],
				Src:       key.Origin,
				SrcName:   lookup.Name(key.Origin),
				Prefix:    key.Prefix,
				Reachable: reachable,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time < records[j].Time
	})
	return records
}

func pathsEqual(a, b []topology.RouterID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
