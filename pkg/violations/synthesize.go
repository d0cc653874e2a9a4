package violations

import (
	"sort"

	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/topology"
	"github.com/netprobe/convtrace/pkg/tracker"
	"github.com/netprobe/convtrace/util"
)

type (
	//Properties collects the per-property violation data of one sample
	Properties struct {
		Reachability PrefixData
		LoopFreedom  PrefixData
		StablePath   PrefixData
		//Waypoints holds one PrefixData per waypoint router name
		Waypoints map[string]PrefixData
	}
)

//Synthesize converts the accumulated state of one capture sample into
//violation values for every property, restricted to the considered window.
//Flows that lack probe injections at the window boundaries cannot be
//analyzed; they are returned so the caller can log and notify.
func Synthesize(acc *tracker.Accumulator, lookup *hwmap.Lookup, frequency uint64) (*Properties, []tracker.FlowKey) {
	props := &Properties{
		Reachability: make(PrefixData),
		LoopFreedom:  make(PrefixData),
		StablePath:   make(PrefixData),
		Waypoints:    make(map[string]PrefixData),
	}
	var dropped []tracker.FlowKey

	freq := float64(frequency)

	for _, key := range acc.Flows() {
		if !acc.HasBoundaryObservations(key) {
			dropped = append(dropped, key)
			continue
		}

		flow := acc.Flow(key)
		origin := lookup.Name(key.Origin)
		considered := acc.ConsideredSeqs(key)
		received := acc.ReceivedSeqs(key, considered)

		// reachability: probes that never made it to an external peer
		props.Reachability.put(key.Prefix, origin,
			Duration(float64(len(considered)-len(received))/freq))

		// loop-freedom: any router visited more often than one legitimate
		// pass plus the seeded origin count allows
		looping := 0
		for _, seq := range considered {
			if maxVisits(flow.NodeVisits[seq]) > acc.Baseline() {
				looping++
			}
		}
		props.LoopFreedom.put(key.Prefix, origin, Duration(float64(looping)/freq))

		if len(received) == 0 {
			continue
		}

		// received is ordered by sequence number, so its ends identify the
		// pre-event and post-event forwarding state
		firstSeq := received[0]
		lastSeq := received[len(received)-1]
		firstPath := edgeSet(flow.LinkVisits[firstSeq])
		lastPath := edgeSet(flow.LinkVisits[lastSeq])

		// stable-path: probes that followed neither the initial nor the
		// final path
		strayed := 0
		for _, seq := range received {
			path := edgeSet(flow.LinkVisits[seq])
			if !linksEqual(path, firstPath) && !linksEqual(path, lastPath) {
				strayed++
			}
		}
		props.StablePath.put(key.Prefix, origin, Duration(float64(strayed)/freq))

		// auxiliary entries for manual cross-validation
		extInit := lookup.Name(flow.Egress[firstSeq].Peer)
		extPost := lookup.Name(flow.Egress[lastSeq].Peer)
		linksInit := linkNames(lookup, firstPath)
		linksPost := linkNames(lookup, lastPath)

		for _, data := range []PrefixData{props.Reachability, props.LoopFreedom, props.StablePath} {
			putAuxiliary(data, key.Prefix, origin, extInit, extPost, linksInit, linksPost)
		}

		// waypoint-preservation: routers on both the initial and the final
		// path must still be crossed by every received probe
		for _, waypoint := range waypoints(key.Origin, firstPath, lastPath) {
			missed := 0
			for _, seq := range received {
				if flow.NodeVisits[seq][waypoint] == 0 {
					missed++
				}
			}

			name := lookup.Name(waypoint)
			data, ok := props.Waypoints[name]
			if !ok {
				data = make(PrefixData)
				props.Waypoints[name] = data
			}
			data.put(key.Prefix, origin, Duration(float64(missed)/freq))
			putAuxiliary(data, key.Prefix, origin, extInit, extPost, linksInit, linksPost)
		}
	}

	return props, dropped
}

func putAuxiliary(data PrefixData, prefix, origin, extInit, extPost string, linksInit, linksPost []string) {
	data.put(prefix, origin+"_ext_init", PeerName(extInit))
	data.put(prefix, origin+"_ext_post", PeerName(extPost))
	data.put(prefix, origin+"_links_init", Route(linksInit))
	data.put(prefix, origin+"_links_post", Route(linksPost))
}

func maxVisits(visits map[topology.RouterID]uint64) uint64 {
	var max uint64
	for _, count := range visits {
		max = util.MaxUint64(max, count)
	}
	return max
}

// edgeSet reduces a link-visit counter to the sorted set of traversed links.
// Paths are compared as unordered edge sets, which is exact for simple paths.
func edgeSet(visits map[hwmap.Link]uint64) []hwmap.Link {
	links := make([]hwmap.Link, 0, len(visits))
	for link, count := range visits {
		if count > 0 {
			links = append(links, link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].From != links[j].From {
			return links[i].From < links[j].From
		}
		return links[i].To < links[j].To
	})
	return links
}

func linksEqual(a, b []hwmap.Link) bool {
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

func linkNames(lookup *hwmap.Lookup, links []hwmap.Link) []string {
	names := make([]string, len(links))
	for i, link := range links {
		names[i] = lookup.LinkName(link)
	}
	return names
}

// waypoints lists the routers present on both paths, excluding the flow's
// origin, in order of appearance on the first path
func waypoints(origin topology.RouterID, firstPath, lastPath []hwmap.Link) []topology.RouterID {
	onLast := make(map[topology.RouterID]bool)
	for _, link := range lastPath {
		onLast[link.From] = true
		onLast[link.To] = true
	}

	var shared []topology.RouterID
	seen := make(map[topology.RouterID]bool)
	for _, link := range firstPath {
		for _, router := range []topology.RouterID{link.From, link.To} {
			if router == origin || seen[router] || !onLast[router] {
				continue
			}
			seen[router] = true
			shared = append(shared, router)
		}
	}
	return shared
}
