package hwmap

import (
	"fmt"

	"github.com/netprobe/convtrace/pkg/topology"
)

//Link is a directed router pair
type Link struct {
	From topology.RouterID
	To   topology.RouterID
}

//MACPair keys a directed link by the hardware addresses seen on the wire
type MACPair struct {
	Src MAC
	Dst MAC
}

//Lookup holds the classification tables derived from one hardware mapping.
//It is built once per capture sample and is read-only afterwards.
type Lookup struct {
	//RouterByProberIP resolves a probe's source address to the router that
	//injected it
	RouterByProberIP map[string]topology.RouterID
	//PeerByLastHopMAC resolves the source MAC of a frame crossing to an
	//external peer into (last internal hop, external peer)
	PeerByLastHopMAC map[MAC]Link
	//LinkByMACPair resolves (source MAC, destination MAC) of an internal
	//frame into the directed link it traversed
	LinkByMACPair map[MACPair]Link
	//DelayedLinks maps each artificial-delay link to its configured delay
	DelayedLinks map[Link]float64

	names map[topology.RouterID]string
}

//NewLookup derives the classification tables from a hardware mapping
func NewLookup(mapping Mapping) (*Lookup, error) {
	lookup := &Lookup{
		RouterByProberIP: make(map[string]topology.RouterID),
		PeerByLastHopMAC: make(map[MAC]Link),
		LinkByMACPair:    make(map[MACPair]Link),
		DelayedLinks:     make(map[Link]float64),
		names:            make(map[topology.RouterID]string, len(mapping)),
	}

	for rid, router := range mapping {
		lookup.names[rid] = router.Name

		if router.External {
			// external routers hang off exactly one internal neighbor; the
			// MAC of that neighbor's interface marks the last hop before
			// leaving the measured network
			if len(router.Ifaces) != 1 {
				return nil, fmt.Errorf("external router %q has %d interfaces, expected 1", router.Name, len(router.Ifaces))
			}
			iface := router.Ifaces[0]
			if iface.NeighborMAC == nil {
				return nil, fmt.Errorf("external router %q has no neighbor MAC", router.Name)
			}
			lookup.PeerByLastHopMAC[*iface.NeighborMAC] = Link{From: iface.Neighbor, To: rid}
			continue
		}

		// external routers do not send prober packets
		if router.ProberSrcIP == "" {
			return nil, fmt.Errorf("internal router %q has no prober source address", router.Name)
		}
		lookup.RouterByProberIP[router.ProberSrcIP] = rid

		for _, iface := range router.Ifaces {
			// interfaces without a neighbor MAC face external routers
			if iface.MAC == nil || iface.NeighborMAC == nil {
				continue
			}
			link := Link{From: rid, To: iface.Neighbor}
			lookup.LinkByMACPair[MACPair{Src: *iface.MAC, Dst: *iface.NeighborMAC}] = link
			if iface.Delayed {
				lookup.DelayedLinks[link] = iface.TargetDelay
			}
		}
	}

	return lookup, nil
}

//Name resolves a router identifier against the mapping's inventory
func (l *Lookup) Name(id topology.RouterID) string {
	return l.names[id]
}

//RouterNames exposes the mapping's id -> name inventory for verification
//against the expected topology
func (l *Lookup) RouterNames() map[topology.RouterID]string {
	return l.names
}

//IsDelayed reports whether the directed link is an artificial-delay element
func (l *Lookup) IsDelayed(link Link) bool {
	_, ok := l.DelayedLinks[link]
	return ok
}

//HasDelayedLinks reports whether this sample ran with delay emulation at all
func (l *Lookup) HasDelayedLinks() bool {
	return len(l.DelayedLinks) > 0
}

//LinkName renders a directed link as the hop-pair notation used in the
//persisted route values
func (l *Lookup) LinkName(link Link) string {
	return fmt.Sprintf("(%s, %s)", l.Name(link.From), l.Name(link.To))
}
