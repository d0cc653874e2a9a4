package parser

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/netprobe/convtrace/config"
	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/timeseries"
	"github.com/netprobe/convtrace/pkg/tracker"
	"github.com/netprobe/convtrace/util"
)

//Classifier turns the raw frames of one capture into accumulator records.
//It is not safe for concurrent use; every sample gets its own instance.
type Classifier struct {
	lookup *hwmap.Lookup
	acc    *tracker.Accumulator

	//recorder collects forwarding-update events in export mode; nil
	//otherwise
	recorder *timeseries.Recorder

	proberMAC     hwmap.MAC
	minSize       int
	protocol      layers.IPProtocol
	prefixBits    int
	echoCrossings int

	// reused across frames, gopacket's zero-allocation decoding path
	eth     layers.Ethernet
	ip4     layers.IPv4
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

//NewClassifier builds a classifier for one sample from the prober's static
//configuration
func NewClassifier(conf *config.ProberStaticCfg, lookup *hwmap.Lookup,
	acc *tracker.Accumulator, recorder *timeseries.Recorder) (*Classifier, error) {

	proberMAC, err := hwmap.ParseMAC(conf.SourceMAC)
	if err != nil {
		return nil, err
	}

	classifier := &Classifier{
		lookup:        lookup,
		acc:           acc,
		recorder:      recorder,
		proberMAC:     proberMAC,
		minSize:       conf.MinPacketSize,
		protocol:      layers.IPProtocol(conf.Protocol),
		prefixBits:    conf.PrefixLength,
		echoCrossings: conf.DelayCrossings,
	}
	classifier.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet, &classifier.eth, &classifier.ip4)
	classifier.parser.IgnoreUnsupported = true
	return classifier, nil
}

//Classify records one captured frame. The only errors it returns are
//duplicate origin or egress observations, which invalidate the whole sample.
func (c *Classifier) Classify(data []byte, ci gopacket.CaptureInfo) error {
	t := float64(ci.Timestamp.UnixNano()) / 1e9
	c.acc.ObserveTimestamp(t)
	c.acc.Packets++
	c.acc.Bytes += uint64(ci.Length)

	seq, ok := c.parseProbe(data, ci.Length)
	if !ok {
		c.acc.Rejected++
		return nil
	}

	srcMAC := hwmap.MACFromBytes(c.eth.SrcMAC)
	prefix := util.PrefixFromIP(c.ip4.DstIP, c.prefixBits)

	// injections are counted even when the prefix lookup fails below, so
	// the cross-check catches classification bugs rather than hiding them
	if srcMAC == c.proberMAC {
		c.acc.OriginInjections++
	}

	// probe-shaped frames with an unattributable source address are
	// background noise on the tap, counted but never logged per frame
	origin, known := c.lookup.RouterByProberIP[c.ip4.SrcIP.String()]
	if !known {
		c.acc.Rejected++
		return nil
	}
	key := tracker.FlowKey{Origin: origin, Prefix: prefix}

	if srcMAC == c.proberMAC {
		return c.acc.RecordOrigin(key, seq, t)
	}

	if link, isEgress := c.lookup.PeerByLastHopMAC[srcMAC]; isEgress {
		c.acc.UsefulPackets++
		c.acc.UsefulBytes += uint64(ci.Length)
		c.observeFirstHop(key, seq, link, t)
		c.acc.RecordTransit(key, seq, link, c.lookup.IsDelayed(link), true)
		return c.acc.RecordEgress(key, seq, t, link.To)
	}

	pair := hwmap.MACPair{Src: srcMAC, Dst: hwmap.MACFromBytes(c.eth.DstMAC)}
	if link, isTransit := c.lookup.LinkByMACPair[pair]; isTransit {
		delayed := c.lookup.IsDelayed(link)
		appendPath := true
		if delayed {
			// a delayed link is tapped on both sides of the delayer; only
			// the first observation of each crossing extends the path
			n := c.acc.RecordDelayerCrossing(key, link, seq, t)
			appendPath = n%c.echoCrossings != 0
		}
		if appendPath {
			c.observeFirstHop(key, seq, link, t)
		}
		c.acc.RecordTransit(key, seq, link, delayed, appendPath)
		return nil
	}

	c.acc.Rejected++
	return nil
}

// parseProbe applies the probe gates and extracts the sequence number
func (c *Classifier) parseProbe(data []byte, length int) (uint64, bool) {
	if length < c.minSize {
		return 0, false
	}
	if err := c.parser.DecodeLayers(data, &c.decoded); err != nil {
		return 0, false
	}

	var sawIPv4 bool
	for _, layerType := range c.decoded {
		if layerType == layers.LayerTypeIPv4 {
			sawIPv4 = true
		}
	}
	if !sawIPv4 || c.ip4.Protocol != c.protocol {
		return 0, false
	}

	payload := c.ip4.Payload
	if len(payload) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(payload[:8]), true
}

// observeFirstHop feeds the forwarding-update recorder, which only cares
// about the hop leaving the origin router, once the capture has settled
func (c *Classifier) observeFirstHop(key tracker.FlowKey, seq uint64, link hwmap.Link, t float64) {
	if c.recorder == nil || link.From != key.Origin {
		return
	}
	start, _, ok := c.acc.Window()
	if !ok || t <= start {
		return
	}
	c.recorder.ObserveFirstHop(key, seq, link.To, t)
}
