package parser

import (
	"compress/gzip"
	"encoding/binary"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

const proberMAC = "de:ad:be:ef:00:00"

//frame is one synthetic capture frame
type frame struct {
	data []byte
	ci   gopacket.CaptureInfo
}

type frameSpec struct {
	time     float64
	srcMAC   string
	dstMAC   string
	srcIP    string
	dstIP    string
	seq      uint64
	protocol uint8
	//payloadLen pads or shrinks the sequence payload; 0 selects a probe's
	//natural 26 bytes (60-byte frame)
	payloadLen int
	//wireLen overrides the recorded wire length; 0 keeps the serialized
	//length. The serializer pads every frame to the Ethernet minimum, so
	//frames below 60 bytes on the wire can only be expressed this way.
	wireLen int
}

func buildFrame(t *testing.T, spec frameSpec) frame {
	t.Helper()

	srcMAC, err := net.ParseMAC(spec.srcMAC)
	require.Nil(t, err)
	dstMAC, err := net.ParseMAC(spec.dstMAC)
	require.Nil(t, err)

	protocol := spec.protocol
	if protocol == 0 {
		protocol = 253
	}
	payloadLen := spec.payloadLen
	if payloadLen == 0 {
		payloadLen = 26
	}

	payload := make([]byte, payloadLen)
	if payloadLen >= 8 {
		binary.BigEndian.PutUint64(payload, spec.seq)
	}

	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocol(protocol),
		SrcIP:    net.ParseIP(spec.srcIP).To4(),
		DstIP:    net.ParseIP(spec.dstIP).To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.Nil(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, gopacket.Payload(payload)))

	data := buf.Bytes()
	wireLen := spec.wireLen
	if wireLen == 0 {
		wireLen = len(data)
	}
	sec := int64(spec.time)
	nsec := int64((spec.time - float64(sec)) * 1e9)
	return frame{
		data: data,
		ci: gopacket.CaptureInfo{
			Timestamp:     time.Unix(sec, nsec),
			CaptureLength: len(data),
			Length:        wireLen,
		},
	}
}

// injection builds the probe frame a router's prober emits
func injection(t *testing.T, at float64, srcIP, dstIP string, seq uint64) frame {
	return buildFrame(t, frameSpec{
		time: at, srcMAC: proberMAC, dstMAC: "ff:ff:ff:ff:ff:ff",
		srcIP: srcIP, dstIP: dstIP, seq: seq,
	})
}

// writeCapture writes frames to a pcap file, gzip-compressed when the name
// ends in .gz
func writeCapture(t *testing.T, path string, frames []frame) {
	t.Helper()

	file, err := os.Create(path)
	require.Nil(t, err)
	defer file.Close()

	var gz *gzip.Writer
	w := pcapgo.NewWriter(file)
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(file)
		w = pcapgo.NewWriter(gz)
	}

	require.Nil(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, f := range frames {
		require.Nil(t, w.WritePacket(f.ci, f.data))
	}
	if gz != nil {
		require.Nil(t, gz.Close())
	}
}
