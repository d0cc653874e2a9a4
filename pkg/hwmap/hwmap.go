// Package hwmap reads the hardware mapping emitted by the testbed
// orchestration: per router, whether it is external, the source address its
// prober injects with, and per-interface MAC/neighbor metadata. The mapping
// is the ground truth for classifying captured frames.
package hwmap

import (
	"fmt"
	"io/ioutil"
	"net"

	jsoniter "github.com/json-iterator/go"

	"github.com/netprobe/convtrace/pkg/topology"
)

//MAC is a comparable hardware address usable as a map key
type MAC [6]byte

//ParseMAC converts the usual colon-separated notation
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, err
	}
	if len(hw) != 6 {
		return mac, fmt.Errorf("hardware address %q is not 6 bytes", s)
	}
	copy(mac[:], hw)
	return mac, nil
}

//MACFromBytes converts a raw hardware address as handed out by the capture
//decoder. Addresses of unexpected width come back as the zero MAC.
func MACFromBytes(b []byte) MAC {
	var mac MAC
	if len(b) == 6 {
		copy(mac[:], b)
	}
	return mac
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

//UnmarshalJSON accepts the colon-separated string notation
func (m *MAC) UnmarshalJSON(data []byte) error {
	var s string
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMAC(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

//MarshalJSON renders the colon-separated string notation
func (m MAC) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(m.String())
}

type (
	//Interface is one physical port of a mapped router
	Interface struct {
		MAC         *MAC              `json:"mac"`
		Neighbor    topology.RouterID `json:"neighbor"`
		NeighborMAC *MAC              `json:"neighbor_mac"`
		//Delayed marks the directed link leaving this interface as an
		//artificial-delay element; frames crossing it are captured once on
		//each side of the delayer
		Delayed bool `json:"delayed"`
		//TargetDelay is the delay the element is configured to emulate, in
		//seconds
		TargetDelay float64 `json:"target_delay"`
	}

	//Router is the hardware metadata of one mapped router
	Router struct {
		Name     string `json:"name"`
		External bool   `json:"is_external"`
		//ProberSrcIP is set for internal routers only
		ProberSrcIP string      `json:"prober_src_ip,omitempty"`
		Ifaces      []Interface `json:"ifaces"`
	}

	//Mapping relates router identifiers to their hardware metadata
	Mapping map[topology.RouterID]Router
)

//Load reads a serialized hardware mapping
func Load(path string) (Mapping, error) {
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var mapping Mapping
	err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(contents, &mapping)
	if err != nil {
		return nil, err
	}
	return mapping, nil
}
