package violations

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

//Kind discriminates the violation value variants
type Kind int

//The three shapes a violation value can take
const (
	//KindDuration is a violation time in seconds
	KindDuration Kind = iota
	//KindPeer names the external peer observed at an egress
	KindPeer
	//KindRoute is an ordered list of hop-pair names
	KindRoute
)

//Value is one entry of a violation record. Internally it is an explicit
//tagged variant; on the wire it is encoded without a discriminant (number,
//string, or array of strings) because existing consumers distinguish the
//variants by shape. Changing the encoding breaks them.
type Value struct {
	Kind    Kind
	Seconds float64
	Peer    string
	Route   []string
}

//Duration builds a violation-time value
func Duration(seconds float64) Value {
	return Value{Kind: KindDuration, Seconds: seconds}
}

//PeerName builds an external-peer value
func PeerName(name string) Value {
	return Value{Kind: KindPeer, Peer: name}
}

//Route builds an ordered-route value
func Route(hops []string) Value {
	return Value{Kind: KindRoute, Route: hops}
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//MarshalJSON encodes the value by shape: number, string, or string array
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindDuration:
		return json.Marshal(v.Seconds)
	case KindPeer:
		return json.Marshal(v.Peer)
	case KindRoute:
		if v.Route == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.Route)
	}
	return nil, fmt.Errorf("unknown violation value kind %d", v.Kind)
}

//UnmarshalJSON decodes a shape-encoded value back into the tagged variant
func (v *Value) UnmarshalJSON(data []byte) error {
	var b byte
	for _, c := range data {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			b = c
			break
		}
	}

	switch {
	case b == '"':
		v.Kind = KindPeer
		return json.Unmarshal(data, &v.Peer)
	case b == '[':
		v.Kind = KindRoute
		return json.Unmarshal(data, &v.Route)
	case b == '-' || (b >= '0' && b <= '9'):
		v.Kind = KindDuration
		return json.Unmarshal(data, &v.Seconds)
	}
	return errors.New("violation value is neither a duration, a peer name, nor a route")
}
