// Package violations turns the state accumulated over one capture sample
// into duration-valued violation records for the forwarding properties under
// test: reachability, loop-freedom, stable-path, and waypoint-preservation.
package violations

type (
	//PrefixData maps entity names (router names and derived auxiliary keys)
	//to violation values, per destination prefix
	PrefixData map[string]map[string]Value

	//Sample is the synthesized output unit of one capture sample for one
	//property. Samples are append-only: once written they are never mutated,
	//only joined by later samples.
	Sample struct {
		SampleID       string     `json:"sample_id"`
		ViolationTimes PrefixData `json:"violation_times"`
	}
)

func (d PrefixData) put(prefix, entity string, value Value) {
	entities, ok := d[prefix]
	if !ok {
		entities = make(map[string]Value)
		d[prefix] = entities
	}
	entities[entity] = value
}
