// Package topology holds the expected-topology object generated by the
// experiment tooling. The pipeline consumes it read-only: it resolves router
// identifiers to names and asserts that the hardware mapping shipped with a
// capture still describes the same router inventory.
package topology

import (
	"fmt"
	"io/ioutil"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

//RouterID identifies a router within one experiment topology
type RouterID int

type (
	//Router is one node of the expected topology
	Router struct {
		ID       RouterID `json:"id"`
		Name     string   `json:"name"`
		External bool     `json:"external"`
	}

	//Topology is the expected network layout of one (topology, scenario) unit
	Topology struct {
		Name    string   `json:"name"`
		Routers []Router `json:"routers"`

		byID   map[RouterID]Router
		byName map[string]RouterID
	}
)

//InventoryMismatchError reports a hardware mapping whose router inventory
//does not match the expected topology. This is a configuration error rather
//than a data-quality issue and must abort the run.
type InventoryMismatchError struct {
	Detail string
}

func (e *InventoryMismatchError) Error() string {
	return "hardware mapping does not match expected topology: " + e.Detail
}

//LoadTopology reads and indexes a serialized expected topology
func LoadTopology(path string) (*Topology, error) {
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	topo := new(Topology)
	err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(contents, topo)
	if err != nil {
		return nil, err
	}
	topo.index()
	return topo, nil
}

func (t *Topology) index() {
	t.byID = make(map[RouterID]Router, len(t.Routers))
	t.byName = make(map[string]RouterID, len(t.Routers))
	for _, router := range t.Routers {
		t.byID[router.ID] = router
		t.byName[router.Name] = router.ID
	}
}

//NameByID resolves a router identifier to its name
func (t *Topology) NameByID(id RouterID) (string, bool) {
	router, ok := t.byID[id]
	return router.Name, ok
}

//IDByName resolves a router name to its identifier
func (t *Topology) IDByName(name string) (RouterID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

//IsExternal reports whether the given router sits outside the measured network
func (t *Topology) IsExternal(id RouterID) bool {
	return t.byID[id].External
}

//VerifyInventory asserts that the given id -> name assignment (as read from a
//hardware mapping) covers exactly the routers of this topology
func (t *Topology) VerifyInventory(routers map[RouterID]string) error {
	if len(routers) != len(t.Routers) {
		return &InventoryMismatchError{
			Detail: fmt.Sprintf("expected %d routers, hardware mapping has %d", len(t.Routers), len(routers)),
		}
	}

	// deterministic error messages
	ids := make([]int, 0, len(routers))
	for id := range routers {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, id := range ids {
		name, ok := t.NameByID(RouterID(id))
		if !ok {
			return &InventoryMismatchError{
				Detail: fmt.Sprintf("router %d (%q) is not part of the topology", id, routers[RouterID(id)]),
			}
		}
		if name != routers[RouterID(id)] {
			return &InventoryMismatchError{
				Detail: fmt.Sprintf("router %d is named %q, topology expects %q", id, routers[RouterID(id)], name),
			}
		}
	}
	return nil
}
