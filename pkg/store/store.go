// Package store persists violation records incrementally, one JSON array
// per property, so interrupted runs can resume without reprocessing
// captures that already produced output.
package store

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/netprobe/convtrace/pkg/violations"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	reachabilityFile = "violation_reachability.json"
	loopFreedomFile  = "violation_loopfreedom.json"
	stablePathFile   = "violation_stable_path.json"
	waypointPrefix   = "violation_waypoint_"
)

//Collection is one persisted JSON array of samples
type Collection struct {
	path    string
	samples []violations.Sample
	ids     map[string]bool
	dirty   bool
}

//OpenCollection loads the samples persisted at path, or starts an empty
//collection when the file does not exist yet
func OpenCollection(path string) (*Collection, error) {
	coll := &Collection{
		path: path,
		ids:  make(map[string]bool),
	}

	contents, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return coll, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contents, &coll.samples); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	for _, sample := range coll.samples {
		coll.ids[sample.SampleID] = true
	}
	return coll, nil
}

//Contains reports whether a sample's record was already persisted
func (c *Collection) Contains(sampleID string) bool {
	return c.ids[sampleID]
}

//Append adds a sample's record. Records of already-contained samples are
//ignored so reprocessing cannot duplicate output.
func (c *Collection) Append(sample violations.Sample) {
	if c.ids[sample.SampleID] {
		return
	}
	c.samples = append(c.samples, sample)
	c.ids[sample.SampleID] = true
	c.dirty = true
}

//Len returns the number of persisted samples
func (c *Collection) Len() int {
	return len(c.samples)
}

//Samples exposes the persisted records in insertion order
func (c *Collection) Samples() []violations.Sample {
	return c.samples
}

//Flush writes the collection back to disk. The write goes through a
//uniquely named temporary file and a rename, so a crash mid-write can
//never truncate previously persisted results.
func (c *Collection) Flush() error {
	if !c.dirty {
		return nil
	}

	contents, err := json.Marshal(c.samples)
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%s.tmp", c.path, uuid.New().String())
	if err := ioutil.WriteFile(tmp, contents, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return err
	}
	c.dirty = false
	return nil
}

//Store bundles the per-property collections of one scenario's output
//directory
type Store struct {
	dir string

	Reachability *Collection
	LoopFreedom  *Collection
	StablePath   *Collection

	waypoints map[string]*Collection
}

//Open loads all violation collections present in dir, including waypoint
//collections from earlier runs, which are only discoverable by filename
func Open(dir string) (*Store, error) {
	store := &Store{
		dir:       dir,
		waypoints: make(map[string]*Collection),
	}

	var err error
	if store.Reachability, err = OpenCollection(filepath.Join(dir, reachabilityFile)); err != nil {
		return nil, err
	}
	if store.LoopFreedom, err = OpenCollection(filepath.Join(dir, loopFreedomFile)); err != nil {
		return nil, err
	}
	if store.StablePath, err = OpenCollection(filepath.Join(dir, stablePathFile)); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, waypointPrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), waypointPrefix), ".json")
		if name == "" {
			continue
		}
		coll, err := OpenCollection(path)
		if err != nil {
			return nil, err
		}
		store.waypoints[name] = coll
	}
	return store, nil
}

//Waypoint returns the collection for the named waypoint router, creating
//an empty one on first use
func (s *Store) Waypoint(name string) *Collection {
	coll, ok := s.waypoints[name]
	if !ok {
		coll = &Collection{
			path: filepath.Join(s.dir, fmt.Sprintf("%s%s.json", waypointPrefix, name)),
			ids:  make(map[string]bool),
		}
		s.waypoints[name] = coll
	}
	return coll
}

//WaypointNames lists the waypoint routers known to the store
func (s *Store) WaypointNames() []string {
	names := make([]string, 0, len(s.waypoints))
	for name := range s.waypoints {
		names = append(names, name)
	}
	return names
}

//Contains reports whether every known collection already holds the given
//sample. Only then may a resumed run skip the sample: a partially
//persisted sample must be reprocessed in full.
func (s *Store) Contains(sampleID string) bool {
	if !s.Reachability.Contains(sampleID) ||
		!s.LoopFreedom.Contains(sampleID) ||
		!s.StablePath.Contains(sampleID) {
		return false
	}
	for _, coll := range s.waypoints {
		if !coll.Contains(sampleID) {
			return false
		}
	}
	return true
}

//Append distributes one sample's synthesized properties over the
//per-property collections
func (s *Store) Append(sampleID string, props *violations.Properties) {
	s.Reachability.Append(violations.Sample{SampleID: sampleID, ViolationTimes: props.Reachability})
	s.LoopFreedom.Append(violations.Sample{SampleID: sampleID, ViolationTimes: props.LoopFreedom})
	s.StablePath.Append(violations.Sample{SampleID: sampleID, ViolationTimes: props.StablePath})
	for name, data := range props.Waypoints {
		s.Waypoint(name).Append(violations.Sample{SampleID: sampleID, ViolationTimes: data})
	}
}

//Flush persists every collection that changed since the last flush
func (s *Store) Flush() error {
	for _, coll := range []*Collection{s.Reachability, s.LoopFreedom, s.StablePath} {
		if err := coll.Flush(); err != nil {
			return err
		}
	}
	for _, coll := range s.waypoints {
		if err := coll.Flush(); err != nil {
			return err
		}
	}
	return nil
}
