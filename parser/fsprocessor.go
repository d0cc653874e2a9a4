package parser

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/pbnjay/memory"
	log "github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"

	"github.com/netprobe/convtrace/parser/files"
	"github.com/netprobe/convtrace/pkg/delayer"
	"github.com/netprobe/convtrace/pkg/hwmap"
	"github.com/netprobe/convtrace/pkg/store"
	"github.com/netprobe/convtrace/pkg/timeseries"
	"github.com/netprobe/convtrace/pkg/topology"
	"github.com/netprobe/convtrace/pkg/tracker"
	"github.com/netprobe/convtrace/pkg/violations"
	"github.com/netprobe/convtrace/resources"
	"github.com/netprobe/convtrace/util"
)

//Filter restricts a run to matching experiment units and samples
type Filter struct {
	//Topology must be contained in the topology directory name
	Topology string
	//Scenario must be contained in the scenario directory name
	Scenario string
	//ScenarioEnd must suffix the scenario directory name
	ScenarioEnd string
	//Sample must be contained in the sample identifier
	Sample string
}

//Matches reports whether a (topology, scenario) unit passes the filter
func (f Filter) Matches(topo, scenario string) bool {
	return strings.Contains(topo, f.Topology) &&
		strings.Contains(scenario, f.Scenario) &&
		strings.HasSuffix(scenario, f.ScenarioEnd)
}

//MatchesSample reports whether a sample identifier passes the filter
func (f Filter) MatchesSample(sampleID string) bool {
	return strings.Contains(sampleID, f.Sample)
}

//unit is one (topology, scenario) experiment directory
type unit struct {
	topology string
	scenario string
	path     string
}

func (u unit) String() string {
	return u.topology + "/" + u.scenario
}

//FSProcessor walks a data root of recorded experiments and processes every
//capture sample that passes its filter
type FSProcessor struct {
	res    *resources.Resources
	filter Filter

	//export switches the processor from violation synthesis to raw
	//update-time-series export
	export bool
}

//NewFSProcessor binds a processor to the given resource bundle
func NewFSProcessor(res *resources.Resources, filter Filter, export bool) *FSProcessor {
	return &FSProcessor{res: res, filter: filter, export: export}
}

//Run processes all matching units beneath dataroot. It returns an error
//only for conditions that invalidate the whole run; per-sample and
//per-unit problems are logged and skipped.
func (fs *FSProcessor) Run(dataroot string) error {
	units, err := fs.discover(dataroot)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		fmt.Println("\t[!] No matching experiment data found")
		return nil
	}

	fs.checkMemory()

	workers := fs.res.Config.S.Processing.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = util.Min(workers, len(units))

	fmt.Printf("\t[-] Processing %d experiment units with %d workers ...\n", len(units), workers)

	var (
		wg    sync.WaitGroup
		mutex sync.Mutex
		fatal error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(start int, jump int, length int) {
			defer wg.Done()
			//comb over the unit array
			for j := start; j < length; j += jump {
				mutex.Lock()
				abort := fatal != nil
				mutex.Unlock()
				if abort {
					return
				}

				if err := fs.processUnit(units[j]); err != nil {
					var mismatch *topology.InventoryMismatchError
					if errors.As(err, &mismatch) {
						mutex.Lock()
						if fatal == nil {
							fatal = err
						}
						mutex.Unlock()
						return
					}
					fs.res.Log.WithFields(log.Fields{
						"unit":  units[j].String(),
						"error": err.Error(),
					}).Error("Could not process experiment unit")
				}
			}
		}(i, workers, len(units))
	}
	wg.Wait()

	return fatal
}

// discover lists the (topology, scenario) directories beneath dataroot that
// pass the unit filter
func (fs *FSProcessor) discover(dataroot string) ([]unit, error) {
	topoDirs, err := ioutil.ReadDir(dataroot)
	if err != nil {
		return nil, fmt.Errorf("could not read data root %s: %w", dataroot, err)
	}

	var units []unit
	for _, topoDir := range topoDirs {
		if !topoDir.IsDir() {
			continue
		}
		scenarioDirs, err := ioutil.ReadDir(filepath.Join(dataroot, topoDir.Name()))
		if err != nil {
			fs.res.Log.WithFields(log.Fields{
				"topology": topoDir.Name(),
				"error":    err.Error(),
			}).Error("Could not read topology directory")
			continue
		}
		for _, scenarioDir := range scenarioDirs {
			if !scenarioDir.IsDir() || !fs.filter.Matches(topoDir.Name(), scenarioDir.Name()) {
				continue
			}
			units = append(units, unit{
				topology: topoDir.Name(),
				scenario: scenarioDir.Name(),
				path:     filepath.Join(dataroot, topoDir.Name(), scenarioDir.Name()),
			})
		}
	}
	return units, nil
}

func (fs *FSProcessor) checkMemory() {
	minFree := fs.res.Config.S.Processing.MinFreeMemoryMB * 1024 * 1024
	if free := memory.FreeMemory(); free < minFree {
		fs.res.Log.WithFields(log.Fields{
			"free_bytes": free,
		}).Warn("Low free memory; decompressing captures may thrash")
	}
}

// processUnit replays every capture sample recorded for one (topology,
// scenario) pair
func (fs *FSProcessor) processUnit(u unit) error {
	manifestPath := filepath.Join(u.path, "capture_manifest.csv")
	if !util.Exists(manifestPath) {
		fs.res.Log.WithFields(log.Fields{
			"unit": u.String(),
		}).Debug("Skipping unit without captured data")
		return nil
	}

	records, err := ReadManifest(manifestPath)
	if err != nil {
		return err
	}

	topo, err := topology.LoadTopology(filepath.Join(u.path, "expected_topology.json"))
	if err != nil {
		return fmt.Errorf("could not load expected topology: %w", err)
	}

	samples, err := store.Open(u.path)
	if err != nil {
		return err
	}

	fmt.Println("\t[-] Processing " + u.String() + " ...")

	p := mpb.New(mpb.WithWidth(20))
	bar := p.AddBar(int64(len(records)),
		mpb.PrependDecorators(
			decor.Name("\t[-] "+u.scenario+":", decor.WC{W: 30, C: decor.DidentRight}),
			decor.CountersNoUnit(" %d / %d ", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	for _, record := range records {
		start := time.Now()
		if err := fs.processSample(u, record, topo, samples); err != nil {
			var mismatch *topology.InventoryMismatchError
			if errors.As(err, &mismatch) {
				return err
			}
			fs.res.Log.WithFields(log.Fields{
				"unit":   u.String(),
				"sample": record.ExecutionTimestamp,
				"error":  err.Error(),
			}).Error("Could not process sample")
		}
		bar.IncrBy(1, time.Since(start))
	}
	p.Wait()

	return samples.Flush()
}

func (fs *FSProcessor) processSample(u unit, record SampleRecord,
	topo *topology.Topology, samples *store.Store) error {

	logger := fs.res.Log
	conf := &fs.res.Config.S

	if !fs.filter.MatchesSample(record.ExecutionTimestamp) {
		return nil
	}

	if fs.export {
		if timeseries.OutputsExist(u.path, record.PcapFilename) {
			logger.WithFields(log.Fields{
				"sample": record.ExecutionTimestamp,
			}).Debug("Skipping sample; update exports already present")
			return nil
		}
	} else if conf.Processing.Resumable && samples.Contains(record.ExecutionTimestamp) {
		logger.WithFields(log.Fields{
			"sample": record.ExecutionTimestamp,
		}).Debug("Skipping sample; results already persisted")
		return nil
	}

	if record.PacketsDropped > 0 {
		logger.WithFields(log.Fields{
			"sample":  record.ExecutionTimestamp,
			"dropped": record.PacketsDropped,
		}).Error("Skipping sample; frames were dropped during capture")
		return nil
	}

	mapping, err := hwmap.Load(filepath.Join(u.path, record.HardwareMappingFilename))
	if err != nil {
		return fmt.Errorf("could not load hardware mapping: %w", err)
	}

	lookup, err := hwmap.NewLookup(mapping)
	if err != nil {
		return err
	}

	// a hardware mapping naming different routers than the expected
	// topology means the dataset is inconsistent; processing more units
	// would only produce misleading results
	if err := topo.VerifyInventory(lookup.RouterNames()); err != nil {
		return err
	}

	acc := tracker.NewAccumulator(conf.Window.TrimSeconds, uint64(conf.Prober.DelayCrossings))

	var recorder *timeseries.Recorder
	if fs.export {
		recorder = timeseries.NewRecorder(lookup, record.CaptureFrequency)
	}

	classifier, err := NewClassifier(&conf.Prober, lookup, acc, recorder)
	if err != nil {
		return err
	}

	if err := fs.replayCapture(filepath.Join(u.path, record.PcapFilename), classifier); err != nil {
		var dup *tracker.DuplicateObservationError
		if errors.As(err, &dup) {
			fs.reportDataQuality(u, record, "duplicate probe observation: "+err.Error())
			return nil
		}
		return err
	}

	if err := acc.CheckInjectionCount(); err != nil {
		fs.reportDataQuality(u, record, err.Error())
		return nil
	}

	// usefulness accounting runs before the validators so that discarded
	// samples still show up in the report
	if err := store.AppendUsefulnessReport(u.path, record.ExecutionTimestamp, acc); err != nil {
		return err
	}

	if lookup.HasDelayedLinks() {
		if err := delayer.CheckCompleteness(acc, lookup, conf.Prober.DelayCrossings); err != nil {
			fs.reportDataQuality(u, record, "discarding sample due to drops in the delayers: "+err.Error())
			return nil
		}
		if err := delayer.CheckAccuracy(acc, lookup, &conf.Delay); err != nil {
			fs.reportDataQuality(u, record, "discarding sample due to bad accuracy of the delayers: "+err.Error())
			return nil
		}
	}

	if fs.export {
		if recorder.NegativeBackdates > 0 {
			logger.WithFields(log.Fields{
				"sample": record.ExecutionTimestamp,
				"count":  recorder.NegativeBackdates,
			}).Warn("Dropped black-hole events dated before the capture")
		}
		return timeseries.Export(u.path, record.PcapFilename, lookup,
			recorder.ForwardingUpdates(),
			timeseries.PathUpdates(acc, lookup),
			timeseries.ReachabilityUpdates(acc, lookup))
	}

	props, droppedFlows := violations.Synthesize(acc, lookup, record.CaptureFrequency)
	for _, flow := range droppedFlows {
		fs.reportDataQuality(u, record, fmt.Sprintf(
			"flow %s -> %s lacks probes at the window boundaries",
			lookup.Name(flow.Origin), flow.Prefix))
	}

	samples.Append(record.ExecutionTimestamp, props)
	return samples.Flush()
}

// replayCapture streams the (possibly gzip-compressed) capture through the
// classifier frame by frame
func (fs *FSProcessor) replayCapture(path string, classifier *Classifier) error {
	if !util.Exists(path) && util.Exists(path+".gz") {
		path += ".gz"
	}

	stream, closer, err := files.OpenCapture(path)
	if err != nil {
		return err
	}
	defer closer()

	reader, err := pcapgo.NewReader(stream)
	if err != nil {
		return fmt.Errorf("could not read capture %s: %w", path, err)
	}

	for {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("broken frame in %s: %w", path, err)
		}
		if err := classifier.Classify(data, ci); err != nil {
			return err
		}
	}
}

// reportDataQuality logs a data-quality condition and mirrors it to the
// out-of-band notifier; it never fails
func (fs *FSProcessor) reportDataQuality(u unit, record SampleRecord, message string) {
	fs.res.Log.WithFields(log.Fields{
		"unit":   u.String(),
		"sample": record.ExecutionTimestamp,
	}).Error(message)
	fs.res.Notify.Send(fmt.Sprintf("%s (%s, sample %s)", message, u.String(), record.ExecutionTimestamp))
}
