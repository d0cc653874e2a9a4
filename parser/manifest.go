package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

//SampleRecord is one row of a scenario's capture manifest: the metadata of
//one recorded measurement sample
type SampleRecord struct {
	//ExecutionTimestamp identifies the sample within its scenario
	ExecutionTimestamp string
	//PcapFilename names the capture to process
	PcapFilename string
	//CaptureFrequency is the probing rate in packets per second per flow
	CaptureFrequency uint64
	//HardwareMappingFilename names the sample's hardware mapping
	HardwareMappingFilename string
	//PacketsDropped is the capture tool's own count of frames it lost
	PacketsDropped uint64
}

// older manifests predate the capture_frequency column
const defaultCaptureFrequency = 1000

//ReadManifest parses a scenario's capture_manifest.csv. Columns are matched
//by header name so column order and later additions do not matter.
func ReadManifest(path string) ([]SampleRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read manifest header of %s: %w", path, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, required := range []string{
		"execution_timestamp", "pcap_filename", "hardware_mapping_filename",
	} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("manifest %s lacks required column %q", path, required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var records []SampleRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed manifest row in %s: %w", path, err)
		}

		record := SampleRecord{
			ExecutionTimestamp:      field(row, "execution_timestamp"),
			PcapFilename:            field(row, "pcap_filename"),
			HardwareMappingFilename: field(row, "hardware_mapping_filename"),
			CaptureFrequency:        defaultCaptureFrequency,
		}
		if v := field(row, "capture_frequency"); v != "" {
			if record.CaptureFrequency, err = strconv.ParseUint(v, 10, 64); err != nil {
				return nil, fmt.Errorf("bad capture_frequency in %s: %w", path, err)
			}
		}
		if v := field(row, "packets_dropped"); v != "" {
			if record.PacketsDropped, err = strconv.ParseUint(v, 10, 64); err != nil {
				return nil, fmt.Errorf("bad packets_dropped in %s: %w", path, err)
			}
		}
		records = append(records, record)
	}
	return records, nil
}
