package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/netprobe/convtrace/pkg/tracker"
)

var reportHeader = []string{
	"sample_id",
	"packets_counter",
	"useful_packets_counter",
	"rate_packets_useful",
	"acc_packet_size",
	"acc_useful_packet_size",
	"rate_bytes_useful",
}

//AppendUsefulnessReport appends one sample's packet-usefulness ratios to
//the useful_packets.csv report in dir, writing the header when the file
//is created. The report is diagnostic and rows are appended even for
//samples whose violation records end up discarded.
func AppendUsefulnessReport(dir string, sampleID string, acc *tracker.Accumulator) error {
	path := filepath.Join(dir, "useful_packets.csv")

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(reportHeader); err != nil {
			return err
		}
	}

	row := []string{
		sampleID,
		strconv.FormatUint(acc.Packets, 10),
		strconv.FormatUint(acc.UsefulPackets, 10),
		ratio(acc.UsefulPackets, acc.Packets),
		strconv.FormatUint(acc.Bytes, 10),
		strconv.FormatUint(acc.UsefulBytes, 10),
		ratio(acc.UsefulBytes, acc.Bytes),
	}
	if err := writer.Write(row); err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

func ratio(part, whole uint64) string {
	if whole == 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(part)/float64(whole), 'f', -1, 64)
}
