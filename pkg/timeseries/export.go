package timeseries

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/netprobe/convtrace/pkg/hwmap"
)

//OutputsExist reports whether all three update exports for the given
//capture are already present in dir, allowing a resumed run to skip it
func OutputsExist(dir, capture string) bool {
	for _, name := range outputNames(capture) {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func outputNames(capture string) []string {
	return []string{
		fmt.Sprintf("fw_updates_%s.csv", capture),
		fmt.Sprintf("path_updates_%s.csv", capture),
		fmt.Sprintf("dp_updates_%s.csv", capture),
	}
}

//Export writes the three update time series of one capture to dir,
//truncating earlier exports. The path export uses a semicolon delimiter
//because its path columns contain commas.
func Export(dir, capture string, lookup *hwmap.Lookup,
	fw []FWRecord, paths []PathRecord, dp []DPRecord) error {

	names := outputNames(capture)

	fwRows := make([][]string, 0, len(fw))
	for _, record := range fw {
		nextHop, nextHopName := "", ""
		if record.NextHop != nil {
			nextHop = strconv.Itoa(int(*record.NextHop))
			nextHopName = lookup.Name(*record.NextHop)
		}
		fwRows = append(fwRows, []string{
			formatTime(record.Time),
			strconv.Itoa(int(record.Src)),
			record.SrcName,
			record.Prefix,
			strconv.FormatUint(record.Seq, 10),
			nextHop,
			nextHopName,
		})
	}
	err := writeCSV(filepath.Join(dir, names[0]), ',',
		[]string{"time", "src", "src_name", "prefix", "seq", "next_hop", "next_hop_name"}, fwRows)
	if err != nil {
		return err
	}

	pathRows := make([][]string, 0, len(paths))
	for _, record := range paths {
		ids := make([]string, len(record.Path))
		routerNames := make([]string, len(record.Path))
		for i, rid := range record.Path {
			ids[i] = strconv.Itoa(int(rid))
			routerNames[i] = lookup.Name(rid)
		}
		pathRows = append(pathRows, []string{
			formatTime(record.Time),
			strconv.Itoa(int(record.Src)),
			record.SrcName,
			record.Prefix,
			strconv.FormatUint(record.Seq, 10),
			strings.Join(ids, ","),
			strings.Join(routerNames, ","),
		})
	}
	err = writeCSV(filepath.Join(dir, names[1]), ';',
		[]string{"time", "src", "src_name", "prefix", "seq", "path", "path_names"}, pathRows)
	if err != nil {
		return err
	}

	dpRows := make([][]string, 0, len(dp))
	for _, record := range dp {
		dpRows = append(dpRows, []string{
			formatTime(record.Time),
			strconv.Itoa(int(record.Src)),
			record.SrcName,
			record.Prefix,
			strconv.FormatBool(record.Reachable),
		})
	}
	return writeCSV(filepath.Join(dir, names[2]), ',',
		[]string{"time", "src", "src_name", "prefix", "reachable"}, dpRows)
}

func writeCSV(path string, delimiter rune, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = delimiter

	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
