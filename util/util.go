package util

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"
)

//TimeFormat stores a correctly formatted timestamp
const TimeFormat string = "2006-01-02-T15:04:05-0700"

// Exists returns true if file or directory exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	return true
}

// IsDir returns true if argument is a directory
func IsDir(path string) bool {
	file, err := os.Stat(path)
	if err != nil {
		return false
	}
	if file.IsDir() {
		return true
	}
	return false
}

//Min returns the smaller of two integers
func Min(a int, b int) int {
	if a < b {
		return a
	}
	return b
}

//MaxUint64 returns the larger of two 64 bit unsigned integers
func MaxUint64(a uint64, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

//StringInSlice returns true if the string is an element of the array
func StringInSlice(value string, list []string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

//Median returns the upper median of a sorted slice of float64s
func Median(sorted []float64) float64 {
	return sorted[len(sorted)/2]
}

//Percentile returns the nth percentile entry of a sorted slice of float64s.
//The index is computed with truncating integer division over the slice
//length, matching how the delay validator buckets its samples.
func Percentile(sorted []float64, n int) float64 {
	return sorted[n*len(sorted)/100]
}

//SortedCopy returns an ascending copy of the given float64s
func SortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

//PrefixFromIP masks the given IPv4 address down to a prefix of the given
//length and renders it in CIDR notation
func PrefixFromIP(ip net.IP, bits int) string {
	masked := ip.Mask(net.CIDRMask(bits, 32))
	return fmt.Sprintf("%s/%d", masked.String(), bits)
}

const (
	day  = time.Minute * 60 * 24
	year = 365 * day
)

// FormatDuration properly prints a given time.Duration
// https://gist.github.com/harshavardhana/327e0577c4fed9211f65#gistcomment-2557682
func FormatDuration(d time.Duration) string {
	if d < day {
		return d.String()
	}

	var b strings.Builder

	if d >= year {
		years := d / year
		fmt.Fprintf(&b, "%dy", years)
		d -= years * year
	}

	days := d / day
	d -= days * day
	fmt.Fprintf(&b, "%dd%s", days, d)

	return b.String()
}
