package export

import (
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/govac/pkg/sample"
)

const (
	// Header is the first line of every export file.
	Header = "Time(ms),Pressure(kPa),Current(A)\n"
	// MaxRowLen is the longest row AppendRow can produce:
	// 10 digits, two values of up to 14 characters, two commas and a newline.
	MaxRowLen = 10 + 1 + 14 + 1 + 14 + 1

	// valueLimit keeps formatted magnitudes within MaxRowLen.
	valueLimit = 1e9
)

// AppendRow appends the CSV row for p to dst.
func AppendRow(dst []byte, p sample.Point) []byte {
	dst = strconv.AppendUint(dst, uint64(p.TimeOffsetMs), 10)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, float64(clampValue(p.Pressure)), 'f', 2, 32)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, float64(clampValue(p.Current)), 'f', 2, 32)
	return append(dst, '\n')
}

func clampValue(v float32) float32 {
	if math32.IsNaN(v) {
		return v
	}
	return math32.Max(-valueLimit, math32.Min(valueLimit, v))
}

// FileName returns the device path of the export file for session n started at t.
func FileName(dir string, t time.Time, n uint32) string {
	name := fmt.Sprintf("g_%s_c%d.csv", t.Format("20060102_150405"), n)
	return path.Join("/", dir, name)
}
