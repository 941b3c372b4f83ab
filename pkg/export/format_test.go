package export

import (
	"math"
	"testing"
	"time"

	"github.com/itohio/govac/pkg/sample"
	"github.com/stretchr/testify/assert"
)

func TestAppendRow(t *testing.T) {
	tests := []struct {
		name  string
		point sample.Point
		want  string
	}{
		{"zero", sample.Point{}, "0,0.00,0.00\n"},
		{"typical", sample.Point{TimeOffsetMs: 1500, Pressure: 101.25, Current: 1.5}, "1500,101.25,1.50\n"},
		{"negative", sample.Point{TimeOffsetMs: 7, Pressure: -0.5, Current: -2}, "7,-0.50,-2.00\n"},
		{"clamped", sample.Point{TimeOffsetMs: 1, Pressure: 5e12, Current: -5e12}, "1,1000000000.00,-1000000000.00\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(AppendRow(nil, tt.point)))
		})
	}
}

func TestAppendRow_LongestFitsGuard(t *testing.T) {
	p := sample.Point{
		TimeOffsetMs: math.MaxUint32,
		Pressure:     float32(math.Inf(-1)),
		Current:      -math.MaxFloat32,
	}
	row := AppendRow(nil, p)
	assert.LessOrEqual(t, len(row), MaxRowLen)
	assert.Less(t, MaxRowLen, DefaultGuardMargin)
}

func TestAppendRow_Appends(t *testing.T) {
	dst := []byte("head\n")
	dst = AppendRow(dst, sample.Point{TimeOffsetMs: 2, Pressure: 1, Current: 0.25})
	assert.Equal(t, "head\n2,1.00,0.25\n", string(dst))
}

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	assert.Equal(t, "/export/g_20260304_050607_c12.csv", FileName("/export", ts, 12))
	assert.Equal(t, "/export/g_20260304_050607_c1.csv", FileName("export", ts, 1))
	assert.Equal(t, "/g_20260304_050607_c3.csv", FileName("", ts, 3))
}
