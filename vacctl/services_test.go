package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itohio/govac/pkg/config"
	"github.com/itohio/govac/pkg/export"
	"github.com/itohio/govac/pkg/radio"
	"github.com/itohio/govac/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []export.Notice
	results []export.Result
	redraws int
}

func (n *recordingNotifier) Notice(v export.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, v)
}

func (n *recordingNotifier) Result(r export.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
}

func (n *recordingNotifier) Redraw() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redraws++
}

func (n *recordingNotifier) snapshot() ([]export.Notice, []export.Result, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]export.Notice(nil), n.notices...), append([]export.Result(nil), n.results...), n.redraws
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Export.StorageRoot = filepath.Join(dir, "sdcard")
	cfg.Export.AckWindow = 20 * time.Millisecond
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Mock.SampleRate = 5 * time.Millisecond
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServices(t *testing.T, cfg *config.Config, n export.Notifier) *services {
	t.Helper()
	svc, err := newServices(cfg, testLogger(), n)
	require.NoError(t, err)
	svc.start()
	t.Cleanup(svc.close)
	return svc
}

func runLoop(t *testing.T, svc *services) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.runLoop(ctx, 5*time.Millisecond, func(fn func()) { fn() }, nil)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestServices_ExportEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	n := &recordingNotifier{}
	svc := startServices(t, cfg, n)
	runLoop(t, svc)

	for i := range 5 {
		svc.ring.Add(sample.Point{Pressure: 1.5, Current: 0.25, TimeOffsetMs: uint32(i * 1000)})
	}
	require.NoError(t, svc.exportSamples())

	require.Eventually(t, func() bool {
		_, results, redraws := n.snapshot()
		return len(results) == 1 && redraws == 1
	}, 2*time.Second, 5*time.Millisecond)

	notices, results, _ := n.snapshot()
	assert.Equal(t, []export.Notice{export.NoticeExporting}, notices)
	require.True(t, results[0].Success, results[0].Status)
	assert.Equal(t, uint32(1), results[0].Session)

	matches, err := filepath.Glob(filepath.Join(cfg.Export.StorageRoot, "export", "g_*_c1.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), export.Header))
	assert.Equal(t, 6, strings.Count(string(data), "\n"))

	entries, err := svc.journal.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestServices_SessionNumbersContinueFromJournal(t *testing.T) {
	cfg := testConfig(t)

	first := startServices(t, cfg, nil)
	first.ring.Add(sample.Point{Pressure: 1, Current: 1})
	require.NoError(t, first.exportSamples())
	require.Eventually(t, func() bool { return !first.session.Busy() }, 2*time.Second, 5*time.Millisecond)
	first.close()

	second := startServices(t, cfg, nil)
	assert.Equal(t, uint32(1), second.session.Current())
	id, ok := second.session.Begin()
	require.True(t, ok)
	assert.Equal(t, uint32(2), id)
}

func TestServices_RejectsEmptyExport(t *testing.T) {
	n := &recordingNotifier{}
	svc := startServices(t, testConfig(t), n)

	assert.ErrorIs(t, svc.exportSamples(), export.ErrNoData)
	notices, _, _ := n.snapshot()
	assert.Equal(t, []export.Notice{export.NoticeNoData}, notices)
}

func TestServices_MockCapture(t *testing.T) {
	svc := startServices(t, testConfig(t), nil)

	require.NoError(t, svc.connect(true))
	assert.True(t, svc.connected())
	assert.Error(t, svc.connect(true), "second connect is rejected")

	require.Eventually(t, func() bool { return svc.ring.Len() >= 5 }, 2*time.Second, 5*time.Millisecond)
	svc.disconnect()
	assert.False(t, svc.connected())

	held := svc.ring.Len()
	assert.GreaterOrEqual(t, held, 5, "samples stay in the ring after disconnect")
	latest, ok := svc.ring.Latest()
	require.True(t, ok)
	assert.Greater(t, latest.Pressure, float32(0))
}

func TestServices_RadioUsesMockLink(t *testing.T) {
	svc := startServices(t, testConfig(t), nil)

	_, isMock := svc.link.(*radio.MockLink)
	assert.True(t, isMock)
	assert.Equal(t, radio.Balanced, svc.radio.Mode())

	require.NoError(t, svc.radio.SetPowerMode(radio.AlwaysOn))
	assert.Equal(t, svc.cfg.Radio.MaxTxPower, svc.radio.TxPower())
}

func TestServices_BadRadioPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Radio.Port = "/dev/nonexistent-radio-port"

	_, err := newServices(cfg, testLogger(), nil)
	assert.Error(t, err)
}
