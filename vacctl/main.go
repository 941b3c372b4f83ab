package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/govac/pkg/config"
	"github.com/itohio/govac/pkg/export"
	"github.com/itohio/govac/pkg/logging"
	"github.com/itohio/govac/pkg/radio"
	"github.com/itohio/govac/pkg/sample"
	"github.com/itohio/govac/pkg/scope"
)

// loopInterval is the caller loop period.
const loopInterval = 50 * time.Millisecond

func main() {
	var (
		portFlag           = flag.String("p", "", "Gauge serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use mocked gauge instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
		radioPortFlag      = flag.String("radio", "", "Radio module serial port override (empty keeps config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *averageSamplesFlag >= 0 {
		cfg.Capture.AverageSamples = *averageSamplesFlag
	}
	if *radioPortFlag != "" {
		cfg.Radio.Port = *radioPortFlag
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	application := app.NewWithID("com.itohio.govac")

	window := application.NewWindow("Vacuum Gauge")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	status := newStatusBar()

	svc, err := newServices(cfg, logger, status)
	if err != nil {
		log.Fatalf("Failed to start services: %v", err)
	}
	svc.start()
	defer svc.close()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		svc:        svc,
		window:     window,
		status:     status,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New()

	var dirty atomic.Bool
	svc.ring.OnUpdate(func(sample.Point, int) {
		dirty.Store(true)
	})

	content := container.NewBorder(
		toolbar,
		status.Object(),
		nil,
		nil,
		state.scopeWidget,
	)
	window.SetContent(content)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.runLoop(ctx, loopInterval, fyne.Do, func() {
		status.expireNotice()
		status.showRadio(svc.radio.Status())
		if dirty.Swap(false) {
			latest, ok := svc.ring.Latest()
			status.showCapture(latest, ok, svc.ring.Len(), svc.ring.Cap())
			state.scopeWidget.UpdatePoints(svc.ring.Points())
		}
	})

	window.ShowAndRun()
	logger.Info("shutting down")
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	svc         *services
	window      fyne.Window
	status      *statusBar
	scopeWidget *scope.ScopeWidget
	connectBtn  *widget.Button
	exportBtn   *widget.Button
	modeSelect  *widget.Select
	useMock     bool
}

// createToolbar creates the toolbar with Connect, Export and Settings buttons
// on the left and the radio power mode selector on the right.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	exportBtn := widget.NewButtonWithIcon("Export", theme.DocumentSaveIcon(), func() {
		handleExport(state)
	})
	state.exportBtn = exportBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	modes := []string{radio.AlwaysOn.String(), radio.Balanced.String(), radio.PowerSave.String(), radio.DeepSleepReady.String()}
	modeSelect := widget.NewSelect(modes, nil)
	modeSelect.SetSelected(state.svc.radio.Mode().String())
	modeSelect.OnChanged = func(selected string) {
		handleModeChange(state, selected)
	}
	state.modeSelect = modeSelect

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, exportBtn, settingsBtn),
		modeSelect,
		nil,
	)
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.svc.connected() {
		state.svc.disconnect()
		state.connectBtn.SetIcon(theme.LoginIcon())
		state.svc.logger.Info("gauge disconnected")
		return
	}

	if err := state.svc.connect(state.useMock); err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to connect to mocked gauge: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}
	state.connectBtn.SetIcon(theme.LogoutIcon())
	state.svc.logger.Info("gauge connected", slog.Bool("mock", state.useMock), slog.String("port", state.cfg.Serial.Port))
}

// handleExport submits the captured samples. Busy and empty buffers are
// reported through the status bar notices.
func handleExport(state *appState) {
	err := state.svc.exportSamples()
	if err == nil || errors.Is(err, export.ErrBusy) || errors.Is(err, export.ErrNoData) {
		return
	}
	dialog.ShowError(err, state.window)
}

// handleModeChange applies a radio power mode picked in the selector.
func handleModeChange(state *appState, selected string) {
	m, err := radio.ParseMode(selected)
	if err != nil {
		return
	}
	if err := state.svc.radio.SetPowerMode(m); err != nil {
		dialog.ShowError(fmt.Errorf("failed to switch radio to %s: %w", m, err), state.window)
		state.modeSelect.SetSelected(state.svc.radio.Mode().String())
	}
}
