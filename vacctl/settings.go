package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/govac/pkg/gauge"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
// Export, radio and uplink changes take effect on the next start.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createSensorTab(state),
		createCaptureTab(state),
		createExportTab(state),
		createRadioTab(state),
		createUplinkTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

func floatEntry(v float32, prec int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.FormatFloat(float64(v), 'f', prec, 32))
	return e
}

func intEntry(v int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(v))
	return e
}

func durationEntry(d time.Duration) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(d.String())
	return e
}

func parseFloat32(e *widget.Entry, dst *float32) {
	if v, err := strconv.ParseFloat(e.Text, 32); err == nil {
		*dst = float32(v)
	}
}

func parseInt(e *widget.Entry, dst *int) {
	if v, err := strconv.Atoi(e.Text); err == nil {
		*dst = v
	}
}

func parseInt8(e *widget.Entry, dst *int8) {
	if v, err := strconv.ParseInt(e.Text, 10, 8); err == nil {
		*dst = int8(v)
	}
}

func parseDuration(e *widget.Entry, dst *time.Duration) {
	if v, err := time.ParseDuration(e.Text); err == nil && v > 0 {
		*dst = v
	}
}

// createSerialTab creates the gauge serial port tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := gauge.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Gauge Port", Widget: portSelect},
		},
		OnSubmit: func() {
			if portSelect.Selected == "" {
				return
			}
			selectedPort := portMap[portSelect.Selected]
			if selectedPort == "" {
				selectedPort = portSelect.Selected
			}

			portChanged := state.cfg.Serial.Port != selectedPort
			state.cfg.Serial.Port = selectedPort
			saveConfig(state)

			// Restart the capture on the new port
			if portChanged && state.svc.connected() && !state.useMock {
				handleConnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createSensorTab creates the ADC calibration tab.
func createSensorTab(state *appState) *container.TabItem {
	s := &state.cfg.Sensor
	vref := floatEntry(s.VRef, 2)
	pSlope := floatEntry(s.PressureSlope, 3)
	pOffset := floatEntry(s.PressureOffset, 3)
	cSlope := floatEntry(s.CurrentSlope, 3)
	cOffset := floatEntry(s.CurrentOffset, 3)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "VRef (V)", Widget: vref},
			{Text: "Pressure Slope (kPa/V)", Widget: pSlope},
			{Text: "Pressure Offset (V)", Widget: pOffset},
			{Text: "Current Slope (A/V)", Widget: cSlope},
			{Text: "Current Offset (V)", Widget: cOffset},
		},
		OnSubmit: func() {
			parseFloat32(vref, &s.VRef)
			parseFloat32(pSlope, &s.PressureSlope)
			parseFloat32(pOffset, &s.PressureOffset)
			parseFloat32(cSlope, &s.CurrentSlope)
			parseFloat32(cOffset, &s.CurrentOffset)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Sensor", form)
}

// createCaptureTab creates the capture buffer tab.
func createCaptureTab(state *appState) *container.TabItem {
	c := &state.cfg.Capture
	maxPoints := intEntry(c.MaxPoints)
	averageSamples := intEntry(c.AverageSamples)
	averageRate := durationEntry(c.AverageRate)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Max Points", Widget: maxPoints},
			{Text: "Average Samples (0=disabled)", Widget: averageSamples},
			{Text: "Average Rate", Widget: averageRate},
		},
		OnSubmit: func() {
			parseInt(maxPoints, &c.MaxPoints)
			parseInt(averageSamples, &c.AverageSamples)
			parseDuration(averageRate, &c.AverageRate)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Capture", form)
}

// createExportTab creates the storage export tab.
func createExportTab(state *appState) *container.TabItem {
	e := &state.cfg.Export
	dir := widget.NewEntry()
	dir.SetText(e.Dir)
	root := widget.NewEntry()
	root.SetText(e.StorageRoot)
	sendTimeout := durationEntry(e.SendTimeout)
	ackWindow := durationEntry(e.AckWindow)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Export Directory", Widget: dir},
			{Text: "Storage Root", Widget: root},
			{Text: "Send Timeout", Widget: sendTimeout},
			{Text: "Feedback Window", Widget: ackWindow},
		},
		OnSubmit: func() {
			if dir.Text != "" {
				e.Dir = dir.Text
			}
			if root.Text != "" {
				e.StorageRoot = root.Text
			}
			parseDuration(sendTimeout, &e.SendTimeout)
			parseDuration(ackWindow, &e.AckWindow)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Export", form)
}

// createRadioTab creates the radio power controller tab.
func createRadioTab(state *appState) *container.TabItem {
	r := &state.cfg.Radio
	port := widget.NewEntry()
	port.SetText(r.Port)
	port.SetPlaceHolder("empty = simulated link")
	idle := durationEntry(r.IdleTimeout)
	minTx := intEntry(int(r.MinTxPower))
	maxTx := intEntry(int(r.MaxTxPower))
	adapt := durationEntry(r.AdaptInterval)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Radio Port", Widget: port},
			{Text: "Idle Timeout", Widget: idle},
			{Text: "Min TX Power (dBm)", Widget: minTx},
			{Text: "Max TX Power (dBm)", Widget: maxTx},
			{Text: "Adapt Interval", Widget: adapt},
		},
		OnSubmit: func() {
			lo, hi := r.MinTxPower, r.MaxTxPower
			parseInt8(minTx, &lo)
			parseInt8(maxTx, &hi)
			if lo > hi {
				dialog.ShowError(fmt.Errorf("min tx power %d dBm above max %d dBm", lo, hi), state.window)
				return
			}
			r.Port = port.Text
			r.MinTxPower, r.MaxTxPower = lo, hi
			parseDuration(idle, &r.IdleTimeout)
			parseDuration(adapt, &r.AdaptInterval)
			r.Mode = state.svc.radio.Mode().String()
			saveConfig(state)
		},
	}

	return container.NewTabItem("Radio", form)
}

// createUplinkTab creates the MQTT uplink tab.
func createUplinkTab(state *appState) *container.TabItem {
	u := &state.cfg.Uplink
	enabled := widget.NewCheck("", nil)
	enabled.SetChecked(u.Enabled)
	broker := widget.NewEntry()
	broker.SetText(u.Broker)
	clientID := widget.NewEntry()
	clientID.SetText(u.ClientID)
	prefix := widget.NewEntry()
	prefix.SetText(u.TopicPrefix)
	interval := durationEntry(u.PublishInterval)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Enabled", Widget: enabled},
			{Text: "Broker", Widget: broker},
			{Text: "Client ID", Widget: clientID},
			{Text: "Topic Prefix", Widget: prefix},
			{Text: "Publish Interval", Widget: interval},
		},
		OnSubmit: func() {
			u.Enabled = enabled.Checked
			if broker.Text != "" {
				u.Broker = broker.Text
			}
			if clientID.Text != "" {
				u.ClientID = clientID.Text
			}
			if prefix.Text != "" {
				u.TopicPrefix = prefix.Text
			}
			parseDuration(interval, &u.PublishInterval)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Uplink", form)
}

// createMockTab creates the mocked gauge and link tab.
func createMockTab(state *appState) *container.TabItem {
	m := &state.cfg.Mock
	base := floatEntry(m.BasePressure, 1)
	ultimate := floatEntry(m.UltimatePressure, 2)
	tau := durationEntry(m.PumpDownTau)
	pumpCurrent := floatEntry(m.PumpCurrent, 2)
	noise := floatEntry(m.NoiseLevel, 4)
	sampleRate := durationEntry(m.SampleRate)
	rssi := intEntry(m.RSSI)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Base Pressure (kPa)", Widget: base},
			{Text: "Ultimate Pressure (kPa)", Widget: ultimate},
			{Text: "Pump-down Tau", Widget: tau},
			{Text: "Pump Current (A)", Widget: pumpCurrent},
			{Text: "Noise Level (V)", Widget: noise},
			{Text: "Sample Rate", Widget: sampleRate},
			{Text: "Link RSSI (dBm)", Widget: rssi},
		},
		OnSubmit: func() {
			parseFloat32(base, &m.BasePressure)
			parseFloat32(ultimate, &m.UltimatePressure)
			parseDuration(tau, &m.PumpDownTau)
			parseFloat32(pumpCurrent, &m.PumpCurrent)
			parseFloat32(noise, &m.NoiseLevel)
			parseDuration(sampleRate, &m.SampleRate)
			parseInt(rssi, &m.RSSI)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}
