package radio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/govac/pkg/config"
)

const (
	DefaultActivityWindow = time.Second
	DefaultAdaptInterval  = 30 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
)

// ErrNotInitialized is returned by SetPowerMode before Init.
var ErrNotInitialized = errors.New("radio controller not initialized")

// Status is a snapshot of the controller state.
type Status struct {
	Mode            Mode          `json:"mode"`
	Activity        Activity      `json:"activity"`
	Sleep           SleepLevel    `json:"sleep"`
	PowerSaveActive bool          `json:"power_save_active"`
	TxPower         int8          `json:"tx_power"`
	Connected       bool          `json:"connected"`
	TxPackets       uint32        `json:"tx_packets"`
	RxPackets       uint32        `json:"rx_packets"`
	ModemSleepCount uint32        `json:"modem_sleep_count"`
	LightSleepCount uint32        `json:"light_sleep_count"`
	TotalSleep      time.Duration `json:"total_sleep"`
	Uptime          time.Duration `json:"uptime"`
	Transitions     uint32        `json:"transitions"`
	LastTransition  time.Time     `json:"last_transition"`
	SavingRatio     float32       `json:"power_saving_ratio"`
}

// Controller drives the radio power mode state machine. Update is called once
// per caller loop iteration; RecordTx and RecordRx may be called from any goroutine.
type Controller struct {
	link   Link
	logger *slog.Logger
	now    func() time.Time

	initial        Mode
	minTx, maxTx   int8
	idleTimeout    time.Duration
	activityWindow time.Duration
	adaptInterval  time.Duration

	mu          sync.Mutex
	initialized bool
	mode        Mode
	activity    Activity
	sleep       SleepLevel
	sleepKnown  bool
	subMode     bool
	txPower     int8
	txKnown     bool

	txPackets, rxPackets uint32
	prevTotal            uint32

	started      time.Time
	lastTraffic  time.Time
	lastClassify time.Time
	lastAdapt    time.Time
	sleepSince   time.Time

	modemSleeps    uint32
	lightSleeps    uint32
	totalSleep     time.Duration
	transitions    uint32
	lastTransition time.Time
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) func(*Controller) {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller for link. The configured mode is applied by Init.
func NewController(link Link, cfg *config.RadioConfig, options ...func(*Controller)) (*Controller, error) {
	mode := Balanced
	if cfg.Mode != "" {
		m, err := ParseMode(cfg.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	if cfg.MinTxPower > cfg.MaxTxPower {
		return nil, fmt.Errorf("min tx power %d dBm above max %d dBm", cfg.MinTxPower, cfg.MaxTxPower)
	}

	c := &Controller{
		link:           link,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
		initial:        mode,
		minTx:          cfg.MinTxPower,
		maxTx:          cfg.MaxTxPower,
		idleTimeout:    cfg.IdleTimeout,
		activityWindow: cfg.ActivityWindow,
		adaptInterval:  cfg.AdaptInterval,
		txPower:        cfg.MinTxPower,
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = DefaultIdleTimeout
	}
	if c.activityWindow <= 0 {
		c.activityWindow = DefaultActivityWindow
	}
	if c.adaptInterval <= 0 {
		c.adaptInterval = DefaultAdaptInterval
	}

	for _, option := range options {
		option(c)
	}
	c.logger = c.logger.With(slog.String("component", "radio"))

	return c, nil
}

// Init starts the statistics clock and applies the configured mode.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.started = now
	c.lastTraffic = now
	c.lastClassify = now
	c.lastAdapt = now
	c.initialized = true

	return c.applyPowerMode(c.initial)
}

// SetPowerMode requests a mode change. Requesting the current mode is a no-op.
// If the link rejects the new sleep level the mode is left unchanged.
func (c *Controller) SetPowerMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if m == c.mode {
		return nil
	}
	return c.applyPowerMode(m)
}

// Mode returns the current power mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// TxPower returns the current transmit power in dBm.
func (c *Controller) TxPower() int8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txPower
}

// RecordTx adds n transmitted packets to the traffic counters.
func (c *Controller) RecordTx(n uint32) {
	c.mu.Lock()
	c.txPackets += n
	c.mu.Unlock()
}

// RecordRx adds n received packets to the traffic counters.
func (c *Controller) RecordRx(n uint32) {
	c.mu.Lock()
	c.rxPackets += n
	c.mu.Unlock()
}

// Update runs one controller tick: activity classification, the balanced mode
// heuristic and transmit power adaptation, each on its own cadence.
func (c *Controller) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	now := c.now()

	if now.Sub(c.lastClassify) >= c.activityWindow {
		c.classify(now)
	}

	if c.mode == Balanced {
		c.balance(now)
	}

	if now.Sub(c.lastAdapt) >= c.adaptInterval {
		c.lastAdapt = now
		if c.link.Connected() {
			c.adaptTxPower()
		}
	}
}

func (c *Controller) classify(now time.Time) {
	total := c.txPackets + c.rxPackets
	rate := total - c.prevTotal
	c.prevTotal = total
	c.lastClassify = now

	if rate > 0 {
		c.lastTraffic = now
	}

	activity := classify(rate)
	if activity != c.activity {
		c.logger.Debug("activity changed", slog.String("from", c.activity.String()),
			slog.String("to", activity.String()), slog.Uint64("rate", uint64(rate)))
	}
	c.activity = activity
}

// balance toggles the power-save sub-mode of Balanced. Idle enables it once the
// idle timeout has passed, Low keeps it enabled, Medium and High disable it.
func (c *Controller) balance(now time.Time) {
	switch c.activity {
	case Idle:
		if c.subMode || now.Sub(c.lastTraffic) <= c.idleTimeout {
			return
		}
		c.enablePowerSave(slog.Duration("idle", now.Sub(c.lastTraffic)))
	case Low:
		if c.subMode {
			return
		}
		c.enablePowerSave(slog.String("activity", c.activity.String()))
	case Medium, High:
		if !c.subMode {
			return
		}
		if err := c.setSleep(SleepMin); err != nil {
			return
		}
		c.subMode = false
		c.logger.Info("power save disabled", slog.String("activity", c.activity.String()))
	}
}

func (c *Controller) enablePowerSave(reason slog.Attr) {
	if err := c.setSleep(SleepMax); err != nil {
		return
	}
	c.subMode = true
	c.logger.Info("power save enabled", reason)
}

// applyPowerMode sets the sleep level and transmit power of m.
func (c *Controller) applyPowerMode(m Mode) error {
	from := c.mode

	if m != DeepSleepReady && !c.link.Connected() {
		if err := c.link.Connect(); err != nil {
			c.logger.Warn("failed to reconnect link", slog.String("error", err.Error()))
		}
	}

	var level SleepLevel
	var tx int8
	switch m {
	case AlwaysOn:
		level, tx = SleepNone, c.maxTx
	case Balanced:
		level, tx = SleepMin, c.midTx()
	case PowerSave:
		level, tx = SleepMax, c.minTx
	case DeepSleepReady:
		level = SleepMax
	}

	if err := c.setSleep(level); err != nil {
		return fmt.Errorf("apply %s: %w", m, err)
	}

	if m == DeepSleepReady {
		if err := c.link.Disconnect(); err != nil {
			c.logger.Warn("failed to drop link", slog.String("error", err.Error()))
		}
	} else {
		c.setTxPower(tx)
	}

	c.mode = m
	c.subMode = false
	c.transitions++
	c.lastTransition = c.now()

	c.logger.Info("power mode changed", slog.String("from", from.String()), slog.String("to", m.String()),
		slog.Int("tx_power", int(c.txPower)))
	return nil
}

func (c *Controller) adaptTxPower() {
	rssi, err := c.link.RSSI()
	if err != nil {
		c.logger.Warn("failed to read rssi", slog.String("error", err.Error()))
		return
	}

	target := c.txForRSSI(rssi)
	if target == c.txPower && c.txKnown {
		return
	}
	c.logger.Debug("adapting tx power", slog.Int("rssi", rssi), slog.Int("tx_power", int(target)))
	c.setTxPower(target)
}

func (c *Controller) txForRSSI(rssi int) int8 {
	var target int
	switch {
	case rssi > -50:
		target = int(c.minTx)
	case rssi > -60:
		target = int(c.minTx) + 2
	case rssi > -70:
		target = int(c.midTx())
	default:
		target = int(c.maxTx)
	}
	return c.clampTx(target)
}

func (c *Controller) midTx() int8 {
	return c.clampTx((int(c.minTx) + int(c.maxTx)) / 2)
}

func (c *Controller) clampTx(dbm int) int8 {
	return int8(max(int(c.minTx), min(int(c.maxTx), dbm)))
}

// setTxPower applies dbm. On failure the previous power is kept.
func (c *Controller) setTxPower(dbm int8) {
	dbm = c.clampTx(int(dbm))
	if c.txKnown && dbm == c.txPower {
		return
	}
	if err := c.link.SetTxPower(dbm); err != nil {
		c.logger.Warn("failed to set tx power", slog.Int("tx_power", int(dbm)), slog.String("error", err.Error()))
		return
	}
	c.txPower = dbm
	c.txKnown = true
}

// setSleep applies level and keeps the sleep statistics.
func (c *Controller) setSleep(level SleepLevel) error {
	if c.sleepKnown && level == c.sleep {
		return nil
	}
	if err := c.link.SetSleep(level); err != nil {
		c.logger.Warn("failed to set sleep level", slog.String("level", level.String()), slog.String("error", err.Error()))
		return err
	}

	now := c.now()
	if c.sleepKnown && c.sleep != SleepNone {
		c.totalSleep += now.Sub(c.sleepSince)
	}
	switch level {
	case SleepMin:
		c.modemSleeps++
	case SleepMax:
		c.lightSleeps++
	}
	c.sleep = level
	c.sleepKnown = true
	c.sleepSince = now
	return nil
}

// sleepTime returns the total time spent sleeping including the current period.
func (c *Controller) sleepTime(now time.Time) time.Duration {
	total := c.totalSleep
	if c.sleepKnown && c.sleep != SleepNone {
		total += now.Sub(c.sleepSince)
	}
	return total
}

func (c *Controller) savingRatio(now time.Time) float32 {
	uptime := now.Sub(c.started)
	if !c.initialized || uptime <= 0 {
		return 0
	}
	return float32(c.sleepTime(now)) / float32(uptime) * 100
}

// PowerSavingRatio returns the share of uptime spent sleeping, in percent.
func (c *Controller) PowerSavingRatio() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.savingRatio(c.now())
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Status{
		Mode:            c.mode,
		Activity:        c.activity,
		Sleep:           c.sleep,
		PowerSaveActive: c.subMode,
		TxPower:         c.txPower,
		Connected:       c.link.Connected(),
		TxPackets:       c.txPackets,
		RxPackets:       c.rxPackets,
		ModemSleepCount: c.modemSleeps,
		LightSleepCount: c.lightSleeps,
		TotalSleep:      c.sleepTime(now),
		Transitions:     c.transitions,
		LastTransition:  c.lastTransition,
		SavingRatio:     c.savingRatio(now),
	}
	if c.initialized {
		s.Uptime = now.Sub(c.started)
	}
	return s
}
