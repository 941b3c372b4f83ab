package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/govac/pkg/config"
	"github.com/itohio/govac/pkg/export"
	"github.com/itohio/govac/pkg/gauge"
	"github.com/itohio/govac/pkg/journal"
	"github.com/itohio/govac/pkg/radio"
	"github.com/itohio/govac/pkg/sample"
	"github.com/itohio/govac/pkg/uplink"
)

// chainBufferSize is the channel depth between converter stages.
const chainBufferSize = 500

// services owns everything behind the window: the capture ring, the export
// pipeline, the radio controller and the optional uplink.
type services struct {
	cfg    *config.Config
	logger *slog.Logger

	ring *sample.Ring

	queue       *export.Queue
	session     *export.Session
	coordinator *export.Coordinator
	worker      *export.Worker
	poller      *export.Poller
	journal     *journal.Store

	link   radio.Link
	closer func() error
	radio  *radio.Controller
	uplink *uplink.Uplink

	cancel context.CancelFunc
	wg     sync.WaitGroup

	chain *measurementChain
}

// newServices builds the services. notifier receives export notices and
// results; it is called from whichever goroutine calls Submit and Poll.
func newServices(cfg *config.Config, logger *slog.Logger, notifier export.Notifier) (*services, error) {
	s := &services{
		cfg:    cfg,
		logger: logger,
		ring:   sample.NewRing(cfg.Capture.MaxPoints),
	}

	var last uint32
	if cfg.Journal.Path != "" {
		s.journal = journal.New(cfg.Journal.Path)
		ctx, cancel := context.WithTimeout(context.Background(), journal.DefaultTimeout)
		n, err := s.journal.LastSession(ctx)
		cancel()
		if err != nil {
			logger.Warn("failed to read export journal, numbering sessions from 1", slog.String("error", err.Error()))
		}
		last = n
	}

	opts := []export.Option{export.WithLogger(logger), export.WithNotifier(notifier)}

	s.queue = export.NewQueue(cfg.Export.QueueDepth)
	s.session = export.NewSession(last)
	s.coordinator = export.NewCoordinator(s.queue, s.session, &cfg.Export, opts...)
	s.poller = export.NewPoller(s.session, cfg.Export.AckWindow, opts...)

	workerOpts := []export.Option{export.WithLogger(logger)}
	if s.journal != nil {
		workerOpts = append(workerOpts, export.WithJournal(s.journal))
	}
	s.worker = export.NewWorker(s.queue, s.session, &export.DirStorage{Root: cfg.Export.StorageRoot}, workerOpts...)

	if err := s.openRadio(); err != nil {
		s.closeJournal()
		return nil, err
	}

	if cfg.Uplink.Enabled {
		s.uplink = uplink.New(uplink.NewClient(&cfg.Uplink), &cfg.Uplink, s.radio,
			uplink.WithLogger(logger),
			uplink.WithLatest(s.ring),
			uplink.WithExportState(s.session))
	}

	return s, nil
}

func (s *services) openRadio() error {
	if s.cfg.Radio.Port == "" {
		s.link = radio.NewMockLink(s.cfg.Mock.RSSI)
	} else {
		l := radio.NewSerialLink(s.cfg.Radio.Port, radio.DefaultBaudRate, radio.WithLinkLogger(s.logger))
		if err := l.Open(); err != nil {
			return err
		}
		s.link = l
		s.closer = l.Close
	}

	c, err := radio.NewController(s.link, &s.cfg.Radio, radio.WithLogger(s.logger))
	if err != nil {
		s.closeLink()
		return fmt.Errorf("creating radio controller: %w", err)
	}
	if err := c.Init(); err != nil {
		// The controller keeps running and retries the mode on the next request.
		s.logger.Warn("failed to apply initial radio mode", slog.String("error", err.Error()))
	}
	s.radio = c
	return nil
}

// start launches the storage worker and the uplink.
func (s *services) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Run(ctx); err != nil {
			s.logger.Error("storage worker stopped", slog.String("error", err.Error()))
		}
	}()

	if s.uplink == nil {
		return
	}
	if err := s.uplink.Start(); err != nil {
		// Auto-reconnect keeps trying in the background.
		s.logger.Warn("uplink not connected", slog.String("error", err.Error()))
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.uplink.Run(ctx); err != nil {
			s.logger.Error("uplink stopped", slog.String("error", err.Error()))
		}
	}()
}

// exportSamples starts an export of the captured samples.
func (s *services) exportSamples() error {
	err := s.coordinator.Submit(s.ring)
	if err != nil && !errors.Is(err, export.ErrBusy) && !errors.Is(err, export.ErrNoData) {
		s.logger.Error("export failed", slog.String("error", err.Error()))
	}
	return err
}

// runLoop is the caller loop. Each iteration ticks the radio controller on
// this goroutine and hands export polling plus view to onUI, which must run
// them on the UI goroutine.
func (s *services) runLoop(ctx context.Context, interval time.Duration, onUI func(func()), view func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.radio.Update()
			onUI(func() {
				s.poller.Poll()
				if view != nil {
					view()
				}
			})
		}
	}
}

// close stops the measurement chain, the background goroutines and the devices.
func (s *services) close() {
	s.disconnect()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.closeLink()
	s.closeJournal()
}

func (s *services) closeLink() {
	if s.closer == nil {
		return
	}
	if err := s.closer(); err != nil {
		s.logger.Warn("failed to close radio link", slog.String("error", err.Error()))
	}
	s.closer = nil
}

func (s *services) closeJournal() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		s.logger.Warn("failed to close export journal", slog.String("error", err.Error()))
	}
}

// measurementChain tracks the components of the measurement chain for graceful shutdown.
type measurementChain struct {
	device gauge.Device
	done   chan struct{} // Closed when the ring consumer exits
}

// connected reports whether a gauge is streaming into the ring.
func (s *services) connected() bool {
	return s.chain != nil && s.chain.device.IsConnected()
}

// connect opens the gauge and starts a new capture.
func (s *services) connect(useMock bool) error {
	if s.chain != nil {
		return gauge.ErrAlreadyConnected
	}

	var device gauge.Device
	if useMock {
		device = gauge.NewMock(&s.cfg.Mock, &s.cfg.Sensor)
	} else {
		device = gauge.New(s.cfg.Serial.Port, gauge.DefaultBaudRate, gauge.DefaultBufferSize, gauge.WithLogger(s.logger))
	}
	if err := device.Connect(); err != nil {
		return err
	}

	samples := sample.NewConverter(&s.cfg.Sensor, chainBufferSize)(device.Samples())
	if s.cfg.Capture.AverageSamples > 1 {
		samples = sample.NewAveragingConverter(s.cfg.Capture.AverageSamples, chainBufferSize, s.cfg.Capture.AverageRate)(samples)
	}

	s.ring.Reset()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ring.ProcessSamples(samples)
	}()

	s.chain = &measurementChain{device: device, done: done}
	return nil
}

// disconnect closes the gauge and waits until the converters have drained.
// The captured samples stay in the ring for export.
func (s *services) disconnect() {
	if s.chain == nil {
		return
	}
	if err := s.chain.device.Close(); err != nil {
		s.logger.Warn("failed to close gauge", slog.String("error", err.Error()))
	}

	select {
	case <-s.chain.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("measurement chain did not drain")
	}
	s.chain = nil
}
