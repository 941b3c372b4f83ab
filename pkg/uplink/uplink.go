// Package uplink publishes instrument status over MQTT and accepts remote
// radio power mode requests.
package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/govac/pkg/config"
	"github.com/itohio/govac/pkg/radio"
	"github.com/itohio/govac/pkg/sample"
)

const (
	DefaultPublishInterval = 10 * time.Second
	DefaultTopicPrefix     = "govac"

	tokenTimeout = 5 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Client is the part of mqtt.Client the uplink uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

var _ Client = (mqtt.Client)(nil)

// Radio is the radio power controller as seen by the uplink.
type Radio interface {
	Status() radio.Status
	SetPowerMode(m radio.Mode) error
	RecordTx(n uint32)
	RecordRx(n uint32)
}

// Latest provides the most recent sample.
type Latest interface {
	Latest() (sample.Point, bool)
}

// ExportState reports the export pipeline state.
type ExportState interface {
	Busy() bool
	Current() uint32
}

// Document is the status JSON published to <prefix>/status.
type Document struct {
	Time          time.Time    `json:"time"`
	Pressure      *float32     `json:"pressure_kpa,omitempty"`
	Current       *float32     `json:"current_a,omitempty"`
	ExportBusy    bool         `json:"export_busy"`
	ExportSession uint32       `json:"export_session"`
	Radio         radio.Status `json:"radio"`
}

// Uplink publishes status documents and serves mode requests.
type Uplink struct {
	client   Client
	prefix   string
	interval time.Duration
	radio    Radio
	latest   Latest
	export   ExportState
	logger   *slog.Logger
	now      func() time.Time
}

// WithLogger sets the uplink logger.
func WithLogger(logger *slog.Logger) func(*Uplink) {
	return func(u *Uplink) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithLatest includes the latest sample in status documents.
func WithLatest(l Latest) func(*Uplink) {
	return func(u *Uplink) {
		u.latest = l
	}
}

// WithExportState includes export pipeline state in status documents.
func WithExportState(s ExportState) func(*Uplink) {
	return func(u *Uplink) {
		u.export = s
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) func(*Uplink) {
	return func(u *Uplink) {
		u.now = now
	}
}

// NewClient creates a paho client for cfg. The client reconnects on its own.
func NewClient(cfg *config.UplinkConfig) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(tokenTimeout)
	return mqtt.NewClient(opts)
}

// New creates an uplink publishing through client.
func New(client Client, cfg *config.UplinkConfig, r Radio, options ...func(*Uplink)) *Uplink {
	u := &Uplink{
		client:   client,
		prefix:   strings.TrimSuffix(cfg.TopicPrefix, "/"),
		interval: cfg.PublishInterval,
		radio:    r,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	if u.prefix == "" {
		u.prefix = DefaultTopicPrefix
	}
	if u.interval <= 0 {
		u.interval = DefaultPublishInterval
	}
	for _, option := range options {
		option(u)
	}
	u.logger = u.logger.With(slog.String("component", "uplink"))
	return u
}

// StatusTopic returns the topic status documents are published to.
func (u *Uplink) StatusTopic() string {
	return u.prefix + "/status"
}

// ModeTopic returns the topic mode requests are accepted on.
func (u *Uplink) ModeTopic() string {
	return u.prefix + "/radio/mode"
}

// Start connects to the broker and subscribes to mode requests.
func (u *Uplink) Start() error {
	if err := wait(u.client.Connect()); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	if err := wait(u.client.Subscribe(u.ModeTopic(), 1, u.handleMode)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", u.ModeTopic(), err)
	}
	u.logger.Info("uplink connected", slog.String("status_topic", u.StatusTopic()), slog.String("mode_topic", u.ModeTopic()))
	return nil
}

// Run publishes a status document every interval until ctx is done, then disconnects.
func (u *Uplink) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	defer u.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := u.Publish(); err != nil {
				u.logger.Warn("failed to publish status", slog.String("error", err.Error()))
			}
		}
	}
}

// Snapshot builds the current status document.
func (u *Uplink) Snapshot() Document {
	doc := Document{
		Time:  u.now().UTC(),
		Radio: u.radio.Status(),
	}
	if u.latest != nil {
		if p, ok := u.latest.Latest(); ok {
			doc.Pressure = &p.Pressure
			doc.Current = &p.Current
		}
	}
	if u.export != nil {
		doc.ExportBusy = u.export.Busy()
		doc.ExportSession = u.export.Current()
	}
	return doc
}

// Publish sends one status document.
func (u *Uplink) Publish() error {
	payload, err := json.Marshal(u.Snapshot())
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}

	if err := wait(u.client.Publish(u.StatusTopic(), 0, false, payload)); err != nil {
		return fmt.Errorf("publishing status: %w", err)
	}
	u.radio.RecordTx(1)
	return nil
}

func (u *Uplink) handleMode(_ mqtt.Client, msg mqtt.Message) {
	u.radio.RecordRx(1)

	m, err := radio.ParseMode(string(msg.Payload()))
	if err != nil {
		u.logger.Warn("rejected mode request", slog.String("payload", string(msg.Payload())), slog.String("error", err.Error()))
		return
	}
	if err := u.radio.SetPowerMode(m); err != nil {
		u.logger.Warn("mode request failed", slog.String("mode", m.String()), slog.String("error", err.Error()))
		return
	}
	u.logger.Info("mode requested remotely", slog.String("mode", m.String()))
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return ErrTimeout
	}
	return t.Error()
}
