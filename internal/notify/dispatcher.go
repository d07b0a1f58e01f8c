package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/storage"
)

// Channel names used in records, metrics and events.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelMQTT     = "mqtt"
	ChannelWebhook  = "webhook"
)

// Publisher is the MQTT side used by the dispatcher.
type Publisher interface {
	Publish(suffix string, payload any, retain bool) error
	PublishCameraEvent(ev CameraEvent, snapshot []byte) error
}

// Poster is the outbound webhook side used by the dispatcher.
type Poster interface {
	Post(ctx context.Context, payload any) error
	URL() string
}

// Recorder stores notification outcomes.
type Recorder interface {
	AddNotification(ctx context.Context, n *storage.Notification) error
}

// EventPublisher publishes bus events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Channels are the configured delivery targets. Nil fields are disabled.
type Channels struct {
	Chat    Chat
	MQTT    Publisher
	Webhook Poster
}

// Dispatcher fans results out to every configured channel. Delivery
// failures are recorded and logged, never returned to the caller.
type Dispatcher struct {
	recorder Recorder
	bus      EventPublisher
	logger   *slog.Logger

	mu       sync.RWMutex
	channels Channels
}

// NewDispatcher creates a dispatcher with no channels.
func NewDispatcher(recorder Recorder, bus EventPublisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{recorder: recorder, bus: bus, logger: logger}
}

// SetChannels replaces the delivery targets.
func (d *Dispatcher) SetChannels(ch Channels) {
	d.mu.Lock()
	d.channels = ch
	d.mu.Unlock()
}

// Channels returns the current delivery targets.
func (d *Dispatcher) Channels() Channels {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channels
}

// NotifyChat sends caption and image to recipients and records each outcome.
func (d *Dispatcher) NotifyChat(ctx context.Context, eventID, subject string, recipients []string, image []byte, caption string) []Delivery {
	chat := d.Channels().Chat
	targets := RecipientList(recipients)
	if chat == nil || len(targets) == 0 {
		return nil
	}

	deliveries := chat.Send(ctx, targets, image, caption)
	for _, del := range deliveries {
		var err error
		if !del.Success {
			err = errors.New(del.Error)
		}
		d.record(ctx, eventID, subject, ChannelWhatsApp, del.Recipient.Value, err)
	}
	return deliveries
}

// PublishCameraEvent publishes a camera analysis over MQTT.
func (d *Dispatcher) PublishCameraEvent(ctx context.Context, ev CameraEvent, snapshot []byte) {
	pub := d.Channels().MQTT
	if pub == nil {
		return
	}
	err := pub.PublishCameraEvent(ev, snapshot)
	d.record(ctx, ev.EventID, ev.CameraID, ChannelMQTT, "cameras/"+ev.CameraID+"/event", err)
}

// PublishResult publishes payload on <base>/<suffix> over MQTT.
func (d *Dispatcher) PublishResult(ctx context.Context, eventID, subject, suffix string, payload any) {
	pub := d.Channels().MQTT
	if pub == nil {
		return
	}
	err := pub.Publish(suffix, payload, false)
	d.record(ctx, eventID, subject, ChannelMQTT, suffix, err)
}

// PostWebhook sends payload to the outbound webhook.
func (d *Dispatcher) PostWebhook(ctx context.Context, eventID, subject string, payload any) {
	hook := d.Channels().Webhook
	if hook == nil {
		return
	}
	err := hook.Post(ctx, payload)
	d.record(ctx, eventID, subject, ChannelWebhook, hook.URL(), err)
}

func (d *Dispatcher) record(ctx context.Context, eventID, subject, channel, target string, err error) {
	result := storage.StatusSuccess
	errMsg := ""
	if err != nil {
		result = storage.StatusFailed
		errMsg = err.Error()
		if !errors.Is(err, ErrNotConnected) {
			d.logger.Warn("Notification failed", "channel", channel, "target", target, "error", err)
		}
	}

	// MQTT publishes are frequent; only chat and webhook outcomes are stored
	if d.recorder != nil && channel != ChannelMQTT {
		rec := &storage.Notification{
			EventID:   eventID,
			Channel:   channel,
			Recipient: target,
			Status:    result,
			Error:     errMsg,
		}
		if recErr := d.recorder.AddNotification(ctx, rec); recErr != nil {
			d.logger.Warn("Failed to record notification", "error", recErr)
		}
	}

	if d.bus != nil {
		d.bus.Publish(events.NotificationSentEvent{
			Channel:   channel,
			Target:    target,
			Subject:   subject,
			Success:   err == nil,
			Error:     errMsg,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
