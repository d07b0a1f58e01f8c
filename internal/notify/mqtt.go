package notify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/version"
)

// Availability payloads on <base>/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ErrNotConnected is returned when publishing while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTOptions configures the bridge.
type MQTTOptions struct {
	Broker          string
	Port            int
	Username        string
	Password        string
	ClientID        string
	BaseTopic       string
	Discovery       bool
	DiscoveryPrefix string
	PublishImages   bool
}

// TriggerFunc receives subjects requested over MQTT.
type TriggerFunc func(scheduler.Subject) error

// DiscoveryCamera is a camera announced to Home Assistant.
type DiscoveryCamera struct {
	ID   string
	Name string
}

// MQTTBridge publishes results and routes <base>/trigger/# messages.
type MQTTBridge struct {
	opts    MQTTOptions
	client  mqtt.Client
	trigger TriggerFunc
	logger  *slog.Logger

	mu      sync.RWMutex
	cameras []DiscoveryCamera
}

// NewMQTTBridge creates a bridge. Call Connect to reach the broker.
func NewMQTTBridge(opts MQTTOptions, trigger TriggerFunc, logger *slog.Logger) *MQTTBridge {
	b := newBridge(opts, trigger, logger)

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", b.opts.Broker, b.opts.Port))
	clientOpts.SetClientID(b.opts.ClientID)
	clientOpts.SetCleanSession(true)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(10 * time.Second)
	clientOpts.SetConnectTimeout(5 * time.Second)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetWill(b.topic("status"), StatusOffline, 1, true)
	if b.opts.Username != "" {
		clientOpts.SetUsername(b.opts.Username)
		clientOpts.SetPassword(b.opts.Password)
	}
	clientOpts.SetOnConnectHandler(b.onConnect)
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost, reconnecting", "error", err)
	})

	b.client = mqtt.NewClient(clientOpts)
	return b
}

func newBridge(opts MQTTOptions, trigger TriggerFunc, logger *slog.Logger) *MQTTBridge {
	if opts.Port == 0 {
		opts.Port = 1883
	}
	if opts.ClientID == "" {
		opts.ClientID = version.Name
	}
	if opts.BaseTopic == "" {
		opts.BaseTopic = version.Name
	}
	opts.BaseTopic = strings.Trim(opts.BaseTopic, "/")
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTBridge{opts: opts, trigger: trigger, logger: logger}
}

// Connect starts connecting and waits up to timeout. The client keeps
// retrying in the background when the broker is not reachable yet.
func (b *MQTTBridge) Connect(timeout time.Duration) bool {
	b.logger.Info("MQTT connecting", "broker", b.opts.Broker, "port", b.opts.Port)
	token := b.client.Connect()
	if !token.WaitTimeout(timeout) {
		b.logger.Warn("MQTT connection pending, retrying in background")
		return false
	}
	if err := token.Error(); err != nil {
		b.logger.Error("MQTT connect failed", "error", err)
		return false
	}
	return true
}

// Connected reports whether the broker connection is up.
func (b *MQTTBridge) Connected() bool {
	return b.client != nil && b.client.IsConnectionOpen()
}

// Close publishes offline and disconnects.
func (b *MQTTBridge) Close() {
	if b.client == nil {
		return
	}
	if b.client.IsConnectionOpen() {
		token := b.client.Publish(b.topic("status"), 1, true, StatusOffline)
		token.WaitTimeout(2 * time.Second)
	}
	b.client.Disconnect(250)
}

func (b *MQTTBridge) topic(suffix string) string {
	return b.opts.BaseTopic + "/" + strings.TrimPrefix(suffix, "/")
}

func (b *MQTTBridge) onConnect(client mqtt.Client) {
	b.logger.Info("MQTT connected", "broker", b.opts.Broker)

	client.Publish(b.topic("status"), 1, true, StatusOnline)

	token := client.Subscribe(b.topic("trigger/#"), 1, func(_ mqtt.Client, msg mqtt.Message) {
		b.route(msg.Topic(), msg.Payload())
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		b.logger.Error("MQTT subscribe failed", "error", token.Error())
	}

	if b.opts.Discovery {
		b.publishDiscovery()
	}
}

type personFinderPayload struct {
	Names      []string `json:"names"`
	Prompt     string   `json:"prompt"`
	Recipients []string `json:"recipients"`
}

// route converts a trigger topic into a subject and hands it to the trigger func.
func (b *MQTTBridge) route(topic string, payload []byte) {
	subject, err := b.parseTrigger(topic, payload)
	if err != nil {
		b.logger.Warn("MQTT trigger ignored", "topic", topic, "error", err)
		return
	}
	b.logger.Info("MQTT trigger received", "topic", topic, "kind", subject.Kind, "id", subject.ID)
	if b.trigger == nil {
		return
	}
	if err := b.trigger(subject); err != nil {
		b.logger.Warn("MQTT trigger failed", "topic", topic, "error", err)
	}
}

func (b *MQTTBridge) parseTrigger(topic string, payload []byte) (scheduler.Subject, error) {
	prefix := b.topic("trigger/")
	if !strings.HasPrefix(topic, prefix) {
		return scheduler.Subject{}, fmt.Errorf("not a trigger topic")
	}
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")

	switch parts[0] {
	case "patrol":
		return scheduler.Subject{Kind: scheduler.KindPatrol}, nil

	case "person_finder":
		var p personFinderPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return scheduler.Subject{}, fmt.Errorf("invalid person_finder payload: %w", err)
		}
		if len(p.Names) == 0 {
			return scheduler.Subject{}, fmt.Errorf("person_finder requires names")
		}
		return scheduler.Subject{
			Kind: scheduler.KindPersonFinder,
			Args: scheduler.Args{Names: p.Names, Prompt: p.Prompt, Recipients: p.Recipients},
		}, nil

	case "analyze":
		if len(parts) < 2 || parts[1] == "" {
			return scheduler.Subject{}, fmt.Errorf("analyze requires a camera id")
		}
		return scheduler.CameraSubject(parts[1], false, scheduler.Schedule{}), nil

	case "doorbell_iq":
		return scheduler.Subject{Kind: scheduler.KindDoorbell}, nil

	case "utility_meter":
		var id string
		if len(parts) > 1 {
			id = parts[1]
		}
		return scheduler.Subject{Kind: scheduler.KindMeter, ID: id, Args: scheduler.Args{MeterID: id}}, nil
	}
	return scheduler.Subject{}, fmt.Errorf("unknown trigger %q", parts[0])
}

// Publish sends payload to <base>/<suffix>. Strings and byte slices are
// sent as-is, anything else as JSON.
func (b *MQTTBridge) Publish(suffix string, payload any, retain bool) error {
	if !b.Connected() {
		return ErrNotConnected
	}

	var data []byte
	switch p := payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		data = encoded
	}

	token := b.client.Publish(b.topic(suffix), 0, retain, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", suffix)
	}
	return token.Error()
}

// CameraEvent is published on cameras/<id>/event.
type CameraEvent struct {
	CameraID    string   `json:"camera_id"`
	CameraName  string   `json:"camera_name,omitempty"`
	Analysis    string   `json:"analysis"`
	Detections  any      `json:"detections"`
	Persons     []string `json:"persons_detected"`
	PersonCount int      `json:"person_count"`
	EventID     string   `json:"event_id,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// PublishCameraEvent publishes the analysis and, when enabled, the snapshot.
func (b *MQTTBridge) PublishCameraEvent(ev CameraEvent, snapshot []byte) error {
	if err := b.Publish("cameras/"+ev.CameraID+"/event", ev, false); err != nil {
		return err
	}
	if b.opts.PublishImages && len(snapshot) > 0 {
		return b.PublishSnapshot(ev.CameraID, snapshot)
	}
	return nil
}

// PublishSnapshot publishes a base64 JPEG, retained for the HA camera entity.
func (b *MQTTBridge) PublishSnapshot(cameraID string, jpeg []byte) error {
	return b.Publish("cameras/"+cameraID+"/snapshot", base64.StdEncoding.EncodeToString(jpeg), true)
}

// SetDiscoveryCameras replaces the announced cameras and republishes discovery.
func (b *MQTTBridge) SetDiscoveryCameras(cameras []DiscoveryCamera) {
	b.mu.Lock()
	old := b.cameras
	b.cameras = append([]DiscoveryCamera(nil), cameras...)
	b.mu.Unlock()

	if !b.opts.Discovery || !b.Connected() {
		return
	}

	keep := make(map[string]bool, len(cameras))
	for _, c := range cameras {
		keep[c.ID] = true
	}
	for _, c := range old {
		if !keep[c.ID] {
			b.removeDiscovery(c.ID)
		}
	}
	b.publishDiscovery()
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SwVersion    string   `json:"sw_version,omitempty"`
}

type haConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic,omitempty"`
	Topic               string   `json:"topic,omitempty"`
	ImageEncoding       string   `json:"image_encoding,omitempty"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	JSONAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	PayloadAvailable    string   `json:"payload_available"`
	PayloadNotAvailable string   `json:"payload_not_available"`
	Icon                string   `json:"icon,omitempty"`
	Device              haDevice `json:"device"`
}

func (b *MQTTBridge) device() haDevice {
	return haDevice{
		Identifiers:  []string{b.opts.ClientID},
		Name:         "Watchnode",
		Manufacturer: version.Name,
		Model:        "Home security appliance",
		SwVersion:    version.Version,
	}
}

func (b *MQTTBridge) discoveryConfigs() map[string]haConfig {
	b.mu.RLock()
	cameras := append([]DiscoveryCamera(nil), b.cameras...)
	b.mu.RUnlock()

	availability := b.topic("status")
	configs := make(map[string]haConfig)

	for _, c := range cameras {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		uid := b.opts.ClientID + "_" + c.ID

		configs[b.opts.DiscoveryPrefix+"/sensor/"+uid+"/analysis/config"] = haConfig{
			Name:                name + " Analysis",
			UniqueID:            uid + "_analysis",
			StateTopic:          b.topic("cameras/" + c.ID + "/event"),
			ValueTemplate:       "{{ value_json.analysis[:250] }}",
			JSONAttributesTopic: b.topic("cameras/" + c.ID + "/event"),
			AvailabilityTopic:   availability,
			PayloadAvailable:    StatusOnline,
			PayloadNotAvailable: StatusOffline,
			Icon:                "mdi:cctv",
			Device:              b.device(),
		}
		configs[b.opts.DiscoveryPrefix+"/camera/"+uid+"/snapshot/config"] = haConfig{
			Name:                name + " Snapshot",
			UniqueID:            uid + "_snapshot",
			Topic:               b.topic("cameras/" + c.ID + "/snapshot"),
			ImageEncoding:       "b64",
			AvailabilityTopic:   availability,
			PayloadAvailable:    StatusOnline,
			PayloadNotAvailable: StatusOffline,
			Device:              b.device(),
		}
	}

	configs[b.opts.DiscoveryPrefix+"/sensor/"+b.opts.ClientID+"/patrol/config"] = haConfig{
		Name:                "Patrol Result",
		UniqueID:            b.opts.ClientID + "_patrol",
		StateTopic:          b.topic("patrol/result"),
		ValueTemplate:       "{{ value_json.summary[:250] }}",
		JSONAttributesTopic: b.topic("patrol/result"),
		AvailabilityTopic:   availability,
		PayloadAvailable:    StatusOnline,
		PayloadNotAvailable: StatusOffline,
		Icon:                "mdi:shield-home",
		Device:              b.device(),
	}
	return configs
}

func (b *MQTTBridge) publishDiscovery() {
	for topic, cfg := range b.discoveryConfigs() {
		data, err := json.Marshal(cfg)
		if err != nil {
			continue
		}
		b.client.Publish(topic, 1, true, data)
	}
	b.logger.Debug("MQTT discovery published")
}

func (b *MQTTBridge) removeDiscovery(cameraID string) {
	uid := b.opts.ClientID + "_" + cameraID
	// An empty retained payload deletes the entity
	b.client.Publish(b.opts.DiscoveryPrefix+"/sensor/"+uid+"/analysis/config", 1, true, []byte{})
	b.client.Publish(b.opts.DiscoveryPrefix+"/camera/"+uid+"/snapshot/config", 1, true, []byte{})
}
