package app

import (
	"maps"
	"slices"
	"time"

	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/logging"
	"github.com/smazurov/watchnode/internal/notify"
)

const mqttConnectTimeout = 5 * time.Second

// configureChannels rebuilds the dispatcher's delivery targets. The MQTT
// bridge is only reconnected when its settings changed. Callers hold applyMu.
func (a *App) configureChannels(prev, next config.Settings) {
	var ch notify.Channels

	a.whatsapp = nil
	if wa := next.WhatsApp; wa.Enabled && wa.APIURL != "" {
		a.whatsapp = notify.NewWhatsApp(notify.WhatsAppOptions{
			APIURL:   wa.APIURL,
			DeviceID: wa.DeviceID,
			Username: wa.Username,
			Password: wa.Password,
			Compress: wa.Compress,
		}, logging.GetLogger("notify"))
		ch.Chat = a.whatsapp
	}

	if hook := next.Webhook; hook.Enabled && hook.URL != "" {
		ch.Webhook = notify.NewWebhook(hook.URL, hook.Token, time.Duration(hook.TimeoutSec)*time.Second)
	}

	if a.mqtt != nil && (!next.MQTT.Enabled || prev.MQTT != next.MQTT) {
		a.mqtt.Close()
		a.mqtt = nil
	}
	if next.MQTT.Enabled && a.mqtt == nil {
		m := next.MQTT
		a.mqtt = notify.NewMQTTBridge(notify.MQTTOptions{
			Broker:          m.Broker,
			Port:            m.Port,
			Username:        m.Username,
			Password:        m.Password,
			ClientID:        m.ClientID,
			BaseTopic:       m.BaseTopic,
			Discovery:       m.Discovery,
			DiscoveryPrefix: m.DiscoveryPrefix,
			PublishImages:   m.PublishImages,
		}, a.mqttTrigger, logging.GetLogger("mqtt"))
		go a.mqtt.Connect(mqttConnectTimeout)
	}
	if a.mqtt != nil {
		a.mqtt.SetDiscoveryCameras(discoveryCameras(next))
		ch.MQTT = a.mqtt
	}

	a.dispatcher.SetChannels(ch)
}

func discoveryCameras(s config.Settings) []notify.DiscoveryCamera {
	var out []notify.DiscoveryCamera
	for _, id := range slices.Sorted(maps.Keys(s.Cameras)) {
		cam := s.Cameras[id]
		if !cam.Enabled {
			continue
		}
		name := cam.Name
		if name == "" {
			name = id
		}
		out = append(out, notify.DiscoveryCamera{ID: id, Name: name})
	}
	return out
}
