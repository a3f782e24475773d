// Package bridge mirrors coordinator snapshots into Home Assistant input
// helper entities over the WebSocket API. It is a one-way publisher; service
// calls flow the other way, through the HTTP API and the router.
package bridge

import (
	"strings"

	"zcsmower/internal/coordinator"
	"zcsmower/internal/ha"
	"zcsmower/internal/mower"

	"go.uber.org/zap"
)

// Publisher pushes snapshot changes to Home Assistant input helpers. Each
// mower gets these entities:
//
//	input_text.zcsmower_<slug>_state
//	input_boolean.zcsmower_<slug>_connected
//	input_number.zcsmower_<slug>_latitude
//	input_number.zcsmower_<slug>_longitude
type Publisher struct {
	client ha.HAClient
	logger *zap.Logger
}

// NewPublisher creates a publisher over an established Home Assistant client.
func NewPublisher(client ha.HAClient, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Attach subscribes the publisher to a coordinator's refresh notifications.
func (p *Publisher) Attach(c *coordinator.Coordinator) {
	c.Subscribe(func(snapshot map[string]mower.Device) {
		p.Publish(snapshot)
	})
}

// Publish writes one snapshot to Home Assistant. Individual entity failures
// are logged and skipped so one flaky helper does not starve the rest.
func (p *Publisher) Publish(snapshot map[string]mower.Device) {
	if !p.client.IsConnected() {
		p.logger.Warn("Home Assistant not connected, skipping snapshot publish")
		return
	}

	for imei, device := range snapshot {
		slug := Slug(imei, device.Name)

		if err := p.client.SetInputText(slug+"_state", device.State.String()); err != nil {
			p.logger.Warn("Failed to publish mower state",
				zap.String("imei", imei),
				zap.Error(err))
		}
		if err := p.client.SetInputBoolean(slug+"_connected", device.Connected); err != nil {
			p.logger.Warn("Failed to publish mower connectivity",
				zap.String("imei", imei),
				zap.Error(err))
		}
		if device.Location != nil {
			if err := p.client.SetInputNumber(slug+"_latitude", device.Location.Latitude); err != nil {
				p.logger.Warn("Failed to publish mower latitude",
					zap.String("imei", imei),
					zap.Error(err))
			}
			if err := p.client.SetInputNumber(slug+"_longitude", device.Location.Longitude); err != nil {
				p.logger.Warn("Failed to publish mower longitude",
					zap.String("imei", imei),
					zap.Error(err))
			}
		}
	}
}

// Slug derives the stable entity name fragment for one mower. The configured
// name wins when present; the IMEI is the fallback.
func Slug(imei, name string) string {
	base := name
	if base == "" {
		base = imei
	}

	var b strings.Builder
	b.WriteString("zcsmower_")
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
