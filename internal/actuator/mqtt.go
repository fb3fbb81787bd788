package actuator

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/mqtt"
)

// Bus is the part of *mqtt.Client the MQTT driver uses.
type Bus interface {
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// MQTTDriver sends a toggle command to a smart plug over MQTT.
type MQTTDriver struct {
	bus     Bus
	topic   string
	payload []byte
	qos     byte
	logger  *logging.Logger

	// online mirrors the plug's LWT topic. It starts true so that a plug
	// without an LWT is never reported down.
	online atomic.Bool
}

// NewMQTTDriver creates the driver and, when cfg.AvailabilityTopic is set,
// subscribes to the plug's availability messages. A failed subscription is
// logged and availability stays unknown (reported online).
func NewMQTTDriver(bus Bus, cfg config.MQTTActuatorConfig, logger *logging.Logger) *MQTTDriver {
	d := &MQTTDriver{
		bus:     bus,
		topic:   cfg.Topic,
		payload: []byte(cfg.Payload),
		qos:     byte(cfg.QoS), //nolint:gosec // QoS validated by config
		logger:  logger,
	}
	d.online.Store(true)
	metrics.ActuatorAvailable.WithLabelValues(d.Name()).Set(1)

	if cfg.AvailabilityTopic != "" {
		if err := bus.Subscribe(cfg.AvailabilityTopic, 1, d.handleAvailability); err != nil {
			logger.Warn("subscribing to plug availability failed",
				"topic", cfg.AvailabilityTopic, "error", err)
		}
	}
	return d
}

// Name returns "mqtt".
func (d *MQTTDriver) Name() string { return config.TransportMQTT }

// Pulse publishes the toggle command once without waiting for the broker.
// An offline plug is logged but the command is still sent.
func (d *MQTTDriver) Pulse(_ context.Context) error {
	if !d.online.Load() {
		d.logger.Warn("plug reports offline, sending toggle anyway", "topic", d.topic)
	}
	if err := d.bus.PublishAsync(d.topic, d.payload, d.qos, false); err != nil {
		return transport(d.Name(), err)
	}
	d.logger.Debug("toggle command published", "topic", d.topic)
	return nil
}

// Available reports broker connectivity combined with the plug's LWT.
func (d *MQTTDriver) Available() bool {
	return d.bus.IsConnected() && d.online.Load()
}

func (d *MQTTDriver) handleAvailability(topic string, payload []byte) error {
	online := !strings.EqualFold(strings.TrimSpace(string(payload)), "offline")
	if d.online.Swap(online) != online {
		d.logger.Info("plug availability changed", "topic", topic, "online", online)
	}
	if online {
		metrics.ActuatorAvailable.WithLabelValues(d.Name()).Set(1)
	} else {
		metrics.ActuatorAvailable.WithLabelValues(d.Name()).Set(0)
	}
	return nil
}
