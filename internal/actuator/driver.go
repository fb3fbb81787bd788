package actuator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
)

// Driver pulses the gate relay once per call.
type Driver interface {
	Pulse(ctx context.Context) error
	Name() string
}

// AvailabilityReporter is implemented by drivers that can tell whether the
// relay is currently reachable. Health checks use it; Pulse never does.
type AvailabilityReporter interface {
	Available() bool
}

// Deps carries the shared connections a driver may need.
type Deps struct {
	// Bus is required for the mqtt transport.
	Bus    Bus
	Logger *logging.Logger
}

// New builds the driver selected by cfg.Transport. The noop transport is
// accepted only when devMode is set.
func New(cfg config.ActuatorConfig, devMode bool, deps Deps) (Driver, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "actuator")

	switch cfg.Transport {
	case config.TransportGPIO:
		return NewGPIODriver(cfg.GPIO, logger), nil
	case config.TransportMQTT:
		if deps.Bus == nil {
			return nil, errors.New("mqtt transport selected but no MQTT connection available")
		}
		return NewMQTTDriver(deps.Bus, cfg.MQTT, logger), nil
	case config.TransportNoop:
		if !devMode {
			return nil, errors.New("noop actuator requires dev_mode")
		}
		logger.Warn("noop actuator in use, relay will not move")
		return NewNoopDriver(), nil
	default:
		return nil, fmt.Errorf("unknown actuator transport %q", cfg.Transport)
	}
}

// NoopDriver does nothing. Development only.
type NoopDriver struct{}

// NewNoopDriver creates a NoopDriver.
func NewNoopDriver() *NoopDriver {
	return &NoopDriver{}
}

// Pulse always succeeds.
func (d *NoopDriver) Pulse(_ context.Context) error { return nil }

// Name returns "noop".
func (d *NoopDriver) Name() string { return config.TransportNoop }

// Available always reports true.
func (d *NoopDriver) Available() bool { return true }
