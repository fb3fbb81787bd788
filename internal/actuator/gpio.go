package actuator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/metrics"
)

// PulseDwell is how long the relay line is held active.
const PulseDwell = 4 * time.Second

// OutputPin is the part of a periph gpio.PinOut the driver uses.
type OutputPin interface {
	Out(l gpio.Level) error
}

// PinOpener resolves a pin name to an output.
type PinOpener func(name string) (OutputPin, error)

// OpenPeriphPin initialises the periph host drivers and looks up name in
// the GPIO registry. host.Init is idempotent.
func OpenPeriphPin(name string) (OutputPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising periph host: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}

// GPIODriver pulses a relay wired to a GPIO line.
//
// The pin is opened on first use so that a missing GPIO subsystem fails the
// request rather than the process. Pulse calls are serialised; Available
// never waits for a pulse in progress.
type GPIODriver struct {
	pinName  string
	active   gpio.Level
	inactive gpio.Level
	logger   *logging.Logger

	open  PinOpener
	dwell time.Duration
	sleep func(time.Duration)

	pulseMu sync.Mutex

	openMu sync.Mutex
	pin    OutputPin

	opened atomic.Bool
	ready  atomic.Bool
}

// NewGPIODriver creates a driver for cfg.Pin. Nothing is opened yet.
func NewGPIODriver(cfg config.GPIOActuatorConfig, logger *logging.Logger) *GPIODriver {
	active, inactive := gpio.High, gpio.Low
	if cfg.ActiveLow {
		active, inactive = gpio.Low, gpio.High
	}
	return &GPIODriver{
		pinName:  cfg.Pin,
		active:   active,
		inactive: inactive,
		logger:   logger,
		open:     OpenPeriphPin,
		dwell:    PulseDwell,
		sleep:    time.Sleep,
	}
}

// Name returns "gpio".
func (d *GPIODriver) Name() string { return config.TransportGPIO }

// Pulse asserts the line, waits PulseDwell, and deasserts it. The dwell
// ignores ctx: once the relay is energised it is always released on
// schedule. A failed deassert is reported even when the assert succeeded.
func (d *GPIODriver) Pulse(_ context.Context) (retErr error) {
	d.pulseMu.Lock()
	defer d.pulseMu.Unlock()

	pin, err := d.ensurePin()
	if err != nil {
		return unavailable(d.Name(), err)
	}

	defer func() {
		if err := pin.Out(d.inactive); err != nil {
			d.logger.Error("relay release failed, line may still be active",
				"pin", d.pinName, "error", err)
			d.setReady(false)
			if retErr == nil {
				retErr = unavailable(d.Name(), fmt.Errorf("releasing %s: %w", d.pinName, err))
			}
			return
		}
		if retErr == nil {
			d.setReady(true)
		}
	}()

	if err := pin.Out(d.active); err != nil {
		return unavailable(d.Name(), fmt.Errorf("asserting %s: %w", d.pinName, err))
	}
	d.logger.Debug("relay asserted", "pin", d.pinName, "dwell", d.dwell)
	d.sleep(d.dwell)
	return nil
}

// Available reports whether the relay line is usable. Before the first
// pulse it tries to open the pin; afterwards it reports the outcome of the
// last release.
func (d *GPIODriver) Available() bool {
	if d.opened.Load() {
		return d.ready.Load()
	}
	_, err := d.ensurePin()
	return err == nil
}

// ensurePin opens the pin once and drives it inactive.
func (d *GPIODriver) ensurePin() (OutputPin, error) {
	d.openMu.Lock()
	defer d.openMu.Unlock()

	if d.pin != nil {
		return d.pin, nil
	}
	if d.pinName == "" {
		return nil, fmt.Errorf("no gpio pin configured")
	}

	pin, err := d.open(d.pinName)
	if err != nil {
		metrics.ActuatorAvailable.WithLabelValues(d.Name()).Set(0)
		return nil, err
	}
	if err := pin.Out(d.inactive); err != nil {
		metrics.ActuatorAvailable.WithLabelValues(d.Name()).Set(0)
		return nil, fmt.Errorf("initialising %s inactive: %w", d.pinName, err)
	}

	d.pin = pin
	d.setReady(true)
	d.opened.Store(true)
	d.logger.Info("relay pin opened", "pin", d.pinName, "active_level", d.active)
	return pin, nil
}

func (d *GPIODriver) setReady(ok bool) {
	d.ready.Store(ok)
	v := 0.0
	if ok {
		v = 1
	}
	metrics.ActuatorAvailable.WithLabelValues(d.Name()).Set(v)
}
