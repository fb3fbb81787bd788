package actuator

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
)

func TestNew(t *testing.T) {
	base := config.Default().Actuator

	tests := []struct {
		name      string
		transport string
		devMode   bool
		bus       Bus
		wantName  string
		wantErr   bool
	}{
		{name: "gpio", transport: config.TransportGPIO, wantName: "gpio"},
		{name: "mqtt", transport: config.TransportMQTT, bus: newFakeBus(), wantName: "mqtt"},
		{name: "mqtt without bus", transport: config.TransportMQTT, wantErr: true},
		{name: "noop in dev mode", transport: config.TransportNoop, devMode: true, wantName: "noop"},
		{name: "noop in production", transport: config.TransportNoop, wantErr: true},
		{name: "unknown", transport: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Transport = tt.transport

			d, err := New(cfg, tt.devMode, Deps{Bus: tt.bus, Logger: logging.Discard()})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New() = %v, want error", d)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.wantName)
			}
		})
	}
}

func TestNoopDriver(t *testing.T) {
	d := NewNoopDriver()
	if err := d.Pulse(context.Background()); err != nil {
		t.Errorf("Pulse() error = %v", err)
	}
	if !d.Available() {
		t.Error("Available() = false")
	}
}

func TestError_Is(t *testing.T) {
	cause := errors.New("boom")
	err := transport("mqtt", cause)

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(ErrTransport) = false")
	}
	if errors.Is(err, ErrDriverUnavailable) {
		t.Error("errors.Is(ErrDriverUnavailable) = true")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
	if got := err.Error(); got != "mqtt: actuator transport error: boom" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&Error{Kind: ErrDriverUnavailable, Driver: "gpio"}).Error(); got != "gpio: actuator driver unavailable" {
		t.Errorf("Error() = %q", got)
	}
}
