package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Actuation results recorded in the result tag.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// ActuationEvent describes one pulse attempt.
type ActuationEvent struct {
	Gate     string
	Driver   string
	Actor    string
	From     string
	To       string
	Duration time.Duration
	Err      error
	At       time.Time
}

// OverrideEvent describes one administrative state correction.
type OverrideEvent struct {
	Gate  string
	Actor string
	From  string
	To    string
	At    time.Time
}

// WriteActuation records a pulse attempt. Nil-safe and non-blocking.
func (c *Client) WriteActuation(ev ActuationEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(actuationPoint(c.site, ev))
}

// WriteOverride records an override. Nil-safe and non-blocking.
func (c *Client) WriteOverride(ev OverrideEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(overridePoint(c.site, ev))
}

func actuationPoint(site string, ev ActuationEvent) *write.Point {
	result := ResultOK
	fields := map[string]any{
		"from":        ev.From,
		"to":          ev.To,
		"duration_ms": ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		result = ResultFailed
		fields["error"] = ev.Err.Error()
	}

	return write.NewPoint(
		"gate_actuation",
		map[string]string{
			"site":   site,
			"gate":   ev.Gate,
			"driver": ev.Driver,
			"actor":  ev.Actor,
			"result": result,
		},
		fields,
		timestampOrNow(ev.At),
	)
}

func overridePoint(site string, ev OverrideEvent) *write.Point {
	return write.NewPoint(
		"gate_override",
		map[string]string{
			"site":  site,
			"gate":  ev.Gate,
			"actor": ev.Actor,
		},
		map[string]any{
			"from": ev.From,
			"to":   ev.To,
		},
		timestampOrNow(ev.At),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
