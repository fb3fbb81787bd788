package control

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/gray-logic-gate/internal/actuator"
	"github.com/nerrad567/gray-logic-gate/internal/audit"
	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/internal/gate"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/mqtt"
)

// ObstructionNone is the only obstruction report; no sensor exists.
const ObstructionNone = "no obstruction"

// Telemetry receives actuation and override events. *influxdb.Client
// implements it.
type Telemetry interface {
	WriteActuation(ev influxdb.ActuationEvent)
	WriteOverride(ev influxdb.OverrideEvent)
}

// EventBus publishes gate state messages. *mqtt.Client implements it.
type EventBus interface {
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
	Topics() mqtt.Topics
	IsConnected() bool
}

// Deps holds the Service's collaborators. Audit, Telemetry and Events are
// optional.
type Deps struct {
	Authenticator *auth.Authenticator
	Authorizer    *auth.Authorizer
	Users         auth.UserStore
	Machine       *gate.Machine
	Driver        actuator.Driver
	Audit         audit.Repository
	Telemetry     Telemetry
	Events        EventBus
	Logger        *logging.Logger
	GateName      string
}

// Service orchestrates authorization, the state machine and the actuator.
type Service struct {
	authn     *auth.Authenticator
	authz     *auth.Authorizer
	users     auth.UserStore
	machine   *gate.Machine
	driver    actuator.Driver
	audit     audit.Repository
	telemetry Telemetry
	events    EventBus
	logger    *logging.Logger
	gateName  string
	validate  *validator.Validate
}

// New creates a Service. It subscribes to the machine so that settled
// states are published on the event bus.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Authenticator == nil:
		return nil, errors.New("control: authenticator is required")
	case deps.Authorizer == nil:
		return nil, errors.New("control: authorizer is required")
	case deps.Users == nil:
		return nil, errors.New("control: user store is required")
	case deps.Machine == nil:
		return nil, errors.New("control: gate machine is required")
	case deps.Driver == nil:
		return nil, errors.New("control: actuator driver is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	name := deps.GateName
	if name == "" {
		name = "gate"
	}

	s := &Service{
		authn:     deps.Authenticator,
		authz:     deps.Authorizer,
		users:     deps.Users,
		machine:   deps.Machine,
		driver:    deps.Driver,
		audit:     deps.Audit,
		telemetry: deps.Telemetry,
		events:    deps.Events,
		logger:    logger.With("component", "control"),
		gateName:  name,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}

	metrics.GateState.Set(float64(s.machine.State()))
	s.machine.Subscribe(s.onGateChange)
	return s, nil
}

// Login checks credentials and returns a signed identity token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", ErrMissingUsername
	}
	if password == "" {
		return "", ErrMissingPassword
	}

	token, err := s.authn.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues("invalid").Inc()
			s.logger.Warn("login failed", "username", username)
			s.record(ctx, &audit.AuditLog{Action: audit.ActionLoginFailed, Actor: username})
		}
		return "", err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Info("login succeeded", "username", username)
	s.record(ctx, &audit.AuditLog{Action: audit.ActionLogin, Actor: username})
	return token, nil
}

// TokenTTL returns the lifetime of tokens issued by Login.
func (s *Service) TokenTTL() time.Duration {
	return s.authn.TTL()
}

// ToggleGate pulses the relay and flips the logical state. The pulse and
// everything after it run on a context detached from ctx's cancellation,
// so a client that disconnects cannot cut the dwell short.
func (s *Service) ToggleGate(ctx context.Context, token string) (gate.Action, error) {
	id, err := s.authorize(token, auth.CapOpenCloseGate)
	if err != nil {
		return "", err
	}

	detached := context.WithoutCancel(ctx)
	var (
		pulseDur time.Duration
		pulsed   bool
	)

	action, change, err := s.machine.Toggle(detached, id.Username, func(pctx context.Context) error {
		start := time.Now()
		perr := s.driver.Pulse(pctx)
		pulseDur, pulsed = time.Since(start), true
		return perr
	})

	driver := s.driver.Name()
	if pulsed {
		metrics.GateActuationDuration.WithLabelValues(driver).Observe(pulseDur.Seconds())
	}

	ev := influxdb.ActuationEvent{
		Gate:     s.gateName,
		Driver:   driver,
		Actor:    id.Username,
		From:     change.From.String(),
		To:       change.To.String(),
		Duration: pulseDur,
		At:       time.Now(),
	}

	if err != nil {
		metrics.GateActuations.WithLabelValues(driver, influxdb.ResultFailed).Inc()
		ev.Err = err
		s.writeActuation(ev)
		s.record(detached, &audit.AuditLog{
			Action:  audit.ActionToggleFailed,
			Actor:   id.Username,
			Target:  s.gateName,
			Details: map[string]any{"driver": driver, "error": err.Error()},
		})
		return "", err
	}

	metrics.GateActuations.WithLabelValues(driver, influxdb.ResultOK).Inc()
	s.writeActuation(ev)
	s.record(detached, &audit.AuditLog{
		Action:  audit.ActionToggle,
		Actor:   id.Username,
		Target:  s.gateName,
		Details: map[string]any{"action": string(action), "driver": driver},
	})
	return action, nil
}

// OverrideState records a new logical state without pulsing the relay.
// A nil desired flips between open and closed.
func (s *Service) OverrideState(ctx context.Context, token string, desired *gate.State) (gate.Change, error) {
	id, err := s.authorize(token, auth.CapToggleStateOverride)
	if err != nil {
		return gate.Change{}, err
	}

	var change gate.Change
	if desired == nil {
		change, err = s.machine.FlipState(ctx, id.Username)
	} else {
		change, err = s.machine.SetState(ctx, id.Username, *desired)
	}
	if err != nil {
		return gate.Change{}, err
	}

	metrics.GateOverrides.Inc()
	if s.telemetry != nil {
		s.telemetry.WriteOverride(influxdb.OverrideEvent{
			Gate:  s.gateName,
			Actor: id.Username,
			From:  change.From.String(),
			To:    change.To.String(),
			At:    change.At,
		})
	}
	s.record(ctx, &audit.AuditLog{
		Action:  audit.ActionOverride,
		Actor:   id.Username,
		Target:  s.gateName,
		Details: map[string]any{"from": change.From.String(), "to": change.To.String()},
	})
	return change, nil
}

// GateState returns the current logical state. No token is required.
func (s *Service) GateState(_ context.Context) gate.State {
	return s.machine.State()
}

// Obstruction reports the obstruction flag. Always ObstructionNone.
func (s *Service) Obstruction(_ context.Context) string {
	return ObstructionNone
}

// OnGateChange registers fn for every gate state change, including transit
// states. It returns a function that removes fn.
func (s *Service) OnGateChange(fn gate.Observer) (unsubscribe func()) {
	return s.machine.Subscribe(fn)
}

// ActuatorAvailable reports whether the driver can currently reach the
// relay. Drivers that cannot tell are assumed available.
func (s *Service) ActuatorAvailable() bool {
	if r, ok := s.driver.(actuator.AvailabilityReporter); ok {
		return r.Available()
	}
	return true
}

// DriverName returns the configured actuator transport.
func (s *Service) DriverName() string {
	return s.driver.Name()
}

// Identify validates token without a capability check.
func (s *Service) Identify(token string) (*auth.Identity, error) {
	id, err := s.authz.Identify(token)
	if err != nil {
		s.countAuthFailure(err)
		return nil, err
	}
	return id, nil
}

// Authorize exposes the capability guard for transports that authorise
// before doing their own work (WebSocket tickets).
func (s *Service) Authorize(token string, required auth.Capability) (*auth.Identity, error) {
	return s.authorize(token, required)
}

func (s *Service) authorize(token string, required auth.Capability) (*auth.Identity, error) {
	id, err := s.authz.Authorize(token, required)
	if err != nil {
		s.countAuthFailure(err)
		return nil, err
	}
	return id, nil
}

func (s *Service) countAuthFailure(err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		reason = "expired"
	case errors.Is(err, auth.ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, auth.ErrTokenMissing):
		reason = "missing"
	}
	metrics.AuthorizationFailures.WithLabelValues(reason).Inc()
}

// record writes an audit entry. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, entry *audit.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error("writing audit log failed", "action", entry.Action, "error", err)
	}
}

func (s *Service) writeActuation(ev influxdb.ActuationEvent) {
	if s.telemetry != nil {
		s.telemetry.WriteActuation(ev)
	}
}

// statePayload is the retained MQTT gate state message.
type statePayload struct {
	Gate     string    `json:"gate"`
	State    string    `json:"state"`
	Code     int       `json:"code"`
	Actor    string    `json:"actor,omitempty"`
	Override bool      `json:"override,omitempty"`
	At       time.Time `json:"at"`
}

// onGateChange runs under the machine's actuation lock, so it only does
// non-blocking work.
func (s *Service) onGateChange(c gate.Change) {
	metrics.GateState.Set(float64(c.To))

	if s.events == nil || !s.events.IsConnected() {
		return
	}

	payload, err := json.Marshal(statePayload{
		Gate:     s.gateName,
		State:    c.To.String(),
		Code:     int(c.To),
		Actor:    c.Actor,
		Override: c.Override,
		At:       c.At,
	})
	if err != nil {
		s.logger.Error("encoding gate state message failed", "error", err)
		return
	}

	topics := s.events.Topics()
	if c.To.Settled() {
		if err := s.events.PublishAsync(topics.GateState(), payload, 1, true); err != nil {
			s.logger.Warn("publishing gate state failed", "error", err)
		}
	}
	if err := s.events.PublishAsync(topics.GateEvent(), payload, 0, false); err != nil {
		s.logger.Debug("publishing gate event failed", "error", err)
	}
}
