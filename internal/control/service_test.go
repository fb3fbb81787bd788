package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gate/internal/actuator"
	"github.com/nerrad567/gray-logic-gate/internal/audit"
	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/internal/gate"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gate/migrations"
)

const testSecret = "control-test-secret-0123456789abcdef"

type fakeDriver struct {
	mu       sync.Mutex
	name     string
	delay    time.Duration
	pulses   int
	err      error
	ctxAlive []bool
}

func (d *fakeDriver) Pulse(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pulses++
	d.ctxAlive = append(d.ctxAlive, ctx.Err() == nil)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.err
}

func (d *fakeDriver) Name() string {
	if d.name != "" {
		return d.name
	}
	return "fake"
}

func (d *fakeDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pulses
}

type fakeTelemetry struct {
	mu         sync.Mutex
	actuations []influxdb.ActuationEvent
	overrides  []influxdb.OverrideEvent
}

func (f *fakeTelemetry) WriteActuation(ev influxdb.ActuationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actuations = append(f.actuations, ev)
}

func (f *fakeTelemetry) WriteOverride(ev influxdb.OverrideEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = append(f.overrides, ev)
}

type busMessage struct {
	topic    string
	payload  string
	retained bool
}

type fakeBus struct {
	mu       sync.Mutex
	messages []busMessage
}

func (b *fakeBus) PublishAsync(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, busMessage{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (b *fakeBus) Topics() mqtt.Topics { return mqtt.Topics{Site: "test"} }

func (b *fakeBus) IsConnected() bool { return true }

type testEnv struct {
	svc       *Service
	users     *auth.SQLiteUserStore
	audit     *audit.SQLiteRepository
	driver    *fakeDriver
	telemetry *fakeTelemetry
	bus       *fakeBus
	machine   *gate.Machine
}

func newTestEnv(t *testing.T, authzOpts ...auth.Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "control-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	users := auth.NewSQLiteUserStore(db)
	machine, err := gate.NewMachine(ctx, gate.NewSQLiteStore(db), config.InitialStateClosed, logging.Discard())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	env := &testEnv{
		users:     users,
		audit:     audit.NewSQLiteRepository(db),
		driver:    &fakeDriver{},
		telemetry: &fakeTelemetry{},
		bus:       &fakeBus{},
		machine:   machine,
	}

	env.svc, err = New(Deps{
		Authenticator: auth.NewAuthenticator(users, testSecret, time.Hour),
		Authorizer:    auth.NewAuthorizer(testSecret, authzOpts...),
		Users:         users,
		Machine:       machine,
		Driver:        env.driver,
		Audit:         env.audit,
		Telemetry:     env.telemetry,
		Events:        env.bus,
		Logger:        logging.Discard(),
		GateName:      "front",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return env
}

// addUser creates an account directly in the store and returns a token for it.
func (e *testEnv) addUser(t *testing.T, username string, role auth.Role) string {
	t.Helper()
	hash, err := auth.HashPassword(username + "-pw")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := e.users.Create(context.Background(), &auth.User{Username: username, PasswordHash: hash, Role: role}); err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	token, err := e.svc.Login(context.Background(), username, username+"-pw")
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return token
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	res, err := e.audit.List(context.Background(), audit.Filter{Limit: 200})
	if err != nil {
		t.Fatalf("audit List() error = %v", err)
	}
	actions := make([]string, 0, len(res.Logs))
	for _, l := range res.Logs {
		actions = append(actions, l.Action)
	}
	return actions
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no deps should fail")
	}
}

func TestService_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	adminToken := env.addUser(t, "root", auth.RoleAdmin)

	if _, err := env.svc.RegisterUser(ctx, adminToken, RegisterInput{Username: "alice", Password: "s3cret", Role: "user"}); err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}

	aliceToken, err := env.svc.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login(alice) error = %v", err)
	}

	action, err := env.svc.ToggleGate(ctx, aliceToken)
	if err != nil {
		t.Fatalf("ToggleGate() error = %v", err)
	}
	if action != gate.ActionOpened {
		t.Errorf("ToggleGate() = %q, want opened", action)
	}
	if got := env.svc.GateState(ctx); got != gate.Open {
		t.Errorf("GateState() = %v, want open", got)
	}
	if env.driver.count() != 1 {
		t.Errorf("pulses = %d, want 1", env.driver.count())
	}

	if _, err := env.svc.RegisterUser(ctx, aliceToken, RegisterInput{Username: "mallory", Password: "x", Role: "admin"}); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("alice RegisterUser() error = %v, want ErrForbidden", err)
	}
	if _, err := env.svc.OverrideState(ctx, aliceToken, nil); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("alice OverrideState() error = %v, want ErrForbidden", err)
	}
	if _, err := env.svc.ListUsers(ctx, aliceToken); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("alice ListUsers() error = %v, want ErrForbidden", err)
	}

	actions := env.auditActions(t)
	for _, want := range []string{audit.ActionLogin, audit.ActionRegister, audit.ActionToggle} {
		if !contains(actions, want) {
			t.Errorf("audit actions %v missing %q", actions, want)
		}
	}

	if len(env.telemetry.actuations) != 1 || env.telemetry.actuations[0].To != "open" {
		t.Errorf("telemetry actuations = %+v", env.telemetry.actuations)
	}
}

func TestService_LoginValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", auth.RoleUser)
	ctx := context.Background()

	if _, err := env.svc.Login(ctx, "", "pw"); !errors.Is(err, ErrMissingUsername) {
		t.Errorf("Login(no username) error = %v", err)
	}
	if _, err := env.svc.Login(ctx, "alice", ""); !errors.Is(err, ErrMissingPassword) {
		t.Errorf("Login(no password) error = %v", err)
	}

	_, errWrong := env.svc.Login(ctx, "alice", "nope")
	_, errUnknown := env.svc.Login(ctx, "nobody", "nope")
	if !errors.Is(errWrong, auth.ErrInvalidCredentials) || !errors.Is(errUnknown, auth.ErrInvalidCredentials) {
		t.Errorf("errors = %v / %v, want ErrInvalidCredentials", errWrong, errUnknown)
	}
	if !contains(env.auditActions(t), audit.ActionLoginFailed) {
		t.Error("failed login not audited")
	}
}

func TestService_ToggleTwice(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(t, "alice", auth.RoleUser)
	ctx := context.Background()

	first, err := env.svc.ToggleGate(ctx, token)
	if err != nil {
		t.Fatalf("ToggleGate() error = %v", err)
	}
	second, err := env.svc.ToggleGate(ctx, token)
	if err != nil {
		t.Fatalf("ToggleGate() error = %v", err)
	}
	if first != gate.ActionOpened || second != gate.ActionClosed {
		t.Errorf("actions = %q, %q; want opened, closed", first, second)
	}
}

func TestService_ToggleFailureLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(t, "alice", auth.RoleUser)
	env.driver.err = &actuator.Error{Kind: actuator.ErrTransport, Driver: "fake", Err: mqtt.ErrNotConnected}

	_, err := env.svc.ToggleGate(context.Background(), token)
	if !errors.Is(err, actuator.ErrTransport) {
		t.Fatalf("ToggleGate() error = %v, want ErrTransport", err)
	}
	if env.svc.GateState(context.Background()) != gate.Closed {
		t.Error("state advanced after failed pulse")
	}
	if !contains(env.auditActions(t), audit.ActionToggleFailed) {
		t.Error("failed toggle not audited")
	}
	if len(env.telemetry.actuations) != 1 || env.telemetry.actuations[0].Err == nil {
		t.Errorf("telemetry = %+v, want one failed actuation", env.telemetry.actuations)
	}
}

func TestService_ToggleSurvivesCancelledRequest(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(t, "alice", auth.RoleUser)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.svc.ToggleGate(ctx, token); err != nil {
		t.Fatalf("ToggleGate() error = %v", err)
	}
	if len(env.driver.ctxAlive) != 1 || !env.driver.ctxAlive[0] {
		t.Errorf("pulse context cancelled: %v", env.driver.ctxAlive)
	}
	if env.svc.GateState(context.Background()) != gate.Open {
		t.Error("state not committed")
	}
}

func TestService_ConcurrentToggles(t *testing.T) {
	const n = 10
	env := newTestEnv(t)
	token := env.addUser(t, "alice", auth.RoleUser)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.ToggleGate(context.Background(), token); err != nil {
				t.Errorf("ToggleGate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if env.driver.count() != n {
		t.Errorf("pulses = %d, want %d", env.driver.count(), n)
	}
	if env.svc.GateState(context.Background()) != gate.Closed {
		t.Errorf("state = %v after %d toggles, want closed", env.svc.GateState(context.Background()), n)
	}
}

func TestService_ConcurrentTogglesRecordTrueOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.driver.delay = 50 * time.Millisecond
	token := env.addUser(t, "alice", auth.RoleUser)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.ToggleGate(context.Background(), token); err != nil {
				t.Errorf("ToggleGate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	env.telemetry.mu.Lock()
	defer env.telemetry.mu.Unlock()
	if len(env.telemetry.actuations) != 2 {
		t.Fatalf("actuations = %d, want 2", len(env.telemetry.actuations))
	}
	seen := map[string]string{}
	for _, ev := range env.telemetry.actuations {
		seen[ev.From] = ev.To
	}
	if seen["closed"] != "open" || seen["open"] != "closed" {
		t.Errorf("actuation from/to = %v, want closed->open and open->closed", seen)
	}
}

// stuckStore reports a persisted transit state so the machine starts
// refusing toggles.
type stuckStore struct{}

func (stuckStore) Load(context.Context) (gate.State, bool, error) { return gate.Opening, true, nil }

func (stuckStore) Save(context.Context, gate.State, string) error { return nil }

func TestService_RefusedToggleRecordsNoPulseDuration(t *testing.T) {
	env := newTestEnv(t)
	env.driver.name = "refused-toggle"
	token := env.addUser(t, "alice", auth.RoleUser)

	stuck, err := gate.NewMachine(context.Background(), stuckStore{}, config.InitialStateRestore, logging.Discard())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	env.svc.machine = stuck

	if _, err := env.svc.ToggleGate(context.Background(), token); !errors.Is(err, gate.ErrInTransit) {
		t.Fatalf("ToggleGate() error = %v, want ErrInTransit", err)
	}
	if env.driver.count() != 0 {
		t.Errorf("pulses = %d, want 0", env.driver.count())
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if strings.Contains(rec.Body.String(), `graygate_gate_actuation_duration_seconds_count{driver="refused-toggle"}`) {
		t.Error("duration observed for a toggle that never pulsed")
	}
	if !strings.Contains(rec.Body.String(), `graygate_gate_actuations_total{driver="refused-toggle",result="failed"} 1`) {
		t.Error("refused toggle not counted as failed")
	}
}

func TestService_OverrideNeverPulses(t *testing.T) {
	env := newTestEnv(t)
	admin := env.addUser(t, "root", auth.RoleAdmin)
	ctx := context.Background()

	change, err := env.svc.OverrideState(ctx, admin, nil)
	if err != nil {
		t.Fatalf("OverrideState(nil) error = %v", err)
	}
	if change.To != gate.Open {
		t.Errorf("flip from closed = %v, want open", change.To)
	}

	closed := gate.Closed
	change, err = env.svc.OverrideState(ctx, admin, &closed)
	if err != nil {
		t.Fatalf("OverrideState(closed) error = %v", err)
	}
	if change.From != gate.Open || change.To != gate.Closed {
		t.Errorf("change = %+v", change)
	}

	opening := gate.Opening
	if _, err := env.svc.OverrideState(ctx, admin, &opening); !errors.Is(err, gate.ErrInvalidState) {
		t.Errorf("OverrideState(opening) error = %v, want ErrInvalidState", err)
	}

	if env.driver.count() != 0 {
		t.Errorf("pulses = %d, want 0", env.driver.count())
	}
	if len(env.telemetry.overrides) != 2 {
		t.Errorf("override events = %d, want 2", len(env.telemetry.overrides))
	}

	env.bus.mu.Lock()
	defer env.bus.mu.Unlock()
	var retained int
	for _, m := range env.bus.messages {
		if m.retained && m.topic == "graygate/test/gate/state" {
			retained++
		}
	}
	if retained != 2 {
		t.Errorf("retained state messages = %d, want 2", retained)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.addUser(t, "root", auth.RoleAdmin)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"missing everything", RegisterInput{}, ErrMissingUsername},
		{"missing password", RegisterInput{Username: "bob", Role: "user"}, ErrMissingPassword},
		{"missing role", RegisterInput{Username: "bob", Password: "pw"}, ErrMissingRole},
		{"bad role", RegisterInput{Username: "bob", Password: "pw", Role: "owner"}, auth.ErrInvalidRole},
		{"bad username", RegisterInput{Username: "bob smith", Password: "pw", Role: "user"}, auth.ErrInvalidUsername},
		{"duplicate", RegisterInput{Username: "root", Password: "pw", Role: "user"}, auth.ErrUsernameExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.RegisterUser(ctx, admin, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("RegisterUser() error = %v, want %v", err, tt.want)
			}
		})
	}

	n, err := env.users.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1", n, err)
	}
}

func TestService_DeleteAndListUsers(t *testing.T) {
	env := newTestEnv(t)
	admin := env.addUser(t, "root", auth.RoleAdmin)
	ctx := context.Background()

	bob, err := env.svc.RegisterUser(ctx, admin, RegisterInput{Username: "bob", Password: "pw", Role: "user"})
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}

	if err := env.svc.DeleteUsers(ctx, admin, nil); !errors.Is(err, ErrNoUsersSelected) {
		t.Errorf("DeleteUsers(nil) error = %v", err)
	}
	if err := env.svc.DeleteUsers(ctx, admin, []int64{bob.ID, 4242}); !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("DeleteUsers(unknown) error = %v", err)
	}

	users, err := env.svc.ListUsers(ctx, admin)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers() = %d users, %v; want 2 after rollback", len(users), err)
	}

	if err := env.svc.DeleteUsers(ctx, admin, []int64{bob.ID}); err != nil {
		t.Fatalf("DeleteUsers() error = %v", err)
	}
	users, err = env.svc.ListUsers(ctx, admin)
	if err != nil || len(users) != 1 || users[0].Username != "root" {
		t.Errorf("ListUsers() = %+v, %v", users, err)
	}

	logs, err := env.svc.AuditLog(ctx, admin, audit.Filter{Action: audit.ActionDelete})
	if err != nil {
		t.Fatalf("AuditLog() error = %v", err)
	}
	if logs.Total != 1 {
		t.Errorf("delete audit entries = %d, want 1", logs.Total)
	}
}

func TestService_ExpiredTokenRejected(t *testing.T) {
	now := time.Now()
	env := newTestEnv(t, auth.WithClock(func() time.Time { return now }))
	token := env.addUser(t, "alice", auth.RoleUser)

	now = now.Add(2 * time.Hour)
	if _, err := env.svc.ToggleGate(context.Background(), token); !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("ToggleGate() error = %v, want ErrTokenExpired", err)
	}
	if env.driver.count() != 0 {
		t.Error("expired token must not pulse")
	}
}

func TestService_StatelessQueries(t *testing.T) {
	env := newTestEnv(t)
	if got := env.svc.Obstruction(context.Background()); got != "no obstruction" {
		t.Errorf("Obstruction() = %q", got)
	}
	if !env.svc.ActuatorAvailable() {
		t.Error("ActuatorAvailable() = false for driver without reporter")
	}
	if env.svc.DriverName() != "fake" {
		t.Errorf("DriverName() = %q", env.svc.DriverName())
	}
	if env.svc.TokenTTL() != time.Hour {
		t.Errorf("TokenTTL() = %v, want 1h", env.svc.TokenTTL())
	}
}
