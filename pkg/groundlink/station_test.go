package groundlink_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/groundlink/pkg/groundlink"
)

// =============================================================================
// Test Utilities
// =============================================================================

// fakeLink is an in-memory serial link.
type fakeLink struct {
	mu      sync.Mutex
	open    bool
	openErr error
	baud    int
	lines   chan string
	readErr chan error
	written []string
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		baud:    115200,
		lines:   make(chan string, 64),
		readErr: make(chan error, 1),
	}
}

func (l *fakeLink) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return l.openErr
	}
	l.open = true
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	return nil
}

func (l *fakeLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *fakeLink) ReadLine() (string, error) {
	if !l.IsOpen() {
		return "", groundlink.ErrLinkClosed
	}
	select {
	case line := <-l.lines:
		return line, nil
	case err := <-l.readErr:
		return "", err
	case <-time.After(5 * time.Millisecond):
		return "", nil
	}
}

func (l *fakeLink) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return groundlink.ErrLinkClosed
	}
	l.written = append(l.written, line)
	return nil
}

func (l *fakeLink) ChangeBaud(baud int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baud = baud
	return nil
}

func (l *fakeLink) State() groundlink.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return groundlink.LinkState{Port: "fake", Baud: l.baud, Open: l.open}
}

func (l *fakeLink) Written() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.written...)
}

// stateTracker records lifecycle transitions.
type stateTracker struct {
	groundlink.BaseEventHandler
	mu          sync.Mutex
	transitions []string
}

func (s *stateTracker) OnStateChange(previous, current groundlink.State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, previous.String()+"->"+current.String())
}

func (s *stateTracker) Transitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transitions...)
}

// trackingPlugin records initialization and shutdown order.
type trackingPlugin struct {
	groundlink.BasePlugin
	mu            *sync.Mutex
	initOrder     *[]string
	shutdownOrder *[]string
	initError     error
	station       *groundlink.Station
}

func (p *trackingPlugin) Initialize(ctx context.Context, cfg groundlink.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initError != nil {
		return p.initError
	}
	*p.initOrder = append(*p.initOrder, p.Name())
	p.station = cfg.Station
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.shutdownOrder = append(*p.shutdownOrder, p.Name())
	return nil
}

func testConfig(t *testing.T) groundlink.Config {
	t.Helper()
	return groundlink.Config{
		LogPath:         filepath.Join(t.TempDir(), "telemetry.csv"),
		Fields:          []groundlink.Field{{Name: "ALT", Unit: "m"}, {Name: "LABEL"}},
		MinInterval:     time.Millisecond,
		IdleInterval:    time.Millisecond,
		Cadence:         5 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*groundlink.Config)
		opts   []groundlink.Option
	}{
		{"missing port", func(c *groundlink.Config) {}, nil},
		{"unknown ordering", func(c *groundlink.Config) { c.Ordering = "lifo" }, []groundlink.Option{groundlink.WithLink(newFakeLink())}},
		{"unknown mission time", func(c *groundlink.Config) { c.MissionTime = "tai" }, []groundlink.Option{groundlink.WithLink(newFakeLink())}},
		{"negative interval", func(c *groundlink.Config) { c.MinInterval = -time.Second }, []groundlink.Option{groundlink.WithLink(newFakeLink())}},
		{"history above bound", func(c *groundlink.Config) { c.HistorySize = groundlink.DefaultHistorySize + 1 }, []groundlink.Option{groundlink.WithLink(newFakeLink())}},
		{"queue above bound", func(c *groundlink.Config) { c.QueueSize = groundlink.DefaultQueueSize + 1 }, []groundlink.Option{groundlink.WithLink(newFakeLink())}},
		{"negative queue", func(c *groundlink.Config) { c.QueueSize = -1 }, []groundlink.Option{groundlink.WithLink(newFakeLink())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := groundlink.New(cfg, tt.opts...)
			if !errors.Is(err, groundlink.ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_DuplicateFieldRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fields = []groundlink.Field{{Name: "ALT"}, {Name: "ALT"}}

	_, err := groundlink.New(cfg, groundlink.WithLink(newFakeLink()))
	if !errors.Is(err, groundlink.ErrInvalidSchema) {
		t.Errorf("New() error = %v, want ErrInvalidSchema", err)
	}
}

func TestNew_LegacySchemaByDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fields = nil

	st, err := groundlink.New(cfg, groundlink.WithLink(newFakeLink()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if got := st.Schema().Len(); got != 26 {
		t.Errorf("Schema().Len() = %d, want 26", got)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStation_StartStop(t *testing.T) {
	link := newFakeLink()
	tracker := &stateTracker{}

	st, err := groundlink.New(testConfig(t),
		groundlink.WithLink(link),
		groundlink.WithEventHandler(tracker),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if st.State() != groundlink.StateRunning {
		t.Errorf("State() = %v, want Running", st.State())
	}
	if !link.IsOpen() {
		t.Error("link not opened by Start")
	}
	if err := st.Start(context.Background()); !errors.Is(err, groundlink.ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}

	if err := st.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if st.State() != groundlink.StateIdle {
		t.Errorf("State() = %v, want Idle", st.State())
	}
	if link.IsOpen() {
		t.Error("link still open after Stop")
	}
	if err := st.Stop(); !errors.Is(err, groundlink.ErrNotRunning) {
		t.Errorf("second Stop() = %v, want ErrNotRunning", err)
	}

	want := []string{"Idle->Starting", "Starting->Running", "Running->Stopping", "Stopping->Idle"}
	got := tracker.Transitions()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestStation_StartLinkUnavailable(t *testing.T) {
	link := newFakeLink()
	link.openErr = groundlink.ErrLinkUnavailable

	st, err := groundlink.New(testConfig(t), groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := st.Start(context.Background()); !errors.Is(err, groundlink.ErrLinkUnavailable) {
		t.Errorf("Start() = %v, want ErrLinkUnavailable", err)
	}
	if st.State() != groundlink.StateIdle {
		t.Errorf("State() = %v, want Idle", st.State())
	}
}

func TestStation_LinkErrorFaults(t *testing.T) {
	link := newFakeLink()
	st, err := groundlink.New(testConfig(t), groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	link.readErr <- groundlink.ErrLinkError
	waitFor(t, "Faulted", func() bool { return st.State() == groundlink.StateFaulted })
	if link.IsOpen() {
		t.Error("link still open after link error")
	}

	if err := st.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if st.State() != groundlink.StateIdle {
		t.Errorf("State() = %v, want Idle", st.State())
	}
}

func TestStation_Plugins(t *testing.T) {
	var mu sync.Mutex
	var initOrder, shutdownOrder []string
	newPlugin := func(name string) *trackingPlugin {
		return &trackingPlugin{
			BasePlugin:    groundlink.NewBasePlugin(name),
			mu:            &mu,
			initOrder:     &initOrder,
			shutdownOrder: &shutdownOrder,
		}
	}
	a, b := newPlugin("a"), newPlugin("b")

	st, err := groundlink.New(testConfig(t),
		groundlink.WithLink(newFakeLink()),
		groundlink.WithPlugin(a),
		groundlink.WithPlugin(b),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if a.station != st {
		t.Error("plugin did not receive the station")
	}
	if err := st.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if strings.Join(initOrder, ",") != "a,b" {
		t.Errorf("init order = %v, want [a b]", initOrder)
	}
	if strings.Join(shutdownOrder, ",") != "b,a" {
		t.Errorf("shutdown order = %v, want [b a]", shutdownOrder)
	}
}

func TestStation_PluginInitFailure(t *testing.T) {
	var mu sync.Mutex
	var initOrder, shutdownOrder []string
	boom := errors.New("boom")
	p := &trackingPlugin{
		BasePlugin:    groundlink.NewBasePlugin("failing"),
		mu:            &mu,
		initOrder:     &initOrder,
		shutdownOrder: &shutdownOrder,
		initError:     boom,
	}

	st, err := groundlink.New(testConfig(t), groundlink.WithLink(newFakeLink()), groundlink.WithPlugin(p))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Start() = %v, want %v", err, boom)
	}
	if st.State() != groundlink.StateFaulted {
		t.Errorf("State() = %v, want Faulted", st.State())
	}
	if err := st.Stop(); err != nil {
		t.Errorf("Stop() after failed start = %v", err)
	}
}

// =============================================================================
// Telemetry and commands
// =============================================================================

func TestStation_TelemetryFlow(t *testing.T) {
	link := newFakeLink()
	cfg := testConfig(t)
	st, err := groundlink.New(cfg, groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer st.Close()

	link.lines <- "120.5,ok"
	link.lines <- "1,2,3"
	link.lines <- "121.0,ok"
	want := "ALT,LABEL\n120.5,ok\n121.0,ok\n"
	waitFor(t, "log rows", func() bool {
		data, _ := os.ReadFile(cfg.LogPath)
		return string(data) == want
	})

	status := st.Status()
	if status.Received != 3 {
		t.Errorf("Received = %d, want 3", status.Received)
	}
	if status.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", status.Rejected)
	}
	if status.LastPacket != "121.0,ok" {
		t.Errorf("LastPacket = %q", status.LastPacket)
	}
	if v := st.GetField("ALT", groundlink.Nil); v.String() != "121" {
		t.Errorf("GetField(ALT) = %v, want 121", v)
	}
	if v := st.GetField("MISSING", groundlink.Text("n/a")); v.String() != "n/a" {
		t.Errorf("GetField(MISSING) = %v, want default", v)
	}
	if got := len(st.History()); got != 2 {
		t.Errorf("len(History()) = %d, want 2", got)
	}


	if err := st.ResetLog(); err != nil {
		t.Fatalf("ResetLog() failed: %v", err)
	}
	data, _ := os.ReadFile(cfg.LogPath)
	if string(data) != "ALT,LABEL\n" {
		t.Errorf("log after reset = %q", data)
	}
}

func TestStation_EnqueueWritesInOrder(t *testing.T) {
	link := newFakeLink()
	st, err := groundlink.New(testConfig(t), groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := st.Enqueue("   "); !errors.Is(err, groundlink.ErrEmptyCommand) {
		t.Errorf("Enqueue(blank) = %v, want ErrEmptyCommand", err)
	}

	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer st.Close()

	for _, c := range []string{"CMD,1,A", "CMD,1,B"} {
		if err := st.Enqueue(c); err != nil {
			t.Fatalf("Enqueue(%q) = %v", c, err)
		}
	}
	waitFor(t, "two writes", func() bool { return len(link.Written()) == 2 })
	if st.Status().CommandsSent != 2 {
		t.Errorf("CommandsSent = %d, want 2", st.Status().CommandsSent)
	}
}

func TestStation_ChangeBaud(t *testing.T) {
	link := newFakeLink()
	st, err := groundlink.New(testConfig(t), groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.ChangeBaud(9600); err != nil {
		t.Fatalf("ChangeBaud() failed: %v", err)
	}
	if got := st.Status().Link.Baud; got != 9600 {
		t.Errorf("Link.Baud = %d, want 9600", got)
	}
}

func TestStation_Simulation(t *testing.T) {
	link := newFakeLink()
	cfg := testConfig(t)
	st, err := groundlink.New(cfg, groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer st.Close()

	path := filepath.Join(t.TempDir(), "profile.csv")
	profile := "TYPE,TIME,CMD,VALUE\nCMD,0,SIMP,101325\n#,comment\nCMD,0,SIMP,101300\n"
	if err := os.WriteFile(path, []byte(profile), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := st.StartSimulation(path); err != nil {
		t.Fatalf("StartSimulation() failed: %v", err)
	}
	waitFor(t, "completion", func() bool {
		return st.SimulationStatus().String() == "Simulation: Completed"
	})

	waitFor(t, "two writes", func() bool { return len(link.Written()) == 2 })
	written := link.Written()
	want := []string{"CMD,3195,SIMP,101325", "CMD,3195,SIMP,101300"}
	if strings.Join(written, "|") != strings.Join(want, "|") {
		t.Errorf("written = %v, want %v", written, want)
	}
}

func TestStation_ReloadSchema(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "prefs.json")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(schemaPath, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(`{"telemetryFields": {"ALT": "m"}}`)

	cfg := testConfig(t)
	cfg.Fields = nil
	cfg.SchemaFile = schemaPath
	st, err := groundlink.New(cfg, groundlink.WithLink(newFakeLink()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if got := st.Schema().Len(); got != 1 {
		t.Fatalf("Schema().Len() = %d, want 1", got)
	}

	write(`{"telemetryFields": {"ALT": "m", "TEMP": "C"}}`)
	if err := st.ReloadSchema(); err != nil {
		t.Fatalf("ReloadSchema() failed: %v", err)
	}
	if got := st.Schema().Names(); strings.Join(got, ",") != "ALT,TEMP" {
		t.Errorf("Names() = %v", got)
	}

	write(`{"telemetryFields": {}}`)
	if err := st.ReloadSchema(); !errors.Is(err, groundlink.ErrInvalidSchema) {
		t.Errorf("ReloadSchema(empty) = %v, want ErrInvalidSchema", err)
	}
	if got := st.Schema().Len(); got != 2 {
		t.Errorf("schema replaced after failed reload: len %d", got)
	}
}

// slowReadLink blocks in ReadLine for a long read timeout unless it is
// interrupted.
type slowReadLink struct {
	*fakeLink
	once      sync.Once
	interrupt chan struct{}
}

func (l *slowReadLink) ReadLine() (string, error) {
	select {
	case <-l.interrupt:
		return "", nil
	case <-time.After(4 * time.Second):
		return "", nil
	}
}

func (l *slowReadLink) Interrupt() {
	l.once.Do(func() { close(l.interrupt) })
}

func TestStation_StopInterruptsRead(t *testing.T) {
	link := &slowReadLink{fakeLink: newFakeLink(), interrupt: make(chan struct{})}
	st, err := groundlink.New(testConfig(t), groundlink.WithLink(link))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	if err := st.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v, want well under the 4s read timeout", elapsed)
	}
	if st.State() != groundlink.StateIdle {
		t.Errorf("State() = %v, want Idle", st.State())
	}
}
