package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/grantcarthew/sitesnap/internal/config"
	"github.com/grantcarthew/sitesnap/internal/driver"
	"github.com/grantcarthew/sitesnap/internal/wait"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// fakeDriver is a page that becomes ready immediately and goes idle at idleAt.
// A negative readyAt means the document never completes.
type fakeDriver struct {
	clock   *fakeClock
	start   time.Time
	readyAt time.Duration
	idleAt  time.Duration
	entries []driver.LogEntry

	navigated string
	closed    bool
}

func (d *fakeDriver) since() time.Duration { return d.clock.Now().Sub(d.start) }

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.navigated = url
	d.start = d.clock.Now()
	return nil
}

func (d *fakeDriver) IsDocumentReady(ctx context.Context) (bool, error) {
	return d.readyAt >= 0 && d.since() >= d.readyAt, nil
}

func (d *fakeDriver) HasElementByClassName(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (d *fakeDriver) AjaxActivity(ctx context.Context, counter string) driver.Activity {
	if d.since() >= d.idleAt {
		return driver.ActivityInactive
	}
	return driver.ActivityActive
}

func (d *fakeDriver) PerformanceLog(ctx context.Context) ([]driver.LogEntry, error) {
	return d.entries, nil
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	opened   bool
	openOpts driver.Options
}

func newHarness(d *fakeDriver) *harness {
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.app = &app{
		open: func(ctx context.Context, opts driver.Options, log *slog.Logger) (driver.Driver, error) {
			h.opened = true
			h.openOpts = opts
			return d, nil
		},
		clock:  d.clock,
		stdout: h.stdout,
		stderr: h.stderr,
		tty:    func(io.Writer) bool { return false },
		flags:  config.Default(),
	}
	return h
}

func (h *harness) execute(args ...string) error {
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd := newRootCmd(h.app)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func response(t *testing.T, url string, status int, timing string) driver.LogEntry {
	t.Helper()
	params := `{"requestId":"1","response":{"url":"` + url + `","status":` + strconv.Itoa(status) + `,"timing":` + timing + `}}`
	return driver.NewLogEntry(time.UnixMilli(0), "T1", "Network.responseReceived", json.RawMessage(params))
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		idleAt: 2300 * time.Millisecond,
	}
}

func TestRun_PrintsElapsedAndTimings(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.entries = []driver.LogEntry{
		driver.NewLogEntry(time.UnixMilli(0), "T1", "Network.requestWillBeSent", json.RawMessage(`{"request":{"url":"https://search.dataone.org/","method":"GET"}}`)),
		response(t, "https://search.dataone.org/", 200, `{"requestTime":100.5,"connectStart":10,"connectEnd":12,"receiveHeadersEnd":25}`),
		driver.NewLogEntry(time.UnixMilli(0), "T1", "Page.loadEventFired", json.RawMessage(`{"timestamp":1}`)),
		response(t, "https://search.dataone.org/app.js", 304, `{"requestTime":100.75,"connectStart":-1,"connectEnd":-1,"receiveHeadersEnd":8}`),
	}
	h := newHarness(d)

	if err := h.execute("https://search.dataone.org"); err != nil {
		t.Fatalf("unexpected error: %v\nstderr:\n%s", err, h.stderr)
	}

	want := "Elapsed time 2.3\n" +
		"100.5 2 15 200 https://search.dataone.org/\n" +
		"100.75 0 9 304 https://search.dataone.org/app.js\n"
	if h.stdout.String() != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, h.stdout.String())
	}
	if d.navigated != "https://search.dataone.org" {
		t.Errorf("unexpected navigation %q", d.navigated)
	}
	if !d.closed {
		t.Error("expected session to be closed")
	}
}

func TestRun_NoURL(t *testing.T) {
	t.Parallel()

	h := newHarness(newFakeDriver())

	err := h.execute()
	if !errors.Is(err, ErrNoURL) {
		t.Fatalf("expected ErrNoURL, got %v", err)
	}
	if !IsPrintedError(err) {
		t.Error("expected the warning to count as printed")
	}
	if h.opened {
		t.Error("no browser session should be opened without a URL")
	}
	if !strings.Contains(h.stderr.String(), `level=WARN`) || !strings.Contains(h.stderr.String(), "No URL provided.") {
		t.Errorf("expected warning log, got:\n%s", h.stderr)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("expected no report, got:\n%s", h.stdout)
	}
}

func TestRun_ReadyTimeoutStillClosesSession(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.readyAt = -1
	h := newHarness(d)

	err := h.execute("https://example.com")
	if !errors.Is(err, wait.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !IsPrintedError(err) {
		t.Error("expected error to be printed by the command")
	}
	if !d.closed {
		t.Error("expected session to be closed after a failed wait")
	}
	if !strings.HasPrefix(h.stderr.String(), "Error: ") && !strings.Contains(h.stderr.String(), "\nError: ") {
		t.Errorf("expected Error: line on stderr, got:\n%s", h.stderr)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("expected no report on failure, got:\n%s", h.stdout)
	}
}

func TestRun_OpenFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(newFakeDriver())
	boom := errors.New("chrome not found")
	h.app.open = func(context.Context, driver.Options, *slog.Logger) (driver.Driver, error) {
		return nil, boom
	}

	err := h.execute("https://example.com")
	if !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}
	if !strings.Contains(h.stderr.String(), "start browser") {
		t.Errorf("expected context in error, got:\n%s", h.stderr)
	}
}

func TestRun_JSONOutput(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.entries = []driver.LogEntry{
		response(t, "https://example.com/", 200, `{"requestTime":1,"connectStart":10,"connectEnd":12,"receiveHeadersEnd":25}`),
		{Level: "INFO", Message: "not json"},
	}
	h := newHarness(d)

	if err := h.execute("--json", "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		OK        bool    `json:"ok"`
		RunID     string  `json:"run_id"`
		URL       string  `json:"url"`
		Elapsed   float64 `json:"elapsed"`
		Settled   bool    `json:"settled"`
		Skipped   int     `json:"skipped"`
		Resources []struct {
			Status        int     `json:"status"`
			TotalDuration float64 `json:"total_duration"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", h.stdout, err)
	}
	if !got.OK || got.RunID == "" || got.URL != "https://example.com" || !got.Settled {
		t.Errorf("unexpected report header %+v", got)
	}
	if got.Elapsed != 2.3 {
		t.Errorf("expected elapsed 2.3, got %v", got.Elapsed)
	}
	if got.Skipped != 1 {
		t.Errorf("expected 1 skipped entry, got %d", got.Skipped)
	}
	if len(got.Resources) != 1 || got.Resources[0].TotalDuration != 15 {
		t.Errorf("unexpected resources %+v", got.Resources)
	}
}

func TestRun_JSONErrorOutput(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.readyAt = -1
	h := newHarness(d)

	if err := h.execute("--json", "https://example.com"); err == nil {
		t.Fatal("expected error")
	}

	var resp map[string]any
	// The logger writes to stderr too; the JSON document is the last line.
	lines := strings.Split(strings.TrimSpace(h.stderr.String()), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &resp); err != nil {
		t.Fatalf("expected JSON error, got %q: %v", h.stderr, err)
	}
	if resp["ok"] != false || !strings.Contains(resp["error"].(string), "timed out") {
		t.Errorf("unexpected error document %v", resp)
	}
}

func TestRun_FlagsReachDriverAndWaiter(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.idleAt = time.Hour
	h := newHarness(d)

	err := h.execute(
		"--driver", "rod",
		"--headless=false",
		"--remote-url", "localhost:9333",
		"--settle-timeout", "2s",
		"--poll-interval", "500ms",
		"https://example.com",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.openOpts.Backend != driver.BackendRod || h.openOpts.Headless || h.openOpts.RemoteURL != "localhost:9333" {
		t.Errorf("unexpected driver options %+v", h.openOpts)
	}
	// The last sample before the cutoff is taken at 2.5s, then one more interval passes.
	if !strings.HasPrefix(h.stdout.String(), "Elapsed time 3\n") {
		t.Errorf("expected cutoff shortly after 2s, got:\n%s", h.stdout)
	}
}

func TestRun_InvalidFlagValue(t *testing.T) {
	t.Parallel()

	h := newHarness(newFakeDriver())

	if err := h.execute("--driver", "selenium", "https://example.com"); err == nil {
		t.Fatal("expected validation error")
	}
	if h.opened {
		t.Error("invalid settings must not open a session")
	}
}

func TestRun_LogLevelCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args    []string
		info    bool
		verbose bool
	}{
		{[]string{"https://example.com"}, false, false},
		{[]string{"-l", "https://example.com"}, true, false},
		{[]string{"-ll", "https://example.com"}, true, true},
		{[]string{"--log_level", "--log_level", "--log_level", "https://example.com"}, true, true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[:len(tt.args)-1], " "), func(t *testing.T) {
			t.Parallel()

			d := newFakeDriver()
			d.entries = []driver.LogEntry{
				driver.NewLogEntry(time.UnixMilli(0), "T1", "Network.requestWillBeSent", json.RawMessage(`{"request":{"url":"https://example.com/","method":"GET"}}`)),
			}
			h := newHarness(d)
			if err := h.execute(tt.args...); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			logs := h.stderr.String()
			if got := strings.Contains(logs, "level=INFO"); got != tt.info {
				t.Errorf("info logging: expected %v, got %v\n%s", tt.info, got, logs)
			}
			if got := strings.Contains(logs, "level=DEBUG"); got != tt.verbose {
				t.Errorf("debug logging: expected %v, got %v\n%s", tt.verbose, got, logs)
			}
			if tt.info && !strings.Contains(logs, "run_id=") {
				t.Errorf("expected run_id on log lines:\n%s", logs)
			}
		})
	}
}

func TestRun_ConfigFileWithFlagOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sitesnap.yaml")
	body := "url: https://search.dataone.org\ndriver: rod\nchrome: /opt/chrome\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	d := newFakeDriver()
	h := newHarness(d)
	if err := h.execute("--config", path, "--driver", "cdp"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.navigated != "https://search.dataone.org" {
		t.Errorf("expected URL from config, got %q", d.navigated)
	}
	if h.openOpts.Backend != driver.BackendCDP {
		t.Errorf("flag should override config driver, got %q", h.openOpts.Backend)
	}
	if h.openOpts.Chrome != "/opt/chrome" {
		t.Errorf("config chrome not applied, got %q", h.openOpts.Chrome)
	}
}

func TestRun_BadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sitesnap.yaml")
	if err := os.WriteFile(path, []byte("bogus_key: 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	h := newHarness(newFakeDriver())
	err := h.execute("--config", path, "https://example.com")
	if err == nil || !IsPrintedError(err) {
		t.Fatalf("expected printed config error, got %v", err)
	}
	if h.opened {
		t.Error("bad config must not open a session")
	}
}

func TestRun_TooManyArgs(t *testing.T) {
	t.Parallel()

	h := newHarness(newFakeDriver())
	err := h.execute("https://a.example", "https://b.example")
	if err == nil {
		t.Fatal("expected argument error")
	}
	if IsPrintedError(err) {
		t.Error("cobra argument errors are printed by main")
	}
}

func TestOverlay_CoversEveryFlag(t *testing.T) {
	t.Parallel()

	a := &app{flags: config.Default()}
	cmd := newRootCmd(a)

	src := config.Config{
		LogLevel: 3, JSON: true, NoColor: true, Driver: "rod", Headless: false,
		NoSandbox: true, Chrome: "c", Port: 1, RemoteURL: "r", ElementClass: "e",
		AjaxCounter: "x", ReadyTimeout: 1, SettleTimeout: 2, PollInterval: 3, LogCapacity: 4,
	}
	var dst config.Config
	cmd.Flags().VisitAll(func(f *pflag.Flag) { overlay(&dst, src, f.Name) })

	if dst != src {
		t.Errorf("overlay missed a flag:\nwant %+v\ngot  %+v", src, dst)
	}
}
