package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"siwtouch/internal/config"
	"siwtouch/internal/hal"
	"siwtouch/internal/reg"
)

type fakeDevice struct {
	mu sync.Mutex

	lpwgCode   int
	lpwgValues []int
	lpwgErr    error

	tciDebug, swipeDebug    int
	qcoverOpen, qcoverClose hal.Area
	qcoverCalls             int
	pmSuspended             bool

	events    []hal.Event
	values    []uint32
	notifyErr error

	gate       chan struct{}
	upgradeRes hal.UpgradeResult
	upgradeErr error
	upgrades   int

	selfErr error
}

func (f *fakeDevice) State() hal.State {
	return hal.State{Chip: reg.LG4895, Init: "done", LCDMode: "U3"}
}

func (f *fakeDevice) VersionText() string { return "version : v1.01, chip : 8, protocol : 4" }

func (f *fakeDevice) ConfigureLPWG(code int, values []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lpwgCode, f.lpwgValues = code, values
	return f.lpwgErr
}

func (f *fakeDevice) ReadLPWGDebug() (hal.LPWGDebug, error) {
	var d hal.LPWGDebug
	d.TCI[0] = []string{"DISTANCE_INTER_TAP"}
	return d, nil
}

func (f *fakeDevice) SetDebugTypes(tci, swipe int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tciDebug, f.swipeDebug = tci, swipe
}

func (f *fakeDevice) SetQuickCoverAreas(open, closed hal.Area) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qcoverOpen, f.qcoverClose = open, closed
	f.qcoverCalls++
}

func (f *fakeDevice) SetSystemSuspended(suspended bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pmSuspended = suspended
}

func (f *fakeDevice) UpgradeWithRetry(string, ...hal.UpgradeOption) (hal.UpgradeResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upgrades++
	return f.upgradeRes, f.upgradeErr
}

func (f *fakeDevice) RunSelfTest(w io.Writer) error {
	fmt.Fprintln(w, "ic bus r/w test: PASS")
	return f.selfErr
}

func (f *fakeDevice) Notify(ev hal.Event, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	f.values = append(f.values, value)
	return f.notifyErr
}

func newTestServer(t *testing.T, dev Device) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	s := NewServer(cfg, dev)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(b)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeDevice{})
	resp, body := do(t, ts, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || body != "OK" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}
}

func TestInfo(t *testing.T) {
	_, ts := newTestServer(t, &fakeDevice{})
	resp, body := do(t, ts, http.MethodGet, "/api/info", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var info infoResponse
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "siw_touch" || info.State.Init != "done" || !strings.Contains(info.Version, "v1.01") {
		t.Errorf("info %+v", info)
	}
}

func TestNoDevice(t *testing.T) {
	s, ts := newTestServer(t, nil)
	if resp, _ := do(t, ts, http.MethodGet, "/api/info", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
	s.SetDevice(&fakeDevice{})
	if resp, _ := do(t, ts, http.MethodGet, "/api/info", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("status after attach = %d", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	ts := httptest.NewServer(NewServer(cfg, &fakeDevice{}).Handler())
	defer ts.Close()

	if resp, _ := do(t, ts, http.MethodGet, "/health", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("health behind auth: %d", resp.StatusCode)
	}
	if resp, _ := do(t, ts, http.MethodGet, "/api/info", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/info", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with credentials: %d", resp.StatusCode)
	}
}

func TestLPWG(t *testing.T) {
	dev := &fakeDevice{}
	_, ts := newTestServer(t, dev)

	resp, body := do(t, ts, http.MethodPost, "/api/lpwg", `{"code":4,"values":[1,0,1,0]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if dev.lpwgCode != hal.LPWGUpdateAll || len(dev.lpwgValues) != 4 {
		t.Errorf("configure got %d %v", dev.lpwgCode, dev.lpwgValues)
	}

	if resp, _ := do(t, ts, http.MethodPost, "/api/lpwg", `{"code":`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json: %d", resp.StatusCode)
	}

	dev.lpwgErr = fmt.Errorf("lpwg code 9: %w", hal.ErrInvalidArgument)
	if resp, _ := do(t, ts, http.MethodPost, "/api/lpwg", `{"code":9}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid code: %d", resp.StatusCode)
	}

	resp, body = do(t, ts, http.MethodGet, "/api/lpwg", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "DISTANCE_INTER_TAP") {
		t.Errorf("debug = %d %s", resp.StatusCode, body)
	}
}

func TestLPWGDebugTypes(t *testing.T) {
	dev := &fakeDevice{}
	_, ts := newTestServer(t, dev)

	if resp, body := do(t, ts, http.MethodPost, "/api/lpwg/debug", `{"tci":1,"swipe":2}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if dev.tciDebug != 1 || dev.swipeDebug != 2 {
		t.Errorf("debug types %d %d", dev.tciDebug, dev.swipeDebug)
	}
	if resp, _ := do(t, ts, http.MethodPost, "/api/lpwg/debug", `{"tci":-1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative type: %d", resp.StatusCode)
	}
	if dev.tciDebug != 1 {
		t.Errorf("rejected request changed tci type to %d", dev.tciDebug)
	}
}

func TestQuickCover(t *testing.T) {
	dev := &fakeDevice{}
	_, ts := newTestServer(t, dev)

	resp, body := do(t, ts, http.MethodPost, "/api/lpwg/qcover", `{"close":{"x1":10,"y1":20,"x2":30,"y2":40}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if dev.qcoverOpen != keepArea {
		t.Errorf("omitted open area = %+v", dev.qcoverOpen)
	}
	if want := (hal.Area{X1: 10, Y1: 20, X2: 30, Y2: 40}); dev.qcoverClose != want {
		t.Errorf("close area = %+v", dev.qcoverClose)
	}

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"open":`},
		{"swapped x", `{"open":{"x1":30,"y1":0,"x2":10,"y2":5}}`},
		{"swapped y", `{"close":{"x1":0,"y1":9,"x2":10,"y2":5}}`},
	}
	for _, tt := range tests {
		if resp, _ := do(t, ts, http.MethodPost, "/api/lpwg/qcover", tt.body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d", tt.name, resp.StatusCode)
		}
	}
	if dev.qcoverCalls != 1 {
		t.Errorf("areas set %d times, want 1", dev.qcoverCalls)
	}
}

func TestPower(t *testing.T) {
	dev := &fakeDevice{}
	_, ts := newTestServer(t, dev)

	if resp, body := do(t, ts, http.MethodPost, "/api/power", `{"suspended":true}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if !dev.pmSuspended {
		t.Error("system not marked suspended")
	}
	do(t, ts, http.MethodPost, "/api/power", `{"suspended":false}`)
	if dev.pmSuspended {
		t.Error("system still suspended")
	}
	if resp, _ := do(t, ts, http.MethodPost, "/api/power", `nope`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json: %d", resp.StatusCode)
	}
}

func TestNotify(t *testing.T) {
	dev := &fakeDevice{}
	_, ts := newTestServer(t, dev)

	if resp, body := do(t, ts, http.MethodPost, "/api/notify", `{"event":"lcd_mode","value":3}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if len(dev.events) != 1 || dev.events[0] != hal.EventLCDMode || dev.values[0] != 3 {
		t.Errorf("notified %v %v", dev.events, dev.values)
	}

	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"unknown event", nil, `{"event":"bogus"}`, http.StatusBadRequest},
		{"mode not allowed", &hal.ModeNotAllowedError{Chip: reg.SW1828, Mode: reg.ModeU2Unblank}, `{"event":"lcd_mode","value":1}`, http.StatusBadRequest},
		{"not ready", fmt.Errorf("resume: %w", hal.ErrNotReady), `{"event":"lcd_mode","value":3}`, http.StatusServiceUnavailable},
		{"bus failure", &hal.IoError{Op: "write", Addr: 0xC7D, Size: 4, Err: io.ErrUnexpectedEOF}, `{"event":"call_state","value":1}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		dev.notifyErr = tt.err
		if resp, _ := do(t, ts, http.MethodPost, "/api/notify", tt.body); resp.StatusCode != tt.want {
			t.Errorf("%s: status %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}
}

func TestSelfTest(t *testing.T) {
	dev := &fakeDevice{}
	_, ts := newTestServer(t, dev)

	resp, body := do(t, ts, http.MethodPost, "/api/selftest", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "PASS") {
		t.Errorf("self test = %d %q", resp.StatusCode, body)
	}

	dev.selfErr = fmt.Errorf("self test failed")
	resp, body = do(t, ts, http.MethodPost, "/api/selftest", "")
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body, "self test failed") {
		t.Errorf("failing self test = %d %q", resp.StatusCode, body)
	}
}

func waitJob(t *testing.T, ts *httptest.Server, id string) upgradeJob {
	t.Helper()
	for range 200 {
		_, body := do(t, ts, http.MethodGet, "/api/upgrade/"+id, "")
		var job upgradeJob
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			t.Fatal(err)
		}
		if job.Status != jobRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s still running", id)
	return upgradeJob{}
}

func TestUpgradeJob(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{}), upgradeRes: hal.Upgraded}
	s, ts := newTestServer(t, dev)

	resp, body := do(t, ts, http.MethodPost, "/api/upgrade", `{"name":"siw.img","force":true}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var job upgradeJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.Status != jobRunning || job.Name != "siw.img" {
		t.Fatalf("job %+v", job)
	}

	if resp, _ := do(t, ts, http.MethodPost, "/api/upgrade", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("second upgrade: %d", resp.StatusCode)
	}

	s.ReportProgress(hal.Progress{Phase: "code", Written: 1024, Total: 4096, Percentage: 25})
	_, body = do(t, ts, http.MethodGet, "/api/upgrade/"+job.ID, "")
	if !strings.Contains(body, `"phase":"code"`) {
		t.Errorf("progress missing: %s", body)
	}

	close(dev.gate)
	done := waitJob(t, ts, job.ID)
	if done.Status != jobDone || done.Result != "upgraded" || done.EndedAt == nil {
		t.Errorf("finished job %+v", done)
	}

	// A new job may start once the previous one ended.
	dev.gate = nil
	dev.upgradeRes, dev.upgradeErr = hal.NoChangeNeeded, &hal.ImageError{Reason: "wrong size"}
	_, body = do(t, ts, http.MethodPost, "/api/upgrade", "")
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		t.Fatal(err)
	}
	failed := waitJob(t, ts, job.ID)
	if failed.Status != jobFailed || !strings.Contains(failed.Error, "wrong size") {
		t.Errorf("failed job %+v", failed)
	}
}

func TestUpgradeStatusLookup(t *testing.T) {
	_, ts := newTestServer(t, &fakeDevice{})
	if resp, _ := do(t, ts, http.MethodGet, "/api/upgrade/not-a-uuid", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: %d", resp.StatusCode)
	}
	if resp, _ := do(t, ts, http.MethodGet, "/api/upgrade/9b2f6d1e-8a43-4c55-9d6e-2f1f0c3b7a10", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: %d", resp.StatusCode)
	}
}
