package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"siwtouch/internal/config"
	"siwtouch/internal/hal"
	appLog "siwtouch/internal/log"
)

// Device is the part of the touch driver the API exposes.
type Device interface {
	State() hal.State
	VersionText() string
	ConfigureLPWG(code int, values []int) error
	ReadLPWGDebug() (hal.LPWGDebug, error)
	SetDebugTypes(tci, swipe int)
	SetQuickCoverAreas(open, closed hal.Area)
	SetSystemSuspended(suspended bool)
	UpgradeWithRetry(name string, opts ...hal.UpgradeOption) (hal.UpgradeResult, error)
	RunSelfTest(w io.Writer) error
	Notify(ev hal.Event, value uint32) error
}

// Server provides the HTTP diagnostics and control API of one device.
type Server struct {
	cfg *config.Config
	dev Device
	mux *http.ServeMux

	jobsMu  sync.RWMutex
	jobs    map[string]*upgradeJob
	running string
}

// NewServer constructs a new Server. dev may be attached later with
// SetDevice; until then device routes answer 503.
func NewServer(cfg *config.Config, dev Device) *Server {
	s := &Server{
		cfg:  cfg,
		dev:  dev,
		mux:  http.NewServeMux(),
		jobs: make(map[string]*upgradeJob),
	}
	s.registerRoutes()
	return s
}

// SetDevice attaches the device served by the API.
func (s *Server) SetDevice(dev Device) {
	s.jobsMu.Lock()
	s.dev = dev
	s.jobsMu.Unlock()
}

func (s *Server) device() Device {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return s.dev
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="SiWTouch", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the API on cfg.Listen until ctx is canceled, then shuts the
// listener down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/info", s.withDevice(s.handleInfo))
	s.mux.HandleFunc("GET /api/lpwg", s.withDevice(s.handleLPWGDebug))
	s.mux.HandleFunc("POST /api/lpwg", s.withDevice(s.handleLPWG))
	s.mux.HandleFunc("POST /api/lpwg/debug", s.withDevice(s.handleLPWGDebugTypes))
	s.mux.HandleFunc("POST /api/lpwg/qcover", s.withDevice(s.handleQuickCover))
	s.mux.HandleFunc("POST /api/power", s.withDevice(s.handlePower))
	s.mux.HandleFunc("POST /api/upgrade", s.withDevice(s.handleUpgrade))
	s.mux.HandleFunc("GET /api/upgrade/{id}", s.handleUpgradeStatus)
	s.mux.HandleFunc("POST /api/selftest", s.withDevice(s.handleSelfTest))
	s.mux.HandleFunc("POST /api/notify", s.withDevice(s.handleNotify))
}

type deviceHandler func(w http.ResponseWriter, r *http.Request, dev Device)

func (s *Server) withDevice(h deviceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev := s.device()
		if dev == nil {
			writeError(w, http.StatusServiceUnavailable, "device not attached")
			return
		}
		h(w, r, dev)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// infoResponse is the JSON response shape for /api/info.
type infoResponse struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	State   hal.State `json:"state"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request, dev Device) {
	resp := infoResponse{
		Version: dev.VersionText(),
		State:   dev.State(),
	}
	if s.cfg != nil {
		resp.Name = s.cfg.Device.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLPWGDebug(w http.ResponseWriter, _ *http.Request, dev Device) {
	dbg, err := dev.ReadLPWGDebug()
	if err != nil {
		appLog.Error("lpwg debug read failed", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dbg)
}

// lpwgRequest is the body of POST /api/lpwg.
type lpwgRequest struct {
	Code   int   `json:"code"`
	Values []int `json:"values"`
}

func (s *Server) handleLPWG(w http.ResponseWriter, r *http.Request, dev Device) {
	var req lpwgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appLog.Info("api lpwg request", "code", req.Code, "values", req.Values)

	if err := dev.ConfigureLPWG(req.Code, req.Values); err != nil {
		appLog.Error("lpwg configure failed", err, "code", req.Code)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dev.State().LPWG)
}

// debugTypesRequest is the body of POST /api/lpwg/debug.
type debugTypesRequest struct {
	TCI   int `json:"tci"`
	Swipe int `json:"swipe"`
}

func (s *Server) handleLPWGDebugTypes(w http.ResponseWriter, r *http.Request, dev Device) {
	var req debugTypesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TCI < 0 || req.Swipe < 0 {
		writeError(w, http.StatusBadRequest, "debug type must not be negative")
		return
	}
	appLog.Info("api lpwg debug types", "tci", req.TCI, "swipe", req.Swipe)
	dev.SetDebugTypes(req.TCI, req.Swipe)
	writeJSON(w, http.StatusOK, req)
}

// areaJSON is one quick cover rectangle in panel coordinates.
type areaJSON struct {
	X1 uint32 `json:"x1"`
	Y1 uint32 `json:"y1"`
	X2 uint32 `json:"x2"`
	Y2 uint32 `json:"y2"`
}

// keepArea tells the driver to leave an area unchanged.
var keepArea = hal.Area{X1: ^uint32(0), Y1: ^uint32(0), X2: ^uint32(0), Y2: ^uint32(0)}

func (a *areaJSON) area() hal.Area {
	if a == nil {
		return keepArea
	}
	return hal.Area{X1: a.X1, Y1: a.Y1, X2: a.X2, Y2: a.Y2}
}

// quickCoverRequest is the body of POST /api/lpwg/qcover. An omitted
// area is left as it is.
type quickCoverRequest struct {
	Open  *areaJSON `json:"open"`
	Close *areaJSON `json:"close"`
}

func (s *Server) handleQuickCover(w http.ResponseWriter, r *http.Request, dev Device) {
	var req quickCoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, a := range []*areaJSON{req.Open, req.Close} {
		if a != nil && (a.X2 < a.X1 || a.Y2 < a.Y1) {
			writeError(w, http.StatusBadRequest, "area corners out of order")
			return
		}
	}
	appLog.Info("api quick cover areas", "open", req.Open != nil, "close", req.Close != nil)
	dev.SetQuickCoverAreas(req.Open.area(), req.Close.area())
	writeJSON(w, http.StatusOK, dev.State().LPWG)
}

// powerRequest is the body of POST /api/power.
type powerRequest struct {
	Suspended bool `json:"suspended"`
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request, dev Device) {
	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appLog.Info("api system power", "suspended", req.Suspended)
	dev.SetSystemSuspended(req.Suspended)
	writeJSON(w, http.StatusOK, req)
}

// upgradeRequest is the body of POST /api/upgrade.
type upgradeRequest struct {
	Name   string `json:"name"`
	Force  bool   `json:"force"`
	Verify bool   `json:"verify"`
}

// upgradeJob tracks one asynchronous firmware upgrade.
type upgradeJob struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Progress  *hal.Progress `json:"progress,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

const (
	jobRunning = "running"
	jobDone    = "done"
	jobFailed  = "failed"
)

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request, dev Device) {
	var req upgradeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	s.jobsMu.Lock()
	if s.running != "" {
		id := s.running
		s.jobsMu.Unlock()
		writeError(w, http.StatusConflict, "upgrade "+id+" already running")
		return
	}
	job := &upgradeJob{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Status:    jobRunning,
		StartedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	s.running = job.ID
	snapshot := *job
	s.jobsMu.Unlock()

	var opts []hal.UpgradeOption
	if req.Force {
		opts = append(opts, hal.Force())
	}
	if req.Verify {
		opts = append(opts, hal.Verify())
	}

	appLog.Info("api upgrade started", "job", job.ID, "name", req.Name, "force", req.Force, "verify", req.Verify)
	go s.runUpgrade(dev, job.ID, req.Name, opts)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runUpgrade(dev Device, id, name string, opts []hal.UpgradeOption) {
	res, err := dev.UpgradeWithRetry(name, opts...)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job := s.jobs[id]
	now := time.Now()
	job.EndedAt = &now
	job.Result = res.String()
	if err != nil {
		job.Status = jobFailed
		job.Error = err.Error()
		appLog.Error("api upgrade failed", err, "job", id)
	} else {
		job.Status = jobDone
		appLog.Info("api upgrade finished", "job", id, "result", job.Result)
	}
	s.running = ""
}

// ReportProgress records firmware download progress against the running
// upgrade job. It is meant to be installed with hal.WithProgress.
func (s *Server) ReportProgress(p hal.Progress) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if job := s.jobs[s.running]; job != nil {
		job.Progress = &p
	}
}

func (s *Server) handleUpgradeStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	var snapshot upgradeJob
	if ok {
		snapshot = *job
	}
	s.jobsMu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSelfTest(w http.ResponseWriter, _ *http.Request, dev Device) {
	var buf bytes.Buffer
	err := dev.RunSelfTest(&buf)

	status := http.StatusOK
	if err != nil {
		appLog.Error("self test failed", err)
		status = http.StatusInternalServerError
		buf.WriteString(err.Error() + "\n")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// notifyRequest is the body of POST /api/notify.
type notifyRequest struct {
	Event string `json:"event"`
	Value uint32 `json:"value"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request, dev Device) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev, err := hal.ParseEvent(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := dev.Notify(ev, req.Value); err != nil {
		appLog.Error("notify failed", err, "event", ev, "value", req.Value)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dev.State())
}

// statusFor maps driver errors to HTTP status codes.
func statusFor(err error) int {
	var modeErr *hal.ModeNotAllowedError
	var imgErr *hal.ImageError
	switch {
	case errors.Is(err, hal.ErrInvalidArgument), errors.As(err, &modeErr), errors.As(err, &imgErr):
		return http.StatusBadRequest
	case errors.Is(err, hal.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
