package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"learncal/internal/archive"
	"learncal/internal/calendar"
	"learncal/internal/config"
	"learncal/internal/ics"
	appLog "learncal/internal/log"
	"learncal/internal/metrics"
	"learncal/internal/model"
)

// maxBodyBytes caps JSON and ICS request bodies.
const maxBodyBytes = 8 << 20

// Server exposes the calendar engine over HTTP. The engine itself is not
// safe for concurrent use, so every handler goes through mu: readers take
// RLock, anything that mutates takes Lock.
type Server struct {
	cfg     *config.Config
	cfgPath string
	cal     *calendar.Calendar
	mu      *sync.RWMutex
	metrics *metrics.Metrics
	router  chi.Router
}

type Options struct {
	// ConfigPath, when set, is where PUT /api/preferences persists the
	// updated config.
	ConfigPath string
	// Lock is shared with background jobs touching the same calendar.
	Lock    *sync.RWMutex
	Metrics *metrics.Metrics
}

func NewServer(cfg *config.Config, cal *calendar.Calendar, opts Options) *Server {
	if opts.Lock == nil {
		opts.Lock = &sync.RWMutex{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	s := &Server{
		cfg:     cfg,
		cfgPath: opts.ConfigPath,
		cal:     cal,
		mu:      opts.Lock,
		metrics: opts.Metrics,
	}
	s.registerRoutes()
	s.metrics.SetStoredEvents(cal.Store().Len())
	return s
}

// Handler returns the router, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth rather than locking
	// everyone out.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
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
			w.Header().Set("WWW-Authenticate", `Basic realm="LearnCal", charset="UTF-8"`)
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

// observe records request count and latency under the matched route
// pattern, so /api/events/{id} is one series regardless of id.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, strconv.Itoa(status), elapsed)
		appLog.Debug("http request", "method", r.Method, "route", route, "status", status, "elapsed", elapsed)
	})
}

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleListEvents)
		r.Post("/events", s.handleCreateEvent)
		r.Get("/events/{id}", s.handleGetEvent)
		r.Patch("/events/{id}", s.handlePatchEvent)
		r.Delete("/events/{id}", s.handleDeleteEvent)
		r.Post("/events/{id}/duplicate", s.handleDuplicateEvent)

		r.Get("/views/{mode}", s.handleView)
		r.Get("/navigation", s.handleGetNavigation)
		r.Post("/navigation", s.handleNavigate)

		r.Get("/availability", s.handleAvailability)
		r.Get("/free-slots", s.handleFreeSlots)
		r.Get("/upcoming", s.handleUpcoming)
		r.Get("/stats", s.handleStats)

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)

		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Get("/export.ics", s.handleExportICS)
		r.Post("/import.ics", s.handleImportICS)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleListEvents lists events. With ?date= it returns that day's events,
// with ?from=&to= the (expanded) events intersecting the range, otherwise
// the stored events. Reference filters (type, courseId, instructorId,
// studentId, source) apply in every case.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := calendar.EventFilter{
		Type:         q.Get("type"),
		CourseID:     q.Get("courseId"),
		InstructorID: q.Get("instructorId"),
		StudentID:    q.Get("studentId"),
		Source:       q.Get("source"),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	loc := s.cal.Location()

	var events []model.Event
	switch {
	case q.Get("date") != "":
		d, err := parseTime(q.Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		events = s.cal.EventsForDate(d)
	case q.Get("from") != "" || q.Get("to") != "":
		from, errF := parseTime(q.Get("from"), loc)
		to, errT := parseTime(q.Get("to"), loc)
		if errF != nil || errT != nil || !to.After(from) {
			writeError(w, http.StatusBadRequest, "from and to must be valid dates with from before to")
			return
		}
		events = s.cal.EventsInRange(from, to)
	default:
		writeJSON(w, http.StatusOK, s.cal.Store().Filter(filter))
		return
	}

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if filter.Match(ev) {
			out = append(out, ev)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in calendar.EventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	ev, err := s.cal.Store().Add(in)
	n := s.cal.Store().Len()
	s.mu.Unlock()

	switch {
	case errors.Is(err, calendar.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.SetStoredEvents(n)
	appLog.Info("event created", "id", ev.ID, "title", ev.Title)
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	ev, ok := s.cal.Store().Get(id)
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handlePatchEvent merges the given fields. The store treats unknown ids
// as a no-op; over HTTP that becomes a 404 so clients can tell.
func (s *Server) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p calendar.EventPatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cal.Store().Get(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err := s.cal.Store().Update(id, p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, _ := s.cal.Store().Get(id)
	writeJSON(w, http.StatusOK, ev)
}

// handleDeleteEvent is idempotent: deleting a missing id still answers 204.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	s.cal.Store().Remove(id)
	n := s.cal.Store().Len()
	s.mu.Unlock()

	s.metrics.SetStoredEvents(n)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicateEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	ev, ok := s.cal.Store().Duplicate(id)
	n := s.cal.Store().Len()
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	s.metrics.SetStoredEvents(n)
	writeJSON(w, http.StatusCreated, ev)
}

// handleView builds a month/week/day/year grid around ?date= (default
// today) without moving the shared navigator.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	mode, err := calendar.ParseViewMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ref := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		ref, err = parseTime(v, s.cal.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.cal.ViewAt(mode, ref))
}

type navigationState struct {
	Mode     calendar.ViewMode `json:"mode"`
	Current  time.Time         `json:"current"`
	Selected time.Time         `json:"selected"`
	View     calendar.View     `json:"view"`
}

func (s *Server) navigationState() navigationState {
	nav := s.cal.Navigator()
	return navigationState{
		Mode:     nav.Mode,
		Current:  nav.Current,
		Selected: nav.Selected,
		View:     s.cal.View(),
	}
}

func (s *Server) handleGetNavigation(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.navigationState())
}

type navigateRequest struct {
	Action string `json:"action"`
	Mode   string `json:"mode,omitempty"`
	Date   string `json:"date,omitempty"`
}

// handleNavigate drives the shared navigator: next, previous, today,
// mode (with "mode"), goto and select (with "date").
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	nav := s.cal.Navigator()

	switch req.Action {
	case "next":
		nav.Next()
	case "previous":
		nav.Previous()
	case "today":
		nav.Today()
	case "mode":
		m, err := calendar.ParseViewMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		nav.SetMode(m)
	case "goto", "select":
		d, err := parseTime(req.Date, s.cal.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		if req.Action == "goto" {
			nav.GoTo(d)
		} else {
			nav.Select(d)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, s.navigationState())
}

type availabilityResponse struct {
	calendar.Availability
	WithinWorkingHours bool `json:"withinWorkingHours"`
}

// handleAvailability checks ?start=&end= (optionally ?exclude=<id>).
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.RLock()
	loc := s.cal.Location()
	start, errS := parseTime(q.Get("start"), loc)
	end, errE := parseTime(q.Get("end"), loc)
	if errS != nil || errE != nil {
		s.mu.RUnlock()
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}
	resp := availabilityResponse{
		Availability:       s.cal.CheckAvailability(start, end, q.Get("exclude")),
		WithinWorkingHours: s.cal.WithinWorkingHours(start, end),
	}
	s.mu.RUnlock()

	s.metrics.TrackAvailability(resp.Available)
	writeJSON(w, http.StatusOK, resp)
}

// handleFreeSlots lists working-hours gaps on ?date= long enough for
// ?duration= minutes (default: the preferred event duration).
func (s *Server) handleFreeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := parseTime(q.Get("date"), s.cal.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	def := s.cal.Preferences().EventDuration()
	minutes := parseIntDefault(q.Get("duration"), int(def/time.Minute))
	if minutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration must be positive")
		return
	}
	writeJSON(w, http.StatusOK, s.cal.FreeSlots(d, time.Duration(minutes)*time.Minute))
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)

	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.cal.Upcoming(limit))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.cal.Stats())
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.cal.Preferences())
}

// handlePutPreferences replaces the preferences after validating them and,
// when a config path is known, persists them.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var p model.Preferences
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.SetPreferences(p)
	if s.cfg != nil {
		s.cfg.Preferences = p
		if s.cfgPath != "" {
			if err := s.cfg.Save(s.cfgPath); err != nil {
				appLog.Error("failed to persist preferences", err, "path", s.cfgPath)
				writeError(w, http.StatusInternalServerError, "preferences applied but not saved")
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.json"`)
	if err := archive.Export(s.cal, w); err != nil {
		appLog.Error("export failed", err)
	}
}

// handleImport replaces the calendar with the posted export document and
// always answers with an archive.Result.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	s.mu.Lock()
	n, err := archive.Import(s.cal, body)
	stored := s.cal.Store().Len()
	s.mu.Unlock()

	s.metrics.TrackImport("json", err == nil)
	if err != nil {
		appLog.Warn("import rejected", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, archive.ResultOf(0, err))
		return
	}
	s.metrics.SetStoredEvents(stored)
	appLog.Info("calendar imported", "events", n)
	writeJSON(w, http.StatusOK, archive.ResultOf(n, nil))
}

func (s *Server) handleExportICS(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	body := ics.Encode(s.cal.Store().All(), "LearnCal", s.cal.Location())
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	_, _ = io.WriteString(w, body)
}

// handleImportICS merges a posted ICS body into the store under the source
// given by ?source= (default "upload"), replacing that source's previous
// events and leaving everything else alone.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	s.mu.Lock()
	events, err := ics.Parse(ics.Source{ID: source}, body, s.cal.Location())
	if err == nil {
		for i := range events {
			events[i].ID = source + ":" + events[i].ID
		}
		err = s.cal.Store().ReplaceSource(source, events)
	}
	stored := s.cal.Store().Len()
	s.mu.Unlock()

	s.metrics.TrackImport("ics", err == nil)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, archive.ResultOf(0, err))
		return
	}
	s.metrics.SetStoredEvents(stored)
	writeJSON(w, http.StatusOK, archive.ResultOf(len(events), nil))
}

// ListenAndServe runs the server on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// parseTime accepts RFC 3339, "2006-01-02T15:04" or "2006-01-02"; the last
// two are read in loc.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", v, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, loc)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
