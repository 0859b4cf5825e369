package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"intelliqueue/internal/archive"
	"intelliqueue/internal/domain"
	"intelliqueue/internal/scheduler"
)

// Engine is the control surface the HTTP layer drives.
type Engine interface {
	Submit(taskType domain.TaskType, payload string) (string, error)
	QuickAdd() (string, error)
	Task(id string) (domain.Task, error)
	Snapshot() domain.Snapshot
	Stats() domain.Stats
	Notifications() []domain.Notification
	ClearNotifications()
	TaskTypes() []domain.TaskType
	SetRunning(running bool)
	SetProcessingDelay(d time.Duration) error
	SetFailureRate(percent int) error
	Reset()
}

type Options struct {
	// Schedules and History are optional; their routes are only mounted when set.
	Schedules *scheduler.Service
	History   *archive.Recorder
	Debug     bool
	Logger    *zerolog.Logger
}

type Server struct {
	r        *chi.Mux
	engine   Engine
	sched    *scheduler.Service
	history  *archive.Recorder
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewServer(engine Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = &log.Logger
	}
	l := logger.With().Str("component", "api").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(&l), middleware.Recoverer)

	s := &Server{
		r:        r,
		engine:   engine,
		sched:    opts.Schedules,
		history:  opts.History,
		validate: validator.New(),
		logger:   &l,
	}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.snapshot)
		r.Get("/stats", s.stats)
		r.Get("/task-types", s.taskTypes)

		r.Post("/tasks", s.submitTask)
		r.Post("/tasks/quick", s.quickAdd)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)

		r.Get("/notifications", s.listNotifications)
		r.Delete("/notifications", s.clearNotifications)

		r.Post("/worker/start", s.startWorker)
		r.Post("/worker/stop", s.stopWorker)
		r.Put("/worker/config", s.configureWorker)

		r.Post("/reset", s.reset)

		if s.sched != nil {
			r.Post("/schedules", s.createSchedule)
			r.Get("/schedules", s.listSchedules)
			r.Get("/schedules/{id}", s.getSchedule)
			r.Put("/schedules/{id}", s.updateSchedule)
			r.Delete("/schedules/{id}", s.deleteSchedule)
		}

		if s.history != nil {
			r.Get("/history/tasks", s.historyTasks)
			r.Get("/history/tasks/{id}", s.historyTask)
			r.Get("/history/stats", s.historyStats)
			r.Get("/history/notifications", s.historyNotifications)
		}
	})

	// Debug routes (pprof)
	if opts.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	running := 0
	if snap.Running {
		running = 1
	}

	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "# TYPE intelliqueue_tasks gauge")
	fmt.Fprintf(w, "intelliqueue_tasks{status=%q} %d\n", domain.StatusPending, snap.Stats.Pending)
	fmt.Fprintf(w, "intelliqueue_tasks{status=%q} %d\n", domain.StatusProcessing, snap.Stats.Processing)
	fmt.Fprintf(w, "intelliqueue_tasks{status=%q} %d\n", domain.StatusCompleted, snap.Stats.Completed)
	fmt.Fprintf(w, "intelliqueue_tasks{status=%q} %d\n", domain.StatusFailed, snap.Stats.Failed)
	fmt.Fprintln(w, "# TYPE intelliqueue_queue_depth gauge")
	fmt.Fprintf(w, "intelliqueue_queue_depth %d\n", snap.QueueDepth)
	fmt.Fprintln(w, "# TYPE intelliqueue_worker_running gauge")
	fmt.Fprintf(w, "intelliqueue_worker_running %d\n", running)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	domain.SortForDisplay(snap.Tasks)
	writeJSON(w, http.StatusOK, snapshotResp{
		Tasks:             snap.Tasks,
		QueueDepth:        snap.QueueDepth,
		Notifications:     snap.Notifications,
		Stats:             snap.Stats,
		Running:           snap.Running,
		ProcessingDelayMS: snap.ProcessingDelay.Milliseconds(),
		FailureRate:       snap.FailureRate,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) taskTypes(w http.ResponseWriter, r *http.Request) {
	types := s.engine.TaskTypes()
	out := make([]taskTypeResp, 0, len(types))
	for _, t := range types {
		out = append(out, taskTypeResp{Type: t, Description: domain.TaskTypeDescriptions[t]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.engine.Submit(domain.TaskType(req.TaskType), req.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{ID: id})
}

func (s *Server) quickAdd(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.QuickAdd()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{ID: id})
}

// listTasks returns tasks in display order, optionally filtered by ?status=.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.engine.Snapshot().Tasks
	if status := domain.Status(r.URL.Query().Get("status")); status != "" {
		if !status.Valid() {
			s.writeError(w, r, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, status))
			return
		}
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	domain.SortForDisplay(tasks)
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Task(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Notifications())
}

func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearNotifications()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startWorker(w http.ResponseWriter, r *http.Request) {
	s.engine.SetRunning(true)
	writeJSON(w, http.StatusOK, s.workerState())
}

func (s *Server) stopWorker(w http.ResponseWriter, r *http.Request) {
	s.engine.SetRunning(false)
	writeJSON(w, http.StatusOK, s.workerState())
}

func (s *Server) configureWorker(w http.ResponseWriter, r *http.Request) {
	var req workerConfigReq
	if !s.decode(w, r, &req) {
		return
	}
	if s.engine.Snapshot().Running {
		s.writeError(w, r, fmt.Errorf("%w: stop the worker before changing its settings", domain.ErrPreconditionFailed))
		return
	}
	if req.ProcessingDelayMS != nil {
		if err := s.engine.SetProcessingDelay(time.Duration(*req.ProcessingDelayMS) * time.Millisecond); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.FailureRate != nil {
		if err := s.engine.SetFailureRate(*req.FailureRate); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.workerState())
}

func (s *Server) workerState() workerResp {
	snap := s.engine.Snapshot()
	return workerResp{
		Running:           snap.Running,
		ProcessingDelayMS: snap.ProcessingDelay.Milliseconds(),
		FailureRate:       snap.FailureRate,
	}
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleReq
	if !s.decode(w, r, &req) {
		return
	}
	sc, err := s.sched.Create(scheduler.CreateRequest{
		Name:     req.Name,
		CronExpr: req.CronExpr,
		TaskType: domain.TaskType(req.TaskType),
		Payload:  req.Payload,
		Enabled:  req.Enabled == nil || *req.Enabled,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.List())
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := s.sched.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleReq
	if !s.decode(w, r, &req) {
		return
	}
	sc, err := s.sched.SetEnabled(chi.URLParam(r, "id"), *req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) historyTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tasks, err := s.history.ListTasks(r.Context(), domain.Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) historyTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.history.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) historyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) historyNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	notes, err := s.history.ListNotifications(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// decode reads a JSON body into v and validates it, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidArgument, key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
