package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paddock/internal/api"
	"paddock/internal/config"
	"paddock/internal/logging"
	"paddock/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJobItem))
	mux.HandleFunc("/api/gags", authMiddleware(token, srv.handleGags))
	mux.HandleFunc("/api/gags/", authMiddleware(token, srv.handleGagItem))
	mux.HandleFunc("/api/calendar", authMiddleware(token, srv.handleCalendar))
	mux.HandleFunc("/api/calendar/sync", authMiddleware(token, srv.handleCalendarSync))
	mux.HandleFunc("/api/episodes", authMiddleware(token, srv.handleEpisodes))
	mux.HandleFunc("/api/episodes/", authMiddleware(token, srv.handleEpisodeItem))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Args(logging.Error(err))...)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.Args(logging.String("address", listener.Addr().String()))...)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, useful when binding to port 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		JobStats:     status.JobStats,
		NextJob:      status.NextJob,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		jobs, err := s.daemon.jobSvc.List(r.Context(), query.Get("status"), query.Get("kind"), limit)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
	case http.MethodPost:
		var req api.TriggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		job, err := s.daemon.jobSvc.Trigger(r.Context(), req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: *job})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/jobs/upcoming" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		jobs, err := s.daemon.jobSvc.Upcoming(r.Context(), limit)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
		return
	}

	id, action, ok := splitItemPath(r.URL.Path, "/api/jobs/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	switch {
	case r.Method == http.MethodGet && action == "":
		job, err := s.daemon.jobSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
	case r.Method == http.MethodPost && action == "trigger":
		job, err := s.daemon.jobSvc.TriggerExisting(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
	case r.Method == http.MethodPost && action == "cancel":
		if err := s.daemon.jobSvc.Cancel(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleGags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		list, err := s.daemon.gagSvc.List(r.Context(), query.Get("status"), query.Get("category"), query.Get("character"))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.GagListResponse{Gags: list})
	case http.MethodPost:
		var req api.GagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		gag, err := s.daemon.gagSvc.Create(r.Context(), req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.GagResponse{Gag: *gag})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleGagItem(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/gags/eligible" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		query := r.URL.Query()
		var characters []string
		if raw := strings.TrimSpace(query.Get("characters")); raw != "" {
			characters = strings.Split(raw, ",")
		}
		season, _ := strconv.Atoi(query.Get("season"))
		round, _ := strconv.Atoi(query.Get("round"))
		limit, _ := strconv.Atoi(query.Get("limit"))
		list, err := s.daemon.gagSvc.Eligible(r.Context(), characters, season, round, limit)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.GagListResponse{Gags: list})
		return
	}

	id, action, ok := splitItemPath(r.URL.Path, "/api/gags/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "gag not found")
		return
	}
	switch {
	case r.Method == http.MethodGet && action == "":
		gag, err := s.daemon.gagSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if gag == nil {
			s.writeError(w, http.StatusNotFound, "gag not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.GagResponse{Gag: *gag})
	case r.Method == http.MethodPost && action == "effectiveness":
		var req api.RateGagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		gag, err := s.daemon.gagSvc.RateUsage(r.Context(), id, req.EpisodeID, req.SceneIndex, req.HumorRating)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.GagResponse{Gag: *gag})
	case r.Method == http.MethodPost && action == "retire":
		if err := s.daemon.gagSvc.Retire(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "retired"})
	case r.Method == http.MethodPost && action == "revive":
		if err := s.daemon.gagSvc.Revive(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
	case r.Method == http.MethodPut && action == "":
		var req api.GagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		gag, err := s.daemon.gagSvc.Update(r.Context(), id, req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.GagResponse{Gag: *gag})
	case r.Method == http.MethodDelete && action == "":
		if err := s.daemon.gagSvc.Delete(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		season, _ := strconv.Atoi(r.URL.Query().Get("season"))
		if season == 0 {
			season = time.Now().Year()
		}
		races, err := s.daemon.raceSvc.ListSeason(r.Context(), season)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.RaceListResponse{Races: races})
	case http.MethodPut, http.MethodPost:
		var req api.RaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		race, err := s.daemon.raceSvc.Upsert(r.Context(), req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, race)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleCalendarSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	result, err := s.daemon.jobSvc.Sync(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	list, err := s.daemon.episodeSvc.List(r.Context(), query.Get("status"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EpisodeListResponse{Episodes: list})
}

func (s *apiServer) handleEpisodeItem(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitItemPath(r.URL.Path, "/api/episodes/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	switch {
	case r.Method == http.MethodGet && action == "":
		episode, err := s.daemon.episodeSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if episode == nil {
			s.writeError(w, http.StatusNotFound, "episode not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.EpisodeResponse{Episode: *episode})
	case r.Method == http.MethodPost && action == "retry-scenes":
		var req api.RetryScenesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		episode, err := s.daemon.episodeSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if episode == nil {
			s.writeError(w, http.StatusNotFound, "episode not found")
			return
		}
		if episode.Status != "failed" {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("episode %d is %s, only failed episodes can retry scenes", id, episode.Status))
			return
		}
		// Scene renders run for minutes; hand the work to the daemon and
		// let the caller poll the episode for progress.
		go func() {
			if _, err := s.daemon.episodeSvc.RetryScenes(s.daemon.runCtx, id, req.Scenes); err != nil {
				s.log().Error("scene retry failed",
					logging.Args(logging.Int64(logging.FieldEpisodeID, id), logging.Error(err))...)
			}
		}()
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// splitItemPath parses "/api/<kind>/<id>" and "/api/<kind>/<id>/<action>".
func splitItemPath(path, prefix string) (int64, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path {
		return 0, "", false
	}
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || strings.Contains(action, "/") {
		return 0, "", false
	}
	return id, action, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Args(logging.Error(err))...)
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
