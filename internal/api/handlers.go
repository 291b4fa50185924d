package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sayvdo/overseer/internal/queue"
)

// maxRecentLimit caps GET /api/recent page size.
const maxRecentLimit = 50

// TaskReader is the read-only slice of the queue the API needs.
type TaskReader interface {
	CountByStatus(ctx context.Context) (queue.StatusCounts, error)
	CountByDirector(ctx context.Context, directors []string) (map[string]queue.DirectorCounts, error)
	ListTasks(ctx context.Context, limit int) ([]queue.Task, error)
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    counts.Pending + counts.Running,
	})
}

// handleStatus handles GET /api/status: aggregate counts, per-director
// breakdown, and the most recent task.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("status aggregation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "status aggregation failed")
		return
	}

	directors, err := s.queue.CountByDirector(ctx, s.config.Directors)
	if err != nil {
		s.logger.Error("director aggregation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "director aggregation failed")
		return
	}

	resp := StatusResponse{
		Total:     counts.Total,
		Done:      counts.Done,
		Failed:    counts.Failed,
		Pending:   counts.Pending,
		Running:   counts.Running,
		Directors: directors,
		CheckedAt: time.Now().UTC(),
	}

	recent, err := s.queue.ListTasks(ctx, 1)
	if err != nil {
		s.logger.Error("last task lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "last task lookup failed")
		return
	}
	if len(recent) > 0 {
		resp.LastTask = &LastTask{
			AssignedTo: recent[0].AssignedTo,
			Status:     string(recent[0].Status),
			CreatedAt:  recent[0].CreatedAt,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleRecent handles GET /api/recent?limit=N.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	tasks, err := s.queue.ListTasks(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent tasks lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "recent tasks lookup failed")
		return
	}

	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	s.writeJSON(w, http.StatusOK, views)
}

// handleAlerts serves the human-readable alerts log as plain text.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	f, err := os.Open(s.config.AlertsPath)
	if os.IsNotExist(err) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read alerts log")
		return
	}
	defer f.Close()

	w.WriteHeader(http.StatusOK)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		_, _ = w.Write(append(scanner.Bytes(), '\n'))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
