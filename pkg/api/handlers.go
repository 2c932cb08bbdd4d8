package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/metrics"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
	"github.com/jdziat/durable-cmd-tracker/pkg/stats"
	"github.com/jdziat/durable-cmd-tracker/pkg/storage"
)

const defaultListLimit = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps lookup errors to 404 and everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, core.ErrJobNotFound) || errors.Is(err, core.ErrCommandNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listCommandsResponse struct {
	Commands []*core.CommandRun `json:"commands"`
	Total    int64              `json:"total"`
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCommandFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	runs, total, err := s.history.SearchCommands(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*core.CommandRun{}
	}
	writeJSON(w, http.StatusOK, listCommandsResponse{Commands: runs, Total: total})
}

func parseCommandFilter(r *http.Request) (storage.CommandFilter, error) {
	q := r.URL.Query()
	filter := storage.CommandFilter{
		Name:          q.Get("name"),
		OperationType: core.OperationType(q.Get("operation_type")),
		Limit:         defaultListLimit,
	}

	if v := q.Get("status"); v != "" {
		st, err := core.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = st
	}
	for key, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = t
		}
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return filter, fmt.Errorf("invalid %s: %q", key, v)
			}
			*dst = n
		}
	}
	return filter, nil
}

type startCommandResponse struct {
	CommandID string `json:"command_id"`
	Name      string `json:"name"`
	Targets   int    `json:"targets"`
}

func (s *Server) handleStartCommand(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, security.MaxConfigSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cmd, err := cmdconfig.UnmarshalCmd(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, done, err := s.commands.Start(s.runCtx, cmd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	go func() {
		// Results are recorded by the coordinator; drain so the run can end.
		<-done
	}()

	s.logger.Info("command accepted", "command_id", id, "command", cmd.Name())
	writeJSON(w, http.StatusAccepted, startCommandResponse{
		CommandID: id,
		Name:      cmd.Name(),
		Targets:   len(cmd.AffectedPaths()),
	})
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.GetCommandRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.history.GetCommandRun(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	attempts, err := s.history.GetAttempts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if attempts == nil {
		attempts = []*core.AttemptRecord{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(core.StatusCanceled)})
}

type statsResponse struct {
	Jobs    map[core.Status]int64 `json:"jobs"`
	History []stats.CommandStat   `json:"history"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := statsResponse{Jobs: counts, History: []stats.CommandStat{}}

	if s.stats != nil {
		since, until := parsePeriod(r.URL.Query().Get("period"))
		rows, err := s.stats.History(r.Context(), r.URL.Query().Get("operation_type"), since, until)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if rows != nil {
			resp.History = rows
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parsePeriod(period string) (since, until time.Time) {
	until = time.Now()
	switch period {
	case "24h":
		since = until.Add(-24 * time.Hour)
	case "7d":
		since = until.Add(-7 * 24 * time.Hour)
	default:
		since = until.Add(-1 * time.Hour)
	}
	return
}

func (s *Server) handleCacheMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.jobs.CacheMetrics()
	writeJSON(w, http.StatusOK, struct {
		metrics.CacheMetrics
		CacheHitRatio float64 `json:"cache_hit_ratio"`
	}{m, m.CacheHitRatio()})
}
