package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// eventMessage is the JSON form of a coordinator event.
type eventMessage struct {
	Type          string             `json:"type"`
	CommandID     string             `json:"command_id"`
	OperationType core.OperationType `json:"operation_type,omitempty"`
	Target        string             `json:"target,omitempty"`
	JobID         string             `json:"job_id,omitempty"`
	Status        core.Status        `json:"status,omitempty"`
	FailedTargets []string           `json:"failed_targets,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

func toEventMessage(e core.Event) *eventMessage {
	switch ev := e.(type) {
	case *core.CommandStarted:
		return &eventMessage{Type: "command_started", CommandID: ev.CommandID, OperationType: ev.OperationType, Timestamp: ev.Timestamp}
	case *core.AttemptSubmitted:
		return &eventMessage{Type: "attempt_submitted", CommandID: ev.CommandID, OperationType: ev.OperationType, Target: ev.Target, JobID: ev.JobID, Timestamp: ev.Timestamp}
	case *core.AttemptSubmitFailed:
		return &eventMessage{Type: "attempt_submit_failed", CommandID: ev.CommandID, OperationType: ev.OperationType, Target: ev.Target, Timestamp: ev.Timestamp}
	case *core.AttemptFinished:
		return &eventMessage{Type: "attempt_finished", CommandID: ev.CommandID, OperationType: ev.OperationType, Target: ev.Target, JobID: ev.JobID, Status: ev.Status, FailedTargets: ev.FailedTargets, Timestamp: ev.Timestamp}
	case *core.CommandFinished:
		return &eventMessage{Type: "command_finished", CommandID: ev.CommandID, OperationType: ev.OperationType, Status: ev.Status, FailedTargets: ev.FailedTargets, Timestamp: ev.Timestamp}
	default:
		return nil
	}
}

// handleEvents streams coordinator events as server-sent events until the
// client goes away. ?command_id= limits the stream to one command.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	events := s.commands.Events()
	defer s.commands.Unsubscribe(events)
	filter := r.URL.Query().Get("command_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			msg := toEventMessage(e)
			if msg == nil || (filter != "" && msg.CommandID != filter) {
				continue
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
