package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
)

// handleStreamLogs streams a run's output as server-sent events. Stored lines
// are replayed first, so a client that connects late or reconnects with
// Last-Event-ID sees every line once. Each event's id is the line's seq;
// stderr lines use the "stderr" event. The stream ends with a "done" event
// whose data is the run's final status.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Runs can outlast the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe before reading history so no line falls between the two.
	// A run that already finished has a closed topic.
	var live <-chan model.LogLine
	if !model.IsTerminal(run.Status) {
		ch, unsub := s.runner.Broker().Subscribe(run.ID)
		defer unsub()
		live = ch
	}
	defer trackLogStream()()

	history, err := s.store.GetLogLines(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("get log lines", "run_id", run.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log lines")
		return
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	lastSeq := lastEventID(r)
	for _, line := range history {
		if line.Seq <= lastSeq {
			continue
		}
		if writeLogEvent(w, line) != nil {
			return
		}
		lastSeq = line.Seq
	}
	flush()

	if live == nil {
		_ = writeSSE(w, "", "done", run.Status)
		flush()
		return
	}

	for {
		select {
		case line, ok := <-live:
			if !ok {
				_ = writeSSE(w, "", "done", s.settledStatus(r, run))
				flush()
				return
			}
			if line.Seq <= lastSeq {
				continue
			}
			if writeLogEvent(w, line) != nil {
				return // Client gone.
			}
			lastSeq = line.Seq
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

// lastEventID returns the seq named by the Last-Event-ID header, or -1.
func lastEventID(r *http.Request) int {
	n, err := strconv.Atoi(r.Header.Get("Last-Event-ID"))
	if err != nil {
		return -1
	}
	return n
}

// logHistoryLine is a single log line in the history response.
type logHistoryLine struct {
	Seq       int    `json:"seq"`
	Stream    string `json:"stream"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// logHistoryResponse is the JSON response for GET /v1/runs/{id}/logs/history.
type logHistoryResponse struct {
	RunID string           `json:"run_id"`
	Lines []logHistoryLine `json:"lines"`
}

func (s *Server) handleGetLogHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	logLines, err := s.store.GetLogLines(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("get log lines", "run_id", run.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log lines")
		return
	}

	lines := make([]logHistoryLine, len(logLines))
	for i, l := range logLines {
		lines[i] = logHistoryLine{
			Seq:       l.Seq,
			Stream:    l.Stream,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, logHistoryResponse{
		RunID: run.ID,
		Lines: lines,
	})
}

func writeLogEvent(w http.ResponseWriter, line model.LogLine) error {
	event := ""
	if line.Stream == invoker.StreamStderr {
		event = invoker.StreamStderr
	}
	return writeSSE(w, strconv.Itoa(line.Seq), event, line.Line)
}

// writeSSE writes one event. Multi-line data is split so that each segment
// gets its own "data:" prefix; empty id and event fields are omitted.
func writeSSE(w http.ResponseWriter, id, event, data string) error {
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	for seg := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}
