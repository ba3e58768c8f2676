package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/lavacast/lavacast/internal/logs"
)

// defaultTailLines is how many log entries the API returns when the client
// does not ask for a specific count.
const defaultTailLines = 300

// LogsHandler serves the application log ring.
type LogsHandler struct {
	svc *logs.Service
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler(svc *logs.Service) *LogsHandler {
	return &LogsHandler{svc: svc}
}

// LogsInput selects how many trailing entries to return.
type LogsInput struct {
	N int `query:"n" default:"300" minimum:"0" doc:"Number of trailing entries to return"`
}

// LogsOutput wraps the returned entries.
type LogsOutput struct {
	Body struct {
		Entries []logs.Entry `json:"entries"`
	}
}

// Register registers the log routes.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLogs",
		Method:      "GET",
		Path:        "/api/v1/logs",
		Summary:     "Tail the application log",
		Tags:        []string{"Logs"},
	}, h.GetLogs)

	huma.Register(api, huma.Operation{
		OperationID: "getLogStats",
		Method:      "GET",
		Path:        "/api/v1/logs/stats",
		Summary:     "Log ring statistics",
		Tags:        []string{"Logs"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "clearLogs",
		Method:      "POST",
		Path:        "/api/v1/logs/clear",
		Summary:     "Clear the application log",
		Tags:        []string{"Logs"},
	}, h.ClearLogs)
}

// RegisterRaw registers the live log SSE route.
func (h *LogsHandler) RegisterRaw(router chi.Router) {
	router.Get("/api/v1/logs/stream", h.handleStream)
}

// GetLogs returns the trailing log entries.
func (h *LogsHandler) GetLogs(ctx context.Context, input *LogsInput) (*LogsOutput, error) {
	n := input.N
	if n == 0 {
		n = defaultTailLines
	}
	out := &LogsOutput{}
	out.Body.Entries = h.svc.Tail(n)
	if out.Body.Entries == nil {
		out.Body.Entries = []logs.Entry{}
	}
	return out, nil
}

// StatsOutput wraps the log ring statistics.
type StatsOutput struct {
	Body logs.Stats
}

// GetStats returns entry count, cap, and live follower count.
func (h *LogsHandler) GetStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	return &StatsOutput{Body: h.svc.Stats()}, nil
}

// ClearLogs truncates the log and records who asked.
func (h *LogsHandler) ClearLogs(ctx context.Context, _ *struct{}) (*ActionOutput, error) {
	h.svc.Clear()
	h.svc.Append(logs.Entry{Level: "SYSTEM", Message: "Log cleared"})
	out := &ActionOutput{}
	out.Body.Status = "cleared"
	return out, nil
}

// handleStream pushes new log entries to the client as they are written.
func (h *LogsHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	ch, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()

	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
