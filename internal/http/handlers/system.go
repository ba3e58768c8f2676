package handlers

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/internal/version"
)

// exitDelay gives the HTTP response time to reach the client before the
// process replaces or terminates itself.
const exitDelay = 700 * time.Millisecond

// SystemHandler serves process-level operations: restart, shutdown, version.
type SystemHandler struct {
	reg      *registry.Registry
	shutdown func()
	logger   *slog.Logger
}

// NewSystemHandler creates a system handler. shutdown is invoked to stop the
// process gracefully; it must be safe to call from any goroutine.
func NewSystemHandler(reg *registry.Registry, shutdown func(), logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{reg: reg, shutdown: shutdown, logger: logger}
}

// VersionOutput wraps build version information.
type VersionOutput struct {
	Body version.Info
}

// Register registers the system routes.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      "GET",
		Path:        "/api/v1/system/version",
		Summary:     "Build version information",
		Tags:        []string{"System"},
	}, h.GetVersion)

	huma.Register(api, huma.Operation{
		OperationID: "restartSystem",
		Method:      "POST",
		Path:        "/api/v1/system/restart",
		Summary:     "Restart the service process",
		Description: "Stops all streams, then re-executes the current binary in place",
		Tags:        []string{"System"},
	}, h.Restart)

	huma.Register(api, huma.Operation{
		OperationID: "shutdownSystem",
		Method:      "POST",
		Path:        "/api/v1/system/shutdown",
		Summary:     "Shut the service down",
		Tags:        []string{"System"},
	}, h.Shutdown)
}

// GetVersion returns build metadata.
func (h *SystemHandler) GetVersion(ctx context.Context, _ *struct{}) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}

// Restart stops everything and re-executes the binary after a short delay.
func (h *SystemHandler) Restart(ctx context.Context, _ *struct{}) (*ActionOutput, error) {
	h.reg.StopAll()
	observability.System(h.logger, "Service restart requested")

	go func() {
		time.Sleep(exitDelay)
		exe, err := os.Executable()
		if err != nil {
			h.logger.Error("restart failed to resolve executable", "error", err)
			h.shutdown()
			return
		}
		if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
			h.logger.Error("restart exec failed", "error", err)
			h.shutdown()
		}
	}()

	out := &ActionOutput{}
	out.Body.Status = "restarting"
	return out, nil
}

// Shutdown stops everything and terminates the process after a short delay.
func (h *SystemHandler) Shutdown(ctx context.Context, _ *struct{}) (*ActionOutput, error) {
	h.reg.StopAll()
	observability.System(h.logger, "Service shutdown requested")

	go func() {
		time.Sleep(exitDelay)
		h.shutdown()
	}()

	out := &ActionOutput{}
	out.Body.Status = "shutting_down"
	return out, nil
}
