// Package handlers provides the REST API handlers for lavacast.
package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lavacast/lavacast/internal/metrics"
	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/internal/stream"
)

// StatusHandler serves the dashboard snapshot and system metrics.
type StatusHandler struct {
	reg       *registry.Registry
	collector *metrics.Collector
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(reg *registry.Registry, collector *metrics.Collector) *StatusHandler {
	return &StatusHandler{reg: reg, collector: collector}
}

// StatusBody is the full dashboard state in one response.
type StatusBody struct {
	Channels       map[string]models.Channel `json:"channels"`
	GlobalBitrate  string                    `json:"global_bitrate"`
	MediaPath      string                    `json:"media_path"`
	BitratePresets []models.BitratePreset    `json:"bitrate_presets"`
	NICs           []string                  `json:"nics"`
	SelectedNIC    string                    `json:"selected_nic"`
	MonitorNIC     string                    `json:"monitor_nic"`
	AutoStart      bool                      `json:"auto_start"`
	GlobalTC       registry.GlobalTranscode  `json:"global_tc"`
	MaxChannels    int                       `json:"max_channels"`
}

// StatusOutput wraps StatusBody.
type StatusOutput struct {
	Body StatusBody
}

// MetricsOutput wraps the latest metrics sample.
type MetricsOutput struct {
	Body metrics.Snapshot
}

// Register registers the status routes.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      "GET",
		Path:        "/api/v1/status",
		Summary:     "Dashboard status",
		Description: "Returns every channel plus global settings in one snapshot",
		Tags:        []string{"Status"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getMetrics",
		Method:      "GET",
		Path:        "/api/v1/metrics",
		Summary:     "System metrics",
		Description: "Returns the most recent CPU, memory, and NIC throughput sample",
		Tags:        []string{"Status"},
	}, h.GetMetrics)
}

// GetStatus returns the dashboard snapshot.
func (h *StatusHandler) GetStatus(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
	return &StatusOutput{
		Body: StatusBody{
			Channels:       h.reg.Status(),
			GlobalBitrate:  h.reg.GlobalBitrate(),
			MediaPath:      h.reg.MediaDir(),
			BitratePresets: models.BitratePresets,
			NICs:           stream.Interfaces(),
			SelectedNIC:    h.reg.SelectedNIC(),
			MonitorNIC:     h.reg.MonitorNIC(),
			AutoStart:      h.reg.AutoStart(),
			GlobalTC:       h.reg.GlobalTranscodeSettings(),
			MaxChannels:    h.reg.MaxChannels(),
		},
	}, nil
}

// GetMetrics returns the latest sampled metrics.
func (h *StatusHandler) GetMetrics(ctx context.Context, _ *struct{}) (*MetricsOutput, error) {
	return &MetricsOutput{Body: h.collector.Last()}, nil
}
