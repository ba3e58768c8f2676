package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/pkg/bitrate"
)

// SettingsHandler serves the global streaming and transcode settings.
type SettingsHandler struct {
	reg *registry.Registry
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(reg *registry.Registry) *SettingsHandler {
	return &SettingsHandler{reg: reg}
}

// TranscodeSettingsOutput wraps the global conditioning defaults.
type TranscodeSettingsOutput struct {
	Body registry.GlobalTranscode
}

// TranscodeSettingsInput updates the global conditioning defaults.
type TranscodeSettingsInput struct {
	Body struct {
		Enabled    bool   `json:"on"`
		Codec      string `json:"codec,omitempty"`
		Preset     string `json:"preset,omitempty"`
		VBitrate   string `json:"vbitrate,omitempty"`
		ABitrate   string `json:"abitrate,omitempty"`
		Resolution string `json:"resolution,omitempty"`
		FPS        string `json:"fps,omitempty"`
	}
}

// GlobalSettingsInput is a partial update of the streaming-wide settings.
type GlobalSettingsInput struct {
	Body struct {
		GlobalBitrate *string `json:"global_bitrate,omitempty"`
		MediaPath     *string `json:"media_path,omitempty"`
		SelectedNIC   *string `json:"selected_nic,omitempty"`
		MonitorNIC    *string `json:"monitor_nic,omitempty"`
		AutoStart     *bool   `json:"auto_start,omitempty"`
	}
}

// GlobalSettingsOutput reports the settings after an update.
type GlobalSettingsOutput struct {
	Body struct {
		Status        string `json:"status"`
		GlobalBitrate string `json:"global_bitrate"`
		MediaPath     string `json:"media_path"`
		SelectedNIC   string `json:"selected_nic"`
		MonitorNIC    string `json:"monitor_nic"`
		AutoStart     bool   `json:"auto_start"`
	}
}

// Register registers the settings routes.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getTranscodeSettings",
		Method:      "GET",
		Path:        "/api/v1/settings/transcode",
		Summary:     "Global transcode defaults",
		Tags:        []string{"Settings"},
	}, h.GetTranscode)

	huma.Register(api, huma.Operation{
		OperationID: "updateTranscodeSettings",
		Method:      "POST",
		Path:        "/api/v1/settings/transcode",
		Summary:     "Update global transcode defaults",
		Description: "Applies to future uploads and retranscodes, never to finished media",
		Tags:        []string{"Settings"},
	}, h.UpdateTranscode)

	huma.Register(api, huma.Operation{
		OperationID: "updateGlobalSettings",
		Method:      "POST",
		Path:        "/api/v1/settings/global",
		Summary:     "Update streaming-wide settings",
		Tags:        []string{"Settings"},
	}, h.UpdateGlobal)
}

// GetTranscode returns the global conditioning defaults.
func (h *SettingsHandler) GetTranscode(ctx context.Context, _ *struct{}) (*TranscodeSettingsOutput, error) {
	return &TranscodeSettingsOutput{Body: h.reg.GlobalTranscodeSettings()}, nil
}

// UpdateTranscode replaces the global conditioning defaults.
func (h *SettingsHandler) UpdateTranscode(ctx context.Context, input *TranscodeSettingsInput) (*TranscodeSettingsOutput, error) {
	current := h.reg.GlobalTranscodeSettings()
	profile := models.TranscodeProfile{
		Codec:      orFallback(input.Body.Codec, current.Codec),
		Preset:     orFallback(input.Body.Preset, current.Preset),
		VBitrate:   orFallback(input.Body.VBitrate, current.VBitrate),
		ABitrate:   orFallback(input.Body.ABitrate, current.ABitrate),
		Resolution: orFallback(input.Body.Resolution, current.Resolution),
		FPS:        orFallback(input.Body.FPS, current.FPS),
	}
	profile, err := profile.Sanitize(current.Profile())
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid codec: " + input.Body.Codec)
	}

	gt := registry.GlobalTranscode{
		Enabled:    input.Body.Enabled,
		Codec:      profile.Codec,
		Preset:     profile.Preset,
		VBitrate:   profile.VBitrate,
		ABitrate:   profile.ABitrate,
		Resolution: profile.Resolution,
		FPS:        profile.FPS,
	}
	h.reg.SetGlobalTranscode(gt)
	return &TranscodeSettingsOutput{Body: gt}, nil
}

// UpdateGlobal applies a partial streaming-wide settings update.
func (h *SettingsHandler) UpdateGlobal(ctx context.Context, input *GlobalSettingsInput) (*GlobalSettingsOutput, error) {
	b := input.Body

	if b.GlobalBitrate != nil {
		if *b.GlobalBitrate != "" && !bitrate.Valid(*b.GlobalBitrate) {
			return nil, huma.Error422UnprocessableEntity("invalid bitrate literal")
		}
		h.reg.ApplyGlobalBitrate(*b.GlobalBitrate)
	}
	if b.MediaPath != nil {
		if err := h.reg.SetMediaDir(*b.MediaPath); err != nil {
			if errors.Is(err, models.ErrMediaPathNotFound) {
				return nil, huma.Error422UnprocessableEntity("media path does not exist")
			}
			return nil, huma.Error500InternalServerError("failed to set media path", err)
		}
	}
	if b.SelectedNIC != nil {
		h.reg.SetNIC(*b.SelectedNIC)
	}
	if b.MonitorNIC != nil {
		h.reg.SetMonitorNIC(*b.MonitorNIC)
	}
	if b.AutoStart != nil {
		h.reg.SetAutoStart(*b.AutoStart)
	}

	out := &GlobalSettingsOutput{}
	out.Body.Status = "updated"
	out.Body.GlobalBitrate = h.reg.GlobalBitrate()
	out.Body.MediaPath = h.reg.MediaDir()
	out.Body.SelectedNIC = h.reg.SelectedNIC()
	out.Body.MonitorNIC = h.reg.MonitorNIC()
	out.Body.AutoStart = h.reg.AutoStart()
	return out, nil
}
