package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/internal/upload"
	"github.com/lavacast/lavacast/pkg/bitrate"
)

// ChannelsHandler serves channel lifecycle and upload endpoints.
type ChannelsHandler struct {
	reg            *registry.Registry
	pipeline       *upload.Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewChannelsHandler creates a channels handler.
func NewChannelsHandler(reg *registry.Registry, pipeline *upload.Service, maxUploadBytes int64, logger *slog.Logger) *ChannelsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelsHandler{
		reg:            reg,
		pipeline:       pipeline,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// ChannelInput addresses one channel by index.
type ChannelInput struct {
	CID int `path:"cid" minimum:"0" doc:"Channel index, 0-based"`
}

// ChannelSettingsInput is a partial channel settings update.
type ChannelSettingsInput struct {
	CID  int `path:"cid" minimum:"0"`
	Body struct {
		IP      *string `json:"ip,omitempty"`
		Port    *int    `json:"port,omitempty"`
		Encap   *string `json:"encap,omitempty" enum:"udp,rtp"`
		Bitrate *string `json:"bitrate,omitempty"`
		Loop    *bool   `json:"loop,omitempty"`
		NIC     *string `json:"nic,omitempty"`

		Codec    *string `json:"codec,omitempty"`
		Preset   *string `json:"preset,omitempty"`
		VBitrate *string `json:"vbitrate,omitempty"`
		ABitrate *string `json:"abitrate,omitempty"`
	}
}

// ChannelSettingsOutput reports the updated channel.
type ChannelSettingsOutput struct {
	Body struct {
		Status string         `json:"status"`
		Meta   models.Channel `json:"meta"`
	}
}

// ActionOutput is a minimal status acknowledgement.
type ActionOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// RetranscodeInput carries the new conditioning profile for a channel.
type RetranscodeInput struct {
	CID  int `path:"cid" minimum:"0"`
	Body struct {
		Codec      string `json:"codec,omitempty"`
		Preset     string `json:"preset,omitempty"`
		VBitrate   string `json:"vbitrate,omitempty"`
		ABitrate   string `json:"abitrate,omitempty"`
		Resolution string `json:"resolution,omitempty"`
		FPS        string `json:"fps,omitempty"`
	}
}

// Register registers the channel routes.
func (h *ChannelsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{cid}/start",
		Summary:     "Start a channel's stream",
		Tags:        []string{"Channels"},
	}, h.StartChannel)

	huma.Register(api, huma.Operation{
		OperationID: "stopChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{cid}/stop",
		Summary:     "Stop a channel's stream",
		Tags:        []string{"Channels"},
	}, h.StopChannel)

	huma.Register(api, huma.Operation{
		OperationID: "startAllChannels",
		Method:      "POST",
		Path:        "/api/v1/channels/start_all",
		Summary:     "Start every registered channel",
		Tags:        []string{"Channels"},
	}, h.StartAll)

	huma.Register(api, huma.Operation{
		OperationID: "stopAllChannels",
		Method:      "POST",
		Path:        "/api/v1/channels/stop_all",
		Summary:     "Stop every running channel",
		Tags:        []string{"Channels"},
	}, h.StopAll)

	huma.Register(api, huma.Operation{
		OperationID: "updateChannelSettings",
		Method:      "POST",
		Path:        "/api/v1/channels/{cid}/settings",
		Summary:     "Update channel settings",
		Description: "Network changes restart a running stream; profile changes apply to the next transcode",
		Tags:        []string{"Channels"},
	}, h.UpdateSettings)

	huma.Register(api, huma.Operation{
		OperationID: "removeChannel",
		Method:      "DELETE",
		Path:        "/api/v1/channels/{cid}",
		Summary:     "Remove a channel and its media",
		Tags:        []string{"Channels"},
	}, h.RemoveChannel)

	huma.Register(api, huma.Operation{
		OperationID: "retranscodeChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{cid}/retranscode",
		Summary:     "Re-condition a channel's original with a new profile",
		Tags:        []string{"Channels"},
	}, h.Retranscode)

	huma.Register(api, huma.Operation{
		OperationID: "cancelTranscode",
		Method:      "POST",
		Path:        "/api/v1/channels/{cid}/transcode/cancel",
		Summary:     "Cancel a channel's in-flight transcode",
		Tags:        []string{"Channels"},
	}, h.CancelTranscode)
}

// RegisterRaw registers the multipart upload and thumbnail routes directly
// on the router; they stream bodies huma cannot model efficiently.
func (h *ChannelsHandler) RegisterRaw(router chi.Router) {
	router.Post("/api/v1/channels/{cid}/upload", h.handleUpload)
	router.Get("/api/v1/channels/{cid}/thumbnail", h.handleThumbnail)
	// Matches the thumb URL stored in channel metadata.
	router.Get("/thumbnails/ch{cid}.jpg", h.handleThumbnail)
}

// StartChannel starts one channel.
func (h *ChannelsHandler) StartChannel(ctx context.Context, input *ChannelInput) (*ActionOutput, error) {
	if !h.reg.ValidCID(input.CID) {
		return nil, huma.Error400BadRequest("invalid channel")
	}
	if err := h.reg.Start(context.WithoutCancel(ctx), input.CID); err != nil {
		return nil, huma.Error500InternalServerError("failed to start stream", err)
	}
	out := &ActionOutput{}
	out.Body.Status = "started"
	return out, nil
}

// StopChannel stops one channel.
func (h *ChannelsHandler) StopChannel(ctx context.Context, input *ChannelInput) (*ActionOutput, error) {
	h.reg.Stop(input.CID)
	out := &ActionOutput{}
	out.Body.Status = "stopped"
	return out, nil
}

// StartAll starts every channel.
func (h *ChannelsHandler) StartAll(ctx context.Context, _ *struct{}) (*ActionOutput, error) {
	h.reg.StartAll(context.WithoutCancel(ctx))
	out := &ActionOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// StopAll stops every channel.
func (h *ChannelsHandler) StopAll(ctx context.Context, _ *struct{}) (*ActionOutput, error) {
	h.reg.StopAll()
	out := &ActionOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// UpdateSettings applies a partial settings update.
func (h *ChannelsHandler) UpdateSettings(ctx context.Context, input *ChannelSettingsInput) (*ChannelSettingsOutput, error) {
	b := input.Body
	if b.Port != nil && (*b.Port < 1 || *b.Port > 65535) {
		return nil, huma.Error422UnprocessableEntity("port out of range")
	}
	if b.Bitrate != nil && *b.Bitrate != "" && !bitrate.Valid(*b.Bitrate) {
		return nil, huma.Error422UnprocessableEntity("invalid bitrate literal")
	}
	if b.Codec != nil && !models.ValidCodecs[*b.Codec] {
		return nil, huma.Error422UnprocessableEntity("invalid codec")
	}

	_, err := h.reg.UpdateChannel(context.WithoutCancel(ctx), input.CID, registry.UpdateRequest{
		IP: b.IP, Port: b.Port, Encap: b.Encap, Bitrate: b.Bitrate,
		Loop: b.Loop, NIC: b.NIC,
		Codec: b.Codec, Preset: b.Preset, VBitrate: b.VBitrate, ABitrate: b.ABitrate,
	})
	if err != nil {
		if errors.Is(err, models.ErrChannelNotFound) {
			return nil, huma.Error404NotFound("channel not loaded")
		}
		return nil, huma.Error500InternalServerError("update failed", err)
	}

	meta, _ := h.reg.Channel(input.CID)
	out := &ChannelSettingsOutput{}
	out.Body.Status = "updated"
	out.Body.Meta = meta
	return out, nil
}

// RemoveChannel drops the channel and deletes its media files.
func (h *ChannelsHandler) RemoveChannel(ctx context.Context, input *ChannelInput) (*ActionOutput, error) {
	meta, ok := h.reg.Channel(input.CID)
	h.reg.RemoveChannel(input.CID)
	if ok {
		h.pipeline.RemoveMedia(meta)
	}
	out := &ActionOutput{}
	out.Body.Status = "removed"
	return out, nil
}

// Retranscode re-conditions the stored original with a new profile.
func (h *ChannelsHandler) Retranscode(ctx context.Context, input *RetranscodeInput) (*ActionOutput, error) {
	fallback := h.reg.GlobalTranscodeSettings().Profile()
	profile := models.TranscodeProfile{
		Codec:      orFallback(input.Body.Codec, fallback.Codec),
		Preset:     orFallback(input.Body.Preset, fallback.Preset),
		VBitrate:   orFallback(input.Body.VBitrate, fallback.VBitrate),
		ABitrate:   orFallback(input.Body.ABitrate, fallback.ABitrate),
		Resolution: orFallback(input.Body.Resolution, fallback.Resolution),
		FPS:        orFallback(input.Body.FPS, fallback.FPS),
	}
	profile, err := profile.Sanitize(fallback)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid codec: " + input.Body.Codec)
	}

	err = h.pipeline.Retranscode(context.WithoutCancel(ctx), input.CID, profile)
	switch {
	case errors.Is(err, models.ErrChannelNotFound):
		return nil, huma.Error404NotFound("channel not loaded")
	case errors.Is(err, models.ErrSourceNotFound):
		return nil, huma.Error404NotFound("original file not found on server")
	case err != nil:
		return nil, huma.Error500InternalServerError("transcode failed to start", err)
	}

	out := &ActionOutput{}
	if profile.Codec == models.CodecCopy {
		out.Body.Status = "switched_to_copy"
	} else {
		out.Body.Status = "transcoding"
	}
	return out, nil
}

// CancelTranscode aborts an in-flight conditioning job.
func (h *ChannelsHandler) CancelTranscode(ctx context.Context, input *ChannelInput) (*ActionOutput, error) {
	h.reg.CancelTranscode(input.CID)
	out := &ActionOutput{}
	out.Body.Status = "cancelled"
	return out, nil
}

// handleUpload receives a multipart upload and starts the ingest pipeline.
func (h *ChannelsHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	cid, err := strconv.Atoi(chi.URLParam(r, "cid"))
	if err != nil || !h.reg.ValidCID(cid) {
		writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file")
		return
	}
	defer file.Close()

	fallback := h.reg.GlobalTranscodeSettings().Profile()
	profile := models.TranscodeProfile{
		Codec:      orFallback(r.FormValue("codec"), fallback.Codec),
		Preset:     orFallback(r.FormValue("preset"), fallback.Preset),
		VBitrate:   orFallback(r.FormValue("vbitrate"), fallback.VBitrate),
		ABitrate:   orFallback(r.FormValue("abitrate"), fallback.ABitrate),
		Resolution: orFallback(r.FormValue("resolution"), fallback.Resolution),
		FPS:        orFallback(r.FormValue("fps"), fallback.FPS),
	}
	// Per-upload overrides are forgiving: an unknown codec falls back to
	// passthrough rather than rejecting the upload.
	if !models.ValidCodecs[profile.Codec] {
		profile.Codec = models.CodecCopy
	}
	profile, _ = profile.Sanitize(fallback)

	overwrite := r.FormValue("overwrite") == "true"

	err = h.pipeline.Process(context.WithoutCancel(r.Context()), cid, header.Filename, file, profile, overwrite)
	switch {
	case errors.Is(err, models.ErrFileExists):
		writeJSON(w, http.StatusConflict, map[string]any{
			"exists": true, "filename": header.Filename,
		})
	case errors.Is(err, models.ErrUnsupportedExtension):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("upload failed", "channel", cid, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "uploading"})
	}
}

// handleThumbnail serves a channel's preview image, never from cache.
func (h *ChannelsHandler) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	cid, err := strconv.Atoi(chi.URLParam(r, "cid"))
	if err != nil || !h.reg.ValidCID(cid) {
		writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	path := h.pipeline.ThumbPath(cid)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func orFallback(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
