package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/internal/observability"
)

// State is the persisted registry snapshot. The file is plain JSON so an
// operator can inspect or hand-edit it; keys beginning with an underscore,
// at the top level or inside the channels section, are treated as comments
// and ignored on load.
type State struct {
	GlobalTranscode GlobalTranscode `json:"global_transcode"`
	GlobalStreaming GlobalStreaming `json:"global_streaming"`
	Channels        channelMap      `json:"channels"`
}

// channelMap decodes the channels section, skipping underscore comment keys
// so a "_readme" entry does not abort the load.
type channelMap map[string]models.Channel

func (m *channelMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(channelMap, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var ch models.Channel
		if err := json.Unmarshal(v, &ch); err != nil {
			return fmt.Errorf("channel %q: %w", k, err)
		}
		out[k] = ch
	}
	*m = out
	return nil
}

// GlobalTranscode is the persisted default conditioning profile.
type GlobalTranscode struct {
	Enabled    bool   `json:"on"`
	Codec      string `json:"codec"`
	Preset     string `json:"preset"`
	VBitrate   string `json:"vbitrate"`
	ABitrate   string `json:"abitrate"`
	Resolution string `json:"resolution"`
	FPS        string `json:"fps"`
}

// TranscodeDefaults builds a GlobalTranscode from a profile and toggle,
// typically the configured defaults handed to New.
func TranscodeDefaults(p models.TranscodeProfile, enabled bool) GlobalTranscode {
	return GlobalTranscode{
		Enabled:    enabled,
		Codec:      p.Codec,
		Preset:     p.Preset,
		VBitrate:   p.VBitrate,
		ABitrate:   p.ABitrate,
		Resolution: p.Resolution,
		FPS:        p.FPS,
	}
}

// Profile converts the persisted transcode section to a profile.
func (g GlobalTranscode) Profile() models.TranscodeProfile {
	return models.TranscodeProfile{
		Codec:      g.Codec,
		Preset:     g.Preset,
		VBitrate:   g.VBitrate,
		ABitrate:   g.ABitrate,
		Resolution: g.Resolution,
		FPS:        g.FPS,
	}
}

// GlobalStreaming is the persisted streaming-wide settings. AutoStart is a
// pointer so an absent key falls back to the configured default instead of
// reading as false.
type GlobalStreaming struct {
	Bitrate    string `json:"global_bitrate"`
	NIC        string `json:"selected_nic"`
	MonitorNIC string `json:"monitor_nic"`
	MediaDir   string `json:"media_path"`
	AutoStart  *bool  `json:"auto_start,omitempty"`
}

// legacyState is the flat pre-sectioned file layout, still accepted on load.
type legacyState struct {
	GlobalBitrate string     `json:"global_bitrate"`
	SelectedNIC   string     `json:"selected_nic"`
	MediaPath     string     `json:"media_path"`
	Channels      channelMap `json:"channels"`
}

// persistedChannel is the on-disk channel shape. The zero-valued shadow
// fields keep the transient running and thumb values out of the file.
type persistedChannel struct {
	models.Channel
	Running bool   `json:"running,omitempty"`
	Thumb   string `json:"thumb,omitempty"`
}

// stateFile is the written layout of the state document.
type stateFile struct {
	GlobalTranscode GlobalTranscode             `json:"global_transcode"`
	GlobalStreaming GlobalStreaming             `json:"global_streaming"`
	Channels        map[string]persistedChannel `json:"channels"`
}

// Store persists State to a JSON file with atomic writes.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store writing to path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: observability.WithComponent(logger, "state"),
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file returns an empty state with no
// error; a corrupt file returns the error and callers continue empty.
func (s *Store) Load() (State, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emptyState(), nil
		}
		return emptyState(), fmt.Errorf("failed to read state file: %w", err)
	}

	st, err := ParseState(raw)
	if err != nil {
		return emptyState(), fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return st, nil
}

// Save writes the state atomically via a temp file and rename. Transient
// channel fields are not persisted.
func (s *Store) Save(st State) error {
	out := stateFile{
		GlobalTranscode: st.GlobalTranscode,
		GlobalStreaming: st.GlobalStreaming,
		Channels:        make(map[string]persistedChannel, len(st.Channels)),
	}
	for k, ch := range st.Channels {
		out.Channels[k] = persistedChannel{Channel: ch}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// ParseState decodes either the sectioned or the legacy flat file layout.
func ParseState(raw []byte) (State, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return emptyState(), err
	}

	// Strip comment keys before deciding on the layout.
	for k := range top {
		if strings.HasPrefix(k, "_") {
			delete(top, k)
		}
	}
	cleaned, err := json.Marshal(top)
	if err != nil {
		return emptyState(), err
	}

	if _, sectioned := top["global_streaming"]; sectioned {
		var st State
		if err := json.Unmarshal(cleaned, &st); err != nil {
			return emptyState(), err
		}
		if st.Channels == nil {
			st.Channels = map[string]models.Channel{}
		}
		return st, nil
	}

	var legacy legacyState
	if err := json.Unmarshal(cleaned, &legacy); err != nil {
		return emptyState(), err
	}
	st := emptyState()
	st.GlobalStreaming = GlobalStreaming{
		Bitrate:  legacy.GlobalBitrate,
		NIC:      legacy.SelectedNIC,
		MediaDir: legacy.MediaPath,
	}
	if legacy.Channels != nil {
		st.Channels = legacy.Channels
	}
	return st, nil
}

func emptyState() State {
	return State{Channels: map[string]models.Channel{}}
}
