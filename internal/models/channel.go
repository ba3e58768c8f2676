package models

import "fmt"

// Channel is the full description of one multicast channel: the media it
// serves, its network endpoint, and the transcode profile used to condition
// the source. The JSON shape is what the state file and the REST API expose.
type Channel struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`

	// SrcPath is the original upload when the served file is a conditioned
	// copy, empty when the channel streams the original directly.
	SrcPath string `json:"src_path,omitempty"`

	IP      string `json:"ip"`
	Port    int    `json:"port"`
	Encap   string `json:"encap"`
	Bitrate string `json:"bitrate"`
	Loop    bool   `json:"loop"`
	NIC     string `json:"nic,omitempty"`

	Codec    string `json:"codec"`
	Preset   string `json:"preset"`
	VBitrate string `json:"vbitrate"`
	ABitrate string `json:"abitrate"`

	Running       bool   `json:"running"`
	PreTranscoded bool   `json:"pre_transcoded"`
	Thumb         string `json:"thumb,omitempty"`
}

// Address returns the channel's multicast endpoint as host:port.
func (c Channel) Address() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// Profile extracts the channel's transcode profile. Resolution and FPS are
// not persisted per channel; they apply at conditioning time only.
func (c Channel) Profile() TranscodeProfile {
	return TranscodeProfile{
		Codec:    c.Codec,
		Preset:   c.Preset,
		VBitrate: c.VBitrate,
		ABitrate: c.ABitrate,
	}
}

// NetKeys is the set of channel fields whose change affects the running
// ffmpeg invocation. Updating any of these on a live channel requires a
// worker restart; the remaining keys are metadata for future transcodes.
var NetKeys = map[string]bool{
	"ip":      true,
	"port":    true,
	"encap":   true,
	"bitrate": true,
	"loop":    true,
	"nic":     true,
}

// MediaInfo is the probe summary of a media file, used to decide whether a
// source already matches its target profile.
type MediaInfo struct {
	VideoCodec   string  `json:"video_codec"`
	AudioCodec   string  `json:"audio_codec"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FPS          float64 `json:"fps"`
	VideoBitrate int64   `json:"video_bitrate"`
	AudioBitrate int64   `json:"audio_bitrate"`
	Duration     float64 `json:"duration"`
}

// Empty reports whether the probe produced no usable stream information.
func (m MediaInfo) Empty() bool {
	return m.VideoCodec == "" && m.AudioCodec == "" && m.Width == 0 && m.Height == 0
}
