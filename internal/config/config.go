// Package config handles application configuration for lavacast using viper.
// Configuration is sourced from a JSON file, environment variables with the
// LAVACAST_ prefix, and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/lavacast/lavacast/internal/models"
	"github.com/lavacast/lavacast/pkg/bitrate"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Streaming StreamingConfig `mapstructure:"streaming" json:"streaming"`
	Transcode TranscodeConfig `mapstructure:"transcode" json:"transcode"`
	Storage   StorageConfig   `mapstructure:"storage" json:"storage"`
	Backup    BackupConfig    `mapstructure:"backup" json:"backup"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" json:"host"`
	Port            int    `mapstructure:"port" json:"port"`
	MaxUploadGB     int    `mapstructure:"max_upload_gb" json:"max_upload_gb"`
	ReadTimeout     int    `mapstructure:"read_timeout" json:"read_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// StreamingConfig contains multicast streaming settings. MulticastBase is
// the first three octets of the multicast range; channel N streams to
// MulticastBase.(N mod 254 + 1) on port BasePort + 2N.
type StreamingConfig struct {
	MaxChannels    int    `mapstructure:"max_channels" json:"max_channels"`
	BasePort       int    `mapstructure:"base_port" json:"base_port"`
	MulticastBase  string `mapstructure:"multicast_base" json:"multicast_base"`
	DefaultEncap   string `mapstructure:"default_encap" json:"default_encap"`
	DefaultLoop    bool   `mapstructure:"default_loop" json:"default_loop"`
	DefaultBitrate string `mapstructure:"default_bitrate" json:"default_bitrate"`
	NIC            string `mapstructure:"nic" json:"nic"`
	MonitorNIC     string `mapstructure:"monitor_nic" json:"monitor_nic"`
	AutoStart      bool   `mapstructure:"auto_start" json:"auto_start"`
}

// TranscodeConfig contains the default conditioning profile applied when a
// channel has no profile of its own, plus the ffmpeg binary locations.
type TranscodeConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path" json:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path" json:"ffprobe_path"`
	Codec       string `mapstructure:"codec" json:"codec"`
	Preset      string `mapstructure:"preset" json:"preset"`
	VBitrate    string `mapstructure:"vbitrate" json:"vbitrate"`
	ABitrate    string `mapstructure:"abitrate" json:"abitrate"`
	Resolution  string `mapstructure:"resolution" json:"resolution"`
	FPS         string `mapstructure:"fps" json:"fps"`
	GlobalOn    bool   `mapstructure:"global_on" json:"global_on"`
}

// StorageConfig contains filesystem locations for media, state, and logs.
type StorageConfig struct {
	MediaDir    string `mapstructure:"media_dir" json:"media_dir"`
	StateFile   string `mapstructure:"state_file" json:"state_file"`
	LogFile     string `mapstructure:"log_file" json:"log_file"`
	MaxLogLines int    `mapstructure:"max_log_lines" json:"max_log_lines"`
}

// BackupConfig contains scheduled state snapshot settings. Schedule is a
// six-field cron expression with seconds.
type BackupConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	Directory string `mapstructure:"directory" json:"directory"`
	Schedule  string `mapstructure:"schedule" json:"schedule"`
	Retention int    `mapstructure:"retention" json:"retention"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"`
	AddSource  bool   `mapstructure:"add_source" json:"add_source"`
	TimeFormat string `mapstructure:"time_format" json:"time_format"`
}

// Load reads configuration from the given file (or the default search path
// when file is empty), environment variables, and defaults.
func Load(file string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("json")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("lavacast.config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lavacast")
		v.AddConfigPath("$HOME/.lavacast")
	}

	v.SetEnvPrefix("LAVACAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.max_upload_gb", 20)
	v.SetDefault("server.read_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10)

	// Streaming defaults
	v.SetDefault("streaming.max_channels", 40)
	v.SetDefault("streaming.base_port", 5100)
	v.SetDefault("streaming.multicast_base", "239.1.1")
	v.SetDefault("streaming.default_encap", models.EncapUDP)
	v.SetDefault("streaming.default_loop", true)
	v.SetDefault("streaming.default_bitrate", "")
	v.SetDefault("streaming.nic", "")
	v.SetDefault("streaming.monitor_nic", "")
	v.SetDefault("streaming.auto_start", true)

	// Transcode defaults
	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcode.ffprobe_path", "ffprobe")
	v.SetDefault("transcode.codec", models.CodecH264)
	v.SetDefault("transcode.preset", "fast")
	v.SetDefault("transcode.vbitrate", "8M")
	v.SetDefault("transcode.abitrate", "192k")
	v.SetDefault("transcode.resolution", "1080p")
	v.SetDefault("transcode.fps", "original")
	v.SetDefault("transcode.global_on", false)

	// Storage defaults
	v.SetDefault("storage.media_dir", "./media")
	v.SetDefault("storage.state_file", "./lavacast.state.json")
	v.SetDefault("storage.log_file", "./lavacast.log.json")
	v.SetDefault("storage.max_log_lines", 2000)

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.directory", "./backups")
	v.SetDefault("backup.schedule", "0 0 2 * * *")
	v.SetDefault("backup.retention", 7)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadGB < 1 {
		return fmt.Errorf("invalid max upload size: %d GB", c.Server.MaxUploadGB)
	}

	s := c.Streaming
	if s.MaxChannels < 1 || s.MaxChannels > 254 {
		return fmt.Errorf("max_channels must be in [1, 254], got %d", s.MaxChannels)
	}
	if s.BasePort < 1 || s.BasePort+2*(s.MaxChannels-1) > 65535 {
		return fmt.Errorf("base_port %d leaves no room for %d channels", s.BasePort, s.MaxChannels)
	}
	if octets := strings.Split(s.MulticastBase, "."); len(octets) != 3 {
		return fmt.Errorf("multicast_base must be three octets, got %q", s.MulticastBase)
	}
	if s.DefaultEncap != models.EncapUDP && s.DefaultEncap != models.EncapRTP {
		return fmt.Errorf("invalid default encapsulation: %q", s.DefaultEncap)
	}
	if s.DefaultBitrate != "" && !bitrate.Valid(s.DefaultBitrate) {
		return fmt.Errorf("invalid default bitrate: %q", s.DefaultBitrate)
	}

	if _, err := c.DefaultProfile().Sanitize(models.DefaultProfile()); err != nil {
		return fmt.Errorf("invalid transcode codec: %q", c.Transcode.Codec)
	}

	if c.Backup.Retention < 1 {
		return fmt.Errorf("backup retention must be positive, got %d", c.Backup.Retention)
	}

	return nil
}

// DefaultProfile returns the configured default transcode profile.
func (c *Config) DefaultProfile() models.TranscodeProfile {
	return models.TranscodeProfile{
		Codec:      c.Transcode.Codec,
		Preset:     c.Transcode.Preset,
		VBitrate:   c.Transcode.VBitrate,
		ABitrate:   c.Transcode.ABitrate,
		Resolution: c.Transcode.Resolution,
		FPS:        c.Transcode.FPS,
	}
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadGB) << 30
}
