// Package config provides application configuration management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-videoencoder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. ENCODER_WEB_PORT.
const EnvPrefix = "ENCODER"

// Configuration defaults.
const (
	DefaultWebHost         = "0.0.0.0"
	DefaultWebPort         = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultLogCapacity     = 1000
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultEmailSMTPPort   = 587
	DefaultEmailFromName   = "ZuidWest Video Encoder"
	maxLogCapacity         = 100000
)

// WebConfig contains web server configuration.
type WebConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// FFmpegConfig contains the encoder command line settings.
type FFmpegConfig struct {
	Binary     string `mapstructure:"binary"`
	VideoCodec string `mapstructure:"video_codec"`
	Preset     string `mapstructure:"preset"`
	AudioCodec string `mapstructure:"audio_codec"`
	Format     string `mapstructure:"format"`
}

// SupervisorConfig contains process supervision settings.
type SupervisorConfig struct {
	LogCapacity int           `mapstructure:"log_capacity"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// EmailConfig contains email notification configuration.
type EmailConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	FromName   string `mapstructure:"from_name"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Recipients string `mapstructure:"recipients"`
}

// NotificationsConfig contains all notification configuration.
type NotificationsConfig struct {
	WebhookURL string      `mapstructure:"webhook_url"`
	LogPath    string      `mapstructure:"log_path"`
	Email      EmailConfig `mapstructure:"email"`
}

// UpdateCheckConfig controls the GitHub release check.
type UpdateCheckConfig struct {
	Repo string `mapstructure:"repo"` // owner/name, empty disables the check
}

// Config holds all application configuration. It is read once at startup
// and never written back.
type Config struct {
	Web           WebConfig           `mapstructure:"web"`
	FFmpeg        FFmpegConfig        `mapstructure:"ffmpeg"`
	Supervisor    SupervisorConfig    `mapstructure:"supervisor"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	UpdateCheck   UpdateCheckConfig   `mapstructure:"update_check"`
}

// SetDefaults registers default values on v. Every key is registered so
// that environment overrides resolve through AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("web.host", DefaultWebHost)
	v.SetDefault("web.port", DefaultWebPort)
	v.SetDefault("web.read_timeout", DefaultReadTimeout)
	v.SetDefault("web.write_timeout", DefaultWriteTimeout)
	v.SetDefault("web.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("ffmpeg.binary", ffmpeg.DefaultBinary)
	v.SetDefault("ffmpeg.video_codec", ffmpeg.DefaultVideoCodec)
	v.SetDefault("ffmpeg.preset", ffmpeg.DefaultPreset)
	v.SetDefault("ffmpeg.audio_codec", ffmpeg.DefaultAudioCodec)
	v.SetDefault("ffmpeg.format", ffmpeg.DefaultFormat)

	v.SetDefault("supervisor.log_capacity", DefaultLogCapacity)
	v.SetDefault("supervisor.stop_timeout", types.StopTimeout)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.log_path", "")
	v.SetDefault("notifications.email.host", "")
	v.SetDefault("notifications.email.port", DefaultEmailSMTPPort)
	v.SetDefault("notifications.email.from_name", DefaultEmailFromName)
	v.SetDefault("notifications.email.username", "")
	v.SetDefault("notifications.email.password", "")
	v.SetDefault("notifications.email.recipients", "")

	v.SetDefault("update_check.repo", "")
}

// New returns a Config populated with defaults only.
func New() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// Load reads configuration from filePath and the environment.
// A missing file is not an error; defaults and environment values apply.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, util.WrapError("read config", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, util.WrapError("parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, util.WrapError("validate config", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	if v := util.ValidatePort("web.port", c.Web.Port); v != nil {
		return v
	}
	if v := util.ValidateRange("supervisor.log_capacity", c.Supervisor.LogCapacity, types.LogLimit, maxLogCapacity); v != nil {
		return v
	}
	if c.Supervisor.StopTimeout <= 0 {
		return fmt.Errorf("supervisor.stop_timeout must be positive, got %s", c.Supervisor.StopTimeout)
	}
	if v := util.ValidateRequired("ffmpeg.binary", c.FFmpeg.Binary); v != nil {
		return v
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Address returns the host:port the web server listens on.
func (c *Config) Address() string {
	return c.Web.Address()
}

// Address returns the host:port to listen on.
func (w WebConfig) Address() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// Preset returns the encoder command line settings.
func (c *Config) Preset() ffmpeg.Preset {
	return ffmpeg.Preset{
		Binary:     c.FFmpeg.Binary,
		VideoCodec: c.FFmpeg.VideoCodec,
		Preset:     c.FFmpeg.Preset,
		AudioCodec: c.FFmpeg.AudioCodec,
		Format:     c.FFmpeg.Format,
	}
}

// HasWebhook returns true if a webhook URL is configured.
func (n *NotificationsConfig) HasWebhook() bool {
	return n.WebhookURL != ""
}

// HasEmail returns true if email notifications are configured.
func (n *NotificationsConfig) HasEmail() bool {
	return n.Email.Host != "" && n.Email.Recipients != ""
}

// HasLogPath returns true if a log path is configured.
func (n *NotificationsConfig) HasLogPath() bool {
	return n.LogPath != ""
}
