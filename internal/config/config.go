package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Inheritance markers reported by `jamscribe info`
const (
	Inherited       = "inherited"
	ProfileSpecific = "profile-specific"
	BuiltIn         = "built-in"
)

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Segment SegmentConfig `mapstructure:"segment" yaml:"segment"`
	Upload  UploadConfig  `mapstructure:"upload" yaml:"upload"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`

	// Internal field to track inheritance information for info command,
	// keyed by dotted config key ("audio.sample_rate")
	Inheritance map[string]string `mapstructure:"-" yaml:"-"`

	// Keys present in the file for this profile; nil when the profile was not read from a file
	explicit map[string]bool
}

type AudioConfig struct {
	Backend      string  `mapstructure:"backend" yaml:"backend"` // "portaudio", "pipewire", "synthetic"
	Device       string  `mapstructure:"device" yaml:"device"`   // exact device name, "default" for the system default
	Channels     int     `mapstructure:"channels" yaml:"channels"`
	SampleRate   int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	SampleFormat string  `mapstructure:"sample_format" yaml:"sample_format"` // "i16", "i32", "f32"
	BufferMin    int     `mapstructure:"buffer_min" yaml:"buffer_min"`
	BufferMax    int     `mapstructure:"buffer_max" yaml:"buffer_max"`
	ToneHz       float64 `mapstructure:"tone_hz" yaml:"tone_hz"` // synthetic backend only
}

type SegmentConfig struct {
	Duration  time.Duration `mapstructure:"duration" yaml:"duration"`
	Directory string        `mapstructure:"directory" yaml:"directory"`
	Pattern   string        `mapstructure:"pattern" yaml:"pattern"` // must contain a single %d for the slot index
	Count     int           `mapstructure:"count" yaml:"count"`     // 0 records forever
}

type UploadConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight" yaml:"max_in_flight"`
}

type LogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"` // empty disables the status server
	Advertise bool   `mapstructure:"advertise" yaml:"advertise"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:      "portaudio",
		Device:       "default",
		Channels:     2,
		SampleRate:   16000,
		SampleFormat: "i16",
		BufferMin:    0,
		BufferMax:    8192,
		ToneHz:       440,
	},
	Segment: SegmentConfig{
		Duration:  2 * time.Second,
		Directory: os.TempDir(),
		Pattern:   "recorded_%d.wav",
	},
	Upload: UploadConfig{
		Endpoint:    "http://localhost:8009/transcribe",
		Timeout:     30 * time.Second,
		MaxInFlight: 2,
	},
	Log: LogConfig{
		Path: filepath.Join(os.TempDir(), "log.txt"),
	},
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	cfg.Inheritance = make(map[string]string)
	for _, key := range trackedKeys {
		cfg.Inheritance[key] = BuiltIn
	}
	return &cfg
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Built-in values, then the default profile, then the selected profile
	result := Default()
	if defaultProfile, ok := rootConfig.Configs["default"]; ok {
		result = mergeConfigs(result, defaultProfile)
	}
	if configName != "default" {
		// Values coming from the default profile are inherited from the selected profile's point of view
		for key, status := range result.Inheritance {
			if status == ProfileSpecific {
				result.Inheritance[key] = Inherited
			}
		}
		result = mergeConfigs(result, selectedProfile)
	}

	result.Segment.Directory = expandPath(result.Segment.Directory)
	result.Log.Path = expandPath(result.Log.Path)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return result, nil
}

// ReadRootConfig reads the configuration file and returns the parsed profiles
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("JAMSCRIBE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required and cannot be empty")
	}

	for name, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("configs.%s: profile cannot be empty", name)
		}
		profile.explicit = make(map[string]bool)
		for _, key := range trackedKeys {
			if v.IsSet("configs." + name + "." + key) {
				profile.explicit[key] = true
			}
		}
	}

	return &rootConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if !v.IsSet("configs." + newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

var trackedKeys = []string{
	"audio.backend", "audio.device", "audio.channels", "audio.sample_rate", "audio.sample_format",
	"audio.buffer_min", "audio.buffer_max", "audio.tone_hz",
	"segment.duration", "segment.directory", "segment.pattern", "segment.count",
	"upload.endpoint", "upload.timeout", "upload.max_in_flight",
	"log.path", "server.addr", "server.advertise",
}

// isSet reports whether the profile sets key. Profiles read from a file know
// which keys they carry; otherwise a non-zero value counts as set.
func (c *Config) isSet(key string, nonZero bool) bool {
	if c.explicit != nil {
		return c.explicit[key]
	}
	return nonZero
}

func overlay[T comparable](result, profile *Config, key string, dst *T, v T) {
	var zero T
	if profile.isSet(key, v != zero) {
		*dst = v
		result.Inheritance[key] = ProfileSpecific
	}
}

// mergeConfigs overlays every field the profile sets on top of base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
	}
	result.explicit = nil
	result.Inheritance = make(map[string]string, len(trackedKeys))
	for _, key := range trackedKeys {
		status := Inherited
		if base != nil && base.Inheritance != nil && base.Inheritance[key] != "" {
			status = base.Inheritance[key]
		}
		result.Inheritance[key] = status
	}

	if profile == nil {
		return result
	}

	overlay(result, profile, "audio.backend", &result.Audio.Backend, profile.Audio.Backend)
	overlay(result, profile, "audio.device", &result.Audio.Device, profile.Audio.Device)
	overlay(result, profile, "audio.channels", &result.Audio.Channels, profile.Audio.Channels)
	overlay(result, profile, "audio.sample_rate", &result.Audio.SampleRate, profile.Audio.SampleRate)
	overlay(result, profile, "audio.sample_format", &result.Audio.SampleFormat, profile.Audio.SampleFormat)
	overlay(result, profile, "audio.buffer_min", &result.Audio.BufferMin, profile.Audio.BufferMin)
	overlay(result, profile, "audio.buffer_max", &result.Audio.BufferMax, profile.Audio.BufferMax)
	overlay(result, profile, "audio.tone_hz", &result.Audio.ToneHz, profile.Audio.ToneHz)

	overlay(result, profile, "segment.duration", &result.Segment.Duration, profile.Segment.Duration)
	overlay(result, profile, "segment.directory", &result.Segment.Directory, profile.Segment.Directory)
	overlay(result, profile, "segment.pattern", &result.Segment.Pattern, profile.Segment.Pattern)
	overlay(result, profile, "segment.count", &result.Segment.Count, profile.Segment.Count)

	overlay(result, profile, "upload.endpoint", &result.Upload.Endpoint, profile.Upload.Endpoint)
	overlay(result, profile, "upload.timeout", &result.Upload.Timeout, profile.Upload.Timeout)
	overlay(result, profile, "upload.max_in_flight", &result.Upload.MaxInFlight, profile.Upload.MaxInFlight)

	overlay(result, profile, "log.path", &result.Log.Path, profile.Log.Path)
	overlay(result, profile, "server.addr", &result.Server.Addr, profile.Server.Addr)
	overlay(result, profile, "server.advertise", &result.Server.Advertise, profile.Server.Advertise)

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// SlotPath returns the segment file path of slot index
func (c *Config) SlotPath(index int) string {
	return filepath.Join(c.Segment.Directory, fmt.Sprintf(c.Segment.Pattern, index))
}

// Validate checks the resolved configuration
func (c *Config) Validate() error {
	switch c.Audio.Backend {
	case "portaudio", "pipewire", "synthetic":
	default:
		return fmt.Errorf("audio.backend must be 'portaudio', 'pipewire' or 'synthetic', got: %s", c.Audio.Backend)
	}

	if strings.TrimSpace(c.Audio.Device) == "" {
		return fmt.Errorf("audio.device cannot be empty, use 'default' for the system default input")
	}

	if c.Audio.Channels < 1 || c.Audio.Channels > 32 {
		return fmt.Errorf("audio.channels must be between 1 and 32, got: %d", c.Audio.Channels)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", c.Audio.SampleRate)
	}

	switch c.Audio.SampleFormat {
	case "i16", "i32", "f32":
	default:
		return fmt.Errorf("audio.sample_format must be 'i16', 'i32' or 'f32', got: %s", c.Audio.SampleFormat)
	}

	if c.Audio.BufferMin < 0 || c.Audio.BufferMax < 0 {
		return fmt.Errorf("audio buffer sizes must be >= 0, got: %d..%d", c.Audio.BufferMin, c.Audio.BufferMax)
	}
	if c.Audio.BufferMax > 0 && c.Audio.BufferMin > c.Audio.BufferMax {
		return fmt.Errorf("audio.buffer_min (%d) must be <= audio.buffer_max (%d)", c.Audio.BufferMin, c.Audio.BufferMax)
	}

	if c.Audio.Backend == "synthetic" && c.Audio.ToneHz <= 0 {
		return fmt.Errorf("audio.tone_hz must be > 0 for the synthetic backend, got: %.1f", c.Audio.ToneHz)
	}

	if c.Segment.Duration <= 0 {
		return fmt.Errorf("segment.duration must be > 0, got: %s", c.Segment.Duration)
	}

	if c.Segment.Directory == "" {
		return fmt.Errorf("segment.directory cannot be empty")
	}

	if strings.Count(c.Segment.Pattern, "%") != 1 || !strings.Contains(c.Segment.Pattern, "%d") {
		return fmt.Errorf("segment.pattern must contain exactly one %%d verb, got: %s", c.Segment.Pattern)
	}
	if strings.ContainsRune(c.Segment.Pattern, filepath.Separator) {
		return fmt.Errorf("segment.pattern must be a file name, got: %s", c.Segment.Pattern)
	}
	if c.SlotPath(0) == c.SlotPath(1) {
		return fmt.Errorf("segment.pattern must give distinct paths for slots 0 and 1")
	}

	if c.Segment.Count < 0 {
		return fmt.Errorf("segment.count must be >= 0, got: %d", c.Segment.Count)
	}

	endpoint, err := url.Parse(c.Upload.Endpoint)
	if err != nil {
		return fmt.Errorf("upload.endpoint is not a valid URL: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return fmt.Errorf("upload.endpoint must be an http(s) URL, got: %s", c.Upload.Endpoint)
	}
	if endpoint.Host == "" {
		return fmt.Errorf("upload.endpoint must include a host, got: %s", c.Upload.Endpoint)
	}

	if c.Upload.Timeout <= 0 {
		return fmt.Errorf("upload.timeout must be > 0, got: %s", c.Upload.Timeout)
	}

	if c.Upload.MaxInFlight < 1 {
		return fmt.Errorf("upload.max_in_flight must be >= 1, got: %d", c.Upload.MaxInFlight)
	}

	if c.Log.Path == "" {
		return fmt.Errorf("log.path cannot be empty")
	}

	return nil
}
