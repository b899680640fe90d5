package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Servers         []string        `mapstructure:"servers"`
	Room            string          `mapstructure:"room"`
	Display         string          `mapstructure:"display"`
	Pin             string          `mapstructure:"pin"`
	LogLevel        string          `mapstructure:"log_level"`
	HTTP            HTTPConfig      `mapstructure:"http"`
	Publish         PublishConfig   `mapstructure:"publish"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"`
	RemovalDebounce time.Duration   `mapstructure:"removal_debounce"`
	Keepalive       time.Duration   `mapstructure:"keepalive"`
	ICEServers      []string        `mapstructure:"ice_servers"`
	Streaming       StreamingConfig `mapstructure:"streaming"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"`
}

type PublishConfig struct {
	Camera     bool `mapstructure:"camera"`
	Microphone bool `mapstructure:"microphone"`
}

type StreamingConfig struct {
	// Mountpoint is the streaming mountpoint to watch; empty or "0" disables it.
	Mountpoint string `mapstructure:"mountpoint"`
	Pin        string `mapstructure:"pin"`
}

func (s StreamingConfig) Enabled() bool { return s.Mountpoint != "" && s.Mountpoint != "0" }

// flag name -> config key
var flagKeys = map[string]string{
	"server":             "servers",
	"room":               "room",
	"display":            "display",
	"pin":                "pin",
	"log-level":          "log_level",
	"http-addr":          "http.addr",
	"publish-camera":     "publish.camera",
	"publish-microphone": "publish.microphone",
	"mountpoint":         "streaming.mountpoint",
}

// Flags returns the command line flags Load understands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("videoroom", pflag.ContinueOnError)
	fs.StringSlice("server", nil, "gateway WebSocket URL, tried in order (repeatable)")
	fs.String("room", "", "videoroom id")
	fs.String("display", "", "display name")
	fs.String("pin", "", "room pin")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("http-addr", "", "status API listen address")
	fs.Bool("publish-camera", false, "publish video after joining")
	fs.Bool("publish-microphone", false, "publish audio after joining")
	fs.String("mountpoint", "", "streaming mountpoint to watch")
	return fs
}

// Load reads config/config.<CONFIG_ENV>.yaml, then VIDEOROOM_* environment
// variables, then the flags that were set. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("servers", []string{"ws://localhost:8188"})
	v.SetDefault("room", "1234")
	v.SetDefault("display", "videoroom")
	v.SetDefault("pin", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("publish.camera", false)
	v.SetDefault("publish.microphone", false)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("removal_debounce", "200ms")
	v.SetDefault("keepalive", "30s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("streaming.mountpoint", "")
	v.SetDefault("streaming.pin", "")

	v.SetEnvPrefix("VIDEOROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no gateway servers configured")
	}
	log.Info().Str("module", "config").Strs("servers", cfg.Servers).Str("room", cfg.Room).Str("http", cfg.HTTP.Addr).Msg("config ready")
	return &cfg, nil
}
