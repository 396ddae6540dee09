package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"

	can "github.com/canview/canview/pkg/can"
)

// Config is the file backed tool configuration. Every field can also
// be forced from the command line with repeated -set key=value flags,
// nested fields use dotted keys e.g. -set mirror.accumulate=true.
type Config struct {
	Interface string   `toml:"interface" mapstructure:"interface"`
	Channel   string   `toml:"channel" mapstructure:"channel"`
	Bitrate   int      `toml:"bitrate" mapstructure:"bitrate"`
	Schemas   []string `toml:"schemas" mapstructure:"schemas"`
	Filters   []string `toml:"filters" mapstructure:"filters"`
	Mask      string   `toml:"mask" mapstructure:"mask"`
	QueueSize int      `toml:"queue_size" mapstructure:"queue_size"`
	LogLevel  string   `toml:"log_level" mapstructure:"log_level"`
	Record    string   `toml:"record" mapstructure:"record"`

	Mirror MirrorConfig `toml:"mirror" mapstructure:"mirror"`
}

type MirrorConfig struct {
	Enabled       bool   `toml:"enabled" mapstructure:"enabled"`
	Dir           string `toml:"dir" mapstructure:"dir"`
	Accumulate    bool   `toml:"accumulate" mapstructure:"accumulate"`
	Preserve      bool   `toml:"preserve" mapstructure:"preserve"`
	Timestamps    bool   `toml:"timestamps" mapstructure:"timestamps"`
	WatchAndSend  bool   `toml:"watch_and_send" mapstructure:"watch_and_send"`
	ForceExtended bool   `toml:"force_extended" mapstructure:"force_extended"`
}

func defaultConfig() Config {
	cfg := Config{
		Bitrate:  500000,
		LogLevel: "info",
	}
	// Platform defaults are best effort, an unsupported system just
	// leaves them empty for the user to fill in
	if channel, err := can.DefaultChannel(); err == nil {
		cfg.Channel = channel
	}
	if canInterface, err := can.DefaultInterface(); err == nil {
		cfg.Interface = canInterface
	}
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("reading %v : %w", path, err)
	}
	return cfg, nil
}

// applyOverrides merges -set key=value pairs on top of the loaded
// configuration. Values go through weak typing so "true" and "500000"
// land in bool and int fields without fuss.
func applyOverrides(cfg *Config, pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	overrides := make(map[string]any)
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("malformed override %q, expected key=value", pair)
		}
		node := overrides
		parts := strings.Split(key, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(overrides)
}
