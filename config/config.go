// Package config loads the TOML configuration file into an immutable
// snapshot. The snapshot is read once at startup and passed down at
// construction; nothing re-reads it mid-session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"murmur/backend"
	"murmur/command"
	"murmur/engine"
	"murmur/vad"
)

type Config struct {
	Audio    Audio     `toml:"audio"`
	VAD      VAD       `toml:"vad"`
	Backend  Backend   `toml:"backend"`
	Process  Process   `toml:"process"`
	Engine   Engine    `toml:"engine"`
	Commands []Command `toml:"commands"`
	Log      Log       `toml:"log"`
}

type Audio struct {
	DeviceIndex int `toml:"device_index"` // negative = system default
}

// VAD durations are seconds, matching how people reason about speech.
type VAD struct {
	EnergyThreshold float64 `toml:"energy_threshold"`
	SilenceS        float64 `toml:"silence_duration_s"`
	MinUtteranceS   float64 `toml:"min_utterance_s"`
	FrameS          float64 `toml:"frame_duration_s"`
	MaxUtteranceS   float64 `toml:"max_utterance_s"`
}

type Backend struct {
	Kind         string  `toml:"kind"` // "streaming" or "process"
	Language     string  `toml:"language"`
	Model        string  `toml:"model"`
	QueueSize    int     `toml:"queue_size"`
	StopTimeoutS float64 `toml:"stop_timeout_s"`
}

type Process struct {
	Executable   string   `toml:"executable"`
	ModelDir     string   `toml:"model_dir"`
	ExtraArgs    []string `toml:"extra_args"`
	GracePeriodS float64  `toml:"grace_period_s"`
}

type Engine struct {
	Kind      string `toml:"kind"` // "whisper" or "remote"
	ModelPath string `toml:"model_path"`
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
}

type Command struct {
	Keyword string `toml:"keyword"`
	Action  string `toml:"action"` // "key" or "text"
	Value   string `toml:"value"`
}

type Log struct {
	Dir string `toml:"dir"`
}

// Default returns the built-in configuration: streaming whisper backend
// on the system default device with the stock VAD tuning.
func Default() Config {
	return Config{
		Audio: Audio{DeviceIndex: -1},
		VAD: VAD{
			EnergyThreshold: vad.DefaultEnergyThreshold,
			SilenceS:        vad.DefaultSilenceDuration.Seconds(),
			MinUtteranceS:   vad.DefaultMinUtterance.Seconds(),
			FrameS:          vad.DefaultFrameDuration.Seconds(),
			MaxUtteranceS:   vad.DefaultMaxUtterance.Seconds(),
		},
		Backend: Backend{
			Kind:         "streaming",
			Language:     "en",
			StopTimeoutS: 3,
		},
		Process: Process{
			Executable:   "nerd-dictation",
			GracePeriodS: 1.5,
		},
		Engine: Engine{Kind: "whisper"},
	}
}

// Load reads path over the defaults. A missing file is not an error:
// the defaults are returned so first runs work without any setup.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "murmur.toml"
	}
	return filepath.Join(dir, "murmur", "murmur.toml")
}

func (c Config) Validate() error {
	switch c.Backend.Kind {
	case "streaming", "process":
	default:
		return fmt.Errorf("backend kind %q must be streaming or process", c.Backend.Kind)
	}
	if c.Backend.Kind == "streaming" {
		switch c.Engine.Kind {
		case "whisper", "remote", "fake":
		default:
			return fmt.Errorf("engine kind %q must be whisper or remote", c.Engine.Kind)
		}
	}
	if err := c.VADConfig().Validate(); err != nil {
		return err
	}
	for _, cmd := range c.Commands {
		switch cmd.Action {
		case "key", "text":
		default:
			return fmt.Errorf("command %q: action %q must be key or text", cmd.Keyword, cmd.Action)
		}
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) VADConfig() vad.Config {
	return vad.Config{
		EnergyThreshold: c.VAD.EnergyThreshold,
		SilenceDuration: seconds(c.VAD.SilenceS),
		MinUtterance:    seconds(c.VAD.MinUtteranceS),
		FrameDuration:   seconds(c.VAD.FrameS),
		MaxUtterance:    seconds(c.VAD.MaxUtteranceS),
	}
}

func (c Config) StreamingConfig() backend.StreamingConfig {
	return backend.StreamingConfig{
		VAD:         c.VADConfig(),
		DeviceIndex: c.Audio.DeviceIndex,
		QueueSize:   c.Backend.QueueSize,
		StopTimeout: seconds(c.Backend.StopTimeoutS),
	}
}

func (c Config) ProcessConfig() backend.ProcessConfig {
	return backend.ProcessConfig{
		Executable:  c.Process.Executable,
		ModelDir:    c.Process.ModelDir,
		ExtraArgs:   append([]string(nil), c.Process.ExtraArgs...),
		GracePeriod: seconds(c.Process.GracePeriodS),
		StopTimeout: seconds(c.Backend.StopTimeoutS),
	}
}

func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		Kind:      c.Engine.Kind,
		ModelPath: c.Engine.ModelPath,
		URL:       c.Engine.URL,
		APIKey:    c.Engine.APIKey,
		Model:     c.Engine.Model,
		Language:  c.Backend.Language,
	}
}

// RouterCommands converts the [[commands]] tables to router commands.
func (c Config) RouterCommands() []command.Command {
	cmds := make([]command.Command, 0, len(c.Commands))
	for _, cc := range c.Commands {
		kind := command.KeyPress
		if cc.Action == "text" {
			kind = command.TypeText
		}
		cmds = append(cmds, command.Command{
			Keyword: cc.Keyword,
			Action:  command.Action{Kind: kind, Value: cc.Value},
		})
	}
	return cmds
}
