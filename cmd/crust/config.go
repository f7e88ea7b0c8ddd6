package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the crust configuration file (~/.config/crust/config.yaml).
// Sampling and engine fields are pointers so an absent key is
// distinguishable from an explicit zero. CRUST_* environment variables
// overlay the file; explicitly set CLI flags win over both.
type Config struct {
	ModelsDir string `yaml:"models_dir,omitempty" env:"CRUST_MODELS_DIR"`
	Model     string `yaml:"model,omitempty" env:"CRUST_MODEL"`
	Template  string `yaml:"template,omitempty" env:"CRUST_TEMPLATE"`

	ContextSize *int64 `yaml:"context_size,omitempty" env:"CRUST_CONTEXT_SIZE"`
	BatchSize   *int64 `yaml:"batch_size,omitempty" env:"CRUST_BATCH_SIZE"`
	Threads     *int64 `yaml:"threads,omitempty" env:"CRUST_THREADS"`
	GPULayers   *int64 `yaml:"gpu_layers,omitempty" env:"CRUST_GPU_LAYERS"`

	MaxTokens        *int64   `yaml:"max_tokens,omitempty" env:"CRUST_MAX_TOKENS"`
	Temperature      *float64 `yaml:"temperature,omitempty" env:"CRUST_TEMPERATURE"`
	TopK             *int64   `yaml:"top_k,omitempty" env:"CRUST_TOP_K"`
	TopP             *float64 `yaml:"top_p,omitempty" env:"CRUST_TOP_P"`
	MinP             *float64 `yaml:"min_p,omitempty" env:"CRUST_MIN_P"`
	RepeatPenalty    *float64 `yaml:"repeat_penalty,omitempty" env:"CRUST_REPEAT_PENALTY"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty" env:"CRUST_FREQUENCY_PENALTY"`
	PresencePenalty  *float64 `yaml:"presence_penalty,omitempty" env:"CRUST_PRESENCE_PENALTY"`
	PenaltyLastN     *int64   `yaml:"penalty_last_n,omitempty" env:"CRUST_PENALTY_LAST_N"`
	Seed             *int64   `yaml:"seed,omitempty" env:"CRUST_SEED"`

	SystemPrompt string `yaml:"system_prompt,omitempty" env:"CRUST_SYSTEM_PROMPT"`

	StreamMode string `yaml:"stream_mode,omitempty" env:"CRUST_STREAM_MODE"`
	LogLevel   string `yaml:"log_level,omitempty" env:"CRUST_LOG_LEVEL"`
	LogFormat  string `yaml:"log_format,omitempty" env:"CRUST_LOG_FORMAT"`

	TranscriptsDir string `yaml:"transcripts_dir,omitempty" env:"CRUST_TRANSCRIPTS_DIR"`
	SessionTTL     string `yaml:"session_ttl,omitempty" env:"CRUST_SESSION_TTL"`
	MaxSessions    *int64 `yaml:"max_sessions,omitempty" env:"CRUST_MAX_SESSIONS"`
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crust")
}

func configPath() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// LoadConfig reads the config file and overlays CRUST_* environment
// variables. A missing file is not an error; a malformed one is.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := configPath(); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse CRUST_* environment: %w", err)
	}
	return cfg, nil
}

// sessionTTL parses the configured idle TTL; bad values fall back to the
// default so a typo cannot silently disable eviction.
func (c Config) sessionTTL() time.Duration {
	if c.SessionTTL == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

func (c Config) maxSessions() int {
	if c.MaxSessions == nil {
		return 0
	}
	return int(*c.MaxSessions)
}

func (c Config) transcriptsDir() string {
	if c.TranscriptsDir != "" {
		return c.TranscriptsDir
	}
	dir := configDir()
	if dir == "" {
		return "transcripts"
	}
	return filepath.Join(dir, "transcripts")
}

// applyEngineConfig layers config values under the engine flags that were
// not set explicitly.
func applyEngineConfig(cmd *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !isSet(cmd, "models-path", "path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.Model != "" && !isSet(cmd, "model", "m") {
		modelPath = cfg.Model
	}
	if cfg.Template != "" && !isSet(cmd, "template") {
		templateName = cfg.Template
	}
	if cfg.ContextSize != nil && !isSet(cmd, "max-context", "max-ctx", "ctx", "c") {
		contextSize = *cfg.ContextSize
	}
	if cfg.BatchSize != nil && !isSet(cmd, "batch-size", "batch") {
		batchSize = *cfg.BatchSize
	}
	if cfg.Threads != nil && !isSet(cmd, "threads") {
		threads = *cfg.Threads
	}
	if cfg.GPULayers != nil && !isSet(cmd, "gpu-layers", "ngl") {
		gpuLayers = *cfg.GPULayers
	}
}

// applySamplingConfig layers config values under the sampling flags that
// were not set explicitly.
func applySamplingConfig(cmd *cli.Command, cfg Config) {
	if cfg.MaxTokens != nil && !isSet(cmd, "max-tokens", "n", "steps") {
		maxTokens = *cfg.MaxTokens
	}
	if cfg.Temperature != nil && !isSet(cmd, "temp", "temperature") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !isSet(cmd, "top-k", "top_k") {
		topK = *cfg.TopK
	}
	if cfg.TopP != nil && !isSet(cmd, "top-p", "top_p") {
		topP = *cfg.TopP
	}
	if cfg.MinP != nil && !isSet(cmd, "min-p", "min_p") {
		minP = *cfg.MinP
	}
	if cfg.RepeatPenalty != nil && !isSet(cmd, "repeat-penalty", "repeat_penalty") {
		repeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.FrequencyPenalty != nil && !isSet(cmd, "frequency-penalty") {
		frequencyPenalty = *cfg.FrequencyPenalty
	}
	if cfg.PresencePenalty != nil && !isSet(cmd, "presence-penalty") {
		presencePenalty = *cfg.PresencePenalty
	}
	if cfg.PenaltyLastN != nil && !isSet(cmd, "penalty-last-n", "repeat-last-n") {
		penaltyLastN = *cfg.PenaltyLastN
	}
	if cfg.Seed != nil && !isSet(cmd, "seed") {
		seed = *cfg.Seed
	}
}

// applyOutputConfig layers config values under the output flags that were
// not set explicitly.
func applyOutputConfig(cmd *cli.Command, cfg Config) {
	if cfg.StreamMode != "" && !isSet(cmd, "stream-mode") {
		streamMode = cfg.StreamMode
	}
	if cfg.LogLevel != "" && !isSet(cmd, "log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !isSet(cmd, "log-format") {
		logFormat = cfg.LogFormat
	}
}

// Settings is the fully resolved configuration as shown by `config show`.
type Settings struct {
	ModelsDir string `yaml:"models_dir" json:"models_dir"`
	Model     string `yaml:"model" json:"model"`
	Template  string `yaml:"template" json:"template"`

	ContextSize int64 `yaml:"context_size" json:"context_size"`
	BatchSize   int64 `yaml:"batch_size" json:"batch_size"`
	Threads     int64 `yaml:"threads" json:"threads"`
	GPULayers   int64 `yaml:"gpu_layers" json:"gpu_layers"`

	MaxTokens        int64   `yaml:"max_tokens" json:"max_tokens"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	TopK             int64   `yaml:"top_k" json:"top_k"`
	TopP             float64 `yaml:"top_p" json:"top_p"`
	MinP             float64 `yaml:"min_p" json:"min_p"`
	RepeatPenalty    float64 `yaml:"repeat_penalty" json:"repeat_penalty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" json:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty" json:"presence_penalty"`
	PenaltyLastN     int64   `yaml:"penalty_last_n" json:"penalty_last_n"`
	Seed             int64   `yaml:"seed" json:"seed"`

	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`

	StreamMode string `yaml:"stream_mode" json:"stream_mode"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogFormat  string `yaml:"log_format" json:"log_format"`

	TranscriptsDir string `yaml:"transcripts_dir" json:"transcripts_dir"`
	SessionTTL     string `yaml:"session_ttl" json:"session_ttl"`
	MaxSessions    int64  `yaml:"max_sessions" json:"max_sessions"`
}

// defaultSettings mirrors the flag defaults in flags.go.
func defaultSettings() Settings {
	return Settings{
		Template:       "llama3",
		ContextSize:    4096,
		BatchSize:      512,
		Threads:        6,
		MaxTokens:      1000,
		Temperature:    0.8,
		TopK:           45,
		TopP:           0.95,
		MinP:           0,
		RepeatPenalty:  1.1,
		PenaltyLastN:   64,
		Seed:           -1,
		StreamMode:     "instant",
		LogLevel:       "info",
		LogFormat:      "pretty",
		SessionTTL:     "30m",
		TranscriptsDir: Config{}.transcriptsDir(),
	}
}

// resolveSettings overlays cfg onto the defaults.
func resolveSettings(cfg Config) Settings {
	s := defaultSettings()
	if cfg.ModelsDir != "" {
		s.ModelsDir = cfg.ModelsDir
	}
	if cfg.Model != "" {
		s.Model = cfg.Model
	}
	if cfg.Template != "" {
		s.Template = cfg.Template
	}
	if cfg.ContextSize != nil {
		s.ContextSize = *cfg.ContextSize
	}
	if cfg.BatchSize != nil {
		s.BatchSize = *cfg.BatchSize
	}
	if cfg.Threads != nil {
		s.Threads = *cfg.Threads
	}
	if cfg.GPULayers != nil {
		s.GPULayers = *cfg.GPULayers
	}
	if cfg.MaxTokens != nil {
		s.MaxTokens = *cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		s.Temperature = *cfg.Temperature
	}
	if cfg.TopK != nil {
		s.TopK = *cfg.TopK
	}
	if cfg.TopP != nil {
		s.TopP = *cfg.TopP
	}
	if cfg.MinP != nil {
		s.MinP = *cfg.MinP
	}
	if cfg.RepeatPenalty != nil {
		s.RepeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.FrequencyPenalty != nil {
		s.FrequencyPenalty = *cfg.FrequencyPenalty
	}
	if cfg.PresencePenalty != nil {
		s.PresencePenalty = *cfg.PresencePenalty
	}
	if cfg.PenaltyLastN != nil {
		s.PenaltyLastN = *cfg.PenaltyLastN
	}
	if cfg.Seed != nil {
		s.Seed = *cfg.Seed
	}
	if cfg.SystemPrompt != "" {
		s.SystemPrompt = cfg.SystemPrompt
	}
	if cfg.StreamMode != "" {
		s.StreamMode = cfg.StreamMode
	}
	if cfg.LogLevel != "" {
		s.LogLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		s.LogFormat = cfg.LogFormat
	}
	if cfg.TranscriptsDir != "" {
		s.TranscriptsDir = cfg.TranscriptsDir
	}
	if cfg.SessionTTL != "" {
		s.SessionTTL = cfg.SessionTTL
	}
	if cfg.MaxSessions != nil {
		s.MaxSessions = *cfg.MaxSessions
	}
	return s
}

func configCmd() *cli.Command {
	var (
		asJSON bool
		force  bool
	)

	return &cli.Command{
		Name:  "config",
		Usage: "Show or initialize the crust configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration (file + environment + defaults)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "emit JSON instead of YAML",
						Destination: &asJSON,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := LoadConfig()
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
					}
					settings := resolveSettings(cfg)
					if asJSON {
						data, err := json.MarshalIndent(settings, "", "  ")
						if err != nil {
							return cli.Exit(fmt.Sprintf("error: encode config: %v", err), 1)
						}
						fmt.Println(string(data))
						return nil
					}
					data, err := yaml.Marshal(settings)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: encode config: %v", err), 1)
					}
					fmt.Print(string(data))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a config file populated with the defaults",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "force",
						Usage:       "overwrite an existing config file",
						Destination: &force,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := configPath()
					if path == "" {
						return cli.Exit("error: cannot determine the user config directory", 1)
					}
					if _, err := os.Stat(path); err == nil && !force {
						return cli.Exit(fmt.Sprintf("%s already exists (use --force to overwrite)", path), 1)
					}
					data, err := yaml.Marshal(defaultSettings())
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: encode defaults: %v", err), 1)
					}
					if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
						return cli.Exit(fmt.Sprintf("error: create config dir: %v", err), 1)
					}
					if err := os.WriteFile(path, data, 0o644); err != nil {
						return cli.Exit(fmt.Sprintf("error: write config: %v", err), 1)
					}
					fmt.Println(path)
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := configPath()
					if path == "" {
						return cli.Exit("error: cannot determine the user config directory", 1)
					}
					fmt.Println(path)
					return nil
				},
			},
		},
	}
}
