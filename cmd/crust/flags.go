package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crust/internal/inference"
	"github.com/samcharles93/crust/internal/llama"
	"github.com/samcharles93/crust/internal/logger"
)

// Flag destinations shared by the chat and run commands. Config-file and
// environment values are layered underneath by the apply* helpers in
// config.go; an explicitly set flag always wins.
var (
	modelPath    string
	modelsPath   string
	templateName string
	contextSize  int64
	batchSize    int64
	threads      int64
	gpuLayers    int64
	noMMap       bool
	useMLock     bool

	maxTokens        int64
	temperature      float64
	topK             int64
	topP             float64
	minP             float64
	repeatPenalty    float64
	frequencyPenalty float64
	presencePenalty  float64
	penaltyLastN     int64
	seed             int64

	streamMode string
	logLevel   string
	logFormat  string
)

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .gguf model file",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory containing .gguf models",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "template",
			Usage:       "prompt template (llama3, chatml, plain, raw)",
			Value:       "llama3",
			Destination: &templateName,
		},
		&cli.IntFlag{
			Name:        "max-context",
			Aliases:     []string{"max-ctx", "ctx", "c"},
			Usage:       "context window size in tokens",
			Value:       4096,
			Destination: &contextSize,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Aliases:     []string{"batch"},
			Usage:       "max tokens submitted per decode call",
			Value:       512,
			Destination: &batchSize,
		},
		&cli.IntFlag{
			Name:        "threads",
			Usage:       "worker threads for the engine",
			Value:       6,
			Destination: &threads,
		},
		&cli.IntFlag{
			Name:        "gpu-layers",
			Aliases:     []string{"ngl"},
			Usage:       "layers to offload to the GPU (0 = CPU only)",
			Destination: &gpuLayers,
		},
		&cli.BoolFlag{
			Name:        "no-mmap",
			Usage:       "read weights into memory instead of mapping them",
			Destination: &noMMap,
		},
		&cli.BoolFlag{
			Name:        "mlock",
			Usage:       "pin model weights in RAM",
			Destination: &useMLock,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-tokens",
			Aliases:     []string{"n", "steps"},
			Usage:       "token budget per reply (prompt included; 0 = context size)",
			Value:       1000,
			Destination: &maxTokens,
		},
		&cli.FloatFlag{
			Name:        "temp",
			Aliases:     []string{"temperature"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       0.8,
			Destination: &temperature,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"top_k"},
			Usage:       "top-k sampling parameter (0 = disabled)",
			Value:       45,
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "top-p",
			Aliases:     []string{"top_p"},
			Usage:       "top-p (nucleus) sampling parameter (1 = disabled)",
			Value:       0.95,
			Destination: &topP,
		},
		&cli.FloatFlag{
			Name:        "min-p",
			Aliases:     []string{"min_p"},
			Usage:       "min-p sampling parameter (0 = disabled)",
			Value:       0,
			Destination: &minP,
		},
		&cli.FloatFlag{
			Name:        "repeat-penalty",
			Aliases:     []string{"repeat_penalty"},
			Usage:       "repetition penalty (1 = disabled)",
			Value:       1.1,
			Destination: &repeatPenalty,
		},
		&cli.FloatFlag{
			Name:        "frequency-penalty",
			Usage:       "frequency penalty (0 = disabled)",
			Value:       0,
			Destination: &frequencyPenalty,
		},
		&cli.FloatFlag{
			Name:        "presence-penalty",
			Usage:       "presence penalty (0 = disabled)",
			Value:       0,
			Destination: &presencePenalty,
		},
		&cli.IntFlag{
			Name:        "penalty-last-n",
			Aliases:     []string{"repeat-last-n"},
			Usage:       "trailing tokens the penalties consider (0 = all)",
			Value:       64,
			Destination: &penaltyLastN,
		},
		&cli.IntFlag{
			Name:        "seed",
			Usage:       "sampling RNG seed (-1 = random)",
			Value:       -1,
			Destination: &seed,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "reply rendering (instant, typewriter, quiet)",
			Value:       "instant",
			Destination: &streamMode,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log output format (pretty, text, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

// isSet reports whether any of the flag names was given explicitly.
func isSet(cmd *cli.Command, names ...string) bool {
	for _, n := range names {
		if cmd.IsSet(n) {
			return true
		}
	}
	return false
}

// engineConfig collects the resolved engine knobs. They pass through to the
// native engine unchanged.
func engineConfig() llama.Config {
	return llama.Config{
		ContextSize: int(contextSize),
		BatchSize:   int(batchSize),
		Threads:     int(threads),
		GPULayers:   int(gpuLayers),
		UseMMap:     !noMMap,
		UseMLock:    useMLock,
	}
}

// sessionOptions collects the resolved sampling knobs as per-session
// generation defaults.
func sessionOptions() inference.Options {
	mt := int(maxTokens)
	sd := seed
	tmp := temperature
	tk := int(topK)
	tp := topP
	mp := minP
	rp := repeatPenalty
	fp := frequencyPenalty
	pp := presencePenalty
	ln := int(penaltyLastN)
	return inference.Options{
		MaxTokens:        &mt,
		Seed:             &sd,
		Temperature:      &tmp,
		TopK:             &tk,
		TopP:             &tp,
		MinP:             &mp,
		RepeatPenalty:    &rp,
		FrequencyPenalty: &fp,
		PresencePenalty:  &pp,
		PenaltyLastN:     &ln,
	}
}

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		return logger.Pretty(os.Stderr, level)
	}
}
