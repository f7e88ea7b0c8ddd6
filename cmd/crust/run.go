package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crust/internal/inference"
	"github.com/samcharles93/crust/internal/llama"
	"github.com/samcharles93/crust/internal/prompt"
)

func runCmd() *cli.Command {
	var (
		promptText string
		system     string
		noTemplate bool
		echoPrompt bool
	)

	flags := append(engineFlags(), samplingFlags()...)
	flags = append(flags, outputFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text (read from stdin when piped)",
			Destination: &promptText,
		},
		&cli.StringFlag{
			Name:        "system",
			Aliases:     []string{"sys"},
			Usage:       "optional system prompt",
			Destination: &system,
		},
		&cli.BoolFlag{
			Name:        "no-template",
			Usage:       "feed the prompt raw, without chat template rendering",
			Destination: &noTemplate,
		},
		&cli.BoolFlag{
			Name:        "echo-prompt",
			Usage:       "print the rendered prompt before generation",
			Destination: &echoPrompt,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run one generation and exit",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyEngineConfig(cmd, cfg)
			applySamplingConfig(cmd, cfg)
			applyOutputConfig(cmd, cfg)
			if cfg.SystemPrompt != "" && !isSet(cmd, "system", "sys") {
				system = cfg.SystemPrompt
			}

			log := buildLogger()

			if promptText == "" {
				if stdinIsTTY() {
					return cli.Exit("error: --prompt is required (or pipe text on stdin; use crust chat for a conversation)", 1)
				}
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read stdin: %v", err), 1)
				}
				promptText = strings.TrimSpace(string(data))
				if promptText == "" {
					return cli.Exit("error: empty prompt on stdin", 1)
				}
			}

			modelFile, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			tpl, err := prompt.Lookup(templateName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			engCfg := engineConfig()
			loadStart := time.Now()
			ectx, err := llama.Open(modelFile, engCfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			sess := inference.NewSession(ectx, tpl, sessionOptions())
			defer func() { _ = sess.Close() }()
			log.Info("model loaded",
				"path", modelFile,
				"context", engCfg.ContextSize,
				"template", tpl.Name,
				"duration", time.Since(loadStart).Round(time.Millisecond),
			)

			if system != "" && !noTemplate {
				sess.SetSystemPrompt(system)
			}

			genCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt)
			defer stopSignals()

			writer := NewStreamWriter(ParseStreamMode(streamMode), os.Stdout)
			stream := func(fragment string) { writer.Write(fragment) }

			var opts inference.Options
			if echoPrompt {
				t := true
				opts.EchoPrompt = &t
			}

			var res *inference.Result
			if noTemplate {
				res, err = sess.Complete(genCtx, promptText, opts, stream)
			} else {
				res, err = sess.Chat(genCtx, promptText, opts, stream)
			}
			out := writer.Finish()

			if err != nil {
				if out != "" {
					fmt.Println()
				}
				if errors.Is(err, context.Canceled) {
					return cli.Exit("interrupted", 130)
				}
				return cli.Exit(fmt.Sprintf("error: generation: %v", err), 1)
			}

			fmt.Println()
			log.Debug("generation finished", "reason", string(res.Reason))
			fmt.Fprintf(os.Stderr, "Stats: %.2f TPS (%d tokens in %s)\n",
				res.Stats.TPS, res.Stats.TokensGenerated, res.Stats.Duration)
			if res.Reason == inference.FinishCancelled {
				return cli.Exit("", 130)
			}
			return nil
		},
	}
}
