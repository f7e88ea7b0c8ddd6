package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crust/internal/chat"
	"github.com/samcharles93/crust/internal/inference"
	"github.com/samcharles93/crust/internal/llama"
	"github.com/samcharles93/crust/internal/logger"
	"github.com/samcharles93/crust/internal/prompt"
	"github.com/samcharles93/crust/internal/reasoning"
	"github.com/samcharles93/crust/internal/session"
)

func chatCmd() *cli.Command {
	var (
		system       string
		resumePath   string
		showThinking bool
		sessionTTL   string
		maxSessions  int64
	)

	flags := append(engineFlags(), samplingFlags()...)
	flags = append(flags, outputFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "system",
			Aliases:     []string{"sys"},
			Usage:       "system prompt for new sessions",
			Destination: &system,
		},
		&cli.StringFlag{
			Name:        "resume",
			Usage:       "transcript file to load into the first session",
			Destination: &resumePath,
		},
		&cli.BoolFlag{
			Name:        "show-thinking",
			Usage:       "render <think> blocks dimmed instead of hiding them",
			Value:       true,
			Destination: &showThinking,
		},
		&cli.StringFlag{
			Name:        "session-ttl",
			Usage:       "idle time before a session's engine context is closed",
			Value:       "30m",
			Destination: &sessionTTL,
		},
		&cli.IntFlag{
			Name:        "max-sessions",
			Usage:       "cap on live sessions (0 = unlimited)",
			Destination: &maxSessions,
		},
	)

	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with a local model interactively",
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
			if cfg.SessionTTL != "" && !isSet(cmd, "session-ttl") {
				sessionTTL = cfg.SessionTTL
			}
			if cfg.MaxSessions != nil && !isSet(cmd, "max-sessions") {
				maxSessions = *cfg.MaxSessions
			}

			log := buildLogger()

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
			mdl, err := llama.LoadModel(modelFile, engCfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = mdl.Close() }()
			log.Info("model loaded",
				"path", modelFile,
				"vocab", mdl.VocabSize(),
				"context", engCfg.ContextSize,
				"template", tpl.Name,
				"duration", time.Since(loadStart).Round(time.Millisecond),
			)

			idleTTL, err := time.ParseDuration(sessionTTL)
			if err != nil {
				log.Warn("bad session TTL, using 30m", "value", sessionTTL)
				idleTTL = 30 * time.Minute
			}
			manager := session.NewManager(session.Config{
				IdleTTL:     idleTTL,
				MaxSessions: int(maxSessions),
			}, log)
			defer manager.Close()

			r := &repl{
				log:            log,
				model:          mdl,
				engCfg:         engCfg,
				tpl:            tpl,
				opts:           sessionOptions(),
				system:         system,
				manager:        manager,
				mode:           ParseStreamMode(streamMode),
				showThinking:   showThinking,
				transcriptsDir: cfg.transcriptsDir(),
				editor:         newLineEditor(),
			}
			if _, err := r.newSession(); err != nil {
				return cli.Exit(fmt.Sprintf("error: open context: %v", err), 1)
			}

			if resumePath != "" {
				t, err := session.ReadTranscript(resumePath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				if err := t.Apply(r.cur); err != nil {
					return cli.Exit(fmt.Sprintf("error: resume: %v", err), 1)
				}
				fmt.Fprintf(os.Stderr, "resumed %d turns from %s\n", len(t.Turns), resumePath)
			}

			fmt.Fprintln(os.Stderr, "Interactive mode. Type /help for commands, /exit to quit.")
			return r.run(ctx)
		},
	}
}

// repl drives the interactive chat loop over one loaded model. Each session
// holds its own engine context; the manager evicts idle ones, so the current
// session is re-fetched (and revived if needed) before every use.
type repl struct {
	log    logger.Logger
	model  *llama.Model
	engCfg llama.Config
	tpl    prompt.Template
	opts   inference.Options
	system string

	manager *session.Manager
	cur     *inference.Session

	mode           StreamMode
	showThinking   bool
	transcriptsDir string

	editor    *lineEditor
	lastStats inference.Stats
	haveStats bool
}

func (r *repl) run(ctx context.Context) error {
	for {
		line, err := r.editor.ReadLine("> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if r.command(ctx, input) {
				return nil
			}
			continue
		}
		r.turn(ctx, input, false)
	}
}

// newSession opens a fresh engine context, wraps it in a session and makes
// it current.
func (r *repl) newSession() (*inference.Session, error) {
	ectx, err := r.model.NewContext(r.engCfg)
	if err != nil {
		return nil, err
	}
	sess := inference.NewSession(ectx, r.tpl, r.opts)
	if r.system != "" {
		sess.SetSystemPrompt(r.system)
	}
	r.manager.Add(sess)
	r.cur = sess
	r.log.Debug("session opened", "session", sess.ID())
	return sess, nil
}

// current returns the live current session, extending its idle deadline. If
// the manager evicted it in the meantime a fresh session takes its place.
func (r *repl) current() (*inference.Session, error) {
	if sess, ok := r.manager.Get(r.cur.ID()); ok {
		return sess, nil
	}
	r.log.Warn("current session expired, starting a fresh one")
	return r.newSession()
}

// turn runs one generation: the user text as a chat turn, or with regen set
// a retry of the trailing user turn. Ctrl+C cancels the generation without
// leaving the loop.
func (r *repl) turn(ctx context.Context, text string, regen bool) {
	sess, err := r.current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}

	genCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	writer := NewStreamWriter(r.mode, os.Stdout)
	splitter := reasoning.NewSplitter(reasoning.ThinkTags)
	show := func(content, thinking string) {
		if thinking != "" && r.showThinking {
			writer.Thinking(thinking)
		}
		writer.Write(content)
	}
	streamFn := func(fragment string) {
		show(splitter.Push(fragment))
	}

	var res *inference.Result
	if regen {
		res, err = sess.Regenerate(genCtx, inference.Options{}, streamFn)
	} else {
		res, err = sess.Chat(genCtx, text, inference.Options{}, streamFn)
	}
	show(splitter.Flush())
	streamed := writer.Finish()

	if err != nil {
		if streamed != "" {
			fmt.Println()
		}
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			return
		}
		fmt.Fprintf(os.Stderr, "error: generation: %v\n", err)
		return
	}

	fmt.Println()
	if res.Reason == inference.FinishCancelled {
		fmt.Fprintln(os.Stderr, "interrupted, partial reply kept")
	}
	r.lastStats = res.Stats
	r.haveStats = true
	fmt.Fprintf(os.Stderr, "Stats: %.2f TPS (%d tokens in %s)\n",
		res.Stats.TPS, res.Stats.TokensGenerated, res.Stats.Duration)
}

// command handles one slash command, reporting whether the loop should end.
func (r *repl) command(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true

	case "/help":
		r.printHelp()

	case "/reset":
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		sess.Reset()
		if r.system != "" {
			sess.SetSystemPrompt(r.system)
		}
		fmt.Fprintln(os.Stderr, "conversation cleared")

	case "/system":
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		if arg == "" {
			sys := systemPromptOf(sess)
			if sys == "" {
				fmt.Fprintln(os.Stderr, "no system prompt set")
			} else {
				fmt.Fprintln(os.Stderr, sys)
			}
			break
		}
		sess.SetSystemPrompt(arg)
		r.system = arg
		fmt.Fprintln(os.Stderr, "system prompt set, conversation cleared")

	case "/history":
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		turns := sess.History()
		if len(turns) == 0 {
			fmt.Fprintln(os.Stderr, "conversation is empty")
			break
		}
		for _, t := range turns {
			fmt.Printf("[%s] %s\n", t.Role, t.Content)
		}

	case "/regen":
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		turns := sess.History()
		if len(turns) == 0 {
			fmt.Fprintln(os.Stderr, "nothing to regenerate")
			break
		}
		if turns[len(turns)-1].Role == chat.RoleAssistant {
			sess.DropLast()
		}
		r.turn(ctx, "", true)

	case "/drop":
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		turn, ok := sess.DropLast()
		if !ok {
			fmt.Fprintln(os.Stderr, "conversation is empty")
			break
		}
		fmt.Fprintf(os.Stderr, "dropped %s turn\n", turn.Role)

	case "/save":
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		path := arg
		if path == "" {
			path = filepath.Join(r.transcriptsDir, sess.ID()+".json")
		}
		if err := session.Snapshot(sess).WriteFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		fmt.Fprintf(os.Stderr, "saved %s\n", path)

	case "/load":
		if arg == "" {
			fmt.Fprintln(os.Stderr, "usage: /load <path>")
			break
		}
		sess, err := r.current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		t, err := session.ReadTranscript(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		if err := t.Apply(sess); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		fmt.Fprintf(os.Stderr, "loaded %d turns from %s\n", len(t.Turns), arg)

	case "/new":
		sess, err := r.newSession()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: open context: %v\n", err)
			break
		}
		fmt.Fprintf(os.Stderr, "session %s is current\n", shortID(sess.ID()))

	case "/sessions":
		for i, sess := range r.manager.List() {
			marker := " "
			if sess.ID() == r.cur.ID() {
				marker = "*"
			}
			fmt.Fprintf(os.Stderr, "%s %d. %s (%d turns)\n", marker, i+1, shortID(sess.ID()), len(sess.History()))
		}

	case "/switch":
		sessions := r.manager.List()
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(sessions) {
			fmt.Fprintln(os.Stderr, "usage: /switch <n> (see /sessions)")
			break
		}
		sess, ok := r.manager.Get(sessions[n-1].ID())
		if !ok {
			fmt.Fprintln(os.Stderr, "that session just expired")
			break
		}
		r.cur = sess
		fmt.Fprintf(os.Stderr, "session %s is current\n", shortID(sess.ID()))

	case "/stats":
		if !r.haveStats {
			fmt.Fprintln(os.Stderr, "no generation yet")
			break
		}
		s := r.lastStats
		fmt.Fprintf(os.Stderr, "prompt %d tokens, generated %d, %.2f TPS in %s\n",
			s.PromptTokens, s.TokensGenerated, s.TPS, s.Duration)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %s (try /help)\n", name)
	}
	return false
}

func (r *repl) printHelp() {
	fmt.Fprint(os.Stderr, `Commands:
  /help            show this help
  /exit            quit (also /quit, Ctrl+D)
  /reset           clear the conversation
  /system [text]   show or replace the system prompt
  /history         print the conversation
  /regen           regenerate the last reply
  /drop            remove the last turn
  /save [path]     save the conversation as a transcript
  /load <path>     load a transcript into this session
  /new             open a fresh session
  /sessions        list open sessions
  /switch <n>      make session n current
  /stats           show stats for the last reply
`)
}

func systemPromptOf(sess *inference.Session) string {
	for _, t := range sess.History() {
		if t.Role == chat.RoleSystem {
			return t.Content
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
