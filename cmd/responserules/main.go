// responserules loads NPC response rule scripts and answers queries against
// them, interactively or one shot.
//
// Usage: responserules [flags] [query | dump | precache | version]
package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nathoo/responserules/cli"
	"github.com/nathoo/responserules/config"
	"github.com/nathoo/responserules/engine"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/loader"
	"github.com/nathoo/responserules/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// flags holds the command-line overrides of the configuration.
type flags struct {
	config       string
	script       string
	includeBase  string
	seed         int64
	gender       string
	worldFacts   string
	speakerFacts string
	logLevel     string
	development  bool
	plain        bool
	trace        bool
	watch        bool
	replay       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "responserules",
		Short: "Query NPC response rule scripts",
		Long: `responserules loads a response rule script (criteria, response groups
and rules, with #include) and picks the best response for a set of facts.

Run without arguments for the interactive console. Type facts such as
  concept=TLK_HURT health=20 who=alyx@2
to query, or /help for commands.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "responserules.yaml", "config file")
	pf.StringVarP(&f.script, "script", "s", "", "root response rules script")
	pf.StringVar(&f.includeBase, "include-base", "", "directory #include paths are relative to")
	pf.Int64Var(&f.seed, "seed", 0, "RNG seed (0 picks one)")
	pf.StringVar(&f.gender, "gender", "", "gender substituted for $gender")
	pf.StringVar(&f.worldFacts, "world", "", "Lua script providing world facts")
	pf.StringVar(&f.speakerFacts, "speaker", "", "Lua script providing speaker facts")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&f.development, "dev", false, "development logging; consistency violations panic")
	pf.BoolVar(&f.trace, "trace", false, "show rule scoring")

	root.Flags().BoolVar(&f.plain, "plain", false, "line mode instead of the terminal UI")
	root.Flags().BoolVarP(&f.watch, "watch", "w", false, "reload when script files change")
	root.Flags().StringVar(&f.replay, "replay", "", "run the queries of a file in line mode and exit")

	root.AddCommand(newQueryCmd(f), newDumpCmd(f), newPrecacheCmd(f), newVersionCmd())
	return root
}

func newQueryCmd(f *flags) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "query [facts...]",
		Short: "Print the best response for one set of facts",
		Example: `  responserules query concept=TLK_HURT health=20
  responserules query -n 5 concept=TLK_IDLE`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, f, false)
			if err != nil {
				return err
			}
			defer a.close()

			line := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				for _, l := range a.session.Query(line) {
					fmt.Fprintln(out, l)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of queries to run")
	return cmd
}

func newDumpCmd(f *flags) *cobra.Command {
	var rulesOnly bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the loaded dictionaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, f, false)
			if err != nil {
				return err
			}
			defer a.close()

			if rulesOnly {
				return a.system.DumpRules(cmd.OutOrStdout())
			}
			return a.system.DumpDictionary(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&rulesOnly, "rules", false, "only list rules")
	return cmd
}

// printPrecacher lists every resource a script would load.
type printPrecacher struct {
	w io.Writer
}

func (p printPrecacher) PrecacheScene(name string) { fmt.Fprintf(p.w, "scene %s\n", name) }
func (p printPrecacher) PrecacheSound(name string) { fmt.Fprintf(p.w, "sound %s\n", name) }

func newPrecacheCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "precache",
		Short: "List the scenes and sounds the script references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, f, false)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			stats := a.system.Precache(printPrecacher{w: out})
			fmt.Fprintf(out, "%d scene(s), %d sound(s)\n", stats.Scenes, stats.Sounds)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "responserules %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// app is a loaded system with its session and logger.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	system  *engine.System
	session *cli.Session
	dir     string
}

func (a *app) close() {
	_ = a.log.Sync()
}

// setup loads the configuration, applies flags, builds the logger and loads
// the script. When the terminal UI will run, logs are discarded unless a log
// file is configured.
func setup(cmd *cobra.Command, f *flags, terminal bool) (*app, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, f, cfg)

	var log *zap.Logger
	if terminal && !cfg.Plain && cfg.LogFile == "" {
		log = zap.NewNop()
	} else if log, err = cfg.Logger(); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = randomSeed()
	}
	dir, root := cfg.ScriptDir()
	sys := engine.New(engine.Options{
		FS:     os.DirFS(dir),
		Base:   ".",
		Seed:   seed,
		Logger: log,
	})

	// 1. Script.
	if err := sys.LoadRuleSet(root); err != nil {
		var le *loader.LoadError
		if !errors.As(err, &le) {
			return nil, fmt.Errorf("loading %s: %w", cfg.Script, err)
		}
		log.Warn("script loaded with errors", zap.Int("errors", len(le.Errors)))
	}

	// 2. Session and its fixed facts.
	s := cli.NewSession(sys, log)
	s.Gender = cfg.Gender
	s.SaveDir = cfg.SaveDir
	s.Threshold = cfg.Threshold
	s.Trace = cfg.Trace
	if cfg.WorldFacts != "" {
		if s.WorldBase, err = loadFacts(cfg.WorldFacts); err != nil {
			return nil, err
		}
	}
	if cfg.SpeakerFacts != "" {
		if s.SpeakerBase, err = loadFacts(cfg.SpeakerFacts); err != nil {
			return nil, err
		}
	}

	log.Debug("responserules ready",
		zap.String("script", cfg.Script),
		zap.Int64("seed", seed),
		zap.Int("rules", sys.Stats().Rules))
	return &app{cfg: cfg, log: log, system: sys, session: s, dir: dir}, nil
}

// applyFlags copies explicitly set flags over the configuration.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("script") {
		cfg.Script = f.script
	}
	if changed("include-base") {
		cfg.IncludeBase = f.includeBase
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("gender") {
		cfg.Gender = f.gender
	}
	if changed("world") {
		cfg.WorldFacts = f.worldFacts
	}
	if changed("speaker") {
		cfg.SpeakerFacts = f.speakerFacts
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("dev") {
		cfg.Development = f.development
	}
	if changed("trace") {
		cfg.Trace = f.trace
	}
	if changed("plain") {
		cfg.Plain = f.plain
	}
	if changed("watch") {
		cfg.Watch = f.watch
	}
}

func loadFacts(path string) (*state.Facts, error) {
	facts, err := loader.LoadFacts(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("facts %s: %w", path, err)
	}
	return facts, nil
}

func randomSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}

func runInteractive(cmd *cobra.Command, f *flags) error {
	terminal := f.replay == "" && isTerminal()
	a, err := setup(cmd, f, terminal)
	if err != nil {
		return err
	}
	defer a.close()
	plain := !terminal || a.cfg.Plain

	var w *engine.Watcher
	if a.cfg.Watch {
		if w, err = newWatcher(a); err != nil {
			return err
		}
	}

	// Replay mode: read queries from a file, echo them.
	if f.replay != "" {
		in, err := os.Open(f.replay)
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		defer in.Close()
		c := cli.New(a.session)
		c.In = in
		c.EchoInput = true
		c.Run()
		return nil
	}

	if plain {
		if w != nil {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			w.Start(ctx)
			defer w.Stop()
		}
		cli.New(a.session).Run()
		return nil
	}

	return tui.Run(a.session, w)
}

// newWatcher watches the script directory and its subdirectories.
func newWatcher(a *app) (*engine.Watcher, error) {
	var dirs []string
	err := filepath.WalkDir(a.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning script directory: %w", err)
	}
	w, err := engine.NewWatcher(a.system, a.log, dirs...)
	if err != nil {
		return nil, fmt.Errorf("watching scripts: %w", err)
	}
	return w, nil
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
