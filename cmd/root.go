// Package cmd wires up the CLI flags and starts the agent.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"drone/config"
	"drone/internal/agent"
	"drone/internal/core"
	"drone/internal/loader"
	"drone/internal/metrics"
	"drone/internal/settings"
	"drone/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X drone/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// streams are the process's standard files, replaceable in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// Execute parses args and runs the agent until its task source is
// exhausted, Exit is dispatched, or ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
}

func execute(ctx context.Context, args []string, std streams) error {
	flags := config.Default()
	fs := flag.NewFlagSet("drone", flag.ContinueOnError)
	fs.SetOutput(std.err)

	// ── identity and profile ─────────────────────────────────────
	var profile string
	fs.StringVar(&flags.AgentID, "id", "", "Agent id (default: random UUID)")
	fs.StringVar(&profile, "profile", "", "YAML profile file")

	// ── tasks and modules ────────────────────────────────────────
	fs.StringVarP(&flags.TaskSource, "tasks", "t", config.DefaultTaskSource, `Task file, one JSON task per line ("-" = stdin)`)
	fs.BoolVarP(&flags.Follow, "follow", "f", false, "Keep polling the task file for new lines")
	fs.StringArrayVarP(&flags.Modules, "module", "m", nil, "Load a module file at start (repeatable, replaces the profile list)")
	fs.IntVarP(&flags.Workers, "workers", "w", config.DefaultWorkers, "Tasks executed concurrently")
	fs.DurationVar(&flags.InvokeTimeout, "invoke-timeout", config.DefaultInvokeTimeout, "Time limit for one call into a loaded module")

	// ── initial settings ─────────────────────────────────────────
	fs.IntVar(&flags.SleepInterval, "sleep", config.DefaultSleepInterval, "Sleep interval in seconds")
	fs.IntVar(&flags.SleepJitter, "jitter", config.DefaultSleepJitter, "Sleep jitter in percent")
	fs.IntVar(&flags.ParentProcessID, "ppid", 0, "Parent process id for spawned processes")
	fs.BoolVar(&flags.BlockDLLs, "block-dlls", false, "Start with BlockDLLs enabled")
	fs.BoolVar(&flags.DisableAMSI, "disable-amsi", false, "Start with DisableAMSI enabled")
	fs.BoolVar(&flags.DisableETW, "disable-etw", false, "Start with DisableETW enabled")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&flags.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&flags.LogFile, "log-file", "", "Write logs to a size-rotated file")
	fs.StringVar(&flags.LogFormat, "log-format", config.DefaultLogFormat, `Log format: "text" or "json"`)
	fs.BoolVar(&flags.Metrics, "metrics", false, "Print counters as JSON on exit")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate, load modules, print the agent summary and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(std.err, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	if showHelp || (len(args) == 0 && isTerminal(std.in)) {
		printUsage(std.err, fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(std.out, "drone %s\n", version)
		return nil
	}

	// ── resolve configuration ────────────────────────────────────
	cfg := config.Default()
	if profile == "" {
		profile = config.ProfileFromEnv()
	}
	if profile != "" {
		if err := config.LoadFile(profile, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	overlayFlags(cfg, flags, fs)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(std.err)
	if cfg.LogFile != "" {
		w := util.OpenLogFile(cfg.LogFile, config.DefaultLogFileMaxSizeMB)
		defer w.Close()
		logger.SetOutput(w)
	}
	if cfg.LogFormat == "json" {
		logger.SetJSON()
	}
	logger = logger.With("agent", cfg.AgentID)

	store := settings.New()
	if err := cfg.ApplyTo(store); err != nil {
		return err
	}
	logger.Verbose("initial settings %v", store.Snapshot())

	m := metrics.New()
	a := agent.New(agent.Options{
		ID:      cfg.AgentID,
		Store:   store,
		Output:  std.out,
		Logger:  logger,
		Metrics: m,
		Workers: cfg.Workers,
	})

	ld, err := loader.New(ctx, a,
		loader.WithLogger(logger),
		loader.WithInvokeTimeout(cfg.InvokeTimeout))
	if err != nil {
		return fmt.Errorf("start module runtime: %w", err)
	}
	defer ld.Close(context.Background()) //nolint:errcheck

	if err := a.Register(core.New(a, store, core.WithLoader(ld), core.WithLogger(logger))); err != nil {
		return err
	}
	for _, path := range cfg.Modules {
		d, err := ld.LoadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("module %s: %w", path, err)
		}
		if err := a.RegisterModule(d); err != nil {
			return fmt.Errorf("module %s: %w", path, err)
		}
	}

	if dryRun {
		printSummary(std.out, a, ld)
		return nil
	}

	// ── run ──────────────────────────────────────────────────────
	src, closeSrc, err := openTasks(cfg.TaskSource, std.in)
	if err != nil {
		return err
	}
	defer closeSrc()

	if isTerminal(src) {
		logger.Info("reading tasks from the terminal, one JSON object per line (Ctrl-D ends)")
	}

	err = a.Run(ctx, src, cfg.Follow)
	if cfg.Metrics {
		fmt.Fprintln(std.err, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// overlayFlags copies every flag the user actually set from flags onto
// cfg, so flags win over the profile file and the environment.
func overlayFlags(cfg, flags *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "id":
			cfg.AgentID = flags.AgentID
		case "tasks":
			cfg.TaskSource = flags.TaskSource
		case "follow":
			cfg.Follow = flags.Follow
		case "module":
			cfg.Modules = flags.Modules
		case "workers":
			cfg.Workers = flags.Workers
		case "invoke-timeout":
			cfg.InvokeTimeout = flags.InvokeTimeout
		case "sleep":
			cfg.SleepInterval = flags.SleepInterval
		case "jitter":
			cfg.SleepJitter = flags.SleepJitter
		case "ppid":
			cfg.ParentProcessID = flags.ParentProcessID
		case "block-dlls":
			cfg.BlockDLLs = flags.BlockDLLs
		case "disable-amsi":
			cfg.DisableAMSI = flags.DisableAMSI
		case "disable-etw":
			cfg.DisableETW = flags.DisableETW
		case "verbose":
			cfg.Verbose = flags.Verbose
		case "log-file":
			cfg.LogFile = flags.LogFile
		case "log-format":
			cfg.LogFormat = strings.ToLower(flags.LogFormat)
		case "metrics":
			cfg.Metrics = flags.Metrics
		}
	})
}

func openTasks(source string, stdin io.Reader) (io.Reader, func(), error) {
	if source == "" || source == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, fmt.Errorf("open tasks: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printSummary(w io.Writer, a *agent.Agent, ld *loader.Loader) {
	store := a.Store()
	fmt.Fprintf(w, "agent     %s\n", a.ID)
	for _, k := range settings.Keys() {
		v, ok := store.Lookup(k)
		if !ok {
			v = "-"
		}
		fmt.Fprintf(w, "setting   %s=%v\n", k, v)
	}
	for _, d := range a.Registry().Modules() {
		fmt.Fprintf(w, "module    %s %s\n", d.Name, strings.Join(d.CommandNames(), ","))
	}
	for _, info := range ld.Loaded() {
		fmt.Fprintf(w, "loaded    %s %s %s\n", info.Name, info.Version, info.Fingerprint[:16])
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `drone – agent capability core v%s

Reads tasks, one JSON object per line, and dispatches them to the
registered modules.  Results are written to stdout as JSON lines.

Usage:
  drone [options]                             Read tasks from stdin
  drone -t tasks.jsonl [-f] [options]         Read (and follow) a task file

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Task lines:
  {"command":"Sleep","parameters":[{"name":"Interval","value":30}]}
  {"command":"LoadModule","parameters":[{"name":"Assembly","value":"<base64>"}]}
  {"command":"Exit"}

Examples:
  drone --dry-run -m recon.wasm               Check a module loads
  drone -t /var/spool/drone/tasks -f -v       Follow a task file
  echo '{"command":"PPID"}' | drone --id ops  One-shot task
`)
}
