package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/langsock/internal/analysis"
	"github.com/codefionn/langsock/internal/audit"
	"github.com/codefionn/langsock/internal/config"
	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/features"
	"github.com/codefionn/langsock/internal/liveness"
	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/pidfile"
	"github.com/codefionn/langsock/internal/pprof"
	"github.com/codefionn/langsock/internal/socketserver"
)

// exitError carries a process exit status out of the command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitCodeOf(err error) int {
	if err == nil {
		return consts.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return consts.ExitStartupFailed
}

type serverFlags struct {
	configPath      string
	language        string
	monitorInterval time.Duration
	logLevel        string
	logPath         string
	maxConnections  int
	auditDB         string
	cacheEntries    int
	rateLimit       float64
	disable         []string
	pidFile         string
	cpuProfile      string
	heapProfile     string
}

func newRootCommand(ctx context.Context, stdout io.Writer) *cobra.Command {
	flags := &serverFlags{}

	cmd := &cobra.Command{
		Use:   "langsock [flags] <socket-path> <companion-pid>",
		Short: "Serve source analysis commands over a Unix domain socket",
		Long: `langsock listens on a Unix domain socket and answers newline-delimited
JSON commands (print, tree, stub, check, weave, usages, typecheck,
objectInfo, typedefGen).

It runs for as long as the companion process identified by <companion-pid>
is alive, and shuts down cleanly on SIGINT or SIGTERM.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return exitWith(consts.ExitUsage, fmt.Errorf("expected <socket-path> and <companion-pid>, got %d argument(s)", len(args)))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, cmd, flags, args, stdout)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitWith(consts.ExitUsage, err)
	})

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", config.GetConfigPath(), "Configuration file (YAML or JSON)")
	f.StringVar(&flags.language, "language", "", "Source language: typescript, tsx or python")
	f.DurationVar(&flags.monitorInterval, "monitor-interval", 0, "Companion liveness poll interval")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error or none")
	f.StringVar(&flags.logPath, "log-path", "", "Log file (default stderr)")
	f.IntVar(&flags.maxConnections, "max-connections", 0, "Maximum concurrent connections")
	f.StringVar(&flags.auditDB, "audit-db", "", "SQLite database recording every request")
	f.IntVar(&flags.cacheEntries, "cache-entries", 0, "Response cache size per command, 0 disables")
	f.Float64Var(&flags.rateLimit, "rate-limit", 0, "Requests per second per connection, 0 disables")
	f.StringSliceVar(&flags.disable, "disable", nil, "Commands to answer with an error (comma separated)")
	f.StringVar(&flags.pidFile, "pid-file", "", "File recording the server PID")
	f.StringVar(&flags.cpuProfile, "cpu-profile", "", "Write a CPU profile covering the server lifetime")
	f.StringVar(&flags.heapProfile, "heap-profile", "", "Write a heap profile on shutdown")

	return cmd
}

// applyFlags copies explicitly set flags over the file and environment
// settings.
func applyFlags(cmd *cobra.Command, flags *serverFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("language") {
		cfg.Language = flags.language
	}
	if changed("monitor-interval") {
		cfg.MonitorInterval = flags.monitorInterval
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-path") {
		cfg.LogPath = flags.logPath
	}
	if changed("max-connections") {
		cfg.MaxConnections = flags.maxConnections
	}
	if changed("audit-db") {
		cfg.AuditDB = flags.auditDB
	}
	if changed("cache-entries") {
		cfg.CacheEntries = flags.cacheEntries
	}
	if changed("rate-limit") {
		cfg.RateLimit = flags.rateLimit
	}
	if changed("disable") {
		cfg.DisabledCommands = flags.disable
	}
	if changed("pid-file") {
		cfg.PidFile = flags.pidFile
	}
	if changed("cpu-profile") {
		cfg.Pprof.CPUProfile = flags.cpuProfile
	}
	if changed("heap-profile") {
		cfg.Pprof.HeapProfile = flags.heapProfile
	}
}

func run(ctx context.Context, cmd *cobra.Command, flags *serverFlags, args []string, stdout io.Writer) (err error) {
	socketPath := args[0]
	pid, err := strconv.Atoi(args[1])
	if err != nil || pid <= 0 {
		return exitWith(consts.ExitUsage, fmt.Errorf("invalid companion pid %q", args[1]))
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(cfg.Level(), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	// Signals are caught from here on so that one arriving right after the
	// readiness line still runs the shutdown path.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("langsock starting (language=%s, companion pid=%d)", cfg.Language, pid)
	logger.Debug("Configuration: monitor_interval=%v max_connections=%d cache_entries=%d rate_limit=%v audit_db=%q",
		cfg.MonitorInterval, cfg.MaxConnections, cfg.CacheEntries, cfg.RateLimit, cfg.AuditDB)

	// The monitor is started before the server exists; sd is set before
	// Run can observe the companion exiting.
	var sd *socketserver.Shutdown
	monitor := liveness.New(pid, cfg.MonitorInterval, nil, func() {
		sd.Shutdown(fmt.Sprintf("companion process %d exited", pid))
	})
	if err := monitor.CheckNow(); err != nil {
		return exitWith(consts.ExitCompanionGone, err)
	}

	registry := dispatch.NewRegistry()
	if _, err := analysis.Register(registry, cfg.Language, cfg.CacheEntries); err != nil {
		return err
	}
	if missing := registry.Missing(); len(missing) > 0 {
		logger.Warn("No handler registered for: %v", missing)
	}
	flagSet, err := features.FromDisabled(cfg.DisabledCommands)
	if err != nil {
		return err
	}
	registry.SetGate(flagSet)
	if disabled := flagSet.Disabled(); len(disabled) > 0 {
		logger.Info("Disabled commands: %v", disabled)
	}

	if profCfg := pprofConfig(cfg); profCfg.Enabled() {
		prof := pprof.NewHandler(profCfg)
		if err := prof.Start(); err != nil {
			return err
		}
		defer func() {
			if err := prof.Stop(); err != nil {
				logger.Warn("Failed to write profiles: %v", err)
			}
		}()
	}

	opts, err := socketserver.OptionsFromConfig(socketPath, cfg)
	if err != nil {
		return err
	}
	opts.Ready = stdout
	if cfg.AuditDB != "" {
		sink, err := audit.Open(cfg.AuditDB)
		if err != nil {
			return err
		}
		opts.Auditor = sink
	}

	server, err := socketserver.NewServer(opts, registry)
	if err != nil {
		if opts.Auditor != nil {
			opts.Auditor.Close()
		}
		return err
	}
	if err := server.Listen(ctx); err != nil {
		if opts.Auditor != nil {
			opts.Auditor.Close()
		}
		if errors.Is(err, socketserver.ErrSocketInUse) {
			return exitWith(consts.ExitSocketInUse, fmt.Errorf("socket %s is already in use by a running server", socketPath))
		}
		return err
	}

	if cfg.PidFile != "" {
		pf := pidfile.New(cfg.PidFile)
		if err := pf.Write(); err != nil {
			server.Close()
			return err
		}
		defer func() {
			if err := pf.Remove(); err != nil {
				logger.Warn("%v", err)
			}
		}()
	}

	exitCode := make(chan int, 1)
	sd = socketserver.NewShutdown(server, func(code int) { exitCode <- code })

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		err := server.Serve()
		sd.Shutdown("accept loop stopped")
		return err
	})

	g.Go(func() error {
		err := monitor.Run(gctx)
		if err == nil || errors.Is(err, liveness.ErrCompanionGone) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.WatchSocket {
		watcher, err := socketserver.NewSocketWatcher(server.SocketPath(), func() {
			sd.Shutdown("socket file removed")
		})
		if err != nil {
			logger.Warn("Socket file watching disabled: %v", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			sd.Shutdown(fmt.Sprintf("received %s", sig))
		case <-gctx.Done():
			sd.Shutdown("stopped")
		}
		return nil
	})

	runErr := g.Wait()
	<-sd.Done()
	fmt.Fprintln(stdout, color.YellowString("Closing %s (%s)", server.SocketPath(), sd.Reason()))

	if runErr != nil {
		return runErr
	}
	if code := <-exitCode; code != consts.ExitOK {
		return exitWith(code, fmt.Errorf("server exited with status %d", code))
	}
	return nil
}

func pprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		CPUProfile:       cfg.Pprof.CPUProfile,
		HeapProfile:      cfg.Pprof.HeapProfile,
		GoroutineProfile: cfg.Pprof.GoroutineProfile,
		BlockProfile:     cfg.Pprof.BlockProfile,
	}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(ctx, stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return consts.ExitOK
	}

	code := exitCodeOf(err)
	fmt.Fprintln(stderr, color.RedString("Error: %v", err))
	if code == consts.ExitUsage {
		fmt.Fprint(stderr, cmd.UsageString())
	}
	return code
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
