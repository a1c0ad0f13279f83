// Package main is the entry point for patternlock: the verifier service and
// the terminal client.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/patternlock/patternlock/internal/client"
	"github.com/patternlock/patternlock/internal/clock"
	"github.com/patternlock/patternlock/internal/config"
	"github.com/patternlock/patternlock/internal/credential"
	"github.com/patternlock/patternlock/internal/guard"
	"github.com/patternlock/patternlock/internal/ipc"
	"github.com/patternlock/patternlock/internal/logging"
	"github.com/patternlock/patternlock/internal/metrics"
	"github.com/patternlock/patternlock/internal/screen"
	"github.com/patternlock/patternlock/internal/session"
	"github.com/patternlock/patternlock/internal/store"
	"github.com/patternlock/patternlock/internal/tui"
	"github.com/patternlock/patternlock/internal/workflow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var routes = map[string]screen.Route{
	"register": screen.RouteRegister,
	"signin":   screen.RouteSignIn,
	"forgot":   screen.RouteForgot,
	"welcome":  screen.RouteWelcome,
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration file (.json, .toml or .yaml)")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("patternlock %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// Resolve config path: --config flag > PATTERNLOCK_CONFIG env > auto-discover.
	path := *configPath
	if path == "" {
		path = os.Getenv("PATTERNLOCK_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fatal(fmt.Sprintf("load config: %v", err))
		}
		cfg = loaded
	}

	command := "register"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "serve":
		if err := serve(cfg); err != nil {
			fatal(err.Error())
		}
	default:
		route, ok := routes[command]
		if !ok {
			usage()
			os.Exit(2)
		}
		if err := runClient(cfg, route); err != nil {
			fatal(err.Error())
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: patternlock [--config path] [serve|register|signin|forgot|welcome]\n\n")
	flag.PrintDefaults()
}

func serve(cfg *config.Config) error {
	logger := logging.New(cfg.Logging("verifier"))

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Wire guard, metrics and credential service.
	g := guard.NewGuard(guard.GuardConfig{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxFailedAttempts:  cfg.MaxFailedAttempts,
		LockoutSec:         cfg.LockoutSec,
	})
	recorder := metrics.NewPrometheusRecorder()
	credentials := credential.NewService(db, g, recorder, credential.Config{
		MinPatternLength: cfg.MinPatternLength,
		BcryptCost:       cfg.BcryptCost,
	}, logger)

	handler := &ipc.Handler{
		Credentials: credentials,
		Logger:      logger,
		Version:     version,
		AdminToken:  cfg.AdminToken,
	}
	srv := ipc.NewServer(handler, recorder.Handler(), cfg.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("verifier listening", "addr", cfg.ListenAddr, "db", cfg.DBPath, "version", version)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runClient(cfg *config.Config, start screen.Route) error {
	logCfg := cfg.Logging("client")
	logCfg.Output = io.Discard
	if os.Getenv("PATTERNLOCK_DEBUG") != "" {
		f, err := os.OpenFile("patternlock-debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer f.Close()
		logCfg.Output = f
		logCfg.Level = "debug"
	}
	logger := logging.New(logCfg)

	db, err := openSessionDB(cfg.SessionPath)
	if err != nil {
		return err
	}
	defer db.Close()

	api := client.New(cfg.APIURL, cfg.RequestTimeout())
	checkVerifier(api, logger)

	app := tui.New(tui.Deps{
		API:      api,
		Sessions: session.NewSQLite(db),
		Options: screen.Options{
			MinLength:  cfg.MinPatternLength,
			ClearDelay: cfg.ClearDelay(),
			Timing: workflow.Timing{
				SuccessDelay:  cfg.SuccessDelay(),
				MismatchDelay: cfg.MismatchDelay(),
				FailureDelay:  cfg.FailureDelay(),
			},
			Scheduler: clock.Real{},
			Logger:    logger,
		},
		RedirectDelay: cfg.RedirectDelay(),
		Logger:        logger,
	}, start)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}

func openSessionDB(path string) (*sql.DB, error) {
	db, err := store.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return db, nil
}

func checkVerifier(api *client.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := api.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: verifier at %s is not reachable: %v\n", api.BaseURL, err)
		logger.Warn("verifier unreachable", "url", api.BaseURL, "error", err)
	}
}

// discoverConfig looks for a patternlock config next to the executable, then
// in the cwd.
func discoverConfig() string {
	names := []string{"patternlock.toml", "patternlock.yaml", "patternlock.yml", "patternlock.json"}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	dirs = append(dirs, ".")

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// fatal prints an error and, on Windows, waits for a keypress so the user can
// read the message when the exe is launched by double-click.
func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	if runtime.GOOS == "windows" {
		fmt.Fprintln(os.Stderr, "\nPress Enter to exit...")
		bufio.NewReader(os.Stdin).ReadBytes('\n')
	}
	os.Exit(1)
}
