package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/tokengate/internal/admin"
	"github.com/codefionn/tokengate/internal/challenge"
	"github.com/codefionn/tokengate/internal/config"
	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/keystore"
	"github.com/codefionn/tokengate/internal/lockfile"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/messagelog"
	"github.com/codefionn/tokengate/internal/metrics"
	"github.com/codefionn/tokengate/internal/pidfile"
	"github.com/codefionn/tokengate/internal/pprof"
	"github.com/codefionn/tokengate/internal/ratelimiter"
	"github.com/codefionn/tokengate/internal/securemem"
	"github.com/codefionn/tokengate/internal/socketserver"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) (err error) {
	fs := flag.NewFlagSet("tokengate-server", flag.ContinueOnError)
	configPath := fs.String("config", config.GetConfigPath(), "path to the JSON config file")
	logLevel := fs.String("log-level", "", "override log level (debug, info, warn, error, none)")
	var profiles pprof.Config
	fs.StringVar(&profiles.CPUProfile, "cpuprofile", "", "write a CPU profile to this file")
	fs.StringVar(&profiles.HeapProfile, "memprofile", "", "write a heap profile to this file on exit")
	fs.StringVar(&profiles.Trace, "trace", "", "write an execution trace to this file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()
	defer securemem.Cleanup()

	if profiles.Enabled() {
		profiler := pprof.NewProfiler(profiles)
		if err := profiler.Start(); err != nil {
			return err
		}
		defer func() {
			if stopErr := profiler.Stop(); stopErr != nil {
				logger.Warn("Failed to write profiles: %v", stopErr)
			}
		}()
	}

	logger.Info("tokengate server starting")
	logger.Debug("Configuration: host=%s issue_port=%d validate_port=%d dispatch=%s message_log=%s:%s",
		cfg.Host, cfg.IssuePort, cfg.ValidatePort, cfg.Dispatch, cfg.MessageLog.Backend, cfg.MessageLog.Path)

	lock := lockfile.New(cfg.LockPath, fmt.Sprintf("%s:%d,%d", cfg.Host, cfg.IssuePort, cfg.ValidatePort))
	if err := lock.TryAcquire(); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", cfg.LockPath, err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.Warn("Failed to release lock: %v", releaseErr)
		}
	}()

	pid := pidfile.New(cfg.PIDPath)
	if err := pid.Write(); err != nil {
		logger.Warn("Failed to write pidfile: %v", err)
	} else {
		defer func() {
			if removeErr := pid.Remove(); removeErr != nil {
				logger.Warn("Failed to remove pidfile: %v", removeErr)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := keystore.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	defer keys.Destroy()

	sink, err := messagelog.Open(cfg.MessageLog.Backend, cfg.MessageLog.Path)
	if err != nil {
		return fmt.Errorf("failed to open message log: %w", err)
	}
	writer, err := messagelog.NewWriter(context.Background(), sink)
	if err != nil {
		sink.Close()
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
		defer cancel()
		if closeErr := writer.Close(closeCtx); closeErr != nil {
			logger.Warn("Failed to close message log: %v", closeErr)
		}
	}()

	m := metrics.New()
	handlers := socketserver.Handlers{
		Issue: challenge.NewIssuer(keys, cfg.MaxIDSize, m),
		Validate: challenge.NewValidator(keys, writer, challenge.ValidatorConfig{
			MaxFrameSize: cfg.MaxFrameSize,
			TokenTTL:     cfg.TokenTTL.Std(),
		}, m),
	}
	limiter := ratelimiter.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL.Std())

	srv, err := socketserver.NewServer(socketserver.Config{
		Host:           cfg.Host,
		IssuePort:      cfg.IssuePort,
		ValidatePort:   cfg.ValidatePort,
		Dispatch:       cfg.Dispatch,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout.Std(),
		WriteTimeout:   cfg.WriteTimeout.Std(),
	}, handlers, socketserver.WithMetrics(m), socketserver.WithRateLimiter(limiter))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	fmt.Fprintf(os.Stderr, "tokengate listening: issue=%s validate=%s\n",
		srv.Addr(socketserver.Issue), srv.Addr(socketserver.Validate))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		if stopErr := srv.Stop(); stopErr != nil {
			logger.Warn("Server stopped with in-flight connections: %v", stopErr)
		}
		return nil
	})

	if cfg.Admin.Addr != "" {
		adm := admin.NewServer(cfg.Admin.Addr, m.Registry, srv.Ready)
		if cfg.Admin.Pprof {
			adm.EnableProfiling()
		}
		if err := adm.Start(); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return adm.Serve(gctx)
		})
	}

	if watcher, watchErr := config.NewWatcher(*configPath); watchErr != nil {
		logger.Debug("Config reload disabled: %v", watchErr)
	} else {
		g.Go(func() error {
			return watcher.Run(gctx, func(next *config.Config) {
				level := reloadedLevel(next, *logLevel)
				logger.Global().SetLevel(logger.ParseLevel(level))
				logger.Info("Reloaded config: log_level=%s (other settings apply on restart)", level)
			})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("tokengate server stopped")
	return nil
}

// reloadedLevel is the log level to apply after a config reload. A level given
// on the command line keeps precedence over the file.
func reloadedLevel(next *config.Config, flagLevel string) string {
	if flagLevel != "" {
		return flagLevel
	}
	return next.LogLevel
}
