package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codefionn/tokengate/internal/config"
	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/socketclient"
	"github.com/codefionn/tokengate/internal/socketutil"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defaults := socketclient.DefaultConfig()
	if envHost := strings.TrimSpace(os.Getenv(config.EnvHost)); envHost != "" {
		defaults.Host = envHost
	}

	fs := flag.NewFlagSet("tokengate-client", flag.ContinueOnError)
	host := fs.String("host", defaults.Host, "server host")
	issuePort := fs.Int("issue-port", defaults.IssuePort, "port that issues tokens")
	validatePort := fs.Int("validate-port", defaults.ValidatePort, "port that validates submissions")
	message := fs.String("message", defaults.Message, "message to submit")
	timeout := fs.Duration("timeout", consts.Timeout10Seconds, "timeout for each connection")
	wait := fs.Duration("wait", 0, "wait up to this long for the server to come up")
	logLevel := fs.String("log-level", "warn", "log level (debug, info, warn, error, none)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if envLevel := strings.TrimSpace(os.Getenv(config.EnvLogLevel)); envLevel != "" && !flagSet(fs, "log-level") {
		*logLevel = envLevel
	}
	if err := logger.Init(logger.ParseLevel(*logLevel), logger.StderrPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Global().Close()

	cfg := defaults
	cfg.Host = *host
	cfg.IssuePort = *issuePort
	cfg.ValidatePort = *validatePort
	cfg.Message = *message
	cfg.ConnectTimeout = *timeout
	cfg.IOTimeout = *timeout

	requester, err := socketclient.NewRequester(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *wait > 0 {
		waitCtx, cancelWait := context.WithTimeout(ctx, *wait)
		err := socketutil.WaitForServer(waitCtx, cfg.Host, waitPorts(cfg), 0)
		cancelWait()
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*(*timeout))
	defer cancel()

	start := time.Now()
	if err := requester.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", requester.GetState(), err)
	}
	fmt.Printf("Submitted message for %s in %s\n", requester.ID(), time.Since(start).Round(time.Millisecond))
	return nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitPorts lists the ports polled by -wait. Both listeners are bound together,
// so the issuing port is enough, and the validating port's counters stay clean.
func waitPorts(cfg *socketclient.Config) []int {
	return []int{cfg.IssuePort}
}
