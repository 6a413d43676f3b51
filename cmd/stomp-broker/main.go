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

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/server"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

type arguments struct {
	configPath string
	port       int
	mode       string
}

func usage(output io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(output, "Usage: stomp-broker [--config path] <port> <%s|%s>\n", server.ModeReactor, server.ModeThreadPerClient)
	fs.PrintDefaults()
}

func parseArgs(args []string, output io.Writer) (arguments, error) {
	var parsed arguments
	fs := pflag.NewFlagSet("stomp-broker", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&parsed.configPath, "config", "c", config.DefaultPath, "path of the JSON configuration file")
	fs.Usage = func() { usage(output, fs) }

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(output, err)
		usage(output, fs)
		return parsed, errUsage
	}
	if fs.NArg() != 2 {
		usage(output, fs)
		return parsed, errUsage
	}

	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil || port <= 0 || port > 65535 {
		fmt.Fprintf(output, "Invalid port %q\n", fs.Arg(0))
		usage(output, fs)
		return parsed, errUsage
	}
	parsed.port = port

	parsed.mode = fs.Arg(1)
	if parsed.mode != server.ModeReactor && parsed.mode != server.ModeThreadPerClient {
		fmt.Fprintf(output, "Unknown mode %q\n", parsed.mode)
		usage(output, fs)
		return parsed, errUsage
	}
	return parsed, nil
}

func run(args []string, output io.Writer) int {
	parsed, err := parseArgs(args, output)
	if err != nil {
		return 1
	}

	cfg, err := config.ReadConfig(parsed.configPath)
	if err != nil && !errors.Is(err, config.ErrConfigCreated) {
		fmt.Fprintf(output, "Error occured while reading config: %v\n", err)
		return 1
	}

	loggerCallback := logger.Init(cfg.LogDir, cfg.DebugMode)
	if errors.Is(err, config.ErrConfigCreated) {
		logger.WarnF("Configuration file %s not found, created with default values", parsed.configPath)
	}
	logger.Debug("Application initializing...")

	cleaner := event.NewCleaner(loggerCallback)
	cleaner.SetInvokeTimeout(config.Duration(cfg.Server.ShutdownTimeout))
	defer func() {
		_ = cleaner.Cleanup()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Store, cfg.AppName)
	if err != nil {
		logger.FatalF("Error occured while initializing credential store, details: %v", err)
		return 1
	}
	cleaner.Add(database.NewStoreCloseCallback(store))

	strategy, err := server.NewStrategy(parsed.mode, cfg.Server.ReactorWorkers, cfg.Server.MailboxSize)
	if err != nil {
		logger.FatalF("Error occured while creating server strategy, details: %v", err)
		return 1
	}

	srv := server.New(strategy, connection.NewRegistry(),
		database.NewSessionManager(store, cfg.Store.BcryptCost),
		server.Options{
			MaxConnections: cfg.Server.MaxConnections,
			MaxFrameSize:   cfg.Server.MaxFrameSize,
			OutboxSize:     cfg.Server.OutboxSize,
			ReadTimeout:    config.Duration(cfg.Server.ReadTimeout),
			WriteTimeout:   config.Duration(cfg.Server.WriteTimeout),
		})

	if err := srv.ListenAndServe(ctx, parsed.port); err != nil {
		logger.FatalF("STOMP Server Start error: %v", err)
		return 1
	}
	logger.Info("Received interrupt signal, shutting down")
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
