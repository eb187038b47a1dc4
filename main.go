package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/last-minute-learner/reviewer-api/internal/cli"
	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/errorlog"
	"github.com/last-minute-learner/reviewer-api/internal/llm"
	"github.com/last-minute-learner/reviewer-api/internal/pdf"
	"github.com/last-minute-learner/reviewer-api/internal/registry"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/server"
	"github.com/last-minute-learner/reviewer-api/internal/telemetry"
	"github.com/last-minute-learner/reviewer-api/internal/tools/generatereviewer"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	ucli "github.com/urfave/cli/v3"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

const (
	// DefaultMemoryLimit is the default soft memory limit (2GB)
	DefaultMemoryLimit = 2 * 1024 * 1024 * 1024

	// EnvMemoryLimit overrides DefaultMemoryLimit, in bytes
	EnvMemoryLimit = "REVIEWER_MEMORY_LIMIT"

	appName = "reviewer-api"
)

// parseLogLevel parses the LOG_LEVEL environment variable, returning def if
// it is unset or invalid
func parseLogLevel(def logrus.Level) logrus.Level {
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		return def
	}

	switch strings.ToLower(strings.TrimSpace(logLevelStr)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return def
	}
}

// setMemoryLimit configures the Go runtime memory limit
func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit

	if memLimitStr := os.Getenv(EnvMemoryLimit); memLimitStr != "" {
		if parsed, err := strconv.ParseInt(memLimitStr, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}

	// Soft limit: the runtime adjusts GC to stay under it
	debug.SetMemoryLimit(memLimit)
}

func main() {
	// A missing .env file is fine
	envErr := godotenv.Load()

	setMemoryLimit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel(logrus.InfoLevel))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if envErr != nil && !os.IsNotExist(envErr) {
		logger.WithError(envErr).Warn("Failed to load .env file")
	}

	defer closeLogFile()

	app := &ucli.Command{
		Name:    appName,
		Usage:   "Generate study reviewers from prompts and PDF documents",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: ucli.EnvVars(config.EnvConfigPath),
			},
			&ucli.StringFlag{
				Name:  "port",
				Usage: "Port for the HTTP server (overrides PORT)",
			},
		},
		Commands: []*ucli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API (default)",
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					return runServe(ctx, cmd, logger)
				},
			},
			{
				Name:  "generate",
				Usage: "Generate a single reviewer and print it",
				Flags: []ucli.Flag{
					&ucli.StringFlag{
						Name:    "prompt",
						Aliases: []string{"p"},
						Usage:   "Topic or instructions for the reviewer",
					},
					&ucli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "PDF document to include",
					},
					&ucli.StringFlag{
						Name:  "pages",
						Value: "all",
						Usage: "Page range to read from the PDF (e.g. 1-5, 1,3,5, all)",
					},
					&ucli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Value:   string(cli.OutputText),
						Usage:   "Output format (text or json)",
					},
				},
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					return runGenerate(ctx, cmd, logger)
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve the generate_reviewer tool over MCP stdio",
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					return runMCP(ctx, cmd, logger)
				},
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					fmt.Printf("%s version %s\n", appName, Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
		},
		Action: func(ctx context.Context, cmd *ucli.Command) error {
			return runServe(ctx, cmd, logger)
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// Nothing may be written to stdout or stderr in stdio mode
		if !isStdioMode.Load() {
			logger.Errorf("Error: %v", err)
		}
		closeLogFile()
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cmd *ucli.Command, logger *logrus.Logger) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdownTelemetry := initTelemetry(logger)
	defer shutdownTelemetry()

	service, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	errLog := openErrorLog(logger)
	defer func() { _ = errLog.Close() }()

	logger.Infof("Starting %s version %s (commit: %s, built: %s)", appName, Version, Commit, BuildDate)
	logger.WithFields(logrus.Fields{
		"provider":        cfg.LLM.Provider,
		"model":           cfg.LLM.Model,
		"allowed_origins": strings.Join(cfg.AllowedOrigins, ","),
		"rate_limited":    cfg.RateLimit.Enabled(),
	}).Info("Configuration loaded")

	return server.New(cfg, service, errLog, logger).Run(ctx)
}

func runGenerate(ctx context.Context, cmd *ucli.Command, logger *logrus.Logger) error {
	// Keep the terminal for the document unless asked otherwise
	logger.SetLevel(parseLogLevel(logrus.WarnLevel))

	output, err := cli.ParseOutputFormat(cmd.String("output"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdownTelemetry := initTelemetry(logger)
	defer shutdownTelemetry()

	service, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	tool := generatereviewer.New(service, cfg.MaxUploadBytes)
	runner := cli.NewRunner(tool, logger, output, os.Stdout)

	return runner.Generate(ctx, generatereviewer.Request{
		Prompt:   cmd.String("prompt"),
		FilePath: cmd.String("file"),
		Pages:    cmd.String("pages"),
	})
}

func runMCP(ctx context.Context, cmd *ucli.Command, logger *logrus.Logger) error {
	isStdioMode.Store(true)
	configureFileLogging(logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdownTelemetry := initTelemetry(logger)
	defer shutdownTelemetry()

	service, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	errLog := openErrorLog(logger)
	defer func() { _ = errLog.Close() }()

	reg := registry.New(logger, os.Getenv(registry.EnvDisabledTools))
	reg.Register(generatereviewer.New(service, cfg.MaxUploadBytes))

	logger.Debug("Starting stdio server")
	stdio := mcpserver.NewStdioServer(reg.NewMCPServer(appName, Version, errLog))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// loadConfig builds the configuration from file, environment and flags
func loadConfig(cmd *ucli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"), os.LookupEnv)
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("port") {
		cfg.Port = cmd.String("port")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func buildService(cfg *config.Config, logger *logrus.Logger) (*reviewer.Service, error) {
	generator, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s generator: %w", cfg.LLM.Provider, err)
	}

	extractor := pdf.NewExtractor(logger, cfg.MaxPDFPages)
	return reviewer.NewService(extractor, generator, logger), nil
}

// initTelemetry starts tracing and metrics. Failures leave the noop
// providers in place.
func initTelemetry(logger *logrus.Logger) func() {
	shutdownTracer, err := telemetry.InitTracer(logger, Version)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise tracing")
	}

	shutdownMetrics, err := telemetry.InitMetrics(logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise metrics")
	}

	return func() {
		if shutdownMetrics != nil {
			if err := shutdownMetrics(); err != nil {
				logger.WithError(err).Debug("Metrics shutdown failed")
			}
		}
		if shutdownTracer != nil {
			if err := shutdownTracer(); err != nil {
				logger.WithError(err).Debug("Tracer shutdown failed")
			}
		}
	}
}

// openErrorLog returns the failure log, or nil if it cannot be opened
func openErrorLog(logger *logrus.Logger) *errorlog.Logger {
	enabled := strings.EqualFold(strings.TrimSpace(os.Getenv(errorlog.EnvLogGenerationErrors)), "true")
	if !enabled {
		return nil
	}

	dir, err := errorlog.DefaultDir()
	if err != nil {
		logger.WithError(err).Warn("Failed to resolve generation error log directory")
		return nil
	}

	errLog, err := errorlog.New(logger, true, dir)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise generation error logger")
		return nil
	}
	return errLog
}

// configureFileLogging sends logs to ~/.reviewer-api/logs so stdout and
// stderr stay clean for the MCP protocol
func configureFileLogging(logger *logrus.Logger) {
	logger.SetLevel(parseLogLevel(logrus.WarnLevel))

	logDir, err := errorlog.DefaultDir()
	if err != nil {
		logger.SetOutput(io.Discard)
		return
	}
	if err := os.MkdirAll(logDir, 0700); err != nil {
		logger.SetOutput(io.Discard)
		return
	}

	file, err := os.OpenFile(filepath.Join(logDir, appName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger.SetOutput(io.Discard)
		return
	}

	debugLogFile.Store(file)
	logger.SetOutput(file)
	logrus.SetOutput(file)
	logger.WithField("level", logger.GetLevel().String()).Debug("Logging configured")
}

func closeLogFile() {
	if file := debugLogFile.Swap(nil); file != nil {
		_ = file.Sync()
		_ = file.Close()
	}
}
