package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"

	"github.com/smazurov/watchnode/cmd"
	"github.com/smazurov/watchnode/internal/api"
	"github.com/smazurov/watchnode/internal/app"
	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/logging"
	"github.com/smazurov/watchnode/internal/metrics/exporters"
	"github.com/smazurov/watchnode/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config  string `help:"Path to configuration file" short:"c" default:"config.toml"`
	EnvFile string `help:"Dotenv file loaded before configuration" default:".env"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origins, * or a comma separated list" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Settings file (cameras, schedules, integrations)
	SettingsPath  string `help:"Runtime settings file" default:"settings.toml" toml:"settings.path" env:"SETTINGS_PATH"`
	WatchSettings bool   `help:"Reload settings when the file changes" default:"true" toml:"settings.watch" env:"SETTINGS_WATCH"`

	// Observability settings
	PrometheusEnabled bool `help:"Expose /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera    string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingFFmpeg    string `help:"FFmpeg process logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingScheduler string `help:"Scheduler logging level" default:"info" toml:"logging.scheduler" env:"LOGGING_SCHEDULER"`
	LoggingAnalysis  string `help:"Analysis logging level" default:"info" toml:"logging.analysis" env:"LOGGING_ANALYSIS"`
	LoggingAI        string `help:"AI client logging level" default:"info" toml:"logging.ai" env:"LOGGING_AI"`
	LoggingNotify    string `help:"Notification logging level" default:"info" toml:"logging.notify" env:"LOGGING_NOTIFY"`
	LoggingStorage   string `help:"Storage logging level" default:"info" toml:"logging.storage" env:"LOGGING_STORAGE"`
	LoggingConfig    string `help:"Settings logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP      string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingDevices   string `help:"Capture device discovery logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingSystemd   string `help:"systemd notification logging level" default:"info" toml:"logging.systemd" env:"LOGGING_SYSTEMD"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Values from the dotenv file never override the real environment
		if opts.EnvFile != "" {
			if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Failed to load env file", "path", opts.EnvFile, "error", err)
			}
		}

		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera":    opts.LoggingCamera,
				"ffmpeg":    opts.LoggingFFmpeg,
				"scheduler": opts.LoggingScheduler,
				"analysis":  opts.LoggingAnalysis,
				"ai":        opts.LoggingAI,
				"notify":    opts.LoggingNotify,
				"storage":   opts.LoggingStorage,
				"config":    opts.LoggingConfig,
				"api":       opts.LoggingAPI,
				"http":      opts.LoggingHTTP,
				"devices":   opts.LoggingDevices,
				"systemd":   opts.LoggingSystemd,
			},
		})

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Forward every log entry to the log stream subscribers
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		ctx, cancel := context.WithCancel(context.Background())

		application, err := app.New(ctx, app.Options{
			SettingsPath:  opts.SettingsPath,
			Bus:           eventBus,
			WatchSettings: opts.WatchSettings,
		})
		if err != nil {
			logger.Error("Failed to initialize", "error", err)
			os.Exit(1)
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			CORSOrigin:   opts.CORSOrigin,
			App:          application,
		}
		if opts.PrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}

		server := api.NewServer(apiOpts)
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		hooks.OnStart(func() {
			if startErr := application.Start(ctx); startErr != nil {
				logger.Error("Failed to start", "error", startErr)
				os.Exit(1)
			}
			notifier.Ready()
			go notifier.RunWatchdog(ctx)

			logger.Info("Starting HTTP server", "port", opts.Port, "settings", opts.SettingsPath)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Cameras and scheduled jobs stop after the API stops accepting requests
			application.Stop()
			cancel()
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateConfigCmd())
	cli.Root().AddCommand(cmd.CreateSnapshotCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}
