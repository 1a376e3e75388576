package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	goopenai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/parley-ai/parley"
	"github.com/parley-ai/parley/agent"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/history"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/model/anthropic"
	"github.com/parley-ai/parley/model/openai"
	"github.com/parley-ai/parley/session"
	"github.com/parley-ai/parley/store"
	"github.com/parley-ai/parley/transport/ws"
	"github.com/parley-ai/parley/usage"
	"github.com/parley-ai/parley/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Real-time conversational agent runtime",
		Version:       parley.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())

	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	return cmd
}

func serve(cfg *config.Config) error {
	logger := logging.New(func(o *logging.Options) {
		o.Level = logLevel(cfg.Logging.Level)
		o.Format = cfg.Logging.Format
		o.Component = "parley"
	})

	st, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}

	m, err := buildModel(cfg)
	if err != nil {
		return err
	}

	recorder := usage.Recorder(usage.NoOpRecorder{})
	if cfg.Metrics.Enabled {
		recorder = usage.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	}

	builder := func(workflowType, agentID string) (*agent.Agent, error) {
		h, err := buildHistory(cfg, m, logger)
		if err != nil {
			return nil, err
		}

		return agent.New(m, h, func(o *agent.Options) {
			o.SystemContext = cfg.Agent.SystemContext
			o.MaxToolAttempts = cfg.Agent.MaxToolAttempts
			o.Temperature = cfg.Agent.Temperature
			o.MaxTokens = cfg.Agent.MaxTokens
			o.Usage = recorder
			o.Logger = logger
		}), nil
	}

	factory := workflow.NewFactory(builder, st, func(o *workflow.FactoryOptions) {
		o.Logger = logger
		o.NonStreaming = cfg.Agent.Streaming != nil && !*cfg.Agent.Streaming
	})

	registry := session.NewRegistry(factory, func(o *session.RegistryOptions) {
		o.Logger = logger
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewServer(registry, logger))
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("server.shutdown", "signal", sig.String())
		return server.Close()
	}
}

func buildStore(cfg *config.Config, logger logging.Logger) (store.ChatStore, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Database.Path, logger)
	default:
		return store.NewInMemoryStore(), nil
	}
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Provider.Name {
	case "openai":
		var clientOpts []option.RequestOption
		if cfg.Provider.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(cfg.Provider.APIKey))
		}
		client := goopenai.NewClient(clientOpts...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			if cfg.Provider.Model != "" {
				o.Model = cfg.Provider.Model
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.Provider.APIKey
			if cfg.Provider.Model != "" {
				o.Model = sdkanthropic.Model(cfg.Provider.Model)
			}
		}), nil
	case "mock":
		return model.NewMockModel("mock"), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func buildHistory(cfg *config.Config, m model.Model, logger logging.Logger) (history.History, error) {
	switch cfg.History.Policy {
	case "token":
		return history.NewTokenBounded(func(o *history.TokenBoundedOptions) {
			if cfg.History.MaxTokens > 0 {
				o.Threshold = cfg.History.MaxTokens
			}
			o.Summarizer = m
			o.Logger = logger
		})
	default:
		return history.NewCountBounded(cfg.History.MaxMessages), nil
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
