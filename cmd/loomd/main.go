// Command loomd is the loom engine daemon and CLI.
//
// Start the server:
//
//	loomd serve --config loom.yaml
//
// Run a one-shot request:
//
//	loomd run --config loom.yaml "summarize the README"
//
// Inspect traces:
//
//	loomd trace list
//	loomd trace get <id>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/config"
	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/pkg/models"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "loomd",
		Short:        "loom - agentic LLM execution engine",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("LOOM_CONFIG"), "Path to configuration file")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildTraceCmd(),
		buildSchemaCmd(),
	)
	return rootCmd
}

// loadRuntime loads config, installs the logger and assembles the runtime.
func loadRuntime(ctx context.Context, withMetrics bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)
	return buildRuntime(ctx, cfg, logger, withMetrics)
}

func buildRunCmd() *cobra.Command {
	var (
		provider  string
		model     string
		maxTurns  int
		sessionID string
		stream    bool
	)
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Run one request against the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			opts := agent.RunOptions{
				ModelProvider: provider,
				Model:         model,
				MaxTurns:      maxTurns,
				SessionID:     sessionID,
			}

			var result *models.AgentResult
			if stream {
				events := agent.NewEventStream()
				done := make(chan *models.AgentResult, 1)
				go func() { done <- rt.agent.Run(ctx, args[0], opts, events) }()
				for event := range events.Events() {
					if event.Type == models.EventTextDelta {
						fmt.Print(event.Data["text"])
					}
				}
				fmt.Println()
				result = <-done
			} else {
				result = rt.agent.Run(ctx, args[0], opts, nil)
				fmt.Println(result.Answer)
			}

			if !result.Success {
				return fmt.Errorf("run failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (default from config)")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Turn budget (default 60)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream text output")
	return cmd
}

func buildTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect run traces",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			traces, err := rt.traces.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, tr := range traces {
				fmt.Printf("%s  %-9s  turns=%-3d  %s\n", tr.ID, tr.Status, tr.TotalTurns, tr.Request)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum traces to list")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Print one trace as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			tr, err := rt.traces.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payload, err := json.MarshalIndent(tr, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(schema))
			return nil
		},
	}
}
