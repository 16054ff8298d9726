package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/agent"
	"github.com/xkilldash9x/navigator-cli/internal/browser"
	"github.com/xkilldash9x/navigator-cli/internal/config"
	"github.com/xkilldash9x/navigator-cli/internal/controller"
	"github.com/xkilldash9x/navigator-cli/internal/llmclient"
	"github.com/xkilldash9x/navigator-cli/internal/observability"
)

var (
	runTask     string
	runStartURL string
	runResume   string
	runMaxSteps int
	runHeadless bool
	runProvider string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a browser task to completion, streaming progress as JSON lines.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTask == "" && runResume == "" {
			return fmt.Errorf("either --task or --resume is required")
		}
		applyRunOverrides(cfg, cmd)
		return runAgent(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "task for the agent to complete")
	runCmd.Flags().StringVarP(&runStartURL, "url", "u", "", "URL to open before the first step")
	runCmd.Flags().StringVar(&runResume, "resume", "", "resumption token from an earlier timed-out run")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "override the step budget")
	runCmd.Flags().BoolVar(&runHeadless, "headless", true, "run the browser headless")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "override the LLM provider (gemini or openai)")
	rootCmd.AddCommand(runCmd)
}

// applyRunOverrides folds explicitly set flags into the loaded config.
func applyRunOverrides(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("max-steps") && runMaxSteps > 0 {
		cfg.Agent.MaxSteps = runMaxSteps
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}
	if cmd.Flags().Changed("provider") {
		cfg.LLM.Provider = runProvider
	}
}

// runAgent wires the browser session, capability registry, oracle and agent
// together and drives one run.
func runAgent(parent context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector := browser.NewMockDetector(rand.New(rand.NewSource(time.Now().UnixNano())), logger)
	session, err := browser.NewSession(ctx, cfg.Browser, detector, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Warn("Failed to close browser session", zap.Error(err))
		}
	}()

	if runStartURL != "" {
		if err := session.Navigate(ctx, runStartURL); err != nil {
			return fmt.Errorf("failed to open start URL: %w", err)
		}
	}

	ctrl := controller.New(logger)
	if err := controller.RegisterDefaults(ctrl, session, cfg.Browser, logger); err != nil {
		return fmt.Errorf("failed to register capabilities: %w", err)
	}

	client, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	oracle := agent.NewLLMOracle(client, ctrl.Descriptions(), providerTemperature(cfg.LLM), logger)
	ag := agent.New(oracle, ctrl, session, cfg.Agent, logger)

	g, gctx := errgroup.WithContext(ctx)

	var output *schemas.AgentOutput
	g.Go(func() error {
		var runErr error
		output, runErr = ag.Run(gctx, agent.RunOptions{
			Task:            runTask,
			ResumptionToken: runResume,
		})
		return runErr
	})

	// The stream is consumed concurrently so the loop is never throttled by
	// stdout. One JSON line per chunk.
	g.Go(func() error {
		for chunk := range ag.Stream() {
			line, err := schemas.MarshalStreamChunk(chunk)
			if err != nil {
				logger.Error("Failed to marshal stream chunk", zap.Error(err))
				continue
			}
			fmt.Fprintln(os.Stdout, string(line))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Run finished",
		zap.String("status", string(output.Status)),
		zap.Int("steps", output.StepCount),
		zap.String("trace_id", output.TraceID),
	)
	if output.Status == schemas.RunFailed {
		return fmt.Errorf("run failed: %s", output.Result.Error)
	}
	return nil
}

// providerTemperature is the sampling temperature of the active provider.
func providerTemperature(cfg config.LLMConfig) float32 {
	switch cfg.Provider {
	case "openai":
		return cfg.Providers.OpenAI.Temperature
	default:
		return cfg.Providers.Gemini.Temperature
	}
}
