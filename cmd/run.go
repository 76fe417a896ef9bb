// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/agent"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/service"
)

const interactivePrompt = "pilot > "

// runOptions holds the per-invocation overrides shared by the root and run commands.
type runOptions struct {
	task     string
	headless bool
	vision   bool
	model    string
	maxSteps int
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "task to perform in natural language")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run the browser without a visible window")
	cmd.Flags().BoolVar(&opts.vision, "vision", false, "send screenshots to the vision processor")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "override the configured LLM model")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "maximum number of step attempts")
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a single task and exit",
		Long: `Runs one task to completion and prints the outcome.
The task may be given with --task or as the remaining arguments.`,
		Example: `  pilot run "find the cheapest flight from Lisbon to Oslo next Friday"
  pilot run --task "open example.com and summarize the page" --headless`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.task == "" {
				opts.task = strings.TrimSpace(strings.Join(args, " "))
			}
			if opts.task == "" {
				return errors.New("a task is required, pass --task or provide it as an argument")
			}
			return runSingleTask(cmd, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

// applyOverrides copies explicitly set flags onto the loaded configuration.
func applyOverrides(cmd *cobra.Command, cfg config.Interface, opts *runOptions) error {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if flags.Changed("vision") {
		cfg.SetAgentUseVision(opts.vision)
	}
	if flags.Changed("model") {
		cfg.SetLLMModel(opts.model)
	}
	if flags.Changed("max-steps") {
		if opts.maxSteps <= 0 {
			return fmt.Errorf("--max-steps must be greater than 0, got %d", opts.maxSteps)
		}
		cfg.SetAgentMaxSteps(opts.maxSteps)
	}
	return nil
}

// prepare applies flag overrides and creates the shared components.
func prepare(cmd *cobra.Command, opts *runOptions) (*service.AppContext, *service.Components, error) {
	app, err := appFromContext(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if err := applyOverrides(cmd, app.Config, opts); err != nil {
		return nil, nil, err
	}
	components, err := newComponentFactory().Create(cmd.Context(), app)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return app, components, nil
}

func runSingleTask(cmd *cobra.Command, opts *runOptions) error {
	app, components, err := prepare(cmd, opts)
	if err != nil {
		return err
	}
	defer components.Shutdown()

	outcome, err := executeTask(cmd.Context(), cmd.OutOrStdout(), app, components, opts.task)
	if err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("task did not succeed (state %s)", outcome.State)
	}
	return nil
}

// runInteractive reads tasks line by line until exit, quit, EOF or cancellation.
// A failed task is reported and the loop continues.
func runInteractive(cmd *cobra.Command, opts *runOptions) error {
	app, components, err := prepare(cmd, opts)
	if err != nil {
		return err
	}
	defer components.Shutdown()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pilot %s, type a task or \"exit\" to quit.\n", Version)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, interactivePrompt)
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			return nil
		}

		task := strings.TrimSpace(line)
		switch strings.ToLower(task) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if _, err := executeTask(ctx, out, app, components, task); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func executeTask(ctx context.Context, out io.Writer, app *service.AppContext, components *service.Components, task string) (*agent.RunOutcome, error) {
	orch, err := components.NewOrchestrator(task)
	if err != nil {
		return nil, err
	}
	app.Logger.Info("Starting task.", zap.String("run_id", orch.RunID()))

	outcome, err := orch.Run(ctx)
	if outcome != nil {
		printOutcome(out, outcome)
	}
	if err != nil {
		return outcome, fmt.Errorf("task run failed: %w", err)
	}
	return outcome, nil
}

func printOutcome(w io.Writer, outcome *agent.RunOutcome) {
	fmt.Fprintf(w, "State:    %s\n", outcome.State)
	fmt.Fprintf(w, "Success:  %t\n", outcome.Success)
	fmt.Fprintf(w, "Steps:    %d (attempts %d)\n", outcome.Steps, outcome.Attempts)
	if outcome.FinalResult != "" {
		fmt.Fprintf(w, "Result:   %s\n", outcome.FinalResult)
	}
	if outcome.LastError != "" && !outcome.Success {
		fmt.Fprintf(w, "Last error: %s\n", outcome.LastError)
	}
}
