package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [environment...]",
	Short: "Run the CI pipeline across environments",
	Long: `Resolve and validate every environment in sequence, collecting all
failures into a single report instead of stopping at the first.

By default runs in check mode: each environment is resolved, validated, and
its domain XML and cloud-init seed are rendered, without touching the
hypervisor. With --apply, each valid environment is driven toward the
target state instead.

Without arguments, all environments declared under environments/ are run.
Applying --target absent is destructive and requires --yes.

Exit codes: 0 when every environment passed, 1 on any validation or
execution failure, 2 when a configuration file is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		targetStr, _ := cmd.Flags().GetString("target")

		formatter, err := newOutputFormatter()
		if err != nil {
			return err
		}

		overrides, err := parseOverrides(setFlags)
		if err != nil {
			return err
		}

		environments := args
		if len(environments) == 0 {
			environments, err = config.ListEnvironments(configDir)
			if err != nil {
				return err
			}
		}

		driver := &pipeline.Driver{
			ConfigDir: configDir,
			Overrides: overrides,
		}

		if apply {
			target, err := lifecycle.ParseState(targetStr)
			if err != nil {
				return err
			}

			yes, _ := cmd.Flags().GetBool("yes")
			if err := confirmPipelineTarget(target, yes); err != nil {
				return err
			}

			client, err := connect()
			if err != nil {
				return err
			}
			defer closeClient(client)

			driver.Executor = newExecutor(client)
			driver.Target = target
		}

		ctx := context.Background()
		report, err := driver.Run(ctx, environments)
		if err != nil {
			return err
		}

		result, err := formatter.FormatReport(report)
		if err != nil {
			return fmt.Errorf("failed to format report: %w", err)
		}
		fmt.Print(result)

		if code := report.ExitCode(); code != 0 {
			return &exitError{
				code: code,
				msg:  fmt.Sprintf("pipeline run %s failed", report.ID),
			}
		}
		return nil
	},
}

// confirmPipelineTarget enforces the same confirmation destroy requires.
// Driving environments to absent deletes every selected VM and its
// volumes, and the pipeline has no interactive prompt to fall back on.
func confirmPipelineTarget(target lifecycle.State, yes bool) error {
	if target == lifecycle.StateAbsent && !yes {
		return fmt.Errorf("--target absent destroys every selected VM and its volumes, pass --yes to confirm")
	}
	return nil
}

func init() {
	pipelineCmd.Flags().Bool("apply", false,
		"Drive each valid environment toward the target state")
	pipelineCmd.Flags().String("target", string(lifecycle.StateRunning),
		"Target state for --apply: absent, present, running, or stopped")
	pipelineCmd.Flags().Bool("yes", false,
		"Confirm a destructive --target without prompting")
}
