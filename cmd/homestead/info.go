package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/output"
)

func newOutputFormatter() (output.Formatter, error) {
	if err := output.ValidateFormat(outputFormat); err != nil {
		return nil, err
	}
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

var infoCmd = &cobra.Command{
	Use:   "info <vm-name>",
	Short: "Show details about a VM",
	Long: `Display detailed information about a virtual machine, including the
resolved configuration stored in its domain metadata.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Full YAML representation
  -o json   Full JSON representation`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmName := args[0]

		formatter, err := newOutputFormatter()
		if err != nil {
			return err
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer closeClient(client)

		ctx := context.Background()
		info, err := lifecycle.Get(ctx, client.Libvirt(), vmName)
		if err != nil {
			return fmt.Errorf("failed to get VM: %w", err)
		}

		result, err := formatter.FormatVM(info)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Long: `List all virtual machines known to libvirt, running and stopped.

Shows VM name, state, address, autostart, and resources.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newOutputFormatter()
		if err != nil {
			return err
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer closeClient(client)

		ctx := context.Background()
		vms, err := lifecycle.List(ctx, client.Libvirt())
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		result, err := formatter.FormatVMList(vms)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}
