package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/libvirt"
	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/logging"
	"github.com/jbweber/homestead/internal/storage"
	"github.com/jbweber/homestead/internal/validate"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes:
//
//	0 success
//	1 validation or execution failure
//	2 missing configuration file or environment
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitError carries an explicit exit code out of a RunE, bypassing the
// default mapping in exitCodeFor.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCodeFor(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if config.IsNotFound(err) {
		return 2
	}
	return 1
}

var (
	configDir    string
	envName      string
	setFlags     []string
	socketPath   string
	outputFormat string
	noHeaders    bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "homestead",
	Short: "Homestead - Declarative libvirt VM lifecycle tool",
	Long: `Homestead drives libvirt VMs toward declared states from layered YAML
configuration.

A config directory holds shared defaults (defaults.yaml) and per-environment
files (environments/<name>.yaml). Runtime overrides (--set key=value) take
precedence over environment values, which take precedence over defaults.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose)
	},
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "C",
		envDefault("HOMESTEAD_CONFIG_DIR", "."), "Configuration directory")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e",
		os.Getenv("HOMESTEAD_ENV"), "Environment name")
	rootCmd.PersistentFlags().StringArrayVar(&setFlags, "set", nil,
		"Runtime override key=value (repeatable)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket",
		os.Getenv("HOMESTEAD_SOCKET"), "Libvirt daemon socket path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o",
		"table", "Output format: table, yaml, or json")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"Omit table headers")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v",
		os.Getenv("HOMESTEAD_VERBOSE") != "", "Enable debug logging")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(testConnCmd)
}

func parseOverrides(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", pair)
		}
		overrides[key] = value
	}
	return overrides, nil
}

// resolveSpec resolves the selected environment with runtime overrides.
func resolveSpec() (*config.ResolvedSpec, error) {
	if envName == "" {
		return nil, fmt.Errorf("no environment selected, use --env or HOMESTEAD_ENV")
	}
	overrides, err := parseOverrides(setFlags)
	if err != nil {
		return nil, err
	}
	return config.Resolve(configDir, envName, overrides)
}

// validateSpec runs the full validator against the resolved spec.
// Warnings are printed but do not block; errors do.
func validateSpec(spec *config.ResolvedSpec) error {
	reserved, err := config.ReservedAddresses(configDir, spec.Environment)
	if err != nil {
		return fmt.Errorf("failed to load reserved addresses: %w", err)
	}
	result := validate.Validate(spec, reserved)
	for _, w := range result.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if !result.OK() {
		for _, v := range result.Errors() {
			fmt.Fprintf(os.Stderr, "Error: %s\n", v)
		}
		return fmt.Errorf("validation failed with %d error(s)", len(result.Errors()))
	}
	return nil
}

func connect() (*libvirt.Client, error) {
	client, err := libvirt.Connect(socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	return client, nil
}

func closeClient(client *libvirt.Client) {
	if err := client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

// verifyDaemon fails fast when the daemon is older than the pinned minimum.
func verifyDaemon(client *libvirt.Client, spec *config.ResolvedSpec) error {
	if spec.MinLibvirtVersion == "" {
		return nil
	}
	return client.VerifyVersion(spec.MinLibvirtVersion)
}

func newExecutor(client *libvirt.Client) *lifecycle.Executor {
	return lifecycle.NewExecutor(client.Libvirt(), storage.NewManager(client.Libvirt()))
}

// ensureState is the shared body of create/start/stop: resolve, validate,
// connect, drive the executor toward the target state.
func ensureState(target lifecycle.State) error {
	spec, err := resolveSpec()
	if err != nil {
		return err
	}
	if err := validateSpec(spec); err != nil {
		return err
	}

	client, err := connect()
	if err != nil {
		return err
	}
	defer closeClient(client)

	if err := verifyDaemon(client, spec); err != nil {
		return err
	}

	ctx := context.Background()
	if err := newExecutor(client).EnsureState(ctx, spec, target); err != nil {
		return err
	}

	fmt.Printf("✓ VM %s is %s\n", spec.Name, target)
	return nil
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Define a VM for the selected environment",
	Long: `Define a virtual machine from the selected environment's resolved
configuration.

Creates the boot disk (backed by the base image when one is configured),
generates and uploads the cloud-init seed ISO, defines the libvirt domain,
and stores the resolved configuration in domain metadata. The VM is defined
but not started; use 'homestead start' to boot it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ensureState(lifecycle.StatePresent)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the selected environment's VM",
	Long: `Start the virtual machine for the selected environment, defining it
first if it does not exist. Idempotent: starting a running VM is a no-op.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ensureState(lifecycle.StateRunning)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Gracefully stop the selected environment's VM",
	Long: `Request a graceful guest shutdown and wait for the domain to reach
shutoff. If the guest does not shut down within the timeout the command
fails; it never escalates to a forced stop. Use 'homestead destroy' when a
forced stop is intended.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		spec, err := resolveSpec()
		if err != nil {
			return err
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer closeClient(client)

		e := newExecutor(client)
		e.ShutdownTimeout = timeout

		ctx := context.Background()
		if err := e.EnsureState(ctx, spec, lifecycle.StateStopped); err != nil {
			return err
		}

		fmt.Printf("✓ VM %s is stopped\n", spec.Name)
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy [vm-name]",
	Short: "Destroy a VM and its storage",
	Long: `Destroy a virtual machine, either by name or for the selected
environment.

This will:
- Force-stop the VM if it is running
- Undefine the domain
- Delete the VM's boot disk and cloud-init seed volumes

Destroying an absent VM is a success; leftover volumes are still swept.
Destruction is permanent and requires confirmation: pass --yes or type the
VM name at the prompt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		var spec *config.ResolvedSpec
		if len(args) == 1 {
			// Destroy by name, no configuration required. The storage
			// pool defaults to homestead-vms.
			spec = &config.ResolvedSpec{Name: args[0]}
		} else {
			var err error
			spec, err = resolveSpec()
			if err != nil {
				return err
			}
		}

		if !yes {
			if err := confirmDestroy(os.Stdin, spec.Name); err != nil {
				return err
			}
		}

		client, err := connect()
		if err != nil {
			return err
		}
		defer closeClient(client)

		ctx := context.Background()
		if err := newExecutor(client).EnsureState(ctx, spec, lifecycle.StateAbsent); err != nil {
			return err
		}

		fmt.Printf("✓ VM %s destroyed\n", spec.Name)
		return nil
	},
}

func confirmDestroy(in io.Reader, name string) error {
	fmt.Printf("This will permanently delete VM %s and its volumes.\n", name)
	fmt.Printf("Type the VM name to confirm: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != name {
		return fmt.Errorf("confirmation did not match, aborting")
	}
	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the selected environment's configuration",
	Long: `Resolve the selected environment and run every validation check,
reporting all violations together rather than stopping at the first.

Exit code is 0 when only warnings (or nothing) are found, 1 when any check
reports an error.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := resolveSpec()
		if err != nil {
			return err
		}

		reserved, err := config.ReservedAddresses(configDir, spec.Environment)
		if err != nil {
			return fmt.Errorf("failed to load reserved addresses: %w", err)
		}

		result := validate.Validate(spec, reserved)
		for _, v := range result.Violations {
			fmt.Println(v)
		}
		if !result.OK() {
			return fmt.Errorf("validation failed with %d error(s)", len(result.Errors()))
		}

		fmt.Printf("✓ Environment %s is valid (%d warning(s))\n",
			spec.Environment, len(result.Warnings()))
		return nil
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Testing libvirt connection...")

		client, err := connect()
		if err != nil {
			return err
		}
		defer closeClient(client)

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		daemonVersion, err := client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}
		fmt.Printf("✓ Libvirt version: %s\n", libvirt.FormatVersion(daemonVersion))

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		uri, err := client.Libvirt().ConnectGetUri()
		if err != nil {
			return fmt.Errorf("failed to get connection URI: %w", err)
		}
		fmt.Printf("✓ Connection URI: %s\n", uri)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}

func init() {
	stopCmd.Flags().Duration("timeout", lifecycle.DefaultShutdownTimeout,
		"How long to wait for graceful shutdown before failing")
	destroyCmd.Flags().Bool("yes", false, "Skip the interactive confirmation prompt")
}
